// Package layout computes node sizes and a layered top-to-bottom layout
// for workflow graphs.
//
// The whole graph is laid out on every call. Edges whose source is a jump
// node take no part in layering and are returned with an empty route.
package layout

import (
	"sort"

	"github.com/meikuraledutech/workflow"
)

// Config holds the fixed spacing constants of the layout.
type Config struct {
	RankSep float64 // vertical gap between ranks
	NodeSep float64 // horizontal gap between neighbours in a rank
	MarginX float64
	MarginY float64
	Sweeps  int // crossing-reduction and placement iterations
}

// Engine lays out workflow graphs.
type Engine struct {
	cfg Config
}

// vertex is a layout vertex: a real node or a dummy on a long edge.
type vertex struct {
	node  int // index into the node slice, -1 for dummies
	w, h  float64
	rank  int
	pos   int
	x, y  float64 // centre
	up    []int
	down  []int
	input int // first-seen order, for stable sorting
}

// chain is the vertex path of one structural edge, top to bottom.
type chain struct {
	edge     int
	vertices []int
	reversed bool
}

const (
	DefaultRankSep = 80
	DefaultNodeSep = 60
	DefaultMargin  = 20
	DefaultSweeps  = 4
)

// DefaultConfig returns the spacing used by the editor.
func DefaultConfig() Config {
	return Config{
		RankSep: DefaultRankSep,
		NodeSep: DefaultNodeSep,
		MarginX: DefaultMargin,
		MarginY: DefaultMargin,
		Sweeps:  DefaultSweeps,
	}
}

// New creates an Engine. Zero-valued spacing fields take their defaults.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.RankSep <= 0 {
		cfg.RankSep = def.RankSep
	}
	if cfg.NodeSep <= 0 {
		cfg.NodeSep = def.NodeSep
	}
	if cfg.MarginX < 0 {
		cfg.MarginX = def.MarginX
	}
	if cfg.MarginY < 0 {
		cfg.MarginY = def.MarginY
	}
	if cfg.Sweeps <= 0 {
		cfg.Sweeps = def.Sweeps
	}
	return &Engine{cfg: cfg}
}

// Compute assigns sizes, positions and edge routes to a copy of the given
// graph and returns it as a Layout. The inputs are not modified.
func (e *Engine) Compute(
	nodes []workflow.Node, edges []workflow.Edge,
) workflow.Layout {
	out := workflow.Layout{
		Nodes: make([]workflow.Node, len(nodes)),
		Edges: make([]workflow.Edge, len(edges)),
	}
	copy(out.Nodes, nodes)
	copy(out.Edges, edges)

	index := make(map[string]int, len(out.Nodes))
	verts := make([]*vertex, len(out.Nodes))
	for i := range out.Nodes {
		n := &out.Nodes[i]
		n.Width = Width(n.Data.Variant)
		n.Height = Height(n)
		index[n.ID] = i
		verts[i] = &vertex{node: i, w: n.Width, h: n.Height, input: i}
	}

	// Structural edges only: jump-sourced edges never influence layering.
	type pair struct{ from, to int }
	seen := make(map[pair]int)
	var structural []int
	for i := range out.Edges {
		ed := &out.Edges[i]
		ed.Points = []workflow.Point{}
		from, okFrom := index[ed.Source]
		to, okTo := index[ed.Target]
		if !okFrom || !okTo || from == to {
			continue
		}
		if out.Nodes[from].Data.Variant == workflow.VariantJump {
			continue
		}
		p := pair{from, to}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = i
		structural = append(structural, i)
	}
	if len(out.Nodes) == 0 {
		return out
	}

	reversed := findBackEdges(len(out.Nodes), out.Edges, structural, index)
	ranks := assignRanks(len(out.Nodes), out.Edges, structural, reversed, index)
	for i, v := range verts {
		v.rank = ranks[i]
	}

	// Split long edges with dummy vertices so every segment spans one rank.
	chains := make([]chain, 0, len(structural))
	for _, ei := range structural {
		ed := &out.Edges[ei]
		top, bottom := index[ed.Source], index[ed.Target]
		rev := reversed[ei]
		if rev {
			top, bottom = bottom, top
		}
		c := chain{edge: ei, reversed: rev, vertices: []int{top}}
		prev := top
		for r := verts[top].rank + 1; r < verts[bottom].rank; r++ {
			d := len(verts)
			verts = append(verts, &vertex{node: -1, rank: r, input: d})
			link(verts, prev, d)
			c.vertices = append(c.vertices, d)
			prev = d
		}
		link(verts, prev, bottom)
		c.vertices = append(c.vertices, bottom)
		chains = append(chains, c)
	}

	layers := e.initialOrder(verts)
	e.reduceCrossings(verts, layers)
	e.assignY(verts, layers)
	e.assignX(verts, layers)

	var maxX, maxY float64
	for i := range out.Nodes {
		v := verts[i]
		n := &out.Nodes[i]
		n.X = v.x - v.w/2
		n.Y = v.y - v.h/2
		maxX = max(maxX, n.X+n.Width)
		maxY = max(maxY, n.Y+n.Height)
	}

	for _, c := range chains {
		pts := make([]workflow.Point, 0, len(c.vertices))
		for k, vi := range c.vertices {
			v := verts[vi]
			switch {
			case k == 0:
				pts = append(pts, workflow.Point{X: v.x, Y: v.y + v.h/2})
			case k == len(c.vertices)-1:
				pts = append(pts, workflow.Point{X: v.x, Y: v.y - v.h/2})
			default:
				pts = append(pts, workflow.Point{X: v.x, Y: v.y})
			}
		}
		if c.reversed {
			for l, r := 0, len(pts)-1; l < r; l, r = l+1, r-1 {
				pts[l], pts[r] = pts[r], pts[l]
			}
		}
		out.Edges[c.edge].Points = pts
	}

	// Duplicate structural edges share the route of the first occurrence.
	for i := range out.Edges {
		ed := &out.Edges[i]
		from, okFrom := index[ed.Source]
		to, okTo := index[ed.Target]
		if !okFrom || !okTo {
			continue
		}
		if first, ok := seen[pair{from, to}]; ok && first != i {
			ed.Points = append([]workflow.Point{}, out.Edges[first].Points...)
		}
	}

	out.Width = maxX + e.cfg.MarginX
	out.Height = maxY + e.cfg.MarginY
	return out
}

func link(verts []*vertex, from, to int) {
	verts[from].down = append(verts[from].down, to)
	verts[to].up = append(verts[to].up, from)
}

// findBackEdges returns the structural edges that close a cycle, found by
// DFS in node order. They are reversed for layering.
func findBackEdges(
	n int, edges []workflow.Edge, structural []int, index map[string]int,
) map[int]bool {
	type out struct{ to, edge int }
	adj := make([][]out, n)
	for _, ei := range structural {
		from, to := index[edges[ei].Source], index[edges[ei].Target]
		adj[from] = append(adj[from], out{to, ei})
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make([]int, n)
	back := make(map[int]bool)

	var dfs func(u int)
	dfs = func(u int) {
		state[u] = visiting
		for _, o := range adj[u] {
			switch state[o.to] {
			case visiting:
				back[o.edge] = true
			case unvisited:
				dfs(o.to)
			}
		}
		state[u] = visited
	}
	for u := range n {
		if state[u] == unvisited {
			dfs(u)
		}
	}
	return back
}

// assignRanks gives every node its longest-path distance from a source,
// processing nodes in topological order (Kahn) with ties in input order.
func assignRanks(
	n int, edges []workflow.Edge, structural []int, reversed map[int]bool,
	index map[string]int,
) []int {
	succ := make([][]int, n)
	inDegree := make([]int, n)
	for _, ei := range structural {
		from, to := index[edges[ei].Source], index[edges[ei].Target]
		if reversed[ei] {
			from, to = to, from
		}
		succ[from] = append(succ[from], to)
		inDegree[to]++
	}

	rank := make([]int, n)
	queue := make([]int, 0, n)
	for u := range n {
		if inDegree[u] == 0 {
			queue = append(queue, u)
		}
	}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range succ[u] {
			rank[v] = max(rank[v], rank[u]+1)
			inDegree[v]--
			if inDegree[v] == 0 {
				queue = append(queue, v)
			}
		}
	}
	return rank
}

// initialOrder fills the layers breadth-first from the rank-0 vertices so
// that children start out in the order their edges were created.
func (e *Engine) initialOrder(verts []*vertex) [][]int {
	maxRank := 0
	for _, v := range verts {
		maxRank = max(maxRank, v.rank)
	}
	layers := make([][]int, maxRank+1)
	placed := make([]bool, len(verts))

	var queue []int
	enqueue := func(i int) {
		if placed[i] {
			return
		}
		placed[i] = true
		queue = append(queue, i)
	}
	for i, v := range verts {
		if v.rank == 0 && len(v.up) == 0 {
			enqueue(i)
		}
	}
	for {
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			layers[verts[i].rank] = append(layers[verts[i].rank], i)
			for _, d := range verts[i].down {
				enqueue(d)
			}
		}
		rest := -1
		for i := range verts {
			if !placed[i] {
				rest = i
				break
			}
		}
		if rest < 0 {
			break
		}
		enqueue(rest)
	}

	for _, layer := range layers {
		for p, vi := range layer {
			verts[vi].pos = p
		}
	}
	return layers
}

// reduceCrossings runs alternating barycenter sweeps and keeps the order
// with the fewest crossings.
func (e *Engine) reduceCrossings(verts []*vertex, layers [][]int) {
	best := snapshotOrder(layers)
	bestCrossings := countCrossings(verts, layers)

	for s := 0; s < e.cfg.Sweeps && bestCrossings > 0; s++ {
		for r := 1; r < len(layers); r++ {
			sortByBarycenter(verts, layers[r], func(v *vertex) []int { return v.up })
		}
		for r := len(layers) - 2; r >= 0; r-- {
			sortByBarycenter(verts, layers[r], func(v *vertex) []int { return v.down })
		}
		if c := countCrossings(verts, layers); c < bestCrossings {
			bestCrossings = c
			best = snapshotOrder(layers)
		}
	}

	for r, layer := range best {
		copy(layers[r], layer)
		for p, vi := range layers[r] {
			verts[vi].pos = p
		}
	}
}

func snapshotOrder(layers [][]int) [][]int {
	res := make([][]int, len(layers))
	for r, layer := range layers {
		res[r] = append([]int(nil), layer...)
	}
	return res
}

func sortByBarycenter(
	verts []*vertex, layer []int, neighbours func(*vertex) []int,
) {
	bary := make(map[int]float64, len(layer))
	for _, vi := range layer {
		v := verts[vi]
		adj := neighbours(v)
		if len(adj) == 0 {
			bary[vi] = float64(v.pos)
			continue
		}
		sum := 0.0
		for _, a := range adj {
			sum += float64(verts[a].pos)
		}
		bary[vi] = sum / float64(len(adj))
	}
	sort.SliceStable(layer, func(i, j int) bool {
		return bary[layer[i]] < bary[layer[j]]
	})
	for p, vi := range layer {
		verts[vi].pos = p
	}
}

func countCrossings(verts []*vertex, layers [][]int) int {
	total := 0
	for r := 0; r+1 < len(layers); r++ {
		type seg struct{ a, b int }
		var segs []seg
		for _, vi := range layers[r] {
			for _, d := range verts[vi].down {
				segs = append(segs, seg{verts[vi].pos, verts[d].pos})
			}
		}
		for i := range segs {
			for j := i + 1; j < len(segs); j++ {
				if (segs[i].a-segs[j].a)*(segs[i].b-segs[j].b) < 0 {
					total++
				}
			}
		}
	}
	return total
}

// assignY centres every vertex vertically within its rank band.
func (e *Engine) assignY(verts []*vertex, layers [][]int) {
	top := e.cfg.MarginY
	for _, layer := range layers {
		band := 0.0
		for _, vi := range layer {
			band = max(band, verts[vi].h)
		}
		for _, vi := range layer {
			verts[vi].y = top + band/2
		}
		top += band + e.cfg.RankSep
	}
}

// assignX packs each rank, then repeatedly pulls vertices towards the mean
// of their neighbours while keeping order and separation.
func (e *Engine) assignX(verts []*vertex, layers [][]int) {
	for _, layer := range layers {
		left := 0.0
		for _, vi := range layer {
			v := verts[vi]
			v.x = left + v.w/2
			left += v.w + e.cfg.NodeSep
		}
	}

	for s := 0; s < e.cfg.Sweeps; s++ {
		for r := len(layers) - 2; r >= 0; r-- {
			e.place(verts, layers[r], func(v *vertex) []int { return v.down })
		}
		for r := 1; r < len(layers); r++ {
			e.place(verts, layers[r], func(v *vertex) []int { return v.up })
		}
	}

	minLeft := 0.0
	first := true
	for _, v := range verts {
		if l := v.x - v.w/2; first || l < minLeft {
			minLeft = l
			first = false
		}
	}
	shift := e.cfg.MarginX - minLeft
	for _, v := range verts {
		v.x += shift
	}
}

// place moves a rank towards its neighbours' centres. A left-to-right and
// a right-to-left pass each produce a separated placement; their average is
// also separated.
func (e *Engine) place(
	verts []*vertex, layer []int, neighbours func(*vertex) []int,
) {
	n := len(layer)
	if n == 0 {
		return
	}
	desired := make([]float64, n)
	for i, vi := range layer {
		v := verts[vi]
		adj := neighbours(v)
		if len(adj) == 0 {
			desired[i] = v.x
			continue
		}
		sum := 0.0
		for _, a := range adj {
			sum += verts[a].x
		}
		desired[i] = sum / float64(len(adj))
	}

	gap := func(i int) float64 {
		return verts[layer[i]].w/2 + e.cfg.NodeSep + verts[layer[i+1]].w/2
	}
	left := make([]float64, n)
	left[0] = desired[0]
	for i := 1; i < n; i++ {
		left[i] = max(desired[i], left[i-1]+gap(i-1))
	}
	right := make([]float64, n)
	right[n-1] = desired[n-1]
	for i := n - 2; i >= 0; i-- {
		right[i] = min(desired[i], right[i+1]-gap(i))
	}
	for i, vi := range layer {
		verts[vi].x = (left[i] + right[i]) / 2
	}
}
