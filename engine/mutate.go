package engine

import (
	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/layout"
)

// BranchPair holds the arms created by a branch operation. Right is empty
// when the operation added a single arm to an existing fan-out.
type BranchPair struct {
	Left  string `json:"left"`
	Right string `json:"right,omitempty"`
}

// CreateNode appends a new node and, when parentID names an existing
// node, an edge parentID -> new. A jump parent is re-pointed at the new
// node. It returns the new node's id.
func (g *Graph) CreateNode(
	label, parentID string, v workflow.Variant,
) (string, workflow.Layout) {
	n := g.newNode(label, v)
	nodes := append(g.nodes(), n)
	edges := g.edges()
	if parent, ok := g.node(parentID); ok {
		if parent.Data.Variant == workflow.VariantJump {
			edges = g.withoutOutgoing(parentID)
			for i := range nodes {
				if nodes[i].ID == parentID {
					nodes[i].Data.TargetNodeID = n.ID
				}
			}
		}
		edges = append(edges, edge(parentID, n.ID))
	}
	return n.ID, g.replace(nodes, edges)
}

// DeleteNode removes id, every node reachable from it and every edge
// touching a removed node. Surviving jump nodes that pointed into the
// removed set lose their target.
func (g *Graph) DeleteNode(id string) (workflow.Layout, bool) {
	if _, ok := g.node(id); !ok {
		return workflow.Layout{}, false
	}

	adj := make(map[string][]string)
	for _, e := range g.layout.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	removed := make(map[string]bool)
	var dfs func(id string)
	dfs = func(id string) {
		removed[id] = true
		for _, next := range adj[id] {
			if !removed[next] {
				dfs(next)
			}
		}
	}
	dfs(id)

	nodes := make([]workflow.Node, 0, len(g.layout.Nodes))
	for _, n := range g.layout.Nodes {
		if removed[n.ID] {
			continue
		}
		if removed[n.Data.TargetNodeID] {
			n.Data.TargetNodeID = ""
		}
		nodes = append(nodes, n)
	}
	edges := make([]workflow.Edge, 0, len(g.layout.Edges))
	for _, e := range g.layout.Edges {
		if !removed[e.Source] && !removed[e.Target] {
			edges = append(edges, e)
		}
	}
	return g.replace(nodes, edges), true
}

// UpdateNode merges upd into the node's data. A label change is mirrored
// on the node itself; an instructions change refreshes the derived text.
func (g *Graph) UpdateNode(
	id string, upd workflow.NodeUpdate,
) (workflow.Layout, bool) {
	nodes := g.nodes()
	idx := -1
	for i := range nodes {
		if nodes[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return workflow.Layout{}, false
	}

	n := &nodes[idx]
	d := &n.Data
	if upd.Label != nil {
		d.Label = *upd.Label
		n.Label = *upd.Label
	}
	if upd.Instructions != nil {
		d.Instructions = *upd.Instructions
		deriveContent(d)
	}
	if upd.RequireUserResponse != nil {
		d.RequireUserResponse = *upd.RequireUserResponse
	}
	if upd.Actions != nil {
		d.Actions = refs(*upd.Actions)
	}
	if upd.FAQs != nil {
		d.FAQs = refs(*upd.FAQs)
	}
	if upd.Objections != nil {
		d.Objections = refs(*upd.Objections)
	}
	if upd.Products != nil {
		d.Products = refs(*upd.Products)
	}
	if upd.Services != nil {
		d.Services = refs(*upd.Services)
	}
	return g.replace(nodes, g.edges()), true
}

// CreateBranch attaches two branch arms to parentID. When parentID is
// itself an arm, a single arm labelled left is added to the step that owns
// it instead. Jump nodes cannot branch.
func (g *Graph) CreateBranch(
	parentID, left, right string,
) (BranchPair, workflow.Layout, bool) {
	if g.isVariant(parentID, workflow.VariantBranch) {
		return g.addArm(parentID, left)
	}
	if _, ok := g.node(parentID); !ok ||
		g.isVariant(parentID, workflow.VariantJump) {
		return BranchPair{}, workflow.Layout{}, false
	}
	return g.fork(parentID, "", left, right)
}

// InsertNode splices a new node into the edge sourceID -> targetID. When
// the target is a branch arm, the node goes in front of all of sourceID's
// arms at once so the fan-out moves as a unit.
func (g *Graph) InsertNode(
	sourceID, targetID, label string, v workflow.Variant,
) (string, workflow.Layout, bool) {
	if !g.hasEdge(sourceID, targetID) {
		return "", workflow.Layout{}, false
	}

	if g.isVariant(targetID, workflow.VariantBranch) &&
		!g.isVariant(sourceID, workflow.VariantJump) {
		if v == workflow.VariantBranch || v == workflow.VariantJump {
			return "", workflow.Layout{}, false
		}
		arms := g.branchChildren(sourceID)
		isArm := make(map[string]bool, len(arms))
		for _, a := range arms {
			isArm[a] = true
		}
		n := g.newNode(label, v)
		edges := make([]workflow.Edge, 0, len(g.layout.Edges)+1)
		for _, e := range g.layout.Edges {
			if e.Source == sourceID && isArm[e.Target] {
				continue
			}
			edges = append(edges, e)
		}
		edges = append(edges, edge(sourceID, n.ID))
		for _, a := range arms {
			edges = append(edges, edge(n.ID, a))
		}
		return n.ID, g.replace(append(g.nodes(), n), edges), true
	}

	n := g.newNode(label, v)
	if n.Data.Variant == workflow.VariantJump {
		n.Data.TargetNodeID = targetID
	}
	nodes := g.retarget(append(g.nodes(), n), sourceID, targetID, n.ID)
	edges := g.withoutEdge(sourceID, targetID)
	edges = append(edges, edge(sourceID, n.ID), edge(n.ID, targetID))
	return n.ID, g.replace(nodes, edges), true
}

// InsertBranch puts a decision into the edge sourceID -> targetID: the
// source forks into two arms and the left arm continues to the target.
// When either end is already a branch arm, a single arm labelled left is
// added to the owning step instead of nesting arms.
func (g *Graph) InsertBranch(
	sourceID, targetID, left, right string,
) (BranchPair, workflow.Layout, bool) {
	if !g.hasEdge(sourceID, targetID) ||
		g.isVariant(sourceID, workflow.VariantJump) {
		return BranchPair{}, workflow.Layout{}, false
	}
	switch {
	case g.isVariant(sourceID, workflow.VariantBranch):
		return g.addArm(sourceID, left)
	case g.isVariant(targetID, workflow.VariantBranch):
		return g.addArm(targetID, left)
	}
	return g.fork(sourceID, targetID, left, right)
}

// ConnectTo adds the edge sourceID -> targetID if it does not exist. The
// layout is not recomputed. A jump source is re-pointed instead so it keeps
// a single outgoing edge.
func (g *Graph) ConnectTo(sourceID, targetID string) (workflow.Layout, bool) {
	if sourceID == targetID || g.hasEdge(sourceID, targetID) {
		return workflow.Layout{}, false
	}
	if _, ok := g.node(targetID); !ok {
		return workflow.Layout{}, false
	}
	src, ok := g.node(sourceID)
	if !ok {
		return workflow.Layout{}, false
	}
	if src.Data.Variant == workflow.VariantJump {
		return g.SetJumpTarget(sourceID, targetID)
	}
	l := g.layout
	l.Edges = append(g.edges(), edge(sourceID, targetID))
	return g.set(l), true
}

// SetJumpTarget replaces every outgoing edge of jumpID with a single edge
// to targetID, or with none when targetID is empty. The layout is not
// recomputed; only the jump node's height is refreshed.
func (g *Graph) SetJumpTarget(jumpID, targetID string) (workflow.Layout, bool) {
	if !g.isVariant(jumpID, workflow.VariantJump) || jumpID == targetID {
		return workflow.Layout{}, false
	}
	if targetID != "" {
		if _, ok := g.node(targetID); !ok {
			return workflow.Layout{}, false
		}
	}

	l := g.layout
	l.Nodes = g.nodes()
	for i := range l.Nodes {
		if n := &l.Nodes[i]; n.ID == jumpID {
			n.Data.TargetNodeID = targetID
			n.Height = layout.Height(n)
		}
	}
	l.Edges = g.withoutOutgoing(jumpID)
	if targetID != "" {
		l.Edges = append(l.Edges, edge(jumpID, targetID))
	}
	return g.set(l), true
}

// fork hangs two new arms from parentID. With a non-empty continueTo the
// edge parentID -> continueTo is moved below the left arm.
func (g *Graph) fork(
	parentID, continueTo, left, right string,
) (BranchPair, workflow.Layout, bool) {
	l := g.newNode(left, workflow.VariantBranch)
	r := g.newNode(right, workflow.VariantBranch)
	nodes := append(g.nodes(), l, r)
	edges := g.edges()
	if continueTo != "" {
		edges = g.withoutEdge(parentID, continueTo)
	}
	edges = append(edges, edge(parentID, l.ID), edge(parentID, r.ID))
	if continueTo != "" {
		edges = append(edges, edge(l.ID, continueTo))
	}
	return BranchPair{Left: l.ID, Right: r.ID}, g.replace(nodes, edges), true
}

// addArm adds one arm labelled label to the step owning armID.
func (g *Graph) addArm(
	armID, label string,
) (BranchPair, workflow.Layout, bool) {
	owner, ok := g.decisionFor(armID)
	if !ok {
		return BranchPair{}, workflow.Layout{}, false
	}
	n := g.newNode(label, workflow.VariantBranch)
	edges := append(g.edges(), edge(owner, n.ID))
	return BranchPair{Left: n.ID}, g.replace(append(g.nodes(), n), edges), true
}

func (g *Graph) withoutEdge(source, target string) []workflow.Edge {
	res := make([]workflow.Edge, 0, len(g.layout.Edges))
	for _, e := range g.layout.Edges {
		if e.Source != source || e.Target != target {
			res = append(res, e)
		}
	}
	return res
}

func (g *Graph) withoutOutgoing(source string) []workflow.Edge {
	res := make([]workflow.Edge, 0, len(g.layout.Edges)+1)
	for _, e := range g.layout.Edges {
		if e.Source != source {
			res = append(res, e)
		}
	}
	return res
}

// retarget keeps a jump source's recorded target in step with its edge
// when a node is spliced in after it.
func (g *Graph) retarget(
	nodes []workflow.Node, sourceID, oldTarget, newTarget string,
) []workflow.Node {
	for i := range nodes {
		n := &nodes[i]
		if n.ID == sourceID && n.Data.Variant == workflow.VariantJump &&
			n.Data.TargetNodeID == oldTarget {
			n.Data.TargetNodeID = newTarget
		}
	}
	return nodes
}
