// Package engine holds the workflow graph and the structural operations
// that change it. Every operation computes a new node and edge set and
// swaps it in as a whole; the previous Layout is never modified.
//
// A Graph is not safe for concurrent use. Callers serialize access.
package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/meikuraledutech/workflow"
)

// Layouter computes a full layout for a node and edge set.
type Layouter interface {
	Compute(nodes []workflow.Node, edges []workflow.Edge) workflow.Layout
}

// Graph is the canonical in-memory workflow graph plus the node-id counter.
type Graph struct {
	layouter Layouter
	layout   workflow.Layout
	nextID   int
}

const (
	nodeIDPrefix   = "node_"
	StartNodeLabel = "Start"
)

// New creates an empty Graph laid out by l.
func New(l Layouter) *Graph {
	return &Graph{
		layouter: l,
		layout: workflow.Layout{
			Nodes: []workflow.Node{},
			Edges: []workflow.Edge{},
		},
		nextID: 1,
	}
}

// Layout returns a copy of the current snapshot.
func (g *Graph) Layout() workflow.Layout {
	l := g.layout
	l.Nodes = append([]workflow.Node{}, g.layout.Nodes...)
	l.Edges = append([]workflow.Edge{}, g.layout.Edges...)
	return l
}

// NextID returns the numeric suffix the next created node will get.
func (g *Graph) NextID() int {
	return g.nextID
}

// Seed replaces the graph with loaded data. An empty node set becomes a
// single default "Start" node. Edges with unknown endpoints and duplicate
// edges are dropped. The id counter continues after the highest numeric
// node suffix.
func (g *Graph) Seed(nodes []workflow.Node, edges []workflow.Edge) workflow.Layout {
	g.nextID = 1
	for _, n := range nodes {
		if s, ok := strings.CutPrefix(n.ID, nodeIDPrefix); ok {
			if v, err := strconv.Atoi(s); err == nil && v >= g.nextID {
				g.nextID = v + 1
			}
		}
	}

	if len(nodes) == 0 {
		nodes = []workflow.Node{g.newNode(StartNodeLabel, workflow.VariantDefault)}
	}

	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}
	kept := make([]workflow.Edge, 0, len(edges))
	seen := make(map[string]bool, len(edges))
	for _, e := range edges {
		id := workflow.EdgeID(e.Source, e.Target)
		if !known[e.Source] || !known[e.Target] || seen[id] {
			continue
		}
		seen[id] = true
		kept = append(kept, edge(e.Source, e.Target))
	}
	return g.replace(append([]workflow.Node{}, nodes...), kept)
}

// replace is the single recompute-and-swap path used by structural
// operations.
func (g *Graph) replace(
	nodes []workflow.Node, edges []workflow.Edge,
) workflow.Layout {
	g.layout = g.layouter.Compute(nodes, edges)
	return g.Layout()
}

// set swaps in a snapshot without running the layout.
func (g *Graph) set(l workflow.Layout) workflow.Layout {
	g.layout = l
	return g.Layout()
}

func (g *Graph) newNode(label string, v workflow.Variant) workflow.Node {
	if !v.Valid() {
		v = workflow.VariantDefault
	}
	if label == "" {
		label = v.DefaultLabel()
	}
	id := fmt.Sprintf("%s%d", nodeIDPrefix, g.nextID)
	g.nextID++
	return workflow.Node{
		ID:    id,
		Label: label,
		Data: workflow.NodeData{
			Label:               label,
			Variant:             v,
			RequireUserResponse: v.RequiresUserResponse(),
			Actions:             []workflow.Ref{},
			FAQs:                []workflow.Ref{},
			Objections:          []workflow.Ref{},
			Products:            []workflow.Ref{},
			Services:            []workflow.Ref{},
		},
	}
}

func (g *Graph) node(id string) (workflow.Node, bool) {
	for _, n := range g.layout.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return workflow.Node{}, false
}

func (g *Graph) isVariant(id string, v workflow.Variant) bool {
	n, ok := g.node(id)
	return ok && n.Data.Variant == v
}

func (g *Graph) hasEdge(source, target string) bool {
	return g.layout.HasEdge(source, target)
}

// decisionFor returns the node that owns the fan-out id belongs to: a
// branch arm resolves to the step it hangs from, any other node to itself.
// Every operation that is asked to branch at or around a branch arm goes
// through here so arms are never nested inside arms.
func (g *Graph) decisionFor(id string) (string, bool) {
	n, ok := g.node(id)
	if !ok {
		return "", false
	}
	if n.Data.Variant != workflow.VariantBranch {
		return id, true
	}
	for _, e := range g.layout.Edges {
		if e.Target == id && !g.isVariant(e.Source, workflow.VariantJump) {
			return e.Source, true
		}
	}
	return "", false
}

// branchChildren returns the branch arms hanging from id, in edge order.
func (g *Graph) branchChildren(id string) []string {
	var res []string
	for _, e := range g.layout.Edges {
		if e.Source == id && g.isVariant(e.Target, workflow.VariantBranch) {
			res = append(res, e.Target)
		}
	}
	return res
}

func edge(source, target string) workflow.Edge {
	return workflow.Edge{
		ID:     workflow.EdgeID(source, target),
		Source: source,
		Target: target,
		Points: []workflow.Point{},
	}
}

func (g *Graph) nodes() []workflow.Node {
	return append([]workflow.Node{}, g.layout.Nodes...)
}

func (g *Graph) edges() []workflow.Edge {
	return append([]workflow.Edge{}, g.layout.Edges...)
}
