package engine

import (
	"fmt"

	"github.com/meikuraledutech/workflow"
)

// Validate checks the structural invariants of a graph: every edge endpoint
// exists, jump nodes have at most one outgoing edge, and the edges not
// sourced at a jump node are acyclic. Mutations preserve these without
// calling Validate; it exists for load-time reporting and tests.
func Validate(nodes []workflow.Node, edges []workflow.Edge) error {
	variant := make(map[string]workflow.Variant, len(nodes))
	for _, n := range nodes {
		variant[n.ID] = n.Data.Variant
	}

	adj := make(map[string][]string)
	jumpOut := make(map[string]int)
	for _, e := range edges {
		if _, ok := variant[e.Source]; !ok {
			return fmt.Errorf("%w: edge %s source %q",
				workflow.ErrNodeNotFound, e.ID, e.Source)
		}
		if _, ok := variant[e.Target]; !ok {
			return fmt.Errorf("%w: edge %s target %q",
				workflow.ErrNodeNotFound, e.ID, e.Target)
		}
		if variant[e.Source] == workflow.VariantJump {
			jumpOut[e.Source]++
			if jumpOut[e.Source] > 1 {
				return fmt.Errorf("workflow: jump node %q has %d outgoing edges",
					e.Source, jumpOut[e.Source])
			}
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	state := make(map[string]int, len(nodes))
	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = visiting
		for _, next := range adj[id] {
			switch state[next] {
			case visiting:
				return true
			case unvisited:
				if dfs(next) {
					return true
				}
			}
		}
		state[id] = visited
		return false
	}

	for _, n := range nodes {
		if state[n.ID] == unvisited && dfs(n.ID) {
			return workflow.ErrCycleDetected
		}
	}
	return nil
}
