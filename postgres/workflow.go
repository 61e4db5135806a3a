package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meikuraledutech/workflow"
)

// GetWorkflow retrieves the workflow stored for agentID.
// Returns nil, nil if the agent has no workflow.
func (s *PGStore) GetWorkflow(ctx context.Context, agentID string) (*workflow.Workflow, error) {
	w := &workflow.Workflow{AgentID: agentID}
	var actions, faqs, objections, nodes, edges []byte

	err := s.db.QueryRow(ctx,
		`SELECT name, description, instructions, global_actions, global_faqs,
		        global_objections, nodes, edges, position_x, position_y, updated_at
		   FROM workflows WHERE agent_id = $1`, agentID,
	).Scan(&w.Name, &w.Description, &w.Instructions, &actions, &faqs,
		&objections, &nodes, &edges, &w.PositionX, &w.PositionY, &w.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workflow: get workflow: %w", err)
	}

	cols := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"global_actions", actions, &w.GlobalActions},
		{"global_faqs", faqs, &w.GlobalFAQs},
		{"global_objections", objections, &w.GlobalObjections},
		{"nodes", nodes, &w.Nodes},
		{"edges", edges, &w.Edges},
	}
	for _, c := range cols {
		if err := json.Unmarshal(c.raw, c.dst); err != nil {
			return nil, fmt.Errorf("workflow: decode %s: %w", c.name, err)
		}
	}
	return w, nil
}

// SaveWorkflow writes the whole workflow for w.AgentID, replacing any
// previous version.
func (s *PGStore) SaveWorkflow(ctx context.Context, w *workflow.Workflow) error {
	cols := make([][]byte, 0, 5)
	for _, v := range []any{
		nonNil(w.GlobalActions), nonNil(w.GlobalFAQs), nonNil(w.GlobalObjections),
		nonNilNodes(w.Nodes), nonNilEdges(w.Edges),
	} {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("workflow: encode: %w", err)
		}
		cols = append(cols, b)
	}
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("workflow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO workflows (agent_id, name, description, instructions,
		        global_actions, global_faqs, global_objections, nodes, edges,
		        position_x, position_y, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (agent_id) DO UPDATE SET
		        name = EXCLUDED.name,
		        description = EXCLUDED.description,
		        instructions = EXCLUDED.instructions,
		        global_actions = EXCLUDED.global_actions,
		        global_faqs = EXCLUDED.global_faqs,
		        global_objections = EXCLUDED.global_objections,
		        nodes = EXCLUDED.nodes,
		        edges = EXCLUDED.edges,
		        position_x = EXCLUDED.position_x,
		        position_y = EXCLUDED.position_y,
		        updated_at = EXCLUDED.updated_at`,
		w.AgentID, w.Name, w.Description, w.Instructions,
		cols[0], cols[1], cols[2], cols[3], cols[4],
		w.PositionX, w.PositionY, w.UpdatedAt,
	); err != nil {
		return fmt.Errorf("workflow: upsert %s: %w", w.AgentID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("workflow: commit: %w", err)
	}
	return nil
}

// DeleteWorkflow removes the workflow stored for agentID.
// No error if the agent has no workflow.
func (s *PGStore) DeleteWorkflow(ctx context.Context, agentID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE agent_id = $1`, agentID); err != nil {
		return fmt.Errorf("workflow: delete workflow: %w", err)
	}
	return nil
}

func nonNil(r []workflow.Ref) []workflow.Ref {
	if r == nil {
		return []workflow.Ref{}
	}
	return r
}

func nonNilNodes(n []workflow.StoredNode) []workflow.StoredNode {
	if n == nil {
		return []workflow.StoredNode{}
	}
	return n
}

func nonNilEdges(e []workflow.StoredEdge) []workflow.StoredEdge {
	if e == nil {
		return []workflow.StoredEdge{}
	}
	return e
}
