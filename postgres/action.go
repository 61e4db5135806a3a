package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meikuraledutech/workflow"
)

// SaveAction inserts or updates an action definition.
// If a.ID is empty, a UUID is auto-generated.
// Returns the action ID (generated or provided).
func (s *PGStore) SaveAction(ctx context.Context, a *workflow.Action) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_actions (id, project_id, name, description, kind, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		        project_id = EXCLUDED.project_id,
		        name = EXCLUDED.name,
		        description = EXCLUDED.description,
		        kind = EXCLUDED.kind,
		        active = EXCLUDED.active`,
		a.ID, a.ProjectID, a.Name, a.Description, a.Kind, a.Active, a.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("workflow: save action: %w", err)
	}
	return a.ID, nil
}

// ListActions returns the active actions of projectID, ordered by
// created_at. Returns an empty slice (not nil) if none found.
func (s *PGStore) ListActions(ctx context.Context, projectID string) ([]workflow.Action, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, project_id, name, description, kind, active, created_at
		   FROM workflow_actions
		  WHERE project_id = $1 AND active
		  ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("workflow: list actions: %w", err)
	}
	defer rows.Close()

	actions := []workflow.Action{}
	for rows.Next() {
		var a workflow.Action
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Description,
			&a.Kind, &a.Active, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("workflow: scan action: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: rows actions: %w", err)
	}
	return actions, nil
}

// DeleteAction deletes an action by its ID.
// Returns ErrActionNotFound if the action doesn't exist.
func (s *PGStore) DeleteAction(ctx context.Context, actionID string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM workflow_actions WHERE id = $1`, actionID)
	if err != nil {
		return fmt.Errorf("workflow: delete action: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return workflow.ErrActionNotFound
	}
	return nil
}
