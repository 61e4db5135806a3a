// Package redisstore implements workflow.Store on Redis. Each workflow is
// one JSON document under its agent key; actions live in a per-project
// hash with a reverse index from action id to project.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meikuraledutech/workflow"
)

// Store implements workflow.Store using Redis via go-redis.
type Store struct {
	client *redis.Client
	prefix string
}

// DefaultPrefix is the key namespace used when none is given.
const DefaultPrefix = "workflow"

const scanBatch = 100

// New creates a Store on client. Keys are namespaced under prefix.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) workflowKey(agentID string) string {
	return s.prefix + ":wf:" + agentID
}

func (s *Store) actionsKey(projectID string) string {
	return s.prefix + ":actions:" + projectID
}

func (s *Store) actionProjectKey(actionID string) string {
	return s.prefix + ":action:" + actionID
}

// CreateSchema checks connectivity. Redis needs no schema.
func (s *Store) CreateSchema(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("workflow: ping redis: %w", err)
	}
	return nil
}

// DropSchema deletes every key under the store's prefix.
func (s *Store) DropSchema(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("workflow: scan keys: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("workflow: delete keys: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// GetWorkflow retrieves the workflow stored for agentID.
// Returns nil, nil if the agent has no workflow.
func (s *Store) GetWorkflow(ctx context.Context, agentID string) (*workflow.Workflow, error) {
	raw, err := s.client.Get(ctx, s.workflowKey(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workflow: get workflow: %w", err)
	}
	var w workflow.Workflow
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("workflow: decode workflow: %w", err)
	}
	w.AgentID = agentID
	return &w, nil
}

// SaveWorkflow writes the whole workflow for w.AgentID, replacing any
// previous version.
func (s *Store) SaveWorkflow(ctx context.Context, w *workflow.Workflow) error {
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("workflow: encode workflow: %w", err)
	}
	if err := s.client.Set(ctx, s.workflowKey(w.AgentID), raw, 0).Err(); err != nil {
		return fmt.Errorf("workflow: set workflow %s: %w", w.AgentID, err)
	}
	return nil
}

// DeleteWorkflow removes the workflow stored for agentID.
// No error if the agent has no workflow.
func (s *Store) DeleteWorkflow(ctx context.Context, agentID string) error {
	if err := s.client.Del(ctx, s.workflowKey(agentID)).Err(); err != nil {
		return fmt.Errorf("workflow: delete workflow: %w", err)
	}
	return nil
}

// SaveAction inserts or updates an action definition.
// If a.ID is empty, a UUID is auto-generated.
// Returns the action ID (generated or provided).
func (s *Store) SaveAction(ctx context.Context, a *workflow.Action) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("workflow: encode action: %w", err)
	}

	prev, err := s.client.Get(ctx, s.actionProjectKey(a.ID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("workflow: find action: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if prev != "" && prev != a.ProjectID {
			p.HDel(ctx, s.actionsKey(prev), a.ID)
		}
		p.HSet(ctx, s.actionsKey(a.ProjectID), a.ID, raw)
		p.Set(ctx, s.actionProjectKey(a.ID), a.ProjectID, 0)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("workflow: save action: %w", err)
	}
	return a.ID, nil
}

// ListActions returns the active actions of projectID, ordered by
// created_at. Returns an empty slice (not nil) if none found.
func (s *Store) ListActions(ctx context.Context, projectID string) ([]workflow.Action, error) {
	vals, err := s.client.HVals(ctx, s.actionsKey(projectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("workflow: list actions: %w", err)
	}

	actions := []workflow.Action{}
	for _, v := range vals {
		var a workflow.Action
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, fmt.Errorf("workflow: decode action: %w", err)
		}
		if a.Active {
			actions = append(actions, a)
		}
	}
	slices.SortFunc(actions, func(a, b workflow.Action) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return actions, nil
}

// DeleteAction deletes an action by its ID.
// Returns ErrActionNotFound if the action doesn't exist.
func (s *Store) DeleteAction(ctx context.Context, actionID string) error {
	projectID, err := s.client.Get(ctx, s.actionProjectKey(actionID)).Result()
	if errors.Is(err, redis.Nil) {
		return workflow.ErrActionNotFound
	}
	if err != nil {
		return fmt.Errorf("workflow: find action: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, s.actionsKey(projectID), actionID)
		p.Del(ctx, s.actionProjectKey(actionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("workflow: delete action: %w", err)
	}
	return nil
}
