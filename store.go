package workflow

import (
	"context"
	"errors"
)

var (
	ErrCycleDetected    = errors.New("workflow: cycle detected in step edges")
	ErrNodeNotFound     = errors.New("workflow: node not found")
	ErrEdgeNotFound     = errors.New("workflow: edge not found")
	ErrWorkflowNotFound = errors.New("workflow: workflow not found")
	ErrActionNotFound   = errors.New("workflow: action not found")
	ErrSaveNotAllowed   = errors.New("workflow: save not allowed")
	ErrSaveInProgress   = errors.New("workflow: save already in progress")
	ErrSessionClosed    = errors.New("workflow: session closed")
)

// Store defines the contract for persisting workflows and reading the
// project's reusable actions.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Workflows (one record per agent, replaced as a whole)
	GetWorkflow(ctx context.Context, agentID string) (*Workflow, error)
	SaveWorkflow(ctx context.Context, w *Workflow) error
	DeleteWorkflow(ctx context.Context, agentID string) error

	// Actions
	SaveAction(ctx context.Context, a *Action) (string, error)
	ListActions(ctx context.Context, projectID string) ([]Action, error)
	DeleteAction(ctx context.Context, actionID string) error
}
