package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meikuraledutech/workflow"
)

// Registry tracks the open sessions of a process by session id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	store    workflow.Store
	defaults Options
	logger   *zap.Logger
}

// NewRegistry creates a Registry opening sessions on store. defaults
// supplies everything but the agent, project and permission.
func NewRegistry(store workflow.Store, defaults Options) *Registry {
	logger := defaults.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		store:    store,
		defaults: defaults,
		logger:   logger.With(zap.String("component", "registry")),
	}
}

// Open loads agentID's workflow into a new session and returns its id.
func (r *Registry) Open(
	ctx context.Context, agentID, projectID string, canSave bool,
) (string, *Session, error) {
	opts := r.defaults
	opts.AgentID = agentID
	opts.ProjectID = projectID
	opts.CanSave = canSave

	s, err := Open(ctx, r.store, opts)
	if err != nil {
		return "", nil, err
	}
	id := uuid.NewString()

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Info("Session opened",
		zap.String("session_id", id),
		zap.String("agent_id", agentID))
	return id, s, nil
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close closes and forgets the session with the given id.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Close()
	return true
}

// CloseAll closes every open session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
