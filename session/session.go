// Package session binds a workflow graph to its storage for one editing
// session. A Session owns the graph, the autosave controller, the project's
// active actions and the selection state, and is the only handle consumers
// use to read or change them.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/autosave"
	"github.com/meikuraledutech/workflow/engine"
	"github.com/meikuraledutech/workflow/layout"
	"github.com/meikuraledutech/workflow/metrics"
)

type (
	// Options configures a Session.
	Options struct {
		AgentID                 string
		ProjectID               string
		CanSave                 bool
		RefreshActionsAfterSave bool
		Autosave                autosave.Config
		Layout                  layout.Config
		AutosaveOptions         []autosave.Option
		Logger                  *zap.Logger
		Metrics                 *metrics.Collector
		Notify                  func(Notice)
	}

	// Drawer is the selection state: which node's editor panel is open.
	Drawer struct {
		Open    bool             `json:"open"`
		NodeID  string           `json:"nodeId,omitempty"`
		Variant workflow.Variant `json:"variant,omitempty"`
	}

	// Notice is a user-visible message about the session.
	Notice struct {
		Level   string    `json:"level"`
		Message string    `json:"message"`
		At      time.Time `json:"at"`
	}

	// Session is one operator's editing session of an agent's workflow.
	Session struct {
		mu      sync.Mutex
		store   workflow.Store
		opts    Options
		graph   *engine.Graph
		ctrl    *autosave.Controller
		meta    workflow.Workflow
		actions []workflow.Action
		drawer  Drawer
		notice  *Notice
		canSave atomic.Bool
		logger  *zap.Logger
	}
)

const (
	NoticeInfo  = "info"
	NoticeError = "error"

	refreshTimeout = 10 * time.Second
)

// Open creates a Session and loads the agent's workflow and the project's
// active actions from store.
func Open(
	ctx context.Context, store workflow.Store, opts Options,
) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		store: store,
		opts:  opts,
		graph: engine.New(layout.New(opts.Layout)),
		logger: logger.With(
			zap.String("component", "session"),
			zap.String("agent_id", opts.AgentID),
		),
	}
	s.canSave.Store(opts.CanSave)

	ctrlOpts := []autosave.Option{
		autosave.WithLogger(logger),
		autosave.WithResultHandler(s.saved),
	}
	ctrlOpts = append(ctrlOpts, opts.AutosaveOptions...)
	s.ctrl = autosave.New(opts.Autosave, s.persist, s.canSave.Load, ctrlOpts...)

	if err := s.Load(ctx); err != nil {
		s.ctrl.Close()
		return nil, err
	}
	opts.Metrics.SessionOpened()
	return s, nil
}

// Load replaces the graph with the stored workflow. A missing or empty
// workflow starts from a single Start step. Loading never counts as a
// change.
func (s *Session) Load(ctx context.Context) error {
	w, err := s.store.GetWorkflow(ctx, s.opts.AgentID)
	if err != nil {
		return fmt.Errorf("workflow: load %s: %w", s.opts.AgentID, err)
	}
	actions, err := s.store.ListActions(ctx, s.opts.ProjectID)
	if err != nil {
		return fmt.Errorf("workflow: load actions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if w == nil {
		s.logger.Info("No stored workflow, starting from default")
		w = &workflow.Workflow{AgentID: s.opts.AgentID}
	}
	s.meta = *w
	s.meta.Nodes = nil
	s.meta.Edges = nil
	s.actions = actions

	nodes, edges := engine.Decode(w)
	if err := engine.Validate(nodes, edges); err != nil {
		s.logger.Warn("Stored workflow violates graph invariants",
			zap.Error(err))
	}

	s.ctrl.Loaded()
	l := s.graph.Seed(nodes, edges)
	s.opts.Metrics.RecordLayout(len(l.Nodes))
	s.ctrl.Replaced(autosave.OriginSync)

	s.logger.Info("Workflow loaded",
		zap.Int("nodes", len(l.Nodes)),
		zap.Int("edges", len(l.Edges)),
		zap.Int("actions", len(actions)))
	return nil
}

// Close stops autosaving. A save already in flight completes.
func (s *Session) Close() {
	s.ctrl.Close()
	s.opts.Metrics.SessionClosed()
	s.logger.Info("Session closed")
}

// AgentID returns the agent whose workflow is edited.
func (s *Session) AgentID() string {
	return s.opts.AgentID
}

// ProjectID returns the project owning the session's actions.
func (s *Session) ProjectID() string {
	return s.opts.ProjectID
}

// Layout returns the current layout snapshot.
func (s *Session) Layout() workflow.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Layout()
}

// Actions returns the project's active action definitions.
func (s *Session) Actions() []workflow.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]workflow.Action{}, s.actions...)
}

// Metadata returns the workflow's stored metadata fields.
func (s *Session) Metadata() workflow.Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// HasUnsavedChanges reports whether there are edits not yet persisted.
func (s *Session) HasUnsavedChanges() bool {
	return s.ctrl.HasUnsavedChanges()
}

// IsSaving reports whether a save is in flight.
func (s *Session) IsSaving() bool {
	return s.ctrl.IsSaving()
}

// State returns the persistence state.
func (s *Session) State() autosave.State {
	return s.ctrl.State()
}

// CanSave reports whether the session may persist.
func (s *Session) CanSave() bool {
	return s.canSave.Load()
}

// SetCanSave changes the caller-supplied write permission.
func (s *Session) SetCanSave(ok bool) {
	s.canSave.Store(ok)
}

// LastNotice returns the most recent notice, if any.
func (s *Session) LastNotice() (Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notice == nil {
		return Notice{}, false
	}
	return *s.notice, true
}

// Save persists the workflow now.
func (s *Session) Save(ctx context.Context) error {
	return s.ctrl.Save(ctx)
}

// persist serializes the graph and writes it. The graph is read under the
// session lock; the store call runs without it so edits continue.
func (s *Session) persist(ctx context.Context) error {
	s.mu.Lock()
	w := engine.Encode(s.graph.Layout(), &s.meta)
	s.mu.Unlock()

	w.AgentID = s.opts.AgentID
	w.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveWorkflow(ctx, w); err != nil {
		return fmt.Errorf("workflow: save %s: %w", s.opts.AgentID, err)
	}
	return nil
}

func (s *Session) saved(res autosave.Result) {
	s.opts.Metrics.RecordSave(res.Auto, res.Err, res.Duration)
	if res.Err != nil {
		s.publish(Notice{
			Level:   NoticeError,
			Message: "Failed to save workflow: " + res.Err.Error(),
			At:      time.Now().UTC(),
		})
		return
	}
	if !res.Auto {
		s.publish(Notice{
			Level:   NoticeInfo,
			Message: "Workflow saved",
			At:      time.Now().UTC(),
		})
	}
	if s.opts.RefreshActionsAfterSave {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if err := s.RefreshActions(ctx); err != nil {
			s.logger.Warn("Action refresh after save failed", zap.Error(err))
		}
	}
}

func (s *Session) publish(n Notice) {
	s.mu.Lock()
	s.notice = &n
	s.mu.Unlock()
	if s.opts.Notify != nil {
		s.opts.Notify(n)
	}
}

// RefreshActions re-reads the project's active actions, drops node
// references to actions that are no longer active and refreshes the display
// fields of the rest. Changed references are an edit and are saved like one,
// even right after a save.
func (s *Session) RefreshActions(ctx context.Context) error {
	actions, err := s.store.ListActions(ctx, s.opts.ProjectID)
	if err != nil {
		return fmt.Errorf("workflow: load actions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = actions

	active := make(map[string]workflow.Action, len(actions))
	for _, a := range actions {
		active[a.ID] = a
	}
	pruned := 0
	for _, n := range s.graph.Layout().Nodes {
		refs, changed := reconcile(n.Data.Actions, active)
		if !changed {
			continue
		}
		if _, ok := s.graph.UpdateNode(n.ID, workflow.NodeUpdate{
			Actions: &refs,
		}); ok {
			pruned++
		}
	}
	if pruned > 0 {
		s.logger.Info("Action references refreshed", zap.Int("nodes", pruned))
		s.ctrl.Replaced(autosave.OriginEdit)
	}
	return nil
}

func reconcile(
	refs []workflow.Ref, active map[string]workflow.Action,
) ([]workflow.Ref, bool) {
	res := make([]workflow.Ref, 0, len(refs))
	changed := false
	for _, r := range refs {
		a, ok := active[r.ID]
		if !ok {
			changed = true
			continue
		}
		if ref := a.Ref(); ref != r {
			r = ref
			changed = true
		}
		res = append(res, r)
	}
	return res, changed
}
