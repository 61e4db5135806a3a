package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/autosave"
	"github.com/meikuraledutech/workflow/redisstore"
	"github.com/meikuraledutech/workflow/session"
)

const (
	agentID   = "agent-1"
	projectID = "project-1"
)

// countingStore wraps a real store, counting workflow saves and optionally
// failing them.
type countingStore struct {
	workflow.Store
	saves atomic.Int32
	fail  atomic.Bool
}

func (s *countingStore) SaveWorkflow(ctx context.Context, w *workflow.Workflow) error {
	s.saves.Add(1)
	if s.fail.Load() {
		return errors.New("connection reset")
	}
	return s.Store.SaveWorkflow(ctx, w)
}

// timers hands out debounce timers that only fire when told to.
type timers struct {
	mu      sync.Mutex
	pending []func()
}

type timer struct {
	ts *timers
	i  int
}

func (t timer) Stop() bool {
	t.ts.mu.Lock()
	defer t.ts.mu.Unlock()
	was := t.ts.pending[t.i] != nil
	t.ts.pending[t.i] = nil
	return was
}

func (ts *timers) AfterFunc(_ time.Duration, fn func()) autosave.Timer {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.pending = append(ts.pending, fn)
	return timer{ts: ts, i: len(ts.pending) - 1}
}

func (ts *timers) armed() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	n := 0
	for _, fn := range ts.pending {
		if fn != nil {
			n++
		}
	}
	return n
}

// elapse fires every armed timer.
func (ts *timers) elapse() {
	ts.mu.Lock()
	var due []func()
	for i, fn := range ts.pending {
		if fn != nil {
			due = append(due, fn)
			ts.pending[i] = nil
		}
	}
	ts.mu.Unlock()
	for _, fn := range due {
		fn()
	}
}

type fixture struct {
	store  *countingStore
	timers *timers
	opts   session.Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{
		store:  &countingStore{Store: redisstore.New(client, "test")},
		timers: &timers{},
	}
	f.opts = session.Options{
		AgentID:   agentID,
		ProjectID: projectID,
		CanSave:   true,
		AutosaveOptions: []autosave.Option{
			autosave.WithAfterFunc(f.timers.AfterFunc),
			autosave.WithClock(func() time.Time { return now }),
		},
	}
	return f
}

func (f *fixture) open(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.Open(context.Background(), f.store, f.opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func (f *fixture) stored(t *testing.T) *workflow.Workflow {
	t.Helper()
	w, err := f.store.GetWorkflow(context.Background(), agentID)
	require.NoError(t, err)
	require.NotNil(t, w)
	return w
}

func TestOpenEmptyWorkflow(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)

	l := s.Layout()
	require.Len(t, l.Nodes, 1)
	assert.Equal(t, "Start", l.Nodes[0].Label)
	assert.Equal(t, agentID, s.Metadata().AgentID)
	assert.Equal(t, agentID, s.AgentID())
	assert.Equal(t, projectID, s.ProjectID())
	assert.False(t, s.HasUnsavedChanges())
	assert.Zero(t, f.timers.armed())
	assert.Empty(t, s.Actions())
}

func TestFirstEditDirtiesSession(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	require.False(t, s.HasUnsavedChanges(), "loading is not a change")

	id := s.CreateNode("Ask Name", "node_1", workflow.VariantDefault)
	assert.Equal(t, "node_2", id)
	assert.True(t, s.HasUnsavedChanges())
	assert.Equal(t, autosave.Dirty, s.State())
}

func TestEditsWithinDebounceSaveOnce(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)

	a := s.CreateNode("Ask Name", "node_1", workflow.VariantDefault)
	s.CreateNode("Ask Email", a, workflow.VariantDefault)
	assert.Equal(t, 1, f.timers.armed())

	f.timers.elapse()
	assert.Equal(t, int32(1), f.store.saves.Load())
	assert.False(t, s.HasUnsavedChanges())

	w := f.stored(t)
	assert.Len(t, w.Nodes, 3)
	assert.Len(t, w.Edges, 2)
	assert.False(t, w.UpdatedAt.IsZero())
}

func TestLoadStoredWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	yes := true
	require.NoError(t, f.store.Store.SaveWorkflow(ctx, &workflow.Workflow{
		AgentID:       agentID,
		Name:          "Support",
		GlobalActions: []workflow.Ref{{ID: "g1", Name: "Escalate"}},
		Nodes: []workflow.StoredNode{
			{ID: "node_1", Data: workflow.StoredNodeData{Label: "Hello", RequireUserResponse: &yes}},
			{ID: "node_5", Data: workflow.StoredNodeData{Label: "Bye", Variant: workflow.VariantEnd}},
		},
		Edges: []workflow.StoredEdge{{ID: "node_1-node_5", Source: "node_1", Target: "node_5"}},
	}))

	s := f.open(t)
	l := s.Layout()
	require.Len(t, l.Nodes, 2)
	assert.True(t, l.HasEdge("node_1", "node_5"))
	assert.Equal(t, "Support", s.Metadata().Name)
	assert.Nil(t, s.Metadata().Nodes)
	assert.False(t, s.HasUnsavedChanges())

	assert.Equal(t, "node_6", s.CreateNode("", "node_5", workflow.VariantDefault))
	require.NoError(t, s.Save(ctx))

	w := f.stored(t)
	assert.Equal(t, "Support", w.Name)
	assert.Equal(t, []workflow.Ref{{ID: "g1", Name: "Escalate"}}, w.GlobalActions)
	assert.Len(t, w.Nodes, 3)
}

func TestReadOnlySessionNeverSaves(t *testing.T) {
	f := newFixture(t)
	f.opts.CanSave = false
	s := f.open(t)

	s.CreateNode("Ask", "node_1", workflow.VariantDefault)
	f.timers.elapse()
	assert.Zero(t, f.store.saves.Load())
	assert.True(t, s.HasUnsavedChanges())

	err := s.Save(context.Background())
	assert.ErrorIs(t, err, workflow.ErrSaveNotAllowed)
	assert.Zero(t, f.store.saves.Load())

	s.SetCanSave(true)
	assert.True(t, s.CanSave())
	require.NoError(t, s.Save(context.Background()))
	assert.Equal(t, int32(1), f.store.saves.Load())
	assert.False(t, s.HasUnsavedChanges())
}

func TestFailedSaveNotifiesAndRetries(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	var notices []session.Notice
	f.opts.Notify = func(n session.Notice) {
		mu.Lock()
		notices = append(notices, n)
		mu.Unlock()
	}
	s := f.open(t)
	f.store.fail.Store(true)

	s.CreateNode("Ask", "node_1", workflow.VariantDefault)
	f.timers.elapse()

	n, ok := s.LastNotice()
	require.True(t, ok)
	assert.Equal(t, session.NoticeError, n.Level)
	assert.Contains(t, n.Message, "connection reset")
	assert.True(t, s.HasUnsavedChanges())
	assert.Equal(t, 1, f.timers.armed(), "retried on the next tick")

	f.store.fail.Store(false)
	f.timers.elapse()
	assert.Equal(t, int32(2), f.store.saves.Load())
	assert.False(t, s.HasUnsavedChanges())

	require.NoError(t, s.Save(context.Background()))
	n, _ = s.LastNotice()
	assert.Equal(t, session.NoticeInfo, n.Level)
	assert.Equal(t, "Workflow saved", n.Message)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notices, 2)
	assert.Equal(t, session.NoticeError, notices[0].Level)
}

func TestNoOpOperationsLeaveSessionClean(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)

	assert.False(t, s.DeleteNode("node_9"))
	label := "x"
	assert.False(t, s.UpdateNode("node_9", workflow.NodeUpdate{Label: &label}))
	_, ok := s.InsertNode("node_1", "node_9", "x", workflow.VariantDefault)
	assert.False(t, ok)
	_, ok = s.InsertBranch("node_1", "node_9", "Yes", "No")
	assert.False(t, ok)
	_, ok = s.CreateBranch("node_9", "Yes", "No")
	assert.False(t, ok)
	assert.False(t, s.ConnectTo("node_1", "node_1"))
	assert.False(t, s.SetJumpTarget("node_1", "node_1"))

	assert.False(t, s.HasUnsavedChanges())
	assert.Zero(t, f.timers.armed())
}

func TestOperations(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)

	ask := s.CreateNode("Ask", "node_1", workflow.VariantDefault)
	p, ok := s.CreateBranch(ask, "Yes", "No")
	require.True(t, ok)
	mid, ok := s.InsertNode("node_1", ask, "Greet", workflow.VariantDefault)
	require.True(t, ok)
	end := s.CreateNode("", p.Left, workflow.VariantEnd)
	j := s.CreateNode("", p.Right, workflow.VariantJump)
	require.True(t, s.SetJumpTarget(j, ask))
	require.True(t, s.ConnectTo(mid, end))

	l := s.Layout()
	assert.True(t, l.HasEdge("node_1", mid))
	assert.True(t, l.HasEdge(mid, ask))
	assert.True(t, l.HasEdge(j, ask))
	assert.True(t, l.HasEdge(mid, end))
	assert.Equal(t, ask, l.Node(j).Data.TargetNodeID)

	f.timers.elapse()
	assert.Equal(t, int32(1), f.store.saves.Load())
	w := f.stored(t)
	assert.Len(t, w.Nodes, len(l.Nodes))
	assert.Len(t, w.Edges, len(l.Edges))
}

func TestDrawer(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	ask := s.CreateNode("Ask", "node_1", workflow.VariantDefault)
	j := s.CreateNode("", ask, workflow.VariantJump)

	assert.False(t, s.OpenDrawer("node_9", ""))
	assert.False(t, s.Drawer().Open)

	require.True(t, s.OpenDrawer(j, ""))
	assert.Equal(t, session.Drawer{Open: true, NodeID: j, Variant: workflow.VariantJump}, s.Drawer())

	require.True(t, s.DeleteNode(ask))
	assert.False(t, s.Drawer().Open, "drawer closes with its node")

	require.True(t, s.OpenDrawer("node_1", workflow.VariantEnd))
	assert.Equal(t, workflow.VariantEnd, s.Drawer().Variant)
	s.CloseDrawer()
	assert.Equal(t, session.Drawer{}, s.Drawer())
}

func TestDrawerSurvivesUnrelatedDelete(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	a := s.CreateNode("A", "node_1", workflow.VariantDefault)
	b := s.CreateNode("B", "node_1", workflow.VariantDefault)

	require.True(t, s.OpenDrawer(a, ""))
	require.True(t, s.DeleteNode(b))
	assert.Equal(t, a, s.Drawer().NodeID)
}

func saveAction(t *testing.T, f *fixture, a workflow.Action) workflow.Action {
	t.Helper()
	a.ProjectID = projectID
	_, err := f.store.SaveAction(context.Background(), &a)
	require.NoError(t, err)
	return a
}

func TestRefreshActionsPrunesReferences(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	refund := saveAction(t, f, workflow.Action{ID: "a1", Name: "Refund", Active: true, CreatedAt: base})
	cancel := saveAction(t, f, workflow.Action{ID: "a2", Name: "Cancel", Active: true, CreatedAt: base.Add(time.Hour)})

	s := f.open(t)
	require.Len(t, s.Actions(), 2)
	ask := s.CreateNode("Ask", "node_1", workflow.VariantDefault)
	refs := []workflow.Ref{refund.Ref(), cancel.Ref(), {ID: "gone", Name: "Gone"}}
	require.True(t, s.UpdateNode(ask, workflow.NodeUpdate{Actions: &refs}))
	require.NoError(t, s.Save(context.Background()))

	refund.Name = "Full refund"
	saveAction(t, f, refund)
	cancel.Active = false
	saveAction(t, f, cancel)

	require.NoError(t, s.RefreshActions(context.Background()))
	assert.Equal(t, []workflow.Action{refund}, s.Actions())
	got := s.Layout().Node(ask).Data.Actions
	assert.Equal(t, []workflow.Ref{{ID: "a1", Name: "Full refund"}}, got)
	assert.True(t, s.HasUnsavedChanges())
}

func TestRefreshAfterSavePersistsPrunedReferences(t *testing.T) {
	f := newFixture(t)
	f.opts.RefreshActionsAfterSave = true
	old := saveAction(t, f, workflow.Action{ID: "a1", Name: "Old", Active: true})

	s := f.open(t)
	ask := s.CreateNode("Ask", "node_1", workflow.VariantDefault)
	refs := []workflow.Ref{old.Ref()}
	s.UpdateNode(ask, workflow.NodeUpdate{Actions: &refs})

	old.Active = false
	saveAction(t, f, old)

	require.NoError(t, s.Save(context.Background()))
	assert.Empty(t, s.Layout().Node(ask).Data.Actions)
	assert.Empty(t, s.Actions())
	assert.True(t, s.HasUnsavedChanges(), "pruned references are not stored yet")
	assert.Equal(t, 1, f.timers.armed())

	f.timers.elapse()
	assert.Equal(t, int32(2), f.store.saves.Load())
	assert.False(t, s.HasUnsavedChanges())
	assert.Zero(t, f.timers.armed())

	w := f.stored(t)
	found := false
	for _, n := range w.Nodes {
		if n.ID == ask {
			found = true
			assert.Empty(t, n.Data.Actions)
		}
	}
	assert.True(t, found)

	reopened := f.open(t)
	require.NotNil(t, reopened.Layout().Node(ask))
	assert.Empty(t, reopened.Layout().Node(ask).Data.Actions)
}

func TestRefreshAfterSaveWithoutChangesStaysClean(t *testing.T) {
	f := newFixture(t)
	f.opts.RefreshActionsAfterSave = true
	keep := saveAction(t, f, workflow.Action{ID: "a1", Name: "Keep", Active: true})

	s := f.open(t)
	ask := s.CreateNode("Ask", "node_1", workflow.VariantDefault)
	refs := []workflow.Ref{keep.Ref()}
	s.UpdateNode(ask, workflow.NodeUpdate{Actions: &refs})

	require.NoError(t, s.Save(context.Background()))
	assert.Equal(t, refs, s.Layout().Node(ask).Data.Actions)
	assert.False(t, s.HasUnsavedChanges())
	assert.Zero(t, f.timers.armed())
	assert.Equal(t, int32(1), f.store.saves.Load())
}

func TestOpenFailsWhenStoreIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := session.Open(context.Background(), redisstore.New(client, ""), session.Options{AgentID: agentID})
	assert.Error(t, err)
}
