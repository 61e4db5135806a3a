package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/redisstore"
)

func newStore(t *testing.T) (*miniredis.Miniredis, *redisstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redisstore.New(client, "")
}

func TestGetWorkflowMissing(t *testing.T) {
	_, s := newStore(t)

	w, err := s.GetWorkflow(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestSaveAndGetWorkflow(t *testing.T) {
	_, s := newStore(t)
	ctx := context.Background()

	yes := true
	in := &workflow.Workflow{
		AgentID:      "agent-1",
		Name:         "Support",
		Instructions: "Be nice",
		GlobalFAQs:   []workflow.Ref{{ID: "f1", Name: "Hours"}},
		Nodes: []workflow.StoredNode{
			{
				ID:       "node_1",
				Position: workflow.Position{X: 20, Y: 20},
				Data: workflow.StoredNodeData{
					Label:               "Start",
					Variant:             workflow.VariantDefault,
					RequireUserResponse: &yes,
				},
			},
			{ID: "node_2", Data: workflow.StoredNodeData{Variant: workflow.VariantEnd}},
		},
		Edges: []workflow.StoredEdge{
			{ID: "node_1-node_2", Source: "node_1", Target: "node_2"},
		},
		PositionX: 4,
	}
	require.NoError(t, s.SaveWorkflow(ctx, in))
	assert.False(t, in.UpdatedAt.IsZero())

	out, err := s.GetWorkflow(ctx, "agent-1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "Support", out.Name)
	assert.Equal(t, in.GlobalFAQs, out.GlobalFAQs)
	assert.Equal(t, in.Nodes, out.Nodes)
	assert.Equal(t, in.Edges, out.Edges)
	assert.Equal(t, 4.0, out.PositionX)
	assert.True(t, in.UpdatedAt.Equal(out.UpdatedAt))

	in.Name = "Sales"
	in.Edges = nil
	require.NoError(t, s.SaveWorkflow(ctx, in))
	out, err = s.GetWorkflow(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "Sales", out.Name)
	assert.Empty(t, out.Edges)
}

func TestDeleteWorkflow(t *testing.T) {
	_, s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWorkflow(ctx, &workflow.Workflow{AgentID: "a"}))
	require.NoError(t, s.DeleteWorkflow(ctx, "a"))
	require.NoError(t, s.DeleteWorkflow(ctx, "a"))

	w, err := s.GetWorkflow(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestActions(t *testing.T) {
	_, s := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	id, err := s.SaveAction(ctx, &workflow.Action{
		ProjectID: "p1", Name: "Refund", Active: true, CreatedAt: base.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = s.SaveAction(ctx, &workflow.Action{
		ID: "a0", ProjectID: "p1", Name: "Greet", Active: true, CreatedAt: base,
	})
	require.NoError(t, err)
	_, err = s.SaveAction(ctx, &workflow.Action{
		ID: "off", ProjectID: "p1", Name: "Old", Active: false, CreatedAt: base,
	})
	require.NoError(t, err)
	_, err = s.SaveAction(ctx, &workflow.Action{
		ID: "other", ProjectID: "p2", Name: "Elsewhere", Active: true,
	})
	require.NoError(t, err)

	list, err := s.ListActions(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Greet", list[0].Name)
	assert.Equal(t, "Refund", list[1].Name)

	list, err = s.ListActions(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestSaveActionMovesProject(t *testing.T) {
	_, s := newStore(t)
	ctx := context.Background()

	a := &workflow.Action{ID: "a1", ProjectID: "p1", Name: "Refund", Active: true}
	_, err := s.SaveAction(ctx, a)
	require.NoError(t, err)

	a.ProjectID = "p2"
	_, err = s.SaveAction(ctx, a)
	require.NoError(t, err)

	list, err := s.ListActions(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = s.ListActions(ctx, "p2")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeleteAction(t *testing.T) {
	_, s := newStore(t)
	ctx := context.Background()

	_, err := s.SaveAction(ctx, &workflow.Action{ID: "a1", ProjectID: "p1", Active: true})
	require.NoError(t, err)
	require.NoError(t, s.DeleteAction(ctx, "a1"))
	assert.ErrorIs(t, s.DeleteAction(ctx, "a1"), workflow.ErrActionNotFound)

	list, err := s.ListActions(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSchema(t *testing.T) {
	mr, s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSchema(ctx))
	require.NoError(t, s.SaveWorkflow(ctx, &workflow.Workflow{AgentID: "a"}))
	require.NoError(t, mr.Set("unrelated", "x"))

	require.NoError(t, s.DropSchema(ctx))
	w, err := s.GetWorkflow(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.True(t, mr.Exists("unrelated"))
}

func TestGetWorkflowRedisDown(t *testing.T) {
	mr, s := newStore(t)
	mr.Close()

	_, err := s.GetWorkflow(context.Background(), "a")
	assert.Error(t, err)
}
