package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/postgres"
)

func newStore(t *testing.T) *postgres.PGStore {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL is not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := postgres.New(pool)
	require.NoError(t, s.DropSchema(ctx))
	require.NoError(t, s.CreateSchema(ctx))
	t.Cleanup(func() { _ = s.DropSchema(context.Background()) })
	return s
}

func TestWorkflowRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	w, err := s.GetWorkflow(ctx, "agent-1")
	require.NoError(t, err)
	assert.Nil(t, w)

	in := &workflow.Workflow{
		AgentID: "agent-1",
		Name:    "Support",
		Nodes: []workflow.StoredNode{
			{ID: "node_1", Data: workflow.StoredNodeData{Label: "Start"}},
			{ID: "node_2", Data: workflow.StoredNodeData{Variant: workflow.VariantEnd}},
		},
		Edges: []workflow.StoredEdge{
			{ID: "node_1-node_2", Source: "node_1", Target: "node_2"},
		},
	}
	require.NoError(t, s.SaveWorkflow(ctx, in))

	out, err := s.GetWorkflow(ctx, "agent-1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "Support", out.Name)
	assert.Equal(t, in.Nodes, out.Nodes)
	assert.Equal(t, in.Edges, out.Edges)
	assert.Empty(t, out.GlobalActions)

	in.Name = "Sales"
	in.Edges = nil
	require.NoError(t, s.SaveWorkflow(ctx, in))
	out, err = s.GetWorkflow(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "Sales", out.Name)
	assert.Empty(t, out.Edges)

	require.NoError(t, s.DeleteWorkflow(ctx, "agent-1"))
	out, err = s.GetWorkflow(ctx, "agent-1")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestActions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.SaveAction(ctx, &workflow.Action{ProjectID: "p1", Name: "Refund", Active: true})
	require.NoError(t, err)
	_, err = s.SaveAction(ctx, &workflow.Action{ProjectID: "p1", Name: "Old", Active: false})
	require.NoError(t, err)

	list, err := s.ListActions(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	require.NoError(t, s.DeleteAction(ctx, id))
	assert.ErrorIs(t, s.DeleteAction(ctx, id), workflow.ErrActionNotFound)
}
