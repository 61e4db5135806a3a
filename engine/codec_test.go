package engine_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/engine"
)

func TestDecodeDefaults(t *testing.T) {
	w := &workflow.Workflow{
		Nodes: []workflow.StoredNode{
			{ID: "node_1"},
			{ID: "node_2", Data: workflow.StoredNodeData{Variant: workflow.VariantJump}},
			{ID: "node_3", Data: workflow.StoredNodeData{Variant: "mystery"}},
			{
				ID:       "node_4",
				Position: workflow.Position{X: 10, Y: 20},
				Data: workflow.StoredNodeData{
					Label:        "Greet",
					Variant:      workflow.VariantDefault,
					Instructions: "<p>Hi <i>there</i></p>",
					TargetNodeID: "node_1",
				},
			},
		},
		Edges: []workflow.StoredEdge{{ID: "stale", Source: "node_1", Target: "node_4"}},
	}

	nodes, edges := engine.Decode(w)
	require.Len(t, nodes, 4)

	assert.Equal(t, "New Step", nodes[0].Label)
	assert.Equal(t, workflow.VariantDefault, nodes[0].Data.Variant)
	assert.True(t, nodes[0].Data.RequireUserResponse)
	assert.NotNil(t, nodes[0].Data.Actions)
	assert.NotNil(t, nodes[0].Data.Services)

	assert.Equal(t, "Jump", nodes[1].Label)
	assert.False(t, nodes[1].Data.RequireUserResponse)

	assert.Equal(t, workflow.VariantDefault, nodes[2].Data.Variant)

	greet := nodes[3]
	assert.Equal(t, "Greet", greet.Data.Label)
	assert.Equal(t, 10.0, greet.X)
	assert.Equal(t, 20.0, greet.Y)
	assert.Equal(t, "Hi there", greet.Data.InstructionsDetailed)
	assert.True(t, greet.Data.HasInstructions)
	assert.Empty(t, greet.Data.TargetNodeID, "only jump nodes keep a target")

	require.Len(t, edges, 1)
	assert.Equal(t, "node_1-node_4", edges[0].ID)
	assert.NotNil(t, edges[0].Points)
}

func TestDecodeExplicitResponseFlag(t *testing.T) {
	no := false
	nodes, _ := engine.Decode(&workflow.Workflow{
		Nodes: []workflow.StoredNode{{
			ID:   "node_1",
			Data: workflow.StoredNodeData{RequireUserResponse: &no},
		}},
	})
	assert.False(t, nodes[0].Data.RequireUserResponse)
}

func TestDecodeNil(t *testing.T) {
	nodes, edges := engine.Decode(nil)
	assert.Nil(t, nodes)
	assert.Nil(t, edges)
}

func TestEncodeKeepsMetadata(t *testing.T) {
	g := newGraph(t)
	ask, _ := g.CreateNode("Ask", "node_1", workflow.VariantDefault)
	g.CreateBranch(ask, "Yes", "No")

	meta := &workflow.Workflow{
		AgentID:       "agent-1",
		Name:          "Support",
		Description:   "Support flow",
		GlobalActions: []workflow.Ref{{ID: "g1", Name: "Escalate"}},
		PositionX:     3,
	}
	w := engine.Encode(g.Layout(), meta)

	assert.Equal(t, "agent-1", w.AgentID)
	assert.Equal(t, "Support", w.Name)
	assert.Equal(t, meta.GlobalActions, w.GlobalActions)
	assert.Equal(t, 3.0, w.PositionX)
	assert.Len(t, w.Nodes, 4)
	assert.Len(t, w.Edges, 3)
	assert.Nil(t, meta.Nodes, "meta is not modified")

	for _, n := range w.Nodes {
		require.NotNil(t, n.Data.RequireUserResponse)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	g := newGraph(t)
	ask, _ := g.CreateNode("Ask", "node_1", workflow.VariantDefault)
	p, _, _ := g.CreateBranch(ask, "Yes", "No")
	j, _ := g.CreateNode("Back", p.Right, workflow.VariantJump)
	g.SetJumpTarget(j, ask)
	instructions := "<p>Ask for the <b>order</b> number</p>"
	no := false
	g.UpdateNode(ask, workflow.NodeUpdate{
		Instructions:        &instructions,
		RequireUserResponse: &no,
		FAQs:                &[]workflow.Ref{{ID: "f1", Name: "Hours"}},
	})
	before := g.Layout()

	raw, err := json.Marshal(engine.Encode(before, nil))
	require.NoError(t, err)
	var stored workflow.Workflow
	require.NoError(t, json.Unmarshal(raw, &stored))

	loaded := newGraph(t)
	after := loaded.Seed(engine.Decode(&stored))

	require.Len(t, after.Nodes, len(before.Nodes))
	for i := range before.Nodes {
		assert.Equal(t, before.Nodes[i].ID, after.Nodes[i].ID)
		assert.Equal(t, before.Nodes[i].Data, after.Nodes[i].Data)
		assert.Equal(t, before.Nodes[i].X, after.Nodes[i].X)
		assert.Equal(t, before.Nodes[i].Y, after.Nodes[i].Y)
	}
	require.Len(t, after.Edges, len(before.Edges))
	for i := range before.Edges {
		assert.Equal(t, before.Edges[i].ID, after.Edges[i].ID)
	}
	assert.Equal(t, g.NextID(), loaded.NextID())
}
