package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/workflow"
)

func sample() workflow.Layout {
	return workflow.Layout{
		Nodes: []workflow.Node{
			{ID: "node_1", Label: "Start"},
			{ID: "node_2", Label: "Ask", Data: workflow.NodeData{Variant: workflow.VariantJump}},
		},
		Edges: []workflow.Edge{{ID: "node_1-node_2", Source: "node_1", Target: "node_2"}},
	}
}

func TestLayoutLookupsOnReturnedValue(t *testing.T) {
	require.NotNil(t, sample().Node("node_2"))
	assert.Equal(t, "Ask", sample().Node("node_2").Label)
	assert.Nil(t, sample().Node("node_9"))

	assert.True(t, sample().HasEdge("node_1", "node_2"))
	assert.False(t, sample().HasEdge("node_2", "node_1"))
}

func TestLayoutNodePointsIntoNodes(t *testing.T) {
	l := sample()
	l.Node("node_1").Label = "Begin"
	assert.Equal(t, "Begin", l.Nodes[0].Label)
	assert.Equal(t, workflow.VariantJump, l.Nodes[1].Variant())
}

func TestVariantDefaults(t *testing.T) {
	tests := []struct {
		v        workflow.Variant
		valid    bool
		label    string
		response bool
	}{
		{workflow.VariantDefault, true, "New Step", true},
		{workflow.VariantEnd, true, "End", true},
		{workflow.VariantJump, true, "Jump", false},
		{workflow.VariantBranch, true, "Branch", false},
		{"other", false, "New Step", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, tt.v.Valid(), tt.v)
		assert.Equal(t, tt.label, tt.v.DefaultLabel(), tt.v)
		assert.Equal(t, tt.response, tt.v.RequiresUserResponse(), tt.v)
	}
}

func TestActionRef(t *testing.T) {
	a := workflow.Action{ID: "a1", Name: "Refund", Description: "Full refund", Active: true}
	assert.Equal(t, workflow.Ref{ID: "a1", Name: "Refund", Description: "Full refund"}, a.Ref())
	assert.Equal(t, "node_1-node_2", workflow.EdgeID("node_1", "node_2"))
}
