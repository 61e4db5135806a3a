package engine

import (
	"github.com/meikuraledutech/workflow"
)

// Decode converts a stored workflow into graph nodes and edges, applying
// the defaults for missing fields. Edges are returned as stored; Seed drops
// the ones that reference unknown nodes.
func Decode(w *workflow.Workflow) ([]workflow.Node, []workflow.Edge) {
	if w == nil {
		return nil, nil
	}
	nodes := make([]workflow.Node, 0, len(w.Nodes))
	for _, sn := range w.Nodes {
		nodes = append(nodes, decodeNode(sn))
	}
	edges := make([]workflow.Edge, 0, len(w.Edges))
	for _, se := range w.Edges {
		edges = append(edges, workflow.Edge{
			ID:     workflow.EdgeID(se.Source, se.Target),
			Source: se.Source,
			Target: se.Target,
			Points: []workflow.Point{},
		})
	}
	return nodes, edges
}

func decodeNode(sn workflow.StoredNode) workflow.Node {
	sd := sn.Data
	v := sd.Variant
	if !v.Valid() {
		v = workflow.VariantDefault
	}
	label := sd.Label
	if label == "" {
		label = v.DefaultLabel()
	}
	requireResponse := v.RequiresUserResponse()
	if sd.RequireUserResponse != nil {
		requireResponse = *sd.RequireUserResponse
	}
	d := workflow.NodeData{
		Label:               label,
		Variant:             v,
		Instructions:        sd.Instructions,
		RequireUserResponse: requireResponse,
		Actions:             refs(sd.Actions),
		FAQs:                refs(sd.FAQs),
		Objections:          refs(sd.Objections),
		Products:            refs(sd.Products),
		Services:            refs(sd.Services),
	}
	if v == workflow.VariantJump {
		d.TargetNodeID = sd.TargetNodeID
	}
	deriveContent(&d)
	return workflow.Node{
		ID:    sn.ID,
		Label: label,
		X:     sn.Position.X,
		Y:     sn.Position.Y,
		Data:  d,
	}
}

// Encode serializes a layout into the stored shape. Metadata fields are
// copied unchanged from meta.
func Encode(l workflow.Layout, meta *workflow.Workflow) *workflow.Workflow {
	w := &workflow.Workflow{}
	if meta != nil {
		*w = *meta
	}
	w.Nodes = make([]workflow.StoredNode, 0, len(l.Nodes))
	for _, n := range l.Nodes {
		d := n.Data
		requireResponse := d.RequireUserResponse
		w.Nodes = append(w.Nodes, workflow.StoredNode{
			ID:       n.ID,
			Position: workflow.Position{X: n.X, Y: n.Y},
			Data: workflow.StoredNodeData{
				Label:                d.Label,
				Variant:              d.Variant,
				Instructions:         d.Instructions,
				InstructionsDetailed: d.InstructionsDetailed,
				HasInstructions:      d.HasInstructions,
				RequireUserResponse:  &requireResponse,
				TargetNodeID:         d.TargetNodeID,
				Actions:              refs(d.Actions),
				FAQs:                 refs(d.FAQs),
				Objections:           refs(d.Objections),
				Products:             refs(d.Products),
				Services:             refs(d.Services),
			},
		})
	}
	w.Edges = make([]workflow.StoredEdge, 0, len(l.Edges))
	for _, e := range l.Edges {
		w.Edges = append(w.Edges, workflow.StoredEdge{
			ID:     workflow.EdgeID(e.Source, e.Target),
			Source: e.Source,
			Target: e.Target,
		})
	}
	return w
}
