package workflow

import "time"

// Variant is the kind of step a node represents.
// A node's variant is fixed at creation.
type Variant string

const (
	VariantDefault Variant = "default"
	VariantEnd     Variant = "end"
	VariantJump    Variant = "jump"
	VariantBranch  Variant = "branch"
)

// Valid reports whether v is one of the known variants.
func (v Variant) Valid() bool {
	switch v {
	case VariantDefault, VariantEnd, VariantJump, VariantBranch:
		return true
	}
	return false
}

// DefaultLabel is the label given to a new node when the caller passes none.
func (v Variant) DefaultLabel() string {
	switch v {
	case VariantEnd:
		return "End"
	case VariantJump:
		return "Jump"
	case VariantBranch:
		return "Branch"
	}
	return "New Step"
}

// RequiresUserResponse is the default for NodeData.RequireUserResponse.
func (v Variant) RequiresUserResponse() bool {
	return v == VariantDefault || v == VariantEnd
}

// Ref is a reference to an item owned elsewhere (an action, FAQ, objection,
// product or service). Only the id and display fields are carried.
type Ref struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// NodeData is the content of a step.
// TargetNodeID is only meaningful for jump nodes.
type NodeData struct {
	Label                string  `json:"label"`
	Variant              Variant `json:"variant"`
	Instructions         string  `json:"instructions"`
	InstructionsDetailed string  `json:"instructionsDetailed"`
	HasInstructions      bool    `json:"hasInstructions"`
	RequireUserResponse  bool    `json:"requireUserResponse"`
	TargetNodeID         string  `json:"targetNodeId,omitempty"`
	Actions              []Ref   `json:"actions"`
	FAQs                 []Ref   `json:"faqs"`
	Objections           []Ref   `json:"objections"`
	Products             []Ref   `json:"products"`
	Services             []Ref   `json:"services"`
}

// Node is a step in the workflow graph. X and Y are the top-left corner
// assigned by the last layout pass.
type Node struct {
	ID     string   `json:"id"`
	Label  string   `json:"label"`
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
	Data   NodeData `json:"data"`
}

// Variant returns the node's step kind.
func (n Node) Variant() Variant {
	return n.Data.Variant
}

// Point is a routed edge point.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge is a directed connection between two nodes.
// Points holds the route computed by the last layout pass.
type Edge struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	Points []Point `json:"points"`
}

// EdgeID is the synthetic identifier of the edge source -> target.
func EdgeID(source, target string) string {
	return source + "-" + target
}

// Layout is the snapshot of graph state read by the rest of the system.
// It is always replaced as a whole.
type Layout struct {
	Nodes  []Node  `json:"nodes"`
	Edges  []Edge  `json:"edges"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node returns the node with the given id, or nil. The result points into
// l.Nodes.
func (l Layout) Node(id string) *Node {
	for i := range l.Nodes {
		if l.Nodes[i].ID == id {
			return &l.Nodes[i]
		}
	}
	return nil
}

// HasEdge reports whether the edge source -> target exists.
func (l Layout) HasEdge(source, target string) bool {
	for _, e := range l.Edges {
		if e.Source == source && e.Target == target {
			return true
		}
	}
	return false
}

// NodeUpdate is a partial update of NodeData. Nil fields are left untouched.
// A jump node's target is changed through the jump-target operation only.
type NodeUpdate struct {
	Label               *string `json:"label,omitempty"`
	Instructions        *string `json:"instructions,omitempty"`
	RequireUserResponse *bool   `json:"requireUserResponse,omitempty"`
	Actions             *[]Ref  `json:"actions,omitempty"`
	FAQs                *[]Ref  `json:"faqs,omitempty"`
	Objections          *[]Ref  `json:"objections,omitempty"`
	Products            *[]Ref  `json:"products,omitempty"`
	Services            *[]Ref  `json:"services,omitempty"`
}

// Position is a stored node position.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StoredNodeData is the persisted form of NodeData. Pointer fields
// distinguish "absent" from the zero value so defaults can be applied.
type StoredNodeData struct {
	Label                string  `json:"label,omitempty"`
	Variant              Variant `json:"variant,omitempty"`
	Instructions         string  `json:"instructions,omitempty"`
	InstructionsDetailed string  `json:"instructionsDetailed,omitempty"`
	HasInstructions      bool    `json:"hasInstructions,omitempty"`
	RequireUserResponse  *bool   `json:"requireUserResponse,omitempty"`
	TargetNodeID         string  `json:"targetNodeId,omitempty"`
	Actions              []Ref   `json:"actions,omitempty"`
	FAQs                 []Ref   `json:"faqs,omitempty"`
	Objections           []Ref   `json:"objections,omitempty"`
	Products             []Ref   `json:"products,omitempty"`
	Services             []Ref   `json:"services,omitempty"`
}

// StoredNode is the persisted form of a node.
type StoredNode struct {
	ID       string         `json:"id"`
	Position Position       `json:"position"`
	Data     StoredNodeData `json:"data"`
}

// StoredEdge is the persisted form of an edge.
type StoredEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Workflow is the stored definition of an agent's workflow, keyed by AgentID.
type Workflow struct {
	AgentID          string       `json:"agentId"`
	Name             string       `json:"name"`
	Description      string       `json:"description"`
	Instructions     string       `json:"instructions"`
	GlobalActions    []Ref        `json:"globalActions"`
	GlobalFAQs       []Ref        `json:"globalFaqs"`
	GlobalObjections []Ref        `json:"globalObjections"`
	Nodes            []StoredNode `json:"nodes"`
	Edges            []StoredEdge `json:"edges"`
	PositionX        float64      `json:"positionX"`
	PositionY        float64      `json:"positionY"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Action is a reusable action definition owned by a project.
type Action struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Kind        string    `json:"kind,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Ref returns the display reference attached to nodes for this action.
func (a Action) Ref() Ref {
	return Ref{ID: a.ID, Name: a.Name, Description: a.Description}
}
