package layout

import (
	"math"

	"github.com/meikuraledutech/workflow"
)

// Node widths per variant. Branch arms are drawn narrower than content steps.
const (
	ContentWidth = 280
	BranchWidth  = 160
)

// Height estimation constants.
const (
	BranchHeight = 44

	EndBaseHeight = 60
	EndMaxHeight  = 120

	JumpBaseHeight = 60
	JumpMaxHeight  = 160

	DefaultBaseHeight = 80
	DefaultMaxHeight  = 360

	instructionsTall  = 40
	instructionsShort = 20
	endInstructions   = 30
	endNoInstructions = 15
	jumpTarget        = 20
	attachmentsHeader = 15
	actionRowHeight   = 28
	extrasHeight      = 20

	// ActionsPerRow is how many action chips fit on one row of a step.
	ActionsPerRow = 3
)

// Width returns the fixed render width of a node of variant v.
func Width(v workflow.Variant) float64 {
	if v == workflow.VariantBranch {
		return BranchWidth
	}
	return ContentWidth
}

// Height estimates the render height of n from its variant and content.
// It only reads n.Data and has no side effects.
func Height(n *workflow.Node) float64 {
	d := &n.Data
	switch d.Variant {
	case workflow.VariantBranch:
		return BranchHeight

	case workflow.VariantEnd:
		h := EndBaseHeight
		if d.HasInstructions {
			h += endInstructions
		} else {
			h += endNoInstructions
		}
		return clamp(h, EndBaseHeight, EndMaxHeight)

	case workflow.VariantJump:
		h := JumpBaseHeight + instructionsHeight(d)
		if d.TargetNodeID != "" {
			h += jumpTarget
		}
		return clamp(h, JumpBaseHeight, JumpMaxHeight)
	}

	h := DefaultBaseHeight + instructionsHeight(d)
	if len(d.Actions) > 0 || len(d.FAQs) > 0 || len(d.Objections) > 0 {
		h += attachmentsHeader
	}
	h += actionRows(len(d.Actions)) * actionRowHeight
	if len(d.FAQs) > 0 || len(d.Objections) > 0 {
		h += extrasHeight
	}
	return clamp(h, DefaultBaseHeight, DefaultMaxHeight)
}

func instructionsHeight(d *workflow.NodeData) int {
	if d.HasInstructions {
		return instructionsTall
	}
	return instructionsShort
}

func actionRows(n int) int {
	return int(math.Ceil(float64(n) / ActionsPerRow))
}

func clamp(h, lo, hi int) float64 {
	return float64(max(lo, min(h, hi)))
}
