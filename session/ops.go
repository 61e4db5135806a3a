package session

import (
	"go.uber.org/zap"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/autosave"
	"github.com/meikuraledutech/workflow/engine"
)

// Operation names used in logs and metrics.
const (
	OpCreateNode    = "create_node"
	OpDeleteNode    = "delete_node"
	OpUpdateNode    = "update_node"
	OpCreateBranch  = "create_branch"
	OpInsertNode    = "insert_node"
	OpInsertBranch  = "insert_branch"
	OpConnectTo     = "connect_to"
	OpSetJumpTarget = "set_jump_target"
)

// CreateNode adds a node below parentID, or a free-standing node when
// parentID is empty or unknown.
func (s *Session) CreateNode(
	label, parentID string, v workflow.Variant,
) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, l := s.graph.CreateNode(label, parentID, v)
	s.applied(OpCreateNode, true, len(l.Nodes))
	return id
}

// DeleteNode removes id and everything reachable from it.
func (s *Session) DeleteNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.graph.DeleteNode(id)
	s.applied(OpDeleteNode, ok, len(l.Nodes))
	if ok && s.drawer.Open {
		if _, still := s.findNode(l, s.drawer.NodeID); !still {
			s.drawer = Drawer{}
		}
	}
	return ok
}

// UpdateNode merges upd into the node's data.
func (s *Session) UpdateNode(id string, upd workflow.NodeUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.graph.UpdateNode(id, upd)
	s.applied(OpUpdateNode, ok, len(l.Nodes))
	return ok
}

// CreateBranch attaches two arms to parentID.
func (s *Session) CreateBranch(
	parentID, left, right string,
) (engine.BranchPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, l, ok := s.graph.CreateBranch(parentID, left, right)
	s.applied(OpCreateBranch, ok, len(l.Nodes))
	return p, ok
}

// InsertNode splices a node into the edge sourceID -> targetID.
func (s *Session) InsertNode(
	sourceID, targetID, label string, v workflow.Variant,
) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, l, ok := s.graph.InsertNode(sourceID, targetID, label, v)
	s.applied(OpInsertNode, ok, len(l.Nodes))
	return id, ok
}

// InsertBranch puts a decision into the edge sourceID -> targetID.
func (s *Session) InsertBranch(
	sourceID, targetID, left, right string,
) (engine.BranchPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, l, ok := s.graph.InsertBranch(sourceID, targetID, left, right)
	s.applied(OpInsertBranch, ok, len(l.Nodes))
	return p, ok
}

// ConnectTo adds the edge sourceID -> targetID.
func (s *Session) ConnectTo(sourceID, targetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.graph.ConnectTo(sourceID, targetID)
	s.applied(OpConnectTo, ok, 0)
	return ok
}

// SetJumpTarget points jumpID at targetID, or clears it when targetID is
// empty.
func (s *Session) SetJumpTarget(jumpID, targetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.graph.SetJumpTarget(jumpID, targetID)
	s.applied(OpSetJumpTarget, ok, 0)
	return ok
}

// OpenDrawer selects nodeID for editing. An empty variant is taken from the
// node.
func (s *Session) OpenDrawer(nodeID string, v workflow.Variant) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.findNode(s.graph.Layout(), nodeID)
	if !ok {
		return false
	}
	if v == "" {
		v = n.Data.Variant
	}
	s.drawer = Drawer{Open: true, NodeID: nodeID, Variant: v}
	return true
}

// CloseDrawer clears the selection.
func (s *Session) CloseDrawer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawer = Drawer{}
}

// Drawer returns the selection state.
func (s *Session) Drawer() Drawer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawer
}

// applied records an operation outcome and, when it changed the graph,
// marks the session dirty. Callers hold s.mu. laidOut is the node count of
// a recomputed layout, or 0 when the layout was not recomputed.
func (s *Session) applied(op string, ok bool, laidOut int) {
	s.opts.Metrics.RecordMutation(op, ok)
	if !ok {
		s.logger.Debug("Operation had no effect", zap.String("op", op))
		return
	}
	if laidOut > 0 {
		s.opts.Metrics.RecordLayout(laidOut)
	}
	s.ctrl.Replaced(autosave.OriginEdit)
}

func (s *Session) findNode(
	l workflow.Layout, id string,
) (workflow.Node, bool) {
	if n := l.Node(id); n != nil {
		return *n, true
	}
	return workflow.Node{}, false
}
