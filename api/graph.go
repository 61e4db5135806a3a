package api

import (
	"github.com/gofiber/fiber/v3"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/engine"
	"github.com/meikuraledutech/workflow/session"
)

// Graph operations never fail on bad references: they report Applied
// false and return the unchanged layout.

func result(sess *session.Session, ok bool) Result {
	return Result{Applied: ok, Layout: sess.Layout()}
}

func branchResult(sess *session.Session, p engine.BranchPair, ok bool) Result {
	res := result(sess, ok)
	if ok {
		res.Branch = &p
	}
	return res
}

func (s *Server) createNode(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	var req createNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	id := sess.CreateNode(req.Label, req.ParentID, req.Variant)
	res := result(sess, true)
	res.ID = id
	return c.Status(201).JSON(res)
}

func (s *Server) updateNode(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	var upd workflow.NodeUpdate
	if err := c.Bind().JSON(&upd); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	return c.JSON(result(sess, sess.UpdateNode(c.Params("node"), upd)))
}

func (s *Server) deleteNode(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	return c.JSON(result(sess, sess.DeleteNode(c.Params("node"))))
}

func (s *Server) setJumpTarget(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	var req jumpTargetRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	ok := sess.SetJumpTarget(c.Params("node"), req.TargetID)
	return c.JSON(result(sess, ok))
}

func (s *Server) createBranch(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	var req branchRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	p, ok := sess.CreateBranch(req.ParentID, req.Left, req.Right)
	return c.JSON(branchResult(sess, p, ok))
}

func (s *Server) insertNode(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	var req insertNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	id, ok := sess.InsertNode(req.SourceID, req.TargetID, req.Label, req.Variant)
	res := result(sess, ok)
	res.ID = id
	return c.JSON(res)
}

func (s *Server) insertBranch(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	var req insertBranchRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	p, ok := sess.InsertBranch(req.SourceID, req.TargetID, req.Left, req.Right)
	return c.JSON(branchResult(sess, p, ok))
}

func (s *Server) connectTo(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	var req connectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	return c.JSON(result(sess, sess.ConnectTo(req.SourceID, req.TargetID)))
}
