package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/meikuraledutech/workflow"
)

func (s *Server) createSchema(c fiber.Ctx) error {
	if err := s.store.CreateSchema(c.Context()); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "schema created"})
}

func (s *Server) dropSchema(c fiber.Ctx) error {
	if err := s.store.DropSchema(c.Context()); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "schema dropped"})
}

func (s *Server) getWorkflow(c fiber.Ctx) error {
	w, err := s.store.GetWorkflow(c.Context(), c.Params("agent"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if w == nil {
		return c.Status(404).JSON(fiber.Map{"error": "workflow not found"})
	}
	return c.JSON(w)
}

func (s *Server) deleteWorkflow(c fiber.Ctx) error {
	if err := s.store.DeleteWorkflow(c.Context(), c.Params("agent")); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(204)
}

func (s *Server) saveAction(c fiber.Ctx) error {
	var a workflow.Action
	if err := c.Bind().JSON(&a); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	if a.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}
	a.ProjectID = c.Params("project")
	id, err := s.store.SaveAction(c.Context(), &a)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(201).JSON(fiber.Map{"id": id})
}

func (s *Server) listActions(c fiber.Ctx) error {
	actions, err := s.store.ListActions(c.Context(), c.Params("project"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(actions)
}

func (s *Server) deleteAction(c fiber.Ctx) error {
	err := s.store.DeleteAction(c.Context(), c.Params("id"))
	if errors.Is(err, workflow.ErrActionNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "action not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(204)
}

func (s *Server) openSession(c fiber.Ctx) error {
	var req openRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.AgentID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "agentId is required"})
	}
	id, sess, err := s.registry.Open(
		c.Context(), req.AgentID, req.ProjectID, req.CanSave,
	)
	if err != nil {
		s.logger.Error("Failed to open session",
			zap.String("agent_id", req.AgentID), zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(201).JSON(view(id, sess))
}

func (s *Server) getSession(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	return c.JSON(view(c.Params("id"), sess))
}

func (s *Server) closeSession(c fiber.Ctx) error {
	if !s.registry.Close(c.Params("id")) {
		return c.Status(404).JSON(fiber.Map{"error": "session not found"})
	}
	return c.SendStatus(204)
}

func (s *Server) setPermission(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	var req permissionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	sess.SetCanSave(req.CanSave)
	return c.JSON(view(c.Params("id"), sess))
}

func (s *Server) save(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	if err := sess.Save(c.Context()); err != nil {
		return c.Status(saveStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(view(c.Params("id"), sess))
}

func (s *Server) sessionActions(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	return c.JSON(sess.Actions())
}

func (s *Server) refreshActions(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	if err := sess.RefreshActions(c.Context()); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(sess.Actions())
}

func (s *Server) openDrawer(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	var req drawerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	if !sess.OpenDrawer(req.NodeID, req.Variant) {
		return c.Status(404).JSON(fiber.Map{"error": "node not found"})
	}
	return c.JSON(sess.Drawer())
}

func (s *Server) closeDrawer(c fiber.Ctx) error {
	sess, err := s.session(c)
	if sess == nil {
		return err
	}
	sess.CloseDrawer()
	return c.JSON(sess.Drawer())
}
