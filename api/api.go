// Package api exposes workflow editing sessions over HTTP.
package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/engine"
	"github.com/meikuraledutech/workflow/session"
)

type (
	// Server serves the workflow store and the open editing sessions.
	Server struct {
		store    workflow.Store
		registry *session.Registry
		gatherer prometheus.Gatherer
		logger   *zap.Logger
	}

	// SessionView is the HTTP representation of an editing session.
	SessionView struct {
		ID                string          `json:"id"`
		AgentID           string          `json:"agentId"`
		ProjectID         string          `json:"projectId"`
		State             string          `json:"state"`
		HasUnsavedChanges bool            `json:"hasUnsavedChanges"`
		IsSaving          bool            `json:"isSaving"`
		CanSave           bool            `json:"canSave"`
		Layout            workflow.Layout `json:"layout"`
		Drawer            session.Drawer  `json:"drawer"`
		Notice            *session.Notice `json:"notice,omitempty"`
	}

	// Result is returned by every graph operation. Applied is false when the
	// operation had no effect.
	Result struct {
		Applied bool               `json:"applied"`
		ID      string             `json:"id,omitempty"`
		Branch  *engine.BranchPair `json:"branch,omitempty"`
		Layout  workflow.Layout    `json:"layout"`
	}

	openRequest struct {
		AgentID   string `json:"agentId"`
		ProjectID string `json:"projectId"`
		CanSave   bool   `json:"canSave"`
	}

	createNodeRequest struct {
		Label    string           `json:"label"`
		ParentID string           `json:"parentId"`
		Variant  workflow.Variant `json:"variant"`
	}

	branchRequest struct {
		ParentID string `json:"parentId"`
		Left     string `json:"left"`
		Right    string `json:"right"`
	}

	insertNodeRequest struct {
		SourceID string           `json:"sourceId"`
		TargetID string           `json:"targetId"`
		Label    string           `json:"label"`
		Variant  workflow.Variant `json:"variant"`
	}

	insertBranchRequest struct {
		SourceID string `json:"sourceId"`
		TargetID string `json:"targetId"`
		Left     string `json:"left"`
		Right    string `json:"right"`
	}

	connectRequest struct {
		SourceID string `json:"sourceId"`
		TargetID string `json:"targetId"`
	}

	jumpTargetRequest struct {
		TargetID string `json:"targetId"`
	}

	permissionRequest struct {
		CanSave bool `json:"canSave"`
	}

	drawerRequest struct {
		NodeID  string           `json:"nodeId"`
		Variant workflow.Variant `json:"variant"`
	}
)

// New creates a Server. gatherer may be nil, in which case /metrics is not
// served.
func New(
	store workflow.Store, registry *session.Registry,
	gatherer prometheus.Gatherer, logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:    store,
		registry: registry,
		gatherer: gatherer,
		logger:   logger.With(zap.String("component", "api")),
	}
}

// App builds the fiber application with every route registered.
func (s *Server) App() *fiber.App {
	app := fiber.New()
	s.Register(app)
	return app
}

// Register mounts the routes on app.
func (s *Server) Register(app *fiber.App) {
	if s.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}),
		))
	}

	// ── Schema ────────────────────────────────────────────────────────
	app.Post("/schema", s.createSchema)
	app.Delete("/schema", s.dropSchema)

	// ── Stored workflows & actions ────────────────────────────────────
	app.Get("/workflows/:agent", s.getWorkflow)
	app.Delete("/workflows/:agent", s.deleteWorkflow)
	app.Post("/projects/:project/actions", s.saveAction)
	app.Get("/projects/:project/actions", s.listActions)
	app.Delete("/actions/:id", s.deleteAction)

	// ── Sessions ──────────────────────────────────────────────────────
	app.Post("/sessions", s.openSession)
	app.Get("/sessions/:id", s.getSession)
	app.Delete("/sessions/:id", s.closeSession)
	app.Put("/sessions/:id/permission", s.setPermission)
	app.Post("/sessions/:id/save", s.save)
	app.Get("/sessions/:id/actions", s.sessionActions)
	app.Post("/sessions/:id/actions/refresh", s.refreshActions)
	app.Put("/sessions/:id/drawer", s.openDrawer)
	app.Delete("/sessions/:id/drawer", s.closeDrawer)

	// ── Graph operations ──────────────────────────────────────────────
	app.Post("/sessions/:id/nodes", s.createNode)
	app.Patch("/sessions/:id/nodes/:node", s.updateNode)
	app.Delete("/sessions/:id/nodes/:node", s.deleteNode)
	app.Put("/sessions/:id/nodes/:node/jump-target", s.setJumpTarget)
	app.Post("/sessions/:id/branches", s.createBranch)
	app.Post("/sessions/:id/insert-node", s.insertNode)
	app.Post("/sessions/:id/insert-branch", s.insertBranch)
	app.Post("/sessions/:id/edges", s.connectTo)
}

func (s *Server) session(c fiber.Ctx) (*session.Session, error) {
	sess, ok := s.registry.Get(c.Params("id"))
	if !ok {
		return nil, c.Status(404).JSON(fiber.Map{"error": "session not found"})
	}
	return sess, nil
}

func view(id string, sess *session.Session) SessionView {
	v := SessionView{
		ID:                id,
		AgentID:           sess.AgentID(),
		ProjectID:         sess.ProjectID(),
		State:             sess.State().String(),
		HasUnsavedChanges: sess.HasUnsavedChanges(),
		IsSaving:          sess.IsSaving(),
		CanSave:           sess.CanSave(),
		Layout:            sess.Layout(),
		Drawer:            sess.Drawer(),
	}
	if n, ok := sess.LastNotice(); ok {
		v.Notice = &n
	}
	return v
}

func saveStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrSaveNotAllowed):
		return 403
	case errors.Is(err, workflow.ErrSaveInProgress):
		return 409
	case errors.Is(err, workflow.ErrSessionClosed):
		return 410
	}
	return 500
}
