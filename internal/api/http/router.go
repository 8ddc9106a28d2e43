package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Staff          *handlers.StaffHandler
	Tickets        *handlers.TicketsHandler
	Approvals      *handlers.ApprovalsHandler
	Sla            *handlers.SlaHandler
	AuthMiddleware *auth.AuthMiddleware
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/staff/login", cfg.Staff.Login)

	var (
		admin       = auth.RequireStaffRole(domain.StaffRoleAdmin)
		manager     = auth.RequireStaffRole(domain.StaffRoleManager)
		supervisors = auth.RequireStaffRole(domain.StaffRoleManager, domain.StaffRoleAdmin)
		anyStaff    = auth.RequireStaffRole()
	)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, anyStaff)
	api.Get("/me", cfg.Staff.Me)
	api.Post("/me/password", cfg.Staff.ChangePassword)

	api.Get("/departments", cfg.Staff.ListDepartments)
	api.Post("/departments", admin, cfg.Staff.CreateDepartment)
	api.Get("/staff", supervisors, cfg.Staff.ListStaff)
	api.Post("/staff", admin, cfg.Staff.CreateStaff)
	api.Patch("/staff/:id/active", admin, cfg.Staff.SetStaffActive)
	api.Get("/staff/:id/workload", supervisors, cfg.Staff.Workload)

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.Create)
	tickets.Get("/", cfg.Tickets.List)
	tickets.Get("/number/:number", cfg.Tickets.GetByNumber)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Get("/:id/sla", cfg.Tickets.Tracking)
	tickets.Patch("/:id/status", cfg.Tickets.ChangeStatus)
	tickets.Patch("/:id/priority", admin, cfg.Tickets.UpdatePriority)
	tickets.Post("/:id/assign", supervisors, cfg.Tickets.Assign)
	tickets.Post("/:id/auto-assign", supervisors, cfg.Tickets.AutoAssign)
	tickets.Post("/:id/escalate", cfg.Tickets.Escalate)
	tickets.Post("/:id/close", cfg.Tickets.Close)
	tickets.Post("/:id/rating", cfg.Tickets.Rate)
	tickets.Get("/:id/typing", cfg.Tickets.Typing)
	tickets.Post("/:id/typing", cfg.Tickets.MarkTyping)
	tickets.Delete("/:id/typing", cfg.Tickets.StopTyping)

	tickets.Post("/:id/resolve", cfg.Approvals.Resolve)
	tickets.Post("/:id/approvals/manager", manager, cfg.Approvals.ApproveManager)
	tickets.Post("/:id/approvals/admin", admin, cfg.Approvals.ApproveAdmin)
	tickets.Post("/:id/approvals/reject", supervisors, cfg.Approvals.Reject)

	sla := api.Group("/sla")
	sla.Get("/policies", cfg.Sla.ListPolicies)
	sla.Post("/policies", admin, cfg.Sla.CreatePolicy)
	sla.Delete("/policies/:id", admin, cfg.Sla.DeactivatePolicy)
	sla.Post("/scan", supervisors, cfg.Sla.Scan)
	sla.Get("/at-risk", cfg.Sla.AtRisk)
	sla.Get("/violated", cfg.Sla.Violated)
}
