package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
)

// ApprovalsHandler drives the two-stage resolution sign-off.
type ApprovalsHandler struct {
	approvals *service.ApprovalService
}

// NewApprovalsHandler constructs handler.
func NewApprovalsHandler(approvals *service.ApprovalService) *ApprovalsHandler {
	return &ApprovalsHandler{approvals: approvals}
}

// Resolve handles POST /api/v1/tickets/:id/resolve.
func (h *ApprovalsHandler) Resolve(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CloseRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	ticket, err := h.approvals.ResolveForApproval(c.UserContext(), c.Params("id"), req.ResolutionSummary, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// ApproveManager handles POST /api/v1/tickets/:id/approvals/manager.
func (h *ApprovalsHandler) ApproveManager(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.ApprovalRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	ticket, err := h.approvals.ApproveByManager(c.UserContext(), c.Params("id"), req.Comment, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// ApproveAdmin handles POST /api/v1/tickets/:id/approvals/admin.
func (h *ApprovalsHandler) ApproveAdmin(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.ApprovalRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	ticket, err := h.approvals.ApproveByAdmin(c.UserContext(), c.Params("id"), req.Comment, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// Reject handles POST /api/v1/tickets/:id/approvals/reject.
// Managers may only reject at the manager stage; admins may reject at either stage.
func (h *ApprovalsHandler) Reject(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.ApprovalRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.approvals.RejectApproval(c.UserContext(), c.Params("id"), req.Reason, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}
