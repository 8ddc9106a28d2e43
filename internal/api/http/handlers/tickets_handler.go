package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/presence"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// TicketsHandler serves the ticket state machine endpoints.
type TicketsHandler struct {
	tickets     *service.TicketService
	escalations *service.EscalationService
	assignments *service.AssignmentService
	typing      *presence.TypingStore
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, escalations *service.EscalationService, assignments *service.AssignmentService, typing *presence.TypingStore) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, escalations: escalations, assignments: assignments, typing: typing}
}

// Create handles POST /api/v1/tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		CustomerID:   req.CustomerID,
		DepartmentID: req.DepartmentID,
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Source:       req.Source,
		Priority:     req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// List handles GET /api/v1/tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.ListTickets(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}

// Get handles GET /api/v1/tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// GetByNumber handles GET /api/v1/tickets/number/:number.
func (h *TicketsHandler) GetByNumber(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicketByNumber(c.UserContext(), c.Params("number"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// History handles GET /api/v1/tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	page := parsePage(c)
	entries, err := h.tickets.ListHistory(c.UserContext(), c.Params("id"), actor, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

// Tracking handles GET /api/v1/tickets/:id/sla.
func (h *TicketsHandler) Tracking(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	tracking, err := h.tickets.GetTracking(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TrackingResponse{
		PolicyID:              tracking.PolicyID,
		FirstResponseDeadline: tracking.FirstResponseDeadline,
		ResolutionDeadline:    tracking.ResolutionDeadline,
		FirstResponseViolated: tracking.FirstResponseViolated,
		ResolutionViolated:    tracking.ResolutionViolated,
		Escalated:             tracking.Escalated,
		EscalationLevel:       tracking.EscalationLevel,
	}})
}

// ChangeStatus handles PATCH /api/v1/tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	status, ok := domain.ParseTicketStatus(strings.ToUpper(string(req.Status)))
	if !ok {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": req.Status})
	}
	ticket, err := h.tickets.ChangeStatus(c.UserContext(), c.Params("id"), status, req.Comment, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Assign handles POST /api/v1/tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.AgentID == "" {
		return apperrors.NewValidationError("agent_id required", nil)
	}
	ticket, err := h.tickets.AssignToAgent(c.UserContext(), c.Params("id"), req.AgentID, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// AutoAssign handles POST /api/v1/tickets/:id/auto-assign.
func (h *TicketsHandler) AutoAssign(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.assignments.AutoAssign(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Escalate handles POST /api/v1/tickets/:id/escalate.
func (h *TicketsHandler) Escalate(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.escalations.Escalate(c.UserContext(), c.Params("id"), actor, events.TriggerManual)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Close handles POST /api/v1/tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
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
	ticket, err := h.tickets.Close(c.UserContext(), c.Params("id"), req.ResolutionSummary, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Rate handles POST /api/v1/tickets/:id/rating.
func (h *TicketsHandler) Rate(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.RatingRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.AddSatisfactionRating(c.UserContext(), c.Params("id"), req.Rating, req.Feedback, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// UpdatePriority handles PATCH /api/v1/tickets/:id/priority.
func (h *TicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.PriorityRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	priority, ok := domain.ParseTicketPriority(strings.ToUpper(string(req.Priority)))
	if !ok {
		return apperrors.NewValidationError("invalid priority", map[string]any{"priority": req.Priority})
	}
	ticket, err := h.tickets.UpdatePriority(c.UserContext(), c.Params("id"), priority, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// MarkTyping handles POST /api/v1/tickets/:id/typing.
func (h *TicketsHandler) MarkTyping(c *fiber.Ctx) error {
	principal, ticketID, err := h.typingTarget(c)
	if err != nil {
		return err
	}
	if err := h.typing.MarkTyping(c.UserContext(), ticketID, principal.Staff.ID); err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// StopTyping handles DELETE /api/v1/tickets/:id/typing.
func (h *TicketsHandler) StopTyping(c *fiber.Ctx) error {
	principal, ticketID, err := h.typingTarget(c)
	if err != nil {
		return err
	}
	if err := h.typing.StopTyping(c.UserContext(), ticketID, principal.Staff.ID); err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Typing handles GET /api/v1/tickets/:id/typing.
func (h *TicketsHandler) Typing(c *fiber.Ctx) error {
	_, ticketID, err := h.typingTarget(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TypingResponse{
		TicketID: ticketID,
		StaffIDs: h.typing.Typing(c.UserContext(), ticketID),
	}})
}

// typingTarget checks the ticket is visible to the caller before touching presence keys.
func (h *TicketsHandler) typingTarget(c *fiber.Ctx) (*auth.Principal, string, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, "", apperrors.NewUnauthorized("staff required")
	}
	actor, _ := currentActor(c)
	ticket, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return nil, "", err
	}
	return principal, ticket.ID, nil
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	page := parsePage(c)
	filter := service.TicketListFilter{
		DepartmentID: optionalQuery(c, "department_id"),
		AssigneeID:   optionalQuery(c, "assignee_id"),
		Limit:        page.Limit,
		Offset:       page.Offset,
	}
	for _, raw := range splitQuery(c.Query("status")) {
		status, ok := domain.ParseTicketStatus(strings.ToUpper(raw))
		if !ok {
			return filter, apperrors.NewValidationError("invalid status filter", map[string]any{"status": raw})
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, raw := range splitQuery(c.Query("priority")) {
		priority, ok := domain.ParseTicketPriority(strings.ToUpper(raw))
		if !ok {
			return filter, apperrors.NewValidationError("invalid priority filter", map[string]any{"priority": raw})
		}
		filter.Priorities = append(filter.Priorities, priority)
	}
	return filter, nil
}
