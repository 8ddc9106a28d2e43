package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// SlaHandler serves SLA policy administration and the violation scanner.
type SlaHandler struct {
	policies *service.SlaPolicyService
	scanner  *service.SlaScanner
}

// NewSlaHandler constructs handler.
func NewSlaHandler(policies *service.SlaPolicyService, scanner *service.SlaScanner) *SlaHandler {
	return &SlaHandler{policies: policies, scanner: scanner}
}

// CreatePolicy handles POST /api/v1/sla/policies.
func (h *SlaHandler) CreatePolicy(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreatePolicyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	priority, ok := domain.ParseTicketPriority(strings.ToUpper(string(req.Priority)))
	if !ok {
		return apperrors.NewValidationError("invalid priority", map[string]any{"priority": req.Priority})
	}
	policy, err := h.policies.CreatePolicy(c.UserContext(), service.PolicyInput{
		TenantID:               actor.TenantID,
		DepartmentID:           req.DepartmentID,
		Priority:               priority,
		FirstResponseTimeHours: req.FirstResponseTimeHours,
		ResolutionTimeHours:    req.ResolutionTimeHours,
		BusinessHoursOnly:      req.BusinessHoursOnly,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": policyResponse(policy)})
}

// ListPolicies handles GET /api/v1/sla/policies.
func (h *SlaHandler) ListPolicies(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	policies, err := h.policies.ListPolicies(c.UserContext(), actor.TenantID, c.QueryBool("include_inactive"))
	if err != nil {
		return err
	}
	items := make([]dto.PolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, policyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// DeactivatePolicy handles DELETE /api/v1/sla/policies/:id.
func (h *SlaHandler) DeactivatePolicy(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	if err := h.policies.DeactivatePolicy(c.UserContext(), actor.TenantID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Scan handles POST /api/v1/sla/scan and sweeps the caller's tenant.
func (h *SlaHandler) Scan(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	report, err := h.scanner.Scan(c.UserContext(), actor.TenantID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ScanReportResponse{
		TenantID:        report.TenantID,
		Evaluated:       report.Evaluated,
		TrackingCreated: report.TrackingCreated,
		FlagsRaised:     report.FlagsRaised,
		Truncated:       report.Truncated,
		AtRisk:          ticketSummaries(report.AtRisk),
		Violated:        ticketSummaries(report.Violated),
	}})
}

// AtRisk handles GET /api/v1/sla/at-risk.
func (h *SlaHandler) AtRisk(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	tickets, err := h.scanner.AtRisk(c.UserContext(), actor.TenantID, parsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}

// Violated handles GET /api/v1/sla/violated.
func (h *SlaHandler) Violated(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	tickets, err := h.scanner.Violated(c.UserContext(), actor.TenantID, parsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}
