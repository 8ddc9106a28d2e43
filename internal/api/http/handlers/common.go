package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

func currentActor(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return service.Actor{}, apperrors.NewUnauthorized("staff required")
	}
	staff := principal.Staff
	return service.StaffActor(staff.ID, staff.TenantID, staff.Role), nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parsePage(c *fiber.Ctx) repository.Page {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	if pageSize > 200 {
		pageSize = 200
	}
	return repository.Page{Limit: pageSize, Offset: (page - 1) * pageSize}
}

func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:              ticket.ID,
		Number:          ticket.Number,
		DepartmentID:    ticket.DepartmentID,
		AssignedAgentID: ticket.AssignedAgentID,
		Title:           ticket.Title,
		Status:          ticket.Status,
		Priority:        ticket.Priority,
		EscalationLevel: ticket.EscalationLevel,
		ApprovalStage:   ticket.ApprovalStage,
		SlaDeadline:     ticket.SlaDeadline,
		CreatedAt:       ticket.CreatedAt,
		LastActivityAt:  ticket.LastActivityAt,
	}
}

func ticketSummaries(tickets []domain.Ticket) []dto.TicketSummary {
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return items
}

func ticketDetail(ticket *domain.Ticket) dto.TicketDetailResponse {
	return dto.TicketDetailResponse{
		TicketSummary:         ticketSummary(ticket),
		TenantID:              ticket.TenantID,
		CustomerID:            ticket.CustomerID,
		CreatorID:             ticket.CreatorID,
		Description:           ticket.Description,
		Category:              ticket.Category,
		Source:                string(ticket.Source),
		ManagerApproverID:     ticket.ManagerApproverID,
		ManagerApprovedAt:     ticket.ManagerApprovedAt,
		ManagerComment:        ticket.ManagerComment,
		AdminApproverID:       ticket.AdminApproverID,
		AdminApprovedAt:       ticket.AdminApprovedAt,
		AdminComment:          ticket.AdminComment,
		ResolutionSummary:     ticket.ResolutionSummary,
		SatisfactionRating:    ticket.SatisfactionRating,
		SatisfactionFeedback:  ticket.SatisfactionFeedback,
		FirstResponseDeadline: ticket.FirstResponseDeadline,
		FirstResponseAt:       ticket.FirstResponseAt,
		ResolvedAt:            ticket.ResolvedAt,
		ClosedAt:              ticket.ClosedAt,
		UpdatedAt:             ticket.UpdatedAt,
		Revision:              ticket.Revision,
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:            entry.ID,
			FieldName:     entry.FieldName,
			ChangeType:    entry.ChangeType,
			ChangedByType: entry.ChangedByType,
			ChangedByID:   entry.ChangedByID,
			OldValue:      entry.OldValue,
			NewValue:      entry.NewValue,
			Comment:       entry.Comment,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return resp
}

func staffResponse(staff *domain.StaffMember) dto.StaffResponse {
	return dto.StaffResponse{
		ID:           staff.ID,
		TenantID:     staff.TenantID,
		Name:         staff.Name,
		Email:        staff.Email,
		Role:         staff.Role,
		DepartmentID: staff.DepartmentID,
		Active:       staff.Active,
		CreatedAt:    staff.CreatedAt,
	}
}

func departmentResponse(dept *domain.Department) dto.DepartmentResponse {
	return dto.DepartmentResponse{
		ID:          dept.ID,
		Name:        dept.Name,
		Description: dept.Description,
		IsActive:    dept.IsActive,
		CreatedAt:   dept.CreatedAt,
	}
}

func policyResponse(policy *domain.SlaPolicy) dto.PolicyResponse {
	return dto.PolicyResponse{
		ID:                     policy.ID,
		DepartmentID:           policy.DepartmentID,
		Priority:               policy.Priority,
		FirstResponseTimeHours: policy.FirstResponseTimeHours,
		ResolutionTimeHours:    policy.ResolutionTimeHours,
		BusinessHoursOnly:      policy.BusinessHoursOnly,
		Active:                 policy.Active,
		CreatedAt:              policy.CreatedAt,
	}
}
