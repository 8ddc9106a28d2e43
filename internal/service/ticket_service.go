package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// TicketService is the ticket state machine: creation, status changes, assignment,
// closing, rating and the read side.
type TicketService struct {
	*engine
	escalations *EscalationService
}

// NewTicketService constructs the service.
func NewTicketService(deps Dependencies, escalations *EscalationService) *TicketService {
	return &TicketService{engine: newEngine(deps), escalations: escalations}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	TenantID     string
	CustomerID   *string
	DepartmentID *string
	Title        string
	Description  string
	Category     *string
	Source       domain.TicketSource
	Priority     domain.TicketPriority
}

// TicketListFilter describes staff listing filters.
type TicketListFilter struct {
	DepartmentID *string
	AssigneeID   *string
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	Limit        int
	Offset       int
}

// CreateTicket opens a NEW ticket, stamps its SLA deadlines when a policy applies and
// records the creation in the audit trail.
func (s *TicketService) CreateTicket(ctx context.Context, actor Actor, input TicketCreateInput) (*domain.Ticket, error) {
	tenantID := input.TenantID
	if tenantID == "" {
		tenantID = actor.TenantID
	}
	details := map[string]any{}
	if tenantID == "" {
		details["tenant_id"] = "required"
	}
	if actor.TenantID != "" && tenantID != actor.TenantID {
		details["tenant_id"] = "must match the caller's tenant"
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		details["title"] = "required"
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityNormal
	}
	if priority.Rank() < 0 {
		details["priority"] = "unknown priority"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}
	source := input.Source
	if source == "" {
		source = domain.TicketSourceWeb
	}

	now := s.clock()
	ticket := &domain.Ticket{
		ID:             uuid.NewString(),
		Number:         generateTicketNumber(),
		TenantID:       tenantID,
		CustomerID:     input.CustomerID,
		CreatorID:      actor.ID,
		DepartmentID:   input.DepartmentID,
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		Category:       input.Category,
		Source:         source,
		Priority:       priority,
		Status:         domain.TicketStatusNew,
		ApprovalStage:  domain.ApprovalStageNone,
		CreatedAt:      now,
		LastActivityAt: now,
		UpdatedAt:      now,
	}

	c := &change{ticket: ticket, actor: actor, now: now}
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if ticket.DepartmentID != nil {
			dept, err := repos.Departments.GetByID(ctx, *ticket.DepartmentID)
			if err != nil {
				return notFoundOr(err, "department", *ticket.DepartmentID)
			}
			if dept.TenantID != tenantID || !dept.IsActive {
				return apperrors.NewNotFound("department", map[string]any{"id": dept.ID})
			}
		}
		tracking, err := attachPolicy(ctx, repos.Policies, ticket)
		if err != nil {
			return err
		}
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		if tracking != nil {
			if err := repos.Tracking.Save(ctx, tracking); err != nil {
				return err
			}
		}
		c.record("status", nil, strPtr(string(ticket.Status)), domain.ChangeTypeCreated, "")
		for i := range c.history {
			if err := repos.History.Append(ctx, &c.history[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.emit(events.EventTicketCreated, events.TicketCreatedPayload{
		DepartmentID: ticket.DepartmentID,
		Priority:     ticket.Priority,
		Title:        ticket.Title,
		SlaDeadline:  ticket.SlaDeadline,
	})
	s.publish(ctx, c)
	return ticket, nil
}

// ChangeStatus moves a ticket along the status graph. Tickets inside the approval
// pipeline only move through the approval operations. Moving to ESCALATED is a manual
// escalation and raises the level and priority like Escalate does.
func (s *TicketService) ChangeStatus(ctx context.Context, ticketID string, status domain.TicketStatus, comment string, actor Actor) (*domain.Ticket, error) {
	if _, ok := domain.ParseTicketStatus(string(status)); !ok {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
	}
	return s.mutate(ctx, ticketID, actor, func(_ context.Context, _ repository.Repositories, c *change) error {
		if awaitingApproval(c.ticket) {
			return apperrors.NewInvalidTransition(string(c.ticket.Status), string(status))
		}
		if status == domain.TicketStatusEscalated {
			return escalate(c, events.TriggerManual)
		}
		return c.transition(status, strings.TrimSpace(comment))
	})
}

// AssignToAgent hands the ticket to a staff member who can hold tickets and copies
// their department onto it. A NEW ticket is opened by the assignment.
func (s *TicketService) AssignToAgent(ctx context.Context, ticketID, agentID string, actor Actor) (*domain.Ticket, error) {
	return s.assign(ctx, ticketID, agentID, actor, false)
}

func (s *TicketService) assign(ctx context.Context, ticketID, agentID string, actor Actor, automatic bool) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, actor, func(ctx context.Context, repos repository.Repositories, c *change) error {
		if c.ticket.Status == domain.TicketStatusClosed {
			return apperrors.NewInvalidTransition(string(c.ticket.Status), "ASSIGNED")
		}
		agent, err := repos.Staff.GetByID(ctx, agentID)
		if err != nil {
			return notFoundOr(err, "agent", agentID)
		}
		if err := checkAssignee(agent, c.ticket); err != nil {
			return err
		}

		previous := c.ticket.AssignedAgentID
		c.ticket.AssignedAgentID = strPtr(agent.ID)
		c.touch()
		c.record("assigned_agent_id", optionalPtr(previous), strPtr(agent.ID), domain.ChangeTypeAssignee, "")

		if !equalStrings(c.ticket.DepartmentID, agent.DepartmentID) {
			c.record("department_id", optionalPtr(c.ticket.DepartmentID), optionalPtr(agent.DepartmentID), domain.ChangeTypeDepartment, "")
			c.ticket.DepartmentID = optionalPtr(agent.DepartmentID)
		}
		if c.ticket.Status == domain.TicketStatusNew {
			if err := c.transition(domain.TicketStatusOpen, "assigned"); err != nil {
				return err
			}
		}

		c.emit(events.EventTicketAssigned, events.TicketAssignedPayload{
			PreviousAgentID: previous,
			AgentID:         agent.ID,
			DepartmentID:    c.ticket.DepartmentID,
			Automatic:       automatic,
		})
		c.assignments = append(c.assignments, automatic)
		return nil
	})
}

func checkAssignee(agent *domain.StaffMember, ticket *domain.Ticket) error {
	details := map[string]any{"agent_id": agent.ID, "role": agent.Role}
	switch {
	case !agent.Role.CanHoldTickets():
		return apperrors.NewInvalidAssignee("assignee must be an agent or manager", details)
	case !agent.Active:
		return apperrors.NewInvalidAssignee("assignee is inactive", details)
	case agent.TenantID != ticket.TenantID:
		return apperrors.NewInvalidAssignee("assignee belongs to another tenant", details)
	case agent.DepartmentID == nil:
		return apperrors.NewInvalidAssignee("assignee has no department", details)
	}
	return nil
}

// Escalate raises the ticket one tier and marks it ESCALATED.
func (s *TicketService) Escalate(ctx context.Context, ticketID string, actor Actor) (*domain.Ticket, error) {
	return s.escalations.Escalate(ctx, ticketID, actor, events.TriggerManual)
}

// Close records the resolution summary and closes the ticket. Closing a CLOSED ticket
// returns it unchanged.
func (s *TicketService) Close(ctx context.Context, ticketID, resolutionSummary string, actor Actor) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, actor, func(_ context.Context, _ repository.Repositories, c *change) error {
		if c.ticket.Status == domain.TicketStatusClosed {
			return nil
		}
		if awaitingApproval(c.ticket) {
			return apperrors.NewInvalidTransition(string(c.ticket.Status), string(domain.TicketStatusClosed))
		}
		return closeTicket(c, strings.TrimSpace(resolutionSummary))
	})
}

func closeTicket(c *change, summary string) error {
	if summary != "" && summary != c.ticket.ResolutionSummary {
		c.record("resolution_summary", strPtr(c.ticket.ResolutionSummary), strPtr(summary), domain.ChangeTypeResolution, "")
		c.ticket.ResolutionSummary = summary
	}
	return c.transition(domain.TicketStatusClosed, "")
}

// AddSatisfactionRating stores the customer's rating of a RESOLVED or CLOSED ticket.
func (s *TicketService) AddSatisfactionRating(ctx context.Context, ticketID string, rating int, feedback string, actor Actor) (*domain.Ticket, error) {
	if rating < 1 || rating > 5 {
		return nil, apperrors.NewValidationError("rating must be between 1 and 5", map[string]any{"rating": rating})
	}
	return s.mutate(ctx, ticketID, actor, func(_ context.Context, _ repository.Repositories, c *change) error {
		if c.ticket.Status != domain.TicketStatusResolved && c.ticket.Status != domain.TicketStatusClosed {
			return apperrors.NewValidationError("only resolved or closed tickets can be rated", map[string]any{"status": c.ticket.Status})
		}
		var previous *string
		if c.ticket.SatisfactionRating != nil {
			previous = intPtr(*c.ticket.SatisfactionRating)
		}
		c.ticket.SatisfactionRating = &rating
		c.ticket.SatisfactionFeedback = strings.TrimSpace(feedback)
		c.touch()
		c.record("satisfaction_rating", previous, intPtr(rating), domain.ChangeTypeSatisfaction, c.ticket.SatisfactionFeedback)
		c.emit(events.EventTicketRated, events.TicketRatedPayload{Rating: rating, Feedback: c.ticket.SatisfactionFeedback})
		return nil
	})
}

// UpdatePriority sets the priority directly. It is the only path that may lower it;
// SLA deadlines keep their original targets.
func (s *TicketService) UpdatePriority(ctx context.Context, ticketID string, priority domain.TicketPriority, actor Actor) (*domain.Ticket, error) {
	if priority.Rank() < 0 {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	return s.mutate(ctx, ticketID, actor, func(_ context.Context, _ repository.Repositories, c *change) error {
		if c.ticket.Status == domain.TicketStatusClosed {
			return apperrors.NewInvalidTransition(string(c.ticket.Status), string(c.ticket.Status))
		}
		old := c.ticket.Priority
		if old == priority {
			return nil
		}
		c.ticket.Priority = priority
		c.touch()
		c.record("priority", strPtr(string(old)), strPtr(string(priority)), domain.ChangeTypePriority, "")
		c.emit(events.EventTicketPriorityChanged, events.TicketPriorityChangedPayload{OldPriority: old, NewPriority: priority})
		return nil
	})
}

// GetTicket returns a ticket visible to the actor.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string, actor Actor) (*domain.Ticket, error) {
	ticket, err := s.store.Repos().Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", ticketID)
	}
	if !actor.canAccess(ticket) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	return ticket, nil
}

// GetTicketByNumber looks a ticket up by its human-readable number.
func (s *TicketService) GetTicketByNumber(ctx context.Context, number string, actor Actor) (*domain.Ticket, error) {
	ticket, err := s.store.Repos().Tickets.GetByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return nil, notFoundOr(err, "ticket", number)
	}
	if !actor.canAccess(ticket) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"number": number})
	}
	return ticket, nil
}

// GetTracking returns the SLA tracking record of a ticket.
func (s *TicketService) GetTracking(ctx context.Context, ticketID string, actor Actor) (*domain.SlaTracking, error) {
	if _, err := s.GetTicket(ctx, ticketID, actor); err != nil {
		return nil, err
	}
	tracking, err := s.store.Repos().Tracking.GetByTicket(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "sla tracking", ticketID)
	}
	return tracking, nil
}

// ListTickets returns the actor's tenant tickets, most recently active first.
func (s *TicketService) ListTickets(ctx context.Context, actor Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	return s.store.Repos().Tickets.ListWithFilter(ctx, repository.TicketFilter{
		TenantID:     actor.TenantID,
		DepartmentID: filter.DepartmentID,
		AssigneeID:   filter.AssigneeID,
		Statuses:     filter.Statuses,
		Priorities:   filter.Priorities,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	})
}

// ListHistory returns the audit trail of a ticket, newest first.
func (s *TicketService) ListHistory(ctx context.Context, ticketID string, actor Actor, limit, offset int) ([]domain.TicketHistory, error) {
	if _, err := s.GetTicket(ctx, ticketID, actor); err != nil {
		return nil, err
	}
	return s.store.Repos().History.ListByTicket(ctx, ticketID, limit, offset)
}

func awaitingApproval(ticket *domain.Ticket) bool {
	return ticket.ApprovalStage == domain.ApprovalStagePendingManager ||
		ticket.ApprovalStage == domain.ApprovalStagePendingAdmin
}

func equalStrings(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
