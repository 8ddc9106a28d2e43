package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// AssignmentService balances tickets across the agents of a department.
//
// The least-busy lookup reads live counts without a lock: two concurrent auto-assignments
// in one department may pick the same agent. Balance is best-effort.
type AssignmentService struct {
	*engine
	tickets *TicketService
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps Dependencies, tickets *TicketService) *AssignmentService {
	return &AssignmentService{engine: newEngine(deps), tickets: tickets}
}

// AutoAssign gives the ticket to the agent of its department holding the fewest open tickets.
func (s *AssignmentService) AutoAssign(ctx context.Context, ticketID string, actor Actor) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetTicket(ctx, ticketID, actor)
	if err != nil {
		return nil, err
	}
	if ticket.DepartmentID == nil {
		return nil, apperrors.NewMissingDepartment(map[string]any{"ticket_id": ticket.ID})
	}

	candidates, err := s.store.Repos().Staff.LeastBusyInDepartment(ctx, *ticket.DepartmentID, 1)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, apperrors.NewNoAvailableAgent(map[string]any{"department_id": *ticket.DepartmentID})
	}
	chosen := candidates[0]
	s.logger.Debug("auto-assign candidate selected",
		zap.String("ticket_id", ticket.ID),
		zap.String("agent_id", chosen.Agent.ID),
		zap.Int("open_tickets", chosen.OpenTickets))

	return s.tickets.assign(ctx, ticket.ID, chosen.Agent.ID, actor, true)
}
