package service

import (
	"context"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// EscalationService raises a ticket's priority tier and escalation level.
// Deciding when to escalate is left to the caller.
type EscalationService struct {
	*engine
}

// NewEscalationService constructs the service.
func NewEscalationService(deps Dependencies) *EscalationService {
	return &EscalationService{engine: newEngine(deps)}
}

// Escalate increments the escalation level, advances the priority one tier (CRITICAL
// stays CRITICAL) and moves the ticket to ESCALATED. SLA deadlines are not retargeted.
// RESOLVED and CLOSED tickets cannot be escalated.
func (s *EscalationService) Escalate(ctx context.Context, ticketID string, actor Actor, trigger events.EscalationTrigger) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, actor, func(_ context.Context, _ repository.Repositories, c *change) error {
		return escalate(c, trigger)
	})
}

func escalate(c *change, trigger events.EscalationTrigger) error {
	t := c.ticket
	if !t.Status.IsActive() {
		return apperrors.NewInvalidTransition(string(t.Status), string(domain.TicketStatusEscalated))
	}

	oldLevel := t.EscalationLevel
	oldPriority := t.Priority
	t.EscalationLevel++
	t.Priority = oldPriority.Next()
	c.touch()
	c.record("escalation_level", intPtr(oldLevel), intPtr(t.EscalationLevel), domain.ChangeTypeEscalation, string(trigger))
	if t.Priority != oldPriority {
		c.record("priority", strPtr(string(oldPriority)), strPtr(string(t.Priority)), domain.ChangeTypePriority, string(trigger))
	}
	if err := c.transition(domain.TicketStatusEscalated, string(trigger)); err != nil {
		return err
	}

	if c.tracking != nil {
		c.tracking.Escalated = true
		c.tracking.EscalationLevel = t.EscalationLevel
		c.trackingDirty = true
	}
	c.emit(events.EventTicketEscalated, events.TicketEscalatedPayload{
		Level:       t.EscalationLevel,
		OldPriority: oldPriority,
		NewPriority: t.Priority,
		Trigger:     trigger,
	})
	c.escalations = append(c.escalations, trigger)
	return nil
}
