package service

import (
	"context"
	"strings"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// ApprovalService runs the resolve, manager approval, admin approval, close pipeline.
// Role checks belong to the caller; the recorded approver is the actor given.
type ApprovalService struct {
	*engine
}

// NewApprovalService constructs the service.
func NewApprovalService(deps Dependencies) *ApprovalService {
	return &ApprovalService{engine: newEngine(deps)}
}

// ResolveForApproval marks the work done: the ticket becomes RESOLVED and waits for a
// manager. Only IN_PROGRESS and PENDING tickets outside the pipeline can enter it.
func (s *ApprovalService) ResolveForApproval(ctx context.Context, ticketID, resolutionSummary string, actor Actor) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, actor, func(_ context.Context, _ repository.Repositories, c *change) error {
		t := c.ticket
		if t.ApprovalStage != domain.ApprovalStageNone && t.ApprovalStage != "" {
			return apperrors.NewInvalidTransition(string(t.ApprovalStage), string(domain.ApprovalStagePendingManager))
		}
		if t.Status != domain.TicketStatusInProgress && t.Status != domain.TicketStatusPending {
			return apperrors.NewInvalidTransition(string(t.Status), string(domain.TicketStatusResolved))
		}

		previous := t.Status
		summary := strings.TrimSpace(resolutionSummary)
		if summary != t.ResolutionSummary {
			c.record("resolution_summary", strPtr(t.ResolutionSummary), strPtr(summary), domain.ChangeTypeResolution, "")
			t.ResolutionSummary = summary
		}
		if err := c.transition(domain.TicketStatusResolved, "resolved for approval"); err != nil {
			return err
		}
		t.PreApprovalStatus = &previous
		setStage(c, domain.ApprovalStagePendingManager, domain.ChangeTypeResolution, "")
		c.emit(events.EventTicketApproved, events.ApprovalPayload{
			FromStage: domain.ApprovalStageNone,
			ToStage:   domain.ApprovalStagePendingManager,
		})
		c.approvals = append(c.approvals, [2]string{"resolve", "submitted"})
		return nil
	})
}

// ApproveByManager records the manager sign-off and hands the ticket to an admin.
func (s *ApprovalService) ApproveByManager(ctx context.Context, ticketID, comment string, actor Actor) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, actor, func(_ context.Context, _ repository.Repositories, c *change) error {
		t := c.ticket
		if t.ApprovalStage != domain.ApprovalStagePendingManager {
			return apperrors.NewInvalidTransition(string(t.ApprovalStage), string(domain.ApprovalStagePendingAdmin))
		}
		now := c.now
		t.ManagerApproverID = optionalPtr(actor.ID)
		t.ManagerApprovedAt = &now
		t.ManagerComment = strings.TrimSpace(comment)
		setStage(c, domain.ApprovalStagePendingAdmin, domain.ChangeTypeApproval, t.ManagerComment)
		c.emit(events.EventTicketApproved, events.ApprovalPayload{
			FromStage: domain.ApprovalStagePendingManager,
			ToStage:   domain.ApprovalStagePendingAdmin,
			Comment:   t.ManagerComment,
		})
		c.approvals = append(c.approvals, [2]string{"manager", "approved"})
		return nil
	})
}

// ApproveByAdmin gives the final sign-off and closes the ticket through the regular close path.
func (s *ApprovalService) ApproveByAdmin(ctx context.Context, ticketID, comment string, actor Actor) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, actor, func(_ context.Context, _ repository.Repositories, c *change) error {
		t := c.ticket
		if t.ApprovalStage != domain.ApprovalStagePendingAdmin {
			return apperrors.NewInvalidTransition(string(t.ApprovalStage), string(domain.ApprovalStageApproved))
		}
		now := c.now
		t.AdminApproverID = optionalPtr(actor.ID)
		t.AdminApprovedAt = &now
		t.AdminComment = strings.TrimSpace(comment)
		setStage(c, domain.ApprovalStageApproved, domain.ChangeTypeApproval, t.AdminComment)
		if err := closeTicket(c, t.ResolutionSummary); err != nil {
			return err
		}
		c.emit(events.EventTicketApproved, events.ApprovalPayload{
			FromStage: domain.ApprovalStagePendingAdmin,
			ToStage:   domain.ApprovalStageApproved,
			Comment:   t.AdminComment,
		})
		c.approvals = append(c.approvals, [2]string{"admin", "approved"})
		return nil
	})
}

// RejectApproval sends the ticket back one stage. A manager rejection returns it to the
// status it had before resolution; an admin rejection returns it to the manager.
// The reason is mandatory.
func (s *ApprovalService) RejectApproval(ctx context.Context, ticketID, reason string, actor Actor) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("rejection reason is required", map[string]any{"reason": "required"})
	}
	return s.mutate(ctx, ticketID, actor, func(_ context.Context, _ repository.Repositories, c *change) error {
		t := c.ticket
		from := t.ApprovalStage
		switch from {
		case domain.ApprovalStagePendingManager:
			target := domain.TicketStatusInProgress
			if t.PreApprovalStatus != nil && *t.PreApprovalStatus == domain.TicketStatusPending {
				target = domain.TicketStatusPending
			}
			if err := c.transition(target, "approval rejected"); err != nil {
				return err
			}
			t.PreApprovalStatus = nil
			setStage(c, domain.ApprovalStageNone, domain.ChangeTypeRejection, reason)
		case domain.ApprovalStagePendingAdmin:
			if c.actor.Type == domain.ActorTypeStaff && c.actor.Role != domain.StaffRoleAdmin {
				return apperrors.NewForbidden("admin role required to reject at the admin stage")
			}
			t.ManagerApproverID = nil
			t.ManagerApprovedAt = nil
			t.ManagerComment = ""
			setStage(c, domain.ApprovalStagePendingManager, domain.ChangeTypeRejection, reason)
		default:
			return apperrors.NewInvalidTransition(string(from), "REJECTED")
		}
		c.emit(events.EventTicketRejected, events.ApprovalPayload{
			FromStage: from,
			ToStage:   t.ApprovalStage,
			Comment:   reason,
		})
		stage := "manager"
		if from == domain.ApprovalStagePendingAdmin {
			stage = "admin"
		}
		c.approvals = append(c.approvals, [2]string{stage, "rejected"})
		return nil
	})
}

func setStage(c *change, stage domain.ApprovalStage, changeType domain.TicketChangeType, comment string) {
	old := c.ticket.ApprovalStage
	c.ticket.ApprovalStage = stage
	c.touch()
	c.record("approval_stage", strPtr(string(old)), strPtr(string(stage)), changeType, comment)
}
