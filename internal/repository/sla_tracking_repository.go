package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// SlaTrackingRepository persists per-ticket SLA tracking.
type SlaTrackingRepository interface {
	GetByTicket(ctx context.Context, ticketID string) (*domain.SlaTracking, error)
	// Save inserts a record with zero Revision, otherwise updates it under a revision check.
	Save(ctx context.Context, tracking *domain.SlaTracking) error
}

type slaTrackingRepository struct {
	db DBTX
}

// NewSlaTrackingRepository builds repository.
func NewSlaTrackingRepository(db DBTX) SlaTrackingRepository {
	return &slaTrackingRepository{db: db}
}

func (r *slaTrackingRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.SlaTracking, error) {
	const query = `
        SELECT id, ticket_id, policy_id, first_response_deadline, resolution_deadline,
               first_response_violated, resolution_violated, escalated, escalation_level,
               created_at, updated_at, revision
        FROM sla_tracking WHERE ticket_id=$1`
	var t domain.SlaTracking
	if err := r.db.QueryRow(ctx, query, ticketID).Scan(
		&t.ID,
		&t.TicketID,
		&t.PolicyID,
		&t.FirstResponseDeadline,
		&t.ResolutionDeadline,
		&t.FirstResponseViolated,
		&t.ResolutionViolated,
		&t.Escalated,
		&t.EscalationLevel,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.Revision,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *slaTrackingRepository) Save(ctx context.Context, t *domain.SlaTracking) error {
	if t.Revision == 0 {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		const insert = `
            INSERT INTO sla_tracking (id, ticket_id, policy_id, first_response_deadline, resolution_deadline,
                first_response_violated, resolution_violated, escalated, escalation_level, revision)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1)
            RETURNING created_at, updated_at`
		if err := r.db.QueryRow(ctx, insert,
			t.ID,
			t.TicketID,
			t.PolicyID,
			t.FirstResponseDeadline,
			t.ResolutionDeadline,
			t.FirstResponseViolated,
			t.ResolutionViolated,
			t.Escalated,
			t.EscalationLevel,
		).Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
			return err
		}
		t.Revision = 1
		return nil
	}

	const update = `
        UPDATE sla_tracking SET first_response_violated=$1, resolution_violated=$2, escalated=$3,
            escalation_level=$4, updated_at=NOW(), revision=revision+1
        WHERE id=$5 AND revision=$6
        RETURNING updated_at`
	if err := r.db.QueryRow(ctx, update,
		t.FirstResponseViolated,
		t.ResolutionViolated,
		t.Escalated,
		t.EscalationLevel,
		t.ID,
		t.Revision,
	).Scan(&t.UpdatedAt); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrRevisionConflict
		}
		return err
	}
	t.Revision++
	return nil
}
