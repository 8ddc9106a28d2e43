package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// TicketHistoryRepository stores audit entries. Entries are append-only.
type TicketHistoryRepository interface {
	Append(ctx context.Context, history *domain.TicketHistory) error
	// ListByTicket returns entries newest first.
	ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	db DBTX
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(db DBTX) TicketHistoryRepository {
	return &ticketHistoryRepository{db: db}
}

func (r *ticketHistoryRepository) Append(ctx context.Context, history *domain.TicketHistory) error {
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO ticket_history (id, ticket_id, field_name, old_value, new_value, change_type,
            changed_by_type, changed_by_id, comment, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.db.Exec(ctx, query,
		history.ID,
		history.TicketID,
		history.FieldName,
		history.OldValue,
		history.NewValue,
		history.ChangeType,
		history.ChangedByType,
		history.ChangedByID,
		history.Comment,
		history.CreatedAt,
	)
	return err
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	page := Page{Limit: limit, Offset: offset}.normalized(100)
	const query = `
        SELECT id, ticket_id, field_name, old_value, new_value, change_type, changed_by_type, changed_by_id, comment, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at DESC, seq DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, ticketID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var history domain.TicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.FieldName,
			&history.OldValue,
			&history.NewValue,
			&history.ChangeType,
			&history.ChangedByType,
			&history.ChangedByID,
			&history.Comment,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
