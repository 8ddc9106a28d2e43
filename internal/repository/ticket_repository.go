package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// TicketFilter captures staff search parameters.
type TicketFilter struct {
	TenantID     string
	DepartmentID *string
	AssigneeID   *string
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	Limit        int
	Offset       int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes the ticket if its Revision matches the stored one and bumps Revision.
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// FindActive returns tickets that are not CLOSED.
	FindActive(ctx context.Context, tenantID string, page Page) ([]domain.Ticket, error)
	// FindAtRisk returns open tickets whose resolution deadline lies in (now, riskTime].
	FindAtRisk(ctx context.Context, tenantID string, now, riskTime time.Time, page Page) ([]domain.Ticket, error)
	// FindViolated returns open tickets with a passed first-response or resolution deadline
	// whose matching timestamp is still unset.
	FindViolated(ctx context.Context, tenantID string, now time.Time, page Page) ([]domain.Ticket, error)
	FindUnassigned(ctx context.Context, tenantID string, page Page) ([]domain.Ticket, error)
	CountAssignedTo(ctx context.Context, agentID string) (int, error)
	ListTenants(ctx context.Context) ([]string, error)
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, number, tenant_id, customer_id, creator_id, assigned_agent_id, department_id,
       title, description, category, source, priority, status, escalation_level,
       approval_stage, pre_approval_status, manager_approver_id, manager_approved_at, manager_comment,
       admin_approver_id, admin_approved_at, admin_comment, resolution_summary,
       satisfaction_rating, satisfaction_feedback, first_response_deadline, sla_deadline,
       created_at, first_response_at, resolved_at, closed_at, last_activity_at, updated_at, revision`

const openStatusClause = `status NOT IN ('RESOLVED','CLOSED')`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	ticket.Revision = 1
	const query = `
        INSERT INTO tickets (` + ticketColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
                $21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34)`
	_, err := r.db.Exec(ctx, query, ticketArgs(ticket)...)
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET customer_id=$4, creator_id=$5, assigned_agent_id=$6, department_id=$7,
            title=$8, description=$9, category=$10, source=$11, priority=$12, status=$13, escalation_level=$14,
            approval_stage=$15, pre_approval_status=$16, manager_approver_id=$17, manager_approved_at=$18,
            manager_comment=$19, admin_approver_id=$20, admin_approved_at=$21, admin_comment=$22,
            resolution_summary=$23, satisfaction_rating=$24, satisfaction_feedback=$25,
            first_response_deadline=$26, sla_deadline=$27, created_at=$28, first_response_at=$29,
            resolved_at=$30, closed_at=$31, last_activity_at=$32, updated_at=$33, revision=revision+1
        WHERE id=$1 AND number=$2 AND tenant_id=$3 AND revision=$34`
	cmd, err := r.db.Exec(ctx, query, ticketArgs(ticket)...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrRevisionConflict
	}
	ticket.Revision++
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE number=$1`, number)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicket(r.db.QueryRow(ctx, query, arg), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		clauses = append(clauses, fmt.Sprintf("tenant_id=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assigned_agent_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}

	page := Page{Limit: filter.Limit, Offset: filter.Offset}.normalized(20)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY last_activity_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), page.Limit, page.Offset)
	return r.queryTickets(ctx, query, args...)
}

func (r *ticketRepository) FindActive(ctx context.Context, tenantID string, page Page) ([]domain.Ticket, error) {
	page = page.normalized(100)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE tenant_id=$1 AND status <> 'CLOSED'
        ORDER BY created_at ASC, id ASC LIMIT %d OFFSET %d`, ticketColumns, page.Limit, page.Offset)
	return r.queryTickets(ctx, query, tenantID)
}

func (r *ticketRepository) FindAtRisk(ctx context.Context, tenantID string, now, riskTime time.Time, page Page) ([]domain.Ticket, error) {
	page = page.normalized(100)
	query := fmt.Sprintf(`SELECT %s FROM tickets
        WHERE tenant_id=$1 AND %s AND sla_deadline > $2 AND sla_deadline <= $3
        ORDER BY sla_deadline ASC, id ASC LIMIT %d OFFSET %d`, ticketColumns, openStatusClause, page.Limit, page.Offset)
	return r.queryTickets(ctx, query, tenantID, now, riskTime)
}

func (r *ticketRepository) FindViolated(ctx context.Context, tenantID string, now time.Time, page Page) ([]domain.Ticket, error) {
	page = page.normalized(100)
	query := fmt.Sprintf(`SELECT %s FROM tickets
        WHERE tenant_id=$1 AND %s AND (
            (first_response_deadline < $2 AND first_response_at IS NULL) OR
            (sla_deadline < $2 AND resolved_at IS NULL))
        ORDER BY sla_deadline ASC, id ASC LIMIT %d OFFSET %d`, ticketColumns, openStatusClause, page.Limit, page.Offset)
	return r.queryTickets(ctx, query, tenantID, now)
}

func (r *ticketRepository) FindUnassigned(ctx context.Context, tenantID string, page Page) ([]domain.Ticket, error) {
	page = page.normalized(100)
	query := fmt.Sprintf(`SELECT %s FROM tickets
        WHERE tenant_id=$1 AND assigned_agent_id IS NULL AND %s
        ORDER BY created_at ASC, id ASC LIMIT %d OFFSET %d`, ticketColumns, openStatusClause, page.Limit, page.Offset)
	return r.queryTickets(ctx, query, tenantID)
}

func (r *ticketRepository) CountAssignedTo(ctx context.Context, agentID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE assigned_agent_id=$1 AND `+openStatusClause, agentID).Scan(&count)
	return count, err
}

func (r *ticketRepository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT tenant_id FROM tickets WHERE status <> 'CLOSED' ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

func (r *ticketRepository) queryTickets(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func ticketArgs(t *domain.Ticket) []any {
	return []any{
		t.ID, t.Number, t.TenantID, t.CustomerID, t.CreatorID, t.AssignedAgentID, t.DepartmentID,
		t.Title, t.Description, t.Category, t.Source, t.Priority, t.Status, t.EscalationLevel,
		t.ApprovalStage, t.PreApprovalStatus, t.ManagerApproverID, t.ManagerApprovedAt, t.ManagerComment,
		t.AdminApproverID, t.AdminApprovedAt, t.AdminComment, t.ResolutionSummary,
		t.SatisfactionRating, t.SatisfactionFeedback, t.FirstResponseDeadline, t.SlaDeadline,
		t.CreatedAt, t.FirstResponseAt, t.ResolvedAt, t.ClosedAt, t.LastActivityAt, t.UpdatedAt, t.Revision,
	}
}

func scanTicket(row rowScanner, t *domain.Ticket) error {
	return row.Scan(
		&t.ID, &t.Number, &t.TenantID, &t.CustomerID, &t.CreatorID, &t.AssignedAgentID, &t.DepartmentID,
		&t.Title, &t.Description, &t.Category, &t.Source, &t.Priority, &t.Status, &t.EscalationLevel,
		&t.ApprovalStage, &t.PreApprovalStatus, &t.ManagerApproverID, &t.ManagerApprovedAt, &t.ManagerComment,
		&t.AdminApproverID, &t.AdminApprovedAt, &t.AdminComment, &t.ResolutionSummary,
		&t.SatisfactionRating, &t.SatisfactionFeedback, &t.FirstResponseDeadline, &t.SlaDeadline,
		&t.CreatedAt, &t.FirstResponseAt, &t.ResolvedAt, &t.ClosedAt, &t.LastActivityAt, &t.UpdatedAt, &t.Revision,
	)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
