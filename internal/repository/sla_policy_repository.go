package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// SlaPolicyRepository stores SLA policies.
type SlaPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SlaPolicy) error
	GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error)
	// FindActive returns the active policy for the exact (tenant, department, priority) tuple.
	// A nil departmentID matches tenant-wide policies only.
	FindActive(ctx context.Context, tenantID string, departmentID *string, priority domain.TicketPriority) (*domain.SlaPolicy, error)
	ListByTenant(ctx context.Context, tenantID string, includeInactive bool) ([]domain.SlaPolicy, error)
	Deactivate(ctx context.Context, id string) error
}

type slaPolicyRepository struct {
	db DBTX
}

// NewSlaPolicyRepository builds repository.
func NewSlaPolicyRepository(db DBTX) SlaPolicyRepository {
	return &slaPolicyRepository{db: db}
}

const slaPolicyColumns = `id, tenant_id, department_id, priority, first_response_hours, resolution_hours,
       business_hours_only, active, created_at, updated_at`

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SlaPolicy) error {
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO sla_policies (id, tenant_id, department_id, priority, first_response_hours, resolution_hours, business_hours_only, active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		policy.ID,
		policy.TenantID,
		policy.DepartmentID,
		policy.Priority,
		policy.FirstResponseTimeHours,
		policy.ResolutionTimeHours,
		policy.BusinessHoursOnly,
		policy.Active,
	).Scan(&policy.CreatedAt, &policy.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error) {
	var policy domain.SlaPolicy
	if err := scanSlaPolicy(r.db.QueryRow(ctx, `SELECT `+slaPolicyColumns+` FROM sla_policies WHERE id=$1`, id), &policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *slaPolicyRepository) FindActive(ctx context.Context, tenantID string, departmentID *string, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	const query = `SELECT ` + slaPolicyColumns + ` FROM sla_policies
        WHERE tenant_id=$1 AND department_id IS NOT DISTINCT FROM $2 AND priority=$3 AND active = TRUE
        ORDER BY created_at DESC LIMIT 1`
	var policy domain.SlaPolicy
	if err := scanSlaPolicy(r.db.QueryRow(ctx, query, tenantID, departmentID, priority), &policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *slaPolicyRepository) ListByTenant(ctx context.Context, tenantID string, includeInactive bool) ([]domain.SlaPolicy, error) {
	query := `SELECT ` + slaPolicyColumns + ` FROM sla_policies WHERE tenant_id=$1`
	if !includeInactive {
		query += ` AND active = TRUE`
	}
	query += ` ORDER BY priority, created_at`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SlaPolicy
	for rows.Next() {
		var policy domain.SlaPolicy
		if err := scanSlaPolicy(rows, &policy); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}

func (r *slaPolicyRepository) Deactivate(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE sla_policies SET active = FALSE, updated_at = NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSlaPolicy(row rowScanner, p *domain.SlaPolicy) error {
	return row.Scan(
		&p.ID,
		&p.TenantID,
		&p.DepartmentID,
		&p.Priority,
		&p.FirstResponseTimeHours,
		&p.ResolutionTimeHours,
		&p.BusinessHoursOnly,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}
