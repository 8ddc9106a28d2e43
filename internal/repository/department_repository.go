package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// DepartmentRepository manages department persistence.
type DepartmentRepository interface {
	Create(ctx context.Context, dept *domain.Department) error
	GetByID(ctx context.Context, id string) (*domain.Department, error)
	ListActive(ctx context.Context, tenantID string) ([]domain.Department, error)
}

type departmentRepository struct {
	db DBTX
}

// NewDepartmentRepository builds the repository.
func NewDepartmentRepository(db DBTX) DepartmentRepository {
	return &departmentRepository{db: db}
}

func (r *departmentRepository) Create(ctx context.Context, dept *domain.Department) error {
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO departments (id, tenant_id, name, description, is_active)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		dept.ID,
		dept.TenantID,
		dept.Name,
		dept.Description,
		dept.IsActive,
	).Scan(&dept.CreatedAt, &dept.UpdatedAt)
}

func (r *departmentRepository) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	const query = `
        SELECT id, tenant_id, name, description, is_active, created_at, updated_at
        FROM departments WHERE id=$1`
	var dept domain.Department
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&dept.ID,
		&dept.TenantID,
		&dept.Name,
		&dept.Description,
		&dept.IsActive,
		&dept.CreatedAt,
		&dept.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &dept, nil
}

func (r *departmentRepository) ListActive(ctx context.Context, tenantID string) ([]domain.Department, error) {
	const query = `
        SELECT id, tenant_id, name, description, is_active, created_at, updated_at
        FROM departments WHERE tenant_id=$1 AND is_active = TRUE ORDER BY name`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Department
	for rows.Next() {
		var dept domain.Department
		if err := rows.Scan(&dept.ID, &dept.TenantID, &dept.Name, &dept.Description, &dept.IsActive, &dept.CreatedAt, &dept.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, dept)
	}
	return result, rows.Err()
}
