package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// StaffRepository handles persistence for staff members.
type StaffRepository interface {
	Create(ctx context.Context, staff *domain.StaffMember) error
	Update(ctx context.Context, staff *domain.StaffMember) error
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
	GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error)
	List(ctx context.Context, filter StaffFilter) ([]domain.StaffMember, error)
	// LeastBusyInDepartment returns active ticket holders of a department ordered by
	// ascending open-ticket count, oldest member first on ties.
	LeastBusyInDepartment(ctx context.Context, departmentID string, limit int) ([]domain.AgentLoad, error)
}

// StaffFilter defines query params for staff listing.
type StaffFilter struct {
	TenantID     string
	Role         *domain.StaffRole
	DepartmentID *string
	Active       *bool
	Limit        int
	Offset       int
}

type staffRepository struct {
	db DBTX
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(db DBTX) StaffRepository {
	return &staffRepository{db: db}
}

const staffColumns = `id, tenant_id, name, email, password_hash, role, department_id, active_flag, created_at, updated_at`

func (r *staffRepository) Create(ctx context.Context, staff *domain.StaffMember) error {
	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO staff_members (id, tenant_id, name, email, password_hash, role, department_id, active_flag)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		staff.ID,
		staff.TenantID,
		staff.Name,
		staff.Email,
		staff.PasswordHash,
		staff.Role,
		staff.DepartmentID,
		staff.Active,
	).Scan(&staff.CreatedAt, &staff.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *staffRepository) Update(ctx context.Context, staff *domain.StaffMember) error {
	const query = `
        UPDATE staff_members
        SET name=$1, email=$2, password_hash=$3, role=$4, department_id=$5, active_flag=$6, updated_at=NOW()
        WHERE id=$7`

	cmd, err := r.db.Exec(ctx, query,
		staff.Name,
		staff.Email,
		staff.PasswordHash,
		staff.Role,
		staff.DepartmentID,
		staff.Active,
		staff.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *staffRepository) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	var staff domain.StaffMember
	if err := scanStaff(r.db.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff_members WHERE id=$1`, id), &staff); err != nil {
		return nil, err
	}
	return &staff, nil
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error) {
	var staff domain.StaffMember
	if err := scanStaff(r.db.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff_members WHERE lower(email)=lower($1)`, email), &staff); err != nil {
		return nil, err
	}
	return &staff, nil
}

func (r *staffRepository) List(ctx context.Context, filter StaffFilter) ([]domain.StaffMember, error) {
	query := `SELECT ` + staffColumns + ` FROM staff_members`
	args := []any{}
	clauses := []string{}

	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		clauses = append(clauses, fmt.Sprintf("tenant_id=$%d", len(args)))
	}
	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	page := Page{Limit: filter.Limit, Offset: filter.Offset}.normalized(50)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", page.Limit, page.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StaffMember
	for rows.Next() {
		var staff domain.StaffMember
		if err := scanStaff(rows, &staff); err != nil {
			return nil, err
		}
		result = append(result, staff)
	}
	return result, rows.Err()
}

func (r *staffRepository) LeastBusyInDepartment(ctx context.Context, departmentID string, limit int) ([]domain.AgentLoad, error) {
	if limit <= 0 {
		limit = 1
	}
	const query = `
        SELECT s.id, s.tenant_id, s.name, s.email, s.password_hash, s.role, s.department_id, s.active_flag,
               s.created_at, s.updated_at, COUNT(t.id) AS open_tickets
        FROM staff_members s
        LEFT JOIN tickets t ON t.assigned_agent_id = s.id AND t.status NOT IN ('RESOLVED','CLOSED')
        WHERE s.department_id=$1 AND s.active_flag = TRUE AND s.role IN ('AGENT','MANAGER')
        GROUP BY s.id
        ORDER BY open_tickets ASC, s.created_at ASC, s.id ASC
        LIMIT $2`
	rows, err := r.db.Query(ctx, query, departmentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AgentLoad
	for rows.Next() {
		var load domain.AgentLoad
		a := &load.Agent
		if err := rows.Scan(
			&a.ID,
			&a.TenantID,
			&a.Name,
			&a.Email,
			&a.PasswordHash,
			&a.Role,
			&a.DepartmentID,
			&a.Active,
			&a.CreatedAt,
			&a.UpdatedAt,
			&load.OpenTickets,
		); err != nil {
			return nil, err
		}
		result = append(result, load)
	}
	return result, rows.Err()
}

func scanStaff(row rowScanner, s *domain.StaffMember) error {
	return row.Scan(
		&s.ID,
		&s.TenantID,
		&s.Name,
		&s.Email,
		&s.PasswordHash,
		&s.Role,
		&s.DepartmentID,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
}
