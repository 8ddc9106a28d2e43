package service

import (
	"context"
	"errors"
	"strings"

	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// StaffService manages a tenant's departments and staff members.
type StaffService struct {
	departments repository.DepartmentRepository
	staff       repository.StaffRepository
	tickets     repository.TicketRepository
	bcryptCost  int
}

// NewStaffService constructs the service.
func NewStaffService(store repository.Store, bcryptCost int) *StaffService {
	repos := store.Repos()
	return &StaffService{departments: repos.Departments, staff: repos.Staff, tickets: repos.Tickets, bcryptCost: bcryptCost}
}

// StaffInput describes a new staff account.
type StaffInput struct {
	Name         string
	Email        string
	Password     string
	Role         domain.StaffRole
	DepartmentID *string
}

// StaffListFilters define listing parameters.
type StaffListFilters struct {
	Role         *domain.StaffRole
	DepartmentID *string
	Active       *bool
	Limit        int
	Offset       int
}

func requireAdmin(actor Actor) error {
	if actor.Type != domain.ActorTypeStaff || actor.Role != domain.StaffRoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// CreateDepartment creates a new department in the actor's tenant.
func (s *StaffService) CreateDepartment(ctx context.Context, actor Actor, name, description string) (*domain.Department, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.NewValidationError("department name is required", map[string]any{"name": "required"})
	}
	dept := &domain.Department{
		TenantID:    actor.TenantID,
		Name:        strings.TrimSpace(name),
		Description: description,
		IsActive:    true,
	}
	if err := s.departments.Create(ctx, dept); err != nil {
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}

// ListDepartments returns the active departments of the actor's tenant.
func (s *StaffService) ListDepartments(ctx context.Context, actor Actor) ([]domain.Department, error) {
	return s.departments.ListActive(ctx, actor.TenantID)
}

// CreateStaffMember adds a new staff account to the actor's tenant.
func (s *StaffService) CreateStaffMember(ctx context.Context, actor Actor, input StaffInput) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	details := map[string]any{}
	if strings.TrimSpace(input.Name) == "" {
		details["name"] = "required"
	}
	if !strings.Contains(input.Email, "@") {
		details["email"] = "invalid"
	}
	if len(input.Password) < 8 {
		details["password"] = "min length 8"
	}
	switch input.Role {
	case domain.StaffRoleAgent, domain.StaffRoleManager, domain.StaffRoleAdmin:
	default:
		details["role"] = "unknown role"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid staff member", details)
	}

	if input.DepartmentID != nil && *input.DepartmentID != "" {
		dept, err := s.departments.GetByID(ctx, *input.DepartmentID)
		if err != nil {
			return nil, notFoundOr(err, "department", *input.DepartmentID)
		}
		if dept.TenantID != actor.TenantID {
			return nil, apperrors.NewNotFound("department", map[string]any{"id": *input.DepartmentID})
		}
		if !dept.IsActive {
			return nil, apperrors.NewConflict("department inactive", map[string]any{"department_id": dept.ID})
		}
	} else {
		input.DepartmentID = nil
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	staff := &domain.StaffMember{
		TenantID:     actor.TenantID,
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.TrimSpace(input.Email),
		PasswordHash: hash,
		Role:         input.Role,
		DepartmentID: input.DepartmentID,
		Active:       true,
	}
	if err := s.staff.Create(ctx, staff); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("staff email already exists", map[string]any{"email": input.Email})
		}
		return nil, apperrors.MapError(err)
	}
	return staff, nil
}

// ListStaffMembers lists the tenant's staff with filters.
func (s *StaffService) ListStaffMembers(ctx context.Context, actor Actor, filters StaffListFilters) ([]domain.StaffMember, error) {
	return s.staff.List(ctx, repository.StaffFilter{
		TenantID:     actor.TenantID,
		Role:         filters.Role,
		DepartmentID: filters.DepartmentID,
		Active:       filters.Active,
		Limit:        filters.Limit,
		Offset:       filters.Offset,
	})
}

// SetStaffActive enables or disables a staff account. Disabled agents stop receiving
// automatic assignments and can no longer log in.
func (s *StaffService) SetStaffActive(ctx context.Context, actor Actor, staffID string, active bool) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	staff, err := s.staff.GetByID(ctx, staffID)
	if err != nil {
		return nil, notFoundOr(err, "staff member", staffID)
	}
	if staff.TenantID != actor.TenantID {
		return nil, apperrors.NewNotFound("staff member", map[string]any{"id": staffID})
	}
	staff.Active = active
	if err := s.staff.Update(ctx, staff); err != nil {
		return nil, notFoundOr(err, "staff member", staffID)
	}
	return staff, nil
}

// Workload returns the number of open tickets assigned to a staff member of the actor's tenant.
func (s *StaffService) Workload(ctx context.Context, actor Actor, staffID string) (int, error) {
	staff, err := s.staff.GetByID(ctx, staffID)
	if err != nil {
		return 0, notFoundOr(err, "staff member", staffID)
	}
	if staff.TenantID != actor.TenantID {
		return 0, apperrors.NewNotFound("staff member", map[string]any{"id": staffID})
	}
	return s.tickets.CountAssignedTo(ctx, staff.ID)
}

// BootstrapAdmin creates the first ADMIN account of a tenant. It does nothing and reports
// false once the tenant has any staff member.
func (s *StaffService) BootstrapAdmin(ctx context.Context, tenantID, email, password string) (*domain.StaffMember, bool, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, false, apperrors.NewValidationError("bootstrap tenant is required", map[string]any{"tenant_id": "required"})
	}
	existing, err := s.staff.List(ctx, repository.StaffFilter{TenantID: tenantID, Limit: 1})
	if err != nil {
		return nil, false, err
	}
	if len(existing) > 0 {
		return nil, false, nil
	}
	system := Actor{Type: domain.ActorTypeStaff, TenantID: tenantID, Role: domain.StaffRoleAdmin}
	admin, err := s.CreateStaffMember(ctx, system, StaffInput{
		Name:     "Administrator",
		Email:    email,
		Password: password,
		Role:     domain.StaffRoleAdmin,
	})
	if err != nil {
		return nil, false, err
	}
	return admin, true, nil
}
