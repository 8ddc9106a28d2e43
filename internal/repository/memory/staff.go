package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

type staffRepo struct {
	s *Store
}

func (r *staffRepo) Create(_ context.Context, staff *domain.StaffMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.data.staff {
		if strings.EqualFold(existing.Email, staff.Email) {
			return repository.ErrDuplicate
		}
	}
	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	r.s.stamp(&staff.CreatedAt, &staff.UpdatedAt)
	r.s.data.staff[staff.ID] = *staff
	r.s.mark(tableStaff, staff.ID)
	return nil
}

func (r *staffRepo) Update(_ context.Context, staff *domain.StaffMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.staff[staff.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.stamp(nil, &staff.UpdatedAt)
	r.s.data.staff[staff.ID] = *staff
	r.s.mark(tableStaff, staff.ID)
	return nil
}

func (r *staffRepo) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	s, ok := r.s.data.staff[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *staffRepo) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, s := range r.s.data.staff {
		if strings.EqualFold(s.Email, email) {
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *staffRepo) List(_ context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.StaffMember
	for _, s := range r.s.data.staff {
		if filter.TenantID != "" && s.TenantID != filter.TenantID {
			continue
		}
		if filter.Role != nil && s.Role != *filter.Role {
			continue
		}
		if filter.DepartmentID != nil && !equalPtr(s.DepartmentID, filter.DepartmentID) {
			continue
		}
		if filter.Active != nil && s.Active != *filter.Active {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, repository.Page{Limit: filter.Limit, Offset: filter.Offset}, 50), nil
}

func (r *staffRepo) LeastBusyInDepartment(_ context.Context, departmentID string, limit int) ([]domain.AgentLoad, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var loads []domain.AgentLoad
	for _, s := range r.s.data.staff {
		if !s.Active || !s.Role.CanHoldTickets() || s.DepartmentID == nil || *s.DepartmentID != departmentID {
			continue
		}
		loads = append(loads, domain.AgentLoad{Agent: s, OpenTickets: r.s.countAssignedLocked(s.ID)})
	}
	sort.Slice(loads, func(i, j int) bool {
		a, b := loads[i], loads[j]
		if a.OpenTickets != b.OpenTickets {
			return a.OpenTickets < b.OpenTickets
		}
		if !a.Agent.CreatedAt.Equal(b.Agent.CreatedAt) {
			return a.Agent.CreatedAt.Before(b.Agent.CreatedAt)
		}
		return a.Agent.ID < b.Agent.ID
	})
	if limit <= 0 {
		limit = 1
	}
	if len(loads) > limit {
		loads = loads[:limit]
	}
	return loads, nil
}

type departmentRepo struct {
	s *Store
}

func (r *departmentRepo) Create(_ context.Context, dept *domain.Department) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	r.s.stamp(&dept.CreatedAt, &dept.UpdatedAt)
	r.s.data.departments[dept.ID] = *dept
	r.s.mark(tableDepartments, dept.ID)
	return nil
}

func (r *departmentRepo) GetByID(_ context.Context, id string) (*domain.Department, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.data.departments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r *departmentRepo) ListActive(_ context.Context, tenantID string) ([]domain.Department, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.Department
	for _, d := range r.s.data.departments {
		if d.TenantID == tenantID && d.IsActive {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}
