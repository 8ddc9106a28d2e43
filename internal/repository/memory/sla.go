package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

type policyRepo struct {
	s *Store
}

func (r *policyRepo) Create(_ context.Context, policy *domain.SlaPolicy) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if policy.Active {
		for _, existing := range r.s.data.policies {
			if existing.Active && existing.TenantID == policy.TenantID &&
				equalPtr(existing.DepartmentID, policy.DepartmentID) && existing.Priority == policy.Priority {
				return repository.ErrDuplicate
			}
		}
	}
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	r.s.stamp(&policy.CreatedAt, &policy.UpdatedAt)
	r.s.data.policies[policy.ID] = *policy
	r.s.mark(tablePolicies, policy.ID)
	return nil
}

func (r *policyRepo) GetByID(_ context.Context, id string) (*domain.SlaPolicy, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.data.policies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *policyRepo) FindActive(_ context.Context, tenantID string, departmentID *string, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.data.policies {
		if p.Active && p.TenantID == tenantID && p.Priority == priority && equalPtr(p.DepartmentID, departmentID) {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *policyRepo) ListByTenant(_ context.Context, tenantID string, includeInactive bool) ([]domain.SlaPolicy, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.SlaPolicy
	for _, p := range r.s.data.policies {
		if p.TenantID != tenantID || (!includeInactive && !p.Active) {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority < result[j].Priority
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *policyRepo) Deactivate(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.data.policies[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Active = false
	r.s.stamp(nil, &p.UpdatedAt)
	r.s.data.policies[id] = p
	r.s.mark(tablePolicies, id)
	return nil
}

type trackingRepo struct {
	s *Store
}

func (r *trackingRepo) GetByTicket(_ context.Context, ticketID string) (*domain.SlaTracking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.data.tracking[ticketID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r *trackingRepo) Save(_ context.Context, tracking *domain.SlaTracking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, exists := r.s.data.tracking[tracking.TicketID]
	if tracking.Revision == 0 {
		if exists {
			return repository.ErrDuplicate
		}
		if tracking.ID == "" {
			tracking.ID = uuid.NewString()
		}
		r.s.stamp(&tracking.CreatedAt, &tracking.UpdatedAt)
		tracking.Revision = 1
		r.s.data.tracking[tracking.TicketID] = *tracking
		r.s.mark(tableTracking, tracking.TicketID)
		return nil
	}
	if !exists || stored.Revision != tracking.Revision {
		return repository.ErrRevisionConflict
	}
	r.s.stamp(nil, &tracking.UpdatedAt)
	tracking.Revision++
	r.s.data.tracking[tracking.TicketID] = *tracking
	r.s.mark(tableTracking, tracking.TicketID)
	return nil
}

type historyRepo struct {
	s *Store
}

func (r *historyRepo) Append(_ context.Context, history *domain.TicketHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	r.s.data.history = append(r.s.data.history, *history)
	if r.s.journal != nil {
		r.s.journal.history = append(r.s.journal.history, *history)
	}
	return nil
}

func (r *historyRepo) ListByTicket(_ context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.TicketHistory
	for i := len(r.s.data.history) - 1; i >= 0; i-- {
		if h := r.s.data.history[i]; h.TicketID == ticketID {
			result = append(result, h)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, repository.Page{Limit: limit, Offset: offset}, 100), nil
}
