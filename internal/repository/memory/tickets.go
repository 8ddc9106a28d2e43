package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

type ticketRepo struct {
	s *Store
}

func (r *ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if _, exists := r.s.data.tickets[ticket.ID]; exists {
		return repository.ErrDuplicate
	}
	for _, existing := range r.s.data.tickets {
		if existing.Number == ticket.Number {
			return repository.ErrDuplicate
		}
	}
	ticket.Revision = 1
	r.s.data.tickets[ticket.ID] = *ticket
	r.s.mark(tableTickets, ticket.ID)
	return nil
}

func (r *ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.data.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Revision != ticket.Revision {
		return repository.ErrRevisionConflict
	}
	ticket.Revision++
	r.s.data.tickets[ticket.ID] = *ticket
	r.s.mark(tableTickets, ticket.ID)
	return nil
}

func (r *ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.data.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r *ticketRepo) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, t := range r.s.data.tickets {
		if t.Number == number {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *ticketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	matches := r.collect(func(t domain.Ticket) bool {
		if filter.TenantID != "" && t.TenantID != filter.TenantID {
			return false
		}
		if filter.DepartmentID != nil && !equalPtr(t.DepartmentID, filter.DepartmentID) {
			return false
		}
		if filter.AssigneeID != nil && !equalPtr(t.AssignedAgentID, filter.AssigneeID) {
			return false
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
			return false
		}
		if len(filter.Priorities) > 0 && !slices.Contains(filter.Priorities, t.Priority) {
			return false
		}
		return true
	})
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].LastActivityAt.After(matches[j].LastActivityAt)
	})
	return paginate(matches, repository.Page{Limit: filter.Limit, Offset: filter.Offset}, 20), nil
}

func (r *ticketRepo) FindActive(_ context.Context, tenantID string, page repository.Page) ([]domain.Ticket, error) {
	matches := r.collect(func(t domain.Ticket) bool {
		return t.TenantID == tenantID && t.Status != domain.TicketStatusClosed
	})
	sortByCreated(matches)
	return paginate(matches, page, 100), nil
}

func (r *ticketRepo) FindAtRisk(_ context.Context, tenantID string, now, riskTime time.Time, page repository.Page) ([]domain.Ticket, error) {
	matches := r.collect(func(t domain.Ticket) bool {
		return t.TenantID == tenantID && t.Status.IsActive() && t.SlaDeadline != nil &&
			t.SlaDeadline.After(now) && !t.SlaDeadline.After(riskTime)
	})
	sortByDeadline(matches)
	return paginate(matches, page, 100), nil
}

func (r *ticketRepo) FindViolated(_ context.Context, tenantID string, now time.Time, page repository.Page) ([]domain.Ticket, error) {
	matches := r.collect(func(t domain.Ticket) bool {
		if t.TenantID != tenantID || !t.Status.IsActive() {
			return false
		}
		responseMissed := t.FirstResponseDeadline != nil && t.FirstResponseDeadline.Before(now) && t.FirstResponseAt == nil
		resolutionMissed := t.SlaDeadline != nil && t.SlaDeadline.Before(now) && t.ResolvedAt == nil
		return responseMissed || resolutionMissed
	})
	sortByDeadline(matches)
	return paginate(matches, page, 100), nil
}

func (r *ticketRepo) FindUnassigned(_ context.Context, tenantID string, page repository.Page) ([]domain.Ticket, error) {
	matches := r.collect(func(t domain.Ticket) bool {
		return t.TenantID == tenantID && t.AssignedAgentID == nil && t.Status.IsActive()
	})
	sortByCreated(matches)
	return paginate(matches, page, 100), nil
}

func (r *ticketRepo) CountAssignedTo(_ context.Context, agentID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.countAssignedLocked(agentID), nil
}

func (r *ticketRepo) ListTenants(_ context.Context) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	seen := map[string]struct{}{}
	var tenants []string
	for _, t := range r.s.data.tickets {
		if t.Status == domain.TicketStatusClosed {
			continue
		}
		if _, ok := seen[t.TenantID]; ok {
			continue
		}
		seen[t.TenantID] = struct{}{}
		tenants = append(tenants, t.TenantID)
	}
	sort.Strings(tenants)
	return tenants, nil
}

func (r *ticketRepo) collect(keep func(domain.Ticket) bool) []domain.Ticket {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.Ticket
	for _, t := range r.s.data.tickets {
		if keep(t) {
			result = append(result, t)
		}
	}
	return result
}

func (s *Store) countAssignedLocked(agentID string) int {
	count := 0
	for _, t := range s.data.tickets {
		if t.AssignedAgentID != nil && *t.AssignedAgentID == agentID && t.Status.IsActive() {
			count++
		}
	}
	return count
}

func sortByCreated(tickets []domain.Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		if !tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
		}
		return tickets[i].ID < tickets[j].ID
	})
}

func sortByDeadline(tickets []domain.Ticket) {
	deadline := func(t domain.Ticket) time.Time {
		if t.SlaDeadline == nil {
			return time.Time{}
		}
		return *t.SlaDeadline
	}
	sort.Slice(tickets, func(i, j int) bool {
		di, dj := deadline(tickets[i]), deadline(tickets[j])
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return tickets[i].ID < tickets[j].ID
	})
}

func paginate[T any](items []T, page repository.Page, defaultLimit int) []T {
	limit, offset := page.Limit, page.Offset
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
