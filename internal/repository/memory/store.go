// Package memory provides an in-process implementation of every repository.
// It backs the test suites and runs the service when no Postgres DSN is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

type dataset struct {
	tickets     map[string]domain.Ticket
	policies    map[string]domain.SlaPolicy
	tracking    map[string]domain.SlaTracking
	history     []domain.TicketHistory
	staff       map[string]domain.StaffMember
	departments map[string]domain.Department
}

func newDataset() *dataset {
	return &dataset{
		tickets:     map[string]domain.Ticket{},
		policies:    map[string]domain.SlaPolicy{},
		tracking:    map[string]domain.SlaTracking{},
		staff:       map[string]domain.StaffMember{},
		departments: map[string]domain.Department{},
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.tickets {
		c.tickets[k] = v
	}
	for k, v := range d.policies {
		c.policies[k] = v
	}
	for k, v := range d.tracking {
		c.tracking[k] = v
	}
	c.history = append([]domain.TicketHistory(nil), d.history...)
	for k, v := range d.staff {
		c.staff[k] = v
	}
	for k, v := range d.departments {
		c.departments[k] = v
	}
	return c
}

// Store is a repository.Store kept entirely in memory.
// Transactions are serialized and work on a private copy of the data. On success only the
// rows they wrote are merged back, so writes made outside the transaction are never lost
// and readers never observe uncommitted rows.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *dataset
	now  func() time.Time
	// journal is set on the private copy handed to a transaction.
	journal *journal
}

type table int

const (
	tableTickets table = iota
	tablePolicies
	tableTracking
	tableStaff
	tableDepartments
)

type journal struct {
	keys    map[table]map[string]struct{}
	history []domain.TicketHistory
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: newDataset(), now: time.Now}
}

// Repos implements repository.Store.
func (s *Store) Repos() repository.Repositories {
	return repository.Repositories{
		Tickets:     &ticketRepo{s: s},
		Policies:    &policyRepo{s: s},
		Tracking:    &trackingRepo{s: s},
		History:     &historyRepo{s: s},
		Staff:       &staffRepo{s: s},
		Departments: &departmentRepo{s: s},
	}
}

// WithinTx implements repository.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	tx := &Store{data: snapshot, now: s.now, journal: &journal{keys: map[table]map[string]struct{}{}}}
	if err := fn(ctx, tx.Repos()); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Store) commit(tx *Store) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for t, keys := range tx.journal.keys {
		for key := range keys {
			switch t {
			case tableTickets:
				s.data.tickets[key] = tx.data.tickets[key]
			case tablePolicies:
				s.data.policies[key] = tx.data.policies[key]
			case tableTracking:
				s.data.tracking[key] = tx.data.tracking[key]
			case tableStaff:
				s.data.staff[key] = tx.data.staff[key]
			case tableDepartments:
				s.data.departments[key] = tx.data.departments[key]
			}
		}
	}
	s.data.history = append(s.data.history, tx.journal.history...)
}

// mark records a written row when s is a transaction copy. Callers hold s.mu.
func (s *Store) mark(t table, key string) {
	if s.journal == nil {
		return
	}
	keys := s.journal.keys[t]
	if keys == nil {
		keys = map[string]struct{}{}
		s.journal.keys[t] = keys
	}
	keys[key] = struct{}{}
}

func (s *Store) stamp(created *time.Time, updated *time.Time) {
	now := s.now().UTC()
	if created != nil && created.IsZero() {
		*created = now
	}
	if updated != nil {
		*updated = now
	}
}
