package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/repository/memory"
)

const tenant = "acme"

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) ofType(eventType events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store       *memory.Store
	clock       *fakeClock
	events      *recorder
	deps        Dependencies
	tickets     *TicketService
	escalations *EscalationService
	approvals   *ApprovalService
	assignments *AssignmentService
	policies    *SlaPolicyService
	scanner     *SlaScanner

	agent   Actor
	manager Actor
	admin   Actor
	dept    string
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, memory.NewStore())
}

func newFixtureWithStore(t *testing.T, backing *memory.Store, wrap ...func(repository.Store) repository.Store) *fixture {
	t.Helper()
	var store repository.Store = backing
	for _, w := range wrap {
		store = w(store)
	}

	f := &fixture{store: backing, clock: &fakeClock{now: t0}, events: &recorder{}}
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	for _, eventType := range events.AllEventTypes {
		dispatcher.Subscribe(eventType, f.events.handle)
	}
	f.deps = Dependencies{Store: store, Dispatcher: dispatcher, Logger: zap.NewNop(), Clock: f.clock.Now}
	f.escalations = NewEscalationService(f.deps)
	f.tickets = NewTicketService(f.deps, f.escalations)
	f.approvals = NewApprovalService(f.deps)
	f.assignments = NewAssignmentService(f.deps, f.tickets)
	f.policies = NewSlaPolicyService(f.deps)
	f.scanner = NewSlaScanner(f.deps, ScannerConfig{RiskWindow: 2 * time.Hour, PageSize: 2, MaxPages: 10})

	f.dept = f.department(t, tenant, "Support")
	f.agent = f.actorFor(f.staffMember(t, "agent@acme.test", domain.StaffRoleAgent, &f.dept))
	f.manager = f.actorFor(f.staffMember(t, "manager@acme.test", domain.StaffRoleManager, &f.dept))
	f.admin = f.actorFor(f.staffMember(t, "admin@acme.test", domain.StaffRoleAdmin, nil))
	return f
}

func (f *fixture) actorFor(staff *domain.StaffMember) Actor {
	return StaffActor(staff.ID, staff.TenantID, staff.Role)
}

func (f *fixture) department(t *testing.T, tenantID, name string) string {
	t.Helper()
	dept := &domain.Department{TenantID: tenantID, Name: name, IsActive: true}
	require.NoError(t, f.store.Repos().Departments.Create(context.Background(), dept))
	return dept.ID
}

func (f *fixture) staffMember(t *testing.T, email string, role domain.StaffRole, dept *string) *domain.StaffMember {
	t.Helper()
	staff := &domain.StaffMember{TenantID: tenant, Name: email, Email: email, Role: role, DepartmentID: dept, Active: true}
	require.NoError(t, f.store.Repos().Staff.Create(context.Background(), staff))
	return staff
}

func (f *fixture) policy(t *testing.T, dept *string, priority domain.TicketPriority, firstResponseHours, resolutionHours int) *domain.SlaPolicy {
	t.Helper()
	policy, err := f.policies.CreatePolicy(context.Background(), PolicyInput{
		TenantID:               tenant,
		DepartmentID:           dept,
		Priority:               priority,
		FirstResponseTimeHours: firstResponseHours,
		ResolutionTimeHours:    resolutionHours,
	})
	require.NoError(t, err)
	return policy
}

func (f *fixture) ticket(t *testing.T, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.CreateTicket(context.Background(), f.agent, TicketCreateInput{
		DepartmentID: &f.dept,
		Title:        "Printer on fire",
		Priority:     priority,
	})
	require.NoError(t, err)
	return ticket
}

func (f *fixture) at(d time.Duration) {
	f.clock.Set(t0.Add(d))
}

func (f *fixture) historyCount(t *testing.T, ticketID string) int {
	t.Helper()
	history, err := f.store.Repos().History.ListByTicket(context.Background(), ticketID, 1000, 0)
	require.NoError(t, err)
	return len(history)
}

func pageOf(limit int) repository.Page {
	return repository.Page{Limit: limit}
}
