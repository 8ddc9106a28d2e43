package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// Dependencies bundles the collaborators shared by the lifecycle services.
type Dependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Actor identifies the party performing a change. ID is nil for system actions.
// An empty TenantID lets the actor reach tickets of every tenant.
type Actor struct {
	ID       *string
	Type     domain.ActorType
	TenantID string
	Role     domain.StaffRole
}

// StaffActor builds an actor for an authenticated staff member.
func StaffActor(id, tenantID string, role domain.StaffRole) Actor {
	return Actor{ID: &id, Type: domain.ActorTypeStaff, TenantID: tenantID, Role: role}
}

// SystemActor builds an actor for scheduled or automatic changes.
func SystemActor() Actor {
	return Actor{Type: domain.ActorTypeSystem}
}

func (a Actor) canAccess(ticket *domain.Ticket) bool {
	return a.TenantID == "" || a.TenantID == ticket.TenantID
}

func (a Actor) event() events.Actor {
	return events.Actor{Type: a.Type, StaffID: a.ID}
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew: {
		domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusPending,
		domain.TicketStatusEscalated, domain.TicketStatusClosed,
	},
	domain.TicketStatusOpen: {
		domain.TicketStatusInProgress, domain.TicketStatusPending, domain.TicketStatusResolved,
		domain.TicketStatusEscalated, domain.TicketStatusClosed,
	},
	domain.TicketStatusInProgress: {
		domain.TicketStatusOpen, domain.TicketStatusPending, domain.TicketStatusResolved,
		domain.TicketStatusEscalated, domain.TicketStatusClosed,
	},
	domain.TicketStatusPending: {
		domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusResolved,
		domain.TicketStatusEscalated, domain.TicketStatusClosed,
	},
	domain.TicketStatusEscalated: {
		domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusPending,
		domain.TicketStatusResolved, domain.TicketStatusEscalated, domain.TicketStatusClosed,
	},
	domain.TicketStatusResolved: {
		domain.TicketStatusInProgress, domain.TicketStatusPending, domain.TicketStatusClosed,
	},
	domain.TicketStatusClosed: {},
}

// CanTransition reports whether the status graph allows moving from one status to another.
func CanTransition(from, to domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// engine runs every ticket mutation as load, apply, write, audit inside one transaction
// and dispatches the collected events once the transaction has committed.
type engine struct {
	store      repository.Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func newEngine(deps Dependencies) *engine {
	e := &engine{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Clock,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *engine) clock() time.Time {
	return e.now().UTC()
}

// change accumulates the effects of one operation on one ticket.
type change struct {
	ticket   *domain.Ticket
	tracking *domain.SlaTracking
	actor    Actor
	now      time.Time

	dirty         bool
	trackingDirty bool
	history       []domain.TicketHistory
	events        []events.Event
	transitions   [][2]domain.TicketStatus
	escalations   []events.EscalationTrigger
	approvals     [][2]string
	violations    []string
	assignments   []bool
}

func (c *change) touch() {
	c.dirty = true
	c.ticket.LastActivityAt = c.now
}

func (c *change) record(field string, oldValue, newValue *string, changeType domain.TicketChangeType, comment string) {
	c.history = append(c.history, domain.TicketHistory{
		ID:            uuid.NewString(),
		TicketID:      c.ticket.ID,
		FieldName:     field,
		OldValue:      oldValue,
		NewValue:      newValue,
		ChangeType:    changeType,
		ChangedByType: c.actor.Type,
		ChangedByID:   c.actor.ID,
		Comment:       comment,
		CreatedAt:     c.now,
	})
}

func (c *change) emit(eventType events.EventType, payload any) {
	c.events = append(c.events, events.Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		TicketID:     c.ticket.ID,
		TicketNumber: c.ticket.Number,
		TenantID:     c.ticket.TenantID,
		Actor:        c.actor.event(),
		Timestamp:    c.now,
		Payload:      payload,
	})
}

// transition moves the ticket to status to and applies the timestamp side effects.
// Setting the current status again is a no-op, except for ESCALATED.
func (c *change) transition(to domain.TicketStatus, comment string) error {
	from := c.ticket.Status
	if from == to && to != domain.TicketStatusEscalated {
		return nil
	}
	if !CanTransition(from, to) {
		return apperrors.NewInvalidTransition(string(from), string(to))
	}

	now := c.now
	switch to {
	case domain.TicketStatusOpen:
		if from == domain.TicketStatusNew && c.ticket.FirstResponseAt == nil {
			c.ticket.FirstResponseAt = &now
		}
	case domain.TicketStatusResolved:
		if c.ticket.ResolvedAt == nil {
			c.ticket.ResolvedAt = &now
		}
	case domain.TicketStatusClosed:
		if c.ticket.ClosedAt == nil {
			c.ticket.ClosedAt = &now
		}
		if c.ticket.ResolvedAt == nil {
			c.ticket.ResolvedAt = &now
		}
	}

	c.ticket.Status = to
	c.touch()
	c.record("status", strPtr(string(from)), strPtr(string(to)), domain.ChangeTypeStatus, comment)
	c.emit(events.EventTicketStatusChanged, events.TicketStatusChangedPayload{
		OldStatus: from,
		NewStatus: to,
		Comment:   comment,
	})
	c.transitions = append(c.transitions, [2]domain.TicketStatus{from, to})
	return nil
}

// refreshViolations re-checks the tracking flags against the ticket timestamps.
func (c *change) refreshViolations() []ViolationKind {
	if c.tracking == nil {
		return nil
	}
	kinds := MarkViolationIfBreached(c.ticket, c.tracking)
	if len(kinds) == 0 {
		return nil
	}
	c.trackingDirty = true
	for _, kind := range kinds {
		c.violations = append(c.violations, string(kind))
	}
	c.emit(events.EventSlaViolated, slaPayload(c.ticket, c.tracking))
	return kinds
}

// mutate loads the ticket, lets fn modify it, and persists the ticket, its SLA tracking
// and the audit trail atomically. fn leaving the change clean skips every write.
func (e *engine) mutate(ctx context.Context, ticketID string, actor Actor, fn func(ctx context.Context, repos repository.Repositories, c *change) error) (*domain.Ticket, error) {
	var committed *change
	err := e.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ticket, err := repos.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return notFoundOr(err, "ticket", ticketID)
		}
		if !actor.canAccess(ticket) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		tracking, err := repos.Tracking.GetByTicket(ctx, ticket.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		c := &change{ticket: ticket, tracking: tracking, actor: actor, now: e.clock()}
		if err := fn(ctx, repos, c); err != nil {
			return err
		}
		if !c.dirty && !c.trackingDirty {
			committed = c
			return nil
		}
		if err := e.persist(ctx, repos, c); err != nil {
			return err
		}
		committed = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, committed)
	return committed.ticket, nil
}

func (e *engine) persist(ctx context.Context, repos repository.Repositories, c *change) error {
	c.refreshViolations()
	if c.dirty {
		c.ticket.UpdatedAt = c.now
		if err := repos.Tickets.Update(ctx, c.ticket); err != nil {
			return conflictOr(err, "ticket", c.ticket.ID)
		}
	}
	if c.trackingDirty && c.tracking != nil {
		if err := repos.Tracking.Save(ctx, c.tracking); err != nil {
			return conflictOr(err, "sla tracking", c.ticket.ID)
		}
	}
	for i := range c.history {
		if err := repos.History.Append(ctx, &c.history[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *engine) publish(ctx context.Context, c *change) {
	if c == nil {
		return
	}
	for _, t := range c.transitions {
		e.metrics.RecordTransition(string(t[0]), string(t[1]))
	}
	for _, trigger := range c.escalations {
		e.metrics.RecordEscalation(string(trigger))
	}
	for _, a := range c.approvals {
		e.metrics.RecordApproval(a[0], a[1])
	}
	for _, kind := range c.violations {
		e.metrics.RecordViolation(kind)
	}
	for _, automatic := range c.assignments {
		e.metrics.RecordAssignment(automatic)
	}
	for _, event := range c.events {
		e.publishEvent(ctx, event)
	}
}

func (e *engine) publishEvent(ctx context.Context, event events.Event) {
	if e.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.clock()
	}
	if err := e.dispatcher.Publish(ctx, event); err != nil {
		e.logger.Warn("publish event failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func notFoundOr(err error, resource, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	return err
}

func conflictOr(err error, resource, id string) error {
	if errors.Is(err, repository.ErrRevisionConflict) {
		return apperrors.NewConcurrencyConflict(resource, map[string]any{"id": id})
	}
	return notFoundOr(err, resource, id)
}

func generateTicketNumber() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func strPtr(s string) *string {
	return &s
}

func intPtr(v int) *string {
	return strPtr(strconv.Itoa(v))
}

func optionalPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return strPtr(*s)
}
