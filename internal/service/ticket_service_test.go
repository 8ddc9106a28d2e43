package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

func TestCanTransition(t *testing.T) {
	all := []domain.TicketStatus{
		domain.TicketStatusNew, domain.TicketStatusOpen, domain.TicketStatusInProgress,
		domain.TicketStatusPending, domain.TicketStatusResolved, domain.TicketStatusEscalated,
		domain.TicketStatusClosed,
	}
	for _, to := range all {
		assert.False(t, CanTransition(domain.TicketStatusClosed, to), "CLOSED -> %s", to)
		assert.False(t, CanTransition(to, domain.TicketStatusNew), "%s -> NEW", to)
	}
	for _, from := range all[:len(all)-1] {
		assert.True(t, CanTransition(from, domain.TicketStatusClosed), "%s -> CLOSED", from)
	}

	assert.True(t, CanTransition(domain.TicketStatusNew, domain.TicketStatusOpen))
	assert.True(t, CanTransition(domain.TicketStatusEscalated, domain.TicketStatusEscalated))
	assert.True(t, CanTransition(domain.TicketStatusResolved, domain.TicketStatusInProgress))
	assert.False(t, CanTransition(domain.TicketStatusNew, domain.TicketStatusResolved))
	assert.False(t, CanTransition(domain.TicketStatusResolved, domain.TicketStatusOpen))
	assert.False(t, CanTransition(domain.TicketStatusResolved, domain.TicketStatusEscalated))
}

func TestCreateTicketStampsPolicyDeadlines(t *testing.T) {
	f := newFixture(t)
	f.policy(t, nil, domain.TicketPriorityHigh, 2, 8)

	ticket := f.ticket(t, domain.TicketPriorityHigh)

	assert.Equal(t, domain.TicketStatusNew, ticket.Status)
	assert.Equal(t, domain.ApprovalStageNone, ticket.ApprovalStage)
	assert.Regexp(t, `^TCK-[0-9A-F]{8}$`, ticket.Number)
	require.NotNil(t, ticket.SlaDeadline)
	assert.Equal(t, t0.Add(8*time.Hour), *ticket.SlaDeadline)
	assert.Equal(t, t0.Add(2*time.Hour), *ticket.FirstResponseDeadline)

	tracking, err := f.tickets.GetTracking(context.Background(), ticket.ID, f.agent)
	require.NoError(t, err)
	assert.Equal(t, *ticket.SlaDeadline, tracking.ResolutionDeadline)
	assert.False(t, tracking.ResolutionViolated)

	assert.Len(t, f.events.ofType(events.EventTicketCreated), 1)
	assert.Equal(t, 1, f.historyCount(t, ticket.ID))
}

func TestCreateTicketWithoutPolicyHasNoTracking(t *testing.T) {
	f := newFixture(t)

	ticket := f.ticket(t, "")
	assert.Equal(t, domain.TicketPriorityNormal, ticket.Priority)
	assert.Equal(t, domain.TicketSourceWeb, ticket.Source)
	assert.Nil(t, ticket.SlaDeadline)

	_, err := f.tickets.GetTracking(context.Background(), ticket.ID, f.agent)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tickets.CreateTicket(ctx, f.agent, TicketCreateInput{Title: "  "})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.tickets.CreateTicket(ctx, f.agent, TicketCreateInput{Title: "x", Priority: "SOMEDAY"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.tickets.CreateTicket(ctx, f.agent, TicketCreateInput{Title: "x", TenantID: "globex"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	foreign := f.department(t, "globex", "Elsewhere")
	_, err = f.tickets.CreateTicket(ctx, f.agent, TicketCreateInput{Title: "x", DepartmentID: &foreign})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestChangeStatusAppliesTimestamps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t, domain.TicketPriorityNormal)

	f.at(time.Hour)
	ticket, err := f.tickets.ChangeStatus(ctx, ticket.ID, domain.TicketStatusOpen, "looking", f.agent)
	require.NoError(t, err)
	require.NotNil(t, ticket.FirstResponseAt)
	assert.Equal(t, t0.Add(time.Hour), *ticket.FirstResponseAt)
	assert.Equal(t, t0.Add(time.Hour), ticket.LastActivityAt)

	f.at(3 * time.Hour)
	ticket, err = f.tickets.ChangeStatus(ctx, ticket.ID, domain.TicketStatusResolved, "", f.agent)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(3*time.Hour), *ticket.ResolvedAt)

	f.at(5 * time.Hour)
	ticket, err = f.tickets.ChangeStatus(ctx, ticket.ID, domain.TicketStatusClosed, "", f.agent)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(5*time.Hour), *ticket.ClosedAt)
	assert.Equal(t, t0.Add(3*time.Hour), *ticket.ResolvedAt)
	assert.Equal(t, t0.Add(time.Hour), *ticket.FirstResponseAt)

	changes := f.events.ofType(events.EventTicketStatusChanged)
	require.Len(t, changes, 3)
	payload := changes[0].Payload.(events.TicketStatusChangedPayload)
	assert.Equal(t, domain.TicketStatusNew, payload.OldStatus)
	assert.Equal(t, "looking", payload.Comment)
}

func TestChangeStatusRejectsIllegalMoveWithoutWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t, domain.TicketPriorityNormal)

	_, err := f.tickets.ChangeStatus(ctx, ticket.ID, domain.TicketStatusResolved, "", f.agent)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))

	stored, err := f.tickets.GetTicket(ctx, ticket.ID, f.agent)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, stored.Status)
	assert.Equal(t, ticket.Revision, stored.Revision)
	assert.Equal(t, 1, f.historyCount(t, ticket.ID))

	_, err = f.tickets.ChangeStatus(ctx, ticket.ID, "DONE", "", f.agent)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestChangeStatusToSameStatusIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t, domain.TicketPriorityNormal)

	ticket, err := f.tickets.ChangeStatus(ctx, ticket.ID, domain.TicketStatusOpen, "", f.agent)
	require.NoError(t, err)
	revision := ticket.Revision

	ticket, err = f.tickets.ChangeStatus(ctx, ticket.ID, domain.TicketStatusOpen, "", f.agent)
	require.NoError(t, err)
	assert.Equal(t, revision, ticket.Revision)
	assert.Equal(t, 2, f.historyCount(t, ticket.ID))
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t, domain.TicketPriorityNormal)

	f.at(2 * time.Hour)
	closed, err := f.tickets.Close(ctx, ticket.ID, "replaced toner", f.agent)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	assert.Equal(t, "replaced toner", closed.ResolutionSummary)
	assert.Equal(t, t0.Add(2*time.Hour), *closed.ClosedAt)
	assert.Equal(t, t0.Add(2*time.Hour), *closed.ResolvedAt)
	entries := f.historyCount(t, ticket.ID)

	f.at(4 * time.Hour)
	again, err := f.tickets.Close(ctx, ticket.ID, "something else", f.agent)
	require.NoError(t, err)
	assert.Equal(t, *closed.ClosedAt, *again.ClosedAt)
	assert.Equal(t, "replaced toner", again.ResolutionSummary)
	assert.Equal(t, closed.Revision, again.Revision)
	assert.Equal(t, entries, f.historyCount(t, ticket.ID))

	_, err = f.tickets.ChangeStatus(ctx, ticket.ID, domain.TicketStatusOpen, "", f.agent)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
}

func TestAssignToAgentOpensTicketAndCopiesDepartment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	billing := f.department(t, tenant, "Billing")
	biller := f.staffMember(t, "biller@acme.test", domain.StaffRoleAgent, &billing)
	ticket := f.ticket(t, domain.TicketPriorityNormal)

	f.at(30 * time.Minute)
	ticket, err := f.tickets.AssignToAgent(ctx, ticket.ID, biller.ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, biller.ID, *ticket.AssignedAgentID)
	assert.Equal(t, billing, *ticket.DepartmentID)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, t0.Add(30*time.Minute), *ticket.FirstResponseAt)

	assigned := f.events.ofType(events.EventTicketAssigned)
	require.Len(t, assigned, 1)
	assert.False(t, assigned[0].Payload.(events.TicketAssignedPayload).Automatic)
}

func TestAssignToAgentRejectsInvalidAssignees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t, domain.TicketPriorityNormal)

	_, err := f.tickets.AssignToAgent(ctx, ticket.ID, *f.admin.ID, f.manager)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidAssignee))

	idle := f.staffMember(t, "idle@acme.test", domain.StaffRoleAgent, &f.dept)
	idle.Active = false
	require.NoError(t, f.store.Repos().Staff.Update(ctx, idle))
	_, err = f.tickets.AssignToAgent(ctx, ticket.ID, idle.ID, f.manager)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidAssignee))

	outsider := &domain.StaffMember{TenantID: "globex", Email: "x@globex.test", Role: domain.StaffRoleAgent, DepartmentID: &f.dept, Active: true}
	require.NoError(t, f.store.Repos().Staff.Create(ctx, outsider))
	_, err = f.tickets.AssignToAgent(ctx, ticket.ID, outsider.ID, f.manager)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidAssignee))

	_, err = f.tickets.AssignToAgent(ctx, ticket.ID, "missing", f.manager)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = f.tickets.Close(ctx, ticket.ID, "", f.manager)
	require.NoError(t, err)
	_, err = f.tickets.AssignToAgent(ctx, ticket.ID, *f.agent.ID, f.manager)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
}

func TestSatisfactionRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t, domain.TicketPriorityNormal)

	_, err := f.tickets.AddSatisfactionRating(ctx, ticket.ID, 4, "", f.agent)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.tickets.Close(ctx, ticket.ID, "done", f.agent)
	require.NoError(t, err)

	for _, rating := range []int{0, 6} {
		_, err = f.tickets.AddSatisfactionRating(ctx, ticket.ID, rating, "", f.agent)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "rating %d", rating)
	}

	rated, err := f.tickets.AddSatisfactionRating(ctx, ticket.ID, 5, " great ", f.agent)
	require.NoError(t, err)
	assert.Equal(t, 5, *rated.SatisfactionRating)
	assert.Equal(t, "great", rated.SatisfactionFeedback)
	assert.Len(t, f.events.ofType(events.EventTicketRated), 1)
}

func TestUpdatePriorityMayLowerWithoutRetargeting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.policy(t, nil, domain.TicketPriorityUrgent, 1, 4)
	ticket := f.ticket(t, domain.TicketPriorityUrgent)

	updated, err := f.tickets.UpdatePriority(ctx, ticket.ID, domain.TicketPriorityLow, f.manager)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityLow, updated.Priority)
	assert.Equal(t, *ticket.SlaDeadline, *updated.SlaDeadline)

	_, err = f.tickets.UpdatePriority(ctx, ticket.ID, "MEH", f.manager)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestTicketsAreInvisibleAcrossTenants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t, domain.TicketPriorityNormal)
	stranger := StaffActor("someone", "globex", domain.StaffRoleAdmin)

	_, err := f.tickets.GetTicket(ctx, ticket.ID, stranger)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = f.tickets.ChangeStatus(ctx, ticket.ID, domain.TicketStatusOpen, "", stranger)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	listed, err := f.tickets.ListTickets(ctx, stranger, TicketListFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	listed, err = f.tickets.ListTickets(ctx, f.agent, TicketListFilter{Statuses: []domain.TicketStatus{domain.TicketStatusNew}})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestListHistoryNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t, domain.TicketPriorityNormal)

	f.at(time.Hour)
	_, err := f.tickets.ChangeStatus(ctx, ticket.ID, domain.TicketStatusOpen, "", f.agent)
	require.NoError(t, err)

	history, err := f.tickets.ListHistory(ctx, ticket.ID, f.agent, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.ChangeTypeStatus, history[0].ChangeType)
	assert.Equal(t, "OPEN", *history[0].NewValue)
	assert.Equal(t, domain.ChangeTypeCreated, history[1].ChangeType)
	assert.Equal(t, *f.agent.ID, *history[0].ChangedByID)
}

func TestGetTicketByNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t, domain.TicketPriorityNormal)

	found, err := f.tickets.GetTicketByNumber(ctx, strings.ToLower(ticket.Number), f.agent)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, found.ID)

	_, err = f.tickets.GetTicketByNumber(ctx, ticket.Number, StaffActor("someone", "globex", domain.StaffRoleAgent))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = f.tickets.GetTicketByNumber(ctx, "TCK-NOPE", f.agent)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
