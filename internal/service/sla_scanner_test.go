package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
)

func resolveAt(t *testing.T, f *fixture, ticketID string, at time.Duration) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	f.at(time.Hour)
	_, err := f.tickets.ChangeStatus(ctx, ticketID, domain.TicketStatusOpen, "", f.agent)
	require.NoError(t, err)
	f.at(at)
	ticket, err := f.tickets.ChangeStatus(ctx, ticketID, domain.TicketStatusResolved, "", f.agent)
	require.NoError(t, err)
	return ticket
}

func TestLateResolutionRaisesViolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.policy(t, nil, domain.TicketPriorityNormal, 4, 24)

	onTime := f.ticket(t, domain.TicketPriorityNormal)
	late := f.ticket(t, domain.TicketPriorityNormal)

	resolveAt(t, f, onTime.ID, 10*time.Hour)
	resolveAt(t, f, late.ID, 30*time.Hour)

	tracking, err := f.tickets.GetTracking(ctx, onTime.ID, f.agent)
	require.NoError(t, err)
	assert.False(t, tracking.ResolutionViolated)
	assert.False(t, tracking.FirstResponseViolated)

	tracking, err = f.tickets.GetTracking(ctx, late.ID, f.agent)
	require.NoError(t, err)
	assert.True(t, tracking.ResolutionViolated)
	assert.False(t, tracking.FirstResponseViolated)

	violations := f.events.ofType(events.EventSlaViolated)
	require.Len(t, violations, 1)
	assert.Equal(t, late.ID, violations[0].TicketID)
	assert.True(t, violations[0].Payload.(events.SlaPayload).ResolutionViolated)
}

func TestViolationFlagsAreOneWay(t *testing.T) {
	deadline := t0.Add(24 * time.Hour)
	tracking := &domain.SlaTracking{
		FirstResponseDeadline: t0.Add(4 * time.Hour),
		ResolutionDeadline:    deadline,
		ResolutionViolated:    true,
	}
	early := t0.Add(time.Hour)
	ticket := &domain.Ticket{FirstResponseAt: &early, ResolvedAt: &early}

	assert.Empty(t, MarkViolationIfBreached(ticket, tracking))
	assert.True(t, tracking.ResolutionViolated)
	assert.False(t, tracking.FirstResponseViolated)

	slow := t0.Add(5 * time.Hour)
	ticket.FirstResponseAt = &slow
	assert.Equal(t, []ViolationKind{ViolationFirstResponse}, MarkViolationIfBreached(ticket, tracking))
	assert.Empty(t, MarkViolationIfBreached(ticket, tracking))
}

func TestScanCreatesMissingTrackingLazily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t, domain.TicketPriorityHigh)
	require.Nil(t, ticket.SlaDeadline)

	f.policy(t, nil, domain.TicketPriorityHigh, 2, 8)
	f.at(time.Hour)

	report, err := f.scanner.Scan(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Evaluated)
	assert.Equal(t, 1, report.TrackingCreated)

	stored, err := f.tickets.GetTicket(ctx, ticket.ID, f.agent)
	require.NoError(t, err)
	require.NotNil(t, stored.SlaDeadline)
	assert.Equal(t, t0.Add(8*time.Hour), *stored.SlaDeadline)

	escalated, err := f.tickets.Escalate(ctx, ticket.ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, *stored.SlaDeadline, *escalated.SlaDeadline)

	tracking, err := f.tickets.GetTracking(ctx, ticket.ID, f.agent)
	require.NoError(t, err)
	assert.True(t, tracking.Escalated)
	assert.Equal(t, 1, tracking.EscalationLevel)

	report, err = f.scanner.Scan(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 0, report.TrackingCreated)
}

func TestScanRaisesFlagsMissedByWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repos := f.store.Repos()
	firstResponse := t0.Add(time.Hour)
	resolved := t0.Add(30 * time.Hour)
	responseDeadline := t0.Add(4 * time.Hour)
	deadline := t0.Add(24 * time.Hour)

	for i := 0; i < 5; i++ {
		ticket := &domain.Ticket{
			Number:                "TCK-LATE" + string(rune('0'+i)),
			TenantID:              tenant,
			Status:                domain.TicketStatusResolved,
			Priority:              domain.TicketPriorityNormal,
			CreatedAt:             t0,
			FirstResponseAt:       &firstResponse,
			ResolvedAt:            &resolved,
			FirstResponseDeadline: &responseDeadline,
			SlaDeadline:           &deadline,
		}
		require.NoError(t, repos.Tickets.Create(ctx, ticket))
		require.NoError(t, repos.Tracking.Save(ctx, &domain.SlaTracking{
			TicketID:              ticket.ID,
			FirstResponseDeadline: responseDeadline,
			ResolutionDeadline:    deadline,
		}))
	}
	f.at(31 * time.Hour)

	report, err := f.scanner.Scan(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Evaluated)
	assert.Equal(t, 5, report.FlagsRaised)
	assert.False(t, report.Truncated)
	assert.Empty(t, report.Violated)
	assert.Len(t, f.events.ofType(events.EventSlaViolated), 5)

	report, err = f.scanner.Scan(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 0, report.FlagsRaised)
}

func TestScanListsAtRiskAndViolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.policy(t, nil, domain.TicketPriorityNormal, 4, 24)
	silent := f.ticket(t, domain.TicketPriorityNormal)
	answered := f.ticket(t, domain.TicketPriorityNormal)
	f.at(time.Hour)
	_, err := f.tickets.ChangeStatus(ctx, answered.ID, domain.TicketStatusOpen, "", f.agent)
	require.NoError(t, err)

	f.at(23 * time.Hour)
	report, err := f.scanner.Scan(ctx, tenant)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{silent.ID, answered.ID}, ids(report.AtRisk))
	assert.Equal(t, []string{silent.ID}, ids(report.Violated))

	reports, err := f.scanner.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, tenant, reports[0].TenantID)

	f.at(25 * time.Hour)
	atRisk, err := f.scanner.AtRisk(ctx, tenant, pageOf(10))
	require.NoError(t, err)
	assert.Empty(t, atRisk)
	violated, err := f.scanner.Violated(ctx, tenant, pageOf(10))
	require.NoError(t, err)
	assert.Len(t, violated, 2)
}

func TestScanReportsTruncation(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.ticket(t, domain.TicketPriorityNormal)
	}
	scanner := NewSlaScanner(f.deps, ScannerConfig{PageSize: 1, MaxPages: 2})

	report, err := scanner.Scan(context.Background(), tenant)
	require.NoError(t, err)
	assert.True(t, report.Truncated)
	assert.Equal(t, 2, report.Evaluated)
}

func ids(tickets []domain.Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.ID)
	}
	return out
}
