package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

type fakeScanner struct {
	mu         sync.Mutex
	reports    []service.ScanReport
	unassigned []domain.Ticket
	scans      int
	announced  []string
}

func (f *fakeScanner) ScanAll(context.Context) ([]service.ScanReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	return f.reports, nil
}

func (f *fakeScanner) AnnounceAtRisk(_ context.Context, ticket domain.Ticket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, ticket.ID)
}

func (f *fakeScanner) Unassigned(context.Context, string) ([]domain.Ticket, error) {
	return f.unassigned, nil
}

type fakeEscalator struct {
	calls    []string
	triggers []events.EscalationTrigger
}

func (f *fakeEscalator) Escalate(_ context.Context, ticketID string, actor service.Actor, trigger events.EscalationTrigger) (*domain.Ticket, error) {
	f.calls = append(f.calls, ticketID)
	f.triggers = append(f.triggers, trigger)
	if actor.Type != domain.ActorTypeSystem {
		return nil, apperrors.NewForbidden("system only")
	}
	return &domain.Ticket{ID: ticketID}, nil
}

type fakeAssigner struct {
	calls []string
}

func (f *fakeAssigner) AutoAssign(_ context.Context, ticketID string, _ service.Actor) (*domain.Ticket, error) {
	f.calls = append(f.calls, ticketID)
	if ticketID == "crowded" {
		return nil, apperrors.NewNoAvailableAgent(nil)
	}
	return &domain.Ticket{ID: ticketID}, nil
}

func strPtr(s string) *string { return &s }

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, server
}

func sampleScanner() *fakeScanner {
	return &fakeScanner{
		reports: []service.ScanReport{{
			TenantID: "acme",
			AtRisk:   []domain.Ticket{{ID: "soon"}},
			Violated: []domain.Ticket{{ID: "late"}, {ID: "late-again", EscalationLevel: 1}},
		}},
		unassigned: []domain.Ticket{
			{ID: "queued", DepartmentID: strPtr("support")},
			{ID: "crowded", DepartmentID: strPtr("support")},
			{ID: "homeless"},
		},
	}
}

func TestRunOnceAppliesFollowUps(t *testing.T) {
	client, _ := newRedis(t)
	scanner, escalator, assigner := sampleScanner(), &fakeEscalator{}, &fakeAssigner{}
	cfg := config.SLAConfig{AutoEscalate: true, AutoAssign: true, RiskWindow: time.Hour}
	w := NewSlaWorker(cfg, scanner, escalator, assigner, client, zap.NewNop())

	require.NoError(t, w.RunOnce(context.Background()))

	assert.Equal(t, []string{"late"}, escalator.calls)
	assert.Equal(t, []events.EscalationTrigger{events.TriggerSlaBreach}, escalator.triggers)
	assert.Equal(t, []string{"queued", "crowded"}, assigner.calls)
	assert.Equal(t, []string{"soon"}, scanner.announced)
}

func TestFollowUpsAreOptIn(t *testing.T) {
	scanner, escalator, assigner := sampleScanner(), &fakeEscalator{}, &fakeAssigner{}
	w := NewSlaWorker(config.SLAConfig{}, scanner, escalator, assigner, nil, nil)

	require.NoError(t, w.RunOnce(context.Background()))
	require.NoError(t, w.RunOnce(context.Background()))

	assert.Empty(t, escalator.calls)
	assert.Empty(t, assigner.calls)
	assert.Equal(t, []string{"soon", "soon"}, scanner.announced)
}

func TestAtRiskNoticeOncePerWindow(t *testing.T) {
	client, server := newRedis(t)
	scanner := sampleScanner()
	w := NewSlaWorker(config.SLAConfig{RiskWindow: time.Hour}, scanner, &fakeEscalator{}, &fakeAssigner{}, client, nil)
	ctx := context.Background()

	require.NoError(t, w.RunOnce(ctx))
	require.NoError(t, w.RunOnce(ctx))
	assert.Equal(t, []string{"soon"}, scanner.announced)

	server.FastForward(61 * time.Minute)
	require.NoError(t, w.RunOnce(ctx))
	assert.Equal(t, []string{"soon", "soon"}, scanner.announced)
}

func TestLeaseKeepsOneSweeper(t *testing.T) {
	client, server := newRedis(t)
	ctx := context.Background()
	scanner := sampleScanner()
	cfg := config.SLAConfig{LeaseTTL: time.Minute}
	w := NewSlaWorker(cfg, scanner, &fakeEscalator{}, &fakeAssigner{}, client, nil)

	require.NoError(t, server.Set(leaseKey, "other-replica"))
	require.NoError(t, w.RunOnce(ctx))
	assert.Equal(t, 0, scanner.scans)
	got, err := server.Get(leaseKey)
	require.NoError(t, err)
	assert.Equal(t, "other-replica", got)

	server.Del(leaseKey)
	require.NoError(t, w.RunOnce(ctx))
	assert.Equal(t, 1, scanner.scans)
	assert.False(t, server.Exists(leaseKey))
}

func TestRunStopsOnCancel(t *testing.T) {
	scanner := sampleScanner()
	w := NewSlaWorker(config.SLAConfig{ScanInterval: 10 * time.Millisecond}, scanner, &fakeEscalator{}, &fakeAssigner{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, func() bool {
		scanner.mu.Lock()
		defer scanner.mu.Unlock()
		return scanner.scans >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
