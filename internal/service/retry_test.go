package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/repository/memory"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// racingStore simulates a concurrent writer: the next n ticket updates find a newer revision.
type racingStore struct {
	repository.Store
	mu      sync.Mutex
	pending int
}

func (s *racingStore) lose(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = n
}

func (s *racingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		s.mu.Lock()
		if s.pending > 0 {
			s.pending--
			repos.Tickets = staleTickets{repos.Tickets}
		}
		s.mu.Unlock()
		return fn(ctx, repos)
	})
}

type staleTickets struct {
	repository.TicketRepository
}

func (staleTickets) Update(context.Context, *domain.Ticket) error {
	return repository.ErrRevisionConflict
}

func newRacingFixture(t *testing.T) (*fixture, *racingStore) {
	var racing *racingStore
	f := newFixtureWithStore(t, memory.NewStore(), func(inner repository.Store) repository.Store {
		racing = &racingStore{Store: inner}
		return racing
	})
	return f, racing
}

func TestStaleWriteReturnsConcurrencyConflict(t *testing.T) {
	f, racing := newRacingFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t, domain.TicketPriorityNormal)

	racing.lose(1)
	_, err := f.tickets.ChangeStatus(ctx, ticket.ID, domain.TicketStatusOpen, "", f.agent)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConcurrencyConflict))

	stored, err := f.tickets.GetTicket(ctx, ticket.ID, f.agent)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, stored.Status)
	assert.Equal(t, 1, f.historyCount(t, ticket.ID))
	assert.Empty(t, f.events.ofType(events.EventTicketStatusChanged))
}

func TestWithRetryRecoversFromConflicts(t *testing.T) {
	f, racing := newRacingFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t, domain.TicketPriorityNormal)
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	racing.lose(2)
	attempts := 0
	err := WithRetry(ctx, cfg, func() error {
		attempts++
		_, err := f.tickets.ChangeStatus(ctx, ticket.ID, domain.TicketStatusOpen, "", f.agent)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	racing.lose(5)
	err = WithRetry(ctx, cfg, func() error {
		_, err := f.tickets.ChangeStatus(ctx, ticket.ID, domain.TicketStatusInProgress, "", f.agent)
		return err
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConcurrencyConflict))
}

func TestWithRetryStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0
	err := WithRetry(context.Background(), DefaultRetryConfig(), func() error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithRetry(ctx, RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Second}, func() error {
		return apperrors.NewConcurrencyConflict("ticket", nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffIsCapped(t *testing.T) {
	assert.Equal(t, 20*time.Millisecond, backoff(0, 20*time.Millisecond, 500*time.Millisecond))
	assert.Equal(t, 80*time.Millisecond, backoff(2, 20*time.Millisecond, 500*time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, backoff(10, 20*time.Millisecond, 500*time.Millisecond))
}
