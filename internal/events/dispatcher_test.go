package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var calls []string

	d.Subscribe(EventTicketEscalated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("sink down")
	})
	d.Subscribe(EventTicketEscalated, func(_ context.Context, e Event) error {
		calls = append(calls, "second:"+e.TicketID)
		return nil
	})
	d.Subscribe(EventTicketRated, func(context.Context, Event) error {
		calls = append(calls, "unrelated")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketEscalated, TicketID: "t-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second:t-1"}, calls)
}

type ctxKey struct{}

func TestPublishDeliversBeforeReturning(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var seen any
	d.Subscribe(EventTicketCreated, func(ctx context.Context, _ Event) error {
		seen = ctx.Value(ctxKey{})
		return nil
	})

	ctx := context.WithValue(context.Background(), ctxKey{}, "request-7")
	require.NoError(t, d.Publish(ctx, Event{Type: EventTicketCreated, TicketID: "t-2"}))
	assert.Equal(t, "request-7", seen)
}
