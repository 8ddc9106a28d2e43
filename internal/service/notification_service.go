package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/events"
)

// NotificationSink receives lifecycle events for delivery outside the process.
type NotificationSink interface {
	Notify(ctx context.Context, event events.Event) error
}

// NotificationService logs lifecycle events and forwards them to the configured sinks.
// Delivery is best-effort: sink failures are logged and never reach the ticket operation.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	sinks      []NotificationSink
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, sinks ...NotificationSink) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		sinks:      sinks,
	}
}

// RegisterHandlers subscribes to every lifecycle event.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	level := n.logger.Info
	if event.Type == events.EventSlaViolated || event.Type == events.EventTicketEscalated {
		level = n.logger.Warn
	}
	level(string(event.Type),
		zap.String("ticket_id", event.TicketID),
		zap.String("ticket_number", event.TicketNumber),
		zap.String("tenant_id", event.TenantID),
		zap.Any("payload", event.Payload))

	for _, sink := range n.sinks {
		if err := sink.Notify(ctx, event); err != nil {
			n.logger.Warn("notification sink failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
	return nil
}
