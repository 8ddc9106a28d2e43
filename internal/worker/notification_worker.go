package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/service"
)

// StartNotificationWorker registers notification handlers on the dispatcher.
func StartNotificationWorker(notificationService *service.NotificationService, logger *zap.Logger) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	if logger != nil {
		logger.Info("notification handlers registered")
	}
}
