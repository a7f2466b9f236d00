package replay

import (
	"context"

	"github.com/coregx/replay/model"
)

// NotificationService defines an optional interface for surfacing replay
// events (delivery failures, dead-lettered records) to external systems.
//
// Implementations might send emails, Slack messages, or feed monitoring
// counters.
type NotificationService interface {
	// NotifyDeliveryFailure is called after every failed dispatch attempt,
	// before the record is rescheduled or dead-lettered.
	NotifyDeliveryFailure(ctx context.Context, record model.MessageRecord, err error) error

	// NotifyDeadLettered is called when a record exhausts its retry budget.
	NotifyDeadLettered(ctx context.Context, record model.MessageRecord) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
// Use this when notifications are not needed.
type NoOpNotificationService struct{}

// NotifyDeliveryFailure does nothing.
func (n *NoOpNotificationService) NotifyDeliveryFailure(_ context.Context, _ model.MessageRecord, _ error) error {
	return nil
}

// NotifyDeadLettered does nothing.
func (n *NoOpNotificationService) NotifyDeadLettered(_ context.Context, _ model.MessageRecord) error {
	return nil
}

// LoggingNotificationService is a simple implementation that logs notifications.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a new LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifyDeliveryFailure logs the failed attempt.
func (n *LoggingNotificationService) NotifyDeliveryFailure(_ context.Context, record model.MessageRecord, err error) error {
	n.logger.Warnf("Delivery failed: id=%s, subject=%s, retry_count=%d, error=%v",
		record.ID, record.Subject, record.RetryCount, err)
	return nil
}

// NotifyDeadLettered logs the dead-lettered record.
func (n *LoggingNotificationService) NotifyDeadLettered(_ context.Context, record model.MessageRecord) error {
	n.logger.Warnf("Message dead-lettered: id=%s, subject=%s, retry_count=%d, last_error=%s",
		record.ID, record.Subject, record.RetryCount, record.ErrorMessage.String)
	return nil
}
