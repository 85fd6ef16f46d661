// Package notify доставляет уведомления участникам и публикует события о бронированиях.
// Вызывается сервисами только после commit; ошибки доставки не влияют на операцию.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Recipient адресат уведомления
type Recipient struct {
	UserID         int64
	Name           string
	TelegramChatID *int64
	Email          string
}

type Notifier interface {
	Notify(ctx context.Context, to Recipient, subject, body string) error
	Emit(ctx context.Context, event string, payload any) error
}

// События, которые публикуют сервисы
const (
	EventSlotsCreated       = "slots.created"
	EventSlotBooked         = "slot.booked"
	EventSlotCancelled      = "slot.cancelled"
	EventSlotRescheduled    = "slot.rescheduled"
	EventSlotCompleted      = "slot.completed"
	EventRecurringBooked    = "recurring.booked"
	EventPatternExtended    = "recurring.extended"
	EventPatternStatus      = "recurring.status_changed"
	EventStudentDeactivated = "student.deactivated"
)

// Log пишет уведомления в лог
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(_ context.Context, to Recipient, subject, body string) error {
	l.logger.Info("Notification",
		zap.Int64("user_id", to.UserID),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}

func (l *Log) Emit(_ context.Context, event string, payload any) error {
	l.logger.Info("Event", zap.String("event", event), zap.Any("payload", payload))
	return nil
}

// Nop ничего не делает
type Nop struct{}

func (Nop) Notify(context.Context, Recipient, string, string) error { return nil }
func (Nop) Emit(context.Context, string, any) error                 { return nil }
