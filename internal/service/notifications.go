package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/tuition_scheduler/internal/model"
	"github.com/Freeeeeet/tuition_scheduler/internal/notify"
)

const defaultNotifyTimeout = 10 * time.Second

// outbox уведомления, накопленные транзакцией. Отправляются только после commit.
type outbox struct {
	messages []outboxMessage
	events   []outboxEvent
}

type outboxMessage struct {
	to      notify.Recipient
	subject string
	body    string
}

type outboxEvent struct {
	name    string
	payload any
}

func (o *outbox) notify(user *model.User, subject, body string) {
	if user == nil {
		return
	}
	o.messages = append(o.messages, outboxMessage{to: recipient(user), subject: subject, body: body})
}

func (o *outbox) emit(name string, payload any) {
	o.events = append(o.events, outboxEvent{name: name, payload: payload})
}

func (o *outbox) empty() bool {
	return len(o.messages) == 0 && len(o.events) == 0
}

func recipient(u *model.User) notify.Recipient {
	return notify.Recipient{
		UserID:         u.ID,
		Name:           u.FullName(),
		TelegramChatID: u.TelegramChatID,
		Email:          u.Email,
	}
}

// dispatcher отправляет outbox в фоне. Ошибки доставки только логируются.
type dispatcher struct {
	notifier notify.Notifier
	timeout  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func newDispatcher(n notify.Notifier, timeout time.Duration, logger *zap.Logger) *dispatcher {
	if n == nil {
		n = notify.Nop{}
	}
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &dispatcher{notifier: n, timeout: timeout, logger: logger}
}

func (d *dispatcher) send(ctx context.Context, box *outbox) {
	if box == nil || box.empty() {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Notification dispatch panicked", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		for _, m := range box.messages {
			if err := d.notifier.Notify(ctx, m.to, m.subject, m.body); err != nil {
				d.logger.Error("Failed to send notification",
					zap.Int64("user_id", m.to.UserID),
					zap.String("subject", m.subject),
					zap.Error(err))
			}
		}

		for _, e := range box.events {
			if err := d.notifier.Emit(ctx, e.name, e.payload); err != nil {
				d.logger.Error("Failed to emit event",
					zap.String("event", e.name),
					zap.Error(err))
			}
		}
	}()
}

// wait дожидается отправки всех уведомлений
func (d *dispatcher) wait() {
	d.wg.Wait()
}
