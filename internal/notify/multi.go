package notify

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Multi рассылает уведомление всем каналам параллельно.
// Возвращает первую ошибку, но дожидается всех.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, to Recipient, subject, body string) error {
	var g errgroup.Group
	for _, n := range m {
		g.Go(func() error { return n.Notify(ctx, to, subject, body) })
	}
	return g.Wait()
}

func (m Multi) Emit(ctx context.Context, event string, payload any) error {
	var g errgroup.Group
	for _, n := range m {
		g.Go(func() error { return n.Emit(ctx, event, payload) })
	}
	return g.Wait()
}
