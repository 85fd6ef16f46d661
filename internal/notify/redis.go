package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis публикует события в канал Redis Pub/Sub.
// Личные уведомления не отправляет.
type Redis struct {
	client  publisher
	channel string
	now     func() time.Time
}

// envelope формат сообщения в канале
type envelope struct {
	Event      string    `json:"event"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewRedis подключается к Redis и проверяет соединение
func NewRedis(ctx context.Context, addr, channel string) (*Redis, *redis.Client, error) {
	const op = "notify.NewRedis"

	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Redis{client: client, channel: channel, now: time.Now}, client, nil
}

func (r *Redis) Notify(context.Context, Recipient, string, string) error { return nil }

func (r *Redis) Emit(ctx context.Context, event string, payload any) error {
	const op = "notify.Redis.Emit"

	msg, err := json.Marshal(envelope{Event: event, Payload: payload, OccurredAt: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("%s: marshal %s: %w", op, event, err)
	}

	if err := r.client.Publish(ctx, r.channel, msg).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
