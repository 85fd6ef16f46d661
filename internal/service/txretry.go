package service

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tuition_scheduler/internal/errs"
	"github.com/Freeeeeet/tuition_scheduler/internal/store"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 50 * time.Millisecond
)

// RetryPolicy повтор транзакции при конфликте блокировок
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// txRunner выполняет единицу работы в транзакции и повторяет её целиком
// при errs.KindContention. Замыкание должно заново читать всё состояние:
// результаты неудачной попытки не используются.
type txRunner struct {
	store  store.Store
	policy RetryPolicy
	logger *zap.Logger
}

func newTxRunner(st store.Store, policy RetryPolicy, logger *zap.Logger) txRunner {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultBaseBackoff
	}
	return txRunner{store: st, policy: policy, logger: logger}
}

func (r txRunner) run(ctx context.Context, op string, fn func(ctx context.Context, tx store.Tx) error) error {
	backoff := retry.WithMaxRetries(uint64(r.policy.MaxAttempts-1), retry.NewExponential(r.policy.BaseDelay))

	attempt := 0
	var lastContention error

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		err := r.store.InTx(ctx, fn)
		if errs.Is(err, errs.KindContention) {
			lastContention = err
			r.logger.Warn("Transaction contention",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		return nil
	case errs.Is(err, errs.KindContention):
		return errs.Contention("storage contention, retries exhausted").
			Arg("op", op).
			Arg("attempts", attempt).
			Wrap(lastContention)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		var typed *errs.Error
		if errors.As(err, &typed) {
			return err
		}
		return errs.Infrastructure("storage operation timed out").Arg("op", op).Wrap(err)
	}

	return err
}
