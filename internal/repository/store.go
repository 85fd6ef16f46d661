package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tuition_scheduler/internal/repository/base"
	"github.com/Freeeeeet/tuition_scheduler/internal/store"
)

// beginner открывает транзакции: *pgxpool.Pool или его заменитель в тестах
type beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Store хранилище поверх PostgreSQL. Каждая операция идёт в SERIALIZABLE транзакции.
type Store struct {
	db     beginner
	logger *zap.Logger
}

func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{db: pool, logger: logger}
}

// NewPool открывает пул соединений и проверяет доступность базы
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// InTx выполняет fn в транзакции. Ошибки драйвера приводятся к errs.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgTx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return base.Classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if rbErr := pgTx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	if err := fn(ctx, newTx(pgTx)); err != nil {
		return base.Classify(err)
	}

	if err := pgTx.Commit(ctx); err != nil {
		return base.Classify(fmt.Errorf("commit transaction: %w", err))
	}

	return nil
}

// tx набор репозиториев, привязанных к одной транзакции
type tx struct {
	users        *UserRepository
	slots        *SlotRepository
	availability *AvailabilityRepository
	patterns     *RecurringPatternRepository
	payments     *PaymentRepository
}

func newTx(q base.Querier) *tx {
	return &tx{
		users:        NewUserRepository(q),
		slots:        NewSlotRepository(q),
		availability: NewAvailabilityRepository(q),
		patterns:     NewRecurringPatternRepository(q),
		payments:     NewPaymentRepository(q),
	}
}

func (t *tx) Users() store.UserRepository                { return t.users }
func (t *tx) Slots() store.SlotRepository                { return t.slots }
func (t *tx) Availability() store.AvailabilityRepository { return t.availability }
func (t *tx) Patterns() store.PatternRepository          { return t.patterns }
func (t *tx) Payments() store.PaymentRepository          { return t.payments }

var _ store.Store = (*Store)(nil)
