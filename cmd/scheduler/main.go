package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Freeeeeet/tuition_scheduler/internal/app"
	"github.com/Freeeeeet/tuition_scheduler/internal/config"
	"github.com/Freeeeeet/tuition_scheduler/internal/notify"
	"github.com/Freeeeeet/tuition_scheduler/internal/payment"
	"github.com/Freeeeeet/tuition_scheduler/internal/repository"
	"github.com/Freeeeeet/tuition_scheduler/internal/repository/memory"
	"github.com/Freeeeeet/tuition_scheduler/internal/service"
	"github.com/Freeeeeet/tuition_scheduler/internal/store"
	"github.com/Freeeeeet/tuition_scheduler/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Scheduler stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting tuition scheduler",
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.StorageDriver),
		zap.String("timezone", cfg.Timezone))

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, closeNotifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	var gateway payment.Gateway
	if cfg.Midtrans.ServerKey != "" {
		gateway = payment.NewMidtrans(cfg.Midtrans.ServerKey, cfg.Midtrans.Production)
		logger.Info("Payment gateway enabled", zap.Bool("production", cfg.Midtrans.Production))
	}

	policy := service.RetryPolicy{MaxAttempts: cfg.Tx.MaxAttempts, BaseDelay: cfg.Tx.BaseBackoff}
	bookings := service.NewBookingService(st, notifier, gateway, service.Options{
		BookingWindowMonths: cfg.Booking.WindowMonths,
		OpenEndedMonths:     cfg.Booking.OpenEndedMonths,
		Retry:               policy,
		Location:            cfg.Location(),
		NotifyTimeout:       cfg.Notify.Timeout,
	}, logger)
	defer bookings.WaitNotifications()

	scheduler := app.NewScheduler(bookings, cfg.Extension.Interval, logger)
	scheduler.Start(ctx)

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	scheduler.Stop()

	return nil
}

// openStore PostgreSQL с миграциями или хранилище в памяти
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	pool, err := repository.NewPool(ctx, cfg.GetDBDSN())
	if err != nil {
		return nil, nil, err
	}

	migrator, err := app.NewMigrator(pool, migrations.FS, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	defer migrator.Close()

	if err := migrator.Run(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return repository.NewStore(pool, logger), pool.Close, nil
}

// buildNotifier лог всегда, Telegram и Redis если настроены
func buildNotifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (notify.Notifier, func(), error) {
	channels := notify.Multi{notify.NewLog(logger)}
	closers := []func(){}

	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.Token)
		if err != nil {
			return nil, nil, err
		}
		channels = append(channels, tg)
		logger.Info("Telegram notifications enabled")
	}

	if cfg.Redis.Addr != "" {
		events, client, err := notify.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Channel)
		if err != nil {
			return nil, nil, err
		}
		channels = append(channels, events)
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close redis client", zap.Error(err))
			}
		})
		logger.Info("Redis event stream enabled", zap.String("channel", cfg.Redis.Channel))
	}

	return channels, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
