package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/tuition_scheduler/internal/service"
)

// PatternExtender продлевает активные регулярные занятия
type PatternExtender interface {
	ExtendActivePatterns(ctx context.Context) (service.ExtendSummary, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	extender PatternExtender
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler создаёт новый планировщик
func NewScheduler(extender PatternExtender, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		extender: extender,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))

	// Запускаем задачу продления регулярных занятий
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runExtensionTask(ctx)
	}()
}

// Stop останавливает фоновые задачи и дожидается их завершения
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

// runExtensionTask периодически сдвигает горизонт бронирования регулярных занятий
func (s *Scheduler) runExtensionTask(ctx context.Context) {
	// Первый запуск сразу при старте
	s.extend(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.extend(ctx)
		case <-s.stopChan:
			s.logger.Info("Pattern extension task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Pattern extension task cancelled")
			return
		}
	}
}

// extend продлевает все активные регулярные занятия
func (s *Scheduler) extend(ctx context.Context) {
	s.logger.Info("Starting recurring pattern extension")

	summary, err := s.extender.ExtendActivePatterns(ctx)
	if err != nil {
		s.logger.Error("Failed to extend recurring patterns", zap.Error(err))
		return
	}

	s.logger.Info("Recurring pattern extension completed",
		zap.Int("patterns", summary.Patterns),
		zap.Int("created", summary.Created),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
}
