package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/tuition_scheduler/internal/errs"
	"github.com/Freeeeeet/tuition_scheduler/internal/model"
	"github.com/Freeeeeet/tuition_scheduler/internal/schedule"
	"github.com/Freeeeeet/tuition_scheduler/internal/store"
)

// AvailabilityService недельное расписание учителей и студентов
type AvailabilityService struct {
	tx        txRunner
	conflicts ConflictDetector
	logger    *zap.Logger
}

func NewAvailabilityService(st store.Store, policy RetryPolicy, logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		tx:     newTxRunner(st, policy, logger),
		logger: logger,
	}
}

func ownerRole(kind model.OwnerKind) model.Role {
	if kind == model.OwnerTutor {
		return model.RoleTutor
	}
	return model.RoleStudent
}

// Replace заменяет всё недельное расписание владельца: удаляет старые блоки
// и вставляет новые в одной транзакции
func (s *AvailabilityService) Replace(ctx context.Context, actor model.Actor, req ReplaceAvailabilityRequest) ([]*model.WeeklyAvailabilityBlock, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	owner := model.Owner{Kind: req.OwnerKind, ID: req.OwnerID}
	if !actor.IsAdmin() && !actor.Is(owner.ID) {
		return nil, errs.State("only the owner or an administrator can edit weekly availability").
			Arg("owner", owner.String()).
			Arg("actor_id", actor.UserID)
	}

	// Разбор и проверка дубликатов до записи
	blocks := make([]*model.WeeklyAvailabilityBlock, 0, len(req.Blocks))
	for i, b := range req.Blocks {
		iv, err := schedule.ParseRange(b.StartTime, b.EndTime)
		if err != nil {
			return nil, withIndex(err, i)
		}
		block := &model.WeeklyAvailabilityBlock{
			Owner:        owner,
			Weekday:      time.Weekday(b.DayOfWeek),
			StartTime:    schedule.ToTimeString(iv.Start),
			EndTime:      schedule.ToTimeString(iv.End),
			StartMinutes: iv.Start,
			EndMinutes:   iv.End,
		}
		for _, prev := range blocks {
			if prev.Weekday == block.Weekday && prev.StartMinutes == block.StartMinutes && prev.EndMinutes == block.EndMinutes {
				return nil, errs.Conflict("duplicate weekly block").
					Arg("index", i).
					Arg("weekday", block.Weekday.String()).
					Arg("start_time", block.StartTime).
					Arg("end_time", block.EndTime)
			}
		}
		blocks = append(blocks, block)
	}

	var deleted int64
	err := s.tx.run(ctx, "replace_availability", func(ctx context.Context, tx store.Tx) error {
		user, err := tx.Users().GetByID(ctx, owner.ID)
		if err != nil {
			return fmt.Errorf("get owner: %w", err)
		}
		if user == nil || user.Role != ownerRole(owner.Kind) {
			return errs.NotFound(string(owner.Kind)+" not found").Arg("user_id", owner.ID)
		}

		if deleted, err = tx.Availability().DeleteByOwner(ctx, owner); err != nil {
			return fmt.Errorf("delete availability: %w", err)
		}
		if err := tx.Availability().CreateMany(ctx, blocks); err != nil {
			return fmt.Errorf("create availability: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Weekly availability replaced",
		zap.String("owner", owner.String()),
		zap.Int64("deleted", deleted),
		zap.Int("created", len(blocks)))

	return blocks, nil
}

// List недельное расписание владельца
func (s *AvailabilityService) List(ctx context.Context, owner model.Owner) ([]*model.WeeklyAvailabilityBlock, error) {
	if !owner.Valid() {
		return nil, errs.Validation("invalid owner").Arg("owner", owner.String())
	}

	var blocks []*model.WeeklyAvailabilityBlock
	err := s.tx.run(ctx, "list_availability", func(ctx context.Context, tx store.Tx) error {
		var err error
		blocks, err = tx.Availability().ListByOwner(ctx, owner)
		return err
	})
	return blocks, err
}

// FreeWindows свободные окна учителя на дату. Если задан студент, окно должно
// быть свободно и у него, а при наличии у студента недельного расписания -
// целиком попадать в один из его блоков.
func (s *AvailabilityService) FreeWindows(ctx context.Context, req FreeWindowsRequest) ([]schedule.Window, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}

	var windows []schedule.Window
	err = s.tx.run(ctx, "free_windows", func(ctx context.Context, tx store.Tx) error {
		windows = windows[:0]

		tutorBlocks, err := tx.Availability().ListByOwner(ctx, model.TutorOwner(req.TutorID))
		if err != nil {
			return fmt.Errorf("get tutor availability: %w", err)
		}

		var studentBlocks []*model.WeeklyAvailabilityBlock
		if req.StudentID != nil {
			if studentBlocks, err = tx.Availability().ListByOwner(ctx, model.StudentOwner(*req.StudentID)); err != nil {
				return fmt.Errorf("get student availability: %w", err)
			}
		}

		for _, block := range tutorBlocks {
			for w := range schedule.Windows(block, date, req.DurationMinutes) {
				if len(studentBlocks) > 0 && !fitsAny(studentBlocks, date.Weekday(), w.Interval) {
					continue
				}
				busy, err := s.conflicts.HasConflict(ctx, tx, overlapQuery(req.TutorID, req.StudentID, date, w.Interval, nil))
				if err != nil {
					return err
				}
				if !busy {
					windows = append(windows, w)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(windows, func(a, b schedule.Window) int { return a.Start - b.Start })
	return windows, nil
}

func fitsAny(blocks []*model.WeeklyAvailabilityBlock, weekday time.Weekday, iv schedule.Interval) bool {
	for _, b := range blocks {
		if b.Weekday == weekday && b.StartMinutes <= iv.Start && iv.End <= b.EndMinutes {
			return true
		}
	}
	return false
}
