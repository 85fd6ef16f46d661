package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tuition_scheduler/internal/errs"
	"github.com/Freeeeeet/tuition_scheduler/internal/model"
	"github.com/Freeeeeet/tuition_scheduler/internal/notify"
	"github.com/Freeeeeet/tuition_scheduler/internal/schedule"
	"github.com/Freeeeeet/tuition_scheduler/internal/store"
)

// patternDraft разобранный элемент запроса регулярной брони
type patternDraft struct {
	index    int
	weekday  time.Weekday
	interval schedule.Interval
}

func parsePatterns(reqs []PatternRequest) ([]patternDraft, error) {
	drafts := make([]patternDraft, 0, len(reqs))
	for i, p := range reqs {
		iv, err := schedule.ParseRange(p.StartTime, p.EndTime)
		if err != nil {
			return nil, withIndex(err, i)
		}
		if iv.Minutes() != p.DurationMinutes {
			return nil, errs.Validation("duration does not match start and end time").
				Arg("index", i).
				Arg("duration_minutes", p.DurationMinutes).
				Arg("expected", iv.Minutes())
		}
		drafts = append(drafts, patternDraft{index: i, weekday: time.Weekday(p.DayOfWeek), interval: iv})
	}
	return drafts, nil
}

func (s *BookingService) recurrence(weekday time.Weekday, start time.Time, end *time.Time, today time.Time) schedule.RecurrenceParams {
	return schedule.RecurrenceParams{
		Weekday:         weekday,
		EnrollmentStart: start,
		EnrollmentEnd:   end,
		WindowMonths:    s.opts.BookingWindowMonths,
		OpenEndedMonths: s.opts.OpenEndedMonths,
		Today:           today,
	}
}

// BookRecurring создаёт постоянные занятия и все их слоты до горизонта бронирования.
// Любое пересечение отменяет всю пачку. Оплата привязывается к первому слоту.
func (s *BookingService) BookRecurring(ctx context.Context, actor model.Actor, req BookRecurringRequest) (BookRecurringResponse, error) {
	if err := validateRequest(req); err != nil {
		return BookRecurringResponse{}, err
	}
	if actor.Role == model.RoleStudent && !actor.Is(req.StudentID) {
		return BookRecurringResponse{}, errs.State("students can only book for themselves").Arg("actor_id", actor.UserID)
	}

	drafts, err := parsePatterns(req.Patterns)
	if err != nil {
		return BookRecurringResponse{}, err
	}

	// Подпись проверяем до транзакции
	if req.Payment != nil {
		if s.gateway == nil {
			return BookRecurringResponse{}, errs.Infrastructure("payment gateway is not configured")
		}
		if !s.gateway.VerifySignature(req.Payment.Notification) {
			return BookRecurringResponse{}, errs.Validation("invalid payment signature").
				Arg("order_id", req.Payment.Notification.OrderID)
		}
	}

	// Даты развёртки всегда входят в окно бронирования, поэтому ключи
	// строятся по запросу без чтения данных студента
	today := s.today()
	var keys []string
	for _, d := range drafts {
		for _, date := range schedule.WindowOccurrences(d.weekday, today, s.opts.BookingWindowMonths) {
			keys = append(keys, lockKeys(date, req.TutorID, &req.StudentID)...)
		}
	}

	var (
		resp BookRecurringResponse
		box  *outbox
	)

	err = s.tx.run(ctx, "book_recurring", func(ctx context.Context, tx store.Tx) error {
		resp = BookRecurringResponse{GroupID: uuid.New()}
		box = &outbox{}

		// Блокировки берутся до любого чтения, как в CreateSlots
		if err := tx.Slots().Lock(ctx, keys...); err != nil {
			return err
		}

		tutor, err := requireUser(ctx, tx, req.TutorID, model.RoleTutor)
		if err != nil {
			return err
		}
		student, err := requireUser(ctx, tx, req.StudentID, model.RoleStudent)
		if err != nil {
			return err
		}
		if student.EnrollmentFrom == nil {
			return errs.Validation("student has no enrollment start date").Arg("student_id", student.ID)
		}

		// Развёртка дат для каждого паттерна
		dates := make([][]time.Time, len(drafts))
		for i, d := range drafts {
			dates[i] = schedule.ExpandRecurring(s.recurrence(d.weekday, *student.EnrollmentFrom, student.EnrollmentTo, today))
			if len(dates[i]) == 0 {
				return errs.Validation("pattern has no dates within the booking window").
					Arg("index", d.index).
					Arg("weekday", d.weekday.String())
			}
		}

		var paymentID *int64
		if req.Payment != nil {
			if paymentID, err = s.recordPayment(ctx, tx, req.StudentID, req.Payment); err != nil {
				return err
			}
			resp.PaymentID = paymentID
		}

		for i, d := range drafts {
			last := dates[i][len(dates[i])-1]
			pattern := &model.RecurringBookingPattern{
				GroupID:            resp.GroupID,
				TutorID:            req.TutorID,
				StudentID:          req.StudentID,
				Weekday:            d.weekday,
				StartTime:          schedule.ToTimeString(d.interval.Start),
				EndTime:            schedule.ToTimeString(d.interval.End),
				StartMinutes:       d.interval.Start,
				EndMinutes:         d.interval.End,
				DurationMinutes:    d.interval.Minutes(),
				StartDate:          *student.EnrollmentFrom,
				EndDate:            student.EnrollmentTo,
				PaymentID:          paymentID,
				Status:             model.PatternStatusActive,
				CreatedBy:          actor.UserID,
				InitialBatchMonths: s.opts.BookingWindowMonths,
				LastExtendedOn:     &last,
			}
			if err := tx.Patterns().Create(ctx, pattern); err != nil {
				return fmt.Errorf("create recurring pattern: %w", err)
			}
			resp.CreatedRecurringPatternIDs = append(resp.CreatedRecurringPatternIDs, pattern.ID)

			for _, date := range dates[i] {
				q := overlapQuery(req.TutorID, &req.StudentID, date, d.interval, nil)
				if err := s.conflicts.Check(ctx, tx, q); err != nil {
					return withIndex(err, d.index)
				}

				// Оплата только на первом слоте всей пачки
				var slotPayment *int64
				if len(resp.BookedSlotIDs) == 0 {
					slotPayment = paymentID
				}

				slot, err := s.bookOccurrence(ctx, tx, pattern, date, actor.UserID, slotPayment)
				if err != nil {
					return withIndex(err, d.index)
				}
				resp.BookedSlotIDs = append(resp.BookedSlotIDs, slot.ID)
			}

			box.notify(student, "Recurring lessons booked",
				fmt.Sprintf("Every %s %s-%s with %s, %d lessons until %s",
					pattern.Weekday, pattern.StartTime, pattern.EndTime, tutor.FullName(),
					len(dates[i]), last.Format(model.DateLayout)))
			box.notify(tutor, "New recurring student",
				fmt.Sprintf("%s: every %s %s-%s", student.FullName(), pattern.Weekday, pattern.StartTime, pattern.EndTime))
		}

		resp.TotalBookedCount = len(resp.BookedSlotIDs)
		box.emit(notify.EventRecurringBooked, map[string]any{
			"group_id":    resp.GroupID.String(),
			"tutor_id":    req.TutorID,
			"student_id":  req.StudentID,
			"pattern_ids": resp.CreatedRecurringPatternIDs,
			"slot_ids":    resp.BookedSlotIDs,
		})
		return nil
	})
	if err != nil {
		return BookRecurringResponse{}, err
	}

	s.logger.Info("Recurring lessons booked",
		zap.String("group_id", resp.GroupID.String()),
		zap.Int64("tutor_id", req.TutorID),
		zap.Int64("student_id", req.StudentID),
		zap.Int("patterns", len(resp.CreatedRecurringPatternIDs)),
		zap.Int("slots", resp.TotalBookedCount))

	s.notifier.send(ctx, box)

	return resp, nil
}

// recordPayment сохраняет подтверждённую оплату. Один заказ - одна бронь.
func (s *BookingService) recordPayment(ctx context.Context, tx store.Tx, studentID int64, in *PaymentInput) (*int64, error) {
	existing, err := tx.Payments().GetByOrderID(ctx, in.Notification.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if existing != nil {
		return nil, errs.Conflict("payment order already used").
			Arg("order_id", in.Notification.OrderID).
			Arg("payment_id", existing.ID)
	}

	status := model.PaymentStatusPending
	if in.Notification.Settled() {
		status = model.PaymentStatusPaid
	}

	p := &model.Payment{
		OrderID:   in.Notification.OrderID,
		StudentID: studentID,
		Amount:    in.Amount,
		Status:    status,
	}
	if err := tx.Payments().Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	return &p.ID, nil
}

// bookOccurrence бронирует занятие паттерна на дату. Свободный слот с тем же окном
// занимается, иначе создаётся новый забронированный слот.
func (s *BookingService) bookOccurrence(
	ctx context.Context,
	tx store.Tx,
	pattern *model.RecurringBookingPattern,
	date time.Time,
	createdBy int64,
	paymentID *int64,
) (*model.TimeSlot, error) {
	existing, err := tx.Slots().FindByWindow(ctx, pattern.TutorID, date, pattern.StartMinutes, pattern.EndMinutes)
	if err != nil {
		return nil, fmt.Errorf("find slot by window: %w", err)
	}

	if existing != nil {
		if err := schedule.Book(existing, pattern.StudentID); err != nil {
			return nil, err
		}
		existing.RecurringPatternID = &pattern.ID
		if paymentID != nil {
			existing.PaymentID = paymentID
		}
		if err := tx.Slots().Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("update slot: %w", err)
		}
		return existing, nil
	}

	studentID := pattern.StudentID
	slot := &model.TimeSlot{
		TutorID:            pattern.TutorID,
		StudentID:          &studentID,
		Date:               date,
		StartTime:          pattern.StartTime,
		EndTime:            pattern.EndTime,
		StartMinutes:       pattern.StartMinutes,
		EndMinutes:         pattern.EndMinutes,
		Status:             model.SlotStatusBooked,
		Attendance:         model.AttendanceNone,
		CreatedBy:          createdBy,
		RecurringPatternID: &pattern.ID,
		PaymentID:          paymentID,
	}
	if err := tx.Slots().Create(ctx, slot); err != nil {
		return nil, err
	}
	return slot, nil
}

// ExtendPattern продлевает активный паттерн до текущего горизонта бронирования.
// Даты, занятые другими бронями, пропускаются и возвращаются в SkippedDates.
func (s *BookingService) ExtendPattern(ctx context.Context, patternID int64) (ExtendResult, error) {
	today := s.today()
	var (
		result ExtendResult
		box    *outbox
	)

	err := s.tx.run(ctx, "extend_pattern", func(ctx context.Context, tx store.Tx) error {
		result = ExtendResult{PatternID: patternID}
		box = &outbox{}

		pattern, err := tx.Patterns().GetByID(ctx, patternID)
		if err != nil {
			return fmt.Errorf("get recurring pattern: %w", err)
		}
		if pattern == nil {
			return errs.NotFound("recurring pattern not found").Arg("pattern_id", patternID)
		}
		if !pattern.IsActive() {
			return errs.State("recurring pattern is not active").
				Arg("pattern_id", patternID).
				Arg("status", pattern.Status)
		}
		if _, err := requireUser(ctx, tx, pattern.TutorID, model.RoleTutor); err != nil {
			return err
		}
		student, err := requireUser(ctx, tx, pattern.StudentID, model.RoleStudent)
		if err != nil {
			return err
		}

		// Продолжаем со дня после последней созданной даты
		from := today
		if pattern.LastExtendedOn != nil {
			if next := pattern.LastExtendedOn.AddDate(0, 0, 1); next.After(from) {
				from = next
			}
		}

		params := s.recurrence(pattern.Weekday, pattern.StartDate, pattern.EndDate, today)
		horizon := schedule.Horizon(params)

		var dates []time.Time
		for _, d := range schedule.ExpandRecurring(params) {
			if !d.Before(from) {
				dates = append(dates, d)
			}
		}
		if len(dates) == 0 {
			return nil
		}

		var keys []string
		for _, d := range dates {
			keys = append(keys, lockKeys(d, pattern.TutorID, &pattern.StudentID)...)
		}
		if err := tx.Slots().Lock(ctx, keys...); err != nil {
			return err
		}

		iv := schedule.Interval{Start: pattern.StartMinutes, End: pattern.EndMinutes}
		var created []*model.TimeSlot
		for _, d := range dates {
			busy, err := s.conflicts.HasConflict(ctx, tx, overlapQuery(pattern.TutorID, &pattern.StudentID, d, iv, nil))
			if err != nil {
				return err
			}
			if busy {
				result.SkippedDates = append(result.SkippedDates, d.Format(model.DateLayout))
				continue
			}

			slot, err := s.bookOccurrence(ctx, tx, pattern, d, pattern.CreatedBy, nil)
			if err != nil {
				return err
			}
			created = append(created, slot)
		}
		result.CreatedSlotIDs = slotIDs(created)

		pattern.LastExtendedOn = &horizon
		if err := tx.Patterns().Update(ctx, pattern); err != nil {
			return fmt.Errorf("update recurring pattern: %w", err)
		}

		if len(created) > 0 {
			box.notify(student, "Recurring lessons extended",
				fmt.Sprintf("%d more lessons every %s %s-%s", len(created), pattern.Weekday, pattern.StartTime, pattern.EndTime))
			box.emit(notify.EventPatternExtended, map[string]any{
				"pattern_id":    pattern.ID,
				"slot_ids":      result.CreatedSlotIDs,
				"skipped_dates": result.SkippedDates,
			})
		}
		return nil
	})
	if err != nil {
		return ExtendResult{}, err
	}

	for _, d := range result.SkippedDates {
		s.logger.Warn("Skipped conflicting recurring date",
			zap.Int64("pattern_id", patternID),
			zap.String("date", d))
	}
	s.logger.Info("Recurring pattern extended",
		zap.Int64("pattern_id", patternID),
		zap.Int("created", len(result.CreatedSlotIDs)),
		zap.Int("skipped", len(result.SkippedDates)))

	s.notifier.send(ctx, box)

	return result, nil
}

// ExtendActivePatterns продлевает все активные паттерны. Ошибка одного паттерна
// не останавливает остальные.
func (s *BookingService) ExtendActivePatterns(ctx context.Context) (ExtendSummary, error) {
	var patterns []*model.RecurringBookingPattern
	err := s.tx.run(ctx, "list_active_patterns", func(ctx context.Context, tx store.Tx) error {
		var err error
		patterns, err = tx.Patterns().ListActive(ctx)
		return err
	})
	if err != nil {
		return ExtendSummary{}, err
	}

	summary := ExtendSummary{Patterns: len(patterns)}
	for _, p := range patterns {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, err := s.ExtendPattern(ctx, p.ID)
		if err != nil {
			summary.Failed++
			s.logger.Error("Failed to extend recurring pattern",
				zap.Int64("pattern_id", p.ID),
				zap.String("kind", string(errs.KindOf(err))),
				zap.Error(err))
			continue
		}
		summary.Created += len(result.CreatedSlotIDs)
		summary.Skipped += len(result.SkippedDates)
	}

	return summary, nil
}

// SetPatternStatus меняет статус паттерна. inactive - конечный статус:
// будущие забронированные слоты паттерна освобождаются.
func (s *BookingService) SetPatternStatus(ctx context.Context, actor model.Actor, req SetPatternStatusRequest) (*model.RecurringBookingPattern, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	today := s.today()
	var (
		pattern  *model.RecurringBookingPattern
		released []*model.TimeSlot
		box      *outbox
	)

	err := s.tx.run(ctx, "set_pattern_status", func(ctx context.Context, tx store.Tx) error {
		released = released[:0]
		box = &outbox{}

		var err error
		pattern, err = tx.Patterns().GetByID(ctx, req.PatternID)
		if err != nil {
			return fmt.Errorf("get recurring pattern: %w", err)
		}
		if pattern == nil {
			return errs.NotFound("recurring pattern not found").Arg("pattern_id", req.PatternID)
		}
		if !actor.IsAdmin() && !actor.Is(pattern.TutorID) && !actor.Is(pattern.StudentID) {
			return errs.State("only the pattern's tutor, student or an administrator can change it").
				Arg("pattern_id", pattern.ID).
				Arg("actor_id", actor.UserID)
		}
		if pattern.Status == req.Status {
			return nil
		}
		if pattern.Status == model.PatternStatusInactive {
			return errs.State("recurring pattern is inactive").Arg("pattern_id", pattern.ID)
		}

		pattern.Status = req.Status
		if err := tx.Patterns().Update(ctx, pattern); err != nil {
			return fmt.Errorf("update recurring pattern: %w", err)
		}

		if req.Status == model.PatternStatusInactive {
			if released, err = s.releasePatternSlots(ctx, tx, pattern.ID, actor.UserID, today); err != nil {
				return err
			}
		}

		box.emit(notify.EventPatternStatus, map[string]any{
			"pattern_id":        pattern.ID,
			"status":            pattern.Status,
			"released_slot_ids": slotIDs(released),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Recurring pattern status changed",
		zap.Int64("pattern_id", pattern.ID),
		zap.String("status", string(pattern.Status)),
		zap.Int("released", len(released)))

	s.notifier.send(ctx, box)

	return pattern, nil
}

// releasePatternSlots отменяет забронированные слоты паттерна начиная с today
func (s *BookingService) releasePatternSlots(ctx context.Context, tx store.Tx, patternID, by int64, today time.Time) ([]*model.TimeSlot, error) {
	slots, err := tx.Slots().ListByPattern(ctx, patternID)
	if err != nil {
		return nil, fmt.Errorf("get pattern slots: %w", err)
	}
	return s.releaseFuture(ctx, tx, slots, by, today)
}

func (s *BookingService) releaseFuture(ctx context.Context, tx store.Tx, slots []*model.TimeSlot, by int64, today time.Time) ([]*model.TimeSlot, error) {
	var released []*model.TimeSlot
	now := s.now()
	for _, slot := range slots {
		if slot.Status != model.SlotStatusBooked || slot.Date.Before(today) {
			continue
		}
		if err := schedule.Cancel(slot, by, now); err != nil {
			return nil, err
		}
		if err := tx.Slots().Update(ctx, slot); err != nil {
			return nil, fmt.Errorf("update slot: %w", err)
		}
		released = append(released, slot)
	}
	return released, nil
}

// DeactivateStudent выключает студента: его паттерны становятся inactive,
// будущие забронированные слоты освобождаются. Только для администратора.
func (s *BookingService) DeactivateStudent(ctx context.Context, actor model.Actor, studentID int64) (DeactivateResult, error) {
	if !actor.IsAdmin() {
		return DeactivateResult{}, errs.State("only an administrator can deactivate a student").Arg("actor_id", actor.UserID)
	}

	today := s.today()
	var (
		result DeactivateResult
		box    *outbox
	)

	err := s.tx.run(ctx, "deactivate_student", func(ctx context.Context, tx store.Tx) error {
		result = DeactivateResult{}
		box = &outbox{}

		student, err := tx.Users().GetByID(ctx, studentID)
		if err != nil {
			return fmt.Errorf("get student: %w", err)
		}
		if student == nil || !student.IsStudent() {
			return errs.NotFound("student not found").Arg("user_id", studentID)
		}

		if err := tx.Users().SetActive(ctx, studentID, false); err != nil {
			return fmt.Errorf("deactivate student: %w", err)
		}

		patterns, err := tx.Patterns().ListByStudent(ctx, studentID)
		if err != nil {
			return fmt.Errorf("get student patterns: %w", err)
		}
		for _, p := range patterns {
			if p.Status == model.PatternStatusInactive {
				continue
			}
			p.Status = model.PatternStatusInactive
			if err := tx.Patterns().Update(ctx, p); err != nil {
				return fmt.Errorf("update recurring pattern: %w", err)
			}
			result.PatternIDs = append(result.PatternIDs, p.ID)
		}

		slots, err := tx.Slots().ListByStudent(ctx, studentID, today, today.AddDate(100, 0, 0))
		if err != nil {
			return fmt.Errorf("get student slots: %w", err)
		}
		released, err := s.releaseFuture(ctx, tx, slots, actor.UserID, today)
		if err != nil {
			return err
		}
		result.ReleasedSlotIDs = slotIDs(released)

		tutors := map[int64]bool{}
		for _, slot := range released {
			if tutors[slot.TutorID] {
				continue
			}
			tutors[slot.TutorID] = true
			tutor, err := tx.Users().GetByID(ctx, slot.TutorID)
			if err != nil {
				return fmt.Errorf("get tutor: %w", err)
			}
			box.notify(tutor, "Student deactivated", fmt.Sprintf("Lessons with %s were released", student.FullName()))
		}
		box.emit(notify.EventStudentDeactivated, map[string]any{
			"student_id":        studentID,
			"pattern_ids":       result.PatternIDs,
			"released_slot_ids": result.ReleasedSlotIDs,
		})
		return nil
	})
	if err != nil {
		return DeactivateResult{}, err
	}

	s.logger.Info("Student deactivated",
		zap.Int64("student_id", studentID),
		zap.Int("patterns", len(result.PatternIDs)),
		zap.Int("released_slots", len(result.ReleasedSlotIDs)))

	s.notifier.send(ctx, box)

	return result, nil
}
