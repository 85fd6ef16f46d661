package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/tuition_scheduler/internal/errs"
	"github.com/Freeeeeet/tuition_scheduler/internal/model"
	"github.com/Freeeeeet/tuition_scheduler/internal/notify"
	"github.com/Freeeeeet/tuition_scheduler/internal/payment"
	"github.com/Freeeeeet/tuition_scheduler/internal/schedule"
	"github.com/Freeeeeet/tuition_scheduler/internal/store"
)

// maxGenerateDays предел диапазона развёртки доступности
const maxGenerateDays = 366

// Options политика бронирования
type Options struct {
	// BookingWindowMonths на сколько месяцев вперёд создаются слоты регулярных занятий
	BookingWindowMonths int
	// OpenEndedMonths горизонт для студентов без даты окончания обучения
	OpenEndedMonths int
	Retry           RetryPolicy
	// Location зона, в которой определяется "сегодня"
	Location      *time.Location
	NotifyTimeout time.Duration
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BookingWindowMonths <= 0 {
		o.BookingWindowMonths = schedule.DefaultBookingWindowMonths
	}
	if o.OpenEndedMonths <= 0 {
		o.OpenEndedMonths = schedule.DefaultOpenEndedMonths
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// BookingService единственное место, где меняются слоты, регулярные занятия и оплаты.
// Каждая операция - одна транзакция с проверкой пересечений внутри неё.
type BookingService struct {
	tx        txRunner
	conflicts ConflictDetector
	notifier  *dispatcher
	gateway   payment.Gateway
	opts      Options
	logger    *zap.Logger
}

func NewBookingService(
	st store.Store,
	notifier notify.Notifier,
	gateway payment.Gateway,
	opts Options,
	logger *zap.Logger,
) *BookingService {
	opts = opts.withDefaults()
	return &BookingService{
		tx:       newTxRunner(st, opts.Retry, logger),
		notifier: newDispatcher(notifier, opts.NotifyTimeout, logger),
		gateway:  gateway,
		opts:     opts,
		logger:   logger,
	}
}

// WaitNotifications дожидается фоновой отправки уведомлений
func (s *BookingService) WaitNotifications() {
	s.notifier.wait()
}

func (s *BookingService) now() time.Time {
	return s.opts.Now()
}

// today сегодняшняя дата в зоне сервиса
func (s *BookingService) today() time.Time {
	return schedule.DateOf(s.opts.Now(), s.opts.Location)
}

// requireUser загружает активного пользователя с нужной ролью
func requireUser(ctx context.Context, tx store.Tx, id int64, role model.Role) (*model.User, error) {
	user, err := tx.Users().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", role, err)
	}
	if user == nil || user.Role != role {
		return nil, errs.NotFound(string(role)+" not found").Arg("user_id", id)
	}
	if !user.IsActive {
		return nil, errs.State(string(role)+" is not active").Arg("user_id", id)
	}
	return user, nil
}

func getSlot(ctx context.Context, tx store.Tx, id int64) (*model.TimeSlot, error) {
	slot, err := tx.Slots().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return nil, errs.NotFound("slot not found").Arg("slot_id", id)
	}
	return slot, nil
}

// slotDraft разобранный элемент пакета ручного создания
type slotDraft struct {
	index     int
	tutorID   int64
	studentID *int64
	date      time.Time
	interval  schedule.Interval
	status    model.SlotStatus
	payout    int64
}

func (s *BookingService) parseDraft(i int, req CreateSlotRequest, today time.Time) (slotDraft, error) {
	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		return slotDraft{}, err
	}
	iv, err := schedule.ParseRange(req.StartTime, req.EndTime)
	if err != nil {
		return slotDraft{}, err
	}
	if date.Before(today) {
		return slotDraft{}, errs.Validation("slot date is in the past").Arg("index", i).Arg("date", req.Date)
	}

	status := req.Status
	if status == "" {
		status = model.SlotStatusAvailable
		if req.StudentID != nil {
			status = model.SlotStatusBooked
		}
	}

	switch {
	case status == model.SlotStatusBooked && req.StudentID == nil:
		return slotDraft{}, errs.Validation("booked slot requires a student").Arg("index", i)
	case status == model.SlotStatusAvailable && req.StudentID != nil:
		return slotDraft{}, errs.Validation("available slot cannot have a student").Arg("index", i)
	}

	return slotDraft{
		index:     i,
		tutorID:   req.TutorID,
		studentID: req.StudentID,
		date:      date,
		interval:  iv,
		status:    status,
		payout:    req.PayoutAmount,
	}, nil
}

// CreateSlots создаёт пакет слотов: либо все, либо ни одного.
// Каждый слот проверяется с учётом уже вставленных слотов этого же пакета.
func (s *BookingService) CreateSlots(ctx context.Context, actor model.Actor, req CreateSlotsRequest) (CreateSlotsResponse, error) {
	if err := validateRequest(req); err != nil {
		return CreateSlotsResponse{}, err
	}

	// Разбираем всё до открытия транзакции
	today := s.today()
	drafts := make([]slotDraft, 0, len(req.Slots))
	var keys []string
	for i, item := range req.Slots {
		if !actor.IsAdmin() && !actor.Is(item.TutorID) {
			return CreateSlotsResponse{}, errs.State("only the tutor or an administrator can create slots").
				Arg("index", i).
				Arg("actor_id", actor.UserID)
		}
		d, err := s.parseDraft(i, item, today)
		if err != nil {
			return CreateSlotsResponse{}, err
		}
		drafts = append(drafts, d)
		keys = append(keys, lockKeys(d.date, d.tutorID, d.studentID)...)
	}

	var (
		created []*model.TimeSlot
		box     *outbox
	)

	err := s.tx.run(ctx, "create_slots", func(ctx context.Context, tx store.Tx) error {
		created = created[:0]
		box = &outbox{}

		if err := tx.Slots().Lock(ctx, keys...); err != nil {
			return err
		}

		users := map[int64]*model.User{}
		load := func(id int64, role model.Role) (*model.User, error) {
			if u, ok := users[id]; ok {
				return u, nil
			}
			u, err := requireUser(ctx, tx, id, role)
			if err != nil {
				return nil, err
			}
			users[id] = u
			return u, nil
		}

		for _, d := range drafts {
			tutor, err := load(d.tutorID, model.RoleTutor)
			if err != nil {
				return withIndex(err, d.index)
			}

			var student *model.User
			if d.studentID != nil {
				if student, err = load(*d.studentID, model.RoleStudent); err != nil {
					return withIndex(err, d.index)
				}
			}

			// Проверка видит слоты, вставленные ранее в этом же пакете
			q := overlapQuery(d.tutorID, d.studentID, d.date, d.interval, nil)
			if err := s.conflicts.Check(ctx, tx, q); err != nil {
				return withIndex(err, d.index)
			}

			existing, err := tx.Slots().FindByWindow(ctx, d.tutorID, d.date, d.interval.Start, d.interval.End)
			if err != nil {
				return fmt.Errorf("find slot by window: %w", err)
			}
			if existing != nil {
				return errs.Conflict("slot window already exists").
					Arg("index", d.index).
					Arg("date", d.date.Format(model.DateLayout)).
					Arg("start_time", existing.StartTime).
					Arg("existing_slot_id", existing.ID)
			}

			slot := &model.TimeSlot{
				TutorID:      d.tutorID,
				StudentID:    d.studentID,
				Date:         d.date,
				StartTime:    schedule.ToTimeString(d.interval.Start),
				EndTime:      schedule.ToTimeString(d.interval.End),
				StartMinutes: d.interval.Start,
				EndMinutes:   d.interval.End,
				Status:       d.status,
				Attendance:   model.AttendanceNone,
				PayoutAmount: d.payout,
				CreatedBy:    actor.UserID,
			}
			if err := tx.Slots().Create(ctx, slot); err != nil {
				return withIndex(err, d.index)
			}
			created = append(created, slot)

			if student != nil {
				box.notify(student, "Lesson booked", lessonLine(tutor, slot))
			}
		}

		box.emit(notify.EventSlotsCreated, map[string]any{"slot_ids": slotIDs(created)})
		return nil
	})
	if err != nil {
		return CreateSlotsResponse{}, err
	}

	ids := slotIDs(created)
	s.logger.Info("Slots created",
		zap.Int64("actor_id", actor.UserID),
		zap.Int("count", len(ids)),
		zap.Int64s("slot_ids", ids))

	s.notifier.send(ctx, box)

	return CreateSlotsResponse{CreatedCount: len(ids), CreatedIDs: ids}, nil
}

// BookSlot бронирует свободный слот для студента
func (s *BookingService) BookSlot(ctx context.Context, actor model.Actor, req BookSlotRequest) (*model.TimeSlot, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if actor.Role == model.RoleStudent && !actor.Is(req.StudentID) {
		return nil, errs.State("students can only book for themselves").Arg("actor_id", actor.UserID)
	}

	today := s.today()
	var (
		slot *model.TimeSlot
		box  *outbox
	)

	err := s.tx.run(ctx, "book_slot", func(ctx context.Context, tx store.Tx) error {
		box = &outbox{}

		var err error
		if slot, err = getSlot(ctx, tx, req.SlotID); err != nil {
			return err
		}
		if slot.Date.Before(today) {
			return errs.State("slot is in the past").Arg("slot_id", slot.ID).Arg("date", slot.DateString())
		}

		tutor, err := requireUser(ctx, tx, slot.TutorID, model.RoleTutor)
		if err != nil {
			return err
		}
		student, err := requireUser(ctx, tx, req.StudentID, model.RoleStudent)
		if err != nil {
			return err
		}

		if err := tx.Slots().Lock(ctx, lockKeys(slot.Date, slot.TutorID, &req.StudentID)...); err != nil {
			return err
		}

		if slot.Status == model.SlotStatusBooked {
			return errs.Conflict("slot is already taken").Arg("slot_id", slot.ID)
		}
		if !schedule.CanTransition(slot.Status, model.SlotStatusBooked) {
			return schedule.Book(slot, req.StudentID)
		}

		iv := schedule.Interval{Start: slot.StartMinutes, End: slot.EndMinutes}
		if err := s.conflicts.Check(ctx, tx, overlapQuery(slot.TutorID, &req.StudentID, slot.Date, iv, &slot.ID)); err != nil {
			return err
		}

		if err := schedule.Book(slot, req.StudentID); err != nil {
			return err
		}
		if err := tx.Slots().Update(ctx, slot); err != nil {
			return fmt.Errorf("update slot: %w", err)
		}

		box.notify(student, "Lesson booked", lessonLine(tutor, slot))
		box.notify(tutor, "New booking", fmt.Sprintf("%s booked %s", student.FullName(), slotLine(slot)))
		box.emit(notify.EventSlotBooked, slotEvent(slot))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Slot booked",
		zap.Int64("slot_id", slot.ID),
		zap.Int64("student_id", req.StudentID),
		zap.Int64("tutor_id", slot.TutorID))

	s.notifier.send(ctx, box)

	return slot, nil
}

// Cancel отменяет слот. Забронированный слот может отменить только его студент
// или администратор, свободный - учитель или администратор. Запись сохраняется.
func (s *BookingService) Cancel(ctx context.Context, actor model.Actor, req CancelRequest) (*model.TimeSlot, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var (
		slot *model.TimeSlot
		box  *outbox
	)

	err := s.tx.run(ctx, "cancel_slot", func(ctx context.Context, tx store.Tx) error {
		box = &outbox{}

		var err error
		if slot, err = getSlot(ctx, tx, req.SlotID); err != nil {
			return err
		}

		switch slot.Status {
		case model.SlotStatusBooked:
			if !actor.IsAdmin() && !slot.BelongsToStudent(actor.UserID) {
				return errs.State("only the assigned student or an administrator can cancel a booked slot").
					Arg("slot_id", slot.ID).
					Arg("actor_id", actor.UserID)
			}
		case model.SlotStatusAvailable:
			if !actor.IsAdmin() && !actor.Is(slot.TutorID) {
				return errs.State("only the tutor or an administrator can withdraw an open slot").
					Arg("slot_id", slot.ID).
					Arg("actor_id", actor.UserID)
			}
		}

		if err := schedule.Cancel(slot, actor.UserID, s.now()); err != nil {
			return err
		}
		if err := tx.Slots().Update(ctx, slot); err != nil {
			return fmt.Errorf("update slot: %w", err)
		}

		tutor, err := tx.Users().GetByID(ctx, slot.TutorID)
		if err != nil {
			return fmt.Errorf("get tutor: %w", err)
		}
		box.notify(tutor, "Lesson cancelled", slotLine(slot))
		if slot.StudentID != nil {
			student, err := tx.Users().GetByID(ctx, *slot.StudentID)
			if err != nil {
				return fmt.Errorf("get student: %w", err)
			}
			box.notify(student, "Lesson cancelled", slotLine(slot))
		}
		box.emit(notify.EventSlotCancelled, slotEvent(slot))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Slot cancelled",
		zap.Int64("slot_id", slot.ID),
		zap.Int64("actor_id", actor.UserID))

	s.notifier.send(ctx, box)

	return slot, nil
}

// Reschedule переносит бронь: старый слот отменяется, новый бронируется в одной транзакции.
// Если новый слот не проходит проверку, старый остаётся забронированным.
func (s *BookingService) Reschedule(ctx context.Context, actor model.Actor, req RescheduleRequest) (RescheduleResponse, error) {
	if err := validateRequest(req); err != nil {
		return RescheduleResponse{}, err
	}

	today := s.today()
	var (
		oldSlot, newSlot *model.TimeSlot
		box              *outbox
	)

	err := s.tx.run(ctx, "reschedule_slot", func(ctx context.Context, tx store.Tx) error {
		box = &outbox{}

		var err error
		if oldSlot, err = getSlot(ctx, tx, req.OldSlotID); err != nil {
			return err
		}
		if newSlot, err = getSlot(ctx, tx, req.NewSlotID); err != nil {
			return err
		}

		if oldSlot.Status != model.SlotStatusBooked {
			return errs.State("only a booked slot can be rescheduled").
				Arg("slot_id", oldSlot.ID).
				Arg("status", oldSlot.Status)
		}
		if !actor.IsAdmin() && !oldSlot.BelongsToStudent(actor.UserID) {
			return errs.State("only the assigned student or an administrator can reschedule").
				Arg("slot_id", oldSlot.ID).
				Arg("actor_id", actor.UserID)
		}

		switch newSlot.Status {
		case model.SlotStatusBooked:
			return errs.Conflict("target slot is already taken").
				Arg("slot_id", newSlot.ID).
				Arg("date", newSlot.DateString()).
				Arg("start_time", newSlot.StartTime).
				Arg("end_time", newSlot.EndTime)
		case model.SlotStatusCompleted, model.SlotStatusCancelled:
			return errs.State("target slot cannot be booked").
				Arg("slot_id", newSlot.ID).
				Arg("status", newSlot.Status)
		}
		if newSlot.Date.Before(today) {
			return errs.State("target slot is in the past").Arg("slot_id", newSlot.ID)
		}

		studentID := *oldSlot.StudentID
		student, err := requireUser(ctx, tx, studentID, model.RoleStudent)
		if err != nil {
			return err
		}
		newTutor, err := requireUser(ctx, tx, newSlot.TutorID, model.RoleTutor)
		if err != nil {
			return err
		}

		if err := tx.Slots().Lock(ctx, lockKeys(newSlot.Date, newSlot.TutorID, &studentID)...); err != nil {
			return err
		}

		// Старый слот исключается: он освобождается этой же транзакцией
		iv := schedule.Interval{Start: newSlot.StartMinutes, End: newSlot.EndMinutes}
		if err := s.conflicts.Check(ctx, tx, overlapQuery(newSlot.TutorID, &studentID, newSlot.Date, iv, &oldSlot.ID)); err != nil {
			return err
		}

		if err := schedule.Cancel(oldSlot, actor.UserID, s.now()); err != nil {
			return err
		}
		if err := tx.Slots().Update(ctx, oldSlot); err != nil {
			return fmt.Errorf("update old slot: %w", err)
		}

		if err := schedule.Book(newSlot, studentID); err != nil {
			return err
		}
		if err := tx.Slots().Update(ctx, newSlot); err != nil {
			return fmt.Errorf("update new slot: %w", err)
		}

		body := fmt.Sprintf("%s moved to %s", slotLine(oldSlot), slotLine(newSlot))
		box.notify(student, "Lesson rescheduled", body)
		box.notify(newTutor, "Lesson rescheduled", body)
		if oldSlot.TutorID != newSlot.TutorID {
			oldTutor, err := tx.Users().GetByID(ctx, oldSlot.TutorID)
			if err != nil {
				return fmt.Errorf("get tutor: %w", err)
			}
			box.notify(oldTutor, "Lesson cancelled", slotLine(oldSlot))
		}
		box.emit(notify.EventSlotRescheduled, map[string]any{
			"old_slot_id": oldSlot.ID,
			"new_slot_id": newSlot.ID,
			"student_id":  studentID,
		})
		return nil
	})
	if err != nil {
		return RescheduleResponse{}, err
	}

	s.logger.Info("Slot rescheduled",
		zap.Int64("old_slot_id", oldSlot.ID),
		zap.Int64("new_slot_id", newSlot.ID),
		zap.Int64("actor_id", actor.UserID))

	s.notifier.send(ctx, box)

	return RescheduleResponse{Old: oldSlot, New: newSlot}, nil
}

// MarkAttendance booked -> completed с отметкой посещаемости. Только учитель слота или администратор.
func (s *BookingService) MarkAttendance(ctx context.Context, actor model.Actor, req MarkAttendanceRequest) (*model.TimeSlot, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var (
		slot *model.TimeSlot
		box  *outbox
	)

	err := s.tx.run(ctx, "mark_attendance", func(ctx context.Context, tx store.Tx) error {
		box = &outbox{}

		var err error
		if slot, err = getSlot(ctx, tx, req.SlotID); err != nil {
			return err
		}
		if !actor.IsAdmin() && !actor.Is(slot.TutorID) {
			return errs.State("attendance can only be marked by the slot's tutor").
				Arg("slot_id", slot.ID).
				Arg("actor_id", actor.UserID)
		}

		if err := schedule.Complete(slot, req.Attendance); err != nil {
			return err
		}
		if err := tx.Slots().Update(ctx, slot); err != nil {
			return fmt.Errorf("update slot: %w", err)
		}

		if slot.StudentID != nil {
			student, err := tx.Users().GetByID(ctx, *slot.StudentID)
			if err != nil {
				return fmt.Errorf("get student: %w", err)
			}
			box.notify(student, "Attendance marked", fmt.Sprintf("%s: %s", slotLine(slot), slot.Attendance))
		}
		box.emit(notify.EventSlotCompleted, slotEvent(slot))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Attendance marked",
		zap.Int64("slot_id", slot.ID),
		zap.String("attendance", string(slot.Attendance)))

	s.notifier.send(ctx, box)

	return slot, nil
}

// UpdateSlotStatus общий вход смены статуса, распределяет по операциям жизненного цикла
func (s *BookingService) UpdateSlotStatus(ctx context.Context, actor model.Actor, req UpdateSlotStatusRequest) (*model.TimeSlot, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	switch req.NewStatus {
	case string(model.AttendanceAttended), string(model.AttendanceMissed):
		if req.AttendanceStatus == "" {
			return nil, errs.Validation("attendanceStatus is required").Arg("new_status", req.NewStatus)
		}
		if string(req.AttendanceStatus) != req.NewStatus {
			return nil, errs.Validation("attendanceStatus does not match newStatus").
				Arg("new_status", req.NewStatus).
				Arg("attendance_status", req.AttendanceStatus)
		}
		return s.MarkAttendance(ctx, actor, MarkAttendanceRequest{SlotID: req.SlotID, Attendance: req.AttendanceStatus})

	case string(model.SlotStatusCompleted):
		if req.AttendanceStatus == "" {
			return nil, errs.Validation("attendanceStatus is required to complete a slot").Arg("slot_id", req.SlotID)
		}
		return s.MarkAttendance(ctx, actor, MarkAttendanceRequest{SlotID: req.SlotID, Attendance: req.AttendanceStatus})
	}

	if req.AttendanceStatus != "" {
		return nil, errs.Validation("attendanceStatus only applies to attendance updates").Arg("new_status", req.NewStatus)
	}

	switch req.NewStatus {
	case string(model.SlotStatusCancelled):
		return s.Cancel(ctx, actor, CancelRequest{SlotID: req.SlotID})
	case string(model.SlotStatusBooked):
		if req.StudentID == nil {
			return nil, errs.Validation("studentId is required to book a slot").Arg("slot_id", req.SlotID)
		}
		return s.BookSlot(ctx, actor, BookSlotRequest{SlotID: req.SlotID, StudentID: *req.StudentID})
	}

	return nil, errs.State("slot cannot return to available").Arg("slot_id", req.SlotID)
}

// GenerateAvailableSlots разворачивает недельную доступность учителя в свободные слоты.
// Уже существующие окна и окна, занятые бронью, пропускаются.
func (s *BookingService) GenerateAvailableSlots(ctx context.Context, actor model.Actor, req GenerateSlotsRequest) (CreateSlotsResponse, error) {
	if err := validateRequest(req); err != nil {
		return CreateSlotsResponse{}, err
	}
	if !actor.IsAdmin() && !actor.Is(req.TutorID) {
		return CreateSlotsResponse{}, errs.State("only the tutor or an administrator can generate slots").Arg("actor_id", actor.UserID)
	}

	from, err := schedule.ParseDate(req.From)
	if err != nil {
		return CreateSlotsResponse{}, err
	}
	to, err := schedule.ParseDate(req.To)
	if err != nil {
		return CreateSlotsResponse{}, err
	}
	if to.Before(from) {
		return CreateSlotsResponse{}, errs.Validation("range end is before start").Arg("from", req.From).Arg("to", req.To)
	}
	if to.Sub(from) > maxGenerateDays*24*time.Hour {
		return CreateSlotsResponse{}, errs.Validation("range is too long").Arg("max_days", maxGenerateDays)
	}
	if today := s.today(); from.Before(today) {
		from = today
	}

	var (
		created []*model.TimeSlot
		box     *outbox
	)

	err = s.tx.run(ctx, "generate_slots", func(ctx context.Context, tx store.Tx) error {
		created = created[:0]
		box = &outbox{}

		if _, err := requireUser(ctx, tx, req.TutorID, model.RoleTutor); err != nil {
			return err
		}

		blocks, err := tx.Availability().ListByOwner(ctx, model.TutorOwner(req.TutorID))
		if err != nil {
			return fmt.Errorf("get availability: %w", err)
		}
		if len(blocks) == 0 {
			return nil
		}

		weekdays := map[time.Weekday]bool{}
		for _, b := range blocks {
			weekdays[b.Weekday] = true
		}
		var keys []string
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			if weekdays[d.Weekday()] {
				keys = append(keys, lockKeys(d, req.TutorID, nil)...)
			}
		}
		if err := tx.Slots().Lock(ctx, keys...); err != nil {
			return err
		}

		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			for _, block := range blocks {
				for w := range schedule.Windows(block, d, req.DurationMinutes) {
					existing, err := tx.Slots().FindByWindow(ctx, req.TutorID, d, w.Start, w.End)
					if err != nil {
						return fmt.Errorf("find slot by window: %w", err)
					}
					if existing != nil {
						continue
					}

					busy, err := s.conflicts.HasConflict(ctx, tx, overlapQuery(req.TutorID, nil, d, w.Interval, nil))
					if err != nil {
						return err
					}
					if busy {
						continue
					}

					slot := &model.TimeSlot{
						TutorID:      req.TutorID,
						Date:         d,
						StartTime:    w.StartTime(),
						EndTime:      w.EndTime(),
						StartMinutes: w.Start,
						EndMinutes:   w.End,
						Status:       model.SlotStatusAvailable,
						Attendance:   model.AttendanceNone,
						CreatedBy:    actor.UserID,
					}
					if err := tx.Slots().Create(ctx, slot); err != nil {
						return err
					}
					created = append(created, slot)
				}
			}
		}

		if len(created) > 0 {
			box.emit(notify.EventSlotsCreated, map[string]any{"tutor_id": req.TutorID, "slot_ids": slotIDs(created)})
		}
		return nil
	})
	if err != nil {
		return CreateSlotsResponse{}, err
	}

	ids := slotIDs(created)
	s.logger.Info("Available slots generated",
		zap.Int64("tutor_id", req.TutorID),
		zap.String("from", from.Format(model.DateLayout)),
		zap.String("to", to.Format(model.DateLayout)),
		zap.Int("count", len(ids)))

	s.notifier.send(ctx, box)

	return CreateSlotsResponse{CreatedCount: len(ids), CreatedIDs: ids}, nil
}

// ListTutorSchedule слоты учителя в диапазоне дат
func (s *BookingService) ListTutorSchedule(ctx context.Context, tutorID int64, from, to time.Time) ([]*model.TimeSlot, error) {
	if to.Before(from) {
		return nil, errs.Validation("range end is before start")
	}

	var slots []*model.TimeSlot
	err := s.tx.run(ctx, "list_tutor_schedule", func(ctx context.Context, tx store.Tx) error {
		if _, err := requireUser(ctx, tx, tutorID, model.RoleTutor); err != nil && !errs.Is(err, errs.KindState) {
			return err
		}
		var err error
		slots, err = tx.Slots().ListByTutor(ctx, tutorID, from, to)
		return err
	})
	return slots, err
}

// ListStudentSlots слоты студента в диапазоне дат
func (s *BookingService) ListStudentSlots(ctx context.Context, studentID int64, from, to time.Time) ([]*model.TimeSlot, error) {
	if to.Before(from) {
		return nil, errs.Validation("range end is before start")
	}

	var slots []*model.TimeSlot
	err := s.tx.run(ctx, "list_student_slots", func(ctx context.Context, tx store.Tx) error {
		if _, err := requireUser(ctx, tx, studentID, model.RoleStudent); err != nil && !errs.Is(err, errs.KindState) {
			return err
		}
		var err error
		slots, err = tx.Slots().ListByStudent(ctx, studentID, from, to)
		return err
	})
	return slots, err
}

// CreateCheckoutOrder оформляет заказ в платёжном шлюзе для студента
func (s *BookingService) CreateCheckoutOrder(ctx context.Context, req CheckoutRequest) (payment.Order, error) {
	if err := validateRequest(req); err != nil {
		return payment.Order{}, err
	}
	if s.gateway == nil {
		return payment.Order{}, errs.Infrastructure("payment gateway is not configured")
	}

	var student *model.User
	err := s.tx.run(ctx, "checkout_student", func(ctx context.Context, tx store.Tx) error {
		var err error
		student, err = requireUser(ctx, tx, req.StudentID, model.RoleStudent)
		return err
	})
	if err != nil {
		return payment.Order{}, err
	}

	order, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		OrderID:     payment.NewOrderID("TUI", s.now()),
		Amount:      req.Amount,
		FirstName:   student.FirstName,
		LastName:    student.LastName,
		Email:       student.Email,
		Description: req.Description,
	})
	if err != nil {
		return payment.Order{}, err
	}

	s.logger.Info("Checkout order created",
		zap.Int64("student_id", student.ID),
		zap.String("order_id", order.OrderID),
		zap.Int64("amount", req.Amount))

	return order, nil
}

func withIndex(err error, index int) error {
	if typed, ok := err.(*errs.Error); ok {
		return typed.Arg("index", index)
	}
	return err
}

func slotIDs(slots []*model.TimeSlot) []int64 {
	ids := make([]int64, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.ID)
	}
	return ids
}

func slotLine(slot *model.TimeSlot) string {
	return fmt.Sprintf("%s %s-%s", slot.DateString(), slot.StartTime, slot.EndTime)
}

func lessonLine(tutor *model.User, slot *model.TimeSlot) string {
	return fmt.Sprintf("%s with %s", slotLine(slot), tutor.FullName())
}

func slotEvent(slot *model.TimeSlot) map[string]any {
	event := map[string]any{
		"slot_id":    slot.ID,
		"tutor_id":   slot.TutorID,
		"date":       slot.DateString(),
		"start_time": slot.StartTime,
		"end_time":   slot.EndTime,
		"status":     slot.Status,
	}
	if slot.StudentID != nil {
		event["student_id"] = *slot.StudentID
	}
	return event
}
