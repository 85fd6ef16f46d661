package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Freeeeeet/tuition_scheduler/internal/errs"
	"github.com/Freeeeeet/tuition_scheduler/internal/model"
	"github.com/Freeeeeet/tuition_scheduler/internal/notify"
	"github.com/Freeeeeet/tuition_scheduler/internal/schedule"
)

func TestCreateSlots(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	resp, err := e.svc.CreateSlots(ctx, actorOf(e.tutor), CreateSlotsRequest{Slots: []CreateSlotRequest{
		{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "10:00", EndTime: "10:30"},
		{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "10:30", EndTime: "11:00", StudentID: &e.student.ID, PayoutAmount: 150000},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.CreatedCount)
	require.Len(t, resp.CreatedIDs, 2)

	open := e.slot(t, resp.CreatedIDs[0])
	assert.Equal(t, model.SlotStatusAvailable, open.Status)
	assert.Nil(t, open.StudentID)
	assert.Equal(t, 600, open.StartMinutes)
	assert.Equal(t, "10:30", open.EndTime)
	assert.Equal(t, e.tutor.ID, open.CreatedBy)

	assert.Zero(t, open.PayoutAmount)

	booked := e.slot(t, resp.CreatedIDs[1])
	assert.Equal(t, model.SlotStatusBooked, booked.Status)
	assert.Equal(t, int64(150000), booked.PayoutAmount)
	assert.True(t, booked.BelongsToStudent(e.student.ID))

	e.svc.WaitNotifications()
	messages := e.rec.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, e.student.ID, messages[0].To.UserID)
	assert.Equal(t, []string{notify.EventSlotsCreated}, e.rec.EventNames())
}

func TestCreateSlotsBatchIsAtomic(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	existing := e.bookedSlot(t, e.tutor, e.student2, "2024-01-02", "10:00", "10:30")

	_, err := e.svc.CreateSlots(ctx, actorOf(e.tutor), CreateSlotsRequest{Slots: []CreateSlotRequest{
		{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "08:00", EndTime: "08:30"},
		{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "08:30", EndTime: "09:00"},
		{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "10:15", EndTime: "10:45"},
		{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "11:00", EndTime: "11:30"},
		{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "11:30", EndTime: "12:00"},
	}})
	requireKind(t, err, errs.KindConflict)

	var typed *errs.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, 2, typed.Args()["index"])
	assert.Equal(t, existing, typed.Args()["existing_slot_id"])

	slots := e.store.AllSlots()
	require.Len(t, slots, 1)
	assert.Equal(t, existing, slots[0].ID)
}

func TestCreateSlotsChecksBatchMembersProgressively(t *testing.T) {
	e := newTestEnv(t)

	// у одного студента два пересекающихся урока у разных учителей
	_, err := e.svc.CreateSlots(context.Background(), e.admin, CreateSlotsRequest{Slots: []CreateSlotRequest{
		{TutorID: e.tutor.ID, Date: "2024-01-03", StartTime: "15:00", EndTime: "16:00", StudentID: &e.student.ID},
		{TutorID: e.tutor2.ID, Date: "2024-01-03", StartTime: "15:30", EndTime: "16:30", StudentID: &e.student.ID},
	}})
	requireKind(t, err, errs.KindConflict)

	var typed *errs.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, "student", typed.Args()["party"])
	assert.Equal(t, 1, typed.Args()["index"])
	assert.Empty(t, e.store.AllSlots())
}

func TestCreateSlotsRejectsIdenticalWindow(t *testing.T) {
	e := newTestEnv(t)
	e.openSlot(t, e.tutor, "2024-01-02", "10:00", "11:00")

	_, err := e.svc.CreateSlots(context.Background(), actorOf(e.tutor), CreateSlotsRequest{Slots: []CreateSlotRequest{
		{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "10:00", EndTime: "11:00"},
	}})
	requireKind(t, err, errs.KindConflict)
	assert.Len(t, e.store.AllSlots(), 1)
}

func TestCreateSlotsRequiresTutorOrAdmin(t *testing.T) {
	e := newTestEnv(t)

	for _, actor := range []model.Actor{actorOf(e.student), actorOf(e.tutor2)} {
		_, err := e.svc.CreateSlots(context.Background(), actor, CreateSlotsRequest{Slots: []CreateSlotRequest{
			{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "10:00", EndTime: "10:30", StudentID: &e.student.ID},
		}})
		requireKind(t, err, errs.KindState)
	}
	assert.Empty(t, e.store.AllSlots())

	_, err := e.svc.CreateSlots(context.Background(), e.admin, CreateSlotsRequest{Slots: []CreateSlotRequest{
		{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "10:00", EndTime: "10:30", StudentID: &e.student.ID},
	}})
	require.NoError(t, err)
}

func TestCreateSlotsValidation(t *testing.T) {
	e := newTestEnv(t)
	tutorID := e.tutor.ID

	tests := []struct {
		name string
		slot CreateSlotRequest
		kind errs.Kind
	}{
		{"bad time format", CreateSlotRequest{TutorID: tutorID, Date: "2024-01-02", StartTime: "9:00", EndTime: "10:00"}, errs.KindValidation},
		{"hour out of range", CreateSlotRequest{TutorID: tutorID, Date: "2024-01-02", StartTime: "24:00", EndTime: "10:00"}, errs.KindValidation},
		{"start after end", CreateSlotRequest{TutorID: tutorID, Date: "2024-01-02", StartTime: "11:00", EndTime: "10:00"}, errs.KindValidation},
		{"bad date", CreateSlotRequest{TutorID: tutorID, Date: "02.01.2024", StartTime: "10:00", EndTime: "11:00"}, errs.KindValidation},
		{"past date", CreateSlotRequest{TutorID: tutorID, Date: "2023-12-31", StartTime: "10:00", EndTime: "11:00"}, errs.KindValidation},
		{"booked without student", CreateSlotRequest{TutorID: tutorID, Date: "2024-01-02", StartTime: "10:00", EndTime: "11:00", Status: model.SlotStatusBooked}, errs.KindValidation},
		{"unsupported status", CreateSlotRequest{TutorID: tutorID, Date: "2024-01-02", StartTime: "10:00", EndTime: "11:00", Status: model.SlotStatusCompleted}, errs.KindValidation},
		{"negative payout", CreateSlotRequest{TutorID: tutorID, Date: "2024-01-02", StartTime: "10:00", EndTime: "11:00", PayoutAmount: -1}, errs.KindValidation},
		{"unknown tutor", CreateSlotRequest{TutorID: 9999, Date: "2024-01-02", StartTime: "10:00", EndTime: "11:00"}, errs.KindNotFound},
		{"student as tutor", CreateSlotRequest{TutorID: e.student.ID, Date: "2024-01-02", StartTime: "10:00", EndTime: "11:00"}, errs.KindNotFound},
		{"unknown student", CreateSlotRequest{TutorID: tutorID, Date: "2024-01-02", StartTime: "10:00", EndTime: "11:00", StudentID: ptr(int64(9999))}, errs.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.CreateSlots(context.Background(), e.admin, CreateSlotsRequest{Slots: []CreateSlotRequest{tt.slot}})
			requireKind(t, err, tt.kind)
		})
	}

	_, err := e.svc.CreateSlots(context.Background(), e.admin, CreateSlotsRequest{})
	requireKind(t, err, errs.KindValidation)

	assert.Empty(t, e.store.AllSlots())
}

func TestCreateSlotsInvalidTimeFormatIsMatchable(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.svc.CreateSlots(context.Background(), e.admin, CreateSlotsRequest{Slots: []CreateSlotRequest{
		{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "10:60", EndTime: "11:00"},
	}})
	assert.ErrorIs(t, err, schedule.ErrInvalidTimeFormat)
}

func TestCreateSlotsInactiveTutor(t *testing.T) {
	e := newTestEnv(t)
	e.setActive(t, e.tutor.ID, false)

	_, err := e.svc.CreateSlots(context.Background(), e.admin, CreateSlotsRequest{Slots: []CreateSlotRequest{
		{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "10:00", EndTime: "11:00"},
	}})
	requireKind(t, err, errs.KindState)
}

func TestBookSlot(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.openSlot(t, e.tutor, "2024-01-02", "10:00", "11:00")

	slot, err := e.svc.BookSlot(ctx, actorOf(e.student), BookSlotRequest{SlotID: id, StudentID: e.student.ID})
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusBooked, slot.Status)
	assert.True(t, e.slot(t, id).BelongsToStudent(e.student.ID))

	_, err = e.svc.BookSlot(ctx, actorOf(e.student2), BookSlotRequest{SlotID: id, StudentID: e.student2.ID})
	requireKind(t, err, errs.KindConflict)

	_, err = e.svc.BookSlot(ctx, actorOf(e.student2), BookSlotRequest{SlotID: id, StudentID: e.student.ID})
	requireKind(t, err, errs.KindState)

	_, err = e.svc.BookSlot(ctx, actorOf(e.student), BookSlotRequest{SlotID: 9999, StudentID: e.student.ID})
	requireKind(t, err, errs.KindNotFound)
}

func TestBookSlotStudentBusyElsewhere(t *testing.T) {
	e := newTestEnv(t)
	e.bookedSlot(t, e.tutor2, e.student, "2024-01-02", "10:30", "11:30")
	id := e.openSlot(t, e.tutor, "2024-01-02", "10:00", "11:00")

	_, err := e.svc.BookSlot(context.Background(), actorOf(e.student), BookSlotRequest{SlotID: id, StudentID: e.student.ID})
	requireKind(t, err, errs.KindConflict)
	assert.Equal(t, model.SlotStatusAvailable, e.slot(t, id).Status)
}

func TestNoDoubleBookingUnderConcurrency(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.openSlot(t, e.tutor, "2024-01-02", "10:00", "11:00")

	students := []*model.User{e.student, e.student2}
	for i := 0; i < 6; i++ {
		students = append(students, e.store.AddUser(model.User{Role: model.RoleStudent, FirstName: "S", IsActive: true}))
	}

	results := make([]error, len(students))
	var g errgroup.Group
	for i, st := range students {
		g.Go(func() error {
			_, results[i] = e.svc.BookSlot(ctx, actorOf(st), BookSlotRequest{SlotID: id, StudentID: st.ID})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errs.Is(err, errs.KindConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
}

func TestNoDoubleBookingOfOverlappingWindows(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	// Все окна попарно пересекаются
	windows := [][2]string{{"10:00", "10:30"}, {"10:15", "10:45"}, {"10:20", "10:40"}, {"10:05", "10:25"}}
	students := make([]*model.User, len(windows))
	for i := range windows {
		students[i] = e.store.AddUser(model.User{Role: model.RoleStudent, FirstName: "S", IsActive: true})
	}

	results := make([]error, len(windows))
	var g errgroup.Group
	for i, w := range windows {
		g.Go(func() error {
			_, results[i] = e.svc.CreateSlots(ctx, actorOf(e.tutor), CreateSlotsRequest{Slots: []CreateSlotRequest{
				{TutorID: e.tutor.ID, Date: "2024-01-05", StartTime: w[0], EndTime: w[1], StudentID: &students[i].ID},
			}})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, errs.Is(err, errs.KindConflict), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, e.store.AllSlots(), 1)
}

func TestDisjointWindowsBothBookConcurrently(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	windows := [][2]string{{"09:45", "10:05"}, {"10:20", "11:00"}}
	results := make([]error, len(windows))
	var g errgroup.Group
	for i, w := range windows {
		g.Go(func() error {
			_, results[i] = e.svc.CreateSlots(ctx, actorOf(e.tutor), CreateSlotsRequest{Slots: []CreateSlotRequest{
				{TutorID: e.tutor.ID, Date: "2024-01-05", StartTime: w[0], EndTime: w[1]},
			}})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, err := range results {
		assert.NoError(t, err)
	}
	assert.Len(t, e.store.AllSlots(), 2)
}

func TestCancel(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.bookedSlot(t, e.tutor, e.student, "2024-01-02", "10:00", "11:00")

	_, err := e.svc.Cancel(ctx, actorOf(e.student2), CancelRequest{SlotID: id})
	requireKind(t, err, errs.KindState)

	// учитель не может отменить чужую бронь
	_, err = e.svc.Cancel(ctx, actorOf(e.tutor), CancelRequest{SlotID: id})
	requireKind(t, err, errs.KindState)

	slot, err := e.svc.Cancel(ctx, actorOf(e.student), CancelRequest{SlotID: id})
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusCancelled, slot.Status)

	stored := e.slot(t, id)
	assert.Equal(t, model.SlotStatusCancelled, stored.Status)
	assert.True(t, stored.BelongsToStudent(e.student.ID), "student kept for audit")
	require.NotNil(t, stored.CancelledBy)
	assert.Equal(t, e.student.ID, *stored.CancelledBy)
	assert.NotNil(t, stored.CancelledAt)

	_, err = e.svc.Cancel(ctx, e.admin, CancelRequest{SlotID: id})
	requireKind(t, err, errs.KindState)

	// окно освободилось
	again := e.bookedSlot(t, e.tutor, e.student2, "2024-01-02", "10:00", "11:00")
	assert.NotEqual(t, id, again)
}

func TestCancelOpenSlotByTutor(t *testing.T) {
	e := newTestEnv(t)
	id := e.openSlot(t, e.tutor, "2024-01-02", "10:00", "11:00")

	_, err := e.svc.Cancel(context.Background(), actorOf(e.tutor2), CancelRequest{SlotID: id})
	requireKind(t, err, errs.KindState)

	slot, err := e.svc.Cancel(context.Background(), actorOf(e.tutor), CancelRequest{SlotID: id})
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusCancelled, slot.Status)
}

func TestRescheduleRejectedWhenTargetTaken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	a := e.bookedSlot(t, e.tutor, e.student, "2024-01-01", "10:00", "10:30")
	b := e.bookedSlot(t, e.tutor, e.student2, "2024-01-01", "11:00", "11:30")
	before := e.slot(t, a)

	_, err := e.svc.Reschedule(ctx, actorOf(e.student), RescheduleRequest{OldSlotID: a, NewSlotID: b})
	requireKind(t, err, errs.KindConflict)

	after := e.slot(t, a)
	assert.Equal(t, model.SlotStatusBooked, after.Status)
	assert.Equal(t, before, after)
	assert.True(t, e.slot(t, b).BelongsToStudent(e.student2.ID))

	e.svc.WaitNotifications()
	for _, m := range e.rec.Messages() {
		assert.NotEqual(t, "Lesson rescheduled", m.Subject)
	}
}

func TestReschedule(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	// новое окно пересекается со старым - старый слот не мешает
	b := e.openSlot(t, e.tutor, "2024-01-02", "10:15", "10:45")
	a := e.bookedSlot(t, e.tutor, e.student, "2024-01-02", "10:00", "10:30")

	resp, err := e.svc.Reschedule(ctx, actorOf(e.student), RescheduleRequest{OldSlotID: a, NewSlotID: b})
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusCancelled, resp.Old.Status)
	assert.Equal(t, model.SlotStatusBooked, resp.New.Status)

	assert.Equal(t, model.SlotStatusCancelled, e.slot(t, a).Status)
	assert.True(t, e.slot(t, b).BelongsToStudent(e.student.ID))

	e.svc.WaitNotifications()
	assert.Contains(t, e.rec.EventNames(), notify.EventSlotRescheduled)
}

func TestRescheduleRules(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	a := e.bookedSlot(t, e.tutor, e.student, "2024-01-02", "10:00", "10:30")
	open := e.openSlot(t, e.tutor2, "2024-01-03", "12:00", "13:00")

	// студент занят у другого учителя в это время
	e.bookedSlot(t, e.tutor, e.student, "2024-01-03", "12:30", "13:30")
	_, err := e.svc.Reschedule(ctx, actorOf(e.student), RescheduleRequest{OldSlotID: a, NewSlotID: open})
	requireKind(t, err, errs.KindConflict)

	// чужая бронь
	_, err = e.svc.Reschedule(ctx, actorOf(e.student2), RescheduleRequest{OldSlotID: a, NewSlotID: open})
	requireKind(t, err, errs.KindState)

	// отменённая цель
	cancelled := e.openSlot(t, e.tutor2, "2024-01-04", "12:00", "13:00")
	_, err = e.svc.Cancel(ctx, actorOf(e.tutor2), CancelRequest{SlotID: cancelled})
	require.NoError(t, err)
	_, err = e.svc.Reschedule(ctx, actorOf(e.student), RescheduleRequest{OldSlotID: a, NewSlotID: cancelled})
	requireKind(t, err, errs.KindState)

	_, err = e.svc.Reschedule(ctx, actorOf(e.student), RescheduleRequest{OldSlotID: a, NewSlotID: a})
	requireKind(t, err, errs.KindValidation)

	_, err = e.svc.Reschedule(ctx, actorOf(e.student), RescheduleRequest{OldSlotID: a, NewSlotID: 9999})
	requireKind(t, err, errs.KindNotFound)

	assert.Equal(t, model.SlotStatusBooked, e.slot(t, a).Status)
}

func TestMarkAttendanceIsTerminal(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.bookedSlot(t, e.tutor, e.student, "2024-01-01", "10:00", "10:30")

	_, err := e.svc.MarkAttendance(ctx, actorOf(e.student), MarkAttendanceRequest{SlotID: id, Attendance: model.AttendanceAttended})
	requireKind(t, err, errs.KindState)

	_, err = e.svc.MarkAttendance(ctx, actorOf(e.tutor), MarkAttendanceRequest{SlotID: id})
	requireKind(t, err, errs.KindValidation)

	slot, err := e.svc.MarkAttendance(ctx, actorOf(e.tutor), MarkAttendanceRequest{SlotID: id, Attendance: model.AttendanceAttended})
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusCompleted, slot.Status)
	assert.Equal(t, model.AttendanceAttended, slot.Attendance)

	_, err = e.svc.MarkAttendance(ctx, actorOf(e.tutor), MarkAttendanceRequest{SlotID: id, Attendance: model.AttendanceMissed})
	requireKind(t, err, errs.KindState)

	_, err = e.svc.Cancel(ctx, e.admin, CancelRequest{SlotID: id})
	requireKind(t, err, errs.KindState)

	_, err = e.svc.BookSlot(ctx, e.admin, BookSlotRequest{SlotID: id, StudentID: e.student2.ID})
	requireKind(t, err, errs.KindState)

	assert.Equal(t, model.AttendanceAttended, e.slot(t, id).Attendance)
}

func TestMarkAttendanceOnOpenSlot(t *testing.T) {
	e := newTestEnv(t)
	id := e.openSlot(t, e.tutor, "2024-01-02", "10:00", "10:30")

	_, err := e.svc.MarkAttendance(context.Background(), actorOf(e.tutor), MarkAttendanceRequest{SlotID: id, Attendance: model.AttendanceMissed})
	requireKind(t, err, errs.KindState)
}

func TestUpdateSlotStatus(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	t.Run("attendance requires attendanceStatus", func(t *testing.T) {
		id := e.bookedSlot(t, e.tutor, e.student, "2024-01-02", "08:00", "08:30")
		_, err := e.svc.UpdateSlotStatus(ctx, actorOf(e.tutor), UpdateSlotStatusRequest{SlotID: id, NewStatus: "attended"})
		requireKind(t, err, errs.KindValidation)

		_, err = e.svc.UpdateSlotStatus(ctx, actorOf(e.tutor), UpdateSlotStatusRequest{SlotID: id, NewStatus: "attended", AttendanceStatus: model.AttendanceMissed})
		requireKind(t, err, errs.KindValidation)

		slot, err := e.svc.UpdateSlotStatus(ctx, actorOf(e.tutor), UpdateSlotStatusRequest{SlotID: id, NewStatus: "missed", AttendanceStatus: model.AttendanceMissed})
		require.NoError(t, err)
		assert.Equal(t, model.SlotStatusCompleted, slot.Status)
		assert.Equal(t, model.AttendanceMissed, slot.Attendance)
	})

	t.Run("completed", func(t *testing.T) {
		id := e.bookedSlot(t, e.tutor, e.student, "2024-01-02", "09:00", "09:30")
		_, err := e.svc.UpdateSlotStatus(ctx, actorOf(e.tutor), UpdateSlotStatusRequest{SlotID: id, NewStatus: "completed"})
		requireKind(t, err, errs.KindValidation)

		slot, err := e.svc.UpdateSlotStatus(ctx, actorOf(e.tutor), UpdateSlotStatusRequest{SlotID: id, NewStatus: "completed", AttendanceStatus: model.AttendanceAttended})
		require.NoError(t, err)
		assert.Equal(t, model.SlotStatusCompleted, slot.Status)
	})

	t.Run("cancelled", func(t *testing.T) {
		id := e.bookedSlot(t, e.tutor, e.student, "2024-01-02", "10:00", "10:30")
		_, err := e.svc.UpdateSlotStatus(ctx, actorOf(e.student), UpdateSlotStatusRequest{SlotID: id, NewStatus: "cancelled", AttendanceStatus: model.AttendanceMissed})
		requireKind(t, err, errs.KindValidation)

		slot, err := e.svc.UpdateSlotStatus(ctx, actorOf(e.student), UpdateSlotStatusRequest{SlotID: id, NewStatus: "cancelled"})
		require.NoError(t, err)
		assert.Equal(t, model.SlotStatusCancelled, slot.Status)
	})

	t.Run("booked", func(t *testing.T) {
		id := e.openSlot(t, e.tutor, "2024-01-02", "11:00", "11:30")
		_, err := e.svc.UpdateSlotStatus(ctx, e.admin, UpdateSlotStatusRequest{SlotID: id, NewStatus: "booked"})
		requireKind(t, err, errs.KindValidation)

		slot, err := e.svc.UpdateSlotStatus(ctx, e.admin, UpdateSlotStatusRequest{SlotID: id, NewStatus: "booked", StudentID: &e.student2.ID})
		require.NoError(t, err)
		assert.True(t, slot.BelongsToStudent(e.student2.ID))
	})

	t.Run("available and unknown", func(t *testing.T) {
		id := e.bookedSlot(t, e.tutor, e.student, "2024-01-02", "12:00", "12:30")
		_, err := e.svc.UpdateSlotStatus(ctx, e.admin, UpdateSlotStatusRequest{SlotID: id, NewStatus: "available"})
		requireKind(t, err, errs.KindState)

		_, err = e.svc.UpdateSlotStatus(ctx, e.admin, UpdateSlotStatusRequest{SlotID: id, NewStatus: "archived"})
		requireKind(t, err, errs.KindValidation)
	})
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	e := newTestEnv(t)
	e.rec.Err = errors.New("telegram is down")
	id := e.openSlot(t, e.tutor, "2024-01-02", "10:00", "11:00")

	slot, err := e.svc.BookSlot(context.Background(), actorOf(e.student), BookSlotRequest{SlotID: id, StudentID: e.student.ID})
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusBooked, slot.Status)

	e.svc.WaitNotifications()
	assert.Len(t, e.rec.Messages(), 2)
	assert.Equal(t, model.SlotStatusBooked, e.slot(t, id).Status)
}

func TestNotificationsOnlyAfterCommit(t *testing.T) {
	e := newTestEnv(t)
	id := e.bookedSlot(t, e.tutor, e.student, "2024-01-02", "10:00", "11:00")
	e.svc.WaitNotifications()
	sent := len(e.rec.Messages())

	_, err := e.svc.Cancel(context.Background(), actorOf(e.student2), CancelRequest{SlotID: id})
	requireKind(t, err, errs.KindState)

	e.store.FailNextCommits(errs.Infrastructure("disk full"))
	_, err = e.svc.Cancel(context.Background(), actorOf(e.student), CancelRequest{SlotID: id})
	requireKind(t, err, errs.KindInfrastructure)

	e.svc.WaitNotifications()
	assert.Len(t, e.rec.Messages(), sent)
	assert.Equal(t, model.SlotStatusBooked, e.slot(t, id).Status)
}

func TestContentionIsRetriedWithFreshReads(t *testing.T) {
	e := newTestEnv(t)
	e.store.FailNextCommits(errs.Contention("deadlock detected"), errs.Contention("serialization failure"))

	resp, err := e.svc.CreateSlots(context.Background(), actorOf(e.tutor), CreateSlotsRequest{Slots: []CreateSlotRequest{
		{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "10:00", EndTime: "10:30"},
		{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "10:30", EndTime: "11:00"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.CreatedCount)

	slots := e.store.AllSlots()
	require.Len(t, slots, 2)
	assert.Equal(t, resp.CreatedIDs, []int64{slots[0].ID, slots[1].ID})
}

func TestContentionExhausted(t *testing.T) {
	e := newTestEnv(t)
	e.store.FailNextCommits(errs.Contention("a"), errs.Contention("b"), errs.Contention("c"))

	resp, err := e.svc.CreateSlots(context.Background(), actorOf(e.tutor), CreateSlotsRequest{Slots: []CreateSlotRequest{
		{TutorID: e.tutor.ID, Date: "2024-01-02", StartTime: "10:00", EndTime: "10:30"},
	}})
	requireKind(t, err, errs.KindContention)
	assert.Zero(t, resp.CreatedCount)

	var typed *errs.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, 3, typed.Args()["attempts"])
	assert.Empty(t, e.store.AllSlots())

	// следующая операция проходит
	e.openSlot(t, e.tutor, "2024-01-02", "10:00", "10:30")
}

func TestGenerateAvailableSlots(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.avail.Replace(ctx, actorOf(e.tutor), ReplaceAvailabilityRequest{
		OwnerKind: model.OwnerTutor,
		OwnerID:   e.tutor.ID,
		Blocks:    []BlockRequest{{DayOfWeek: 1, StartTime: "09:00", EndTime: "11:00"}},
	})
	require.NoError(t, err)

	req := GenerateSlotsRequest{TutorID: e.tutor.ID, From: "2024-01-01", To: "2024-01-14", DurationMinutes: 30}
	resp, err := e.svc.GenerateAvailableSlots(ctx, actorOf(e.tutor), req)
	require.NoError(t, err)
	assert.Equal(t, 8, resp.CreatedCount)

	for _, s := range e.store.AllSlots() {
		assert.Equal(t, model.SlotStatusAvailable, s.Status)
		assert.Equal(t, 30, s.EndMinutes-s.StartMinutes)
	}

	// повторный запуск ничего не дублирует
	resp, err = e.svc.GenerateAvailableSlots(ctx, actorOf(e.tutor), req)
	require.NoError(t, err)
	assert.Zero(t, resp.CreatedCount)

	// бронь 09:45-10:15 закрывает два окна 15 января
	e.bookedSlot(t, e.tutor, e.student, "2024-01-15", "09:45", "10:15")
	resp, err = e.svc.GenerateAvailableSlots(ctx, actorOf(e.tutor), GenerateSlotsRequest{
		TutorID: e.tutor.ID, From: "2024-01-15", To: "2024-01-15", DurationMinutes: 30,
	})
	require.NoError(t, err)
	require.Len(t, resp.CreatedIDs, 2)
	assert.Equal(t, "09:00", e.slot(t, resp.CreatedIDs[0]).StartTime)
	assert.Equal(t, "10:30", e.slot(t, resp.CreatedIDs[1]).StartTime)

	_, err = e.svc.GenerateAvailableSlots(ctx, actorOf(e.tutor2), req)
	requireKind(t, err, errs.KindState)

	_, err = e.svc.GenerateAvailableSlots(ctx, actorOf(e.tutor), GenerateSlotsRequest{
		TutorID: e.tutor.ID, From: "2024-02-01", To: "2024-01-01", DurationMinutes: 30,
	})
	requireKind(t, err, errs.KindValidation)
}

func TestListSchedules(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.bookedSlot(t, e.tutor, e.student, "2024-01-03", "10:00", "11:00")
	e.bookedSlot(t, e.tutor2, e.student, "2024-01-02", "10:00", "11:00")
	e.openSlot(t, e.tutor, "2024-01-10", "10:00", "11:00")

	slots, err := e.svc.ListTutorSchedule(ctx, e.tutor.ID, day(2024, 1, 1), day(2024, 1, 7))
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "2024-01-03", slots[0].DateString())

	slots, err = e.svc.ListStudentSlots(ctx, e.student.ID, day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "2024-01-02", slots[0].DateString())

	_, err = e.svc.ListStudentSlots(ctx, e.tutor.ID, day(2024, 1, 1), day(2024, 1, 31))
	requireKind(t, err, errs.KindNotFound)
}

func TestCreateCheckoutOrder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	order, err := e.svc.CreateCheckoutOrder(ctx, CheckoutRequest{StudentID: e.student.ID, Amount: 450000, Description: "January"})
	require.NoError(t, err)
	assert.Regexp(t, `^TUI-20240101-090000-`, order.OrderID)
	require.Len(t, e.gw.orders, 1)
	assert.Equal(t, "Sam", e.gw.orders[0].FirstName)
	assert.Equal(t, int64(450000), e.gw.orders[0].Amount)

	_, err = e.svc.CreateCheckoutOrder(ctx, CheckoutRequest{StudentID: e.tutor.ID, Amount: 1})
	requireKind(t, err, errs.KindNotFound)

	_, err = e.svc.CreateCheckoutOrder(ctx, CheckoutRequest{StudentID: e.student.ID})
	requireKind(t, err, errs.KindValidation)
}
