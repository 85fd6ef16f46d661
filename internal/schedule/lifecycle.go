package schedule

import (
	"time"

	"github.com/Freeeeeet/tuition_scheduler/internal/errs"
	"github.com/Freeeeeet/tuition_scheduler/internal/model"
)

// transitions допустимые переходы статуса слота.
// Из cancelled и completed выхода нет.
var transitions = map[model.SlotStatus][]model.SlotStatus{
	model.SlotStatusAvailable: {model.SlotStatusBooked, model.SlotStatusCancelled},
	model.SlotStatusBooked:    {model.SlotStatusCancelled, model.SlotStatusCompleted},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to model.SlotStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(slot *model.TimeSlot, to model.SlotStatus) error {
	if !CanTransition(slot.Status, to) {
		return errs.State("slot status transition not permitted").
			Arg("slot_id", slot.ID).
			Arg("from", slot.Status).
			Arg("to", to)
	}
	return nil
}

// Book available -> booked
func Book(slot *model.TimeSlot, studentID int64) error {
	if studentID <= 0 {
		return errs.Validation("student is required to book a slot").Arg("slot_id", slot.ID)
	}
	if err := checkTransition(slot, model.SlotStatusBooked); err != nil {
		return err
	}
	slot.Status = model.SlotStatusBooked
	slot.StudentID = &studentID
	slot.Attendance = model.AttendanceNone
	return nil
}

// Cancel booked|available -> cancelled. Запись остаётся для аудита.
func Cancel(slot *model.TimeSlot, by int64, at time.Time) error {
	if err := checkTransition(slot, model.SlotStatusCancelled); err != nil {
		return err
	}
	slot.Status = model.SlotStatusCancelled
	slot.CancelledBy = &by
	slot.CancelledAt = &at
	return nil
}

// Complete booked -> completed с обязательной отметкой посещаемости
func Complete(slot *model.TimeSlot, attendance model.Attendance) error {
	if slot.Status == model.SlotStatusCompleted {
		return errs.State("attendance already marked").
			Arg("slot_id", slot.ID).
			Arg("attendance", slot.Attendance)
	}
	if !attendance.Marked() {
		return errs.Validation("attendance must be attended or missed").
			Arg("slot_id", slot.ID).
			Arg("attendance", attendance)
	}
	if err := checkTransition(slot, model.SlotStatusCompleted); err != nil {
		return err
	}
	slot.Status = model.SlotStatusCompleted
	slot.Attendance = attendance
	return nil
}
