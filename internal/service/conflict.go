package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tuition_scheduler/internal/errs"
	"github.com/Freeeeeet/tuition_scheduler/internal/model"
	"github.com/Freeeeeet/tuition_scheduler/internal/schedule"
	"github.com/Freeeeeet/tuition_scheduler/internal/store"
)

// ConflictDetector ищет занятые (booked/completed) слоты того же учителя или студента,
// пересекающиеся с интервалом. Работает только внутри транзакции вызывающего.
type ConflictDetector struct{}

// Conflicts возвращает пересекающиеся слоты
func (ConflictDetector) Conflicts(ctx context.Context, tx store.Tx, q store.OverlapQuery) ([]*model.TimeSlot, error) {
	slots, err := tx.Slots().FindOverlapping(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find overlapping slots: %w", err)
	}
	return slots, nil
}

// HasConflict true, если пересечение есть
func (d ConflictDetector) HasConflict(ctx context.Context, tx store.Tx, q store.OverlapQuery) (bool, error) {
	slots, err := d.Conflicts(ctx, tx, q)
	if err != nil {
		return false, err
	}
	return len(slots) > 0, nil
}

// Check возвращает errs.KindConflict с деталями первого пересечения
func (d ConflictDetector) Check(ctx context.Context, tx store.Tx, q store.OverlapQuery) error {
	slots, err := d.Conflicts(ctx, tx, q)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return nil
	}

	existing := slots[0]
	party := "tutor"
	partyID := q.TutorID
	if existing.TutorID != q.TutorID && q.StudentID != nil {
		party = "student"
		partyID = *q.StudentID
	}

	return errs.Conflict("time overlaps an existing booking").
		Arg("date", q.Date.Format(model.DateLayout)).
		Arg("start_time", schedule.ToTimeString(q.StartMinutes)).
		Arg("end_time", schedule.ToTimeString(q.EndMinutes)).
		Arg("party", party).
		Arg("party_id", partyID).
		Arg("existing_slot_id", existing.ID).
		Arg("existing_start_time", existing.StartTime).
		Arg("existing_end_time", existing.EndTime)
}

// lockKeys ключи блокировки (учитель, дата) и (студент, дата)
func lockKeys(date time.Time, tutorID int64, studentID *int64) []string {
	d := date.Format(model.DateLayout)
	keys := []string{fmt.Sprintf("tutor:%d:%s", tutorID, d)}
	if studentID != nil {
		keys = append(keys, fmt.Sprintf("student:%d:%s", *studentID, d))
	}
	return keys
}

func overlapQuery(tutorID int64, studentID *int64, date time.Time, iv schedule.Interval, exclude *int64) store.OverlapQuery {
	return store.OverlapQuery{
		TutorID:      tutorID,
		StudentID:    studentID,
		Date:         date,
		StartMinutes: iv.Start,
		EndMinutes:   iv.End,
		ExcludeID:    exclude,
	}
}
