package model

import (
	"time"

	"github.com/google/uuid"
)

type PatternStatus string

const (
	PatternStatusActive   PatternStatus = "active"
	PatternStatusPaused   PatternStatus = "paused"
	PatternStatusInactive PatternStatus = "inactive"
)

func (s PatternStatus) Valid() bool {
	return s == PatternStatusActive || s == PatternStatusPaused || s == PatternStatusInactive
}

// RecurringBookingPattern - постоянное еженедельное занятие учителя со студентом
type RecurringBookingPattern struct {
	ID                 int64         `json:"id"`
	GroupID            uuid.UUID     `json:"group_id"` // общий для паттернов одной брони
	TutorID            int64         `json:"tutor_id"`
	StudentID          int64         `json:"student_id"`
	Weekday            time.Weekday  `json:"weekday"`
	StartTime          string        `json:"start_time"`
	EndTime            string        `json:"end_time"`
	StartMinutes       int           `json:"start_minutes"`
	EndMinutes         int           `json:"end_minutes"`
	DurationMinutes    int           `json:"duration_minutes"`
	StartDate          time.Time     `json:"start_date"`
	EndDate            *time.Time    `json:"end_date"` // nil - без даты окончания
	PaymentID          *int64        `json:"payment_id"`
	Status             PatternStatus `json:"status"`
	CreatedBy          int64         `json:"created_by"`
	InitialBatchMonths int           `json:"initial_batch_months"`
	LastExtendedOn     *time.Time    `json:"last_extended_on"` // последняя дата, до которой созданы слоты
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

func (p *RecurringBookingPattern) IsActive() bool {
	return p.Status == PatternStatusActive
}
