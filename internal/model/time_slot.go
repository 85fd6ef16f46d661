package model

import "time"

const DateLayout = "2006-01-02"

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBooked    SlotStatus = "booked"
	SlotStatusCompleted SlotStatus = "completed"
	SlotStatusCancelled SlotStatus = "cancelled"
)

// Valid проверяет, что статус известен
func (s SlotStatus) Valid() bool {
	switch s {
	case SlotStatusAvailable, SlotStatusBooked, SlotStatusCompleted, SlotStatusCancelled:
		return true
	}
	return false
}

// Blocking - статусы, которые занимают время учителя и студента
func (s SlotStatus) Blocking() bool {
	return s == SlotStatusBooked || s == SlotStatusCompleted
}

type Attendance string

const (
	AttendanceNone     Attendance = "none"
	AttendanceAttended Attendance = "attended"
	AttendanceMissed   Attendance = "missed"
)

// Marked - посещаемость отмечена (attended или missed)
func (a Attendance) Marked() bool {
	return a == AttendanceAttended || a == AttendanceMissed
}

type TimeSlot struct {
	ID                 int64      `json:"id"`
	TutorID            int64      `json:"tutor_id"`
	StudentID          *int64     `json:"student_id"` // nil - слот никем не занят
	Date               time.Time  `json:"date"`       // полночь UTC, значима только дата
	StartTime          string     `json:"start_time"` // HH:MM
	EndTime            string     `json:"end_time"`   // HH:MM
	StartMinutes       int        `json:"start_minutes"`
	EndMinutes         int        `json:"end_minutes"`
	Status             SlotStatus `json:"status"`
	Attendance         Attendance `json:"attendance"`
	PayoutAmount       int64      `json:"payout_amount"` // в копейках/центах, не вычисляется здесь
	CreatedBy          int64      `json:"created_by"`
	RecurringPatternID *int64     `json:"recurring_pattern_id"`
	PaymentID          *int64     `json:"payment_id"`
	CancelledBy        *int64     `json:"cancelled_by"`
	CancelledAt        *time.Time `json:"cancelled_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DateString возвращает дату в формате YYYY-MM-DD
func (s *TimeSlot) DateString() string {
	return s.Date.Format(DateLayout)
}

// BelongsToStudent проверяет, что слот забронирован указанным студентом
func (s *TimeSlot) BelongsToStudent(studentID int64) bool {
	return s.StudentID != nil && *s.StudentID == studentID
}
