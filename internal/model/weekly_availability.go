package model

import (
	"fmt"
	"time"
)

type OwnerKind string

const (
	OwnerTutor   OwnerKind = "tutor"
	OwnerStudent OwnerKind = "student"
)

// Owner - владелец недельного расписания: Tutor(id) или Student(id)
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   int64     `json:"id"`
}

func TutorOwner(id int64) Owner   { return Owner{Kind: OwnerTutor, ID: id} }
func StudentOwner(id int64) Owner { return Owner{Kind: OwnerStudent, ID: id} }

func (o Owner) Valid() bool {
	return (o.Kind == OwnerTutor || o.Kind == OwnerStudent) && o.ID > 0
}

func (o Owner) String() string {
	return fmt.Sprintf("%s:%d", o.Kind, o.ID)
}

type WeeklyAvailabilityBlock struct {
	ID           int64        `json:"id"`
	Owner        Owner        `json:"owner"`
	Weekday      time.Weekday `json:"weekday"` // 0 = Sunday, 6 = Saturday
	StartTime    string       `json:"start_time"`
	EndTime      string       `json:"end_time"`
	StartMinutes int          `json:"start_minutes"`
	EndMinutes   int          `json:"end_minutes"`
	CreatedAt    time.Time    `json:"created_at"`
}

// DurationMinutes длина блока в минутах
func (b *WeeklyAvailabilityBlock) DurationMinutes() int {
	return b.EndMinutes - b.StartMinutes
}
