package service

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Freeeeeet/tuition_scheduler/internal/errs"
	"github.com/Freeeeeet/tuition_scheduler/internal/model"
	"github.com/Freeeeeet/tuition_scheduler/internal/payment"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateRequest проверяет теги validate и приводит ошибку к errs.KindValidation
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return errs.Validation("invalid request").
			Arg("field", fe.Namespace()).
			Arg("rule", fe.Tag()).
			Wrap(err)
	}

	return errs.Validation("invalid request").Wrap(err)
}

// ---- ручное создание слотов ----

type CreateSlotRequest struct {
	TutorID   int64            `json:"tutorId" validate:"required,gt=0"`
	Date      string           `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string           `json:"startTime" validate:"required"`
	EndTime   string           `json:"endTime" validate:"required"`
	StudentID *int64           `json:"studentId,omitempty" validate:"omitempty,gt=0"`
	Status    model.SlotStatus `json:"status,omitempty" validate:"omitempty,oneof=available booked"`

	// PayoutAmount выплата учителю в минимальных единицах валюты, не вычисляется
	PayoutAmount int64 `json:"payoutAmount,omitempty" validate:"gte=0"`
}

type CreateSlotsRequest struct {
	Slots []CreateSlotRequest `json:"slots" validate:"required,min=1,dive"`
}

type CreateSlotsResponse struct {
	CreatedCount int     `json:"createdCount"`
	CreatedIDs   []int64 `json:"createdIds"`
}

// GenerateSlotsRequest развёртка недельной доступности учителя в свободные слоты
type GenerateSlotsRequest struct {
	TutorID         int64  `json:"tutorId" validate:"required,gt=0"`
	From            string `json:"from" validate:"required,datetime=2006-01-02"`
	To              string `json:"to" validate:"required,datetime=2006-01-02"`
	DurationMinutes int    `json:"durationMinutes" validate:"required,gt=0,lte=1440"`
}

// ---- операции над одним слотом ----

type BookSlotRequest struct {
	SlotID    int64 `json:"slotId" validate:"required,gt=0"`
	StudentID int64 `json:"studentId" validate:"required,gt=0"`
}

type CancelRequest struct {
	SlotID int64 `json:"slotId" validate:"required,gt=0"`
}

type RescheduleRequest struct {
	OldSlotID int64 `json:"oldSlotId" validate:"required,gt=0"`
	NewSlotID int64 `json:"newSlotId" validate:"required,gt=0,nefield=OldSlotID"`
}

type RescheduleResponse struct {
	Old *model.TimeSlot `json:"old"`
	New *model.TimeSlot `json:"new"`
}

type MarkAttendanceRequest struct {
	SlotID     int64            `json:"slotId" validate:"required,gt=0"`
	Attendance model.Attendance `json:"attendance" validate:"required,oneof=attended missed"`
}

// UpdateSlotStatusRequest общий вход смены статуса.
// NewStatus attended/missed - отметка посещаемости, attendanceStatus обязателен.
type UpdateSlotStatusRequest struct {
	SlotID           int64            `json:"slotId" validate:"required,gt=0"`
	NewStatus        string           `json:"newStatus" validate:"required,oneof=available booked completed cancelled attended missed"`
	AttendanceStatus model.Attendance `json:"attendanceStatus,omitempty" validate:"omitempty,oneof=attended missed"`
	StudentID        *int64           `json:"studentId,omitempty" validate:"omitempty,gt=0"`
}

// ---- регулярные занятия ----

type PatternRequest struct {
	DayOfWeek       int    `json:"dayOfWeek" validate:"min=0,max=6"`
	StartTime       string `json:"startTime" validate:"required"`
	EndTime         string `json:"endTime" validate:"required"`
	DurationMinutes int    `json:"durationMinutes" validate:"required,gt=0"`
}

// PaymentInput подтверждение оплаты от шлюза
type PaymentInput struct {
	Amount       int64                `json:"amount" validate:"gte=0"`
	Notification payment.Notification `json:"notification"`
}

type BookRecurringRequest struct {
	TutorID   int64            `json:"tutorId" validate:"required,gt=0"`
	StudentID int64            `json:"studentId" validate:"required,gt=0"`
	Patterns  []PatternRequest `json:"patterns" validate:"required,min=1,dive"`
	Payment   *PaymentInput    `json:"payment,omitempty"`
}

type BookRecurringResponse struct {
	BookedSlotIDs              []int64   `json:"bookedSlotIds"`
	TotalBookedCount           int       `json:"totalBookedCount"`
	CreatedRecurringPatternIDs []int64   `json:"createdRecurringPatternIds"`
	GroupID                    uuid.UUID `json:"groupId"`
	PaymentID                  *int64    `json:"paymentId,omitempty"`
}

type SetPatternStatusRequest struct {
	PatternID int64               `json:"patternId" validate:"required,gt=0"`
	Status    model.PatternStatus `json:"status" validate:"required,oneof=active paused inactive"`
}

// ExtendResult итог продления одного паттерна
type ExtendResult struct {
	PatternID      int64    `json:"patternId"`
	CreatedSlotIDs []int64  `json:"createdSlotIds"`
	SkippedDates   []string `json:"skippedDates"`
}

// ExtendSummary итог фонового продления
type ExtendSummary struct {
	Patterns int `json:"patterns"`
	Created  int `json:"created"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

type DeactivateResult struct {
	PatternIDs      []int64 `json:"patternIds"`
	ReleasedSlotIDs []int64 `json:"releasedSlotIds"`
}

// ---- оплата ----

type CheckoutRequest struct {
	StudentID   int64  `json:"studentId" validate:"required,gt=0"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=255"`
}

// ---- недельная доступность ----

type BlockRequest struct {
	DayOfWeek int    `json:"dayOfWeek" validate:"min=0,max=6"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
}

type ReplaceAvailabilityRequest struct {
	OwnerKind model.OwnerKind `json:"ownerKind" validate:"required,oneof=tutor student"`
	OwnerID   int64           `json:"ownerId" validate:"required,gt=0"`
	Blocks    []BlockRequest  `json:"blocks" validate:"dive"`
}

type FreeWindowsRequest struct {
	TutorID         int64  `json:"tutorId" validate:"required,gt=0"`
	StudentID       *int64 `json:"studentId,omitempty" validate:"omitempty,gt=0"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	DurationMinutes int    `json:"durationMinutes" validate:"required,gt=0,lte=1440"`
}
