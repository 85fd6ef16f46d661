// Package store описывает контракт хранилища, которым пользуется сервисный слой.
// Реализации: repository (PostgreSQL) и repository/memory.
package store

import (
	"context"
	"time"

	"github.com/Freeeeeet/tuition_scheduler/internal/model"
)

// Store открывает транзакцию и выполняет в ней fn.
// Если fn вернула ошибку, транзакция откатывается до возврата ошибки.
// Конфликты блокировок отдаются как errs.KindContention.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx репозитории, привязанные к одной транзакции
type Tx interface {
	Users() UserRepository
	Slots() SlotRepository
	Availability() AvailabilityRepository
	Patterns() PatternRepository
	Payments() PaymentRepository
}

// Get-методы возвращают (nil, nil), если запись не найдена.

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// OverlapQuery поиск занятых слотов, пересекающихся с интервалом
type OverlapQuery struct {
	TutorID      int64
	StudentID    *int64
	Date         time.Time
	StartMinutes int
	EndMinutes   int
	ExcludeID    *int64
}

type SlotRepository interface {
	Create(ctx context.Context, slot *model.TimeSlot) error
	GetByID(ctx context.Context, id int64) (*model.TimeSlot, error)
	Update(ctx context.Context, slot *model.TimeSlot) error
	// FindByWindow не отменённый слот учителя с точно таким же окном
	FindByWindow(ctx context.Context, tutorID int64, date time.Time, startMinutes, endMinutes int) (*model.TimeSlot, error)
	// FindOverlapping слоты booked/completed той же даты, пересекающиеся с интервалом,
	// принадлежащие учителю или (если задан) студенту
	FindOverlapping(ctx context.Context, q OverlapQuery) ([]*model.TimeSlot, error)
	ListByTutor(ctx context.Context, tutorID int64, from, to time.Time) ([]*model.TimeSlot, error)
	ListByStudent(ctx context.Context, studentID int64, from, to time.Time) ([]*model.TimeSlot, error)
	ListByPattern(ctx context.Context, patternID int64) ([]*model.TimeSlot, error)
	// Lock берёт транзакционные блокировки по ключам (учитель/студент + дата)
	Lock(ctx context.Context, keys ...string) error
}

type AvailabilityRepository interface {
	DeleteByOwner(ctx context.Context, owner model.Owner) (int64, error)
	CreateMany(ctx context.Context, blocks []*model.WeeklyAvailabilityBlock) error
	ListByOwner(ctx context.Context, owner model.Owner) ([]*model.WeeklyAvailabilityBlock, error)
}

type PatternRepository interface {
	Create(ctx context.Context, pattern *model.RecurringBookingPattern) error
	GetByID(ctx context.Context, id int64) (*model.RecurringBookingPattern, error)
	Update(ctx context.Context, pattern *model.RecurringBookingPattern) error
	ListActive(ctx context.Context) ([]*model.RecurringBookingPattern, error)
	ListByStudent(ctx context.Context, studentID int64) ([]*model.RecurringBookingPattern, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	GetByID(ctx context.Context, id int64) (*model.Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error)
}
