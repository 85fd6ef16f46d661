package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Freeeeeet/tuition_scheduler/internal/model"
	"github.com/Freeeeeet/tuition_scheduler/internal/repository/base"
	"github.com/Freeeeeet/tuition_scheduler/internal/store"
)

const slotColumns = `id, tutor_id, student_id, slot_date, start_time, end_time, start_minutes, end_minutes,
	status, attendance, payout_amount, created_by, recurring_pattern_id, payment_id,
	cancelled_by, cancelled_at, created_at, updated_at`

type SlotRepository struct {
	*base.Repository
}

func NewSlotRepository(q base.Querier) *SlotRepository {
	return &SlotRepository{Repository: base.NewRepository(q)}
}

func scanSlot(row pgx.Row) (*model.TimeSlot, error) {
	var slot model.TimeSlot
	err := row.Scan(
		&slot.ID,
		&slot.TutorID,
		&slot.StudentID,
		&slot.Date,
		&slot.StartTime,
		&slot.EndTime,
		&slot.StartMinutes,
		&slot.EndMinutes,
		&slot.Status,
		&slot.Attendance,
		&slot.PayoutAmount,
		&slot.CreatedBy,
		&slot.RecurringPatternID,
		&slot.PaymentID,
		&slot.CancelledBy,
		&slot.CancelledAt,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func collectSlots(rows pgx.Rows) ([]*model.TimeSlot, error) {
	defer rows.Close()

	var slots []*model.TimeSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}

	return slots, nil
}

// Create создаёт новый слот
func (r *SlotRepository) Create(ctx context.Context, slot *model.TimeSlot) error {
	query := `
		INSERT INTO time_slots (tutor_id, student_id, slot_date, start_time, end_time, start_minutes, end_minutes,
			status, attendance, payout_amount, created_by, recurring_pattern_id, payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		slot.TutorID,
		slot.StudentID,
		slot.Date,
		slot.StartTime,
		slot.EndTime,
		slot.StartMinutes,
		slot.EndMinutes,
		slot.Status,
		slot.Attendance,
		slot.PayoutAmount,
		slot.CreatedBy,
		slot.RecurringPatternID,
		slot.PaymentID,
	).Scan(&slot.ID, &slot.CreatedAt, &slot.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create slot: %w", err)
	}

	return nil
}

// GetByID получает слот по ID с блокировкой строки до конца транзакции
func (r *SlotRepository) GetByID(ctx context.Context, id int64) (*model.TimeSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM time_slots WHERE id = $1 FOR UPDATE`

	slot, err := scanSlot(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}

	return slot, nil
}

// Update сохраняет изменяемые поля слота
func (r *SlotRepository) Update(ctx context.Context, slot *model.TimeSlot) error {
	query := `
		UPDATE time_slots
		SET student_id = $2, status = $3, attendance = $4, payment_id = $5,
			recurring_pattern_id = $6, cancelled_by = $7, cancelled_at = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.QueryRow(
		ctx, query,
		slot.ID,
		slot.StudentID,
		slot.Status,
		slot.Attendance,
		slot.PaymentID,
		slot.RecurringPatternID,
		slot.CancelledBy,
		slot.CancelledAt,
	).Scan(&slot.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("update slot %d: slot not found", slot.ID)
		}
		return fmt.Errorf("update slot: %w", err)
	}

	return nil
}

// FindByWindow ищет не отменённый слот учителя с тем же окном
func (r *SlotRepository) FindByWindow(ctx context.Context, tutorID int64, date time.Time, startMinutes, endMinutes int) (*model.TimeSlot, error) {
	query := `SELECT ` + slotColumns + `
		FROM time_slots
		WHERE tutor_id = $1 AND slot_date = $2 AND start_minutes = $3 AND end_minutes = $4
		  AND status <> 'cancelled'
		LIMIT 1
		FOR UPDATE
	`

	slot, err := scanSlot(r.QueryRow(ctx, query, tutorID, date, startMinutes, endMinutes))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find slot by window: %w", err)
	}

	return slot, nil
}

// FindOverlapping ищет занятые слоты, пересекающиеся с интервалом
func (r *SlotRepository) FindOverlapping(ctx context.Context, q store.OverlapQuery) ([]*model.TimeSlot, error) {
	query := `SELECT ` + slotColumns + `
		FROM time_slots
		WHERE slot_date = $1
		  AND status IN ('booked', 'completed')
		  AND start_minutes < $2
		  AND end_minutes > $3
		  AND (tutor_id = $4 OR ($5::bigint IS NOT NULL AND student_id = $5))
		  AND ($6::bigint IS NULL OR id <> $6)
		ORDER BY start_minutes, id
	`

	rows, err := r.Query(ctx, query, q.Date, q.EndMinutes, q.StartMinutes, q.TutorID, q.StudentID, q.ExcludeID)
	if err != nil {
		return nil, fmt.Errorf("find overlapping slots: %w", err)
	}

	return collectSlots(rows)
}

// ListByTutor получает все слоты учителя в диапазоне дат (включительно)
func (r *SlotRepository) ListByTutor(ctx context.Context, tutorID int64, from, to time.Time) ([]*model.TimeSlot, error) {
	query := `SELECT ` + slotColumns + `
		FROM time_slots
		WHERE tutor_id = $1 AND slot_date >= $2 AND slot_date <= $3
		ORDER BY slot_date, start_minutes, id
	`

	rows, err := r.Query(ctx, query, tutorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("get slots by tutor: %w", err)
	}

	return collectSlots(rows)
}

// ListByStudent получает все слоты студента в диапазоне дат (включительно)
func (r *SlotRepository) ListByStudent(ctx context.Context, studentID int64, from, to time.Time) ([]*model.TimeSlot, error) {
	query := `SELECT ` + slotColumns + `
		FROM time_slots
		WHERE student_id = $1 AND slot_date >= $2 AND slot_date <= $3
		ORDER BY slot_date, start_minutes, id
	`

	rows, err := r.Query(ctx, query, studentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("get slots by student: %w", err)
	}

	return collectSlots(rows)
}

// ListByPattern получает слоты, созданные регулярным занятием
func (r *SlotRepository) ListByPattern(ctx context.Context, patternID int64) ([]*model.TimeSlot, error) {
	query := `SELECT ` + slotColumns + `
		FROM time_slots
		WHERE recurring_pattern_id = $1
		ORDER BY slot_date, start_minutes, id
	`

	rows, err := r.Query(ctx, query, patternID)
	if err != nil {
		return nil, fmt.Errorf("get slots by pattern: %w", err)
	}

	return collectSlots(rows)
}

// Lock берёт advisory-блокировки транзакции. Ключи сортируются,
// чтобы параллельные транзакции брали их в одном порядке.
func (r *SlotRepository) Lock(ctx context.Context, keys ...string) error {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	for _, key := range sorted {
		if _, err := r.Querier().Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("lock %q: %w", key, err)
		}
	}

	return nil
}
