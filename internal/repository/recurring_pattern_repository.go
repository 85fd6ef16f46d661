package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Freeeeeet/tuition_scheduler/internal/model"
	"github.com/Freeeeeet/tuition_scheduler/internal/repository/base"
)

const patternColumns = `id, group_id, tutor_id, student_id, weekday, start_time, end_time, start_minutes, end_minutes,
	duration_minutes, start_date, end_date, payment_id, status, created_by, initial_batch_months,
	last_extended_on, created_at, updated_at`

// RecurringPatternRepository управляет постоянными занятиями в базе данных
type RecurringPatternRepository struct {
	*base.Repository
}

// NewRecurringPatternRepository создаёт новый репозиторий
func NewRecurringPatternRepository(q base.Querier) *RecurringPatternRepository {
	return &RecurringPatternRepository{Repository: base.NewRepository(q)}
}

func scanPattern(row pgx.Row) (*model.RecurringBookingPattern, error) {
	var (
		pattern model.RecurringBookingPattern
		weekday int
	)
	err := row.Scan(
		&pattern.ID,
		&pattern.GroupID,
		&pattern.TutorID,
		&pattern.StudentID,
		&weekday,
		&pattern.StartTime,
		&pattern.EndTime,
		&pattern.StartMinutes,
		&pattern.EndMinutes,
		&pattern.DurationMinutes,
		&pattern.StartDate,
		&pattern.EndDate,
		&pattern.PaymentID,
		&pattern.Status,
		&pattern.CreatedBy,
		&pattern.InitialBatchMonths,
		&pattern.LastExtendedOn,
		&pattern.CreatedAt,
		&pattern.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	pattern.Weekday = time.Weekday(weekday)
	return &pattern, nil
}

func (r *RecurringPatternRepository) list(ctx context.Context, query string, args ...any) ([]*model.RecurringBookingPattern, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []*model.RecurringBookingPattern
	for rows.Next() {
		pattern, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring pattern: %w", err)
		}
		patterns = append(patterns, pattern)
	}

	return patterns, rows.Err()
}

// Create создаёт новое постоянное занятие
func (r *RecurringPatternRepository) Create(ctx context.Context, pattern *model.RecurringBookingPattern) error {
	query := `
		INSERT INTO recurring_patterns (group_id, tutor_id, student_id, weekday, start_time, end_time,
			start_minutes, end_minutes, duration_minutes, start_date, end_date, payment_id, status,
			created_by, initial_batch_months, last_extended_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(
		ctx,
		query,
		pattern.GroupID,
		pattern.TutorID,
		pattern.StudentID,
		int(pattern.Weekday),
		pattern.StartTime,
		pattern.EndTime,
		pattern.StartMinutes,
		pattern.EndMinutes,
		pattern.DurationMinutes,
		pattern.StartDate,
		pattern.EndDate,
		pattern.PaymentID,
		pattern.Status,
		pattern.CreatedBy,
		pattern.InitialBatchMonths,
		pattern.LastExtendedOn,
	).Scan(&pattern.ID, &pattern.CreatedAt, &pattern.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create recurring pattern: %w", err)
	}

	return nil
}

// GetByID получает постоянное занятие по ID
func (r *RecurringPatternRepository) GetByID(ctx context.Context, id int64) (*model.RecurringBookingPattern, error) {
	query := `SELECT ` + patternColumns + ` FROM recurring_patterns WHERE id = $1 FOR UPDATE`

	pattern, err := scanPattern(r.QueryRow(ctx, query, id))
	if base.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recurring pattern by id: %w", err)
	}

	return pattern, nil
}

// Update сохраняет статус, дату окончания и отметку продления
func (r *RecurringPatternRepository) Update(ctx context.Context, pattern *model.RecurringBookingPattern) error {
	query := `
		UPDATE recurring_patterns
		SET status = $1, end_date = $2, last_extended_on = $3, updated_at = now()
		WHERE id = $4
		RETURNING updated_at
	`

	err := r.QueryRow(ctx, query, pattern.Status, pattern.EndDate, pattern.LastExtendedOn, pattern.ID).
		Scan(&pattern.UpdatedAt)
	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("recurring pattern %d not found", pattern.ID)
		}
		return fmt.Errorf("update recurring pattern: %w", err)
	}

	return nil
}

// ListActive получает все активные постоянные занятия
func (r *RecurringPatternRepository) ListActive(ctx context.Context) ([]*model.RecurringBookingPattern, error) {
	query := `SELECT ` + patternColumns + `
		FROM recurring_patterns
		WHERE status = 'active'
		ORDER BY id
	`

	patterns, err := r.list(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get active recurring patterns: %w", err)
	}

	return patterns, nil
}

// ListByStudent получает все постоянные занятия студента
func (r *RecurringPatternRepository) ListByStudent(ctx context.Context, studentID int64) ([]*model.RecurringBookingPattern, error) {
	query := `SELECT ` + patternColumns + `
		FROM recurring_patterns
		WHERE student_id = $1
		ORDER BY weekday, start_minutes
	`

	patterns, err := r.list(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("get recurring patterns by student: %w", err)
	}

	return patterns, nil
}
