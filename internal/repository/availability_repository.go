package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Freeeeeet/tuition_scheduler/internal/model"
	"github.com/Freeeeeet/tuition_scheduler/internal/repository/base"
)

// AvailabilityRepository хранит недельное расписание учителей и студентов
type AvailabilityRepository struct {
	*base.Repository
}

func NewAvailabilityRepository(q base.Querier) *AvailabilityRepository {
	return &AvailabilityRepository{Repository: base.NewRepository(q)}
}

// DeleteByOwner удаляет все блоки владельца
func (r *AvailabilityRepository) DeleteByOwner(ctx context.Context, owner model.Owner) (int64, error) {
	affected, err := r.ExecAffected(ctx,
		`DELETE FROM weekly_availability WHERE owner_kind = $1 AND owner_id = $2`,
		owner.Kind, owner.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete availability of %s: %w", owner, err)
	}

	return affected, nil
}

// CreateMany вставляет блоки одним батчем
func (r *AvailabilityRepository) CreateMany(ctx context.Context, blocks []*model.WeeklyAvailabilityBlock) error {
	if len(blocks) == 0 {
		return nil
	}

	query := `
		INSERT INTO weekly_availability (owner_kind, owner_id, weekday, start_time, end_time, start_minutes, end_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	batch := &pgx.Batch{}
	for _, block := range blocks {
		batch.Queue(query,
			block.Owner.Kind,
			block.Owner.ID,
			int(block.Weekday),
			block.StartTime,
			block.EndTime,
			block.StartMinutes,
			block.EndMinutes,
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&block.ID, &block.CreatedAt)
		})
	}

	if err := r.Querier().SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("create availability: %w", err)
	}

	return nil
}

// ListByOwner возвращает блоки владельца, упорядоченные по дню и времени
func (r *AvailabilityRepository) ListByOwner(ctx context.Context, owner model.Owner) ([]*model.WeeklyAvailabilityBlock, error) {
	query := `
		SELECT id, owner_kind, owner_id, weekday, start_time, end_time, start_minutes, end_minutes, created_at
		FROM weekly_availability
		WHERE owner_kind = $1 AND owner_id = $2
		ORDER BY weekday, start_minutes
	`

	rows, err := r.Query(ctx, query, owner.Kind, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("get availability of %s: %w", owner, err)
	}
	defer rows.Close()

	var blocks []*model.WeeklyAvailabilityBlock
	for rows.Next() {
		var (
			block   model.WeeklyAvailabilityBlock
			weekday int
		)
		err := rows.Scan(
			&block.ID,
			&block.Owner.Kind,
			&block.Owner.ID,
			&weekday,
			&block.StartTime,
			&block.EndTime,
			&block.StartMinutes,
			&block.EndMinutes,
			&block.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan availability block: %w", err)
		}
		block.Weekday = time.Weekday(weekday)
		blocks = append(blocks, &block)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability blocks: %w", err)
	}

	return blocks, nil
}
