package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tuition_scheduler/internal/model"
	"github.com/Freeeeeet/tuition_scheduler/internal/repository/base"
)

type UserRepository struct {
	*base.Repository
}

func NewUserRepository(q base.Querier) *UserRepository {
	return &UserRepository{Repository: base.NewRepository(q)}
}

// Create создаёт нового пользователя
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (role, first_name, last_name, email, telegram_chat_id, is_active, enrollment_from, enrollment_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.QueryRow(
		ctx, query,
		user.Role,
		user.FirstName,
		user.LastName,
		user.Email,
		user.TelegramChatID,
		user.IsActive,
		user.EnrollmentFrom,
		user.EnrollmentTo,
	).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

// GetByID получает пользователя по ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `
		SELECT id, role, first_name, last_name, email, telegram_chat_id, is_active, enrollment_from, enrollment_to, created_at
		FROM users
		WHERE id = $1
	`

	var user model.User
	err := r.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Role,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.TelegramChatID,
		&user.IsActive,
		&user.EnrollmentFrom,
		&user.EnrollmentTo,
		&user.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}

	return &user, nil
}

// SetActive включает или выключает пользователя
func (r *UserRepository) SetActive(ctx context.Context, id int64, active bool) error {
	affected, err := r.ExecAffected(ctx, `UPDATE users SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("user %d not found", id)
	}

	return nil
}
