package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tuition_scheduler/internal/model"
	"github.com/Freeeeeet/tuition_scheduler/internal/repository/base"
)

type PaymentRepository struct {
	*base.Repository
}

func NewPaymentRepository(q base.Querier) *PaymentRepository {
	return &PaymentRepository{Repository: base.NewRepository(q)}
}

// Create сохраняет оплату
func (r *PaymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	query := `
		INSERT INTO payments (order_id, student_id, amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.QueryRow(ctx, query, payment.OrderID, payment.StudentID, payment.Amount, payment.Status).
		Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}

	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	return r.getOne(ctx, `WHERE order_id = $1`, orderID)
}

func (r *PaymentRepository) getOne(ctx context.Context, where string, arg any) (*model.Payment, error) {
	query := `SELECT id, order_id, student_id, amount, status, created_at FROM payments ` + where

	var payment model.Payment
	err := r.QueryRow(ctx, query, arg).Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.StudentID,
		&payment.Amount,
		&payment.Status,
		&payment.CreatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}

	return &payment, nil
}
