package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// Payment - проекция оплаты. Расчёты и возвраты живут в платёжном шлюзе.
type Payment struct {
	ID        int64         `json:"id"`
	OrderID   string        `json:"order_id"`
	StudentID int64         `json:"student_id"`
	Amount    int64         `json:"amount"`
	Status    PaymentStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}
