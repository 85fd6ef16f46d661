// Package payment оформляет заказы в платёжном шлюзе и проверяет его уведомления.
// Расчёты, возвраты и выплаты живут на стороне шлюза.
package payment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderRequest данные для заказа
type OrderRequest struct {
	OrderID     string
	Amount      int64
	FirstName   string
	LastName    string
	Email       string
	Description string
}

// Order созданный в шлюзе заказ
type Order struct {
	OrderID     string
	Token       string
	RedirectURL string
}

// Notification уведомление шлюза об оплате
type Notification struct {
	OrderID           string `json:"order_id" validate:"required"`
	StatusCode        string `json:"status_code" validate:"required"`
	GrossAmount       string `json:"gross_amount" validate:"required"`
	SignatureKey      string `json:"signature_key" validate:"required"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
}

// Settled оплата прошла
func (n Notification) Settled() bool {
	switch strings.ToLower(n.TransactionStatus) {
	case "settlement":
		return true
	case "capture":
		return strings.ToLower(n.FraudStatus) == "accept"
	}
	return false
}

type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	VerifySignature(n Notification) bool
}

// NewOrderID формирует order_id вида PREFIX-20240101-101500-1A2B3C4D
func NewOrderID(prefix string, now time.Time) string {
	u := strings.ToUpper(uuid.New().String()[:8])
	return prefix + "-" + now.Format("20060102-150405") + "-" + u
}
