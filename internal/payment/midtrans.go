package payment

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/Freeeeeet/tuition_scheduler/internal/errs"
)

type snapClient interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

// Midtrans шлюз Midtrans Snap
type Midtrans struct {
	client    snapClient
	serverKey string
}

// NewMidtrans создаёт клиента Snap для sandbox или production
func NewMidtrans(serverKey string, production bool) *Midtrans {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}

	client := &snap.Client{}
	client.New(serverKey, env)

	return &Midtrans{client: client, serverKey: serverKey}
}

func newMidtransWithClient(client snapClient, serverKey string) *Midtrans {
	return &Midtrans{client: client, serverKey: serverKey}
}

// CreateOrder создаёт транзакцию Snap и возвращает токен оплаты
func (m *Midtrans) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if req.Amount <= 0 {
		return Order{}, errs.Validation("order amount must be positive").Arg("amount", req.Amount)
	}
	if req.OrderID == "" {
		return Order{}, errs.Validation("order id is required")
	}
	if err := ctx.Err(); err != nil {
		return Order{}, errs.Infrastructure("payment gateway call cancelled").Wrap(err)
	}

	name := req.Description
	if name == "" {
		name = "Tuition"
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.Amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.FirstName,
			LName: req.LastName,
			Email: req.Email,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.OrderID,
				Price: req.Amount,
				Qty:   1,
				Name:  truncate(name, 50),
			},
		},
	}

	resp, mErr := m.client.CreateTransaction(snapReq)
	if mErr != nil {
		return Order{}, errs.Infrastructure("payment gateway rejected order").
			Arg("order_id", req.OrderID).
			Wrap(fmt.Errorf("create snap transaction: %w", mErr))
	}

	return Order{OrderID: req.OrderID, Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// VerifySignature проверяет подпись: SHA512(order_id + status_code + gross_amount + server_key)
func (m *Midtrans) VerifySignature(n Notification) bool {
	want := strings.ToLower(n.SignatureKey)
	if want == "" {
		return false
	}
	got := signature(n.OrderID, n.StatusCode, n.GrossAmount, m.serverKey)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func signature(orderID, statusCode, grossAmount, serverKey string) string {
	h := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(h[:])
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var _ Gateway = (*Midtrans)(nil)
