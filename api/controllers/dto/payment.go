package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Payment is one gateway attempt. The client token opens the hosted payment page.
type Payment struct {
	ID            uuid.UUID           `json:"id"`
	OrderID       uuid.UUID           `json:"order_id"`
	TransactionID string              `json:"transaction_id"`
	Attempt       int                 `json:"attempt"`
	PaymentType   enums.PaymentType   `json:"payment_type"`
	Amount        int64               `json:"amount"`
	Status        enums.PaymentStatus `json:"status"`
	ClientToken   *string             `json:"client_token,omitempty"`
	RedirectURL   *string             `json:"redirect_url,omitempty"`
	PaymentMethod *string             `json:"payment_method,omitempty"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

func FromPayment(p models.Payment) Payment {
	return Payment{
		ID:            p.ID,
		OrderID:       p.OrderID,
		TransactionID: p.TransactionID,
		Attempt:       p.Attempt,
		PaymentType:   p.PaymentType,
		Amount:        p.Amount,
		Status:        p.Status,
		ClientToken:   p.ClientToken,
		RedirectURL:   p.RedirectURL,
		PaymentMethod: p.PaymentMethod,
		PaidAt:        p.PaidAt,
		CreatedAt:     p.CreatedAt,
	}
}

func FromPayments(rows []models.Payment) []Payment {
	out := make([]Payment, 0, len(rows))
	for _, p := range rows {
		out = append(out, FromPayment(p))
	}
	return out
}
