package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Payment is one gateway attempt against an order. Attempts are append-only;
// TransactionID is the identity the gateway echoes back in notifications.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_payments_order_attempt,priority:1"`
	TransactionID string              `gorm:"column:transaction_id;not null;uniqueIndex"`
	Attempt       int                 `gorm:"column:attempt;not null;uniqueIndex:ux_payments_order_attempt,priority:2"`
	PaymentType   enums.PaymentType   `gorm:"column:payment_type;type:text;not null"`
	Amount        int64               `gorm:"column:amount;not null;check:amount > 0"`
	Status        enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ClientToken   *string             `gorm:"column:client_token"`
	RedirectURL   *string             `gorm:"column:redirect_url"`
	GatewayStatus *string             `gorm:"column:gateway_status"`
	FraudStatus   *string             `gorm:"column:fraud_status"`
	PaymentMethod *string             `gorm:"column:payment_method"`
	PaidAt        *time.Time          `gorm:"column:paid_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
