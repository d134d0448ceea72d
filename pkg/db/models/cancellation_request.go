package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// CancellationRequest is a customer's request to cancel an order plus the
// refund bookkeeping recorded when an admin approves it. At most one pending
// request exists per order.
type CancellationRequest struct {
	ID                  uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrderID             uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index;uniqueIndex:ux_order_cancellation_requests_pending,where:status = 'pending'"`
	RequestedBy         uuid.UUID                `gorm:"column:requested_by;type:uuid;not null"`
	Reason              string                   `gorm:"column:reason;not null"`
	Status              enums.CancellationStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ReviewedBy          *uuid.UUID               `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt          *time.Time               `gorm:"column:reviewed_at"`
	AdminNotes          *string                  `gorm:"column:admin_notes"`
	RefundInitiated     bool                     `gorm:"column:refund_initiated;not null;default:false"`
	RefundAmount        *int64                   `gorm:"column:refund_amount"`
	RefundStatus        *enums.RefundStatus      `gorm:"column:refund_status;type:text"`
	RefundTransactionID *string                  `gorm:"column:refund_transaction_id"`
	StockRestored       bool                     `gorm:"column:stock_restored;not null;default:false"`
	Order               *Order                   `gorm:"foreignKey:OrderID"`
	CreatedAt           time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (CancellationRequest) TableName() string {
	return "order_cancellation_requests"
}

func (r *CancellationRequest) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
