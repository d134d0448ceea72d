package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Order is the customer-facing purchase record. Rows are never deleted.
type Order struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber        string                   `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID         uuid.UUID                `gorm:"column:customer_id;type:uuid;not null;index"`
	Status             enums.OrderStatus        `gorm:"column:status;type:text;not null;default:'pending_payment'"`
	PaymentStatus      enums.OrderPaymentStatus `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	PaymentOption      enums.PaymentOption      `gorm:"column:payment_option;type:text;not null"`
	Subtotal           int64                    `gorm:"column:subtotal;not null"`
	DiscountAmount     int64                    `gorm:"column:discount_amount;not null;default:0"`
	ShippingCost       int64                    `gorm:"column:shipping_cost;not null;default:0"`
	TotalAmount        int64                    `gorm:"column:total_amount;not null"`
	RecipientName      string                   `gorm:"column:recipient_name;not null"`
	Phone              string                   `gorm:"column:phone;not null"`
	ShippingAddress    string                   `gorm:"column:shipping_address;not null"`
	Courier            *string                  `gorm:"column:courier"`
	CourierService     *string                  `gorm:"column:courier_service"`
	Notes              *string                  `gorm:"column:notes"`
	PaymentToken       *string                  `gorm:"column:payment_token"`
	PaymentRedirectURL *string                  `gorm:"column:payment_redirect_url"`
	StockDeducted      bool                     `gorm:"column:stock_deducted;not null;default:false"`
	Items              []OrderItem              `gorm:"foreignKey:OrderID"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
	CancelledAt        *time.Time               `gorm:"column:cancelled_at"`
	CompletedAt        *time.Time               `gorm:"column:completed_at"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem snapshots the priced cart line at checkout time.
type OrderItem struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID   *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	ProductName string     `gorm:"column:product_name;not null"`
	VariantName *string    `gorm:"column:variant_name"`
	Quantity    int        `gorm:"column:quantity;not null"`
	UnitPrice   int64      `gorm:"column:unit_price;not null"`
	SubTotal    int64      `gorm:"column:sub_total;not null"`
	Notes       *string    `gorm:"column:notes"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// OrderStatusHistory is the append-only audit trail of status changes.
type OrderStatusHistory struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus enums.OrderStatus `gorm:"column:from_status;type:text;not null"`
	ToStatus   enums.OrderStatus `gorm:"column:to_status;type:text;not null"`
	ActorID    *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	ActorRole  enums.Role        `gorm:"column:actor_role;type:text;not null"`
	Note       *string           `gorm:"column:note"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
