package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Order is the API view of an order. Amounts are integer IDR.
type Order struct {
	ID                 uuid.UUID                `json:"id"`
	OrderNumber        string                   `json:"order_number"`
	CustomerID         uuid.UUID                `json:"customer_id"`
	Status             enums.OrderStatus        `json:"status"`
	PaymentStatus      enums.OrderPaymentStatus `json:"payment_status"`
	PaymentOption      enums.PaymentOption      `json:"payment_option"`
	Subtotal           int64                    `json:"subtotal"`
	DiscountAmount     int64                    `json:"discount_amount"`
	ShippingCost       int64                    `json:"shipping_cost"`
	TotalAmount        int64                    `json:"total_amount"`
	RecipientName      string                   `json:"recipient_name"`
	Phone              string                   `json:"phone"`
	ShippingAddress    string                   `json:"shipping_address"`
	Courier            *string                  `json:"courier,omitempty"`
	CourierService     *string                  `json:"courier_service,omitempty"`
	Notes              *string                  `json:"notes,omitempty"`
	PaymentToken       *string                  `json:"payment_token,omitempty"`
	PaymentRedirectURL *string                  `json:"payment_redirect_url,omitempty"`
	Items              []OrderItem              `json:"items,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
	CancelledAt        *time.Time               `json:"cancelled_at,omitempty"`
	CompletedAt        *time.Time               `json:"completed_at,omitempty"`
}

type OrderItem struct {
	ID          uuid.UUID  `json:"id"`
	ProductID   uuid.UUID  `json:"product_id"`
	VariantID   *uuid.UUID `json:"variant_id,omitempty"`
	ProductName string     `json:"product_name"`
	VariantName *string    `json:"variant_name,omitempty"`
	Quantity    int        `json:"quantity"`
	UnitPrice   int64      `json:"unit_price"`
	SubTotal    int64      `json:"sub_total"`
	Notes       *string    `json:"notes,omitempty"`
}

type StatusChange struct {
	From      enums.OrderStatus `json:"from_status"`
	To        enums.OrderStatus `json:"to_status"`
	ActorID   *uuid.UUID        `json:"actor_id,omitempty"`
	ActorRole enums.Role        `json:"actor_role"`
	Note      *string           `json:"note,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// OrderDetail adds the audit trail and payment totals to an order.
type OrderDetail struct {
	Order
	History            []StatusChange      `json:"history"`
	AmountPaid         int64               `json:"amount_paid"`
	RemainingAmount    int64               `json:"remaining_amount"`
	AllowedTransitions []enums.OrderStatus `json:"allowed_transitions"`
}

type OrderPage struct {
	Orders     []Order `json:"orders"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// TransitionOutcome reports an applied status change.
type TransitionOutcome struct {
	Order         Order             `json:"order"`
	From          enums.OrderStatus `json:"from_status"`
	To            enums.OrderStatus `json:"to_status"`
	Changed       bool              `json:"changed"`
	StockRestored bool              `json:"stock_restored"`
	RefundDue     int64             `json:"refund_due,omitempty"`
}

func FromOrder(o models.Order) Order {
	out := Order{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		CustomerID:         o.CustomerID,
		Status:             o.Status,
		PaymentStatus:      o.PaymentStatus,
		PaymentOption:      o.PaymentOption,
		Subtotal:           o.Subtotal,
		DiscountAmount:     o.DiscountAmount,
		ShippingCost:       o.ShippingCost,
		TotalAmount:        o.TotalAmount,
		RecipientName:      o.RecipientName,
		Phone:              o.Phone,
		ShippingAddress:    o.ShippingAddress,
		Courier:            o.Courier,
		CourierService:     o.CourierService,
		Notes:              o.Notes,
		PaymentToken:       o.PaymentToken,
		PaymentRedirectURL: o.PaymentRedirectURL,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		CancelledAt:        o.CancelledAt,
		CompletedAt:        o.CompletedAt,
	}
	for _, item := range o.Items {
		out.Items = append(out.Items, OrderItem{
			ID:          item.ID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			SubTotal:    item.SubTotal,
			Notes:       item.Notes,
		})
	}
	return out
}

func FromDetail(d *orders.Detail) OrderDetail {
	history := make([]StatusChange, 0, len(d.History))
	for _, h := range d.History {
		history = append(history, StatusChange{
			From:      h.FromStatus,
			To:        h.ToStatus,
			ActorID:   h.ActorID,
			ActorRole: h.ActorRole,
			Note:      h.Note,
			CreatedAt: h.CreatedAt,
		})
	}
	allowed := d.AllowedTransitions
	if allowed == nil {
		allowed = []enums.OrderStatus{}
	}
	return OrderDetail{
		Order:              FromOrder(d.Order),
		History:            history,
		AmountPaid:         d.AmountPaid,
		RemainingAmount:    d.RemainingAmount,
		AllowedTransitions: allowed,
	}
}

func FromOrderPage(page *orders.ListResult) OrderPage {
	out := OrderPage{Orders: make([]Order, 0, len(page.Orders)), NextCursor: page.NextCursor}
	for _, o := range page.Orders {
		out.Orders = append(out.Orders, FromOrder(o))
	}
	return out
}

func FromTransition(result *orders.TransitionResult) TransitionOutcome {
	out := TransitionOutcome{
		From:          result.From,
		To:            result.To,
		Changed:       result.Changed,
		StockRestored: result.StockRestored,
		RefundDue:     result.RefundDue,
	}
	if result.Order != nil {
		out.Order = FromOrder(*result.Order)
	}
	return out
}
