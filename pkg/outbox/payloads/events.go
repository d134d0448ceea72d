package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderCreatedEvent is emitted once checkout has persisted the order and deducted stock.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID `json:"orderId"`
	OrderNumber   string    `json:"orderNumber"`
	CustomerID    uuid.UUID `json:"customerId"`
	TotalAmount   int64     `json:"totalAmount"`
	PaymentOption string    `json:"paymentOption"`
	ItemCount     int       `json:"itemCount"`
}

// OrderStatusChangedEvent is emitted for every applied order transition.
type OrderStatusChangedEvent struct {
	OrderID       uuid.UUID `json:"orderId"`
	OrderNumber   string    `json:"orderNumber"`
	CustomerID    uuid.UUID `json:"customerId"`
	FromStatus    string    `json:"fromStatus"`
	ToStatus      string    `json:"toStatus"`
	StockRestored bool      `json:"stockRestored"`
	RefundDue     bool      `json:"refundDue"`
	Note          *string   `json:"note,omitempty"`
}

type PaymentInitiatedEvent struct {
	PaymentID     uuid.UUID `json:"paymentId"`
	OrderID       uuid.UUID `json:"orderId"`
	TransactionID string    `json:"transactionId"`
	PaymentType   string    `json:"paymentType"`
	Attempt       int       `json:"attempt"`
	Amount        int64     `json:"amount"`
}

type PaymentStatusChangedEvent struct {
	PaymentID         uuid.UUID  `json:"paymentId"`
	OrderID           uuid.UUID  `json:"orderId"`
	TransactionID     string     `json:"transactionId"`
	PaymentType       string     `json:"paymentType"`
	FromStatus        string     `json:"fromStatus"`
	ToStatus          string     `json:"toStatus"`
	TransactionStatus string     `json:"transactionStatus"`
	PaidAt            *time.Time `json:"paidAt,omitempty"`
}

type CancellationRequestedEvent struct {
	RequestID   uuid.UUID `json:"requestId"`
	OrderID     uuid.UUID `json:"orderId"`
	RequestedBy uuid.UUID `json:"requestedBy"`
	Reason      string    `json:"reason"`
}

type CancellationApprovedEvent struct {
	RequestID     uuid.UUID `json:"requestId"`
	OrderID       uuid.UUID `json:"orderId"`
	ReviewedBy    uuid.UUID `json:"reviewedBy"`
	StockRestored bool      `json:"stockRestored"`
	RefundAmount  *int64    `json:"refundAmount,omitempty"`
	RefundStatus  *string   `json:"refundStatus,omitempty"`
}

type CancellationRejectedEvent struct {
	RequestID  uuid.UUID `json:"requestId"`
	OrderID    uuid.UUID `json:"orderId"`
	CustomerID uuid.UUID `json:"customerId"`
	ReviewedBy uuid.UUID `json:"reviewedBy"`
	AdminNotes string    `json:"adminNotes"`
}

type RefundStatusChangedEvent struct {
	RequestID           uuid.UUID `json:"requestId"`
	OrderID             uuid.UUID `json:"orderId"`
	RefundStatus        string    `json:"refundStatus"`
	RefundTransactionID *string   `json:"refundTransactionId,omitempty"`
}
