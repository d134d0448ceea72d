package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/stock"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

// Transition sources label who drove a status change in logs and metrics.
const (
	SourceAdmin        = "admin"
	SourceWebhook      = "webhook"
	SourceCancellation = "cancellation"
	SourceExpiry       = "expiry"
)

// TransitionInput describes a requested status change.
type TransitionInput struct {
	OrderID   uuid.UUID
	To        enums.OrderStatus
	ActorID   *uuid.UUID
	ActorRole enums.Role
	Note      *string
	Source    string
	// PaymentStatus, when set, refreshes the cached payment summary in the
	// same write.
	PaymentStatus *enums.OrderPaymentStatus
}

// TransitionResult reports what Transition did.
type TransitionResult struct {
	Order         *models.Order
	From          enums.OrderStatus
	To            enums.OrderStatus
	Changed       bool
	StockRelease  *stock.BulkResult
	StockRestored bool
	RefundDue     int64
}

// UpdateStatusInput is the admin progression request.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	AdminID uuid.UUID
	Note    *string
}

// ListParams filters a customer's order list.
type ListParams struct {
	CustomerID uuid.UUID
	Status     *enums.OrderStatus
	pagination.Params
}

// ListResult is one page of orders.
type ListResult struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Detail is the order view returned to customers and admins.
type Detail struct {
	Order              models.Order                `json:"order"`
	History            []models.OrderStatusHistory `json:"history"`
	AmountPaid         int64                       `json:"amount_paid"`
	RemainingAmount    int64                       `json:"remaining_amount"`
	AllowedTransitions []enums.OrderStatus         `json:"allowed_transitions"`
}
