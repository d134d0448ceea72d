package cancellation

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

// CreateRequestInput is a customer's cancellation request.
type CreateRequestInput struct {
	OrderID    uuid.UUID
	CustomerID uuid.UUID
	Reason     string
}

// ApproveInput is an admin approval. RefundAmount defaults to the amount paid.
type ApproveInput struct {
	RequestID    uuid.UUID
	AdminID      uuid.UUID
	Notes        *string
	RefundAmount *int64
}

// ApproveResult reports the approved request and the order transition.
type ApproveResult struct {
	Request    *models.CancellationRequest
	Transition *orders.TransitionResult
}

// RejectInput is an admin rejection; Notes are required.
type RejectInput struct {
	RequestID uuid.UUID
	AdminID   uuid.UUID
	Notes     string
}

// UpdateRefundInput records the outcome of a manual refund.
type UpdateRefundInput struct {
	RequestID     uuid.UUID
	AdminID       uuid.UUID
	Status        enums.RefundStatus
	TransactionID *string
}

// ListFilter narrows the admin request list.
type ListFilter struct {
	Status *enums.CancellationStatus
	pagination.Params
}

// ListResult is one page of requests.
type ListResult struct {
	Requests   []models.CancellationRequest
	NextCursor string
}
