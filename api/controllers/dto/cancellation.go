package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/cancellation"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

type CancellationRequest struct {
	ID                  uuid.UUID                `json:"id"`
	OrderID             uuid.UUID                `json:"order_id"`
	RequestedBy         uuid.UUID                `json:"requested_by"`
	Reason              string                   `json:"reason"`
	Status              enums.CancellationStatus `json:"status"`
	ReviewedBy          *uuid.UUID               `json:"reviewed_by,omitempty"`
	ReviewedAt          *time.Time               `json:"reviewed_at,omitempty"`
	AdminNotes          *string                  `json:"admin_notes,omitempty"`
	RefundInitiated     bool                     `json:"refund_initiated"`
	RefundAmount        *int64                   `json:"refund_amount,omitempty"`
	RefundStatus        *enums.RefundStatus      `json:"refund_status,omitempty"`
	RefundTransactionID *string                  `json:"refund_transaction_id,omitempty"`
	StockRestored       bool                     `json:"stock_restored"`
	Order               *Order                   `json:"order,omitempty"`
	CreatedAt           time.Time                `json:"created_at"`
	UpdatedAt           time.Time                `json:"updated_at"`
}

type CancellationPage struct {
	Requests   []CancellationRequest `json:"requests"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

// Approval is the approved request together with the order transition it caused.
type Approval struct {
	Request    CancellationRequest `json:"request"`
	Transition *TransitionOutcome  `json:"transition,omitempty"`
}

func FromCancellation(r models.CancellationRequest) CancellationRequest {
	out := CancellationRequest{
		ID:                  r.ID,
		OrderID:             r.OrderID,
		RequestedBy:         r.RequestedBy,
		Reason:              r.Reason,
		Status:              r.Status,
		ReviewedBy:          r.ReviewedBy,
		ReviewedAt:          r.ReviewedAt,
		AdminNotes:          r.AdminNotes,
		RefundInitiated:     r.RefundInitiated,
		RefundAmount:        r.RefundAmount,
		RefundStatus:        r.RefundStatus,
		RefundTransactionID: r.RefundTransactionID,
		StockRestored:       r.StockRestored,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
	if r.Order != nil {
		order := FromOrder(*r.Order)
		out.Order = &order
	}
	return out
}

func FromCancellationPage(page *cancellation.ListResult) CancellationPage {
	out := CancellationPage{Requests: make([]CancellationRequest, 0, len(page.Requests)), NextCursor: page.NextCursor}
	for _, r := range page.Requests {
		out.Requests = append(out.Requests, FromCancellation(r))
	}
	return out
}

func FromApproval(result *cancellation.ApproveResult) Approval {
	out := Approval{}
	if result.Request != nil {
		out.Request = FromCancellation(*result.Request)
	}
	if result.Transition != nil {
		transition := FromTransition(result.Transition)
		out.Transition = &transition
	}
	return out
}
