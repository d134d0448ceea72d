package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/api/controllers/dto"
	"github.com/angelmondragon/orderflow-backend/api/middleware"
	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	"github.com/angelmondragon/orderflow-backend/internal/cancellation"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

// CancellationReviewer is the admin side of the cancellation workflow.
type CancellationReviewer interface {
	List(ctx context.Context, filter cancellation.ListFilter) (*cancellation.ListResult, error)
	Get(ctx context.Context, requestID uuid.UUID) (*models.CancellationRequest, error)
	Approve(ctx context.Context, input cancellation.ApproveInput) (*cancellation.ApproveResult, error)
	Reject(ctx context.Context, input cancellation.RejectInput) (*models.CancellationRequest, error)
	UpdateRefundStatus(ctx context.Context, input cancellation.UpdateRefundInput) (*models.CancellationRequest, error)
}

type approveRequest struct {
	Notes        *string `json:"notes" validate:"omitempty,max=1000"`
	RefundAmount *int64  `json:"refund_amount" validate:"omitempty,gte=0"`
}

type rejectRequest struct {
	Notes string `json:"notes" validate:"required,max=1000"`
}

type refundStatusRequest struct {
	Status        string  `json:"status" validate:"required,oneof=pending completed failed"`
	TransactionID *string `json:"transaction_id" validate:"omitempty,max=128"`
}

// AdminCancellationList pages through cancellation requests, optionally
// filtered by status.
func AdminCancellationList(svc CancellationReviewer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseQueryEnum(r, "status", enums.ParseCancellationStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), cancellation.ListFilter{
			Status: status,
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromCancellationPage(page))
	}
}

func AdminCancellationDetail(svc CancellationReviewer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Get(r.Context(), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromCancellation(*request))
	}
}

// AdminCancellationApprove cancels the order and records the refund owed.
// The body is optional.
func AdminCancellationApprove(svc CancellationReviewer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}
		adminID, requestID, err := adminAndRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload approveRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Approve(r.Context(), cancellation.ApproveInput{
			RequestID:    requestID,
			AdminID:      adminID,
			Notes:        trimmedOrNil(payload.Notes),
			RefundAmount: payload.RefundAmount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromApproval(result))
	}
}

func AdminCancellationReject(svc CancellationReviewer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}
		adminID, requestID, err := adminAndRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload rejectRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Reject(r.Context(), cancellation.RejectInput{
			RequestID: requestID,
			AdminID:   adminID,
			Notes:     strings.TrimSpace(payload.Notes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromCancellation(*request))
	}
}

// AdminCancellationRefund records the outcome of a manual refund.
func AdminCancellationRefund(svc CancellationReviewer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}
		adminID, requestID, err := adminAndRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseRefundStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refund status"))
			return
		}

		request, err := svc.UpdateRefundStatus(r.Context(), cancellation.UpdateRefundInput{
			RequestID:     requestID,
			AdminID:       adminID,
			Status:        status,
			TransactionID: trimmedOrNil(payload.TransactionID),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromCancellation(*request))
	}
}

func adminAndRequest(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	adminID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin identity missing")
	}
	requestID, err := validators.ParseUUIDParam(r, "requestId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return adminID, requestID, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
