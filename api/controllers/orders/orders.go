package orders

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
	internalorders "github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

// OrderReader is the read side of the order lifecycle.
type OrderReader interface {
	List(ctx context.Context, params internalorders.ListParams) (*internalorders.ListResult, error)
	Get(ctx context.Context, orderID, customerID uuid.UUID, admin bool) (*internalorders.Detail, error)
}

// CancellationRequester is the customer side of the cancellation workflow.
type CancellationRequester interface {
	Eligibility(ctx context.Context, orderID, customerID uuid.UUID) (*cancellation.Eligibility, error)
	CreateRequest(ctx context.Context, input cancellation.CreateRequestInput) (*models.CancellationRequest, error)
}

// PaymentStarter opens follow-up payment attempts and lists past ones.
type PaymentStarter interface {
	InitiateFinal(ctx context.Context, orderID, customerID uuid.UUID) (*models.Payment, error)
	Retry(ctx context.Context, orderID, customerID uuid.UUID) (*models.Payment, error)
	History(ctx context.Context, orderID, customerID uuid.UUID, admin bool) ([]models.Payment, error)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// List returns the caller's orders, newest first.
func List(svc OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		customerID, err := customerIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseQueryEnum(r, "status", enums.ParseOrderStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), internalorders.ListParams{
			CustomerID: customerID,
			Status:     status,
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromOrderPage(page))
	}
}

// Detail returns one order with its audit trail. Orders of other customers
// read as not found.
func Detail(svc OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		customerID, orderID, err := callerAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), orderID, customerID, false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromDetail(detail))
	}
}

func CancellationEligibility(svc CancellationRequester, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}
		customerID, orderID, err := callerAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Eligibility(r.Context(), orderID, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RequestCancellation opens a cancellation request for admin review.
func RequestCancellation(svc CancellationRequester, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}
		customerID, orderID, err := callerAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.CreateRequest(r.Context(), cancellation.CreateRequestInput{
			OrderID:    orderID,
			CustomerID: customerID,
			Reason:     strings.TrimSpace(payload.Reason),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.FromCancellation(*request))
	}
}

// InitiateFinalPayment opens a gateway transaction for the remaining balance
// of a partially paid order.
func InitiateFinalPayment(svc PaymentStarter, logg *logger.Logger) http.HandlerFunc {
	return paymentAction(svc, logg, func(ctx context.Context, orderID, customerID uuid.UUID) (*models.Payment, error) {
		return svc.InitiateFinal(ctx, orderID, customerID)
	})
}

// RetryPayment opens a fresh attempt for an order whose last attempt failed
// or expired.
func RetryPayment(svc PaymentStarter, logg *logger.Logger) http.HandlerFunc {
	return paymentAction(svc, logg, func(ctx context.Context, orderID, customerID uuid.UUID) (*models.Payment, error) {
		return svc.Retry(ctx, orderID, customerID)
	})
}

func PaymentHistory(svc PaymentStarter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		customerID, orderID, err := callerAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.History(r.Context(), orderID, customerID, false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromPayments(rows))
	}
}

func paymentAction(svc PaymentStarter, logg *logger.Logger, run func(context.Context, uuid.UUID, uuid.UUID) (*models.Payment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		customerID, orderID, err := callerAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		payment, err := run(ctx, orderID, customerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.FromPayment(*payment))
	}
}

func callerAndOrder(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	customerID, err := customerIDFromContext(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return customerID, orderID, nil
}

func customerIDFromContext(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	return id, nil
}
