package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/orderflow-backend/api/controllers/dto"
	"github.com/angelmondragon/orderflow-backend/api/middleware"
	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/orderflow-backend/internal/checkout"
	"github.com/angelmondragon/orderflow-backend/internal/checkout/helpers"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

// CheckoutExecutor turns the caller's cart into an order.
type CheckoutExecutor interface {
	Execute(ctx context.Context, input checkoutsvc.Input) (*checkoutsvc.Result, error)
}

type checkoutRequest struct {
	PaymentOption string          `json:"payment_option" validate:"required,oneof=dp full"`
	Shipping      shippingRequest `json:"shipping" validate:"required"`
}

type shippingRequest struct {
	RecipientName  string  `json:"recipient_name" validate:"required,max=120"`
	Phone          string  `json:"phone" validate:"required,max=32"`
	Address        string  `json:"address" validate:"required,max=500"`
	Courier        *string `json:"courier" validate:"omitempty,max=64"`
	CourierService *string `json:"courier_service" validate:"omitempty,max=64"`
	Cost           int64   `json:"cost" validate:"gte=0"`
	Notes          *string `json:"notes" validate:"omitempty,max=500"`
}

type checkoutResponse struct {
	Order   dto.Order   `json:"order"`
	Payment dto.Payment `json:"payment"`
}

// Checkout submits the caller's cart and returns the new order together with
// the first payment attempt.
func Checkout(svc CheckoutExecutor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		customerID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		option, err := enums.ParsePaymentOption(payload.PaymentOption)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment option"))
			return
		}

		result, err := svc.Execute(r.Context(), checkoutsvc.Input{
			CustomerID:    customerID,
			PaymentOption: option,
			Shipping:      payload.Shipping.toShipping(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			ctx := logg.WithOrderID(r.Context(), result.Order.ID.String())
			logg.Info(ctx, "checkout completed")
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			Order:   dto.FromOrder(*result.Order),
			Payment: dto.FromPayment(*result.Payment),
		})
	}
}

func (s shippingRequest) toShipping() helpers.Shipping {
	return helpers.Shipping{
		RecipientName:  validators.SanitizeString(s.RecipientName, 120),
		Phone:          validators.SanitizeString(s.Phone, 32),
		Address:        validators.SanitizeString(s.Address, 500),
		Courier:        s.Courier,
		CourierService: s.CourierService,
		Cost:           s.Cost,
		Notes:          s.Notes,
	}
}
