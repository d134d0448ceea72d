package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/orderflow-backend/internal/checkout"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

type stubCheckout struct {
	execute func(ctx context.Context, input checkoutsvc.Input) (*checkoutsvc.Result, error)
}

func (s stubCheckout) Execute(ctx context.Context, input checkoutsvc.Input) (*checkoutsvc.Result, error) {
	return s.execute(ctx, input)
}

const validCheckoutBody = `{
	"payment_option": "dp",
	"shipping": {
		"recipient_name": " Budi Santoso ",
		"phone": "+628123456789",
		"address": "Jl. Merdeka 1, Jakarta",
		"courier": "jne",
		"cost": 15000
	}
}`

func checkoutRequestFor(customerID uuid.UUID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	return req.WithContext(middleware.WithUserID(req.Context(), customerID.String()))
}

func TestCheckoutCreatesOrderAndPayment(t *testing.T) {
	customerID := uuid.New()
	var got checkoutsvc.Input
	svc := stubCheckout{execute: func(_ context.Context, input checkoutsvc.Input) (*checkoutsvc.Result, error) {
		got = input
		order := &models.Order{ID: uuid.New(), OrderNumber: "ORD-20260101-A1B2C3", CustomerID: customerID, Status: enums.OrderStatusPendingPayment, TotalAmount: 215000}
		return &checkoutsvc.Result{
			Order:   order,
			Payment: &models.Payment{ID: uuid.New(), OrderID: order.ID, Attempt: 1, PaymentType: enums.PaymentTypeDownPayment, Amount: 107500},
		}, nil
	}}

	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, checkoutRequestFor(customerID, validCheckoutBody))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	assert.Equal(t, customerID, got.CustomerID)
	assert.Equal(t, enums.PaymentOptionDownPayment, got.PaymentOption)
	assert.Equal(t, "Budi Santoso", got.Shipping.RecipientName)
	assert.Equal(t, int64(15000), got.Shipping.Cost)

	var envelope struct {
		Data struct {
			Order struct {
				OrderNumber string `json:"order_number"`
			} `json:"order"`
			Payment struct {
				Amount int64 `json:"amount"`
			} `json:"payment"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "ORD-20260101-A1B2C3", envelope.Data.Order.OrderNumber)
	assert.Equal(t, int64(107500), envelope.Data.Payment.Amount)
}

func TestCheckoutRejectsUnknownPaymentOption(t *testing.T) {
	svc := stubCheckout{execute: func(context.Context, checkoutsvc.Input) (*checkoutsvc.Result, error) {
		t.Fatal("service should not be called")
		return nil, nil
	}}
	body := strings.Replace(validCheckoutBody, `"dp"`, `"installments"`, 1)
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, checkoutRequestFor(uuid.New(), body))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestCheckoutRequiresIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(validCheckoutBody))
	resp := httptest.NewRecorder()
	Checkout(stubCheckout{}, nil).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCheckoutSurfacesBusinessErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "empty cart", err: pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty"), want: http.StatusUnprocessableEntity},
		{name: "insufficient stock", err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "Insufficient stock for Kopi Arabica"), want: http.StatusUnprocessableEntity},
		{name: "gateway down", err: pkgerrors.New(pkgerrors.CodeGateway, "create transaction"), want: http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := stubCheckout{execute: func(context.Context, checkoutsvc.Input) (*checkoutsvc.Result, error) {
				return nil, tc.err
			}}
			resp := httptest.NewRecorder()
			Checkout(svc, nil).ServeHTTP(resp, checkoutRequestFor(uuid.New(), validCheckoutBody))
			assert.Equal(t, tc.want, resp.Code)
		})
	}
}
