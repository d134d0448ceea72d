package payments

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/gateway"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
)

type stubCharger struct {
	createFn func(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResponse, error)
	requests []gateway.ChargeRequest
}

func (s *stubCharger) CreateTransaction(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
	s.requests = append(s.requests, req)
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return &gateway.ChargeResponse{Token: "tok-" + req.TransactionID, RedirectURL: "https://pay.test/" + req.TransactionID}, nil
}

type recordingMetrics struct {
	results map[string]int
}

func (m *recordingMetrics) IncPaymentAttempt(paymentType, result string) {
	if m.results == nil {
		m.results = map[string]int{}
	}
	m.results[paymentType+":"+result]++
}

func newPaymentsDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:payments_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Order{}, &models.OrderItem{}, &models.Payment{}, &models.OutboxEvent{}))
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB, charger gateway.Charger, metrics attemptMetrics) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Repository:          NewRepository(conn),
		DB:                  db.NewFromConn(conn),
		Gateway:             charger,
		Outbox:              outbox.NewService(outbox.NewRepository(conn), logg),
		Metrics:             metrics,
		Logger:              logg,
		DownPaymentFraction: decimal.NewFromFloat(0.5),
	})
	require.NoError(t, err)
	return svc
}

func seedOrder(t *testing.T, conn *gorm.DB, customerID uuid.UUID, status enums.OrderStatus, total int64) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:     "ORD-20260105-" + uuid.NewString()[:6],
		CustomerID:      customerID,
		Status:          status,
		PaymentStatus:   enums.OrderPaymentUnpaid,
		PaymentOption:   enums.PaymentOptionDownPayment,
		Subtotal:        total,
		TotalAmount:     total,
		RecipientName:   "Rina",
		Phone:           "0812",
		ShippingAddress: "Jl. Merdeka 1",
	}
	require.NoError(t, conn.Create(order).Error)
	return order
}

func seedPayment(t *testing.T, conn *gorm.DB, orderID uuid.UUID, attempt int, paymentType enums.PaymentType, amount int64, status enums.PaymentStatus) {
	t.Helper()
	require.NoError(t, conn.Create(&models.Payment{
		OrderID:       orderID,
		TransactionID: "seed-" + uuid.NewString()[:8],
		Attempt:       attempt,
		PaymentType:   paymentType,
		Amount:        amount,
		Status:        status,
	}).Error)
}

func TestDownPaymentAmount(t *testing.T) {
	half := decimal.NewFromFloat(0.5)
	require.Equal(t, int64(75000), DownPaymentAmount(150000, half))
	require.Equal(t, int64(50001), DownPaymentAmount(100001, half))
	require.Equal(t, int64(1), DownPaymentAmount(1, decimal.NewFromFloat(0.3)))
	require.Equal(t, int64(30000), DownPaymentAmount(100000, decimal.NewFromFloat(0.3)))
}

func TestInitiatePersistsAttemptAndToken(t *testing.T) {
	conn := newPaymentsDB(t)
	charger := &stubCharger{}
	metrics := &recordingMetrics{}
	svc := newTestService(t, conn, charger, metrics)
	order := seedOrder(t, conn, uuid.New(), enums.OrderStatusPendingPayment, 150000)

	payment, err := svc.Initiate(context.Background(), conn, order, enums.PaymentOptionDownPayment, outbox.SystemActor())
	require.NoError(t, err)
	require.Equal(t, int64(75000), payment.Amount)
	require.Equal(t, 1, payment.Attempt)
	require.Equal(t, enums.PaymentTypeDownPayment, payment.PaymentType)
	require.Len(t, charger.requests, 1)
	require.Equal(t, payment.TransactionID, charger.requests[0].TransactionID)
	require.Equal(t, int64(75000), charger.requests[0].Amount)

	var stored models.Order
	require.NoError(t, conn.First(&stored, "id = ?", order.ID).Error)
	require.NotNil(t, stored.PaymentToken)
	require.Equal(t, "tok-"+payment.TransactionID, *stored.PaymentToken)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPaymentInitiated).Count(&events).Error)
	require.Equal(t, int64(1), events)
	require.Equal(t, 1, metrics.results["dp:ok"])
}

func TestInitiateGatewayErrorAbortsTransaction(t *testing.T) {
	conn := newPaymentsDB(t)
	charger := &stubCharger{createFn: func(context.Context, gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
		return nil, errors.New("connection refused")
	}}
	svc := newTestService(t, conn, charger, nil)
	order := seedOrder(t, conn, uuid.New(), enums.OrderStatusPendingPayment, 90000)

	err := db.NewFromConn(conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := svc.Initiate(context.Background(), tx, order, enums.PaymentOptionFull, nil)
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway), "got %v", err)

	var count int64
	require.NoError(t, conn.Model(&models.Payment{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestInitiateFinalChargesRemaining(t *testing.T) {
	conn := newPaymentsDB(t)
	charger := &stubCharger{}
	svc := newTestService(t, conn, charger, nil)
	customer := uuid.New()
	order := seedOrder(t, conn, customer, enums.OrderStatusPartiallyPaid, 150000)
	seedPayment(t, conn, order.ID, 1, enums.PaymentTypeDownPayment, 75000, enums.PaymentStatusPaid)

	payment, err := svc.InitiateFinal(context.Background(), order.ID, customer)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentTypeFinal, payment.PaymentType)
	require.Equal(t, int64(75000), payment.Amount)
	require.Equal(t, 2, payment.Attempt)
}

func TestInitiateFinalRejections(t *testing.T) {
	conn := newPaymentsDB(t)
	svc := newTestService(t, conn, &stubCharger{}, nil)
	customer := uuid.New()

	pending := seedOrder(t, conn, customer, enums.OrderStatusPendingPayment, 1000)
	_, err := svc.InitiateFinal(context.Background(), pending.ID, customer)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "got %v", err)

	settled := seedOrder(t, conn, customer, enums.OrderStatusPartiallyPaid, 1000)
	seedPayment(t, conn, settled.ID, 1, enums.PaymentTypeDownPayment, 1000, enums.PaymentStatusPaid)
	_, err = svc.InitiateFinal(context.Background(), settled.ID, customer)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNoRemainingBalance), "got %v", err)

	_, err = svc.InitiateFinal(context.Background(), settled.ID, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestRetryAppendsFreshAttempt(t *testing.T) {
	conn := newPaymentsDB(t)
	charger := &stubCharger{}
	svc := newTestService(t, conn, charger, nil)
	customer := uuid.New()
	order := seedOrder(t, conn, customer, enums.OrderStatusPendingPayment, 150000)
	seedPayment(t, conn, order.ID, 1, enums.PaymentTypeDownPayment, 75000, enums.PaymentStatusCancelled)

	payment, err := svc.Retry(context.Background(), order.ID, customer)
	require.NoError(t, err)
	require.Equal(t, 2, payment.Attempt)
	require.Equal(t, enums.PaymentTypeDownPayment, payment.PaymentType)
	require.Equal(t, int64(75000), payment.Amount)

	history, err := svc.History(context.Background(), order.ID, customer, false)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.NotEqual(t, history[0].TransactionID, history[1].TransactionID)

	paidOrder := seedOrder(t, conn, customer, enums.OrderStatusPaid, 1000)
	_, err = svc.Retry(context.Background(), paidOrder.ID, customer)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestRetrySupersedesPendingAttempt(t *testing.T) {
	conn := newPaymentsDB(t)
	svc := newTestService(t, conn, &stubCharger{}, nil)
	customer := uuid.New()
	order := seedOrder(t, conn, customer, enums.OrderStatusPendingPayment, 150000)
	seedPayment(t, conn, order.ID, 1, enums.PaymentTypeDownPayment, 75000, enums.PaymentStatusPending)

	payment, err := svc.Retry(context.Background(), order.ID, customer)
	require.NoError(t, err)
	require.Equal(t, 2, payment.Attempt)

	var first models.Payment
	require.NoError(t, conn.Where("order_id = ? AND attempt = ?", order.ID, 1).First(&first).Error)
	require.Equal(t, enums.PaymentStatusCancelled, first.Status)

	var pending int64
	require.NoError(t, conn.Model(&models.Payment{}).Where("order_id = ? AND status = ?", order.ID, enums.PaymentStatusPending).Count(&pending).Error)
	require.Equal(t, int64(1), pending)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ? AND aggregate_id = ?", enums.EventPaymentStatusChanged, first.ID).Count(&events).Error)
	require.Equal(t, int64(1), events)
}

func TestRetryKeepsPendingAttemptWhenGatewayFails(t *testing.T) {
	conn := newPaymentsDB(t)
	charger := &stubCharger{createFn: func(context.Context, gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
		return nil, errors.New("gateway timeout")
	}}
	svc := newTestService(t, conn, charger, nil)
	customer := uuid.New()
	order := seedOrder(t, conn, customer, enums.OrderStatusPendingPayment, 150000)
	seedPayment(t, conn, order.ID, 1, enums.PaymentTypeDownPayment, 75000, enums.PaymentStatusPending)

	_, err := svc.Retry(context.Background(), order.ID, customer)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway), "got %v", err)

	var first models.Payment
	require.NoError(t, conn.Where("order_id = ? AND attempt = ?", order.ID, 1).First(&first).Error)
	require.Equal(t, enums.PaymentStatusPending, first.Status)
}

func TestSumPaidIgnoresUnpaidAttempts(t *testing.T) {
	conn := newPaymentsDB(t)
	svc := newTestService(t, conn, &stubCharger{}, nil)
	order := seedOrder(t, conn, uuid.New(), enums.OrderStatusPartiallyPaid, 150000)
	seedPayment(t, conn, order.ID, 1, enums.PaymentTypeDownPayment, 75000, enums.PaymentStatusPaid)
	seedPayment(t, conn, order.ID, 2, enums.PaymentTypeFinal, 75000, enums.PaymentStatusFailed)

	paid, err := svc.SumPaid(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, int64(75000), paid)
}
