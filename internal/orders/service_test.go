package orders

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/stock"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

type countingMetrics struct {
	transitions map[string]int
	rejected    map[string]int
	consistency map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		transitions: map[string]int{},
		rejected:    map[string]int{},
		consistency: map[string]int{},
	}
}

func (m *countingMetrics) IncTransition(from, to string) { m.transitions[from+"->"+to]++ }
func (m *countingMetrics) IncRejectedTransition(source string) { m.rejected[source]++ }
func (m *countingMetrics) IncConsistencyFailure(kind string) { m.consistency[kind]++ }

type fixture struct {
	conn    *gorm.DB
	svc     *Service
	metrics *countingMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:orders_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Product{},
		&models.ProductVariant{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderStatusHistory{},
		&models.Payment{},
		&models.OutboxEvent{},
	))

	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	metrics := newCountingMetrics()
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		DB:         db.NewFromConn(conn),
		Stock:      stock.NewLedger(),
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logg),
		Metrics:    metrics,
		Logger:     logg,
	})
	require.NoError(t, err)
	return &fixture{conn: conn, svc: svc, metrics: metrics}
}

func (f *fixture) seedVariant(t *testing.T, stockLeft int) uuid.UUID {
	t.Helper()
	product := models.Product{Name: "Sticker pack", Price: 25000, IsActive: true}
	require.NoError(t, f.conn.Create(&product).Error)
	variant := models.ProductVariant{ProductID: product.ID, Name: "Glossy", Stock: stockLeft}
	require.NoError(t, f.conn.Create(&variant).Error)
	return variant.ID
}

func (f *fixture) seedOrder(t *testing.T, customerID uuid.UUID, status enums.OrderStatus, variantQty map[uuid.UUID]int) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:     NewOrderNumber(time.Now()),
		CustomerID:      customerID,
		Status:          status,
		PaymentStatus:   enums.OrderPaymentUnpaid,
		PaymentOption:   enums.PaymentOptionFull,
		Subtotal:        100000,
		TotalAmount:     100000,
		RecipientName:   "Dewi",
		Phone:           "0813",
		ShippingAddress: "Jl. Sudirman 5",
		StockDeducted:   len(variantQty) > 0,
	}
	for variantID, qty := range variantQty {
		id := variantID
		order.Items = append(order.Items, models.OrderItem{
			ProductID:   uuid.New(),
			VariantID:   &id,
			ProductName: "Sticker pack",
			Quantity:    qty,
			UnitPrice:   25000,
			SubTotal:    int64(qty) * 25000,
		})
	}
	require.NoError(t, f.conn.Create(order).Error)
	return order
}

func (f *fixture) seedPaid(t *testing.T, orderID uuid.UUID, amount int64) {
	t.Helper()
	now := time.Now()
	require.NoError(t, f.conn.Create(&models.Payment{
		OrderID:       orderID,
		TransactionID: "paid-" + uuid.NewString()[:8],
		Attempt:       1,
		PaymentType:   enums.PaymentTypeFull,
		Amount:        amount,
		Status:        enums.PaymentStatusPaid,
		PaidAt:        &now,
	}).Error)
}

func (f *fixture) stockOf(t *testing.T, variantID uuid.UUID) int {
	t.Helper()
	var variant models.ProductVariant
	require.NoError(t, f.conn.First(&variant, "id = ?", variantID).Error)
	return variant.Stock
}

func (f *fixture) reload(t *testing.T, orderID uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.First(&order, "id = ?", orderID).Error)
	return order
}

func TestTransitionCancelRestoresStockAndRecordsAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 2)
	order := f.seedOrder(t, uuid.New(), enums.OrderStatusPaid, map[uuid.UUID]int{variantID: 3})
	f.seedPaid(t, order.ID, 100000)
	adminID := uuid.New()

	var result *TransitionResult
	err := db.NewFromConn(f.conn).WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = f.svc.Transition(ctx, tx, TransitionInput{
			OrderID:   order.ID,
			To:        enums.OrderStatusCancelled,
			ActorID:   &adminID,
			ActorRole: enums.RoleAdmin,
			Source:    SourceCancellation,
		})
		return err
	})
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.True(t, result.StockRestored)
	require.Equal(t, int64(100000), result.RefundDue)
	require.Equal(t, enums.OrderStatusPaid, result.From)
	require.Equal(t, 5, f.stockOf(t, variantID))

	stored := f.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusCancelled, stored.Status)
	require.False(t, stored.StockDeducted)
	require.NotNil(t, stored.CancelledAt)

	history, err := f.svc.History(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, enums.OrderStatusPaid, history[0].FromStatus)
	require.Equal(t, enums.RoleAdmin, history[0].ActorRole)
	require.Equal(t, adminID, *history[0].ActorID)

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Where("aggregate_id = ?", order.ID).Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventOrderStatusChanged, events[0].EventType)
	require.Equal(t, 1, f.metrics.transitions["paid->cancelled"])
}

func TestTransitionRejectsDisallowedMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, uuid.New(), enums.OrderStatusShipped, nil)

	err := db.NewFromConn(f.conn).WithTx(ctx, func(tx *gorm.DB) error {
		_, err := f.svc.Transition(ctx, tx, TransitionInput{
			OrderID: order.ID,
			To:      enums.OrderStatusCancelled,
			Source:  SourceWebhook,
		})
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	require.Equal(t, 1, f.metrics.rejected[SourceWebhook])
	require.Equal(t, enums.OrderStatusShipped, f.reload(t, order.ID).Status)

	history, err := f.svc.History(ctx, order.ID)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestTransitionSameStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, uuid.New(), enums.OrderStatusPartiallyPaid, nil)
	summary := enums.OrderPaymentPartiallyPaid

	var result *TransitionResult
	err := db.NewFromConn(f.conn).WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = f.svc.Transition(ctx, tx, TransitionInput{
			OrderID:       order.ID,
			To:            enums.OrderStatusPartiallyPaid,
			PaymentStatus: &summary,
			Source:        SourceWebhook,
		})
		return err
	})
	require.NoError(t, err)
	require.False(t, result.Changed)
	require.Equal(t, enums.OrderPaymentPartiallyPaid, f.reload(t, order.ID).PaymentStatus)

	history, err := f.svc.History(ctx, order.ID)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestTransitionPartialReleaseKeepsFlagAndReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kept := f.seedVariant(t, 0)
	order := f.seedOrder(t, uuid.New(), enums.OrderStatusPendingPayment, map[uuid.UUID]int{
		kept:       1,
		uuid.New(): 2,
	})

	var result *TransitionResult
	err := db.NewFromConn(f.conn).WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = f.svc.Transition(ctx, tx, TransitionInput{
			OrderID: order.ID,
			To:      enums.OrderStatusFailed,
			Source:  SourceWebhook,
		})
		return err
	})
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.False(t, result.StockRestored)
	require.NotNil(t, result.StockRelease)
	require.Equal(t, 1, result.StockRelease.Affected)
	require.Equal(t, 2, result.StockRelease.Total)
	require.Equal(t, 1, f.stockOf(t, kept))
	require.Equal(t, 1, f.metrics.consistency[consistencyStockRestore])

	stored := f.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusFailed, stored.Status)
	require.True(t, stored.StockDeducted)
}

func TestUpdateStatusProgressesAndStampsCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, uuid.New(), enums.OrderStatusDelivered, nil)
	note := "received by customer"

	result, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusCompleted,
		AdminID: uuid.New(),
		Note:    &note,
	})
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.NotNil(t, f.reload(t, order.ID).CompletedAt)

	_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusPaid,
		AdminID: uuid.New(),
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusProcessing,
		AdminID: uuid.New(),
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	require.Equal(t, 1, f.metrics.rejected[SourceAdmin])
}

func TestExpirePendingPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 4)
	unpaid := f.seedOrder(t, uuid.New(), enums.OrderStatusPendingPayment, map[uuid.UUID]int{variantID: 1})
	withPayment := f.seedOrder(t, uuid.New(), enums.OrderStatusPendingPayment, nil)
	f.seedPaid(t, withPayment.ID, 5000)

	result, err := f.svc.ExpirePendingPayment(ctx, unpaid.ID)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.Equal(t, enums.OrderStatusCancelled, f.reload(t, unpaid.ID).Status)
	require.Equal(t, 5, f.stockOf(t, variantID))

	result, err = f.svc.ExpirePendingPayment(ctx, withPayment.ID)
	require.NoError(t, err)
	require.False(t, result.Changed)
	require.Equal(t, enums.OrderStatusPendingPayment, f.reload(t, withPayment.ID).Status)

	stale, err := f.svc.StalePendingPayment(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, withPayment.ID, stale[0].ID)
}

func TestListPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customerID := uuid.New()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		order := f.seedOrder(t, customerID, enums.OrderStatusPendingPayment, nil)
		require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
		ids = append(ids, order.ID)
	}
	f.seedOrder(t, uuid.New(), enums.OrderStatusPendingPayment, nil)

	first, err := f.svc.List(ctx, ListParams{CustomerID: customerID, Params: paginationParams(2, "")})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	require.Equal(t, ids[2], first.Orders[0].ID)
	require.Equal(t, ids[1], first.Orders[1].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := f.svc.List(ctx, ListParams{CustomerID: customerID, Params: paginationParams(2, first.NextCursor)})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	require.Equal(t, ids[0], second.Orders[0].ID)
	require.Empty(t, second.NextCursor)

	_, err = f.svc.List(ctx, ListParams{CustomerID: customerID, Params: paginationParams(2, "%%%")})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetHidesForeignOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	order := f.seedOrder(t, owner, enums.OrderStatusPartiallyPaid, nil)
	f.seedPaid(t, order.ID, 40000)

	detail, err := f.svc.Get(ctx, order.ID, owner, false)
	require.NoError(t, err)
	require.Equal(t, int64(40000), detail.AmountPaid)
	require.Equal(t, int64(60000), detail.RemainingAmount)
	require.Contains(t, detail.AllowedTransitions, enums.OrderStatusPaid)

	_, err = f.svc.Get(ctx, order.ID, uuid.New(), false)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.Get(ctx, order.ID, uuid.New(), true)
	require.NoError(t, err)
}

func paginationParams(limit int, cursor string) pagination.Params {
	return pagination.Params{Limit: limit, Cursor: cursor}
}
