package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const (
	defaultPendingPaymentTTL = 24 * time.Hour
	defaultExpiryBatchSize   = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pendingPaymentExpirer interface {
	StalePendingPayment(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ExpirePendingPayment(ctx context.Context, orderID uuid.UUID) (*orders.TransitionResult, error)
}

// PendingPaymentExpiryJobParams configure the unpaid order sweeper.
type PendingPaymentExpiryJobParams struct {
	Logger    *logger.Logger
	Orders    pendingPaymentExpirer
	TTL       time.Duration
	BatchSize int
}

// NewPendingPaymentExpiryJob cancels orders that never received a payment
// within the TTL, returning their stock.
func NewPendingPaymentExpiryJob(params PendingPaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order lifecycle required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingPaymentTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &pendingPaymentExpiryJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type pendingPaymentExpiryJob struct {
	logg   *logger.Logger
	orders pendingPaymentExpirer
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *pendingPaymentExpiryJob) Name() string { return "pending-payment-expiry" }

// Run expires each stale order in its own transaction. One failing order
// does not stop the sweep; all failures are returned together.
func (j *pendingPaymentExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	rows, err := j.orders.StalePendingPayment(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var (
		errs             error
		expired, skipped int
	)
	for _, order := range rows {
		result, err := j.orders.ExpirePendingPayment(ctx, order.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.OrderNumber, err))
			continue
		}
		if result != nil && result.Changed {
			expired++
			continue
		}
		skipped++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"found":   len(rows),
		"expired": expired,
		"skipped": skipped,
	})
	j.logg.Info(logCtx, "pending payment expiry sweep complete")
	return errs
}
