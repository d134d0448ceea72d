package gatewaywebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/gateway"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

// Outcome results.
const (
	ResultApplied            = "applied"
	ResultReplay             = "replay"
	ResultIgnored            = "ignored"
	ResultNoop               = "noop"
	ResultStale              = "stale"
	ResultTransitionRejected = "transition_rejected"
	ResultInvalidSignature   = "invalid_signature"
	ResultError              = "error"
)

const (
	consistencyOverpaid       = "overpaid"
	consistencyAmountMismatch = "gross_amount_mismatch"
	consistencyPaidAfterClose = "paid_after_close"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderTransitioner interface {
	Transition(ctx context.Context, tx *gorm.DB, input orders.TransitionInput) (*orders.TransitionResult, error)
}

type refundCompleter interface {
	CompleteRefund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, transactionID string) (bool, error)
	ReopenRefund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, amount int64) (bool, error)
}

type replayGuard interface {
	CheckAndMark(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type webhookMetrics interface {
	IncWebhook(status, outcome string)
	IncConsistencyFailure(kind string)
}

type ServiceParams struct {
	Payments          payments.Repository
	Orders            orderTransitioner
	Refunds           refundCompleter
	Outbox            outboxEmitter
	Guard             replayGuard
	Metrics           webhookMetrics
	TransactionRunner txRunner
	ServerKey         string
	Logger            *logger.Logger
}

// Service reconciles gateway notifications into payment and order state.
type Service struct {
	payments  payments.Repository
	orders    orderTransitioner
	refunds   refundCompleter
	outbox    outboxEmitter
	guard     replayGuard
	metrics   webhookMetrics
	txRunner  txRunner
	serverKey string
	logg      *logger.Logger
	now       func() time.Time
}

// Outcome describes what a notification did.
type Outcome struct {
	Result        string
	TransactionID string
	PaymentStatus enums.PaymentStatus
	OrderID       uuid.UUID
	OrderStatus   enums.OrderStatus
	OrderChanged  bool
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order lifecycle required")
	}
	if params.Refunds == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "refund completer required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if strings.TrimSpace(params.ServerKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway server key required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		payments:  params.Payments,
		orders:    params.Orders,
		refunds:   params.Refunds,
		outbox:    params.Outbox,
		guard:     params.Guard,
		metrics:   params.Metrics,
		txRunner:  params.TransactionRunner,
		serverKey: params.ServerKey,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// HandleNotification applies a gateway status callback. Only a bad signature
// is returned as an error the caller must surface; every other outcome is
// reported through Outcome.
func (s *Service) HandleNotification(ctx context.Context, n gateway.Notification) (*Outcome, error) {
	status := strings.ToLower(strings.TrimSpace(n.TransactionStatus))
	ctx = s.logg.WithFields(ctx, map[string]any{
		"transaction_id":     n.OrderID,
		"transaction_status": status,
	})

	if !gateway.VerifySignature(n, s.serverKey) {
		s.count(status, ResultInvalidSignature)
		s.logg.Warn(ctx, "gateway notification rejected: invalid signature")
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "Invalid signature")
	}

	outcome := &Outcome{TransactionID: n.OrderID}
	target, ok := gateway.MapStatus(status, n.FraudStatus)
	if !ok {
		outcome.Result = ResultIgnored
		s.count(status, outcome.Result)
		s.logg.Info(ctx, "gateway notification ignored: unhandled status")
		return outcome, nil
	}
	outcome.PaymentStatus = target

	key := ReplayKey(n.OrderID, status)
	if s.guard != nil {
		replay, err := s.guard.CheckAndMark(ctx, key)
		switch {
		case err != nil:
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "replay guard unavailable")
		case replay:
			outcome.Result = ResultReplay
			s.count(status, outcome.Result)
			s.logg.Info(ctx, "gateway notification replay skipped")
			return outcome, nil
		}
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.apply(ctx, tx, n, status, target, outcome)
	})
	if err != nil {
		if s.guard != nil {
			if delErr := s.guard.Delete(ctx, key); delErr != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", delErr.Error()), "failed to clear replay key")
			}
		}
		s.count(status, ResultError)
		s.logg.Error(ctx, "gateway notification failed", err)
		return nil, err
	}

	s.count(status, outcome.Result)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"result":         outcome.Result,
		"payment_status": string(outcome.PaymentStatus),
		"order_status":   string(outcome.OrderStatus),
	}), "gateway notification processed")
	return outcome, nil
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, n gateway.Notification, status string, target enums.PaymentStatus, outcome *Outcome) error {
	repo := s.payments.WithTx(tx)
	payment, err := repo.FindByTransactionIDForUpdate(ctx, strings.TrimSpace(n.OrderID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			outcome.Result = ResultIgnored
			s.logg.Warn(ctx, "gateway notification ignored: unknown transaction")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	outcome.OrderID = payment.OrderID

	if payment.Status == target {
		outcome.Result = ResultNoop
		return nil
	}
	if !payment.Status.CanMoveTo(target) {
		outcome.Result = ResultStale
		s.logg.Warn(s.logg.WithField(ctx, "payment_status", string(payment.Status)), "gateway notification ignored: payment already settled")
		return nil
	}

	order, err := repo.FindOrderForUpdate(ctx, payment.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	outcome.OrderStatus = order.Status
	s.checkGrossAmount(ctx, n, payment)

	from := payment.Status
	updates := map[string]any{
		"status":         target,
		"gateway_status": status,
	}
	if fraud := strings.TrimSpace(n.FraudStatus); fraud != "" {
		updates["fraud_status"] = fraud
	}
	if method := strings.TrimSpace(n.PaymentType); method != "" {
		updates["payment_method"] = method
	}
	var paidAt *time.Time
	if target == enums.PaymentStatusPaid {
		now := s.now().UTC()
		paidAt = &now
		updates["paid_at"] = now
	}
	if err := repo.Update(ctx, payment.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
	}
	payment.Status = target

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentStatusChanged,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         outbox.SystemActor(),
		OccurredAt:    s.now().UTC(),
		Data: payloads.PaymentStatusChangedEvent{
			PaymentID:         payment.ID,
			OrderID:           payment.OrderID,
			TransactionID:     payment.TransactionID,
			PaymentType:       string(payment.PaymentType),
			FromStatus:        string(from),
			ToStatus:          string(target),
			TransactionStatus: status,
			PaidAt:            paidAt,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment status changed")
	}
	outcome.Result = ResultApplied

	orderTarget, paymentState, err := s.orderTarget(ctx, repo, order, payment, target)
	if err != nil {
		return err
	}
	if orderTarget != "" {
		if err := s.transition(ctx, tx, order, orderTarget, paymentState, outcome); err != nil {
			return err
		}
	}
	if target == enums.PaymentStatusPaid && outcome.Result == ResultTransitionRejected {
		if err := s.paidAfterClose(ctx, tx, order, payment); err != nil {
			return err
		}
	}

	if target == enums.PaymentStatusRefunded {
		refundTxn := strings.TrimSpace(n.TransactionID)
		if refundTxn == "" {
			refundTxn = payment.TransactionID
		}
		completed, err := s.refunds.CompleteRefund(ctx, tx, order.ID, refundTxn)
		if err != nil {
			return err
		}
		if completed {
			s.logg.Info(ctx, "cancellation refund completed by gateway")
		}
	}
	return nil
}

// orderTarget resolves which order status a payment outcome implies. An empty
// target leaves the order alone.
func (s *Service) orderTarget(ctx context.Context, repo payments.Repository, order *models.Order, payment *models.Payment, target enums.PaymentStatus) (enums.OrderStatus, *enums.OrderPaymentStatus, error) {
	switch target {
	case enums.PaymentStatusPaid:
		paid, err := repo.SumPaid(ctx, order.ID)
		if err != nil {
			return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum paid payments")
		}
		if paid > order.TotalAmount {
			s.consistencyFailure(ctx, consistencyOverpaid, fmt.Errorf("paid %d exceeds order total %d", paid, order.TotalAmount))
		}
		if paid >= order.TotalAmount {
			state := enums.OrderPaymentPaid
			return enums.OrderStatusPaid, &state, nil
		}
		state := enums.OrderPaymentPartiallyPaid
		return enums.OrderStatusPartiallyPaid, &state, nil
	case enums.PaymentStatusRefunded:
		state := enums.OrderPaymentRefunded
		return enums.OrderStatusRefunded, &state, nil
	}

	// Negative outcomes only speak for the attempt the order is waiting on.
	if payment.PaymentType == enums.PaymentTypeFinal {
		return "", nil, nil
	}
	latest, err := repo.LatestAttempt(ctx, order.ID)
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest attempt")
	}
	if latest == nil || latest.ID != payment.ID {
		s.logg.Info(ctx, "gateway notification for superseded attempt leaves order unchanged")
		return "", nil, nil
	}
	switch target {
	case enums.PaymentStatusPending:
		return enums.OrderStatusPendingPayment, nil, nil
	case enums.PaymentStatusFailed:
		return enums.OrderStatusFailed, nil, nil
	case enums.PaymentStatusCancelled:
		return enums.OrderStatusCancelled, nil, nil
	}
	return "", nil, nil
}

func (s *Service) transition(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, paymentState *enums.OrderPaymentStatus, outcome *Outcome) error {
	result, err := s.orders.Transition(ctx, tx, orders.TransitionInput{
		OrderID:       order.ID,
		To:            to,
		ActorRole:     enums.RoleSystem,
		Source:        orders.SourceWebhook,
		PaymentStatus: paymentState,
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
			outcome.Result = ResultTransitionRejected
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"order_status": string(order.Status),
				"target":       string(to),
			}), "gateway notification could not move order")
			return nil
		}
		return err
	}
	outcome.OrderStatus = result.To
	outcome.OrderChanged = result.Changed
	return nil
}

// paidAfterClose handles money that settled on an order that can no longer
// take it, typically one cancelled while the payment was in flight. The
// amount joins the refund owed by the approved cancellation when there is
// one; either way the case is flagged for manual reconciliation.
func (s *Service) paidAfterClose(ctx context.Context, tx *gorm.DB, order *models.Order, payment *models.Payment) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"payment_id":     payment.ID.String(),
		"payment_amount": payment.Amount,
	})
	s.consistencyFailure(ctx, consistencyPaidAfterClose,
		fmt.Errorf("payment %s settled on order in status %s", payment.TransactionID, order.Status))

	if order.Status != enums.OrderStatusCancelled {
		return nil
	}
	reopened, err := s.refunds.ReopenRefund(ctx, tx, order.ID, payment.Amount)
	if err != nil {
		return err
	}
	if !reopened {
		s.logg.Warn(ctx, "late settlement has no approved cancellation to refund against")
	}
	return nil
}

func (s *Service) checkGrossAmount(ctx context.Context, n gateway.Notification, payment *models.Payment) {
	if strings.TrimSpace(n.GrossAmount) == "" {
		return
	}
	amount, err := n.GrossAmountValue()
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "gross_amount", n.GrossAmount), "gateway notification carries unparsable gross_amount")
		return
	}
	if amount != payment.Amount {
		s.consistencyFailure(ctx, consistencyAmountMismatch, fmt.Errorf("gross_amount %d does not match payment amount %d", amount, payment.Amount))
	}
}

func (s *Service) consistencyFailure(ctx context.Context, kind string, err error) {
	s.logg.ConsistencyFailure(ctx, kind, err)
	if s.metrics != nil {
		s.metrics.IncConsistencyFailure(kind)
	}
}

func (s *Service) count(status, result string) {
	if s.metrics != nil {
		s.metrics.IncWebhook(status, result)
	}
}
