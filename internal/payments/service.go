package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/gateway"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type attemptMetrics interface {
	IncPaymentAttempt(paymentType, result string)
}

// ServiceParams wires the payment orchestrator.
type ServiceParams struct {
	Repository          Repository
	DB                  txRunner
	Gateway             gateway.Charger
	Outbox              outboxEmitter
	Metrics             attemptMetrics
	Logger              *logger.Logger
	DownPaymentFraction decimal.Decimal
}

// Service opens gateway payment attempts for orders.
type Service struct {
	repo       Repository
	tx         txRunner
	gateway    gateway.Charger
	outbox     outboxEmitter
	metrics    attemptMetrics
	logg       *logger.Logger
	dpFraction decimal.Decimal
	now        func() time.Time
}

var defaultDownPaymentFraction = decimal.NewFromFloat(0.5)

// supersededStatus marks attempts cancelled locally because a newer one replaced them.
const supersededStatus = "superseded"

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	fraction := params.DownPaymentFraction
	if fraction.LessThanOrEqual(decimal.Zero) || fraction.GreaterThan(decimal.NewFromInt(1)) {
		fraction = defaultDownPaymentFraction
	}
	return &Service{
		repo:       params.Repository,
		tx:         params.DB,
		gateway:    params.Gateway,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		logg:       params.Logger,
		dpFraction: fraction,
		now:        time.Now,
	}, nil
}

// DownPaymentAmount rounds total × fraction to whole currency units, never below 1.
func DownPaymentAmount(total int64, fraction decimal.Decimal) int64 {
	amount := decimal.NewFromInt(total).Mul(fraction).Round(0).IntPart()
	if amount < 1 && total > 0 {
		return 1
	}
	return amount
}

// AmountFor returns what the first attempt of the given option charges.
func (s *Service) AmountFor(total int64, option enums.PaymentOption) int64 {
	if option == enums.PaymentOptionDownPayment {
		return DownPaymentAmount(total, s.dpFraction)
	}
	return total
}

// Initiate opens the first attempt for a freshly created order inside the
// caller's transaction.
func (s *Service) Initiate(ctx context.Context, tx *gorm.DB, order *models.Order, option enums.PaymentOption, actor *outbox.ActorRef) (*models.Payment, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order required")
	}
	if !option.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment option").
			WithDetails(map[string]any{"paymentOption": string(option)})
	}
	return s.attempt(ctx, tx, order, option.PaymentType(), s.AmountFor(order.TotalAmount, option), actor)
}

// InitiateFinal charges the remaining balance of a partially paid order.
func (s *Service) InitiateFinal(ctx context.Context, orderID, customerID uuid.UUID) (*models.Payment, error) {
	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadOwnedOrder(ctx, tx, orderID, customerID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPartiallyPaid {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "final payment requires a partially paid order").
				WithDetails(map[string]any{"status": string(order.Status)})
		}
		remaining, err := s.remaining(ctx, tx, order)
		if err != nil {
			return err
		}
		payment, err = s.attempt(ctx, tx, order, enums.PaymentTypeFinal, remaining, outbox.UserActor(customerID, enums.RoleCustomer))
		return err
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// Retry appends a new attempt with a fresh transaction identity for an order
// still awaiting payment.
func (s *Service) Retry(ctx context.Context, orderID, customerID uuid.UUID) (*models.Payment, error) {
	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadOwnedOrder(ctx, tx, orderID, customerID)
		if err != nil {
			return err
		}
		actor := outbox.UserActor(customerID, enums.RoleCustomer)
		switch order.Status {
		case enums.OrderStatusPendingPayment:
			payment, err = s.attempt(ctx, tx, order, order.PaymentOption.PaymentType(), s.AmountFor(order.TotalAmount, order.PaymentOption), actor)
			return err
		case enums.OrderStatusPartiallyPaid:
			remaining, err := s.remaining(ctx, tx, order)
			if err != nil {
				return err
			}
			payment, err = s.attempt(ctx, tx, order, enums.PaymentTypeFinal, remaining, actor)
			return err
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": string(order.Status)})
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// SumPaid totals the paid attempts of an order.
func (s *Service) SumPaid(ctx context.Context, orderID uuid.UUID) (int64, error) {
	total, err := s.repo.SumPaid(ctx, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum paid payments")
	}
	return total, nil
}

// History lists every attempt of an order. Customers only see their own orders.
func (s *Service) History(ctx context.Context, orderID, customerID uuid.UUID, admin bool) ([]models.Payment, error) {
	var rows []models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if !admin {
			if _, err := s.loadOwnedOrder(ctx, tx, orderID, customerID); err != nil {
				return err
			}
		}
		var err error
		rows, err = s.repo.WithTx(tx).ListByOrder(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
		}
		return nil
	})
	return rows, err
}

func (s *Service) remaining(ctx context.Context, tx *gorm.DB, order *models.Order) (int64, error) {
	paid, err := s.repo.WithTx(tx).SumPaid(ctx, order.ID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum paid payments")
	}
	remaining := order.TotalAmount - paid
	if remaining <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeNoRemainingBalance, "order has no remaining balance").
			WithDetails(map[string]any{"total": order.TotalAmount, "paid": paid})
	}
	return remaining, nil
}

func (s *Service) loadOwnedOrder(ctx context.Context, tx *gorm.DB, orderID, customerID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// attempt persists a pending row with a fresh transaction id, then calls the
// gateway. The row exists before the outbound call so a notification can
// always be matched.
func (s *Service) attempt(ctx context.Context, tx *gorm.DB, order *models.Order, paymentType enums.PaymentType, amount int64, actor *outbox.ActorRef) (*models.Payment, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for payment attempt")
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	repo := s.repo.WithTx(tx)

	next, err := repo.NextAttempt(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve attempt number")
	}
	if err := s.supersedePending(ctx, tx, repo, order.ID, actor); err != nil {
		return nil, err
	}
	payment := &models.Payment{
		OrderID:       order.ID,
		TransactionID: gateway.NewTransactionID(order.OrderNumber),
		Attempt:       next,
		PaymentType:   paymentType,
		Amount:        amount,
		Status:        enums.PaymentStatusPending,
	}
	if err := repo.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment attempt")
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"transaction_id": payment.TransactionID,
		"payment_type":   string(paymentType),
		"attempt":        next,
		"amount":         amount,
	})

	resp, err := s.gateway.CreateTransaction(ctx, gateway.ChargeRequest{
		TransactionID: payment.TransactionID,
		Amount:        amount,
		ItemName:      itemLabel(paymentType, order.OrderNumber),
		Customer: gateway.CustomerDetails{
			FirstName: order.RecipientName,
			Phone:     order.Phone,
		},
	})
	if err != nil {
		s.incAttempt(paymentType, "error")
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "gateway charge failed")
		return nil, pkgerrors.Passthrough(err, pkgerrors.CodeGateway, "create gateway transaction")
	}

	token := resp.Token
	redirect := resp.RedirectURL
	payment.ClientToken = &token
	payment.RedirectURL = &redirect
	if err := repo.Update(ctx, payment.ID, map[string]any{
		"client_token": token,
		"redirect_url": redirect,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment token")
	}
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
		"payment_token":        token,
		"payment_redirect_url": redirect,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store order payment token")
	}
	order.PaymentToken = &token
	order.PaymentRedirectURL = &redirect

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentInitiated,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         actor,
		OccurredAt:    s.now().UTC(),
		Data: payloads.PaymentInitiatedEvent{
			PaymentID:     payment.ID,
			OrderID:       order.ID,
			TransactionID: payment.TransactionID,
			PaymentType:   string(paymentType),
			Attempt:       next,
			Amount:        amount,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment initiated")
	}

	s.incAttempt(paymentType, "ok")
	s.logg.Info(logCtx, "payment attempt created")
	return payment, nil
}

// supersedePending cancels attempts still waiting at the gateway so only the
// newest attempt can settle the order. A superseded attempt that settles
// anyway is still recorded by the webhook, since cancelled may move to paid.
func (s *Service) supersedePending(ctx context.Context, tx *gorm.DB, repo Repository, orderID uuid.UUID, actor *outbox.ActorRef) error {
	rows, err := repo.ListByOrder(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment attempts")
	}
	for _, row := range rows {
		if row.Status != enums.PaymentStatusPending {
			continue
		}
		if err := repo.Update(ctx, row.ID, map[string]any{"status": enums.PaymentStatusCancelled}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "supersede payment attempt")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentStatusChanged,
			AggregateType: enums.AggregatePayment,
			AggregateID:   row.ID,
			Actor:         actor,
			OccurredAt:    s.now().UTC(),
			Data: payloads.PaymentStatusChangedEvent{
				PaymentID:         row.ID,
				OrderID:           orderID,
				TransactionID:     row.TransactionID,
				PaymentType:       string(row.PaymentType),
				FromStatus:        string(enums.PaymentStatusPending),
				ToStatus:          string(enums.PaymentStatusCancelled),
				TransactionStatus: supersededStatus,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment superseded")
		}
		s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
			"transaction_id": row.TransactionID,
			"attempt":        row.Attempt,
		}), "pending payment attempt superseded")
	}
	return nil
}

func (s *Service) incAttempt(paymentType enums.PaymentType, result string) {
	if s.metrics != nil {
		s.metrics.IncPaymentAttempt(string(paymentType), result)
	}
}

func itemLabel(paymentType enums.PaymentType, orderNumber string) string {
	switch paymentType {
	case enums.PaymentTypeDownPayment:
		return "Down payment " + orderNumber
	case enums.PaymentTypeFinal:
		return "Final payment " + orderNumber
	}
	return "Payment " + orderNumber
}
