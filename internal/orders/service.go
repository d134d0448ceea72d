package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/stock"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

const consistencyStockRestore = "stock_restore"

// ServiceParams wires the order lifecycle service.
type ServiceParams struct {
	Repository Repository
	DB         txRunner
	Stock      StockReleaser
	Outbox     outboxEmitter
	Metrics    transitionMetrics
	Logger     *logger.Logger
}

// Service owns every order status change.
type Service struct {
	repo    Repository
	tx      txRunner
	stock   StockReleaser
	outbox  outboxEmitter
	metrics transitionMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock releaser required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:    params.Repository,
		tx:      params.DB,
		stock:   params.Stock,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     time.Now,
	}, nil
}

// Transition moves an order to input.To inside the caller's transaction. A
// request for the current status is a no-op reported with Changed=false.
func (s *Service) Transition(ctx context.Context, tx *gorm.DB, input TransitionInput) (*TransitionResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for order transition")
	}
	repo := s.repo.WithTx(tx)

	order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	from := order.Status
	result := &TransitionResult{Order: order, From: from, To: input.To}

	if from == input.To {
		if input.PaymentStatus != nil && order.PaymentStatus != *input.PaymentStatus {
			if err := repo.Update(ctx, order.ID, map[string]any{"payment_status": *input.PaymentStatus}); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment summary")
			}
			order.PaymentStatus = *input.PaymentStatus
		}
		return result, nil
	}

	if !CanTransition(from, input.To) {
		s.incRejected(input.Source)
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "cannot move order from %s to %s", from, input.To).
			WithDetails(map[string]any{
				"orderId": order.ID.String(),
				"from":    string(from),
				"to":      string(input.To),
			})
	}

	ctx = s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"from":   string(from),
		"to":     string(input.To),
		"source": input.Source,
	})

	now := s.now().UTC()
	updates := map[string]any{"status": input.To}
	if input.PaymentStatus != nil {
		updates["payment_status"] = *input.PaymentStatus
	}

	if input.To.ReleasesStock() && order.StockDeducted {
		items, err := repo.ListItems(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		release := s.stock.ReleaseForOrder(ctx, tx, stockItems(items))
		result.StockRelease = &release
		if release.Complete() {
			updates["stock_deducted"] = false
			result.StockRestored = true
		} else {
			failCtx := s.logg.WithFields(ctx, map[string]any{
				"released": release.Affected,
				"tracked":  release.Total,
			})
			s.logg.ConsistencyFailure(failCtx, consistencyStockRestore, release.Err)
			s.incConsistency(consistencyStockRestore)
		}
	}

	if input.To == enums.OrderStatusCancelled {
		paid, err := repo.SumPaid(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum paid payments")
		}
		result.RefundDue = paid
		updates["cancelled_at"] = now
	}
	if input.To == enums.OrderStatusCompleted {
		updates["completed_at"] = now
	}

	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}

	role := input.ActorRole
	if role == "" {
		role = enums.RoleSystem
	}
	if err := repo.CreateHistory(ctx, &models.OrderStatusHistory{
		OrderID:    order.ID,
		FromStatus: from,
		ToStatus:   input.To,
		ActorID:    input.ActorID,
		ActorRole:  role,
		Note:       input.Note,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write status history")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(input.ActorID, role),
		OccurredAt:    now,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerID:    order.CustomerID,
			FromStatus:    string(from),
			ToStatus:      string(input.To),
			StockRestored: result.StockRestored,
			RefundDue:     result.RefundDue > 0,
			Note:          input.Note,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status changed")
	}

	order.Status = input.To
	if input.PaymentStatus != nil {
		order.PaymentStatus = *input.PaymentStatus
	}
	if result.StockRestored {
		order.StockDeducted = false
	}
	switch input.To {
	case enums.OrderStatusCancelled:
		order.CancelledAt = &now
	case enums.OrderStatusCompleted:
		order.CompletedAt = &now
	}
	result.Changed = true

	if s.metrics != nil {
		s.metrics.IncTransition(string(from), string(input.To))
	}
	s.logg.Info(ctx, "order status changed")
	return result, nil
}

// adminTargets are the statuses an admin may set directly. Payment outcomes
// belong to the gateway.
var adminTargets = map[enums.OrderStatus]bool{
	enums.OrderStatusProcessing:     true,
	enums.OrderStatusDesignApproval: true,
	enums.OrderStatusInProduction:   true,
	enums.OrderStatusShipped:        true,
	enums.OrderStatusDelivered:      true,
	enums.OrderStatusCompleted:      true,
	enums.OrderStatusCancelled:      true,
	enums.OrderStatusFailed:         true,
}

// UpdateStatus applies an admin status change in its own transaction.
func (s *Service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !adminTargets[input.Status] {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status cannot be set manually").
			WithDetails(map[string]any{"status": string(input.Status)})
	}
	adminID := input.AdminID
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.Transition(ctx, tx, TransitionInput{
			OrderID:   input.OrderID,
			To:        input.Status,
			ActorID:   &adminID,
			ActorRole: enums.RoleAdmin,
			Note:      input.Note,
			Source:    SourceAdmin,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExpirePendingPayment cancels an order that is still awaiting its first
// payment and has nothing paid. Orders that moved on meanwhile are left alone.
func (s *Service) ExpirePendingPayment(ctx context.Context, orderID uuid.UUID) (*TransitionResult, error) {
	note := "payment window expired"
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status != enums.OrderStatusPendingPayment {
			result = &TransitionResult{Order: order, From: order.Status, To: order.Status}
			return nil
		}
		paid, err := repo.SumPaid(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum paid payments")
		}
		if paid > 0 {
			result = &TransitionResult{Order: order, From: order.Status, To: order.Status}
			return nil
		}
		result, err = s.Transition(ctx, tx, TransitionInput{
			OrderID:   orderID,
			To:        enums.OrderStatusCancelled,
			ActorRole: enums.RoleSystem,
			Note:      &note,
			Source:    SourceExpiry,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// StalePendingPayment lists orders awaiting payment since before cutoff.
func (s *Service) StalePendingPayment(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.FindPendingPaymentBefore(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale pending orders")
	}
	return rows, nil
}

// Get returns an order with its audit trail and payment totals. Customers
// only see their own orders; anything else reads as not found.
func (s *Service) Get(ctx context.Context, orderID, customerID uuid.UUID, admin bool) (*Detail, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !admin && order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	history, err := s.repo.ListHistory(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load status history")
	}
	paid, err := s.repo.SumPaid(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum paid payments")
	}
	remaining := order.TotalAmount - paid
	if remaining < 0 {
		remaining = 0
	}
	return &Detail{
		Order:              *order,
		History:            history,
		AmountPaid:         paid,
		RemainingAmount:    remaining,
		AllowedTransitions: AllowedTargets(order.Status),
	}, nil
}

// List pages through a customer's orders, newest first.
func (s *Service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByCustomer(ctx, params.CustomerID, params.Status, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page, next := pagination.Page(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	if page == nil {
		page = []models.Order{}
	}
	return &ListResult{Orders: page, NextCursor: next}, nil
}

// History returns the status audit trail of an order.
func (s *Service) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	rows, err := s.repo.ListHistory(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load status history")
	}
	return rows, nil
}

func (s *Service) incRejected(source string) {
	if s.metrics != nil {
		s.metrics.IncRejectedTransition(source)
	}
}

func (s *Service) incConsistency(kind string) {
	if s.metrics != nil {
		s.metrics.IncConsistencyFailure(kind)
	}
}

func stockItems(items []models.OrderItem) []stock.Item {
	out := make([]stock.Item, 0, len(items))
	for _, item := range items {
		out = append(out, stock.Item{VariantID: item.VariantID, Quantity: item.Quantity})
	}
	return out
}

func actorRef(actorID *uuid.UUID, role enums.Role) *outbox.ActorRef {
	if actorID == nil {
		return outbox.SystemActor()
	}
	return outbox.UserActor(*actorID, role)
}
