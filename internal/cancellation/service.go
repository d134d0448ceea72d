package cancellation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

const (
	refundSavepoint   = "cancellation_refund"
	consistencyRefund = "refund_record"
	maxReasonLength   = 1000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderTransitioner interface {
	Transition(ctx context.Context, tx *gorm.DB, input orders.TransitionInput) (*orders.TransitionResult, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type consistencyMetrics interface {
	IncConsistencyFailure(kind string)
}

// ServiceParams wires the cancellation workflow.
type ServiceParams struct {
	Repository Repository
	DB         txRunner
	Orders     orderTransitioner
	Outbox     outboxEmitter
	Metrics    consistencyMetrics
	Logger     *logger.Logger
	Window     time.Duration
}

// Service runs customer cancellation requests through admin review.
type Service struct {
	repo    Repository
	tx      txRunner
	orders  orderTransitioner
	outbox  outboxEmitter
	metrics consistencyMetrics
	logg    *logger.Logger
	window  time.Duration
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("cancellation repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order lifecycle required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	window := params.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		repo:    params.Repository,
		tx:      params.DB,
		orders:  params.Orders,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		window:  window,
		now:     time.Now,
	}, nil
}

// Eligibility reports whether the customer may cancel the order right now.
func (s *Service) Eligibility(ctx context.Context, orderID, customerID uuid.UUID) (*Eligibility, error) {
	order, err := s.ownedOrder(ctx, s.repo, orderID, customerID, false)
	if err != nil {
		return nil, err
	}
	hasActive, err := s.repo.HasPending(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending requests")
	}
	result := Evaluate(*order, hasActive, s.now(), s.window)
	return &result, nil
}

// CreateRequest opens a pending cancellation request for the customer's order.
func (s *Service) CreateRequest(ctx context.Context, input CreateRequestInput) (*models.CancellationRequest, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "reason must be at most %d characters", maxReasonLength)
	}

	var request *models.CancellationRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.ownedOrder(ctx, repo, input.OrderID, input.CustomerID, true)
		if err != nil {
			return err
		}
		hasActive, err := repo.HasPending(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending requests")
		}
		if eligibility := Evaluate(*order, hasActive, s.now(), s.window); !eligibility.Eligible {
			return ineligible(eligibility.Reason, order.Status)
		}

		paid, err := repo.SumPaid(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum paid payments")
		}

		request = &models.CancellationRequest{
			OrderID:     order.ID,
			RequestedBy: input.CustomerID,
			Reason:      reason,
			Status:      enums.CancellationStatusPending,
		}
		if paid > 0 {
			request.RefundAmount = &paid
		}
		if err := repo.Create(ctx, request); err != nil {
			if db.IsUniqueViolation(err, "") {
				return ineligible(reasonActiveRequest, order.Status)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert cancellation request")
		}

		return s.emit(ctx, tx, enums.EventCancellationRequested, request.ID, outbox.UserActor(input.CustomerID, enums.RoleCustomer),
			payloads.CancellationRequestedEvent{
				RequestID:   request.ID,
				OrderID:     order.ID,
				RequestedBy: input.CustomerID,
				Reason:      reason,
			})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, input.OrderID.String()), map[string]any{
		"cancellation_request_id": request.ID.String(),
	}), "cancellation requested")
	return request, nil
}

// Approve cancels the order, restores its stock and opens the refund
// bookkeeping. A failure while recording the refund marks it failed without
// undoing the approval.
func (s *Service) Approve(ctx context.Context, input ApproveInput) (*ApproveResult, error) {
	if input.RefundAmount != nil && *input.RefundAmount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund_amount must be positive")
	}
	notes := trimmedPtr(input.Notes)
	adminID := input.AdminID

	var result *ApproveResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := s.pendingRequest(ctx, repo, input.RequestID)
		if err != nil {
			return err
		}

		transition, err := s.orders.Transition(ctx, tx, orders.TransitionInput{
			OrderID:   request.OrderID,
			To:        enums.OrderStatusCancelled,
			ActorID:   &adminID,
			ActorRole: enums.RoleAdmin,
			Note:      notes,
			Source:    orders.SourceCancellation,
		})
		if err != nil {
			return err
		}
		stockRestored := !transition.Order.StockDeducted

		now := s.now().UTC()
		updates := map[string]any{
			"status":         enums.CancellationStatusApproved,
			"reviewed_by":    adminID,
			"reviewed_at":    now,
			"stock_restored": stockRestored,
		}
		if notes != nil {
			updates["admin_notes"] = *notes
		}
		if err := repo.Update(ctx, request.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve cancellation request")
		}
		request.Status = enums.CancellationStatusApproved
		request.ReviewedBy = &adminID
		request.ReviewedAt = &now
		request.AdminNotes = notes
		request.StockRestored = stockRestored

		paid, err := repo.SumPaid(ctx, request.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum paid payments")
		}
		if paid > 0 {
			// The prefilled amount is a snapshot taken at request time; payments
			// settled since then are owed back too.
			amount := paid
			if input.RefundAmount != nil {
				if *input.RefundAmount > paid {
					return pkgerrors.New(pkgerrors.CodeValidation, "refund_amount exceeds the amount paid").
						WithDetails(map[string]any{"paid": paid, "refundAmount": *input.RefundAmount})
				}
				amount = *input.RefundAmount
			}
			s.recordRefund(ctx, tx, repo, request, amount)
		}

		event := payloads.CancellationApprovedEvent{
			RequestID:     request.ID,
			OrderID:       request.OrderID,
			ReviewedBy:    adminID,
			StockRestored: stockRestored,
			RefundAmount:  request.RefundAmount,
		}
		if request.RefundStatus != nil {
			status := string(*request.RefundStatus)
			event.RefundStatus = &status
		}
		if err := s.emit(ctx, tx, enums.EventCancellationApproved, request.ID, outbox.UserActor(adminID, enums.RoleAdmin), event); err != nil {
			return err
		}

		result = &ApproveResult{Request: request, Transition: transition}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, result.Request.OrderID.String()), map[string]any{
		"cancellation_request_id": result.Request.ID.String(),
		"stock_restored":          result.Request.StockRestored,
		"refund_initiated":        result.Request.RefundInitiated,
	})
	if !result.Request.StockRestored {
		s.logg.Warn(logCtx, "cancellation approved without full stock restoration")
	} else {
		s.logg.Info(logCtx, "cancellation approved")
	}
	return result, nil
}

// recordRefund writes the refund bookkeeping inside a savepoint. Any failure
// rolls back to the savepoint and leaves refund_status=failed.
func (s *Service) recordRefund(ctx context.Context, tx *gorm.DB, repo Repository, request *models.CancellationRequest, amount int64) {
	pending := enums.RefundStatusPending
	err := tx.SavePoint(refundSavepoint).Error
	if err == nil {
		err = repo.RecordRefund(ctx, request.ID, amount)
		if err != nil {
			if rbErr := tx.RollbackTo(refundSavepoint).Error; rbErr != nil {
				err = multierr.Append(err, rbErr)
			}
		}
	}
	request.RefundInitiated = true
	request.RefundAmount = &amount
	if err == nil {
		request.RefundStatus = &pending
		return
	}

	failed := enums.RefundStatusFailed
	request.RefundStatus = &failed
	failCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, request.OrderID.String()), map[string]any{
		"cancellation_request_id": request.ID.String(),
		"refund_amount":           amount,
	})
	s.logg.ConsistencyFailure(failCtx, consistencyRefund, err)
	if s.metrics != nil {
		s.metrics.IncConsistencyFailure(consistencyRefund)
	}
	if markErr := repo.Update(ctx, request.ID, map[string]any{
		"refund_initiated": true,
		"refund_amount":    amount,
		"refund_status":    failed,
	}); markErr != nil {
		s.logg.Error(failCtx, "failed to mark refund as failed", markErr)
	}
}

// Reject closes a pending request without touching the order.
func (s *Service) Reject(ctx context.Context, input RejectInput) (*models.CancellationRequest, error) {
	notes := strings.TrimSpace(input.Notes)
	if notes == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notes are required to reject a cancellation request").
			WithDetails(map[string]any{"field": "notes"})
	}
	if utf8.RuneCountInString(notes) > maxReasonLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "notes must be at most %d characters", maxReasonLength).
			WithDetails(map[string]any{"field": "notes"})
	}
	adminID := input.AdminID

	var request *models.CancellationRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		request, err = s.pendingRequest(ctx, repo, input.RequestID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := repo.Update(ctx, request.ID, map[string]any{
			"status":      enums.CancellationStatusRejected,
			"reviewed_by": adminID,
			"reviewed_at": now,
			"admin_notes": notes,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject cancellation request")
		}
		request.Status = enums.CancellationStatusRejected
		request.ReviewedBy = &adminID
		request.ReviewedAt = &now
		request.AdminNotes = &notes

		return s.emit(ctx, tx, enums.EventCancellationRejected, request.ID, outbox.UserActor(adminID, enums.RoleAdmin),
			payloads.CancellationRejectedEvent{
				RequestID:  request.ID,
				OrderID:    request.OrderID,
				CustomerID: request.RequestedBy,
				ReviewedBy: adminID,
				AdminNotes: notes,
			})
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// UpdateRefundStatus records the admin's outcome of a manual refund.
func (s *Service) UpdateRefundStatus(ctx context.Context, input UpdateRefundInput) (*models.CancellationRequest, error) {
	if input.Status != enums.RefundStatusCompleted && input.Status != enums.RefundStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund status must be completed or failed")
	}
	txnID := trimmedPtr(input.TransactionID)

	var request *models.CancellationRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		request, err = repo.FindByIDForUpdate(ctx, input.RequestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cancellation request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cancellation request")
		}
		if request.Status != enums.CancellationStatusApproved || !request.RefundInitiated {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no refund has been initiated for this request")
		}
		if request.RefundStatus != nil && *request.RefundStatus == enums.RefundStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refund already completed")
		}
		return s.setRefundStatus(ctx, tx, repo, request, input.Status, txnID, outbox.UserActor(input.AdminID, enums.RoleAdmin))
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// CompleteRefund marks the open refund of an order completed inside the
// caller's transaction. It reports false when the order has no open refund.
func (s *Service) CompleteRefund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, transactionID string) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required to complete refund")
	}
	repo := s.repo.WithTx(tx)
	request, err := repo.FindOpenRefundForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open refund")
	}
	txnID := trimmedPtr(&transactionID)
	if err := s.setRefundStatus(ctx, tx, repo, request, enums.RefundStatusCompleted, txnID, outbox.SystemActor()); err != nil {
		return false, err
	}
	return true, nil
}

// ReopenRefund adds amount to the refund owed on an order whose cancellation
// was already approved, reopening the refund as pending. It runs inside the
// caller's transaction and reports false when the order has no approved
// request.
func (s *Service) ReopenRefund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, amount int64) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required to reopen refund")
	}
	if amount <= 0 {
		return false, nil
	}
	repo := s.repo.WithTx(tx)
	request, err := repo.FindApprovedForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load approved cancellation request")
	}

	total := amount
	if request.RefundInitiated && request.RefundAmount != nil {
		total += *request.RefundAmount
	}
	if err := repo.Update(ctx, request.ID, map[string]any{
		"refund_initiated": true,
		"refund_amount":    total,
	}); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend refund amount")
	}
	request.RefundInitiated = true
	request.RefundAmount = &total
	if err := s.setRefundStatus(ctx, tx, repo, request, enums.RefundStatusPending, nil, outbox.SystemActor()); err != nil {
		return false, err
	}

	s.logg.Warn(s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
		"cancellation_request_id": request.ID.String(),
		"late_amount":             amount,
		"refund_amount":           total,
	}), "refund reopened for payment settled after cancellation")
	return true, nil
}

func (s *Service) setRefundStatus(ctx context.Context, tx *gorm.DB, repo Repository, request *models.CancellationRequest, status enums.RefundStatus, txnID *string, actor *outbox.ActorRef) error {
	updates := map[string]any{"refund_status": status}
	if txnID != nil {
		updates["refund_transaction_id"] = *txnID
	}
	if err := repo.Update(ctx, request.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update refund status")
	}
	request.RefundStatus = &status
	if txnID != nil {
		request.RefundTransactionID = txnID
	}
	return s.emit(ctx, tx, enums.EventRefundStatusChanged, request.ID, actor, payloads.RefundStatusChangedEvent{
		RequestID:           request.ID,
		OrderID:             request.OrderID,
		RefundStatus:        string(status),
		RefundTransactionID: request.RefundTransactionID,
	})
}

// Get returns a request with its order.
func (s *Service) Get(ctx context.Context, requestID uuid.UUID) (*models.CancellationRequest, error) {
	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cancellation request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cancellation request")
	}
	return request, nil
}

// List pages through requests newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filter.Status, cursor, filter.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cancellation requests")
	}
	page, next := pagination.Page(rows, filter.Limit, func(r models.CancellationRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	if page == nil {
		page = []models.CancellationRequest{}
	}
	return &ListResult{Requests: page, NextCursor: next}, nil
}

func (s *Service) ownedOrder(ctx context.Context, repo Repository, orderID, customerID uuid.UUID, lock bool) (*models.Order, error) {
	var (
		order *models.Order
		err   error
	)
	if lock {
		order, err = repo.FindOrderForUpdate(ctx, orderID)
	} else {
		order, err = repo.FindOrder(ctx, orderID)
	}
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

func (s *Service) pendingRequest(ctx context.Context, repo Repository, requestID uuid.UUID) (*models.CancellationRequest, error) {
	request, err := repo.FindByIDForUpdate(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cancellation request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cancellation request")
	}
	if request.Status != enums.CancellationStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cancellation request has already been reviewed").
			WithDetails(map[string]any{"status": string(request.Status)})
	}
	return request, nil
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, requestID uuid.UUID, actor *outbox.ActorRef, data any) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateCancellationRequest,
		AggregateID:   requestID,
		Actor:         actor,
		OccurredAt:    s.now().UTC(),
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

func ineligible(reason string, status enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeIneligibleForCancellation, reason).
		WithDetails(map[string]any{"status": string(status)})
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
