package cancellation

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

// Repository persists cancellation requests and reads the order data the
// workflow decides on.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.CancellationRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CancellationRequest, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CancellationRequest, error)
	HasPending(ctx context.Context, orderID uuid.UUID) (bool, error)
	List(ctx context.Context, status *enums.CancellationStatus, cursor *pagination.Cursor, limit int) ([]models.CancellationRequest, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	RecordRefund(ctx context.Context, id uuid.UUID, amount int64) error
	FindOpenRefundForUpdate(ctx context.Context, orderID uuid.UUID) (*models.CancellationRequest, error)
	FindApprovedForUpdate(ctx context.Context, orderID uuid.UUID) (*models.CancellationRequest, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	SumPaid(ctx context.Context, orderID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cancellation repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.CancellationRequest) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CancellationRequest, error) {
	var request models.CancellationRequest
	err := r.db.WithContext(ctx).
		Preload("Order").
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CancellationRequest, error) {
	var request models.CancellationRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) HasPending(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CancellationRequest{}).
		Where("order_id = ? AND status = ?", orderID, enums.CancellationStatusPending).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) List(ctx context.Context, status *enums.CancellationStatus, cursor *pagination.Cursor, limit int) ([]models.CancellationRequest, error) {
	query := r.db.WithContext(ctx).
		Model(&models.CancellationRequest{}).
		Preload("Order")
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var rows []models.CancellationRequest
	err := pagination.Apply(query, cursor).
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error
	return rows, err
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.CancellationRequest{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// RecordRefund opens the manual refund bookkeeping for an approved request.
func (r *repository) RecordRefund(ctx context.Context, id uuid.UUID, amount int64) error {
	return r.Update(ctx, id, map[string]any{
		"refund_initiated": true,
		"refund_amount":    amount,
		"refund_status":    enums.RefundStatusPending,
	})
}

// FindOpenRefundForUpdate locks the approved request of an order whose refund
// has been initiated but not completed.
func (r *repository) FindOpenRefundForUpdate(ctx context.Context, orderID uuid.UUID) (*models.CancellationRequest, error) {
	var request models.CancellationRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND status = ? AND refund_initiated = ?", orderID, enums.CancellationStatusApproved, true).
		Where("refund_status IS NULL OR refund_status <> ?", enums.RefundStatusCompleted).
		Order("created_at DESC").
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// FindApprovedForUpdate locks the latest approved request of an order.
func (r *repository) FindApprovedForUpdate(ctx context.Context, orderID uuid.UUID) (*models.CancellationRequest, error) {
	var request models.CancellationRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND status = ?", orderID, enums.CancellationStatusApproved).
		Order("created_at DESC").
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) SumPaid(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusPaid).
		Scan(&total).Error
	return total, err
}
