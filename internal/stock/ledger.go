package stock

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Item is a quantity of a variant held by an order or cart line. Lines without
// a variant are not stock tracked.
type Item struct {
	VariantID *uuid.UUID
	Quantity  int
}

// BulkResult reports how many tracked lines a bulk operation applied.
type BulkResult struct {
	Affected int
	Total    int
	Err      error
}

// Complete reports whether every tracked line was applied.
func (r BulkResult) Complete() bool {
	return r.Err == nil && r.Affected == r.Total
}

// Errors returns the per-line failures.
func (r BulkResult) Errors() []error {
	return multierr.Errors(r.Err)
}

// Ledger owns the variant stock counter. Every method runs on the caller's
// transaction.
type Ledger struct {
	now func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// Reserve locks the variant row and decrements stock by qty.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error {
	if err := validate(tx, variantID, qty); err != nil {
		return err
	}

	variant, err := l.lockVariant(ctx, tx, variantID)
	if err != nil {
		return err
	}
	if variant.Stock < qty {
		return insufficient(variantID, qty, variant.Stock)
	}

	res := tx.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ? AND stock >= ?", variantID, qty).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": l.now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
	}
	if res.RowsAffected == 0 {
		return insufficient(variantID, qty, variant.Stock)
	}
	return nil
}

// Release adds qty back to the variant. It fails only when the variant is unknown.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error {
	if err := validate(tx, variantID, qty); err != nil {
		return err
	}
	res := tx.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ?", variantID).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"updated_at": l.now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restore stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
			WithDetails(map[string]any{"variantId": variantID.String()})
	}
	return nil
}

// Available reports whether the variant currently holds at least qty units.
func (l *Ledger) Available(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for stock lookup")
	}
	var variant models.ProductVariant
	err := tx.WithContext(ctx).Select("id", "stock").Where("id = ?", variantID).First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant stock")
	}
	return variant.Stock >= qty, nil
}

// ReserveForOrder reserves every tracked line. Lines already applied are not
// undone here; the caller's transaction decides that.
func (l *Ledger) ReserveForOrder(ctx context.Context, tx *gorm.DB, items []Item) BulkResult {
	return l.bulk(items, func(variantID uuid.UUID, qty int) error {
		return l.Reserve(ctx, tx, variantID, qty)
	})
}

// ReleaseForOrder releases every tracked line.
func (l *Ledger) ReleaseForOrder(ctx context.Context, tx *gorm.DB, items []Item) BulkResult {
	return l.bulk(items, func(variantID uuid.UUID, qty int) error {
		return l.Release(ctx, tx, variantID, qty)
	})
}

// bulk walks tracked lines in variant id order so concurrent orders lock rows
// in the same sequence.
func (l *Ledger) bulk(items []Item, apply func(uuid.UUID, int) error) BulkResult {
	tracked := make([]Item, 0, len(items))
	for _, item := range items {
		if item.VariantID == nil || *item.VariantID == uuid.Nil {
			continue
		}
		tracked = append(tracked, item)
	}
	sort.SliceStable(tracked, func(i, j int) bool {
		return tracked[i].VariantID.String() < tracked[j].VariantID.String()
	})

	result := BulkResult{Total: len(tracked)}
	for _, item := range tracked {
		if err := apply(*item.VariantID, item.Quantity); err != nil {
			result.Err = multierr.Append(result.Err, err)
			continue
		}
		result.Affected++
	}
	return result
}

func (l *Ledger) lockVariant(ctx context.Context, tx *gorm.DB, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "stock").
		Where("id = ?", variantID).
		First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
				WithDetails(map[string]any{"variantId": variantID.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock variant")
	}
	return &variant, nil
}

func validate(tx *gorm.DB, variantID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required for stock change")
	}
	if variantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
			WithDetails(map[string]any{"quantity": qty})
	}
	return nil
}

func insufficient(variantID uuid.UUID, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{
			"variantId": variantID.String(),
			"requested": requested,
			"available": available,
		})
}
