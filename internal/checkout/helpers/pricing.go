package helpers

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// PricedLine is a cart line with the unit price resolved at checkout time.
type PricedLine struct {
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	ProductName string
	VariantName *string
	Quantity    int
	UnitPrice   int64
	SubTotal    int64
	Notes       *string
}

// PriceCartItems resolves each line's unit price from its variant, falling
// back to the product price. Items must have Product and Variant preloaded.
func PriceCartItems(items []models.CartItem) ([]PricedLine, int64, error) {
	lines := make([]PricedLine, 0, len(items))
	var subtotal int64
	for _, item := range items {
		if item.Product == nil {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "cart item references a missing product").
				WithDetails(map[string]any{"cartItemId": item.ID.String()})
		}
		if !item.Product.IsActive {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "product is no longer available").
				WithDetails(map[string]any{"productId": item.ProductID.String(), "name": item.Product.Name})
		}
		if item.Quantity <= 0 {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "cart item quantity must be positive").
				WithDetails(map[string]any{"cartItemId": item.ID.String()})
		}

		line := PricedLine{
			ProductID:   item.ProductID,
			ProductName: item.Product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.Product.Price,
			Notes:       item.Notes,
		}
		if item.VariantID != nil {
			if item.Variant == nil || item.Variant.ProductID != item.ProductID {
				return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "cart item variant is no longer available").
					WithDetails(map[string]any{"cartItemId": item.ID.String()})
			}
			variantID := item.Variant.ID
			name := item.Variant.Name
			line.VariantID = &variantID
			line.VariantName = &name
			if item.Variant.Price != nil {
				line.UnitPrice = *item.Variant.Price
			}
		}
		line.SubTotal = line.UnitPrice * int64(line.Quantity)
		subtotal += line.SubTotal
		lines = append(lines, line)
	}
	return lines, subtotal, nil
}

// ClampDiscount keeps a discount within [0, subtotal].
func ClampDiscount(discount, subtotal int64) int64 {
	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		return subtotal
	}
	return discount
}
