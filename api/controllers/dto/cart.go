package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
)

// Cart is the customer's cart with indicative line prices. Checkout reprices
// every line.
type Cart struct {
	ID        uuid.UUID  `json:"id,omitempty"`
	Items     []CartItem `json:"items"`
	Subtotal  int64      `json:"subtotal"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type CartItem struct {
	ID          uuid.UUID  `json:"id"`
	ProductID   uuid.UUID  `json:"product_id"`
	VariantID   *uuid.UUID `json:"variant_id,omitempty"`
	ProductName string     `json:"product_name,omitempty"`
	VariantName string     `json:"variant_name,omitempty"`
	Quantity    int        `json:"quantity"`
	UnitPrice   int64      `json:"unit_price"`
	Notes       *string    `json:"notes,omitempty"`
}

func FromCart(c *models.Cart) Cart {
	out := Cart{ID: c.ID, Items: make([]CartItem, 0, len(c.Items))}
	if !c.UpdatedAt.IsZero() {
		updated := c.UpdatedAt
		out.UpdatedAt = &updated
	}
	for _, item := range c.Items {
		line := CartItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			Notes:     item.Notes,
		}
		if item.Product != nil {
			line.ProductName = item.Product.Name
			line.UnitPrice = item.Product.Price
		}
		if item.Variant != nil {
			line.VariantName = item.Variant.Name
			if item.Variant.Price != nil {
				line.UnitPrice = *item.Variant.Price
			}
		}
		out.Subtotal += line.UnitPrice * int64(line.Quantity)
		out.Items = append(out.Items, line)
	}
	return out
}
