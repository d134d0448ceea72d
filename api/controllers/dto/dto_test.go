package dto

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

func TestFromCartPrefersVariantPrice(t *testing.T) {
	variantPrice := int64(120000)
	variantID := uuid.New()
	cart := &models.Cart{
		ID: uuid.New(),
		Items: []models.CartItem{
			{
				ID:       uuid.New(),
				Quantity: 2,
				Product:  &models.Product{Name: "Jersey", Price: 100000},
			},
			{
				ID:        uuid.New(),
				VariantID: &variantID,
				Quantity:  1,
				Product:   &models.Product{Name: "Jersey", Price: 100000},
				Variant:   &models.ProductVariant{ID: variantID, Name: "XL", Price: &variantPrice},
			},
		},
	}

	out := FromCart(cart)
	require.Len(t, out.Items, 2)
	assert.Equal(t, int64(100000), out.Items[0].UnitPrice)
	assert.Equal(t, int64(120000), out.Items[1].UnitPrice)
	assert.Equal(t, "XL", out.Items[1].VariantName)
	assert.Equal(t, int64(320000), out.Subtotal)
	assert.Nil(t, out.UpdatedAt)
}

func TestFromDetailNeverReturnsNilCollections(t *testing.T) {
	detail := &orders.Detail{
		Order:           models.Order{ID: uuid.New(), Status: enums.OrderStatusCompleted, TotalAmount: 50000},
		AmountPaid:      50000,
		RemainingAmount: 0,
	}
	out := FromDetail(detail)
	assert.NotNil(t, out.History)
	assert.NotNil(t, out.AllowedTransitions)
	assert.Equal(t, detail.Order.ID, out.ID)
}

func TestFromTransitionWithoutOrder(t *testing.T) {
	out := FromTransition(&orders.TransitionResult{
		From:    enums.OrderStatusPaid,
		To:      enums.OrderStatusCancelled,
		Changed: true,
	})
	assert.True(t, out.Changed)
	assert.Equal(t, enums.OrderStatusCancelled, out.To)
	assert.Equal(t, uuid.Nil, out.Order.ID)
}
