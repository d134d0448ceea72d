package cart

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/api/middleware"
	cartsvc "github.com/angelmondragon/orderflow-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

type addItemRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int        `json:"quantity" validate:"required,gt=0"`
	Notes     *string    `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type updateItemRequest struct {
	Quantity int     `json:"quantity" validate:"required,gt=0"`
	Notes    *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

func (p addItemRequest) toInput() cartsvc.AddItemInput {
	return cartsvc.AddItemInput{
		ProductID: p.ProductID,
		VariantID: p.VariantID,
		Quantity:  p.Quantity,
		Notes:     p.Notes,
	}
}

func (p updateItemRequest) toInput() cartsvc.UpdateItemInput {
	return cartsvc.UpdateItemInput{Quantity: p.Quantity, Notes: p.Notes}
}

func customerIDFromContext(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	return id, nil
}
