package helpers

import (
	"strings"

	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Shipping is the delivery metadata captured on the order.
type Shipping struct {
	RecipientName  string
	Phone          string
	Address        string
	Courier        *string
	CourierService *string
	Cost           int64
	Notes          *string
}

// ValidateShipping trims the required fields and rejects incomplete input.
func ValidateShipping(in Shipping) (Shipping, error) {
	in.RecipientName = strings.TrimSpace(in.RecipientName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)

	missing := []string{}
	if in.RecipientName == "" {
		missing = append(missing, "recipient_name")
	}
	if in.Phone == "" {
		missing = append(missing, "phone")
	}
	if in.Address == "" {
		missing = append(missing, "address")
	}
	if len(missing) > 0 {
		return in, pkgerrors.New(pkgerrors.CodeValidation, "shipping details incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	if in.Cost < 0 {
		return in, pkgerrors.New(pkgerrors.CodeValidation, "shipping cost cannot be negative")
	}
	return in, nil
}
