package enums

import "fmt"

// PaymentType identifies what portion of the order total an attempt covers.
type PaymentType string

const (
	PaymentTypeDownPayment PaymentType = "dp"
	PaymentTypeFull        PaymentType = "full"
	PaymentTypeFinal       PaymentType = "final"
)

var validPaymentTypes = []PaymentType{
	PaymentTypeDownPayment,
	PaymentTypeFull,
	PaymentTypeFinal,
}

// IsValid reports whether the value is a known PaymentType.
func (p PaymentType) IsValid() bool {
	for _, candidate := range validPaymentTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// PaymentOption is the customer's choice at checkout.
type PaymentOption string

const (
	PaymentOptionDownPayment PaymentOption = "dp"
	PaymentOptionFull        PaymentOption = "full"
)

// IsValid reports whether the value is a known PaymentOption.
func (p PaymentOption) IsValid() bool {
	return p == PaymentOptionDownPayment || p == PaymentOptionFull
}

// PaymentType maps the checkout option to the first attempt's type.
func (p PaymentOption) PaymentType() PaymentType {
	if p == PaymentOptionDownPayment {
		return PaymentTypeDownPayment
	}
	return PaymentTypeFull
}

// ParsePaymentOption converts raw input into a PaymentOption.
func ParsePaymentOption(value string) (PaymentOption, error) {
	option := PaymentOption(value)
	if !option.IsValid() {
		return "", fmt.Errorf("invalid payment option %q", value)
	}
	return option, nil
}
