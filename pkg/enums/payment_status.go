package enums

import "fmt"

// PaymentStatus tracks the lifecycle of a single payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusCancelled,
	PaymentStatusRefunded,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// CanMoveTo reports whether a gateway notification may move a payment from p
// to next. Pending never overrides a recorded outcome.
func (p PaymentStatus) CanMoveTo(next PaymentStatus) bool {
	if p == next || !next.IsValid() {
		return false
	}
	switch p {
	case PaymentStatusPending:
		return true
	case PaymentStatusFailed, PaymentStatusCancelled:
		return next == PaymentStatusPaid
	case PaymentStatusPaid:
		return next == PaymentStatusRefunded
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}

// OrderPaymentStatus is the cached payment summary stored on the order.
type OrderPaymentStatus string

const (
	OrderPaymentUnpaid        OrderPaymentStatus = "unpaid"
	OrderPaymentPartiallyPaid OrderPaymentStatus = "partially_paid"
	OrderPaymentPaid          OrderPaymentStatus = "paid"
	OrderPaymentRefunded      OrderPaymentStatus = "refunded"
)

func (p OrderPaymentStatus) String() string {
	return string(p)
}
