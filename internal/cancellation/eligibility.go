package cancellation

import (
	"fmt"
	"time"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// DefaultWindow is how long after checkout a paid order may still be cancelled.
const DefaultWindow = 24 * time.Hour

const (
	reasonActiveRequest = "A cancellation request for this order is already pending review"
	reasonWrongStatus   = "Only orders awaiting payment or paid orders can be cancelled"
	reasonWindowExpired = "The cancellation window for this order has passed"
)

// Eligibility is the outcome of a cancellation eligibility check. Reason is
// empty when Eligible is true.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

var closedStatuses = map[enums.OrderStatus]bool{
	enums.OrderStatusInProduction: true,
	enums.OrderStatusShipped:      true,
	enums.OrderStatusDelivered:    true,
	enums.OrderStatusCompleted:    true,
	enums.OrderStatusCancelled:    true,
	enums.OrderStatusFailed:       true,
	enums.OrderStatusRefunded:     true,
}

// Evaluate applies the eligibility rules in priority order: closed status,
// pending request, cancellable status, then the time window for paid orders.
func Evaluate(order models.Order, hasActive bool, now time.Time, window time.Duration) Eligibility {
	if closedStatuses[order.Status] {
		return Eligibility{Reason: fmt.Sprintf("Order can no longer be cancelled (status: %s)", order.Status)}
	}
	if hasActive {
		return Eligibility{Reason: reasonActiveRequest}
	}
	switch order.Status {
	case enums.OrderStatusPendingPayment:
		return Eligibility{Eligible: true}
	case enums.OrderStatusPaid, enums.OrderStatusPartiallyPaid:
		if window <= 0 {
			window = DefaultWindow
		}
		if now.Sub(order.CreatedAt) > window {
			return Eligibility{Reason: reasonWindowExpired}
		}
		return Eligibility{Eligible: true}
	}
	return Eligibility{Reason: reasonWrongStatus}
}

// CanRequest reports whether the customer may open a cancellation request.
func CanRequest(order models.Order, hasActive bool, now time.Time, window time.Duration) bool {
	return Evaluate(order, hasActive, now, window).Eligible
}

// IneligibilityReason explains why CanRequest is false, or returns "".
func IneligibilityReason(order models.Order, hasActive bool, now time.Time, window time.Duration) string {
	return Evaluate(order, hasActive, now, window).Reason
}
