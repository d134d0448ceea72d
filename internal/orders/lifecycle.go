package orders

import "github.com/angelmondragon/orderflow-backend/pkg/enums"

// releaseSources are the states from which an order may still be cancelled,
// failed or refunded.
var releaseSources = map[enums.OrderStatus]bool{
	enums.OrderStatusPendingPayment: true,
	enums.OrderStatusPartiallyPaid:  true,
	enums.OrderStatusPaid:           true,
	enums.OrderStatusProcessing:     true,
	enums.OrderStatusDesignApproval: true,
}

// CanTransition reports whether the lifecycle allows moving from one status to
// another. Same-status moves are handled by callers as no-ops and are not
// transitions.
func CanTransition(from, to enums.OrderStatus) bool {
	if from == to || !to.IsValid() {
		return false
	}

	switch to {
	case enums.OrderStatusCancelled, enums.OrderStatusFailed:
		return releaseSources[from]
	case enums.OrderStatusRefunded:
		return releaseSources[from] || from == enums.OrderStatusCancelled
	}

	switch from {
	case enums.OrderStatusPendingPayment:
		return to == enums.OrderStatusPaid || to == enums.OrderStatusPartiallyPaid
	case enums.OrderStatusPartiallyPaid:
		return to == enums.OrderStatusPaid
	case enums.OrderStatusPaid:
		return to == enums.OrderStatusProcessing
	case enums.OrderStatusProcessing:
		return to == enums.OrderStatusDesignApproval
	case enums.OrderStatusDesignApproval:
		return to == enums.OrderStatusInProduction
	case enums.OrderStatusInProduction:
		return to == enums.OrderStatusShipped || to == enums.OrderStatusDelivered
	case enums.OrderStatusShipped:
		return to == enums.OrderStatusDelivered
	case enums.OrderStatusDelivered:
		return to == enums.OrderStatusCompleted
	}
	return false
}

// AllowedTargets lists every status reachable from the given one.
func AllowedTargets(from enums.OrderStatus) []enums.OrderStatus {
	targets := []enums.OrderStatus{}
	for _, candidate := range enums.OrderStatuses() {
		if CanTransition(from, candidate) {
			targets = append(targets, candidate)
		}
	}
	return targets
}
