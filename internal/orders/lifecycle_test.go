package orders

import (
	"testing"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from enums.OrderStatus
		to   enums.OrderStatus
		want bool
	}{
		{enums.OrderStatusPendingPayment, enums.OrderStatusPaid, true},
		{enums.OrderStatusPendingPayment, enums.OrderStatusPartiallyPaid, true},
		{enums.OrderStatusPendingPayment, enums.OrderStatusProcessing, false},
		{enums.OrderStatusPartiallyPaid, enums.OrderStatusPaid, true},
		{enums.OrderStatusPartiallyPaid, enums.OrderStatusPendingPayment, false},
		{enums.OrderStatusPaid, enums.OrderStatusProcessing, true},
		{enums.OrderStatusPaid, enums.OrderStatusPendingPayment, false},
		{enums.OrderStatusProcessing, enums.OrderStatusDesignApproval, true},
		{enums.OrderStatusDesignApproval, enums.OrderStatusInProduction, true},
		{enums.OrderStatusInProduction, enums.OrderStatusShipped, true},
		{enums.OrderStatusInProduction, enums.OrderStatusDelivered, true},
		{enums.OrderStatusInProduction, enums.OrderStatusCancelled, false},
		{enums.OrderStatusShipped, enums.OrderStatusDelivered, true},
		{enums.OrderStatusDelivered, enums.OrderStatusCompleted, true},
		{enums.OrderStatusDesignApproval, enums.OrderStatusCancelled, true},
		{enums.OrderStatusPaid, enums.OrderStatusRefunded, true},
		{enums.OrderStatusCancelled, enums.OrderStatusRefunded, true},
		{enums.OrderStatusCancelled, enums.OrderStatusPaid, false},
		{enums.OrderStatusFailed, enums.OrderStatusRefunded, false},
		{enums.OrderStatusCompleted, enums.OrderStatusCancelled, false},
		{enums.OrderStatusRefunded, enums.OrderStatusCancelled, false},
		{enums.OrderStatusPaid, enums.OrderStatusPaid, false},
		{enums.OrderStatusPaid, enums.OrderStatus("archived"), false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatusesOnlyLeaveForRefund(t *testing.T) {
	for _, from := range enums.OrderStatuses() {
		if !from.IsTerminal() {
			continue
		}
		targets := AllowedTargets(from)
		if from == enums.OrderStatusCancelled {
			if len(targets) != 1 || targets[0] != enums.OrderStatusRefunded {
				t.Fatalf("cancelled should only reach refunded, got %v", targets)
			}
			continue
		}
		if len(targets) != 0 {
			t.Fatalf("%s should be terminal, got %v", from, targets)
		}
	}
}

func TestAllowedTargetsFromPendingPayment(t *testing.T) {
	got := AllowedTargets(enums.OrderStatusPendingPayment)
	want := map[enums.OrderStatus]bool{
		enums.OrderStatusPaid:          true,
		enums.OrderStatusPartiallyPaid: true,
		enums.OrderStatusCancelled:     true,
		enums.OrderStatusFailed:        true,
		enums.OrderStatusRefunded:      true,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d targets, got %v", len(want), got)
	}
	for _, status := range got {
		if !want[status] {
			t.Fatalf("unexpected target %s", status)
		}
	}
}
