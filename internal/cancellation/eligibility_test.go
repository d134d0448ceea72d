package cancellation

import (
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

func TestEvaluateWindowBoundary(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC)
	order := models.Order{Status: enums.OrderStatusPaid, CreatedAt: now.Add(-24 * time.Hour)}

	if !CanRequest(order, false, now, DefaultWindow) {
		t.Fatalf("order exactly 24h old should be eligible")
	}
	order.CreatedAt = now.Add(-24*time.Hour - time.Second)
	if CanRequest(order, false, now, DefaultWindow) {
		t.Fatalf("order 24h+1s old should not be eligible")
	}
	if got := IneligibilityReason(order, false, now, DefaultWindow); got != reasonWindowExpired {
		t.Fatalf("unexpected reason %q", got)
	}
}

func TestEvaluateReasonPriority(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC)
	old := now.Add(-72 * time.Hour)

	cases := []struct {
		name      string
		status    enums.OrderStatus
		createdAt time.Time
		hasActive bool
		eligible  bool
		reason    string
	}{
		{"pending payment ignores window", enums.OrderStatusPendingPayment, old, false, true, ""},
		{"partially paid inside window", enums.OrderStatusPartiallyPaid, now.Add(-time.Hour), false, true, ""},
		{"closed beats active request", enums.OrderStatusShipped, now, true, false, "Order can no longer be cancelled (status: shipped)"},
		{"active request beats wrong status", enums.OrderStatusProcessing, now, true, false, reasonActiveRequest},
		{"active request beats window", enums.OrderStatusPaid, old, true, false, reasonActiveRequest},
		{"wrong status", enums.OrderStatusDesignApproval, now, false, false, reasonWrongStatus},
		{"already cancelled", enums.OrderStatusCancelled, now, false, false, "Order can no longer be cancelled (status: cancelled)"},
	}
	for _, tc := range cases {
		order := models.Order{Status: tc.status, CreatedAt: tc.createdAt}
		got := Evaluate(order, tc.hasActive, now, DefaultWindow)
		if got.Eligible != tc.eligible {
			t.Fatalf("%s: expected eligible=%v, got %v", tc.name, tc.eligible, got.Eligible)
		}
		if got.Reason != tc.reason {
			t.Fatalf("%s: expected reason %q, got %q", tc.name, tc.reason, got.Reason)
		}
		if tc.eligible && strings.TrimSpace(got.Reason) != "" {
			t.Fatalf("%s: eligible result should carry no reason", tc.name)
		}
	}
}

func TestEvaluateUsesConfiguredWindow(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC)
	order := models.Order{Status: enums.OrderStatusPaid, CreatedAt: now.Add(-2 * time.Hour)}
	if CanRequest(order, false, now, time.Hour) {
		t.Fatalf("expected one hour window to reject a two hour old order")
	}
	if !CanRequest(order, false, now, 0) {
		t.Fatalf("zero window should fall back to the default")
	}
}
