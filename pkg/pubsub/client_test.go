package pubsub

import (
	"context"
	"testing"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project string
		name    string
		want    string
	}{
		{project: "orderflow", name: "order-events", want: "projects/orderflow/topics/order-events"},
		{project: "orderflow", name: " projects/other/topics/x ", want: "projects/other/topics/x"},
		{project: "", name: "order-events", want: ""},
		{project: "orderflow", name: "  ", want: ""},
	}
	for _, tc := range cases {
		if got := topicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("topicResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestSubscriptionResourceName(t *testing.T) {
	if got := subscriptionResourceName("orderflow", "order-notifications"); got != "projects/orderflow/subscriptions/order-notifications" {
		t.Fatalf("unexpected resource name %q", got)
	}
	if got := subscriptionResourceName("orderflow", "projects/x/subscriptions/y"); got != "projects/x/subscriptions/y" {
		t.Fatalf("full names should pass through, got %q", got)
	}
	if got := subscriptionResourceName("", "order-notifications"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil {
		t.Fatalf("expected nil publisher")
	}
	if c.NotificationSubscription() != nil {
		t.Fatalf("expected nil subscriber")
	}
	if err := c.EnsureSubscription(context.Background(), "x"); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error for nil client")
	}
}
