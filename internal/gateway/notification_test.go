package gateway

import (
	"strings"
	"testing"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

func TestVerifySignature(t *testing.T) {
	n := Notification{
		OrderID:     "ORD-20260105-0001-1a2b3c4d",
		StatusCode:  "200",
		GrossAmount: "75000.00",
	}
	n.SignatureKey = Signature(n.OrderID, n.StatusCode, n.GrossAmount, "server-key")

	if !VerifySignature(n, "server-key") {
		t.Fatalf("expected signature to verify")
	}
	if VerifySignature(n, "other-key") {
		t.Fatalf("signature must not verify with another key")
	}
	n.SignatureKey = strings.ToUpper(n.SignatureKey)
	if !VerifySignature(n, "server-key") {
		t.Fatalf("hex case must not matter")
	}
	n.GrossAmount = "75001.00"
	if VerifySignature(n, "server-key") {
		t.Fatalf("tampered amount must not verify")
	}
	if VerifySignature(Notification{}, "server-key") {
		t.Fatalf("missing signature must not verify")
	}
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		status string
		fraud  string
		want   enums.PaymentStatus
		ok     bool
	}{
		{status: "settlement", want: enums.PaymentStatusPaid, ok: true},
		{status: "capture", fraud: "accept", want: enums.PaymentStatusPaid, ok: true},
		{status: "capture", fraud: "challenge", want: enums.PaymentStatusPending, ok: true},
		{status: "pending", want: enums.PaymentStatusPending, ok: true},
		{status: "deny", want: enums.PaymentStatusFailed, ok: true},
		{status: "failure", want: enums.PaymentStatusFailed, ok: true},
		{status: "cancel", want: enums.PaymentStatusCancelled, ok: true},
		{status: "expire", want: enums.PaymentStatusCancelled, ok: true},
		{status: "refund", want: enums.PaymentStatusRefunded, ok: true},
		{status: "partial_refund", want: enums.PaymentStatusRefunded, ok: true},
		{status: "authorize", ok: false},
	}
	for _, tc := range cases {
		got, ok := MapStatus(tc.status, tc.fraud)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("MapStatus(%q, %q) = %q, %v; want %q, %v", tc.status, tc.fraud, got, ok, tc.want, tc.ok)
		}
	}
}

func TestGrossAmountValue(t *testing.T) {
	got, err := Notification{GrossAmount: "150000.00"}.GrossAmountValue()
	if err != nil || got != 150000 {
		t.Fatalf("unexpected amount %d err %v", got, err)
	}
	if _, err := (Notification{GrossAmount: "abc"}).GrossAmountValue(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNewTransactionID(t *testing.T) {
	first := NewTransactionID("ORD-20260105-0001")
	second := NewTransactionID("ORD-20260105-0001")
	if first == second {
		t.Fatalf("expected distinct ids per attempt")
	}
	if !strings.HasPrefix(first, "ORD-20260105-0001-") || len(first) != len("ORD-20260105-0001-")+8 {
		t.Fatalf("unexpected id %q", first)
	}

	long := NewTransactionID(strings.Repeat("X", 80))
	if len(long) > maxTransactionIDLen {
		t.Fatalf("id exceeds limit: %d", len(long))
	}
}
