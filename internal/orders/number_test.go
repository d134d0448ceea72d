package orders

import (
	"regexp"
	"testing"
	"time"
)

func TestNewOrderNumberFormat(t *testing.T) {
	now := time.Date(2026, 1, 5, 23, 30, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^ORD-20260105-[0-9A-F]{6}$`)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		number := NewOrderNumber(now)
		if !pattern.MatchString(number) {
			t.Fatalf("unexpected order number %q", number)
		}
		seen[number] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected random suffixes, got %v", seen)
	}
}
