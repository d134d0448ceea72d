package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const (
	maxTransactionIDLen = 50
	suffixLen           = 8
)

// NewTransactionID returns "<order_number>-<8 hex>". Every attempt gets a new
// one because the gateway refuses to reuse an order id.
func NewTransactionID(orderNumber string) string {
	prefix := strings.TrimSpace(orderNumber)
	limit := maxTransactionIDLen - suffixLen - 1
	if len(prefix) > limit {
		prefix = prefix[:limit]
	}
	return prefix + "-" + randomSuffix()
}

func randomSuffix() string {
	buf := make([]byte, suffixLen/2)
	if _, err := rand.Read(buf); err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]
	}
	return hex.EncodeToString(buf)
}
