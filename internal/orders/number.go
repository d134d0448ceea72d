package orders

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderNumber builds the external order reference, e.g. ORD-20260105-3FA9C1.
func NewOrderNumber(now time.Time) string {
	buf := make([]byte, 3)
	suffix := ""
	if _, err := rand.Read(buf); err == nil {
		suffix = hex.EncodeToString(buf)
	} else {
		suffix = strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	}
	return "ORD-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(suffix)
}
