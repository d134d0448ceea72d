package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Transaction statuses reported by the gateway.
const (
	StatusCapture       = "capture"
	StatusSettlement    = "settlement"
	StatusPending       = "pending"
	StatusDeny          = "deny"
	StatusCancel        = "cancel"
	StatusExpire        = "expire"
	StatusFailure       = "failure"
	StatusRefund        = "refund"
	StatusPartialRefund = "partial_refund"

	FraudAccept    = "accept"
	FraudChallenge = "challenge"
)

// Notification is the asynchronous status callback body. OrderID holds the
// per-attempt transaction id sent at charge time.
type Notification struct {
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionID     string `json:"transaction_id"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
	StatusMessage     string `json:"status_message"`
}

// Signature computes sha512(order_id + status_code + gross_amount + server_key) as hex.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature checks the notification against the server key in constant time.
func VerifySignature(n Notification, serverKey string) bool {
	if serverKey == "" || n.SignatureKey == "" {
		return false
	}
	expected := Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	provided := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

// MapStatus converts a gateway status into a payment status. The boolean is
// false for statuses the reconciler does not act on.
func MapStatus(transactionStatus, fraudStatus string) (enums.PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(transactionStatus)) {
	case StatusSettlement:
		return enums.PaymentStatusPaid, true
	case StatusCapture:
		if strings.EqualFold(fraudStatus, FraudChallenge) {
			return enums.PaymentStatusPending, true
		}
		return enums.PaymentStatusPaid, true
	case StatusPending:
		return enums.PaymentStatusPending, true
	case StatusDeny, StatusFailure:
		return enums.PaymentStatusFailed, true
	case StatusCancel, StatusExpire:
		return enums.PaymentStatusCancelled, true
	case StatusRefund, StatusPartialRefund:
		return enums.PaymentStatusRefunded, true
	}
	return "", false
}

// GrossAmountValue parses gross_amount ("150000.00") into whole currency units.
func (n Notification) GrossAmountValue() (int64, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(n.GrossAmount))
	if err != nil {
		return 0, err
	}
	return value.Round(0).IntPart(), nil
}
