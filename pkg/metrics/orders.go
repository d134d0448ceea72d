package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics tracks payment reconciliation and order consistency signals.
type OrderMetrics struct {
	webhooks            *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	rejectedTransitions *prometheus.CounterVec
	consistency         *prometheus.CounterVec
	paymentAttempts     *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer. A nil
// registerer yields a collector whose methods are no-ops.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_payment_webhooks_total",
			Help: "Gateway notifications by gateway status and handling outcome.",
		}, []string{"status", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_order_transitions_total",
			Help: "Applied order status transitions.",
		}, []string{"from", "to"}),
		rejectedTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_order_transitions_rejected_total",
			Help: "Order transitions refused by the state machine.",
		}, []string{"source"}),
		consistency: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_consistency_failures_total",
			Help: "States recorded for manual reconciliation.",
		}, []string{"kind"}),
		paymentAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_payment_attempts_total",
			Help: "Gateway charge attempts by payment type and result.",
		}, []string{"type", "result"}),
	}
	reg.MustRegister(m.webhooks, m.transitions, m.rejectedTransitions, m.consistency, m.paymentAttempts)
	return m
}

func (m *OrderMetrics) IncWebhook(status, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(status), normalizeLabel(outcome)).Inc()
}

func (m *OrderMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncRejectedTransition counts INVALID_TRANSITION outcomes by the caller that hit them.
func (m *OrderMetrics) IncRejectedTransition(source string) {
	if m == nil || m.rejectedTransitions == nil {
		return
	}
	m.rejectedTransitions.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *OrderMetrics) IncConsistencyFailure(kind string) {
	if m == nil || m.consistency == nil {
		return
	}
	m.consistency.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *OrderMetrics) IncPaymentAttempt(paymentType, result string) {
	if m == nil || m.paymentAttempts == nil {
		return
	}
	m.paymentAttempts.WithLabelValues(normalizeLabel(paymentType), normalizeLabel(result)).Inc()
}
