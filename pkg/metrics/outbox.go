package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts publisher outcomes per event type.
type OutboxMetrics struct {
	publish *prometheus.CounterVec
}

// NewOutboxMetrics registers the publisher counter. A nil registerer yields no-ops.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		publish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_outbox_publish_total",
			Help: "Outbox rows handled by the publisher by event type and result.",
		}, []string{"event_type", "result"}),
	}
	reg.MustRegister(m.publish)
	return m
}

func (m *OutboxMetrics) IncOutboxPublish(eventType, result string) {
	if m == nil || m.publish == nil {
		return
	}
	m.publish.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
