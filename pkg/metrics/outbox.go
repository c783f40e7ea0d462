package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts publisher outcomes per event type.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "published_total",
		Help:      "Outbox events delivered to Pub/Sub.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "failed_total",
		Help:      "Outbox publish failures; terminal failures go to the DLQ.",
	}, []string{"event_type", "terminal"})
	reg.MustRegister(published, failed)
	return &OutboxMetrics{published: published, failed: failed}
}

func (m *OutboxMetrics) Published(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) Failed(eventType string, terminal bool) {
	if m == nil || m.failed == nil {
		return
	}
	label := "false"
	if terminal {
		label = "true"
	}
	m.failed.WithLabelValues(normalizeLabel(eventType), label).Inc()
}
