package metrics

import "github.com/prometheus/client_golang/prometheus"

// CartMetrics tracks optimistic concurrency outcomes of cart mutations.
type CartMetrics struct {
	conflicts *prometheus.CounterVec
	commits   *prometheus.CounterVec
	attempts  *prometheus.HistogramVec
}

func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "version_conflicts_total",
		Help:      "Cart saves rejected by the version check.",
	}, []string{"op"})
	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "mutations_total",
		Help:      "Committed cart mutations.",
	}, []string{"op"})
	attempts := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "mutation_attempts",
		Help:      "Attempts needed to commit a cart mutation.",
		Buckets:   []float64{1, 2, 3, 5, 8},
	}, []string{"op"})
	reg.MustRegister(conflicts, commits, attempts)
	return &CartMetrics{conflicts: conflicts, commits: commits, attempts: attempts}
}

func (m *CartMetrics) MutationConflict(op string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(op)).Inc()
}

func (m *CartMetrics) MutationCommitted(op string, attempts int) {
	if m == nil || m.commits == nil {
		return
	}
	label := normalizeLabel(op)
	m.commits.WithLabelValues(label).Inc()
	m.attempts.WithLabelValues(label).Observe(float64(attempts))
}
