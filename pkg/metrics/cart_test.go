package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCartMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCartMetrics(reg)

	m.MutationConflict("add_item")
	m.MutationConflict("add_item")
	m.MutationCommitted("add_item", 3)
	m.MutationCommitted("add_item", 1)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	labels := map[string]string{"op": "add_item"}

	if got, err := fetchCounterValue(mfs, "cartcore_cart_version_conflicts_total", labels); err != nil || got != 2 {
		t.Fatalf("expected conflicts=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "cartcore_cart_mutations_total", labels); err != nil || got != 2 {
		t.Fatalf("expected mutations=2, got %f (%v)", got, err)
	}
	h, err := fetchHistogram(mfs, "cartcore_cart_mutation_attempts", labels)
	if err != nil {
		t.Fatalf("fetch attempts: %v", err)
	}
	if h.GetSampleCount() != 2 || h.GetSampleSum() != 4 {
		t.Fatalf("unexpected attempts histogram count=%d sum=%f", h.GetSampleCount(), h.GetSampleSum())
	}
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.Published("cart_created")
	m.Failed("cart_created", false)
	m.Failed("cart_created", true)
	m.Failed("cart_created", true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "cartcore_outbox_published_total", map[string]string{"event_type": "cart_created"}); err != nil || got != 1 {
		t.Fatalf("expected published=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "cartcore_outbox_failed_total", map[string]string{"event_type": "cart_created", "terminal": "true"}); err != nil || got != 2 {
		t.Fatalf("expected terminal failures=2, got %f (%v)", got, err)
	}
}
