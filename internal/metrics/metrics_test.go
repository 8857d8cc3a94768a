package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersWithoutPanicking(t *testing.T) {
	m := New()
	if m.Registry == nil {
		t.Fatal("expected a non-nil registry")
	}

	gathered, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(gathered) == 0 {
		t.Error("expected at least one registered metric family")
	}
}

func TestCountersAreIndependentPerLabel(t *testing.T) {
	m := New()
	m.GossipDelivered.WithLabelValues("urn:link:a").Inc()
	m.GossipDelivered.WithLabelValues("urn:link:b").Inc()
	m.GossipDelivered.WithLabelValues("urn:link:b").Inc()

	if got := testutil.ToFloat64(m.GossipDelivered.WithLabelValues("urn:link:a")); got != 1 {
		t.Errorf("urn:link:a counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.GossipDelivered.WithLabelValues("urn:link:b")); got != 2 {
		t.Errorf("urn:link:b counter = %v, want 2", got)
	}
}
