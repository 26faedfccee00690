package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	// Registering twice on separate registries must not panic.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}

func TestRecordSegments(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSegments(3, map[string]int{"hallucination": 2, "repeat": 1}, 1)
	m.RecordSegments(1, map[string]int{"hallucination": 1}, 0)

	if got := testutil.ToFloat64(m.SegmentsAccepted); got != 4 {
		t.Errorf("Expected 4 accepted, got %f", got)
	}
	if got := testutil.ToFloat64(m.SegmentsDropped.WithLabelValues("hallucination")); got != 3 {
		t.Errorf("Expected 3 hallucinations, got %f", got)
	}
	if got := testutil.ToFloat64(m.SegmentsMerged); got != 1 {
		t.Errorf("Expected 1 merge, got %f", got)
	}
}

func TestRecordFallbackAndQueue(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordFallback()
	m.RecordQueue(7, 2, 1)
	m.RecordQueue(3, 1, 0)

	if got := testutil.ToFloat64(m.EngineMode); got != 1 {
		t.Errorf("Expected fallback gauge 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth); got != 3 {
		t.Errorf("Expected queue depth 3, got %f", got)
	}
	if got := testutil.ToFloat64(m.FramesEvicted); got != 3 {
		t.Errorf("Expected 3 evicted, got %f", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordChunkGenerated(1)
	m.RecordLine("status")
	m.RecordHTTPRequest("GET", "/health", "200", 0.1)
}
