package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func histogramSampleCount(t *testing.T, name string) uint64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func TestMetrics_STTLatencyObserved(t *testing.T) {
	before := histogramSampleCount(t, "avatar_bridge_stt_latency_seconds")

	m := NewSessionMetrics()
	m.RecordSTTStart()
	m.RecordSTTEnd(true)

	after := histogramSampleCount(t, "avatar_bridge_stt_latency_seconds")
	if after != before+1 {
		t.Errorf("Expected one STT latency observation, sample count went %d -> %d", before, after)
	}
}

func TestMetrics_STTEndWithoutStartSkipsLatency(t *testing.T) {
	before := histogramSampleCount(t, "avatar_bridge_stt_latency_seconds")

	m := NewSessionMetrics()
	m.RecordSTTEnd(true)

	after := histogramSampleCount(t, "avatar_bridge_stt_latency_seconds")
	if after != before {
		t.Errorf("Expected no latency observation without a start, sample count went %d -> %d", before, after)
	}
}

func TestMetrics_STTStartConsumedByEnd(t *testing.T) {
	m := NewSessionMetrics()
	m.RecordSTTStart()
	m.RecordSTTEnd(true)

	before := histogramSampleCount(t, "avatar_bridge_stt_latency_seconds")
	// A second final without new speech must not reuse the stale start.
	m.RecordSTTEnd(true)

	after := histogramSampleCount(t, "avatar_bridge_stt_latency_seconds")
	if after != before {
		t.Errorf("Expected stale start not to be observed twice, sample count went %d -> %d", before, after)
	}
}
