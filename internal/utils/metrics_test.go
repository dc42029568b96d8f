package utils

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMetricsCollectorConcurrentCounters(t *testing.T) {
	m := NewMetricsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter("hits")
			m.AddCounter("bytes", 10)
		}()
	}
	wg.Wait()

	if got := m.GetCounterValue("hits"); got != 50 {
		t.Errorf("hits = %d, want 50", got)
	}
	if got := m.GetCounterValue("bytes"); got != 500 {
		t.Errorf("bytes = %d, want 500", got)
	}
	if got := m.GetCounterValue("missing"); got != 0 {
		t.Errorf("missing counter = %d, want 0", got)
	}
}

func TestHistogramSnapshot(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordHistogram("latency", 30)
	m.RecordHistogram("latency", 10)
	m.RecordHistogram("latency", 20)

	snapshot := m.GetMetrics()
	h := snapshot["histograms"].(map[string]map[string]int64)["latency"]
	if h["count"] != 3 || h["sum"] != 60 || h["min"] != 10 || h["max"] != 30 {
		t.Errorf("unexpected histogram snapshot: %v", h)
	}
}

func TestPipelineMetrics(t *testing.T) {
	var buf bytes.Buffer
	pm := NewPipelineMetrics(nil, NewLogger(&buf, "debug"))

	pm.RecordLLMAttempt("groq", 0, 5*time.Millisecond, errors.New("boom"))
	pm.RecordLLMAttempt("gemini", 1200, 8*time.Millisecond, nil)
	pm.RecordFallback("groq")
	pm.RecordMock("analysis")
	pm.JobStarted()
	pm.JobStarted()
	pm.JobFinished()

	c := pm.Collector()
	if c.GetCounterValue("llm_failures_groq") != 1 {
		t.Error("groq failure should be counted")
	}
	if c.GetCounterValue("llm_tokens_gemini") != 1200 {
		t.Error("gemini tokens should be counted")
	}
	if c.GetCounterValue("llm_fallbacks_from_groq") != 1 {
		t.Error("fallback should be counted")
	}
	if c.GetGauge("jobs_in_flight") != 1 {
		t.Errorf("jobs_in_flight = %d, want 1", c.GetGauge("jobs_in_flight"))
	}
	if !strings.Contains(buf.String(), "Demo data substituted") {
		t.Error("mock substitution should be logged at debug level")
	}
}
