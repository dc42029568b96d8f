// internal/utils/metrics.go
package utils

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects application metrics
type MetricsCollector struct {
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Counter metric - using atomic operations for thread-safe value updates
type Counter struct {
	name  string
	value int64
}

// Gauge metric - using atomic operations for thread-safe value updates
type Gauge struct {
	name  string
	value int64
}

// Histogram metric (count, sum, min, max)
type Histogram struct {
	name  string
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

// NewMetricsCollector creates an empty collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

func (m *MetricsCollector) counter(name string) *Counter {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()
	if exists {
		return counter
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Double-check after acquiring write lock
	if counter, exists = m.counters[name]; !exists {
		counter = &Counter{name: name}
		m.counters[name] = counter
	}
	return counter
}

func (m *MetricsCollector) gauge(name string) *Gauge {
	m.mu.RLock()
	gauge, exists := m.gauges[name]
	m.mu.RUnlock()
	if exists {
		return gauge
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gauge, exists = m.gauges[name]; !exists {
		gauge = &Gauge{name: name}
		m.gauges[name] = gauge
	}
	return gauge
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(&m.counter(name).value, 1)
}

// AddCounter adds a value to a counter metric
func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(&m.counter(name).value, value)
}

// IncGauge increments a gauge metric
func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(&m.gauge(name).value, 1)
}

// DecGauge decrements a gauge metric
func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(&m.gauge(name).value, -1)
}

// GetGauge gets the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	gauge, exists := m.gauges[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(&gauge.value)
}

// GetCounterValue gets the current value of a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(&counter.value)
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		histogram, exists = m.histograms[name]
		if !exists {
			histogram = &Histogram{name: name, min: value, max: value}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.mu.Lock()
	defer histogram.mu.Unlock()

	histogram.count++
	histogram.sum += value
	if value < histogram.min {
		histogram.min = value
	}
	if value > histogram.max {
		histogram.max = value
	}
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, counter := range m.counters {
		counters[name] = atomic.LoadInt64(&counter.value)
	}

	gauges := make(map[string]int64, len(m.gauges))
	for name, gauge := range m.gauges {
		gauges[name] = atomic.LoadInt64(&gauge.value)
	}

	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, histogram := range m.histograms {
		histogram.mu.Lock()
		histograms[name] = map[string]int64{
			"count": histogram.count,
			"sum":   histogram.sum,
			"min":   histogram.min,
			"max":   histogram.max,
		}
		histogram.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// PipelineMetrics records request, LLM and transcription metrics
type PipelineMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewPipelineMetrics creates a recorder over the given collector
func NewPipelineMetrics(metrics *MetricsCollector, logger *Logger) *PipelineMetrics {
	if metrics == nil {
		metrics = NewMetricsCollector()
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &PipelineMetrics{metrics: metrics, logger: logger}
}

// Collector returns the underlying collector
func (pm *PipelineMetrics) Collector() *MetricsCollector {
	return pm.metrics
}

// RecordAPIRequest records metrics for an API request
func (pm *PipelineMetrics) RecordAPIRequest(route, method string, statusCode int, duration time.Duration) {
	pm.metrics.IncrementCounter("api_requests_total")
	pm.metrics.IncrementCounter("api_requests_" + method + "_" + route)
	pm.metrics.IncrementCounter(fmt.Sprintf("api_responses_%dxx", statusCode/100))
	pm.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())
}

// RecordLLMAttempt records one provider call, successful or not
func (pm *PipelineMetrics) RecordLLMAttempt(provider string, tokensUsed int, duration time.Duration, err error) {
	pm.metrics.IncrementCounter("llm_attempts_" + provider)
	pm.metrics.RecordHistogram("llm_latency_ms_"+provider, duration.Milliseconds())
	if err != nil {
		pm.metrics.IncrementCounter("llm_failures_" + provider)
		return
	}
	pm.metrics.AddCounter("llm_tokens_total", int64(tokensUsed))
	pm.metrics.AddCounter("llm_tokens_"+provider, int64(tokensUsed))
}

// RecordFallback records a fallthrough from one provider to the next
func (pm *PipelineMetrics) RecordFallback(from string) {
	pm.metrics.IncrementCounter("llm_fallbacks_total")
	pm.metrics.IncrementCounter("llm_fallbacks_from_" + from)
}

// RecordTranscript records a transcription run
func (pm *PipelineMetrics) RecordTranscript(duration time.Duration, err error) {
	pm.metrics.IncrementCounter("transcripts_total")
	pm.metrics.RecordHistogram("transcript_time_ms", duration.Milliseconds())
	if err != nil {
		pm.metrics.IncrementCounter("transcript_failures")
	}
}

// RecordMock records a demo substitution ("transcript" or "analysis")
func (pm *PipelineMetrics) RecordMock(stage string) {
	pm.metrics.IncrementCounter("mock_substitutions_" + stage)
	pm.logger.Debug("Demo data substituted", map[string]interface{}{"stage": stage})
}

// JobStarted / JobFinished track background jobs in flight
func (pm *PipelineMetrics) JobStarted() {
	pm.metrics.IncGauge("jobs_in_flight")
}

func (pm *PipelineMetrics) JobFinished() {
	pm.metrics.DecGauge("jobs_in_flight")
}
