package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks pipeline throughput and latency.
type SystemMetrics struct {
	mu sync.RWMutex

	// Latency histograms
	OCRLatency       *LatencyHistogram
	ExecutionLatency *LatencyHistogram
	PipelineLatency  *LatencyHistogram
	DBLatency        *LatencyHistogram
	APILatency       *LatencyHistogram

	// Counters
	signalsReceived uint64
	signalsParsed   uint64
	signalsRejected uint64
	signalsQueued   uint64
	tradesExecuted  uint64
	tradesFailed    uint64
	errorsCount     uint64
	apiRequests     uint64
	apiErrors       uint64

	// Execution state (updated from main and the worker).
	mode       string
	degraded   bool
	queueDepth int

	startedAt time.Time
}

// LatencyHistogram keeps the most recent samples (milliseconds) in a ring.
type LatencyHistogram struct {
	mu     sync.Mutex
	ring   []float64
	next   int
	full   bool
	cached *LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		OCRLatency:       NewLatencyHistogram(1000),
		ExecutionLatency: NewLatencyHistogram(1000),
		PipelineLatency:  NewLatencyHistogram(1000),
		DBLatency:        NewLatencyHistogram(1000),
		APILatency:       NewLatencyHistogram(1000),
		startedAt:        time.Now(),
	}
}

// NewLatencyHistogram keeps the last size samples (1000 when size <= 0).
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{ring: make([]float64, size)}
}

// Record adds a latency sample in milliseconds, evicting the oldest when full.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ring[h.next] = latencyMs
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.full = true
	}
	h.cached = nil
}

// RecordDuration records d in milliseconds.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d) / float64(time.Millisecond))
}

// Stats summarises the retained samples. The result is cached until the
// next Record.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cached != nil {
		return *h.cached
	}
	n := h.next
	if h.full {
		n = len(h.ring)
	}
	if n == 0 {
		return LatencyStats{}
	}

	sorted := append([]float64(nil), h.ring[:n]...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	st := LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
		Count: n,
	}
	h.cached = &st
	return st
}

// percentile uses nearest rank on an ascending slice.
func percentile(sorted []float64, q float64) float64 {
	i := int(float64(len(sorted)) * q)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

func (m *SystemMetrics) IncReceived() { atomic.AddUint64(&m.signalsReceived, 1) }
func (m *SystemMetrics) IncParsed()   { atomic.AddUint64(&m.signalsParsed, 1) }
func (m *SystemMetrics) IncRejected() { atomic.AddUint64(&m.signalsRejected, 1) }
func (m *SystemMetrics) IncQueued()   { atomic.AddUint64(&m.signalsQueued, 1) }
func (m *SystemMetrics) IncExecuted() { atomic.AddUint64(&m.tradesExecuted, 1) }
func (m *SystemMetrics) IncFailed()   { atomic.AddUint64(&m.tradesFailed, 1) }

// IncrementErrors counts internal errors (OCR transport, audit writes, panics).
func (m *SystemMetrics) IncrementErrors() {
	atomic.AddUint64(&m.errorsCount, 1)
}

// IncrementAPI counts served API requests.
func (m *SystemMetrics) IncrementAPI() { atomic.AddUint64(&m.apiRequests, 1) }

// IncrementAPIErrors counts API responses with status >= 400.
func (m *SystemMetrics) IncrementAPIErrors() { atomic.AddUint64(&m.apiErrors, 1) }

// SetExecutionState records the active trading mode.
func (m *SystemMetrics) SetExecutionState(mode string, degraded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	m.degraded = degraded
}

// SetQueueDepth records how many tasks wait for the worker.
func (m *SystemMetrics) SetQueueDepth(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepth = n
}

// MetricsSnapshot is a point-in-time view of SystemMetrics.
type MetricsSnapshot struct {
	OCRLatency       LatencyStats `json:"ocr_latency"`
	ExecutionLatency LatencyStats `json:"execution_latency"`
	PipelineLatency  LatencyStats `json:"pipeline_latency"`
	DBLatency        LatencyStats `json:"db_latency"`
	APILatency       LatencyStats `json:"api_latency"`
	SignalsReceived  uint64       `json:"signals_received"`
	SignalsParsed    uint64       `json:"signals_parsed"`
	SignalsRejected  uint64       `json:"signals_rejected"`
	SignalsQueued    uint64       `json:"signals_queued"`
	TradesExecuted   uint64       `json:"trades_executed"`
	TradesFailed     uint64       `json:"trades_failed"`
	ErrorsCount      uint64       `json:"errors_count"`
	APIRequests      uint64       `json:"api_requests"`
	APIErrors        uint64       `json:"api_errors"`
	Mode             string       `json:"mode"`
	Degraded         bool         `json:"degraded"`
	QueueDepth       int          `json:"queue_depth"`
	Uptime           string       `json:"uptime"`
	GoroutineCount   int          `json:"goroutine_count"`
	HeapAlloc        uint64       `json:"heap_alloc_bytes"`
	HeapSys          uint64       `json:"heap_sys_bytes"`
	Timestamp        time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	mode, degraded, depth := m.mode, m.degraded, m.queueDepth
	m.mu.RUnlock()

	return MetricsSnapshot{
		OCRLatency:       m.OCRLatency.Stats(),
		ExecutionLatency: m.ExecutionLatency.Stats(),
		PipelineLatency:  m.PipelineLatency.Stats(),
		DBLatency:        m.DBLatency.Stats(),
		APILatency:       m.APILatency.Stats(),
		SignalsReceived:  atomic.LoadUint64(&m.signalsReceived),
		SignalsParsed:    atomic.LoadUint64(&m.signalsParsed),
		SignalsRejected:  atomic.LoadUint64(&m.signalsRejected),
		SignalsQueued:    atomic.LoadUint64(&m.signalsQueued),
		TradesExecuted:   atomic.LoadUint64(&m.tradesExecuted),
		TradesFailed:     atomic.LoadUint64(&m.tradesFailed),
		ErrorsCount:      atomic.LoadUint64(&m.errorsCount),
		APIRequests:      atomic.LoadUint64(&m.apiRequests),
		APIErrors:        atomic.LoadUint64(&m.apiErrors),
		Mode:             mode,
		Degraded:         degraded,
		QueueDepth:       depth,
		Uptime:           time.Since(m.startedAt).Round(time.Second).String(),
		GoroutineCount:   runtime.NumGoroutine(),
		HeapAlloc:        memStats.HeapAlloc,
		HeapSys:          memStats.HeapSys,
		Timestamp:        time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
