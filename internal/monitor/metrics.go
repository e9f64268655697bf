package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks controller activity: how many signals, order events and
// gateway calls have flowed through since startup.
type Metrics struct {
	GatewayLatency *LatencyHistogram
	APILatency     *LatencyHistogram

	klinesIngested  uint64
	signalsEmitted  uint64
	statusEvents    uint64
	ordersOpened    uint64
	stopsPlaced     uint64
	ordersCancelled uint64
	groupStopAmends uint64
	gatewayErrors   uint64
	apiRequests     uint64
	apiErrors       uint64
}

func NewMetrics() *Metrics {
	return &Metrics{
		GatewayLatency: NewLatencyHistogram(1000),
		APILatency:     NewLatencyHistogram(1000),
	}
}

func (m *Metrics) IncrementKlines()          { atomic.AddUint64(&m.klinesIngested, 1) }
func (m *Metrics) IncrementSignals()         { atomic.AddUint64(&m.signalsEmitted, 1) }
func (m *Metrics) IncrementStatusEvents()    { atomic.AddUint64(&m.statusEvents, 1) }
func (m *Metrics) IncrementOrdersOpened()    { atomic.AddUint64(&m.ordersOpened, 1) }
func (m *Metrics) IncrementStopsPlaced()     { atomic.AddUint64(&m.stopsPlaced, 1) }
func (m *Metrics) IncrementOrdersCancelled() { atomic.AddUint64(&m.ordersCancelled, 1) }
func (m *Metrics) IncrementGroupStopAmends() { atomic.AddUint64(&m.groupStopAmends, 1) }
func (m *Metrics) IncrementGatewayErrors()   { atomic.AddUint64(&m.gatewayErrors, 1) }
func (m *Metrics) IncrementAPI()             { atomic.AddUint64(&m.apiRequests, 1) }
func (m *Metrics) IncrementAPIErrors()       { atomic.AddUint64(&m.apiErrors, 1) }

// Snapshot is a point-in-time view served by the diagnostics API.
type Snapshot struct {
	KlinesIngested  uint64       `json:"klines_ingested"`
	SignalsEmitted  uint64       `json:"signals_emitted"`
	StatusEvents    uint64       `json:"status_events"`
	OrdersOpened    uint64       `json:"orders_opened"`
	StopsPlaced     uint64       `json:"stops_placed"`
	OrdersCancelled uint64       `json:"orders_cancelled"`
	GroupStopAmends uint64       `json:"group_stop_amends"`
	GatewayErrors   uint64       `json:"gateway_errors"`
	APIRequests     uint64       `json:"api_requests"`
	APIErrors       uint64       `json:"api_errors"`
	GatewayLatency  LatencyStats `json:"gateway_latency"`
	APILatency      LatencyStats `json:"api_latency"`
	GoroutineCount  int          `json:"goroutine_count"`
	HeapAlloc       uint64       `json:"heap_alloc_bytes"`
	Timestamp       time.Time    `json:"timestamp"`
}

func (m *Metrics) GetSnapshot() Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return Snapshot{
		KlinesIngested:  atomic.LoadUint64(&m.klinesIngested),
		SignalsEmitted:  atomic.LoadUint64(&m.signalsEmitted),
		StatusEvents:    atomic.LoadUint64(&m.statusEvents),
		OrdersOpened:    atomic.LoadUint64(&m.ordersOpened),
		StopsPlaced:     atomic.LoadUint64(&m.stopsPlaced),
		OrdersCancelled: atomic.LoadUint64(&m.ordersCancelled),
		GroupStopAmends: atomic.LoadUint64(&m.groupStopAmends),
		GatewayErrors:   atomic.LoadUint64(&m.gatewayErrors),
		APIRequests:     atomic.LoadUint64(&m.apiRequests),
		APIErrors:       atomic.LoadUint64(&m.apiErrors),
		GatewayLatency:  m.GatewayLatency.Stats(),
		APILatency:      m.APILatency.Stats(),
		GoroutineCount:  runtime.NumGoroutine(),
		HeapAlloc:       memStats.HeapAlloc,
		Timestamp:       time.Now(),
	}
}

// LatencyHistogram tracks latency samples in a sliding window. Stats are
// recomputed lazily, only when samples changed.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
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

// Timer measures one operation's duration into a histogram.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{start: time.Now(), histogram: h}
}

// Stop records elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
