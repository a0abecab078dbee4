package observability

import (
	"sync"
	"time"
)

// StepSnapshot summarizes one gateway step.
type StepSnapshot struct {
	Count         int64   `json:"count"`
	Errors        int64   `json:"errors"`
	InFlight      int64   `json:"in_flight"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

// Snapshot is a point-in-time view of checkout and settlement activity.
type Snapshot struct {
	UptimeSec          int64                   `json:"uptime_sec"`
	CheckoutsAccepted  int64                   `json:"checkouts_accepted"`
	CheckoutsRejected  map[string]int64        `json:"checkouts_rejected,omitempty"`
	Settlements        int64                   `json:"settlements"`
	Discards           int64                   `json:"discards"`
	DuplicateCallbacks int64                   `json:"duplicate_callbacks"`
	Evictions          int64                   `json:"evictions"`
	RedirectsSuccess   int64                   `json:"redirects_success"`
	RedirectsFailure   int64                   `json:"redirects_failure"`
	GatewaySteps       map[string]StepSnapshot `json:"gateway_steps"`
}

type stepStats struct {
	count        int64
	errors       int64
	inFlight     int64
	totalLatency time.Duration
	maxLatency   time.Duration
	lastLatency  time.Duration
}

// Metrics tracks saga activity. All methods are safe on a nil receiver so
// metrics stay optional throughout the services.
type Metrics struct {
	mu                 sync.Mutex
	start              time.Time
	steps              map[string]*stepStats
	checkoutsAccepted  int64
	checkoutsRejected  map[string]int64
	settlements        int64
	discards           int64
	duplicateCallbacks int64
	evictions          int64
	redirectsSuccess   int64
	redirectsFailure   int64
}

// CallSpan measures one in-flight gateway step.
type CallSpan struct {
	metrics *Metrics
	step    string
	start   time.Time
}

// NewMetrics constructs an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		start:             time.Now(),
		steps:             make(map[string]*stepStats),
		checkoutsRejected: make(map[string]int64),
	}
}

// Start begins timing a gateway step.
func (m *Metrics) Start(step string) *CallSpan {
	if m == nil {
		return &CallSpan{}
	}
	m.mu.Lock()
	stats := m.ensureStep(step)
	stats.inFlight++
	m.mu.Unlock()
	return &CallSpan{
		metrics: m,
		step:    step,
		start:   time.Now(),
	}
}

// End finishes the span, recording latency and whether the step failed.
func (s *CallSpan) End(err error) {
	if s == nil || s.metrics == nil {
		return
	}
	dur := time.Since(s.start)
	s.metrics.finish(s.step, dur, err != nil)
}

// AddCheckoutAccepted counts a checkout that returned a payment credential.
func (m *Metrics) AddCheckoutAccepted() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.checkoutsAccepted++
	m.mu.Unlock()
}

// AddCheckoutRejected counts a rejected checkout by failure kind.
func (m *Metrics) AddCheckoutRejected(kind string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.checkoutsRejected[kind]++
	m.mu.Unlock()
}

// AddSettlement counts a durable order created from a processed callback.
func (m *Metrics) AddSettlement() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.settlements++
	m.mu.Unlock()
}

// AddDiscard counts a pending order dropped on a failed payment.
func (m *Metrics) AddDiscard() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.discards++
	m.mu.Unlock()
}

// AddDuplicateCallback counts a processed callback with no pending entry.
func (m *Metrics) AddDuplicateCallback() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.duplicateCallbacks++
	m.mu.Unlock()
}

// AddEviction counts a pending order reaped unconsumed.
func (m *Metrics) AddEviction() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.evictions++
	m.mu.Unlock()
}

// AddRedirect counts a browser redirect decision.
func (m *Metrics) AddRedirect(success bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if success {
		m.redirectsSuccess++
	} else {
		m.redirectsFailure++
	}
	m.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSec:          int64(time.Since(m.start).Seconds()),
		CheckoutsAccepted:  m.checkoutsAccepted,
		CheckoutsRejected:  make(map[string]int64, len(m.checkoutsRejected)),
		Settlements:        m.settlements,
		Discards:           m.discards,
		DuplicateCallbacks: m.duplicateCallbacks,
		Evictions:          m.evictions,
		RedirectsSuccess:   m.redirectsSuccess,
		RedirectsFailure:   m.redirectsFailure,
		GatewaySteps:       make(map[string]StepSnapshot, len(m.steps)),
	}

	for step, stats := range m.steps {
		avg := 0.0
		if stats.count > 0 {
			avg = float64(stats.totalLatency.Milliseconds()) / float64(stats.count)
		}
		snap.GatewaySteps[step] = StepSnapshot{
			Count:         stats.count,
			Errors:        stats.errors,
			InFlight:      stats.inFlight,
			AvgLatencyMs:  avg,
			MaxLatencyMs:  float64(stats.maxLatency.Milliseconds()),
			LastLatencyMs: float64(stats.lastLatency.Milliseconds()),
		}
	}

	for kind, count := range m.checkoutsRejected {
		snap.CheckoutsRejected[kind] = count
	}

	return snap
}

func (m *Metrics) ensureStep(step string) *stepStats {
	stats, ok := m.steps[step]
	if !ok {
		stats = &stepStats{}
		m.steps[step] = stats
	}
	return stats
}

func (m *Metrics) finish(step string, dur time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	stats := m.ensureStep(step)
	stats.inFlight--
	stats.count++
	if failed {
		stats.errors++
	}
	stats.totalLatency += dur
	if dur > stats.maxLatency {
		stats.maxLatency = dur
	}
	stats.lastLatency = dur
	m.mu.Unlock()
}
