// Package health implements the endpoint health monitor and circuit breaker
// (spec §4.8): per-endpoint status, consecutive failure count, breaker
// state, and a bounded window of recent response times.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/metric"

	"github.com/tenzoki/ipcbus/internal/errs"
)

const maxResponseSamples = 10

// Status is the coarse liveness classification of an endpoint.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
	StatusDown
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	case StatusDown:
		return "down"
	default:
		return "unknown"
	}
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
)

// CheckFunc performs a single liveness probe for the endpoint it is
// registered under. A non-nil error counts as a failed check.
type CheckFunc func(ctx context.Context) error

type record struct {
	status        Status
	lastCheck     time.Time
	failureCount  int
	breaker       breakerState
	openedAt      time.Time
	probeInFlight bool
	responseTimes []time.Duration
	check         CheckFunc
}

// Snapshot is a read-only view of an endpoint's health record.
type Snapshot struct {
	Endpoint            string
	Status              Status
	LastCheck           time.Time
	FailureCount        int
	BreakerOpen         bool
	OpenedAt            time.Time
	AverageResponseTime time.Duration
	Message             string
}

// Config holds the monitor's check cadence and breaker thresholds.
type Config struct {
	CheckInterval         time.Duration
	CheckTimeout          time.Duration
	FailureThreshold      int
	CircuitBreakerTimeout time.Duration
	SlowResponseThreshold time.Duration
}

// Monitor tracks health records for a set of registered endpoints and
// optionally runs periodic checks against them.
type Monitor struct {
	mu      sync.RWMutex
	cfg     Config
	records map[string]*record

	stop chan struct{}
	done chan struct{}

	responseHist   metric.Float64Histogram
	failureCounter metric.Int64Counter
}

// New builds a Monitor. meter may be nil, in which case metrics are
// skipped (go.opentelemetry.io/otel/metric's API degrades to a no-op when
// unconfigured).
func New(cfg Config, meter metric.Meter) *Monitor {
	m := &Monitor{cfg: cfg, records: make(map[string]*record)}
	if meter != nil {
		m.responseHist, _ = meter.Float64Histogram("ipcbus.health.response_time_ms")
		m.failureCounter, _ = meter.Int64Counter("ipcbus.health.check_failures")
	}
	return m
}

// Register initializes a health record for endpoint with status unknown.
// check, if non-nil, is used by the background checker and by PerformCheck
// when no override is given.
func (m *Monitor) Register(endpoint string, check CheckFunc) error {
	if endpoint == "" {
		return &errs.InvalidConfig{Field: "endpoint", Cause: fmt.Errorf("must not be empty")}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[endpoint] = &record{status: StatusUnknown, check: check}
	return nil
}

// Unregister removes endpoint's health record.
func (m *Monitor) Unregister(endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[endpoint]; !ok {
		return errs.ErrEndpointNotRegistered
	}
	delete(m.records, endpoint)
	return nil
}

// IsHealthy reports whether endpoint is currently usable: the breaker is
// closed and status is healthy, or the breaker is open but its timeout has
// elapsed, granting one probe allowance until the next PerformCheck records
// its outcome.
func (m *Monitor) IsHealthy(endpoint string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[endpoint]
	if !ok {
		return false
	}
	if rec.breaker == breakerClosed {
		return rec.status == StatusHealthy
	}
	if time.Since(rec.openedAt) >= m.cfg.CircuitBreakerTimeout {
		if rec.probeInFlight {
			return false
		}
		rec.probeInFlight = true
		return true
	}
	return false
}

// PerformCheck runs check (or the endpoint's registered CheckFunc if check
// is nil) against endpoint, recording the outcome, and returns the
// resulting snapshot.
func (m *Monitor) PerformCheck(ctx context.Context, endpoint string, check CheckFunc) (Snapshot, error) {
	m.mu.Lock()
	rec, ok := m.records[endpoint]
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, errs.ErrEndpointNotRegistered
	}
	fn := check
	if fn == nil {
		fn = rec.check
	}
	m.mu.Unlock()

	if fn == nil {
		return Snapshot{}, &errs.CheckFailed{Cause: fmt.Errorf("no check function registered for %q", endpoint)}
	}

	checkCtx := ctx
	var cancel context.CancelFunc
	if m.cfg.CheckTimeout > 0 {
		checkCtx, cancel = context.WithTimeout(ctx, m.cfg.CheckTimeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(checkCtx)
	elapsed := time.Since(start)

	m.mu.Lock()
	defer m.mu.Unlock()
	rec.lastCheck = start
	rec.probeInFlight = false
	rec.responseTimes = append(rec.responseTimes, elapsed)
	if len(rec.responseTimes) > maxResponseSamples {
		rec.responseTimes = rec.responseTimes[len(rec.responseTimes)-maxResponseSamples:]
	}
	if m.responseHist != nil {
		m.responseHist.Record(checkCtx, float64(elapsed.Milliseconds()))
	}

	if err == nil {
		rec.status = StatusHealthy
		rec.failureCount = 0
		rec.breaker = breakerClosed
		rec.openedAt = time.Time{}
	} else {
		rec.failureCount++
		rec.status = StatusUnhealthy
		if m.failureCounter != nil {
			m.failureCounter.Add(checkCtx, 1)
		}
		if rec.failureCount >= m.cfg.FailureThreshold {
			rec.breaker = breakerOpen
			rec.openedAt = start
			rec.status = StatusDown
		}
	}

	return m.snapshotLocked(endpoint, rec), nil
}

// Get returns a snapshot of endpoint's current record.
func (m *Monitor) Get(endpoint string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[endpoint]
	if !ok {
		return Snapshot{}, false
	}
	return m.snapshotLocked(endpoint, rec), true
}

// GetAll returns snapshots for every registered endpoint, sorted by id.
func (m *Monitor) GetAll() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.records))
	for id, rec := range m.records {
		out = append(out, m.snapshotLocked(id, rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

func (m *Monitor) snapshotLocked(endpoint string, rec *record) Snapshot {
	var avg time.Duration
	if len(rec.responseTimes) > 0 {
		var total time.Duration
		for _, d := range rec.responseTimes {
			total += d
		}
		avg = total / time.Duration(len(rec.responseTimes))
	}
	snap := Snapshot{
		Endpoint:            endpoint,
		Status:              rec.status,
		LastCheck:           rec.lastCheck,
		FailureCount:        rec.failureCount,
		BreakerOpen:         rec.breaker == breakerOpen,
		OpenedAt:            rec.openedAt,
		AverageResponseTime: avg,
	}
	if snap.BreakerOpen {
		snap.Message = fmt.Sprintf("circuit open since %s, %d consecutive failures",
			humanize.Time(rec.openedAt), rec.failureCount)
	}
	return snap
}

// Start launches a background checker that calls PerformCheck for every
// registered endpoint at the configured interval. Idempotent: a second
// call while already running is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	stop := m.stop
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.checkAll(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Monitor) checkAll(ctx context.Context) {
	m.mu.RLock()
	endpoints := make([]string, 0, len(m.records))
	for id := range m.records {
		endpoints = append(endpoints, id)
	}
	m.mu.RUnlock()
	for _, id := range endpoints {
		_, _ = m.PerformCheck(ctx, id, nil)
	}
}

// Stop halts the background checker, if running, and waits for it to exit.
// Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
