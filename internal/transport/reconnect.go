package transport

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/tenzoki/ipcbus/internal/errs"
)

// ReconnectState is the Reconnector's current phase (spec §4.4).
type ReconnectState int

const (
	StateConnected ReconnectState = iota
	StateReconnecting
	StateFailed
)

// BackoffConfig parameterizes the exponential backoff with jitter used
// between reconnection attempts.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int // 0 means unlimited
	JitterFactor float64
}

// BackoffDelay returns the delay before attempt n (1-indexed), per spec
// §4.4: min(initial * multiplier^(n-1), max) * (1 + U[0, jitter]).
func BackoffDelay(cfg BackoffConfig, attempt int, jitter func() float64) time.Duration {
	base := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if max := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && base > max {
		base = max
	}
	factor := 1.0
	if cfg.JitterFactor > 0 {
		factor += jitter() * cfg.JitterFactor
	}
	return time.Duration(base * factor)
}

// Reconnector wraps a Dialer and transparently re-establishes a connection
// after health loss, applying exponential backoff with jitter between
// attempts.
type Reconnector struct {
	mu      sync.Mutex
	dialer  Dialer
	cfg     Config
	backoff BackoffConfig
	rand    func() float64

	state     ReconnectState
	conn      Connection
	attempt   int
	nextRetry time.Time
	lastErr   error
}

// NewReconnector builds a Reconnector around dialer using cfg to connect
// and backoff to pace reconnection attempts.
func NewReconnector(dialer Dialer, cfg Config, backoff BackoffConfig) *Reconnector {
	return &Reconnector{
		dialer:  dialer,
		cfg:     cfg,
		backoff: backoff,
		rand:    rand.Float64,
		state:   StateReconnecting,
	}
}

// EnsureConnected is the sole I/O gate: it returns the current connection
// if healthy, attempts reconnection if enough time has elapsed since the
// last attempt, and returns ConnectionFailed if the reconnector is in the
// Failed state or still waiting out its backoff window.
func (r *Reconnector) EnsureConnected(ctx context.Context) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateConnected && r.conn != nil && r.conn.IsHealthy() {
		return r.conn, nil
	}

	if r.state == StateFailed {
		return nil, &errs.ConnectionFailed{Cause: r.lastErr}
	}

	if r.state == StateReconnecting && time.Now().Before(r.nextRetry) {
		return nil, &errs.ConnectionFailed{Cause: r.lastErr}
	}

	r.attempt++
	conn, err := r.dialer.Connect(ctx, r.cfg)
	if err != nil {
		r.lastErr = err
		if r.backoff.MaxAttempts > 0 && r.attempt >= r.backoff.MaxAttempts {
			r.state = StateFailed
			return nil, &errs.ConnectionFailed{Cause: err}
		}
		r.state = StateReconnecting
		r.nextRetry = time.Now().Add(BackoffDelay(r.backoff, r.attempt, r.rand))
		return nil, &errs.ConnectionFailed{Cause: err}
	}

	r.conn = conn
	r.state = StateConnected
	r.attempt = 0
	r.lastErr = nil
	return conn, nil
}

// Reset forces a fresh reconnection cycle on the next EnsureConnected call.
func (r *Reconnector) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.conn = nil
	r.attempt = 0
	r.lastErr = nil
	r.state = StateReconnecting
	r.nextRetry = time.Time{}
}

// State returns the reconnector's current phase.
func (r *Reconnector) State() ReconnectState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
