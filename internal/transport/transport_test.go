package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConfigValidateRejectsEmptyEndpoint(t *testing.T) {
	cfg := Config{Endpoint: "", Timeout: time.Second, BufferSize: 4096}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}

func TestConfigValidateRejectsNonPositiveTimeout(t *testing.T) {
	cfg := Config{Endpoint: "ep", Timeout: 0, BufferSize: 4096}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero timeout")
	}
}

func TestConfigValidateRejectsNonPositiveBufferSize(t *testing.T) {
	cfg := Config{Endpoint: "ep", Timeout: time.Second, BufferSize: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero buffer size")
	}
}

func TestConfigValidateAcceptsValidConfig(t *testing.T) {
	cfg := Config{Endpoint: "ep", Timeout: time.Second, BufferSize: 4096}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBackoffDelayMonotonicUntilCap(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 200 * time.Millisecond, Multiplier: 2, JitterFactor: 0}
	noJitter := func() float64 { return 0 }
	d1 := BackoffDelay(cfg, 1, noJitter)
	d2 := BackoffDelay(cfg, 2, noJitter)
	d3 := BackoffDelay(cfg, 10, noJitter)
	if d1 != 10*time.Millisecond {
		t.Fatalf("expected 10ms for attempt 1, got %v", d1)
	}
	if d2 != 20*time.Millisecond {
		t.Fatalf("expected 20ms for attempt 2, got %v", d2)
	}
	if d3 != cfg.MaxDelay {
		t.Fatalf("expected delay capped at max, got %v", d3)
	}
}

func TestBackoffDelayAppliesJitter(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1, JitterFactor: 0.5}
	halfJitter := func() float64 { return 1.0 }
	d := BackoffDelay(cfg, 1, halfJitter)
	if d != 150*time.Millisecond {
		t.Fatalf("expected 150ms with full jitter applied, got %v", d)
	}
}

type fakeConn struct{ healthy bool }

func (f *fakeConn) SendWithTimeout(ctx context.Context, data []byte, d time.Duration) error { return nil }
func (f *fakeConn) RecvWithTimeout(ctx context.Context, d time.Duration) ([]byte, error) {
	return nil, nil
}
func (f *fakeConn) IsHealthy() bool { return f.healthy }
func (f *fakeConn) Close() error    { return nil }
func (f *fakeConn) Stats() Stats    { return Stats{} }

type fakeDialer struct {
	failTimes int
	calls     int
}

func (d *fakeDialer) Connect(ctx context.Context, cfg Config) (Connection, error) {
	d.calls++
	if d.calls <= d.failTimes {
		return nil, errors.New("dial failed")
	}
	return &fakeConn{healthy: true}, nil
}

func TestReconnectorSucceedsAfterRetries(t *testing.T) {
	dialer := &fakeDialer{failTimes: 2}
	cfg := Config{Endpoint: "ep", Timeout: time.Second, BufferSize: 1024}
	backoff := BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 1, JitterFactor: 0}
	r := NewReconnector(dialer, cfg, backoff)

	var conn Connection
	var err error
	for i := 0; i < 5; i++ {
		conn, err = r.EnsureConnected(context.Background())
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if conn == nil {
		t.Fatalf("expected non-nil connection")
	}
	if r.State() != StateConnected {
		t.Fatalf("expected StateConnected, got %v", r.State())
	}
}

func TestReconnectorFailsAfterMaxAttempts(t *testing.T) {
	dialer := &fakeDialer{failTimes: 100}
	cfg := Config{Endpoint: "ep", Timeout: time.Second, BufferSize: 1024}
	backoff := BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, MaxAttempts: 2, JitterFactor: 0}
	r := NewReconnector(dialer, cfg, backoff)

	for i := 0; i < 2; i++ {
		_, _ = r.EnsureConnected(context.Background())
		time.Sleep(5 * time.Millisecond)
	}
	if r.State() != StateFailed {
		t.Fatalf("expected StateFailed after exhausting attempts, got %v", r.State())
	}
	if _, err := r.EnsureConnected(context.Background()); err == nil {
		t.Fatalf("expected ConnectionFailed once in Failed state")
	}
}

func TestReconnectorResetForcesFreshCycle(t *testing.T) {
	dialer := &fakeDialer{failTimes: 0}
	cfg := Config{Endpoint: "ep", Timeout: time.Second, BufferSize: 1024}
	backoff := BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, JitterFactor: 0}
	r := NewReconnector(dialer, cfg, backoff)

	if _, err := r.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.Reset()
	if r.State() != StateReconnecting {
		t.Fatalf("expected StateReconnecting after reset, got %v", r.State())
	}
}
