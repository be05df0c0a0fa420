package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tenzoki/ipcbus/internal/errs"
)

func testConfig() Config {
	return Config{
		CheckInterval:         10 * time.Millisecond,
		CheckTimeout:          time.Second,
		FailureThreshold:      3,
		CircuitBreakerTimeout: 30 * time.Millisecond,
		SlowResponseThreshold: time.Second,
	}
}

func TestRegisterRejectsEmptyEndpoint(t *testing.T) {
	m := New(testConfig(), nil)
	if err := m.Register("", nil); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}

func TestUnregisterUnknownFails(t *testing.T) {
	m := New(testConfig(), nil)
	if err := m.Unregister("ep1"); !errors.Is(err, errs.ErrEndpointNotRegistered) {
		t.Fatalf("expected ErrEndpointNotRegistered, got %v", err)
	}
}

func TestIsHealthyFalseForUnregistered(t *testing.T) {
	m := New(testConfig(), nil)
	if m.IsHealthy("ghost") {
		t.Fatalf("expected false for unregistered endpoint")
	}
}

func TestPerformCheckSuccessMarksHealthy(t *testing.T) {
	m := New(testConfig(), nil)
	if err := m.Register("ep1", nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	_, err := m.PerformCheck(context.Background(), "ep1", func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("perform check failed: %v", err)
	}
	if !m.IsHealthy("ep1") {
		t.Fatalf("expected healthy after successful check")
	}
}

func TestCircuitOpensAtFailureThreshold(t *testing.T) {
	cfg := testConfig()
	m := New(cfg, nil)
	if err := m.Register("ep1", nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	failing := func(ctx context.Context) error { return errors.New("down") }
	for i := 0; i < cfg.FailureThreshold; i++ {
		if _, err := m.PerformCheck(context.Background(), "ep1", failing); err != nil {
			t.Fatalf("perform check failed: %v", err)
		}
	}
	if m.IsHealthy("ep1") {
		t.Fatalf("expected unhealthy once breaker opens")
	}
	snap, ok := m.Get("ep1")
	if !ok {
		t.Fatalf("expected snapshot for registered endpoint")
	}
	if !snap.BreakerOpen {
		t.Fatalf("expected breaker open")
	}
	if snap.Message == "" {
		t.Fatalf("expected explanatory message when breaker open")
	}
}

func TestCircuitAllowsProbeAfterTimeout(t *testing.T) {
	cfg := testConfig()
	m := New(cfg, nil)
	if err := m.Register("ep1", nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	failing := func(ctx context.Context) error { return errors.New("down") }
	for i := 0; i < cfg.FailureThreshold; i++ {
		if _, err := m.PerformCheck(context.Background(), "ep1", failing); err != nil {
			t.Fatalf("perform check failed: %v", err)
		}
	}
	time.Sleep(cfg.CircuitBreakerTimeout + 10*time.Millisecond)
	if !m.IsHealthy("ep1") {
		t.Fatalf("expected probe allowance true after breaker timeout elapses")
	}
}

func TestPerformCheckResetsFailureCountOnSuccess(t *testing.T) {
	m := New(testConfig(), nil)
	if err := m.Register("ep1", nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	failing := func(ctx context.Context) error { return errors.New("down") }
	if _, err := m.PerformCheck(context.Background(), "ep1", failing); err != nil {
		t.Fatalf("perform check failed: %v", err)
	}
	if _, err := m.PerformCheck(context.Background(), "ep1", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("perform check failed: %v", err)
	}
	snap, _ := m.Get("ep1")
	if snap.FailureCount != 0 {
		t.Fatalf("expected failure count reset to 0, got %d", snap.FailureCount)
	}
}

func TestResponseTimeWindowBounded(t *testing.T) {
	m := New(testConfig(), nil)
	if err := m.Register("ep1", nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	for i := 0; i < 20; i++ {
		if _, err := m.PerformCheck(context.Background(), "ep1", func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("perform check failed: %v", err)
		}
	}
	m.mu.RLock()
	n := len(m.records["ep1"].responseTimes)
	m.mu.RUnlock()
	if n > maxResponseSamples {
		t.Fatalf("expected response time window bounded to %d, got %d", maxResponseSamples, n)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	m := New(testConfig(), nil)
	if err := m.Register("ep1", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	m.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	m.Stop()
	m.Stop()
	if !m.IsHealthy("ep1") {
		t.Fatalf("expected background checker to have marked ep1 healthy")
	}
}
