package envelope

import (
	"testing"
	"time"
)

func buildTestEnvelope(t *testing.T) *Envelope {
	t.Helper()
	env, err := NewBuilder().
		Kind(KindRequest).
		Source("client").
		Target("svc-a").
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return env
}

func TestBuilderRequiresKindSourceTarget(t *testing.T) {
	if _, err := NewBuilder().Source("a").Target("b").Build(); err == nil {
		t.Fatalf("expected InvalidEnvelope for missing kind")
	}
	if _, err := NewBuilder().Kind(KindEvent).Target("b").Build(); err == nil {
		t.Fatalf("expected InvalidEnvelope for missing source")
	}
	if _, err := NewBuilder().Kind(KindEvent).Source("a").Build(); err == nil {
		t.Fatalf("expected InvalidEnvelope for missing target")
	}
}

func TestBuilderDefaults(t *testing.T) {
	env := buildTestEnvelope(t)
	if env.Header.ID == "" {
		t.Fatalf("expected a generated id")
	}
	if env.Header.Priority != PriorityNormal {
		t.Errorf("expected normal priority default, got %d", env.Header.Priority)
	}
	if env.Header.Version != CurrentVersion {
		t.Errorf("expected current version default, got %+v", env.Header.Version)
	}
	if env.Header.Timestamp.IsZero() {
		t.Errorf("expected timestamp to be set")
	}
}

func TestExpiredNoTTL(t *testing.T) {
	env := buildTestEnvelope(t)
	if Expired(env, env.Header.Timestamp.Add(365*24*time.Hour)) {
		t.Errorf("envelope without TTL must never expire")
	}
}

func TestExpiredWithTTL(t *testing.T) {
	env := buildTestEnvelope(t)
	env = WithTTL(env, time.Millisecond)
	if Expired(env, env.Header.Timestamp.Add(time.Millisecond-1)) {
		t.Errorf("envelope should not be expired just before ttl elapses")
	}
	if !Expired(env, env.Header.Timestamp.Add(time.Millisecond+time.Microsecond)) {
		t.Errorf("envelope should be expired just after ttl elapses")
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if _, ok := seen[id]; ok {
			t.Fatalf("collision detected at iteration %d: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestWithCorrelationDoesNotMutateOriginal(t *testing.T) {
	env := buildTestEnvelope(t)
	derived := WithCorrelation(env, "corr-1")
	if env.Header.CorrelationID != "" {
		t.Errorf("original envelope must not be mutated")
	}
	if derived.Header.CorrelationID != "corr-1" {
		t.Errorf("derived envelope missing correlation id")
	}
}

func TestMapPayloadTransformsWithoutMutation(t *testing.T) {
	env := buildTestEnvelope(t)
	env.Payload = Payload{TypeTag: "text", Bytes: []byte("hello")}
	derived := MapPayload(env, "upper", func(old Payload) []byte {
		return []byte("HELLO")
	})
	if string(env.Payload.Bytes) != "hello" {
		t.Errorf("original payload mutated")
	}
	if string(derived.Payload.Bytes) != "HELLO" || derived.Payload.TypeTag != "upper" {
		t.Errorf("derived payload incorrect: %+v", derived.Payload)
	}
}

func TestRoutingKeyDerivation(t *testing.T) {
	env := buildTestEnvelope(t)
	if RoutingKey(env) != "request" {
		t.Errorf("expected derived routing key 'request', got %q", RoutingKey(env))
	}
	env.Header.RouteKey = "custom.key"
	if RoutingKey(env) != "custom.key" {
		t.Errorf("expected explicit route key to win")
	}
}
