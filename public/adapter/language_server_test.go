package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/tenzoki/ipcbus/internal/envelope"
)

func TestLanguageServerManagerOutboundNotify(t *testing.T) {
	b, sb := testBus(t)
	if err := b.RegisterRoute("did-open", "lang-server", 100); err != nil {
		t.Fatalf("register route failed: %v", err)
	}
	received := make(chan []byte, 1)
	sb.Register("lang-server", func(ctx context.Context, env *envelope.Envelope) error {
		received <- env.Payload.Bytes
		return nil
	})

	mgr := NewLanguageServerManager(b, sb, "alfa-out", "alfa-in", "lang-server", time.Second)
	if err := mgr.NotifyDidOpen(context.Background(), []byte(`{"path":"a.go"}`)); err != nil {
		t.Fatalf("NotifyDidOpen failed: %v", err)
	}
	select {
	case payload := <-received:
		if string(payload) != `{"path":"a.go"}` {
			t.Fatalf("unexpected payload: %s", payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("language server never received the notification")
	}
}

func TestLanguageServerManagerInboundDiagnostic(t *testing.T) {
	b, sb := testBus(t)
	if err := b.RegisterRoute("diagnostic", "alfa-in", 100); err != nil {
		t.Fatalf("register route failed: %v", err)
	}

	mgr := NewLanguageServerManager(b, sb, "alfa-out", "alfa-in", "lang-server", time.Second)
	got := make(chan []byte, 1)
	mgr.OnDiagnostic(func(ctx context.Context, payload []byte) {
		got <- payload
	})

	env, err := envelope.NewBuilder().
		Kind(envelope.KindNotification).
		Source("lang-server").
		Target("alfa-in").
		RouteKey("diagnostic").
		Payload("application/json", []byte(`{"severity":"error"}`)).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := b.Route(context.Background(), env); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	select {
	case payload := <-got:
		if string(payload) != `{"severity":"error"}` {
			t.Fatalf("unexpected payload: %s", payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("diagnostic handler was never invoked")
	}
}

func TestLanguageServerManagerUnregisteredRouteKeyIgnored(t *testing.T) {
	b, sb := testBus(t)
	if err := b.RegisterRoute("completion", "alfa-in", 100); err != nil {
		t.Fatalf("register route failed: %v", err)
	}
	mgr := NewLanguageServerManager(b, sb, "alfa-out", "alfa-in", "lang-server", time.Second)
	_ = mgr

	env, err := envelope.NewBuilder().
		Kind(envelope.KindNotification).
		Source("lang-server").
		Target("alfa-in").
		RouteKey("completion").
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := b.Route(context.Background(), env); err != nil {
		t.Fatalf("expected no error dispatching to an endpoint with no handler for this route key, got %v", err)
	}
}
