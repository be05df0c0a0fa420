package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/tenzoki/ipcbus/internal/envelope"
)

func TestEditorCoreAdapterOpenView(t *testing.T) {
	b, sb := testBus(t)
	if err := b.RegisterRoute("open-view", "editor-core", 100); err != nil {
		t.Fatalf("register route failed: %v", err)
	}
	sb.Register("editor-core", func(ctx context.Context, env *envelope.Envelope) error {
		resp, err := envelope.NewBuilder().
			Kind(envelope.KindResponse).
			Source("editor-core").
			Target(env.Header.Source).
			CorrelationID(env.Header.ID).
			Payload("application/json", []byte(`{"view_id":"v1"}`)).
			Build()
		if err != nil {
			return err
		}
		return b.Route(ctx, resp)
	})

	adapter := NewEditorCoreAdapter(b, sb, "alfa", "editor-core", time.Second)
	resp, err := adapter.OpenView(context.Background(), []byte(`{"path":"a.go"}`))
	if err != nil {
		t.Fatalf("OpenView failed: %v", err)
	}
	if string(resp) != `{"view_id":"v1"}` {
		t.Fatalf("unexpected response: %s", resp)
	}
}

func TestEditorCoreAdapterEditDeltaUnreachable(t *testing.T) {
	b, sb := testBus(t)
	adapter := NewEditorCoreAdapter(b, sb, "alfa", "editor-core", 20*time.Millisecond)
	if _, err := adapter.EditDelta(context.Background(), nil); err == nil {
		t.Fatalf("expected error routing to an unregistered endpoint")
	}
}
