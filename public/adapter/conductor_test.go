package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/tenzoki/ipcbus/internal/envelope"
)

func TestConductorAdapterDecide(t *testing.T) {
	b, sb := testBus(t)
	if err := b.RegisterRoute("decide", "conductor", 100); err != nil {
		t.Fatalf("register route failed: %v", err)
	}
	sb.Register("conductor", func(ctx context.Context, env *envelope.Envelope) error {
		resp, err := envelope.NewBuilder().
			Kind(envelope.KindResponse).
			Source("conductor").
			Target(env.Header.Source).
			CorrelationID(env.Header.ID).
			Payload("application/json", []byte(`{"action":"proceed"}`)).
			Build()
		if err != nil {
			return err
		}
		return b.Route(ctx, resp)
	})

	adapter := NewConductorAdapter(b, sb, "alfa", "conductor", time.Second)
	resp, err := adapter.Decide(context.Background(), []byte(`{"situation":"merge-conflict"}`))
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if string(resp) != `{"action":"proceed"}` {
		t.Fatalf("unexpected response: %s", resp)
	}
}
