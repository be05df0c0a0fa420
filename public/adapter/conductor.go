package adapter

import (
	"context"
	"time"

	"github.com/tenzoki/ipcbus/internal/bus"
)

// ConductorAdapter requests a decision from the conductor collaborator for a
// given decision context and returns its reply (spec §4.10, third bullet).
// Both the context and the reply are opaque JSON bodies the conductor
// itself defines.
type ConductorAdapter struct {
	requester *Requester
	target    string
}

// NewConductorAdapter binds to target, the conductor's bus endpoint id.
func NewConductorAdapter(b *bus.Bus, switchboard *bus.Switchboard, selfEndpoint, target string, timeout time.Duration) *ConductorAdapter {
	return &ConductorAdapter{
		requester: NewRequester(b, switchboard, selfEndpoint, timeout),
		target:    target,
	}
}

// Decide submits decisionContext and blocks for the conductor's reply.
func (a *ConductorAdapter) Decide(ctx context.Context, decisionContext []byte) ([]byte, error) {
	resp, err := a.requester.Call(ctx, a.target, "decide", decisionContext)
	if err != nil {
		return nil, err
	}
	return resp.Payload.Bytes, nil
}
