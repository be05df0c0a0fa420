package bus

import (
	"context"
	"sync"

	"github.com/tenzoki/ipcbus/internal/envelope"
	"github.com/tenzoki/ipcbus/internal/errs"
)

// Handler processes an envelope delivered to the endpoint it is registered
// under.
type Handler func(ctx context.Context, env *envelope.Envelope) error

// Switchboard is a Deliverer that dispatches by endpoint id to whichever
// collaborator registered under that id — the bus-external counterpart of
// cellorg/internal/broker/service.go's connections map, generalized from
// "endpoint id → live TCP connection" to "endpoint id → in-process
// handler", since adapters (public/adapter) live in the same process as
// the bus here.
type Switchboard struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewSwitchboard builds an empty Switchboard.
func NewSwitchboard() *Switchboard {
	return &Switchboard{handlers: make(map[string]Handler)}
}

// Register binds endpoint to handler, replacing any prior binding.
func (s *Switchboard) Register(endpoint string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[endpoint] = handler
}

// Unregister removes endpoint's binding, if any.
func (s *Switchboard) Unregister(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, endpoint)
}

// Deliver implements Deliverer.
func (s *Switchboard) Deliver(ctx context.Context, endpoint string, env *envelope.Envelope) error {
	s.mu.RLock()
	handler, ok := s.handlers[endpoint]
	s.mu.RUnlock()
	if !ok {
		return errs.ErrEndpointNotRegistered
	}
	return handler(ctx, env)
}
