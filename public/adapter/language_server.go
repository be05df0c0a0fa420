package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/tenzoki/ipcbus/internal/bus"
	"github.com/tenzoki/ipcbus/internal/envelope"
)

// NotificationHandler processes an inbound notification payload from the
// language server (diagnostic, completion, or lifecycle event).
type NotificationHandler func(ctx context.Context, payload []byte)

// LanguageServerManager exchanges bidirectional notifications with a
// language-server collaborator (spec §4.10, second bullet): outbound
// lifecycle/edit notifications flow out via Notify, and inbound
// diagnostic/completion/lifecycle pushes are dispatched to registered
// handlers. Unlike the request/response adapters, neither direction
// correlates a reply.
type LanguageServerManager struct {
	requester *Requester
	target    string

	mu       sync.RWMutex
	handlers map[string]NotificationHandler
}

// NewLanguageServerManager binds outboundEndpoint for outgoing notifications
// and inboundEndpoint for receiving them, both routed through the same bus.
func NewLanguageServerManager(b *bus.Bus, switchboard *bus.Switchboard, outboundEndpoint, inboundEndpoint, target string, timeout time.Duration) *LanguageServerManager {
	m := &LanguageServerManager{
		requester: NewRequester(b, switchboard, outboundEndpoint, timeout),
		target:    target,
		handlers:  make(map[string]NotificationHandler),
	}
	switchboard.Register(inboundEndpoint, m.dispatch)
	return m
}

func (m *LanguageServerManager) dispatch(ctx context.Context, env *envelope.Envelope) error {
	m.mu.RLock()
	handler, ok := m.handlers[env.Header.RouteKey]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	handler(ctx, env.Payload.Bytes)
	return nil
}

// OnDiagnostic registers the callback invoked when the language server
// pushes a diagnostic-set notification.
func (m *LanguageServerManager) OnDiagnostic(handler NotificationHandler) {
	m.setHandler("diagnostic", handler)
}

// OnCompletion registers the callback invoked when the language server
// pushes completion suggestions.
func (m *LanguageServerManager) OnCompletion(handler NotificationHandler) {
	m.setHandler("completion", handler)
}

// OnLifecycle registers the callback invoked when the language server
// reports a lifecycle transition (started, crashed, restarted).
func (m *LanguageServerManager) OnLifecycle(handler NotificationHandler) {
	m.setHandler("lifecycle", handler)
}

func (m *LanguageServerManager) setHandler(routeKey string, handler NotificationHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[routeKey] = handler
}

// NotifyDidChange tells the language server that a document's contents
// changed.
func (m *LanguageServerManager) NotifyDidChange(ctx context.Context, payload []byte) error {
	return m.requester.Notify(ctx, m.target, "did-change", payload)
}

// NotifyDidOpen tells the language server that a document was opened.
func (m *LanguageServerManager) NotifyDidOpen(ctx context.Context, payload []byte) error {
	return m.requester.Notify(ctx, m.target, "did-open", payload)
}

// NotifyDidClose tells the language server that a document was closed.
func (m *LanguageServerManager) NotifyDidClose(ctx context.Context, payload []byte) error {
	return m.requester.Notify(ctx, m.target, "did-close", payload)
}
