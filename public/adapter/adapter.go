// Package adapter implements the narrow outbound interfaces the bus
// exposes to its external collaborators (spec §4.10): the editor-core
// adapter, the language-server manager, the decision/conductor
// collaborator, and the data-access collaborator. None of these perform
// their own transport I/O; they build envelopes, route them through a
// *bus.Bus, and correlate responses delivered back through a
// *bus.Switchboard — the same request/response-over-a-shared-broker shape
// as cellorg/internal/storage/client.go's sendStorageRequestWithResponse,
// generalized from one fixed operation set to any method-keyed request.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tenzoki/ipcbus/internal/bus"
	"github.com/tenzoki/ipcbus/internal/envelope"
	"github.com/tenzoki/ipcbus/internal/errs"
)

// ErrorPayload is the structured body of a kind=error response envelope
// (spec §4.10: "code, message, context").
type ErrorPayload struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// CollaboratorError wraps an ErrorPayload as a Go error.
type CollaboratorError struct {
	Payload ErrorPayload
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator error %s: %s", e.Payload.Code, e.Payload.Message)
}

// Requester sends method-keyed requests to a target endpoint and awaits the
// correlated response, registering itself on the switchboard under
// selfEndpoint to receive deliveries.
type Requester struct {
	b            *bus.Bus
	switchboard  *bus.Switchboard
	selfEndpoint string
	timeout      time.Duration

	mu      sync.Mutex
	pending map[string]chan *envelope.Envelope
}

// NewRequester builds a Requester bound to selfEndpoint and registers its
// response handler on switchboard.
func NewRequester(b *bus.Bus, switchboard *bus.Switchboard, selfEndpoint string, timeout time.Duration) *Requester {
	r := &Requester{
		b:            b,
		switchboard:  switchboard,
		selfEndpoint: selfEndpoint,
		timeout:      timeout,
		pending:      make(map[string]chan *envelope.Envelope),
	}
	switchboard.Register(selfEndpoint, r.handleResponse)
	return r
}

func (r *Requester) handleResponse(ctx context.Context, env *envelope.Envelope) error {
	r.mu.Lock()
	ch, ok := r.pending[env.Header.CorrelationID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case ch <- env:
	default:
	}
	return nil
}

// Call builds a request envelope targeting (target, method) with payload as
// its body, routes it, and blocks until the correlated response arrives or
// the configured timeout elapses. A kind=error response is surfaced as a
// *CollaboratorError.
func (r *Requester) Call(ctx context.Context, target, method string, payload []byte) (*envelope.Envelope, error) {
	req, err := envelope.NewBuilder().
		Kind(envelope.KindRequest).
		Source(r.selfEndpoint).
		Target(target).
		RouteKey(method).
		Payload("application/json", payload).
		Build()
	if err != nil {
		return nil, err
	}

	ch := make(chan *envelope.Envelope, 1)
	r.mu.Lock()
	r.pending[req.Header.ID] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, req.Header.ID)
		r.mu.Unlock()
	}()

	if err := r.b.Route(ctx, req); err != nil {
		return nil, err
	}

	timeout := r.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case resp := <-ch:
		if resp.Header.Kind == envelope.KindError {
			var payload ErrorPayload
			if err := json.Unmarshal(resp.Payload.Bytes, &payload); err != nil {
				return nil, &CollaboratorError{Payload: ErrorPayload{Code: "unknown", Message: string(resp.Payload.Bytes)}}
			}
			return nil, &CollaboratorError{Payload: payload}
		}
		return resp, nil
	case <-time.After(timeout):
		return nil, errs.ErrRequestTimedOut
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Notify builds and routes a fire-and-forget notification, per the
// bus's notification dispatch (spec §4.9 step 7).
func (r *Requester) Notify(ctx context.Context, target, method string, payload []byte) error {
	env, err := envelope.NewBuilder().
		Kind(envelope.KindNotification).
		Source(r.selfEndpoint).
		Target(target).
		RouteKey(method).
		Payload("application/json", payload).
		Build()
	if err != nil {
		return err
	}
	return r.b.Route(ctx, env)
}
