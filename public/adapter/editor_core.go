package adapter

import (
	"context"
	"time"

	"github.com/tenzoki/ipcbus/internal/bus"
)

// EditorCoreAdapter issues method-keyed requests to the editor-core
// collaborator: view lifecycle, text deltas, and selection/cursor
// operations (spec §4.10, first bullet). Every method is request/response;
// payloads are opaque JSON bodies the editor core itself defines.
type EditorCoreAdapter struct {
	requester *Requester
	target    string
}

// NewEditorCoreAdapter binds to target, the editor-core's bus endpoint id.
func NewEditorCoreAdapter(b *bus.Bus, switchboard *bus.Switchboard, selfEndpoint, target string, timeout time.Duration) *EditorCoreAdapter {
	return &EditorCoreAdapter{
		requester: NewRequester(b, switchboard, selfEndpoint, timeout),
		target:    target,
	}
}

// OpenView requests that the editor core open a view for payload (a
// view-descriptor body) and returns the resulting view-state response.
func (a *EditorCoreAdapter) OpenView(ctx context.Context, payload []byte) ([]byte, error) {
	return a.call(ctx, "open-view", payload)
}

// CloseView requests a view be closed.
func (a *EditorCoreAdapter) CloseView(ctx context.Context, payload []byte) ([]byte, error) {
	return a.call(ctx, "close-view", payload)
}

// EditDelta applies a text delta to an open view.
func (a *EditorCoreAdapter) EditDelta(ctx context.Context, payload []byte) ([]byte, error) {
	return a.call(ctx, "edit-delta", payload)
}

// Save persists the contents of an open view.
func (a *EditorCoreAdapter) Save(ctx context.Context, payload []byte) ([]byte, error) {
	return a.call(ctx, "save", payload)
}

// CursorMove repositions the cursor in an open view.
func (a *EditorCoreAdapter) CursorMove(ctx context.Context, payload []byte) ([]byte, error) {
	return a.call(ctx, "cursor-move", payload)
}

// Click forwards a pointer click to the view at the given offset.
func (a *EditorCoreAdapter) Click(ctx context.Context, payload []byte) ([]byte, error) {
	return a.call(ctx, "click", payload)
}

// SelectAll selects the full contents of an open view.
func (a *EditorCoreAdapter) SelectAll(ctx context.Context, payload []byte) ([]byte, error) {
	return a.call(ctx, "select-all", payload)
}

// FindSelection requests the editor core locate and select the next match
// of a search term.
func (a *EditorCoreAdapter) FindSelection(ctx context.Context, payload []byte) ([]byte, error) {
	return a.call(ctx, "find-selection", payload)
}

func (a *EditorCoreAdapter) call(ctx context.Context, method string, payload []byte) ([]byte, error) {
	resp, err := a.requester.Call(ctx, a.target, method, payload)
	if err != nil {
		return nil, err
	}
	return resp.Payload.Bytes, nil
}
