//go:build !windows

package platformpipe

import (
	"context"

	"github.com/tenzoki/ipcbus/internal/errs"
	"github.com/tenzoki/ipcbus/internal/transport"
)

// RequiredPrefix mirrors the windows build's pipe namespace prefix so
// callers can reference it on any platform, even though it is never
// satisfiable here.
const RequiredPrefix = `\\.\pipe\`

// Dialer is the non-windows stand-in: this platform has no native named-pipe
// primitive reachable through this variant, so every call reports
// UnsupportedPlatform (spec §4.3).
type Dialer struct{}

func (Dialer) Connect(ctx context.Context, cfg transport.Config) (transport.Connection, error) {
	return nil, errs.ErrUnsupportedPlatform
}

// ListenerFactory mirrors Dialer's unsupported-platform behavior.
type ListenerFactory struct{}

func (ListenerFactory) Listen(ctx context.Context, cfg transport.Config) (transport.Listener, error) {
	return nil, errs.ErrUnsupportedPlatform
}
