//go:build windows

package localsocket

import (
	"context"

	"github.com/tenzoki/ipcbus/internal/errs"
	"github.com/tenzoki/ipcbus/internal/transport"
)

// Dialer is the windows stand-in: unix domain sockets are not this
// variant's primitive on windows (see platformpipe for the windows-native
// equivalent), so every call reports UnsupportedPlatform (spec §4.3).
type Dialer struct{}

func (Dialer) Connect(ctx context.Context, cfg transport.Config) (transport.Connection, error) {
	return nil, errs.ErrUnsupportedPlatform
}

// ListenerFactory mirrors Dialer's unsupported-platform behavior.
type ListenerFactory struct{}

func (ListenerFactory) Listen(ctx context.Context, cfg transport.Config) (transport.Listener, error) {
	return nil, errs.ErrUnsupportedPlatform
}
