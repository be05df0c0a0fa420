// Package transport defines the pluggable connection abstraction (spec
// §4.3): a uniform Connection/Listener contract implemented by the
// local-socket, stdio, and platform-pipe variants, plus the shared Config
// validation every variant applies before attempting any I/O.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/tenzoki/ipcbus/internal/errs"
)

// Config is the eagerly validated connection configuration shared by every
// transport variant.
type Config struct {
	Endpoint   string
	Timeout    time.Duration
	BufferSize int
}

// Validate checks endpoint, timeout, and buffer size before any I/O is
// attempted, per spec §4.3.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return &errs.InvalidConfig{Field: "endpoint", Cause: fmt.Errorf("must not be empty")}
	}
	if c.Timeout <= 0 {
		return &errs.InvalidConfig{Field: "timeout", Cause: fmt.Errorf("must be positive")}
	}
	if c.BufferSize <= 0 {
		return &errs.InvalidConfig{Field: "buffer_size", Cause: fmt.Errorf("must be positive")}
	}
	return nil
}

// Stats reports point-in-time connection counters.
type Stats struct {
	BytesSent      uint64
	BytesReceived  uint64
	LastActivityAt time.Time
}

// Connection is a single bidirectional, message-framed channel to a peer.
type Connection interface {
	SendWithTimeout(ctx context.Context, data []byte, d time.Duration) error
	RecvWithTimeout(ctx context.Context, d time.Duration) ([]byte, error)
	IsHealthy() bool
	Close() error
	Stats() Stats
}

// Listener accepts inbound connections for variants that support listening.
type Listener interface {
	Accept(ctx context.Context) (Connection, error)
	Close() error
}

// Dialer opens an outbound connection for a variant.
type Dialer interface {
	Connect(ctx context.Context, cfg Config) (Connection, error)
}

// ListenerFactory creates a listener for a variant that supports it.
type ListenerFactory interface {
	Listen(ctx context.Context, cfg Config) (Listener, error)
}
