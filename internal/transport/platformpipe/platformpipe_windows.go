//go:build windows

// Package platformpipe implements the platform-pipe transport variant (spec
// §4.3): Windows named pipes, the platform's native local IPC primitive.
// Endpoint names must carry the `\\.\pipe\` prefix Windows requires;
// mismatches are rejected by Validate below, before any I/O is attempted.
package platformpipe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/windows"

	"github.com/tenzoki/ipcbus/internal/errs"
	"github.com/tenzoki/ipcbus/internal/transport"
)

// RequiredPrefix is the Windows named-pipe namespace prefix every endpoint
// must carry.
const RequiredPrefix = `\\.\pipe\`

func validateEndpoint(cfg transport.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !strings.HasPrefix(cfg.Endpoint, RequiredPrefix) {
		return &errs.InvalidConfig{Field: "endpoint", Cause: fmt.Errorf("must begin with %q", RequiredPrefix)}
	}
	return nil
}

// Dialer connects to an existing named pipe.
type Dialer struct{}

func (Dialer) Connect(ctx context.Context, cfg transport.Config) (transport.Connection, error) {
	if err := validateEndpoint(cfg); err != nil {
		return nil, err
	}
	name, err := windows.UTF16PtrFromString(cfg.Endpoint)
	if err != nil {
		return nil, &errs.ConnectionFailed{Cause: err}
	}
	handle, err := windows.CreateFile(
		name,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		return nil, &errs.ConnectionFailed{Cause: err}
	}
	return newConn(handle), nil
}

// ListenerFactory creates a named pipe server instance.
type ListenerFactory struct{}

func (ListenerFactory) Listen(ctx context.Context, cfg transport.Config) (transport.Listener, error) {
	if err := validateEndpoint(cfg); err != nil {
		return nil, err
	}
	return &pipeListener{cfg: cfg}, nil
}

type pipeListener struct {
	cfg    transport.Config
	mu     sync.Mutex
	closed bool
}

const pipeBufferSize = 64 * 1024

func (l *pipeListener) Accept(ctx context.Context) (transport.Connection, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, &errs.ConnectionFailed{Cause: fmt.Errorf("listener closed")}
	}
	l.mu.Unlock()

	name, err := windows.UTF16PtrFromString(l.cfg.Endpoint)
	if err != nil {
		return nil, &errs.ConnectionFailed{Cause: err}
	}
	handle, err := windows.CreateNamedPipe(
		name,
		windows.PIPE_ACCESS_DUPLEX,
		0,
		windows.PIPE_UNLIMITED_INSTANCES,
		pipeBufferSize,
		pipeBufferSize,
		0,
		nil,
	)
	if err != nil {
		return nil, &errs.ConnectionFailed{Cause: err}
	}
	if err := windows.ConnectNamedPipe(handle, nil); err != nil && err != windows.ERROR_PIPE_CONNECTED {
		_ = windows.CloseHandle(handle)
		return nil, &errs.ConnectionFailed{Cause: err}
	}
	return newConn(handle), nil
}

func (l *pipeListener) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

type conn struct {
	handle windows.Handle

	mu            sync.Mutex
	bytesSent     uint64
	bytesReceived uint64
	lastActivity  atomic.Value
	closed        atomic.Bool
}

func newConn(handle windows.Handle) *conn {
	c := &conn{handle: handle}
	c.lastActivity.Store(time.Now())
	return c
}

func (c *conn) SendWithTimeout(ctx context.Context, data []byte, d time.Duration) error {
	framed := frame(data)
	done := make(chan error, 1)
	go func() {
		var written uint32
		err := windows.WriteFile(c.handle, framed, &written, nil)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return errs.ErrSendFailed
		}
		c.mu.Lock()
		c.bytesSent += uint64(len(data))
		c.mu.Unlock()
		c.lastActivity.Store(time.Now())
		return nil
	case <-time.After(d):
		return errs.ErrSendTimeout
	}
}

func (c *conn) RecvWithTimeout(ctx context.Context, d time.Duration) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := readFrame(c.handle)
		done <- result{data: data, err: err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return nil, errs.ErrReceiveFailed
		}
		c.mu.Lock()
		c.bytesReceived += uint64(len(r.data))
		c.mu.Unlock()
		c.lastActivity.Store(time.Now())
		return r.data, nil
	case <-time.After(d):
		return nil, errs.ErrReceiveTimeout
	}
}

func (c *conn) IsHealthy() bool { return !c.closed.Load() }

func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return windows.CloseHandle(c.handle)
}

func (c *conn) Stats() transport.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, _ := c.lastActivity.Load().(time.Time)
	return transport.Stats{
		BytesSent:      c.bytesSent,
		BytesReceived:  c.bytesReceived,
		LastActivityAt: last,
	}
}

func frame(data []byte) []byte {
	out := make([]byte, 4+len(data))
	out[0] = byte(len(data) >> 24)
	out[1] = byte(len(data) >> 16)
	out[2] = byte(len(data) >> 8)
	out[3] = byte(len(data))
	copy(out[4:], data)
	return out
}

func readFrame(handle windows.Handle) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if err := readFull(handle, lenBuf); err != nil {
		return nil, err
	}
	n := uint32(lenBuf[0])<<24 | uint32(lenBuf[1])<<16 | uint32(lenBuf[2])<<8 | uint32(lenBuf[3])
	buf := make([]byte, n)
	if n > 0 {
		if err := readFull(handle, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func readFull(handle windows.Handle, buf []byte) error {
	read := uint32(0)
	for read < uint32(len(buf)) {
		var n uint32
		if err := windows.ReadFile(handle, buf[read:], &n, nil); err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("unexpected eof on named pipe")
		}
		read += n
	}
	return nil
}
