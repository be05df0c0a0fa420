//go:build !windows

package stdio

import (
	"context"
	"testing"
	"time"

	"github.com/tenzoki/ipcbus/internal/transport"
)

func TestStdioRoundTripViaCat(t *testing.T) {
	cfg := transport.Config{Endpoint: "/bin/cat", Timeout: time.Second, BufferSize: 4096}
	var d Dialer
	c, err := d.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Close()

	payload := []byte("hello stdio")
	if err := c.SendWithTimeout(context.Background(), payload, time.Second); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	got, err := c.RecvWithTimeout(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}
}

func TestStdioListenUnsupported(t *testing.T) {
	var lf ListenerFactory
	_, err := lf.Listen(context.Background(), transport.Config{Endpoint: "/bin/cat", Timeout: time.Second, BufferSize: 4096})
	if err == nil {
		t.Fatalf("expected UnsupportedOperation from stdio listen")
	}
}

func TestStdioCloseGracefullyTerminates(t *testing.T) {
	cfg := transport.Config{Endpoint: "/bin/cat", Timeout: time.Second, BufferSize: 4096}
	var d Dialer
	c, err := d.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	GracePeriod = 50 * time.Millisecond
	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if c.IsHealthy() {
		t.Fatalf("expected unhealthy after close")
	}
}
