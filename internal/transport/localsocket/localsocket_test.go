//go:build !windows

package localsocket

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tenzoki/ipcbus/internal/transport"
)

func TestLocalSocketRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")
	cfg := transport.Config{Endpoint: sockPath, Timeout: time.Second, BufferSize: 4096}

	var lf ListenerFactory
	ln, err := lf.Listen(context.Background(), cfg)
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	info, err := os.Stat(sockPath)
	if err != nil {
		t.Fatalf("stat socket failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected socket perm 0600, got %v", info.Mode().Perm())
	}

	accepted := make(chan transport.Connection, 1)
	acceptErr := make(chan error, 1)
	go func() {
		c, err := ln.Accept(context.Background())
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- c
	}()

	var d Dialer
	clientConn, err := d.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer clientConn.Close()

	var serverConn transport.Connection
	select {
	case serverConn = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("accept failed: %v", err)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for accept")
	}
	defer serverConn.Close()

	payload := []byte("hello over unix socket")
	if err := clientConn.SendWithTimeout(context.Background(), payload, time.Second); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	got, err := serverConn.RecvWithTimeout(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}

	stats := clientConn.Stats()
	if stats.BytesSent != uint64(len(payload)) {
		t.Fatalf("expected bytes sent %d, got %d", len(payload), stats.BytesSent)
	}
}

func TestLocalSocketConfigValidation(t *testing.T) {
	var d Dialer
	_, err := d.Connect(context.Background(), transport.Config{})
	if err == nil {
		t.Fatalf("expected validation error for empty config")
	}
}
