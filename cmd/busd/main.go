// Package main runs busd, the ipcbus daemon: it loads a manifest, starts
// the bus facade, and serves a local-socket listener that speaks the
// binary-compact codec to connecting collaborators.
//
// Called by: operators / init systems.
// Calls: internal/config, internal/bus, internal/transport/localsocket,
// internal/codec, internal/logging.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"

	"github.com/tenzoki/ipcbus/internal/bus"
	"github.com/tenzoki/ipcbus/internal/codec"
	"github.com/tenzoki/ipcbus/internal/config"
	"github.com/tenzoki/ipcbus/internal/envelope"
	"github.com/tenzoki/ipcbus/internal/errs"
	"github.com/tenzoki/ipcbus/internal/logging"
	"github.com/tenzoki/ipcbus/internal/transport"
	"github.com/tenzoki/ipcbus/internal/transport/localsocket"
)

const (
	defaultSocketPath = "/tmp/ipcbus.sock"
	defaultLogDir     = "logs"
)

func main() {
	// Before a session log exists, a stdr-backed logger carries startup
	// diagnostics; once the session opens, everything routes through it
	// instead.
	boot := stdr.New(log.New(os.Stderr, "", log.LstdFlags))

	var manifestPath string
	var configSource string

	if len(os.Args) >= 2 {
		manifestPath = os.Args[1]
		configSource = fmt.Sprintf("manifest file: %s", manifestPath)
	} else if _, err := os.Stat("config/busd.yaml"); err == nil {
		manifestPath = "config/busd.yaml"
		configSource = "config/busd.yaml (default)"
	}

	var manifest *config.Manifest
	if manifestPath != "" {
		loaded, err := config.Load(manifestPath)
		if err != nil {
			boot.Error(err, "failed to load manifest", "path", manifestPath)
			os.Exit(1)
		}
		manifest = loaded
	} else {
		boot.Info("no manifest specified and config/busd.yaml not found, using hardcoded defaults")
		manifest = config.Default()
		configSource = "hardcoded defaults"
	}
	boot.Info("starting busd", "configSource", configSource)

	logger, sink, err := logging.NewSession(defaultLogDir, false)
	if err != nil {
		boot.Error(err, "failed to open session log")
		os.Exit(1)
	}
	defer sink.Close()
	logger = logger.WithName("busd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switchboard := bus.NewSwitchboard()
	b, err := bus.New(manifest.BusConfig(), switchboard, nil)
	if err != nil {
		logger.Error(err, "failed to build bus")
		os.Exit(1)
	}

	topicReceivers, err := manifest.ApplyTo(b)
	if err != nil {
		logger.Error(err, "failed to apply manifest")
		os.Exit(1)
	}
	for name := range topicReceivers {
		logger.V(1).Info("pre-warmed topic", "topic", name)
	}

	b.StartHealthChecks(ctx)
	logger.Info("health checker started")

	socketPath := defaultSocketPath
	if env := os.Getenv("IPCBUS_SOCKET"); env != "" {
		socketPath = env
	}

	var factory localsocket.ListenerFactory
	listener, err := factory.Listen(ctx, transport.Config{
		Endpoint:   socketPath,
		Timeout:    30 * time.Second,
		BufferSize: 64 * 1024,
	})
	if err != nil {
		logger.Error(err, "failed to listen", "socket", socketPath)
		os.Exit(1)
	}
	logger.Info("listening", "socket", socketPath)

	registry := codec.NewRegistry()
	wireCodec, _ := registry.Get(codec.BinaryCompact)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		acceptLoop(ctx, listener, b, switchboard, wireCodec, logger.WithName("accept"))
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	cancel()
	b.Shutdown()
	if err := listener.Close(); err != nil {
		logger.Error(err, "error closing listener")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("busd shut down cleanly")
	case <-time.After(10 * time.Second):
		logger.Info("shutdown timeout exceeded")
	}
}

// acceptLoop accepts connections until Accept fails after ctx has been
// cancelled; an accept error while ctx is still live is logged and the loop
// continues. Each connection is handed to connectionLoop in its own goroutine.
func acceptLoop(ctx context.Context, listener transport.Listener, b *bus.Bus, switchboard *bus.Switchboard, wireCodec codec.Codec, logger logr.Logger) {
	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error(err, "accept error")
			continue
		}
		go connectionLoop(ctx, conn, b, switchboard, wireCodec, logger.WithName("conn"))
	}
}

// connectionLoop reads length-framed, codec-encoded envelopes from conn and
// routes each through the bus. The endpoint id a connection serves is
// learned from the Source header of the first envelope it sends and
// registered with switchboard for the lifetime of the connection, so
// responses addressed back to that endpoint are delivered over the same
// connection.
func connectionLoop(ctx context.Context, conn transport.Connection, b *bus.Bus, switchboard *bus.Switchboard, wireCodec codec.Codec, logger logr.Logger) {
	defer conn.Close()

	var registeredEndpoint string
	defer func() {
		if registeredEndpoint != "" {
			switchboard.Unregister(registeredEndpoint)
		}
	}()

	const recvPollInterval = 30 * time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		data, err := conn.RecvWithTimeout(ctx, recvPollInterval)
		if err != nil {
			if errors.Is(err, errs.ErrReceiveTimeout) {
				continue
			}
			return
		}
		env, err := wireCodec.Decode(data)
		if err != nil {
			logger.Error(err, "decode error")
			continue
		}

		if registeredEndpoint == "" && env.Header.Source != "" {
			registeredEndpoint = env.Header.Source
			switchboard.Register(registeredEndpoint, func(ctx context.Context, out *envelope.Envelope) error {
				encoded, err := wireCodec.Encode(out)
				if err != nil {
					return err
				}
				return conn.SendWithTimeout(ctx, encoded, recvPollInterval)
			})
		}

		if err := b.Route(ctx, env); err != nil {
			logger.Error(err, "route error", "source", env.Header.Source, "target", env.Header.Target)
		}
	}
}
