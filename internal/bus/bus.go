// Package bus implements the bus facade (spec §4.9): it composes the
// envelope, router, correlator, pubsub, and health components and exposes
// the top-level register_route / route / shutdown operations every caller
// goes through.
package bus

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tenzoki/ipcbus/internal/correlator"
	"github.com/tenzoki/ipcbus/internal/envelope"
	"github.com/tenzoki/ipcbus/internal/errs"
	"github.com/tenzoki/ipcbus/internal/health"
	"github.com/tenzoki/ipcbus/internal/pubsub"
	"github.com/tenzoki/ipcbus/internal/router"
	"github.com/tenzoki/ipcbus/internal/tracing"
)

// Deliverer hands an envelope to the transport serving a specific endpoint.
// The bus is deliberately ignorant of how an endpoint maps to a connection;
// that wiring belongs to the caller assembling the bus (spec §4.3/§6 keep
// transport selection external to routing).
type Deliverer interface {
	Deliver(ctx context.Context, endpoint string, env *envelope.Envelope) error
}

// Config holds the bus facade's own gates, independent of its component
// configs (which the caller constructs and passes in directly).
type Config struct {
	MaxPayloadSize int
	CorrelationTTL time.Duration
	ReapInterval   time.Duration
	PubSubBuffer   int
	RouteCacheSize int64
	Health         health.Config

	// MaxConcurrentDeliveries caps in-flight calls to Deliverer.Deliver
	// (spec §6: "advisory; enforces backpressure" on point-to-point sends).
	// Zero means unbounded.
	MaxConcurrentDeliveries int
}

// Bus composes the routing subsystem's components and dispatches envelopes
// by message kind.
type Bus struct {
	cfg        Config
	router     *router.Router
	correlator *correlator.Correlator
	pubsub     *pubsub.PubSub
	health     *health.Monitor
	deliverer  Deliverer
	tracing    tracing.Provider

	// deliverySem gates concurrent Deliver calls when cfg.MaxConcurrentDeliveries
	// is set; nil means no cap.
	deliverySem chan struct{}

	shuttingDown atomic.Bool
}

// New builds a Bus. deliverer performs the actual transport send once
// routing has picked a target endpoint. provider may be nil, in which case
// tracing/metrics fall back to the otel API's no-op implementations.
func New(cfg Config, deliverer Deliverer, provider *tracing.Provider) (*Bus, error) {
	r, err := router.New(cfg.RouteCacheSize)
	if err != nil {
		return nil, fmt.Errorf("building router: %w", err)
	}
	p := tracing.NewNoop()
	if provider != nil {
		p = *provider
	}
	var sem chan struct{}
	if cfg.MaxConcurrentDeliveries > 0 {
		sem = make(chan struct{}, cfg.MaxConcurrentDeliveries)
	}
	return &Bus{
		cfg:         cfg,
		router:      r,
		correlator:  correlator.New(cfg.CorrelationTTL, cfg.ReapInterval),
		pubsub:      pubsub.New(cfg.PubSubBuffer),
		health:      health.New(cfg.Health, p.Meter),
		deliverer:   deliverer,
		tracing:     p,
		deliverySem: sem,
	}, nil
}

// deliver funnels every Deliverer.Deliver call through the concurrency gate
// configured by Config.MaxConcurrentDeliveries, blocking until a slot frees
// up or ctx is cancelled.
func (b *Bus) deliver(ctx context.Context, endpoint string, env *envelope.Envelope) error {
	if b.deliverySem == nil {
		return b.deliverer.Deliver(ctx, endpoint, env)
	}
	select {
	case b.deliverySem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-b.deliverySem }()
	return b.deliverer.Deliver(ctx, endpoint, env)
}

// RegisterRoute installs a routing table entry and registers endpoint with
// the health monitor, per spec §4.9.
func (b *Bus) RegisterRoute(pattern, endpoint string, priority int) error {
	if err := b.router.Register(pattern, endpoint, priority); err != nil {
		return err
	}
	return b.health.Register(endpoint, nil)
}

// Subscribe exposes the pub/sub subsystem for event-kind envelopes.
func (b *Bus) Subscribe(topic string) (*pubsub.Receiver, error) {
	return b.pubsub.Subscribe(topic)
}

// Unsubscribe removes a pattern subscription by id.
func (b *Bus) Unsubscribe(subscriberID string) error {
	return b.pubsub.Unsubscribe(subscriberID)
}

// HealthSnapshot returns the health record for endpoint, if registered.
func (b *Bus) HealthSnapshot(endpoint string) (health.Snapshot, bool) {
	return b.health.Get(endpoint)
}

// StartHealthChecks launches the background health checker.
func (b *Bus) StartHealthChecks(ctx context.Context) {
	b.health.Start(ctx)
}

// routingKey derives the routing token for env: an explicit RouteKey header
// field if set, otherwise the lowercased kind name (spec's Open Question
// resolution, documented in the design ledger).
func routingKey(env *envelope.Envelope) string {
	if env.Header.RouteKey != "" {
		return env.Header.RouteKey
	}
	return strings.ToLower(env.Header.Kind.String())
}

// Route is the bus's primary dispatch entry point, implementing the 9-step
// algorithm of spec §4.9.
func (b *Bus) Route(ctx context.Context, env *envelope.Envelope) error {
	if b.shuttingDown.Load() {
		return errs.ErrBusShuttingDown
	}

	ctx, span := b.tracing.StartSpan(ctx, "bus.route",
		attribute.String("kind", env.Header.Kind.String()))
	var err error
	defer func() { tracing.RecordOutcome(span, err) }()

	if b.cfg.MaxPayloadSize > 0 && len(env.Payload.Bytes) > b.cfg.MaxPayloadSize {
		err = &errs.MessageTooLarge{Size: len(env.Payload.Bytes), Max: b.cfg.MaxPayloadSize}
		return err
	}

	if envelope.Expired(env, time.Now()) {
		err = errs.ErrExpired
		return err
	}

	switch env.Header.Kind {
	case envelope.KindRequest:
		err = b.routeRequest(ctx, env)
	case envelope.KindResponse:
		err = b.routeResponse(ctx, env)
	case envelope.KindNotification:
		err = b.routeNotification(ctx, env)
	case envelope.KindEvent:
		err = b.routeEvent(ctx, env)
	case envelope.KindHeartbeat:
		err = b.routeHeartbeat(ctx, env)
	case envelope.KindError:
		// A correlated error is a collaborator's failure reply to a request.
		if env.Header.CorrelationID != "" {
			err = b.routeResponse(ctx, env)
		} else {
			err = b.routeNotification(ctx, env)
		}
	default:
		err = b.routeNotification(ctx, env)
	}
	return err
}

func (b *Bus) routeRequest(ctx context.Context, env *envelope.Envelope) error {
	key := routingKey(env)
	route, ok := b.router.FindRoute(key)
	if !ok {
		return errs.ErrNoRoute
	}
	if env.Header.Source != "" {
		if err := b.correlator.RegisterRequest(env.Header.ID, env.Header.Source); err != nil {
			return err
		}
	}
	return b.deliver(ctx, route.Endpoint, env)
}

func (b *Bus) routeResponse(ctx context.Context, env *envelope.Envelope) error {
	if env.Header.CorrelationID == "" {
		return errs.ErrNoCorrelation
	}
	replyTo, err := b.correlator.Resolve(env.Header.CorrelationID)
	if err != nil {
		if err == errs.ErrCorrelationNotFound {
			return errs.ErrNoCorrelation
		}
		return err
	}
	return b.deliver(ctx, replyTo, env)
}

func (b *Bus) routeNotification(ctx context.Context, env *envelope.Envelope) error {
	key := routingKey(env)
	routes := b.router.FindAllRoutes(key)
	if len(routes) == 0 {
		return errs.ErrNoRoute
	}
	for _, route := range routes {
		if err := b.deliver(ctx, route.Endpoint, env); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) routeEvent(ctx context.Context, env *envelope.Envelope) error {
	topic := routingKey(env)
	b.pubsub.Publish(topic, env)
	return nil
}

func (b *Bus) routeHeartbeat(ctx context.Context, env *envelope.Envelope) error {
	if env.Header.Source == "" {
		return nil
	}
	_, _ = b.health.PerformCheck(ctx, env.Header.Source, func(context.Context) error { return nil })
	return nil
}

// Shutdown sets the shutdown flag, stops the health checker, and stops the
// correlator's background reaper. Idempotent.
func (b *Bus) Shutdown() {
	if !b.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	b.health.Stop()
	b.correlator.Stop()
}
