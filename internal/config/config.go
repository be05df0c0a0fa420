// Package config loads the bus's declarative YAML manifest: bus-wide
// options, a static route table, and a set of topics to pre-warm at
// startup. It mirrors cellorg/internal/config/config.go's default-filling
// and file-load shape, retargeted from broker/cell topology to bus options
// and routing topology.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tenzoki/ipcbus/internal/bus"
	"github.com/tenzoki/ipcbus/internal/health"
	"github.com/tenzoki/ipcbus/internal/pubsub"
	"github.com/tenzoki/ipcbus/internal/transport"
)

// ReconnectOptions configures the backoff-with-jitter reconnect strategy
// (spec §4.4) for transports constructed from this manifest.
type ReconnectOptions struct {
	InitialDelayMillis int     `yaml:"initial_delay_ms"`
	MaxDelayMillis     int     `yaml:"max_delay_ms"`
	Multiplier         float64 `yaml:"multiplier"`
	MaxAttempts        int     `yaml:"max_attempts"`
	JitterFactor       float64 `yaml:"jitter_factor"`
}

// ToBackoffConfig translates the YAML-facing options into the transport
// package's BackoffConfig.
func (r ReconnectOptions) ToBackoffConfig() transport.BackoffConfig {
	return transport.BackoffConfig{
		InitialDelay: time.Duration(r.InitialDelayMillis) * time.Millisecond,
		MaxDelay:     time.Duration(r.MaxDelayMillis) * time.Millisecond,
		Multiplier:   r.Multiplier,
		MaxAttempts:  r.MaxAttempts,
		JitterFactor: r.JitterFactor,
	}
}

// Options holds the bus-wide configuration option table (spec §6).
type Options struct {
	MaxMessageSize               int              `yaml:"max_message_size"`
	CorrelationTTLSeconds        int              `yaml:"correlation_ttl_seconds"`
	CorrelationReapSeconds       int              `yaml:"correlation_reap_seconds"`
	HealthCheckIntervalSeconds   int              `yaml:"health_check_interval_seconds"`
	HealthCheckTimeoutSeconds    int              `yaml:"health_check_timeout_seconds"`
	FailureThreshold             int              `yaml:"failure_threshold"`
	CircuitBreakerTimeoutSeconds int              `yaml:"circuit_breaker_timeout_seconds"`
	MaxConcurrentDeliveries      int              `yaml:"max_concurrent_deliveries"`
	PubSubCapacity               int              `yaml:"pubsub_capacity"`
	RouteCacheCapacity           int64            `yaml:"route_cache_capacity"`
	Reconnect                    ReconnectOptions `yaml:"reconnect"`
}

// RouteSpec declares one static routing table entry applied at startup.
type RouteSpec struct {
	Pattern  string `yaml:"pattern"`
	Endpoint string `yaml:"endpoint"`
	Priority int    `yaml:"priority"`
}

// TopicSpec declares a topic to subscribe at startup so the first publisher
// never races an absent subscriber.
type TopicSpec struct {
	Name string `yaml:"name"`
}

// Manifest is the top-level YAML document loaded by Load.
type Manifest struct {
	Options Options     `yaml:"options"`
	Routes  []RouteSpec `yaml:"routes"`
	Topics  []TopicSpec `yaml:"topics"`
}

// Load reads and parses a manifest file, filling documented defaults and
// validating timeouts/capacities are non-negative.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest file: %w", err)
	}
	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Default returns a Manifest with every Options field filled to its
// documented default and no routes or topics — the fallback used when no
// manifest file is available.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	o := &m.Options
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = 4 * 1024 * 1024
	}
	if o.CorrelationTTLSeconds == 0 {
		o.CorrelationTTLSeconds = 30
	}
	if o.CorrelationReapSeconds == 0 {
		o.CorrelationReapSeconds = 5
	}
	if o.HealthCheckIntervalSeconds == 0 {
		o.HealthCheckIntervalSeconds = 10
	}
	if o.HealthCheckTimeoutSeconds == 0 {
		o.HealthCheckTimeoutSeconds = 5
	}
	if o.FailureThreshold == 0 {
		o.FailureThreshold = 3
	}
	if o.CircuitBreakerTimeoutSeconds == 0 {
		o.CircuitBreakerTimeoutSeconds = 30
	}
	if o.PubSubCapacity == 0 {
		o.PubSubCapacity = 64
	}
	if o.RouteCacheCapacity == 0 {
		o.RouteCacheCapacity = 1024
	}
	if o.Reconnect.InitialDelayMillis == 0 {
		o.Reconnect.InitialDelayMillis = 100
	}
	if o.Reconnect.MaxDelayMillis == 0 {
		o.Reconnect.MaxDelayMillis = 30000
	}
	if o.Reconnect.Multiplier == 0 {
		o.Reconnect.Multiplier = 2.0
	}
	if o.Reconnect.MaxAttempts == 0 {
		o.Reconnect.MaxAttempts = 10
	}
}

func (m *Manifest) validate() error {
	o := m.Options
	if o.MaxMessageSize < 0 {
		return fmt.Errorf("options.max_message_size cannot be negative: %d", o.MaxMessageSize)
	}
	if o.CorrelationTTLSeconds < 0 {
		return fmt.Errorf("options.correlation_ttl_seconds cannot be negative: %d", o.CorrelationTTLSeconds)
	}
	if o.CorrelationReapSeconds < 0 {
		return fmt.Errorf("options.correlation_reap_seconds cannot be negative: %d", o.CorrelationReapSeconds)
	}
	if o.HealthCheckIntervalSeconds < 0 {
		return fmt.Errorf("options.health_check_interval_seconds cannot be negative: %d", o.HealthCheckIntervalSeconds)
	}
	if o.HealthCheckTimeoutSeconds < 0 {
		return fmt.Errorf("options.health_check_timeout_seconds cannot be negative: %d", o.HealthCheckTimeoutSeconds)
	}
	if o.CircuitBreakerTimeoutSeconds < 0 {
		return fmt.Errorf("options.circuit_breaker_timeout_seconds cannot be negative: %d", o.CircuitBreakerTimeoutSeconds)
	}
	if o.PubSubCapacity < 0 {
		return fmt.Errorf("options.pubsub_capacity cannot be negative: %d", o.PubSubCapacity)
	}
	if o.RouteCacheCapacity < 0 {
		return fmt.Errorf("options.route_cache_capacity cannot be negative: %d", o.RouteCacheCapacity)
	}
	for i, r := range m.Routes {
		if r.Pattern == "" || r.Endpoint == "" {
			return fmt.Errorf("routes[%d]: pattern and endpoint are both required", i)
		}
	}
	for i, t := range m.Topics {
		if t.Name == "" {
			return fmt.Errorf("topics[%d]: name is required", i)
		}
	}
	return nil
}

// BusConfig translates the manifest's Options into a bus.Config.
func (m *Manifest) BusConfig() bus.Config {
	o := m.Options
	return bus.Config{
		MaxPayloadSize:          o.MaxMessageSize,
		CorrelationTTL:          time.Duration(o.CorrelationTTLSeconds) * time.Second,
		ReapInterval:            time.Duration(o.CorrelationReapSeconds) * time.Second,
		PubSubBuffer:            o.PubSubCapacity,
		RouteCacheSize:          o.RouteCacheCapacity,
		MaxConcurrentDeliveries: o.MaxConcurrentDeliveries,
		Health: health.Config{
			CheckInterval:         time.Duration(o.HealthCheckIntervalSeconds) * time.Second,
			CheckTimeout:          time.Duration(o.HealthCheckTimeoutSeconds) * time.Second,
			FailureThreshold:      o.FailureThreshold,
			CircuitBreakerTimeout: time.Duration(o.CircuitBreakerTimeoutSeconds) * time.Second,
		},
	}
}

// ApplyTo registers every declared route and subscribes every declared
// topic against b, returning the topic receivers keyed by name so the
// caller can decide how to consume or relay them.
func (m *Manifest) ApplyTo(b *bus.Bus) (map[string]*pubsub.Receiver, error) {
	for _, r := range m.Routes {
		if err := b.RegisterRoute(r.Pattern, r.Endpoint, r.Priority); err != nil {
			return nil, fmt.Errorf("registering route %q -> %q: %w", r.Pattern, r.Endpoint, err)
		}
	}
	receivers := make(map[string]*pubsub.Receiver, len(m.Topics))
	for _, t := range m.Topics {
		rc, err := b.Subscribe(t.Name)
		if err != nil {
			return nil, fmt.Errorf("subscribing topic %q: %w", t.Name, err)
		}
		receivers[t.Name] = rc
	}
	return receivers, nil
}
