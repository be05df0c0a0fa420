// Package envelope provides the immutable message value routed by the bus.
//
// An Envelope carries a Header (routing and quality-of-service metadata), an
// opaque Payload, and caller-populated Metadata. Envelopes are constructed
// exclusively through Builder; once built they are not mutated in place —
// operations that "change" an envelope (WithCorrelation, WithTTL,
// WithPriority, MapPayload) return a new value sharing the parts that did
// not change.
//
// Called by: the bus facade, transports, codecs, every adapter.
// Calls: github.com/google/uuid for id generation.
package envelope

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies an envelope for dispatch purposes (spec §3, §4.9).
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
	KindNotification
	KindEvent
	KindError
	KindHeartbeat
)

// String returns the lowercase token used for routing-key derivation
// (spec §9 open question: "routing key derivation ... kind name lowercased").
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	case KindEvent:
		return "event"
	case KindError:
		return "error"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Priority is a signed integer QoS hint; larger is more urgent. Five named
// bands are provided, but any int32 value is valid (custom priorities).
type Priority int32

const (
	PriorityLow      Priority = -20
	PriorityNormal   Priority = 0
	PriorityHigh     Priority = 20
	PriorityUrgent   Priority = 40
	PriorityCritical Priority = 60
)

// Version is the envelope protocol version (major.minor).
type Version struct {
	Major uint16
	Minor uint16
}

// CurrentVersion is the protocol version stamped on envelopes built without
// an explicit version.
var CurrentVersion = Version{Major: 1, Minor: 0}

// Header carries routing and quality-of-service metadata (spec §3).
type Header struct {
	ID            string
	CorrelationID string
	Kind          Kind
	Source        string
	Target        string
	Timestamp     time.Time
	TTL           time.Duration // zero means no expiry
	Priority      Priority
	Version       Version

	// RouteKey, when set by the sender, overrides the kind-derived routing
	// key (spec §9 open question). Left empty, routing falls back to the
	// deterministic lowercased-kind rule.
	RouteKey string
}

// Payload is opaque to the bus: a declared type tag plus raw bytes. The bus
// never interprets Bytes; codecs and adapters do.
type Payload struct {
	TypeTag string
	Bytes   []byte
}

// Envelope is the immutable message value routed by the bus.
type Envelope struct {
	Header   Header
	Payload  Payload
	Metadata map[string]interface{}
}

// NewID returns a fresh, effectively-unique envelope id.
func NewID() string {
	return uuid.New().String()
}

// Expired reports whether env has exceeded its TTL as of now (spec §3, §8
// invariants 1–2): an envelope with no TTL never expires; otherwise it is
// expired once (now - timestamp) > ttl.
func Expired(env *Envelope, now time.Time) bool {
	if env.Header.TTL <= 0 {
		return false
	}
	return now.Sub(env.Header.Timestamp) > env.Header.TTL
}

// Age returns the non-negative duration since env was created.
func Age(env *Envelope, now time.Time) time.Duration {
	d := now.Sub(env.Header.Timestamp)
	if d < 0 {
		return 0
	}
	return d
}

// Clone returns a deep copy of env, in the style of the teacher's
// Envelope.Clone (cellorg/internal/envelope/envelope.go): maps and byte
// slices are copied rather than shared.
func (e *Envelope) Clone() *Envelope {
	clone := *e
	if e.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	if e.Payload.Bytes != nil {
		clone.Payload.Bytes = append([]byte(nil), e.Payload.Bytes...)
	}
	return &clone
}

// WithCorrelation derives a new envelope with CorrelationID set.
func WithCorrelation(env *Envelope, id string) *Envelope {
	out := env.Clone()
	out.Header.CorrelationID = id
	return out
}

// WithTTL derives a new envelope with the header TTL set.
func WithTTL(env *Envelope, d time.Duration) *Envelope {
	out := env.Clone()
	out.Header.TTL = d
	return out
}

// WithPriority derives a new envelope with the header Priority set.
func WithPriority(env *Envelope, p Priority) *Envelope {
	out := env.Clone()
	out.Header.Priority = p
	return out
}

// MapPayload produces a new envelope with the same header and metadata and a
// transformed payload, without mutating env.
func MapPayload(env *Envelope, typeTag string, transform func(old Payload) []byte) *Envelope {
	out := env.Clone()
	out.Payload = Payload{TypeTag: typeTag, Bytes: transform(env.Payload)}
	return out
}

// RoutingKey derives the router/pubsub key for env: the explicit RouteKey
// header if set, otherwise the lowercased message-kind token.
func RoutingKey(env *Envelope) string {
	if env.Header.RouteKey != "" {
		return env.Header.RouteKey
	}
	return env.Header.Kind.String()
}

// Size returns the payload's length in bytes; header fields and metadata
// are not counted.
func (e *Envelope) Size() int {
	return len(e.Payload.Bytes)
}
