// Package codec implements the three interchangeable envelope codecs named
// in spec §4.2: binary-compact (MessagePack, cross-language), binary-dense
// (a bespoke fixed layout, same-language only), and text-debug (JSON). Each
// must round-trip any valid envelope exactly; metadata key order need not be
// preserved (spec §8 invariant 4).
package codec

import "github.com/tenzoki/ipcbus/internal/envelope"

// Name identifies a codec for transport negotiation.
type Name string

const (
	BinaryCompact Name = "binary-compact"
	BinaryDense   Name = "binary-dense"
	TextDebug     Name = "text-debug"
)

// Codec encodes and decodes envelopes to and from bytes.
type Codec interface {
	Encode(env *envelope.Envelope) ([]byte, error)
	Decode(data []byte) (*envelope.Envelope, error)
	// ContentType is the label associated with this codec for transport
	// negotiation (spec §4.2).
	ContentType() string
}

// Registry resolves a codec by name.
type Registry struct {
	codecs map[Name]Codec
}

// NewRegistry builds a registry pre-populated with the three standard
// codecs.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[Name]Codec, 3)}
	r.Register(BinaryCompact, NewCompactCodec(DefaultCompressionThreshold))
	r.Register(BinaryDense, NewDenseCodec())
	r.Register(TextDebug, NewDebugCodec())
	return r
}

// Register installs or replaces the codec bound to name.
func (r *Registry) Register(name Name, c Codec) {
	r.codecs[name] = c
}

// Get returns the codec bound to name, if any.
func (r *Registry) Get(name Name) (Codec, bool) {
	c, ok := r.codecs[name]
	return c, ok
}

// wireEnvelope is the common field set shared by every codec's on-the-wire
// representation (spec §6): a flat header record followed by metadata and
// opaque payload bytes.
type wireEnvelope struct {
	ID             string                 `json:"id" msgpack:"id"`
	CorrelationID  string                 `json:"correlation_id,omitempty" msgpack:"correlation_id,omitempty"`
	Kind           int                    `json:"kind" msgpack:"kind"`
	Source         string                 `json:"source" msgpack:"source"`
	Target         string                 `json:"target" msgpack:"target"`
	TimestampNanos int64                  `json:"timestamp_ns" msgpack:"timestamp_ns"`
	TTLNanos       int64                  `json:"ttl_ns,omitempty" msgpack:"ttl_ns,omitempty"`
	Priority       int32                  `json:"priority" msgpack:"priority"`
	VersionMajor   uint16                 `json:"version_major" msgpack:"version_major"`
	VersionMinor   uint16                 `json:"version_minor" msgpack:"version_minor"`
	RouteKey       string                 `json:"route_key,omitempty" msgpack:"route_key,omitempty"`
	PayloadTypeTag string                 `json:"payload_type_tag,omitempty" msgpack:"payload_type_tag,omitempty"`
	PayloadBytes   []byte                 `json:"payload_bytes,omitempty" msgpack:"payload_bytes,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

func toWire(env *envelope.Envelope) wireEnvelope {
	var ttl int64
	if env.Header.TTL > 0 {
		ttl = int64(env.Header.TTL)
	}
	return wireEnvelope{
		ID:             env.Header.ID,
		CorrelationID:  env.Header.CorrelationID,
		Kind:           int(env.Header.Kind),
		Source:         env.Header.Source,
		Target:         env.Header.Target,
		TimestampNanos: env.Header.Timestamp.UnixNano(),
		TTLNanos:       ttl,
		Priority:       int32(env.Header.Priority),
		VersionMajor:   env.Header.Version.Major,
		VersionMinor:   env.Header.Version.Minor,
		RouteKey:       env.Header.RouteKey,
		PayloadTypeTag: env.Payload.TypeTag,
		PayloadBytes:   env.Payload.Bytes,
		Metadata:       env.Metadata,
	}
}

func fromWire(w wireEnvelope) *envelope.Envelope {
	metadata := w.Metadata
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	var ttl int64
	if w.TTLNanos > 0 {
		ttl = w.TTLNanos
	}
	return &envelope.Envelope{
		Header: envelope.Header{
			ID:            w.ID,
			CorrelationID: w.CorrelationID,
			Kind:          envelope.Kind(w.Kind),
			Source:        w.Source,
			Target:        w.Target,
			Timestamp:     unixNanoToTime(w.TimestampNanos),
			TTL:           durationOf(ttl),
			Priority:      envelope.Priority(w.Priority),
			Version:       envelope.Version{Major: w.VersionMajor, Minor: w.VersionMinor},
			RouteKey:      w.RouteKey,
		},
		Payload: envelope.Payload{
			TypeTag: w.PayloadTypeTag,
			Bytes:   w.PayloadBytes,
		},
		Metadata: metadata,
	}
}
