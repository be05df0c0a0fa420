package envelope

import (
	"time"

	"github.com/tenzoki/ipcbus/internal/errs"
)

// Builder fills a Header step by step and is the only supported
// construction path for an Envelope (spec §4.1). Zero value is ready to use.
type Builder struct {
	header   Header
	payload  Payload
	metadata map[string]interface{}

	haveKind   bool
	haveSource bool
	haveTarget bool
}

// NewBuilder starts a builder with defaults filled in: a fresh id, now() as
// the timestamp, normal priority, and the current protocol version.
func NewBuilder() *Builder {
	return &Builder{
		header: Header{
			ID:        NewID(),
			Timestamp: time.Now(),
			Priority:  PriorityNormal,
			Version:   CurrentVersion,
		},
		metadata: make(map[string]interface{}),
	}
}

func (b *Builder) Kind(k Kind) *Builder {
	b.header.Kind = k
	b.haveKind = true
	return b
}

func (b *Builder) Source(id string) *Builder {
	b.header.Source = id
	b.haveSource = id != ""
	return b
}

func (b *Builder) Target(id string) *Builder {
	b.header.Target = id
	b.haveTarget = id != ""
	return b
}

func (b *Builder) ID(id string) *Builder {
	b.header.ID = id
	return b
}

func (b *Builder) CorrelationID(id string) *Builder {
	b.header.CorrelationID = id
	return b
}

func (b *Builder) Timestamp(t time.Time) *Builder {
	b.header.Timestamp = t
	return b
}

func (b *Builder) TTL(d time.Duration) *Builder {
	b.header.TTL = d
	return b
}

func (b *Builder) Priority(p Priority) *Builder {
	b.header.Priority = p
	return b
}

func (b *Builder) Version(v Version) *Builder {
	b.header.Version = v
	return b
}

func (b *Builder) RouteKey(key string) *Builder {
	b.header.RouteKey = key
	return b
}

func (b *Builder) Payload(typeTag string, data []byte) *Builder {
	b.payload = Payload{TypeTag: typeTag, Bytes: data}
	return b
}

func (b *Builder) Meta(key string, value interface{}) *Builder {
	if b.metadata == nil {
		b.metadata = make(map[string]interface{})
	}
	b.metadata[key] = value
	return b
}

// Build validates required fields and returns the finished Envelope.
// InvalidEnvelope is returned if kind, source, or target are missing.
func (b *Builder) Build() (*Envelope, error) {
	if !b.haveKind {
		return nil, &invalidEnvelopeError{field: "kind"}
	}
	if !b.haveSource {
		return nil, &invalidEnvelopeError{field: "source"}
	}
	if !b.haveTarget {
		return nil, &invalidEnvelopeError{field: "target"}
	}
	if b.header.ID == "" {
		b.header.ID = NewID()
	}
	if b.header.Timestamp.IsZero() {
		b.header.Timestamp = time.Now()
	}
	metadata := make(map[string]interface{}, len(b.metadata))
	for k, v := range b.metadata {
		metadata[k] = v
	}
	return &Envelope{
		Header:   b.header,
		Payload:  b.payload,
		Metadata: metadata,
	}, nil
}

type invalidEnvelopeError struct{ field string }

func (e *invalidEnvelopeError) Error() string {
	return errs.ErrInvalidEnvelope.Error() + ": missing required field " + e.field
}
func (e *invalidEnvelopeError) Unwrap() error { return errs.ErrInvalidEnvelope }
