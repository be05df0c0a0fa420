package codec

import (
	"encoding/json"

	"github.com/tenzoki/ipcbus/internal/envelope"
	"github.com/tenzoki/ipcbus/internal/errs"
)

// DebugCodec is the text-debug codec: a human-readable JSON rendering of the
// envelope, for inspection tooling and the stdio transport's line framing
// (spec §4.2, §6). Grounded on the teacher's Envelope.ToJSON/FromJSON
// (cellorg/internal/envelope/envelope.go), generalized to the builder-typed
// header.
type DebugCodec struct{}

func NewDebugCodec() *DebugCodec { return &DebugCodec{} }

func (c *DebugCodec) ContentType() string { return "application/vnd.ipcbus+json" }

func (c *DebugCodec) Encode(env *envelope.Envelope) ([]byte, error) {
	data, err := json.Marshal(toWire(env))
	if err != nil {
		return nil, &errs.EncodeError{Format: string(TextDebug), Cause: err}
	}
	return data, nil
}

func (c *DebugCodec) Decode(data []byte) (*envelope.Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &errs.DecodeError{Format: string(TextDebug), Cause: err}
	}
	return fromWire(w), nil
}
