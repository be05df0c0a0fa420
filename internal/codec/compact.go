package codec

import (
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tenzoki/ipcbus/internal/envelope"
	"github.com/tenzoki/ipcbus/internal/errs"
)

// DefaultCompressionThreshold is the payload size, in bytes, above which
// CompactCodec transparently zstd-compresses the encoded frame.
const DefaultCompressionThreshold = 8 * 1024

const (
	flagRaw  byte = 0
	flagZstd byte = 1
)

// CompactCodec is the binary-compact codec: self-describing MessagePack,
// suitable for cross-language peers (spec §4.2). Frames whose payload
// exceeds the configured threshold are zstd-compressed; a one-byte flag at
// the start of the frame tells Decode which path to take, so round-tripping
// never depends on the caller knowing which one was used.
type CompactCodec struct {
	threshold int
	enc       *zstd.Encoder
	dec       *zstd.Decoder
}

// NewCompactCodec builds a CompactCodec that compresses payloads larger
// than threshold bytes. A non-positive threshold disables compression.
func NewCompactCodec(threshold int) *CompactCodec {
	enc, _ := zstd.NewWriter(nil)
	dec, _ := zstd.NewReader(nil)
	return &CompactCodec{threshold: threshold, enc: enc, dec: dec}
}

func (c *CompactCodec) ContentType() string { return "application/vnd.ipcbus+msgpack" }

func (c *CompactCodec) Encode(env *envelope.Envelope) ([]byte, error) {
	raw, err := msgpack.Marshal(toWire(env))
	if err != nil {
		return nil, &errs.EncodeError{Format: string(BinaryCompact), Cause: err}
	}

	if c.threshold > 0 && len(env.Payload.Bytes) > c.threshold && c.enc != nil {
		compressed := c.enc.EncodeAll(raw, make([]byte, 0, len(raw)))
		out := make([]byte, 0, len(compressed)+1)
		out = append(out, flagZstd)
		out = append(out, compressed...)
		return out, nil
	}

	out := make([]byte, 0, len(raw)+1)
	out = append(out, flagRaw)
	out = append(out, raw...)
	return out, nil
}

func (c *CompactCodec) Decode(data []byte) (*envelope.Envelope, error) {
	if len(data) < 1 {
		return nil, &errs.DecodeError{Format: string(BinaryCompact), Cause: errs.ErrBufferTooSmall}
	}
	flag, body := data[0], data[1:]

	raw := body
	if flag == flagZstd {
		if c.dec == nil {
			return nil, &errs.DecodeError{Format: string(BinaryCompact), Cause: errs.ErrUnsupportedOperation}
		}
		decoded, err := c.dec.DecodeAll(body, nil)
		if err != nil {
			return nil, &errs.DecodeError{Format: string(BinaryCompact), Cause: err}
		}
		raw = decoded
	}

	var w wireEnvelope
	if err := msgpack.Unmarshal(raw, &w); err != nil {
		return nil, &errs.DecodeError{Format: string(BinaryCompact), Cause: err}
	}
	return fromWire(w), nil
}
