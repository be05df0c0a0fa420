package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tenzoki/ipcbus/internal/envelope"
	"github.com/tenzoki/ipcbus/internal/errs"
)

// noCorrelationSentinel marks "no correlation id" in the fixed 16-byte
// correlation slot (spec §6: "16-byte optional correlation id (or
// sentinel)"). A freshly generated UUID correlation id colliding with this
// all-0xFF value is vanishingly unlikely.
var noCorrelationSentinel = [16]byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

// DenseCodec is the binary-dense codec, same-language only: the fixed-layout
// header of spec §6 (16-byte ids, length-prefixed strings, fixed-width
// header fields) followed by a length-prefixed route key, the metadata (each
// value MessagePack-encoded), a length-prefixed payload type tag, and the
// length-prefixed payload bytes. A trailing 8-byte xxhash64 checksum
// over the whole frame gives fast integrity verification on decode — an
// enrichment beyond the base layout, since the spec only fixes the field
// order, not an integrity mechanism.
type DenseCodec struct{}

func NewDenseCodec() *DenseCodec { return &DenseCodec{} }

func (c *DenseCodec) ContentType() string { return "application/vnd.ipcbus+dense" }

func (c *DenseCodec) Encode(env *envelope.Envelope) ([]byte, error) {
	idBytes, err := uuid.Parse(env.Header.ID)
	if err != nil {
		return nil, &errs.EncodeError{Format: string(BinaryDense), Cause: fmt.Errorf("id is not a uuid: %w", err)}
	}

	var corr [16]byte = noCorrelationSentinel
	if env.Header.CorrelationID != "" {
		parsed, err := uuid.Parse(env.Header.CorrelationID)
		if err != nil {
			return nil, &errs.EncodeError{Format: string(BinaryDense), Cause: fmt.Errorf("correlation id is not a uuid: %w", err)}
		}
		corr = [16]byte(parsed)
	}

	buf := new(bytes.Buffer)
	buf.Write(idBytes[:])
	buf.Write(corr[:])
	buf.WriteByte(byte(env.Header.Kind))
	writeLPString(buf, env.Header.Source)
	writeLPString(buf, env.Header.Target)
	binary.Write(buf, binary.BigEndian, env.Header.Timestamp.UnixNano())
	binary.Write(buf, binary.BigEndian, int64(env.Header.TTL))
	binary.Write(buf, binary.BigEndian, int32(env.Header.Priority))
	binary.Write(buf, binary.BigEndian, uint32(env.Header.Version.Major)<<16|uint32(env.Header.Version.Minor))
	writeLPString(buf, env.Header.RouteKey)

	binary.Write(buf, binary.BigEndian, uint32(len(env.Metadata)))
	for k, v := range env.Metadata {
		valBytes, err := msgpack.Marshal(v)
		if err != nil {
			return nil, &errs.EncodeError{Format: string(BinaryDense), Cause: err}
		}
		writeLPString(buf, k)
		writeLPBytes(buf, valBytes)
	}

	writeLPString(buf, env.Payload.TypeTag)
	writeLPBytes(buf, env.Payload.Bytes)

	sum := xxhash.Sum64(buf.Bytes())
	binary.Write(buf, binary.BigEndian, sum)

	return buf.Bytes(), nil
}

func (c *DenseCodec) Decode(data []byte) (*envelope.Envelope, error) {
	if len(data) < 8 {
		return nil, &errs.DecodeError{Format: string(BinaryDense), Cause: errs.ErrBufferTooSmall}
	}
	body, sumBytes := data[:len(data)-8], data[len(data)-8:]
	wantSum := binary.BigEndian.Uint64(sumBytes)
	if gotSum := xxhash.Sum64(body); gotSum != wantSum {
		return nil, &errs.DecodeError{Format: string(BinaryDense), Cause: fmt.Errorf("checksum mismatch: got %x want %x", gotSum, wantSum)}
	}

	r := bytes.NewReader(body)

	var idBytes [16]byte
	if _, err := io.ReadFull(r, idBytes[:]); err != nil {
		return nil, denseReadErr(err)
	}
	var corrBytes [16]byte
	if _, err := io.ReadFull(r, corrBytes[:]); err != nil {
		return nil, denseReadErr(err)
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, denseReadErr(err)
	}
	source, err := readLPString(r)
	if err != nil {
		return nil, denseReadErr(err)
	}
	target, err := readLPString(r)
	if err != nil {
		return nil, denseReadErr(err)
	}
	var tsNanos, ttlNanos int64
	if err := binary.Read(r, binary.BigEndian, &tsNanos); err != nil {
		return nil, denseReadErr(err)
	}
	if err := binary.Read(r, binary.BigEndian, &ttlNanos); err != nil {
		return nil, denseReadErr(err)
	}
	var priority int32
	if err := binary.Read(r, binary.BigEndian, &priority); err != nil {
		return nil, denseReadErr(err)
	}
	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, denseReadErr(err)
	}
	routeKey, err := readLPString(r)
	if err != nil {
		return nil, denseReadErr(err)
	}

	var metaCount uint32
	if err := binary.Read(r, binary.BigEndian, &metaCount); err != nil {
		return nil, denseReadErr(err)
	}
	metadata := make(map[string]interface{}, metaCount)
	for i := uint32(0); i < metaCount; i++ {
		key, err := readLPString(r)
		if err != nil {
			return nil, denseReadErr(err)
		}
		valBytes, err := readLPBytes(r)
		if err != nil {
			return nil, denseReadErr(err)
		}
		var val interface{}
		if err := msgpack.Unmarshal(valBytes, &val); err != nil {
			return nil, &errs.DecodeError{Format: string(BinaryDense), Cause: err}
		}
		metadata[key] = val
	}

	payloadTag, err := readLPString(r)
	if err != nil {
		return nil, denseReadErr(err)
	}
	payloadBytes, err := readLPBytes(r)
	if err != nil {
		return nil, denseReadErr(err)
	}

	id := uuid.UUID(idBytes).String()
	correlationID := ""
	if corrBytes != noCorrelationSentinel {
		correlationID = uuid.UUID(corrBytes).String()
	}

	return &envelope.Envelope{
		Header: envelope.Header{
			ID:            id,
			CorrelationID: correlationID,
			Kind:          envelope.Kind(kindByte),
			Source:        source,
			Target:        target,
			Timestamp:     unixNanoToTime(tsNanos),
			TTL:           durationOf(ttlNanos),
			Priority:      envelope.Priority(priority),
			Version:       envelope.Version{Major: uint16(version >> 16), Minor: uint16(version & 0xFFFF)},
			RouteKey:      routeKey,
		},
		Payload: envelope.Payload{
			TypeTag: payloadTag,
			Bytes:   payloadBytes,
		},
		Metadata: metadata,
	}, nil
}

func denseReadErr(err error) error {
	return &errs.DecodeError{Format: string(BinaryDense), Cause: err}
}

func writeLPString(buf *bytes.Buffer, s string) {
	writeLPBytes(buf, []byte(s))
}

func writeLPBytes(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(b)))
	buf.Write(b)
}

func readLPString(r *bytes.Reader) (string, error) {
	b, err := readLPBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readLPBytes(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}
