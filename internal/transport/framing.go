package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds the length prefix ReadFrame accepts, guarding against
// a corrupt or hostile length prefix causing an unbounded allocation.
// WriteFrame does not check it.
const MaxFrameSize = 64 * 1024 * 1024

// WriteFrame writes data to w prefixed with its 4-byte big-endian length.
// Shared by the local-socket and platform-pipe variants, whose payloads are
// already codec-encoded bytes rather than self-delimiting text.
func WriteFrame(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("frame size %d exceeds max %d", n, MaxFrameSize)
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
