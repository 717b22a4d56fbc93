// Package mapi implements the minimal wire exchange this harness performs
// once a connection is accepted: MAPI chunk framing and the fixed
// challenge/request/error sequence.
package mapi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxChunkSize is the largest chunk body this reader accepts. The header's
// size field is 15 bits wide (1<<15-1 = 32767); nothing in this harness's
// protocol ever sends more.
const maxChunkSize = 1<<15 - 1

// ErrIncompleteMessage is returned when the stream ends (EOF, including
// mid-chunk) before a chunk with the last flag set has been seen. Other
// read errors are returned wrapped, not as ErrIncompleteMessage.
var ErrIncompleteMessage = errors.New("mapi: incomplete message (no terminal chunk)")

// ReadMessage reads chunks from r until one with the last flag set is
// seen. A 16-bit little-endian header encodes size in the upper 15 bits
// and last in the low bit; the chunk body is exactly size bytes. The
// last flag is authoritative regardless of size — a zero-length last
// chunk correctly terminates a message.
func ReadMessage(r io.Reader) ([]byte, error) {
	var msg []byte
	for {
		var header [2]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrIncompleteMessage
			}
			return nil, fmt.Errorf("mapi: read chunk header: %w", err)
		}
		h := binary.LittleEndian.Uint16(header[:])
		size := h >> 1
		last := h&1 != 0

		if size > 0 {
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					return nil, ErrIncompleteMessage
				}
				return nil, fmt.Errorf("mapi: read chunk body: %w", err)
			}
			msg = append(msg, body...)
		}

		if last {
			return msg, nil
		}
	}
}

// WriteMessage frames payload as a single chunk — header (len(payload)<<1)|1
// followed by the payload bytes — and writes it to w. payload must be at
// most maxChunkSize bytes.
func WriteMessage(w io.Writer, payload []byte) error {
	if len(payload) > maxChunkSize {
		return fmt.Errorf("mapi: payload of %d bytes exceeds max chunk size %d", len(payload), maxChunkSize)
	}

	header := (uint16(len(payload)) << 1) | 1
	buf := make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(buf[:2], header)
	copy(buf[2:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("mapi: write chunk: %w", err)
	}
	return nil
}
