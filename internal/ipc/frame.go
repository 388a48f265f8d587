// Package ipc implements the length-prefixed request/response protocol
// that fronts the persistence server: a 4-byte big-endian length header
// followed by that many bytes of UTF-8 JSON.
package ipc

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

const maxFrameBytes = 64 << 20 // 64MB guards against a corrupt length header

// writeFrame writes one length-prefixed JSON frame to w.
func writeFrame(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ipc: marshal frame: %w", err)
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("ipc: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("ipc: write frame payload: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame's raw payload bytes from r.
// io.EOF (or io.ErrUnexpectedEOF on a partial header/payload) is returned
// verbatim so callers can treat any incomplete frame at connection close
// as a silent drop, per the transport's failure semantics.
func readFrame(r *bufio.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header)
	if size > maxFrameBytes {
		return nil, fmt.Errorf("ipc: frame size %d exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
