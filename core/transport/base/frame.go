package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	// frameHeaderSize is 8 bytes correlation ID + 4 bytes payload length
	frameHeaderSize = 12

	// maxFrameSize bounds a single payload. Anything larger is treated as
	// a corrupt stream rather than an allocation request.
	maxFrameSize = 64 << 20
)

// writeFrame writes a frame to the connection with the format:
// - 8 bytes: correlation ID (uint64, big endian)
// - 4 bytes: payload length (uint32, big endian)
// - N bytes: payload
func writeFrame(conn net.Conn, corrID uint64, data []byte) error {
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint64(header[:8], corrID)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a single frame from the connection. The header buffer is
// reused between calls; the payload is always freshly allocated because it
// is handed to the waiting request and may be retained indefinitely.
func readFrame(conn net.Conn, header []byte) (uint64, []byte, error) {
	if len(header) < frameHeaderSize {
		header = make([]byte, frameHeaderSize)
	}

	// Read header
	if _, err := io.ReadFull(conn, header[:frameHeaderSize]); err != nil {
		return 0, nil, err
	}

	// Parse header
	corrID := binary.BigEndian.Uint64(header[:8])
	contentLength := binary.BigEndian.Uint32(header[8:12])

	if contentLength > maxFrameSize {
		return corrID, nil, fmt.Errorf("frame of %d bytes exceeds limit of %d", contentLength, maxFrameSize)
	}

	// If no data, return empty slice
	if contentLength == 0 {
		return corrID, []byte{}, nil
	}

	// Read payload
	data := make([]byte, contentLength)
	if _, err := io.ReadFull(conn, data); err != nil {
		return corrID, nil, err
	}

	return corrID, data, nil
}
