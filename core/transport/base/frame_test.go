package base

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		corrID  uint64
		payload []byte
	}{
		{"simple", 1, []byte("hello")},
		{"empty payload", 42, []byte{}},
		{"large corrID", ^uint64(0), []byte("x")},
		{"binary payload", 7, []byte{0x00, 0xff, 0x00, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			writeErr := make(chan error, 1)
			go func() {
				writeErr <- writeFrame(client, tt.corrID, tt.payload)
			}()

			header := make([]byte, frameHeaderSize)
			corrID, payload, err := readFrame(server, header)
			if err != nil {
				t.Fatalf("readFrame failed: %v", err)
			}
			// Close the pipe before draining the write result: a
			// zero-length trailing buffer blocks on net.Pipe until close,
			// so tolerate the closed-pipe error our own teardown causes.
			client.Close()
			if err := <-writeErr; err != nil && !errors.Is(err, io.ErrClosedPipe) {
				t.Errorf("writeFrame failed: %v", err)
			}
			if corrID != tt.corrID {
				t.Errorf("expected correlation ID %d, got %d", tt.corrID, corrID)
			}
			if !bytes.Equal(payload, tt.payload) {
				t.Errorf("expected payload %v, got %v", tt.payload, payload)
			}
		})
	}
}

func TestFrameOversizeRejected(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// Craft a header announcing a payload above the frame limit
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint64(header[:8], 1)
	binary.BigEndian.PutUint32(header[8:12], maxFrameSize+1)

	go func() {
		_, _ = client.Write(header)
	}()

	buf := make([]byte, frameHeaderSize)
	if _, _, err := readFrame(server, buf); err == nil {
		t.Fatal("expected oversize frame to be rejected")
	}
}

func TestFrameTruncatedHeader(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte{0x01, 0x02, 0x03})
		client.Close()
	}()

	buf := make([]byte, frameHeaderSize)
	if _, _, err := readFrame(server, buf); err == nil {
		t.Fatal("expected truncated header to fail")
	}
}

func TestFrameTruncatedPayload(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		header := make([]byte, frameHeaderSize)
		binary.BigEndian.PutUint64(header[:8], 1)
		binary.BigEndian.PutUint32(header[8:12], 100)
		_, _ = client.Write(header)
		_, _ = client.Write([]byte("short"))
		client.Close()
	}()

	buf := make([]byte, frameHeaderSize)
	if _, _, err := readFrame(server, buf); err == nil {
		t.Fatal("expected truncated payload to fail")
	}
}
