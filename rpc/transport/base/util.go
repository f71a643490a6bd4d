package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// frameHeaderSize is the size of the big-endian length prefix
const frameHeaderSize = 4

// writeFrame writes a complete frame to the connection. The length prefix
// must already match the buffer:
// - 4 bytes: length of the rest (uint32, big endian)
// - N bytes: frame body
func writeFrame(conn net.Conn, buf []byte) error {
	if len(buf) < frameHeaderSize {
		return fmt.Errorf("frame of %d bytes has no length prefix", len(buf))
	}
	if n := binary.BigEndian.Uint32(buf[:frameHeaderSize]); int(n) != len(buf)-frameHeaderSize {
		return fmt.Errorf("length prefix %d does not match frame body of %d bytes", n, len(buf)-frameHeaderSize)
	}

	_, err := conn.Write(buf)
	return err
}

// readFrame reads one frame from the connection and returns it including
// the length prefix. A frame body larger than maxSize is an error, the
// stream can not be resynchronized after it.
func readFrame(conn net.Conn, maxSize int) ([]byte, error) {
	var header [frameHeaderSize]byte

	// Read header
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}

	contentLength := binary.BigEndian.Uint32(header[:])
	if uint64(contentLength) > uint64(maxSize) {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit of %d bytes", contentLength, maxSize)
	}

	buf := make([]byte, frameHeaderSize+int(contentLength))
	copy(buf, header[:])

	// Read data
	if _, err := io.ReadFull(conn, buf[frameHeaderSize:]); err != nil {
		return nil, err
	}
	return buf, nil
}
