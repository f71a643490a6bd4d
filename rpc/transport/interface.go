package transport

import (
	"errors"
)

var (
	// ErrReadCancelled is returned by ReadFrame when its cancel channel was
	// closed before a frame arrived. No data is lost: the next ReadFrame
	// returns the frame that would have been delivered.
	ErrReadCancelled = errors.New("transport: read cancelled")

	// ErrClosed is returned by all operations after Close
	ErrClosed = errors.New("transport: closed")
)

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IFrameTransport is a reliable byte stream that delivers whole frames. A
// frame starts with a 4-byte big-endian length of the bytes that follow;
// buffers passed in and returned always include that prefix.
type IFrameTransport interface {
	// WriteFrame writes one complete frame. Calls are not interleaved with
	// each other.
	WriteFrame(buf []byte) error

	// ReadFrame blocks until a frame arrives, the stream fails or cancel is
	// closed. The returned buffer is owned by the caller.
	ReadFrame(cancel <-chan struct{}) ([]byte, error)

	// Close closes the stream. Blocked reads return ErrClosed or the
	// underlying read error.
	Close() error
}
