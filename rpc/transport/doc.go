// Package transport defines the byte stream the client multiplexer runs on.
//
// The multiplexer only needs whole frames: the framing by the 4-byte length
// prefix is handled below it, by the base package for stream sockets.
//
// Key Components:
//
//   - IFrameTransport: write a frame, read the next frame with a cancel
//     channel, close the stream.
//
//   - ErrReadCancelled / ErrClosed: the two transport-level outcomes that are
//     not failures of the stream itself.
package transport
