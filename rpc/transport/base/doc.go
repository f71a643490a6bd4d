// Package base provides the stream socket transport of the client,
// independent of the specific network protocol (TCP, Unix sockets, etc.).
// It can be extended with protocol-specific connectors.
//
// The package focuses on:
//   - Framing by the 4-byte big-endian length prefix
//   - Reads that can be abandoned without losing the next frame
//   - Connection setup with retries and exponential backoff
//
// Key Components:
//
//   - IClientConnector: Interface for protocol-specific operations (dial,
//     socket options) that allows extending the base transport with
//     different network protocols.
//
//   - NewFrameTransport: wraps a net.Conn into a transport.IFrameTransport.
//     One pump goroutine per connection reads frames and hands each one to
//     exactly one ReadFrame call over an unbuffered channel.
//
//   - Dial: connects with a connector, upgrades the socket and wraps it.
//
// Thread Safety:
//
//	WriteFrame may be called from several goroutines, writes are serialized
//	by a mutex. ReadFrame is meant to be called by one reader at a time.
package base
