// Package unix implements the transport of the client over Unix domain
// sockets, for servers running on the same machine.
//
// This package extends the base transport layer with a Unix socket-specific
// connector while inheriting framing and retries from the base package.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets and
//     applies the configured socket buffer sizes
//
//   - Dial: connects to a socket path
package unix
