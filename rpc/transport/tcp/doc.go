// Package tcp implements the TCP socket transport of the client. It provides
// a concrete implementation of the base package's connector interface.
//
// This package builds on the base package's transport functionality, inheriting
// its framing and retry behavior. See the base package documentation for
// details.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector.
//     Applies no-delay, keep-alive, linger and socket buffer sizes from the
//     client configuration.
//
//   - Dial: connects to a host:port endpoint.
package tcp
