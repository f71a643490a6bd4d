// Package rpc provides the client side of a request/response protocol in
// which many requests share one connection and chained commands travel in
// a single frame.
//
// The package is organized into several subpackages:
//
//   - common: Configuration, status codes, the error taxonomy and logging
//     shared by all other packages.
//
//   - wire: Frame layout, the message builder that splices chained members
//     into one frame, and the parser that finds each member in a reply.
//
//   - security: Per-message signing and frame encryption.
//
//   - transport: Length-prefixed frame transports over a byte stream
//     (TCP, Unix sockets).
//
//   - client: The multiplexer itself: transaction id allocation, the pending
//     request table, request lifecycle and the response demultiplexer.
package rpc
