// Package util provides small concurrency and statistics helpers used by the
// client and the command line tools.
//
// The package contains:
//   - mpsc: an unbounded Multi-Producer Single-Consumer queue. The client
//     connection uses it as its outgoing write queue, so Submit never blocks
//     on the socket.
//   - statistics: summary statistics over a sample set and a histogram of
//     frame sizes with percentile estimates.
package util
