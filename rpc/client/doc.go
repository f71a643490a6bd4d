// Package client implements the client side request multiplexer: many
// concurrent requests share one connection, each identified by a 16-bit
// transaction id (mid), and replies are matched back to their requests in
// whatever order the server sends them.
//
// The package focuses on:
//   - Unique transaction id allocation over a configurable range
//   - Chained requests sent as one frame and completed together
//   - Per-message signing and optional frame encryption
//   - Unsolicited oplock break notifications under the reserved id 0xFFFF
//
// Key Components:
//
//   - Connection: owns the pending table, the write queue and the single
//     outstanding read. NewRequest, Submit, SubmitChain and Call are the
//     entry points for callers; Close fails everything still pending.
//
//   - Request: handle of one submitted operation. Done/Wait report
//     completion, Result extracts this member's words and bytes from the
//     reply, Cancel forgets about the reply.
//
//   - pendingTable: requests waiting for a reply keyed by mid. A read is
//     outstanding exactly while the table is non-empty.
//
//   - OplockBreakWaiter: registration for the next oplock break. It is never
//     sent, the notification is accepted only if it passes a strict
//     structural check.
//
// Usage Example:
//
//	tr, _ := tcp.Dial(config)
//	conn := client.NewConnection(tr, config)
//	defer conn.Close()
//
//	req := conn.NewRequest(wire.CmdEcho, 0, []uint16{1}, []byte("ping"))
//	reply, err := conn.Call(ctx, req, 1)
//
// Error Handling:
//
//	Stream failures complete every pending request with a network error.
//	Frames nobody waits for and replies with a bad signature are dropped and
//	only logged; the request of a badly signed reply stays pending. Errors
//	returned by Result can be classified with errors.Is against the sentinel
//	errors of the common package.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. One mutex per connection
//	serializes submits, completions and cancellations.
package client
