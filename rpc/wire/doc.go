// Package wire implements the binary frame format of the client: the fixed
// header, the chained ("AndX") member layout and the parser that extracts
// one member's result from a shared reply frame.
//
// Frame layout (offsets from the start of the buffer):
//
//	0   4-byte big-endian length of everything that follows
//	4   0xFF 'S' 'M' 'B'
//	8   command
//	9   status (4 bytes, or DOS class/code)
//	13  flags, 14 flags2, 16 pid high, 18 signature (8), 26 reserved
//	28  tid, 30 pid, 32 uid, 34 mid (transaction id)
//	36  word count W, W little-endian words, byte count B, B bytes
//
// A chain-capable member stores in its first two words the command of the
// next member, a reserved byte and the offset (from byte 4) of the next
// member's word count. 0xFF as next command ends the chain.
//
// Key Components:
//
//   - Builder: appends members to a frame with Splice. Padding and offset
//     computation for both single messages and chains go through one layout
//     function; a failed Splice leaves the buffer untouched.
//
//   - Message / EncodeChain: a logical operation and the encoding of one or
//     more of them into a single frame.
//
//   - Inbuf / Reply / ParseMember: read-only view of a received frame and the
//     chain walk that locates member k, reporting aborted members for a chain
//     cut short by an earlier failure.
package wire
