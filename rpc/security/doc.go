// Package security implements the per-message protection of a connection:
// frame signing with sequence numbers and optional transport encryption.
//
// Key Components:
//
//   - ISigner / Blake3Signer: writes a truncated BLAKE3 keyed MAC into the
//     signature field of the header. Every request consumes two sequence
//     numbers, one for itself and one for its reply; a message without a
//     reply consumes one. The reply to a request signed with seq is verified
//     with seq+1. Revert returns the numbers of a signed frame that was
//     never sent.
//
//   - IEncryptor / XChaChaEncryptor: wraps a signed frame into an encrypted
//     frame marked 0xFF 'E', carrying the connection's context id and a
//     random nonce. Keys are derived from the session key with HKDF-SHA256.
package security
