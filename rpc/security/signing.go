package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/andx/rpc/common"
	"github.com/ValentinKolb/andx/rpc/wire"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
	"io"
	"sync"
)

var plog = logger.GetLogger(common.LoggerSecurity)

// KeySize is the size of all derived keys
const KeySize = 32

var (
	hkdfInfoSigning    = []byte("andx.signing.v1")
	hkdfInfoEncryption = []byte("andx.encryption.v1")
)

// --------------------------------------------------------------------------
// Interface
// --------------------------------------------------------------------------

// ISigner computes and checks the per-message signature stored in the
// header of a frame. The frame must be complete, with its transaction id and
// length already written.
type ISigner interface {
	// Sign writes the signature of buf into its header and returns the
	// sequence number used. The reply is verified with seq+1. A oneway
	// message consumes only one sequence number since no reply follows.
	Sign(buf []byte, oneway bool) (seq uint32, err error)

	// Verify checks the signature of a received frame against seq. The
	// signature field is left as received.
	Verify(buf []byte, seq uint32) bool

	// Revert gives back the sequence numbers of a signed frame that was
	// never sent. It has no effect unless seq came from the latest Sign.
	Revert(seq uint32, oneway bool)

	// Active reports whether frames are actually signed
	Active() bool
}

// --------------------------------------------------------------------------
// No-op signer
// --------------------------------------------------------------------------

type noSigner struct{}

// NewNoSigner returns a signer for connections without signing. Sign
// leaves the frame untouched and Verify accepts everything.
func NewNoSigner() ISigner {
	return noSigner{}
}

func (noSigner) Sign([]byte, bool) (uint32, error) { return 0, nil }
func (noSigner) Verify([]byte, uint32) bool        { return true }
func (noSigner) Revert(uint32, bool)               {}
func (noSigner) Active() bool                      { return false }

// --------------------------------------------------------------------------
// BLAKE3 keyed signer
// --------------------------------------------------------------------------

// Blake3Signer signs frames with a BLAKE3 keyed hash. The MAC covers the
// frame from the protocol marker on, with the sequence number placed in the
// signature field while hashing, and is truncated to the size of the field.
type Blake3Signer struct {
	mu  sync.Mutex
	key [KeySize]byte
	seq uint32
}

// NewBlake3Signer derives the MAC key from the session key with HKDF-SHA256
func NewBlake3Signer(sessionKey []byte) (*Blake3Signer, error) {
	if len(sessionKey) == 0 {
		return nil, fmt.Errorf("empty signing key")
	}
	s := &Blake3Signer{}
	if err := deriveKey(sessionKey, hkdfInfoSigning, s.key[:]); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Blake3Signer) Sign(buf []byte, oneway bool) (uint32, error) {
	if len(buf) < wire.HeaderSize {
		return 0, wire.ErrShortFrame
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	flags2 := binary.LittleEndian.Uint16(buf[wire.OffsetFlags2:])
	binary.LittleEndian.PutUint16(buf[wire.OffsetFlags2:], flags2|wire.Flags2Signatures)

	seq := s.seq
	mac, err := s.mac(buf, seq)
	if err != nil {
		return 0, err
	}
	copy(buf[wire.OffsetSignature:], mac[:])

	s.seq += seqStep(oneway)
	return seq, nil
}

func (s *Blake3Signer) Revert(seq uint32, oneway bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seq != seq+seqStep(oneway) {
		plog.Warningf("not reverting seq %d, signer already at %d", seq, s.seq)
		return
	}
	s.seq = seq
}

func (s *Blake3Signer) Verify(buf []byte, seq uint32) bool {
	if len(buf) < wire.HeaderSize {
		return false
	}

	var received [wire.SignatureSize]byte
	copy(received[:], buf[wire.OffsetSignature:])

	mac, err := s.mac(buf, seq)
	// restore what was on the wire, mac() overwrote the field
	copy(buf[wire.OffsetSignature:], received[:])
	if err != nil {
		plog.Warningf("failed to compute signature for seq %d: %v", seq, err)
		return false
	}

	if subtle.ConstantTimeCompare(mac[:], received[:]) != 1 {
		plog.Debugf("bad signature on mid %d, seq %d", wire.Mid(buf), seq)
		return false
	}
	return true
}

func (s *Blake3Signer) Active() bool {
	return true
}

// mac places seq into the signature field of buf and hashes the frame
func (s *Blake3Signer) mac(buf []byte, seq uint32) ([wire.SignatureSize]byte, error) {
	var out [wire.SignatureSize]byte

	field := buf[wire.OffsetSignature : wire.OffsetSignature+wire.SignatureSize]
	clear(field)
	binary.LittleEndian.PutUint32(field, seq)

	h, err := blake3.NewKeyed(s.key[:])
	if err != nil {
		return out, fmt.Errorf("BLAKE3 keyed hash initialization failed: %w", err)
	}
	_, _ = h.Write(buf[wire.OffsetProtocol:])

	var sum [32]byte
	h.Sum(sum[:0])
	copy(out[:], sum[:wire.SignatureSize])
	return out, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// seqStep is the number of sequence numbers one frame consumes
func seqStep(oneway bool) uint32 {
	if oneway {
		return 1
	}
	return 2
}

// deriveKey fills out with key material derived from ikm
func deriveKey(ikm []byte, info []byte, out []byte) error {
	reader := hkdf.New(sha256.New, ikm, nil, info)
	if _, err := io.ReadFull(reader, out); err != nil {
		return fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return nil
}
