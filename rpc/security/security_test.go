package security

import (
	"bytes"
	"encoding/binary"
	"errors"
	"github.com/ValentinKolb/andx/rpc/common"
	"github.com/ValentinKolb/andx/rpc/wire"
	"testing"
)

// testFrame encodes an echo request with the given mid
func testFrame(t *testing.T, mid uint16) []byte {
	t.Helper()
	msg := wire.NewMessage(wire.Header{Flags2: wire.Flags2NTStatus, Mid: mid}, wire.CmdEcho, 0, []uint16{1}, []byte("ping"))
	buf, err := msg.Encode()
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	if err := wire.SetLength(buf); err != nil {
		t.Fatalf("Failed to set length: %v", err)
	}
	return buf
}

// TestSignSequence tests that requests consume two sequence numbers and oneway messages one
func TestSignSequence(t *testing.T) {
	s, err := NewBlake3Signer([]byte("session key"))
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	expected := []struct {
		oneway bool
		seq    uint32
	}{
		{false, 0},
		{false, 2},
		{true, 4},
		{false, 5},
	}
	for i, exp := range expected {
		seq, err := s.Sign(testFrame(t, uint16(i+1)), exp.oneway)
		if err != nil {
			t.Fatalf("Failed to sign frame %d: %v", i, err)
		}
		if seq != exp.seq {
			t.Errorf("Frame %d: expected seq %d, got %d", i, exp.seq, seq)
		}
	}
}

// TestSignRevert tests that reverting the latest frame gives its sequence
// numbers back and that older frames can not be reverted
func TestSignRevert(t *testing.T) {
	s, _ := NewBlake3Signer([]byte("session key"))

	seq, _ := s.Sign(testFrame(t, 1), false)
	s.Revert(seq, false)
	if again, _ := s.Sign(testFrame(t, 1), false); again != seq {
		t.Errorf("Expected seq %d after revert, got %d", seq, again)
	}

	oneway, _ := s.Sign(testFrame(t, 2), true)
	s.Revert(oneway, true)
	if next, _ := s.Sign(testFrame(t, 3), true); next != oneway {
		t.Errorf("Expected oneway seq %d after revert, got %d", oneway, next)
	}

	// a frame signed before the latest one stays consumed
	s.Revert(seq, false)
	if next, _ := s.Sign(testFrame(t, 4), false); next != oneway+1 {
		t.Errorf("Revert of an older frame moved the sequence, got %d", next)
	}

	// the no-op signer accepts reverts
	NewNoSigner().Revert(0, false)
}

// TestEncryptAuthenticatesHeader tests that the marker and context in front
// of the nonce are bound to the ciphertext
func TestEncryptAuthenticatesHeader(t *testing.T) {
	enc, _ := NewXChaChaEncryptor([]byte("session key"), 42)
	sealed, err := enc.Encrypt(testFrame(t, 3))
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	nonce := sealed[offsetNonce:offsetCipher]
	aad := append([]byte(nil), sealed[wire.OffsetProtocol:offsetNonce]...)
	if _, err := enc.aead.Open(nil, nonce, sealed[offsetCipher:], aad); err != nil {
		t.Fatalf("Ciphertext does not open with the frame header as additional data: %v", err)
	}

	aad[len(aad)-1] ^= 0x01
	if _, err := enc.aead.Open(nil, nonce, sealed[offsetCipher:], aad); err == nil {
		t.Errorf("Ciphertext opened with a modified context")
	}
}

// TestSignVerify tests that a reply signed by the peer verifies with seq+1 only
func TestSignVerify(t *testing.T) {
	client, _ := NewBlake3Signer([]byte("session key"))
	server, _ := NewBlake3Signer([]byte("session key"))

	req := testFrame(t, 7)
	seq, err := client.Sign(req, false)
	if err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}
	if binary.LittleEndian.Uint16(req[wire.OffsetFlags2:])&wire.Flags2Signatures == 0 {
		t.Errorf("Signing did not set the signatures flag")
	}

	// the server sees the request at seq and answers at seq+1
	if !server.Verify(req, seq) {
		t.Fatalf("Server failed to verify request")
	}
	reply := testFrame(t, 7)
	reply[wire.OffsetFlags] |= wire.FlagReply
	server.seq = seq + 1
	replySeq, _ := server.Sign(reply, false)
	if replySeq != seq+1 {
		t.Fatalf("Expected server seq %d, got %d", seq+1, replySeq)
	}

	before := append([]byte(nil), reply...)
	if !client.Verify(reply, seq+1) {
		t.Errorf("Client failed to verify reply with seq+1")
	}
	if !bytes.Equal(before, reply) {
		t.Errorf("Verify modified the frame")
	}
	if client.Verify(reply, seq) {
		t.Errorf("Reply must not verify with the request's seq")
	}

	// tamper with the payload
	reply[len(reply)-1] ^= 0xFF
	if client.Verify(reply, seq+1) {
		t.Errorf("Tampered reply must not verify")
	}
}

// TestSignWrongKey tests that a frame signed with another key is rejected
func TestSignWrongKey(t *testing.T) {
	a, _ := NewBlake3Signer([]byte("key a"))
	b, _ := NewBlake3Signer([]byte("key b"))

	buf := testFrame(t, 1)
	seq, _ := a.Sign(buf, false)
	if b.Verify(buf, seq) {
		t.Errorf("Frame signed with another key must not verify")
	}
	if _, err := NewBlake3Signer(nil); err == nil {
		t.Errorf("Expected error for empty key")
	}
}

// TestNoSigner tests that the no-op signer leaves frames untouched
func TestNoSigner(t *testing.T) {
	s := NewNoSigner()
	buf := testFrame(t, 1)
	before := append([]byte(nil), buf...)
	if _, err := s.Sign(buf, false); err != nil || !bytes.Equal(buf, before) {
		t.Errorf("No-op signer modified the frame (err %v)", err)
	}
	if !s.Verify(buf, 12345) || s.Active() {
		t.Errorf("No-op signer must accept everything and be inactive")
	}
}

// TestEncryptDecrypt tests the round trip and the failure statuses
func TestEncryptDecrypt(t *testing.T) {
	enc, err := NewXChaChaEncryptor([]byte("session key"), 42)
	if err != nil {
		t.Fatalf("Failed to create encryptor: %v", err)
	}

	plain := testFrame(t, 3)
	sealed, err := enc.Encrypt(plain)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	if !wire.IsEncrypted(sealed) || ContextOf(sealed) != 42 {
		t.Fatalf("Encrypted frame has wrong marker or context")
	}
	if len(sealed) != len(plain)+EncryptedOverhead || wire.Length(sealed) != len(sealed)-wire.LengthPrefixSize {
		t.Errorf("Unexpected encrypted frame size %d (plain %d)", len(sealed), len(plain))
	}

	opened, err := enc.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}
	if !bytes.Equal(opened, plain) {
		t.Errorf("Decrypted frame differs from original")
	}

	t.Run("ContextMismatch", func(t *testing.T) {
		other, _ := NewXChaChaEncryptor([]byte("session key"), 43)
		_, err := other.Decrypt(sealed)
		if !errors.Is(err, common.ErrSecurity) || common.StatusOf(err) != common.StatusInvalidHandle {
			t.Errorf("Expected INVALID_HANDLE security error, got %v", err)
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		other, _ := NewXChaChaEncryptor([]byte("other key"), 42)
		_, err := other.Decrypt(sealed)
		if !errors.Is(err, common.ErrSecurity) || common.StatusOf(err) != common.StatusAccessDenied {
			t.Errorf("Expected ACCESS_DENIED security error, got %v", err)
		}
	})

	t.Run("Tampered", func(t *testing.T) {
		bad := append([]byte(nil), sealed...)
		bad[len(bad)-1] ^= 1
		if _, err := enc.Decrypt(bad); common.StatusOf(err) != common.StatusAccessDenied {
			t.Errorf("Expected ACCESS_DENIED, got %v", err)
		}
	})

	t.Run("Short", func(t *testing.T) {
		if _, err := enc.Decrypt(sealed[:20]); !errors.Is(err, common.ErrProtocol) {
			t.Errorf("Expected protocol error, got %v", err)
		}
	})
}
