package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/andx/rpc/common"
	"github.com/ValentinKolb/andx/rpc/wire"
	"golang.org/x/crypto/chacha20poly1305"
	"io"
)

// Layout of an encrypted frame:
//
//	[length: 4] [0xFF 'E': 2] [context: 2] [nonce: 24] [ciphertext+tag]
//
// The plaintext is the inner frame without its length prefix. The marker
// and the context id are authenticated as additional data.
const (
	offsetContext = wire.OffsetProtocol + 2
	offsetNonce   = offsetContext + 2
	offsetCipher  = offsetNonce + chacha20poly1305.NonceSizeX

	// EncryptedOverhead is the number of bytes an encrypted frame is longer
	// than the plain frame it carries
	EncryptedOverhead = offsetCipher - wire.OffsetProtocol + chacha20poly1305.Overhead
)

// IEncryptor wraps and unwraps whole frames for a connection in encrypted
// mode. All frames of one connection share a context id.
type IEncryptor interface {
	// ContextID returns the context id written into every encrypted frame
	ContextID() uint16

	// Encrypt returns the encrypted form of a complete, signed frame
	Encrypt(frame []byte) ([]byte, error)

	// Decrypt returns the inner frame of an encrypted frame. A context id
	// mismatch and an authentication failure are both security errors,
	// with the status set to invalid handle or access denied respectively.
	Decrypt(frame []byte) ([]byte, error)
}

// XChaChaEncryptor implements IEncryptor with XChaCha20-Poly1305 and random
// 24-byte nonces
type XChaChaEncryptor struct {
	ctx  uint16
	aead cipher.AEAD
}

// NewXChaChaEncryptor derives the frame key from the session key with
// HKDF-SHA256
func NewXChaChaEncryptor(sessionKey []byte, ctx uint16) (*XChaChaEncryptor, error) {
	if len(sessionKey) == 0 {
		return nil, fmt.Errorf("empty encryption key")
	}

	var key [KeySize]byte
	if err := deriveKey(sessionKey, hkdfInfoEncryption, key[:]); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key[:])
	clear(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	return &XChaChaEncryptor{ctx: ctx, aead: aead}, nil
}

func (e *XChaChaEncryptor) ContextID() uint16 {
	return e.ctx
}

func (e *XChaChaEncryptor) Encrypt(frame []byte) ([]byte, error) {
	if len(frame) < wire.HeaderSize {
		return nil, wire.ErrShortFrame
	}
	plaintext := frame[wire.LengthPrefixSize:]

	out := make([]byte, offsetCipher, offsetCipher+len(plaintext)+e.aead.Overhead())
	copy(out[wire.OffsetProtocol:], wire.EncryptionMagic[:])
	binary.LittleEndian.PutUint16(out[offsetContext:], e.ctx)
	if _, err := io.ReadFull(rand.Reader, out[offsetNonce:offsetCipher]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	// Seal must not see additional data that overlaps dst
	var aad [offsetNonce - wire.OffsetProtocol]byte
	copy(aad[:], out[wire.OffsetProtocol:offsetNonce])
	var nonce [chacha20poly1305.NonceSizeX]byte
	copy(nonce[:], out[offsetNonce:offsetCipher])

	out = e.aead.Seal(out, nonce[:], plaintext, aad[:])
	if err := wire.SetLength(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *XChaChaEncryptor) Decrypt(frame []byte) ([]byte, error) {
	if len(frame) < offsetCipher+e.aead.Overhead() || !wire.IsEncrypted(frame) {
		return nil, common.Errorf(common.KindProtocol, common.StatusInvalidNetworkResponse,
			"encrypted frame of %d bytes too short", len(frame))
	}

	if ctx := ContextOf(frame); ctx != e.ctx {
		return nil, common.Errorf(common.KindSecurity, common.StatusInvalidHandle,
			"encryption context %d, expected %d", ctx, e.ctx)
	}

	out := make([]byte, wire.LengthPrefixSize, wire.LengthPrefixSize+len(frame)-offsetCipher)
	out, err := e.aead.Open(out, frame[offsetNonce:offsetCipher], frame[offsetCipher:], frame[wire.OffsetProtocol:offsetNonce])
	if err != nil {
		return nil, common.NewError(common.KindSecurity, common.StatusAccessDenied,
			fmt.Errorf("AEAD decryption failed: %w", err))
	}
	if err := wire.SetLength(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ContextOf returns the context id of an encrypted frame
func ContextOf(frame []byte) uint16 {
	if len(frame) < offsetNonce {
		return 0
	}
	return binary.LittleEndian.Uint16(frame[offsetContext:])
}
