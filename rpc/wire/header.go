package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/ValentinKolb/andx/rpc/common"
)

// --------------------------------------------------------------------------
// Frame Layout
// --------------------------------------------------------------------------

// All offsets are counted from the start of the frame buffer, which includes
// the 4-byte big-endian length prefix. Header fields are little-endian.
const (
	LengthPrefixSize = 4

	OffsetProtocol  = 4  // 0xFF 'S' 'M' 'B' or 0xFF 'E' for encrypted frames
	OffsetCommand   = 8  // 1 byte
	OffsetStatus    = 9  // 4 byte status, or 1 byte class + 1 reserved + 2 byte code
	OffsetDOSCode   = 11 // 2 byte DOS error code
	OffsetFlags     = 13 // 1 byte
	OffsetFlags2    = 14 // 2 byte
	OffsetPidHigh   = 16 // 2 byte
	OffsetSignature = 18 // 8 byte message signature
	OffsetTid       = 28 // 2 byte
	OffsetPid       = 30 // 2 byte
	OffsetUid       = 32 // 2 byte
	OffsetMid       = 34 // 2 byte transaction id
	OffsetWct       = 36 // 1 byte word count of the first member
	OffsetVwv       = 37 // word array of the first member

	// HeaderSize is the size of an empty builder buffer: prefix and fixed
	// header, without the word count of the first member
	HeaderSize = OffsetWct

	// MinFrameSize is the smallest frame the demultiplexer will look at
	MinFrameSize = OffsetWct + 1

	SignatureSize = 8

	// MaxFrameLength is the largest frame expressible in the 16-bit
	// length field. Only CmdWriteX may exceed it.
	MaxFrameLength = 0xFFFF
)

// Protocol markers at OffsetProtocol
var (
	ProtocolMagic   = [4]byte{0xFF, 'S', 'M', 'B'}
	EncryptionMagic = [2]byte{0xFF, 'E'}
)

// Header flag bits
const (
	FlagReply        uint8  = 0x80
	Flags2Signatures uint16 = 0x0004
	Flags2NTStatus   uint16 = common.Flags2NTStatus
	AndXNone         uint8  = 0xFF
)

// OplockBreakLength is the length of an oplock break notification without
// the prefix: header, 8 words and the byte count
const OplockBreakLength = 51

// --------------------------------------------------------------------------
// Command Codes
// --------------------------------------------------------------------------

const (
	CmdLockingX   uint8 = 0x24
	CmdTrans      uint8 = 0x25
	CmdTranss     uint8 = 0x26
	CmdEcho       uint8 = 0x2B
	CmdOpenX      uint8 = 0x2D
	CmdReadX      uint8 = 0x2E
	CmdWriteX     uint8 = 0x2F
	CmdTrans2     uint8 = 0x32
	CmdTranss2    uint8 = 0x33
	CmdSessSetupX uint8 = 0x73
	CmdUlogoffX   uint8 = 0x74
	CmdTconX      uint8 = 0x75
	CmdNTTrans    uint8 = 0xA0
	CmdNTTranss   uint8 = 0xA1
	CmdNTCreateX  uint8 = 0xA2
	CmdNTCancel   uint8 = 0xA4
)

// LockingOplockRelease is the lock type of a locking request that only
// acknowledges an oplock break
const LockingOplockRelease uint8 = 0x02

// IsAndX reports whether cmd can be followed by another command in the same frame
func IsAndX(cmd uint8) bool {
	switch cmd {
	case CmdSessSetupX, CmdUlogoffX, CmdTconX, CmdOpenX, CmdReadX, CmdWriteX, CmdLockingX, CmdNTCreateX:
		return true
	}
	return false
}

// ExpectsReply reports whether the server answers a request with command
// cmd and word array words. Secondary transaction requests and cancels are
// mid-sequence messages, an oplock release is a one-way acknowledgement.
func ExpectsReply(cmd uint8, words []uint16) bool {
	switch cmd {
	case CmdTranss, CmdTranss2, CmdNTTranss, CmdNTCancel:
		return false
	case CmdLockingX:
		if len(words) == 8 && uint8(words[3]) == LockingOplockRelease {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Header
// --------------------------------------------------------------------------

var (
	ErrShortFrame  = errors.New("wire: frame shorter than fixed header")
	ErrBadProtocol = errors.New("wire: bad protocol marker")
)

// Header holds the fixed header fields of a frame
type Header struct {
	Command uint8
	Status  common.Status
	Flags   uint8
	Flags2  uint16
	PidHigh uint16
	Tid     uint16
	Pid     uint16
	Uid     uint16
	Mid     uint16
}

// put writes the header into buf, which must be at least HeaderSize long
func (h *Header) put(buf []byte) {
	copy(buf[OffsetProtocol:], ProtocolMagic[:])
	buf[OffsetCommand] = h.Command
	binary.LittleEndian.PutUint32(buf[OffsetStatus:], uint32(h.Status))
	buf[OffsetFlags] = h.Flags
	binary.LittleEndian.PutUint16(buf[OffsetFlags2:], h.Flags2)
	binary.LittleEndian.PutUint16(buf[OffsetPidHigh:], h.PidHigh)
	binary.LittleEndian.PutUint16(buf[OffsetTid:], h.Tid)
	binary.LittleEndian.PutUint16(buf[OffsetPid:], h.Pid)
	binary.LittleEndian.PutUint16(buf[OffsetUid:], h.Uid)
	binary.LittleEndian.PutUint16(buf[OffsetMid:], h.Mid)
}

// ParseHeader reads the fixed header of a plain (not encrypted) frame
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortFrame
	}
	if !HasProtocolMagic(buf) {
		return Header{}, ErrBadProtocol
	}
	return Header{
		Command: buf[OffsetCommand],
		Status:  PullStatus(buf),
		Flags:   buf[OffsetFlags],
		Flags2:  binary.LittleEndian.Uint16(buf[OffsetFlags2:]),
		PidHigh: binary.LittleEndian.Uint16(buf[OffsetPidHigh:]),
		Tid:     binary.LittleEndian.Uint16(buf[OffsetTid:]),
		Pid:     binary.LittleEndian.Uint16(buf[OffsetPid:]),
		Uid:     binary.LittleEndian.Uint16(buf[OffsetUid:]),
		Mid:     binary.LittleEndian.Uint16(buf[OffsetMid:]),
	}, nil
}

// PullStatus extracts the top-level status of a frame. Without the NT status
// flag the status is an old-style class/code pair, where class 0 means OK.
func PullStatus(buf []byte) common.Status {
	if len(buf) < HeaderSize {
		return common.StatusInvalidNetworkResponse
	}
	flags2 := binary.LittleEndian.Uint16(buf[OffsetFlags2:])
	if flags2&Flags2NTStatus != 0 {
		return common.Status(binary.LittleEndian.Uint32(buf[OffsetStatus:]))
	}
	if buf[OffsetStatus] == 0 {
		return common.StatusOK
	}
	return common.DOSStatus(buf[OffsetStatus], binary.LittleEndian.Uint16(buf[OffsetDOSCode:]))
}

// HasProtocolMagic reports whether buf carries the plain protocol marker
func HasProtocolMagic(buf []byte) bool {
	return len(buf) >= OffsetProtocol+4 &&
		buf[4] == ProtocolMagic[0] && buf[5] == ProtocolMagic[1] &&
		buf[6] == ProtocolMagic[2] && buf[7] == ProtocolMagic[3]
}

// IsEncrypted reports whether buf carries the encrypted frame marker
func IsEncrypted(buf []byte) bool {
	return len(buf) >= OffsetProtocol+2 &&
		buf[4] == EncryptionMagic[0] && buf[5] == EncryptionMagic[1]
}

// Mid returns the transaction id of a frame
func Mid(buf []byte) uint16 {
	return binary.LittleEndian.Uint16(buf[OffsetMid:])
}

// SetMid writes the transaction id into a frame
func SetMid(buf []byte, mid uint16) {
	binary.LittleEndian.PutUint16(buf[OffsetMid:], mid)
}

// SetLength finalizes the length prefix: the number of bytes following it
func SetLength(buf []byte) error {
	if len(buf) < LengthPrefixSize {
		return ErrShortFrame
	}
	n := len(buf) - LengthPrefixSize
	if uint64(n) > 0xFFFFFFFF {
		return fmt.Errorf("wire: frame of %d bytes exceeds length prefix", n)
	}
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(n))
	return nil
}

// Length returns the value of the length prefix
func Length(buf []byte) int {
	return int(binary.BigEndian.Uint32(buf[:LengthPrefixSize]))
}

// IsOplockBreak applies the structural checks an unsolicited oplock break
// notification must pass: exact length, no reply flag, locking command and
// zero lock/unlock counts.
func IsOplockBreak(buf []byte) bool {
	if len(buf) != OplockBreakLength+LengthPrefixSize || Length(buf) != OplockBreakLength {
		return false
	}
	return buf[OffsetFlags]&FlagReply == 0 &&
		buf[OffsetCommand] == CmdLockingX &&
		buf[OffsetWct] == 8 &&
		binary.LittleEndian.Uint16(buf[OffsetVwv+12:]) == 0 &&
		binary.LittleEndian.Uint16(buf[OffsetVwv+14:]) == 0
}
