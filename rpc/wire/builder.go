package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/ValentinKolb/andx/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger(common.LoggerWire)

var (
	ErrFrameTooLarge = errors.New("wire: frame exceeds 16-bit length field")
	ErrInvalidChain  = errors.New("wire: invalid command chain")
	ErrTooManyWords  = errors.New("wire: more than 255 words")
	ErrBadAlignment  = errors.New("wire: negative byte alignment")
)

// chainAlignment is the boundary the word count of every chained member
// after the first one is aligned to
const chainAlignment = 4

// --------------------------------------------------------------------------
// Layout
// --------------------------------------------------------------------------

// memberLayout describes where the parts of one spliced member land in the
// frame buffer.
type memberLayout struct {
	chainPadding int // zero bytes inserted before the word count
	wctOffset    int // offset of the word count, after chainPadding
	bytesPadding int // zero bytes between byte count and payload
	byteCount    int // value of the byte count field, including bytesPadding
	newSize      int // buffer size after the member was appended
}

// layoutMember computes the placement of a member appended to a buffer of
// oldSize bytes. The first member follows the header directly. Any later
// member starts at the next 4-byte boundary, and its offset is taken after
// that padding. The payload is aligned to align (0 = no alignment) relative
// to the frame start.
func layoutMember(oldSize int, first bool, wct int, align int, numBytes int) memberLayout {
	var l memberLayout

	if !first && oldSize%chainAlignment != 0 {
		l.chainPadding = chainAlignment - oldSize%chainAlignment
	}
	l.wctOffset = oldSize + l.chainPadding

	// word count, words, byte count
	size := l.wctOffset + 1 + 2*wct + 2

	if align > 0 && size%align != 0 {
		l.bytesPadding = align - size%align
	}
	l.byteCount = l.bytesPadding + numBytes
	l.newSize = size + l.byteCount
	return l
}

// --------------------------------------------------------------------------
// Builder
// --------------------------------------------------------------------------

// Builder assembles a frame from one or more chained members. The buffer
// always holds a complete header followed by zero or more complete members;
// every Splice either appends one complete member or leaves the buffer
// untouched.
type Builder struct {
	buf []byte
}

// NewBuilder creates a builder whose buffer holds exactly the fixed header
func NewBuilder(h Header) *Builder {
	buf := make([]byte, HeaderSize, HeaderSize+64)
	h.put(buf)
	return &Builder{buf: buf}
}

// NewBuilderFrom wraps an existing frame buffer, e.g. one produced by an
// earlier Builder, so more members can be spliced onto it
func NewBuilderFrom(buf []byte) (*Builder, error) {
	if len(buf) < HeaderSize {
		return nil, ErrShortFrame
	}
	if !HasProtocolMagic(buf) {
		return nil, ErrBadProtocol
	}
	return &Builder{buf: buf}, nil
}

// Len returns the current size of the buffer including the length prefix
func (b *Builder) Len() int {
	return len(b.buf)
}

// Bytes returns the buffer. The length prefix is not set.
func (b *Builder) Bytes() []byte {
	return b.buf
}

// Splice appends a member with command cmd, word array words and payload.
// The payload starts at a multiple of align. The first member's command is
// written into the header; any later member is linked from the previous
// member's next-command slot. A chain-capable member with at least two
// words is terminated so no stale link can be followed past it.
func (b *Builder) Splice(cmd uint8, words []uint16, align int, payload []byte) error {
	if len(words) > 0xFF {
		return ErrTooManyWords
	}
	if align < 0 {
		return ErrBadAlignment
	}

	oldSize := len(b.buf)
	if oldSize < HeaderSize {
		return ErrShortFrame
	}
	first := oldSize == HeaderSize

	l := layoutMember(oldSize, first, len(words), align, len(payload))

	if cmd != CmdWriteX && l.newSize > MaxFrameLength {
		plog.Debugf("splice: %d bytes won't fit", l.newSize)
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, l.newSize)
	}

	// locate the slot to link from before anything is written
	slot := OffsetCommand
	if !first {
		var err error
		if slot, err = findAndXSlot(b.buf); err != nil {
			return err
		}
	}

	out := grow(b.buf, l.newSize)

	if first {
		out[OffsetCommand] = cmd
	} else {
		// padding between members, then link the previous member to this one
		clear(out[oldSize:l.wctOffset])
		out[slot] = cmd
		out[slot+1] = 0
		binary.LittleEndian.PutUint16(out[slot+2:], uint16(l.wctOffset-LengthPrefixSize))
	}

	ofs := l.wctOffset

	// word count and words
	out[ofs] = uint8(len(words))
	ofs++
	for _, w := range words {
		binary.LittleEndian.PutUint16(out[ofs:], w)
		ofs += 2
	}
	if IsAndX(cmd) && len(words) >= 2 {
		out[l.wctOffset+1] = AndXNone
		out[l.wctOffset+2] = AndXNone
		binary.LittleEndian.PutUint16(out[l.wctOffset+3:], 0)
	}

	// byte count, padding and payload
	binary.LittleEndian.PutUint16(out[ofs:], uint16(l.byteCount))
	ofs += 2
	clear(out[ofs : ofs+l.bytesPadding])
	ofs += l.bytesPadding
	ofs += copy(out[ofs:], payload)

	if ofs != l.newSize {
		// unreachable unless layoutMember and the writes above disagree
		return fmt.Errorf("wire: splice wrote %d bytes, layout expected %d", ofs, l.newSize)
	}

	b.buf = out
	return nil
}

// grow returns buf resized to n bytes, reallocating when the capacity is
// too small. Bytes past the old length are unspecified.
func grow(buf []byte, n int) []byte {
	if n <= cap(buf) {
		return buf[:n]
	}
	c := 2 * cap(buf)
	if c < n {
		c = n
	}
	out := make([]byte, n, c)
	copy(out, buf)
	return out
}

// findAndXSlot walks the chain from the first member and returns the offset
// of the next-command slot of the last member. Each slot holds the next
// command, a reserved byte and the offset (from the header start) of the
// next member's word count; 0xFF in the command byte ends the chain.
func findAndXSlot(buf []byte) (int, error) {
	if !IsAndX(buf[OffsetCommand]) {
		return 0, fmt.Errorf("%w: command 0x%02x cannot be chained", ErrInvalidChain, buf[OffsetCommand])
	}

	ofs := OffsetVwv
	for {
		// the member owning this slot needs at least two words
		if ofs+4 > len(buf) || buf[ofs-1] < 2 {
			return 0, fmt.Errorf("%w: link at %d out of range", ErrInvalidChain, ofs)
		}
		next := buf[ofs]
		if next == AndXNone {
			return ofs, nil
		}
		if !IsAndX(next) {
			return 0, fmt.Errorf("%w: command 0x%02x cannot be chained", ErrInvalidChain, next)
		}
		nextOfs := int(binary.LittleEndian.Uint16(buf[ofs+2:])) + LengthPrefixSize + 1
		if nextOfs <= ofs {
			return 0, fmt.Errorf("%w: link at %d points backwards", ErrInvalidChain, ofs)
		}
		ofs = nextOfs
	}
}

// IsChainError reports whether err was caused by a malformed chain or frame
// layout rather than by the caller's parameters
func IsChainError(err error) bool {
	return errors.Is(err, ErrInvalidChain) || errors.Is(err, ErrShortFrame) || errors.Is(err, ErrBadProtocol)
}
