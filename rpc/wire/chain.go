package wire

import (
	"encoding/binary"
	"github.com/ValentinKolb/andx/rpc/common"
)

// --------------------------------------------------------------------------
// Shared receive buffer
// --------------------------------------------------------------------------

// Inbuf is a received frame. Once handed to the completed requests it is
// shared by all members of a chain and must not be modified; Inbuf only
// exposes read accessors.
type Inbuf struct {
	b []byte
}

// NewInbuf takes ownership of a received frame
func NewInbuf(b []byte) *Inbuf {
	return &Inbuf{b: b}
}

// Len returns the size of the frame including the length prefix
func (in *Inbuf) Len() int {
	return len(in.b)
}

// Header parses the fixed header of the frame
func (in *Inbuf) Header() (Header, error) {
	return ParseHeader(in.b)
}

// Status returns the top-level status of the frame
func (in *Inbuf) Status() common.Status {
	return PullStatus(in.b)
}

// Copy returns a private copy of the raw frame
func (in *Inbuf) Copy() []byte {
	out := make([]byte, len(in.b))
	copy(out, in.b)
	return out
}

// --------------------------------------------------------------------------
// Per-member reply
// --------------------------------------------------------------------------

// Reply is the view of one chain member inside a shared Inbuf. Words and
// Bytes alias the shared buffer and are read-only.
type Reply struct {
	// Command of this member
	Command uint8
	// Status is the top-level status of the whole frame
	Status common.Status
	// HasNext is set if another member follows this one
	HasNext bool
	// Words holds the raw little-endian word array
	Words []byte
	// Bytes holds the payload of this member
	Bytes []byte
}

// Wct returns the number of words
func (r *Reply) Wct() int {
	return len(r.Words) / 2
}

// Word returns word i of the member
func (r *Reply) Word(i int) uint16 {
	return binary.LittleEndian.Uint16(r.Words[2*i:])
}

// --------------------------------------------------------------------------
// Chain Response Parser
// --------------------------------------------------------------------------

// haveAndXCommand reports whether the member whose word count is at ofs
// links to a following member
func haveAndXCommand(buf []byte, ofs int) bool {
	if ofs >= len(buf)-1 {
		return false
	}
	if buf[ofs] < 2 {
		// no room for the command and a following offset
		return false
	}
	return buf[ofs+1] != AndXNone
}

// ParseMember locates member k (0 = first) of a reply frame and returns its
// words and payload.
//
// A walk step that finds no following member means an earlier member failed
// and the server cut the chain; every member from there on is reported as
// aborted. The last member present carries the real status, so if member k
// has no successor and the frame status is an error, that error is returned.
// Offsets read from the frame are bounds-checked against the buffer; a bad
// offset is a protocol error.
func ParseMember(in *Inbuf, k int, minWct int) (*Reply, error) {
	buf := in.b

	if len(buf) < MinFrameSize {
		return nil, common.Errorf(common.KindProtocol, common.StatusInvalidNetworkResponse,
			"frame of %d bytes too short", len(buf))
	}

	wctOfs := OffsetWct
	cmd := buf[OffsetCommand]

	for i := 0; i < k; i++ {
		if !haveAndXCommand(buf, wctOfs) {
			// an earlier member failed, the chain was cut here
			return nil, common.NewError(common.KindRequestAborted, common.StatusRequestAborted, nil)
		}
		if !IsAndX(cmd) {
			return nil, common.Errorf(common.KindProtocol, common.StatusInvalidNetworkResponse,
				"member %d (command 0x%02x) cannot be followed", i, cmd)
		}
		if wctOfs+5 > len(buf) {
			return nil, common.Errorf(common.KindProtocol, common.StatusInvalidNetworkResponse,
				"link of member %d out of range", i)
		}

		cmd = buf[wctOfs+1]
		next := int(binary.LittleEndian.Uint16(buf[wctOfs+3:])) + LengthPrefixSize
		if next <= wctOfs || next+2 > len(buf) {
			return nil, common.Errorf(common.KindProtocol, common.StatusInvalidNetworkResponse,
				"member %d at offset %d out of range", i+1, next)
		}
		wctOfs = next
	}

	status := PullStatus(buf)
	hasNext := haveAndXCommand(buf, wctOfs)

	if !hasNext && status.IsError() {
		// the last member takes the error code, later ones were aborted
		return nil, common.NewError(common.KindOperation, status, nil)
	}

	wct := int(buf[wctOfs])
	bytesOfs := wctOfs + 1 + 2*wct

	if wct < minWct {
		return nil, common.Errorf(common.KindProtocol, common.StatusInvalidNetworkResponse,
			"member %d has %d words, need %d", k, wct, minWct)
	}
	if bytesOfs+2 > len(buf) || bytesOfs > 0xFFFF {
		return nil, common.Errorf(common.KindProtocol, common.StatusInvalidNetworkResponse,
			"byte count of member %d out of range", k)
	}

	numBytes := int(binary.LittleEndian.Uint16(buf[bytesOfs:]))
	if bytesOfs+2+numBytes > len(buf) {
		return nil, common.Errorf(common.KindProtocol, common.StatusInvalidNetworkResponse,
			"payload of member %d (%d bytes) out of range", k, numBytes)
	}

	return &Reply{
		Command: cmd,
		Status:  status,
		HasNext: hasNext,
		Words:   buf[wctOfs+1 : bytesOfs : bytesOfs],
		Bytes:   buf[bytesOfs+2 : bytesOfs+2+numBytes : bytesOfs+2+numBytes],
	}, nil
}
