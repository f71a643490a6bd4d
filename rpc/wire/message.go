package wire

import (
	"fmt"
)

// Message is one logical operation: a header template plus the member's
// word array and payload. Messages are encoded into frames with Encode or
// EncodeChain; the Message itself is never modified by encoding.
type Message struct {
	Header  Header
	Words   []uint16
	Payload []byte

	// Align aligns the payload to a multiple of Align bytes (0 = unaligned)
	Align int
}

// NewMessage creates a message for command cmd. flags is or'ed into the
// header flags of h.
func NewMessage(h Header, cmd, flags uint8, words []uint16, payload []byte) *Message {
	h.Command = cmd
	h.Flags |= flags
	return &Message{
		Header:  h,
		Words:   words,
		Payload: payload,
	}
}

// Command returns the command code of the message
func (m *Message) Command() uint8 {
	return m.Header.Command
}

// ExpectsReply reports whether the server will answer this message
func (m *Message) ExpectsReply() bool {
	return ExpectsReply(m.Header.Command, m.Words)
}

// Encode encodes a single unchained message
func (m *Message) Encode() ([]byte, error) {
	return EncodeChain(m)
}

// EncodeChain encodes msgs as one frame, in order. The header of the frame
// is taken from the first message. Every message but the last must be
// chain-capable with at least two words. The length prefix and the
// transaction id are left for the send path to fill in.
func EncodeChain(msgs ...*Message) ([]byte, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrInvalidChain)
	}

	for i, m := range msgs[:len(msgs)-1] {
		if !IsAndX(m.Header.Command) || len(m.Words) < 2 {
			return nil, fmt.Errorf("%w: member %d (command 0x%02x, %d words) cannot be followed",
				ErrInvalidChain, i, m.Header.Command, len(m.Words))
		}
	}

	b := NewBuilder(msgs[0].Header)
	for _, m := range msgs {
		if err := b.Splice(m.Header.Command, m.Words, m.Align, m.Payload); err != nil {
			return nil, err
		}
	}
	return b.Bytes(), nil
}
