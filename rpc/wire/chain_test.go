package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"github.com/ValentinKolb/andx/rpc/common"
	"testing"
)

// replyHeader returns a reply header with the given status
func replyHeader(mid uint16, status common.Status) Header {
	return Header{Flags: FlagReply, Flags2: Flags2NTStatus, Mid: mid, Status: status}
}

// TestParseMemberChainSuccess tests a three member reply without errors
func TestParseMemberChainSuccess(t *testing.T) {
	buf := buildFrame(t, replyHeader(5, common.StatusOK),
		testMember{cmd: CmdSessSetupX, words: []uint16{0, 0, 11}, payload: []byte("one")},
		testMember{cmd: CmdTconX, words: []uint16{0, 0, 22}, payload: []byte("two")},
		testMember{cmd: CmdReadX, words: []uint16{0, 0, 33, 44}, payload: []byte("three")},
	)
	in := NewInbuf(buf)

	expected := []struct {
		cmd     uint8
		word2   uint16
		payload string
	}{
		{CmdSessSetupX, 11, "one"},
		{CmdTconX, 22, "two"},
		{CmdReadX, 33, "three"},
	}

	for k, exp := range expected {
		reply, err := ParseMember(in, k, 3)
		if err != nil {
			t.Fatalf("Failed to parse member %d: %v", k, err)
		}
		if reply.Command != exp.cmd || reply.Word(2) != exp.word2 || string(reply.Bytes) != exp.payload {
			t.Errorf("Member %d: got command 0x%02x word2 %d payload %q", k, reply.Command, reply.Word(2), reply.Bytes)
		}
		if reply.Status != common.StatusOK {
			t.Errorf("Member %d: expected status OK, got %s", k, reply.Status)
		}
	}
}

// TestParseMemberChainFailure tests that the failing member reports the real status and later members are aborted
func TestParseMemberChainFailure(t *testing.T) {
	t.Run("FirstFails", func(t *testing.T) {
		// the server answers only the first member, with an error and no words
		buf := buildFrame(t, replyHeader(5, common.StatusAccessDenied),
			testMember{cmd: CmdSessSetupX},
		)
		in := NewInbuf(buf)

		_, err := ParseMember(in, 0, 0)
		if !errors.Is(err, common.ErrOperation) || common.StatusOf(err) != common.StatusAccessDenied {
			t.Errorf("Member 0: expected operation error ACCESS_DENIED, got %v", err)
		}
		for k := 1; k < 3; k++ {
			_, err := ParseMember(in, k, 0)
			if !errors.Is(err, common.ErrRequestAborted) {
				t.Errorf("Member %d: expected aborted, got %v", k, err)
			}
		}
	})

	t.Run("SecondFails", func(t *testing.T) {
		buf := buildFrame(t, replyHeader(5, common.StatusInvalidHandle),
			testMember{cmd: CmdSessSetupX, words: []uint16{0, 0, 1}},
			testMember{cmd: CmdTconX},
		)
		in := NewInbuf(buf)

		if reply, err := ParseMember(in, 0, 3); err != nil || reply.Word(2) != 1 {
			t.Errorf("Member 0: expected success, got %v", err)
		}
		if _, err := ParseMember(in, 1, 0); common.StatusOf(err) != common.StatusInvalidHandle {
			t.Errorf("Member 1: expected INVALID_HANDLE, got %v", err)
		}
		if _, err := ParseMember(in, 2, 0); !errors.Is(err, common.ErrRequestAborted) {
			t.Errorf("Member 2: expected aborted, got %v", err)
		}
	})

	t.Run("WarningIsNotAnError", func(t *testing.T) {
		buf := buildFrame(t, replyHeader(5, common.StatusBufferOverflow),
			testMember{cmd: CmdReadX, words: []uint16{0xFF, 0, 7}, payload: []byte("partial")},
		)
		reply, err := ParseMember(NewInbuf(buf), 0, 3)
		if err != nil {
			t.Fatalf("Expected success for warning status, got %v", err)
		}
		if reply.Status != common.StatusBufferOverflow {
			t.Errorf("Expected BUFFER_OVERFLOW status, got %s", reply.Status)
		}
	})
}

// TestParseMemberBounds tests that offsets outside the frame are protocol errors
func TestParseMemberBounds(t *testing.T) {
	good := buildFrame(t, replyHeader(5, common.StatusOK),
		testMember{cmd: CmdSessSetupX, words: []uint16{0, 0, 1}, payload: []byte("abc")},
		testMember{cmd: CmdEcho, words: []uint16{2}, payload: []byte("de")},
	)

	tests := []struct {
		name   string
		mutate func(b []byte) []byte
		k      int
	}{
		{"too short", func(b []byte) []byte { return b[:MinFrameSize-1] }, 0},
		{"link out of range", func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[OffsetVwv+2:], 0xFFF0)
			return b
		}, 1},
		{"link backwards", func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[OffsetVwv+2:], 1)
			return b
		}, 1},
		{"byte count beyond frame", func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[OffsetVwv+6:], 0x1000)
			return b
		}, 0},
		{"truncated words", func(b []byte) []byte { return b[:OffsetVwv+3] }, 0},
		{"not chainable but linked", func(b []byte) []byte {
			b[OffsetCommand] = CmdEcho
			return b
		}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := tt.mutate(append([]byte(nil), good...))
			_, err := ParseMember(NewInbuf(buf), tt.k, 0)
			if !errors.Is(err, common.ErrProtocol) {
				t.Errorf("Expected protocol error, got %v", err)
			}
		})
	}
}

// TestParseMemberMinWct tests that a member with too few words is rejected
func TestParseMemberMinWct(t *testing.T) {
	buf := buildFrame(t, replyHeader(5, common.StatusOK), testMember{cmd: CmdEcho, words: []uint16{1}})
	if _, err := ParseMember(NewInbuf(buf), 0, 2); !errors.Is(err, common.ErrProtocol) {
		t.Errorf("Expected protocol error, got %v", err)
	}
}

// TestPullStatus tests NT and DOS status extraction
func TestPullStatus(t *testing.T) {
	buf := buildFrame(t, replyHeader(1, common.StatusAccessDenied), testMember{cmd: CmdEcho})
	if s := PullStatus(buf); s != common.StatusAccessDenied {
		t.Errorf("Expected ACCESS_DENIED, got %s", s)
	}

	// DOS error: class 1, code 5
	dos := buildFrame(t, Header{Flags: FlagReply}, testMember{cmd: CmdEcho})
	dos[OffsetStatus] = 1
	binary.LittleEndian.PutUint16(dos[OffsetDOSCode:], 5)
	s := PullStatus(dos)
	if !s.IsDOS() || !s.IsError() || s != common.DOSStatus(1, 5) {
		t.Errorf("Expected DOS(1,5), got %s", s)
	}

	// DOS class 0 is success, whatever the code says
	binary.LittleEndian.PutUint16(dos[OffsetDOSCode:], 7)
	dos[OffsetStatus] = 0
	if s := PullStatus(dos); !s.IsOK() {
		t.Errorf("Expected OK, got %s", s)
	}
}

// oplockBreakFrame builds an unsolicited oplock break for file fnum
func oplockBreakFrame(t *testing.T, fnum uint16, level uint8) []byte {
	words := []uint16{0xFF, 0, fnum, uint16(level)<<8 | uint16(LockingOplockRelease), 0, 0, 0, 0}
	return buildFrame(t, Header{Mid: 0xFFFF}, testMember{cmd: CmdLockingX, words: words})
}

// TestIsOplockBreak tests the structural checks for unsolicited notifications
func TestIsOplockBreak(t *testing.T) {
	good := oplockBreakFrame(t, 0x4711, 1)
	if !IsOplockBreak(good) {
		t.Fatalf("Expected a valid oplock break (length %d)", Length(good))
	}

	tests := []struct {
		name   string
		mutate func(b []byte) []byte
	}{
		{"reply flag", func(b []byte) []byte { b[OffsetFlags] |= FlagReply; return b }},
		{"wrong command", func(b []byte) []byte { b[OffsetCommand] = CmdReadX; return b }},
		{"locks present", func(b []byte) []byte { binary.LittleEndian.PutUint16(b[OffsetVwv+14:], 1); return b }},
		{"unlocks present", func(b []byte) []byte { binary.LittleEndian.PutUint16(b[OffsetVwv+12:], 1); return b }},
		{"payload", func(b []byte) []byte {
			b = append(b, 0)
			_ = SetLength(b)
			return b
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsOplockBreak(tt.mutate(append([]byte(nil), good...))) {
				t.Errorf("Frame must not pass as an oplock break")
			}
		})
	}
}

// TestInbufCopy tests that copies of a shared frame are independent
func TestInbufCopy(t *testing.T) {
	buf := buildFrame(t, replyHeader(9, common.StatusOK), testMember{cmd: CmdEcho, payload: []byte("x")})
	in := NewInbuf(buf)
	c := in.Copy()
	c[len(c)-1] = 'y'
	reply, _ := ParseMember(in, 0, 0)
	if !bytes.Equal(reply.Bytes, []byte("x")) {
		t.Errorf("Copy aliases the shared buffer")
	}
	if h, err := in.Header(); err != nil || h.Mid != 9 {
		t.Errorf("Expected mid 9, got %d (%v)", h.Mid, err)
	}
}
