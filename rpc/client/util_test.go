package client

import (
	"github.com/ValentinKolb/andx/rpc/common"
	"github.com/ValentinKolb/andx/rpc/transport"
	"github.com/ValentinKolb/andx/rpc/wire"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testTimeout = 2 * time.Second

// --------------------------------------------------------------------------
// Fake transport
// --------------------------------------------------------------------------

// fakeTransport hands written frames to the test and delivers whatever the
// test pushes into incoming or readErrs to the outstanding read
type fakeTransport struct {
	written   chan []byte
	incoming  chan []byte
	readErrs  chan error
	closed    chan struct{}
	closeOnce sync.Once

	// readers counts reads blocked in ReadFrame
	readers atomic.Int32

	mu       sync.Mutex
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		written:  make(chan []byte, 64),
		incoming: make(chan []byte),
		readErrs: make(chan error),
		closed:   make(chan struct{}),
	}
}

func (f *fakeTransport) WriteFrame(buf []byte) error {
	f.mu.Lock()
	err := f.writeErr
	f.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-f.closed:
		return transport.ErrClosed
	default:
	}

	out := make([]byte, len(buf))
	copy(out, buf)
	f.written <- out
	return nil
}

func (f *fakeTransport) ReadFrame(cancel <-chan struct{}) ([]byte, error) {
	f.readers.Add(1)
	defer f.readers.Add(-1)

	select {
	case buf := <-f.incoming:
		return buf, nil
	case err := <-f.readErrs:
		return nil, err
	case <-cancel:
		return nil, transport.ErrReadCancelled
	case <-f.closed:
		return nil, transport.ErrClosed
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) failWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// nextWritten returns the next frame the connection wrote
func (f *fakeTransport) nextWritten(t *testing.T) []byte {
	t.Helper()
	select {
	case buf := <-f.written:
		return buf
	case <-time.After(testTimeout):
		t.Fatalf("No frame written")
		return nil
	}
}

// deliver hands buf to the outstanding read
func (f *fakeTransport) deliver(t *testing.T, buf []byte) {
	t.Helper()
	select {
	case f.incoming <- buf:
	case <-time.After(testTimeout):
		t.Fatalf("No read outstanding to deliver the frame to")
	}
}

// fail makes the outstanding read return err
func (f *fakeTransport) fail(t *testing.T, err error) {
	t.Helper()
	select {
	case f.readErrs <- err:
	case <-time.After(testTimeout):
		t.Fatalf("No read outstanding to fail")
	}
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// replyMember describes one member of a reply frame
type replyMember struct {
	cmd     uint8
	words   []uint16
	payload []byte
}

// buildReply builds a reply frame for mid with the given status and members
func buildReply(t *testing.T, mid uint16, status common.Status, members ...replyMember) []byte {
	t.Helper()
	b := wire.NewBuilder(wire.Header{
		Status: status,
		Flags:  wire.FlagReply,
		Flags2: wire.Flags2NTStatus,
		Mid:    mid,
	})
	for i, m := range members {
		if err := b.Splice(m.cmd, m.words, 0, m.payload); err != nil {
			t.Fatalf("Failed to splice reply member %d: %v", i, err)
		}
	}
	buf := b.Bytes()
	if err := wire.SetLength(buf); err != nil {
		t.Fatalf("Failed to set length: %v", err)
	}
	return buf
}

// oplockBreak builds an unsolicited oplock break for file fnum
func oplockBreak(t *testing.T, fnum uint16, level uint8, flags uint8) []byte {
	t.Helper()
	words := []uint16{0xFF, 0, fnum, uint16(level)<<8 | uint16(wire.LockingOplockRelease), 0, 0, 0, 0}
	b := wire.NewBuilder(wire.Header{Flags: flags, Mid: OplockBreakMid})
	if err := b.Splice(wire.CmdLockingX, words, 0, nil); err != nil {
		t.Fatalf("Failed to build oplock break: %v", err)
	}
	buf := b.Bytes()
	if err := wire.SetLength(buf); err != nil {
		t.Fatalf("Failed to set length: %v", err)
	}
	return buf
}

// testConnection creates a connection on a fake transport
func testConnection(t *testing.T, opts ...Option) (*Connection, *fakeTransport) {
	t.Helper()
	return testConnectionWith(t, common.DefaultClientConfig(), opts...)
}

func testConnectionWith(t *testing.T, cfg common.ClientConfig, opts ...Option) (*Connection, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	c := NewConnection(ft, cfg, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c, ft
}

// waitDone waits for r to complete
func waitDone(t *testing.T, r *Request) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(testTimeout):
		t.Fatalf("Request mid %d did not complete", r.head.mid)
	}
}

// assertPending asserts that r has not completed yet
func assertPending(t *testing.T, r *Request) {
	t.Helper()
	select {
	case <-r.Done():
		t.Fatalf("Request completed unexpectedly: %v", r.err)
	default:
	}
}

// eventually polls cond until it holds or the test times out
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
