package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/andx/rpc/common"
	"github.com/ValentinKolb/andx/rpc/wire"
)

// ErrNotCompleted is returned by Result before the request reached a
// terminal state
var ErrNotCompleted = errors.New("client: request not completed")

// requestState is the lifecycle state of a request. Signing and encryption
// happen inside Submit and have no state of their own.
type requestState uint8

const (
	stateCreated  requestState = iota // built, not submitted
	stateSending                      // signed and queued for the writer
	stateAwaiting                     // written, waiting for the reply
	stateDone                         // terminal
)

func (s requestState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateSending:
		return "sending"
	case stateAwaiting:
		return "awaiting"
	case stateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// requestKind separates requests that go on the wire from registrations
// that only give unsolicited notifications a lookup target
type requestKind uint8

const (
	kindWire requestKind = iota
	kindNotification
)

// Request is the handle of one submitted operation. For a chain, every
// member has its own Request; the first member is the head and is the one
// registered in the pending table.
//
// State fields are guarded by the owning connection's mutex. After Done()
// is closed they are immutable.
type Request struct {
	conn *Connection
	kind requestKind
	msg  *wire.Message // nil for notifications

	mid    uint16
	pinned bool
	oneway bool   // no reply is expected
	seq    uint32 // signing sequence number of the request

	head     *Request   // chain head, the request itself when unchained
	chain    []*Request // all members, only set on the head
	chainNum int        // position in the chain

	state requestState
	inbuf *wire.Inbuf // shared with all chain members
	err   error
	done  chan struct{}
}

func newRequest(c *Connection, kind requestKind, msg *wire.Message) *Request {
	r := &Request{
		conn: c,
		kind: kind,
		msg:  msg,
		done: make(chan struct{}),
	}
	r.head = r
	r.chain = []*Request{r}
	return r
}

// Mid returns the transaction id. It is assigned by Submit unless pinned.
func (r *Request) Mid() uint16 {
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()
	return r.head.mid
}

// SetMid pins the transaction id. Secondary requests of a multi-part
// transaction use this to reuse the id of the primary request.
func (r *Request) SetMid(mid uint16) error {
	if mid == 0 || mid == OplockBreakMid {
		return fmt.Errorf("transaction id %d is reserved", mid)
	}

	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()

	if r.state != stateCreated || r.kind != kindWire {
		return fmt.Errorf("transaction id can only be pinned before submit")
	}
	r.mid = mid
	r.pinned = true
	return nil
}

// Done returns a channel that is closed when the request reached its
// terminal state
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request completed or ctx is done. It only returns
// ctx.Err(); the outcome of the request is reported by Result. The request
// stays pending when ctx is done first.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns this member's part of the reply. A member with fewer than
// minWct words is a protocol error. For a request without a reply, Result
// returns nil and no error.
func (r *Request) Result(minWct int) (*wire.Reply, error) {
	select {
	case <-r.done:
	default:
		return nil, ErrNotCompleted
	}

	if r.err != nil {
		return nil, r.err
	}
	if r.inbuf == nil {
		return nil, nil
	}
	return wire.ParseMember(r.inbuf, r.chainNum, minWct)
}

// Frame returns a copy of the raw reply frame, or nil if there is none
func (r *Request) Frame() []byte {
	select {
	case <-r.done:
	default:
		return nil
	}
	if r.inbuf == nil {
		return nil
	}
	return r.inbuf.Copy()
}

// Cancel forgets about the request. A request waiting for its reply is
// deregistered and completes with a cancelled error; bytes already handed
// to the transport are not recalled. Cancelling any member of a chain
// cancels the whole chain. Cancel on a completed request does nothing.
func (r *Request) Cancel() {
	c := r.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	head := r.head
	if head.state == stateDone {
		return
	}

	if c.pending.remove(head) {
		plog.Debugf("cancelled mid %d while %s", head.mid, head.state)
	}
	c.completeChain(head, nil, common.NewError(common.KindCancelled, common.StatusCancelled, nil))
}

// --------------------------------------------------------------------------
// Completion (connection mutex held)
// --------------------------------------------------------------------------

// complete moves r into its terminal state
func (r *Request) complete(inbuf *wire.Inbuf, err error) {
	if r.state == stateDone {
		return
	}
	r.state = stateDone
	r.inbuf = inbuf
	r.err = err
	close(r.done)
}
