package client

import (
	"context"
	"github.com/ValentinKolb/andx/rpc/common"
)

// oplockBreakMinWct is the word count of an oplock break notification
const oplockBreakMinWct = 8

// OplockBreakWaiter receives the next unsolicited oplock break of a
// connection. It is registered under the reserved transaction id and is
// never sent.
type OplockBreakWaiter struct {
	req *Request
}

// WaitOplockBreak registers a waiter for the next oplock break. Only one
// waiter can be registered at a time.
func (c *Connection) WaitOplockBreak() (*OplockBreakWaiter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, common.Errorf(common.KindNetwork, common.StatusConnectionDisconnected, "connection closed")
	}

	r := newRequest(c, kindNotification, nil)
	r.mid = OplockBreakMid
	r.pinned = true

	if err := c.pending.insert(r); err != nil {
		return nil, err
	}
	r.state = stateAwaiting
	return &OplockBreakWaiter{req: r}, nil
}

// Done returns a channel that is closed when a break arrived or the waiter
// failed
func (w *OplockBreakWaiter) Done() <-chan struct{} {
	return w.req.Done()
}

// Wait blocks until a break arrives and returns the file id and the oplock
// level the server breaks to. The waiter stays registered when ctx is done
// first.
func (w *OplockBreakWaiter) Wait(ctx context.Context) (fnum uint16, level uint8, err error) {
	if err := w.req.Wait(ctx); err != nil {
		return 0, 0, err
	}
	return w.Result()
}

// Result returns the file id and new oplock level of a received break
func (w *OplockBreakWaiter) Result() (fnum uint16, level uint8, err error) {
	reply, err := w.req.Result(oplockBreakMinWct)
	if err != nil {
		return 0, 0, err
	}
	return reply.Word(2), uint8(reply.Word(3) >> 8), nil
}

// Cancel deregisters the waiter
func (w *OplockBreakWaiter) Cancel() {
	w.req.Cancel()
}
