package client

import (
	"errors"
	"github.com/ValentinKolb/andx/rpc/common"
	"github.com/ValentinKolb/andx/rpc/transport"
	"github.com/ValentinKolb/andx/rpc/wire"
)

// --------------------------------------------------------------------------
// Response Demultiplexer
// --------------------------------------------------------------------------

// read is the default read starter: one goroutine per outstanding read,
// reporting back through readCompleted
func (c *Connection) read(op *readOp) error {
	go func() {
		buf, err := c.transport.ReadFrame(op.cancel)
		c.readCompleted(op, buf, err)
	}()
	return nil
}

// readCompleted is the only place replies resolve pending requests
func (c *Connection) readCompleted(op *readOp, buf []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.pending.readCompleted(op)

	if err != nil {
		switch {
		case errors.Is(err, transport.ErrReadCancelled):
			// released read, nothing to do
		case !current:
			plog.Debugf("released read %d failed: %v", op.id, err)
		default:
			c.failAll(common.NewError(common.KindNetwork, common.StatusConnectionDisconnected, err))
		}
		return
	}

	c.metrics.framesReceived.Inc()
	c.dispatch(buf)

	if err := c.pending.ensureRead(); err != nil {
		c.failAll(err)
	}
}

// dispatch routes one received frame to the request waiting for it.
// Frames nobody waits for are dropped; damage to the stream itself fails
// every pending request.
func (c *Connection) dispatch(buf []byte) {
	if wire.IsEncrypted(buf) {
		if c.encryptor == nil {
			plog.Warningf("dropping encrypted frame on a plain connection")
			c.metrics.framesDiscarded.Inc()
			return
		}
		plain, err := c.encryptor.Decrypt(buf)
		if err != nil {
			c.failAll(err)
			return
		}
		buf = plain
	}

	if len(buf) < wire.MinFrameSize || !wire.HasProtocolMagic(buf) {
		c.failAll(common.Errorf(common.KindProtocol, common.StatusInvalidNetworkResponse,
			"invalid frame of %d bytes", len(buf)))
		return
	}

	mid := wire.Mid(buf)
	r, ok := c.pending.lookup(mid)
	if !ok {
		plog.Debugf("dropping frame for unknown mid %d (command 0x%02x)", mid, buf[wire.OffsetCommand])
		c.metrics.framesDiscarded.Inc()
		return
	}

	if mid == OplockBreakMid {
		// notifications are never signed
		if r.kind != kindNotification || !wire.IsOplockBreak(buf) {
			plog.Debugf("dropping malformed oplock break of %d bytes", len(buf))
			c.metrics.framesDiscarded.Inc()
			return
		}
	} else if !c.signer.Verify(buf, r.seq+1) {
		plog.Warningf("dropping reply for mid %d with bad signature", mid)
		c.metrics.signatureFailures.Inc()
		c.metrics.framesDiscarded.Inc()
		return
	}

	c.pending.remove(r)
	c.completeChain(r, wire.NewInbuf(buf), nil)
}
