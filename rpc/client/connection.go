package client

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/andx/lib/util"
	"github.com/ValentinKolb/andx/rpc/common"
	"github.com/ValentinKolb/andx/rpc/security"
	"github.com/ValentinKolb/andx/rpc/transport"
	"github.com/ValentinKolb/andx/rpc/wire"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"sync"
	"sync/atomic"
)

var plog = logger.GetLogger(common.LoggerClient)

// outgoing is one signed (and possibly encrypted) frame in the write queue
type outgoing struct {
	head *Request
	buf  []byte
}

// Connection multiplexes concurrent requests over one frame transport.
// Requests are matched to replies by transaction id only, so replies may
// arrive in any order.
//
// A mutex serializes every state transition of the connection: submits,
// write completions, read completions and cancellations.
type Connection struct {
	transport transport.IFrameTransport
	config    common.ClientConfig
	signer    security.ISigner
	encryptor security.IEncryptor // nil unless the connection is encrypted

	mu      sync.Mutex
	pending *pendingTable
	closed  bool

	writes       *util.MPSCQueue[outgoing]
	queuedWrites atomic.Int64 // frames queued or being written
	writerDone   chan struct{}

	// startRead runs op against the transport, replaced in tests
	startRead func(op *readOp) error

	metrics *connMetrics
}

// Option configures a Connection
type Option func(c *Connection)

// WithSigner signs every request and verifies every reply with s
func WithSigner(s security.ISigner) Option {
	return func(c *Connection) {
		c.signer = s
	}
}

// WithEncryptor wraps every frame with e and unwraps encrypted replies
func WithEncryptor(e security.IEncryptor) Option {
	return func(c *Connection) {
		c.encryptor = e
	}
}

// NewConnection starts a multiplexer on t. Header values of new requests
// and the transaction id range are taken from cfg. Unset range bounds take
// their defaults; a range that is still invalid is replaced by the default
// range.
func NewConnection(t transport.IFrameTransport, cfg common.ClientConfig, opts ...Option) *Connection {
	if cfg.MinMid == 0 {
		cfg.MinMid = common.DefaultMinMid
	}
	if cfg.MaxMid == 0 || cfg.MaxMid == OplockBreakMid {
		cfg.MaxMid = common.DefaultMaxMid
	}
	if err := cfg.ValidateMidRange(); err != nil {
		plog.Warningf("%v, using [%d, %d]", err, common.DefaultMinMid, common.DefaultMaxMid)
		cfg.MinMid = common.DefaultMinMid
		cfg.MaxMid = common.DefaultMaxMid
	}

	c := &Connection{
		transport:  t,
		config:     cfg,
		signer:     security.NewNoSigner(),
		writes:     util.NewMPSCQueue[outgoing](),
		writerDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.startRead = c.read
	c.pending = newPendingTable(cfg.MinMid, cfg.MaxMid,
		func(op *readOp) error {
			if err := c.startRead(op); err != nil {
				return err
			}
			c.metrics.readsIssued.Inc()
			return nil
		},
		func(op *readOp) {
			c.metrics.readsReleased.Inc()
		},
	)
	c.metrics = newConnMetrics(c)

	go c.writer()
	return c
}

// --------------------------------------------------------------------------
// Request creation
// --------------------------------------------------------------------------

// NewRequest creates a request with the connection's header values. flags
// is or'ed into the configured header flags.
func (c *Connection) NewRequest(cmd, flags uint8, words []uint16, payload []byte) *Request {
	h := wire.Header{
		Flags:  c.config.Header.Flags,
		Flags2: c.config.Header.Flags2,
		Pid:    c.config.Header.Pid,
		Uid:    c.config.Header.Uid,
		Tid:    c.config.Header.Tid,
	}
	return newRequest(c, kindWire, wire.NewMessage(h, cmd, flags, words, payload))
}

// --------------------------------------------------------------------------
// Submit
// --------------------------------------------------------------------------

// Submit sends a single request. It does not block on the transport: the
// frame is queued for the writer goroutine and the request completes when
// its reply arrives. If a valid request can not be queued it is completed
// with the returned error.
func (c *Connection) Submit(r *Request) error {
	return c.SubmitChain(r)
}

// SubmitChain sends reqs as one chained frame. Every member but the last
// must be chain-capable with at least two words. The chain completes as a
// whole; each member reads its own part of the shared reply.
func (c *Connection) SubmitChain(reqs ...*Request) error {
	if len(reqs) == 0 {
		return fmt.Errorf("%w: empty chain", wire.ErrInvalidChain)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkSubmittable(reqs); err != nil {
		return err
	}

	head := reqs[0]
	head.chain = reqs
	for i, r := range reqs {
		r.head = head
		r.chainNum = i
	}

	err := c.send(head)
	if err != nil {
		c.completeChain(head, nil, err)
	}
	return err
}

// checkSubmittable validates a chain before anything is changed
func (c *Connection) checkSubmittable(reqs []*Request) error {
	for i, r := range reqs {
		switch {
		case r == nil:
			return fmt.Errorf("request %d is nil", i)
		case r.conn != c:
			return fmt.Errorf("request %d belongs to another connection", i)
		case r.kind != kindWire:
			return fmt.Errorf("request %d is not sendable", i)
		case r.state != stateCreated:
			return fmt.Errorf("request %d already %s", i, r.state)
		case i > 0 && r.pinned:
			return fmt.Errorf("request %d: only the first member may pin a transaction id", i)
		}
		for _, o := range reqs[:i] {
			if o == r {
				return fmt.Errorf("request %d appears twice in the chain", i)
			}
		}
	}
	return nil
}

// send encodes, numbers, signs and queues the chain of head
func (c *Connection) send(head *Request) error {
	if c.closed {
		return common.Errorf(common.KindNetwork, common.StatusConnectionDisconnected, "connection closed")
	}

	msgs := make([]*wire.Message, len(head.chain))
	oneway := true
	for i, r := range head.chain {
		msgs[i] = r.msg
		if r.msg.ExpectsReply() {
			oneway = false
		}
	}

	buf, err := wire.EncodeChain(msgs...)
	if err != nil {
		if wire.IsChainError(err) {
			return common.NewError(common.KindProtocol, common.StatusInvalidParameter, err)
		}
		return common.NewError(common.KindOutOfMemory, common.StatusInvalidParameter, err)
	}

	if !head.pinned {
		mid, err := c.pending.allocateMid()
		if err != nil {
			return err
		}
		head.mid = mid
	}
	head.oneway = oneway

	wire.SetMid(buf, head.mid)
	if err := wire.SetLength(buf); err != nil {
		return common.NewError(common.KindOutOfMemory, common.StatusInvalidParameter, err)
	}

	// register before the frame is signed, so a taken transaction id fails
	// without consuming sequence numbers, and before it can reach the peer,
	// so a fast reply finds its request
	if !oneway {
		if err := c.pending.insert(head); err != nil {
			return err
		}
	}

	seq, err := c.signer.Sign(buf, oneway)
	if err != nil {
		c.pending.remove(head)
		return common.NewError(common.KindSecurity, common.StatusAccessDenied, err)
	}
	head.seq = seq

	if c.encryptor != nil {
		if buf, err = c.encryptor.Encrypt(buf); err != nil {
			c.signer.Revert(seq, oneway)
			c.pending.remove(head)
			return common.NewError(common.KindSecurity, common.StatusAccessDenied, err)
		}
	}

	for _, r := range head.chain {
		r.state = stateSending
	}

	c.queuedWrites.Add(1)
	if !c.writes.Push(&outgoing{head: head, buf: buf}) {
		c.queuedWrites.Add(-1)
		c.signer.Revert(seq, oneway)
		c.pending.remove(head)
		return common.Errorf(common.KindNetwork, common.StatusConnectionDisconnected, "write queue closed")
	}

	plog.Debugf("queued mid %d (%d members, %d bytes, seq %d)", head.mid, len(head.chain), len(buf), seq)
	return nil
}

// --------------------------------------------------------------------------
// Convenience
// --------------------------------------------------------------------------

// Call submits r and waits for its result. When ctx is done first the
// request is cancelled and the cancelled error is returned.
func (c *Connection) Call(ctx context.Context, r *Request, minWct int) (*wire.Reply, error) {
	if err := c.Submit(r); err != nil {
		return nil, err
	}

	select {
	case <-r.Done():
	case <-ctx.Done():
		r.Cancel()
		<-r.Done()
	}
	return r.Result(minWct)
}

// HasInFlightWork reports whether a frame is queued for writing or any
// request is pending. Callers use it to decide whether tearing the
// connection down would lose work.
func (c *Connection) HasInFlightWork() bool {
	return c.queuedWrites.Load() > 0 || c.pending.size() > 0
}

// WriteMetrics writes the connection's counters in Prometheus text format
func (c *Connection) WriteMetrics(w io.Writer) {
	c.metrics.set.WritePrometheus(w)
}

// Close fails all pending requests with a network error, stops the writer
// and closes the transport
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.failAll(common.Errorf(common.KindNetwork, common.StatusConnectionDisconnected, "connection closed"))
	c.mu.Unlock()

	c.writes.Close()
	err := c.transport.Close()
	<-c.writerDone
	return err
}

// --------------------------------------------------------------------------
// Writer
// --------------------------------------------------------------------------

// writer writes queued frames in order until the queue is closed
func (c *Connection) writer() {
	defer close(c.writerDone)

	for out := range c.writes.Recv() {
		err := c.transport.WriteFrame(out.buf)
		c.writeCompleted(out.head, err)
	}
}

// writeCompleted advances the chain of head after its frame was written
func (c *Connection) writeCompleted(head *Request, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.queuedWrites.Add(-1)

	if head.state == stateDone {
		// answered, cancelled or failed while in the queue
		return
	}

	if err != nil {
		plog.Warningf("write of mid %d failed: %v", head.mid, err)
		c.pending.remove(head)
		c.completeChain(head, nil, common.NewError(common.KindNetwork, common.StatusConnectionDisconnected, err))
		return
	}

	if head.oneway {
		// no reply will come
		c.completeChain(head, nil, nil)
		return
	}

	for _, r := range head.chain {
		if r.state == stateSending {
			r.state = stateAwaiting
		}
	}
}

// --------------------------------------------------------------------------
// Completion helpers (connection mutex held)
// --------------------------------------------------------------------------

// completeChain completes every member of head's chain with the same
// buffer and error
func (c *Connection) completeChain(head *Request, inbuf *wire.Inbuf, err error) {
	if head.state == stateDone {
		return
	}
	if err != nil {
		c.metrics.requestsFailed.Add(len(head.chain))
	} else {
		c.metrics.requestsCompleted.Add(len(head.chain))
	}
	for _, r := range head.chain {
		r.complete(inbuf, err)
	}
}

// failAll completes every pending request with err
func (c *Connection) failAll(err error) {
	reqs := c.pending.drain()
	if len(reqs) > 0 {
		plog.Warningf("failing %d pending requests: %v", len(reqs), err)
	}
	for _, r := range reqs {
		c.completeChain(r, nil, err)
	}
}
