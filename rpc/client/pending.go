package client

import (
	"fmt"
	"github.com/ValentinKolb/andx/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// OplockBreakMid is the transaction id unsolicited oplock break
// notifications arrive with. It is never assigned to a request.
const OplockBreakMid uint16 = 0xFFFF

// --------------------------------------------------------------------------
// Outstanding read
// --------------------------------------------------------------------------

// readOp is one outstanding read against the transport. Closing cancel
// releases it; a released read that still returns a frame is dispatched
// like any other.
type readOp struct {
	id     uint64
	cancel chan struct{}
}

// --------------------------------------------------------------------------
// Pending Request Table
// --------------------------------------------------------------------------

// pendingTable holds the requests of a connection that wait for a reply,
// keyed by transaction id. Chained requests are represented by their head.
//
// Exactly one read is outstanding while the table is non-empty and none
// while it is empty: the read is issued on the transition to one entry and
// released on the transition to zero. All methods must be called with the
// connection mutex held; the map itself may be read without it.
type pendingTable struct {
	entries *xsync.MapOf[uint16, *Request]

	minMid  uint16
	maxMid  uint16
	nextMid uint16

	read    *readOp
	readIDs uint64

	// issue starts op against the transport; release abandons it
	issue   func(op *readOp) error
	release func(op *readOp)
}

func newPendingTable(minMid, maxMid uint16, issue func(op *readOp) error, release func(op *readOp)) *pendingTable {
	return &pendingTable{
		entries: xsync.NewMapOf[uint16, *Request](),
		minMid:  minMid,
		maxMid:  maxMid,
		nextMid: minMid,
		issue:   issue,
		release: release,
	}
}

// allocateMid returns a transaction id in [minMid, maxMid] that no entry
// uses. Ids are handed out round-robin so a recently freed id, whose late
// reply may still be on the wire, is not reused right away. 0 and
// OplockBreakMid are never returned.
func (t *pendingTable) allocateMid() (uint16, error) {
	span := 1 << 16
	if t.minMid <= t.maxMid {
		span = int(t.maxMid) - int(t.minMid) + 1
	}

	for i := 0; i < span; i++ {
		mid := t.nextMid
		if t.nextMid == t.maxMid {
			t.nextMid = t.minMid
		} else {
			t.nextMid++
		}

		if mid == 0 || mid == OplockBreakMid {
			continue
		}
		if _, used := t.entries.Load(mid); !used {
			return mid, nil
		}
	}

	return 0, common.Errorf(common.KindOutOfMemory, common.StatusInsufficientResources,
		"all %d transaction ids in use", span)
}

// insert registers r under r.mid and issues the outstanding read if r is
// the first entry. If the read can not be issued r is removed again.
func (t *pendingTable) insert(r *Request) error {
	if _, loaded := t.entries.LoadOrStore(r.mid, r); loaded {
		return common.Errorf(common.KindProtocol, common.StatusInvalidParameter,
			"transaction id %d already pending", r.mid)
	}

	if t.read == nil {
		if err := t.issueRead(); err != nil {
			t.entries.Delete(r.mid)
			return err
		}
	}
	return nil
}

// remove deregisters r. It returns false if r is not the entry registered
// under its id. The outstanding read is released when the table empties.
func (t *pendingTable) remove(r *Request) bool {
	if cur, ok := t.entries.Load(r.mid); !ok || cur != r {
		return false
	}
	t.entries.Delete(r.mid)

	if t.entries.Size() == 0 {
		t.releaseRead()
	}
	return true
}

// lookup returns the entry registered under mid
func (t *pendingTable) lookup(mid uint16) (*Request, bool) {
	return t.entries.Load(mid)
}

// size returns the number of entries
func (t *pendingTable) size() int {
	return t.entries.Size()
}

// drain removes and returns all entries and releases the outstanding read
func (t *pendingTable) drain() []*Request {
	out := make([]*Request, 0, t.entries.Size())
	t.entries.Range(func(_ uint16, r *Request) bool {
		out = append(out, r)
		return true
	})
	t.entries.Clear()
	t.releaseRead()
	return out
}

// readCompleted marks op as finished. It returns false if op is not the
// current outstanding read, i.e. it was released before it completed.
func (t *pendingTable) readCompleted(op *readOp) bool {
	if t.read != op {
		return false
	}
	t.read = nil
	return true
}

// ensureRead issues a read if entries wait and none is outstanding
func (t *pendingTable) ensureRead() error {
	if t.entries.Size() == 0 || t.read != nil {
		return nil
	}
	return t.issueRead()
}

func (t *pendingTable) issueRead() error {
	t.readIDs++
	op := &readOp{id: t.readIDs, cancel: make(chan struct{})}
	if err := t.issue(op); err != nil {
		return common.NewError(common.KindOutOfMemory, common.StatusNoMemory,
			fmt.Errorf("failed to issue read: %w", err))
	}
	t.read = op
	return nil
}

func (t *pendingTable) releaseRead() {
	if t.read == nil {
		return
	}
	op := t.read
	t.read = nil
	close(op.cancel)
	t.release(op)
}
