package client

import (
	"errors"
	"github.com/ValentinKolb/andx/rpc/common"
	"math/rand"
	"testing"
)

// readCounter counts issued and released reads of a pending table
type readCounter struct {
	issued   int
	released int
	fail     bool
}

func (rc *readCounter) table(minMid, maxMid uint16) *pendingTable {
	return newPendingTable(minMid, maxMid,
		func(op *readOp) error {
			if rc.fail {
				return errors.New("no read for you")
			}
			rc.issued++
			return nil
		},
		func(op *readOp) {
			rc.released++
		},
	)
}

// tableRequest creates a detached request with the given mid
func tableRequest(mid uint16) *Request {
	r := newRequest(nil, kindWire, nil)
	r.mid = mid
	return r
}

// TestAllocateMidUnique tests that allocation never hands out an id in use,
// with random insert/remove patterns close to exhaustion of a small range
func TestAllocateMidUnique(t *testing.T) {
	rc := &readCounter{}
	table := rc.table(1, 8)
	rng := rand.New(rand.NewSource(1))

	live := make(map[uint16]*Request)

	for i := 0; i < 5000; i++ {
		if len(live) < 8 && (len(live) == 0 || rng.Intn(3) != 0) {
			mid, err := table.allocateMid()
			if err != nil {
				t.Fatalf("Step %d: allocation failed with %d live ids: %v", i, len(live), err)
			}
			if mid < 1 || mid > 8 {
				t.Fatalf("Step %d: mid %d out of range", i, mid)
			}
			if _, dup := live[mid]; dup {
				t.Fatalf("Step %d: mid %d allocated twice", i, mid)
			}
			r := tableRequest(mid)
			if err := table.insert(r); err != nil {
				t.Fatalf("Step %d: insert failed: %v", i, err)
			}
			live[mid] = r
		} else {
			for mid, r := range live {
				if !table.remove(r) {
					t.Fatalf("Step %d: remove of mid %d failed", i, mid)
				}
				delete(live, mid)
				break
			}
		}

		if table.size() != len(live) {
			t.Fatalf("Step %d: table has %d entries, expected %d", i, table.size(), len(live))
		}
	}
}

// TestAllocateMidExhausted tests that a full range is reported instead of looping
func TestAllocateMidExhausted(t *testing.T) {
	rc := &readCounter{}
	table := rc.table(10, 12)

	for mid := uint16(10); mid <= 12; mid++ {
		if err := table.insert(tableRequest(mid)); err != nil {
			t.Fatalf("Failed to insert %d: %v", mid, err)
		}
	}

	_, err := table.allocateMid()
	if !errors.Is(err, common.ErrOutOfMemory) {
		t.Fatalf("Expected out of memory error, got %v", err)
	}

	// freeing one id makes exactly that id available
	r, _ := table.lookup(11)
	table.remove(r)
	if mid, err := table.allocateMid(); err != nil || mid != 11 {
		t.Errorf("Expected mid 11, got %d (%v)", mid, err)
	}
}

// TestAllocateMidRoundRobin tests that a freed id is not reused right away
func TestAllocateMidRoundRobin(t *testing.T) {
	rc := &readCounter{}
	table := rc.table(1, 0xFFFE)

	first, _ := table.allocateMid()
	second, _ := table.allocateMid()
	if first != 1 || second != 2 {
		t.Errorf("Expected mids 1 and 2, got %d and %d", first, second)
	}

	// wrap around at the end of the range, never touching 0 or 0xFFFF
	table.nextMid = 0xFFFE
	if mid, _ := table.allocateMid(); mid != 0xFFFE {
		t.Errorf("Expected 0xFFFE, got 0x%04x", mid)
	}
	if mid, _ := table.allocateMid(); mid != 1 {
		t.Errorf("Expected wrap to 1, got %d", mid)
	}
}

// TestAllocateMidReserved tests that 0 and the oplock break id are never
// handed out, even when the range covers them
func TestAllocateMidReserved(t *testing.T) {
	ranges := []struct {
		name           string
		minMid, maxMid uint16
		usable         int
	}{
		{"Inverted", 0xFFFE, 2, 3},
		{"Full", 0, 0xFFFF, 0xFFFE},
		{"OnlyReserved", 0xFFFF, 0, 0},
	}

	for _, rg := range ranges {
		t.Run(rg.name, func(t *testing.T) {
			rc := &readCounter{}
			table := rc.table(rg.minMid, rg.maxMid)

			for i := 0; i < rg.usable; i++ {
				mid, err := table.allocateMid()
				if err != nil {
					t.Fatalf("Allocation %d failed: %v", i, err)
				}
				if mid == 0 || mid == OplockBreakMid {
					t.Fatalf("Allocation %d returned reserved id 0x%04x", i, mid)
				}
				if err := table.insert(tableRequest(mid)); err != nil {
					t.Fatalf("Allocation %d returned id 0x%04x twice: %v", i, mid, err)
				}
			}

			if mid, err := table.allocateMid(); !errors.Is(err, common.ErrOutOfMemory) {
				t.Errorf("Expected out of memory error once usable ids are taken, got 0x%04x (%v)", mid, err)
			}
		})
	}
}

// TestReadIssueRelease tests that reads are issued on 0->1 and released on 1->0 only
func TestReadIssueRelease(t *testing.T) {
	rc := &readCounter{}
	table := rc.table(1, 100)

	a, b, c := tableRequest(1), tableRequest(2), tableRequest(3)

	steps := []struct {
		name     string
		op       func() error
		issued   int
		released int
	}{
		{"insert a", func() error { return table.insert(a) }, 1, 0},
		{"insert b", func() error { return table.insert(b) }, 1, 0},
		{"remove a", func() error { table.remove(a); return nil }, 1, 0},
		{"remove a again", func() error { table.remove(a); return nil }, 1, 0},
		{"remove b", func() error { table.remove(b); return nil }, 1, 1},
		{"insert c", func() error { return table.insert(c) }, 2, 1},
		{"drain", func() error { table.drain(); return nil }, 2, 2},
	}

	for _, step := range steps {
		if err := step.op(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if rc.issued != step.issued || rc.released != step.released {
			t.Fatalf("%s: issued %d released %d, expected %d and %d",
				step.name, rc.issued, rc.released, step.issued, step.released)
		}
	}

	if table.read != nil {
		t.Errorf("Read outstanding on an empty table")
	}
}

// TestInsertRollback tests that a failing read issue removes the inserted request
func TestInsertRollback(t *testing.T) {
	rc := &readCounter{fail: true}
	table := rc.table(1, 100)

	err := table.insert(tableRequest(5))
	if !errors.Is(err, common.ErrOutOfMemory) {
		t.Fatalf("Expected out of memory error, got %v", err)
	}
	if _, ok := table.lookup(5); ok || table.size() != 0 {
		t.Errorf("Request still registered after failed insert")
	}
}

// TestInsertDuplicate tests that an id can only be registered once
func TestInsertDuplicate(t *testing.T) {
	rc := &readCounter{}
	table := rc.table(1, 100)

	first := tableRequest(7)
	if err := table.insert(first); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if err := table.insert(tableRequest(7)); err == nil {
		t.Errorf("Expected error for duplicate mid")
	}

	// removing a different request with the same id must not remove the entry
	if table.remove(tableRequest(7)) {
		t.Errorf("Removed an entry by id instead of identity")
	}
	if r, ok := table.lookup(7); !ok || r != first {
		t.Errorf("Original entry lost")
	}
}

// TestReadCompleted tests that only the current read is cleared
func TestReadCompleted(t *testing.T) {
	rc := &readCounter{}
	table := rc.table(1, 100)
	table.insert(tableRequest(1))

	current := table.read
	if table.readCompleted(&readOp{}) {
		t.Errorf("Foreign read reported as current")
	}
	if !table.readCompleted(current) || table.read != nil {
		t.Errorf("Current read not cleared")
	}

	// entries still wait, so a new read is issued
	if err := table.ensureRead(); err != nil || table.read == nil || rc.issued != 2 {
		t.Errorf("Expected a second read, issued %d (%v)", rc.issued, err)
	}
}
