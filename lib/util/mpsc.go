package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// MPSCQueue is an unbounded multi-producer single-consumer queue. It is the
// write queue of a client connection: Submit pushes signed frames while it
// holds the connection mutex and a single writer goroutine drains Recv() in
// push order, so frames reach the socket in the order their sequence
// numbers were assigned.
//
// Push is wait-free. It swaps the tail and links the old tail to the new
// node, so a producer holding the connection mutex never blocks on the
// socket or spins on a contended CAS. The consumer may briefly see a tail
// whose predecessor is not linked yet and yields until the link appears.
//
// Len counts frames pushed but not yet handed to the writer. Close keeps
// every frame that was pushed successfully deliverable, so each of them
// still gets a write completion.
type MPSCQueue[T any] struct {
	head atomic.Pointer[node[T]] // consumer side, sentinel
	tail atomic.Pointer[node[T]] // producer side, last node

	out      chan *T
	consumer sync.WaitGroup

	closed  atomic.Bool
	pushing atomic.Int64 // producers between their closed check and the link
	queued  atomic.Int64 // pushed but not yet received

	// the consumer sleeps on cond while the list is empty
	mu   sync.Mutex
	cond *sync.Cond
}

type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// NewMPSCQueue creates a new queue and starts its consumer goroutine
func NewMPSCQueue[T any]() *MPSCQueue[T] {
	sentinel := &node[T]{}

	q := &MPSCQueue[T]{
		out: make(chan *T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push appends value. It returns false if value is nil or the queue is
// closed; a value for which Push returned true is always delivered.
func (q *MPSCQueue[T]) Push(value *T) bool {
	if value == nil {
		return false
	}

	// announce the push before looking at closed, the consumer only exits
	// when it sees closed with no push in progress
	q.pushing.Add(1)
	if q.closed.Load() {
		q.pushing.Add(-1)
		// the consumer may wait for this push to finish
		q.signal()
		return false
	}

	n := &node[T]{value: value}
	q.queued.Add(1)
	prev := q.tail.Swap(n)
	prev.next.Store(n)

	q.pushing.Add(-1)
	q.signal()
	return true
}

// signal wakes the consumer. The mutex is taken so the wakeup can not fall
// between the consumer's empty check and its Wait.
func (q *MPSCQueue[T]) signal() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// pop removes the oldest value. ok is false if the list is empty.
func (q *MPSCQueue[T]) pop() (value *T, ok bool) {
	for {
		head := q.head.Load()
		next := head.next.Load()
		if next != nil {
			q.head.Store(next)
			value, next.value = next.value, nil
			return value, true
		}
		if q.tail.Load() == head {
			return nil, false
		}
		// a producer swapped the tail but has not linked it yet
		runtime.Gosched()
	}
}

// done reports whether the consumer may exit
func (q *MPSCQueue[T]) done() bool {
	return q.closed.Load() && q.pushing.Load() == 0 && q.tail.Load() == q.head.Load()
}

// consume moves values from the list to the output channel until the queue
// is closed and drained
func (q *MPSCQueue[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		if value, ok := q.pop(); ok {
			q.out <- value
			q.queued.Add(-1)
			continue
		}

		q.mu.Lock()
		if q.done() {
			q.mu.Unlock()
			return
		}
		if q.tail.Load() == q.head.Load() {
			q.cond.Wait()
		}
		q.mu.Unlock()
	}
}

// Recv returns the channel the consumer delivers values on. It is closed
// after Close once every pushed value was received.
func (q *MPSCQueue[T]) Recv() <-chan *T {
	return q.out
}

// Close rejects further pushes. Values already pushed are still delivered.
func (q *MPSCQueue[T]) Close() {
	q.closed.Store(true)
	q.signal()
}

// IsClosed returns true if the queue is closed
func (q *MPSCQueue[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of values pushed but not yet received from Recv().
// A value a producer is still linking may already be counted.
func (q *MPSCQueue[T]) Len() int {
	return int(q.queued.Load())
}
