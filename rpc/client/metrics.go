package client

import (
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"sync/atomic"
)

var connIDs atomic.Uint64

// connMetrics holds the counters of one connection in its own metrics set,
// exported with Connection.WriteMetrics
type connMetrics struct {
	set *metrics.Set

	readsIssued       *metrics.Counter
	readsReleased     *metrics.Counter
	framesReceived    *metrics.Counter
	framesDiscarded   *metrics.Counter
	signatureFailures *metrics.Counter
	requestsCompleted *metrics.Counter
	requestsFailed    *metrics.Counter
}

func newConnMetrics(c *Connection) *connMetrics {
	id := connIDs.Add(1)
	set := metrics.NewSet()

	name := func(metric string) string {
		return fmt.Sprintf(`andx_client_%s{conn="%d"}`, metric, id)
	}

	m := &connMetrics{
		set:               set,
		readsIssued:       set.NewCounter(name("reads_issued_total")),
		readsReleased:     set.NewCounter(name("reads_released_total")),
		framesReceived:    set.NewCounter(name("frames_received_total")),
		framesDiscarded:   set.NewCounter(name("frames_discarded_total")),
		signatureFailures: set.NewCounter(name("signature_failures_total")),
		requestsCompleted: set.NewCounter(name("requests_completed_total")),
		requestsFailed:    set.NewCounter(name("requests_failed_total")),
	}

	set.NewGauge(name("pending_requests"), func() float64 {
		return float64(c.pending.size())
	})
	set.NewGauge(name("queued_writes"), func() float64 {
		return float64(c.queuedWrites.Load())
	})
	set.NewGauge(name("write_queue_length"), func() float64 {
		return float64(c.writes.Len())
	})

	return m
}
