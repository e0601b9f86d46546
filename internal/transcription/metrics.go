package transcription

import (
	"sync/atomic"
	"time"
)

// counters are process-wide; the health endpoint reads a snapshot.
var counters struct {
	calls     atomic.Int64
	errors    atomic.Int64
	latencyNs atomic.Int64
	cacheHits atomic.Int64
	cancelled atomic.Int64
}

// Metrics is a point-in-time copy of the gateway counters.
type Metrics struct {
	calls     int64
	errors    int64
	latencyNs int64
	cacheHits int64
	cancelled int64
}

func GetMetrics() Metrics {
	return Metrics{
		calls:     counters.calls.Load(),
		errors:    counters.errors.Load(),
		latencyNs: counters.latencyNs.Load(),
		cacheHits: counters.cacheHits.Load(),
		cancelled: counters.cancelled.Load(),
	}
}

// ResetMetrics zeroes every counter. Tests only.
func ResetMetrics() {
	counters.calls.Store(0)
	counters.errors.Store(0)
	counters.latencyNs.Store(0)
	counters.cacheHits.Store(0)
	counters.cancelled.Store(0)
}

func recordUpstreamCall(d time.Duration, err error) {
	counters.calls.Add(1)
	counters.latencyNs.Add(d.Nanoseconds())
	if err != nil {
		counters.errors.Add(1)
	}
}

func recordCacheHit()      { counters.cacheHits.Add(1) }
func recordCancelledTask() { counters.cancelled.Add(1) }

func (m Metrics) UpstreamCalls() int64  { return m.calls }
func (m Metrics) UpstreamErrors() int64 { return m.errors }
func (m Metrics) CacheHits() int64      { return m.cacheHits }
func (m Metrics) CancelledTasks() int64 { return m.cancelled }

// AverageUpstreamLatency is in milliseconds.
func (m Metrics) AverageUpstreamLatency() float64 {
	if m.calls == 0 {
		return 0
	}
	return time.Duration(m.latencyNs / m.calls).Seconds() * 1000
}

// UpstreamErrorRate is a percentage of calls.
func (m Metrics) UpstreamErrorRate() float64 {
	if m.calls == 0 {
		return 0
	}
	return float64(m.errors) / float64(m.calls) * 100
}
