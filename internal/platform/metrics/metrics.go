// Package metrics keeps cheap process-local request counters, exposed through
// the admin metrics endpoint. Everything is atomic; recording sits on the hot
// path of every request.
package metrics

import (
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	clientErrors    uint64
	serverErrors    uint64
	rateLimited     uint64
	totalDurationMs uint64
	maxDurationMs   uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	switch {
	case status == 429:
		atomic.AddUint64(&c.rateLimited, 1)
		atomic.AddUint64(&c.clientErrors, 1)
	case status >= 500:
		atomic.AddUint64(&c.serverErrors, 1)
	case status >= 400:
		atomic.AddUint64(&c.clientErrors, 1)
	}

	ms := uint64(duration.Milliseconds())
	atomic.AddUint64(&c.totalDurationMs, ms)
	for {
		current := atomic.LoadUint64(&c.maxDurationMs)
		if ms <= current || atomic.CompareAndSwapUint64(&c.maxDurationMs, current, ms) {
			break
		}
	}
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":    total,
		"clientErrors":     atomic.LoadUint64(&c.clientErrors),
		"serverErrors":     atomic.LoadUint64(&c.serverErrors),
		"rateLimitedTotal": atomic.LoadUint64(&c.rateLimited),
		"avgDurationMs":    avg,
		"maxDurationMs":    atomic.LoadUint64(&c.maxDurationMs),
	}
}
