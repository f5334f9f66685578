package metrics

import (
	"net/http"
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64

	transmissionsAccepted uint64
	transmissionsRejected uint64
	transmissionsTerminal uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= http.StatusInternalServerError {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == http.StatusTooManyRequests {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// ObserveTransmission counts authority outcomes. terminal marks a rejection
// that exhausted the retry budget.
func (c *Collector) ObserveTransmission(status string, terminal bool) {
	switch status {
	case "accepted":
		atomic.AddUint64(&c.transmissionsAccepted, 1)
	case "rejected":
		atomic.AddUint64(&c.transmissionsRejected, 1)
	}
	if terminal {
		atomic.AddUint64(&c.transmissionsTerminal, 1)
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
		"requestsTotal":              total,
		"errorsTotal":                atomic.LoadUint64(&c.errorRequests),
		"rateLimitedTotal":           atomic.LoadUint64(&c.rateLimited),
		"avgDurationMs":              avg,
		"totalDurationMs":            totalMs,
		"transmissionsAcceptedTotal": atomic.LoadUint64(&c.transmissionsAccepted),
		"transmissionsRejectedTotal": atomic.LoadUint64(&c.transmissionsRejected),
		"transmissionsTerminalTotal": atomic.LoadUint64(&c.transmissionsTerminal),
	}
}
