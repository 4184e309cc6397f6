package pool

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of a Pool's counters and gauges.
// Invariant: Active + Available <= TotalCreated.
type Stats struct {
	TotalCreated           uint64
	SuccessfulAcquisitions uint64
	FailedAcquisitions     uint64
	Active                 int
	Available              int
	LastHealthCheck        time.Time
}

// counters holds the atomic fields backing Stats; counters only ever grow,
// matching the monotonic-counter contract.
type counters struct {
	totalCreated    atomic.Uint64
	successfulAcq   atomic.Uint64
	failedAcq       atomic.Uint64
	lastHealthCheck atomic.Int64 // UnixNano; zero means "never"
}

func (c *counters) snapshot(active, available int) Stats {
	var lastCheck time.Time
	if ns := c.lastHealthCheck.Load(); ns != 0 {
		lastCheck = time.Unix(0, ns)
	}

	return Stats{
		TotalCreated:           c.totalCreated.Load(),
		SuccessfulAcquisitions: c.successfulAcq.Load(),
		FailedAcquisitions:     c.failedAcq.Load(),
		Active:                 active,
		Available:              available,
		LastHealthCheck:        lastCheck,
	}
}
