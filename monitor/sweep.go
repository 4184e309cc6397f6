package monitor

import (
	"context"
	"time"

	"github.com/kcenon/dbcore/periodic"
)

// Start begins the retention sweeper, waking every sweepInterval (5 minutes
// by default) to purge query records older than the configured window. The
// sweep stops when ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context, sweepInterval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.sweeper = periodic.Start(ctx, sweepInterval, func(periodic.Tick) {
		m.purgeExpired()
	})
}

// DefaultSweepInterval is the monitor's default retention-sweep wakeup
// period.
const DefaultSweepInterval = 5 * time.Minute

// Stop halts the retention sweeper.
func (m *Monitor) Stop() {
	if m.sweeper != nil {
		m.sweeper.Stop()
	}
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Monitor) purgeExpired() {
	cutoff := time.Now().Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.queries[:0]
	for _, q := range m.queries {
		if q.Timestamp.After(cutoff) {
			kept = append(kept, q)
		}
	}
	m.queries = kept
}
