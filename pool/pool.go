// Package pool implements a bounded, health-checked, timed connection pool
// over the driver.Driver abstraction, one pool per backend kind. It follows
// the teacher's concurrency idiom (a single mutex plus a broadcastable
// condition variable guarding a queue, background maintenance via
// periodic.Start) seen throughout icingadb/runtime_updates.go and
// redis/client.go's XReadUntilResult loop, generalized to connection
// lifecycle instead of event dispatch.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/kcenon/dbcore/com"
	"github.com/kcenon/dbcore/driver"
	"github.com/kcenon/dbcore/logging"
	"github.com/kcenon/dbcore/monitor"
	"github.com/kcenon/dbcore/periodic"
)

// Pool manages a bounded set of ConnectionWrapper instances for one backend
// kind, all opened via the same factory and connect string.
type Pool struct {
	kind    driver.DatabaseKind
	cfg     Config
	factory driver.Factory
	logger  *logging.Logger

	mu       sync.Mutex
	cond     *com.Cond
	idle     []*ConnectionWrapper
	active   int
	reserved int
	shutdown bool

	counters
	mon *monitor.Monitor

	cancel context.CancelFunc
	maint  periodic.Stopper
}

// SetMonitor attaches mon so Acquire and Release report a connection
// snapshot to it (C7). Passing nil disables reporting.
func (p *Pool) SetMonitor(mon *monitor.Monitor) {
	p.mu.Lock()
	p.mon = mon
	p.mu.Unlock()
}

// reportStats pushes a point-in-time connection snapshot to the attached
// monitor, if any.
func (p *Pool) reportStats() {
	p.mu.Lock()
	mon := p.mon
	active := p.active
	max := p.cfg.MaxConn
	p.mu.Unlock()

	if mon == nil {
		return
	}

	mon.RecordConnection(monitor.ConnectionMetric{
		PoolName: p.kind.String(),
		Total:    max,
		Active:   active,
	})
}

// New creates a Pool for kind, synchronously opening cfg.MinConn connections.
// If any of those fail, the pool reports init failure and no goroutines are
// left running.
func New(ctx context.Context, kind driver.DatabaseKind, cfg Config, factory driver.Factory, logger *logging.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid pool config")
	}

	poolCtx, cancel := context.WithCancel(ctx)

	p := &Pool{
		kind:    kind,
		cfg:     cfg,
		factory: factory,
		logger:  logger,
		cond:    com.NewCond(poolCtx),
		cancel:  cancel,
	}

	for i := 0; i < cfg.MinConn; i++ {
		w, err := p.connect(poolCtx)
		if err != nil {
			cancel()
			return nil, errors.Wrap(err, "pool initialization failed")
		}

		p.idle = append(p.idle, w)
		p.totalCreated.Add(1)
	}

	p.maint = periodic.Start(poolCtx, cfg.HealthCheckInterval, p.runMaintenance)

	return p, nil
}

func (p *Pool) connect(ctx context.Context) (*ConnectionWrapper, error) {
	d := p.factory(p.logger)
	if !d.Connect(ctx, p.cfg.ConnectString) {
		return nil, errors.Errorf("%s: connect failed", p.kind)
	}

	return &ConnectionWrapper{Driver: d, Healthy: true, LastUsed: time.Now()}, nil
}

// Acquire returns an idle wrapper, creates one if under capacity, or waits
// (bounded by cfg.AcquireTimeout) for a release. The bool is false on
// timeout or shutdown, in which case the returned wrapper is nil.
func (p *Pool) Acquire(ctx context.Context) (*ConnectionWrapper, bool) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	for {
		p.mu.Lock()

		if p.shutdown {
			p.mu.Unlock()
			p.failedAcq.Add(1)
			return nil, false
		}

		if n := len(p.idle); n > 0 {
			w := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.active++
			p.mu.Unlock()

			w.LastUsed = time.Now()
			p.successfulAcq.Add(1)
			p.reportStats()
			return w, true
		}

		if p.active+p.reserved < p.cfg.MaxConn {
			p.reserved++
			p.mu.Unlock()

			w, err := p.connect(acquireCtx)

			p.mu.Lock()
			p.reserved--
			if err != nil {
				p.mu.Unlock()
				p.logger.Warnw("Failed to create pooled connection", "kind", p.kind, "error", err)
				p.failedAcq.Add(1)
				return nil, false
			}

			p.active++
			p.mu.Unlock()

			p.totalCreated.Add(1)
			p.successfulAcq.Add(1)
			p.reportStats()
			return w, true
		}

		waitCh := p.cond.Wait()
		p.mu.Unlock()

		select {
		case <-waitCh:
			continue
		case <-acquireCtx.Done():
			p.failedAcq.Add(1)
			return nil, false
		case <-p.cond.Done():
			p.failedAcq.Add(1)
			return nil, false
		}
	}
}

// Release returns w to the pool. A wrapper reported unhealthy, or one that
// fails a synchronous probe, is dropped instead of being made available
// again. Release always clears the caller's borrow, even during shutdown.
func (p *Pool) Release(w *ConnectionWrapper) {
	healthy := w.Healthy && w.Driver.Kind() != driver.None

	p.mu.Lock()
	p.active--

	if p.shutdown || !healthy {
		p.mu.Unlock()
		w.Driver.Disconnect(context.Background())
		p.cond.Broadcast()
		p.reportStats()
		return
	}

	w.LastUsed = time.Now()
	p.idle = append(p.idle, w)
	p.mu.Unlock()

	p.cond.Broadcast()
	p.reportStats()
}

// Stats returns a point-in-time snapshot of the pool's counters and gauges.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	active, available := p.active, len(p.idle)
	p.mu.Unlock()

	return p.counters.snapshot(active, available)
}

// runMaintenance is the pool's periodic.Start callback: it health-checks
// idle wrappers (if enabled) and reclaims idle wrappers older than
// cfg.IdleTimeout, but never shrinks the pool below cfg.MinConn total
// connections (active + idle).
func (p *Pool) runMaintenance(periodic.Tick) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}

	now := time.Now()
	var healthy []*ConnectionWrapper
	var dropped []*ConnectionWrapper

	for _, w := range p.idle {
		if p.cfg.HealthChecksEnabled && w.Driver.Kind() == driver.None {
			w.Healthy = false
		}

		if !w.Healthy {
			dropped = append(dropped, w)
		} else {
			healthy = append(healthy, w)
		}
	}

	allowedDrops := p.active + len(healthy) - p.cfg.MinConn

	kept := healthy[:0:0]
	for _, w := range healthy {
		if allowedDrops > 0 && now.Sub(w.LastUsed) > p.cfg.IdleTimeout {
			allowedDrops--
			dropped = append(dropped, w)
			continue
		}

		kept = append(kept, w)
	}

	p.idle = kept
	p.lastHealthCheck.Store(now.UnixNano())
	p.mu.Unlock()

	for _, w := range dropped {
		w.Driver.Disconnect(context.Background())
	}

	if len(dropped) > 0 {
		p.cond.Broadcast()
	}
}

// Shutdown signals termination, wakes every waiter, stops the maintenance
// loop, and disconnects every idle wrapper. After Shutdown returns, no
// further Acquire call succeeds.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}

	p.shutdown = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	p.cond.Broadcast()

	if p.maint != nil {
		p.maint.Stop()
	}
	p.cancel()

	for _, w := range idle {
		w.Driver.Disconnect(context.Background())
	}
}
