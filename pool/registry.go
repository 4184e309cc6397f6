package pool

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/kcenon/dbcore/driver"
	"github.com/kcenon/dbcore/logging"
	"github.com/kcenon/dbcore/monitor"
)

// Registry holds at most one Pool per DatabaseKind. It is independent of any
// particular active driver connection: the facade (C8) creates pools here
// without disturbing whatever driver it currently has set as active.
type Registry struct {
	mu    sync.Mutex
	pools map[driver.DatabaseKind]*Pool
	mon   *monitor.Monitor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[driver.DatabaseKind]*Pool)}
}

// SetMonitor attaches mon to the registry and to every pool it already
// holds, plus every pool Create builds from now on (C7). Passing nil
// disables reporting.
func (r *Registry) SetMonitor(mon *monitor.Monitor) {
	r.mu.Lock()
	r.mon = mon
	pools := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.mu.Unlock()

	for _, p := range pools {
		p.SetMonitor(mon)
	}
}

// Create registers a new Pool for kind, replacing and shutting down any
// existing pool of that kind.
func (r *Registry) Create(ctx context.Context, kind driver.DatabaseKind, cfg Config, factory driver.Factory, logger *logging.Logger) (*Pool, error) {
	p, err := New(ctx, kind, cfg, factory, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "creating pool for %s", kind)
	}

	r.mu.Lock()
	prev := r.pools[kind]
	r.pools[kind] = p
	mon := r.mon
	r.mu.Unlock()

	p.SetMonitor(mon)

	if prev != nil {
		prev.Shutdown()
	}

	return p, nil
}

// Get returns the pool registered for kind, if any.
func (r *Registry) Get(kind driver.DatabaseKind) (*Pool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[kind]
	return p, ok
}

// ShutdownAll shuts down and unregisters every pool in the registry.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[driver.DatabaseKind]*Pool)
	r.mu.Unlock()

	for _, p := range pools {
		p.Shutdown()
	}
}
