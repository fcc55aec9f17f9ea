package registry

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/relay/internal/cluster"
)

// Registry holds the known worker instances for the router.
//
// Identity (ID, Addr, Tag) is immutable once registered: re-registering an
// existing ID refreshes the descriptor but workers are never deleted, only
// marked unhealthy by the monitor. New workers start healthy and the first
// probe sweep corrects that optimism within one interval.
//
// Thread safety: all methods are safe for concurrent use. Reads return
// copies, so callers can hold results across registry mutations.
type Registry struct {
	mu      sync.RWMutex
	workers []cluster.WorkerInstance
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Seed registers a static worker pool, typically from configuration.
func (r *Registry) Seed(workers []cluster.WorkerInstance) {
	for _, w := range workers {
		r.Register(w)
	}
}

// Register adds a worker or replaces the descriptor with the same ID.
// The worker starts healthy; the monitor owns liveness from there on.
func (r *Registry) Register(w cluster.WorkerInstance) {
	w.Healthy = true
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := slices.IndexFunc(r.workers, func(x cluster.WorkerInstance) bool { return x.ID == w.ID })
	if idx >= 0 {
		r.workers[idx] = w
		return
	}
	r.workers = append(r.workers, w)
}

// All returns a snapshot of every registered worker, ordered by address.
func (r *Registry) All() []cluster.WorkerInstance {
	return r.snapshot(func(cluster.WorkerInstance) bool { return true })
}

// List returns the workers matching tag, ordered by address so that
// hash-based selection is reproducible across calls within one liveness
// snapshot.
func (r *Registry) List(tag string) []cluster.WorkerInstance {
	return r.snapshot(func(w cluster.WorkerInstance) bool { return w.Tag == tag })
}

// Healthy returns the live workers matching tag, ordered by address.
func (r *Registry) Healthy(tag string) []cluster.WorkerInstance {
	return r.snapshot(func(w cluster.WorkerInstance) bool { return w.Tag == tag && w.Healthy })
}

// Lookup finds a worker by address.
func (r *Registry) Lookup(addr string) (cluster.WorkerInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := slices.IndexFunc(r.workers, func(w cluster.WorkerInstance) bool { return w.Addr == addr })
	if idx < 0 {
		return cluster.WorkerInstance{}, false
	}
	return r.workers[idx], true
}

// setHealth records a probe outcome. Only the monitor calls this.
func (r *Registry) setHealth(id string, healthy bool, probedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := slices.IndexFunc(r.workers, func(w cluster.WorkerInstance) bool { return w.ID == id })
	if idx < 0 {
		return
	}
	r.workers[idx].Healthy = healthy
	r.workers[idx].LastProbed = probedAt
}

func (r *Registry) snapshot(keep func(cluster.WorkerInstance) bool) []cluster.WorkerInstance {
	r.mu.RLock()
	out := make([]cluster.WorkerInstance, 0, len(r.workers))
	for _, w := range r.workers {
		if keep(w) {
			out = append(out, w)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b cluster.WorkerInstance) int {
		switch {
		case a.Addr < b.Addr:
			return -1
		case a.Addr > b.Addr:
			return 1
		default:
			return 0
		}
	})
	return out
}
