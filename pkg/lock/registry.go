// Package lock provides per-key exclusive locks used to keep at most one
// upstream request in flight per cache key.
//
// Registry creates one lock per key on first use and keeps it for the
// lifetime of the process. This assumes the key space is small and bounded
// by configuration (distinct resource path x credential combinations), not
// by request volume. Deployments where key cardinality can grow without
// bound should use Striped, which trades per-key isolation for a fixed
// number of locks.
package lock

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Locker hands out exclusive locks by key.
type Locker interface {
	// Acquire blocks until the lock for key is held or ctx is done.
	// On error the lock is not held.
	Acquire(ctx context.Context, key string) (*Handle, error)
}

// Handle is a held lock. Release may be called more than once; only the
// first call releases.
type Handle struct {
	sem  *semaphore.Weighted
	once sync.Once
}

// Release gives the lock back.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.sem.Release(1)
	})
}

func acquire(ctx context.Context, sem *semaphore.Weighted, name string) (*Handle, error) {
	start := time.Now()
	if err := sem.Acquire(ctx, 1); err != nil {
		lockAcquireFailures.WithLabelValues(name).Inc()
		return nil, err
	}
	lockWaitSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return &Handle{sem: sem}, nil
}

// Registry maps keys to lazily created binary locks. Entries are never
// removed.
type Registry struct {
	name  string
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// NewRegistry creates an empty registry. name labels its metrics.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:  name,
		locks: make(map[string]*semaphore.Weighted),
	}
}

// Acquire implements Locker.
func (r *Registry) Acquire(ctx context.Context, key string) (*Handle, error) {
	return acquire(ctx, r.get(key), r.name)
}

// Release releases h. Equivalent to h.Release().
func (r *Registry) Release(h *Handle) {
	h.Release()
}

func (r *Registry) get(key string) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()

	sem, ok := r.locks[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		r.locks[key] = sem
		lockKeys.WithLabelValues(r.name).Set(float64(len(r.locks)))
	}
	return sem
}

// Len returns the number of keys that have a lock.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
