// internal/registry/registry.go
package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock abstracts time for deterministic eviction tests.
type Clock func() time.Time

// Registry is a concurrency-safe in-memory map with per-entry eviction
// deadlines. Entries without a deadline live until deleted. A janitor
// goroutine sweeps expired entries; Close stops it.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
	clock   Clock
	logger  *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type entry[T any] struct {
	value    T
	expireAt time.Time // zero means no deadline
}

// sweepInterval is how often the janitor scans for expired entries.
const sweepInterval = 30 * time.Second

// New builds a registry and starts its janitor.
func New[T any](logger *zap.Logger) *Registry[T] {
	return NewWithClock[T](logger, time.Now)
}

// NewWithClock builds a registry with an injected clock.
func NewWithClock[T any](logger *zap.Logger, clock Clock) *Registry[T] {
	r := &Registry[T]{
		entries: make(map[string]entry[T]),
		clock:   clock,
		logger:  logger.Named("registry"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go r.janitor()
	return r
}

// Put stores or replaces the value with no eviction deadline.
func (r *Registry[T]) Put(id string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = entry[T]{value: v}
}

// PutWithTTL stores or replaces the value and schedules eviction after ttl.
func (r *Registry[T]) PutWithTTL(id string, v T, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = entry[T]{value: v, expireAt: r.clock().Add(ttl)}
}

// Get returns the value and whether it exists. Expired entries that the
// janitor has not swept yet are treated as absent.
func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || r.expired(e) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Delete removes the entry. Deleting an absent id is a no-op.
func (r *Registry[T]) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len counts live entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if !r.expired(e) {
			n++
		}
	}
	return n
}

// Range calls fn for every live entry until fn returns false.
func (r *Registry[T]) Range(fn func(id string, v T) bool) {
	r.mu.RLock()
	snapshot := make(map[string]T, len(r.entries))
	for id, e := range r.entries {
		if !r.expired(e) {
			snapshot[id] = e.value
		}
	}
	r.mu.RUnlock()

	for id, v := range snapshot {
		if !fn(id, v) {
			return
		}
	}
}

// DeleteWhere removes every live entry for which fn returns true and
// returns the removed ids.
func (r *Registry[T]) DeleteWhere(fn func(id string, v T) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, e := range r.entries {
		if r.expired(e) {
			continue
		}
		if fn(id, e.value) {
			delete(r.entries, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Sweep removes expired entries immediately and returns how many went.
func (r *Registry[T]) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.entries {
		if r.expired(e) {
			delete(r.entries, id)
			n++
		}
	}
	return n
}

// Close stops the janitor. Safe to call more than once.
func (r *Registry[T]) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		<-r.doneCh
	})
}

func (r *Registry[T]) expired(e entry[T]) bool {
	return !e.expireAt.IsZero() && r.clock().After(e.expireAt)
}

func (r *Registry[T]) janitor() {
	defer close(r.doneCh)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("Swept expired entries.", zap.Int("count", n))
			}
		}
	}
}
