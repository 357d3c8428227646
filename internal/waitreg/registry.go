// ABOUTME: Multicast wait-for-next-message registry keyed by channel id
// ABOUTME: Every pending waiter on a key receives the same next delivered value

// Package waitreg lets callers block until the next value for a key arrives.
package waitreg

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// item is one pending wait. payload is written once, under the registry lock,
// before ready is closed.
type item[T any] struct {
	payload T
	filled  bool
	ready   chan struct{}
}

// Registry tracks pending waiters per key.
type Registry[T any] struct {
	mu      sync.Mutex
	waiters map[int64]map[string]*item[T] // key -> waitID -> item
	logger  *slog.Logger
}

// New creates a registry. name labels log lines. Pass nil logger for default.
func New[T any](name string, logger *slog.Logger) *Registry[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry[T]{
		waiters: make(map[int64]map[string]*item[T]),
		logger:  logger.With("component", "waitreg", "registry", name),
	}
}

// Wait blocks until a value is delivered for key, the timeout elapses or ctx
// is done. A timeout of zero or less waits for delivery or ctx alone.
// The boolean reports whether a value arrived. The waiter is always removed
// from the registry before Wait returns.
func (r *Registry[T]) Wait(ctx context.Context, key int64, timeout time.Duration) (T, bool) {
	id := uuid.New().String()
	it := &item[T]{ready: make(chan struct{})}

	r.mu.Lock()
	if _, ok := r.waiters[key]; !ok {
		r.waiters[key] = make(map[string]*item[T])
	}
	r.waiters[key][id] = it
	r.mu.Unlock()

	defer r.remove(key, id)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-it.ready:
	case <-expired:
	case <-ctx.Done():
	}

	// Delivery may have raced the timer; whatever is filled by now counts.
	r.mu.Lock()
	defer r.mu.Unlock()
	return it.payload, it.filled
}

// Deliver hands v to every pending waiter on key that has not been filled
// yet and returns how many were satisfied.
func (r *Registry[T]) Deliver(key int64, v T) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, it := range r.waiters[key] {
		if it.filled {
			continue
		}
		it.payload = v
		it.filled = true
		close(it.ready)
		n++
	}
	if n > 0 {
		r.logger.Debug("delivered to waiters", "key", key, "waiters", n)
	}
	return n
}

// Pending returns the number of waiters registered for key.
func (r *Registry[T]) Pending(key int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters[key])
}

func (r *Registry[T]) remove(key int64, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.waiters[key]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(r.waiters, key)
	}
}
