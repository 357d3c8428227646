// ABOUTME: Bounded TTL window of recently seen inbound frame ids
// ABOUTME: Drops frames the gateway replays after a push channel reconnect

package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Defaults used by the gateway adapter.
const (
	DefaultTTL     = 10 * time.Minute
	DefaultMaxSize = 4096
)

type entry struct {
	seen time.Time
	elem *list.Element
}

// Window remembers ids for a fixed TTL, evicting the oldest id once full.
type Window struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// Option configures a Window.
type Option func(*Window)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Window) { w.now = now }
}

// New creates a window. Non-positive arguments fall back to the defaults.
func New(ttl time.Duration, maxSize int, opts ...Option) *Window {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	w := &Window{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Key scopes an id by frame kind so a message and its revoke never collide.
func Key(kind, id string) string {
	return kind + "/" + id
}

// Seen reports whether key was recorded within the TTL and records it if not.
// Check and record happen under one lock.
func (w *Window) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if e, ok := w.entries[key]; ok {
		if now.Sub(e.seen) < w.ttl {
			return true
		}
		e.seen = now
		w.order.MoveToBack(e.elem)
		return false
	}

	if len(w.entries) >= w.maxSize {
		w.evictOldest()
	}
	w.entries[key] = &entry{seen: now, elem: w.order.PushBack(key)}
	return false
}

// Len returns the number of remembered ids, expired or not.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func (w *Window) evictOldest() {
	front := w.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	w.order.Remove(front)
	delete(w.entries, key)
}

// Sweep drops expired ids and returns how many were removed.
func (w *Window) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	removed := 0
	// Entries are ordered by last sighting, so expiry stops at the first live one.
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		key, _ := front.Value.(string)
		if now.Sub(w.entries[key].seen) < w.ttl {
			break
		}
		w.order.Remove(front)
		delete(w.entries, key)
		removed++
	}
	return removed
}

// Janitor sweeps every interval until ctx is done.
func (w *Window) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.Sweep()
		case <-ctx.Done():
			return
		}
	}
}
