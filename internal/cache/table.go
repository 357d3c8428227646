// ABOUTME: Two-phase lazy table holding provisional entries until the first full fetch
// ABOUTME: Reconciles provisional objects into the authoritative set, keeping their identity

// Package cache provides the lazily populated tables behind the contact directory.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"
)

// Phase reports whether a table has seen its first full fetch.
type Phase int

const (
	// Provisional tables hold only entries synthesized from observed id/name pairs.
	Provisional Phase = iota
	// Authoritative tables mirror the remote enumeration.
	Authoritative
)

func (p Phase) String() string {
	if p == Authoritative {
		return "authoritative"
	}
	return "provisional"
}

// FetchFunc enumerates every entity of a kind as id -> display name.
type FetchFunc func(ctx context.Context) (map[int64]string, error)

// Options configures a Table.
type Options[V any] struct {
	// Label names the table in log lines, e.g. "friends" or "members".
	Label string
	// Fetch performs the full enumeration.
	Fetch FetchFunc
	// Make builds a new entity.
	Make func(id int64, name string) V
	// Rename updates an entity's display name.
	Rename func(v V, name string)
	Logger *slog.Logger
}

type slot[V any] struct {
	value       V
	provisional bool
}

// Table is an arena of entities keyed by id plus a phase flag. Every access
// holds the table lock exclusively, because lookups may populate the table.
type Table[V any] struct {
	opts   Options[V]
	logger *slog.Logger

	lock  *semaphore.Weighted
	phase Phase
	arena map[int64]*slot[V]
}

// New creates an empty provisional table.
func New[V any](opts Options[V]) *Table[V] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Table[V]{
		opts:   opts,
		logger: logger.With("component", "cache", "table", opts.Label),
		lock:   semaphore.NewWeighted(1),
		arena:  make(map[int64]*slot[V]),
	}
}

func (t *Table[V]) acquire(ctx context.Context) error {
	if err := t.lock.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("locking %s: %w", t.opts.Label, err)
	}
	return nil
}

func (t *Table[V]) release() {
	t.lock.Release(1)
}

// Get looks up id without a known name. Before the first full fetch an
// unknown id forces the fetch.
func (t *Table[V]) Get(ctx context.Context, id int64) (V, bool, error) {
	var zero V
	if err := t.acquire(ctx); err != nil {
		return zero, false, err
	}
	defer t.release()
	return t.get(ctx, id)
}

// get is Get with the lock held.
func (t *Table[V]) get(ctx context.Context, id int64) (V, bool, error) {
	var zero V
	if s, ok := t.arena[id]; ok {
		return s.value, true, nil
	}
	if t.phase == Authoritative {
		return zero, false, nil
	}
	if err := t.populate(ctx); err != nil {
		return zero, false, err
	}
	if s, ok := t.arena[id]; ok {
		return s.value, true, nil
	}
	return zero, false, nil
}

// Observe looks up id with a name seen in an inbound event. The name
// refreshes the stored one. Before the first full fetch an unknown id gets a
// provisional entry instead of forcing the fetch. An empty name carries no
// evidence the id exists, so Observe then behaves like Get.
func (t *Table[V]) Observe(ctx context.Context, id int64, name string) (V, bool, error) {
	var zero V
	if err := t.acquire(ctx); err != nil {
		return zero, false, err
	}
	defer t.release()

	if name == "" {
		return t.get(ctx, id)
	}
	if s, ok := t.arena[id]; ok {
		t.opts.Rename(s.value, name)
		return s.value, true, nil
	}
	if t.phase == Authoritative {
		return zero, false, nil
	}

	v := t.opts.Make(id, name)
	t.arena[id] = &slot[V]{value: v, provisional: true}
	t.logger.Debug("provisional entry added", "id", id, "total", len(t.arena))
	return v, true, nil
}

// All returns a snapshot of the authoritative set, fetching it first if the
// table has never been populated.
func (t *Table[V]) All(ctx context.Context) (map[int64]V, error) {
	if err := t.acquire(ctx); err != nil {
		return nil, err
	}
	defer t.release()

	if t.phase != Authoritative {
		if err := t.populate(ctx); err != nil {
			return nil, err
		}
	}
	// Reconcile on every full read, even when already authoritative.
	t.sweep()

	out := make(map[int64]V, len(t.arena))
	for id, s := range t.arena {
		out[id] = s.value
	}
	return out, nil
}

// Put inserts or renames id. An empty name keeps the stored one. It is a
// no-op until the table is authoritative.
func (t *Table[V]) Put(ctx context.Context, id int64, name string) (bool, error) {
	if err := t.acquire(ctx); err != nil {
		return false, err
	}
	defer t.release()

	if t.phase != Authoritative {
		return false, nil
	}
	if s, ok := t.arena[id]; ok {
		if name != "" {
			t.opts.Rename(s.value, name)
		}
		return true, nil
	}
	t.arena[id] = &slot[V]{value: t.opts.Make(id, name)}
	return true, nil
}

// Remove deletes id. Before the first full fetch only a provisional entry
// can be discarded.
func (t *Table[V]) Remove(ctx context.Context, id int64) (bool, error) {
	if err := t.acquire(ctx); err != nil {
		return false, err
	}
	defer t.release()

	if _, ok := t.arena[id]; !ok {
		return false, nil
	}
	delete(t.arena, id)
	return true, nil
}

// Peek returns id if present in either phase. It never fetches.
func (t *Table[V]) Peek(ctx context.Context, id int64) (V, bool, error) {
	var zero V
	if err := t.acquire(ctx); err != nil {
		return zero, false, err
	}
	defer t.release()

	if s, ok := t.arena[id]; ok {
		return s.value, true, nil
	}
	return zero, false, nil
}

// Phase returns the table's current phase.
func (t *Table[V]) Phase(ctx context.Context) (Phase, error) {
	if err := t.acquire(ctx); err != nil {
		return Provisional, err
	}
	defer t.release()
	return t.phase, nil
}

// populate fetches the remote set and reconciles it with the arena. Must be
// called with the lock held. A failed fetch leaves the table untouched.
func (t *Table[V]) populate(ctx context.Context) error {
	remote, err := t.opts.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", t.opts.Label, err)
	}

	next, dropped := reconcile(t.arena, remote, t.opts.Make)
	for _, id := range dropped {
		t.logger.Warn("provisional entry not in remote list, dropped", "id", id)
	}
	t.arena = next
	t.phase = Authoritative
	t.logger.Info("list fetched", "entries", len(next), "dropped", len(dropped))
	return nil
}

func (t *Table[V]) sweep() {
	for id, s := range t.arena {
		if s.provisional {
			t.logger.Warn("provisional entry left after fetch, dropped", "id", id)
			delete(t.arena, id)
		}
	}
}

// reconcile builds the authoritative arena for remote. A provisional entry
// whose id is in remote is carried over as the same object with its name
// untouched; one whose id is missing is returned in dropped.
func reconcile[V any](arena map[int64]*slot[V], remote map[int64]string, build func(int64, string) V) (map[int64]*slot[V], []int64) {
	next := make(map[int64]*slot[V], len(remote))
	for id, name := range remote {
		next[id] = &slot[V]{value: build(id, name)}
	}

	provisional := lo.PickBy(arena, func(_ int64, s *slot[V]) bool { return s.provisional })
	var dropped []int64
	for id, s := range provisional {
		if _, ok := next[id]; !ok {
			dropped = append(dropped, id)
			continue
		}
		next[id] = &slot[V]{value: s.value}
	}
	slices.Sort(dropped)
	return next, dropped
}
