// ABOUTME: Tracks concurrently running work units in silent and external pools
// ABOUTME: Isolates unit failures and drains both pools on shutdown

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// Sentinel errors for supervisor operations.
var (
	// ErrDraining is returned by Spawn once shutdown has begun.
	ErrDraining = errors.New("supervisor is draining")

	// ErrDrained is returned by a second call to Drain.
	ErrDrained = errors.New("supervisor already drained")

	// ErrPanicked wraps a value recovered from a panicking unit.
	ErrPanicked = errors.New("unit panicked")
)

// Pool selects how a unit is treated at shutdown.
type Pool int

const (
	// Silent units are internal plumbing. Drain waits for them without cancelling.
	Silent Pool = iota
	// External units run user callback work. Drain cancels them before waiting.
	External
)

func (p Pool) String() string {
	switch p {
	case Silent:
		return "silent"
	case External:
		return "external"
	default:
		return fmt.Sprintf("pool(%d)", int(p))
	}
}

// Spawner starts supervised units. It is handed to every unit so children
// can be spawned without reaching for a global.
type Spawner interface {
	Spawn(name string, pool Pool, work Work) (*Handle, error)
}

// Work is the body of a supervised unit.
type Work func(ctx context.Context, sp Spawner) error

// Handle refers to one spawned unit.
type Handle struct {
	ID   string
	Name string
	Pool Pool

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed once the unit has returned and left its pool.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel requests cancellation of the unit's context.
func (h *Handle) Cancel() {
	h.cancel()
}

// Err returns the unit's result. Only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Supervisor owns the silent and external pools.
type Supervisor struct {
	base   context.Context
	logger *slog.Logger

	mu       sync.Mutex
	pools    map[Pool]map[string]*Handle
	wg       sync.WaitGroup
	draining bool
}

// New creates a supervisor whose units derive their context from ctx.
// Pass nil logger for default.
func New(ctx context.Context, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		base:   ctx,
		logger: logger.With("component", "supervisor"),
		pools: map[Pool]map[string]*Handle{
			Silent:   make(map[string]*Handle),
			External: make(map[string]*Handle),
		},
	}
}

// Spawn starts work immediately in its own goroutine and registers it in pool.
// The unit is removed from the pool when it returns, whatever the outcome.
func (s *Supervisor) Spawn(name string, pool Pool, work Work) (*Handle, error) {
	if pool != Silent && pool != External {
		return nil, fmt.Errorf("spawning %s: unknown %s", name, pool)
	}

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		s.logger.Warn("rejected spawn during shutdown", "task", name, "pool", pool.String())
		return nil, ErrDraining
	}

	ctx, cancel := context.WithCancel(s.base)
	h := &Handle{
		ID:     uuid.New().String(),
		Name:   name,
		Pool:   pool,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.pools[pool][h.ID] = h
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, h, work)
	return h, nil
}

func (s *Supervisor) run(ctx context.Context, h *Handle, work Work) {
	defer s.wg.Done()
	defer h.cancel()

	h.err = s.invoke(ctx, h, work)
	s.report(h)

	s.mu.Lock()
	delete(s.pools[h.Pool], h.ID)
	s.mu.Unlock()

	close(h.done)
}

// invoke runs work and converts a panic into an error so that it stays
// confined to this unit.
func (s *Supervisor) invoke(ctx context.Context, h *Handle, work Work) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
			s.logger.Error("task panicked",
				"task", h.Name,
				"task_id", h.ID,
				"stack", string(debug.Stack()))
		}
	}()
	return work(ctx, s)
}

func (s *Supervisor) report(h *Handle) {
	switch {
	case h.err == nil:
		s.logger.Debug("task finished", "task", h.Name, "task_id", h.ID, "pool", h.Pool.String())
	case errors.Is(h.err, context.Canceled):
		s.logger.Debug("task cancelled", "task", h.Name, "task_id", h.ID, "pool", h.Pool.String())
	default:
		s.logger.Error("task failed",
			"task", h.Name,
			"task_id", h.ID,
			"pool", h.Pool.String(),
			"error", h.err)
	}
}

// Count returns the number of live units in pool.
func (s *Supervisor) Count(pool Pool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pools[pool])
}

// Drain rejects further spawns, cancels every external unit and waits for
// both pools to empty. It returns ctx's error if the wait is cut short.
func (s *Supervisor) Drain(ctx context.Context) error {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return ErrDrained
	}
	s.draining = true
	external := make([]*Handle, 0, len(s.pools[External]))
	for _, h := range s.pools[External] {
		external = append(external, h)
	}
	silent := len(s.pools[Silent])
	s.mu.Unlock()

	s.logger.Info("draining tasks", "external", len(external), "silent", silent)
	for _, h := range external {
		h.Cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d silent and %d external tasks: %w",
			s.Count(Silent), s.Count(External), ctx.Err())
	}
}
