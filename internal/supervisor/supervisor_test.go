// ABOUTME: Tests for the task supervisor's pools, draining and failure isolation.
// ABOUTME: Uses goleak to confirm every unit goroutine exits.

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSupervisor_Spawn_RunsAndLeavesPool(t *testing.T) {
	s := New(context.Background(), nil)

	release := make(chan struct{})
	h, err := s.Spawn("worker", Silent, func(ctx context.Context, _ Spawner) error {
		<-release
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, 1, s.Count(Silent))
	assert.Equal(t, 0, s.Count(External))

	close(release)
	<-h.Done()
	assert.NoError(t, h.Err())
	assert.Equal(t, 0, s.Count(Silent))
}

func TestSupervisor_Spawn_UnknownPool(t *testing.T) {
	s := New(context.Background(), nil)
	_, err := s.Spawn("bad", Pool(7), func(ctx context.Context, _ Spawner) error { return nil })
	assert.Error(t, err)
}

func TestSupervisor_Drain_WaitsForExternal(t *testing.T) {
	s := New(context.Background(), nil)

	var finished atomic.Int32
	handles := make([]*Handle, 0, 5)
	for i := 0; i < 5; i++ {
		h, err := s.Spawn("sleeper", External, func(ctx context.Context, _ Spawner) error {
			defer finished.Add(1)
			select {
			case <-time.After(20 * time.Millisecond):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	require.NoError(t, s.Drain(context.Background()))
	assert.Equal(t, int32(5), finished.Load())
	for _, h := range handles {
		select {
		case <-h.Done():
		default:
			t.Fatalf("unit %s still running after drain", h.ID)
		}
	}
	assert.Equal(t, 0, s.Count(External))
}

func TestSupervisor_Drain_WaitsForSilentWithoutCancel(t *testing.T) {
	s := New(context.Background(), nil)

	var cancelled atomic.Bool
	h, err := s.Spawn("plumbing", Silent, func(ctx context.Context, _ Spawner) error {
		select {
		case <-time.After(30 * time.Millisecond):
		case <-ctx.Done():
			cancelled.Store(true)
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Drain(context.Background()))
	<-h.Done()
	assert.False(t, cancelled.Load(), "silent units are awaited, not cancelled")
}

func TestSupervisor_Spawn_RejectedWhileDraining(t *testing.T) {
	s := New(context.Background(), nil)

	started := make(chan struct{})
	_, err := s.Spawn("blocker", External, func(ctx context.Context, _ Spawner) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	<-started

	require.NoError(t, s.Drain(context.Background()))

	_, err = s.Spawn("late", External, func(ctx context.Context, _ Spawner) error { return nil })
	assert.ErrorIs(t, err, ErrDraining)
	assert.ErrorIs(t, s.Drain(context.Background()), ErrDrained)
}

func TestSupervisor_Drain_Timeout(t *testing.T) {
	s := New(context.Background(), nil)

	release := make(chan struct{})
	h, err := s.Spawn("stuck", Silent, func(ctx context.Context, _ Spawner) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = s.Drain(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-h.Done()
}

func TestSupervisor_FailureIsolated(t *testing.T) {
	s := New(context.Background(), nil)

	boom := errors.New("boom")
	failing, err := s.Spawn("failing", External, func(ctx context.Context, _ Spawner) error {
		time.Sleep(5 * time.Millisecond)
		return boom
	})
	require.NoError(t, err)

	var completed atomic.Bool
	sibling, err := s.Spawn("sibling", External, func(ctx context.Context, _ Spawner) error {
		time.Sleep(15 * time.Millisecond)
		completed.Store(true)
		return nil
	})
	require.NoError(t, err)

	<-failing.Done()
	<-sibling.Done()
	assert.ErrorIs(t, failing.Err(), boom)
	assert.NoError(t, sibling.Err())
	assert.True(t, completed.Load())
	require.NoError(t, s.Drain(context.Background()))
}

func TestSupervisor_PanicIsolated(t *testing.T) {
	s := New(context.Background(), nil)

	h, err := s.Spawn("panicky", Silent, func(ctx context.Context, _ Spawner) error {
		panic("kaboom")
	})
	require.NoError(t, err)

	var ran atomic.Bool
	sibling, err := s.Spawn("sibling", Silent, func(ctx context.Context, _ Spawner) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)

	<-h.Done()
	<-sibling.Done()
	assert.ErrorIs(t, h.Err(), ErrPanicked)
	assert.True(t, ran.Load())
}

func TestSupervisor_Spawner_ChildUnits(t *testing.T) {
	s := New(context.Background(), nil)

	childDone := make(chan struct{})
	parent, err := s.Spawn("parent", Silent, func(ctx context.Context, sp Spawner) error {
		_, err := sp.Spawn("child", External, func(ctx context.Context, _ Spawner) error {
			close(childDone)
			return nil
		})
		return err
	})
	require.NoError(t, err)

	<-parent.Done()
	assert.NoError(t, parent.Err())
	<-childDone
	require.NoError(t, s.Drain(context.Background()))
}

func TestSupervisor_BaseContextCancelsUnits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, nil)

	h, err := s.Spawn("waiter", Silent, func(ctx context.Context, _ Spawner) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	cancel()
	<-h.Done()
	assert.ErrorIs(t, h.Err(), context.Canceled)
}

func TestPool_String(t *testing.T) {
	assert.Equal(t, "silent", Silent.String())
	assert.Equal(t, "external", External.String())
	assert.Equal(t, "pool(9)", Pool(9).String())
}
