package app_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casa_booking/internal/domain"
)

func TestLocks_AlreadyLockedThenReleased(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	room := domain.RoomTarget("r1")

	first, err := e.locks.Acquire(ctx, room, dates(t, "2025-03-01", "2025-03-04"))
	require.NoError(t, err)
	assert.NotEmpty(t, first.SessionKey)
	assert.Equal(t, t0.Add(10*time.Minute), first.ExpiresAt)

	_, err = e.locks.Acquire(ctx, room, dates(t, "2025-03-03", "2025-03-06"))
	require.True(t, errors.Is(err, domain.ErrAlreadyLocked), "got %v", err)

	require.NoError(t, e.locks.Release(ctx, first.SessionKey))
	require.NoError(t, e.locks.Release(ctx, first.SessionKey), "release is idempotent")

	second, err := e.locks.Acquire(ctx, room, dates(t, "2025-03-03", "2025-03-06"))
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionKey, second.SessionKey)
}

func TestLocks_HierarchyAware(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dr := dates(t, "2025-03-01", "2025-03-04")

	_, err := e.locks.Acquire(ctx, domain.RoomTarget("r1"), dr)
	require.NoError(t, err)

	// Sibling room stays lockable.
	_, err = e.locks.Acquire(ctx, domain.RoomTarget("r2"), dr)
	require.NoError(t, err)

	// The whole unit is not.
	_, err = e.locks.Acquire(ctx, domain.UnitTarget("u1"), dr)
	assert.True(t, errors.Is(err, domain.ErrAlreadyLocked), "got %v", err)

	// A unit lock blocks its rooms.
	_, err = e.locks.Acquire(ctx, domain.UnitTarget("u2"), dr)
	require.NoError(t, err)
	_, err = e.locks.Acquire(ctx, domain.RoomTarget("r3"), dr)
	assert.True(t, errors.Is(err, domain.ErrAlreadyLocked), "got %v", err)
}

func TestLocks_TouchingRangesDoNotCollide(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	room := domain.RoomTarget("r1")

	_, err := e.locks.Acquire(ctx, room, dates(t, "2025-03-01", "2025-03-04"))
	require.NoError(t, err)
	_, err = e.locks.Acquire(ctx, room, dates(t, "2025-03-04", "2025-03-06"))
	require.NoError(t, err)
}

func TestLocks_ExpiredLockNeverBlocks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	room := domain.RoomTarget("r1")
	dr := dates(t, "2025-03-01", "2025-03-04")

	stale, err := e.locks.Acquire(ctx, room, dr)
	require.NoError(t, err)

	e.clock.Advance(11 * time.Minute)

	res, err := e.search.Search(ctx, singleQuery(dr))
	require.NoError(t, err)
	require.Len(t, res.Results, 1, "expired lock must not hide the room")

	_, err = e.locks.Acquire(ctx, room, dr)
	require.NoError(t, err)

	left, err := e.store.GetLocks(ctx, []string{stale.SessionKey})
	require.NoError(t, err)
	assert.Empty(t, left, "expired lock purged by the acquire cleanup")
}

func TestLocks_BookedInventoryConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dr := dates(t, "2025-03-01", "2025-03-04")

	_, err := e.book(t, "guest-1", dr, domain.RoomTarget("r1"))
	require.NoError(t, err)

	_, err = e.locks.Acquire(ctx, domain.RoomTarget("r1"), dates(t, "2025-03-02", "2025-03-05"))
	assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)
}

func TestLocks_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dr := dates(t, "2025-03-01", "2025-03-04")

	_, err := e.locks.Acquire(ctx, domain.PropertyTarget("p1"), dr)
	assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)

	_, err = e.locks.Acquire(ctx, domain.RoomTarget("missing"), dr)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
}

func TestLocks_SweeperPurgesExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	l, err := e.locks.Acquire(ctx, domain.RoomTarget("r1"), dates(t, "2025-03-01", "2025-03-04"))
	require.NoError(t, err)
	e.clock.Advance(time.Hour)

	var swept atomic.Int64
	sweepCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		e.locks.RunSweeper(sweepCtx, 5*time.Millisecond, func(n int64) { swept.Add(n) })
		close(done)
	}()

	require.Eventually(t, func() bool {
		left, err := e.store.GetLocks(ctx, []string{l.SessionKey})
		return err == nil && len(left) == 0 && swept.Load() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
