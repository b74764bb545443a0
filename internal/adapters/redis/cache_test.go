package redisad_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisad "casa_booking/internal/adapters/redis"
	"casa_booking/internal/domain"
)

func newCache(t *testing.T) (*redisad.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestCache_GetSetDel(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	var b domain.Booking
	ok, err := c.Get(ctx, "booking:b1", &b)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "booking:b1", domain.Booking{ID: "b1", BookingRef: "SCH-2025-0001"}, 60))
	ok, err = c.Get(ctx, "booking:b1", &b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "SCH-2025-0001", b.BookingRef)

	mr.FastForward(61 * time.Second)
	ok, err = c.Get(ctx, "booking:b1", &b)
	require.NoError(t, err)
	assert.False(t, ok, "entry expires with its ttl")

	require.NoError(t, c.Set(ctx, "booking:b1", domain.Booking{ID: "b1"}, 60))
	require.NoError(t, c.Del(ctx, "booking:b1"))
	assert.False(t, mr.Exists("booking:b1"))
}

func TestCache_SetNXKeepsFirstWriter(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	key := "idem:booking:g1:k1"

	stored, err := c.SetNX(ctx, key, domain.Booking{ID: "first"}, 3600)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = c.SetNX(ctx, key, domain.Booking{ID: "second"}, 3600)
	require.NoError(t, err)
	assert.False(t, stored)

	var b domain.Booking
	ok, err := c.Get(ctx, key, &b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", b.ID)
}
