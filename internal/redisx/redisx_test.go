package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestStatusCache(t *testing.T) {
	mr, rdb := newRedis(t)
	cache := NewStatusCache(rdb)
	ctx := context.Background()

	got, err := cache.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, got)

	want := OrderStatus{OrderID: "o1", PaymentStatus: "PAID", FulfillmentStatus: "PENDING", UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, cache.Set(ctx, want))
	assert.Equal(t, TTLStatusCache, mr.TTL("order_status:o1"))

	got, err = cache.Get(ctx, "o1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	require.NoError(t, cache.Invalidate(ctx, "o1"))
	assert.False(t, mr.Exists("order_status:o1"))
}

func TestClaim(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	key := NotifyKey("o1", "purchase_buyer")

	won, err := Claim(ctx, rdb, key, time.Hour)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = Claim(ctx, rdb, key, time.Hour)
	require.NoError(t, err)
	assert.False(t, won)

	ok, err := Exists(ctx, rdb, key)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Hour)
	won, err = Claim(ctx, rdb, key, time.Hour)
	require.NoError(t, err)
	assert.True(t, won)
}
