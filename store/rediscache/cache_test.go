package rediscache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/store"
	"github.com/xraph/bookstore/store/memory"
	"github.com/xraph/bookstore/store/rediscache"
	"github.com/xraph/bookstore/store/storetest"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		_, client := setupRedis(t)
		return rediscache.New(memory.New(), client)
	})
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s store.Store, id string) {
	t.Helper()
	require.NoError(t, s.CreateOrder(context.Background(), &order.Order{
		ID:        id,
		BuyerID:   "alice",
		StoreID:   "s1",
		Status:    order.StatusUnpaid,
		Items:     []order.Item{{BookID: "A", Quantity: 1, UnitPrice: 10}},
		CreatedAt: base,
	}))
}

func TestOnlyTerminalOrdersAreCached(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	s := rediscache.New(memory.New(), client, rediscache.WithPrefix("t:"))
	seed(t, s, "o1")

	_, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, mr.Exists("t:o1"), "unpaid orders are not cached")

	_, err = s.TransitionOrder(ctx, order.Transition{
		OrderID: "o1", From: order.StatusUnpaid, To: order.StatusCancelled, Stamp: order.StampCancel, At: base,
	})
	require.NoError(t, err)

	got, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.True(t, mr.Exists("t:o1"))

	cached, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, got.Items, cached.Items)
	assert.True(t, got.CancelledAt.Equal(*cached.CancelledAt))
}

func TestMutationsInvalidate(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	s := rediscache.New(memory.New(), client)
	key := rediscache.DefaultPrefix + "o1"
	seed(t, s, "o1")

	_, err := s.TransitionOrder(ctx, order.Transition{
		OrderID: "o1", From: order.StatusUnpaid, To: order.StatusCancelled, Stamp: order.StampCancel, At: base,
	})
	require.NoError(t, err)
	_, err = s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	require.True(t, mr.Exists(key))

	// A rejected transition still drops the entry.
	_, err = s.TransitionOrder(ctx, order.Transition{
		OrderID: "o1", From: order.StatusUnpaid, To: order.StatusPaid, Stamp: order.StampPay, At: base,
	})
	require.Error(t, err)
	assert.False(t, mr.Exists(key))

	require.NoError(t, mr.Set(key, "stale"))
	_ = s.RevertCancellation(ctx, "o1", order.StatusPaid)
	assert.False(t, mr.Exists(key))
}

func TestPaidCancellationIsNotCached(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	s := rediscache.New(memory.New(), client)
	key := rediscache.DefaultPrefix + "o1"
	seed(t, s, "o1")

	for _, tr := range []order.Transition{
		{OrderID: "o1", From: order.StatusUnpaid, To: order.StatusPaid, Stamp: order.StampPay, At: base},
		{OrderID: "o1", From: order.StatusPaid, To: order.StatusCancelled, Stamp: order.StampCancel, At: base},
	} {
		_, err := s.TransitionOrder(ctx, tr)
		require.NoError(t, err)
	}

	got, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.False(t, mr.Exists(key), "a paid cancellation can still be reverted")

	require.NoError(t, s.RevertCancellation(ctx, "o1", order.StatusPaid))
	got, err = s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
}

func TestFallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	s := rediscache.New(memory.New(), client)
	seed(t, s, "o1")

	mr.Close()

	got, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", got.ID)

	_, err = s.TransitionOrder(ctx, order.Transition{
		OrderID: "o1", From: order.StatusUnpaid, To: order.StatusPaid, Stamp: order.StampPay, At: base,
	})
	require.NoError(t, err)
	assert.Error(t, s.Ping(ctx))
}

func TestCorruptEntryIsReplaced(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	s := rediscache.New(memory.New(), client)
	seed(t, s, "o1")

	require.NoError(t, mr.Set(rediscache.DefaultPrefix+"o1", "{not json"))

	got, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusUnpaid, got.Status)
	assert.False(t, mr.Exists(rediscache.DefaultPrefix+"o1"))
}
