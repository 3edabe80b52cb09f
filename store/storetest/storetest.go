// Package storetest is the conformance suite every store.Store backend
// runs. It checks the single-document guarantees the engine builds on:
// guarded decrements never go below zero, transitions apply at most once,
// and the pre-image returned by a transition is the stored document before
// the write.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bookstore"
	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/shop"
	"github.com/xraph/bookstore/store"
	"github.com/xraph/bookstore/types"
	"github.com/xraph/bookstore/user"
)

// Factory returns an empty, migrated store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the full suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Users", testUsers},
		{"Balances", testBalances},
		{"ConcurrentDebits", testConcurrentDebits},
		{"Shops", testShops},
		{"Stock", testStock},
		{"ConcurrentStock", testConcurrentStock},
		{"Orders", testOrders},
		{"Transitions", testTransitions},
		{"ConcurrentTransitions", testConcurrentTransitions},
		{"RevertCancellation", testRevertCancellation},
		{"ListOrders", testListOrders},
		{"ListExpired", testListExpired},
		{"Migrate", testMigrate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newUser(id string, balance int64) *user.User {
	return &user.User{
		Entity:       types.NewEntityAt(base),
		ID:           id,
		PasswordHash: "hash-" + id,
		Balance:      balance,
	}
}

func newShop(id, owner string, lines ...shop.Line) *shop.Shop {
	if lines == nil {
		lines = []shop.Line{}
	}
	return &shop.Shop{
		Entity:    types.NewEntityAt(base),
		ID:        id,
		OwnerID:   owner,
		Inventory: lines,
	}
}

func newOrder(id, buyer, storeID string, created time.Time) *order.Order {
	items := []order.Item{
		{BookID: "A", Quantity: 2, UnitPrice: 100, Book: shop.Book{Title: "Book A", Tags: []string{"x", "y"}}},
		{BookID: "B", Quantity: 1, UnitPrice: 50, Book: shop.Book{Title: "Book B", Pages: 320}},
	}
	return &order.Order{
		ID:          id,
		BuyerID:     buyer,
		StoreID:     storeID,
		Status:      order.StatusUnpaid,
		TotalAmount: order.Total(items),
		Items:       items,
		CreatedAt:   created,
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, newUser("alice", 0)))
	assert.ErrorIs(t, s.CreateUser(ctx, newUser("alice", 5)), bookstore.ErrUserExists)

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)
	assert.Equal(t, "hash-alice", u.PasswordHash)
	assert.Zero(t, u.Balance)

	require.NoError(t, s.SetPasswordHash(ctx, "alice", "rehashed"))
	u, err = s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "rehashed", u.PasswordHash)

	assert.ErrorIs(t, s.SetPasswordHash(ctx, "bob", "x"), bookstore.ErrUserNotFound)

	_, err = s.GetUser(ctx, "bob")
	assert.ErrorIs(t, err, bookstore.ErrUserNotFound)

	require.NoError(t, s.DeleteUser(ctx, "alice"))
	assert.ErrorIs(t, s.DeleteUser(ctx, "alice"), bookstore.ErrUserNotFound)
	_, err = s.GetUser(ctx, "alice")
	assert.ErrorIs(t, err, bookstore.ErrUserNotFound)
}

func testBalances(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, newUser("alice", 100)))

	require.NoError(t, s.IncrementBalance(ctx, "alice", 50))
	assert.ErrorIs(t, s.IncrementBalance(ctx, "bob", 50), bookstore.ErrUserNotFound)

	matched, err := s.DecrementBalanceIfSufficient(ctx, "alice", 150)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = s.DecrementBalanceIfSufficient(ctx, "alice", 1)
	require.NoError(t, err)
	assert.False(t, matched)

	matched, err = s.DecrementBalanceIfSufficient(ctx, "bob", 0)
	require.NoError(t, err)
	assert.False(t, matched)

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, u.Balance)
}

func testConcurrentDebits(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, newUser("alice", 100)))

	var matched atomic.Int64
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.DecrementBalanceIfSufficient(ctx, "alice", 10)
			assert.NoError(t, err)
			if ok {
				matched.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), matched.Load())
	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, u.Balance)
}

func testShops(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.CreateShop(ctx, newShop("s1", "alice")))
	assert.ErrorIs(t, s.CreateShop(ctx, newShop("s1", "bob")), bookstore.ErrStoreExists)

	line := shop.Line{
		BookID:     "A",
		StockLevel: 3,
		UnitPrice:  100,
		Book:       shop.Book{Title: "Book A", Author: "Someone", Tags: []string{"fiction"}},
	}
	require.NoError(t, s.AppendLine(ctx, "s1", line))
	require.NoError(t, s.AppendLine(ctx, "s1", shop.Line{BookID: "B", StockLevel: 1, UnitPrice: 50}))
	assert.ErrorIs(t, s.AppendLine(ctx, "s1", line), bookstore.ErrBookExists)
	assert.ErrorIs(t, s.AppendLine(ctx, "s2", line), bookstore.ErrStoreNotFound)

	got, err := s.GetShop(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerID)
	require.Len(t, got.Inventory, 2)
	assert.Equal(t, "A", got.Inventory[0].BookID)
	assert.Equal(t, "B", got.Inventory[1].BookID)

	a, ok := got.Line("A")
	require.True(t, ok)
	assert.Equal(t, int64(3), a.StockLevel)
	assert.Equal(t, int64(100), a.UnitPrice)
	assert.Equal(t, "Someone", a.Book.Author)
	assert.Equal(t, []string{"fiction"}, a.Book.Tags)

	_, err = s.GetShop(ctx, "s2")
	assert.ErrorIs(t, err, bookstore.ErrStoreNotFound)
}

func testStock(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateShop(ctx, newShop("s1", "alice",
		shop.Line{BookID: "A", StockLevel: 3, UnitPrice: 100},
		shop.Line{BookID: "B", StockLevel: 7, UnitPrice: 50},
	)))

	matched, err := s.DecrementStockIfSufficient(ctx, "s1", "A", 3)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = s.DecrementStockIfSufficient(ctx, "s1", "A", 1)
	require.NoError(t, err)
	assert.False(t, matched)

	matched, err = s.IncrementStock(ctx, "s1", "A", 2)
	require.NoError(t, err)
	assert.True(t, matched)

	for _, tc := range []struct{ store, book string }{{"s1", "Z"}, {"s2", "A"}} {
		matched, err = s.IncrementStock(ctx, tc.store, tc.book, 1)
		require.NoError(t, err)
		assert.False(t, matched, "increment %s/%s", tc.store, tc.book)

		matched, err = s.DecrementStockIfSufficient(ctx, tc.store, tc.book, 0)
		require.NoError(t, err)
		assert.False(t, matched, "decrement %s/%s", tc.store, tc.book)
	}

	got, err := s.GetShop(ctx, "s1")
	require.NoError(t, err)
	a, _ := got.Line("A")
	b, _ := got.Line("B")
	assert.Equal(t, int64(2), a.StockLevel)
	assert.Equal(t, int64(7), b.StockLevel, "only the addressed line changes")
}

func testConcurrentStock(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateShop(ctx, newShop("s1", "alice",
		shop.Line{BookID: "A", StockLevel: 5, UnitPrice: 100},
	)))

	var matched atomic.Int64
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.DecrementStockIfSufficient(ctx, "s1", "A", 2)
			assert.NoError(t, err)
			if ok {
				matched.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(2), matched.Load())
	got, err := s.GetShop(ctx, "s1")
	require.NoError(t, err)
	a, _ := got.Line("A")
	assert.Equal(t, int64(1), a.StockLevel)
}

func testOrders(t *testing.T, s store.Store) {
	ctx := context.Background()
	o := newOrder("o1", "alice", "s1", base)

	require.NoError(t, s.CreateOrder(ctx, o))
	assert.ErrorIs(t, s.CreateOrder(ctx, o), bookstore.ErrOrderExists)

	got, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.BuyerID)
	assert.Equal(t, "s1", got.StoreID)
	assert.Equal(t, order.StatusUnpaid, got.Status)
	assert.Equal(t, int64(250), got.TotalAmount)
	assert.True(t, base.Equal(got.CreatedAt))
	require.Len(t, got.Items, 2)
	assert.Equal(t, o.Items[0].Book.Tags, got.Items[0].Book.Tags)
	assert.Equal(t, 320, got.Items[1].Book.Pages)
	assert.Nil(t, got.PaidAt)
	assert.Nil(t, got.TimeoutAt)

	_, err = s.GetOrder(ctx, "o2")
	assert.ErrorIs(t, err, bookstore.ErrOrderNotFound)
}

func testTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateOrder(ctx, newOrder("o1", "alice", "s1", base)))

	payAt := base.Add(time.Minute)
	prev, err := s.TransitionOrder(ctx, order.Transition{
		OrderID: "o1", From: order.StatusUnpaid, To: order.StatusPaid, Stamp: order.StampPay, At: payAt,
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusUnpaid, prev.Status)
	assert.Nil(t, prev.PaidAt)
	assert.Equal(t, int64(250), prev.TotalAmount)

	_, err = s.TransitionOrder(ctx, order.Transition{
		OrderID: "o1", From: order.StatusUnpaid, To: order.StatusCancelled, Stamp: order.StampCancel, At: payAt,
	})
	assert.ErrorIs(t, err, bookstore.ErrOrderStatusMismatch)

	_, err = s.TransitionOrder(ctx, order.Transition{
		OrderID: "missing", From: order.StatusUnpaid, To: order.StatusPaid, Stamp: order.StampPay, At: payAt,
	})
	assert.ErrorIs(t, err, bookstore.ErrOrderStatusMismatch)

	got, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	assert.True(t, payAt.Equal(*got.PaidAt))
	assert.Nil(t, got.CancelledAt)

	cancelAt := payAt.Add(time.Minute)
	prev, err = s.TransitionOrder(ctx, order.Transition{
		OrderID: "o1", From: order.StatusPaid, To: order.StatusCancelled, Stamp: order.StampCancel, At: cancelAt,
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, prev.Status)

	got, err = s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, cancelAt.Equal(*got.CancelledAt))
	require.NotNil(t, got.PaidAt)

	require.NoError(t, s.CreateOrder(ctx, newOrder("o2", "alice", "s1", base)))
	_, err = s.TransitionOrder(ctx, order.Transition{
		OrderID: "o2", From: order.StatusUnpaid, To: order.StatusCancelled, Stamp: order.StampTimeout, At: cancelAt,
	})
	require.NoError(t, err)
	got, err = s.GetOrder(ctx, "o2")
	require.NoError(t, err)
	require.NotNil(t, got.TimeoutAt)
	assert.True(t, cancelAt.Equal(*got.TimeoutAt))
	assert.Nil(t, got.CancelledAt)
}

func testConcurrentTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateOrder(ctx, newOrder("o1", "alice", "s1", base)))

	var won atomic.Int64
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			to, stamp := order.StatusPaid, order.StampPay
			if i%2 == 1 {
				to, stamp = order.StatusCancelled, order.StampCancel
			}
			_, err := s.TransitionOrder(ctx, order.Transition{
				OrderID: "o1", From: order.StatusUnpaid, To: to, Stamp: stamp, At: base,
			})
			if err == nil {
				won.Add(1)
				return
			}
			assert.ErrorIs(t, err, bookstore.ErrOrderStatusMismatch)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), won.Load())
}

func testRevertCancellation(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateOrder(ctx, newOrder("o1", "alice", "s1", base)))

	assert.ErrorIs(t, s.RevertCancellation(ctx, "o1", order.StatusPaid), bookstore.ErrOrderStatusMismatch)

	for _, tr := range []order.Transition{
		{OrderID: "o1", From: order.StatusUnpaid, To: order.StatusPaid, Stamp: order.StampPay, At: base},
		{OrderID: "o1", From: order.StatusPaid, To: order.StatusCancelled, Stamp: order.StampCancel, At: base},
	} {
		_, err := s.TransitionOrder(ctx, tr)
		require.NoError(t, err)
	}

	require.NoError(t, s.RevertCancellation(ctx, "o1", order.StatusPaid))

	got, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
	assert.Nil(t, got.CancelledAt)
	assert.NotNil(t, got.PaidAt)
}

func testListOrders(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i := range 12 {
		buyer, storeID := "alice", "s1"
		if i%3 == 0 {
			buyer = "bob"
		}
		if i%4 == 0 {
			storeID = "s2"
		}
		o := newOrder(fmt.Sprintf("o%02d", i), buyer, storeID, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.CreateOrder(ctx, o))
	}
	_, err := s.TransitionOrder(ctx, order.Transition{
		OrderID: "o11", From: order.StatusUnpaid, To: order.StatusPaid, Stamp: order.StampPay, At: base,
	})
	require.NoError(t, err)

	// alice owns 1,2,4,5,7,8,10,11
	orders, total, err := s.ListOrders(ctx, order.ListOpts{BuyerID: "alice", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(8), total)
	require.Len(t, orders, 3)
	assert.Equal(t, []string{"o11", "o10", "o08"}, ids(orders))

	orders, total, err = s.ListOrders(ctx, order.ListOpts{BuyerID: "alice", Limit: 3, Offset: 6})
	require.NoError(t, err)
	assert.Equal(t, int64(8), total)
	assert.Equal(t, []string{"o02", "o01"}, ids(orders))

	orders, total, err = s.ListOrders(ctx, order.ListOpts{BuyerID: "alice", Status: order.StatusPaid, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"o11"}, ids(orders))

	orders, total, err = s.ListOrders(ctx, order.ListOpts{StoreID: "s2", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{"o08", "o04", "o00"}, ids(orders))

	orders, total, err = s.ListOrders(ctx, order.ListOpts{BuyerID: "carol", Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
}

func testListExpired(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i := range 5 {
		o := newOrder(fmt.Sprintf("o%d", i), "alice", "s1", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, s.CreateOrder(ctx, o))
	}
	_, err := s.TransitionOrder(ctx, order.Transition{
		OrderID: "o0", From: order.StatusUnpaid, To: order.StatusPaid, Stamp: order.StampPay, At: base,
	})
	require.NoError(t, err)

	cutoff := base.Add(3 * time.Hour)
	orders, err := s.ListExpired(ctx, cutoff, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2"}, ids(orders))

	orders, err = s.ListExpired(ctx, cutoff, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, ids(orders))
}

func testMigrate(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))
}

func ids(orders []*order.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}
