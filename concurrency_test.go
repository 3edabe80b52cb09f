package bookstore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bookstore"
	"github.com/xraph/bookstore/order"
)

func TestConcurrentPayDebitsOnce(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	orderID := f.newOrder(t)

	const workers = 8
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.engine.Pay(ctx, buyerID, password, orderID)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t,
			errors.Is(err, bookstore.ErrOrderCompleted) ||
				errors.Is(err, bookstore.ErrOrderStatusMismatch) ||
				errors.Is(err, bookstore.ErrInsufficientFunds),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(750), f.balance(t, buyerID))
	assert.Equal(t, order.StatusPaid, f.order(t, orderID).Status)
}

func TestConcurrentPayAndCancelConserveMoney(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	for range 20 {
		orderID := f.newOrder(t)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = f.engine.Pay(ctx, buyerID, password, orderID)
		}()
		go func() {
			defer wg.Done()
			_ = f.engine.Cancel(ctx, buyerID, orderID)
		}()
		wg.Wait()

		o := f.order(t, orderID)
		switch o.Status {
		case order.StatusPaid:
			// Pay won and the cancel saw it too late or lost its race.
			require.NoError(t, f.engine.Cancel(ctx, buyerID, orderID))
		case order.StatusCancelled:
		default:
			t.Fatalf("order %s ended %s", orderID, o.Status)
		}
		assert.Equal(t, int64(1000), f.balance(t, buyerID), "order %s", orderID)
	}
}

func TestConcurrentShipNeverOversells(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	// Five paid orders of 2xA compete for 5 copies.
	require.NoError(t, f.engine.AddStockLevel(ctx, sellerID, storeID, "A", -5))

	var orders []string
	for i := range 5 {
		buyer := fmt.Sprintf("buyer-%d", i)
		require.NoError(t, f.engine.RegisterUser(ctx, buyer, password))
		require.NoError(t, f.engine.AddFunds(ctx, buyer, password, 200))
		orderID, err := f.engine.CreateOrder(ctx, buyer, storeID, []order.LineRequest{{BookID: "A", Quantity: 2}})
		require.NoError(t, err)
		require.NoError(t, f.engine.Pay(ctx, buyer, password, orderID))
		orders = append(orders, orderID)
	}

	errs := make([]error, len(orders))
	var wg sync.WaitGroup
	for i, orderID := range orders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.engine.Ship(ctx, sellerID, orderID)
		}()
	}
	wg.Wait()

	shipped := 0
	for _, err := range errs {
		if err == nil {
			shipped++
			continue
		}
		assert.ErrorIs(t, err, bookstore.ErrStockTooLow)
	}
	assert.Equal(t, 2, shipped)
	assert.Equal(t, int64(1), f.stock(t, "A"))
}

func TestConcurrentMultiLineShipIsAllOrNothing(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	// Only one of the two orders can get the last copy of B.
	require.NoError(t, f.engine.AddStockLevel(ctx, sellerID, storeID, "B", -9))

	var orders []string
	for i := range 2 {
		buyer := fmt.Sprintf("buyer-%d", i)
		require.NoError(t, f.engine.RegisterUser(ctx, buyer, password))
		require.NoError(t, f.engine.AddFunds(ctx, buyer, password, 250))
		orderID, err := f.engine.CreateOrder(ctx, buyer, storeID, []order.LineRequest{
			{BookID: "A", Quantity: 2},
			{BookID: "B", Quantity: 1},
		})
		require.NoError(t, err)
		require.NoError(t, f.engine.Pay(ctx, buyer, password, orderID))
		orders = append(orders, orderID)
	}

	var wg sync.WaitGroup
	for _, orderID := range orders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.engine.Ship(ctx, sellerID, orderID)
		}()
	}
	wg.Wait()

	shipped := 0
	for _, orderID := range orders {
		if f.order(t, orderID).Status == order.StatusShipped {
			shipped++
		}
	}
	assert.Equal(t, 1, shipped)
	assert.Equal(t, int64(8), f.stock(t, "A"))
	assert.Equal(t, int64(0), f.stock(t, "B"))
}
