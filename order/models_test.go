package order_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/shop"
)

func TestStatusTransitions(t *testing.T) {
	all := []order.Status{
		order.StatusUnpaid, order.StatusPaid, order.StatusShipped,
		order.StatusDelivered, order.StatusCancelled,
	}
	legal := map[[2]order.Status]bool{
		{order.StatusUnpaid, order.StatusPaid}:       true,
		{order.StatusUnpaid, order.StatusCancelled}:  true,
		{order.StatusPaid, order.StatusShipped}:      true,
		{order.StatusPaid, order.StatusCancelled}:    true,
		{order.StatusShipped, order.StatusDelivered}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := legal[[2]order.Status{from, to}]
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestCancellable(t *testing.T) {
	assert.True(t, order.StatusUnpaid.Cancellable())
	assert.True(t, order.StatusPaid.Cancellable())
	assert.False(t, order.StatusShipped.Cancellable())
	assert.False(t, order.StatusDelivered.Cancellable())
	assert.False(t, order.StatusCancelled.Cancellable())
	assert.False(t, order.Status("bogus").Valid())
}

func TestTerminal(t *testing.T) {
	assert.True(t, order.StatusDelivered.Terminal())
	assert.True(t, order.StatusCancelled.Terminal())
	assert.False(t, order.StatusUnpaid.Terminal())
	assert.False(t, order.StatusShipped.Terminal())
	assert.False(t, order.Status("bogus").Terminal())
}

func TestTotal(t *testing.T) {
	items := []order.Item{
		{BookID: "a", Quantity: 2, UnitPrice: 100},
		{BookID: "b", Quantity: 1, UnitPrice: 50},
	}
	assert.Equal(t, int64(250), order.Total(items))
	assert.Equal(t, int64(0), order.Total(nil))
}

func TestApplyStampsOnlyTheNamedField(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o := &order.Order{Status: order.StatusUnpaid}

	o.Apply(order.Transition{From: order.StatusUnpaid, To: order.StatusCancelled, Stamp: order.StampTimeout, At: now})

	assert.Equal(t, order.StatusCancelled, o.Status)
	require.NotNil(t, o.TimeoutAt)
	assert.True(t, o.TimeoutAt.Equal(now))
	assert.Nil(t, o.CancelledAt)
	assert.Nil(t, o.PaidAt)
}

func TestCloneIsDeep(t *testing.T) {
	paid := time.Now()
	o := &order.Order{
		ID:     "o1",
		Items:  []order.Item{{BookID: "a", Quantity: 1, UnitPrice: 10, Book: shop.Book{Tags: []string{"x"}}}},
		PaidAt: &paid,
	}

	c := o.Clone()
	c.Items[0].Book.Tags[0] = "y"
	c.Items[0].Quantity = 5
	*c.PaidAt = paid.Add(time.Hour)

	assert.Equal(t, "x", o.Items[0].Book.Tags[0])
	assert.Equal(t, int64(1), o.Items[0].Quantity)
	assert.True(t, o.PaidAt.Equal(paid))
}
