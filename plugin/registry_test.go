package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/plugin"
)

type named struct{ name string }

func (n named) Name() string { return n.name }

type orderHooks struct {
	named
	mu     sync.Mutex
	events []string
	err    error
	block  chan struct{}
}

func (h *orderHooks) record(evt string) error {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, evt)
	return h.err
}

func (h *orderHooks) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *orderHooks) OnOrderCreated(_ context.Context, o *order.Order) error {
	return h.record("created:" + o.ID)
}

func (h *orderHooks) OnOrderCancelled(_ context.Context, o *order.Order) error {
	return h.record("cancelled:" + o.ID)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := plugin.NewRegistry()
	require.NoError(t, r.Register(named{"a"}))
	require.NoError(t, r.Register(named{"b"}))
	assert.Error(t, r.Register(named{"a"}))

	assert.Equal(t, 2, r.Count())
	assert.Equal(t, "b", r.Get("b").Name())
	assert.Nil(t, r.Get("c"))
	assert.Len(t, r.List(), 2)
}

func TestEmitReachesOnlyImplementers(t *testing.T) {
	ctx := context.Background()
	r := plugin.NewRegistry()
	h := &orderHooks{named: named{"orders"}}
	require.NoError(t, r.Register(named{"bare"}))
	require.NoError(t, r.Register(h))

	r.EmitOrderCreated(ctx, &order.Order{ID: "o1"})
	r.EmitOrderPaid(ctx, &order.Order{ID: "o1"})
	r.EmitOrderCancelled(ctx, &order.Order{ID: "o1"})

	assert.Equal(t, []string{"created:o1", "cancelled:o1"}, h.seen())
}

func TestHookErrorsDoNotStopDispatch(t *testing.T) {
	ctx := context.Background()
	r := plugin.NewRegistry()
	failing := &orderHooks{named: named{"failing"}, err: errors.New("boom")}
	ok := &orderHooks{named: named{"ok"}}
	require.NoError(t, r.Register(failing))
	require.NoError(t, r.Register(ok))

	r.EmitOrderCreated(ctx, &order.Order{ID: "o1"})

	assert.Equal(t, []string{"created:o1"}, failing.seen())
	assert.Equal(t, []string{"created:o1"}, ok.seen())
}

func TestSlowHookIsAbandoned(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	h := &orderHooks{named: named{"slow"}, block: make(chan struct{})}
	defer close(h.block)
	require.NoError(t, r.Register(h))

	start := time.Now()
	r.EmitOrderCreated(context.Background(), &order.Order{ID: "o1"})

	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, h.seen())
}
