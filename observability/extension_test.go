package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bookstore/observability"
	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/plugin"
)

func TestMetricsExtension(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	require.NoError(t, m.OnUserRegistered(ctx, "alice"))
	require.NoError(t, m.OnFundsAdded(ctx, "alice", 500))
	require.NoError(t, m.OnFundsAdded(ctx, "alice", -200))
	require.NoError(t, m.OnBookAdded(ctx, "s1", "A", 7))

	paid := &order.Order{ID: "o1", TotalAmount: 250}
	require.NoError(t, m.OnOrderCreated(ctx, paid))
	require.NoError(t, m.OnOrderPaid(ctx, paid))

	now := time.Now()
	require.NoError(t, m.OnOrderCancelled(ctx, &order.Order{ID: "o2", CancelledAt: &now}))
	require.NoError(t, m.OnOrderCancelled(ctx, &order.Order{ID: "o3", TimeoutAt: &now}))
	require.NoError(t, m.OnOrdersExpired(ctx, 3, 12*time.Millisecond))

	require.NoError(t, m.OnCompensation(ctx, plugin.Compensation{Operation: "pay"}))
	require.NoError(t, m.OnCompensation(ctx, plugin.Compensation{Operation: "cancel", Err: errors.New("boom")}))
	require.NoError(t, m.OnInconsistency(ctx, plugin.Inconsistency{Operation: "ship"}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UserRegistered.(prometheus.Counter)))
	assert.Equal(t, 500.0, testutil.ToFloat64(m.FundsAdded.(prometheus.Counter)))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.FundsWithdrawn.(prometheus.Counter)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.StockListed.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrderPaid.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrderCancelled.(prometheus.Counter)), "timeouts are not buyer cancellations")
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OrderExpired.(prometheus.Counter)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Compensations.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompensationFailures.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Inconsistencies.(prometheus.Counter)))
}

func TestPrometheusFactoryNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg)

	f.Counter("bookstore.order.paid").Inc()
	f.Histogram("bookstore.sweep.latency_ms").Observe(3)

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.ElementsMatch(t, []string{"bookstore_order_paid_total", "bookstore_sweep_latency_ms"}, names)
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	a := observability.NewPrometheusFactory(reg).Counter("bookstore.order.created")
	b := observability.NewPrometheusFactory(reg).Counter("bookstore.order.created")
	a.Inc()
	b.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.(prometheus.Counter)))
}
