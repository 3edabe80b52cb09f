// Package observability provides a metrics extension for the bookstore
// engine that records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin           = (*MetricsExtension)(nil)
	_ plugin.OnUserRegistered = (*MetricsExtension)(nil)
	_ plugin.OnFundsAdded     = (*MetricsExtension)(nil)
	_ plugin.OnStoreCreated   = (*MetricsExtension)(nil)
	_ plugin.OnBookAdded      = (*MetricsExtension)(nil)
	_ plugin.OnOrderCreated   = (*MetricsExtension)(nil)
	_ plugin.OnOrderPaid      = (*MetricsExtension)(nil)
	_ plugin.OnOrderShipped   = (*MetricsExtension)(nil)
	_ plugin.OnOrderDelivered = (*MetricsExtension)(nil)
	_ plugin.OnOrderCancelled = (*MetricsExtension)(nil)
	_ plugin.OnOrdersExpired  = (*MetricsExtension)(nil)
	_ plugin.OnCompensation   = (*MetricsExtension)(nil)
	_ plugin.OnInconsistency  = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a bookstore plugin to track order flow and money movement.
type MetricsExtension struct {
	// Account metrics
	UserRegistered Counter
	FundsAdded     Counter
	FundsWithdrawn Counter

	// Inventory metrics
	StoreCreated Counter
	BookAdded    Counter
	StockListed  Counter

	// Order metrics
	OrderCreated   Counter
	OrderPaid      Counter
	OrderShipped   Counter
	OrderDelivered Counter
	OrderCancelled Counter
	OrderExpired   Counter
	OrderValue     Histogram
	SweepLatency   Histogram

	// Consistency metrics
	Compensations        Counter
	CompensationFailures Counter
	Inconsistencies      Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions or NewPrometheusFactory elsewhere.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		UserRegistered: factory.Counter("bookstore.user.registered"),
		FundsAdded:     factory.Counter("bookstore.funds.added"),
		FundsWithdrawn: factory.Counter("bookstore.funds.withdrawn"),

		StoreCreated: factory.Counter("bookstore.store.created"),
		BookAdded:    factory.Counter("bookstore.book.added"),
		StockListed:  factory.Counter("bookstore.stock.listed"),

		OrderCreated:   factory.Counter("bookstore.order.created"),
		OrderPaid:      factory.Counter("bookstore.order.paid"),
		OrderShipped:   factory.Counter("bookstore.order.shipped"),
		OrderDelivered: factory.Counter("bookstore.order.delivered"),
		OrderCancelled: factory.Counter("bookstore.order.cancelled"),
		OrderExpired:   factory.Counter("bookstore.order.expired"),
		OrderValue:     factory.Histogram("bookstore.order.value"),
		SweepLatency:   factory.Histogram("bookstore.sweep.latency_ms"),

		Compensations:        factory.Counter("bookstore.compensation.total"),
		CompensationFailures: factory.Counter("bookstore.compensation.failures"),
		Inconsistencies:      factory.Counter("bookstore.inconsistency.total"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ──────────────────────────────────────────────────
// Account and inventory hooks
// ──────────────────────────────────────────────────

// OnUserRegistered implements plugin.OnUserRegistered.
func (m *MetricsExtension) OnUserRegistered(_ context.Context, _ string) error {
	m.UserRegistered.Inc()
	return nil
}

// OnFundsAdded implements plugin.OnFundsAdded.
func (m *MetricsExtension) OnFundsAdded(_ context.Context, _ string, amount int64) error {
	if amount < 0 {
		m.FundsWithdrawn.Add(float64(-amount))
		return nil
	}
	m.FundsAdded.Add(float64(amount))
	return nil
}

// OnStoreCreated implements plugin.OnStoreCreated.
func (m *MetricsExtension) OnStoreCreated(_ context.Context, _, _ string) error {
	m.StoreCreated.Inc()
	return nil
}

// OnBookAdded implements plugin.OnBookAdded.
func (m *MetricsExtension) OnBookAdded(_ context.Context, _, _ string, stock int64) error {
	m.BookAdded.Inc()
	m.StockListed.Add(float64(stock))
	return nil
}

// ──────────────────────────────────────────────────
// Order lifecycle hooks
// ──────────────────────────────────────────────────

// OnOrderCreated implements plugin.OnOrderCreated.
func (m *MetricsExtension) OnOrderCreated(_ context.Context, _ *order.Order) error {
	m.OrderCreated.Inc()
	return nil
}

// OnOrderPaid implements plugin.OnOrderPaid.
func (m *MetricsExtension) OnOrderPaid(_ context.Context, o *order.Order) error {
	m.OrderPaid.Inc()
	m.OrderValue.Observe(float64(o.TotalAmount))
	return nil
}

// OnOrderShipped implements plugin.OnOrderShipped.
func (m *MetricsExtension) OnOrderShipped(_ context.Context, _ *order.Order) error {
	m.OrderShipped.Inc()
	return nil
}

// OnOrderDelivered implements plugin.OnOrderDelivered.
func (m *MetricsExtension) OnOrderDelivered(_ context.Context, _ *order.Order) error {
	m.OrderDelivered.Inc()
	return nil
}

// OnOrderCancelled implements plugin.OnOrderCancelled. Timeouts are
// counted by OnOrdersExpired.
func (m *MetricsExtension) OnOrderCancelled(_ context.Context, o *order.Order) error {
	if o.TimeoutAt == nil {
		m.OrderCancelled.Inc()
	}
	return nil
}

// OnOrdersExpired implements plugin.OnOrdersExpired.
func (m *MetricsExtension) OnOrdersExpired(_ context.Context, count int, elapsed time.Duration) error {
	m.OrderExpired.Add(float64(count))
	m.SweepLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Consistency hooks
// ──────────────────────────────────────────────────

// OnCompensation implements plugin.OnCompensation.
func (m *MetricsExtension) OnCompensation(_ context.Context, c plugin.Compensation) error {
	m.Compensations.Inc()
	if c.Err != nil {
		m.CompensationFailures.Inc()
	}
	return nil
}

// OnInconsistency implements plugin.OnInconsistency.
func (m *MetricsExtension) OnInconsistency(_ context.Context, _ plugin.Inconsistency) error {
	m.Inconsistencies.Inc()
	return nil
}
