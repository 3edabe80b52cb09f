package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/bookstore/order"
)

// DefaultHookTimeout bounds how long a single hook may block an engine
// operation.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and dispatches events to them.
// Hook implementations are discovered once at registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit           []OnInit
	onShutdown       []OnShutdown
	onUserRegistered []OnUserRegistered
	onFundsAdded     []OnFundsAdded
	onStoreCreated   []OnStoreCreated
	onBookAdded      []OnBookAdded
	onOrderCreated   []OnOrderCreated
	onOrderPaid      []OnOrderPaid
	onOrderShipped   []OnOrderShipped
	onOrderDelivered []OnOrderDelivered
	onOrderCancelled []OnOrderCancelled
	onOrdersExpired  []OnOrdersExpired
	onCompensation   []OnCompensation
	onInconsistency  []OnInconsistency
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout overrides DefaultHookTimeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its hooks.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnUserRegistered); ok {
		r.onUserRegistered = append(r.onUserRegistered, v)
		hooks = append(hooks, "OnUserRegistered")
	}
	if v, ok := p.(OnFundsAdded); ok {
		r.onFundsAdded = append(r.onFundsAdded, v)
		hooks = append(hooks, "OnFundsAdded")
	}
	if v, ok := p.(OnStoreCreated); ok {
		r.onStoreCreated = append(r.onStoreCreated, v)
		hooks = append(hooks, "OnStoreCreated")
	}
	if v, ok := p.(OnBookAdded); ok {
		r.onBookAdded = append(r.onBookAdded, v)
		hooks = append(hooks, "OnBookAdded")
	}
	if v, ok := p.(OnOrderCreated); ok {
		r.onOrderCreated = append(r.onOrderCreated, v)
		hooks = append(hooks, "OnOrderCreated")
	}
	if v, ok := p.(OnOrderPaid); ok {
		r.onOrderPaid = append(r.onOrderPaid, v)
		hooks = append(hooks, "OnOrderPaid")
	}
	if v, ok := p.(OnOrderShipped); ok {
		r.onOrderShipped = append(r.onOrderShipped, v)
		hooks = append(hooks, "OnOrderShipped")
	}
	if v, ok := p.(OnOrderDelivered); ok {
		r.onOrderDelivered = append(r.onOrderDelivered, v)
		hooks = append(hooks, "OnOrderDelivered")
	}
	if v, ok := p.(OnOrderCancelled); ok {
		r.onOrderCancelled = append(r.onOrderCancelled, v)
		hooks = append(hooks, "OnOrderCancelled")
	}
	if v, ok := p.(OnOrdersExpired); ok {
		r.onOrdersExpired = append(r.onOrdersExpired, v)
		hooks = append(hooks, "OnOrdersExpired")
	}
	if v, ok := p.(OnCompensation); ok {
		r.onCompensation = append(r.onCompensation, v)
		hooks = append(hooks, "OnCompensation")
	}
	if v, ok := p.(OnInconsistency); ok {
		r.onInconsistency = append(r.onInconsistency, v)
		hooks = append(hooks, "OnInconsistency")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission
// ──────────────────────────────────────────────────

// emit runs fn for every cached hook. Hook failures are logged and never
// reach the caller.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, snapshot func() []T, fn func(T) error) {
	r.mu.RLock()
	plugins := snapshot()
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", func() []OnInit { return r.onInit }, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func() []OnShutdown { return r.onShutdown }, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

func (r *Registry) EmitUserRegistered(ctx context.Context, userID string) {
	emit(ctx, r, "OnUserRegistered", func() []OnUserRegistered { return r.onUserRegistered }, func(p OnUserRegistered) error {
		return p.OnUserRegistered(ctx, userID)
	})
}

func (r *Registry) EmitFundsAdded(ctx context.Context, userID string, amount int64) {
	emit(ctx, r, "OnFundsAdded", func() []OnFundsAdded { return r.onFundsAdded }, func(p OnFundsAdded) error {
		return p.OnFundsAdded(ctx, userID, amount)
	})
}

func (r *Registry) EmitStoreCreated(ctx context.Context, storeID, ownerID string) {
	emit(ctx, r, "OnStoreCreated", func() []OnStoreCreated { return r.onStoreCreated }, func(p OnStoreCreated) error {
		return p.OnStoreCreated(ctx, storeID, ownerID)
	})
}

func (r *Registry) EmitBookAdded(ctx context.Context, storeID, bookID string, stock int64) {
	emit(ctx, r, "OnBookAdded", func() []OnBookAdded { return r.onBookAdded }, func(p OnBookAdded) error {
		return p.OnBookAdded(ctx, storeID, bookID, stock)
	})
}

// EmitOrderCreated emits an order created event.
func (r *Registry) EmitOrderCreated(ctx context.Context, o *order.Order) {
	emit(ctx, r, "OnOrderCreated", func() []OnOrderCreated { return r.onOrderCreated }, func(p OnOrderCreated) error {
		return p.OnOrderCreated(ctx, o)
	})
}

// EmitOrderPaid emits an order paid event.
func (r *Registry) EmitOrderPaid(ctx context.Context, o *order.Order) {
	emit(ctx, r, "OnOrderPaid", func() []OnOrderPaid { return r.onOrderPaid }, func(p OnOrderPaid) error {
		return p.OnOrderPaid(ctx, o)
	})
}

// EmitOrderShipped emits an order shipped event.
func (r *Registry) EmitOrderShipped(ctx context.Context, o *order.Order) {
	emit(ctx, r, "OnOrderShipped", func() []OnOrderShipped { return r.onOrderShipped }, func(p OnOrderShipped) error {
		return p.OnOrderShipped(ctx, o)
	})
}

// EmitOrderDelivered emits an order delivered event.
func (r *Registry) EmitOrderDelivered(ctx context.Context, o *order.Order) {
	emit(ctx, r, "OnOrderDelivered", func() []OnOrderDelivered { return r.onOrderDelivered }, func(p OnOrderDelivered) error {
		return p.OnOrderDelivered(ctx, o)
	})
}

// EmitOrderCancelled emits an order cancelled event.
func (r *Registry) EmitOrderCancelled(ctx context.Context, o *order.Order) {
	emit(ctx, r, "OnOrderCancelled", func() []OnOrderCancelled { return r.onOrderCancelled }, func(p OnOrderCancelled) error {
		return p.OnOrderCancelled(ctx, o)
	})
}

// EmitOrdersExpired emits a sweep summary.
func (r *Registry) EmitOrdersExpired(ctx context.Context, count int, elapsed time.Duration) {
	emit(ctx, r, "OnOrdersExpired", func() []OnOrdersExpired { return r.onOrdersExpired }, func(p OnOrdersExpired) error {
		return p.OnOrdersExpired(ctx, count, elapsed)
	})
}

func (r *Registry) EmitCompensation(ctx context.Context, c Compensation) {
	emit(ctx, r, "OnCompensation", func() []OnCompensation { return r.onCompensation }, func(p OnCompensation) error {
		return p.OnCompensation(ctx, c)
	})
}

func (r *Registry) EmitInconsistency(ctx context.Context, i Inconsistency) {
	emit(ctx, r, "OnInconsistency", func() []OnInconsistency { return r.onInconsistency }, func(p OnInconsistency) error {
		return p.OnInconsistency(ctx, i)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the order pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
