// Package plugin provides an extensible plugin system for the bookstore
// engine. Plugins hook into account, inventory and order lifecycle events.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/bookstore/order"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnUserRegistered is called after a new user is persisted.
type OnUserRegistered interface {
	Plugin
	OnUserRegistered(ctx context.Context, userID string) error
}

// OnFundsAdded is called after a balance top-up (amount may be negative).
type OnFundsAdded interface {
	Plugin
	OnFundsAdded(ctx context.Context, userID string, amount int64) error
}

// ──────────────────────────────────────────────────
// Inventory hooks
// ──────────────────────────────────────────────────

// OnStoreCreated is called after a seller opens a store.
type OnStoreCreated interface {
	Plugin
	OnStoreCreated(ctx context.Context, storeID, ownerID string) error
}

// OnBookAdded is called after a new inventory line is listed.
type OnBookAdded interface {
	Plugin
	OnBookAdded(ctx context.Context, storeID, bookID string, stock int64) error
}

// ──────────────────────────────────────────────────
// Order lifecycle hooks
// ──────────────────────────────────────────────────

// OnOrderCreated is called after an order is persisted as unpaid.
type OnOrderCreated interface {
	Plugin
	OnOrderCreated(ctx context.Context, o *order.Order) error
}

// OnOrderPaid is called after the buyer was debited and the order moved
// to paid.
type OnOrderPaid interface {
	Plugin
	OnOrderPaid(ctx context.Context, o *order.Order) error
}

// OnOrderShipped is called after stock was taken and the order moved to
// shipped.
type OnOrderShipped interface {
	Plugin
	OnOrderShipped(ctx context.Context, o *order.Order) error
}

// OnOrderDelivered is called after the order moved to delivered.
type OnOrderDelivered interface {
	Plugin
	OnOrderDelivered(ctx context.Context, o *order.Order) error
}

// OnOrderCancelled is called after a buyer cancellation or a timeout.
// Timed-out orders carry TimeoutAt instead of CancelledAt.
type OnOrderCancelled interface {
	Plugin
	OnOrderCancelled(ctx context.Context, o *order.Order) error
}

// OnOrdersExpired is called once per sweep that cancelled at least one
// order.
type OnOrdersExpired interface {
	Plugin
	OnOrdersExpired(ctx context.Context, count int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Consistency hooks
// ──────────────────────────────────────────────────

// Compensation describes an undo step the engine ran after a partially
// applied operation.
type Compensation struct {
	Operation string
	OrderID   string
	Action    string
	Err       error
}

// OnCompensation is called after every compensating write, successful or
// not. Err is set when the compensation itself failed.
type OnCompensation interface {
	Plugin
	OnCompensation(ctx context.Context, c Compensation) error
}

// Inconsistency describes a state the engine knowingly left uncorrected.
type Inconsistency struct {
	Operation string
	OrderID   string
	Detail    string
	Err       error
}

// OnInconsistency is called when a durable partial effect remains, for
// example stock taken for a shipment that lost its commit race.
type OnInconsistency interface {
	Plugin
	OnInconsistency(ctx context.Context, i Inconsistency) error
}
