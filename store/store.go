package store

import (
	"context"

	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/shop"
	"github.com/xraph/bookstore/user"
)

// Store is the unified storage interface for all Bookstore records. It
// offers single-document conditional read-modify-write and nothing
// stronger; the engine composes multi-document operations out of these
// steps plus explicit compensation.
type Store interface {
	user.Store
	shop.Store
	order.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
