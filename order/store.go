package order

import (
	"context"
	"time"
)

// Store is the persistence capability the order state machine and the
// expiry sweeper depend on. Orders are never deleted.
type Store interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// TransitionOrder atomically applies t if the stored status still
	// equals t.From and returns the document as it was before the write.
	// It fails with ErrOrderStatusMismatch when the predicate did not hold.
	TransitionOrder(ctx context.Context, t Transition) (*Order, error)

	// RevertCancellation moves a cancelled order back to restore and
	// clears its cancel time. It is the compensation for a failed refund.
	RevertCancellation(ctx context.Context, orderID string, restore Status) error

	// ListOrders returns one page of matching orders, newest first, and
	// the total number of matches.
	ListOrders(ctx context.Context, opts ListOpts) ([]*Order, int64, error)

	// ListExpired returns up to limit unpaid orders created before the
	// cutoff, oldest first.
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*Order, error)
}
