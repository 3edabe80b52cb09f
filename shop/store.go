package shop

import "context"

// Store is the persistence capability the inventory manager depends on.
// Each stock mutation targets exactly one line, identified by book id,
// inside one shop document.
type Store interface {
	CreateShop(ctx context.Context, s *Shop) error
	GetShop(ctx context.Context, shopID string) (*Shop, error)

	// AppendLine adds a new line. It fails with ErrStoreNotFound or
	// ErrBookExists.
	AppendLine(ctx context.Context, shopID string, line Line) error

	// IncrementStock adds qty to the line. matched is false when the shop
	// or the line does not exist.
	IncrementStock(ctx context.Context, shopID, bookID string, qty int64) (matched bool, err error)

	// DecrementStockIfSufficient subtracts qty only while the stored
	// stock level is still >= qty.
	DecrementStockIfSufficient(ctx context.Context, shopID, bookID string, qty int64) (matched bool, err error)
}
