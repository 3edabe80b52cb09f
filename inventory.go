package bookstore

import (
	"context"
	"fmt"

	"github.com/xraph/bookstore/shop"
)

// InventoryManager is the only writer of stock levels. Each call targets
// exactly one line, addressed by (store id, book id).
type InventoryManager struct {
	shops shop.Store
}

// NewInventoryManager returns a manager over shops.
func NewInventoryManager(shops shop.Store) *InventoryManager {
	return &InventoryManager{shops: shops}
}

// DecrementIfSufficient takes qty copies only if the line still has that
// many at the moment of the write.
func (m *InventoryManager) DecrementIfSufficient(ctx context.Context, storeID, bookID string, qty int64) (bool, error) {
	if qty < 0 {
		return false, fmt.Errorf("%w: decrement %d", ErrInvalidAmount, qty)
	}
	matched, err := m.shops.DecrementStockIfSufficient(ctx, storeID, bookID, qty)
	if err != nil {
		return false, Unavailable("decrement stock", err)
	}
	return matched, nil
}

// Increment returns qty copies to the line. matched is false when the
// store or the line no longer exists.
func (m *InventoryManager) Increment(ctx context.Context, storeID, bookID string, qty int64) (bool, error) {
	if qty < 0 {
		return false, fmt.Errorf("%w: increment %d", ErrInvalidAmount, qty)
	}
	matched, err := m.shops.IncrementStock(ctx, storeID, bookID, qty)
	if err != nil {
		return false, Unavailable("increment stock", err)
	}
	return matched, nil
}

// AppendLine lists a new book in the store.
func (m *InventoryManager) AppendLine(ctx context.Context, storeID string, line shop.Line) error {
	switch {
	case line.BookID == "":
		return fmt.Errorf("%w: empty book id", ErrBadRequest)
	case line.StockLevel < 0:
		return fmt.Errorf("%w: stock level %d", ErrInvalidAmount, line.StockLevel)
	case line.UnitPrice < 0:
		return fmt.Errorf("%w: unit price %d", ErrInvalidAmount, line.UnitPrice)
	}
	if err := m.shops.AppendLine(ctx, storeID, line); err != nil {
		return Unavailable("append line", err)
	}
	return nil
}

// Restock applies a signed stock adjustment to an existing line. Removals
// never take the line below zero.
func (m *InventoryManager) Restock(ctx context.Context, storeID, bookID string, delta int64) error {
	var (
		matched bool
		err     error
	)
	if delta >= 0 {
		matched, err = m.Increment(ctx, storeID, bookID, delta)
	} else {
		matched, err = m.DecrementIfSufficient(ctx, storeID, bookID, -delta)
	}
	if err != nil {
		return err
	}
	if matched {
		return nil
	}
	return m.missOrShort(ctx, storeID, bookID)
}

// missOrShort explains why a line update matched nothing.
func (m *InventoryManager) missOrShort(ctx context.Context, storeID, bookID string) error {
	s, err := m.shops.GetShop(ctx, storeID)
	if err != nil {
		return Unavailable("get store", err)
	}
	if _, ok := s.Line(bookID); !ok {
		return fmt.Errorf("%w: %s in %s", ErrBookNotFound, bookID, storeID)
	}
	return fmt.Errorf("%w: %s in %s", ErrStockTooLow, bookID, storeID)
}
