// Package memory provides an in-process store.Store. Every method holds a
// single lock for its whole read-modify-write, which gives the same
// per-document linearizability the document backends provide.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/bookstore"
	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/shop"
	bookstorestore "github.com/xraph/bookstore/store"
	"github.com/xraph/bookstore/user"
)

// compile-time interface check
var _ bookstorestore.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	users  map[string]*user.User
	shops  map[string]*shop.Shop
	orders map[string]*order.Order
}

func New() *Store {
	return &Store{
		users:  make(map[string]*user.User),
		shops:  make(map[string]*shop.Shop),
		orders: make(map[string]*order.Order),
	}
}

// ==================== User Store ====================

func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return fmt.Errorf("%w: %s", bookstore.ErrUserExists, u.ID)
	}
	s.users[u.ID] = u.Clone()
	return nil
}

func (s *Store) GetUser(_ context.Context, userID string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.users[userID]; ok {
		return u.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID)
}

func (s *Store) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID)
	}
	delete(s.users, userID)
	return nil
}

func (s *Store) SetPasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID)
	}
	u.PasswordHash = hash
	u.Touch()
	return nil
}

func (s *Store) IncrementBalance(_ context.Context, userID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID)
	}
	u.Balance += amount
	u.Touch()
	return nil
}

func (s *Store) DecrementBalanceIfSufficient(_ context.Context, userID string, amount int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok || u.Balance < amount {
		return false, nil
	}
	u.Balance -= amount
	u.Touch()
	return true, nil
}

// ==================== Shop Store ====================

func (s *Store) CreateShop(_ context.Context, sh *shop.Shop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.shops[sh.ID]; exists {
		return fmt.Errorf("%w: %s", bookstore.ErrStoreExists, sh.ID)
	}
	s.shops[sh.ID] = sh.Clone()
	return nil
}

func (s *Store) GetShop(_ context.Context, shopID string) (*shop.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sh, ok := s.shops[shopID]; ok {
		return sh.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", bookstore.ErrStoreNotFound, shopID)
}

func (s *Store) AppendLine(_ context.Context, shopID string, line shop.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shops[shopID]
	if !ok {
		return fmt.Errorf("%w: %s", bookstore.ErrStoreNotFound, shopID)
	}
	if _, exists := sh.Line(line.BookID); exists {
		return fmt.Errorf("%w: %s", bookstore.ErrBookExists, line.BookID)
	}
	line.Book = line.Book.Clone()
	sh.Inventory = append(sh.Inventory, line)
	sh.Touch()
	return nil
}

func (s *Store) IncrementStock(_ context.Context, shopID, bookID string, qty int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.line(shopID, bookID)
	if l == nil {
		return false, nil
	}
	l.StockLevel += qty
	return true, nil
}

func (s *Store) DecrementStockIfSufficient(_ context.Context, shopID, bookID string, qty int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.line(shopID, bookID)
	if l == nil || l.StockLevel < qty {
		return false, nil
	}
	l.StockLevel -= qty
	return true, nil
}

// line returns a pointer into the stored inventory. Callers hold s.mu.
func (s *Store) line(shopID, bookID string) *shop.Line {
	sh, ok := s.shops[shopID]
	if !ok {
		return nil
	}
	for i := range sh.Inventory {
		if sh.Inventory[i].BookID == bookID {
			return &sh.Inventory[i]
		}
	}
	return nil
}

// ==================== Order Store ====================

func (s *Store) CreateOrder(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID]; exists {
		return fmt.Errorf("%w: %s", bookstore.ErrOrderExists, o.ID)
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o, ok := s.orders[orderID]; ok {
		return o.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", bookstore.ErrOrderNotFound, orderID)
}

func (s *Store) TransitionOrder(_ context.Context, t order.Transition) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[t.OrderID]
	if !ok || o.Status != t.From {
		return nil, fmt.Errorf("%w: %s is not %s", bookstore.ErrOrderStatusMismatch, t.OrderID, t.From)
	}
	prev := o.Clone()
	o.Apply(t)
	return prev, nil
}

func (s *Store) RevertCancellation(_ context.Context, orderID string, restore order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.Status != order.StatusCancelled {
		return fmt.Errorf("%w: %s is not cancelled", bookstore.ErrOrderStatusMismatch, orderID)
	}
	o.Status = restore
	o.CancelledAt = nil
	return nil
}

func (s *Store) ListOrders(_ context.Context, opts order.ListOpts) ([]*order.Order, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*order.Order, 0)
	for _, o := range s.orders {
		if opts.BuyerID != "" && o.BuyerID != opts.BuyerID {
			continue
		}
		if opts.StoreID != "" && o.StoreID != opts.StoreID {
			continue
		}
		if opts.Status != "" && o.Status != opts.Status {
			continue
		}
		matched = append(matched, o)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))

	// Apply limit/offset
	start := opts.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(matched) {
		end = len(matched)
	}

	result := make([]*order.Order, 0, end-start)
	for _, o := range matched[start:end] {
		result = append(result, o.Clone())
	}
	return result, total, nil
}

func (s *Store) ListExpired(_ context.Context, before time.Time, limit int) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expired := make([]*order.Order, 0)
	for _, o := range s.orders {
		if o.Status == order.StatusUnpaid && o.CreatedAt.Before(before) {
			expired = append(expired, o)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].CreatedAt.Before(expired[j].CreatedAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	result := make([]*order.Order, len(expired))
	for i, o := range expired {
		result[i] = o.Clone()
	}
	return result, nil
}

// ==================== Core ====================

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }
