// Package postgres implements store.Store on PostgreSQL via pgx. Each
// guarded mutation is one UPDATE whose WHERE clause carries the guard, so
// row-level locking gives the same single-record atomicity the other
// backends provide.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/bookstore"
	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/shop"
	bookstorestore "github.com/xraph/bookstore/store"
	"github.com/xraph/bookstore/user"
)

// PostgreSQL error codes the store translates.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// compile-time interface check
var _ bookstorestore.Store = (*Store)(nil)

// Store implements store.Store using a pgx connection pool.
type Store struct {
	pool  *pgxpool.Pool
	owned bool
}

// New creates a store over an existing pool. Close leaves the pool open.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and returns a store that owns the pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, bookstore.Unavailable("postgres: connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, bookstore.Unavailable("postgres: ping", err)
	}
	return &Store{pool: pool, owned: true}, nil
}

// Pool returns the underlying connection pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate runs all pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if err := migrate(ctx, s.pool); err != nil {
		return bookstore.Unavailable("postgres: migrate", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return bookstore.Unavailable("postgres: ping", err)
	}
	return nil
}

// Close closes the pool if the store opened it.
func (s *Store) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}

// ==================== User Store ====================

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, password_hash, balance, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.PasswordHash, u.Balance, u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if err != nil {
		if isCode(err, codeUniqueViolation) {
			return fmt.Errorf("%w: %s", bookstore.ErrUserExists, u.ID)
		}
		return bookstore.Unavailable("postgres: create user", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*user.User, error) {
	u := &user.User{ID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT password_hash, balance, created_at, updated_at FROM users WHERE id = $1`, userID,
	).Scan(&u.PasswordHash, &u.Balance, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID)
		}
		return nil, bookstore.Unavailable("postgres: get user", err)
	}
	u.CreatedAt, u.UpdatedAt = u.CreatedAt.UTC(), u.UpdatedAt.UTC()
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return bookstore.Unavailable("postgres: delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID)
	}
	return nil
}

func (s *Store) SetPasswordHash(ctx context.Context, userID, hash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, userID, hash, now(),
	)
	if err != nil {
		return bookstore.Unavailable("postgres: set password", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID)
	}
	return nil
}

func (s *Store) IncrementBalance(ctx context.Context, userID string, amount int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET balance = balance + $2, updated_at = $3 WHERE id = $1`, userID, amount, now(),
	)
	if err != nil {
		return bookstore.Unavailable("postgres: increment balance", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID)
	}
	return nil
}

func (s *Store) DecrementBalanceIfSufficient(ctx context.Context, userID string, amount int64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET balance = balance - $2, updated_at = $3 WHERE id = $1 AND balance >= $2`,
		userID, amount, now(),
	)
	if err != nil {
		return false, bookstore.Unavailable("postgres: decrement balance", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ==================== Shop Store ====================

func (s *Store) CreateShop(ctx context.Context, sh *shop.Shop) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO stores (id, owner_id, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
			sh.ID, sh.OwnerID, sh.CreatedAt.UTC(), sh.UpdatedAt.UTC(),
		); err != nil {
			return err
		}
		for _, l := range sh.Inventory {
			if err := insertLine(ctx, tx, sh.ID, l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isCode(err, codeUniqueViolation) {
			return fmt.Errorf("%w: %s", bookstore.ErrStoreExists, sh.ID)
		}
		return bookstore.Unavailable("postgres: create store", err)
	}
	return nil
}

func (s *Store) GetShop(ctx context.Context, shopID string) (*shop.Shop, error) {
	sh := &shop.Shop{ID: shopID, Inventory: []shop.Line{}}
	err := s.pool.QueryRow(ctx,
		`SELECT owner_id, created_at, updated_at FROM stores WHERE id = $1`, shopID,
	).Scan(&sh.OwnerID, &sh.CreatedAt, &sh.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", bookstore.ErrStoreNotFound, shopID)
		}
		return nil, bookstore.Unavailable("postgres: get store", err)
	}
	sh.CreatedAt, sh.UpdatedAt = sh.CreatedAt.UTC(), sh.UpdatedAt.UTC()

	rows, err := s.pool.Query(ctx,
		`SELECT book_id, stock_level, unit_price, book_info FROM inventory_lines
		 WHERE store_id = $1 ORDER BY seq`, shopID,
	)
	if err != nil {
		return nil, bookstore.Unavailable("postgres: get inventory", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l   shop.Line
			raw []byte
		)
		if err := rows.Scan(&l.BookID, &l.StockLevel, &l.UnitPrice, &raw); err != nil {
			return nil, bookstore.Unavailable("postgres: scan inventory", err)
		}
		if l.Book, err = unmarshalBook(raw); err != nil {
			return nil, bookstore.Unavailable("postgres: scan inventory", err)
		}
		sh.Inventory = append(sh.Inventory, l)
	}
	if err := rows.Err(); err != nil {
		return nil, bookstore.Unavailable("postgres: get inventory", err)
	}
	return sh, nil
}

func (s *Store) AppendLine(ctx context.Context, shopID string, line shop.Line) error {
	if err := insertLine(ctx, s.pool, shopID, line); err != nil {
		switch {
		case isCode(err, codeUniqueViolation):
			return fmt.Errorf("%w: %s", bookstore.ErrBookExists, line.BookID)
		case isCode(err, codeForeignKeyViolation):
			return fmt.Errorf("%w: %s", bookstore.ErrStoreNotFound, shopID)
		}
		return bookstore.Unavailable("postgres: append line", err)
	}
	return nil
}

func (s *Store) IncrementStock(ctx context.Context, shopID, bookID string, qty int64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE inventory_lines SET stock_level = stock_level + $3 WHERE store_id = $1 AND book_id = $2`,
		shopID, bookID, qty,
	)
	if err != nil {
		return false, bookstore.Unavailable("postgres: increment stock", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) DecrementStockIfSufficient(ctx context.Context, shopID, bookID string, qty int64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE inventory_lines SET stock_level = stock_level - $3
		 WHERE store_id = $1 AND book_id = $2 AND stock_level >= $3`,
		shopID, bookID, qty,
	)
	if err != nil {
		return false, bookstore.Unavailable("postgres: decrement stock", err)
	}
	return tag.RowsAffected() == 1, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertLine(ctx context.Context, db execer, shopID string, l shop.Line) error {
	info, err := marshalBook(l.Book)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx,
		`INSERT INTO inventory_lines (store_id, book_id, stock_level, unit_price, book_info)
		 VALUES ($1, $2, $3, $4, $5)`,
		shopID, l.BookID, l.StockLevel, l.UnitPrice, info,
	)
	return err
}

// ==================== Order Store ====================

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	items, err := marshalItems(o.Items)
	if err != nil {
		return fmt.Errorf("postgres: encode items: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO orders (`+orderColumns("")+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.BuyerID, o.StoreID, string(o.Status), o.TotalAmount, items, o.CreatedAt.UTC(),
		o.PaidAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt, o.TimeoutAt,
	)
	if err != nil {
		if isCode(err, codeUniqueViolation) {
			return fmt.Errorf("%w: %s", bookstore.ErrOrderExists, o.ID)
		}
		return bookstore.Unavailable("postgres: create order", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns("")+` FROM orders WHERE id = $1`, orderID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", bookstore.ErrOrderNotFound, orderID)
		}
		return nil, bookstore.Unavailable("postgres: get order", err)
	}
	return o, nil
}

// TransitionOrder locks the row in a CTE and returns the locked image, so
// the guard and the pre-image come from the same statement.
func (s *Store) TransitionOrder(ctx context.Context, t order.Transition) (*order.Order, error) {
	col, err := stampColumn(t.Stamp)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	prev, err := scanOrder(s.pool.QueryRow(ctx, `
WITH prev AS (
    SELECT `+orderColumns("")+` FROM orders WHERE id = $1 AND status = $2 FOR UPDATE
)
UPDATE orders o SET status = $3, `+col+` = $4
FROM prev WHERE o.id = prev.id
RETURNING `+orderColumns("prev"),
		t.OrderID, string(t.From), string(t.To), t.At.UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s is not %s", bookstore.ErrOrderStatusMismatch, t.OrderID, t.From)
		}
		return nil, bookstore.Unavailable("postgres: transition order", err)
	}
	return prev, nil
}

func (s *Store) RevertCancellation(ctx context.Context, orderID string, restore order.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $2, cancel_time = NULL WHERE id = $1 AND status = $3`,
		orderID, string(restore), string(order.StatusCancelled),
	)
	if err != nil {
		return bookstore.Unavailable("postgres: revert cancellation", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s is not cancelled", bookstore.ErrOrderStatusMismatch, orderID)
	}
	return nil
}

func (s *Store) ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.Order, int64, error) {
	var (
		conds []string
		args  []any
	)
	add := func(col, val string) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if opts.BuyerID != "" {
		add("buyer_id", opts.BuyerID)
	}
	if opts.StoreID != "" {
		add("store_id", opts.StoreID)
	}
	if opts.Status != "" {
		add("status", string(opts.Status))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, bookstore.Unavailable("postgres: count orders", err)
	}

	query := `SELECT ` + orderColumns("") + ` FROM orders` + where + ` ORDER BY create_time DESC, id DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	orders, err := s.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, 0, bookstore.Unavailable("postgres: list orders", err)
	}
	return orders, total, nil
}

func (s *Store) ListExpired(ctx context.Context, before time.Time, limit int) ([]*order.Order, error) {
	query := `SELECT ` + orderColumns("") + ` FROM orders
		WHERE status = $1 AND create_time < $2 ORDER BY create_time, id`
	args := []any{string(order.StatusUnpaid), before.UTC()}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	orders, err := s.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, bookstore.Unavailable("postgres: list expired", err)
	}
	return orders, nil
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]*order.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// ==================== Helpers ====================

func now() time.Time {
	return time.Now().UTC()
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
