// Package sqlite implements store.Store on an embedded SQLite database
// using the pure-Go modernc.org/sqlite driver. The pool is limited to one
// connection, so every statement and transaction is serialized and the
// guarded updates are trivially atomic.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xraph/bookstore"
	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/shop"
	bookstorestore "github.com/xraph/bookstore/store"
	"github.com/xraph/bookstore/user"
)

// timeLayout is fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// pragmas are applied on every new connection through the DSN.
var pragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// compile-time interface check
var _ bookstorestore.Store = (*Store)(nil)

// Store implements store.Store using database/sql over modernc.org/sqlite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. Use ":memory:" for a
// private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	for i, p := range pragmas {
		sep := "&"
		if i == 0 {
			sep = "?"
		}
		dsn += sep + "_pragma=" + p
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, bookstore.Unavailable("sqlite: open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, bookstore.Unavailable("sqlite: ping", err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate runs all pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if err := migrate(ctx, s.db); err != nil {
		return bookstore.Unavailable("sqlite: migrate", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return bookstore.Unavailable("sqlite: ping", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== User Store ====================

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, password_hash, balance, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.PasswordHash, u.Balance, formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	if err != nil {
		if isUnique(err) {
			return fmt.Errorf("%w: %s", bookstore.ErrUserExists, u.ID)
		}
		return bookstore.Unavailable("sqlite: create user", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*user.User, error) {
	var created, updated string
	u := &user.User{ID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash, balance, created_at, updated_at FROM users WHERE id = ?`, userID,
	).Scan(&u.PasswordHash, &u.Balance, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID)
		}
		return nil, bookstore.Unavailable("sqlite: get user", err)
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, bookstore.Unavailable("sqlite: get user", err)
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, bookstore.Unavailable("sqlite: get user", err)
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return bookstore.Unavailable("sqlite: delete user", err)
	}
	return requireRow(res, "sqlite: delete user", fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID))
}

func (s *Store) SetPasswordHash(ctx context.Context, userID, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, formatTime(now()), userID,
	)
	if err != nil {
		return bookstore.Unavailable("sqlite: set password", err)
	}
	return requireRow(res, "sqlite: set password", fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID))
}

func (s *Store) IncrementBalance(ctx context.Context, userID string, amount int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET balance = balance + ?, updated_at = ? WHERE id = ?`, amount, formatTime(now()), userID,
	)
	if err != nil {
		return bookstore.Unavailable("sqlite: increment balance", err)
	}
	return requireRow(res, "sqlite: increment balance", fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID))
}

func (s *Store) DecrementBalanceIfSufficient(ctx context.Context, userID string, amount int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET balance = balance - ?, updated_at = ? WHERE id = ? AND balance >= ?`,
		amount, formatTime(now()), userID, amount,
	)
	if err != nil {
		return false, bookstore.Unavailable("sqlite: decrement balance", err)
	}
	return matched(res, "sqlite: decrement balance")
}

// ==================== Shop Store ====================

func (s *Store) CreateShop(ctx context.Context, sh *shop.Shop) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stores (id, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			sh.ID, sh.OwnerID, formatTime(sh.CreatedAt), formatTime(sh.UpdatedAt),
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
		if isUnique(err) {
			return fmt.Errorf("%w: %s", bookstore.ErrStoreExists, sh.ID)
		}
		return bookstore.Unavailable("sqlite: create store", err)
	}
	return nil
}

func (s *Store) GetShop(ctx context.Context, shopID string) (*shop.Shop, error) {
	var created, updated string
	sh := &shop.Shop{ID: shopID, Inventory: []shop.Line{}}
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id, created_at, updated_at FROM stores WHERE id = ?`, shopID,
	).Scan(&sh.OwnerID, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", bookstore.ErrStoreNotFound, shopID)
		}
		return nil, bookstore.Unavailable("sqlite: get store", err)
	}
	if sh.CreatedAt, err = parseTime(created); err != nil {
		return nil, bookstore.Unavailable("sqlite: get store", err)
	}
	if sh.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, bookstore.Unavailable("sqlite: get store", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT book_id, stock_level, unit_price, book_info FROM inventory_lines
		 WHERE store_id = ? ORDER BY rowid`, shopID,
	)
	if err != nil {
		return nil, bookstore.Unavailable("sqlite: get inventory", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l    shop.Line
			info string
		)
		if err := rows.Scan(&l.BookID, &l.StockLevel, &l.UnitPrice, &info); err != nil {
			return nil, bookstore.Unavailable("sqlite: scan inventory", err)
		}
		if err := json.Unmarshal([]byte(info), &l.Book); err != nil {
			return nil, bookstore.Unavailable("sqlite: decode book_info", err)
		}
		sh.Inventory = append(sh.Inventory, l)
	}
	if err := rows.Err(); err != nil {
		return nil, bookstore.Unavailable("sqlite: get inventory", err)
	}
	return sh, nil
}

func (s *Store) AppendLine(ctx context.Context, shopID string, line shop.Line) error {
	if err := insertLine(ctx, s.db, shopID, line); err != nil {
		switch {
		case isUnique(err):
			return fmt.Errorf("%w: %s", bookstore.ErrBookExists, line.BookID)
		case isCode(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY):
			return fmt.Errorf("%w: %s", bookstore.ErrStoreNotFound, shopID)
		}
		return bookstore.Unavailable("sqlite: append line", err)
	}
	return nil
}

func (s *Store) IncrementStock(ctx context.Context, shopID, bookID string, qty int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inventory_lines SET stock_level = stock_level + ? WHERE store_id = ? AND book_id = ?`,
		qty, shopID, bookID,
	)
	if err != nil {
		return false, bookstore.Unavailable("sqlite: increment stock", err)
	}
	return matched(res, "sqlite: increment stock")
}

func (s *Store) DecrementStockIfSufficient(ctx context.Context, shopID, bookID string, qty int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inventory_lines SET stock_level = stock_level - ?
		 WHERE store_id = ? AND book_id = ? AND stock_level >= ?`,
		qty, shopID, bookID, qty,
	)
	if err != nil {
		return false, bookstore.Unavailable("sqlite: decrement stock", err)
	}
	return matched(res, "sqlite: decrement stock")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertLine(ctx context.Context, db execer, shopID string, l shop.Line) error {
	info, err := json.Marshal(l.Book)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO inventory_lines (store_id, book_id, stock_level, unit_price, book_info) VALUES (?, ?, ?, ?, ?)`,
		shopID, l.BookID, l.StockLevel, l.UnitPrice, string(info),
	)
	return err
}

// ==================== Order Store ====================

const orderColumns = `id, buyer_id, store_id, status, total_amount, items, create_time,
    pay_time, ship_time, deliver_time, cancel_time, timeout_at`

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("sqlite: encode items: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.BuyerID, o.StoreID, string(o.Status), o.TotalAmount, string(items), formatTime(o.CreatedAt),
		formatNullTime(o.PaidAt), formatNullTime(o.ShippedAt), formatNullTime(o.DeliveredAt),
		formatNullTime(o.CancelledAt), formatNullTime(o.TimeoutAt),
	)
	if err != nil {
		if isUnique(err) {
			return fmt.Errorf("%w: %s", bookstore.ErrOrderExists, o.ID)
		}
		return bookstore.Unavailable("sqlite: create order", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", bookstore.ErrOrderNotFound, orderID)
		}
		return nil, bookstore.Unavailable("sqlite: get order", err)
	}
	return o, nil
}

// TransitionOrder reads and updates inside one transaction; with a single
// connection nothing can interleave between the two.
func (s *Store) TransitionOrder(ctx context.Context, t order.Transition) (*order.Order, error) {
	col, err := stampColumn(t.Stamp)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	var prev *order.Order
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		prev, err = scanOrder(tx.QueryRowContext(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE id = ? AND status = ?`, t.OrderID, string(t.From),
		))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET status = ?, `+col+` = ? WHERE id = ?`,
			string(t.To), formatTime(t.At), t.OrderID,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s is not %s", bookstore.ErrOrderStatusMismatch, t.OrderID, t.From)
		}
		return nil, bookstore.Unavailable("sqlite: transition order", err)
	}
	return prev, nil
}

func (s *Store) RevertCancellation(ctx context.Context, orderID string, restore order.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, cancel_time = NULL WHERE id = ? AND status = ?`,
		string(restore), orderID, string(order.StatusCancelled),
	)
	if err != nil {
		return bookstore.Unavailable("sqlite: revert cancellation", err)
	}
	return requireRow(res, "sqlite: revert cancellation",
		fmt.Errorf("%w: %s is not cancelled", bookstore.ErrOrderStatusMismatch, orderID))
}

func (s *Store) ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.Order, int64, error) {
	var (
		conds []string
		args  []any
	)
	if opts.BuyerID != "" {
		conds = append(conds, "buyer_id = ?")
		args = append(args, opts.BuyerID)
	}
	if opts.StoreID != "" {
		conds = append(conds, "store_id = ?")
		args = append(args, opts.StoreID)
	}
	if opts.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(opts.Status))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, bookstore.Unavailable("sqlite: count orders", err)
	}

	query := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY create_time DESC, id DESC`
	switch {
	case opts.Limit > 0:
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	case opts.Offset > 0:
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, opts.Offset)
	}

	orders, err := s.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, 0, bookstore.Unavailable("sqlite: list orders", err)
	}
	return orders, total, nil
}

func (s *Store) ListExpired(ctx context.Context, before time.Time, limit int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = -1
	}
	orders, err := s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = ? AND create_time < ?
		 ORDER BY create_time, id LIMIT ?`,
		string(order.StatusUnpaid), formatTime(before), limit,
	)
	if err != nil {
		return nil, bookstore.Unavailable("sqlite: list expired", err)
	}
	return orders, nil
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]*order.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o                                   order.Order
		status, items, created              string
		paid, shipped, delivered, cancelled sql.NullString
		timeout                             sql.NullString
	)
	if err := row.Scan(
		&o.ID, &o.BuyerID, &o.StoreID, &status, &o.TotalAmount, &items, &created,
		&paid, &shipped, &delivered, &cancelled, &timeout,
	); err != nil {
		return nil, err
	}

	o.Status = order.Status(status)
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}

	var err error
	if o.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{paid, &o.PaidAt},
		{shipped, &o.ShippedAt},
		{delivered, &o.DeliveredAt},
		{cancelled, &o.CancelledAt},
		{timeout, &o.TimeoutAt},
	} {
		if *f.dst, err = parseNullTime(f.src); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

// ==================== Helpers ====================

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func now() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// stampColumn maps a transition stamp to its column. The set is closed so
// the name can be spliced into SQL.
func stampColumn(st order.Stamp) (string, error) {
	switch st {
	case order.StampPay, order.StampShip, order.StampDeliver, order.StampCancel, order.StampTimeout:
		return string(st), nil
	}
	return "", fmt.Errorf("unknown stamp %q", st)
}

func isCode(err error, code int) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == code
}

func isUnique(err error) bool {
	return isCode(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) || isCode(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE)
}

func matched(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, bookstore.Unavailable(op, err)
	}
	return n == 1, nil
}

func requireRow(res sql.Result, op string, missing error) error {
	ok, err := matched(res, op)
	if err != nil {
		return err
	}
	if !ok {
		return missing
	}
	return nil
}
