package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	Name    string
	Version string
	Up      string
}

// Migrations is the ordered schema history of the SQLite store. Times are
// fixed-width UTC text so lexical order is chronological order.
var Migrations = []migration{
	{
		Name:    "create_users",
		Version: "20240301000001",
		Up: `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL DEFAULT '',
    balance       INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);
`,
	},
	{
		Name:    "create_stores",
		Version: "20240301000002",
		Up: `
CREATE TABLE IF NOT EXISTS stores (
    id         TEXT PRIMARY KEY,
    owner_id   TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stores_owner ON stores (owner_id);

CREATE TABLE IF NOT EXISTS inventory_lines (
    store_id    TEXT NOT NULL REFERENCES stores (id),
    book_id     TEXT NOT NULL,
    stock_level INTEGER NOT NULL DEFAULT 0 CHECK (stock_level >= 0),
    unit_price  INTEGER NOT NULL DEFAULT 0,
    book_info   TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (store_id, book_id)
);
`,
	},
	{
		Name:    "create_orders",
		Version: "20240301000003",
		Up: `
CREATE TABLE IF NOT EXISTS orders (
    id           TEXT PRIMARY KEY,
    buyer_id     TEXT NOT NULL,
    store_id     TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'unpaid',
    total_amount INTEGER NOT NULL DEFAULT 0,
    items        TEXT NOT NULL DEFAULT '[]',
    create_time  TEXT NOT NULL,
    pay_time     TEXT,
    ship_time    TEXT,
    deliver_time TEXT,
    cancel_time  TEXT,
    timeout_at   TEXT
);

CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders (buyer_id, status, create_time DESC);
CREATE INDEX IF NOT EXISTS idx_orders_store ON orders (store_id, status, create_time DESC);
CREATE INDEX IF NOT EXISTS idx_orders_expiry ON orders (status, create_time);
`,
	},
}

func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS bookstore_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range Migrations {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM bookstore_migrations WHERE version = ?`, m.Version,
		).Scan(&n); err != nil {
			return fmt.Errorf("check %s: %w", m.Name, err)
		}
		if n > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			return fmt.Errorf("apply %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bookstore_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Name, formatTime(now()),
		); err != nil {
			return fmt.Errorf("record %s: %w", m.Name, err)
		}
	}
	return tx.Commit()
}
