package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// migration is one forward schema step, applied at most once and recorded
// in bookstore_migrations.
type migration struct {
	Name    string
	Version string
	Up      string
}

// migrationLockKey serializes concurrent migrators via an advisory lock.
const migrationLockKey = 0x626f6f6b // "book"

// Migrations is the ordered schema history of the PostgreSQL store.
var Migrations = []migration{
	{
		Name:    "create_users",
		Version: "20240301000001",
		Up: `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL DEFAULT '',
    balance       BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_stores_owner ON stores (owner_id);

CREATE TABLE IF NOT EXISTS inventory_lines (
    store_id    TEXT NOT NULL REFERENCES stores (id),
    book_id     TEXT NOT NULL,
    seq         BIGSERIAL,
    stock_level BIGINT NOT NULL DEFAULT 0 CHECK (stock_level >= 0),
    unit_price  BIGINT NOT NULL DEFAULT 0,
    book_info   JSONB NOT NULL DEFAULT '{}',
    PRIMARY KEY (store_id, book_id)
);

CREATE INDEX IF NOT EXISTS idx_inventory_book ON inventory_lines (book_id);
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
    total_amount BIGINT NOT NULL DEFAULT 0,
    items        JSONB NOT NULL DEFAULT '[]',
    create_time  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    pay_time     TIMESTAMPTZ,
    ship_time    TIMESTAMPTZ,
    deliver_time TIMESTAMPTZ,
    cancel_time  TIMESTAMPTZ,
    timeout_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders (buyer_id, status, create_time DESC);
CREATE INDEX IF NOT EXISTS idx_orders_store ON orders (store_id, status, create_time DESC);
CREATE INDEX IF NOT EXISTS idx_orders_expiry ON orders (status, create_time);
`,
	},
}

// migrate applies every pending migration, each in its own transaction.
func migrate(ctx context.Context, db beginner) error {
	return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if _, err := tx.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bookstore_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
			return fmt.Errorf("create migrations table: %w", err)
		}

		for _, m := range Migrations {
			var applied bool
			err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM bookstore_migrations WHERE version = $1)`, m.Version,
			).Scan(&applied)
			if err != nil {
				return fmt.Errorf("check %s: %w", m.Name, err)
			}
			if applied {
				continue
			}
			if _, err := tx.Exec(ctx, m.Up); err != nil {
				return fmt.Errorf("apply %s: %w", m.Name, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO bookstore_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name,
			); err != nil {
				return fmt.Errorf("record %s: %w", m.Name, err)
			}
		}
		return nil
	})
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
