package postgres_test

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bookstore/store"
	"github.com/xraph/bookstore/store/postgres"
	"github.com/xraph/bookstore/store/storetest"
)

var schemaSeq atomic.Int64

// TestConformance runs against a live server when
// BOOKSTORE_TEST_POSTGRES_DSN is set. Each subtest migrates into its own
// schema, dropped afterwards.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("BOOKSTORE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BOOKSTORE_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	admin, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(admin.Close)

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		schema := fmt.Sprintf("bookstore_test_%d_%d", time.Now().UnixNano(), schemaSeq.Add(1))
		_, err := admin.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize())
		require.NoError(t, err)

		cfg, err := pgxpool.ParseConfig(dsn)
		require.NoError(t, err)
		cfg.ConnConfig.RuntimeParams["search_path"] = schema

		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		require.NoError(t, err)
		t.Cleanup(func() {
			pool.Close()
			_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
		})

		s := postgres.New(pool)
		require.NoError(t, s.Migrate(ctx))
		return s
	})
}

func TestMigrationsAreOrdered(t *testing.T) {
	seen := map[string]bool{}
	prev := ""
	for _, m := range postgres.Migrations {
		assert.NotEmpty(t, m.Name)
		assert.False(t, seen[m.Version], "duplicate version %s", m.Version)
		assert.Greater(t, m.Version, prev, "%s out of order", m.Name)
		seen[m.Version] = true
		prev = m.Version
	}
}
