package mongo_test

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/bookstore/store"
	"github.com/xraph/bookstore/store/mongo"
	"github.com/xraph/bookstore/store/storetest"
)

var dbSeq atomic.Int64

// TestConformance runs against a live server when BOOKSTORE_TEST_MONGO_URI
// is set. Each subtest gets its own database, dropped afterwards.
func TestConformance(t *testing.T) {
	uri := os.Getenv("BOOKSTORE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("BOOKSTORE_TEST_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		name := fmt.Sprintf("bookstore_test_%d_%d", time.Now().UnixNano(), dbSeq.Add(1))
		s, err := mongo.Open(ctx, uri, name)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))

		// Runs after the suite has closed s, so drop through a fresh client.
		t.Cleanup(func() {
			ctx := context.Background()
			admin, err := mongo.Open(ctx, uri, name)
			if err != nil {
				return
			}
			_ = admin.DB().Drop(ctx)
			_ = admin.Close()
		})
		return s
	})
}
