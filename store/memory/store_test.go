package memory_test

import (
	"testing"

	"github.com/xraph/bookstore/store"
	"github.com/xraph/bookstore/store/memory"
	"github.com/xraph/bookstore/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(_ *testing.T) store.Store {
		return memory.New()
	})
}
