package bookstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bookstore"
	"github.com/xraph/bookstore/shop"
)

func TestRegisterUser(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	assert.ErrorIs(t, f.engine.RegisterUser(ctx, buyerID, "again"), bookstore.ErrUserExists)
	assert.ErrorIs(t, f.engine.RegisterUser(ctx, "", password), bookstore.ErrBadRequest)
	assert.Equal(t, 512, bookstore.CodeOf(f.engine.RegisterUser(ctx, sellerID, password)))

	u, err := f.store.GetUser(ctx, buyerID)
	require.NoError(t, err)
	assert.NotEqual(t, password, u.PasswordHash)
	assert.Zero(t, u.Balance)
}

func TestAddFunds(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	require.NoError(t, f.engine.AddFunds(ctx, buyerID, password, 50))
	assert.Equal(t, int64(150), f.balance(t, buyerID))

	require.NoError(t, f.engine.AddFunds(ctx, buyerID, password, -150))
	assert.Equal(t, int64(0), f.balance(t, buyerID))

	assert.ErrorIs(t, f.engine.AddFunds(ctx, buyerID, password, -1), bookstore.ErrInsufficientFunds)
	assert.ErrorIs(t, f.engine.AddFunds(ctx, buyerID, "wrong", 10), bookstore.ErrAuthorizationFail)
	assert.ErrorIs(t, f.engine.AddFunds(ctx, "ghost", password, 10), bookstore.ErrUserNotFound)
	assert.Equal(t, int64(0), f.balance(t, buyerID))
}

func TestChangePasswordAndUnregister(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	assert.ErrorIs(t, f.engine.ChangePassword(ctx, buyerID, "wrong", "new"), bookstore.ErrAuthorizationFail)
	require.NoError(t, f.engine.ChangePassword(ctx, buyerID, password, "new"))

	assert.ErrorIs(t, f.engine.AddFunds(ctx, buyerID, password, 1), bookstore.ErrAuthorizationFail)
	require.NoError(t, f.engine.AddFunds(ctx, buyerID, "new", 1))

	assert.ErrorIs(t, f.engine.Unregister(ctx, buyerID, password), bookstore.ErrAuthorizationFail)
	require.NoError(t, f.engine.Unregister(ctx, buyerID, "new"))

	_, err := f.store.GetUser(ctx, buyerID)
	assert.ErrorIs(t, err, bookstore.ErrUserNotFound)
}

func TestStocking(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	assert.ErrorIs(t, f.engine.CreateStore(ctx, sellerID, storeID), bookstore.ErrStoreExists)
	assert.ErrorIs(t, f.engine.CreateStore(ctx, "ghost", "store-2"), bookstore.ErrUserNotFound)

	dup := shop.Line{BookID: "A", StockLevel: 1, UnitPrice: 1}
	assert.ErrorIs(t, f.engine.AddBook(ctx, sellerID, storeID, dup), bookstore.ErrBookExists)
	assert.ErrorIs(t, f.engine.AddBook(ctx, buyerID, storeID, shop.Line{BookID: "C"}), bookstore.ErrAuthorizationFail)
	assert.ErrorIs(t, f.engine.AddBook(ctx, sellerID, "nowhere", shop.Line{BookID: "C"}), bookstore.ErrStoreNotFound)
	assert.ErrorIs(t, f.engine.AddBook(ctx, sellerID, storeID, shop.Line{BookID: "C", StockLevel: -1}), bookstore.ErrInvalidAmount)

	require.NoError(t, f.engine.AddStockLevel(ctx, sellerID, storeID, "A", 5))
	assert.Equal(t, int64(15), f.stock(t, "A"))

	assert.ErrorIs(t, f.engine.AddStockLevel(ctx, sellerID, storeID, "Z", 5), bookstore.ErrBookNotFound)
	assert.ErrorIs(t, f.engine.AddStockLevel(ctx, sellerID, storeID, "A", -16), bookstore.ErrStockTooLow)
	assert.ErrorIs(t, f.engine.AddStockLevel(ctx, buyerID, storeID, "A", 1), bookstore.ErrAuthorizationFail)
	assert.Equal(t, int64(15), f.stock(t, "A"))
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		code int
		kind bookstore.Kind
	}{
		{nil, 200, bookstore.KindUnknown},
		{bookstore.ErrAuthorizationFail, 401, bookstore.KindAuthorization},
		{bookstore.ErrUserNotFound, 511, bookstore.KindNotFound},
		{bookstore.ErrStockTooLow, 517, bookstore.KindStockTooLow},
		{bookstore.ErrOrderCancelled, 518, bookstore.KindInvalidState},
		{bookstore.ErrInsufficientFunds, 519, bookstore.KindInsufficientFunds},
		{bookstore.ErrBadRequest, 520, bookstore.KindBadRequest},
		{bookstore.Unavailable("get user", assert.AnError), 528, bookstore.KindStorageUnavailable},
		{assert.AnError, 530, bookstore.KindUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, bookstore.CodeOf(tt.err), "%v", tt.err)
		assert.Equal(t, tt.kind, bookstore.KindOf(tt.err), "%v", tt.err)
	}

	wrapped := bookstore.Unavailable("get user", assert.AnError)
	assert.ErrorIs(t, wrapped, bookstore.ErrStorageUnavailable)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.True(t, bookstore.IsRetryable(wrapped))
	assert.Equal(t, "bookstore: get user: "+assert.AnError.Error(), wrapped.Error())
	assert.NotErrorIs(t, bookstore.ErrOrderCancelled, bookstore.ErrOrderCompleted)
}
