package bookstore

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/xraph/bookstore/shop"
	"github.com/xraph/bookstore/types"
	"github.com/xraph/bookstore/user"
)

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

// RegisterUser creates an account with a zero balance.
func (e *Engine) RegisterUser(ctx context.Context, userID, password string) error {
	if userID == "" || password == "" {
		return fmt.Errorf("%w: user id and password are required", ErrBadRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), e.passwordCost)
	if err != nil {
		return fmt.Errorf("%w: hash password: %v", ErrBadRequest, err)
	}

	u := &user.User{
		Entity:       types.NewEntityAt(e.now()),
		ID:           userID,
		PasswordHash: string(hash),
	}
	if err := e.store.CreateUser(ctx, u); err != nil {
		return Unavailable("create user", err)
	}

	e.plugins.EmitUserRegistered(ctx, userID)
	e.logger.Debug("user registered", "user_id", userID)

	return nil
}

// Unregister deletes the account after checking its password.
func (e *Engine) Unregister(ctx context.Context, userID, password string) error {
	if _, err := e.authenticate(ctx, userID, password); err != nil {
		return err
	}
	if err := e.store.DeleteUser(ctx, userID); err != nil {
		return Unavailable("delete user", err)
	}

	e.logger.Debug("user unregistered", "user_id", userID)
	return nil
}

// ChangePassword replaces the password hash after checking the old one.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: empty password", ErrBadRequest)
	}
	if _, err := e.authenticate(ctx, userID, oldPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), e.passwordCost)
	if err != nil {
		return fmt.Errorf("%w: hash password: %v", ErrBadRequest, err)
	}
	if err := e.store.SetPasswordHash(ctx, userID, string(hash)); err != nil {
		return Unavailable("set password", err)
	}
	return nil
}

// AddFunds applies a signed top-up behind a password check. Withdrawals
// never overdraw.
func (e *Engine) AddFunds(ctx context.Context, userID, password string, amount int64) error {
	if _, err := e.authenticate(ctx, userID, password); err != nil {
		return err
	}
	if err := e.balances.TopUp(ctx, userID, amount); err != nil {
		return err
	}

	e.plugins.EmitFundsAdded(ctx, userID, amount)
	e.logger.Debug("funds added", "user_id", userID, "amount", amount)

	return nil
}

// authenticate loads userID and checks password against its hash.
func (e *Engine) authenticate(ctx context.Context, userID, password string) (*user.User, error) {
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, Unavailable("get user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, fmt.Errorf("%w: wrong password for %s", ErrAuthorizationFail, userID)
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthorizationFail, err)
	}
	return u, nil
}

// ──────────────────────────────────────────────────
// Stocking
// ──────────────────────────────────────────────────

// CreateStore opens an empty store owned by ownerID.
func (e *Engine) CreateStore(ctx context.Context, ownerID, storeID string) error {
	if storeID == "" {
		return fmt.Errorf("%w: empty store id", ErrBadRequest)
	}
	if _, err := e.store.GetUser(ctx, ownerID); err != nil {
		return Unavailable("get owner", err)
	}

	s := &shop.Shop{
		Entity:    types.NewEntityAt(e.now()),
		ID:        storeID,
		OwnerID:   ownerID,
		Inventory: []shop.Line{},
	}
	if err := e.store.CreateShop(ctx, s); err != nil {
		return Unavailable("create store", err)
	}

	e.plugins.EmitStoreCreated(ctx, storeID, ownerID)
	e.logger.Debug("store created", "store_id", storeID, "owner_id", ownerID)

	return nil
}

// AddBook lists a new book in one of the seller's stores. A zero
// UnitPrice falls back to the catalog price in line.Book.
func (e *Engine) AddBook(ctx context.Context, sellerID, storeID string, line shop.Line) error {
	if _, err := e.ownedShop(ctx, sellerID, storeID); err != nil {
		return err
	}
	if line.UnitPrice == 0 {
		line.UnitPrice = line.Book.Price
	}
	if err := e.inventory.AppendLine(ctx, storeID, line); err != nil {
		return err
	}

	e.plugins.EmitBookAdded(ctx, storeID, line.BookID, line.StockLevel)
	e.logger.Debug("book added",
		"store_id", storeID,
		"book_id", line.BookID,
		"stock_level", line.StockLevel,
		"unit_price", line.UnitPrice,
	)

	return nil
}

// AddStockLevel adjusts the stock of a listed book by delta.
func (e *Engine) AddStockLevel(ctx context.Context, sellerID, storeID, bookID string, delta int64) error {
	if _, err := e.ownedShop(ctx, sellerID, storeID); err != nil {
		return err
	}
	return e.inventory.Restock(ctx, storeID, bookID, delta)
}
