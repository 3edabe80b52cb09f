package bookstore

import (
	"context"
	"fmt"

	"github.com/xraph/bookstore/user"
)

// BalanceLedger is the only writer of user balances. Every mutation is a
// single-document update, and debits are guarded so a balance never drops
// below zero.
type BalanceLedger struct {
	users user.Store
}

// NewBalanceLedger returns a ledger over users.
func NewBalanceLedger(users user.Store) *BalanceLedger {
	return &BalanceLedger{users: users}
}

// Credit adds amount to the user's balance unconditionally.
func (b *BalanceLedger) Credit(ctx context.Context, userID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: credit %d", ErrInvalidAmount, amount)
	}
	if err := b.users.IncrementBalance(ctx, userID, amount); err != nil {
		return Unavailable("credit balance", err)
	}
	return nil
}

// DebitIfSufficient subtracts amount only if the stored balance still
// covers it at the moment of the write. matched is false when the user is
// missing or the balance was too low; callers that need to tell the two
// apart re-read the user.
func (b *BalanceLedger) DebitIfSufficient(ctx context.Context, userID string, amount int64) (bool, error) {
	if amount < 0 {
		return false, fmt.Errorf("%w: debit %d", ErrInvalidAmount, amount)
	}
	matched, err := b.users.DecrementBalanceIfSufficient(ctx, userID, amount)
	if err != nil {
		return false, Unavailable("debit balance", err)
	}
	return matched, nil
}

// TopUp applies a signed adjustment. Deposits always apply; withdrawals
// use the guarded debit and fail with ErrInsufficientFunds rather than
// overdraw.
func (b *BalanceLedger) TopUp(ctx context.Context, userID string, amount int64) error {
	if amount >= 0 {
		return b.Credit(ctx, userID, amount)
	}

	matched, err := b.DebitIfSufficient(ctx, userID, -amount)
	if err != nil {
		return err
	}
	if matched {
		return nil
	}

	if _, err := b.users.GetUser(ctx, userID); err != nil {
		return Unavailable("get user", err)
	}
	return fmt.Errorf("%w: withdraw %d from %s", ErrInsufficientFunds, -amount, userID)
}

// Balance returns the user's current balance.
func (b *BalanceLedger) Balance(ctx context.Context, userID string) (int64, error) {
	u, err := b.users.GetUser(ctx, userID)
	if err != nil {
		return 0, Unavailable("get user", err)
	}
	return u.Balance, nil
}
