package user

import "context"

// Store is the persistence capability the balance ledger and account
// operations depend on. Every balance mutation is a single-document
// atomic update.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, userID string) (*User, error)
	DeleteUser(ctx context.Context, userID string) error
	SetPasswordHash(ctx context.Context, userID, hash string) error

	// IncrementBalance adds amount unconditionally. It fails with
	// ErrUserNotFound when no user matches.
	IncrementBalance(ctx context.Context, userID string, amount int64) error

	// DecrementBalanceIfSufficient subtracts amount only while the stored
	// balance is still >= amount. matched is false when the predicate did
	// not hold or the user does not exist.
	DecrementBalanceIfSufficient(ctx context.Context, userID string, amount int64) (matched bool, err error)
}
