package bookstore

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers. The routing layer maps kinds to
// responses; it never needs to parse messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAuthorization
	KindInvalidState
	KindInsufficientFunds
	KindStockTooLow
	KindAlreadyExists
	KindBadRequest
	KindStorageUnavailable
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindNotFound:           "not_found",
	KindAuthorization:      "authorization_fail",
	KindInvalidState:       "invalid_state",
	KindInsufficientFunds:  "insufficient_funds",
	KindStockTooLow:        "stock_too_low",
	KindAlreadyExists:      "already_exists",
	KindBadRequest:         "bad_request",
	KindStorageUnavailable: "storage_unavailable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the typed failure value returned by every engine operation.
// Code is the stable numeric code exposed to clients.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bookstore: %s: %v", e.Message, e.Err)
	}
	return "bookstore: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets every storage failure match ErrStorageUnavailable regardless of
// which backend produced it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e == t {
		return true
	}
	return t == ErrStorageUnavailable && e.Kind == KindStorageUnavailable
}

func newError(kind Kind, code int, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Sentinel errors. Wrap them with context via fmt.Errorf("%w: ...").
var (
	ErrAuthorizationFail = newError(KindAuthorization, 401, "authorization fail")

	ErrUserNotFound  = newError(KindNotFound, 511, "non exist user id")
	ErrUserExists    = newError(KindAlreadyExists, 512, "exist user id")
	ErrStoreNotFound = newError(KindNotFound, 513, "non exist store id")
	ErrStoreExists   = newError(KindAlreadyExists, 514, "exist store id")
	ErrBookNotFound  = newError(KindNotFound, 515, "non exist book id")
	ErrBookExists    = newError(KindAlreadyExists, 516, "exist book id")
	ErrStockTooLow   = newError(KindStockTooLow, 517, "stock level low")
	ErrOrderNotFound = newError(KindNotFound, 518, "invalid order id")
	ErrOrderExists   = newError(KindAlreadyExists, 518, "duplicate order id")

	ErrInsufficientFunds = newError(KindInsufficientFunds, 519, "not sufficient funds")
	ErrRefundFailed      = newError(KindInsufficientFunds, 519, "refund failed, cancellation reverted")

	ErrOrderStatusMismatch = newError(KindInvalidState, 518, "invalid order status")
	ErrOrderCancelled      = newError(KindInvalidState, 518, "order is cancelled")
	ErrOrderCompleted      = newError(KindInvalidState, 518, "order already paid")

	ErrBadRequest    = newError(KindBadRequest, 520, "bad request")
	ErrInvalidAmount = newError(KindBadRequest, 520, "invalid amount")

	ErrStorageUnavailable = newError(KindStorageUnavailable, 528, "database error")
)

// Unavailable wraps a backend failure so it surfaces as a retriable
// storage error.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindStorageUnavailable, Code: ErrStorageUnavailable.Code, Message: op, Err: err}
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the numeric code for err: 200 for nil, 530 for errors
// that carry no code.
func CodeOf(err error) int {
	if err == nil {
		return 200
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 530
}

// IsNotFound returns true if err is any not-found failure.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsRetryable returns true if the operation's outcome is unknown and it
// may be safely re-issued.
func IsRetryable(err error) bool {
	return KindOf(err) == KindStorageUnavailable
}
