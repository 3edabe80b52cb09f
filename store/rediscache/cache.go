// Package rediscache decorates a store.Store with a Redis read-through
// cache for orders in a terminal status.
//
// Only delivered and cancelled orders are cached. Everything the engine
// decides on, such as whether a transition landed, reads a live status, so
// caching orders that can still move would let a stale entry drive a
// refund. Mutations invalidate the key whatever their outcome.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/store"
)

// Defaults.
const (
	DefaultTTL    = 5 * time.Minute
	DefaultPrefix = "bookstore:order:"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store wraps a backend store. Methods it does not override go straight to
// the backend.
type Store struct {
	store.Store
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// Option configures the cache.
type Option func(*Store)

// WithTTL sets how long cached orders live.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithLogger sets the logger for cache errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New wraps backend with a cache on client.
func New(backend store.Store, client *redis.Client, opts ...Option) *Store {
	s := &Store{
		Store:  backend,
		client: client,
		ttl:    DefaultTTL,
		prefix: DefaultPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the backend and then the Redis client.
func (s *Store) Close() error {
	return errors.Join(s.Store.Close(), s.client.Close())
}

// Ping checks the backend and Redis.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.Store.Ping(ctx); err != nil {
		return err
	}
	return s.client.Ping(ctx).Err()
}

// GetOrder serves settled orders from Redis and fills the cache on a miss.
func (s *Store) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	key := s.prefix + orderID

	data, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var o order.Order
		if err := json.Unmarshal(data, &o); err == nil {
			return &o, nil
		}
		s.logger.Warn("rediscache: dropping undecodable entry", "order_id", orderID)
		s.invalidate(ctx, orderID)
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("rediscache: get failed", "order_id", orderID, "error", err)
	}

	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if settled(o) {
		s.put(ctx, o)
	}
	return o, nil
}

// settled reports whether o can no longer change. A cancelled order that
// was paid may still be reverted when its refund fails.
func settled(o *order.Order) bool {
	if !o.Status.Terminal() {
		return false
	}
	return o.Status != order.StatusCancelled || o.PaidAt == nil
}

func (s *Store) TransitionOrder(ctx context.Context, t order.Transition) (*order.Order, error) {
	defer s.invalidate(ctx, t.OrderID)
	return s.Store.TransitionOrder(ctx, t)
}

func (s *Store) RevertCancellation(ctx context.Context, orderID string, restore order.Status) error {
	defer s.invalidate(ctx, orderID)
	return s.Store.RevertCancellation(ctx, orderID, restore)
}

func (s *Store) put(ctx context.Context, o *order.Order) {
	data, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, s.prefix+o.ID, data, s.ttl).Err(); err != nil {
		s.logger.Warn("rediscache: set failed", "order_id", o.ID, "error", err)
	}
}

func (s *Store) invalidate(ctx context.Context, orderID string) {
	if err := s.client.Del(context.WithoutCancel(ctx), s.prefix+orderID).Err(); err != nil {
		s.logger.Warn("rediscache: delete failed", "order_id", orderID, "error", err)
	}
}
