// Package mongo implements store.Store on MongoDB. Every mutation is a
// single-document update whose filter carries the guard, so MongoDB's
// per-document atomicity is the only concurrency control needed.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/bookstore"
	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/shop"
	bookstorestore "github.com/xraph/bookstore/store"
	"github.com/xraph/bookstore/user"
)

// Collection name constants.
const (
	colUsers  = "users"
	colStores = "stores"
	colOrders = "orders"
)

// compile-time interface check
var _ bookstorestore.Store = (*Store)(nil)

// Store implements store.Store using the MongoDB Go driver.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	owned  bool
}

// New creates a store over an existing client. Close leaves the client
// connected.
func New(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		db:     client.Database(database),
	}
}

// Open connects to uri, verifies the connection and returns a store that
// owns the client.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, bookstore.Unavailable("mongo: connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, bookstore.Unavailable("mongo: ping", err)
	}
	s := New(client, database)
	s.owned = true
	return s, nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *mongo.Database { return s.db }

func (s *Store) users() *mongo.Collection  { return s.db.Collection(colUsers) }
func (s *Store) stores() *mongo.Collection { return s.db.Collection(colStores) }
func (s *Store) orders() *mongo.Collection { return s.db.Collection(colOrders) }

// Migrate creates indexes for all bookstore collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return bookstore.Unavailable(fmt.Sprintf("mongo: migrate %s indexes", col), err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return bookstore.Unavailable("mongo: ping", err)
	}
	return nil
}

// Close disconnects the client if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ==================== User Store ====================

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	if _, err := s.users().InsertOne(ctx, toUserModel(u)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", bookstore.ErrUserExists, u.ID)
		}
		return bookstore.Unavailable("mongo: create user", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*user.User, error) {
	var m userModel
	if err := s.users().FindOne(ctx, bson.M{"_id": userID}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID)
		}
		return nil, bookstore.Unavailable("mongo: get user", err)
	}
	return fromUserModel(&m), nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.users().DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return bookstore.Unavailable("mongo: delete user", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID)
	}
	return nil
}

func (s *Store) SetPasswordHash(ctx context.Context, userID, hash string) error {
	res, err := s.users().UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"password_hash": hash, "updated_at": now()}},
	)
	if err != nil {
		return bookstore.Unavailable("mongo: set password", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID)
	}
	return nil
}

func (s *Store) IncrementBalance(ctx context.Context, userID string, amount int64) error {
	res, err := s.users().UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$inc": bson.M{"balance": amount},
			"$set": bson.M{"updated_at": now()},
		},
	)
	if err != nil {
		return bookstore.Unavailable("mongo: increment balance", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", bookstore.ErrUserNotFound, userID)
	}
	return nil
}

func (s *Store) DecrementBalanceIfSufficient(ctx context.Context, userID string, amount int64) (bool, error) {
	res, err := s.users().UpdateOne(ctx,
		bson.M{"_id": userID, "balance": bson.M{"$gte": amount}},
		bson.M{
			"$inc": bson.M{"balance": -amount},
			"$set": bson.M{"updated_at": now()},
		},
	)
	if err != nil {
		return false, bookstore.Unavailable("mongo: decrement balance", err)
	}
	return res.MatchedCount == 1, nil
}

// ==================== Shop Store ====================

func (s *Store) CreateShop(ctx context.Context, sh *shop.Shop) error {
	if _, err := s.stores().InsertOne(ctx, toShopModel(sh)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", bookstore.ErrStoreExists, sh.ID)
		}
		return bookstore.Unavailable("mongo: create store", err)
	}
	return nil
}

func (s *Store) GetShop(ctx context.Context, shopID string) (*shop.Shop, error) {
	var m shopModel
	if err := s.stores().FindOne(ctx, bson.M{"_id": shopID}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", bookstore.ErrStoreNotFound, shopID)
		}
		return nil, bookstore.Unavailable("mongo: get store", err)
	}
	return fromShopModel(&m), nil
}

func (s *Store) AppendLine(ctx context.Context, shopID string, line shop.Line) error {
	res, err := s.stores().UpdateOne(ctx,
		bson.M{"_id": shopID, "inventory.book_id": bson.M{"$ne": line.BookID}},
		bson.M{
			"$push": bson.M{"inventory": toLineModel(line)},
			"$set":  bson.M{"updated_at": now()},
		},
	)
	if err != nil {
		return bookstore.Unavailable("mongo: append line", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := s.stores().CountDocuments(ctx, bson.M{"_id": shopID})
	if err != nil {
		return bookstore.Unavailable("mongo: append line", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", bookstore.ErrStoreNotFound, shopID)
	}
	return fmt.Errorf("%w: %s", bookstore.ErrBookExists, line.BookID)
}

func (s *Store) IncrementStock(ctx context.Context, shopID, bookID string, qty int64) (bool, error) {
	res, err := s.stores().UpdateOne(ctx,
		bson.M{"_id": shopID, "inventory.book_id": bookID},
		bson.M{"$inc": bson.M{"inventory.$.stock_level": qty}},
	)
	if err != nil {
		return false, bookstore.Unavailable("mongo: increment stock", err)
	}
	return res.MatchedCount == 1, nil
}

func (s *Store) DecrementStockIfSufficient(ctx context.Context, shopID, bookID string, qty int64) (bool, error) {
	res, err := s.stores().UpdateOne(ctx,
		bson.M{
			"_id": shopID,
			"inventory": bson.M{"$elemMatch": bson.M{
				"book_id":     bookID,
				"stock_level": bson.M{"$gte": qty},
			}},
		},
		bson.M{"$inc": bson.M{"inventory.$.stock_level": -qty}},
	)
	if err != nil {
		return false, bookstore.Unavailable("mongo: decrement stock", err)
	}
	return res.MatchedCount == 1, nil
}

// ==================== Order Store ====================

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	if _, err := s.orders().InsertOne(ctx, toOrderModel(o)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", bookstore.ErrOrderExists, o.ID)
		}
		return bookstore.Unavailable("mongo: create order", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	var m orderModel
	if err := s.orders().FindOne(ctx, bson.M{"_id": orderID}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", bookstore.ErrOrderNotFound, orderID)
		}
		return nil, bookstore.Unavailable("mongo: get order", err)
	}
	return fromOrderModel(&m), nil
}

// TransitionOrder uses findOneAndUpdate so the status guard and the
// pre-image come from the same atomic operation.
func (s *Store) TransitionOrder(ctx context.Context, t order.Transition) (*order.Order, error) {
	var m orderModel
	err := s.orders().FindOneAndUpdate(ctx,
		bson.M{"_id": t.OrderID, "status": string(t.From)},
		bson.M{"$set": bson.M{
			"status":           string(t.To),
			stampField(t.Stamp): t.At.UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s is not %s", bookstore.ErrOrderStatusMismatch, t.OrderID, t.From)
		}
		return nil, bookstore.Unavailable("mongo: transition order", err)
	}
	return fromOrderModel(&m), nil
}

func (s *Store) RevertCancellation(ctx context.Context, orderID string, restore order.Status) error {
	res, err := s.orders().UpdateOne(ctx,
		bson.M{"_id": orderID, "status": string(order.StatusCancelled)},
		bson.M{
			"$set":   bson.M{"status": string(restore)},
			"$unset": bson.M{stampField(order.StampCancel): ""},
		},
	)
	if err != nil {
		return bookstore.Unavailable("mongo: revert cancellation", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s is not cancelled", bookstore.ErrOrderStatusMismatch, orderID)
	}
	return nil
}

func (s *Store) ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.Order, int64, error) {
	filter := bson.M{}
	if opts.BuyerID != "" {
		filter["buyer_id"] = opts.BuyerID
	}
	if opts.StoreID != "" {
		filter["store_id"] = opts.StoreID
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	total, err := s.orders().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, bookstore.Unavailable("mongo: count orders", err)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "create_time", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	orders, err := s.findOrders(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, bookstore.Unavailable("mongo: list orders", err)
	}
	return orders, total, nil
}

func (s *Store) ListExpired(ctx context.Context, before time.Time, limit int) ([]*order.Order, error) {
	filter := bson.M{
		"status":      string(order.StatusUnpaid),
		"create_time": bson.M{"$lt": before.UTC()},
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "create_time", Value: 1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	orders, err := s.findOrders(ctx, filter, findOpts)
	if err != nil {
		return nil, bookstore.Unavailable("mongo: list expired", err)
	}
	return orders, nil
}

func (s *Store) findOrders(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*order.Order, error) {
	cursor, err := s.orders().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var models []orderModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, err
	}

	result := make([]*order.Order, len(models))
	for i := range models {
		result[i] = fromOrderModel(&models[i])
	}
	return result, nil
}

// ==================== Helpers ====================

func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all bookstore
// collections. _id is unique by default.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colUsers: {},
		colStores: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}}},
			{Keys: bson.D{{Key: "inventory.book_id", Value: 1}}},
		},
		colOrders: {
			{Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "status", Value: 1}, {Key: "create_time", Value: -1}}},
			{Keys: bson.D{{Key: "store_id", Value: 1}, {Key: "status", Value: 1}, {Key: "create_time", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "create_time", Value: 1}}},
		},
	}
}
