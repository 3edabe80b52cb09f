package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xraph/bookstore"
	"github.com/xraph/bookstore/events"
	"github.com/xraph/bookstore/id"
	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/shop"
	"github.com/xraph/bookstore/store/memory"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) events(t *testing.T) []events.OrderEvent {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]events.OrderEvent, len(w.msgs))
	for i, m := range w.msgs {
		evt, err := events.Decode(m)
		require.NoError(t, err)
		assert.Equal(t, evt.OrderID, string(m.Key))
		out[i] = *evt
	}
	return out
}

func TestPublishesLifecycleInOrder(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{}
	eng := bookstore.New(memory.New(),
		bookstore.WithPlugin(events.NewPublisher(w)),
		bookstore.WithPasswordCost(bcrypt.MinCost),
		bookstore.WithoutSweeper(),
	)

	require.NoError(t, eng.RegisterUser(ctx, "seller", "pw"))
	require.NoError(t, eng.RegisterUser(ctx, "buyer", "pw"))
	require.NoError(t, eng.AddFunds(ctx, "buyer", "pw", 1000))
	require.NoError(t, eng.CreateStore(ctx, "seller", "s1"))
	require.NoError(t, eng.AddBook(ctx, "seller", "s1", shop.Line{BookID: "A", StockLevel: 5, UnitPrice: 100}))

	first, err := eng.CreateOrder(ctx, "buyer", "s1", []order.LineRequest{{BookID: "A", Quantity: 1}})
	require.NoError(t, err)
	require.NoError(t, eng.Pay(ctx, "buyer", "pw", first))
	require.NoError(t, eng.Ship(ctx, "seller", first))
	require.NoError(t, eng.Receive(ctx, "buyer", first))

	second, err := eng.CreateOrder(ctx, "buyer", "s1", []order.LineRequest{{BookID: "A", Quantity: 1}})
	require.NoError(t, err)
	require.NoError(t, eng.Cancel(ctx, "buyer", second))

	got := w.events(t)
	require.Len(t, got, 6)

	var types []events.EventType
	for _, e := range got {
		types = append(types, e.Type)
		assert.Equal(t, id.PrefixEvent, e.ID.Prefix(), e.ID.String())
	}
	assert.Equal(t, []events.EventType{
		events.EventOrderCreated,
		events.EventOrderPaid,
		events.EventOrderShipped,
		events.EventOrderDelivered,
		events.EventOrderCreated,
		events.EventOrderCancelled,
	}, types)

	assert.Equal(t, first, got[3].OrderID)
	assert.Equal(t, "buyer", got[3].BuyerID)
	assert.Equal(t, order.StatusDelivered, got[3].Order.Status)
	assert.Equal(t, second, got[5].OrderID)
}

func TestTimeoutIsPublishedAsExpired(t *testing.T) {
	w := &fakeWriter{}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := events.NewPublisher(w, events.WithClock(func() time.Time { return now }))

	require.NoError(t, p.OnOrderCancelled(context.Background(), &order.Order{ID: "o1", TimeoutAt: &now}))

	got := w.events(t)
	require.Len(t, got, 1)
	assert.Equal(t, events.EventOrderExpired, got[0].Type)
	assert.True(t, now.Equal(got[0].Timestamp))

	w.mu.Lock()
	headers := w.msgs[0].Headers
	w.mu.Unlock()
	assert.Equal(t, "event_type", headers[0].Key)
	assert.Equal(t, "order.expired", string(headers[0].Value))
}

func TestWriteFailureIsReturned(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := events.NewPublisher(w)

	err := p.OnOrderPaid(context.Background(), &order.Order{ID: "o1"})
	assert.EqualError(t, err, "broker down")
}

func TestShutdownClosesWriter(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, events.NewPublisher(w).OnShutdown(context.Background()))
	assert.True(t, w.closed)
}

func TestNewWriterDefaults(t *testing.T) {
	kw := events.NewWriter(events.Config{Brokers: []string{"localhost:9092"}, Topic: "orders"})
	defer kw.Close()

	assert.Equal(t, "orders", kw.Topic)
	assert.Equal(t, 10*time.Second, kw.WriteTimeout)
	assert.Equal(t, kafka.RequireOne, kw.RequiredAcks)
}

func TestDecodeRejectsForeignIDs(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, events.NewPublisher(w).OnOrderCreated(context.Background(), &order.Order{ID: "o1"}))
	good := w.msgs[0]

	mismatched := good
	mismatched.Headers = []kafka.Header{{Key: events.HeaderEventID, Value: []byte(id.NewEventID().String())}}
	_, err := events.Decode(mismatched)
	assert.Error(t, err)

	var evt events.OrderEvent
	require.NoError(t, json.Unmarshal(good.Value, &evt))
	evt.ID = id.New(id.PrefixOrder)
	wrongPrefix := good
	wrongPrefix.Value, err = json.Marshal(evt)
	require.NoError(t, err)
	wrongPrefix.Headers = nil
	_, err = events.Decode(wrongPrefix)
	assert.Error(t, err)

	_, err = events.Decode(kafka.Message{Value: []byte(`{"id":"not an id"}`)})
	assert.Error(t, err)
}
