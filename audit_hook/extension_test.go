package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xraph/bookstore"
	audithook "github.com/xraph/bookstore/audit_hook"
	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/plugin"
	"github.com/xraph/bookstore/shop"
	"github.com/xraph/bookstore/store/memory"
)

type trail struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (t *trail) record(_ context.Context, e *audithook.AuditEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
	return nil
}

func (t *trail) actions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.events))
	for i, e := range t.events {
		out[i] = e.Action
	}
	return out
}

func (t *trail) last() *audithook.AuditEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.events[len(t.events)-1]
}

func TestAuditTrailFollowsOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	tr := &trail{}
	eng := bookstore.New(memory.New(),
		bookstore.WithPlugin(audithook.New(audithook.RecorderFunc(tr.record))),
		bookstore.WithPasswordCost(bcrypt.MinCost),
		bookstore.WithoutSweeper(),
	)

	require.NoError(t, eng.RegisterUser(ctx, "seller", "pw"))
	require.NoError(t, eng.RegisterUser(ctx, "buyer", "pw"))
	require.NoError(t, eng.AddFunds(ctx, "buyer", "pw", 1000))
	require.NoError(t, eng.CreateStore(ctx, "seller", "s1"))
	require.NoError(t, eng.AddBook(ctx, "seller", "s1", shop.Line{BookID: "A", StockLevel: 5, UnitPrice: 100}))

	orderID, err := eng.CreateOrder(ctx, "buyer", "s1", []order.LineRequest{{BookID: "A", Quantity: 2}})
	require.NoError(t, err)
	require.NoError(t, eng.Pay(ctx, "buyer", "pw", orderID))
	require.NoError(t, eng.Ship(ctx, "seller", orderID))
	require.NoError(t, eng.Receive(ctx, "buyer", orderID))

	assert.Equal(t, []string{
		audithook.ActionUserRegistered,
		audithook.ActionUserRegistered,
		audithook.ActionFundsAdded,
		audithook.ActionStoreCreated,
		audithook.ActionBookAdded,
		audithook.ActionOrderCreated,
		audithook.ActionOrderPaid,
		audithook.ActionOrderShipped,
		audithook.ActionOrderDelivered,
	}, tr.actions())

	delivered := tr.last()
	assert.Equal(t, orderID, delivered.ResourceID)
	assert.Equal(t, int64(200), delivered.Metadata["total_amount"])
	assert.Equal(t, audithook.OutcomeSuccess, delivered.Outcome)
}

func TestEnabledActionsFilter(t *testing.T) {
	ctx := context.Background()
	tr := &trail{}
	ext := audithook.New(audithook.RecorderFunc(tr.record),
		audithook.WithEnabledActions(audithook.ActionOrderCancelled),
	)

	require.NoError(t, ext.OnUserRegistered(ctx, "alice"))
	require.NoError(t, ext.OnOrderCancelled(ctx, &order.Order{ID: "o1"}))

	assert.Equal(t, []string{audithook.ActionOrderCancelled}, tr.actions())
}

func TestDisabledActionsFilter(t *testing.T) {
	ctx := context.Background()
	tr := &trail{}
	ext := audithook.New(audithook.RecorderFunc(tr.record),
		audithook.WithDisabledActions(audithook.ActionFundsAdded),
	)

	require.NoError(t, ext.OnFundsAdded(ctx, "alice", 10))
	require.NoError(t, ext.OnFundsAdded(ctx, "alice", -10))

	assert.Equal(t, []string{audithook.ActionFundsWithdrawn}, tr.actions())
}

func TestFailedCompensationIsCritical(t *testing.T) {
	ctx := context.Background()
	tr := &trail{}
	ext := audithook.New(audithook.RecorderFunc(tr.record))

	require.NoError(t, ext.OnCompensation(ctx, plugin.Compensation{
		Operation: "cancel", OrderID: "o1", Action: "refund", Err: errors.New("store down"),
	}))

	e := tr.last()
	assert.Equal(t, audithook.SeverityCritical, e.Severity)
	assert.Equal(t, audithook.OutcomeFailure, e.Outcome)
	assert.Equal(t, "store down", e.Reason)
	assert.Equal(t, "refund", e.Metadata["action"])
}

func TestRecorderErrorsAreSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("unreachable")
	}))
	assert.NoError(t, ext.OnStoreCreated(context.Background(), "s1", "alice"))
}
