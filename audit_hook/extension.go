// Package audithook bridges bookstore lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin           = (*Extension)(nil)
	_ plugin.OnUserRegistered = (*Extension)(nil)
	_ plugin.OnFundsAdded     = (*Extension)(nil)
	_ plugin.OnStoreCreated   = (*Extension)(nil)
	_ plugin.OnBookAdded      = (*Extension)(nil)
	_ plugin.OnOrderCreated   = (*Extension)(nil)
	_ plugin.OnOrderPaid      = (*Extension)(nil)
	_ plugin.OnOrderShipped   = (*Extension)(nil)
	_ plugin.OnOrderDelivered = (*Extension)(nil)
	_ plugin.OnOrderCancelled = (*Extension)(nil)
	_ plugin.OnOrdersExpired  = (*Extension)(nil)
	_ plugin.OnCompensation   = (*Extension)(nil)
	_ plugin.OnInconsistency  = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail entry.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges bookstore lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnUserRegistered implements plugin.OnUserRegistered.
func (e *Extension) OnUserRegistered(ctx context.Context, userID string) error {
	return e.record(ctx, ActionUserRegistered, SeverityInfo, OutcomeSuccess,
		ResourceUser, userID, CategoryAccount, nil,
	)
}

// OnFundsAdded implements plugin.OnFundsAdded.
func (e *Extension) OnFundsAdded(ctx context.Context, userID string, amount int64) error {
	action := ActionFundsAdded
	if amount < 0 {
		action = ActionFundsWithdrawn
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceUser, userID, CategoryPayment, nil,
		"amount", amount,
	)
}

// ──────────────────────────────────────────────────
// Inventory hooks
// ──────────────────────────────────────────────────

// OnStoreCreated implements plugin.OnStoreCreated.
func (e *Extension) OnStoreCreated(ctx context.Context, storeID, ownerID string) error {
	return e.record(ctx, ActionStoreCreated, SeverityInfo, OutcomeSuccess,
		ResourceStore, storeID, CategoryInventory, nil,
		"owner_id", ownerID,
	)
}

// OnBookAdded implements plugin.OnBookAdded.
func (e *Extension) OnBookAdded(ctx context.Context, storeID, bookID string, stock int64) error {
	return e.record(ctx, ActionBookAdded, SeverityInfo, OutcomeSuccess,
		ResourceBook, bookID, CategoryInventory, nil,
		"store_id", storeID,
		"stock_level", stock,
	)
}

// ──────────────────────────────────────────────────
// Order lifecycle hooks
// ──────────────────────────────────────────────────

// OnOrderCreated implements plugin.OnOrderCreated.
func (e *Extension) OnOrderCreated(ctx context.Context, o *order.Order) error {
	return e.recordOrder(ctx, ActionOrderCreated, CategoryOrder, o)
}

// OnOrderPaid implements plugin.OnOrderPaid.
func (e *Extension) OnOrderPaid(ctx context.Context, o *order.Order) error {
	return e.recordOrder(ctx, ActionOrderPaid, CategoryPayment, o)
}

// OnOrderShipped implements plugin.OnOrderShipped.
func (e *Extension) OnOrderShipped(ctx context.Context, o *order.Order) error {
	return e.recordOrder(ctx, ActionOrderShipped, CategoryOrder, o)
}

// OnOrderDelivered implements plugin.OnOrderDelivered.
func (e *Extension) OnOrderDelivered(ctx context.Context, o *order.Order) error {
	return e.recordOrder(ctx, ActionOrderDelivered, CategoryPayment, o)
}

// OnOrderCancelled implements plugin.OnOrderCancelled.
func (e *Extension) OnOrderCancelled(ctx context.Context, o *order.Order) error {
	if o.TimeoutAt != nil {
		return e.recordOrder(ctx, ActionOrderTimedOut, CategoryOrder, o)
	}
	return e.recordOrder(ctx, ActionOrderCancelled, CategoryOrder, o)
}

// OnOrdersExpired implements plugin.OnOrdersExpired.
func (e *Extension) OnOrdersExpired(ctx context.Context, count int, elapsed time.Duration) error {
	return e.record(ctx, ActionOrdersExpired, SeverityInfo, OutcomeSuccess,
		ResourceOrder, "", CategoryOrder, nil,
		"count", count,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Consistency hooks
// ──────────────────────────────────────────────────

// OnCompensation implements plugin.OnCompensation. A failed compensation
// is critical: money or stock may be out of place.
func (e *Extension) OnCompensation(ctx context.Context, c plugin.Compensation) error {
	severity, outcome := SeverityWarning, OutcomeSuccess
	if c.Err != nil {
		severity, outcome = SeverityCritical, OutcomeFailure
	}
	return e.record(ctx, ActionCompensation, severity, outcome,
		ResourceOrder, c.OrderID, CategoryConsistency, c.Err,
		"operation", c.Operation,
		"action", c.Action,
	)
}

// OnInconsistency implements plugin.OnInconsistency.
func (e *Extension) OnInconsistency(ctx context.Context, i plugin.Inconsistency) error {
	return e.record(ctx, ActionInconsistency, SeverityError, OutcomePartial,
		ResourceOrder, i.OrderID, CategoryConsistency, i.Err,
		"operation", i.Operation,
		"detail", i.Detail,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func (e *Extension) recordOrder(ctx context.Context, action, category string, o *order.Order) error {
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceOrder, o.ID, category, nil,
		"buyer_id", o.BuyerID,
		"store_id", o.StoreID,
		"total_amount", o.TotalAmount,
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
