package bookstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/bookstore/id"
	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/plugin"
	"github.com/xraph/bookstore/shop"
)

// ──────────────────────────────────────────────────
// Order creation
// ──────────────────────────────────────────────────

// CreateOrder records a new unpaid order and returns its id. The stock
// check is advisory: nothing is reserved, and concurrent orders for the
// same copies are settled at Ship.
func (e *Engine) CreateOrder(ctx context.Context, buyerID, storeID string, lines []order.LineRequest) (string, error) {
	if len(lines) == 0 {
		return "", fmt.Errorf("%w: order has no lines", ErrBadRequest)
	}

	if _, err := e.store.GetUser(ctx, buyerID); err != nil {
		return "", Unavailable("get buyer", err)
	}
	s, err := e.store.GetShop(ctx, storeID)
	if err != nil {
		return "", Unavailable("get store", err)
	}

	items := make([]order.Item, 0, len(lines))
	for _, req := range lines {
		if req.Quantity <= 0 {
			return "", fmt.Errorf("%w: quantity %d for %s", ErrInvalidAmount, req.Quantity, req.BookID)
		}
		line, ok := s.Line(req.BookID)
		if !ok {
			return "", fmt.Errorf("%w: %s in %s", ErrBookNotFound, req.BookID, storeID)
		}
		if line.StockLevel < req.Quantity {
			return "", fmt.Errorf("%w: %s has %d, want %d", ErrStockTooLow, req.BookID, line.StockLevel, req.Quantity)
		}
		items = append(items, order.Item{
			BookID:    req.BookID,
			Quantity:  req.Quantity,
			UnitPrice: line.UnitPrice,
			Book:      line.Book.Clone(),
		})
	}

	o := &order.Order{
		ID:          id.NewOrderID(buyerID, storeID),
		BuyerID:     buyerID,
		StoreID:     storeID,
		Status:      order.StatusUnpaid,
		TotalAmount: order.Total(items),
		Items:       items,
		CreatedAt:   e.now(),
	}

	if err := e.store.CreateOrder(ctx, o); err != nil {
		return "", Unavailable("create order", err)
	}

	e.plugins.EmitOrderCreated(ctx, o)

	e.logger.Debug("order created",
		"order_id", o.ID,
		"buyer_id", buyerID,
		"store_id", storeID,
		"total_amount", o.TotalAmount,
	)

	return o.ID, nil
}

// ──────────────────────────────────────────────────
// Transitions
// ──────────────────────────────────────────────────

// Pay debits the buyer and moves the order from unpaid to paid. A debit
// whose commit definitely did not land is credited back; when the outcome
// cannot be determined the debit is kept and the error is returned.
func (e *Engine) Pay(ctx context.Context, buyerID, password, orderID string) error {
	o, err := e.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.BuyerID != buyerID {
		return fmt.Errorf("%w: order %s does not belong to %s", ErrAuthorizationFail, orderID, buyerID)
	}
	buyer, err := e.authenticate(ctx, buyerID, password)
	if err != nil {
		return err
	}
	if o.Status != order.StatusUnpaid {
		return payStatusError(o)
	}
	if buyer.Balance < o.TotalAmount {
		return fmt.Errorf("%w: balance %d, order %d", ErrInsufficientFunds, buyer.Balance, o.TotalAmount)
	}

	matched, err := e.balances.DebitIfSufficient(ctx, buyerID, o.TotalAmount)
	if err != nil {
		return err
	}
	if !matched {
		return fmt.Errorf("%w: order %s", ErrInsufficientFunds, orderID)
	}

	t := order.Transition{
		OrderID: orderID,
		From:    order.StatusUnpaid,
		To:      order.StatusPaid,
		Stamp:   order.StampPay,
		At:      e.now(),
	}
	if lost, err := e.commit(ctx, t); err != nil {
		if !lost {
			e.reportUnknown(ctx, "pay", orderID, "buyer debited, order status unknown", err)
			return err
		}
		if cerr := e.refundDebit(ctx, o, err); cerr != nil {
			return cerr
		}
		return err
	}

	o.Apply(t)
	e.plugins.EmitOrderPaid(ctx, o)

	e.logger.Debug("order paid",
		"order_id", orderID,
		"buyer_id", buyerID,
		"amount", o.TotalAmount,
	)

	return nil
}

// refundDebit credits the buyer back after Pay lost its commit.
func (e *Engine) refundDebit(ctx context.Context, o *order.Order, cause error) error {
	err := e.balances.Credit(ctx, o.BuyerID, o.TotalAmount)

	e.plugins.EmitCompensation(ctx, plugin.Compensation{
		Operation: "pay",
		OrderID:   o.ID,
		Action:    "credit_buyer",
		Err:       err,
	})

	if err != nil {
		e.logger.Error("pay compensation failed, buyer debited without payment",
			"order_id", o.ID,
			"buyer_id", o.BuyerID,
			"amount", o.TotalAmount,
			"cause", cause,
			"error", err,
		)
		e.plugins.EmitInconsistency(ctx, plugin.Inconsistency{
			Operation: "pay",
			OrderID:   o.ID,
			Detail:    "buyer debited but order not paid",
			Err:       err,
		})
		return err
	}

	e.logger.Warn("pay commit failed, debit reversed",
		"order_id", o.ID,
		"buyer_id", o.BuyerID,
		"cause", cause,
	)
	return nil
}

// Ship takes stock for every item and moves the order from paid to
// shipped. The stock step is all-or-nothing across the order's items.
func (e *Engine) Ship(ctx context.Context, sellerID, orderID string) error {
	if _, err := e.store.GetUser(ctx, sellerID); err != nil {
		return Unavailable("get seller", err)
	}
	o, err := e.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	s, err := e.store.GetShop(ctx, o.StoreID)
	if err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("%w: store %s of order %s", ErrAuthorizationFail, o.StoreID, orderID)
		}
		return Unavailable("get store", err)
	}
	if s.OwnerID != sellerID {
		return fmt.Errorf("%w: store %s is not owned by %s", ErrAuthorizationFail, s.ID, sellerID)
	}
	if o.Status != order.StatusPaid {
		return fmt.Errorf("%w: order %s is %s", ErrOrderStatusMismatch, orderID, o.Status)
	}

	if err := e.takeStock(ctx, o); err != nil {
		return err
	}

	t := order.Transition{
		OrderID: orderID,
		From:    order.StatusPaid,
		To:      order.StatusShipped,
		Stamp:   order.StampShip,
		At:      e.now(),
	}
	if lost, err := e.commit(ctx, t); err != nil {
		if !lost {
			e.reportUnknown(ctx, "ship", orderID, "stock taken, order status unknown", err)
			return err
		}
		e.logger.Error("ship lost status race, stock not restored",
			"order_id", orderID,
			"store_id", o.StoreID,
			"error", err,
		)
		e.plugins.EmitInconsistency(ctx, plugin.Inconsistency{
			Operation: "ship",
			OrderID:   orderID,
			Detail:    "stock taken for an order that did not ship",
			Err:       err,
		})
		return err
	}

	o.Apply(t)
	e.plugins.EmitOrderShipped(ctx, o)

	e.logger.Debug("order shipped",
		"order_id", orderID,
		"seller_id", sellerID,
	)

	return nil
}

// takeStock decrements every item's line, restoring the ones already taken
// when a later line cannot be satisfied.
func (e *Engine) takeStock(ctx context.Context, o *order.Order) error {
	taken := make([]order.Item, 0, len(o.Items))

	for _, it := range o.Items {
		matched, err := e.inventory.DecrementIfSufficient(ctx, o.StoreID, it.BookID, it.Quantity)
		if err == nil && !matched {
			err = e.inventory.missOrShort(ctx, o.StoreID, it.BookID)
		}
		if err != nil {
			e.restoreStock(ctx, o, taken)
			return err
		}
		taken = append(taken, it)
	}
	return nil
}

func (e *Engine) restoreStock(ctx context.Context, o *order.Order, taken []order.Item) {
	for _, it := range taken {
		matched, err := e.inventory.Increment(ctx, o.StoreID, it.BookID, it.Quantity)
		if err == nil && !matched {
			err = fmt.Errorf("%w: %s in %s", ErrBookNotFound, it.BookID, o.StoreID)
		}

		e.plugins.EmitCompensation(ctx, plugin.Compensation{
			Operation: "ship",
			OrderID:   o.ID,
			Action:    "restore_stock:" + it.BookID,
			Err:       err,
		})

		if err != nil {
			e.logger.Error("ship rollback failed",
				"order_id", o.ID,
				"book_id", it.BookID,
				"quantity", it.Quantity,
				"error", err,
			)
			continue
		}
		e.logger.Warn("ship rolled back stock",
			"order_id", o.ID,
			"book_id", it.BookID,
			"quantity", it.Quantity,
		)
	}
}

// Receive moves the order from shipped to delivered and then pays the
// seller. A seller who vanished after the commit is reported, not undone.
func (e *Engine) Receive(ctx context.Context, buyerID, orderID string) error {
	if _, err := e.store.GetUser(ctx, buyerID); err != nil {
		return Unavailable("get buyer", err)
	}
	o, err := e.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.BuyerID != buyerID {
		return fmt.Errorf("%w: order %s does not belong to %s", ErrAuthorizationFail, orderID, buyerID)
	}
	if o.Status != order.StatusShipped {
		return fmt.Errorf("%w: order %s is %s", ErrOrderStatusMismatch, orderID, o.Status)
	}
	s, err := e.store.GetShop(ctx, o.StoreID)
	if err != nil {
		return Unavailable("get store", err)
	}

	t := order.Transition{
		OrderID: orderID,
		From:    order.StatusShipped,
		To:      order.StatusDelivered,
		Stamp:   order.StampDeliver,
		At:      e.now(),
	}
	if lost, err := e.commit(ctx, t); err != nil {
		if !lost {
			e.reportUnknown(ctx, "receive", orderID, "order status unknown, seller not credited", err)
		}
		return err
	}
	o.Apply(t)

	if err := e.balances.Credit(ctx, s.OwnerID, o.TotalAmount); err != nil {
		e.logger.Error("order delivered but seller not credited",
			"order_id", orderID,
			"seller_id", s.OwnerID,
			"amount", o.TotalAmount,
			"error", err,
		)
		e.plugins.EmitInconsistency(ctx, plugin.Inconsistency{
			Operation: "receive",
			OrderID:   orderID,
			Detail:    "seller " + s.OwnerID + " not credited",
			Err:       err,
		})
		if !IsNotFound(err) {
			return err
		}
	}

	e.plugins.EmitOrderDelivered(ctx, o)

	e.logger.Debug("order delivered",
		"order_id", orderID,
		"seller_id", s.OwnerID,
		"amount", o.TotalAmount,
	)

	return nil
}

// Cancel moves an unpaid or paid order to cancelled and refunds the buyer
// if the order was paid at the moment of the write. A refund that cannot
// be applied reverts the cancellation.
func (e *Engine) Cancel(ctx context.Context, buyerID, orderID string) error {
	if _, err := e.store.GetUser(ctx, buyerID); err != nil {
		return Unavailable("get buyer", err)
	}
	o, err := e.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.BuyerID != buyerID {
		return fmt.Errorf("%w: order %s does not belong to %s", ErrAuthorizationFail, orderID, buyerID)
	}
	if !o.Status.Cancellable() {
		return fmt.Errorf("%w: order %s is %s", ErrBadRequest, orderID, o.Status)
	}

	t := order.Transition{
		OrderID: orderID,
		From:    o.Status,
		To:      order.StatusCancelled,
		Stamp:   order.StampCancel,
		At:      e.now(),
	}
	prev, err := e.store.TransitionOrder(ctx, t)
	if err != nil {
		return Unavailable("cancel order", err)
	}

	if prev.Status == order.StatusPaid {
		if err := e.balances.Credit(ctx, buyerID, prev.TotalAmount); err != nil {
			return e.revertCancel(ctx, prev, err)
		}
	}

	cancelled := prev.Clone()
	cancelled.Apply(t)
	e.plugins.EmitOrderCancelled(ctx, cancelled)

	e.logger.Debug("order cancelled",
		"order_id", orderID,
		"from", prev.Status,
		"refunded", prev.Status == order.StatusPaid,
	)

	return nil
}

// revertCancel restores a paid order whose refund failed.
func (e *Engine) revertCancel(ctx context.Context, prev *order.Order, cause error) error {
	err := e.store.RevertCancellation(ctx, prev.ID, prev.Status)

	e.plugins.EmitCompensation(ctx, plugin.Compensation{
		Operation: "cancel",
		OrderID:   prev.ID,
		Action:    "revert_cancellation",
		Err:       err,
	})

	if err != nil {
		e.logger.Error("cancel compensation failed, order cancelled without refund",
			"order_id", prev.ID,
			"buyer_id", prev.BuyerID,
			"amount", prev.TotalAmount,
			"cause", cause,
			"error", err,
		)
		e.plugins.EmitInconsistency(ctx, plugin.Inconsistency{
			Operation: "cancel",
			OrderID:   prev.ID,
			Detail:    "paid order cancelled without refund",
			Err:       err,
		})
		return fmt.Errorf("%w: %v; revert: %v", ErrRefundFailed, cause, err)
	}

	e.logger.Warn("refund failed, cancellation reverted",
		"order_id", prev.ID,
		"buyer_id", prev.BuyerID,
		"cause", cause,
	)
	return fmt.Errorf("%w: %v", ErrRefundFailed, cause)
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// QueryOrder returns one of the buyer's orders.
func (e *Engine) QueryOrder(ctx context.Context, buyerID, orderID string) (*order.Order, error) {
	o, err := e.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, fmt.Errorf("%w: order %s does not belong to %s", ErrAuthorizationFail, orderID, buyerID)
	}
	return o, nil
}

// ListOrders returns one page of the buyer's orders, newest first. Pages
// are 1-based; status may be empty to match every status.
func (e *Engine) ListOrders(ctx context.Context, buyerID string, status order.Status, page int) (*order.Page, error) {
	if _, err := e.store.GetUser(ctx, buyerID); err != nil {
		return nil, Unavailable("get buyer", err)
	}
	return e.listPage(ctx, order.ListOpts{BuyerID: buyerID, Status: status}, page)
}

// ListStoreOrders returns one page of a store's orders for its owner.
func (e *Engine) ListStoreOrders(ctx context.Context, sellerID, storeID string, status order.Status, page int) (*order.Page, error) {
	if _, err := e.ownedShop(ctx, sellerID, storeID); err != nil {
		return nil, err
	}
	return e.listPage(ctx, order.ListOpts{StoreID: storeID, Status: status}, page)
}

func (e *Engine) listPage(ctx context.Context, opts order.ListOpts, page int) (*order.Page, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrBadRequest, opts.Status)
	}
	if page < 1 {
		page = 1
	}
	opts.Limit = e.pageSize
	opts.Offset = (page - 1) * e.pageSize

	orders, total, err := e.store.ListOrders(ctx, opts)
	if err != nil {
		return nil, Unavailable("list orders", err)
	}

	return &order.Page{
		Orders:     orders,
		Page:       page,
		PageSize:   e.pageSize,
		TotalCount: total,
		TotalPages: int((total + int64(e.pageSize) - 1) / int64(e.pageSize)),
	}, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (e *Engine) getOrder(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, Unavailable("get order", err)
	}
	return o, nil
}

// commit applies a status-guarded transition. When the store fails
// mid-write the order is re-read: a transition that did land, recognized
// by its own timestamp, counts as committed. lost reports that the order
// definitely did not take t; an error with lost false has an unknown
// outcome and nothing may be undone.
func (e *Engine) commit(ctx context.Context, t order.Transition) (lost bool, err error) {
	if _, err = e.store.TransitionOrder(ctx, t); err == nil {
		return false, nil
	}
	err = Unavailable("transition order", err)
	if !IsRetryable(err) {
		return true, err
	}

	cur, rerr := e.store.GetOrder(ctx, t.OrderID)
	if rerr != nil {
		return false, err
	}
	if landed(cur, t) {
		return false, nil
	}
	return true, err
}

// reportUnknown records a commit whose outcome could not be read back.
func (e *Engine) reportUnknown(ctx context.Context, op, orderID, detail string, err error) {
	e.logger.Error(op+" commit outcome unknown",
		"order_id", orderID,
		"error", err,
	)
	e.plugins.EmitInconsistency(ctx, plugin.Inconsistency{
		Operation: op,
		OrderID:   orderID,
		Detail:    detail,
		Err:       err,
	})
}

// landed reports whether o already carries transition t.
func landed(o *order.Order, t order.Transition) bool {
	if o.Status != t.To {
		return false
	}
	var at *time.Time
	switch t.Stamp {
	case order.StampPay:
		at = o.PaidAt
	case order.StampShip:
		at = o.ShippedAt
	case order.StampDeliver:
		at = o.DeliveredAt
	}
	return at != nil && at.Equal(t.At)
}

// payStatusError maps a non-unpaid status to the failure Pay reports.
func payStatusError(o *order.Order) error {
	switch o.Status {
	case order.StatusCancelled:
		return fmt.Errorf("%w: %s", ErrOrderCancelled, o.ID)
	case order.StatusPaid, order.StatusShipped, order.StatusDelivered:
		return fmt.Errorf("%w: %s is %s", ErrOrderCompleted, o.ID, o.Status)
	}
	return fmt.Errorf("%w: %s is %s", ErrOrderStatusMismatch, o.ID, o.Status)
}

// ownedShop loads storeID and checks that sellerID owns it.
func (e *Engine) ownedShop(ctx context.Context, sellerID, storeID string) (*shop.Shop, error) {
	if _, err := e.store.GetUser(ctx, sellerID); err != nil {
		return nil, Unavailable("get seller", err)
	}
	s, err := e.store.GetShop(ctx, storeID)
	if err != nil {
		return nil, Unavailable("get store", err)
	}
	if s.OwnerID != sellerID {
		return nil, fmt.Errorf("%w: store %s is not owned by %s", ErrAuthorizationFail, storeID, sellerID)
	}
	return s, nil
}
