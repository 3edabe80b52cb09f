// Package order defines the Order record and its status graph.
package order

import (
	"time"

	"github.com/xraph/bookstore/shop"
)

// Status is the lifecycle position of an order.
type Status string

const (
	StatusUnpaid    Status = "unpaid"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// edges is the legal transition graph. Nothing leaves delivered or
// cancelled, and shipped only moves on to delivered.
var edges = map[Status][]Status{
	StatusUnpaid:    {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
	StatusDelivered: {},
	StatusCancelled: {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := edges[s]
	return ok
}

// CanTransition reports whether s -> to is a legal edge.
func (s Status) CanTransition(to Status) bool {
	for _, next := range edges[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Cancellable reports whether a buyer may still cancel from s.
func (s Status) Cancellable() bool {
	return s.CanTransition(StatusCancelled)
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	next, ok := edges[s]
	return ok && len(next) == 0
}

// Stamp names the timestamp a transition records.
type Stamp string

const (
	StampPay     Stamp = "pay_time"
	StampShip    Stamp = "ship_time"
	StampDeliver Stamp = "deliver_time"
	StampCancel  Stamp = "cancel_time"
	StampTimeout Stamp = "timeout_at"
)

// Item is one purchased line. UnitPrice and Book are snapshots taken when
// the order was created.
type Item struct {
	BookID    string    `json:"book_id"`
	Quantity  int64     `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	Book      shop.Book `json:"book_snapshot"`
}

// Amount is Quantity * UnitPrice.
func (i Item) Amount() int64 { return i.Quantity * i.UnitPrice }

// LineRequest is a (book, quantity) pair requested by a buyer.
type LineRequest struct {
	BookID   string `json:"book_id"`
	Quantity int64  `json:"count"`
}

// Order is a buyer's purchase from a single store.
type Order struct {
	ID          string     `json:"order_id"`
	BuyerID     string     `json:"buyer_id"`
	StoreID     string     `json:"store_id"`
	Status      Status     `json:"status"`
	TotalAmount int64      `json:"total_amount"`
	Items       []Item     `json:"items"`
	CreatedAt   time.Time  `json:"create_time"`
	PaidAt      *time.Time `json:"pay_time,omitempty"`
	ShippedAt   *time.Time `json:"ship_time,omitempty"`
	DeliveredAt *time.Time `json:"deliver_time,omitempty"`
	CancelledAt *time.Time `json:"cancel_time,omitempty"`
	TimeoutAt   *time.Time `json:"timeout_at,omitempty"`
}

// Total sums Quantity * UnitPrice over items.
func Total(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += it.Amount()
	}
	return total
}

// Clone returns a deep copy of o.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = make([]Item, len(o.Items))
	for i, it := range o.Items {
		it.Book = it.Book.Clone()
		c.Items[i] = it
	}
	c.PaidAt = cloneTime(o.PaidAt)
	c.ShippedAt = cloneTime(o.ShippedAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	c.TimeoutAt = cloneTime(o.TimeoutAt)
	return &c
}

// Apply sets the status and timestamp described by t. Callers are
// responsible for checking t.From against the current status first.
func (o *Order) Apply(t Transition) {
	o.Status = t.To
	at := t.At.UTC()
	switch t.Stamp {
	case StampPay:
		o.PaidAt = &at
	case StampShip:
		o.ShippedAt = &at
	case StampDeliver:
		o.DeliveredAt = &at
	case StampCancel:
		o.CancelledAt = &at
	case StampTimeout:
		o.TimeoutAt = &at
	}
}

// Transition is a status-guarded update: it applies only while the stored
// status still equals From.
type Transition struct {
	OrderID string
	From    Status
	To      Status
	Stamp   Stamp
	At      time.Time
}

// ListOpts filters order listings. Empty fields match everything.
type ListOpts struct {
	BuyerID string
	StoreID string
	Status  Status
	Limit   int
	Offset  int
}

// Page is one page of an order listing, newest first.
type Page struct {
	Orders     []*Order `json:"orders"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalCount int64    `json:"total_count"`
	TotalPages int      `json:"total_pages"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
