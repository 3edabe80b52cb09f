package postgres

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/shop"
)

// bookJSON is the jsonb layout of book_info and of each item's snapshot.
type bookJSON struct {
	Title         string   `json:"title,omitempty"`
	Author        string   `json:"author,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	OriginalTitle string   `json:"original_title,omitempty"`
	Translator    string   `json:"translator,omitempty"`
	PubYear       string   `json:"pub_year,omitempty"`
	Pages         int      `json:"pages,omitempty"`
	Price         int64    `json:"price,omitempty"`
	CurrencyUnit  string   `json:"currency_unit,omitempty"`
	Binding       string   `json:"binding,omitempty"`
	ISBN          string   `json:"isbn,omitempty"`
	AuthorIntro   string   `json:"author_intro,omitempty"`
	BookIntro     string   `json:"book_intro,omitempty"`
	Content       string   `json:"content,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

type itemJSON struct {
	BookID    string   `json:"book_id"`
	Quantity  int64    `json:"quantity"`
	UnitPrice int64    `json:"unit_price"`
	Book      bookJSON `json:"book_snapshot"`
}

func marshalBook(b shop.Book) ([]byte, error) {
	return json.Marshal(bookJSON(b))
}

func unmarshalBook(raw []byte) (shop.Book, error) {
	var b bookJSON
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &b); err != nil {
			return shop.Book{}, fmt.Errorf("decode book_info: %w", err)
		}
	}
	return shop.Book(b), nil
}

func marshalItems(items []order.Item) ([]byte, error) {
	out := make([]itemJSON, len(items))
	for i, it := range items {
		out[i] = itemJSON{
			BookID:    it.BookID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Book:      bookJSON(it.Book),
		}
	}
	return json.Marshal(out)
}

func unmarshalItems(raw []byte) ([]order.Item, error) {
	var in []itemJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	items := make([]order.Item, len(in))
	for i, it := range in {
		items[i] = order.Item{
			BookID:    it.BookID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Book:      shop.Book(it.Book),
		}
	}
	return items, nil
}

var orderFields = []string{
	"id", "buyer_id", "store_id", "status", "total_amount", "items", "create_time",
	"pay_time", "ship_time", "deliver_time", "cancel_time", "timeout_at",
}

// orderColumns is the select list scanOrder expects, optionally qualified
// with a table alias.
func orderColumns(alias string) string {
	if alias == "" {
		return strings.Join(orderFields, ", ")
	}
	cols := make([]string, len(orderFields))
	for i, f := range orderFields {
		cols[i] = alias + "." + f
	}
	return strings.Join(cols, ", ")
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o      order.Order
		status string
		items  []byte
	)
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.StoreID, &status, &o.TotalAmount, &items, &o.CreatedAt,
		&o.PaidAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt, &o.TimeoutAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = order.Status(status)
	if o.Items, err = unmarshalItems(items); err != nil {
		return nil, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.PaidAt = utc(o.PaidAt)
	o.ShippedAt = utc(o.ShippedAt)
	o.DeliveredAt = utc(o.DeliveredAt)
	o.CancelledAt = utc(o.CancelledAt)
	o.TimeoutAt = utc(o.TimeoutAt)
	return &o, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// stampColumn maps a transition stamp to its column. The set is closed so
// the name can be spliced into SQL.
func stampColumn(s order.Stamp) (string, error) {
	switch s {
	case order.StampPay, order.StampShip, order.StampDeliver, order.StampCancel, order.StampTimeout:
		return string(s), nil
	}
	return "", fmt.Errorf("unknown stamp %q", s)
}
