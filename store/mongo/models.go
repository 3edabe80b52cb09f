package mongo

import (
	"time"

	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/shop"
	"github.com/xraph/bookstore/types"
	"github.com/xraph/bookstore/user"
)

// ==================== User models ====================

type userModel struct {
	ID           string    `bson:"_id"`
	PasswordHash string    `bson:"password_hash"`
	Balance      int64     `bson:"balance"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toUserModel(u *user.User) *userModel {
	return &userModel{
		ID:           u.ID,
		PasswordHash: u.PasswordHash,
		Balance:      u.Balance,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func fromUserModel(m *userModel) *user.User {
	return &user.User{
		Entity:       types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:           m.ID,
		PasswordHash: m.PasswordHash,
		Balance:      m.Balance,
	}
}

// ==================== Store models ====================

type bookModel struct {
	Title         string   `bson:"title,omitempty"`
	Author        string   `bson:"author,omitempty"`
	Publisher     string   `bson:"publisher,omitempty"`
	OriginalTitle string   `bson:"original_title,omitempty"`
	Translator    string   `bson:"translator,omitempty"`
	PubYear       string   `bson:"pub_year,omitempty"`
	Pages         int      `bson:"pages,omitempty"`
	Price         int64    `bson:"price,omitempty"`
	CurrencyUnit  string   `bson:"currency_unit,omitempty"`
	Binding       string   `bson:"binding,omitempty"`
	ISBN          string   `bson:"isbn,omitempty"`
	AuthorIntro   string   `bson:"author_intro,omitempty"`
	BookIntro     string   `bson:"book_intro,omitempty"`
	Content       string   `bson:"content,omitempty"`
	Tags          []string `bson:"tags,omitempty"`
}

type lineModel struct {
	BookID     string    `bson:"book_id"`
	StockLevel int64     `bson:"stock_level"`
	UnitPrice  int64     `bson:"unit_price"`
	Book       bookModel `bson:"book_info"`
}

type shopModel struct {
	ID        string      `bson:"_id"`
	OwnerID   string      `bson:"owner_id"`
	Inventory []lineModel `bson:"inventory"`
	CreatedAt time.Time   `bson:"created_at"`
	UpdatedAt time.Time   `bson:"updated_at"`
}

func toBookModel(b shop.Book) bookModel {
	return bookModel(b.Clone())
}

func fromBookModel(m bookModel) shop.Book {
	return shop.Book(m).Clone()
}

func toLineModel(l shop.Line) lineModel {
	return lineModel{
		BookID:     l.BookID,
		StockLevel: l.StockLevel,
		UnitPrice:  l.UnitPrice,
		Book:       toBookModel(l.Book),
	}
}

func toShopModel(s *shop.Shop) *shopModel {
	lines := make([]lineModel, len(s.Inventory))
	for i, l := range s.Inventory {
		lines[i] = toLineModel(l)
	}
	return &shopModel{
		ID:        s.ID,
		OwnerID:   s.OwnerID,
		Inventory: lines,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func fromShopModel(m *shopModel) *shop.Shop {
	lines := make([]shop.Line, len(m.Inventory))
	for i, l := range m.Inventory {
		lines[i] = shop.Line{
			BookID:     l.BookID,
			StockLevel: l.StockLevel,
			UnitPrice:  l.UnitPrice,
			Book:       fromBookModel(l.Book),
		}
	}
	return &shop.Shop{
		Entity:    types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Inventory: lines,
	}
}

// ==================== Order models ====================

type itemModel struct {
	BookID    string    `bson:"book_id"`
	Quantity  int64     `bson:"quantity"`
	UnitPrice int64     `bson:"unit_price"`
	Book      bookModel `bson:"book_snapshot"`
}

type orderModel struct {
	ID          string      `bson:"_id"`
	BuyerID     string      `bson:"buyer_id"`
	StoreID     string      `bson:"store_id"`
	Status      string      `bson:"status"`
	TotalAmount int64       `bson:"total_amount"`
	Items       []itemModel `bson:"items"`
	CreatedAt   time.Time   `bson:"create_time"`
	PaidAt      *time.Time  `bson:"pay_time,omitempty"`
	ShippedAt   *time.Time  `bson:"ship_time,omitempty"`
	DeliveredAt *time.Time  `bson:"deliver_time,omitempty"`
	CancelledAt *time.Time  `bson:"cancel_time,omitempty"`
	TimeoutAt   *time.Time  `bson:"timeout_at,omitempty"`
}

func toOrderModel(o *order.Order) *orderModel {
	items := make([]itemModel, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemModel{
			BookID:    it.BookID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Book:      toBookModel(it.Book),
		}
	}
	return &orderModel{
		ID:          o.ID,
		BuyerID:     o.BuyerID,
		StoreID:     o.StoreID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount,
		Items:       items,
		CreatedAt:   o.CreatedAt,
		PaidAt:      o.PaidAt,
		ShippedAt:   o.ShippedAt,
		DeliveredAt: o.DeliveredAt,
		CancelledAt: o.CancelledAt,
		TimeoutAt:   o.TimeoutAt,
	}
}

func fromOrderModel(m *orderModel) *order.Order {
	items := make([]order.Item, len(m.Items))
	for i, it := range m.Items {
		items[i] = order.Item{
			BookID:    it.BookID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Book:      fromBookModel(it.Book),
		}
	}
	return &order.Order{
		ID:          m.ID,
		BuyerID:     m.BuyerID,
		StoreID:     m.StoreID,
		Status:      order.Status(m.Status),
		TotalAmount: m.TotalAmount,
		Items:       items,
		CreatedAt:   m.CreatedAt.UTC(),
		PaidAt:      utc(m.PaidAt),
		ShippedAt:   utc(m.ShippedAt),
		DeliveredAt: utc(m.DeliveredAt),
		CancelledAt: utc(m.CancelledAt),
		TimeoutAt:   utc(m.TimeoutAt),
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// stampField maps a transition stamp to its document field.
func stampField(s order.Stamp) string {
	return string(s)
}
