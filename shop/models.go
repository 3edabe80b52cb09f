// Package shop models a seller's bookstore: its owner and the inventory
// lines it stocks.
package shop

import "github.com/xraph/bookstore/types"

// Book holds the descriptive fields of a catalog entry. Orders copy it
// into each item at creation time so later catalog edits never alter
// historical orders.
type Book struct {
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

// Clone returns a deep copy of b.
func (b Book) Clone() Book {
	if b.Tags != nil {
		b.Tags = append([]string(nil), b.Tags...)
	}
	return b
}

// Line is one stock line: a book, how many copies are on hand, and the
// unit price charged for it. Book ids are unique within a shop.
type Line struct {
	BookID     string `json:"book_id"`
	StockLevel int64  `json:"stock_level"`
	UnitPrice  int64  `json:"unit_price"`
	Book       Book   `json:"book_info"`
}

// Shop is a seller-owned store and its inventory.
type Shop struct {
	types.Entity
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Inventory []Line `json:"inventory"`
}

// Line looks up the inventory line for bookID.
func (s *Shop) Line(bookID string) (Line, bool) {
	for _, l := range s.Inventory {
		if l.BookID == bookID {
			return l, true
		}
	}
	return Line{}, false
}

// Clone returns a deep copy of s.
func (s *Shop) Clone() *Shop {
	if s == nil {
		return nil
	}
	c := *s
	c.Inventory = make([]Line, len(s.Inventory))
	for i, l := range s.Inventory {
		l.Book = l.Book.Clone()
		c.Inventory[i] = l
	}
	return &c
}
