package bookstore_test

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"

	"github.com/xraph/bookstore"
	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/shop"
	"github.com/xraph/bookstore/store/memory"
)

func Example() {
	ctx := context.Background()

	// Memory for the demo; use store/postgres, store/mongo or store/sqlite in production.
	eng := bookstore.New(memory.New(),
		bookstore.WithPasswordCost(bcrypt.MinCost),
		bookstore.WithoutSweeper(),
	)
	if err := eng.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer eng.Stop()

	must := func(err error) {
		if err != nil {
			log.Fatal(err)
		}
	}

	must(eng.RegisterUser(ctx, "alice", "alice-pw"))
	must(eng.RegisterUser(ctx, "bob", "bob-pw"))
	must(eng.AddFunds(ctx, "bob", "bob-pw", 1000))
	must(eng.CreateStore(ctx, "alice", "alice-books"))
	must(eng.AddBook(ctx, "alice", "alice-books", shop.Line{
		BookID:     "go-in-action",
		StockLevel: 3,
		UnitPrice:  250,
		Book:       shop.Book{Title: "Go in Action"},
	}))

	orderID, err := eng.CreateOrder(ctx, "bob", "alice-books", []order.LineRequest{
		{BookID: "go-in-action", Quantity: 2},
	})
	must(err)
	must(eng.Pay(ctx, "bob", "bob-pw", orderID))
	must(eng.Ship(ctx, "alice", orderID))
	must(eng.Receive(ctx, "bob", orderID))

	o, err := eng.QueryOrder(ctx, "bob", orderID)
	must(err)
	buyer, _ := eng.Balances().Balance(ctx, "bob")
	seller, _ := eng.Balances().Balance(ctx, "alice")

	fmt.Println("status:", o.Status)
	fmt.Println("total:", o.TotalAmount)
	fmt.Println("buyer balance:", buyer)
	fmt.Println("seller balance:", seller)
	// Output:
	// status: delivered
	// total: 500
	// buyer balance: 500
	// seller balance: 500
}
