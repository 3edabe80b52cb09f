// Package bookstore provides the order lifecycle engine of an online
// bookstore: the order state machine, the balance ledger, the inventory
// manager and the expiry sweeper.
//
// The engine is a library. It sits behind whatever routing and
// authentication layer the application uses and talks to storage through
// the store.Store capability interface. Storage only has to offer
// single-document conditional updates; the engine never relies on
// multi-document transactions. Steps that span documents are ordered so a
// later failure can be undone by an explicit compensating write.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/bookstore"
//	    "github.com/xraph/bookstore/store/mongo"
//	)
//
//	s, err := mongo.Open(ctx, "mongodb://localhost:27017", "bookstore")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := bookstore.New(s, bookstore.WithLogger(logger))
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Order lifecycle
//
//	unpaid --Pay--> paid --Ship--> shipped --Receive--> delivered
//	unpaid --Cancel--> cancelled
//	paid   --Cancel--> cancelled
//
// Pay debits the buyer before committing the status and credits the debit
// back if the commit loses a race. Ship takes stock for every item, all or
// nothing, then commits. Receive commits first and credits the seller
// afterwards. Cancel captures the pre-cancellation status atomically and
// refunds only orders that were paid at that moment.
//
// Unpaid orders older than the sweep threshold (24h by default) are
// cancelled by SweepExpired, which the engine runs in the background
// between Start and Stop.
//
// # Errors
//
// Every operation returns either nil or an error wrapping one of the
// *Error sentinels in this package. Use errors.Is to test for a specific
// failure, KindOf for its category and CodeOf for the stable numeric code.
// IsRetryable reports storage failures whose outcome is unknown.
//
// # Plugins
//
// Plugins implement any of the hook interfaces in the plugin package and
// are registered with WithPlugin. Hooks run after the state change they
// describe and can never fail the operation.
package bookstore
