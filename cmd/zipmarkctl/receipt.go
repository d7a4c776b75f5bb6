package main

import (
	"context"

	"github.com/cordum/zipmark/core/receipts"
)

func runReceiptCmd(args []string) {
	if len(args) < 1 {
		usage()
		return
	}
	switch args[0] {
	case "show":
		fs := newFlagSet("receipt show")
		fs.ParseArgs(args[1:])
		if fs.NArg() < 1 {
			fail("usage: receipt show <receipt_id>")
		}
		store, err := receipts.NewRedisStore(*fs.redis)
		check(err)
		defer store.Close()
		r, err := store.Get(context.Background(), fs.Arg(0))
		check(err)
		printJSON(r)
	case "list":
		fs := newFlagSet("receipt list")
		customer := fs.Int64("customer", 0, "customer id")
		limit := fs.Int64("limit", 20, "max receipts")
		fs.ParseArgs(args[1:])
		if *customer <= 0 {
			fail("--customer required")
		}
		store, err := receipts.NewRedisStore(*fs.redis)
		check(err)
		defer store.Close()
		list, err := store.ListByCustomer(context.Background(), *customer, *limit)
		check(err)
		printJSON(list)
	default:
		usage()
	}
}
