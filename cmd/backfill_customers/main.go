package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/affilinoanvesh/customer-insights/internal/config"
	"github.com/affilinoanvesh/customer-insights/internal/database"
	"github.com/affilinoanvesh/customer-insights/internal/store"
)

// backfill_customers re-derives every customer's aggregates from the
// orders table. Run it after bulk imports or whenever aggregates are
// suspected to have drifted.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	customerID := flag.String("customer", "", "Backfill a single customer id instead of all")
	verbose := flag.Bool("v", false, "Log every refreshed customer")
	flag.Parse()

	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := config.Get()

	db, err := database.Open(cfg, zap.NewNop())
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("unwrap db: %v", err)
	}
	defer sqlDB.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	customers := store.NewCustomerStore(db, nil)
	orders := store.NewOrderStore(db, nil)

	var ids []string
	if *customerID != "" {
		ids = []string{*customerID}
	} else {
		ids, err = orders.CustomerIDs(ctx)
		if err != nil {
			log.Fatalf("list customer ids: %v", err)
		}
	}
	if len(ids) == 0 {
		log.Println("no customers with orders, nothing to backfill")
		return
	}

	log.Printf("[INFO] refreshing aggregates for %d customers", len(ids))
	bar := progressbar.Default(int64(len(ids)))

	failed := 0
	for _, id := range ids {
		if err := customers.RefreshAggregates(ctx, id); err != nil {
			failed++
			log.Printf("[WARN] refresh %s: %v", id, err)
		} else if *verbose {
			log.Printf("[INFO] refreshed %s", id)
		}
		_ = bar.Add(1)
	}

	log.Printf("[INFO] done: refreshed=%d failed=%d", len(ids)-failed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
