// Package storetest provides sqlite-backed databases for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"kitchen_requests/internal/model"
	"kitchen_requests/internal/store"
)

// DB opens a fresh migrated database in the test's temp dir.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "kitchen.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("test db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(store.Models()...); err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}
	return db
}

// Store wraps DB in a store.Store.
func Store(tb testing.TB) *store.Store {
	tb.Helper()
	return store.New(DB(tb))
}

// SeedMenu inserts catalog entries.
func SeedMenu(tb testing.TB, s *store.Store, items ...model.MenuItem) {
	tb.Helper()
	if err := s.UpsertMenuItems(context.Background(), items); err != nil {
		tb.Fatalf("seed menu: %v", err)
	}
}

// Item describes a seeded line item.
type Item struct {
	MenuItemID uint
	Quantity   int
	Prepared   int
}

// SeedRequest stores a request in the given status with its line items, bypassing
// the pipeline.
func SeedRequest(tb testing.TB, s *store.Store, customerID uint, status model.RequestStatus, items ...Item) model.Request {
	tb.Helper()
	ctx := context.Background()

	req := &model.Request{CustomerID: customerID, Status: status}
	lineItems := make([]model.RequestLineItem, 0, len(items))
	for _, it := range items {
		lineItems = append(lineItems, model.RequestLineItem{MenuItemID: it.MenuItemID, Quantity: it.Quantity})
	}
	if err := s.InsertRequest(ctx, req, lineItems); err != nil {
		tb.Fatalf("seed request: %v", err)
	}
	for i, it := range items {
		if it.Prepared == 0 {
			continue
		}
		if err := s.SetPreparedQuantity(ctx, req.LineItems[i].ID, it.Prepared); err != nil {
			tb.Fatalf("seed prepared quantity: %v", err)
		}
		req.LineItems[i].PreparedQuantity = it.Prepared
	}
	return *req
}
