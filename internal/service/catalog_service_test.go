package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stockhold/internal/models"
	"github.com/stockhold/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupCatalogServiceTest(t *testing.T) (*CatalogService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:catalog_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.StockItem{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db
	return NewCatalogService(repository.NewStockRepository(db)), db
}

func TestUpsertStockItemCreateAndUpdate(t *testing.T) {
	svc, _ := setupCatalogServiceTest(t)
	ctx := context.Background()

	created, err := svc.UpsertStockItem(ctx, UpsertStockItemInput{
		SKU:         "SKU-CAT1",
		ProductCode: "earphones",
		SpecValue:   "黑色",
		StockTotal:  100,
		UnitPrice:   decimal.NewFromFloat(199.00),
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Currency != "CNY" {
		t.Fatalf("expected default currency CNY, got %s", created.Currency)
	}

	updated, err := svc.UpsertStockItem(ctx, UpsertStockItemInput{
		SKU:        "SKU-CAT1",
		StockTotal: 150,
		UnitPrice:  decimal.NewFromFloat(179.00),
		Currency:   "CNY",
		IsActive:   false,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.StockTotal != 150 || updated.IsActive {
		t.Fatalf("unexpected updated item: total=%d active=%v", updated.StockTotal, updated.IsActive)
	}
	if !updated.UnitPrice.Decimal.Equal(decimal.NewFromFloat(179.00)) {
		t.Fatalf("unexpected unit price: %s", updated.UnitPrice)
	}
}

func TestUpsertStockItemRejectsTotalBelowReserved(t *testing.T) {
	svc, db := setupCatalogServiceTest(t)
	ctx := context.Background()

	if _, err := svc.UpsertStockItem(ctx, UpsertStockItemInput{
		SKU:        "SKU-CAT2",
		StockTotal: 10,
		UnitPrice:  decimal.NewFromInt(50),
		IsActive:   true,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := db.Model(&models.StockItem{}).Where("sku = ?", "SKU-CAT2").
		Update("stock_reserved", 6).Error; err != nil {
		t.Fatalf("seed reserved failed: %v", err)
	}

	// 总量不能压到当前预占量之下
	if _, err := svc.UpsertStockItem(ctx, UpsertStockItemInput{
		SKU:        "SKU-CAT2",
		StockTotal: 5,
		UnitPrice:  decimal.NewFromInt(50),
		IsActive:   true,
	}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}

func TestUpsertStockItemInvalidInput(t *testing.T) {
	svc, _ := setupCatalogServiceTest(t)
	ctx := context.Background()

	if _, err := svc.UpsertStockItem(ctx, UpsertStockItemInput{
		SKU:        "  ",
		StockTotal: 10,
		UnitPrice:  decimal.NewFromInt(10),
	}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for blank sku, got %v", err)
	}
	if _, err := svc.UpsertStockItem(ctx, UpsertStockItemInput{
		SKU:        "SKU-CAT3",
		StockTotal: 10,
		UnitPrice:  decimal.NewFromInt(-1),
	}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for negative price, got %v", err)
	}
}

func TestGetStockItemNotFound(t *testing.T) {
	svc, _ := setupCatalogServiceTest(t)
	if _, err := svc.GetStockItem("MISSING"); !errors.Is(err, ErrStockItemNotFound) {
		t.Fatalf("expected ErrStockItemNotFound, got %v", err)
	}
}
