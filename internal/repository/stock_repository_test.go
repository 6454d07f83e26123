package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/stockhold/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupStockRepoTest(t *testing.T) (*GormStockRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:stock_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.StockItem{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewStockRepository(db), db
}

func createStockItem(t *testing.T, db *gorm.DB, sku string, total, reserved int) {
	t.Helper()
	item := models.StockItem{
		SKU:           sku,
		ProductCode:   "prod-" + sku,
		StockTotal:    total,
		StockReserved: reserved,
		UnitPrice:     models.NewMoneyFromDecimal(decimal.NewFromInt(10)),
		Currency:      "CNY",
		IsActive:      true,
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("create stock item failed: %v", err)
	}
}

func TestTryReserveContention(t *testing.T) {
	repo, db := setupStockRepoTest(t)
	createStockItem(t, db, "SKU-A", 5, 0)

	success := 0
	for i := 0; i < 10; i++ {
		affected, err := repo.TryReserve("SKU-A", 1)
		if err != nil {
			t.Fatalf("try reserve failed: %v", err)
		}
		if affected == 1 {
			success++
		}
	}
	if success != 5 {
		t.Fatalf("expected exactly 5 successful reservations, got %d", success)
	}

	item, err := repo.GetBySKU("SKU-A")
	if err != nil {
		t.Fatalf("get stock item failed: %v", err)
	}
	if item.StockReserved != 5 {
		t.Fatalf("expected reserved 5, got %d", item.StockReserved)
	}
	if item.Available() != 0 {
		t.Fatalf("expected available 0, got %d", item.Available())
	}
}

func TestTryReserveInsufficient(t *testing.T) {
	repo, db := setupStockRepoTest(t)
	createStockItem(t, db, "SKU-B", 3, 2)

	affected, err := repo.TryReserve("SKU-B", 2)
	if err != nil {
		t.Fatalf("try reserve failed: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected 0 rows affected, got %d", affected)
	}

	affected, err = repo.TryReserve("SKU-B", 1)
	if err != nil {
		t.Fatalf("try reserve failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}
}

func TestConfirmReservedRequiresEnoughReserved(t *testing.T) {
	repo, db := setupStockRepoTest(t)
	createStockItem(t, db, "SKU-C", 10, 2)

	affected, err := repo.ConfirmReserved("SKU-C", 3)
	if err != nil {
		t.Fatalf("confirm reserved failed: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected 0 rows affected for over-confirm, got %d", affected)
	}

	affected, err = repo.ConfirmReserved("SKU-C", 2)
	if err != nil {
		t.Fatalf("confirm reserved failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}

	item, err := repo.GetBySKU("SKU-C")
	if err != nil {
		t.Fatalf("get stock item failed: %v", err)
	}
	if item.StockTotal != 8 || item.StockReserved != 0 || item.StockSold != 2 {
		t.Fatalf("unexpected counters: total=%d reserved=%d sold=%d", item.StockTotal, item.StockReserved, item.StockSold)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	repo, db := setupStockRepoTest(t)
	createStockItem(t, db, "SKU-D", 10, 1)

	affected, err := repo.Release("SKU-D", 5)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}
	item, err := repo.GetBySKU("SKU-D")
	if err != nil {
		t.Fatalf("get stock item failed: %v", err)
	}
	if item.StockReserved != 0 {
		t.Fatalf("expected reserved floored at 0, got %d", item.StockReserved)
	}

	// 预占量已为 0 时重复释放是空操作
	affected, err = repo.Release("SKU-D", 1)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected 0 rows affected on repeated release, got %d", affected)
	}
}

func TestOverwriteReserved(t *testing.T) {
	repo, db := setupStockRepoTest(t)
	createStockItem(t, db, "SKU-E", 10, 7)

	affected, err := repo.OverwriteReserved("SKU-E", 2)
	if err != nil {
		t.Fatalf("overwrite reserved failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}
	item, err := repo.GetBySKU("SKU-E")
	if err != nil {
		t.Fatalf("get stock item failed: %v", err)
	}
	if item.StockReserved != 2 {
		t.Fatalf("expected reserved 2, got %d", item.StockReserved)
	}
}

func TestGetBySKUNotFound(t *testing.T) {
	repo, _ := setupStockRepoTest(t)
	item, err := repo.GetBySKU("MISSING")
	if err != nil {
		t.Fatalf("get stock item failed: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil for missing sku, got %+v", item)
	}
}
