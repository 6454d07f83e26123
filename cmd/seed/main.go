package main

import (
	"context"

	"github.com/stockhold/internal/config"
	"github.com/stockhold/internal/logger"
	"github.com/stockhold/internal/models"
	"github.com/stockhold/internal/repository"
	"github.com/stockhold/internal/service"

	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	catalog := service.NewCatalogService(repository.NewStockRepository(models.DB))
	items := []service.UpsertStockItemInput{
		{
			SKU:         "EARPHONE-BLK",
			ProductCode: "wireless-earphones",
			SpecValue:   "黑色",
			StockTotal:  200,
			UnitPrice:   decimal.NewFromFloat(199.00),
			Currency:    "CNY",
			IsActive:    true,
		},
		{
			SKU:         "EARPHONE-WHT",
			ProductCode: "wireless-earphones",
			SpecValue:   "白色",
			StockTotal:  150,
			UnitPrice:   decimal.NewFromFloat(199.00),
			Currency:    "CNY",
			IsActive:    true,
		},
		{
			SKU:         "KEYBOARD-87",
			ProductCode: "mech-keyboard",
			SpecValue:   "87 键",
			StockTotal:  80,
			UnitPrice:   decimal.NewFromFloat(349.00),
			Currency:    "CNY",
			IsActive:    true,
		},
		{
			SKU:         "MUG-350ML",
			ProductCode: "ceramic-mug",
			SpecValue:   "350ml",
			StockTotal:  500,
			UnitPrice:   decimal.NewFromFloat(39.90),
			Currency:    "CNY",
			IsActive:    true,
		},
	}

	ctx := context.Background()
	for _, item := range items {
		if _, err := catalog.UpsertStockItem(ctx, item); err != nil {
			stdLog.Printf("Failed to seed stock item %s: %v", item.SKU, err)
			continue
		}
		stdLog.Printf("Seeded stock item: %s", item.SKU)
	}
}
