package service

import (
	"context"
	"time"

	"github.com/stockhold/internal/cache"
	"github.com/stockhold/internal/logger"
	"github.com/stockhold/internal/models"
	"github.com/stockhold/internal/repository"

	"gorm.io/gorm"
)

const availabilityCacheTTL = 3 * time.Second

// LedgerService 库存台账服务：可售量查询与台账修复
type LedgerService struct {
	stockRepo       repository.StockRepository
	reservationRepo repository.ReservationRepository
}

// NewLedgerService 创建库存台账服务
func NewLedgerService(stockRepo repository.StockRepository, reservationRepo repository.ReservationRepository) *LedgerService {
	return &LedgerService{
		stockRepo:       stockRepo,
		reservationRepo: reservationRepo,
	}
}

// AvailabilityView 可售量视图
type AvailabilityView struct {
	SKU       string       `json:"sku"`
	Total     int          `json:"total"`
	Reserved  int          `json:"reserved"`
	Sold      int          `json:"sold"`
	Available int          `json:"available"`
	UnitPrice models.Money `json:"unit_price"`
	Currency  string       `json:"currency"`
	IsActive  bool         `json:"is_active"`
}

// Availability 查询单个 SKU 的可售量（短 TTL 缓存，容忍轻微滞后）
func (s *LedgerService) Availability(ctx context.Context, sku string) (*AvailabilityView, error) {
	key := availabilityCacheKey(sku)
	var cached AvailabilityView
	if hit, err := cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	item, err := s.stockRepo.GetBySKU(sku)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrStockItemNotFound
	}
	view := buildAvailabilityView(item)
	if err := cache.SetJSON(ctx, key, view, availabilityCacheTTL); err != nil {
		logger.Warnw("availability_cache_set_failed", "sku", sku, "error", err)
	}
	return view, nil
}

// AvailabilityBatch 批量查询可售量（不走缓存，列表页用）
func (s *LedgerService) AvailabilityBatch(skus []string) ([]AvailabilityView, error) {
	items, err := s.stockRepo.ListBySKUs(skus)
	if err != nil {
		return nil, err
	}
	views := make([]AvailabilityView, 0, len(items))
	for i := range items {
		views = append(views, *buildAvailabilityView(&items[i]))
	}
	return views, nil
}

// Repair 修复台账：以 active 预占记录之和覆写预占计数。
// 预占计数只会因故障偏大（预占行在、计数丢失的情况不会发生，因为二者同事务写入），
// 修复后可售量恢复，不会超卖。
func (s *LedgerService) Repair(ctx context.Context, sku string) (int, error) {
	var corrected int64
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		stockRepo := s.stockRepo.WithTx(tx)
		reservationRepo := s.reservationRepo.WithTx(tx)

		item, err := stockRepo.GetBySKU(sku)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrStockItemNotFound
		}
		sum, err := reservationRepo.SumActiveBySKU(sku)
		if err != nil {
			return err
		}
		corrected = sum
		if int64(item.StockReserved) == sum {
			return nil
		}
		logger.Warnw("stock_reserved_drift_detected",
			"sku", sku,
			"counter", item.StockReserved,
			"actual", sum,
		)
		if _, err := stockRepo.OverwriteReserved(sku, int(sum)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	invalidateAvailability(ctx, sku)
	return int(corrected), nil
}

func buildAvailabilityView(item *models.StockItem) *AvailabilityView {
	return &AvailabilityView{
		SKU:       item.SKU,
		Total:     item.StockTotal,
		Reserved:  item.StockReserved,
		Sold:      item.StockSold,
		Available: item.Available(),
		UnitPrice: item.UnitPrice,
		Currency:  item.Currency,
		IsActive:  item.IsActive,
	}
}

func availabilityCacheKey(sku string) string {
	return "stock:" + sku
}

// invalidateAvailability 台账变更后清理可售量缓存
func invalidateAvailability(ctx context.Context, skus ...string) {
	for _, sku := range skus {
		if err := cache.Del(ctx, availabilityCacheKey(sku)); err != nil {
			logger.Warnw("availability_cache_del_failed", "sku", sku, "error", err)
		}
	}
}
