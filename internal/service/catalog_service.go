package service

import (
	"context"
	"strings"

	"github.com/stockhold/internal/constants"
	"github.com/stockhold/internal/models"
	"github.com/stockhold/internal/repository"

	"github.com/shopspring/decimal"
)

// CatalogService 目录服务：SKU 台账行的建档与维护
type CatalogService struct {
	stockRepo repository.StockRepository
}

// NewCatalogService 创建目录服务
func NewCatalogService(stockRepo repository.StockRepository) *CatalogService {
	return &CatalogService{stockRepo: stockRepo}
}

// UpsertStockItemInput SKU 建档输入
type UpsertStockItemInput struct {
	SKU         string
	ProductCode string
	SpecValue   string
	StockTotal  int
	UnitPrice   decimal.Decimal
	Currency    string
	IsActive    bool
}

// UpsertStockItem 创建或更新台账行。
// 总量不允许压到当前预占量之下，否则可售量会变成负数。
func (s *CatalogService) UpsertStockItem(ctx context.Context, input UpsertStockItemInput) (*models.StockItem, error) {
	sku := strings.TrimSpace(input.SKU)
	if sku == "" || input.StockTotal < 0 || input.UnitPrice.IsNegative() {
		return nil, ErrInvalidParams
	}
	currency := strings.TrimSpace(input.Currency)
	if currency == "" {
		currency = constants.SiteCurrencyDefault
	}

	existing, err := s.stockRepo.GetBySKU(sku)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		item := &models.StockItem{
			SKU:         sku,
			ProductCode: strings.TrimSpace(input.ProductCode),
			SpecValue:   strings.TrimSpace(input.SpecValue),
			StockTotal:  input.StockTotal,
			UnitPrice:   models.NewMoneyFromDecimal(input.UnitPrice),
			Currency:    currency,
			IsActive:    input.IsActive,
		}
		if err := s.stockRepo.Create(item); err != nil {
			return nil, err
		}
		return item, nil
	}

	if input.StockTotal < existing.StockReserved {
		return nil, ErrInvalidParams
	}
	existing.ProductCode = strings.TrimSpace(input.ProductCode)
	existing.SpecValue = strings.TrimSpace(input.SpecValue)
	existing.StockTotal = input.StockTotal
	existing.UnitPrice = models.NewMoneyFromDecimal(input.UnitPrice)
	existing.Currency = currency
	existing.IsActive = input.IsActive
	if err := s.stockRepo.Update(existing); err != nil {
		return nil, err
	}
	invalidateAvailability(ctx, sku)
	return existing, nil
}

// GetStockItem 按 SKU 查询台账行
func (s *CatalogService) GetStockItem(sku string) (*models.StockItem, error) {
	item, err := s.stockRepo.GetBySKU(sku)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrStockItemNotFound
	}
	return item, nil
}
