package repository

import (
	"errors"
	"strings"

	"github.com/stockhold/internal/models"

	"gorm.io/gorm"
)

// StockRepository 库存台账数据访问接口
type StockRepository interface {
	GetBySKU(sku string) (*models.StockItem, error)
	ListBySKUs(skus []string) ([]models.StockItem, error)
	Create(item *models.StockItem) error
	Update(item *models.StockItem) error
	TryReserve(sku string, quantity int) (int64, error)
	ConfirmReserved(sku string, quantity int) (int64, error)
	Release(sku string, quantity int) (int64, error)
	OverwriteReserved(sku string, reserved int) (int64, error)
	WithTx(tx *gorm.DB) StockRepository
}

// GormStockRepository GORM 实现
type GormStockRepository struct {
	db *gorm.DB
}

// NewStockRepository 创建库存台账仓库
func NewStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

// WithTx 绑定事务
func (r *GormStockRepository) WithTx(tx *gorm.DB) StockRepository {
	if tx == nil {
		return r
	}
	return &GormStockRepository{db: tx}
}

// GetBySKU 按 SKU 获取台账行
func (r *GormStockRepository) GetBySKU(sku string) (*models.StockItem, error) {
	code := strings.TrimSpace(sku)
	if code == "" {
		return nil, errors.New("invalid sku")
	}
	var item models.StockItem
	if err := r.db.Where("sku = ?", code).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// ListBySKUs 批量获取台账行
func (r *GormStockRepository) ListBySKUs(skus []string) ([]models.StockItem, error) {
	if len(skus) == 0 {
		return []models.StockItem{}, nil
	}
	var items []models.StockItem
	if err := r.db.Where("sku IN ?", skus).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Create 创建台账行
func (r *GormStockRepository) Create(item *models.StockItem) error {
	if item == nil {
		return errors.New("stock item is nil")
	}
	return r.db.Create(item).Error
}

// Update 更新台账行（仅目录同步使用，不触碰计数器语义）
func (r *GormStockRepository) Update(item *models.StockItem) error {
	if item == nil {
		return errors.New("stock item is nil")
	}
	return r.db.Save(item).Error
}

// TryReserve 条件预占：仅当可售量足够时增加预占量。
// 必须是单条原子 UPDATE，两个并发请求争抢最后一件时只有一个能命中条件。
func (r *GormStockRepository) TryReserve(sku string, quantity int) (int64, error) {
	if strings.TrimSpace(sku) == "" || quantity <= 0 {
		return 0, errors.New("invalid stock reserve params")
	}
	result := r.db.Model(&models.StockItem{}).
		Where("sku = ? AND stock_total - stock_reserved >= ?", sku, quantity).
		Updates(map[string]interface{}{
			"stock_reserved": gorm.Expr("stock_reserved + ?", quantity),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ConfirmReserved 预占转已售：同时扣减总量与预占量，要求预占量足够。
// 预占量不足说明预占已被释放或数据被破坏，由调用方按 ReservationMismatch 处理，
// 绝不静默截断到 0。
func (r *GormStockRepository) ConfirmReserved(sku string, quantity int) (int64, error) {
	if strings.TrimSpace(sku) == "" || quantity <= 0 {
		return 0, errors.New("invalid stock confirm params")
	}
	result := r.db.Model(&models.StockItem{}).
		Where("sku = ? AND stock_reserved >= ? AND stock_total >= ?", sku, quantity, quantity).
		Updates(map[string]interface{}{
			"stock_total":    gorm.Expr("stock_total - ?", quantity),
			"stock_reserved": gorm.Expr("stock_reserved - ?", quantity),
			"stock_sold":     gorm.Expr("stock_sold + ?", quantity),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Release 释放预占：扣减预占量，下限为 0。
// 过期扫描与主动取消可能竞争释放同一份预占，重复释放是空操作而非错误。
func (r *GormStockRepository) Release(sku string, quantity int) (int64, error) {
	if strings.TrimSpace(sku) == "" || quantity <= 0 {
		return 0, errors.New("invalid stock release params")
	}
	result := r.db.Model(&models.StockItem{}).
		Where("sku = ? AND stock_reserved > 0", sku).
		Updates(map[string]interface{}{
			"stock_reserved": gorm.Expr("CASE WHEN stock_reserved >= ? THEN stock_reserved - ? ELSE 0 END", quantity, quantity),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// OverwriteReserved 以给定值覆写预占量（仅修复流程使用）
func (r *GormStockRepository) OverwriteReserved(sku string, reserved int) (int64, error) {
	if strings.TrimSpace(sku) == "" || reserved < 0 {
		return 0, errors.New("invalid stock overwrite params")
	}
	result := r.db.Model(&models.StockItem{}).
		Where("sku = ?", sku).
		Update("stock_reserved", reserved)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
