package models

import (
	"time"
)

// StockItem 库存台账表（每个 SKU 一行，SKU = 商品+规格）
type StockItem struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                      // 主键
	SKU           string    `gorm:"column:sku;type:varchar(64);uniqueIndex;not null" json:"sku"` // SKU 编码
	ProductCode   string    `gorm:"type:varchar(64);index" json:"product_code"`                // 商品编码
	SpecValue     string    `gorm:"type:varchar(64)" json:"spec_value"`                        // 规格值（尺码等）
	StockTotal    int       `gorm:"not null;default:0" json:"stock_total"`                     // 实物库存总量
	StockReserved int       `gorm:"not null;default:0" json:"stock_reserved"`                  // 未支付预占量
	StockSold     int       `gorm:"not null;default:0" json:"stock_sold"`                      // 已售量（确认后累加）
	UnitPrice     Money     `gorm:"type:decimal(20,2);not null;default:0" json:"unit_price"`   // 单价快照（来自商品目录）
	Currency      string    `gorm:"type:varchar(8);not null" json:"currency"`                  // 币种
	IsActive      bool      `gorm:"default:true;index" json:"is_active"`                       // 是否可售
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                                   // 创建时间
	UpdatedAt     time.Time `gorm:"index" json:"updated_at"`                                   // 更新时间
}

// TableName 指定表名
func (StockItem) TableName() string {
	return "stock_items"
}

// Available 当前可售量（台账视角，不为负）
func (s StockItem) Available() int {
	available := s.StockTotal - s.StockReserved
	if available < 0 {
		return 0
	}
	return available
}
