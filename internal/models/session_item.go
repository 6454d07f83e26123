package models

import (
	"time"
)

// SessionItem 会话条目表（下单时的 SKU/数量/价格快照）
type SessionItem struct {
	ID         uint      `gorm:"primarykey" json:"id"`                                  // 主键
	SessionID  uint      `gorm:"index;not null" json:"session_id"`                      // 所属会话
	SKU        string    `gorm:"column:sku;type:varchar(64);index;not null" json:"sku"` // SKU 编码
	Quantity   int       `gorm:"not null" json:"quantity"`                              // 数量
	UnitPrice  Money     `gorm:"type:decimal(20,2);not null;default:0" json:"unit_price"`  // 单价快照
	TotalPrice Money     `gorm:"type:decimal(20,2);not null;default:0" json:"total_price"` // 小计
	CreatedAt  time.Time `gorm:"index" json:"created_at"`                               // 创建时间
	UpdatedAt  time.Time `gorm:"index" json:"updated_at"`                               // 更新时间
}

// TableName 指定表名
func (SessionItem) TableName() string {
	return "session_items"
}
