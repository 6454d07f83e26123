package models

import (
	"time"
)

// Reservation 库存预占表（每个会话×SKU 一行）
type Reservation struct {
	ID            uint       `gorm:"primarykey" json:"id"`                            // 主键
	SessionID     uint       `gorm:"index;not null" json:"session_id"`                // 所属结账会话
	SKU           string     `gorm:"column:sku;type:varchar(64);index;not null" json:"sku"` // SKU 编码
	Quantity      int        `gorm:"not null" json:"quantity"`                        // 预占数量
	Status        string     `gorm:"index;not null" json:"status"`                    // active/confirmed/released/expired
	ReleaseReason string     `gorm:"type:varchar(32)" json:"release_reason,omitempty"` // 释放原因
	ExpiresAt     time.Time  `gorm:"index;not null" json:"expires_at"`                // 过期时间
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`                          // 确认时间
	ReleasedAt    *time.Time `json:"released_at,omitempty"`                           // 释放时间
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`                         // 创建时间
	UpdatedAt     time.Time  `gorm:"index" json:"updated_at"`                         // 更新时间
}

// TableName 指定表名
func (Reservation) TableName() string {
	return "reservations"
}

// Terminal 是否已进入终态（终态不可再迁移）
func (r Reservation) Terminal() bool {
	return r.Status != "" && r.Status != "active"
}
