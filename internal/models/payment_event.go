package models

import (
	"time"
)

// PaymentEvent 支付事件幂等表（同一 payment_ref 只允许确认一次）
type PaymentEvent struct {
	ID          uint      `gorm:"primarykey" json:"id"`                                       // 主键
	PaymentRef  string    `gorm:"column:payment_ref;type:varchar(128);uniqueIndex;not null" json:"payment_ref"` // 外部支付事件标识
	SessionID   uint      `gorm:"index;not null" json:"session_id"`                           // 关联会话
	Outcome     string    `gorm:"type:varchar(32);not null" json:"outcome"`                   // 处理结果（paid 等）
	Source      string    `gorm:"type:varchar(32)" json:"source"`                             // 来源（webhook/reconcile）
	ProcessedAt time.Time `gorm:"not null" json:"processed_at"`                               // 处理时间
	CreatedAt   time.Time `gorm:"index" json:"created_at"`                                    // 创建时间
}

// TableName 指定表名
func (PaymentEvent) TableName() string {
	return "payment_events"
}
