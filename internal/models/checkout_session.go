package models

import (
	"time"
)

// CheckoutSession 结账会话表
type CheckoutSession struct {
	ID            uint       `gorm:"primarykey" json:"id"`                               // 主键
	SessionNo     string     `gorm:"uniqueIndex;not null" json:"session_no"`             // 会话编号（外部引用）
	Status        string     `gorm:"index;not null" json:"status"`                       // 会话状态
	StockReserved bool       `gorm:"not null;default:false" json:"stock_reserved"`       // 全部条目预占成功时为 true
	Currency      string     `gorm:"not null" json:"currency"`                           // 币种
	TotalAmount   Money      `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"` // 合计金额
	PaymentRef    string     `gorm:"index" json:"payment_ref,omitempty"`                 // 支付引用（确认时记录）
	ExpiresAt     *time.Time `gorm:"index" json:"expires_at"`                            // 过期时间
	PaidAt        *time.Time `gorm:"index" json:"paid_at,omitempty"`                     // 支付时间
	CanceledAt    *time.Time `gorm:"index" json:"canceled_at,omitempty"`                 // 取消时间
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`                            // 创建时间
	UpdatedAt     time.Time  `gorm:"index" json:"updated_at"`                            // 更新时间

	Items        []SessionItem `gorm:"foreignKey:SessionID" json:"items,omitempty"`        // 会话条目
	Reservations []Reservation `gorm:"foreignKey:SessionID" json:"reservations,omitempty"` // 关联预占
}

// TableName 指定表名
func (CheckoutSession) TableName() string {
	return "checkout_sessions"
}

// Terminal 是否已进入终态（paid/cancelled/expired 后不可变更）
func (s CheckoutSession) Terminal() bool {
	switch s.Status {
	case "paid", "cancelled", "expired":
		return true
	}
	return false
}
