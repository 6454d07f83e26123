package repository

import (
	"errors"
	"strings"

	"github.com/stockhold/internal/models"

	"gorm.io/gorm"
)

// ErrPaymentEventDuplicated 同一 payment_ref 已经被处理过
var ErrPaymentEventDuplicated = errors.New("payment event duplicated")

// PaymentEventRepository 支付事件幂等表数据访问接口
type PaymentEventRepository interface {
	Insert(event *models.PaymentEvent) error
	GetByPaymentRef(paymentRef string) (*models.PaymentEvent, error)
	WithTx(tx *gorm.DB) PaymentEventRepository
}

// GormPaymentEventRepository GORM 实现
type GormPaymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository 创建支付事件仓库
func NewPaymentEventRepository(db *gorm.DB) *GormPaymentEventRepository {
	return &GormPaymentEventRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentEventRepository) WithTx(tx *gorm.DB) PaymentEventRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentEventRepository{db: tx}
}

// Insert 写入支付事件。payment_ref 上有唯一索引，
// 并发重复回调在这里被数据库裁决，重复写入返回 ErrPaymentEventDuplicated。
func (r *GormPaymentEventRepository) Insert(event *models.PaymentEvent) error {
	if event == nil {
		return errors.New("payment event is nil")
	}
	if strings.TrimSpace(event.PaymentRef) == "" {
		return errors.New("invalid payment ref")
	}
	if err := r.db.Create(event).Error; err != nil {
		if isDuplicatedKey(err) {
			return ErrPaymentEventDuplicated
		}
		return err
	}
	return nil
}

// GetByPaymentRef 按支付引用查询事件
func (r *GormPaymentEventRepository) GetByPaymentRef(paymentRef string) (*models.PaymentEvent, error) {
	if paymentRef == "" {
		return nil, errors.New("invalid payment ref")
	}
	var event models.PaymentEvent
	if err := r.db.Where("payment_ref = ?", paymentRef).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// isDuplicatedKey 兼容未启用错误翻译的驱动
func isDuplicatedKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
