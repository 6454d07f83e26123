package repository

import (
	"errors"
	"time"

	"github.com/stockhold/internal/models"

	"gorm.io/gorm"
)

// SessionRepository 结账会话数据访问接口
type SessionRepository interface {
	Create(session *models.CheckoutSession) error
	GetByID(id uint) (*models.CheckoutSession, error)
	GetBySessionNo(sessionNo string) (*models.CheckoutSession, error)
	ListStalePending(cutoff time.Time, limit int) ([]models.CheckoutSession, error)
	UpdateStatusIf(id uint, expected []string, target string, updates map[string]interface{}) (int64, error)
	SetStockReserved(id uint, reserved bool) error
	WithTx(tx *gorm.DB) SessionRepository
}

// GormSessionRepository GORM 实现
type GormSessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建会话仓库
func NewSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSessionRepository) WithTx(tx *gorm.DB) SessionRepository {
	if tx == nil {
		return r
	}
	return &GormSessionRepository{db: tx}
}

// Create 创建会话（连同条目一并写入）
func (r *GormSessionRepository) Create(session *models.CheckoutSession) error {
	if session == nil {
		return errors.New("session is nil")
	}
	return r.db.Create(session).Error
}

// GetByID 按主键获取会话（带条目与预占）
func (r *GormSessionRepository) GetByID(id uint) (*models.CheckoutSession, error) {
	if id == 0 {
		return nil, errors.New("invalid session id")
	}
	var session models.CheckoutSession
	if err := r.db.Preload("Items").Preload("Reservations").First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// GetBySessionNo 按会话编号获取会话（带条目与预占）
func (r *GormSessionRepository) GetBySessionNo(sessionNo string) (*models.CheckoutSession, error) {
	if sessionNo == "" {
		return nil, errors.New("invalid session no")
	}
	var session models.CheckoutSession
	if err := r.db.Preload("Items").Preload("Reservations").
		Where("session_no = ?", sessionNo).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// ListStalePending 获取创建时间早于 cutoff 且仍未进入终态的会话（对账扫描使用）
func (r *GormSessionRepository) ListStalePending(cutoff time.Time, limit int) ([]models.CheckoutSession, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []models.CheckoutSession
	if err := r.db.Where("status IN ? AND created_at <= ?",
		[]string{"created", "awaiting_payment"}, cutoff).
		Order("created_at ASC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// UpdateStatusIf 条件状态迁移：仅当当前状态在 expected 中时写入 target。
// 支付确认与取消/过期竞争同一会话时靠这条 UPDATE 决出先到者。
func (r *GormSessionRepository) UpdateStatusIf(id uint, expected []string, target string, updates map[string]interface{}) (int64, error) {
	if id == 0 || len(expected) == 0 || target == "" {
		return 0, errors.New("invalid session status params")
	}
	values := map[string]interface{}{"status": target}
	for k, v := range updates {
		values[k] = v
	}
	result := r.db.Model(&models.CheckoutSession{}).
		Where("id = ? AND status IN ?", id, expected).
		Updates(values)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// SetStockReserved 标记会话的预占是否全部成功
func (r *GormSessionRepository) SetStockReserved(id uint, reserved bool) error {
	if id == 0 {
		return errors.New("invalid session id")
	}
	return r.db.Model(&models.CheckoutSession{}).
		Where("id = ?", id).
		Update("stock_reserved", reserved).Error
}
