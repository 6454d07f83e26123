package repository

import (
	"errors"
	"time"

	"github.com/stockhold/internal/models"

	"gorm.io/gorm"
)

// ReservationRepository 预占记录数据访问接口
type ReservationRepository interface {
	Create(res *models.Reservation) error
	GetByID(id uint) (*models.Reservation, error)
	ListBySession(sessionID uint) ([]models.Reservation, error)
	ListActiveBySession(sessionID uint) ([]models.Reservation, error)
	ListExpired(now time.Time, limit int) ([]models.Reservation, error)
	SumActiveBySKU(sku string) (int64, error)
	MarkStatus(id uint, from, to string, updates map[string]interface{}) (int64, error)
	WithTx(tx *gorm.DB) ReservationRepository
}

// GormReservationRepository GORM 实现
type GormReservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository 创建预占仓库
func NewReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReservationRepository) WithTx(tx *gorm.DB) ReservationRepository {
	if tx == nil {
		return r
	}
	return &GormReservationRepository{db: tx}
}

// Create 创建预占记录
func (r *GormReservationRepository) Create(res *models.Reservation) error {
	if res == nil {
		return errors.New("reservation is nil")
	}
	return r.db.Create(res).Error
}

// GetByID 按主键获取预占记录
func (r *GormReservationRepository) GetByID(id uint) (*models.Reservation, error) {
	if id == 0 {
		return nil, errors.New("invalid reservation id")
	}
	var res models.Reservation
	if err := r.db.First(&res, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// ListBySession 获取会话下的全部预占记录
func (r *GormReservationRepository) ListBySession(sessionID uint) ([]models.Reservation, error) {
	if sessionID == 0 {
		return nil, errors.New("invalid session id")
	}
	var list []models.Reservation
	if err := r.db.Where("session_id = ?", sessionID).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListActiveBySession 获取会话下仍处于 active 的预占记录
func (r *GormReservationRepository) ListActiveBySession(sessionID uint) ([]models.Reservation, error) {
	if sessionID == 0 {
		return nil, errors.New("invalid session id")
	}
	var list []models.Reservation
	if err := r.db.Where("session_id = ? AND status = ?", sessionID, "active").
		Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListExpired 获取已超过过期时间但仍为 active 的预占记录
func (r *GormReservationRepository) ListExpired(now time.Time, limit int) ([]models.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []models.Reservation
	if err := r.db.Where("status = ? AND expires_at <= ?", "active", now).
		Order("expires_at ASC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// SumActiveBySKU 统计某 SKU 当前 active 预占数量之和（修复流程使用）
func (r *GormReservationRepository) SumActiveBySKU(sku string) (int64, error) {
	if sku == "" {
		return 0, errors.New("invalid sku")
	}
	var total int64
	err := r.db.Model(&models.Reservation{}).
		Where("sku = ? AND status = ?", sku, "active").
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// MarkStatus 条件状态迁移：仅当当前状态为 from 时写入 to。
// 返回受影响行数，0 表示状态已被其他流程抢先变更，调用方据此判断是否重复处理。
func (r *GormReservationRepository) MarkStatus(id uint, from, to string, updates map[string]interface{}) (int64, error) {
	if id == 0 || from == "" || to == "" {
		return 0, errors.New("invalid reservation status params")
	}
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	result := r.db.Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
