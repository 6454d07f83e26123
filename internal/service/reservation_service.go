package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stockhold/internal/constants"
	"github.com/stockhold/internal/logger"
	"github.com/stockhold/internal/models"
	"github.com/stockhold/internal/repository"

	"gorm.io/gorm"
)

// ReservationService 预占服务：预占的创建、确认、释放与过期清扫
type ReservationService struct {
	stockRepo       repository.StockRepository
	reservationRepo repository.ReservationRepository
	holdTTLMinutes  int
	sweepBatchSize  int
}

// NewReservationService 创建预占服务
func NewReservationService(stockRepo repository.StockRepository, reservationRepo repository.ReservationRepository, holdTTLMinutes, sweepBatchSize int) *ReservationService {
	if holdTTLMinutes <= 0 {
		holdTTLMinutes = constants.DefaultHoldTTLMinutes
	}
	if sweepBatchSize <= 0 {
		sweepBatchSize = 200
	}
	return &ReservationService{
		stockRepo:       stockRepo,
		reservationRepo: reservationRepo,
		holdTTLMinutes:  holdTTLMinutes,
		sweepBatchSize:  sweepBatchSize,
	}
}

// HoldTTL 预占保留窗口
func (s *ReservationService) HoldTTL() time.Duration {
	return time.Duration(s.holdTTLMinutes) * time.Minute
}

// Reserve 为会话预占库存。可售量不足返回 ErrStockInsufficient，
// 台账计数与预占记录在同一事务内落库。
func (s *ReservationService) Reserve(ctx context.Context, sessionID uint, sku string, quantity int) (*models.Reservation, error) {
	if sessionID == 0 || sku == "" || quantity <= 0 {
		return nil, ErrInvalidParams
	}
	now := time.Now()
	expiresAt := now.Add(s.HoldTTL())
	reservation := &models.Reservation{
		SessionID: sessionID,
		SKU:       sku,
		Quantity:  quantity,
		Status:    constants.ReservationStatusActive,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		stockRepo := s.stockRepo.WithTx(tx)
		reservationRepo := s.reservationRepo.WithTx(tx)
		if err := tryReserveStock(stockRepo, sku, quantity); err != nil {
			return err
		}
		return reservationRepo.Create(reservation)
	})
	if err != nil {
		return nil, err
	}
	invalidateAvailability(ctx, sku)
	return reservation, nil
}

// Confirm 确认预占（预占转已售）。非 active 预占返回 ErrReservationMismatch。
func (s *ReservationService) Confirm(ctx context.Context, reservationID uint) (*models.Reservation, error) {
	if reservationID == 0 {
		return nil, ErrInvalidParams
	}
	reservation, err := s.reservationRepo.GetByID(reservationID)
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		return nil, ErrReservationNotFound
	}
	// 已确认的预占重复确认是幂等成功，不再触碰台账
	if reservation.Status == constants.ReservationStatusConfirmed {
		return reservation, nil
	}
	now := time.Now()
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		return confirmReservationTx(s.stockRepo.WithTx(tx), s.reservationRepo.WithTx(tx), reservation, now)
	})
	if err != nil {
		return nil, err
	}
	invalidateAvailability(ctx, reservation.SKU)
	reservation.Status = constants.ReservationStatusConfirmed
	reservation.ConfirmedAt = &now
	reservation.UpdatedAt = now
	return reservation, nil
}

// Release 释放预占。已终态的预占是幂等空操作。
func (s *ReservationService) Release(ctx context.Context, reservationID uint, reason string) (*models.Reservation, error) {
	if reservationID == 0 {
		return nil, ErrInvalidParams
	}
	reservation, err := s.reservationRepo.GetByID(reservationID)
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		return nil, ErrReservationNotFound
	}
	if reason == "" {
		reason = constants.ReleaseReasonCanceled
	}
	targetStatus := constants.ReservationStatusReleased
	if reason == constants.ReleaseReasonExpired {
		targetStatus = constants.ReservationStatusExpired
	}
	now := time.Now()
	var released bool
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		released, txErr = releaseReservationTx(s.stockRepo.WithTx(tx), s.reservationRepo.WithTx(tx), reservation, targetStatus, reason, now)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	if released {
		invalidateAvailability(ctx, reservation.SKU)
		reservation.Status = targetStatus
		reservation.ReleaseReason = reason
		reservation.ReleasedAt = &now
		reservation.UpdatedAt = now
	}
	return reservation, nil
}

// SweepExpired 清扫已过期仍 active 的预占。逐条独立处理，单条失败不阻塞其余。
func (s *ReservationService) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now()
	expired, err := s.reservationRepo.ListExpired(now, s.sweepBatchSize)
	if err != nil {
		return 0, err
	}
	swept := 0
	for i := range expired {
		reservation := expired[i]
		err := models.DB.Transaction(func(tx *gorm.DB) error {
			released, txErr := releaseReservationTx(
				s.stockRepo.WithTx(tx),
				s.reservationRepo.WithTx(tx),
				&reservation,
				constants.ReservationStatusExpired,
				constants.ReleaseReasonExpired,
				now,
			)
			if txErr == nil && released {
				swept++
			}
			return txErr
		})
		if err != nil {
			logger.Errorw("reservation_sweep_release_failed",
				"reservation_id", reservation.ID,
				"sku", reservation.SKU,
				"error", err,
			)
			continue
		}
		invalidateAvailability(ctx, reservation.SKU)
	}
	if swept > 0 {
		logger.Infow("reservation_sweep_done", "swept", swept, "scanned", len(expired))
	}
	return swept, nil
}

// tryReserveStock 条件预占，命中失败时区分缺货与 SKU 不存在/停用
func tryReserveStock(stockRepo repository.StockRepository, sku string, quantity int) error {
	item, err := stockRepo.GetBySKU(sku)
	if err != nil {
		return err
	}
	if item == nil {
		return ErrStockItemNotFound
	}
	if !item.IsActive {
		return ErrStockItemInactive
	}
	affected, err := stockRepo.TryReserve(sku, quantity)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: sku %s available %d", ErrStockInsufficient, sku, item.Available())
	}
	return nil
}

// confirmReservationTx 在事务内确认一条预占：状态迁移与台账扣减必须同时命中。
// 任一条件 UPDATE 落空都视为预占已失效，整个事务回滚。
func confirmReservationTx(stockRepo repository.StockRepository, reservationRepo repository.ReservationRepository, reservation *models.Reservation, now time.Time) error {
	affected, err := reservationRepo.MarkStatus(
		reservation.ID,
		constants.ReservationStatusActive,
		constants.ReservationStatusConfirmed,
		map[string]interface{}{"confirmed_at": now, "updated_at": now},
	)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrReservationMismatch
	}
	affected, err = stockRepo.ConfirmReserved(reservation.SKU, reservation.Quantity)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrReservationMismatch
	}
	return nil
}

// releaseReservationTx 在事务内释放一条预占。
// 状态迁移落空说明另一个流程（取消/过期/确认）已抢先处理，按幂等空操作返回。
func releaseReservationTx(stockRepo repository.StockRepository, reservationRepo repository.ReservationRepository, reservation *models.Reservation, targetStatus, reason string, now time.Time) (bool, error) {
	affected, err := reservationRepo.MarkStatus(
		reservation.ID,
		constants.ReservationStatusActive,
		targetStatus,
		map[string]interface{}{
			"release_reason": reason,
			"released_at":    now,
			"updated_at":     now,
		},
	)
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	if _, err := stockRepo.Release(reservation.SKU, reservation.Quantity); err != nil {
		return false, err
	}
	return true, nil
}
