package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/stockhold/internal/constants"
	"github.com/stockhold/internal/logger"
	"github.com/stockhold/internal/models"
	"github.com/stockhold/internal/queue"
	"github.com/stockhold/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CheckoutService 结账会话协调服务：会话生命周期与预占/支付的编排
type CheckoutService struct {
	sessionRepo      repository.SessionRepository
	stockRepo        repository.StockRepository
	reservationRepo  repository.ReservationRepository
	paymentEventRepo repository.PaymentEventRepository
	queueClient      *queue.Client
	holdTTLMinutes   int
}

// NewCheckoutService 创建结账会话服务
func NewCheckoutService(sessionRepo repository.SessionRepository, stockRepo repository.StockRepository, reservationRepo repository.ReservationRepository, paymentEventRepo repository.PaymentEventRepository, queueClient *queue.Client, holdTTLMinutes int) *CheckoutService {
	if holdTTLMinutes <= 0 {
		holdTTLMinutes = constants.DefaultHoldTTLMinutes
	}
	return &CheckoutService{
		sessionRepo:      sessionRepo,
		stockRepo:        stockRepo,
		reservationRepo:  reservationRepo,
		paymentEventRepo: paymentEventRepo,
		queueClient:      queueClient,
		holdTTLMinutes:   holdTTLMinutes,
	}
}

// StartCheckoutInput 发起结账输入
type StartCheckoutInput struct {
	Items []CheckoutItemInput
}

// CheckoutItemInput 结账条目输入
type CheckoutItemInput struct {
	SKU      string
	Quantity int
}

// StartCheckout 发起结账：为所有条目预占库存并创建待支付会话。
// 任一条目预占失败则整体失败，不留下部分预占。
func (s *CheckoutService) StartCheckout(ctx context.Context, input StartCheckoutInput) (*models.CheckoutSession, error) {
	items, err := normalizeCheckoutItems(input.Items)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(s.holdTTL())
	session := &models.CheckoutSession{
		SessionNo: generateSessionNo(),
		Status:    constants.SessionStatusCreated,
		Currency:  constants.SiteCurrencyDefault,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// 第一步：快照价格并落会话（created 状态）
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		sessionRepo := s.sessionRepo.WithTx(tx)
		stockRepo := s.stockRepo.WithTx(tx)

		total := decimal.Zero
		currency := ""
		sessionItems := make([]models.SessionItem, 0, len(items))
		for _, item := range items {
			stock, err := stockRepo.GetBySKU(item.SKU)
			if err != nil {
				return err
			}
			if stock == nil {
				return ErrStockItemNotFound
			}
			if !stock.IsActive {
				return ErrStockItemInactive
			}
			if currency == "" {
				currency = stock.Currency
			} else if stock.Currency != currency {
				return ErrInvalidParams
			}
			linePrice := stock.UnitPrice.MulInt(item.Quantity)
			total = total.Add(linePrice)
			sessionItems = append(sessionItems, models.SessionItem{
				SKU:        item.SKU,
				Quantity:   item.Quantity,
				UnitPrice:  stock.UnitPrice,
				TotalPrice: models.NewMoneyFromDecimal(linePrice),
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
		if currency != "" {
			session.Currency = currency
		}
		session.TotalAmount = models.NewMoneyFromDecimal(total)
		session.Items = sessionItems
		return sessionRepo.Create(session)
	})
	if err != nil {
		return nil, err
	}

	// 第二步：逐条目预占并流转到待支付。
	// 任一条目失败整个事务回滚，不留下部分预占；
	// 会话停留在 created 且未预占，由对账硬截止兜底清理。
	skus := make([]string, 0, len(items))
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		sessionRepo := s.sessionRepo.WithTx(tx)
		stockRepo := s.stockRepo.WithTx(tx)
		reservationRepo := s.reservationRepo.WithTx(tx)

		// 按 SKU 升序预占，避免并发会话交叉持锁
		for _, item := range items {
			if err := tryReserveStock(stockRepo, item.SKU, item.Quantity); err != nil {
				return err
			}
			reservation := &models.Reservation{
				SessionID: session.ID,
				SKU:       item.SKU,
				Quantity:  item.Quantity,
				Status:    constants.ReservationStatusActive,
				ExpiresAt: expiresAt,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := reservationRepo.Create(reservation); err != nil {
				return err
			}
			skus = append(skus, item.SKU)
		}

		if err := sessionRepo.SetStockReserved(session.ID, true); err != nil {
			return err
		}
		affected, err := sessionRepo.UpdateStatusIf(
			session.ID,
			[]string{constants.SessionStatusCreated},
			constants.SessionStatusAwaitingPayment,
			map[string]interface{}{"updated_at": now},
		)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrSessionStateConflict
		}
		return nil
	})
	if err != nil {
		logger.Infow("session_reserve_failed",
			"session_no", session.SessionNo,
			"error", err,
		)
		return nil, err
	}
	invalidateAvailability(ctx, skus...)

	if s.queueClient.Enabled() {
		if err := s.queueClient.EnqueueSessionTimeoutCancel(queue.SessionTimeoutCancelPayload{
			SessionID: session.ID,
		}, s.holdTTL()); err != nil {
			// 入队失败不回滚会话，过期清扫兜底
			logger.Warnw("session_enqueue_timeout_cancel_failed",
				"session_id", session.ID,
				"session_no", session.SessionNo,
				"error", err,
			)
		}
	}

	full, err := s.sessionRepo.GetByID(session.ID)
	if err == nil && full != nil {
		return full, nil
	}
	return session, nil
}

// GetSession 按会话编号查询会话
func (s *CheckoutService) GetSession(sessionNo string) (*models.CheckoutSession, error) {
	if strings.TrimSpace(sessionNo) == "" {
		return nil, ErrInvalidParams
	}
	session, err := s.sessionRepo.GetBySessionNo(sessionNo)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// MarkPaid 确认会话已支付：落幂等事件、会话转 paid、预占转已售。
// 同一 payment_ref 的重复调用是幂等空操作；会话已终态则返回状态冲突。
func (s *CheckoutService) MarkPaid(ctx context.Context, sessionNo, paymentRef, source string) (*models.CheckoutSession, error) {
	sessionNo = strings.TrimSpace(sessionNo)
	paymentRef = strings.TrimSpace(paymentRef)
	if sessionNo == "" || paymentRef == "" {
		return nil, ErrInvalidParams
	}
	if source == "" {
		source = "webhook"
	}

	session, err := s.sessionRepo.GetBySessionNo(sessionNo)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	existing, err := s.paymentEventRepo.GetByPaymentRef(paymentRef)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.SessionID == session.ID {
			return session, nil
		}
		return nil, ErrPaymentRefDuplicated
	}

	now := time.Now()
	skus := make([]string, 0, 4)
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		sessionRepo := s.sessionRepo.WithTx(tx)
		stockRepo := s.stockRepo.WithTx(tx)
		reservationRepo := s.reservationRepo.WithTx(tx)
		eventRepo := s.paymentEventRepo.WithTx(tx)

		if err := eventRepo.Insert(&models.PaymentEvent{
			PaymentRef:  paymentRef,
			SessionID:   session.ID,
			Outcome:     constants.PaymentStatusPaid,
			Source:      source,
			ProcessedAt: now,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		// 只有完成预占的会话才能转 paid，停留在 created 的会话没有可确认的预占
		affected, err := sessionRepo.UpdateStatusIf(
			session.ID,
			[]string{constants.SessionStatusAwaitingPayment},
			constants.SessionStatusPaid,
			map[string]interface{}{
				"paid_at":     now,
				"payment_ref": paymentRef,
				"updated_at":  now,
			},
		)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrSessionStateConflict
		}

		reservations, err := reservationRepo.ListBySession(session.ID)
		if err != nil {
			return err
		}
		for i := range reservations {
			reservation := reservations[i]
			if reservation.Status != constants.ReservationStatusActive {
				return ErrReservationMismatch
			}
			if err := confirmReservationTx(stockRepo, reservationRepo, &reservation, now); err != nil {
				return err
			}
			skus = append(skus, reservation.SKU)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrPaymentEventDuplicated) {
			// 并发重复回调输给了先到者，按幂等成功处理
			replay, fetchErr := s.paymentEventRepo.GetByPaymentRef(paymentRef)
			if fetchErr == nil && replay != nil && replay.SessionID == session.ID {
				return s.sessionRepo.GetBySessionNo(sessionNo)
			}
			return nil, ErrPaymentRefDuplicated
		}
		if errors.Is(err, ErrSessionStateConflict) {
			logger.Warnw("session_mark_paid_conflict",
				"session_no", sessionNo,
				"payment_ref", paymentRef,
				"status", session.Status,
			)
		}
		return nil, err
	}
	invalidateAvailability(ctx, skus...)
	logger.Infow("session_marked_paid",
		"session_no", sessionNo,
		"payment_ref", paymentRef,
		"source", source,
	)
	return s.sessionRepo.GetBySessionNo(sessionNo)
}

// Cancel 主动取消会话并释放预占。已取消的会话重复取消是幂等空操作。
func (s *CheckoutService) Cancel(ctx context.Context, sessionNo string) (*models.CheckoutSession, error) {
	session, err := s.GetSession(sessionNo)
	if err != nil {
		return nil, err
	}
	if session.Terminal() {
		if session.Status == constants.SessionStatusCanceled {
			return session, nil
		}
		return nil, ErrSessionStateConflict
	}
	if err := s.cancelSession(ctx, session, constants.SessionStatusCanceled, constants.ReleaseReasonCanceled); err != nil {
		return nil, err
	}
	return s.sessionRepo.GetBySessionNo(session.SessionNo)
}

// CancelExpiredSession 超时任务回调：会话到期则转 expired 并释放预占。
// 会话已终态（先付款或先取消）时静默返回，任务天然可重放。
func (s *CheckoutService) CancelExpiredSession(ctx context.Context, sessionID uint) error {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		logger.Warnw("session_timeout_cancel_missing", "session_id", sessionID)
		return nil
	}
	if session.Terminal() {
		return nil
	}
	if session.ExpiresAt != nil && session.ExpiresAt.After(time.Now()) {
		logger.Infow("session_timeout_cancel_premature",
			"session_id", sessionID,
			"expires_at", session.ExpiresAt,
		)
		return nil
	}
	err = s.cancelSession(ctx, session, constants.SessionStatusExpired, constants.ReleaseReasonExpired)
	if errors.Is(err, ErrSessionStateConflict) {
		// 支付确认抢先一步，过期失效
		return nil
	}
	return err
}

// CancelByReconcile 对账裁定取消：外部支付明确失败或超过硬截止时间
func (s *CheckoutService) CancelByReconcile(ctx context.Context, session *models.CheckoutSession) error {
	if session == nil {
		return ErrSessionNotFound
	}
	return s.cancelSession(ctx, session, constants.SessionStatusCanceled, constants.ReleaseReasonReconcile)
}

// cancelSession 会话转终态并释放其全部 active 预占。
// 状态迁移与释放同事务，先到者独占，落败方收到 ErrSessionStateConflict。
func (s *CheckoutService) cancelSession(ctx context.Context, session *models.CheckoutSession, targetStatus, reason string) error {
	now := time.Now()
	reservationStatus := constants.ReservationStatusReleased
	if targetStatus == constants.SessionStatusExpired {
		reservationStatus = constants.ReservationStatusExpired
	}
	skus := make([]string, 0, 4)
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		sessionRepo := s.sessionRepo.WithTx(tx)
		stockRepo := s.stockRepo.WithTx(tx)
		reservationRepo := s.reservationRepo.WithTx(tx)

		affected, err := sessionRepo.UpdateStatusIf(
			session.ID,
			[]string{constants.SessionStatusCreated, constants.SessionStatusAwaitingPayment},
			targetStatus,
			map[string]interface{}{
				"stock_reserved": false,
				"canceled_at":    now,
				"updated_at":     now,
			},
		)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrSessionStateConflict
		}

		reservations, err := reservationRepo.ListActiveBySession(session.ID)
		if err != nil {
			return err
		}
		for i := range reservations {
			reservation := reservations[i]
			released, err := releaseReservationTx(stockRepo, reservationRepo, &reservation, reservationStatus, reason, now)
			if err != nil {
				return err
			}
			if released {
				skus = append(skus, reservation.SKU)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	invalidateAvailability(ctx, skus...)
	logger.Infow("session_closed",
		"session_no", session.SessionNo,
		"status", targetStatus,
		"reason", reason,
		"released", len(skus),
	)
	return nil
}

func (s *CheckoutService) holdTTL() time.Duration {
	return time.Duration(s.holdTTLMinutes) * time.Minute
}

// normalizeCheckoutItems 校验并按 SKU 升序排列条目，重复 SKU 合并数量
func normalizeCheckoutItems(items []CheckoutItemInput) ([]CheckoutItemInput, error) {
	if len(items) == 0 {
		return nil, ErrInvalidParams
	}
	merged := make(map[string]int, len(items))
	for _, item := range items {
		sku := strings.TrimSpace(item.SKU)
		if sku == "" || item.Quantity <= 0 {
			return nil, ErrInvalidParams
		}
		merged[sku] += item.Quantity
	}
	normalized := make([]CheckoutItemInput, 0, len(merged))
	for sku, qty := range merged {
		normalized = append(normalized, CheckoutItemInput{SKU: sku, Quantity: qty})
	}
	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].SKU < normalized[j].SKU
	})
	return normalized, nil
}

func generateSessionNo() string {
	now := time.Now().Format("20060102150405")
	return fmt.Sprintf("CS%s%s", now, randNumeric(6))
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(fmt.Sprintf("%d", n.Int64()))
	}
	return b.String()
}
