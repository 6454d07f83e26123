package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stockhold/internal/constants"
	"github.com/stockhold/internal/logger"
	"github.com/stockhold/internal/models"
	"github.com/stockhold/internal/payment"
	"github.com/stockhold/internal/repository"
)

// ReconcileService 对账服务：核实滞留待支付会话的真实支付结果
type ReconcileService struct {
	sessionRepo         repository.SessionRepository
	checkoutService     *CheckoutService
	statusProvider      payment.StatusProvider
	lookbackMinutes     int
	hardDeadlineMinutes int
	batchSize           int
}

// NewReconcileService 创建对账服务
func NewReconcileService(sessionRepo repository.SessionRepository, checkoutService *CheckoutService, statusProvider payment.StatusProvider, lookbackMinutes, hardDeadlineMinutes, batchSize int) *ReconcileService {
	if lookbackMinutes <= 0 {
		lookbackMinutes = constants.DefaultLookbackMinutes
	}
	if hardDeadlineMinutes <= 0 {
		hardDeadlineMinutes = constants.DefaultHardDeadlineMinutes
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReconcileService{
		sessionRepo:         sessionRepo,
		checkoutService:     checkoutService,
		statusProvider:      statusProvider,
		lookbackMinutes:     lookbackMinutes,
		hardDeadlineMinutes: hardDeadlineMinutes,
		batchSize:           batchSize,
	}
}

// Run 执行一轮对账。逐会话独立处理，单个会话失败只记日志不中断整轮。
// 返回本轮实际裁定（转 paid 或取消）的会话数。
func (r *ReconcileService) Run(ctx context.Context) (int, error) {
	if r.statusProvider == nil {
		return 0, nil
	}
	now := time.Now()
	cutoff := now.Add(-time.Duration(r.lookbackMinutes) * time.Minute)
	sessions, err := r.sessionRepo.ListStalePending(cutoff, r.batchSize)
	if err != nil {
		return 0, err
	}
	settled := 0
	for i := range sessions {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		session := sessions[i]
		ok, err := r.reconcileSession(ctx, &session, now)
		if err != nil {
			logger.Warnw("reconcile_session_failed",
				"session_no", session.SessionNo,
				"error", err,
			)
			continue
		}
		if ok {
			settled++
		}
	}
	if settled > 0 {
		logger.Infow("reconcile_round_done", "settled", settled, "scanned", len(sessions))
	}
	return settled, nil
}

// reconcileSession 对单个会话按外部支付状态裁定归宿
func (r *ReconcileService) reconcileSession(ctx context.Context, session *models.CheckoutSession, now time.Time) (bool, error) {
	result, err := r.statusProvider.QueryStatus(ctx, session.SessionNo)
	if err != nil {
		if errors.Is(err, payment.ErrStatusUnavailable) {
			// 平台不可用时保持原状，留给下一轮
			return false, fmt.Errorf("%w: %v", ErrPaymentStatusUnavailable, err)
		}
		return false, err
	}

	switch result.Status {
	case constants.PaymentStatusPaid:
		paymentRef := result.PaymentRef
		if paymentRef == "" {
			paymentRef = "reconcile:" + session.SessionNo
		}
		if _, err := r.checkoutService.MarkPaid(ctx, session.SessionNo, paymentRef, "reconcile"); err != nil {
			if errors.Is(err, ErrSessionStateConflict) {
				return false, nil
			}
			return false, err
		}
		logger.Infow("reconcile_session_paid",
			"session_no", session.SessionNo,
			"payment_ref", paymentRef,
		)
		return true, nil
	case constants.PaymentStatusFailed:
		if err := r.checkoutService.CancelByReconcile(ctx, session); err != nil {
			if errors.Is(err, ErrSessionStateConflict) {
				return false, nil
			}
			return false, err
		}
		logger.Infow("reconcile_session_failed_payment", "session_no", session.SessionNo)
		return true, nil
	case constants.PaymentStatusPending:
		deadline := session.CreatedAt.Add(time.Duration(r.hardDeadlineMinutes) * time.Minute)
		if now.Before(deadline) {
			return false, nil
		}
		// 超过硬截止仍 pending，视为放弃
		if err := r.checkoutService.CancelByReconcile(ctx, session); err != nil {
			if errors.Is(err, ErrSessionStateConflict) {
				return false, nil
			}
			return false, err
		}
		logger.Infow("reconcile_session_abandoned", "session_no", session.SessionNo)
		return true, nil
	default:
		return false, fmt.Errorf("unknown payment status: %s", result.Status)
	}
}
