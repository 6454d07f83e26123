package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stockhold/internal/config"
	"github.com/stockhold/internal/constants"
	"github.com/stockhold/internal/models"
	"github.com/stockhold/internal/payment"
	"github.com/stockhold/internal/queue"
	"github.com/stockhold/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// stubStatusProvider 按会话编号返回预设的支付状态
type stubStatusProvider struct {
	results map[string]payment.StatusResult
	errs    map[string]error
}

func (p *stubStatusProvider) QueryStatus(ctx context.Context, sessionNo string) (payment.StatusResult, error) {
	if err, ok := p.errs[sessionNo]; ok {
		return payment.StatusResult{}, err
	}
	if result, ok := p.results[sessionNo]; ok {
		return result, nil
	}
	return payment.StatusResult{Status: constants.PaymentStatusPending}, nil
}

func setupReconcileServiceTest(t *testing.T, provider payment.StatusProvider) (*ReconcileService, *CheckoutService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:reconcile_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.StockItem{},
		&models.Reservation{},
		&models.CheckoutSession{},
		&models.SessionItem{},
		&models.PaymentEvent{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	queueClient, err := queue.NewClient(&config.QueueConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}
	sessionRepo := repository.NewSessionRepository(db)
	checkout := NewCheckoutService(
		sessionRepo,
		repository.NewStockRepository(db),
		repository.NewReservationRepository(db),
		repository.NewPaymentEventRepository(db),
		queueClient,
		15,
	)
	reconcile := NewReconcileService(sessionRepo, checkout, provider, 30, 120, 100)
	return reconcile, checkout, db
}

func startStaleSession(t *testing.T, checkout *CheckoutService, db *gorm.DB, sku string, ageMinutes int) *models.CheckoutSession {
	t.Helper()
	session, err := checkout.StartCheckout(context.Background(), StartCheckoutInput{Items: []CheckoutItemInput{
		{SKU: sku, Quantity: 1},
	}})
	if err != nil {
		t.Fatalf("start checkout failed: %v", err)
	}
	createdAt := time.Now().Add(-time.Duration(ageMinutes) * time.Minute)
	if err := db.Model(&models.CheckoutSession{}).Where("id = ?", session.ID).
		Update("created_at", createdAt).Error; err != nil {
		t.Fatalf("age session failed: %v", err)
	}
	return session
}

func createReconcileStockItem(t *testing.T, db *gorm.DB, sku string) {
	t.Helper()
	item := models.StockItem{
		SKU:        sku,
		StockTotal: 10,
		UnitPrice:  models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		Currency:   "CNY",
		IsActive:   true,
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("create stock item failed: %v", err)
	}
}

func TestReconcilePaidSession(t *testing.T) {
	provider := &stubStatusProvider{results: map[string]payment.StatusResult{}}
	svc, checkout, db := setupReconcileServiceTest(t, provider)
	createReconcileStockItem(t, db, "SKU-RC1")

	session := startStaleSession(t, checkout, db, "SKU-RC1", 40)
	provider.results[session.SessionNo] = payment.StatusResult{
		Status:     constants.PaymentStatusPaid,
		PaymentRef: "pay_rc_1",
	}

	settled, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("reconcile run failed: %v", err)
	}
	if settled != 1 {
		t.Fatalf("expected 1 settled, got %d", settled)
	}

	stored, err := checkout.GetSession(session.SessionNo)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if stored.Status != constants.SessionStatusPaid || stored.PaymentRef != "pay_rc_1" {
		t.Fatalf("unexpected session: status=%s payment_ref=%s", stored.Status, stored.PaymentRef)
	}
	if item := loadStockItem(t, db, "SKU-RC1"); item.StockSold != 1 || item.StockReserved != 0 {
		t.Fatalf("unexpected counters: sold=%d reserved=%d", item.StockSold, item.StockReserved)
	}
}

func TestReconcileFailedPaymentCancels(t *testing.T) {
	provider := &stubStatusProvider{results: map[string]payment.StatusResult{}}
	svc, checkout, db := setupReconcileServiceTest(t, provider)
	createReconcileStockItem(t, db, "SKU-RC2")

	session := startStaleSession(t, checkout, db, "SKU-RC2", 40)
	provider.results[session.SessionNo] = payment.StatusResult{Status: constants.PaymentStatusFailed}

	settled, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("reconcile run failed: %v", err)
	}
	if settled != 1 {
		t.Fatalf("expected 1 settled, got %d", settled)
	}

	stored, err := checkout.GetSession(session.SessionNo)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if stored.Status != constants.SessionStatusCanceled {
		t.Fatalf("expected cancelled, got %s", stored.Status)
	}
	if item := loadStockItem(t, db, "SKU-RC2"); item.StockReserved != 0 {
		t.Fatalf("expected reserved released, got %d", item.StockReserved)
	}
}

func TestReconcilePendingBeforeDeadlineUntouched(t *testing.T) {
	provider := &stubStatusProvider{results: map[string]payment.StatusResult{}}
	svc, checkout, db := setupReconcileServiceTest(t, provider)
	createReconcileStockItem(t, db, "SKU-RC3")

	session := startStaleSession(t, checkout, db, "SKU-RC3", 40)
	provider.results[session.SessionNo] = payment.StatusResult{Status: constants.PaymentStatusPending}

	settled, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("reconcile run failed: %v", err)
	}
	if settled != 0 {
		t.Fatalf("expected 0 settled, got %d", settled)
	}

	stored, err := checkout.GetSession(session.SessionNo)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if stored.Status != constants.SessionStatusAwaitingPayment {
		t.Fatalf("expected awaiting_payment, got %s", stored.Status)
	}
}

func TestReconcilePendingPastHardDeadlineCancels(t *testing.T) {
	provider := &stubStatusProvider{results: map[string]payment.StatusResult{}}
	svc, checkout, db := setupReconcileServiceTest(t, provider)
	createReconcileStockItem(t, db, "SKU-RC4")

	session := startStaleSession(t, checkout, db, "SKU-RC4", 130)
	provider.results[session.SessionNo] = payment.StatusResult{Status: constants.PaymentStatusPending}

	settled, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("reconcile run failed: %v", err)
	}
	if settled != 1 {
		t.Fatalf("expected 1 settled, got %d", settled)
	}

	stored, err := checkout.GetSession(session.SessionNo)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if stored.Status != constants.SessionStatusCanceled {
		t.Fatalf("expected cancelled past hard deadline, got %s", stored.Status)
	}
}

func TestReconcileUnavailableKeepsSession(t *testing.T) {
	provider := &stubStatusProvider{errs: map[string]error{}}
	svc, checkout, db := setupReconcileServiceTest(t, provider)
	createReconcileStockItem(t, db, "SKU-RC5")

	session := startStaleSession(t, checkout, db, "SKU-RC5", 40)
	provider.errs[session.SessionNo] = payment.ErrStatusUnavailable

	settled, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("reconcile run failed: %v", err)
	}
	if settled != 0 {
		t.Fatalf("expected 0 settled, got %d", settled)
	}

	stored, err := checkout.GetSession(session.SessionNo)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if stored.Status != constants.SessionStatusAwaitingPayment {
		t.Fatalf("expected awaiting_payment kept, got %s", stored.Status)
	}
}

func TestReconcileIsolatesPerSessionFailures(t *testing.T) {
	provider := &stubStatusProvider{
		results: map[string]payment.StatusResult{},
		errs:    map[string]error{},
	}
	svc, checkout, db := setupReconcileServiceTest(t, provider)
	createReconcileStockItem(t, db, "SKU-RC6")
	createReconcileStockItem(t, db, "SKU-RC7")

	broken := startStaleSession(t, checkout, db, "SKU-RC6", 40)
	healthy := startStaleSession(t, checkout, db, "SKU-RC7", 40)
	provider.errs[broken.SessionNo] = payment.ErrStatusUnavailable
	provider.results[healthy.SessionNo] = payment.StatusResult{
		Status:     constants.PaymentStatusPaid,
		PaymentRef: "pay_rc_7",
	}

	// 单个会话查询失败只记日志，不影响其余会话裁定
	settled, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("reconcile run failed: %v", err)
	}
	if settled != 1 {
		t.Fatalf("expected 1 settled, got %d", settled)
	}

	stored, err := checkout.GetSession(healthy.SessionNo)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if stored.Status != constants.SessionStatusPaid {
		t.Fatalf("expected healthy session paid, got %s", stored.Status)
	}
}
