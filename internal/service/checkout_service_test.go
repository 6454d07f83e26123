package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stockhold/internal/config"
	"github.com/stockhold/internal/constants"
	"github.com/stockhold/internal/models"
	"github.com/stockhold/internal/queue"
	"github.com/stockhold/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupCheckoutServiceTest(t *testing.T) (*CheckoutService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:checkout_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	svc := NewCheckoutService(
		repository.NewSessionRepository(db),
		repository.NewStockRepository(db),
		repository.NewReservationRepository(db),
		repository.NewPaymentEventRepository(db),
		queueClient,
		15,
	)
	return svc, db
}

func createCheckoutStockItem(t *testing.T, db *gorm.DB, sku string, total int, price float64, currency string) {
	t.Helper()
	item := models.StockItem{
		SKU:        sku,
		StockTotal: total,
		UnitPrice:  models.NewMoneyFromDecimal(decimal.NewFromFloat(price)),
		Currency:   currency,
		IsActive:   true,
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("create stock item failed: %v", err)
	}
}

func TestStartCheckoutReservesAllItems(t *testing.T) {
	svc, db := setupCheckoutServiceTest(t)
	createCheckoutStockItem(t, db, "SKU-C1", 10, 199.00, "CNY")
	createCheckoutStockItem(t, db, "SKU-C2", 5, 39.90, "CNY")
	ctx := context.Background()

	session, err := svc.StartCheckout(ctx, StartCheckoutInput{Items: []CheckoutItemInput{
		{SKU: "SKU-C2", Quantity: 1},
		{SKU: "SKU-C1", Quantity: 2},
	}})
	if err != nil {
		t.Fatalf("start checkout failed: %v", err)
	}
	if session.Status != constants.SessionStatusAwaitingPayment {
		t.Fatalf("expected awaiting_payment, got %s", session.Status)
	}
	if !session.StockReserved {
		t.Fatalf("expected stock_reserved flag set")
	}
	want := decimal.NewFromFloat(437.90)
	if !session.TotalAmount.Decimal.Equal(want) {
		t.Fatalf("expected total %s, got %s", want, session.TotalAmount.Decimal)
	}
	if len(session.Items) != 2 || len(session.Reservations) != 2 {
		t.Fatalf("expected 2 items and 2 reservations, got %d/%d", len(session.Items), len(session.Reservations))
	}

	if item := loadStockItem(t, db, "SKU-C1"); item.StockReserved != 2 {
		t.Fatalf("expected SKU-C1 reserved 2, got %d", item.StockReserved)
	}
	if item := loadStockItem(t, db, "SKU-C2"); item.StockReserved != 1 {
		t.Fatalf("expected SKU-C2 reserved 1, got %d", item.StockReserved)
	}
}

func TestStartCheckoutRollsBackOnInsufficient(t *testing.T) {
	svc, db := setupCheckoutServiceTest(t)
	createCheckoutStockItem(t, db, "SKU-C3", 10, 100.00, "CNY")
	createCheckoutStockItem(t, db, "SKU-C4", 1, 50.00, "CNY")
	ctx := context.Background()

	_, err := svc.StartCheckout(ctx, StartCheckoutInput{Items: []CheckoutItemInput{
		{SKU: "SKU-C3", Quantity: 2},
		{SKU: "SKU-C4", Quantity: 3},
	}})
	if !errors.Is(err, ErrStockInsufficient) {
		t.Fatalf("expected ErrStockInsufficient, got %v", err)
	}

	// 任一条目失败则预占整体回滚，会话停留在 created 且未预占
	var session models.CheckoutSession
	if err := db.First(&session).Error; err != nil {
		t.Fatalf("load session failed: %v", err)
	}
	if session.Status != constants.SessionStatusCreated || session.StockReserved {
		t.Fatalf("unexpected session: status=%s stock_reserved=%v", session.Status, session.StockReserved)
	}
	var reservations int64
	if err := db.Model(&models.Reservation{}).Count(&reservations).Error; err != nil {
		t.Fatalf("count reservations failed: %v", err)
	}
	if reservations != 0 {
		t.Fatalf("expected no reservations, got %d", reservations)
	}
	if item := loadStockItem(t, db, "SKU-C3"); item.StockReserved != 0 {
		t.Fatalf("expected SKU-C3 reserved rolled back to 0, got %d", item.StockReserved)
	}
}

func TestStartCheckoutRejectsCurrencyMismatch(t *testing.T) {
	svc, db := setupCheckoutServiceTest(t)
	createCheckoutStockItem(t, db, "SKU-C5", 10, 100.00, "CNY")
	createCheckoutStockItem(t, db, "SKU-C6", 10, 15.00, "USD")
	ctx := context.Background()

	_, err := svc.StartCheckout(ctx, StartCheckoutInput{Items: []CheckoutItemInput{
		{SKU: "SKU-C5", Quantity: 1},
		{SKU: "SKU-C6", Quantity: 1},
	}})
	if !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}

func TestMarkPaidIdempotent(t *testing.T) {
	svc, db := setupCheckoutServiceTest(t)
	createCheckoutStockItem(t, db, "SKU-C7", 10, 100.00, "CNY")
	ctx := context.Background()

	session, err := svc.StartCheckout(ctx, StartCheckoutInput{Items: []CheckoutItemInput{
		{SKU: "SKU-C7", Quantity: 3},
	}})
	if err != nil {
		t.Fatalf("start checkout failed: %v", err)
	}

	paid, err := svc.MarkPaid(ctx, session.SessionNo, "pay_idem_1", "webhook")
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if paid.Status != constants.SessionStatusPaid || paid.PaidAt == nil {
		t.Fatalf("unexpected paid session: status=%s paid_at=%v", paid.Status, paid.PaidAt)
	}

	// 同一 payment_ref 重放不报错也不重复扣账
	replay, err := svc.MarkPaid(ctx, session.SessionNo, "pay_idem_1", "webhook")
	if err != nil {
		t.Fatalf("replay mark paid failed: %v", err)
	}
	if replay.Status != constants.SessionStatusPaid {
		t.Fatalf("expected paid on replay, got %s", replay.Status)
	}

	item := loadStockItem(t, db, "SKU-C7")
	if item.StockTotal != 7 || item.StockReserved != 0 || item.StockSold != 3 {
		t.Fatalf("unexpected counters: total=%d reserved=%d sold=%d", item.StockTotal, item.StockReserved, item.StockSold)
	}

	var events int64
	if err := db.Model(&models.PaymentEvent{}).Count(&events).Error; err != nil {
		t.Fatalf("count payment events failed: %v", err)
	}
	if events != 1 {
		t.Fatalf("expected exactly 1 payment event, got %d", events)
	}
}

func TestMarkPaidAfterCancelConflict(t *testing.T) {
	svc, db := setupCheckoutServiceTest(t)
	createCheckoutStockItem(t, db, "SKU-C8", 10, 100.00, "CNY")
	ctx := context.Background()

	session, err := svc.StartCheckout(ctx, StartCheckoutInput{Items: []CheckoutItemInput{
		{SKU: "SKU-C8", Quantity: 2},
	}})
	if err != nil {
		t.Fatalf("start checkout failed: %v", err)
	}
	if _, err := svc.Cancel(ctx, session.SessionNo); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if _, err := svc.MarkPaid(ctx, session.SessionNo, "pay_late_1", "webhook"); !errors.Is(err, ErrSessionStateConflict) {
		t.Fatalf("expected ErrSessionStateConflict, got %v", err)
	}

	// 迟到的支付确认不得改动台账，事件也随事务回滚
	item := loadStockItem(t, db, "SKU-C8")
	if item.StockTotal != 10 || item.StockReserved != 0 || item.StockSold != 0 {
		t.Fatalf("unexpected counters: total=%d reserved=%d sold=%d", item.StockTotal, item.StockReserved, item.StockSold)
	}
	var events int64
	if err := db.Model(&models.PaymentEvent{}).Count(&events).Error; err != nil {
		t.Fatalf("count payment events failed: %v", err)
	}
	if events != 0 {
		t.Fatalf("expected no payment events, got %d", events)
	}
}

func TestMarkPaidCrossSessionDuplicateRef(t *testing.T) {
	svc, db := setupCheckoutServiceTest(t)
	createCheckoutStockItem(t, db, "SKU-C9", 10, 100.00, "CNY")
	ctx := context.Background()

	first, err := svc.StartCheckout(ctx, StartCheckoutInput{Items: []CheckoutItemInput{
		{SKU: "SKU-C9", Quantity: 1},
	}})
	if err != nil {
		t.Fatalf("start first checkout failed: %v", err)
	}
	second, err := svc.StartCheckout(ctx, StartCheckoutInput{Items: []CheckoutItemInput{
		{SKU: "SKU-C9", Quantity: 1},
	}})
	if err != nil {
		t.Fatalf("start second checkout failed: %v", err)
	}

	if _, err := svc.MarkPaid(ctx, first.SessionNo, "pay_shared_ref", "webhook"); err != nil {
		t.Fatalf("mark first paid failed: %v", err)
	}
	if _, err := svc.MarkPaid(ctx, second.SessionNo, "pay_shared_ref", "webhook"); !errors.Is(err, ErrPaymentRefDuplicated) {
		t.Fatalf("expected ErrPaymentRefDuplicated, got %v", err)
	}

	stored, err := svc.GetSession(second.SessionNo)
	if err != nil {
		t.Fatalf("get second session failed: %v", err)
	}
	if stored.Status != constants.SessionStatusAwaitingPayment {
		t.Fatalf("expected second session untouched, got %s", stored.Status)
	}
}

func TestCancelReleasesAndIsIdempotent(t *testing.T) {
	svc, db := setupCheckoutServiceTest(t)
	createCheckoutStockItem(t, db, "SKU-C10", 10, 100.00, "CNY")
	ctx := context.Background()

	session, err := svc.StartCheckout(ctx, StartCheckoutInput{Items: []CheckoutItemInput{
		{SKU: "SKU-C10", Quantity: 4},
	}})
	if err != nil {
		t.Fatalf("start checkout failed: %v", err)
	}

	canceled, err := svc.Cancel(ctx, session.SessionNo)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if canceled.Status != constants.SessionStatusCanceled {
		t.Fatalf("expected cancelled, got %s", canceled.Status)
	}
	if canceled.StockReserved {
		t.Fatalf("expected stock_reserved cleared after cancel")
	}
	if item := loadStockItem(t, db, "SKU-C10"); item.StockReserved != 0 {
		t.Fatalf("expected reserved released to 0, got %d", item.StockReserved)
	}

	again, err := svc.Cancel(ctx, session.SessionNo)
	if err != nil {
		t.Fatalf("repeated cancel failed: %v", err)
	}
	if again.Status != constants.SessionStatusCanceled {
		t.Fatalf("expected cancelled on repeat, got %s", again.Status)
	}
}

func TestCancelExpiredSession(t *testing.T) {
	svc, db := setupCheckoutServiceTest(t)
	createCheckoutStockItem(t, db, "SKU-C11", 10, 100.00, "CNY")
	ctx := context.Background()

	session, err := svc.StartCheckout(ctx, StartCheckoutInput{Items: []CheckoutItemInput{
		{SKU: "SKU-C11", Quantity: 2},
	}})
	if err != nil {
		t.Fatalf("start checkout failed: %v", err)
	}

	// 未到期的任务回调是空操作
	if err := svc.CancelExpiredSession(ctx, session.ID); err != nil {
		t.Fatalf("premature cancel failed: %v", err)
	}
	current, err := svc.GetSession(session.SessionNo)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if current.Status != constants.SessionStatusAwaitingPayment {
		t.Fatalf("expected awaiting_payment after premature callback, got %s", current.Status)
	}

	past := time.Now().Add(-time.Minute)
	if err := db.Model(&models.CheckoutSession{}).Where("id = ?", session.ID).
		Update("expires_at", past).Error; err != nil {
		t.Fatalf("force expire failed: %v", err)
	}
	if err := svc.CancelExpiredSession(ctx, session.ID); err != nil {
		t.Fatalf("cancel expired failed: %v", err)
	}

	expired, err := svc.GetSession(session.SessionNo)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if expired.Status != constants.SessionStatusExpired {
		t.Fatalf("expected expired, got %s", expired.Status)
	}
	if expired.StockReserved {
		t.Fatalf("expected stock_reserved cleared after expiry")
	}
	if item := loadStockItem(t, db, "SKU-C11"); item.StockReserved != 0 {
		t.Fatalf("expected reserved released to 0, got %d", item.StockReserved)
	}

	// 终态后的重复回调静默返回
	if err := svc.CancelExpiredSession(ctx, session.ID); err != nil {
		t.Fatalf("repeated expired callback failed: %v", err)
	}
}

func TestMarkPaidRejectsUnreservedSession(t *testing.T) {
	svc, db := setupCheckoutServiceTest(t)
	createCheckoutStockItem(t, db, "SKU-C12", 1, 100.00, "CNY")
	ctx := context.Background()

	// 预占失败的会话停留在 created，没有任何可确认的预占
	_, err := svc.StartCheckout(ctx, StartCheckoutInput{Items: []CheckoutItemInput{
		{SKU: "SKU-C12", Quantity: 5},
	}})
	if !errors.Is(err, ErrStockInsufficient) {
		t.Fatalf("expected ErrStockInsufficient, got %v", err)
	}
	var session models.CheckoutSession
	if err := db.First(&session).Error; err != nil {
		t.Fatalf("load session failed: %v", err)
	}
	if session.Status != constants.SessionStatusCreated {
		t.Fatalf("expected created session, got %s", session.Status)
	}

	if _, err := svc.MarkPaid(ctx, session.SessionNo, "pay_unreserved_1", "webhook"); !errors.Is(err, ErrSessionStateConflict) {
		t.Fatalf("expected ErrSessionStateConflict, got %v", err)
	}

	var events int64
	if err := db.Model(&models.PaymentEvent{}).Count(&events).Error; err != nil {
		t.Fatalf("count payment events failed: %v", err)
	}
	if events != 0 {
		t.Fatalf("expected no payment events, got %d", events)
	}
	item := loadStockItem(t, db, "SKU-C12")
	if item.StockTotal != 1 || item.StockReserved != 0 || item.StockSold != 0 {
		t.Fatalf("unexpected counters: total=%d reserved=%d sold=%d", item.StockTotal, item.StockReserved, item.StockSold)
	}
}

func TestNormalizeCheckoutItems(t *testing.T) {
	normalized, err := normalizeCheckoutItems([]CheckoutItemInput{
		{SKU: "SKU-B", Quantity: 1},
		{SKU: "SKU-A", Quantity: 2},
		{SKU: "SKU-B", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(normalized) != 2 {
		t.Fatalf("expected 2 merged items, got %d", len(normalized))
	}
	if normalized[0].SKU != "SKU-A" || normalized[0].Quantity != 2 {
		t.Fatalf("unexpected first item: %+v", normalized[0])
	}
	if normalized[1].SKU != "SKU-B" || normalized[1].Quantity != 4 {
		t.Fatalf("unexpected second item: %+v", normalized[1])
	}

	if _, err := normalizeCheckoutItems(nil); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for empty items, got %v", err)
	}
	if _, err := normalizeCheckoutItems([]CheckoutItemInput{{SKU: "SKU-A", Quantity: 0}}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for zero quantity, got %v", err)
	}
}
