package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stockhold/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupPaymentEventRepoTest(t *testing.T) *GormPaymentEventRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_event_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.PaymentEvent{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewPaymentEventRepository(db)
}

func TestPaymentEventInsertDuplicated(t *testing.T) {
	repo := setupPaymentEventRepoTest(t)
	now := time.Now()

	event := &models.PaymentEvent{
		PaymentRef:  "pay_abc123",
		SessionID:   1,
		Outcome:     "paid",
		Source:      "webhook",
		ProcessedAt: now,
		CreatedAt:   now,
	}
	if err := repo.Insert(event); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	replay := &models.PaymentEvent{
		PaymentRef:  "pay_abc123",
		SessionID:   1,
		Outcome:     "paid",
		Source:      "webhook",
		ProcessedAt: now,
		CreatedAt:   now,
	}
	err := repo.Insert(replay)
	if !errors.Is(err, ErrPaymentEventDuplicated) {
		t.Fatalf("expected ErrPaymentEventDuplicated, got %v", err)
	}

	stored, err := repo.GetByPaymentRef("pay_abc123")
	if err != nil {
		t.Fatalf("get by payment ref failed: %v", err)
	}
	if stored == nil || stored.SessionID != 1 {
		t.Fatalf("unexpected stored event: %+v", stored)
	}
}

func TestPaymentEventGetByPaymentRefMissing(t *testing.T) {
	repo := setupPaymentEventRepoTest(t)
	event, err := repo.GetByPaymentRef("missing_ref")
	if err != nil {
		t.Fatalf("get by payment ref failed: %v", err)
	}
	if event != nil {
		t.Fatalf("expected nil for missing ref, got %+v", event)
	}
}
