package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/models"
)

func seedItem() models.Item {
	return models.Item{
		ID:   "it1",
		Name: "Tee",
		Variants: []models.Variant{
			{VariantID: "v1", VariantName: "Black", Sizes: []models.Size{{Size: "M", Stock: 7}}},
		},
	}
}

func TestMemoryFailedOrdersBefore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC().Truncate(time.Millisecond)

	orders := []models.Order{
		{ID: "old-failed", PaymentStatus: models.PaymentStatusFailed, CreatedAt: now.Add(-5 * time.Hour)},
		{ID: "new-failed", PaymentStatus: models.PaymentStatusFailed, CreatedAt: now.Add(-1 * time.Hour)},
		{ID: "old-paid", PaymentStatus: models.PaymentStatusPaid, CreatedAt: now.Add(-5 * time.Hour)},
		{ID: "edge", PaymentStatus: models.PaymentStatusFailed, CreatedAt: now.Add(-4 * time.Hour)},
	}
	for _, o := range orders {
		if err := store.InsertOrder(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.FailedOrdersBefore(ctx, now.Add(-4*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "edge" || got[1].ID != "old-failed" {
		t.Fatalf("unexpected orders: %+v", got)
	}
}

func TestMemoryBatchAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.PutItem(seedItem()); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertOrder(ctx, models.Order{ID: "o1"}); err != nil {
		t.Fatal(err)
	}

	store.SetCommitHook(func(n int) error { return errors.New("unavailable") })
	b := store.NewBatch()
	b.IncrementStock("it1", "v1", "M", 3)
	b.DeleteOrder("o1")
	if err := b.Commit(ctx); err == nil {
		t.Fatal("expected commit error")
	}
	if !store.HasOrder("o1") {
		t.Fatal("failed commit must not delete the order")
	}
	item, _ := store.GetItem(ctx, "it1")
	if item.Variants[0].Sizes[0].Stock != 7 {
		t.Fatalf("failed commit must not restock, stock=%d", item.Variants[0].Sizes[0].Stock)
	}

	store.SetCommitHook(nil)
	b = store.NewBatch()
	b.IncrementStock("it1", "v1", "M", 3)
	b.DeleteOrder("o1")
	if err := b.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	item, _ = store.GetItem(ctx, "it1")
	if item.Variants[0].Sizes[0].Stock != 10 || store.HasOrder("o1") {
		t.Fatalf("expected restock and delete, stock=%d", item.Variants[0].Sizes[0].Stock)
	}
	if store.Commits() != 1 {
		t.Fatalf("expected 1 commit, got %d", store.Commits())
	}
}

func TestMemoryReadsDoNotAlias(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.PutItem(seedItem())

	item, err := store.GetItem(ctx, "it1")
	if err != nil {
		t.Fatal(err)
	}
	item.Variants[0].Sizes[0].Stock = 100

	again, _ := store.GetItem(ctx, "it1")
	if again.Variants[0].Sizes[0].Stock != 7 {
		t.Fatalf("mutating a read copy leaked into the store: %d", again.Variants[0].Sizes[0].Stock)
	}

	if _, err := store.GetItem(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	at := time.Now().UTC()

	entry := models.LedgerEntry{ID: "hash_o1", HashValue: "aa", CreatedAt: at, UpdatedAt: at}
	if err := store.CreateLedgerEntry(ctx, entry); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateLedgerEntry(ctx, entry); !errors.Is(err, models.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := store.UpdateLedgerHash(ctx, "hash_o2", "bb", at); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	later := at.Add(time.Minute)
	if err := store.UpdateLedgerHash(ctx, "hash_o1", "bb", later); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetLedgerEntry(ctx, "hash_o1")
	if got.HashValue != "bb" || !got.UpdatedAt.Equal(later) || !got.CreatedAt.Equal(at) {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestMemorySubscribe(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var seen []OrderChange
	store.Subscribe(func(c OrderChange) { seen = append(seen, c) })

	o := models.Order{ID: "o1", PaymentStatus: models.PaymentStatusPending}
	_ = store.InsertOrder(ctx, o)
	o.PaymentStatus = models.PaymentStatusPaid
	_ = store.ReplaceOrder(ctx, o)

	if len(seen) != 2 || seen[0].Operation != "insert" || seen[1].Operation != "update" {
		t.Fatalf("unexpected events %+v", seen)
	}
	if seen[1].Document["paymentStatus"] != "Paid" {
		t.Fatalf("expected post-update document, got %v", seen[1].Document)
	}
}
