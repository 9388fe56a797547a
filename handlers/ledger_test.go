package handlers

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/database"
	"github.com/Madhav-Gupta-28/0xmart-reconciler/models"
	"github.com/Madhav-Gupta-28/0xmart-reconciler/utils"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// steppingClock advances one second on every read.
func steppingClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func wireLedger(store *database.MemoryStore) *LedgerSynchronizer {
	sync := NewLedgerSynchronizer(store, quietLogger())
	sync.now = steppingClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	store.Subscribe(func(c database.OrderChange) {
		switch c.Operation {
		case "insert":
			sync.OnOrderCreated(context.Background(), c.OrderID, c.Document)
		case "update":
			sync.OnOrderUpdated(context.Background(), c.OrderID, c.Document)
		}
	})
	return sync
}

func TestLedgerCreateThenUpdate(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	wireLedger(store)

	order := models.Order{
		ID:            "o1",
		PaymentStatus: models.PaymentStatusPending,
		Items:         []models.OrderItem{{ItemID: "it1", VariantID: "v1", Size: "M", Quantity: 1, Price: 10}},
		CreatedAt:     time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
	}
	if err := store.InsertOrder(ctx, order); err != nil {
		t.Fatal(err)
	}

	entries := store.LedgerEntries()
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
	created := entries[0]
	if created.ID != "hash_o1" || created.SourceDocID != "o1" || created.SourceCollection != "orders" {
		t.Fatalf("unexpected entry %+v", created)
	}
	if !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("createdAt and updatedAt must match on create: %+v", created)
	}

	order.PaymentStatus = models.PaymentStatusPaid
	if err := store.ReplaceOrder(ctx, order); err != nil {
		t.Fatal(err)
	}

	entries = store.LedgerEntries()
	if len(entries) != 1 {
		t.Fatalf("update must not add entries, got %d", len(entries))
	}
	updated := entries[0]
	if updated.ID != created.ID {
		t.Fatalf("ledger id changed: %s -> %s", created.ID, updated.ID)
	}
	if updated.HashValue == created.HashValue {
		t.Fatal("hash must change after the order changed")
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("unexpected timestamps %+v", updated)
	}
}

func TestLedgerCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	sync := NewLedgerSynchronizer(store, quietLogger())
	sync.now = steppingClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	doc := bson.M{"_id": "o1", "paymentStatus": "Pending"}
	sync.OnOrderCreated(ctx, "o1", doc)
	first, _ := store.GetLedgerEntry(ctx, "hash_o1")

	sync.OnOrderCreated(ctx, "o1", bson.M{"_id": "o1", "paymentStatus": "Paid"})
	again, _ := store.GetLedgerEntry(ctx, "hash_o1")
	if again.HashValue != first.HashValue || !again.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("a repeated create must not overwrite the entry")
	}
}

func TestLedgerMissingPayload(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	sync := NewLedgerSynchronizer(store, quietLogger())

	sync.OnOrderCreated(ctx, "o1", nil)
	if n := len(store.LedgerEntries()); n != 0 {
		t.Fatalf("no ledger write expected without payload, got %d", n)
	}

	if err := sync.create(ctx, "o1", bson.M{}); !errors.Is(err, models.ErrMissingPayload) {
		t.Fatalf("expected ErrMissingPayload, got %v", err)
	}
	if err := sync.update(ctx, "o1", nil); !errors.Is(err, models.ErrMissingPayload) {
		t.Fatalf("expected ErrMissingPayload, got %v", err)
	}
}

func TestLedgerUpdateWithoutEntryIsSwallowed(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	sync := NewLedgerSynchronizer(store, quietLogger())

	// Must not panic or create an entry.
	sync.OnOrderUpdated(ctx, "o1", bson.M{"_id": "o1", "paymentStatus": "Paid"})
	if n := len(store.LedgerEntries()); n != 0 {
		t.Fatalf("update must not create entries, got %d", n)
	}
	if err := sync.update(ctx, "o1", bson.M{"paymentStatus": "Paid"}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLedgerHashIgnoresDocumentKey(t *testing.T) {
	a, err := hashOrder(bson.M{"_id": "o1", "paymentStatus": "Paid"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := hashOrder(bson.M{"_id": "o2", "paymentStatus": "Paid"})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("document key must not take part in the hash")
	}
}

func TestLedgerVerify(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	sync := wireLedger(store)

	order := models.Order{ID: "o1", PaymentStatus: models.PaymentStatusPending}
	_ = store.InsertOrder(ctx, order)

	res, err := sync.Verify(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Match {
		t.Fatalf("fresh ledger entry should match: %+v", res)
	}

	// Tamper with the ledger as if the order changed without an event.
	_ = store.UpdateLedgerHash(ctx, "hash_o1", "deadbeef", time.Now())
	res, err = sync.Verify(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Match {
		t.Fatal("tampered entry must not match")
	}

	if _, err := sync.Verify(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLedgerSkipsInvalidUTF8Order(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	sync := NewLedgerSynchronizer(store, quietLogger())

	sync.OnOrderCreated(ctx, "o1", bson.M{"_id": "o1", "email": "caf\xff@example.com"})
	if n := len(store.LedgerEntries()); n != 0 {
		t.Fatalf("an order that cannot be hashed must not get an entry, got %d", n)
	}
	if err := sync.create(ctx, "o1", bson.M{"email": "caf\xff"}); !errors.Is(err, utils.ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8, got %v", err)
	}
}
