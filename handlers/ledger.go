package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/metrics"
	"github.com/Madhav-Gupta-28/0xmart-reconciler/models"
	"github.com/Madhav-Gupta-28/0xmart-reconciler/utils"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

type LedgerStore interface {
	CreateLedgerEntry(ctx context.Context, entry models.LedgerEntry) error
	UpdateLedgerHash(ctx context.Context, id, hash string, at time.Time) error
	GetLedgerEntry(ctx context.Context, id string) (*models.LedgerEntry, error)
	GetOrderDocument(ctx context.Context, orderID string) (bson.M, error)
}

// LedgerSynchronizer keeps one hash_ledger entry per order document. Ledger
// write failures are logged and dropped; they never block the order write,
// so the ledger can lag behind an order until its next update.
type LedgerSynchronizer struct {
	store  LedgerStore
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewLedgerSynchronizer(store LedgerStore, logger logrus.FieldLogger) *LedgerSynchronizer {
	return &LedgerSynchronizer{store: store, logger: logger, now: time.Now}
}

// OnOrderCreated hashes a new order and inserts its ledger entry.
func (s *LedgerSynchronizer) OnOrderCreated(ctx context.Context, orderID string, doc bson.M) {
	log := s.logger.WithFields(logrus.Fields{"orderId": orderID, "operation": "create"})
	if err := s.create(ctx, orderID, doc); err != nil {
		log.WithField("kind", models.Kind(err)).WithError(err).Error("hash ledger create failed")
		metrics.RecordLedgerWrite("create", models.Kind(err))
		return
	}
	metrics.RecordLedgerWrite("create", "ok")
}

// OnOrderUpdated rehashes the post-update order and refreshes hashValue and
// updatedAt, leaving createdAt alone.
func (s *LedgerSynchronizer) OnOrderUpdated(ctx context.Context, orderID string, doc bson.M) {
	log := s.logger.WithFields(logrus.Fields{"orderId": orderID, "operation": "update"})
	if err := s.update(ctx, orderID, doc); err != nil {
		log.WithField("kind", models.Kind(err)).WithError(err).Error("hash ledger update failed")
		metrics.RecordLedgerWrite("update", models.Kind(err))
		return
	}
	metrics.RecordLedgerWrite("update", "ok")
}

func (s *LedgerSynchronizer) create(ctx context.Context, orderID string, doc bson.M) error {
	if len(doc) == 0 {
		return models.ErrMissingPayload
	}
	hash, err := hashOrder(doc)
	if err != nil {
		return err
	}

	at := s.now().UTC()
	return s.store.CreateLedgerEntry(ctx, models.LedgerEntry{
		ID:               models.LedgerID(orderID),
		HashValue:        hash,
		SourceCollection: models.LedgerSourceOrders,
		SourceDocID:      orderID,
		CreatedAt:        at,
		UpdatedAt:        at,
	})
}

func (s *LedgerSynchronizer) update(ctx context.Context, orderID string, doc bson.M) error {
	if len(doc) == 0 {
		return models.ErrMissingPayload
	}
	hash, err := hashOrder(doc)
	if err != nil {
		return err
	}
	return s.store.UpdateLedgerHash(ctx, models.LedgerID(orderID), hash, s.now().UTC())
}

type VerifyResult struct {
	OrderID     string    `json:"orderId"`
	LedgerID    string    `json:"ledgerId"`
	StoredHash  string    `json:"storedHash"`
	CurrentHash string    `json:"currentHash"`
	Match       bool      `json:"match"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Verify recomputes the order's hash and compares it with the ledger.
func (s *LedgerSynchronizer) Verify(ctx context.Context, orderID string) (*VerifyResult, error) {
	entry, err := s.store.GetLedgerEntry(ctx, models.LedgerID(orderID))
	if err != nil {
		return nil, fmt.Errorf("ledger entry: %w", err)
	}
	doc, err := s.store.GetOrderDocument(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order: %w", err)
	}
	current, err := hashOrder(doc)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		OrderID:     orderID,
		LedgerID:    entry.ID,
		StoredHash:  entry.HashValue,
		CurrentHash: current,
		Match:       current == entry.HashValue,
		UpdatedAt:   entry.UpdatedAt,
	}, nil
}

// hashOrder digests the order's fields. The _id document key is not a field
// of the order data and is left out.
func hashOrder(doc bson.M) (string, error) {
	fields := make(bson.M, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		fields[k] = v
	}
	if len(fields) == 0 {
		return "", errors.New("order document has no fields to hash")
	}
	return utils.HashDocument(fields)
}
