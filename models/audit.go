package models

import (
	"time"
)

const (
	CleanupContext    = "order_cleanup"
	CleanupEntityType = "order"
	CleanupReason     = "Payment failed for more than 4 hours"

	LedgerSourceOrders = "orders"
)

type CleanupMetadata struct {
	PaymentMethod string      `bson:"paymentMethod" json:"paymentMethod"`
	Items         []OrderItem `bson:"items" json:"items"`
	CreatedAt     time.Time   `bson:"createdAt" json:"createdAt"`
}

// CleanupLog is written once per reconciled order and never updated.
type CleanupLog struct {
	Context    string          `bson:"context" json:"context"`
	EntityType string          `bson:"entityType" json:"entityType"`
	RefID      string          `bson:"refId" json:"refId"`
	UserID     string          `bson:"userId" json:"userId"`
	Total      float64         `bson:"total" json:"total"`
	Reason     string          `bson:"reason" json:"reason"`
	Metadata   CleanupMetadata `bson:"metadata" json:"metadata"`
	DeletedAt  time.Time       `bson:"deletedAt" json:"deletedAt"`
	Timestamp  time.Time       `bson:"timestamp" json:"timestamp"`
}

// CleanupFailure records a reconciliation run that stopped on an error.
type CleanupFailure struct {
	RunID    string    `bson:"runId" json:"runId"`
	Error    string    `bson:"error" json:"error"`
	Summary  any       `bson:"summary" json:"summary"`
	FailedAt time.Time `bson:"failedAt" json:"failedAt"`
}

type LedgerEntry struct {
	ID               string    `bson:"_id" json:"id"`
	HashValue        string    `bson:"hashValue" json:"hashValue"`
	SourceCollection string    `bson:"sourceCollection" json:"sourceCollection"`
	SourceDocID      string    `bson:"sourceDocId" json:"sourceDocId"`
	CreatedAt        time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time `bson:"updatedAt" json:"updatedAt"`
}

// LedgerID derives the ledger key for an order document.
func LedgerID(orderID string) string {
	return "hash_" + orderID
}
