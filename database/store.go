package database

import (
	"context"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/models"
)

const (
	OrdersCollection          = "orders"
	InventoryCollection       = "inventory"
	CleanupLogsCollection     = "cleanup_logs"
	CleanupFailuresCollection = "cleanup_failures"
	HashLedgerCollection      = "hash_ledger"
	MailCollection            = "mail"
	SMSCollection             = "sms"
)

// Batch stages writes that are sent to the store together on Commit.
// A batch must not be reused after Commit.
type Batch interface {
	// SetItem overwrites the whole inventory document.
	SetItem(item models.Item)
	// IncrementStock adds qty to a single size bucket without rewriting the item.
	IncrementStock(itemID, variantID, size string, qty int)
	DeleteOrder(orderID string)
	AddCleanupLog(entry models.CleanupLog)
	Len() int
	Commit(ctx context.Context) error
}
