package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/models"
	"go.mongodb.org/mongo-driver/bson"
)

// OrderChange is delivered to MemoryStore subscribers after every order write.
type OrderChange struct {
	Operation string // "insert" or "update"
	OrderID   string
	Document  bson.M
}

// MemoryStore is a process-local document store with the same surface as
// MongoStore. Documents are kept as BSON bytes so reads never alias writes.
type MemoryStore struct {
	mu          sync.Mutex
	orders      map[string]bson.Raw
	inventory   map[string]bson.Raw
	ledger      map[string]models.LedgerEntry
	cleanupLogs []models.CleanupLog
	failures    []models.CleanupFailure
	mail        []models.Mail
	sms         []models.SMSRecord
	commits     int
	commitHook  func(n int) error
	subscribers []func(OrderChange)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    make(map[string]bson.Raw),
		inventory: make(map[string]bson.Raw),
		ledger:    make(map[string]models.LedgerEntry),
	}
}

// SetCommitHook installs fn to run before the n-th batch commit (1-based).
// A non-nil error aborts that commit without applying any of its writes.
func (m *MemoryStore) SetCommitHook(fn func(n int) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitHook = fn
}

// Subscribe registers fn for order inserts and updates. Callbacks run
// synchronously after the write, outside the store lock.
func (m *MemoryStore) Subscribe(fn func(OrderChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

func (m *MemoryStore) InsertOrder(ctx context.Context, order models.Order) error {
	raw, err := bson.Marshal(order)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.orders[order.ID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("order %s: %w", order.ID, models.ErrDuplicate)
	}
	m.orders[order.ID] = raw
	m.mu.Unlock()

	m.publish("insert", order.ID, raw)
	return nil
}

// ReplaceOrder overwrites an existing order and emits an update event.
func (m *MemoryStore) ReplaceOrder(ctx context.Context, order models.Order) error {
	raw, err := bson.Marshal(order)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.orders[order.ID]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("order %s: %w", order.ID, models.ErrNotFound)
	}
	m.orders[order.ID] = raw
	m.mu.Unlock()

	m.publish("update", order.ID, raw)
	return nil
}

func (m *MemoryStore) publish(op, id string, raw bson.Raw) {
	m.mu.Lock()
	subs := append([]func(OrderChange){}, m.subscribers...)
	m.mu.Unlock()

	for _, fn := range subs {
		var doc bson.M
		if err := bson.Unmarshal(raw, &doc); err != nil {
			continue
		}
		fn(OrderChange{Operation: op, OrderID: id, Document: doc})
	}
}

func (m *MemoryStore) HasOrder(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.orders[orderID]
	return ok
}

func (m *MemoryStore) PutItem(item models.Item) error {
	raw, err := bson.Marshal(item)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventory[item.ID] = raw
	return nil
}

func (m *MemoryStore) FailedOrdersBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.orders))
	for id := range m.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []models.Order
	for _, id := range ids {
		var o models.Order
		if err := bson.Unmarshal(m.orders[id], &o); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", id, err)
		}
		if o.PaymentStatus == models.PaymentStatusFailed && !o.CreatedAt.After(cutoff) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.inventory[itemID]
	if !ok {
		return nil, models.ErrNotFound
	}
	var item models.Item
	if err := bson.Unmarshal(raw, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (m *MemoryStore) GetOrderDocument(ctx context.Context, orderID string) (bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (m *MemoryStore) NewBatch() Batch {
	return &memoryBatch{store: m}
}

func (m *MemoryStore) InsertCleanupFailure(ctx context.Context, f models.CleanupFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, f)
	return nil
}

func (m *MemoryStore) CreateLedgerEntry(ctx context.Context, entry models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ledger[entry.ID]; ok {
		return fmt.Errorf("ledger entry %s: %w", entry.ID, models.ErrDuplicate)
	}
	m.ledger[entry.ID] = entry
	return nil
}

func (m *MemoryStore) UpdateLedgerHash(ctx context.Context, id, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.ledger[id]
	if !ok {
		return fmt.Errorf("ledger entry %s: %w", id, models.ErrNotFound)
	}
	entry.HashValue = hash
	entry.UpdatedAt = at
	m.ledger[id] = entry
	return nil
}

func (m *MemoryStore) GetLedgerEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.ledger[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &entry, nil
}

func (m *MemoryStore) EnqueueMail(ctx context.Context, mail models.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mail = append(m.mail, mail)
	return nil
}

func (m *MemoryStore) InsertSMS(ctx context.Context, r models.SMSRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sms = append(m.sms, r)
	return nil
}

func (m *MemoryStore) LedgerEntries() []models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.LedgerEntry, 0, len(m.ledger))
	for _, e := range m.ledger {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) CleanupLogs() []models.CleanupLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CleanupLog(nil), m.cleanupLogs...)
}

func (m *MemoryStore) CleanupFailures() []models.CleanupFailure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CleanupFailure(nil), m.failures...)
}

func (m *MemoryStore) Mail() []models.Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Mail(nil), m.mail...)
}

func (m *MemoryStore) SMS() []models.SMSRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SMSRecord(nil), m.sms...)
}

// Commits reports how many non-empty batches have been applied.
func (m *MemoryStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

type memoryOp func(m *MemoryStore) error

type memoryBatch struct {
	store *MemoryStore
	ops   []memoryOp
}

func (b *memoryBatch) SetItem(item models.Item) {
	raw, err := bson.Marshal(item)
	b.ops = append(b.ops, func(m *MemoryStore) error {
		if err != nil {
			return err
		}
		m.inventory[item.ID] = raw
		return nil
	})
}

func (b *memoryBatch) IncrementStock(itemID, variantID, size string, qty int) {
	b.ops = append(b.ops, func(m *MemoryStore) error {
		raw, ok := m.inventory[itemID]
		if !ok {
			return nil
		}
		var item models.Item
		if err := bson.Unmarshal(raw, &item); err != nil {
			return err
		}
		v := item.FindVariant(variantID)
		if v == nil {
			return nil
		}
		s := v.FindSize(size)
		if s == nil {
			return nil
		}
		s.Stock += qty
		updated, err := bson.Marshal(item)
		if err != nil {
			return err
		}
		m.inventory[itemID] = updated
		return nil
	})
}

func (b *memoryBatch) DeleteOrder(orderID string) {
	b.ops = append(b.ops, func(m *MemoryStore) error {
		delete(m.orders, orderID)
		return nil
	})
}

func (b *memoryBatch) AddCleanupLog(entry models.CleanupLog) {
	b.ops = append(b.ops, func(m *MemoryStore) error {
		m.cleanupLogs = append(m.cleanupLogs, entry)
		return nil
	})
}

func (b *memoryBatch) Len() int { return len(b.ops) }

// Commit applies every staged write or none of them.
func (b *memoryBatch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(b.ops) == 0 {
		return nil
	}

	m := b.store
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.commitHook != nil {
		if err := m.commitHook(m.commits + 1); err != nil {
			return err
		}
	}

	// Apply against copies so a failing op leaves the store untouched.
	orders := cloneRaw(m.orders)
	inventory := cloneRaw(m.inventory)
	logs := len(m.cleanupLogs)
	for _, op := range b.ops {
		if err := op(m); err != nil {
			m.orders, m.inventory = orders, inventory
			m.cleanupLogs = m.cleanupLogs[:logs]
			return err
		}
	}
	m.commits++
	b.ops = nil
	return nil
}

func cloneRaw(src map[string]bson.Raw) map[string]bson.Raw {
	dst := make(map[string]bson.Raw, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
