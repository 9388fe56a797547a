package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is the document store backed by a MongoDB database.
type MongoStore struct {
	db           *mongo.Database
	transactions bool
}

// NewMongoStore wraps db. With transactions set, every batch is committed
// inside a session transaction, which needs a replica set.
func NewMongoStore(db *mongo.Database, transactions bool) *MongoStore {
	return &MongoStore{db: db, transactions: transactions}
}

func (s *MongoStore) Database() *mongo.Database { return s.db }

func (s *MongoStore) FailedOrdersBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	filter := bson.M{
		"createdAt":     bson.M{"$lte": cutoff},
		"paymentStatus": models.PaymentStatusFailed,
	}
	cursor, err := s.db.Collection(OrdersCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query failed orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("decode failed orders: %w", err)
	}
	return orders, nil
}

func (s *MongoStore) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	var item models.Item
	err := s.db.Collection(InventoryCollection).FindOne(ctx, bson.M{"_id": itemID}).Decode(&item)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *MongoStore) GetOrderDocument(ctx context.Context, orderID string) (bson.M, error) {
	var doc bson.M
	err := s.db.Collection(OrdersCollection).FindOne(ctx, bson.M{"_id": orderID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *MongoStore) NewBatch() Batch {
	return &mongoBatch{store: s}
}

func (s *MongoStore) InsertCleanupFailure(ctx context.Context, f models.CleanupFailure) error {
	_, err := s.db.Collection(CleanupFailuresCollection).InsertOne(ctx, f)
	return err
}

func (s *MongoStore) CreateLedgerEntry(ctx context.Context, entry models.LedgerEntry) error {
	_, err := s.db.Collection(HashLedgerCollection).InsertOne(ctx, entry)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("ledger entry %s: %w", entry.ID, models.ErrDuplicate)
	}
	return err
}

func (s *MongoStore) UpdateLedgerHash(ctx context.Context, id, hash string, at time.Time) error {
	res, err := s.db.Collection(HashLedgerCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"hashValue": hash, "updatedAt": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("ledger entry %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) GetLedgerEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := s.db.Collection(HashLedgerCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *MongoStore) EnqueueMail(ctx context.Context, m models.Mail) error {
	_, err := s.db.Collection(MailCollection).InsertOne(ctx, m)
	return err
}

func (s *MongoStore) InsertSMS(ctx context.Context, r models.SMSRecord) error {
	_, err := s.db.Collection(SMSCollection).InsertOne(ctx, r)
	return err
}

// mongoBatch buffers write models per collection and sends them as ordered
// bulk writes: inventory first, then orders, then cleanup logs.
type mongoBatch struct {
	store     *MongoStore
	inventory []mongo.WriteModel
	orders    []mongo.WriteModel
	logs      []mongo.WriteModel
}

func (b *mongoBatch) SetItem(item models.Item) {
	b.inventory = append(b.inventory, mongo.NewReplaceOneModel().
		SetFilter(bson.M{"_id": item.ID}).
		SetReplacement(item).
		SetUpsert(true))
}

func (b *mongoBatch) IncrementStock(itemID, variantID, size string, qty int) {
	b.inventory = append(b.inventory, mongo.NewUpdateOneModel().
		SetFilter(bson.M{"_id": itemID}).
		SetUpdate(bson.M{"$inc": bson.M{"variants.$[v].sizes.$[s].stock": qty}}).
		SetArrayFilters(options.ArrayFilters{Filters: []interface{}{
			bson.M{"v.variantId": variantID},
			bson.M{"s.size": size},
		}}))
}

func (b *mongoBatch) DeleteOrder(orderID string) {
	b.orders = append(b.orders, mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": orderID}))
}

func (b *mongoBatch) AddCleanupLog(entry models.CleanupLog) {
	b.logs = append(b.logs, mongo.NewInsertOneModel().SetDocument(entry))
}

func (b *mongoBatch) Len() int {
	return len(b.inventory) + len(b.orders) + len(b.logs)
}

func (b *mongoBatch) Commit(ctx context.Context) error {
	if b.Len() == 0 {
		return nil
	}
	if !b.store.transactions {
		return b.write(ctx)
	}

	session, err := b.store.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, b.write(sc)
	})
	return err
}

func (b *mongoBatch) write(ctx context.Context) error {
	groups := []struct {
		collection string
		models     []mongo.WriteModel
	}{
		{InventoryCollection, b.inventory},
		{OrdersCollection, b.orders},
		{CleanupLogsCollection, b.logs},
	}
	for _, g := range groups {
		if len(g.models) == 0 {
			continue
		}
		if _, err := b.store.db.Collection(g.collection).BulkWrite(ctx, g.models, options.BulkWrite().SetOrdered(true)); err != nil {
			return fmt.Errorf("bulk write %s: %w", g.collection, err)
		}
	}
	return nil
}
