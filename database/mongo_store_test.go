package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func mockStore(mt *mtest.T) *MongoStore {
	return NewMongoStore(mt.DB, false)
}

// commands returns the started command events in the order they were sent.
func commands(mt *mtest.T) []bson.Raw {
	var out []bson.Raw
	for _, ev := range mt.GetAllStartedEvents() {
		out = append(out, ev.Command)
	}
	return out
}

func TestMongoBatchWrites(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("increment uses array filters", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		b := mockStore(mt).NewBatch()
		b.IncrementStock("it1", "v1", "M", 3)
		if err := b.Commit(context.Background()); err != nil {
			mt.Fatal(err)
		}

		cmds := commands(mt)
		if len(cmds) != 1 {
			mt.Fatalf("expected one command, got %d", len(cmds))
		}
		cmd := cmds[0]
		if coll := cmd.Lookup("update").StringValue(); coll != InventoryCollection {
			mt.Fatalf("update sent to %q", coll)
		}
		if !cmd.Lookup("ordered").Boolean() {
			mt.Fatal("bulk write must be ordered")
		}

		update := cmd.Lookup("updates", "0").Document()
		if id := update.Lookup("q", "_id").StringValue(); id != "it1" {
			mt.Fatalf("filter _id = %q", id)
		}
		inc := update.Lookup("u", "$inc", "variants.$[v].sizes.$[s].stock")
		if inc.AsInt64() != 3 {
			mt.Fatalf("$inc amount = %v", inc)
		}
		if upsert, ok := update.Lookup("upsert").BooleanOK(); ok && upsert {
			mt.Fatal("increment must not upsert")
		}

		filters, err := update.Lookup("arrayFilters").Array().Values()
		if err != nil {
			mt.Fatal(err)
		}
		if len(filters) != 2 {
			mt.Fatalf("expected two array filters, got %d", len(filters))
		}
		if v := filters[0].Document().Lookup("v.variantId").StringValue(); v != "v1" {
			mt.Fatalf("variant filter = %q", v)
		}
		if s := filters[1].Document().Lookup("s.size").StringValue(); s != "M" {
			mt.Fatalf("size filter = %q", s)
		}
	})

	mt.Run("rewrite replaces with upsert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		item := models.Item{
			ID:       "it1",
			Name:     "Tee",
			Variants: []models.Variant{{VariantID: "v1", Sizes: []models.Size{{Size: "M", Stock: 10}}}},
		}
		b := mockStore(mt).NewBatch()
		b.SetItem(item)
		if err := b.Commit(context.Background()); err != nil {
			mt.Fatal(err)
		}

		update := commands(mt)[0].Lookup("updates", "0").Document()
		if upsert, ok := update.Lookup("upsert").BooleanOK(); !ok || !upsert {
			mt.Fatal("replace must upsert")
		}
		if id := update.Lookup("q", "_id").StringValue(); id != "it1" {
			mt.Fatalf("filter _id = %q", id)
		}
		replacement := update.Lookup("u").Document()
		if _, err := replacement.LookupErr("$set"); err == nil {
			mt.Fatal("replacement must be a whole document, not an update")
		}
		stock := replacement.Lookup("variants", "0", "sizes", "0", "stock")
		if stock.AsInt64() != 10 {
			mt.Fatalf("replacement stock = %v", stock)
		}
	})

	mt.Run("collections written in order", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		b := mockStore(mt).NewBatch()
		b.AddCleanupLog(models.CleanupLog{RefID: "o1", Context: models.CleanupContext})
		b.DeleteOrder("o1")
		b.IncrementStock("it1", "v1", "M", 1)
		if b.Len() != 3 {
			mt.Fatalf("Len = %d", b.Len())
		}
		if err := b.Commit(context.Background()); err != nil {
			mt.Fatal(err)
		}

		cmds := commands(mt)
		want := []struct{ name, coll string }{
			{"update", InventoryCollection},
			{"delete", OrdersCollection},
			{"insert", CleanupLogsCollection},
		}
		if len(cmds) != len(want) {
			mt.Fatalf("expected %d commands, got %d", len(want), len(cmds))
		}
		for i, w := range want {
			if got := cmds[i].Lookup(w.name).StringValue(); got != w.coll {
				mt.Fatalf("command %d: %s sent to %q, want %q", i, w.name, got, w.coll)
			}
		}
		if id := cmds[1].Lookup("deletes", "0", "q", "_id").StringValue(); id != "o1" {
			mt.Fatalf("delete filter _id = %q", id)
		}
	})

	mt.Run("failed collection stops the batch", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "cannot apply $inc",
		}))

		b := mockStore(mt).NewBatch()
		b.IncrementStock("it1", "v1", "M", 1)
		b.DeleteOrder("o1")
		err := b.Commit(context.Background())
		if err == nil {
			mt.Fatal("expected commit error")
		}
		if n := len(commands(mt)); n != 1 {
			mt.Fatalf("orders must not be written after inventory failed, got %d commands", n)
		}
	})

	mt.Run("empty batch sends nothing", func(mt *mtest.T) {
		if err := mockStore(mt).NewBatch().Commit(context.Background()); err != nil {
			mt.Fatal(err)
		}
		if n := len(commands(mt)); n != 0 {
			mt.Fatalf("expected no commands, got %d", n)
		}
	})
}

func TestMongoLedgerErrors(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("duplicate create", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))

		err := mockStore(mt).CreateLedgerEntry(context.Background(), models.LedgerEntry{ID: "hash_o1"})
		if !errors.Is(err, models.ErrDuplicate) {
			mt.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	mt.Run("update without entry", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := mockStore(mt).UpdateLedgerHash(context.Background(), "hash_o1", "abc", time.Now())
		if !errors.Is(err, models.ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("update sets hash and time only", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		if err := mockStore(mt).UpdateLedgerHash(context.Background(), "hash_o1", "abc", time.Now()); err != nil {
			mt.Fatal(err)
		}
		set, err := commands(mt)[0].Lookup("updates", "0", "u", "$set").Document().Elements()
		if err != nil {
			mt.Fatal(err)
		}
		keys := map[string]bool{}
		for _, el := range set {
			keys[el.Key()] = true
		}
		if len(keys) != 2 || !keys["hashValue"] || !keys["updatedAt"] {
			mt.Fatalf("unexpected $set fields %v", keys)
		}
	})

	mt.Run("missing item", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db."+InventoryCollection, mtest.FirstBatch))

		if _, err := mockStore(mt).GetItem(context.Background(), "ghost"); !errors.Is(err, models.ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
