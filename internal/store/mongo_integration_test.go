package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/AnshRaj112/bazaar-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// integrationDB connects to MONGODB_TEST_URI and returns a throwaway database.
// Against a standalone server MarkRead skips its transaction.
func integrationDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skipf("MONGODB_TEST_URI not set; skipping mongo integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	db := client.Database("bazaar_test_" + primitive.NewObjectID().Hex())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

func TestMongoListingsRoundTrip(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()
	s := NewMongoListings(db)
	if err := s.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}

	id, err := s.Insert(ctx, models.Listing{Title: "Lamp", UserID: "u1", Status: models.StatusPending, Price: 12.5})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := s.Get(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("Get: %v %v", got, err)
	}
	if got.CreatedAt == 0 || got.UpdatedAt == 0 {
		t.Fatalf("expected server timestamps, got %+v", got)
	}
	if got.Images == nil {
		t.Fatalf("images should decode as empty slice")
	}

	reason := "blurry photos"
	status := models.StatusRejected
	if err := s.Update(ctx, id, models.ListingPatch{Status: &status, RejectionReason: &reason}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = s.Get(ctx, id)
	if got.Status != models.StatusRejected || got.RejectionReason != reason {
		t.Fatalf("unexpected after update: %+v", got)
	}

	n, _ := s.Count(ctx, models.ListingQuery{Status: models.StatusRejected})
	if n != 1 {
		t.Fatalf("expected 1 rejected, got %d", n)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := s.Get(ctx, id); got != nil {
		t.Fatalf("expected nil after delete")
	}
	if got, err := s.Get(ctx, "not-an-object-id"); got != nil || err != nil {
		t.Fatalf("expected nil, nil for malformed id; got %v %v", got, err)
	}
}

func TestMongoMessagesMarkReadAndDistinct(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()
	s := NewMongoMessages(db)
	if err := s.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}

	a, _ := s.Insert(ctx, models.Message{ListingID: "ad1", SenderID: "u2", ReceiverID: "u1", Text: "hi"})
	b, _ := s.Insert(ctx, models.Message{ListingID: "ad2", SenderID: "u2", ReceiverID: "u1", Text: "again"})
	_, _ = s.Insert(ctx, models.Message{ListingID: "ad1", SenderID: "u1", ReceiverID: "u2", Text: "reply"})

	mine, err := s.List(ctx, models.MessageQuery{Participant: "u1"})
	if err != nil || len(mine) != 3 {
		t.Fatalf("participant list: %d %v", len(mine), err)
	}

	n, err := s.MarkRead(ctx, []string{a, b})
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 flipped, got %d", n)
	}
	unread, _ := s.Count(ctx, models.MessageQuery{ReceiverID: "u1", Unread: true})
	if unread != 0 {
		t.Fatalf("expected 0 unread, got %d", unread)
	}

	ids, _ := s.DistinctListingIDs(ctx, models.MessageQuery{SenderID: "u2"})
	if len(ids) != 2 || ids[0] != "ad1" || ids[1] != "ad2" {
		t.Fatalf("expected [ad1 ad2], got %v", ids)
	}
}
