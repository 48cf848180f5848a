package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/AnshRaj112/bazaar-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// messageDoc carries a denormalized participants array so "sent or received by X"
// is a single indexed filter.
type messageDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ListingID    string             `bson:"ad_id"`
	SenderID     string             `bson:"sender_id"`
	ReceiverID   string             `bson:"receiver_id"`
	Participants []string           `bson:"participants"`
	Text         string             `bson:"text"`
	Timestamp    time.Time          `bson:"timestamp"`
	Read         bool               `bson:"read"`
}

func (d messageDoc) toModel() models.Message {
	return models.Message{
		ID:         d.ID.Hex(),
		ListingID:  d.ListingID,
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Text:       d.Text,
		Timestamp:  models.Millis(d.Timestamp),
		Read:       d.Read,
	}
}

// MongoMessages stores chat messages in the "messages" collection.
type MongoMessages struct {
	client *mongo.Client
	col    *mongo.Collection
}

func NewMongoMessages(db *mongo.Database) *MongoMessages {
	return &MongoMessages{client: db.Client(), col: db.Collection(MessagesCollection)}
}

// EnsureIndexes configures indexes for per-listing history, participant lookups
// and unread counts.
func (s *MongoMessages) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ad_id", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("idx_ad_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}},
			Options: options.Index().SetName("idx_participants"),
		},
		{
			Keys:    bson.D{{Key: "receiver_id", Value: 1}, {Key: "read", Value: 1}},
			Options: options.Index().SetName("idx_receiver_read"),
		},
	}
	_, err := s.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func (s *MongoMessages) Insert(ctx context.Context, m models.Message) (string, error) {
	id := primitive.NewObjectID()
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$setOnInsert": bson.M{
				"ad_id":        m.ListingID,
				"sender_id":    m.SenderID,
				"receiver_id":  m.ReceiverID,
				"participants": []string{m.SenderID, m.ReceiverID},
				"text":         m.Text,
				"read":         false,
			},
			"$currentDate": bson.M{"timestamp": true},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return id.Hex(), nil
}

func (s *MongoMessages) List(ctx context.Context, q models.MessageQuery) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.col.Find(ctx, messageFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cur.Close(ctx)

	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	out := make([]models.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

// MarkRead runs the flip inside a transaction so all messages change together.
// A standalone server has no transactions; there the flip is a single
// UpdateMany.
func (s *MongoMessages) MarkRead(ctx context.Context, ids []string) (int64, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return 0, nil
	}

	flip := func(ctx context.Context) (int64, error) {
		r, err := s.col.UpdateMany(ctx,
			bson.M{"_id": bson.M{"$in": oids}, "read": false},
			bson.M{"$set": bson.M{"read": true}},
		)
		if err != nil {
			return 0, err
		}
		return r.ModifiedCount, nil
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return 0, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return flip(sc)
	})
	if transactionsUnsupported(err) {
		n, err := flip(ctx)
		if err != nil {
			return 0, fmt.Errorf("mark messages read: %w", err)
		}
		return n, nil
	}
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	n, _ := res.(int64)
	return n, nil
}

// transactionsUnsupported reports the IllegalOperation error a standalone
// server returns for transactional writes.
func transactionsUnsupported(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorCodeWithMessage(20, "Transaction numbers") ||
		se.HasErrorMessage("Transaction numbers are only allowed on a replica set member or mongos")
}

func (s *MongoMessages) Count(ctx context.Context, q models.MessageQuery) (int64, error) {
	n, err := s.col.CountDocuments(ctx, messageFilter(q))
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (s *MongoMessages) DistinctListingIDs(ctx context.Context, q models.MessageQuery) ([]string, error) {
	vals, err := s.col.Distinct(ctx, "ad_id", messageFilter(q))
	if err != nil {
		return nil, fmt.Errorf("distinct listing ids: %w", err)
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if id, ok := v.(string); ok && id != "" {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func messageFilter(q models.MessageQuery) bson.M {
	filter := bson.M{}
	if q.ListingID != "" {
		filter["ad_id"] = q.ListingID
	}
	if q.SenderID != "" {
		filter["sender_id"] = q.SenderID
	}
	if q.ReceiverID != "" {
		filter["receiver_id"] = q.ReceiverID
	}
	if q.Participant != "" {
		filter["participants"] = q.Participant
	}
	if q.Unread {
		filter["read"] = false
	}
	return filter
}
