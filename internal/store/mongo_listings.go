package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/bazaar-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type listingDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	Title           string             `bson:"title"`
	Description     string             `bson:"description"`
	Price           float64            `bson:"price"`
	CategoryID      string             `bson:"category_id"`
	SubcategoryID   string             `bson:"subcategory_id"`
	Images          []string           `bson:"images"`
	UserID          string             `bson:"user_id"`
	Status          string             `bson:"status"`
	RejectionReason string             `bson:"rejection_reason,omitempty"`
	Contact         string             `bson:"contact,omitempty"`
	CreatedAt       time.Time          `bson:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at"`
}

func (d listingDoc) toModel() models.Listing {
	images := d.Images
	if images == nil {
		images = []string{}
	}
	return models.Listing{
		ID:              d.ID.Hex(),
		Title:           d.Title,
		Description:     d.Description,
		Price:           d.Price,
		CategoryID:      d.CategoryID,
		SubcategoryID:   d.SubcategoryID,
		Images:          images,
		UserID:          d.UserID,
		Status:          models.ListingStatus(d.Status),
		RejectionReason: d.RejectionReason,
		Contact:         d.Contact,
		CreatedAt:       models.Millis(d.CreatedAt),
		UpdatedAt:       models.Millis(d.UpdatedAt),
	}
}

// MongoListings stores listings in the "listings" collection.
type MongoListings struct {
	col *mongo.Collection
}

func NewMongoListings(db *mongo.Database) *MongoListings {
	return &MongoListings{col: db.Collection(ListingsCollection)}
}

// EnsureIndexes creates the indexes backing the browse, owner and moderation queries.
func (s *MongoListings) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_status_created"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_owner_created"),
		},
	}
	_, err := s.col.Indexes().CreateMany(ctx, indexes)
	return err
}

// Insert upserts a fresh document so the server assigns both timestamps.
func (s *MongoListings) Insert(ctx context.Context, l models.Listing) (string, error) {
	id := primitive.NewObjectID()
	images := l.Images
	if images == nil {
		images = []string{}
	}
	fields := bson.M{
		"title":          l.Title,
		"description":    l.Description,
		"price":          l.Price,
		"category_id":    l.CategoryID,
		"subcategory_id": l.SubcategoryID,
		"images":         images,
		"user_id":        l.UserID,
		"status":         string(l.Status),
	}
	if l.Contact != "" {
		fields["contact"] = l.Contact
	}
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$setOnInsert": fields,
			"$currentDate": bson.M{"created_at": true, "updated_at": true},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return "", fmt.Errorf("insert listing: %w", err)
	}
	return id.Hex(), nil
}

func (s *MongoListings) Get(ctx context.Context, id string) (*models.Listing, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	var doc listingDoc
	err = s.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	l := doc.toModel()
	return &l, nil
}

func (s *MongoListings) List(ctx context.Context, q models.ListingQuery) ([]models.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.col.Find(ctx, listingFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("find listings: %w", err)
	}
	defer cur.Close(ctx)

	var docs []listingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}
	out := make([]models.Listing, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (s *MongoListings) Update(ctx context.Context, id string, p models.ListingPatch) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	set := bson.M{}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Price != nil {
		set["price"] = *p.Price
	}
	if p.CategoryID != nil {
		set["category_id"] = *p.CategoryID
	}
	if p.SubcategoryID != nil {
		set["subcategory_id"] = *p.SubcategoryID
	}
	if p.Images != nil {
		set["images"] = *p.Images
	}
	if p.Contact != nil {
		set["contact"] = *p.Contact
	}
	if p.UserID != nil {
		set["user_id"] = *p.UserID
	}
	if p.Status != nil {
		set["status"] = string(*p.Status)
	}
	if p.RejectionReason != nil {
		set["rejection_reason"] = *p.RejectionReason
	}
	update := bson.M{"$currentDate": bson.M{"updated_at": true}}
	if len(set) > 0 {
		update["$set"] = set
	}
	if _, err := s.col.UpdateOne(ctx, bson.M{"_id": oid}, update); err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	return nil
}

func (s *MongoListings) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	return nil
}

func (s *MongoListings) Count(ctx context.Context, q models.ListingQuery) (int64, error) {
	n, err := s.col.CountDocuments(ctx, listingFilter(q))
	if err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

func listingFilter(q models.ListingQuery) bson.M {
	filter := bson.M{}
	if q.Status != "" {
		filter["status"] = string(q.Status)
	}
	if q.OwnerID != "" {
		filter["user_id"] = q.OwnerID
	}
	return filter
}
