// Package store holds the document store backends for listings and messages.
// A missing document is reported as a nil result, never as an error.
package store

import (
	"context"

	"github.com/AnshRaj112/bazaar-backend/internal/models"
)

const (
	ListingsCollection = "listings"
	MessagesCollection = "messages"
)

// ListingStore persists listings. Insert assigns the id and the server timestamps.
type ListingStore interface {
	Insert(ctx context.Context, l models.Listing) (string, error)
	Get(ctx context.Context, id string) (*models.Listing, error)
	// List returns matching listings newest first.
	List(ctx context.Context, q models.ListingQuery) ([]models.Listing, error)
	Update(ctx context.Context, id string, p models.ListingPatch) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context, q models.ListingQuery) (int64, error)
}

// MessageStore persists chat messages.
type MessageStore interface {
	Insert(ctx context.Context, m models.Message) (string, error)
	// List returns matching messages oldest first.
	List(ctx context.Context, q models.MessageQuery) ([]models.Message, error)
	// MarkRead flips the given unread messages to read as one atomic write.
	MarkRead(ctx context.Context, ids []string) (int64, error)
	Count(ctx context.Context, q models.MessageQuery) (int64, error)
	DistinctListingIDs(ctx context.Context, q models.MessageQuery) ([]string, error)
}
