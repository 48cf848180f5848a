package services

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AnshRaj112/bazaar-backend/internal/changefeed"
	"github.com/AnshRaj112/bazaar-backend/internal/models"
	"github.com/AnshRaj112/bazaar-backend/internal/store"
	"golang.org/x/sync/errgroup"
)

type ChatService struct {
	store   store.MessageStore
	changes changefeed.Publisher
}

func NewChatService(s store.MessageStore, changes changefeed.Publisher) *ChatService {
	if changes == nil {
		changes = changefeed.Discard{}
	}
	return &ChatService{store: s, changes: changes}
}

// Messages returns the conversation on a listing, oldest first. With otherID
// set only messages between the two users are kept, otherwise every message
// userID took part in.
func (s *ChatService) Messages(ctx context.Context, listingID, userID, otherID string) ([]models.Message, error) {
	if userID = strings.TrimSpace(userID); userID == "" {
		return nil, ErrUserRequired
	}
	all, err := s.store.List(ctx, models.MessageQuery{ListingID: listingID, Participant: userID})
	if err != nil {
		return nil, err
	}
	return filterConversation(all, userID, otherID), nil
}

func filterConversation(msgs []models.Message, userID, otherID string) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if otherID != "" {
			if m.Between(userID, otherID) {
				out = append(out, m)
			}
		} else if m.HasParticipant(userID) {
			out = append(out, m)
		}
	}
	return out
}

// Send stores a message. The returned copy carries the local send time; the
// stored timestamp is assigned by the store.
func (s *ChatService) Send(ctx context.Context, in models.MessageInput) (*models.Message, error) {
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	if in.SenderID == "" {
		return nil, ErrSenderRequired
	}
	if in.ReceiverID == "" {
		return nil, ErrReceiverRequired
	}

	msg := models.Message{
		ListingID:  in.ListingID,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Text:       in.Text,
	}
	id, err := s.store.Insert(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = id
	msg.Timestamp = time.Now().UnixMilli()
	s.publish(ctx, id, changefeed.OpInsert)
	return &msg, nil
}

// MarkRead flips every unread message on the listing addressed to readerID in
// one write. Messages readerID sent are untouched.
func (s *ChatService) MarkRead(ctx context.Context, listingID, readerID string) (int64, error) {
	// An empty receiver filter would match every message on the listing.
	if readerID = strings.TrimSpace(readerID); readerID == "" {
		return 0, ErrUserRequired
	}
	unread, err := s.store.List(ctx, models.MessageQuery{ListingID: listingID, ReceiverID: readerID, Unread: true})
	if err != nil {
		return 0, err
	}
	if len(unread) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(unread))
	for _, m := range unread {
		ids = append(ids, m.ID)
	}
	n, err := s.store.MarkRead(ctx, ids)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publish(ctx, "", changefeed.OpUpdate)
	}
	return n, nil
}

func (s *ChatService) CountUnread(ctx context.Context, userID string) (int64, error) {
	if userID = strings.TrimSpace(userID); userID == "" {
		return 0, ErrUserRequired
	}
	return s.store.Count(ctx, models.MessageQuery{ReceiverID: userID, Unread: true})
}

func (s *ChatService) CountUnreadForListing(ctx context.Context, listingID, userID string) (int64, error) {
	if userID = strings.TrimSpace(userID); userID == "" {
		return 0, ErrUserRequired
	}
	return s.store.Count(ctx, models.MessageQuery{ListingID: listingID, ReceiverID: userID, Unread: true})
}

// ChatListingIDs returns the listings userID has sent or received messages on.
func (s *ChatService) ChatListingIDs(ctx context.Context, userID string) ([]string, error) {
	if userID = strings.TrimSpace(userID); userID == "" {
		return nil, ErrUserRequired
	}
	var sent, received []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sent, err = s.store.DistinctListingIDs(gctx, models.MessageQuery{SenderID: userID})
		return err
	})
	g.Go(func() error {
		var err error
		received, err = s.store.DistinctListingIDs(gctx, models.MessageQuery{ReceiverID: userID})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(sent)+len(received))
	out := make([]string, 0, len(sent)+len(received))
	for _, id := range append(sent, received...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Counts returns the message part of the dashboard counts.
func (s *ChatService) Counts(ctx context.Context) (total, unread int64, err error) {
	if total, err = s.store.Count(ctx, models.MessageQuery{}); err != nil {
		return
	}
	unread, err = s.store.Count(ctx, models.MessageQuery{Unread: true})
	return
}

func (s *ChatService) publish(ctx context.Context, id string, op changefeed.Op) {
	if err := s.changes.Publish(ctx, changefeed.NewChange(store.MessagesCollection, id, op)); err != nil {
		slog.Warn("publish message change failed", "message_id", id, "op", op, "error", err)
	}
}
