package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AnshRaj112/bazaar-backend/internal/changefeed"
	"github.com/AnshRaj112/bazaar-backend/internal/models"
	"github.com/AnshRaj112/bazaar-backend/internal/store"
	"golang.org/x/sync/errgroup"
)

const DefaultDashboardRefresh = 30 * time.Second

// LiveService opens snapshot subscriptions for the pages of the marketplace.
// Every view is scoped by the ids passed in; nothing is read from ambient state.
type LiveService struct {
	listings *ListingService
	chats    *ChatService
	hub      *changefeed.Hub
	cache    *CacheService
	refresh  time.Duration
}

func NewLiveService(listings *ListingService, chats *ChatService, hub *changefeed.Hub, cache *CacheService, refresh time.Duration) *LiveService {
	if refresh <= 0 {
		refresh = DefaultDashboardRefresh
	}
	return &LiveService{listings: listings, chats: chats, hub: hub, cache: cache, refresh: refresh}
}

// Browse streams the active listings, newest first.
func (s *LiveService) Browse(ctx context.Context) *changefeed.Subscription[[]models.Listing] {
	return changefeed.Watch(ctx, s.hub, s.listings.ListActive, store.ListingsCollection)
}

func (s *LiveService) MyListings(ctx context.Context, ownerID string) *changefeed.Subscription[[]models.Listing] {
	return changefeed.Watch(ctx, s.hub, func(ctx context.Context) ([]models.Listing, error) {
		return s.listings.ListByOwner(ctx, ownerID)
	}, store.ListingsCollection)
}

// Listing streams one listing; the snapshot is nil while it does not exist.
func (s *LiveService) Listing(ctx context.Context, id string) *changefeed.Subscription[*models.Listing] {
	return changefeed.Watch(ctx, s.hub, func(ctx context.Context) (*models.Listing, error) {
		return s.listings.Get(ctx, id)
	}, store.ListingsCollection)
}

func (s *LiveService) Pending(ctx context.Context) *changefeed.Subscription[[]PendingItem] {
	return changefeed.Watch(ctx, s.hub, s.listings.ModerationQueue, store.ListingsCollection)
}

func (s *LiveService) AllListings(ctx context.Context) *changefeed.Subscription[[]models.Listing] {
	return changefeed.Watch(ctx, s.hub, s.listings.ListAll, store.ListingsCollection)
}

// Conversation streams the chat on a listing as seen by userID.
func (s *LiveService) Conversation(ctx context.Context, listingID, userID, otherID string) *changefeed.Subscription[models.ChatView] {
	return changefeed.Watch(ctx, s.hub, func(ctx context.Context) (models.ChatView, error) {
		msgs, err := s.chats.Messages(ctx, listingID, userID, otherID)
		if err != nil {
			return models.ChatView{}, err
		}
		return models.NewChatView(listingID, userID, otherID, msgs), nil
	}, store.MessagesCollection)
}

// MyChats resolves userID's conversations once, then follows each of them and
// streams the merged overview, most recent conversation first.
func (s *LiveService) MyChats(ctx context.Context, userID string) *changefeed.Subscription[[]models.ChatSummary] {
	return changefeed.Start(ctx, func(ctx context.Context, emit changefeed.Emitter[[]models.ChatSummary]) {
		ids, err := s.chats.ChatListingIDs(ctx, userID)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("load chat listing ids failed", "user_id", userID, "error", err)
			}
			<-ctx.Done()
			return
		}
		if len(ids) == 0 {
			emit([]models.ChatSummary{})
		}

		type update struct {
			listingID string
			msgs      []models.Message
		}
		updates := make(chan update)
		subs := make([]*changefeed.Subscription[[]models.Message], 0, len(ids))
		var wg sync.WaitGroup
		defer func() {
			for _, sub := range subs {
				sub.Cancel()
			}
			wg.Wait()
		}()

		for _, id := range ids {
			listingID := id
			sub := changefeed.Watch(ctx, s.hub, func(ctx context.Context) ([]models.Message, error) {
				return s.chats.Messages(ctx, listingID, userID, "")
			}, store.MessagesCollection)
			subs = append(subs, sub)

			wg.Add(1)
			go func() {
				defer wg.Done()
				for msgs := range sub.C {
					select {
					case updates <- update{listingID: listingID, msgs: msgs}:
					case <-ctx.Done():
						return
					}
				}
			}()
		}

		views := make(map[string]models.ChatView, len(ids))
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-updates:
				views[u.listingID] = models.NewChatView(u.listingID, userID, "", u.msgs)
				emit(summarize(views, userID))
			}
		}
	})
}

func summarize(views map[string]models.ChatView, userID string) []models.ChatSummary {
	out := make([]models.ChatSummary, 0, len(views))
	for _, v := range views {
		out = append(out, v.Summary(userID))
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := lastAt(out[i]), lastAt(out[j])
		if ti != tj {
			return ti > tj
		}
		return out[i].ListingID < out[j].ListingID
	})
	return out
}

func lastAt(s models.ChatSummary) int64 {
	if s.LastMessage == nil {
		return 0
	}
	return s.LastMessage.Timestamp
}

// DashboardCounts returns the cached counts, computing them on a miss.
func (s *LiveService) DashboardCounts(ctx context.Context) (models.DashboardCounts, error) {
	var counts models.DashboardCounts
	if ok, err := s.cache.Get(ctx, DashboardCacheKey, &counts); err != nil {
		slog.Warn("dashboard cache read failed", "error", err)
	} else if ok {
		return counts, nil
	}
	return s.freshCounts(ctx)
}

func (s *LiveService) freshCounts(ctx context.Context) (models.DashboardCounts, error) {
	var c models.DashboardCounts
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		c.Total, c.Pending, c.Active, c.Rejected, err = s.listings.Counts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		c.Messages, c.UnreadMessages, err = s.chats.Counts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.DashboardCounts{}, err
	}
	if err := s.cache.Set(ctx, DashboardCacheKey, c, s.refresh); err != nil {
		slog.Warn("dashboard cache write failed", "error", err)
	}
	return c, nil
}

// Dashboard streams the counts on a timer and whenever listings or messages change.
func (s *LiveService) Dashboard(ctx context.Context) *changefeed.Subscription[models.DashboardCounts] {
	signal, unsubscribe := s.hub.Subscribe(store.ListingsCollection, store.MessagesCollection)
	return changefeed.Start(ctx, func(ctx context.Context, emit changefeed.Emitter[models.DashboardCounts]) {
		defer unsubscribe()
		ticker := time.NewTicker(s.refresh)
		defer ticker.Stop()

		load := func(fresh bool) {
			var (
				c   models.DashboardCounts
				err error
			)
			if fresh {
				c, err = s.freshCounts(ctx)
			} else {
				c, err = s.DashboardCounts(ctx)
			}
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("dashboard counts failed", "error", err)
				}
				return
			}
			emit(c)
		}

		load(false)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				load(true)
			case <-signal:
				load(true)
			}
		}
	})
}

// InvalidateOnChange drops the cached dashboard counts whenever listings or
// messages change, until ctx ends.
func (s *LiveService) InvalidateOnChange(ctx context.Context) {
	signal, unsubscribe := s.hub.Subscribe(store.ListingsCollection, store.MessagesCollection)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-signal:
			if err := s.cache.Delete(ctx, DashboardCacheKey); err != nil && ctx.Err() == nil {
				slog.Warn("dashboard cache invalidation failed", "error", err)
			}
		}
	}
}
