package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AnshRaj112/bazaar-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-process document store with the same semantics as the Mongo
// backend. Timestamps come from a clock that never goes backwards.
type Memory struct {
	mu       sync.RWMutex
	lastTick int64
	listings map[string]models.Listing
	messages map[string]models.Message

	Listings *MemoryListings
	Messages *MemoryMessages
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	m := &Memory{
		listings: make(map[string]models.Listing),
		messages: make(map[string]models.Message),
	}
	m.Listings = &MemoryListings{m: m}
	m.Messages = &MemoryMessages{m: m}
	return m
}

// tick must be called with mu held for writing.
func (m *Memory) tick() int64 {
	now := time.Now().UnixMilli()
	if now <= m.lastTick {
		now = m.lastTick + 1
	}
	m.lastTick = now
	return now
}

// MemoryListings is the ListingStore view of a Memory store.
type MemoryListings struct{ m *Memory }

func (s *MemoryListings) Insert(ctx context.Context, l models.Listing) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	l.ID = primitive.NewObjectID().Hex()
	l.Images = append([]string(nil), l.Images...)
	l.CreatedAt = s.m.tick()
	l.UpdatedAt = l.CreatedAt
	s.m.listings[l.ID] = l
	return l.ID, nil
}

func (s *MemoryListings) Get(ctx context.Context, id string) (*models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	l, ok := s.m.listings[id]
	if !ok {
		return nil, nil
	}
	l.Images = append([]string(nil), l.Images...)
	return &l, nil
}

func (s *MemoryListings) List(ctx context.Context, q models.ListingQuery) ([]models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.m.mu.RLock()
	out := make([]models.Listing, 0)
	for _, l := range s.m.listings {
		if matchListing(l, q) {
			l.Images = append([]string(nil), l.Images...)
			out = append(out, l)
		}
	}
	s.m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}

func (s *MemoryListings) Update(ctx context.Context, id string, p models.ListingPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	l, ok := s.m.listings[id]
	if !ok {
		return nil
	}
	p.Apply(&l)
	l.UpdatedAt = s.m.tick()
	s.m.listings[id] = l
	return nil
}

func (s *MemoryListings) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.m.mu.Lock()
	delete(s.m.listings, id)
	s.m.mu.Unlock()
	return nil
}

func (s *MemoryListings) Count(ctx context.Context, q models.ListingQuery) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var n int64
	for _, l := range s.m.listings {
		if matchListing(l, q) {
			n++
		}
	}
	return n, nil
}

func matchListing(l models.Listing, q models.ListingQuery) bool {
	if q.Status != "" && l.Status != q.Status {
		return false
	}
	if q.OwnerID != "" && l.UserID != q.OwnerID {
		return false
	}
	return true
}

// MemoryMessages is the MessageStore view of a Memory store.
type MemoryMessages struct{ m *Memory }

func (s *MemoryMessages) Insert(ctx context.Context, msg models.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	msg.ID = primitive.NewObjectID().Hex()
	msg.Timestamp = s.m.tick()
	msg.Read = false
	s.m.messages[msg.ID] = msg
	return msg.ID, nil
}

func (s *MemoryMessages) List(ctx context.Context, q models.MessageQuery) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.m.mu.RLock()
	out := make([]models.Message, 0)
	for _, msg := range s.m.messages {
		if matchMessage(msg, q) {
			out = append(out, msg)
		}
	}
	s.m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp == out[j].Timestamp {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

func (s *MemoryMessages) MarkRead(ctx context.Context, ids []string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for _, id := range ids {
		msg, ok := s.m.messages[id]
		if !ok || msg.Read {
			continue
		}
		msg.Read = true
		s.m.messages[id] = msg
		n++
	}
	return n, nil
}

func (s *MemoryMessages) Count(ctx context.Context, q models.MessageQuery) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var n int64
	for _, msg := range s.m.messages {
		if matchMessage(msg, q) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryMessages) DistinctListingIDs(ctx context.Context, q models.MessageQuery) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, msg := range s.m.messages {
		if !matchMessage(msg, q) {
			continue
		}
		if _, ok := seen[msg.ListingID]; ok {
			continue
		}
		seen[msg.ListingID] = struct{}{}
		out = append(out, msg.ListingID)
	}
	sort.Strings(out)
	return out, nil
}

func matchMessage(msg models.Message, q models.MessageQuery) bool {
	if q.ListingID != "" && msg.ListingID != q.ListingID {
		return false
	}
	if q.SenderID != "" && msg.SenderID != q.SenderID {
		return false
	}
	if q.ReceiverID != "" && msg.ReceiverID != q.ReceiverID {
		return false
	}
	if q.Participant != "" && !msg.HasParticipant(q.Participant) {
		return false
	}
	if q.Unread && msg.Read {
		return false
	}
	return true
}
