package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/AnshRaj112/bazaar-backend/internal/changefeed"
	"github.com/AnshRaj112/bazaar-backend/internal/models"
	"github.com/AnshRaj112/bazaar-backend/internal/store"
)

// Actor is the identity behind a write. Identities are asserted by the caller,
// not verified.
type Actor struct {
	UserID  string
	IsAdmin bool
	// Name labels admin actions in the audit log.
	Name string
}

// Admin returns the actor for an admin session.
func Admin(name string) Actor {
	return Actor{IsAdmin: true, Name: name}
}

type ListingService struct {
	store   store.ListingStore
	changes changefeed.Publisher
	audit   store.ModerationLog
}

func NewListingService(s store.ListingStore, changes changefeed.Publisher, audit store.ModerationLog) *ListingService {
	if changes == nil {
		changes = changefeed.Discard{}
	}
	if audit == nil {
		audit = store.NewMemoryModerationLog()
	}
	return &ListingService{store: s, changes: changes, audit: audit}
}

// ListAll returns every listing, newest first.
func (s *ListingService) ListAll(ctx context.Context) ([]models.Listing, error) {
	return s.store.List(ctx, models.ListingQuery{})
}

func (s *ListingService) ListActive(ctx context.Context) ([]models.Listing, error) {
	return s.store.List(ctx, models.ListingQuery{Status: models.StatusActive})
}

func (s *ListingService) ListByOwner(ctx context.Context, ownerID string) ([]models.Listing, error) {
	return s.store.List(ctx, models.ListingQuery{OwnerID: ownerID})
}

func (s *ListingService) ListPending(ctx context.Context) ([]models.Listing, error) {
	return s.store.List(ctx, models.ListingQuery{Status: models.StatusPending})
}

// ModerationQueue is the pending list with screening flags attached.
func (s *ListingService) ModerationQueue(ctx context.Context) ([]PendingItem, error) {
	pending, err := s.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	return withFlags(pending), nil
}

// Get returns nil when the listing does not exist.
func (s *ListingService) Get(ctx context.Context, id string) (*models.Listing, error) {
	return s.store.Get(ctx, id)
}

// Create stores a new listing in the pending state.
func (s *ListingService) Create(ctx context.Context, in models.ListingInput) (*models.Listing, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return nil, ErrOwnerRequired
	}
	images := in.Images
	if images == nil {
		images = []string{}
	}
	l := models.Listing{
		Title:         in.Title,
		Description:   in.Description,
		Price:         in.Price,
		CategoryID:    in.CategoryID,
		SubcategoryID: in.SubcategoryID,
		Images:        images,
		UserID:        in.UserID,
		Status:        models.StatusPending,
		Contact:       in.Contact,
	}
	id, err := s.store.Insert(ctx, l)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, id, changefeed.OpInsert)

	created, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if created == nil {
		// deleted before we could read it back
		l.ID = id
		return &l, nil
	}
	return created, nil
}

// Update applies patch and returns the stored result, or nil when the listing
// does not exist. The owner can never be changed. Edits by anyone but an admin
// send the listing back to pending; an owner may clear a rejection reason but
// not set one.
func (s *ListingService) Update(ctx context.Context, actor Actor, id string, patch models.ListingPatch) (*models.Listing, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}
	if !actor.IsAdmin && current.UserID != actor.UserID {
		return nil, ErrForbidden
	}

	patch.UserID = nil
	status := models.StatusAfterEdit(current.Status, actor.IsAdmin, patch.Status)
	patch.Status = &status

	if actor.IsAdmin {
		reason := current.RejectionReason
		if patch.RejectionReason != nil {
			reason = strings.TrimSpace(*patch.RejectionReason)
		}
		switch status {
		case models.StatusRejected:
			if reason == "" {
				return nil, ErrReasonRequired
			}
		case models.StatusActive:
			reason = ""
		}
		patch.RejectionReason = &reason
	} else if patch.RejectionReason != nil && *patch.RejectionReason != "" {
		patch.RejectionReason = nil
	}

	if err := s.store.Update(ctx, id, patch); err != nil {
		return nil, err
	}
	s.publish(ctx, id, changefeed.OpUpdate)
	if actor.IsAdmin {
		s.record(ctx, actor, id, models.ActionEdit, "")
	}
	return s.store.Get(ctx, id)
}

// Delete removes the listing. A missing listing is not an error and still
// reports success. Non-admins may only delete their own listings.
func (s *ListingService) Delete(ctx context.Context, actor Actor, id string) (bool, error) {
	if !actor.IsAdmin {
		current, err := s.store.Get(ctx, id)
		if err != nil {
			return false, err
		}
		if current != nil && current.UserID != actor.UserID {
			return false, ErrForbidden
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return false, err
	}
	s.publish(ctx, id, changefeed.OpDelete)
	if actor.IsAdmin {
		s.record(ctx, actor, id, models.ActionDelete, "")
	}
	return true, nil
}

// Approve activates the listing and clears any rejection reason, whatever its
// current state.
func (s *ListingService) Approve(ctx context.Context, admin Actor, id string) (*models.Listing, error) {
	status := models.StatusActive
	reason := ""
	if err := s.store.Update(ctx, id, models.ListingPatch{Status: &status, RejectionReason: &reason}); err != nil {
		return nil, err
	}
	return s.moderated(ctx, admin, id, models.ActionApprove, "")
}

// Reject marks the listing rejected with reason, which must not be blank.
// The reason is stored as given.
func (s *ListingService) Reject(ctx context.Context, admin Actor, id, reason string) (*models.Listing, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	status := models.StatusRejected
	if err := s.store.Update(ctx, id, models.ListingPatch{Status: &status, RejectionReason: &reason}); err != nil {
		return nil, err
	}
	return s.moderated(ctx, admin, id, models.ActionReject, reason)
}

// ModerationLog returns audit entries, newest first.
func (s *ListingService) ModerationLog(ctx context.Context, listingID string, limit int) ([]models.ModerationEvent, error) {
	return s.audit.List(ctx, listingID, limit)
}

// Counts returns the listing part of the dashboard counts.
func (s *ListingService) Counts(ctx context.Context) (total, pending, active, rejected int64, err error) {
	if total, err = s.store.Count(ctx, models.ListingQuery{}); err != nil {
		return
	}
	if pending, err = s.store.Count(ctx, models.ListingQuery{Status: models.StatusPending}); err != nil {
		return
	}
	if active, err = s.store.Count(ctx, models.ListingQuery{Status: models.StatusActive}); err != nil {
		return
	}
	rejected, err = s.store.Count(ctx, models.ListingQuery{Status: models.StatusRejected})
	return
}

// moderated announces an admin status change and audits it if the listing exists.
func (s *ListingService) moderated(ctx context.Context, admin Actor, id, action, reason string) (*models.Listing, error) {
	s.publish(ctx, id, changefeed.OpUpdate)
	l, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l != nil {
		s.record(ctx, admin, id, action, reason)
	}
	return l, nil
}

func (s *ListingService) publish(ctx context.Context, id string, op changefeed.Op) {
	if err := s.changes.Publish(ctx, changefeed.NewChange(store.ListingsCollection, id, op)); err != nil {
		slog.Warn("publish listing change failed", "listing_id", id, "op", op, "error", err)
	}
}

// record failures are logged; the moderation action itself already happened.
func (s *ListingService) record(ctx context.Context, admin Actor, id, action, reason string) {
	name := admin.Name
	if name == "" {
		name = "admin"
	}
	err := s.audit.Record(ctx, models.ModerationEvent{ListingID: id, Action: action, Admin: name, Reason: reason})
	if err != nil {
		slog.Error("record moderation event failed", "listing_id", id, "action", action, "error", err)
	}
}
