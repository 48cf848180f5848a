package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/AnshRaj112/bazaar-backend/internal/models"
)

// ModerationLog records admin actions on listings.
type ModerationLog interface {
	Record(ctx context.Context, e models.ModerationEvent) error
	// List returns events newest first. An empty listingID returns all events.
	List(ctx context.Context, listingID string, limit int) ([]models.ModerationEvent, error)
}

// PostgresModerationLog appends to the moderation_events table.
type PostgresModerationLog struct {
	db *sql.DB
}

func NewPostgresModerationLog(db *sql.DB) *PostgresModerationLog {
	return &PostgresModerationLog{db: db}
}

func (l *PostgresModerationLog) Record(ctx context.Context, e models.ModerationEvent) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO moderation_events (listing_id, action, admin, reason) VALUES ($1, $2, $3, $4)`,
		e.ListingID, e.Action, e.Admin, e.Reason,
	)
	if err != nil {
		return fmt.Errorf("record moderation event: %w", err)
	}
	return nil
}

func (l *PostgresModerationLog) List(ctx context.Context, listingID string, limit int) ([]models.ModerationEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, listing_id, action, admin, COALESCE(reason, ''), created_at
		 FROM moderation_events
		 WHERE ($1 = '' OR listing_id = $1)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		listingID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query moderation events: %w", err)
	}
	defer rows.Close()

	events := make([]models.ModerationEvent, 0)
	for rows.Next() {
		var (
			e       models.ModerationEvent
			created time.Time
		)
		if err := rows.Scan(&e.ID, &e.ListingID, &e.Action, &e.Admin, &e.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan moderation event: %w", err)
		}
		e.CreatedAt = models.Millis(created)
		events = append(events, e)
	}
	return events, rows.Err()
}

// MemoryModerationLog keeps events in process. Used when no Postgres is configured.
type MemoryModerationLog struct {
	mu     sync.Mutex
	nextID int64
	events []models.ModerationEvent
}

func NewMemoryModerationLog() *MemoryModerationLog {
	return &MemoryModerationLog{}
}

func (l *MemoryModerationLog) Record(ctx context.Context, e models.ModerationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	e.ID = l.nextID
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	l.events = append(l.events, e)
	return nil
}

func (l *MemoryModerationLog) List(ctx context.Context, listingID string, limit int) ([]models.ModerationEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.ModerationEvent, 0)
	for i := len(l.events) - 1; i >= 0; i-- {
		e := l.events[i]
		if listingID != "" && e.ListingID != listingID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
