// Package changefeed turns store writes into live snapshot streams.
//
// Writers announce a Change for a collection. A Hub fans changes out to local
// watchers, and each watcher re-runs its query and delivers the complete result.
// Changes reach the Hub either directly (single instance), through Redis pub/sub
// (several instances) or from a Mongo change stream.
package changefeed

import (
	"context"
	"time"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change announces that a document in a collection was written.
type Change struct {
	Collection string `json:"collection"`
	DocumentID string `json:"document_id,omitempty"`
	Op         Op     `json:"op"`
	At         int64  `json:"at"`
}

// NewChange stamps a change with the current time.
func NewChange(collection, documentID string, op Op) Change {
	return Change{Collection: collection, DocumentID: documentID, Op: op, At: time.Now().UnixMilli()}
}

// Publisher announces changes made by this process.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Discard drops published changes. Used when the store itself pushes changes,
// as with a Mongo change stream.
type Discard struct{}

func (Discard) Publish(context.Context, Change) error { return nil }
