package changefeed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoWatcher relays a database change stream into the hub. Change streams
// need a replica set or sharded cluster.
type MongoWatcher struct {
	hub         *Hub
	name        string
	collections []string
	watch       func(ctx context.Context, opts *options.ChangeStreamOptions) (changeStream, error)
}

// changeStream is the part of *mongo.ChangeStream the watcher reads.
type changeStream interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	ResumeToken() bson.Raw
	Err() error
	Close(ctx context.Context) error
}

// NewMongoWatcher watches db. When the stream cannot resume, every watcher
// of collections is told to re-query.
func NewMongoWatcher(db *mongo.Database, hub *Hub, collections ...string) *MongoWatcher {
	return &MongoWatcher{
		hub:         hub,
		name:        db.Name(),
		collections: collections,
		watch: func(ctx context.Context, opts *options.ChangeStreamOptions) (changeStream, error) {
			stream, err := db.Watch(ctx, streamPipeline, opts)
			if err != nil {
				return nil, err
			}
			return stream, nil
		},
	}
}

type streamEvent struct {
	OperationType string `bson:"operationType"`
	NS            struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
	DocumentKey struct {
		ID interface{} `bson:"_id"`
	} `bson:"documentKey"`
}

var streamPipeline = mongo.Pipeline{
	{{Key: "$match", Value: bson.D{{Key: "operationType", Value: bson.D{
		{Key: "$in", Value: bson.A{"insert", "update", "replace", "delete"}},
	}}}}},
}

// Server error codes meaning the saved resume token can no longer be used.
var resumeLostCodes = []int{
	136, // CappedPositionLost
	260, // InvalidResumeToken
	280, // ChangeStreamFatalError
	286, // ChangeStreamHistoryLost
}

func resumeLost(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	for _, code := range resumeLostCodes {
		if se.HasErrorCode(code) {
			return true
		}
	}
	return false
}

// Run watches until ctx ends, resuming after the last seen event on reconnect.
// If the oplog has moved past that event the stream restarts from now and
// watchers re-query, since the missed changes cannot be replayed.
func (w *MongoWatcher) Run(ctx context.Context) {
	var resume bson.Raw
	backoff := time.Second

	for ctx.Err() == nil {
		opts := options.ChangeStream()
		if resume != nil {
			opts.SetResumeAfter(resume)
		}
		stream, err := w.watch(ctx, opts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if resume != nil && resumeLost(err) {
				slog.Warn("changefeed mongo resume point lost; restarting stream", "error", err)
				resume = nil
				w.requery()
				continue
			}
			slog.Warn("changefeed mongo watch failed", "error", err, "retry_in", backoff.String())
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		slog.Info("changefeed mongo change stream started", "database", w.name)
		backoff = time.Second

		for stream.Next(ctx) {
			var ev streamEvent
			if err := stream.Decode(&ev); err != nil {
				slog.Warn("changefeed: undecodable change event", "error", err)
				continue
			}
			resume = stream.ResumeToken()
			w.hub.Broadcast(Change{
				Collection: ev.NS.Coll,
				DocumentID: documentID(ev.DocumentKey.ID),
				Op:         opFor(ev.OperationType),
				At:         time.Now().UnixMilli(),
			})
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			slog.Warn("changefeed mongo change stream ended", "error", err)
			if resumeLost(err) {
				resume = nil
				w.requery()
			}
		}
		stream.Close(context.Background())
	}
}

func (w *MongoWatcher) requery() {
	now := time.Now().UnixMilli()
	for _, c := range w.collections {
		w.hub.Broadcast(Change{Collection: c, Op: OpUpdate, At: now})
	}
}

func opFor(operationType string) Op {
	switch operationType {
	case "insert":
		return OpInsert
	case "delete":
		return OpDelete
	default:
		return OpUpdate
	}
}

func documentID(v interface{}) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	default:
		return ""
	}
}
