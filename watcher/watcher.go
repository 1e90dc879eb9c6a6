package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"profession-sync/domain"
)

// Options narrows what the watcher observes. When Collections is non-empty
// it wins and DeniedCollections is ignored.
type Options struct {
	Collections       []string
	DeniedCollections []string
	MaxAwaitTime      time.Duration
}

// OnChange receives each decoded change event. Errors are logged and the
// stream continues; a failing callback never stops capture.
type OnChange func(ctx context.Context, ev domain.ChangeEvent) error

// Watcher tails a database-level change stream and feeds decoded events to
// a callback. Filtering happens server-side in the stream pipeline so
// excluded collections never cross the wire.
type Watcher struct {
	db   *mongo.Database
	opts Options

	mu     sync.Mutex
	stream *mongo.ChangeStream
}

func New(db *mongo.Database, opts Options) *Watcher {
	if opts.MaxAwaitTime <= 0 {
		opts.MaxAwaitTime = time.Second
	}
	return &Watcher{db: db, opts: opts}
}

func (w *Watcher) pipeline() mongo.Pipeline {
	match := bson.D{{Key: "operationType", Value: bson.M{"$in": []domain.Operation{
		domain.OpInsert, domain.OpUpdate, domain.OpDelete, domain.OpReplace,
	}}}}
	if len(w.opts.Collections) > 0 {
		match = append(match, bson.E{Key: "ns.coll", Value: bson.M{"$in": w.opts.Collections}})
	} else if len(w.opts.DeniedCollections) > 0 {
		match = append(match, bson.E{Key: "ns.coll", Value: bson.M{"$nin": w.opts.DeniedCollections}})
	}
	return mongo.Pipeline{{{Key: "$match", Value: match}}}
}

// Start opens the change stream and blocks, delivering events until the
// context is canceled or the stream dies. The stream error on exit is
// returned for the caller to log; reconnecting is the process supervisor's
// job, not the watcher's.
func (w *Watcher) Start(ctx context.Context, onChange OnChange) error {
	streamOpts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetMaxAwaitTime(w.opts.MaxAwaitTime)

	stream, err := w.db.Watch(ctx, w.pipeline(), streamOpts)
	if err != nil {
		return fmt.Errorf("open change stream: %w", err)
	}
	w.mu.Lock()
	w.stream = stream
	w.mu.Unlock()

	log.WithFields(log.Fields{
		"database": w.db.Name(),
		"allow":    w.opts.Collections,
		"deny":     w.opts.DeniedCollections,
	}).Info("change stream open")

	for stream.Next(ctx) {
		var ev domain.ChangeEvent
		if err := stream.Decode(&ev); err != nil {
			log.WithError(err).Error("decode change event")
			continue
		}
		log.WithFields(log.Fields{
			"operation":  ev.OperationType,
			"collection": ev.NS.Coll,
			"id":         ev.DocumentKey.ID.Hex(),
		}).Debug("change captured")
		if err := onChange(ctx, ev); err != nil {
			log.WithError(err).WithField("collection", ev.NS.Coll).Error("handle change")
		}
	}

	err = stream.Err()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop closes the underlying stream. Safe to call more than once and before
// Start.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	stream := w.stream
	w.stream = nil
	w.mu.Unlock()
	if stream == nil {
		return nil
	}
	return stream.Close(ctx)
}
