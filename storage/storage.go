package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"profession-sync/domain"
)

// Collection holding the FindProfession projection documents.
const collProfiles = "findprofessions"

// Store wraps the Mongo client used for the replica collections and the
// profile projection. Every handler write goes through a session so replica
// and projection never diverge.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to Mongo and pings the primary; the caller treats a failure
// here as fatal.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Client exposes the underlying mongo client for the change stream watcher.
func (s *Store) Client() *mongo.Client { return s.client }

// Database returns the database handle the store writes to.
func (s *Store) Database() *mongo.Database { return s.db }

// InTransaction runs fn inside a session transaction. Writes issued with
// the callback context join the transaction; any error aborts it.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *Store) upsertByID(ctx context.Context, coll string, id primitive.ObjectID, doc any) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(coll).ReplaceOne(ctx, bson.M{"_id": id}, doc, opts)
	return err
}

func (s *Store) replaceByID(ctx context.Context, coll string, id primitive.ObjectID, doc any) error {
	res, err := s.db.Collection(coll).ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) deleteByID(ctx context.Context, coll string, id primitive.ObjectID) error {
	res, err := s.db.Collection(coll).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// takeByID deletes the document and decodes what was removed, for handlers
// that need the prior state of a deleted entity.
func (s *Store) takeByID(ctx context.Context, coll string, id primitive.ObjectID, out any) error {
	err := s.db.Collection(coll).FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	return err
}

// UpsertDocument mirrors an opaque source document by id.
func (s *Store) UpsertDocument(ctx context.Context, coll string, id primitive.ObjectID, doc bson.M) error {
	return s.upsertByID(ctx, coll, id, doc)
}

// DeleteDocument removes a mirrored document.
func (s *Store) DeleteDocument(ctx context.Context, coll string, id primitive.ObjectID) error {
	return s.deleteByID(ctx, coll, id)
}
