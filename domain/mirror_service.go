package domain

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MirrorStorage defines the writes of a shape-agnostic replica handler.
type MirrorStorage interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	UpsertDocument(ctx context.Context, coll string, id primitive.ObjectID, doc bson.M) error
	DeleteDocument(ctx context.Context, coll string, id primitive.ObjectID) error
}

// MirrorService replicates a collection verbatim, without any projection
// writes. Used for schedules and notifications, whose documents are opaque
// to the directory.
type MirrorService struct {
	st   MirrorStorage
	coll string
}

func NewMirrorService(st MirrorStorage, coll string) MirrorService {
	return MirrorService{st: st, coll: coll}
}

func (s MirrorService) Apply(ctx context.Context, ch Change) error {
	switch ch.Op {
	case OpInsert, OpUpdate:
		var doc bson.M
		if err := ch.DecodeDoc(&doc); err != nil {
			return err
		}
		var key DocumentKey
		if err := ch.DecodeDoc(&key); err != nil {
			return err
		}
		return s.st.InTransaction(ctx, func(ctx context.Context) error {
			return s.st.UpsertDocument(ctx, s.coll, key.ID, doc)
		})
	case OpDelete:
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			return s.st.DeleteDocument(ctx, s.coll, ch.Key)
		})
		if errors.Is(err, ErrNotFound) {
			log.WithFields(log.Fields{"collection": s.coll, "id": ch.Key.Hex()}).Error("document not found for delete")
			return nil
		}
		return err
	default:
		log.WithFields(log.Fields{"collection": s.coll, "operation": ch.Op}).Warn("unhandled operation")
		return nil
	}
}
