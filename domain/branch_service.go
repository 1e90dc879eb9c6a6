package domain

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BranchStorage defines the writes the branch handler performs.
type BranchStorage interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	UpsertBranch(ctx context.Context, b Branch) error
	UpdateBranch(ctx context.Context, b Branch) error
	DeleteBranch(ctx context.Context, id primitive.ObjectID) error
}

// BranchService mirrors branch documents into the replica. Branches carry no
// location data themselves, so the profile projection is untouched; only
// branch info events move location fields.
type BranchService struct{ st BranchStorage }

func NewBranchService(st BranchStorage) BranchService { return BranchService{st: st} }

func (s BranchService) Apply(ctx context.Context, ch Change) error {
	switch ch.Op {
	case OpInsert, OpUpdate:
		var b Branch
		if err := ch.DecodeDoc(&b); err != nil {
			return err
		}
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			if ch.Op == OpInsert {
				return s.st.UpsertBranch(ctx, b)
			}
			return s.st.UpdateBranch(ctx, b)
		})
		if errors.Is(err, ErrNotFound) {
			log.WithField("branch", b.ID.Hex()).Error("branch not found for update")
			return nil
		}
		return err
	case OpDelete:
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			return s.st.DeleteBranch(ctx, ch.Key)
		})
		if errors.Is(err, ErrNotFound) {
			log.WithField("branch", ch.Key.Hex()).Error("branch not found for delete")
			return nil
		}
		return err
	default:
		log.WithField("operation", ch.Op).Warn("unhandled branch operation")
		return nil
	}
}
