package domain

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserStorage defines the writes the user handler performs.
type UserStorage interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	UpsertUser(ctx context.Context, u User) error
	UpdateUser(ctx context.Context, u User) error
	DeleteUser(ctx context.Context, id primitive.ObjectID) error
	CreateProfile(ctx context.Context, p Profile) error
	UpdateProfile(ctx context.Context, sel ProfileSelector, patch ProfilePatch) error
	DeleteProfile(ctx context.Context, id primitive.ObjectID) error
}

// UserService reconciles user change events into the replica and creates,
// updates and finally deletes the owning profile projection.
type UserService struct{ st UserStorage }

func NewUserService(st UserStorage) UserService { return UserService{st: st} }

func (s UserService) Apply(ctx context.Context, ch Change) error {
	switch ch.Op {
	case OpInsert:
		var u User
		if err := ch.DecodeDoc(&u); err != nil {
			return err
		}
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			if err := s.st.UpsertUser(ctx, u); err != nil {
				return err
			}
			return s.st.CreateProfile(ctx, Profile{
				ID:       u.ID,
				Status:   u.Status,
				Username: u.Username,
				PhotoURL: u.ProfilePhotoSrc,
			})
		})
		if err != nil {
			return err
		}
		log.WithField("user", u.ID.Hex()).Info("user created")
		return nil
	case OpUpdate:
		var u User
		if err := ch.DecodeDoc(&u); err != nil {
			return err
		}
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			if err := s.st.UpdateUser(ctx, u); err != nil {
				return err
			}
			patch := ProfilePatch{Set: bson.M{}}
			if u.Username != "" {
				patch.Set["username"] = u.Username
			}
			if u.Status != "" {
				patch.Set["status"] = u.Status
			}
			if u.ProfilePhotoSrc != "" {
				patch.Set["photo_url"] = u.ProfilePhotoSrc
			}
			if patch.Empty() {
				return nil
			}
			if err := s.st.UpdateProfile(ctx, ProfileByID(u.ID), patch); err != nil {
				if errors.Is(err, ErrNotFound) {
					log.WithField("user", u.ID.Hex()).Warn("no profile for user update")
					return nil
				}
				return err
			}
			return nil
		})
		if errors.Is(err, ErrNotFound) {
			log.WithField("user", u.ID.Hex()).Error("user not found for update")
			return nil
		}
		return err
	case OpDelete:
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			if err := s.st.DeleteUser(ctx, ch.Key); err != nil {
				return err
			}
			if err := s.st.DeleteProfile(ctx, ch.Key); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			return nil
		})
		if errors.Is(err, ErrNotFound) {
			log.WithField("user", ch.Key.Hex()).Error("user not found for delete")
			return nil
		}
		if err == nil {
			log.WithField("user", ch.Key.Hex()).Info("user deleted")
		}
		return err
	default:
		log.WithField("operation", ch.Op).Warn("unhandled user operation")
		return nil
	}
}
