package domain

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PractitionerStorage defines the writes the practitioner handler performs.
type PractitionerStorage interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	UpsertPractitioner(ctx context.Context, p Practitioner) error
	UpdatePractitioner(ctx context.Context, p Practitioner) error
	DeletePractitioner(ctx context.Context, id primitive.ObjectID) (*Practitioner, error)
	GetUser(ctx context.Context, id primitive.ObjectID) (*User, error)
	SetUserPractitioner(ctx context.Context, userID primitive.ObjectID, prac *primitive.ObjectID) error
	UnlinkUserPractitioner(ctx context.Context, pracID primitive.ObjectID) error
	UpdateProfile(ctx context.Context, sel ProfileSelector, patch ProfilePatch) error
}

// PractitionerService reconciles practitioner change events. The profile's
// type flips to Practitioner only when the user has no organization, so an
// organization profile is never demoted by a late practitioner event.
type PractitionerService struct{ st PractitionerStorage }

func NewPractitionerService(st PractitionerStorage) PractitionerService {
	return PractitionerService{st: st}
}

func (s PractitionerService) Apply(ctx context.Context, ch Change) error {
	switch ch.Op {
	case OpInsert:
		var p Practitioner
		if err := ch.DecodeDoc(&p); err != nil {
			return err
		}
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			if err := s.st.UpsertPractitioner(ctx, p); err != nil {
				return err
			}
			if p.User == nil {
				log.WithField("practitioner", p.ID.Hex()).Warn("practitioner has no owning user")
				return nil
			}
			user, err := s.st.GetUser(ctx, *p.User)
			if err != nil {
				return err
			}
			if err := s.st.SetUserPractitioner(ctx, *p.User, &p.ID); err != nil {
				return err
			}
			patch := ProfilePatch{Set: bson.M{
				"practitioner":      p.ID,
				"practitioner_name": p.FullName,
			}}
			if user.Organization == nil {
				patch.Set["type"] = ProfileTypePractitioner
			}
			return s.st.UpdateProfile(ctx, ProfileByID(*p.User), patch)
		})
		if errors.Is(err, ErrNotFound) {
			log.WithField("practitioner", p.ID.Hex()).Error("owning user or profile missing for practitioner create")
			return nil
		}
		if err == nil {
			log.WithField("practitioner", p.ID.Hex()).Info("practitioner created")
		}
		return err
	case OpUpdate:
		var p Practitioner
		if err := ch.DecodeDoc(&p); err != nil {
			return err
		}
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			if err := s.st.UpdatePractitioner(ctx, p); err != nil {
				return err
			}
			return s.st.UpdateProfile(ctx, ProfileByOwner(&p.ID, nil), ProfilePatch{
				Set: bson.M{"practitioner_name": p.FullName},
			})
		})
		if errors.Is(err, ErrNotFound) {
			log.WithField("practitioner", p.ID.Hex()).Error("practitioner or profile not found for update")
			return nil
		}
		return err
	case OpDelete:
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			p, err := s.st.DeletePractitioner(ctx, ch.Key)
			if err != nil {
				return err
			}
			if err := s.st.UnlinkUserPractitioner(ctx, p.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			return s.st.UpdateProfile(ctx, ProfileByOwner(&p.ID, nil), ProfilePatch{
				Unset: []string{"practitioner", "practitioner_name"},
			})
		})
		if errors.Is(err, ErrNotFound) {
			log.WithField("practitioner", ch.Key.Hex()).Error("practitioner or profile not found for delete")
			return nil
		}
		if err == nil {
			log.WithField("practitioner", ch.Key.Hex()).Info("practitioner deleted")
		}
		return err
	default:
		log.WithField("operation", ch.Op).Warn("unhandled practitioner operation")
		return nil
	}
}
