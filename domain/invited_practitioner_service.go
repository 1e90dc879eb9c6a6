package domain

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InvitedPractitionerStorage defines the writes the invited practitioner
// handler performs.
type InvitedPractitionerStorage interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	UpsertInvitedPractitioner(ctx context.Context, ip InvitedPractitioner) error
	UpdateInvitedPractitioner(ctx context.Context, ip InvitedPractitioner) error
	DeleteInvitedPractitioner(ctx context.Context, id primitive.ObjectID) (*InvitedPractitioner, error)
	SetUserInvitedPractitioner(ctx context.Context, userID primitive.ObjectID, invited *primitive.ObjectID) error
}

// InvitedPractitionerService mirrors invited practitioner documents and
// maintains the user cross-link once an invite is tied to an account.
type InvitedPractitionerService struct{ st InvitedPractitionerStorage }

func NewInvitedPractitionerService(st InvitedPractitionerStorage) InvitedPractitionerService {
	return InvitedPractitionerService{st: st}
}

func (s InvitedPractitionerService) Apply(ctx context.Context, ch Change) error {
	switch ch.Op {
	case OpInsert:
		var ip InvitedPractitioner
		if err := ch.DecodeDoc(&ip); err != nil {
			return err
		}
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			return s.st.UpsertInvitedPractitioner(ctx, ip)
		})
		if err == nil {
			log.WithField("invited_practitioner", ip.ID.Hex()).Info("invited practitioner created")
		}
		return err
	case OpUpdate:
		var ip InvitedPractitioner
		if err := ch.DecodeDoc(&ip); err != nil {
			return err
		}
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			if err := s.st.UpdateInvitedPractitioner(ctx, ip); err != nil {
				return err
			}
			if ip.User == nil {
				return nil
			}
			return s.st.SetUserInvitedPractitioner(ctx, *ip.User, &ip.ID)
		})
		if errors.Is(err, ErrNotFound) {
			log.WithField("invited_practitioner", ip.ID.Hex()).Error("invited practitioner or user not found for update")
			return nil
		}
		return err
	case OpDelete:
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			ip, err := s.st.DeleteInvitedPractitioner(ctx, ch.Key)
			if err != nil {
				return err
			}
			if ip.User == nil {
				return nil
			}
			if err := s.st.SetUserInvitedPractitioner(ctx, *ip.User, nil); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			return nil
		})
		if errors.Is(err, ErrNotFound) {
			log.WithField("invited_practitioner", ch.Key.Hex()).Error("invited practitioner not found for delete")
			return nil
		}
		return err
	default:
		log.WithField("operation", ch.Op).Warn("unhandled invited practitioner operation")
		return nil
	}
}
