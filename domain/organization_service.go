package domain

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrganizationStorage defines the writes the organization handler performs.
type OrganizationStorage interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	UpsertOrganization(ctx context.Context, o Organization) error
	UpdateOrganization(ctx context.Context, o Organization) error
	DeleteOrganization(ctx context.Context, id primitive.ObjectID) (*Organization, error)
	SetUserOrganization(ctx context.Context, userID primitive.ObjectID, org *primitive.ObjectID) error
	UnlinkUserOrganization(ctx context.Context, orgID primitive.ObjectID) error
	UpdateProfile(ctx context.Context, sel ProfileSelector, patch ProfilePatch) error
}

// OrganizationService reconciles organization change events: replica write,
// user cross-link, and the organization-scoped profile field group.
type OrganizationService struct{ st OrganizationStorage }

func NewOrganizationService(st OrganizationStorage) OrganizationService {
	return OrganizationService{st: st}
}

func orgProfilePatch(o Organization) ProfilePatch {
	return ProfilePatch{
		Set: bson.M{
			"type":         ProfileTypeOrganization,
			"organization": o.ID,
			"org_name":     o.FullName,
			"business_url": o.BusinessURL,
			"org_category": o.Category,
		},
		AddToSet: map[string][]string{"org_sub_category": o.SubCategory},
	}
}

func (s OrganizationService) Apply(ctx context.Context, ch Change) error {
	switch ch.Op {
	case OpInsert:
		var o Organization
		if err := ch.DecodeDoc(&o); err != nil {
			return err
		}
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			if err := s.st.UpsertOrganization(ctx, o); err != nil {
				return err
			}
			if o.User == nil {
				log.WithField("organization", o.ID.Hex()).Warn("organization has no owning user")
				return nil
			}
			if err := s.st.SetUserOrganization(ctx, *o.User, &o.ID); err != nil {
				return err
			}
			return s.st.UpdateProfile(ctx, ProfileByID(*o.User), orgProfilePatch(o))
		})
		if errors.Is(err, ErrNotFound) {
			log.WithField("organization", o.ID.Hex()).Error("owning user or profile missing for organization create")
			return nil
		}
		if err == nil {
			log.WithField("organization", o.ID.Hex()).Info("organization created")
		}
		return err
	case OpUpdate:
		var o Organization
		if err := ch.DecodeDoc(&o); err != nil {
			return err
		}
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			if err := s.st.UpdateOrganization(ctx, o); err != nil {
				return err
			}
			return s.st.UpdateProfile(ctx, ProfileByOwner(nil, &o.ID), orgProfilePatch(o))
		})
		if errors.Is(err, ErrNotFound) {
			log.WithField("organization", o.ID.Hex()).Error("organization or profile not found for update")
			return nil
		}
		return err
	case OpDelete:
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			o, err := s.st.DeleteOrganization(ctx, ch.Key)
			if err != nil {
				return err
			}
			if err := s.st.UnlinkUserOrganization(ctx, o.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			patch := ProfilePatch{
				Set:   bson.M{"org_name": "", "business_url": "", "org_category": ""},
				Unset: []string{"organization"},
				Pull:  map[string][]string{"org_sub_category": o.SubCategory},
			}
			return s.st.UpdateProfile(ctx, ProfileByOwner(nil, &o.ID), patch)
		})
		if errors.Is(err, ErrNotFound) {
			log.WithField("organization", ch.Key.Hex()).Error("organization or profile not found for delete")
			return nil
		}
		if err == nil {
			log.WithField("organization", ch.Key.Hex()).Info("organization deleted")
		}
		return err
	default:
		log.WithField("operation", ch.Op).Warn("unhandled organization operation")
		return nil
	}
}
