package domain

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PractitionerInfoStorage defines the writes the practitioner info handler
// performs.
type PractitionerInfoStorage interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	UpsertPractitionerInfo(ctx context.Context, p PractitionerInfo) error
	UpdatePractitionerInfo(ctx context.Context, p PractitionerInfo) error
	DeletePractitionerInfo(ctx context.Context, id primitive.ObjectID) (*PractitionerInfo, error)
	UpdateProfile(ctx context.Context, sel ProfileSelector, patch ProfilePatch) error
}

// PractitionerInfoService reconciles practitioner info change events and
// projects category, degrees, practice area and the aggregated sub
// categories onto the practitioner's profile.
type PractitionerInfoService struct{ st PractitionerInfoStorage }

func NewPractitionerInfoService(st PractitionerInfoStorage) PractitionerInfoService {
	return PractitionerInfoService{st: st}
}

func (s PractitionerInfoService) apply(ctx context.Context, info PractitionerInfo, upsert bool) error {
	return s.st.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		if upsert {
			err = s.st.UpsertPractitionerInfo(ctx, info)
		} else {
			err = s.st.UpdatePractitionerInfo(ctx, info)
		}
		if err != nil {
			return err
		}
		if info.Practitioner == nil {
			log.WithField("practitioner_info", info.ID.Hex()).Warn("practitioner info is unlinked")
			return nil
		}
		return s.st.UpdateProfile(ctx, ProfileByOwner(info.Practitioner, nil), ProfilePatch{
			Set: bson.M{
				"prac_category":    info.Category,
				"area_of_practice": info.AreaOfPractice,
				"list_of_degrees":  info.ListOfDegrees,
			},
			AddToSet: map[string][]string{"prac_sub_category": info.SubCategories()},
		})
	})
}

func (s PractitionerInfoService) Apply(ctx context.Context, ch Change) error {
	switch ch.Op {
	case OpInsert, OpUpdate:
		var info PractitionerInfo
		if err := ch.DecodeDoc(&info); err != nil {
			return err
		}
		err := s.apply(ctx, info, ch.Op == OpInsert)
		if errors.Is(err, ErrNotFound) {
			log.WithField("practitioner_info", info.ID.Hex()).Error("practitioner info or profile not found")
			return nil
		}
		return err
	case OpDelete:
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			info, err := s.st.DeletePractitionerInfo(ctx, ch.Key)
			if err != nil {
				return err
			}
			if info.Practitioner == nil {
				return nil
			}
			return s.st.UpdateProfile(ctx, ProfileByOwner(info.Practitioner, nil), ProfilePatch{
				Unset: []string{"prac_category", "area_of_practice", "list_of_degrees"},
				Pull:  map[string][]string{"prac_sub_category": info.SubCategories()},
			})
		})
		if errors.Is(err, ErrNotFound) {
			log.WithField("practitioner_info", ch.Key.Hex()).Error("practitioner info or profile not found for delete")
			return nil
		}
		return err
	default:
		log.WithField("operation", ch.Op).Warn("unhandled practitioner info operation")
		return nil
	}
}
