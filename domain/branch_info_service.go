package domain

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BranchInfoStorage defines the writes and lookups the branch info handler
// performs.
type BranchInfoStorage interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	UpsertBranchInfo(ctx context.Context, b BranchInfo) error
	UpdateBranchInfo(ctx context.Context, b BranchInfo) error
	DeleteBranchInfo(ctx context.Context, id primitive.ObjectID) (*BranchInfo, error)
	SetUserBranch(ctx context.Context, practitioner, organization *primitive.ObjectID, branch *primitive.ObjectID) error
	SiblingLocations(ctx context.Context, exclude primitive.ObjectID, practitioner, organization *primitive.ObjectID) (Locations, error)
	InvitedPractitionersByBranch(ctx context.Context, branch primitive.ObjectID) ([]InvitedPractitioner, error)
	UpdateProfile(ctx context.Context, sel ProfileSelector, patch ProfilePatch) error
}

// BranchInfoService reconciles branch info change events. Location values
// feed the owning profile's address/zone/city sets and fan out to every
// invited practitioner operating out of the same branch. On delete a value
// is pulled only when no sibling branch info still contributes it.
type BranchInfoService struct{ st BranchInfoStorage }

func NewBranchInfoService(st BranchInfoStorage) BranchInfoService {
	return BranchInfoService{st: st}
}

// fanOut adds the branch info's location values to the profile of every
// invited practitioner whose branch list contains this branch. Missing
// profiles are expected for practitioners that have not signed up yet.
func (s BranchInfoService) fanOut(ctx context.Context, b BranchInfo, add map[string][]string) error {
	if b.Branch == nil || len(add) == 0 {
		return nil
	}
	invited, err := s.st.InvitedPractitionersByBranch(ctx, *b.Branch)
	if err != nil {
		return err
	}
	for _, ip := range invited {
		if ip.User == nil {
			continue
		}
		err := s.st.UpdateProfile(ctx, ProfileByID(*ip.User), ProfilePatch{AddToSet: add})
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s BranchInfoService) applyWrite(ctx context.Context, b BranchInfo, upsert bool) error {
	return s.st.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		if upsert {
			err = s.st.UpsertBranchInfo(ctx, b)
		} else {
			err = s.st.UpdateBranchInfo(ctx, b)
			if err == nil {
				err = s.st.SetUserBranch(ctx, b.Practitioner, b.Organization, &b.ID)
				if errors.Is(err, ErrNotFound) {
					log.WithField("branch_info", b.ID.Hex()).Warn("no user to link branch info to")
					err = nil
				}
			}
		}
		if err != nil {
			return err
		}
		add := locationPatch(b)
		if len(add) == 0 {
			return nil
		}
		sel := ProfileByOwner(b.Practitioner, b.Organization)
		if sel.Empty() {
			log.WithField("branch_info", b.ID.Hex()).Warn("branch info has no owner reference")
			return nil
		}
		if err := s.st.UpdateProfile(ctx, sel, ProfilePatch{AddToSet: add}); err != nil {
			return err
		}
		return s.fanOut(ctx, b, add)
	})
}

func (s BranchInfoService) Apply(ctx context.Context, ch Change) error {
	switch ch.Op {
	case OpInsert, OpUpdate:
		var b BranchInfo
		if err := ch.DecodeDoc(&b); err != nil {
			return err
		}
		err := s.applyWrite(ctx, b, ch.Op == OpInsert)
		if errors.Is(err, ErrNotFound) {
			log.WithField("branch_info", b.ID.Hex()).Error("branch info or profile not found")
			return nil
		}
		return err
	case OpDelete:
		err := s.st.InTransaction(ctx, func(ctx context.Context) error {
			b, err := s.st.DeleteBranchInfo(ctx, ch.Key)
			if err != nil {
				return err
			}
			if err := s.st.SetUserBranch(ctx, b.Practitioner, b.Organization, nil); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			sel := ProfileByOwner(b.Practitioner, b.Organization)
			if sel.Empty() {
				return nil
			}
			active, err := s.st.SiblingLocations(ctx, b.ID, b.Practitioner, b.Organization)
			if err != nil {
				return err
			}
			pull := map[string][]string{}
			if b.Address != "" && !contains(active.Addresses, b.Address) {
				pull["address"] = []string{b.Address}
			}
			if b.State != "" && !contains(active.States, b.State) {
				pull["zone"] = []string{b.State}
			}
			if b.City != "" && !contains(active.Cities, b.City) {
				pull["city"] = []string{b.City}
			}
			if len(pull) == 0 {
				log.WithField("branch_info", b.ID.Hex()).Debug("locations still contributed by sibling branch infos")
				return nil
			}
			return s.st.UpdateProfile(ctx, sel, ProfilePatch{Pull: pull})
		})
		if errors.Is(err, ErrNotFound) {
			log.WithField("branch_info", ch.Key.Hex()).Error("branch info or profile not found for delete")
			return nil
		}
		return err
	default:
		log.WithField("operation", ch.Op).Warn("unhandled branch info operation")
		return nil
	}
}
