package storage

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"profession-sync/domain"
)

func (s *Store) UpsertUser(ctx context.Context, u domain.User) error {
	return s.upsertByID(ctx, domain.CollUsers, u.ID, u)
}

func (s *Store) UpdateUser(ctx context.Context, u domain.User) error {
	return s.replaceByID(ctx, domain.CollUsers, u.ID, u)
}

func (s *Store) DeleteUser(ctx context.Context, id primitive.ObjectID) error {
	return s.deleteByID(ctx, domain.CollUsers, id)
}

func (s *Store) GetUser(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	var u domain.User
	err := s.db.Collection(domain.CollUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UpsertOrganization(ctx context.Context, o domain.Organization) error {
	return s.upsertByID(ctx, domain.CollOrganizations, o.ID, o)
}

func (s *Store) UpdateOrganization(ctx context.Context, o domain.Organization) error {
	return s.replaceByID(ctx, domain.CollOrganizations, o.ID, o)
}

func (s *Store) DeleteOrganization(ctx context.Context, id primitive.ObjectID) (*domain.Organization, error) {
	var o domain.Organization
	if err := s.takeByID(ctx, domain.CollOrganizations, id, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// SetUserOrganization updates the user's organization cross-link; nil
// clears it.
func (s *Store) SetUserOrganization(ctx context.Context, userID primitive.ObjectID, org *primitive.ObjectID) error {
	return s.setLink(ctx, bson.M{"_id": userID}, "organization", org)
}

// UnlinkUserOrganization clears the organization reference on whichever
// user holds it, keyed by the organization rather than the user id.
func (s *Store) UnlinkUserOrganization(ctx context.Context, orgID primitive.ObjectID) error {
	return s.clearLink(ctx, bson.M{"organization": orgID}, "organization")
}

func (s *Store) UpsertPractitioner(ctx context.Context, p domain.Practitioner) error {
	return s.upsertByID(ctx, domain.CollPractitioners, p.ID, p)
}

func (s *Store) UpdatePractitioner(ctx context.Context, p domain.Practitioner) error {
	return s.replaceByID(ctx, domain.CollPractitioners, p.ID, p)
}

func (s *Store) DeletePractitioner(ctx context.Context, id primitive.ObjectID) (*domain.Practitioner, error) {
	var p domain.Practitioner
	if err := s.takeByID(ctx, domain.CollPractitioners, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SetUserPractitioner(ctx context.Context, userID primitive.ObjectID, prac *primitive.ObjectID) error {
	return s.setLink(ctx, bson.M{"_id": userID}, "practitioner", prac)
}

func (s *Store) UnlinkUserPractitioner(ctx context.Context, pracID primitive.ObjectID) error {
	return s.clearLink(ctx, bson.M{"practitioner": pracID}, "practitioner")
}

func (s *Store) UpsertPractitionerInfo(ctx context.Context, p domain.PractitionerInfo) error {
	return s.upsertByID(ctx, domain.CollPractitionerInfos, p.ID, p)
}

func (s *Store) UpdatePractitionerInfo(ctx context.Context, p domain.PractitionerInfo) error {
	return s.replaceByID(ctx, domain.CollPractitionerInfos, p.ID, p)
}

func (s *Store) DeletePractitionerInfo(ctx context.Context, id primitive.ObjectID) (*domain.PractitionerInfo, error) {
	var p domain.PractitionerInfo
	if err := s.takeByID(ctx, domain.CollPractitionerInfos, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpsertBranch(ctx context.Context, b domain.Branch) error {
	return s.upsertByID(ctx, domain.CollBranches, b.ID, b)
}

func (s *Store) UpdateBranch(ctx context.Context, b domain.Branch) error {
	return s.replaceByID(ctx, domain.CollBranches, b.ID, b)
}

func (s *Store) DeleteBranch(ctx context.Context, id primitive.ObjectID) error {
	return s.deleteByID(ctx, domain.CollBranches, id)
}

func (s *Store) UpsertBranchInfo(ctx context.Context, b domain.BranchInfo) error {
	return s.upsertByID(ctx, domain.CollBranchInfos, b.ID, b)
}

func (s *Store) UpdateBranchInfo(ctx context.Context, b domain.BranchInfo) error {
	return s.replaceByID(ctx, domain.CollBranchInfos, b.ID, b)
}

func (s *Store) DeleteBranchInfo(ctx context.Context, id primitive.ObjectID) (*domain.BranchInfo, error) {
	var b domain.BranchInfo
	if err := s.takeByID(ctx, domain.CollBranchInfos, id, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// SetUserBranch points the owning user at the branch. Ownership is
// expressed through either the practitioner or the organization reference,
// so the filter takes both.
func (s *Store) SetUserBranch(ctx context.Context, practitioner, organization *primitive.ObjectID, branch *primitive.ObjectID) error {
	var owners []bson.M
	if practitioner != nil {
		owners = append(owners, bson.M{"practitioner": *practitioner})
	}
	if organization != nil {
		owners = append(owners, bson.M{"organization": *organization})
	}
	if len(owners) == 0 {
		return nil
	}
	update := bson.M{"$set": bson.M{"branch": branch}}
	if branch == nil {
		update = bson.M{"$unset": bson.M{"branch": ""}}
	}
	_, err := s.db.Collection(domain.CollUsers).UpdateMany(ctx, bson.M{"$or": owners}, update)
	return err
}

// SiblingLocations aggregates the distinct address, state and city values
// still contributed by the owner's other branch infos, so a delete pulls
// only values no sibling provides.
func (s *Store) SiblingLocations(ctx context.Context, exclude primitive.ObjectID, practitioner, organization *primitive.ObjectID) (domain.Locations, error) {
	var loc domain.Locations
	var owners []bson.M
	if practitioner != nil {
		owners = append(owners, bson.M{"practitioner": *practitioner})
	}
	if organization != nil {
		owners = append(owners, bson.M{"organization": *organization})
	}
	if len(owners) == 0 {
		return loc, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"_id": bson.M{"$ne": exclude},
			"$or": owners,
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":       nil,
			"addresses": bson.M{"$addToSet": "$address"},
			"states":    bson.M{"$addToSet": "$state"},
			"cities":    bson.M{"$addToSet": "$city"},
		}}},
	}
	cur, err := s.db.Collection(domain.CollBranchInfos).Aggregate(ctx, pipeline)
	if err != nil {
		return loc, err
	}
	defer cur.Close(ctx)
	if cur.Next(ctx) {
		if err := cur.Decode(&loc); err != nil {
			return loc, err
		}
	}
	return loc, cur.Err()
}

func (s *Store) UpsertInvitedPractitioner(ctx context.Context, ip domain.InvitedPractitioner) error {
	return s.upsertByID(ctx, domain.CollInvitedPractitioners, ip.ID, ip)
}

func (s *Store) UpdateInvitedPractitioner(ctx context.Context, ip domain.InvitedPractitioner) error {
	return s.replaceByID(ctx, domain.CollInvitedPractitioners, ip.ID, ip)
}

func (s *Store) DeleteInvitedPractitioner(ctx context.Context, id primitive.ObjectID) (*domain.InvitedPractitioner, error) {
	var ip domain.InvitedPractitioner
	if err := s.takeByID(ctx, domain.CollInvitedPractitioners, id, &ip); err != nil {
		return nil, err
	}
	return &ip, nil
}

func (s *Store) SetUserInvitedPractitioner(ctx context.Context, userID primitive.ObjectID, invited *primitive.ObjectID) error {
	return s.setLink(ctx, bson.M{"_id": userID}, "invitedPractitioner", invited)
}

// InvitedPractitionersByBranch lists every invite whose branches array
// includes the given branch.
func (s *Store) InvitedPractitionersByBranch(ctx context.Context, branch primitive.ObjectID) ([]domain.InvitedPractitioner, error) {
	cur, err := s.db.Collection(domain.CollInvitedPractitioners).Find(ctx, bson.M{"branches": branch})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []domain.InvitedPractitioner
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) setLink(ctx context.Context, filter bson.M, field string, ref *primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{field: ref}}
	if ref == nil {
		update = bson.M{"$unset": bson.M{field: ""}}
	}
	res, err := s.db.Collection(domain.CollUsers).UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// clearLink removes a cross-link on whichever user carries it. A missing
// holder is not an error; the link may never have been set.
func (s *Store) clearLink(ctx context.Context, filter bson.M, field string) error {
	_, err := s.db.Collection(domain.CollUsers).UpdateOne(ctx, filter, bson.M{"$unset": bson.M{field: ""}})
	return err
}
