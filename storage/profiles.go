package storage

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"profession-sync/domain"
)

// CreateProfile writes the initial projection document. Upsert keeps the
// write idempotent across event redelivery.
func (s *Store) CreateProfile(ctx context.Context, p domain.Profile) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(collProfiles).ReplaceOne(ctx, bson.M{"_id": p.ID}, p, opts)
	return err
}

// DeleteProfile removes the projection document by user id.
func (s *Store) DeleteProfile(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.db.Collection(collProfiles).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateProfile applies a patch to the profile matched by the selector.
// Array mutations use $addToSet/$pull so repeated delivery of the same
// event leaves the document unchanged.
func (s *Store) UpdateProfile(ctx context.Context, sel domain.ProfileSelector, patch domain.ProfilePatch) error {
	if sel.Empty() || patch.Empty() {
		return nil
	}
	res, err := s.db.Collection(collProfiles).UpdateOne(ctx, profileFilter(sel), patchUpdate(patch))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindProfileTouching loads the profile owned by the given id, whether it
// is the user id itself or a practitioner/organization reference. Used by
// the consumer's cache refresh after a handled event.
func (s *Store) FindProfileTouching(ctx context.Context, id primitive.ObjectID) (*domain.Profile, error) {
	filter := bson.M{"$or": []bson.M{
		{"_id": id},
		{"practitioner": id},
		{"organization": id},
	}}
	var p domain.Profile
	err := s.db.Collection(collProfiles).FindOne(ctx, filter).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// patchUpdate translates a profile patch into its update document. Array
// mutations always go through $each/$in so single values and value sets
// take the same shape.
func patchUpdate(patch domain.ProfilePatch) bson.M {
	update := bson.M{}
	if len(patch.Set) > 0 {
		update["$set"] = patch.Set
	}
	if len(patch.Unset) > 0 {
		unset := bson.M{}
		for _, f := range patch.Unset {
			unset[f] = ""
		}
		update["$unset"] = unset
	}
	if len(patch.AddToSet) > 0 {
		add := bson.M{}
		for f, vals := range patch.AddToSet {
			add[f] = bson.M{"$each": vals}
		}
		update["$addToSet"] = add
	}
	if len(patch.Pull) > 0 {
		pull := bson.M{}
		for f, vals := range patch.Pull {
			pull[f] = bson.M{"$in": vals}
		}
		update["$pull"] = pull
	}
	return update
}

func profileFilter(sel domain.ProfileSelector) bson.M {
	var or []bson.M
	if sel.ID != nil {
		or = append(or, bson.M{"_id": *sel.ID})
	}
	if sel.Practitioner != nil {
		or = append(or, bson.M{"practitioner": *sel.Practitioner})
	}
	if sel.Organization != nil {
		or = append(or, bson.M{"organization": *sel.Organization})
	}
	if len(or) == 1 {
		return or[0]
	}
	return bson.M{"$or": or}
}
