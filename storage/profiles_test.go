package storage

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"profession-sync/domain"
)

func TestPatchUpdateShape(t *testing.T) {
	patch := domain.ProfilePatch{
		Set:      bson.M{"org_name": "Harbor Clinic"},
		Unset:    []string{"organization"},
		AddToSet: map[string][]string{"org_sub_category": {"Dermatology", "Pediatrics"}},
		Pull:     map[string][]string{"address": {"12 Harbor Rd"}},
	}
	got := patchUpdate(patch)

	want := bson.M{
		"$set":      bson.M{"org_name": "Harbor Clinic"},
		"$unset":    bson.M{"organization": ""},
		"$addToSet": bson.M{"org_sub_category": bson.M{"$each": []string{"Dermatology", "Pediatrics"}}},
		"$pull":     bson.M{"address": bson.M{"$in": []string{"12 Harbor Rd"}}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("update = %#v, want %#v", got, want)
	}
}

func TestPatchUpdateOmitsEmptyOperators(t *testing.T) {
	got := patchUpdate(domain.ProfilePatch{Set: bson.M{"status": "active"}})
	if len(got) != 1 {
		t.Fatalf("update carries empty operators: %#v", got)
	}
}

func TestProfileFilterSingleSelector(t *testing.T) {
	id := primitive.NewObjectID()
	got := profileFilter(domain.ProfileByID(id))
	want := bson.M{"_id": id}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("filter = %#v, want %#v", got, want)
	}
}

func TestProfileFilterCombinesWithOr(t *testing.T) {
	prac := primitive.NewObjectID()
	org := primitive.NewObjectID()
	got := profileFilter(domain.ProfileByOwner(&prac, &org))
	want := bson.M{"$or": []bson.M{{"practitioner": prac}, {"organization": org}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("filter = %#v, want %#v", got, want)
	}
}
