package domain

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Profile type discriminator. A profile belongs to exactly one of the two.
const (
	ProfileTypePractitioner = "Practitioner"
	ProfileTypeOrganization = "Organization"
)

// Profile is the denormalized directory/search projection. Keyed by the
// owning user's id, created on user insert and deleted only on user delete.
// Array fields are multi-contributor sets: values are added with $addToSet
// and removed with $pull only when no sibling still contributes them.
type Profile struct {
	ID               primitive.ObjectID  `bson:"_id"`
	Type             string              `bson:"type,omitempty"`
	Organization     *primitive.ObjectID `bson:"organization,omitempty"`
	Practitioner     *primitive.ObjectID `bson:"practitioner,omitempty"`
	Status           string              `bson:"status,omitempty"`
	Username         string              `bson:"username,omitempty"`
	PhotoURL         string              `bson:"photo_url,omitempty"`
	OrgName          string              `bson:"org_name,omitempty"`
	BusinessURL      string              `bson:"business_url,omitempty"`
	OrgCategory      string              `bson:"org_category,omitempty"`
	OrgSubCategory   []string            `bson:"org_sub_category,omitempty"`
	PractitionerName string              `bson:"practitioner_name,omitempty"`
	PracCategory     string              `bson:"prac_category,omitempty"`
	PracSubCategory  []string            `bson:"prac_sub_category,omitempty"`
	AreaOfPractice   string              `bson:"area_of_practice,omitempty"`
	ListOfDegrees    string              `bson:"list_of_degrees,omitempty"`
	Address          []string            `bson:"address,omitempty"`
	Zone             []string            `bson:"zone,omitempty"`
	City             []string            `bson:"city,omitempty"`
	Ranking          float64             `bson:"ranking,omitempty"`
	Rating           float64             `bson:"rating,omitempty"`
	TotalAppointment int                 `bson:"total_appointment,omitempty"`
}

// ProfileSelector matches a profile by its id or by the owning
// practitioner/organization reference, never by unrelated fields. Non-nil
// fields are combined with $or.
type ProfileSelector struct {
	ID           *primitive.ObjectID
	Practitioner *primitive.ObjectID
	Organization *primitive.ObjectID
}

// Empty reports whether the selector matches nothing.
func (s ProfileSelector) Empty() bool {
	return s.ID == nil && s.Practitioner == nil && s.Organization == nil
}

// ProfileByID selects a profile by the owning user id.
func ProfileByID(id primitive.ObjectID) ProfileSelector {
	return ProfileSelector{ID: &id}
}

// ProfileByOwner selects a profile by practitioner or organization reference,
// whichever is set.
func ProfileByOwner(practitioner, organization *primitive.ObjectID) ProfileSelector {
	return ProfileSelector{Practitioner: practitioner, Organization: organization}
}

// ProfilePatch describes a projection mutation. Set and Unset touch scalar
// fields scoped to one handler's field group; AddToSet and Pull mutate the
// multi-contributor array fields, which keeps concurrent handler updates
// commutative.
type ProfilePatch struct {
	Set      bson.M
	Unset    []string
	AddToSet map[string][]string
	Pull     map[string][]string
}

// Empty reports whether the patch performs no mutation.
func (p ProfilePatch) Empty() bool {
	return len(p.Set) == 0 && len(p.Unset) == 0 && len(p.AddToSet) == 0 && len(p.Pull) == 0
}

// Locations is the distinct set of address/state/city values contributed by
// the still-active branch infos of a practitioner or organization.
type Locations struct {
	Addresses []string `bson:"addresses"`
	States    []string `bson:"states"`
	Cities    []string `bson:"cities"`
}

// Contains reports membership in a string slice.
func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// locationPatch builds the $addToSet patch for a branch info's contribution.
func locationPatch(b BranchInfo) map[string][]string {
	add := map[string][]string{}
	if b.Address != "" {
		add["address"] = []string{b.Address}
	}
	if b.State != "" {
		add["zone"] = []string{b.State}
	}
	if b.City != "" {
		add["city"] = []string{b.City}
	}
	return add
}
