package domain

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names observed on the change stream. Each mapped collection has
// a reconciliation handler.
const (
	CollUsers                = "users"
	CollOrganizations        = "organizations"
	CollPractitioners        = "practitioners"
	CollPractitionerInfos    = "practitionerinfos"
	CollBranches             = "branches"
	CollBranchInfos          = "branchinfos"
	CollInvitedPractitioners = "invitedpractitioners"
	CollSchedules            = "schedules"
	CollNotifications        = "notifications"
)

// StringList decodes a bson value that may be either a single string or an
// array of strings. Some source documents store sub_category both ways.
type StringList []string

func (s *StringList) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeString:
		str, ok := rv.StringValueOK()
		if !ok {
			return fmt.Errorf("malformed string value")
		}
		*s = StringList{str}
		return nil
	case bson.TypeArray:
		var out []string
		if err := rv.Unmarshal(&out); err != nil {
			return err
		}
		*s = out
		return nil
	case bson.TypeNull, bson.TypeUndefined:
		*s = nil
		return nil
	}
	return fmt.Errorf("cannot decode %s into a string list", t)
}

// User mirrors the source-of-truth user document.
type User struct {
	ID                  primitive.ObjectID  `bson:"_id"`
	Username            string              `bson:"username"`
	ProfilePhotoSrc     string              `bson:"profile_photo_src,omitempty"`
	Status              string              `bson:"status,omitempty"`
	Practitioner        *primitive.ObjectID `bson:"practitioner,omitempty"`
	InvitedPractitioner *primitive.ObjectID `bson:"invitedPractitioner,omitempty"`
	Organization        *primitive.ObjectID `bson:"organization,omitempty"`
	Branch              *primitive.ObjectID `bson:"branch,omitempty"`
	CreatedAt           time.Time           `bson:"created_at,omitempty"`
	UpdatedAt           time.Time           `bson:"updated_at,omitempty"`
}

// Organization mirrors the source-of-truth organization document.
type Organization struct {
	ID          primitive.ObjectID  `bson:"_id"`
	FullName    string              `bson:"full_name"`
	BusinessURL string              `bson:"business_url,omitempty"`
	Category    string              `bson:"category,omitempty"`
	SubCategory StringList          `bson:"sub_category,omitempty"`
	User        *primitive.ObjectID `bson:"user,omitempty"`
	Branch      *primitive.ObjectID `bson:"branch,omitempty"`
}

// Practitioner mirrors the source-of-truth practitioner document.
type Practitioner struct {
	ID                  primitive.ObjectID  `bson:"_id"`
	FullName            string              `bson:"full_name"`
	Username            string              `bson:"username,omitempty"`
	Email               string              `bson:"email,omitempty"`
	CurrencyCode        string              `bson:"currency_code,omitempty"`
	CurrencySymbol      string              `bson:"currency_symbol,omitempty"`
	PractitionerInfo    *primitive.ObjectID `bson:"practitioner_info,omitempty"`
	PractitionerAccount *primitive.ObjectID `bson:"practitioner_account,omitempty"`
	User                *primitive.ObjectID `bson:"user,omitempty"`
	Branding            *primitive.ObjectID `bson:"branding,omitempty"`
}

// FieldOfPractice is a nested element of practitioner info. The field name
// keeps the source schema's spelling.
type FieldOfPractice struct {
	SpecializedFiled string `bson:"specialized_filed,omitempty"`
	Experience       string `bson:"experience,omitempty"`
	Designation      string `bson:"designation,omitempty"`
}

// PractitionerInfo mirrors the source-of-truth practitioner info document.
type PractitionerInfo struct {
	ID              primitive.ObjectID  `bson:"_id"`
	Category        string              `bson:"category,omitempty"`
	SubCategory     string              `bson:"sub_category,omitempty"`
	FieldOfPractice []FieldOfPractice   `bson:"field_of_practice,omitempty"`
	AreaOfPractice  string              `bson:"area_of_practice,omitempty"`
	ListOfDegrees   string              `bson:"list_of_degrees,omitempty"`
	Practitioner    *primitive.ObjectID `bson:"practitioner,omitempty"`
}

// SubCategories aggregates the info's own sub category with the specialized
// fields of every field of practice.
func (p PractitionerInfo) SubCategories() []string {
	out := make([]string, 0, len(p.FieldOfPractice)+1)
	if p.SubCategory != "" {
		out = append(out, p.SubCategory)
	}
	for _, f := range p.FieldOfPractice {
		if f.SpecializedFiled != "" {
			out = append(out, f.SpecializedFiled)
		}
	}
	return out
}

// Branch mirrors the source-of-truth branch document.
type Branch struct {
	ID           primitive.ObjectID  `bson:"_id"`
	Name         string              `bson:"name"`
	Status       string              `bson:"status,omitempty"`
	Position     int                 `bson:"position,omitempty"`
	BranchInfo   *primitive.ObjectID `bson:"branch_info,omitempty"`
	Organization *primitive.ObjectID `bson:"organization,omitempty"`
	Practitioner *primitive.ObjectID `bson:"practitioner,omitempty"`
}

// BranchInfo mirrors the source-of-truth branch info document. Its address,
// state and city feed the projection's location sets.
type BranchInfo struct {
	ID           primitive.ObjectID  `bson:"_id"`
	Address      string              `bson:"address,omitempty"`
	State        string              `bson:"state,omitempty"`
	City         string              `bson:"city,omitempty"`
	Organization *primitive.ObjectID `bson:"organization,omitempty"`
	Practitioner *primitive.ObjectID `bson:"practitioner,omitempty"`
	User         *primitive.ObjectID `bson:"user,omitempty"`
	Branch       *primitive.ObjectID `bson:"branch,omitempty"`
}

// InvitedPractitioner mirrors the source-of-truth invited practitioner
// document. Branches lists every branch the practitioner operates out of.
type InvitedPractitioner struct {
	ID               primitive.ObjectID   `bson:"_id"`
	FullName         string               `bson:"full_name,omitempty"`
	Email            string               `bson:"email,omitempty"`
	Status           string               `bson:"status,omitempty"`
	AssignPermission *primitive.ObjectID  `bson:"assign_permission,omitempty"`
	Branches         []primitive.ObjectID `bson:"branches,omitempty"`
	User             *primitive.ObjectID  `bson:"user,omitempty"`
	Practitioner     *primitive.ObjectID  `bson:"practitioner,omitempty"`
	Organization     *primitive.ObjectID  `bson:"organization,omitempty"`
	JoinDate         *time.Time           `bson:"join_date,omitempty"`
}
