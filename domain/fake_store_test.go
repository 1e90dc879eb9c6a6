package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errInjected = errors.New("injected storage failure")

// fakeStore is an in-memory Storage. InTransaction snapshots every map and
// restores it when the callback fails, so tests can assert the both-or-
// nothing property of handler writes.
type fakeStore struct {
	users       map[primitive.ObjectID]User
	orgs        map[primitive.ObjectID]Organization
	pracs       map[primitive.ObjectID]Practitioner
	infos       map[primitive.ObjectID]PractitionerInfo
	branches    map[primitive.ObjectID]Branch
	branchInfos map[primitive.ObjectID]BranchInfo
	invited     map[primitive.ObjectID]InvitedPractitioner
	docs        map[string]map[primitive.ObjectID]bson.M
	profiles    map[primitive.ObjectID]Profile

	failOn  string
	failErr error
	calls   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       map[primitive.ObjectID]User{},
		orgs:        map[primitive.ObjectID]Organization{},
		pracs:       map[primitive.ObjectID]Practitioner{},
		infos:       map[primitive.ObjectID]PractitionerInfo{},
		branches:    map[primitive.ObjectID]Branch{},
		branchInfos: map[primitive.ObjectID]BranchInfo{},
		invited:     map[primitive.ObjectID]InvitedPractitioner{},
		docs:        map[string]map[primitive.ObjectID]bson.M{},
		profiles:    map[primitive.ObjectID]Profile{},
	}
}

func (f *fakeStore) called(method string) error {
	f.calls = append(f.calls, method)
	if f.failOn == method {
		if f.failErr != nil {
			return f.failErr
		}
		return fmt.Errorf("injected %s failure", method)
	}
	return nil
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (f *fakeStore) snapshot() *fakeStore {
	snap := newFakeStore()
	snap.users = copyMap(f.users)
	snap.orgs = copyMap(f.orgs)
	snap.pracs = copyMap(f.pracs)
	snap.infos = copyMap(f.infos)
	snap.branches = copyMap(f.branches)
	snap.branchInfos = copyMap(f.branchInfos)
	snap.invited = copyMap(f.invited)
	snap.profiles = copyMap(f.profiles)
	for coll, docs := range f.docs {
		snap.docs[coll] = copyMap(docs)
	}
	return snap
}

func (f *fakeStore) restore(snap *fakeStore) {
	f.users = snap.users
	f.orgs = snap.orgs
	f.pracs = snap.pracs
	f.infos = snap.infos
	f.branches = snap.branches
	f.branchInfos = snap.branchInfos
	f.invited = snap.invited
	f.docs = snap.docs
	f.profiles = snap.profiles
}

func (f *fakeStore) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := f.snapshot()
	if err := fn(ctx); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func (f *fakeStore) UpsertUser(ctx context.Context, u User) error {
	if err := f.called("UpsertUser"); err != nil {
		return err
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) UpdateUser(ctx context.Context, u User) error {
	if err := f.called("UpdateUser"); err != nil {
		return err
	}
	if _, ok := f.users[u.ID]; !ok {
		return ErrNotFound
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) DeleteUser(ctx context.Context, id primitive.ObjectID) error {
	if err := f.called("DeleteUser"); err != nil {
		return err
	}
	if _, ok := f.users[id]; !ok {
		return ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeStore) GetUser(ctx context.Context, id primitive.ObjectID) (*User, error) {
	if err := f.called("GetUser"); err != nil {
		return nil, err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (f *fakeStore) UpsertOrganization(ctx context.Context, o Organization) error {
	if err := f.called("UpsertOrganization"); err != nil {
		return err
	}
	f.orgs[o.ID] = o
	return nil
}

func (f *fakeStore) UpdateOrganization(ctx context.Context, o Organization) error {
	if err := f.called("UpdateOrganization"); err != nil {
		return err
	}
	if _, ok := f.orgs[o.ID]; !ok {
		return ErrNotFound
	}
	f.orgs[o.ID] = o
	return nil
}

func (f *fakeStore) DeleteOrganization(ctx context.Context, id primitive.ObjectID) (*Organization, error) {
	if err := f.called("DeleteOrganization"); err != nil {
		return nil, err
	}
	o, ok := f.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(f.orgs, id)
	return &o, nil
}

func (f *fakeStore) SetUserOrganization(ctx context.Context, userID primitive.ObjectID, org *primitive.ObjectID) error {
	if err := f.called("SetUserOrganization"); err != nil {
		return err
	}
	u, ok := f.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Organization = org
	f.users[userID] = u
	return nil
}

func (f *fakeStore) UnlinkUserOrganization(ctx context.Context, orgID primitive.ObjectID) error {
	if err := f.called("UnlinkUserOrganization"); err != nil {
		return err
	}
	for id, u := range f.users {
		if u.Organization != nil && *u.Organization == orgID {
			u.Organization = nil
			f.users[id] = u
		}
	}
	return nil
}

func (f *fakeStore) UpsertPractitioner(ctx context.Context, p Practitioner) error {
	if err := f.called("UpsertPractitioner"); err != nil {
		return err
	}
	f.pracs[p.ID] = p
	return nil
}

func (f *fakeStore) UpdatePractitioner(ctx context.Context, p Practitioner) error {
	if err := f.called("UpdatePractitioner"); err != nil {
		return err
	}
	if _, ok := f.pracs[p.ID]; !ok {
		return ErrNotFound
	}
	f.pracs[p.ID] = p
	return nil
}

func (f *fakeStore) DeletePractitioner(ctx context.Context, id primitive.ObjectID) (*Practitioner, error) {
	if err := f.called("DeletePractitioner"); err != nil {
		return nil, err
	}
	p, ok := f.pracs[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(f.pracs, id)
	return &p, nil
}

func (f *fakeStore) SetUserPractitioner(ctx context.Context, userID primitive.ObjectID, prac *primitive.ObjectID) error {
	if err := f.called("SetUserPractitioner"); err != nil {
		return err
	}
	u, ok := f.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Practitioner = prac
	f.users[userID] = u
	return nil
}

func (f *fakeStore) UnlinkUserPractitioner(ctx context.Context, pracID primitive.ObjectID) error {
	if err := f.called("UnlinkUserPractitioner"); err != nil {
		return err
	}
	for id, u := range f.users {
		if u.Practitioner != nil && *u.Practitioner == pracID {
			u.Practitioner = nil
			f.users[id] = u
		}
	}
	return nil
}

func (f *fakeStore) UpsertPractitionerInfo(ctx context.Context, p PractitionerInfo) error {
	if err := f.called("UpsertPractitionerInfo"); err != nil {
		return err
	}
	f.infos[p.ID] = p
	return nil
}

func (f *fakeStore) UpdatePractitionerInfo(ctx context.Context, p PractitionerInfo) error {
	if err := f.called("UpdatePractitionerInfo"); err != nil {
		return err
	}
	if _, ok := f.infos[p.ID]; !ok {
		return ErrNotFound
	}
	f.infos[p.ID] = p
	return nil
}

func (f *fakeStore) DeletePractitionerInfo(ctx context.Context, id primitive.ObjectID) (*PractitionerInfo, error) {
	if err := f.called("DeletePractitionerInfo"); err != nil {
		return nil, err
	}
	p, ok := f.infos[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(f.infos, id)
	return &p, nil
}

func (f *fakeStore) UpsertBranch(ctx context.Context, b Branch) error {
	if err := f.called("UpsertBranch"); err != nil {
		return err
	}
	f.branches[b.ID] = b
	return nil
}

func (f *fakeStore) UpdateBranch(ctx context.Context, b Branch) error {
	if err := f.called("UpdateBranch"); err != nil {
		return err
	}
	if _, ok := f.branches[b.ID]; !ok {
		return ErrNotFound
	}
	f.branches[b.ID] = b
	return nil
}

func (f *fakeStore) DeleteBranch(ctx context.Context, id primitive.ObjectID) error {
	if err := f.called("DeleteBranch"); err != nil {
		return err
	}
	if _, ok := f.branches[id]; !ok {
		return ErrNotFound
	}
	delete(f.branches, id)
	return nil
}

func (f *fakeStore) UpsertBranchInfo(ctx context.Context, b BranchInfo) error {
	if err := f.called("UpsertBranchInfo"); err != nil {
		return err
	}
	f.branchInfos[b.ID] = b
	return nil
}

func (f *fakeStore) UpdateBranchInfo(ctx context.Context, b BranchInfo) error {
	if err := f.called("UpdateBranchInfo"); err != nil {
		return err
	}
	if _, ok := f.branchInfos[b.ID]; !ok {
		return ErrNotFound
	}
	f.branchInfos[b.ID] = b
	return nil
}

func (f *fakeStore) DeleteBranchInfo(ctx context.Context, id primitive.ObjectID) (*BranchInfo, error) {
	if err := f.called("DeleteBranchInfo"); err != nil {
		return nil, err
	}
	b, ok := f.branchInfos[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(f.branchInfos, id)
	return &b, nil
}

func sameOwner(practitioner, organization *primitive.ObjectID, b BranchInfo) bool {
	if practitioner != nil && b.Practitioner != nil && *practitioner == *b.Practitioner {
		return true
	}
	if organization != nil && b.Organization != nil && *organization == *b.Organization {
		return true
	}
	return false
}

func (f *fakeStore) SetUserBranch(ctx context.Context, practitioner, organization *primitive.ObjectID, branch *primitive.ObjectID) error {
	if err := f.called("SetUserBranch"); err != nil {
		return err
	}
	for id, u := range f.users {
		matches := (practitioner != nil && u.Practitioner != nil && *u.Practitioner == *practitioner) ||
			(organization != nil && u.Organization != nil && *u.Organization == *organization)
		if matches {
			u.Branch = branch
			f.users[id] = u
		}
	}
	return nil
}

func (f *fakeStore) SiblingLocations(ctx context.Context, exclude primitive.ObjectID, practitioner, organization *primitive.ObjectID) (Locations, error) {
	var loc Locations
	if err := f.called("SiblingLocations"); err != nil {
		return loc, err
	}
	for id, b := range f.branchInfos {
		if id == exclude || !sameOwner(practitioner, organization, b) {
			continue
		}
		if b.Address != "" && !contains(loc.Addresses, b.Address) {
			loc.Addresses = append(loc.Addresses, b.Address)
		}
		if b.State != "" && !contains(loc.States, b.State) {
			loc.States = append(loc.States, b.State)
		}
		if b.City != "" && !contains(loc.Cities, b.City) {
			loc.Cities = append(loc.Cities, b.City)
		}
	}
	return loc, nil
}

func (f *fakeStore) UpsertInvitedPractitioner(ctx context.Context, ip InvitedPractitioner) error {
	if err := f.called("UpsertInvitedPractitioner"); err != nil {
		return err
	}
	f.invited[ip.ID] = ip
	return nil
}

func (f *fakeStore) UpdateInvitedPractitioner(ctx context.Context, ip InvitedPractitioner) error {
	if err := f.called("UpdateInvitedPractitioner"); err != nil {
		return err
	}
	if _, ok := f.invited[ip.ID]; !ok {
		return ErrNotFound
	}
	f.invited[ip.ID] = ip
	return nil
}

func (f *fakeStore) DeleteInvitedPractitioner(ctx context.Context, id primitive.ObjectID) (*InvitedPractitioner, error) {
	if err := f.called("DeleteInvitedPractitioner"); err != nil {
		return nil, err
	}
	ip, ok := f.invited[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(f.invited, id)
	return &ip, nil
}

func (f *fakeStore) SetUserInvitedPractitioner(ctx context.Context, userID primitive.ObjectID, invited *primitive.ObjectID) error {
	if err := f.called("SetUserInvitedPractitioner"); err != nil {
		return err
	}
	u, ok := f.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.InvitedPractitioner = invited
	f.users[userID] = u
	return nil
}

func (f *fakeStore) InvitedPractitionersByBranch(ctx context.Context, branch primitive.ObjectID) ([]InvitedPractitioner, error) {
	if err := f.called("InvitedPractitionersByBranch"); err != nil {
		return nil, err
	}
	var out []InvitedPractitioner
	for _, ip := range f.invited {
		for _, b := range ip.Branches {
			if b == branch {
				out = append(out, ip)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertDocument(ctx context.Context, coll string, id primitive.ObjectID, doc bson.M) error {
	if err := f.called("UpsertDocument"); err != nil {
		return err
	}
	if f.docs[coll] == nil {
		f.docs[coll] = map[primitive.ObjectID]bson.M{}
	}
	f.docs[coll][id] = doc
	return nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, coll string, id primitive.ObjectID) error {
	if err := f.called("DeleteDocument"); err != nil {
		return err
	}
	if _, ok := f.docs[coll][id]; !ok {
		return ErrNotFound
	}
	delete(f.docs[coll], id)
	return nil
}

func (f *fakeStore) CreateProfile(ctx context.Context, p Profile) error {
	if err := f.called("CreateProfile"); err != nil {
		return err
	}
	f.profiles[p.ID] = p
	return nil
}

func (f *fakeStore) DeleteProfile(ctx context.Context, id primitive.ObjectID) error {
	if err := f.called("DeleteProfile"); err != nil {
		return err
	}
	if _, ok := f.profiles[id]; !ok {
		return ErrNotFound
	}
	delete(f.profiles, id)
	return nil
}

func (f *fakeStore) UpdateProfile(ctx context.Context, sel ProfileSelector, patch ProfilePatch) error {
	if err := f.called("UpdateProfile"); err != nil {
		return err
	}
	if sel.Empty() || patch.Empty() {
		return nil
	}
	matched := false
	for id, p := range f.profiles {
		if !selectorMatches(sel, p) {
			continue
		}
		matched = true
		applyPatch(&p, patch)
		f.profiles[id] = p
	}
	if !matched {
		return ErrNotFound
	}
	return nil
}

func selectorMatches(sel ProfileSelector, p Profile) bool {
	if sel.ID != nil && *sel.ID == p.ID {
		return true
	}
	if sel.Practitioner != nil && p.Practitioner != nil && *sel.Practitioner == *p.Practitioner {
		return true
	}
	if sel.Organization != nil && p.Organization != nil && *sel.Organization == *p.Organization {
		return true
	}
	return false
}

func addAll(set []string, vals []string) []string {
	for _, v := range vals {
		if !contains(set, v) {
			set = append(set, v)
		}
	}
	return set
}

func removeAll(set []string, vals []string) []string {
	var out []string
	for _, s := range set {
		if !contains(vals, s) {
			out = append(out, s)
		}
	}
	return out
}

func applyPatch(p *Profile, patch ProfilePatch) {
	for field, v := range patch.Set {
		switch field {
		case "type":
			p.Type = v.(string)
		case "username":
			p.Username = v.(string)
		case "status":
			p.Status = v.(string)
		case "photo_url":
			p.PhotoURL = v.(string)
		case "organization":
			id := v.(primitive.ObjectID)
			p.Organization = &id
		case "practitioner":
			id := v.(primitive.ObjectID)
			p.Practitioner = &id
		case "org_name":
			p.OrgName = v.(string)
		case "business_url":
			p.BusinessURL = v.(string)
		case "org_category":
			p.OrgCategory = v.(string)
		case "practitioner_name":
			p.PractitionerName = v.(string)
		case "prac_category":
			p.PracCategory = v.(string)
		case "area_of_practice":
			p.AreaOfPractice = v.(string)
		case "list_of_degrees":
			p.ListOfDegrees = v.(string)
		default:
			panic("fakeStore: unknown profile field " + field)
		}
	}
	for _, field := range patch.Unset {
		switch field {
		case "organization":
			p.Organization = nil
		case "practitioner":
			p.Practitioner = nil
		case "practitioner_name":
			p.PractitionerName = ""
		case "prac_category":
			p.PracCategory = ""
		case "area_of_practice":
			p.AreaOfPractice = ""
		case "list_of_degrees":
			p.ListOfDegrees = ""
		default:
			panic("fakeStore: unknown profile field " + field)
		}
	}
	for field, vals := range patch.AddToSet {
		switch field {
		case "org_sub_category":
			p.OrgSubCategory = addAll(p.OrgSubCategory, vals)
		case "prac_sub_category":
			p.PracSubCategory = addAll(p.PracSubCategory, vals)
		case "address":
			p.Address = addAll(p.Address, vals)
		case "zone":
			p.Zone = addAll(p.Zone, vals)
		case "city":
			p.City = addAll(p.City, vals)
		default:
			panic("fakeStore: unknown profile set field " + field)
		}
	}
	for field, vals := range patch.Pull {
		switch field {
		case "org_sub_category":
			p.OrgSubCategory = removeAll(p.OrgSubCategory, vals)
		case "prac_sub_category":
			p.PracSubCategory = removeAll(p.PracSubCategory, vals)
		case "address":
			p.Address = removeAll(p.Address, vals)
		case "zone":
			p.Zone = removeAll(p.Zone, vals)
		case "city":
			p.City = removeAll(p.City, vals)
		default:
			panic("fakeStore: unknown profile set field " + field)
		}
	}
}

// docChange builds the Change a handler receives for an insert, update or
// replace, carrying the document as extended JSON like the real wire path.
func docChange(t *testing.T, op Operation, id primitive.ObjectID, doc any) Change {
	t.Helper()
	raw, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		t.Fatalf("encode document: %v", err)
	}
	return Change{Op: op, Doc: raw, Key: id}
}

func deleteChange(id primitive.ObjectID) Change {
	return Change{Op: OpDelete, Key: id}
}

func oid(t *testing.T) primitive.ObjectID {
	t.Helper()
	return primitive.NewObjectID()
}
