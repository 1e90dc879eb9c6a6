package domain

import (
	"context"
)

// Handler applies a validated change to the replica store and projection.
type Handler interface {
	Apply(ctx context.Context, ch Change) error
}

// Storage is the full write surface the orchestrator's services need.
// *storage.Store satisfies it; tests substitute a fake.
type Storage interface {
	UserStorage
	OrganizationStorage
	PractitionerStorage
	PractitionerInfoStorage
	BranchStorage
	BranchInfoStorage
	InvitedPractitionerStorage
	MirrorStorage
}

// Orchestrator holds the immutable collection-name to handler mapping,
// built once at startup and injected into the dispatch loop.
type Orchestrator struct {
	handlers map[string]Handler
}

func NewOrchestrator(st Storage) Orchestrator {
	return Orchestrator{handlers: map[string]Handler{
		CollUsers:                NewUserService(st),
		CollOrganizations:        NewOrganizationService(st),
		CollPractitioners:        NewPractitionerService(st),
		CollPractitionerInfos:    NewPractitionerInfoService(st),
		CollBranches:             NewBranchService(st),
		CollBranchInfos:          NewBranchInfoService(st),
		CollInvitedPractitioners: NewInvitedPractitionerService(st),
		CollSchedules:            NewMirrorService(st, CollSchedules),
		CollNotifications:        NewMirrorService(st, CollNotifications),
	}}
}

// HandlerFor looks up the handler for a collection. The second return is
// false for unmapped collections, which are expected and not a fault.
func (o Orchestrator) HandlerFor(coll string) (Handler, bool) {
	h, ok := o.handlers[coll]
	return h, ok
}

// Apply routes the change to the collection's handler.
func (o Orchestrator) Apply(ctx context.Context, coll string, ch Change) error {
	h, ok := o.handlers[coll]
	if !ok {
		return nil
	}
	return h.Apply(ctx, ch)
}
