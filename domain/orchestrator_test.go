package domain

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestOrchestratorCoversAllMappedCollections(t *testing.T) {
	orch := NewOrchestrator(newFakeStore())
	for _, coll := range []string{
		CollUsers, CollOrganizations, CollPractitioners, CollPractitionerInfos,
		CollBranches, CollBranchInfos, CollInvitedPractitioners,
		CollSchedules, CollNotifications,
	} {
		if _, ok := orch.HandlerFor(coll); !ok {
			t.Fatalf("no handler for %s", coll)
		}
	}
	if _, ok := orch.HandlerFor("audit_log"); ok {
		t.Fatalf("unexpected handler for unmapped collection")
	}
}

func TestOrchestratorApplyUnmappedIsNoOp(t *testing.T) {
	st := newFakeStore()
	orch := NewOrchestrator(st)
	if err := orch.Apply(context.Background(), "audit_log", deleteChange(oid(t))); err != nil {
		t.Fatalf("unmapped collection should be a no-op: %v", err)
	}
	if len(st.calls) != 0 {
		t.Fatalf("unexpected storage calls: %v", st.calls)
	}
}

func TestMirrorServiceRoundTrip(t *testing.T) {
	st := newFakeStore()
	orch := NewOrchestrator(st)
	id := oid(t)
	doc := bson.M{"_id": id, "title": "checkup", "slot": "09:00"}

	if err := orch.Apply(context.Background(), CollSchedules, docChange(t, OpInsert, id, doc)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, ok := st.docs[CollSchedules][id]; !ok {
		t.Fatalf("schedule not mirrored")
	}
	if err := orch.Apply(context.Background(), CollSchedules, deleteChange(id)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(st.docs[CollSchedules]) != 0 {
		t.Fatalf("schedule not removed")
	}
}

func TestMirrorServiceDeleteUnknownIsHandled(t *testing.T) {
	st := newFakeStore()
	svc := NewMirrorService(st, CollNotifications)
	if err := svc.Apply(context.Background(), deleteChange(oid(t))); err != nil {
		t.Fatalf("missing document should not fail the event: %v", err)
	}
}
