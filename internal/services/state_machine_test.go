package services

import (
	"testing"

	"github.com/xlbiz/incident-agent/internal/database"
)

func TestTransition_LegalMoves(t *testing.T) {
	tests := []struct {
		from database.IncidentStatus
		to   database.IncidentStatus
		ok   bool
	}{
		{database.IncidentStatusReceived, database.IncidentStatusClassifying, true},
		{database.IncidentStatusReceived, database.IncidentStatusProcessing, true},
		{database.IncidentStatusReceived, database.IncidentStatusFailed, true},
		{database.IncidentStatusClassifying, database.IncidentStatusProcessing, true},
		{database.IncidentStatusProcessing, database.IncidentStatusProcessed, true},
		{database.IncidentStatusProcessing, database.IncidentStatusInProgress, true},
		{database.IncidentStatusProcessed, database.IncidentStatusInProgress, true},
		{database.IncidentStatusReceived, database.IncidentStatusResolved, true},
		{database.IncidentStatusInProgress, database.IncidentStatusClosed, true},
		{database.IncidentStatusReceived, database.IncidentStatusProcessed, false},
		{database.IncidentStatusProcessed, database.IncidentStatusReceived, false},
		{database.IncidentStatusResolved, database.IncidentStatusProcessing, false},
		{database.IncidentStatusFailed, database.IncidentStatusResolved, false},
		{database.IncidentStatusClosed, database.IncidentStatusResolved, false},
	}

	for _, tt := range tests {
		inc := &database.Incident{ExternalID: "INC-1", Status: tt.from}
		_, err := Transition(inc, tt.to)
		if tt.ok && err != nil {
			t.Errorf("Transition(%s -> %s) unexpected error: %v", tt.from, tt.to, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("Transition(%s -> %s) expected error", tt.from, tt.to)
		}
	}
}

func TestTransition_SameStatusIsNoOp(t *testing.T) {
	inc := &database.Incident{ExternalID: "INC-1", Status: database.IncidentStatusProcessing}
	effects, err := Transition(inc, database.IncidentStatusProcessing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(effects) != 0 {
		t.Errorf("effects = %v, want none for a no-op", effects)
	}
}

func TestTransition_ResolvedSetsTimestampOnce(t *testing.T) {
	inc := &database.Incident{ExternalID: "INC-1", Status: database.IncidentStatusProcessing}

	if _, err := Transition(inc, database.IncidentStatusResolved); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inc.ResolvedAt == nil {
		t.Fatal("ResolvedAt should be set on RESOLVED")
	}
	first := *inc.ResolvedAt

	// A terminal incident cannot transition again; the timestamp stays.
	if _, err := Transition(inc, database.IncidentStatusResolved); err != nil {
		t.Fatalf("re-resolving should be a no-op, got: %v", err)
	}
	if !inc.ResolvedAt.Equal(first) {
		t.Error("ResolvedAt must not change on repeated RESOLVED")
	}
}

func TestTransition_ResolutionSideEffects(t *testing.T) {
	inc := &database.Incident{ExternalID: "INC-1", Status: database.IncidentStatusInProgress}
	effects, err := Transition(inc, database.IncidentStatusResolved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(effects) != 2 {
		t.Fatalf("effects = %v, want notify + archive", effects)
	}
	if effects[0] != SideEffectNotifyStatus || effects[1] != SideEffectArchiveChannel {
		t.Errorf("effects = %v", effects)
	}
}

func TestTransition_NonResolutionSideEffects(t *testing.T) {
	inc := &database.Incident{ExternalID: "INC-1", Status: database.IncidentStatusProcessing}
	effects, err := Transition(inc, database.IncidentStatusInProgress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(effects) != 1 || effects[0] != SideEffectNotifyStatus {
		t.Errorf("effects = %v, want only notify", effects)
	}
}
