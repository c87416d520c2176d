// Package services contains the incident resolution pipeline, the status
// state machine, notification dispatch, and the voice call lifecycle.
package services

import (
	"fmt"

	"github.com/xlbiz/incident-agent/internal/database"
)

// SideEffect is a pending action the caller must execute after a status
// transition has been persisted. The state machine itself performs no I/O.
type SideEffect int

const (
	SideEffectNotifyStatus SideEffect = iota
	SideEffectArchiveChannel
)

// legalTransitions maps each status to the statuses the pipeline may move it
// to. RESOLVED and CLOSED are additionally reachable from any non-terminal
// state through external status updates.
var legalTransitions = map[database.IncidentStatus][]database.IncidentStatus{
	database.IncidentStatusReceived: {
		database.IncidentStatusClassifying,
		database.IncidentStatusProcessing,
		database.IncidentStatusFailed,
	},
	database.IncidentStatusClassifying: {
		database.IncidentStatusProcessing,
		database.IncidentStatusFailed,
	},
	database.IncidentStatusProcessing: {
		database.IncidentStatusProcessed,
		database.IncidentStatusInProgress,
		database.IncidentStatusFailed,
	},
	database.IncidentStatusProcessed: {
		database.IncidentStatusInProgress,
	},
	database.IncidentStatusInProgress: {
		database.IncidentStatusFailed,
	},
}

// Transition validates and applies a status change on the incident, stamping
// ResolvedAt via SetStatus. It returns the side effects the caller owes:
// a status notification for every real change, plus channel archival when the
// incident reaches RESOLVED or CLOSED. A transition to the current status is
// a no-op with no side effects.
func Transition(inc *database.Incident, to database.IncidentStatus) ([]SideEffect, error) {
	from := inc.Status
	if from == to {
		return nil, nil
	}

	if !transitionAllowed(from, to) {
		return nil, fmt.Errorf("illegal status transition %s -> %s for incident %s", from, to, inc.ExternalID)
	}

	inc.SetStatus(to)

	effects := []SideEffect{SideEffectNotifyStatus}
	if to == database.IncidentStatusResolved || to == database.IncidentStatusClosed {
		effects = append(effects, SideEffectArchiveChannel)
	}
	return effects, nil
}

func transitionAllowed(from, to database.IncidentStatus) bool {
	if from.IsTerminal() {
		return false
	}
	// Closure is always reachable while the incident is active.
	if to == database.IncidentStatusResolved || to == database.IncidentStatusClosed {
		return true
	}
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
