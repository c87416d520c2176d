// Package classifier analyzes incident descriptions with an AI model and
// falls back to keyword heuristics when the model's answer is unusable.
package classifier

import (
	"context"

	"github.com/xlbiz/incident-agent/internal/database"
)

// IncidentInput carries the fields the classifier needs from an incident
type IncidentInput struct {
	ExternalID  string
	Type        database.IncidentType
	Severity    database.IncidentSeverity
	Description string
	Source      string
}

// Result is the classifier's assessment of an incident
type Result struct {
	Severity   database.IncidentSeverity
	Suggestion string
	Reasoning  string
	Confidence float64
}

// Classifier produces an AI assessment for an incident. An unreachable
// backend returns an error; a reachable backend with a malformed answer
// still yields a Result via heuristics.
type Classifier interface {
	Classify(ctx context.Context, input IncidentInput) (*Result, error)
}
