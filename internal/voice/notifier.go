// Package voice places outbound notification calls for incidents that have a
// suggested resolution, using a Twilio-compatible REST API.
package voice

import (
	"context"

	"github.com/xlbiz/incident-agent/internal/database"
)

// Notifier places an automated call announcing an incident and its suggested
// resolution. Implementations return the provider's call SID on success.
type Notifier interface {
	PlaceIncidentCall(ctx context.Context, number, externalID string, severity database.IncidentSeverity, description, suggestion string) (string, error)
}
