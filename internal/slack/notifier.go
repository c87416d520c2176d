// Package slack posts incident notifications to Slack: a dedicated channel per
// incident, status updates, and archival on closure. All operations are
// best-effort from the pipeline's point of view.
package slack

import (
	"context"

	"github.com/xlbiz/incident-agent/internal/database"
)

// PostResult reports the outcome of posting an incident notification.
// Failures are carried in the result rather than returned as errors so the
// pipeline can record them without aborting.
type PostResult struct {
	Successful   bool   `json:"successful"`
	ChannelID    string `json:"channel_id,omitempty"`
	MessageTS    string `json:"message_ts,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ChatNotifier is the chat-ops surface the resolution pipeline talks to
type ChatNotifier interface {
	PostIncident(ctx context.Context, inc *database.Incident, suggestion string) *PostResult
	UpdateStatus(ctx context.Context, channelID string, inc *database.Incident, message string) error
	ArchiveChannel(ctx context.Context, channelID string, inc *database.Incident) error
}
