package services

import (
	"context"
	"fmt"
	"log"

	"github.com/xlbiz/incident-agent/internal/database"
	"github.com/xlbiz/incident-agent/internal/slack"
)

// NotificationDispatcher executes the side effects of status transitions.
// Every failure is logged and swallowed; a persisted status change is never
// rolled back because a notification could not be delivered.
type NotificationDispatcher struct {
	chat slack.ChatNotifier
}

// NewNotificationDispatcher creates a dispatcher. A nil notifier disables
// chat dispatch entirely.
func NewNotificationDispatcher(chat slack.ChatNotifier) *NotificationDispatcher {
	return &NotificationDispatcher{chat: chat}
}

// NotifyStatusChange sends the chat update for a persisted transition and
// archives the channel when the incident reached RESOLVED or CLOSED. The
// channel reference comes from the incident record; when none is present the
// dispatch is skipped with a warning.
func (d *NotificationDispatcher) NotifyStatusChange(ctx context.Context, inc *database.Incident, previous, current database.IncidentStatus) {
	if d.chat == nil {
		return
	}

	channelID := inc.ChatChannelID()
	if channelID == "" {
		log.Printf("No chat channel recorded for incident %s, skipping status notification", inc.ExternalID)
		return
	}

	resolved := current == database.IncidentStatusResolved || current == database.IncidentStatusClosed

	var message string
	if resolved {
		message = fmt.Sprintf("Incident has been marked *%s*.", current)
		if inc.ResolvedAt != nil {
			message += fmt.Sprintf(" Resolved at %s.", inc.ResolvedAt.Format("2006-01-02 15:04:05 MST"))
		}
	} else {
		message = fmt.Sprintf("Status updated from %s to %s", previous, current)
	}

	if err := d.chat.UpdateStatus(ctx, channelID, inc, message); err != nil {
		log.Printf("Failed to send status update for incident %s: %v", inc.ExternalID, err)
	}

	if resolved {
		if err := d.chat.ArchiveChannel(ctx, channelID, inc); err != nil {
			log.Printf("Failed to archive channel %s for incident %s: %v", channelID, inc.ExternalID, err)
		}
	}
}
