package slack

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/slack-go/slack"

	"github.com/xlbiz/incident-agent/internal/database"
)

// conversationAPI is the slice of the Slack API the notifier uses
type conversationAPI interface {
	CreateConversationContext(ctx context.Context, params slack.CreateConversationParams) (*slack.Channel, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	InviteUsersToConversationContext(ctx context.Context, channelID string, users ...string) (*slack.Channel, error)
	ArchiveConversationContext(ctx context.Context, channelID string) error
}

// Notifier implements ChatNotifier on the Slack Web API
type Notifier struct {
	api     conversationAPI
	routing *Routing
}

// NewNotifier creates a notifier from a configured Slack client
func NewNotifier(client *slack.Client, routing *Routing) *Notifier {
	if routing == nil {
		routing = DefaultRouting()
	}
	return &Notifier{api: client, routing: routing}
}

// PostIncident creates a dedicated channel for the incident, posts the
// formatted notification, and invites the stakeholders for its type and
// severity. Channel creation failure makes the whole post unsuccessful;
// invite failures only log.
func (n *Notifier) PostIncident(ctx context.Context, inc *database.Incident, suggestion string) *PostResult {
	name := channelName(inc.ExternalID)
	channel, err := n.api.CreateConversationContext(ctx, slack.CreateConversationParams{
		ChannelName: name,
	})
	if err != nil {
		log.Printf("Failed to create Slack channel %s for incident %s: %v", name, inc.ExternalID, err)
		return &PostResult{Successful: false, ErrorMessage: fmt.Sprintf("channel creation failed: %v", err)}
	}

	_, ts, err := n.api.PostMessageContext(ctx, channel.ID,
		slack.MsgOptionText(formatIncidentMessage(inc, suggestion), false))
	if err != nil {
		log.Printf("Failed to post incident message to %s: %v", channel.ID, err)
		return &PostResult{
			Successful:   false,
			ChannelID:    channel.ID,
			ErrorMessage: fmt.Sprintf("message post failed: %v", err),
		}
	}

	if stakeholders := n.routing.Stakeholders(inc.Type, inc.Severity); len(stakeholders) > 0 {
		if _, err := n.api.InviteUsersToConversationContext(ctx, channel.ID, stakeholders...); err != nil {
			log.Printf("Failed to invite stakeholders to %s: %v", channel.ID, err)
		}
	}

	log.Printf("Posted incident %s to Slack channel %s", inc.ExternalID, channel.ID)
	return &PostResult{Successful: true, ChannelID: channel.ID, MessageTS: ts}
}

// UpdateStatus posts a status-change message to the incident channel
func (n *Notifier) UpdateStatus(ctx context.Context, channelID string, inc *database.Incident, message string) error {
	text := fmt.Sprintf("%s *%s*: %s", database.GetSeverityEmoji(inc.Severity), inc.ExternalID, message)
	if _, _, err := n.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("failed to post status update: %w", err)
	}
	return nil
}

// ArchiveChannel posts a closing note and archives the incident channel
func (n *Notifier) ArchiveChannel(ctx context.Context, channelID string, inc *database.Incident) error {
	closing := fmt.Sprintf(":white_check_mark: Incident *%s* is %s. Archiving this channel.", inc.ExternalID, inc.Status)
	if _, _, err := n.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(closing, false)); err != nil {
		log.Printf("Failed to post closing message to %s: %v", channelID, err)
	}
	if err := n.api.ArchiveConversationContext(ctx, channelID); err != nil {
		return fmt.Errorf("failed to archive channel %s: %w", channelID, err)
	}
	return nil
}

// channelName builds a Slack-safe channel name from the external incident ID.
// Slack limits names to 80 lowercase characters from [a-z0-9-_].
func channelName(externalID string) string {
	slug := strings.ToLower(externalID)
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, slug)
	slug = strings.Trim(slug, "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("inc-%s-%s", slug, suffix)
}
