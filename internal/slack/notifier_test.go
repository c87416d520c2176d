package slack

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	slackapi "github.com/slack-go/slack"

	"github.com/xlbiz/incident-agent/internal/database"
)

// fakeAPI records conversation calls and can fail on demand
type fakeAPI struct {
	createErr  error
	postErr    error
	archiveErr error

	createdNames []string
	postedTexts  []string
	invited      []string
	archived     []string
}

func (f *fakeAPI) CreateConversationContext(ctx context.Context, params slackapi.CreateConversationParams) (*slackapi.Channel, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdNames = append(f.createdNames, params.ChannelName)
	channel := &slackapi.Channel{}
	channel.ID = "C012345678"
	return channel, nil
}

func (f *fakeAPI) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	if f.postErr != nil {
		return "", "", f.postErr
	}
	f.postedTexts = append(f.postedTexts, channelID)
	return channelID, "1700000000.000100", nil
}

func (f *fakeAPI) InviteUsersToConversationContext(ctx context.Context, channelID string, users ...string) (*slackapi.Channel, error) {
	f.invited = append(f.invited, users...)
	return nil, nil
}

func (f *fakeAPI) ArchiveConversationContext(ctx context.Context, channelID string) error {
	if f.archiveErr != nil {
		return f.archiveErr
	}
	f.archived = append(f.archived, channelID)
	return nil
}

func testIncident() *database.Incident {
	return &database.Incident{
		ExternalID:  "INC-2024-001",
		Type:        database.TypeServiceDown,
		Severity:    database.SeverityHigh,
		Status:      database.IncidentStatusProcessing,
		Description: "checkout service is not responding",
		Source:      "monitoring",
	}
}

func TestPostIncident_Success(t *testing.T) {
	api := &fakeAPI{}
	n := &Notifier{api: api, routing: DefaultRouting()}

	result := n.PostIncident(context.Background(), testIncident(), "Restart the checkout pods")
	if !result.Successful {
		t.Fatalf("expected success, got error: %s", result.ErrorMessage)
	}
	if result.ChannelID != "C012345678" {
		t.Errorf("channel ID = %q", result.ChannelID)
	}
	if result.MessageTS == "" {
		t.Error("expected a message timestamp")
	}
	if len(api.invited) == 0 {
		t.Error("expected stakeholders to be invited")
	}
}

func TestPostIncident_ChannelNameFormat(t *testing.T) {
	api := &fakeAPI{}
	n := &Notifier{api: api, routing: DefaultRouting()}

	n.PostIncident(context.Background(), testIncident(), "")
	if len(api.createdNames) != 1 {
		t.Fatal("expected one channel creation")
	}

	name := api.createdNames[0]
	if !strings.HasPrefix(name, "inc-inc-2024-001-") {
		t.Errorf("channel name = %q, want inc-inc-2024-001-<suffix>", name)
	}
	if matched, _ := regexp.MatchString(`^[a-z0-9-]+$`, name); !matched {
		t.Errorf("channel name %q contains invalid characters", name)
	}
	if len(name) > 80 {
		t.Errorf("channel name %q exceeds Slack's 80 character limit", name)
	}
}

func TestPostIncident_CreateFailureReported(t *testing.T) {
	api := &fakeAPI{createErr: errors.New("name_taken")}
	n := &Notifier{api: api, routing: DefaultRouting()}

	result := n.PostIncident(context.Background(), testIncident(), "")
	if result.Successful {
		t.Error("expected failure when channel creation fails")
	}
	if !strings.Contains(result.ErrorMessage, "name_taken") {
		t.Errorf("error message = %q, want cause included", result.ErrorMessage)
	}
}

func TestPostIncident_PostFailureKeepsChannelID(t *testing.T) {
	api := &fakeAPI{postErr: errors.New("ratelimited")}
	n := &Notifier{api: api, routing: DefaultRouting()}

	result := n.PostIncident(context.Background(), testIncident(), "")
	if result.Successful {
		t.Error("expected failure when message post fails")
	}
	if result.ChannelID != "C012345678" {
		t.Errorf("channel ID = %q, want the created channel preserved", result.ChannelID)
	}
}

func TestArchiveChannel(t *testing.T) {
	api := &fakeAPI{}
	n := &Notifier{api: api, routing: DefaultRouting()}

	inc := testIncident()
	inc.Status = database.IncidentStatusResolved
	if err := n.ArchiveChannel(context.Background(), "C012345678", inc); err != nil {
		t.Fatalf("ArchiveChannel() error = %v", err)
	}
	if len(api.archived) != 1 || api.archived[0] != "C012345678" {
		t.Errorf("archived = %v", api.archived)
	}
}

func TestArchiveChannel_ArchiveFailurePropagates(t *testing.T) {
	api := &fakeAPI{archiveErr: errors.New("channel_not_found")}
	n := &Notifier{api: api, routing: DefaultRouting()}

	if err := n.ArchiveChannel(context.Background(), "C012345678", testIncident()); err == nil {
		t.Error("expected archive error to propagate")
	}
}

func TestRouting_Stakeholders(t *testing.T) {
	routing := &Routing{
		TypeTeams: map[string][]string{
			string(database.TypeServiceDown): {"team-backend", "team-infrastructure"},
		},
		SeverityTeams: map[string][]string{
			string(database.SeverityHigh): {"team-oncall-leads", "team-backend"},
		},
	}

	got := routing.Stakeholders(database.TypeServiceDown, database.SeverityHigh)
	want := []string{"team-backend", "team-infrastructure", "team-oncall-leads"}
	if len(got) != len(want) {
		t.Fatalf("stakeholders = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stakeholders[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRouting_NoMatchesIsEmpty(t *testing.T) {
	routing := &Routing{}
	if got := routing.Stakeholders(database.TypeOther, database.SeverityLow); len(got) != 0 {
		t.Errorf("stakeholders = %v, want empty", got)
	}
}

func TestLoadRoutingFile_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	content := `
type_teams:
  SERVICE_DOWN: ["custom-team"]
severity_teams:
  LOW: ["team-triage"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	routing, err := LoadRoutingFile(path)
	if err != nil {
		t.Fatalf("LoadRoutingFile() error = %v", err)
	}

	got := routing.Stakeholders(database.TypeServiceDown, database.SeverityLow)
	want := []string{"custom-team", "team-triage"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("stakeholders = %v, want %v", got, want)
	}

	// Untouched defaults survive the merge.
	if teams := routing.TypeTeams[string(database.TypeSecurityBreach)]; len(teams) == 0 {
		t.Error("default security routing should survive the merge")
	}
}

func TestLoadRoutingFile_MissingFile(t *testing.T) {
	if _, err := LoadRoutingFile("/nonexistent/routing.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFormatIncidentMessage(t *testing.T) {
	inc := testIncident()
	confidence := 0.9
	inc.AIConfidence = &confidence

	msg := formatIncidentMessage(inc, "Restart the checkout pods")
	for _, want := range []string{
		":red_circle:",
		"INC-2024-001",
		"Service Down",
		"checkout service is not responding",
		"Restart the checkout pods",
		"Confidence: 90%",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatIncidentMessage_VoiceIncident(t *testing.T) {
	inc := testIncident()
	inc.ConversationUUID = "conv-123"
	duration := 95
	inc.CallDuration = &duration

	msg := formatIncidentMessage(inc, "")
	if !strings.Contains(msg, "Reported via voice call") {
		t.Error("expected voice call note")
	}
	if !strings.Contains(msg, "1:35") {
		t.Errorf("expected formatted duration in message:\n%s", msg)
	}
}
