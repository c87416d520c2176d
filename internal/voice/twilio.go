package voice

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xlbiz/incident-agent/internal/database"
)

const (
	maxSpokenDescription = 200
	maxSpokenSuggestion  = 300
)

// Config holds the outbound calling settings
type Config struct {
	Enabled          bool
	AccountSID       string
	AuthToken        string
	FromNumber       string
	DeveloperNumber  string
	EscalationNumber string
	BaseURL          string
}

// IsConfigured reports whether outbound calls can be placed at all
func (c Config) IsConfigured() bool {
	return c.Enabled && c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != "" && c.DeveloperNumber != ""
}

// NumberForSeverity picks the escalation number for urgent incidents and the
// developer on-call number otherwise. Falls back to the developer number when
// no escalation number is configured.
func (c Config) NumberForSeverity(severity database.IncidentSeverity) string {
	if severity.IsUrgent() && c.EscalationNumber != "" {
		return c.EscalationNumber
	}
	return c.DeveloperNumber
}

// TwilioClient places calls through a Twilio-compatible Calls endpoint
type TwilioClient struct {
	config     Config
	httpClient *http.Client
}

// NewTwilioClient creates a caller from config. BaseURL defaults to the
// public Twilio API; tests point it at a local server.
func NewTwilioClient(config Config, timeout time.Duration) *TwilioClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.twilio.com"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TwilioClient{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// callResponse is the subset of the provider's call resource we read back
type callResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// PlaceIncidentCall starts an outbound call that reads the incident summary
// and suggested resolution to the callee
func (t *TwilioClient) PlaceIncidentCall(ctx context.Context, number, externalID string, severity database.IncidentSeverity, description, suggestion string) (string, error) {
	if number == "" {
		return "", fmt.Errorf("no destination number for incident %s", externalID)
	}

	form := url.Values{}
	form.Set("To", number)
	form.Set("From", t.config.FromNumber)
	form.Set("Twiml", buildCallTwiml(externalID, severity, description, suggestion))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", t.config.BaseURL, t.config.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.config.AccountSID, t.config.AuthToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read call response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("call API returned status %d: %s", resp.StatusCode, string(body))
	}

	var call callResponse
	if err := json.Unmarshal(body, &call); err != nil {
		return "", fmt.Errorf("failed to decode call response: %w", err)
	}

	log.Printf("Placed incident call %s to %s for incident %s", call.SID, number, externalID)
	return call.SID, nil
}

// buildCallTwiml renders the voice message. Description and suggestion are
// truncated so the call stays short.
func buildCallTwiml(externalID string, severity database.IncidentSeverity, description, suggestion string) string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "This is an automated incident notification. Incident %s with severity %s. ",
		externalID, strings.ToLower(string(severity)))
	fmt.Fprintf(&msg, "Description: %s. ", truncateForSpeech(description, maxSpokenDescription))
	if strings.TrimSpace(suggestion) != "" {
		fmt.Fprintf(&msg, "Suggested resolution: %s. ", truncateForSpeech(suggestion, maxSpokenSuggestion))
	}
	msg.WriteString("Please check the incident channel for details.")

	var escaped strings.Builder
	xml.EscapeText(&escaped, []byte(msg.String()))
	return fmt.Sprintf(`<Response><Say voice="alice">%s</Say></Response>`, escaped.String())
}

// truncateForSpeech cuts the text at a word boundary near the limit
func truncateForSpeech(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndex(cut, " "); idx > limit/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
