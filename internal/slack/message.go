package slack

import (
	"fmt"
	"strings"

	"github.com/xlbiz/incident-agent/internal/database"
)

// formatIncidentMessage renders the initial channel notification
func formatIncidentMessage(inc *database.Incident, suggestion string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s *New Incident: %s*\n\n", database.GetSeverityEmoji(inc.Severity), inc.ExternalID)
	fmt.Fprintf(&b, "*Type:* %s\n", inc.Type.DisplayName())
	fmt.Fprintf(&b, "*Severity:* %s\n", inc.Severity)
	fmt.Fprintf(&b, "*Status:* %s\n", inc.Status)
	if inc.Source != "" {
		fmt.Fprintf(&b, "*Source:* %s\n", inc.Source)
	}
	fmt.Fprintf(&b, "\n*Description:*\n%s\n", inc.Description)

	if inc.IsVoiceIncident() {
		b.WriteString("\n:telephone_receiver: Reported via voice call")
		if d := inc.FormattedCallDuration(); d != "" {
			fmt.Fprintf(&b, " (duration %s)", d)
		}
		b.WriteString("\n")
	}

	if strings.TrimSpace(suggestion) != "" {
		fmt.Fprintf(&b, "\n*Suggested Resolution:*\n%s\n", suggestion)
		if inc.AIConfidence != nil {
			fmt.Fprintf(&b, "\n_Confidence: %.0f%%_\n", *inc.AIConfidence*100)
		}
	}

	return b.String()
}
