package classifier

import (
	"strings"

	"github.com/xlbiz/incident-agent/internal/database"
)

// severityKeywords maps description keywords to a severity guess, checked in
// order of decreasing urgency
var severityKeywords = []struct {
	severity database.IncidentSeverity
	words    []string
}{
	{database.SeverityHigh, []string{"outage", "down", "critical", "breach", "data loss", "corruption", "unavailable", "crash"}},
	{database.SeverityMedium, []string{"error", "failure", "failing", "timeout", "degraded", "leak", "slow"}},
	{database.SeverityLow, []string{"warning", "minor", "intermittent", "flaky"}},
}

// heuristicResult produces a keyword-based assessment when the model's answer
// cannot be used. Confidence is fixed low so downstream consumers can tell
// heuristic answers from real ones.
func heuristicResult(input IncidentInput) *Result {
	severity := input.Severity
	if severity == "" || severity == database.SeverityUnknown {
		severity = guessSeverity(input.Description)
	}

	return &Result{
		Severity:   severity,
		Suggestion: heuristicSuggestion(input.Type),
		Reasoning:  "Automated keyword-based assessment; AI analysis was unavailable or returned an unusable answer.",
		Confidence: 0.3,
	}
}

// guessSeverity scans the description for urgency keywords
func guessSeverity(description string) database.IncidentSeverity {
	lower := strings.ToLower(description)
	for _, group := range severityKeywords {
		for _, word := range group.words {
			if strings.Contains(lower, word) {
				return group.severity
			}
		}
	}
	return database.SeverityMedium
}

// heuristicSuggestion returns generic first steps per incident type
func heuristicSuggestion(t database.IncidentType) string {
	switch t {
	case database.TypeDatabaseConnectionError:
		return "Check database availability and connection pool saturation. Verify credentials and network path from the application, then restart the pool if connections are exhausted."
	case database.TypeHighCPU:
		return "Identify the top CPU consumers on the affected hosts. Check for runaway processes or recent deploys, and scale out or roll back as needed."
	case database.TypeDiskFull:
		return "Free disk space on the affected volume: rotate or purge logs, clear temp files, and verify retention jobs are running. Expand the volume if pressure persists."
	case database.TypeMemoryLeak:
		return "Capture a heap profile from the affected service and restart it to restore capacity. Compare memory growth against recent releases."
	case database.TypeNetworkIssue:
		return "Check connectivity and DNS resolution between the affected components. Review recent firewall or routing changes and failover to a healthy path if available."
	case database.TypeServiceDown:
		return "Confirm the service process and health checks. Restart the service, verify its dependencies are reachable, and review logs around the time it stopped."
	case database.TypeSecurityBreach:
		return "Isolate the affected systems immediately, preserve logs for investigation, rotate exposed credentials, and notify the security team."
	case database.TypeDataCorruption:
		return "Stop writes to the affected dataset, assess the extent of corruption, and restore from the most recent known-good backup."
	case database.TypeAPIFailure:
		return "Check the upstream API's status and recent error rates. Verify request payloads and authentication, and enable retries or a fallback path."
	case database.TypeDeploymentFailure:
		return "Roll back to the last known-good release. Review the deployment logs for the failing step before retrying."
	case database.TypeInfrastructureFailure:
		return "Check provider status and the health of the affected infrastructure component. Fail over to redundant capacity where available."
	default:
		return "Review recent changes and service logs around the incident time. Escalate to the owning team if the cause is not apparent."
	}
}
