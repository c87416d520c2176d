package slack

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/xlbiz/incident-agent/internal/database"
)

// Routing maps incident attributes to the Slack user IDs that should be
// invited to the incident channel
type Routing struct {
	TypeTeams     map[string][]string `yaml:"type_teams"`
	SeverityTeams map[string][]string `yaml:"severity_teams"`
}

// DefaultRouting returns the built-in stakeholder assignments
func DefaultRouting() *Routing {
	return &Routing{
		TypeTeams: map[string][]string{
			string(database.TypeDatabaseConnectionError): {"team-database"},
			string(database.TypeDataCorruption):          {"team-database"},
			string(database.TypeHighCPU):                 {"team-infrastructure"},
			string(database.TypeDiskFull):                {"team-infrastructure"},
			string(database.TypeMemoryLeak):              {"team-backend"},
			string(database.TypeNetworkIssue):            {"team-network"},
			string(database.TypeServiceDown):             {"team-backend", "team-infrastructure"},
			string(database.TypeSecurityBreach):          {"team-security"},
			string(database.TypeAPIFailure):              {"team-backend"},
			string(database.TypeDeploymentFailure):       {"team-platform"},
			string(database.TypeInfrastructureFailure):   {"team-infrastructure"},
		},
		SeverityTeams: map[string][]string{
			string(database.SeverityHigh): {"team-oncall-leads"},
		},
	}
}

// LoadRoutingFile reads a YAML routing file and merges it over the defaults.
// Keys present in the file replace the default entry for that key; absent
// keys keep their defaults.
func LoadRoutingFile(path string) (*Routing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing file: %w", err)
	}

	var overrides Routing
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse routing file: %w", err)
	}

	routing := DefaultRouting()
	for key, teams := range overrides.TypeTeams {
		routing.TypeTeams[key] = teams
	}
	for key, teams := range overrides.SeverityTeams {
		routing.SeverityTeams[key] = teams
	}
	return routing, nil
}

// Stakeholders returns the deduplicated, sorted union of teams assigned to
// the incident's type and severity
func (r *Routing) Stakeholders(t database.IncidentType, severity database.IncidentSeverity) []string {
	seen := make(map[string]struct{})
	for _, team := range r.TypeTeams[string(t)] {
		seen[team] = struct{}{}
	}
	for _, team := range r.SeverityTeams[string(severity)] {
		seen[team] = struct{}{}
	}

	result := make([]string, 0, len(seen))
	for team := range seen {
		result = append(result, team)
	}
	sort.Strings(result)
	return result
}
