// Package knowledge defines the similarity-search contract the resolution
// pipeline consumes and a REST client for a vector-search service. Ranking
// internals live on the service side; this package only maps results.
package knowledge

import (
	"context"
	"fmt"
)

// Entry is a historical solution record from the knowledge base
type Entry struct {
	ID                    string   `json:"id"`
	Title                 string   `json:"title"`
	PatternType           string   `json:"pattern_type"`
	Symptoms              string   `json:"symptoms"`
	RootCause             string   `json:"root_cause"`
	Solution              string   `json:"solution"`
	Severity              string   `json:"severity"`
	Environments          []string `json:"environments,omitempty"`
	Technologies          []string `json:"technologies,omitempty"`
	ConfidenceScore       *float64 `json:"confidence_score,omitempty"`
	SuccessRate           *float64 `json:"success_rate,omitempty"`
	ResolutionTimeMinutes *int     `json:"resolution_time_minutes,omitempty"`
	Tags                  []string `json:"tags,omitempty"`
}

// Match pairs a knowledge entry with its similarity to an incident
// description. Scores are in [0,1]; results are ranked descending.
type Match struct {
	Entry           Entry   `json:"knowledge_entry"`
	SimilarityScore float64 `json:"similarity_score"`
	Rank            int     `json:"rank"`
}

// IsHighConfidence reports whether the match clears the auto-apply threshold
func (m Match) IsHighConfidence() bool {
	return m.SimilarityScore > 0.8
}

// FormattedSimilarity renders the score as a percentage for messages
func (m Match) FormattedSimilarity() string {
	return fmt.Sprintf("%.1f%%", m.SimilarityScore*100)
}

// Searcher returns ranked candidate solutions for incident free-text.
// An empty result list is a valid answer, never an error.
type Searcher interface {
	Search(ctx context.Context, text string, maxResults int) ([]Match, error)
}
