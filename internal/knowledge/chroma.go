package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"time"
)

// ChromaClient queries a ChromaDB-compatible vector search service over REST
type ChromaClient struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

// NewChromaClient creates a Searcher backed by a ChromaDB collection
func NewChromaClient(baseURL, collection string, timeout time.Duration) *ChromaClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ChromaClient{
		baseURL:    baseURL,
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// queryRequest is the collection query payload
type queryRequest struct {
	QueryTexts []string `json:"query_texts"`
	NResults   int      `json:"n_results"`
	Include    []string `json:"include"`
}

// queryResponse mirrors the service's nested result arrays
type queryResponse struct {
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float64                `json:"distances"`
	IDs       [][]string                 `json:"ids"`
}

// Search queries the collection and maps results to ranked matches.
// Similarity is derived from the vector distance (1 - distance, clamped to
// [0,1]); results come back sorted descending by score.
func (c *ChromaClient) Search(ctx context.Context, text string, maxResults int) ([]Match, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	payload, err := json.Marshal(queryRequest{
		QueryTexts: []string{text},
		NResults:   maxResults,
		Include:    []string{"documents", "metadatas", "distances"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/collections/%s/query", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge base query failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read query response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("knowledge base query returned status %d: %s", resp.StatusCode, string(body))
	}

	var result queryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}

	matches := mapMatches(result)
	log.Printf("Knowledge base search returned %d matches", len(matches))
	return matches, nil
}

// mapMatches flattens the first query's result arrays into ranked matches
func mapMatches(result queryResponse) []Match {
	if len(result.IDs) == 0 {
		return nil
	}

	ids := result.IDs[0]
	matches := make([]Match, 0, len(ids))
	for i := range ids {
		entry := Entry{ID: ids[i]}
		if len(result.Documents) > 0 && i < len(result.Documents[0]) {
			entry.Symptoms = result.Documents[0][i]
		}
		if len(result.Metadatas) > 0 && i < len(result.Metadatas[0]) {
			applyMetadata(&entry, result.Metadatas[0][i])
		}

		score := 0.0
		if len(result.Distances) > 0 && i < len(result.Distances[0]) {
			score = 1 - result.Distances[0][i]
			if score < 0 {
				score = 0
			}
			if score > 1 {
				score = 1
			}
		}
		matches = append(matches, Match{Entry: entry, SimilarityScore: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].SimilarityScore > matches[j].SimilarityScore
	})
	for i := range matches {
		matches[i].Rank = i + 1
	}
	return matches
}

// applyMetadata copies known metadata fields onto the entry
func applyMetadata(entry *Entry, meta map[string]interface{}) {
	if v, ok := meta["title"].(string); ok {
		entry.Title = v
	}
	if v, ok := meta["pattern_type"].(string); ok {
		entry.PatternType = v
	}
	if v, ok := meta["symptoms"].(string); ok && v != "" {
		entry.Symptoms = v
	}
	if v, ok := meta["root_cause"].(string); ok {
		entry.RootCause = v
	}
	if v, ok := meta["solution"].(string); ok {
		entry.Solution = v
	}
	if v, ok := meta["severity"].(string); ok {
		entry.Severity = v
	}
	if v, ok := meta["success_rate"].(float64); ok {
		entry.SuccessRate = &v
	}
	if v, ok := meta["resolution_time_minutes"].(float64); ok {
		minutes := int(v)
		entry.ResolutionTimeMinutes = &minutes
	}
}
