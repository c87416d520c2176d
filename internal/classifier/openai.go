package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/xlbiz/incident-agent/internal/database"
)

const classifierSystemPrompt = `You are an experienced site reliability engineer triaging production incidents.
Given an incident report, respond with a single JSON object containing:
  "severity": one of LOW, MEDIUM, HIGH, UNKNOWN
  "suggestion": concrete remediation steps for the on-call engineer
  "reasoning": a short explanation of your assessment
  "confidence": a number between 0 and 1
Respond with JSON only, no surrounding text.`

// OpenAIClassifier calls a chat-completions compatible API to assess incidents
type OpenAIClassifier struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIClassifier creates a classifier against a chat-completions endpoint
func NewOpenAIClassifier(baseURL, apiKey, model string, timeout time.Duration) *OpenAIClassifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClassifier{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// assessment is the JSON shape the model is asked to produce
type assessment struct {
	Severity   string  `json:"severity"`
	Suggestion string  `json:"suggestion"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// Classify sends the incident to the model. A transport or HTTP failure is
// returned as an error. A reply that cannot be parsed as an assessment falls
// back to keyword heuristics so the pipeline always gets an answer from a
// reachable backend.
func (c *OpenAIClassifier) Classify(ctx context.Context, input IncidentInput) (*Result, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: buildUserPrompt(input)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode classification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build classification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classification request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read classification response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classification API returned status %d: %s", resp.StatusCode, string(body))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil || len(chat.Choices) == 0 {
		log.Printf("Malformed classification response for incident %s, using heuristic fallback", input.ExternalID)
		return heuristicResult(input), nil
	}

	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	parsed, ok := parseAssessment(content)
	if !ok {
		log.Printf("Unparseable assessment for incident %s, using heuristic fallback", input.ExternalID)
		return heuristicResult(input), nil
	}

	severity, _ := database.ParseIncidentSeverity(parsed.Severity)
	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return &Result{
		Severity:   severity,
		Suggestion: strings.TrimSpace(parsed.Suggestion),
		Reasoning:  strings.TrimSpace(parsed.Reasoning),
		Confidence: confidence,
	}, nil
}

// buildUserPrompt renders the incident fields for the model
func buildUserPrompt(input IncidentInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident ID: %s\n", input.ExternalID)
	fmt.Fprintf(&b, "Type: %s\n", input.Type.DisplayName())
	fmt.Fprintf(&b, "Reported severity: %s\n", input.Severity)
	fmt.Fprintf(&b, "Source: %s\n", input.Source)
	fmt.Fprintf(&b, "Description: %s\n", input.Description)
	return b.String()
}

// parseAssessment extracts the assessment JSON from the model output,
// tolerating markdown code fences around the object.
func parseAssessment(content string) (assessment, bool) {
	var a assessment

	cleaned := content
	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			cleaned = cleaned[start : end+1]
		}
	}

	if err := json.Unmarshal([]byte(cleaned), &a); err != nil {
		return assessment{}, false
	}
	if strings.TrimSpace(a.Suggestion) == "" {
		return assessment{}, false
	}
	return a, true
}
