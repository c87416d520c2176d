package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xlbiz/incident-agent/internal/database"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
}

func TestOpenAIClassifier_ParsesAssessment(t *testing.T) {
	server := chatServer(t, `{"severity":"HIGH","suggestion":"Restart the pod","reasoning":"OOM kill loop","confidence":0.85}`)
	defer server.Close()

	c := NewOpenAIClassifier(server.URL, "test-key", "test-model", time.Second)
	result, err := c.Classify(context.Background(), IncidentInput{
		ExternalID:  "INC-1",
		Type:        database.TypeServiceDown,
		Severity:    database.SeverityUnknown,
		Description: "api pods crash looping",
	})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Severity != database.SeverityHigh {
		t.Errorf("severity = %s, want HIGH", result.Severity)
	}
	if result.Suggestion != "Restart the pod" {
		t.Errorf("suggestion = %q", result.Suggestion)
	}
	if result.Confidence != 0.85 {
		t.Errorf("confidence = %f, want 0.85", result.Confidence)
	}
}

func TestOpenAIClassifier_StripsCodeFences(t *testing.T) {
	server := chatServer(t, "```json\n{\"severity\":\"MEDIUM\",\"suggestion\":\"Check disk\",\"reasoning\":\"ok\",\"confidence\":0.7}\n```")
	defer server.Close()

	c := NewOpenAIClassifier(server.URL, "", "", time.Second)
	result, err := c.Classify(context.Background(), IncidentInput{ExternalID: "INC-2", Description: "disk filling"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Severity != database.SeverityMedium || result.Suggestion != "Check disk" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestOpenAIClassifier_MalformedFallsBackToHeuristic(t *testing.T) {
	server := chatServer(t, "I think this looks serious but cannot say more.")
	defer server.Close()

	c := NewOpenAIClassifier(server.URL, "", "", time.Second)
	result, err := c.Classify(context.Background(), IncidentInput{
		ExternalID:  "INC-3",
		Type:        database.TypeDatabaseConnectionError,
		Severity:    database.SeverityUnknown,
		Description: "database is down, total outage",
	})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Severity != database.SeverityHigh {
		t.Errorf("heuristic severity = %s, want HIGH for outage keywords", result.Severity)
	}
	if result.Suggestion == "" {
		t.Error("heuristic fallback must still produce a suggestion")
	}
	if result.Confidence >= 0.5 {
		t.Errorf("heuristic confidence = %f, want low", result.Confidence)
	}
}

func TestOpenAIClassifier_KeepsReportedSeverityInFallback(t *testing.T) {
	server := chatServer(t, "not json at all")
	defer server.Close()

	c := NewOpenAIClassifier(server.URL, "", "", time.Second)
	result, err := c.Classify(context.Background(), IncidentInput{
		ExternalID:  "INC-4",
		Severity:    database.SeverityLow,
		Description: "critical outage wording that should not override the reported severity",
	})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Severity != database.SeverityLow {
		t.Errorf("severity = %s, want reported LOW preserved", result.Severity)
	}
}

func TestOpenAIClassifier_ServerErrorIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewOpenAIClassifier(server.URL, "", "", time.Second)
	if _, err := c.Classify(context.Background(), IncidentInput{ExternalID: "INC-5"}); err == nil {
		t.Error("expected error when the API is unavailable")
	}
}

func TestGuessSeverity(t *testing.T) {
	tests := []struct {
		description string
		want        database.IncidentSeverity
	}{
		{"complete outage of payment service", database.SeverityHigh},
		{"requests timing out on checkout", database.SeverityMedium},
		{"intermittent warning in logs", database.SeverityLow},
		{"something odd happened", database.SeverityMedium},
	}
	for _, tt := range tests {
		if got := guessSeverity(tt.description); got != tt.want {
			t.Errorf("guessSeverity(%q) = %s, want %s", tt.description, got, tt.want)
		}
	}
}
