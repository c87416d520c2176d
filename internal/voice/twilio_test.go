package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xlbiz/incident-agent/internal/database"
)

func testConfig(baseURL string) Config {
	return Config{
		Enabled:          true,
		AccountSID:       "AC123",
		AuthToken:        "token",
		FromNumber:       "+15550000001",
		DeveloperNumber:  "+15550000002",
		EscalationNumber: "+15550000003",
		BaseURL:          baseURL,
	}
}

func TestNumberForSeverity(t *testing.T) {
	config := testConfig("")

	tests := []struct {
		severity database.IncidentSeverity
		want     string
	}{
		{database.SeverityHigh, "+15550000003"},
		{database.SeverityMedium, "+15550000002"},
		{database.SeverityLow, "+15550000002"},
		{database.SeverityUnknown, "+15550000002"},
	}
	for _, tt := range tests {
		if got := config.NumberForSeverity(tt.severity); got != tt.want {
			t.Errorf("NumberForSeverity(%s) = %s, want %s", tt.severity, got, tt.want)
		}
	}
}

func TestNumberForSeverity_NoEscalationFallsBack(t *testing.T) {
	config := testConfig("")
	config.EscalationNumber = ""
	if got := config.NumberForSeverity(database.SeverityHigh); got != "+15550000002" {
		t.Errorf("NumberForSeverity(HIGH) = %s, want developer number fallback", got)
	}
}

func TestIsConfigured(t *testing.T) {
	config := testConfig("")
	if !config.IsConfigured() {
		t.Error("full config should be configured")
	}

	disabled := config
	disabled.Enabled = false
	if disabled.IsConfigured() {
		t.Error("disabled config should not be configured")
	}

	noNumber := config
	noNumber.DeveloperNumber = ""
	if noNumber.IsConfigured() {
		t.Error("config without developer number should not be configured")
	}
}

func TestPlaceIncidentCall(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Calls.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Error("expected basic auth with account SID and token")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotForm = map[string]string{
			"To":    r.PostFormValue("To"),
			"From":  r.PostFormValue("From"),
			"Twiml": r.PostFormValue("Twiml"),
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"sid": "CA999", "status": "queued"})
	}))
	defer server.Close()

	client := NewTwilioClient(testConfig(server.URL), time.Second)
	sid, err := client.PlaceIncidentCall(context.Background(), "+15550000003", "INC-1",
		database.SeverityHigh, "database outage", "restart the pool")
	if err != nil {
		t.Fatalf("PlaceIncidentCall() error = %v", err)
	}
	if sid != "CA999" {
		t.Errorf("sid = %q, want CA999", sid)
	}
	if gotForm["To"] != "+15550000003" || gotForm["From"] != "+15550000001" {
		t.Errorf("numbers = %v", gotForm)
	}
	for _, want := range []string{"INC-1", "high", "database outage", "restart the pool"} {
		if !strings.Contains(gotForm["Twiml"], want) {
			t.Errorf("Twiml missing %q: %s", want, gotForm["Twiml"])
		}
	}
}

func TestPlaceIncidentCall_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid number"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewTwilioClient(testConfig(server.URL), time.Second)
	if _, err := client.PlaceIncidentCall(context.Background(), "+1bad", "INC-1",
		database.SeverityLow, "desc", "fix"); err == nil {
		t.Error("expected error for API failure")
	}
}

func TestPlaceIncidentCall_RequiresNumber(t *testing.T) {
	client := NewTwilioClient(testConfig("http://unused"), time.Second)
	if _, err := client.PlaceIncidentCall(context.Background(), "", "INC-1",
		database.SeverityLow, "desc", "fix"); err == nil {
		t.Error("expected error for empty destination")
	}
}

func TestBuildCallTwiml_EscapesAndTruncates(t *testing.T) {
	long := strings.Repeat("word ", 100)
	twiml := buildCallTwiml("INC-1", database.SeverityMedium, "a <b> & c", long)

	if strings.Contains(twiml, "<b>") {
		t.Error("description must be XML-escaped")
	}
	if !strings.Contains(twiml, "&lt;b&gt;") {
		t.Errorf("expected escaped markup in: %s", twiml)
	}
	if len(twiml) > 1200 {
		t.Errorf("twiml length %d, expected truncated payload", len(twiml))
	}
}
