package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// IncidentStatus represents the processing status of an incident
type IncidentStatus string

const (
	IncidentStatusReceived    IncidentStatus = "RECEIVED"
	IncidentStatusClassifying IncidentStatus = "CLASSIFYING"
	IncidentStatusProcessing  IncidentStatus = "PROCESSING"
	IncidentStatusProcessed   IncidentStatus = "PROCESSED"
	IncidentStatusInProgress  IncidentStatus = "IN_PROGRESS"
	IncidentStatusResolved    IncidentStatus = "RESOLVED"
	IncidentStatusClosed      IncidentStatus = "CLOSED"
	IncidentStatusFailed      IncidentStatus = "FAILED"
)

// ParseIncidentStatus parses a status string (case-insensitive). The second
// return value reports whether the input failed to parse and the default
// (RECEIVED) was substituted.
func ParseIncidentStatus(raw string) (IncidentStatus, bool) {
	switch IncidentStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case IncidentStatusReceived, IncidentStatusClassifying, IncidentStatusProcessing,
		IncidentStatusProcessed, IncidentStatusInProgress, IncidentStatusResolved,
		IncidentStatusClosed, IncidentStatusFailed:
		return IncidentStatus(strings.ToUpper(strings.TrimSpace(raw))), false
	}
	return IncidentStatusReceived, true
}

// IsActive reports whether the incident is still being worked on
func (s IncidentStatus) IsActive() bool {
	return s != IncidentStatusResolved && s != IncidentStatusClosed && s != IncidentStatusFailed
}

// IsTerminal reports whether no further pipeline transitions are expected
func (s IncidentStatus) IsTerminal() bool {
	return !s.IsActive()
}

// IncidentSeverity represents the severity level of an incident
type IncidentSeverity string

const (
	SeverityLow     IncidentSeverity = "LOW"
	SeverityMedium  IncidentSeverity = "MEDIUM"
	SeverityHigh    IncidentSeverity = "HIGH"
	SeverityUnknown IncidentSeverity = "UNKNOWN"
)

// ParseIncidentSeverity parses a severity string (case-insensitive). The second
// return value reports whether the default (UNKNOWN) was substituted.
func ParseIncidentSeverity(raw string) (IncidentSeverity, bool) {
	switch IncidentSeverity(strings.ToUpper(strings.TrimSpace(raw))) {
	case SeverityLow:
		return SeverityLow, false
	case SeverityMedium:
		return SeverityMedium, false
	case SeverityHigh:
		return SeverityHigh, false
	case SeverityUnknown:
		return SeverityUnknown, false
	}
	return SeverityUnknown, true
}

// Priority returns a numeric priority for ordering (higher is more urgent)
func (s IncidentSeverity) Priority() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// IsUrgent reports whether the severity requires immediate escalation
func (s IncidentSeverity) IsUrgent() bool {
	return s == SeverityHigh
}

// GetSeverityEmoji returns an emoji for chat notifications
func GetSeverityEmoji(severity IncidentSeverity) string {
	switch severity {
	case SeverityHigh:
		return ":red_circle:"
	case SeverityMedium:
		return ":large_orange_circle:"
	case SeverityLow:
		return ":large_yellow_circle:"
	default:
		return ":white_circle:"
	}
}

// IncidentType classifies the kind of operational trouble reported
type IncidentType string

const (
	TypeDatabaseConnectionError IncidentType = "DATABASE_CONNECTION_ERROR"
	TypeHighCPU                 IncidentType = "HIGH_CPU"
	TypeDiskFull                IncidentType = "DISK_FULL"
	TypeMemoryLeak              IncidentType = "MEMORY_LEAK"
	TypeNetworkIssue            IncidentType = "NETWORK_ISSUE"
	TypeServiceDown             IncidentType = "SERVICE_DOWN"
	TypeSecurityBreach          IncidentType = "SECURITY_BREACH"
	TypeDataCorruption          IncidentType = "DATA_CORRUPTION"
	TypeAPIFailure              IncidentType = "API_FAILURE"
	TypeDeploymentFailure       IncidentType = "DEPLOYMENT_FAILURE"
	TypeInfrastructureFailure   IncidentType = "INFRASTRUCTURE_FAILURE"
	TypeOther                   IncidentType = "OTHER"
)

// incidentTypeDisplayNames maps types to their human-readable names
var incidentTypeDisplayNames = map[IncidentType]string{
	TypeDatabaseConnectionError: "Database Connection Error",
	TypeHighCPU:                 "High CPU Usage",
	TypeDiskFull:                "Disk Full",
	TypeMemoryLeak:              "Memory Leak",
	TypeNetworkIssue:            "Network Issue",
	TypeServiceDown:             "Service Down",
	TypeSecurityBreach:          "Security Breach",
	TypeDataCorruption:          "Data Corruption",
	TypeAPIFailure:              "API Failure",
	TypeDeploymentFailure:       "Deployment Failure",
	TypeInfrastructureFailure:   "Infrastructure Failure",
	TypeOther:                   "Other",
}

// DisplayName returns the human-readable name for the type
func (t IncidentType) DisplayName() string {
	if name, ok := incidentTypeDisplayNames[t]; ok {
		return name
	}
	return string(t)
}

// ParseIncidentType parses a type string. Accepts enum names (case-insensitive,
// spaces normalized to underscores) and display names. The second return value
// reports whether the default (OTHER) was substituted.
func ParseIncidentType(raw string) (IncidentType, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TypeOther, true
	}

	normalized := IncidentType(strings.ReplaceAll(strings.ToUpper(trimmed), " ", "_"))
	if _, ok := incidentTypeDisplayNames[normalized]; ok {
		return normalized, false
	}

	for t, display := range incidentTypeDisplayNames {
		if strings.EqualFold(display, trimmed) {
			return t, false
		}
	}
	return TypeOther, true
}

// Incident represents a reported operational incident tracked through the
// resolution pipeline. AI analysis results and integration references are
// stored alongside the source data.
type Incident struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ExternalID string `gorm:"uniqueIndex;size:255;not null" json:"external_id"`

	Type     IncidentType     `gorm:"type:varchar(50);not null;default:'OTHER';index" json:"type"`
	Severity IncidentSeverity `gorm:"type:varchar(20);not null;default:'UNKNOWN';index" json:"severity"`
	Status   IncidentStatus   `gorm:"type:varchar(20);not null;default:'RECEIVED';index" json:"status"`

	Description       string     `gorm:"type:text" json:"description"`
	Source            string     `gorm:"size:100;index" json:"source"`
	IncidentTimestamp *time.Time `json:"incident_timestamp,omitempty"`
	Metadata          JSONB      `gorm:"type:jsonb" json:"metadata"`

	// Integration tracking
	SlackChannelID string `gorm:"size:50" json:"slack_channel_id,omitempty"`
	SlackMessageTS string `gorm:"size:50" json:"slack_message_ts,omitempty"`
	TicketKey      string `gorm:"size:20" json:"ticket_key,omitempty"`

	// AI analysis results
	AISuggestion string   `gorm:"type:text" json:"ai_suggestion,omitempty"`
	AIReasoning  string   `gorm:"type:text" json:"ai_reasoning,omitempty"`
	AIConfidence *float64 `json:"ai_confidence,omitempty"`

	// Voice call tracking
	Transcription    string `gorm:"type:text" json:"transcription,omitempty"`
	RecordingURL     string `gorm:"size:500" json:"recording_url,omitempty"`
	CallDuration     *int   `json:"call_duration,omitempty"`
	ConversationUUID string `gorm:"size:100;index" json:"conversation_uuid,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func (Incident) TableName() string {
	return "incidents"
}

// SetStatus updates the status and stamps ResolvedAt exactly once when the
// incident first enters RESOLVED. Later RESOLVED transitions keep the
// original timestamp.
func (i *Incident) SetStatus(status IncidentStatus) {
	i.Status = status
	if status == IncidentStatusResolved && i.ResolvedAt == nil {
		now := time.Now()
		i.ResolvedAt = &now
	}
}

// HasSuggestion reports whether AI analysis produced a non-empty suggestion
func (i *Incident) HasSuggestion() bool {
	return strings.TrimSpace(i.AISuggestion) != ""
}

// HasChatChannel reports whether a chat channel was created for this incident
func (i *Incident) HasChatChannel() bool {
	return i.ChatChannelID() != ""
}

// ChatChannelID returns the chat channel reference, preferring the column and
// falling back to metadata written by older pipeline versions.
func (i *Incident) ChatChannelID() string {
	if i.SlackChannelID != "" {
		return i.SlackChannelID
	}
	if i.Metadata != nil {
		if v, ok := i.Metadata["slack_channel_id"].(string); ok {
			return v
		}
	}
	return ""
}

// SetMetadataValue writes a metadata key, allocating the map if needed
func (i *Incident) SetMetadataValue(key string, value interface{}) {
	if i.Metadata == nil {
		i.Metadata = make(JSONB)
	}
	i.Metadata[key] = value
}

// IsVoiceIncident reports whether the incident originated from a voice call
func (i *Incident) IsVoiceIncident() bool {
	return strings.TrimSpace(i.ConversationUUID) != ""
}

// FormattedCallDuration renders the call duration as m:ss or Ns
func (i *Incident) FormattedCallDuration() string {
	if i.CallDuration == nil {
		return ""
	}
	minutes := *i.CallDuration / 60
	seconds := *i.CallDuration % 60
	if minutes > 0 {
		return fmt.Sprintf("%d:%02d", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// VoiceProcessingStatus tracks the lifecycle of a voice call
type VoiceProcessingStatus string

const (
	// Inbound call statuses
	VoiceStatusReceived     VoiceProcessingStatus = "RECEIVED"
	VoiceStatusDownloading  VoiceProcessingStatus = "DOWNLOADING"
	VoiceStatusTranscribing VoiceProcessingStatus = "TRANSCRIBING"
	VoiceStatusProcessed    VoiceProcessingStatus = "PROCESSED"
	VoiceStatusError        VoiceProcessingStatus = "ERROR"
	VoiceStatusDuplicate    VoiceProcessingStatus = "DUPLICATE"

	// Outbound call statuses
	VoiceStatusPending    VoiceProcessingStatus = "PENDING"
	VoiceStatusProcessing VoiceProcessingStatus = "PROCESSING"
	VoiceStatusCompleted  VoiceProcessingStatus = "COMPLETED"
	VoiceStatusFailed     VoiceProcessingStatus = "FAILED"
)

// IsTerminal reports whether the voice call reached a final state
func (s VoiceProcessingStatus) IsTerminal() bool {
	switch s {
	case VoiceStatusProcessed, VoiceStatusError, VoiceStatusDuplicate,
		VoiceStatusCompleted, VoiceStatusFailed:
		return true
	}
	return false
}

// VoiceCallDirection distinguishes inbound reports from outbound notifications
type VoiceCallDirection string

const (
	VoiceDirectionInbound  VoiceCallDirection = "inbound"
	VoiceDirectionOutbound VoiceCallDirection = "outbound"
)

// VoiceCall represents one telephony interaction, optionally tied to an incident
type VoiceCall struct {
	ID               uint                  `gorm:"primaryKey" json:"id"`
	ConversationUUID string                `gorm:"uniqueIndex;size:100;not null" json:"conversation_uuid"`
	CallSID          string                `gorm:"size:100;index" json:"call_sid,omitempty"`
	Direction        VoiceCallDirection    `gorm:"type:varchar(10);not null;default:'inbound'" json:"direction"`
	Status           VoiceProcessingStatus `gorm:"type:varchar(20);not null;default:'RECEIVED';index" json:"status"`

	FromNumber string `gorm:"size:30" json:"from_number,omitempty"`
	ToNumber   string `gorm:"size:30" json:"to_number,omitempty"`

	Transcription string `gorm:"type:text" json:"transcription,omitempty"`
	RecordingURL  string `gorm:"size:500" json:"recording_url,omitempty"`
	Duration      *int   `json:"duration,omitempty"`
	ErrorMessage  string `gorm:"type:text" json:"error_message,omitempty"`

	IncidentID *uint     `gorm:"index" json:"incident_id,omitempty"`
	Incident   *Incident `gorm:"foreignKey:IncidentID" json:"incident,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (VoiceCall) TableName() string {
	return "voice_calls"
}
