package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/xlbiz/incident-agent/internal/classifier"
	"github.com/xlbiz/incident-agent/internal/database"
	"github.com/xlbiz/incident-agent/internal/knowledge"
	"github.com/xlbiz/incident-agent/internal/slack"
	"github.com/xlbiz/incident-agent/internal/voice"
	"github.com/xlbiz/incident-agent/internal/workers"
)

const (
	defaultMaxMatches     = 5
	defaultMatchThreshold = 0.8
)

// IncidentRequest is a new incident submission
type IncidentRequest struct {
	ID          string                 `json:"id"`
	Description string                 `json:"description"`
	Source      string                 `json:"source"`
	Type        string                 `json:"type,omitempty"`
	Severity    string                 `json:"severity,omitempty"`
	Timestamp   *time.Time             `json:"timestamp,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// IncidentResponse is the synchronous result of a submission
type IncidentResponse struct {
	IncidentID uint                      `json:"incident_id,omitempty"`
	ExternalID string                    `json:"external_id"`
	Status     database.IncidentStatus   `json:"status"`
	Severity   database.IncidentSeverity `json:"severity,omitempty"`
	Suggestion string                    `json:"suggestion,omitempty"`
	Confidence *float64                  `json:"confidence,omitempty"`
	Message    string                    `json:"message"`
}

// IncidentServiceDeps wires the capabilities the pipeline consumes
type IncidentServiceDeps struct {
	Store       *database.IncidentStore
	Voice       *VoiceService
	Matcher     knowledge.Searcher
	Classifier  classifier.Classifier
	Chat        slack.ChatNotifier
	VoiceConfig voice.Config

	// Bounded pools isolating integration and AI latency. Nil pools run inline.
	IntegrationPool *workers.Pool
	ClassifierPool  *workers.Pool

	MaxMatches     int
	MatchThreshold float64
}

// IncidentService drives incidents through the resolution pipeline and serves
// status, listing, and knowledge queries.
type IncidentService struct {
	deps       IncidentServiceDeps
	dispatcher *NotificationDispatcher
}

// NewIncidentService creates the service with defaults applied
func NewIncidentService(deps IncidentServiceDeps) *IncidentService {
	if deps.MaxMatches <= 0 {
		deps.MaxMatches = defaultMaxMatches
	}
	if deps.MatchThreshold <= 0 {
		deps.MatchThreshold = defaultMatchThreshold
	}
	return &IncidentService{
		deps:       deps,
		dispatcher: NewNotificationDispatcher(deps.Chat),
	}
}

// stepOutcome classifies what a pipeline step produced
type stepOutcome int

const (
	stepOK stepOutcome = iota
	stepSkip
	stepNonFatal
	stepFatal
)

type pipelineStep struct {
	name string
	run  func(ctx context.Context, state *pipelineState) (stepOutcome, error)
}

// pipelineState is the working set of one submission
type pipelineState struct {
	req            IncidentRequest
	inc            *database.Incident
	matches        []knowledge.Match
	foundGoodMatch bool
}

// pipelineSteps is the ordered step table. The driver loop applies the
// outcome policy: fatal aborts with a FAILED result, non-fatal logs and
// continues, skip moves on.
func (s *IncidentService) pipelineSteps() []pipelineStep {
	return []pipelineStep{
		{"duplicate check", s.stepDuplicateCheck},
		{"create incident", s.stepCreateIncident},
		{"knowledge lookup", s.stepKnowledgeLookup},
		{"apply knowledge solution", s.stepApplyKnowledgeSolution},
		{"classify", s.stepClassify},
		{"chat notification", s.stepChatNotify},
		{"voice notification", s.stepVoiceNotify},
	}
}

// ProcessIncident runs a submission through the pipeline. Fatal errors are
// converted to a FAILED response at this boundary; they never propagate as
// raw errors to the caller.
func (s *IncidentService) ProcessIncident(ctx context.Context, req IncidentRequest) *IncidentResponse {
	state := &pipelineState{req: req}

	for _, step := range s.pipelineSteps() {
		outcome, err := step.run(ctx, state)
		switch outcome {
		case stepFatal:
			if errors.Is(err, database.ErrDuplicateIncident) {
				return s.duplicateResponse(req.ID)
			}
			log.Printf("Pipeline step %q failed for incident %s: %v", step.name, req.ID, err)
			return s.failedResponse(state, err)
		case stepNonFatal:
			log.Printf("Pipeline step %q degraded for incident %s: %v", step.name, req.ID, err)
		}
	}

	inc := state.inc
	return &IncidentResponse{
		IncidentID: inc.ID,
		ExternalID: inc.ExternalID,
		Status:     inc.Status,
		Severity:   inc.Severity,
		Suggestion: inc.AISuggestion,
		Confidence: inc.AIConfidence,
		Message:    "Incident processed",
	}
}

func (s *IncidentService) stepDuplicateCheck(ctx context.Context, state *pipelineState) (stepOutcome, error) {
	exists, err := s.deps.Store.Exists(state.req.ID)
	if err != nil {
		return stepFatal, fmt.Errorf("duplicate check failed: %w", err)
	}
	if exists {
		return stepFatal, database.ErrDuplicateIncident
	}
	return stepOK, nil
}

func (s *IncidentService) stepCreateIncident(ctx context.Context, state *pipelineState) (stepOutcome, error) {
	inc := &database.Incident{
		ExternalID:        state.req.ID,
		Type:              database.TypeOther,
		Severity:          database.SeverityUnknown,
		Status:            database.IncidentStatusReceived,
		Description:       state.req.Description,
		Source:            state.req.Source,
		IncidentTimestamp: state.req.Timestamp,
		Metadata:          database.JSONB(state.req.Metadata),
	}
	if err := s.deps.Store.Create(inc); err != nil {
		// A concurrent submission can slip past the existence check; the
		// unique index still guarantees a single row.
		return stepFatal, err
	}
	state.inc = inc
	return stepOK, nil
}

func (s *IncidentService) stepKnowledgeLookup(ctx context.Context, state *pipelineState) (stepOutcome, error) {
	matches, err := s.deps.Matcher.Search(ctx, state.req.Description, s.deps.MaxMatches)
	if err != nil {
		return stepFatal, fmt.Errorf("knowledge lookup failed: %w", err)
	}
	state.matches = matches
	state.foundGoodMatch = len(matches) > 0 && matches[0].SimilarityScore > s.deps.MatchThreshold
	return stepOK, nil
}

func (s *IncidentService) stepApplyKnowledgeSolution(ctx context.Context, state *pipelineState) (stepOutcome, error) {
	if !state.foundGoodMatch {
		return stepSkip, nil
	}

	best := state.matches[0]
	inc := state.inc

	incidentType, _ := database.ParseIncidentType(best.Entry.PatternType)
	inc.Type = incidentType

	severity, defaulted := database.ParseIncidentSeverity(best.Entry.Severity)
	if defaulted {
		severity = database.SeverityMedium
	}
	inc.Severity = severity

	score := best.SimilarityScore
	inc.AISuggestion = buildKnowledgeSolution(best, state.matches)
	inc.AIReasoning = knowledgeReasoning(best)
	inc.AIConfidence = &score

	if _, err := Transition(inc, database.IncidentStatusProcessing); err != nil {
		return stepFatal, err
	}
	if err := s.deps.Store.Save(inc); err != nil {
		return stepFatal, err
	}
	log.Printf("Applied knowledge solution %q to incident %s (similarity %s)",
		best.Entry.Title, inc.ExternalID, best.FormattedSimilarity())
	return stepOK, nil
}

func (s *IncidentService) stepClassify(ctx context.Context, state *pipelineState) (stepOutcome, error) {
	if state.foundGoodMatch {
		return stepSkip, nil
	}

	inc := state.inc
	if _, err := Transition(inc, database.IncidentStatusClassifying); err != nil {
		return stepFatal, err
	}
	if err := s.deps.Store.Save(inc); err != nil {
		return stepFatal, err
	}

	var result *classifier.Result
	var classifyErr error
	err := runBounded(ctx, s.deps.ClassifierPool, func(ctx context.Context) {
		result, classifyErr = s.deps.Classifier.Classify(ctx, classifier.IncidentInput{
			ExternalID:  inc.ExternalID,
			Type:        inc.Type,
			Severity:    inc.Severity,
			Description: inc.Description,
			Source:      inc.Source,
		})
	})
	if err != nil {
		return stepFatal, fmt.Errorf("failed to schedule classification: %w", err)
	}
	if classifyErr != nil {
		return stepFatal, fmt.Errorf("classification failed: %w", classifyErr)
	}

	if result.Severity != database.SeverityUnknown {
		inc.Severity = result.Severity
	}
	incidentType, _ := database.ParseIncidentType(state.req.Type)
	inc.Type = incidentType

	confidence := result.Confidence
	inc.AISuggestion = appendKnowledgeSection(result.Suggestion, state.matches)
	inc.AIReasoning = result.Reasoning
	inc.AIConfidence = &confidence

	if _, err := Transition(inc, database.IncidentStatusProcessing); err != nil {
		return stepFatal, err
	}
	if err := s.deps.Store.Save(inc); err != nil {
		return stepFatal, err
	}
	return stepOK, nil
}

func (s *IncidentService) stepChatNotify(ctx context.Context, state *pipelineState) (stepOutcome, error) {
	if s.deps.Chat == nil {
		return stepSkip, nil
	}

	inc := state.inc
	var result *slack.PostResult
	err := runBounded(ctx, s.deps.IntegrationPool, func(ctx context.Context) {
		result = s.deps.Chat.PostIncident(ctx, inc, inc.AISuggestion)
	})
	if err != nil {
		return stepNonFatal, fmt.Errorf("failed to schedule chat notification: %w", err)
	}
	if !result.Successful {
		return stepNonFatal, fmt.Errorf("chat notification failed: %s", result.ErrorMessage)
	}

	inc.SlackChannelID = result.ChannelID
	inc.SlackMessageTS = result.MessageTS
	inc.SetMetadataValue("slack_channel_id", result.ChannelID)
	if err := s.deps.Store.Save(inc); err != nil {
		return stepNonFatal, fmt.Errorf("failed to persist chat channel reference: %w", err)
	}
	return stepOK, nil
}

func (s *IncidentService) stepVoiceNotify(ctx context.Context, state *pipelineState) (stepOutcome, error) {
	inc := state.inc
	if !inc.HasSuggestion() || s.deps.Voice == nil || !s.deps.VoiceConfig.IsConfigured() {
		return stepSkip, nil
	}

	number := s.deps.VoiceConfig.NumberForSeverity(inc.Severity)
	if number == "" {
		return stepSkip, nil
	}

	var callErr error
	err := runBounded(ctx, s.deps.IntegrationPool, func(ctx context.Context) {
		_, callErr = s.deps.Voice.PlaceOutboundCall(ctx, inc, number)
	})
	if err != nil {
		return stepNonFatal, fmt.Errorf("failed to schedule voice notification: %w", err)
	}
	if callErr != nil {
		return stepNonFatal, fmt.Errorf("voice notification failed: %w", callErr)
	}
	return stepOK, nil
}

// duplicateResponse reports an external-ID collision without creating state
func (s *IncidentService) duplicateResponse(externalID string) *IncidentResponse {
	resp := &IncidentResponse{
		ExternalID: externalID,
		Message:    fmt.Sprintf("Incident with external ID %s already exists", externalID),
	}
	if existing, err := s.deps.Store.FindByExternalID(externalID); err == nil {
		resp.IncidentID = existing.ID
		resp.Status = existing.Status
		resp.Severity = existing.Severity
	}
	return resp
}

// failedResponse converts a fatal pipeline error into a FAILED result,
// persisting the failure on the incident when one was created. Partial state
// stays in the store for inspection and retry.
func (s *IncidentService) failedResponse(state *pipelineState, cause error) *IncidentResponse {
	resp := &IncidentResponse{
		ExternalID: state.req.ID,
		Status:     database.IncidentStatusFailed,
		Message:    fmt.Sprintf("Incident processing failed: %v", cause),
	}
	if state.inc != nil {
		state.inc.SetStatus(database.IncidentStatusFailed)
		if err := s.deps.Store.Save(state.inc); err != nil {
			log.Printf("Failed to persist FAILED status for incident %s: %v", state.req.ID, err)
		}
		resp.IncidentID = state.inc.ID
		resp.Severity = state.inc.Severity
	}
	return resp
}

// GetIncident returns the persisted snapshot for an external ID
func (s *IncidentService) GetIncident(externalID string) (*database.Incident, error) {
	return s.deps.Store.FindByExternalID(externalID)
}

// ListIncidents returns a filtered page of incidents with the total count
func (s *IncidentService) ListIncidents(filter database.IncidentFilter) ([]database.Incident, int64, error) {
	return s.deps.Store.List(filter)
}

// GetStatistics aggregates incident counts for reporting
func (s *IncidentService) GetStatistics() (*database.IncidentStats, error) {
	return s.deps.Store.Stats()
}

// UpdateIncidentStatus applies an externally requested status change,
// persisting the transition first and running notification side effects
// afterwards. Notification failures never undo the persisted change.
func (s *IncidentService) UpdateIncidentStatus(ctx context.Context, externalID, rawStatus string) (*database.Incident, error) {
	status, defaulted := database.ParseIncidentStatus(rawStatus)
	if defaulted {
		return nil, fmt.Errorf("unknown incident status %q", rawStatus)
	}

	inc, err := s.deps.Store.FindByExternalID(externalID)
	if err != nil {
		return nil, fmt.Errorf("incident %s not found: %w", externalID, err)
	}

	previous := inc.Status
	effects, err := Transition(inc, status)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Store.Save(inc); err != nil {
		return nil, err
	}

	for _, effect := range effects {
		if effect != SideEffectNotifyStatus {
			continue
		}
		// Archival is handled inside the dispatcher together with the
		// resolution message.
		if err := runBounded(ctx, s.deps.IntegrationPool, func(ctx context.Context) {
			s.dispatcher.NotifyStatusChange(ctx, inc, previous, status)
		}); err != nil {
			log.Printf("Failed to schedule status notification for %s: %v", externalID, err)
		}
	}
	return inc, nil
}

// SearchKnowledgeBase is an ad hoc passthrough to the similarity matcher
func (s *IncidentService) SearchKnowledgeBase(ctx context.Context, query string, maxResults int) ([]knowledge.Match, error) {
	if maxResults <= 0 {
		maxResults = s.deps.MaxMatches
	}
	return s.deps.Matcher.Search(ctx, query, maxResults)
}

// FindSimilarIncidents searches the knowledge base with an existing
// incident's description
func (s *IncidentService) FindSimilarIncidents(ctx context.Context, externalID string, maxResults int) ([]knowledge.Match, error) {
	inc, err := s.deps.Store.FindByExternalID(externalID)
	if err != nil {
		return nil, fmt.Errorf("incident %s not found: %w", externalID, err)
	}
	return s.SearchKnowledgeBase(ctx, inc.Description, maxResults)
}

// runBounded runs fn through the pool when one is configured, waiting for it
// to finish so the caller's step ordering is preserved
func runBounded(ctx context.Context, pool *workers.Pool, fn func(ctx context.Context)) error {
	if pool == nil {
		fn(ctx)
		return nil
	}
	done := make(chan struct{})
	if err := pool.Submit(ctx, func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	}); err != nil {
		return err
	}
	<-done
	return nil
}
