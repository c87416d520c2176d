package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/xlbiz/incident-agent/internal/database"
	"github.com/xlbiz/incident-agent/internal/voice"
)

// voiceTransitions lists the legal lifecycle moves for inbound call processing
var voiceTransitions = map[database.VoiceProcessingStatus][]database.VoiceProcessingStatus{
	database.VoiceStatusReceived:     {database.VoiceStatusDownloading, database.VoiceStatusError},
	database.VoiceStatusDownloading:  {database.VoiceStatusTranscribing, database.VoiceStatusError},
	database.VoiceStatusTranscribing: {database.VoiceStatusProcessed, database.VoiceStatusError},
	database.VoiceStatusPending:      {database.VoiceStatusProcessing, database.VoiceStatusFailed},
	database.VoiceStatusProcessing:   {database.VoiceStatusCompleted, database.VoiceStatusFailed},
}

// VoiceService manages voice call records: the inbound transcription
// lifecycle and outbound notification calls placed for incidents.
type VoiceService struct {
	calls    *database.VoiceCallStore
	notifier voice.Notifier
}

// NewVoiceService creates a VoiceService. The notifier may be nil when
// outbound calling is not configured.
func NewVoiceService(calls *database.VoiceCallStore, notifier voice.Notifier) *VoiceService {
	return &VoiceService{calls: calls, notifier: notifier}
}

// RegisterInboundCall records a new inbound call in RECEIVED. A repeated
// conversation UUID returns the existing record together with
// database.ErrDuplicateVoiceCall so webhook retries are absorbed.
func (s *VoiceService) RegisterInboundCall(conversationUUID, fromNumber, toNumber string) (*database.VoiceCall, error) {
	call := &database.VoiceCall{
		ConversationUUID: conversationUUID,
		Direction:        database.VoiceDirectionInbound,
		Status:           database.VoiceStatusReceived,
		FromNumber:       fromNumber,
		ToNumber:         toNumber,
	}
	if err := s.calls.Create(call); err != nil {
		if errors.Is(err, database.ErrDuplicateVoiceCall) {
			existing, findErr := s.calls.FindByConversationUUID(conversationUUID)
			if findErr != nil {
				return nil, fmt.Errorf("failed to load duplicate voice call: %w", findErr)
			}
			log.Printf("Duplicate inbound call for conversation %s, ignoring", conversationUUID)
			return existing, database.ErrDuplicateVoiceCall
		}
		return nil, err
	}
	return call, nil
}

// AdvanceCall moves an inbound call to the next lifecycle status
func (s *VoiceService) AdvanceCall(conversationUUID string, to database.VoiceProcessingStatus) (*database.VoiceCall, error) {
	call, err := s.calls.FindByConversationUUID(conversationUUID)
	if err != nil {
		return nil, fmt.Errorf("voice call %s not found: %w", conversationUUID, err)
	}
	if err := transitionVoiceCall(call, to); err != nil {
		return nil, err
	}
	if err := s.calls.Save(call); err != nil {
		return nil, err
	}
	return call, nil
}

// CompleteTranscription attaches the transcription result and marks the call
// PROCESSED, optionally linking it to the incident it produced.
func (s *VoiceService) CompleteTranscription(conversationUUID, transcription, recordingURL string, duration int, incidentID *uint) (*database.VoiceCall, error) {
	call, err := s.calls.FindByConversationUUID(conversationUUID)
	if err != nil {
		return nil, fmt.Errorf("voice call %s not found: %w", conversationUUID, err)
	}
	if err := transitionVoiceCall(call, database.VoiceStatusProcessed); err != nil {
		return nil, err
	}

	call.Transcription = transcription
	call.RecordingURL = recordingURL
	call.Duration = &duration
	call.IncidentID = incidentID

	if err := s.calls.Save(call); err != nil {
		return nil, err
	}
	return call, nil
}

// FailCall marks an inbound call as ERROR with the cause recorded
func (s *VoiceService) FailCall(conversationUUID, reason string) (*database.VoiceCall, error) {
	call, err := s.calls.FindByConversationUUID(conversationUUID)
	if err != nil {
		return nil, fmt.Errorf("voice call %s not found: %w", conversationUUID, err)
	}
	if call.Status.IsTerminal() {
		return nil, fmt.Errorf("voice call %s already terminal in %s", conversationUUID, call.Status)
	}
	call.Status = database.VoiceStatusError
	call.ErrorMessage = reason
	if err := s.calls.Save(call); err != nil {
		return nil, err
	}
	return call, nil
}

// PlaceOutboundCall records and places an outbound notification call for an
// incident. The record moves PENDING -> PROCESSING -> COMPLETED or FAILED,
// each stage persisted, so a crash leaves an inspectable call record.
func (s *VoiceService) PlaceOutboundCall(ctx context.Context, inc *database.Incident, number string) (string, error) {
	if s.notifier == nil {
		return "", errors.New("voice notifier is not configured")
	}

	call := &database.VoiceCall{
		ConversationUUID: uuid.NewString(),
		Direction:        database.VoiceDirectionOutbound,
		Status:           database.VoiceStatusPending,
		ToNumber:         number,
		IncidentID:       &inc.ID,
	}
	if err := s.calls.Create(call); err != nil {
		return "", err
	}

	call.Status = database.VoiceStatusProcessing
	if err := s.calls.Save(call); err != nil {
		return "", err
	}

	sid, err := s.notifier.PlaceIncidentCall(ctx, number, inc.ExternalID, inc.Severity, inc.Description, inc.AISuggestion)
	if err != nil {
		call.Status = database.VoiceStatusFailed
		call.ErrorMessage = err.Error()
		if saveErr := s.calls.Save(call); saveErr != nil {
			log.Printf("Failed to record voice call failure for %s: %v", inc.ExternalID, saveErr)
		}
		return "", err
	}

	call.CallSID = sid
	call.Status = database.VoiceStatusCompleted
	if err := s.calls.Save(call); err != nil {
		log.Printf("Failed to record voice call completion for %s: %v", inc.ExternalID, err)
	}
	return sid, nil
}

func transitionVoiceCall(call *database.VoiceCall, to database.VoiceProcessingStatus) error {
	for _, allowed := range voiceTransitions[call.Status] {
		if allowed == to {
			call.Status = to
			return nil
		}
	}
	return fmt.Errorf("illegal voice call transition %s -> %s for conversation %s", call.Status, to, call.ConversationUUID)
}
