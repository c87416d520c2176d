package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrDuplicateVoiceCall is returned when a conversation UUID already exists
var ErrDuplicateVoiceCall = errors.New("voice call with this conversation UUID already exists")

// VoiceCallStore provides durable persistence for voice calls
type VoiceCallStore struct {
	db *gorm.DB
}

// NewVoiceCallStore creates a new VoiceCallStore
func NewVoiceCallStore(db *gorm.DB) *VoiceCallStore {
	return &VoiceCallStore{db: db}
}

// Create inserts a new voice call. A collision on the conversation UUID is
// reported as ErrDuplicateVoiceCall so callers can mark the attempt DUPLICATE.
func (s *VoiceCallStore) Create(call *VoiceCall) error {
	if call.ConversationUUID == "" {
		return errors.New("conversation UUID is required")
	}
	if err := s.db.Create(call).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateVoiceCall
		}
		return fmt.Errorf("failed to create voice call: %w", err)
	}
	return nil
}

// Save persists the current state of an existing voice call
func (s *VoiceCallStore) Save(call *VoiceCall) error {
	if err := s.db.Save(call).Error; err != nil {
		return fmt.Errorf("failed to save voice call: %w", err)
	}
	return nil
}

// FindByConversationUUID retrieves a voice call by its conversation UUID
func (s *VoiceCallStore) FindByConversationUUID(conversationUUID string) (*VoiceCall, error) {
	var call VoiceCall
	if err := s.db.Where("conversation_uuid = ?", conversationUUID).First(&call).Error; err != nil {
		return nil, err
	}
	return &call, nil
}

// ListByIncident returns all voice calls linked to an incident
func (s *VoiceCallStore) ListByIncident(incidentID uint) ([]VoiceCall, error) {
	var calls []VoiceCall
	if err := s.db.Where("incident_id = ?", incidentID).Order("created_at ASC").Find(&calls).Error; err != nil {
		return nil, fmt.Errorf("failed to list voice calls: %w", err)
	}
	return calls, nil
}
