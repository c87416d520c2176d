package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrDuplicateIncident is returned when an external ID already exists
var ErrDuplicateIncident = errors.New("incident with this external ID already exists")

// IncidentStore provides durable persistence for incidents. External-ID
// uniqueness is enforced by a database unique index, so concurrent submissions
// with the same ID result in exactly one created row.
type IncidentStore struct {
	db *gorm.DB
}

// NewIncidentStore creates a new IncidentStore
func NewIncidentStore(db *gorm.DB) *IncidentStore {
	return &IncidentStore{db: db}
}

// Exists reports whether an incident with the given external ID exists
func (s *IncidentStore) Exists(externalID string) (bool, error) {
	var count int64
	if err := s.db.Model(&Incident{}).Where("external_id = ?", externalID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check incident existence: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new incident. A unique-index collision on the external ID
// is reported as ErrDuplicateIncident.
func (s *IncidentStore) Create(incident *Incident) error {
	if incident.ExternalID == "" {
		return errors.New("external ID is required")
	}
	if err := s.db.Create(incident).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateIncident
		}
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// Save persists the current state of an existing incident
func (s *IncidentStore) Save(incident *Incident) error {
	if err := s.db.Save(incident).Error; err != nil {
		return fmt.Errorf("failed to save incident: %w", err)
	}
	return nil
}

// FindByExternalID retrieves an incident by its external ID
func (s *IncidentStore) FindByExternalID(externalID string) (*Incident, error) {
	var incident Incident
	if err := s.db.Where("external_id = ?", externalID).First(&incident).Error; err != nil {
		return nil, err
	}
	return &incident, nil
}

// FindByID retrieves an incident by its internal ID
func (s *IncidentStore) FindByID(id uint) (*Incident, error) {
	var incident Incident
	if err := s.db.First(&incident, id).Error; err != nil {
		return nil, err
	}
	return &incident, nil
}

// IncidentFilter narrows a List query. Zero values mean "no filter".
type IncidentFilter struct {
	Type     IncidentType
	Severity IncidentSeverity
	Status   IncidentStatus
	Source   string
	Page     int
	PageSize int
}

// List returns a page of incidents matching the filter, newest first,
// together with the total match count.
func (s *IncidentStore) List(filter IncidentFilter) ([]Incident, int64, error) {
	query := s.db.Model(&Incident{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Source != "" {
		query = query.Where("source = ?", filter.Source)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	var incidents []Incident
	err := query.Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&incidents).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	return incidents, total, nil
}

// IncidentStats aggregates incident counts for reporting
type IncidentStats struct {
	TotalIncidents   int64            `json:"total_incidents"`
	ActiveIncidents  int64            `json:"active_incidents"`
	HighSeverity     int64            `json:"high_severity_incidents"`
	Resolved         int64            `json:"resolved_incidents"`
	RecentIncidents  int64            `json:"recent_incidents_24h"`
	ByStatus         map[string]int64 `json:"by_status"`
	BySeverity       map[string]int64 `json:"by_severity"`
	ByType           map[string]int64 `json:"by_type"`
	BySource         map[string]int64 `json:"by_source"`
}

// Stats computes incident statistics across the whole store
func (s *IncidentStore) Stats() (*IncidentStats, error) {
	stats := &IncidentStats{
		ByStatus:   make(map[string]int64),
		BySeverity: make(map[string]int64),
		ByType:     make(map[string]int64),
		BySource:   make(map[string]int64),
	}

	if err := s.db.Model(&Incident{}).Count(&stats.TotalIncidents).Error; err != nil {
		return nil, fmt.Errorf("failed to count incidents: %w", err)
	}
	s.db.Model(&Incident{}).
		Where("status NOT IN ?", []IncidentStatus{IncidentStatusResolved, IncidentStatusClosed, IncidentStatusFailed}).
		Count(&stats.ActiveIncidents)
	s.db.Model(&Incident{}).Where("severity = ?", SeverityHigh).Count(&stats.HighSeverity)
	s.db.Model(&Incident{}).Where("status = ?", IncidentStatusResolved).Count(&stats.Resolved)
	s.db.Model(&Incident{}).Where("created_at > ?", time.Now().Add(-24*time.Hour)).Count(&stats.RecentIncidents)

	type countRow struct {
		Key   string
		Count int64
	}
	for column, target := range map[string]map[string]int64{
		"status":   stats.ByStatus,
		"severity": stats.BySeverity,
		"type":     stats.ByType,
		"source":   stats.BySource,
	} {
		var rows []countRow
		err := s.db.Model(&Incident{}).
			Select(column+" AS key, COUNT(*) AS count").
			Group(column).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate by %s: %w", column, err)
		}
		for _, row := range rows {
			if row.Key != "" {
				target[row.Key] = row.Count
			}
		}
	}

	return stats, nil
}
