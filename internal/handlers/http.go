// Package handlers exposes the incident pipeline over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/xlbiz/incident-agent/internal/database"
	"github.com/xlbiz/incident-agent/internal/ratelimit"
	"github.com/xlbiz/incident-agent/internal/services"
)

// IncidentHandler handles HTTP endpoints for the incident API
type IncidentHandler struct {
	service *services.IncidentService
}

// NewIncidentHandler creates a new IncidentHandler
func NewIncidentHandler(service *services.IncidentService) *IncidentHandler {
	return &IncidentHandler{service: service}
}

// SetupRoutes configures all HTTP routes. The admission limiter gates only
// the trigger endpoint; a nil limiter disables rate limiting.
func (h *IncidentHandler) SetupRoutes(mux *http.ServeMux, limiter *ratelimit.Limiter) {
	trigger := http.Handler(http.HandlerFunc(h.handleTrigger))
	if limiter != nil {
		trigger = ratelimit.Middleware(limiter)(trigger)
	}
	mux.Handle("/api/incidents/trigger", trigger)

	mux.HandleFunc("/api/incidents/stats", h.handleStats)
	mux.HandleFunc("/api/incidents", h.handleList)
	mux.HandleFunc("/api/incidents/", h.handleIncidentSubpath)
	mux.HandleFunc("/api/knowledge/search", h.handleKnowledgeSearch)
	mux.HandleFunc("/health", h.handleHealth)
}

// handleTrigger accepts a new incident submission and runs the pipeline
func (h *IncidentHandler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req services.IncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "Field 'id' is required")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "Field 'description' is required")
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		writeError(w, http.StatusBadRequest, "Field 'source' is required")
		return
	}

	resp := h.service.ProcessIncident(r.Context(), req)

	status := http.StatusOK
	switch {
	case strings.Contains(resp.Message, "already exists"):
		status = http.StatusConflict
	case resp.Status == database.IncidentStatusFailed:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

// handleIncidentSubpath routes /api/incidents/{externalId}/status and
// /api/incidents/{externalId}/similar
func (h *IncidentHandler) handleIncidentSubpath(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/incidents/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	externalID := parts[0]

	switch parts[1] {
	case "status":
		switch r.Method {
		case http.MethodGet:
			h.getStatus(w, externalID)
		case http.MethodPatch:
			h.updateStatus(w, r, externalID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	case "similar":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.getSimilar(w, r, externalID)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *IncidentHandler) getStatus(w http.ResponseWriter, externalID string) {
	inc, err := h.service.GetIncident(externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "Incident not found")
			return
		}
		log.Printf("Failed to load incident %s: %v", externalID, err)
		writeError(w, http.StatusInternalServerError, "Failed to load incident")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// statusUpdateRequest is the PATCH body for a status change
type statusUpdateRequest struct {
	Status string `json:"status"`
}

func (h *IncidentHandler) updateStatus(w http.ResponseWriter, r *http.Request, externalID string) {
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeError(w, http.StatusBadRequest, "Field 'status' is required")
		return
	}

	inc, err := h.service.UpdateIncidentStatus(r.Context(), externalID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			writeError(w, http.StatusNotFound, "Incident not found")
		case strings.Contains(err.Error(), "unknown incident status"),
			strings.Contains(err.Error(), "illegal status transition"):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("Failed to update status for %s: %v", externalID, err)
			writeError(w, http.StatusInternalServerError, "Failed to update incident status")
		}
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentHandler) getSimilar(w http.ResponseWriter, r *http.Request, externalID string) {
	maxResults, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	matches, err := h.service.FindSimilarIncidents(r.Context(), externalID, maxResults)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "Incident not found")
			return
		}
		log.Printf("Similarity search failed for %s: %v", externalID, err)
		writeError(w, http.StatusBadGateway, "Knowledge base search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"external_id": externalID,
		"matches":     matches,
	})
}

// handleList returns a filtered page of incidents
func (h *IncidentHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()
	filter := database.IncidentFilter{Source: query.Get("source")}
	if raw := query.Get("type"); raw != "" {
		if t, defaulted := database.ParseIncidentType(raw); !defaulted {
			filter.Type = t
		}
	}
	if raw := query.Get("severity"); raw != "" {
		if s, defaulted := database.ParseIncidentSeverity(raw); !defaulted {
			filter.Severity = s
		}
	}
	if raw := query.Get("status"); raw != "" {
		if s, defaulted := database.ParseIncidentStatus(raw); !defaulted {
			filter.Status = s
		}
	}
	filter.Page, _ = strconv.Atoi(query.Get("page"))
	filter.PageSize, _ = strconv.Atoi(query.Get("page_size"))

	incidents, total, err := h.service.ListIncidents(filter)
	if err != nil {
		log.Printf("Failed to list incidents: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list incidents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"incidents": incidents,
		"total":     total,
	})
}

// handleStats returns aggregate incident statistics
func (h *IncidentHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := h.service.GetStatistics()
	if err != nil {
		log.Printf("Failed to compute statistics: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// knowledgeSearchRequest is the POST body for ad hoc knowledge queries
type knowledgeSearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

// handleKnowledgeSearch runs an ad hoc similarity query
func (h *IncidentHandler) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req knowledgeSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Field 'query' is required")
		return
	}

	matches, err := h.service.SearchKnowledgeBase(r.Context(), req.Query, req.MaxResults)
	if err != nil {
		log.Printf("Knowledge search failed: %v", err)
		writeError(w, http.StatusBadGateway, "Knowledge base search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   req.Query,
		"matches": matches,
	})
}

// handleHealth returns a simple health check response
func (h *IncidentHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
