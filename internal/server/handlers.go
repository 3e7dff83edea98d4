package server

import (
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/rahul/trailhead/internal/tour"
)

type handlers struct {
	statuses Statuses
	catalog  *tour.Catalog
	maxBody  int64
}

type updateRequest struct {
	UserID    string `json:"userId"`
	TourName  string `json:"tourName"`
	Completed bool   `json:"completed"`
}

type bulkUpdateRequest struct {
	UserID string          `json:"userId"`
	Tours  map[string]bool `json:"tours"`
}

type statusResponse struct {
	UserID string          `json:"userId"`
	Tours  map[string]bool `json:"tours"`
}

func (h *handlers) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("userId"))
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "User ID is required")
		return
	}

	status, err := h.statuses.GetStatus(r.Context(), userID)
	if err != nil {
		log.Printf("Error fetching tour status for %s: %v", userID, err)
		writeError(w, r, http.StatusInternalServerError, "Failed to fetch tour status")
		return
	}
	// tours the user never touched are reported as not completed
	for _, name := range h.catalog.Names() {
		if _, ok := status[name]; !ok {
			status[name] = false
		}
	}
	writeJSON(w, r, http.StatusOK, statusResponse{UserID: userID, Tours: status})
}

func (h *handlers) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.UserID) == "" || req.TourName == "" {
		writeError(w, r, http.StatusBadRequest, "User ID and tour name are required")
		return
	}
	if !h.catalog.Has(req.TourName) {
		writeError(w, r, http.StatusBadRequest, "Invalid tour name")
		return
	}

	if err := h.statuses.SetStatus(r.Context(), req.UserID, req.TourName, req.Completed); err != nil {
		log.Printf("Error updating tour status: %v", err)
		writeError(w, r, http.StatusInternalServerError, "Failed to update tour status")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{req.TourName: req.Completed})
}

func (h *handlers) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.UserID) == "" || len(req.Tours) == 0 {
		writeError(w, r, http.StatusBadRequest, "User ID and tours object are required")
		return
	}
	var unknown []string
	for name := range req.Tours {
		if !h.catalog.Has(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		writeError(w, r, http.StatusBadRequest, "Invalid tour name: "+strings.Join(unknown, ", "))
		return
	}

	if err := h.statuses.BulkSetStatus(r.Context(), req.UserID, req.Tours); err != nil {
		log.Printf("Error bulk updating tour status: %v", err)
		writeError(w, r, http.StatusInternalServerError, "Failed to bulk update tour status")
		return
	}
	writeJSON(w, r, http.StatusOK, req.Tours)
}

func (h *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statuses.Stats(r.Context())
	if err != nil {
		log.Printf("Error fetching tour stats: %v", err)
		writeError(w, r, http.StatusInternalServerError, "Failed to fetch tour stats")
		return
	}
	for _, name := range h.catalog.Names() {
		if _, ok := stats.Completed[name]; !ok {
			stats.Completed[name] = 0
		}
	}
	writeJSON(w, r, http.StatusOK, stats)
}

func (h *handlers) handleListTours(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.catalog.Names())
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
