package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/paintcrew/fieldtime/internal/adminedit"
	"github.com/paintcrew/fieldtime/internal/domain"
)

type editTimeEntryRequest struct {
	Patch struct {
		ClockInAt     *time.Time              `json:"clockInAt,omitempty"`
		ClockOutAt    *time.Time              `json:"clockOutAt,omitempty"`
		Notes         *string                 `json:"notes,omitempty"`
		Status        *domain.TimeEntryStatus `json:"status,omitempty"`
		ExceptionTags *[]domain.ExceptionTag  `json:"exceptionTags,omitempty"`
	} `json:"patch"`
	Reason string `json:"reason"`
}

// EditTimeEntry handles PATCH /api/v1/time-entries/{id}.
func EditTimeEntry(svc *adminedit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		var req editTimeEntryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		patch := adminedit.Patch{
			ClockInAt:     req.Patch.ClockInAt,
			ClockOutAt:    req.Patch.ClockOutAt,
			Notes:         req.Patch.Notes,
			Status:        req.Patch.Status,
			ExceptionTags: req.Patch.ExceptionTags,
		}
		if _, err := svc.EditTimeEntry(r.Context(), id, patch, req.Reason); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, map[string]bool{"ok": true})
	}
}

// GetTimeEntry handles GET /api/v1/time-entries/{id}.
func GetTimeEntry(svc *adminedit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		entry, err := svc.GetTimeEntry(r.Context(), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, entry)
	}
}

// ApproveTimeEntry handles POST /api/v1/time-entries/{id}/approve.
func ApproveTimeEntry(svc *adminedit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := svc.ApproveTimeEntry(r.Context(), id); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, map[string]bool{"ok": true})
	}
}
