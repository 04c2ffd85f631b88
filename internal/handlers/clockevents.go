package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/paintcrew/fieldtime/internal/clockevents"
)

type clockInRequest struct {
	JobID         string   `json:"jobId"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	Accuracy      *float64 `json:"accuracy,omitempty"`
	CoordsPresent bool     `json:"coordsPresent"`
	ClientEventID string   `json:"clientEventId"`
	DeviceID      string   `json:"deviceId"`
}

type clockOutRequest struct {
	TimeEntryID   string   `json:"timeEntryId"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	Accuracy      *float64 `json:"accuracy,omitempty"`
	CoordsPresent bool     `json:"coordsPresent"`
	ClientEventID string   `json:"clientEventId"`
	DeviceID      string   `json:"deviceId"`
}

// ClockIn handles POST /api/v1/clock-events/in.
func ClockIn(svc *clockevents.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clockInRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		result, err := svc.ClockIn(r.Context(), req.JobID, req.Lat, req.Lng, req.Accuracy, req.CoordsPresent, req.ClientEventID, req.DeviceID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, result)
	}
}

// ClockOut handles POST /api/v1/clock-events/out.
func ClockOut(svc *clockevents.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clockOutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		result, err := svc.ClockOut(r.Context(), req.TimeEntryID, req.Lat, req.Lng, req.Accuracy, req.CoordsPresent, req.ClientEventID, req.DeviceID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, result)
	}
}
