package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/paintcrew/fieldtime/internal/invoice"
	"github.com/paintcrew/fieldtime/internal/pdf"
)

type generateInvoiceRequest struct {
	CustomerID    string   `json:"customerId"`
	TimeEntryIDs  []string `json:"timeEntryIds"`
	DueDate       string   `json:"dueDate"`
	Notes         string   `json:"notes"`
	JobIDOverride string   `json:"jobId,omitempty"`
	ClientEventID string   `json:"clientEventId,omitempty"`
}

// GenerateInvoice handles POST /api/v1/invoices.
func GenerateInvoice(svc *invoice.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateInvoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		result, err := svc.GenerateInvoice(r.Context(), req.CustomerID, req.TimeEntryIDs, req.DueDate, req.Notes, req.JobIDOverride, req.ClientEventID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, result)
	}
}

// GetInvoicePDFURL handles GET /api/v1/invoices/{id}/pdf-url?expiresIn= (seconds).
func GetInvoicePDFURL(svc *pdf.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var ttl time.Duration
		if raw := r.URL.Query().Get("expiresIn"); raw != "" {
			if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
				ttl = time.Duration(secs) * time.Second
			}
		}

		url, expiresAt, err := svc.GetInvoicePDFURL(r.Context(), id, ttl)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, map[string]interface{}{
			"ok":        true,
			"url":       url,
			"expiresAt": expiresAt.Format(time.RFC3339),
		})
	}
}

// RegenerateInvoicePDF handles POST /api/v1/invoices/{id}/pdf/regenerate.
func RegenerateInvoicePDF(svc *pdf.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		pdfPath, err := svc.Regenerate(r.Context(), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, map[string]interface{}{"ok": true, "pdfPath": pdfPath})
	}
}
