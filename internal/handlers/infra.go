package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/paintcrew/fieldtime/internal/config"
	"github.com/paintcrew/fieldtime/internal/events"
)

// MakeCORSMiddleware returns CORS middleware using config origins.
// Properly handles multiple allowed origins by matching against the request's
// Origin header, which is the only spec-compliant approach.
// Supports wildcard patterns (e.g. "https://*.run.app") by suffix matching.
func MakeCORSMiddleware(cfg *config.Config) mux.MiddlewareFunc {
	exact := make(map[string]bool, len(cfg.Server.CORSAllowOrigins))
	var wildcardSuffixes []string
	allowAll := false
	for _, o := range cfg.Server.CORSAllowOrigins {
		if o == "*" {
			allowAll = true
		} else if strings.Contains(o, "*") {
			suffix := strings.Replace(o, "*", "", 1)
			wildcardSuffixes = append(wildcardSuffixes, suffix)
		} else {
			exact[o] = true
		}
	}

	originAllowed := func(origin string) bool {
		if exact[origin] {
			return true
		}
		for _, suffix := range wildcardSuffixes {
			parts := strings.SplitN(suffix, "//", 2)
			if len(parts) == 2 {
				scheme := parts[0] + "//"
				domainSuffix := parts[1]
				if strings.HasPrefix(origin, scheme) && strings.HasSuffix(origin, domainSuffix) {
					return true
				}
			} else if strings.HasSuffix(origin, suffix) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" && originAllowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers",
				"Content-Type, Authorization, X-Company-Id, X-User-Id, X-Role, X-Request-ID, Accept")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs each request in structured form.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// HandleSSEStream streams CloudEvents (InvoiceCreated, etc.) to a client,
// optionally filtered by the ?events=Type1,Type2 query parameter.
func HandleSSEStream(bus *events.EventBus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "SSE not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		eventFilter := r.URL.Query().Get("events")
		var eventTypes []string
		if eventFilter != "" {
			eventTypes = strings.Split(eventFilter, ",")
		}

		ch := bus.Subscribe(eventTypes...)
		defer bus.Unsubscribe(ch)

		w.Write([]byte("event: connected\ndata: {\"status\":\"connected\"}\n\n"))
		flusher.Flush()

		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				sseData, err := event.SSEFormat()
				if err != nil {
					continue
				}
				w.Write(sseData)
				flusher.Flush()

			case <-r.Context().Done():
				return
			}
		}
	}
}

// HandleServiceCard returns a service discovery document describing the
// RPC surface this backend exposes.
func HandleServiceCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":        "fieldtime",
			"version":     "1.0.0",
			"description": "Multi-tenant field-workforce timekeeping and billing backend",
			"operations": []string{
				"clockIn", "clockOut", "editTimeEntry", "approveTimeEntry",
				"generateInvoice", "getInvoicePDFUrl", "regenerateInvoicePDF", "setUserRole",
			},
			"endpoints": map[string]string{
				"clockIn":              "/api/v1/clock-events/in",
				"clockOut":             "/api/v1/clock-events/out",
				"editTimeEntry":        "/api/v1/time-entries/{id}",
				"approveTimeEntry":     "/api/v1/time-entries/{id}/approve",
				"generateInvoice":      "/api/v1/invoices",
				"getInvoicePDFUrl":     "/api/v1/invoices/{id}/pdf-url",
				"regenerateInvoicePDF": "/api/v1/invoices/{id}/pdf/regenerate",
				"events":               "/api/v1/events/stream",
				"health":               "/health",
				"metrics":              "/metrics",
			},
			"authentication": "Bearer API key (fieldtime_...) or trusted X-User-Id/X-Company-Id/X-Role headers",
		})
	}
}
