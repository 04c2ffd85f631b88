package probes

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/paintcrew/fieldtime/internal/multitenancy"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware times every request against the named mux route it matched
// (set via Router.Name(...)) and records a sample in store. Routes with no
// name are left untimed. A response status below 500 counts as success.
func Middleware(store *Store) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := mux.CurrentRoute(r)
			if route == nil || route.GetName() == "" {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			companyID, userID := "", ""
			if p, ok := multitenancy.PrincipalFrom(r.Context()); ok {
				companyID, userID = p.CompanyID, p.UID
			}
			store.Record(route.GetName(), time.Since(start), rec.status < 500, companyID, userID)
		})
	}
}
