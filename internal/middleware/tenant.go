package middleware

import (
	"net/http"
	"strings"

	"github.com/paintcrew/fieldtime/internal/apperr"
	"github.com/paintcrew/fieldtime/internal/database"
	"github.com/paintcrew/fieldtime/internal/domain"
	"github.com/paintcrew/fieldtime/internal/multitenancy"
)

// PrincipalMiddleware resolves a Principal{uid, companyId, role} for every
// request before any business logic runs (C1). It accepts either an
// Authorization: Bearer <api-key> credential, or a trusted upstream-auth
// header set (X-User-Id, X-Company-Id, X-Role) for requests already
// authenticated by the out-of-scope auth provider. Neither present is
// unauthenticated.
func PrincipalMiddleware(tm *multitenancy.TenantManager, db *database.SupabaseStore, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer fieldtime_") {
			apiKey := strings.TrimPrefix(authHeader, "Bearer ")
			companyID, err := tm.ValidateAPIKey(ctx, apiKey)
			if err != nil {
				writeAuthError(w, err)
				return
			}
			principal := &domain.Principal{
				UID:       "api-key",
				CompanyID: companyID,
				Role:      domain.RoleIntegration,
			}
			next(w, r.WithContext(multitenancy.WithPrincipal(ctx, principal)))
			return
		}

		uid := r.Header.Get("X-User-Id")
		companyID := r.Header.Get("X-Company-Id")
		roleHeader := r.Header.Get("X-Role")

		if uid == "" || companyID == "" || roleHeader == "" {
			writeAuthError(w, apperr.New(apperr.Unauthenticated, "no credentials presented"))
			return
		}

		company, err := db.GetCompany(ctx, companyID)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		if company == nil {
			writeAuthError(w, apperr.New(apperr.Unauthenticated, "unknown company"))
			return
		}

		principal := &domain.Principal{
			UID:       uid,
			CompanyID: companyID,
			Role:      domain.Role(roleHeader),
		}
		next(w, r.WithContext(multitenancy.WithPrincipal(ctx, principal)))
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	if apperr.CodeOf(err) == apperr.Internal {
		status = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), status)
}
