// Package users implements the one user-management operation this system
// needs: setUserRole (§6.1). It is admin-only and logs a role_changed
// security event through the audit recorder (C12).
package users

import (
	"context"
	"time"

	"github.com/paintcrew/fieldtime/internal/apperr"
	"github.com/paintcrew/fieldtime/internal/audit"
	"github.com/paintcrew/fieldtime/internal/database"
	"github.com/paintcrew/fieldtime/internal/domain"
	"github.com/paintcrew/fieldtime/internal/multitenancy"
)

// Service implements setUserRole.
type Service struct {
	db       *database.SupabaseStore
	recorder *audit.Recorder
	now      func() time.Time
}

// NewService builds a user-management service.
func NewService(db *database.SupabaseStore, recorder *audit.Recorder) *Service {
	return &Service{db: db, recorder: recorder, now: func() time.Time { return time.Now().UTC() }}
}

// SetUserRole changes targetUID's role within the caller's company.
// Admin only, same company, logged as a role_changed security event.
func (s *Service) SetUserRole(ctx context.Context, targetUID string, role domain.Role) error {
	principal, err := multitenancy.RequirePrincipal(ctx)
	if err != nil {
		return err
	}
	if !multitenancy.HasAnyRole(ctx, domain.RoleAdmin) {
		return apperr.New(apperr.PermissionDenied, "setUserRole requires admin role")
	}

	target, err := s.db.GetUser(ctx, principal.CompanyID, targetUID)
	if err != nil {
		return err
	}
	if target == nil {
		return apperr.New(apperr.NotFound, "user not found")
	}

	previousRole := target.Role
	if previousRole == role {
		return nil
	}

	target.Role = role
	target.UpdatedAt = s.now()
	if err := s.db.UpdateUser(ctx, target); err != nil {
		return err
	}

	s.recorder.LogSecurityEvent(audit.EventRoleChanged, domain.SeverityWarn, principal.CompanyID, principal.UID, target.ID, "users", target.ID, map[string]interface{}{
		"targetUserId": target.ID,
		"previousRole": previousRole,
		"newRole":      role,
	})

	return nil
}
