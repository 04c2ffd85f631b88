// Package adminedit implements editTimeEntry (C6): the admin/manager
// correction path for a TimeEntry, with immutable-field protection, audit
// trail recording, and overlap recomputation across the affected worker's
// entries.
package adminedit

import (
	"context"
	"time"

	"github.com/paintcrew/fieldtime/internal/apperr"
	"github.com/paintcrew/fieldtime/internal/audit"
	"github.com/paintcrew/fieldtime/internal/authz"
	"github.com/paintcrew/fieldtime/internal/domain"
	"github.com/paintcrew/fieldtime/internal/multitenancy"
)

// Patch carries the caller-supplied field changes. Only non-nil fields are
// applied; nil means "leave unchanged".
type Patch struct {
	ClockInAt     *time.Time
	ClockOutAt    *time.Time
	Notes         *string
	Status        *domain.TimeEntryStatus
	ExceptionTags *[]domain.ExceptionTag
}

// store is the narrow persistence seam C6 needs — satisfied by
// *database.SupabaseStore in production and by a fake in tests.
type store interface {
	GetTimeEntry(ctx context.Context, companyID, id string) (*domain.TimeEntry, error)
	UpdateTimeEntry(ctx context.Context, e *domain.TimeEntry) error
	InsertAuditEntry(ctx context.Context, entry *domain.AuditEntry) error
	EntriesForUser(ctx context.Context, companyID, userID string) ([]domain.TimeEntry, error)
}

// Service implements C6 over the persistence store.
type Service struct {
	db       store
	recorder *audit.Recorder
	now      func() time.Time
}

// NewService builds an admin-edit service.
func NewService(db store, recorder *audit.Recorder) *Service {
	return &Service{db: db, recorder: recorder, now: func() time.Time { return time.Now().UTC() }}
}

// EditTimeEntry applies patch to the entry identified by id, recording an
// AuditRecord and recomputing overlap tags for the affected worker.
func (s *Service) EditTimeEntry(ctx context.Context, id string, patch Patch, reason string) (*domain.TimeEntry, error) {
	principal, err := multitenancy.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if !multitenancy.HasAnyRole(ctx, domain.RoleAdmin, domain.RoleManager) {
		return nil, apperr.New(apperr.PermissionDenied, "editTimeEntry requires admin or manager role")
	}

	entry, err := s.db.GetTimeEntry(ctx, principal.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperr.New(apperr.NotFound, "time entry not found")
	}
	if err := multitenancy.RequireCompanyMatch(ctx, entry.CompanyID); err != nil {
		return nil, err
	}
	if entry.InvoiceID != "" {
		return nil, apperr.NewReason(apperr.FailedPrecondition, "invoiced_immutable", "entry has already been invoiced")
	}
	if reason == "" {
		return nil, apperr.New(apperr.InvalidArgument, "reason is required")
	}

	if patch.ClockInAt != nil {
		s.recorder.ImmutableFieldWriteAttempt(audit.EventTimeEntryManipulation, entry.CompanyID, principal.UID, "timeEntries", entry.ID, []string{"clockInAt"})
		return nil, apperr.New(apperr.InvalidArgument, "clockInAt, companyId, userId and clientEventId are immutable")
	}

	changes := map[string]domain.FieldChange{}
	newClockOutAt := entry.ClockOutAt
	if patch.ClockOutAt != nil {
		if !patch.ClockOutAt.After(entry.ClockInAt) {
			return nil, apperr.New(apperr.InvalidArgument, "clockOutAt must be after clockInAt")
		}
		changes["clockOutAt"] = domain.FieldChange{Before: entry.ClockOutAt, After: *patch.ClockOutAt}
		newClockOutAt = patch.ClockOutAt
	}
	if patch.Notes != nil && *patch.Notes != entry.Notes {
		changes["notes"] = domain.FieldChange{Before: entry.Notes, After: *patch.Notes}
		entry.Notes = *patch.Notes
	}
	if patch.Status != nil && *patch.Status != entry.Status {
		changes["status"] = domain.FieldChange{Before: entry.Status, After: *patch.Status}
		entry.Status = *patch.Status
	}
	if patch.ExceptionTags != nil {
		changes["exceptionTags"] = domain.FieldChange{Before: entry.ExceptionTags, After: *patch.ExceptionTags}
		entry.ExceptionTags = *patch.ExceptionTags
	}

	if len(changes) == 0 {
		return entry, nil
	}

	now := s.now()
	entry.ClockOutAt = newClockOutAt
	entry.UpdatedAt = now
	entry.AuditLog = append(entry.AuditLog, domain.AuditRecord{
		EditedBy: principal.UID,
		EditedAt: now,
		Reason:   reason,
		Changes:  changes,
	})

	if err := s.db.UpdateTimeEntry(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.db.InsertAuditEntry(ctx, &domain.AuditEntry{
		EventType:  domain.EventTimeEntryManipulation,
		Severity:   domain.SeverityInfo,
		Timestamp:  now,
		UserID:     principal.UID,
		CompanyID:  entry.CompanyID,
		Collection: "timeEntries",
		DocumentID: entry.ID,
		Details:    map[string]interface{}{"reason": reason, "fieldCount": len(changes)},
	}); err != nil {
		return nil, err
	}

	if err := s.recomputeOverlaps(ctx, entry.CompanyID, entry.UserID); err != nil {
		return nil, err
	}

	return entry, nil
}

// ApproveTimeEntry implements the pending→approved transition the invoice
// builder requires (added to resolve the gap between a "pending" TimeEntry
// and a billable "approved" one — nothing else in this system performs it).
func (s *Service) ApproveTimeEntry(ctx context.Context, id string) error {
	principal, err := multitenancy.RequirePrincipal(ctx)
	if err != nil {
		return err
	}
	if !multitenancy.HasAnyRole(ctx, domain.RoleAdmin, domain.RoleManager) {
		return apperr.New(apperr.PermissionDenied, "approveTimeEntry requires admin or manager role")
	}

	entry, err := s.db.GetTimeEntry(ctx, principal.CompanyID, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return apperr.New(apperr.NotFound, "time entry not found")
	}
	if err := multitenancy.RequireCompanyMatch(ctx, entry.CompanyID); err != nil {
		return err
	}
	if entry.Status != domain.StatusPending {
		return apperr.NewReason(apperr.FailedPrecondition, "not_approved", "entry must be pending to approve")
	}

	now := s.now()
	entry.Status = domain.StatusApproved
	entry.ApprovedBy = principal.UID
	entry.ApprovedAt = &now
	entry.UpdatedAt = now
	entry.AuditLog = append(entry.AuditLog, domain.AuditRecord{
		EditedBy: principal.UID,
		EditedAt: now,
		Reason:   "approved",
		Changes: map[string]domain.FieldChange{
			"status": {Before: domain.StatusPending, After: domain.StatusApproved},
		},
	})

	return s.db.UpdateTimeEntry(ctx, entry)
}

// GetTimeEntry reads a single entry, gated by the declarative timeEntries
// row of the C11 authorization matrix (self, or admin/manager same-company).
func (s *Service) GetTimeEntry(ctx context.Context, id string) (*domain.TimeEntry, error) {
	principal, err := multitenancy.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := s.db.GetTimeEntry(ctx, principal.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperr.New(apperr.NotFound, "time entry not found")
	}
	if err := authz.Authorize(ctx, authz.TimeEntries, authz.Read, entry.CompanyID, entry.UserID); err != nil {
		return nil, err
	}

	return entry, nil
}

// recomputeOverlaps scans every entry for userID and tags each whose
// interval intersects another's with the idempotent "overlap" exception
// tag (§4.6).
func (s *Service) recomputeOverlaps(ctx context.Context, companyID, userID string) error {
	entries, err := s.db.EntriesForUser(ctx, companyID, userID)
	if err != nil {
		return err
	}

	overlapping := make(map[string]bool)
	for i := range entries {
		for j := range entries {
			if i == j {
				continue
			}
			if entries[i].Overlaps(&entries[j]) {
				overlapping[entries[i].ID] = true
			}
		}
	}

	for i := range entries {
		e := &entries[i]
		if !overlapping[e.ID] || e.HasTag(domain.TagOverlap) {
			continue
		}
		e.AddTag(domain.TagOverlap)
		e.UpdatedAt = s.now()
		if err := s.db.UpdateTimeEntry(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
