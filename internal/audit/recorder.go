// Package audit implements the security audit recorder (C12): a
// fire-and-forget logger so that recording a security event never blocks
// the primary operation that triggered it, mirroring the reference
// backend's SessionAuditor.LogEvent.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/paintcrew/fieldtime/internal/domain"
)

const (
	EventRoleChanged             = domain.EventRoleChanged
	EventClaimsUpdated           = domain.EventClaimsUpdated
	EventCrossTenantAccessAttempt = domain.EventCrossTenantAccessAttempt
	EventCompanyIDChangeAttempt  = domain.EventCompanyIDChangeAttempt
	EventTimeEntryManipulation   = domain.EventTimeEntryManipulation
	EventInvoiceFraudAttempt     = domain.EventInvoiceFraudAttempt
	EventMassDataExport          = domain.EventMassDataExport
)

// auditStore is the narrow persistence seam Recorder needs — satisfied by
// *database.SupabaseStore in production and by a fake in tests.
type auditStore interface {
	InsertAuditEntry(ctx context.Context, entry *domain.AuditEntry) error
}

// Recorder persists security AuditEntry records asynchronously.
type Recorder struct {
	db  auditStore
	now func() time.Time
}

// NewRecorder builds a security audit recorder over the store.
func NewRecorder(db auditStore) *Recorder {
	return &Recorder{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// LogSecurityEvent persists entry in a background goroutine: a failure to
// write the audit log must never fail the caller's primary operation.
func (r *Recorder) LogSecurityEvent(eventType string, severity domain.Severity, companyID, userID, targetUserID, collection, documentID string, details map[string]interface{}) {
	entry := &domain.AuditEntry{
		EventType:    eventType,
		Severity:     severity,
		Timestamp:    r.now(),
		UserID:       userID,
		CompanyID:    companyID,
		TargetUserID: targetUserID,
		Collection:   collection,
		DocumentID:   documentID,
		Details:      details,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.db.InsertAuditEntry(ctx, entry); err != nil {
			slog.Error("audit: failed to persist security event", "event_type", eventType, "error", err)
		}
	}()
}

// CrossTenantAccessAttempt records a cross-company access denial (§8 S6):
// the principal's companyId did not match the target document's companyId.
func (r *Recorder) CrossTenantAccessAttempt(callerCompanyID, userID, targetCompanyID, collection, documentID string) {
	r.LogSecurityEvent(EventCrossTenantAccessAttempt, domain.SeverityError, callerCompanyID, userID, "", collection, documentID, map[string]interface{}{
		"targetCompanyId": targetCompanyID,
	})
}

// ImmutableFieldWriteAttempt records an attempt to change an immutable
// field on a write-gated collection (timeEntries, invoices, users).
func (r *Recorder) ImmutableFieldWriteAttempt(eventType string, companyID, userID, collection, documentID string, fields []string) {
	r.LogSecurityEvent(eventType, domain.SeverityCritical, companyID, userID, "", collection, documentID, map[string]interface{}{
		"fields": fields,
	})
}
