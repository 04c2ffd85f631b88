package domain

import "time"

// GeoPoint is a worker-reported clock location with optional accuracy.
type GeoPoint struct {
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	AccuracyM     *float64 `json:"accuracyMeters,omitempty"`
}

// ClockEventType distinguishes a clock-in from a clock-out record.
type ClockEventType string

const (
	ClockEventIn  ClockEventType = "in"
	ClockEventOut ClockEventType = "out"
)

// ClockEvent is the append-only audit trail of raw clock submissions.
// Canonical timekeeping state lives in TimeEntry; a ClockEvent is never
// mutated or deleted once written.
type ClockEvent struct {
	ID            string         `json:"id"`
	CompanyID     string         `json:"companyId"`
	UserID        string         `json:"userId"`
	JobID         string         `json:"jobId"`
	Type          ClockEventType `json:"type"`
	ClientEventID string         `json:"clientEventId"`
	Location      *GeoPoint      `json:"location,omitempty"`
	DeviceID      string         `json:"deviceId,omitempty"`
	At            time.Time      `json:"at"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// TimeEntryStatus is the lifecycle state of a canonical time record.
type TimeEntryStatus string

const (
	StatusActive    TimeEntryStatus = "active"
	StatusPending   TimeEntryStatus = "pending"
	StatusApproved  TimeEntryStatus = "approved"
	StatusFlagged   TimeEntryStatus = "flagged"
	StatusDisputed  TimeEntryStatus = "disputed"
)

// ExceptionTag enumerates a rule violation recorded on a TimeEntry that did
// not abort the transaction that produced it.
type ExceptionTag string

const (
	TagGeofenceIn       ExceptionTag = "geofence_in"
	TagGeofenceOut      ExceptionTag = "geofence_out"
	TagOverlap          ExceptionTag = "overlap"
	TagAutoClockout     ExceptionTag = "auto_clockout"
	TagExceeds12h       ExceptionTag = "exceeds_12h"
	TagGPSMissing       ExceptionTag = "gps_missing"
	TagGPSLowAccuracy   ExceptionTag = "gps_low_accuracy"
)

// AuditRecord captures one edit to a TimeEntry, including system-initiated
// edits such as the auto-clockout reaper's close.
type AuditRecord struct {
	EditedBy string                    `json:"editedBy"`
	EditedAt time.Time                 `json:"editedAt"`
	Reason   string                    `json:"reason"`
	Changes  map[string]FieldChange    `json:"changes"`
}

// FieldChange is the before/after pair recorded for one changed field.
type FieldChange struct {
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
}

// TimeEntry is the canonical, function-write-only record of a worked shift.
// Writes are accepted only from the clockevents, adminedit, reaper and
// invoice components; every other caller is denied by the authorization
// matrix (C11).
type TimeEntry struct {
	ID                     string          `json:"id"`
	CompanyID              string          `json:"companyId"`
	UserID                 string          `json:"userId"`
	JobID                  string          `json:"jobId"`
	ClockInAt              time.Time       `json:"clockInAt"`
	ClockOutAt             *time.Time      `json:"clockOutAt,omitempty"`
	ClockInLocation        *GeoPoint       `json:"clockInLocation,omitempty"`
	ClockOutLocation       *GeoPoint       `json:"clockOutLocation,omitempty"`
	ClockInGeofenceValid   bool            `json:"clockInGeofenceValid"`
	ClockOutGeofenceValid  *bool           `json:"clockOutGeofenceValid,omitempty"`
	ClientEventID          string          `json:"clientEventId"`
	Status                 TimeEntryStatus `json:"status"`
	ExceptionTags          []ExceptionTag  `json:"exceptionTags"`
	NeedsReview            bool            `json:"needsReview,omitempty"`
	ApprovedBy             string          `json:"approvedBy,omitempty"`
	ApprovedAt             *time.Time      `json:"approvedAt,omitempty"`
	InvoiceID              string          `json:"invoiceId,omitempty"`
	InvoicedAt             *time.Time      `json:"invoicedAt,omitempty"`
	Notes                  string          `json:"notes,omitempty"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
	AuditLog               []AuditRecord   `json:"auditLog"`
}

// IsActive reports whether the entry still represents an open shift.
func (t *TimeEntry) IsActive() bool {
	return t.ClockOutAt == nil
}

// HasTag reports whether the entry already carries the given exception tag.
func (t *TimeEntry) HasTag(tag ExceptionTag) bool {
	for _, existing := range t.ExceptionTags {
		if existing == tag {
			return true
		}
	}
	return false
}

// AddTag appends an exception tag if not already present (idempotent set).
func (t *TimeEntry) AddTag(tag ExceptionTag) {
	if !t.HasTag(tag) {
		t.ExceptionTags = append(t.ExceptionTags, tag)
	}
}

// Interval returns the open interval [clockInAt, clockOutAt ?? +inf) used for
// overlap detection.
func (t *TimeEntry) Interval() (start time.Time, end time.Time, open bool) {
	if t.ClockOutAt == nil {
		return t.ClockInAt, time.Time{}, true
	}
	return t.ClockInAt, *t.ClockOutAt, false
}

// Overlaps reports whether two entries' intervals strictly intersect.
// Tied timestamps (one entry's end equals the other's start) are treated as
// non-overlap, per spec.
func (t *TimeEntry) Overlaps(other *TimeEntry) bool {
	aStart, aEnd, aOpen := t.Interval()
	bStart, bEnd, bOpen := other.Interval()

	if aOpen && bOpen {
		return true
	}
	if aOpen {
		return aStart.Before(bEnd)
	}
	if bOpen {
		return bStart.Before(aEnd)
	}
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// ImmutableFieldNames lists the TimeEntry fields that can never change once
// persisted.
var ImmutableFieldNames = map[string]bool{
	"companyId":     true,
	"userId":        true,
	"clockInAt":     true,
	"clientEventId": true,
}
