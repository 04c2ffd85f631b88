// Package clockevents implements the clock-event ingestion state machine
// (C4): clockIn and clockOut, the transactional procedures that turn
// worker-submitted clock events into canonical TimeEntry records under the
// geofence, assignment-window, idempotency and single-active-shift
// invariants.
package clockevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paintcrew/fieldtime/internal/apperr"
	"github.com/paintcrew/fieldtime/internal/config"
	"github.com/paintcrew/fieldtime/internal/domain"
	"github.com/paintcrew/fieldtime/internal/geofence"
	"github.com/paintcrew/fieldtime/internal/idempotency"
	"github.com/paintcrew/fieldtime/internal/multitenancy"
)

const opClockIn = "clockIn"
const opClockOut = "clockOut"

// Result is the wire response shape common to both operations.
type Result struct {
	ID      string `json:"id,omitempty"`
	OK      bool   `json:"ok"`
	Warning string `json:"warning,omitempty"`
}

// store is the narrow persistence seam C4 needs — satisfied by
// *database.SupabaseStore in production and by a fake in tests.
type store interface {
	GetJob(ctx context.Context, companyID, id string) (*domain.Job, error)
	ActiveAssignment(ctx context.Context, companyID, userID, jobID string, at time.Time) (*domain.Assignment, error)
	ActiveEntryForUser(ctx context.Context, companyID, userID string) (*domain.TimeEntry, error)
	InsertTimeEntry(ctx context.Context, e *domain.TimeEntry) error
	InsertClockEvent(ctx context.Context, ev *domain.ClockEvent) error
	GetTimeEntry(ctx context.Context, companyID, id string) (*domain.TimeEntry, error)
	UpdateTimeEntry(ctx context.Context, e *domain.TimeEntry) error
}

// Service implements C4 over a persistence store and the idempotency store.
// Per-company timekeeping knobs (auto-clockout threshold, idempotency TTL)
// are resolved per request from cfgMgr so a company's overlay in the
// company config file takes effect without a restart.
type Service struct {
	db     store
	idem   *idempotency.Store
	cfgMgr *config.Manager
	now    func() time.Time
}

// NewService builds a clock-event service.
func NewService(db store, idem *idempotency.Store, cfgMgr *config.Manager) *Service {
	return &Service{
		db:     db,
		idem:   idem,
		cfgMgr: cfgMgr,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ClockIn runs the full clockIn procedure described in §4.4.
func (s *Service) ClockIn(ctx context.Context, jobID string, lat, lng float64, accuracy *float64, coordsPresent bool, clientEventID, deviceID string) (*Result, error) {
	principal, err := multitenancy.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	if err := idempotency.ValidateClientEventID(clientEventID, s.now()); err != nil {
		return nil, err
	}

	cfg := s.cfgMgr.Get(principal.CompanyID)
	idemTTL := time.Duration(cfg.Timekeeping.IdempotencyTTLHours) * time.Hour

	key := idempotency.Key(opClockIn, jobID+":"+principal.UID, clientEventID)
	if cached, ok, err := s.idem.Lookup(ctx, principal.CompanyID, key); err != nil {
		return nil, err
	} else if ok {
		var r Result
		if err := json.Unmarshal(cached, &r); err != nil {
			return nil, apperr.Wrap(err)
		}
		return &r, nil
	}

	job, err := s.db.GetJob(ctx, principal.CompanyID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.CompanyID != principal.CompanyID {
		return nil, apperr.New(apperr.NotFound, "job not found")
	}

	now := s.now()
	assignment, err := s.db.ActiveAssignment(ctx, principal.CompanyID, principal.UID, jobID, now)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, apperr.NewReason(apperr.PermissionDenied, "not_assigned", "worker is not assigned to this job")
	}

	active, err := s.db.ActiveEntryForUser(ctx, principal.CompanyID, principal.UID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperr.NewReason(apperr.FailedPrecondition, "already_clocked_in", "worker already has an active shift")
	}

	result := geofence.Evaluate(lat, lng, accuracy, job.Location.Lat, job.Location.Lng, job.Location.RadiusM, coordsPresent)
	if !result.Inside {
		return nil, apperr.NewReason(apperr.FailedPrecondition, "geofence_invalid",
			fmt.Sprintf("location is %.0fm from job site; effective radius is %.0fm", result.DistanceM, result.EffectiveRadiusM))
	}

	var location *domain.GeoPoint
	if coordsPresent {
		location = &domain.GeoPoint{Lat: lat, Lng: lng, AccuracyM: accuracy}
	}

	entry := &domain.TimeEntry{
		ID:                   uuid.NewString(),
		CompanyID:            principal.CompanyID,
		UserID:               principal.UID,
		JobID:                jobID,
		ClockInAt:            now,
		ClockInLocation:      location,
		ClockInGeofenceValid: true,
		ClientEventID:        clientEventID,
		Status:               domain.StatusActive,
		ExceptionTags:        []domain.ExceptionTag{},
		CreatedAt:            now,
		UpdatedAt:            now,
		AuditLog:             []domain.AuditRecord{},
	}
	if result.LowAccuracy {
		entry.AddTag(domain.TagGPSLowAccuracy)
	}

	if err := s.db.InsertTimeEntry(ctx, entry); err != nil {
		return nil, err
	}

	event := &domain.ClockEvent{
		ID:            uuid.NewString(),
		CompanyID:     principal.CompanyID,
		UserID:        principal.UID,
		JobID:         jobID,
		Type:          domain.ClockEventIn,
		ClientEventID: clientEventID,
		Location:      location,
		DeviceID:      deviceID,
		At:            now,
		CreatedAt:     now,
	}
	if err := s.db.InsertClockEvent(ctx, event); err != nil {
		return nil, err
	}

	out := &Result{ID: entry.ID, OK: true}
	payload, _ := json.Marshal(out)
	if err := s.idem.Put(ctx, principal.CompanyID, key, payload, idemTTL); err != nil {
		return nil, err
	}

	return out, nil
}

// ClockOut runs the full clockOut procedure described in §4.4. Unlike
// clockIn, a geofence miss here is tagged, not rejected — the shift is
// never lost once opened, per §7's user-visible behavior note.
func (s *Service) ClockOut(ctx context.Context, timeEntryID string, lat, lng float64, accuracy *float64, coordsPresent bool, clientEventID, deviceID string) (*Result, error) {
	principal, err := multitenancy.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	if err := idempotency.ValidateClientEventID(clientEventID, s.now()); err != nil {
		return nil, err
	}

	cfg := s.cfgMgr.Get(principal.CompanyID)
	idemTTL := time.Duration(cfg.Timekeeping.IdempotencyTTLHours) * time.Hour

	key := idempotency.Key(opClockOut, timeEntryID, clientEventID)
	if cached, ok, err := s.idem.Lookup(ctx, principal.CompanyID, key); err != nil {
		return nil, err
	} else if ok {
		var r Result
		if err := json.Unmarshal(cached, &r); err != nil {
			return nil, apperr.Wrap(err)
		}
		return &r, nil
	}

	entry, err := s.db.GetTimeEntry(ctx, principal.CompanyID, timeEntryID)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.CompanyID != principal.CompanyID {
		return nil, apperr.New(apperr.NotFound, "time entry not found")
	}
	if entry.UserID != principal.UID {
		return nil, apperr.New(apperr.PermissionDenied, "time entry belongs to another worker")
	}
	if entry.ClockOutAt != nil {
		return nil, apperr.NewReason(apperr.FailedPrecondition, "not_clocked_in", "entry is already closed")
	}

	job, err := s.db.GetJob(ctx, principal.CompanyID, entry.JobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperr.New(apperr.NotFound, "job not found")
	}

	now := s.now()
	result := geofence.Evaluate(lat, lng, accuracy, job.Location.Lat, job.Location.Lng, job.Location.RadiusM, coordsPresent)

	var location *domain.GeoPoint
	if coordsPresent {
		location = &domain.GeoPoint{Lat: lat, Lng: lng, AccuracyM: accuracy}
	}

	inside := result.Inside
	entry.ClockOutAt = &now
	entry.ClockOutLocation = location
	entry.ClockOutGeofenceValid = &inside
	entry.Status = domain.StatusPending
	entry.UpdatedAt = now

	var warning string
	if !inside {
		entry.AddTag(domain.TagGeofenceOut)
		warning = fmt.Sprintf("clock-out location is %.0fm from job site; entry flagged for review", result.DistanceM)
	}
	if result.GPSMissing {
		entry.AddTag(domain.TagGPSMissing)
	}
	if result.LowAccuracy {
		entry.AddTag(domain.TagGPSLowAccuracy)
	}
	if now.Sub(entry.ClockInAt).Hours() >= cfg.Timekeeping.AutoClockoutHours {
		entry.AddTag(domain.TagExceeds12h)
		entry.NeedsReview = true
	}

	if err := s.db.UpdateTimeEntry(ctx, entry); err != nil {
		return nil, err
	}

	event := &domain.ClockEvent{
		ID:            uuid.NewString(),
		CompanyID:     principal.CompanyID,
		UserID:        principal.UID,
		JobID:         entry.JobID,
		Type:          domain.ClockEventOut,
		ClientEventID: clientEventID,
		Location:      location,
		DeviceID:      deviceID,
		At:            now,
		CreatedAt:     now,
	}
	if err := s.db.InsertClockEvent(ctx, event); err != nil {
		return nil, err
	}

	out := &Result{OK: true, Warning: warning}
	payload, _ := json.Marshal(out)
	if err := s.idem.Put(ctx, principal.CompanyID, key, payload, idemTTL); err != nil {
		return nil, err
	}

	return out, nil
}
