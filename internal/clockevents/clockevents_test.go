package clockevents

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paintcrew/fieldtime/internal/apperr"
	"github.com/paintcrew/fieldtime/internal/config"
	"github.com/paintcrew/fieldtime/internal/domain"
	"github.com/paintcrew/fieldtime/internal/idempotency"
	"github.com/paintcrew/fieldtime/internal/multitenancy"
)

var testNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

// clientEventID builds a valid ms-epoch-prefixed clientEventId a few
// seconds before testNow, distinguished by suffix so repeated calls in a
// single test can use distinct keys.
func clientEventID(suffix string) string {
	return fmt.Sprintf("%d-%s", testNow.Add(-time.Second).UnixMilli(), suffix)
}

// fakeStore is a minimal in-memory stand-in for *database.SupabaseStore,
// scoped to exactly what C4 calls.
type fakeStore struct {
	jobs        map[string]*domain.Job
	assignments map[string]*domain.Assignment
	entries     map[string]*domain.TimeEntry
	events      []*domain.ClockEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:        map[string]*domain.Job{},
		assignments: map[string]*domain.Assignment{},
		entries:     map[string]*domain.TimeEntry{},
	}
}

func (f *fakeStore) GetJob(_ context.Context, companyID, id string) (*domain.Job, error) {
	j, ok := f.jobs[id]
	if !ok || j.CompanyID != companyID {
		return nil, nil
	}
	return j, nil
}

func (f *fakeStore) ActiveAssignment(_ context.Context, companyID, userID, jobID string, at time.Time) (*domain.Assignment, error) {
	a, ok := f.assignments[userID+":"+jobID]
	if !ok || a.CompanyID != companyID {
		return nil, nil
	}
	return a, nil
}

func (f *fakeStore) ActiveEntryForUser(_ context.Context, companyID, userID string) (*domain.TimeEntry, error) {
	for _, e := range f.entries {
		if e.CompanyID == companyID && e.UserID == userID && e.ClockOutAt == nil {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) InsertTimeEntry(_ context.Context, e *domain.TimeEntry) error {
	f.entries[e.ID] = e
	return nil
}

func (f *fakeStore) InsertClockEvent(_ context.Context, ev *domain.ClockEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeStore) GetTimeEntry(_ context.Context, companyID, id string) (*domain.TimeEntry, error) {
	e, ok := f.entries[id]
	if !ok || e.CompanyID != companyID {
		return nil, nil
	}
	return e, nil
}

func (f *fakeStore) UpdateTimeEntry(_ context.Context, e *domain.TimeEntry) error {
	f.entries[e.ID] = e
	return nil
}

const testCompany = "company-a"

func ctxFor(uid string) context.Context {
	return multitenancy.WithPrincipal(context.Background(), &domain.Principal{UID: uid, CompanyID: testCompany, Role: domain.RoleWorker})
}

func newTestService(t *testing.T, fs *fakeStore) *Service {
	t.Helper()
	cfgMgr, err := config.NewManagerFromConfig(&config.Config{Timekeeping: config.TimekeepingConfig{AutoClockoutHours: 12, IdempotencyTTLHours: 48}}, "/nonexistent/company_config.yaml")
	require.NoError(t, err)
	svc := NewService(fs, idempotency.New(idempotency.NewMemBackend()), cfgMgr)
	svc.now = func() time.Time { return testNow }
	return svc
}

func seedJobAndAssignment(fs *fakeStore, jobID, userID string, radiusM float64) {
	fs.jobs[jobID] = &domain.Job{
		ID:        jobID,
		CompanyID: testCompany,
		Location:  domain.Location{Lat: 40.0, Lng: -73.0, RadiusM: radiusM},
		Active:    true,
	}
	fs.assignments[userID+":"+jobID] = &domain.Assignment{
		ID: "a1", CompanyID: testCompany, UserID: userID, JobID: jobID, Active: true,
	}
}

func TestClockInGeofenceHardReject(t *testing.T) {
	fs := newFakeStore()
	seedJobAndAssignment(fs, "job1", "worker1", 50)
	svc := newTestService(t, fs)

	// 40.01, -73.0 is far more than 50m from 40.0, -73.0.
	_, err := svc.ClockIn(ctxFor("worker1"), "job1", 40.01, -73.0, nil, true, clientEventID("1"), "device1")
	require.Error(t, err)
	assert.Equal(t, apperr.FailedPrecondition, apperr.CodeOf(err))
}

func TestClockInAlreadyClockedInRejected(t *testing.T) {
	fs := newFakeStore()
	seedJobAndAssignment(fs, "job1", "worker1", 500)
	svc := newTestService(t, fs)

	_, err := svc.ClockIn(ctxFor("worker1"), "job1", 40.0, -73.0, nil, true, clientEventID("1"), "device1")
	require.NoError(t, err)

	_, err = svc.ClockIn(ctxFor("worker1"), "job1", 40.0, -73.0, nil, true, clientEventID("2"), "device1")
	require.Error(t, err)
	assert.Equal(t, apperr.FailedPrecondition, apperr.CodeOf(err))
}

func TestClockInNotAssignedRejected(t *testing.T) {
	fs := newFakeStore()
	fs.jobs["job1"] = &domain.Job{ID: "job1", CompanyID: testCompany, Location: domain.Location{Lat: 40.0, Lng: -73.0, RadiusM: 500}}
	svc := newTestService(t, fs)

	_, err := svc.ClockIn(ctxFor("worker1"), "job1", 40.0, -73.0, nil, true, clientEventID("1"), "device1")
	require.Error(t, err)
	assert.Equal(t, apperr.PermissionDenied, apperr.CodeOf(err))
}

func TestClockInIdempotentReplayReturnsCachedResult(t *testing.T) {
	fs := newFakeStore()
	seedJobAndAssignment(fs, "job1", "worker1", 500)
	svc := newTestService(t, fs)

	first, err := svc.ClockIn(ctxFor("worker1"), "job1", 40.0, -73.0, nil, true, clientEventID("1"), "device1")
	require.NoError(t, err)

	second, err := svc.ClockIn(ctxFor("worker1"), "job1", 40.0, -73.0, nil, true, clientEventID("1"), "device1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, fs.entries, 1)
}

func TestClockOutGeofenceMissTagsRatherThanRejects(t *testing.T) {
	fs := newFakeStore()
	seedJobAndAssignment(fs, "job1", "worker1", 50)
	svc := newTestService(t, fs)

	entry := &domain.TimeEntry{
		ID: "e1", CompanyID: testCompany, UserID: "worker1", JobID: "job1",
		ClockInAt: testNow.Add(-time.Hour), Status: domain.StatusActive,
	}
	fs.entries[entry.ID] = entry

	result, err := svc.ClockOut(ctxFor("worker1"), "e1", 41.0, -73.0, nil, true, clientEventID("2"), "device1")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.NotEmpty(t, result.Warning)
	assert.True(t, fs.entries["e1"].HasTag(domain.TagGeofenceOut))
}

func TestClockOutAlreadyClosedRejected(t *testing.T) {
	fs := newFakeStore()
	seedJobAndAssignment(fs, "job1", "worker1", 500)
	svc := newTestService(t, fs)

	closedAt := testNow
	fs.entries["e1"] = &domain.TimeEntry{
		ID: "e1", CompanyID: testCompany, UserID: "worker1", JobID: "job1",
		ClockInAt: closedAt.Add(-time.Hour), ClockOutAt: &closedAt,
	}

	_, err := svc.ClockOut(ctxFor("worker1"), "e1", 40.0, -73.0, nil, true, clientEventID("2"), "device1")
	require.Error(t, err)
	assert.Equal(t, apperr.FailedPrecondition, apperr.CodeOf(err))
}

func TestClockOutExceedsAutoClockoutThresholdFlagsForReview(t *testing.T) {
	fs := newFakeStore()
	seedJobAndAssignment(fs, "job1", "worker1", 500)
	svc := newTestService(t, fs)

	fs.entries["e1"] = &domain.TimeEntry{
		ID: "e1", CompanyID: testCompany, UserID: "worker1", JobID: "job1",
		ClockInAt: testNow.Add(-13 * time.Hour), Status: domain.StatusActive,
	}

	_, err := svc.ClockOut(ctxFor("worker1"), "e1", 40.0, -73.0, nil, true, clientEventID("2"), "device1")
	require.NoError(t, err)
	assert.True(t, fs.entries["e1"].NeedsReview)
	assert.True(t, fs.entries["e1"].HasTag(domain.TagExceeds12h))
}

func TestClockOutWrongWorkerDenied(t *testing.T) {
	fs := newFakeStore()
	seedJobAndAssignment(fs, "job1", "worker1", 500)
	svc := newTestService(t, fs)

	fs.entries["e1"] = &domain.TimeEntry{
		ID: "e1", CompanyID: testCompany, UserID: "worker1", JobID: "job1",
		ClockInAt: testNow.Add(-time.Hour),
	}

	_, err := svc.ClockOut(ctxFor("worker2"), "e1", 40.0, -73.0, nil, true, clientEventID("2"), "device1")
	require.Error(t, err)
	assert.Equal(t, apperr.PermissionDenied, apperr.CodeOf(err))
}
