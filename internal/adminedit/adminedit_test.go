package adminedit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paintcrew/fieldtime/internal/apperr"
	"github.com/paintcrew/fieldtime/internal/audit"
	"github.com/paintcrew/fieldtime/internal/domain"
	"github.com/paintcrew/fieldtime/internal/multitenancy"
)

// fakeStore is a minimal in-memory stand-in for *database.SupabaseStore,
// scoped to exactly what C6 calls.
type fakeStore struct {
	entries    map[string]*domain.TimeEntry
	auditCount int
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[string]*domain.TimeEntry{}}
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

func (f *fakeStore) InsertAuditEntry(_ context.Context, entry *domain.AuditEntry) error {
	f.auditCount++
	return nil
}

func (f *fakeStore) EntriesForUser(_ context.Context, companyID, userID string) ([]domain.TimeEntry, error) {
	var out []domain.TimeEntry
	for _, e := range f.entries {
		if e.CompanyID == companyID && e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out, nil
}

const testCompany = "company-a"

var testNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func ctxFor(role domain.Role, uid string) context.Context {
	return multitenancy.WithPrincipal(context.Background(), &domain.Principal{UID: uid, CompanyID: testCompany, Role: role})
}

func newTestService(fs *fakeStore) *Service {
	svc := NewService(fs, audit.NewRecorder(fs))
	svc.now = func() time.Time { return testNow }
	return svc
}

func seedEntry(fs *fakeStore, id, userID string, clockIn time.Time) *domain.TimeEntry {
	e := &domain.TimeEntry{
		ID: id, CompanyID: testCompany, UserID: userID, JobID: "job1",
		ClockInAt: clockIn, Status: domain.StatusPending,
	}
	fs.entries[id] = e
	return e
}

func TestEditTimeEntryRequiresAdminOrManagerRole(t *testing.T) {
	fs := newFakeStore()
	seedEntry(fs, "e1", "worker1", testNow.Add(-time.Hour))
	svc := newTestService(fs)

	_, err := svc.EditTimeEntry(ctxFor(domain.RoleWorker, "worker1"), "e1", Patch{}, "correction")
	require.Error(t, err)
	assert.Equal(t, apperr.PermissionDenied, apperr.CodeOf(err))
}

func TestEditTimeEntryRequiresReason(t *testing.T) {
	fs := newFakeStore()
	seedEntry(fs, "e1", "worker1", testNow.Add(-time.Hour))
	svc := newTestService(fs)

	notes := "updated"
	_, err := svc.EditTimeEntry(ctxFor(domain.RoleManager, "mgr1"), "e1", Patch{Notes: &notes}, "")
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidArgument, apperr.CodeOf(err))
}

func TestEditTimeEntryClockInAtIsImmutable(t *testing.T) {
	fs := newFakeStore()
	seedEntry(fs, "e1", "worker1", testNow.Add(-time.Hour))
	svc := newTestService(fs)

	newClockIn := testNow.Add(-2 * time.Hour)
	_, err := svc.EditTimeEntry(ctxFor(domain.RoleManager, "mgr1"), "e1", Patch{ClockInAt: &newClockIn}, "fixing start time")
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidArgument, apperr.CodeOf(err))
}

func TestEditTimeEntryAlreadyInvoicedRejected(t *testing.T) {
	fs := newFakeStore()
	entry := seedEntry(fs, "e1", "worker1", testNow.Add(-time.Hour))
	entry.InvoiceID = "inv1"
	svc := newTestService(fs)

	notes := "updated"
	_, err := svc.EditTimeEntry(ctxFor(domain.RoleManager, "mgr1"), "e1", Patch{Notes: &notes}, "correction")
	require.Error(t, err)
	assert.Equal(t, apperr.FailedPrecondition, apperr.CodeOf(err))
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "invoiced_immutable", appErr.Reason)
}

func TestEditTimeEntryAppliesExceptionTagsAndRecordsAudit(t *testing.T) {
	fs := newFakeStore()
	seedEntry(fs, "e1", "worker1", testNow.Add(-time.Hour))
	svc := newTestService(fs)

	tags := []domain.ExceptionTag{domain.TagOverlap}
	updated, err := svc.EditTimeEntry(ctxFor(domain.RoleManager, "mgr1"), "e1", Patch{ExceptionTags: &tags}, "flagging overlap")
	require.NoError(t, err)
	assert.Equal(t, []domain.ExceptionTag{domain.TagOverlap}, updated.ExceptionTags)
	assert.Len(t, updated.AuditLog, 1)
	assert.Equal(t, "flagging overlap", updated.AuditLog[0].Reason)
}

func TestEditTimeEntryClockOutBeforeClockInRejected(t *testing.T) {
	fs := newFakeStore()
	seedEntry(fs, "e1", "worker1", testNow)
	svc := newTestService(fs)

	before := testNow.Add(-time.Hour)
	_, err := svc.EditTimeEntry(ctxFor(domain.RoleManager, "mgr1"), "e1", Patch{ClockOutAt: &before}, "correction")
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidArgument, apperr.CodeOf(err))
}

func TestEditTimeEntryNoChangesIsANoop(t *testing.T) {
	fs := newFakeStore()
	seedEntry(fs, "e1", "worker1", testNow.Add(-time.Hour))
	svc := newTestService(fs)

	entry, err := svc.EditTimeEntry(ctxFor(domain.RoleManager, "mgr1"), "e1", Patch{}, "no-op review")
	require.NoError(t, err)
	assert.Empty(t, entry.AuditLog)
	assert.Equal(t, 0, fs.auditCount)
}

func TestApproveTimeEntryRequiresPendingStatus(t *testing.T) {
	fs := newFakeStore()
	entry := seedEntry(fs, "e1", "worker1", testNow.Add(-time.Hour))
	entry.Status = domain.StatusApproved
	svc := newTestService(fs)

	err := svc.ApproveTimeEntry(ctxFor(domain.RoleManager, "mgr1"), "e1")
	require.Error(t, err)
	assert.Equal(t, apperr.FailedPrecondition, apperr.CodeOf(err))
}

func TestApproveTimeEntryTransitionsPendingToApproved(t *testing.T) {
	fs := newFakeStore()
	seedEntry(fs, "e1", "worker1", testNow.Add(-time.Hour))
	svc := newTestService(fs)

	err := svc.ApproveTimeEntry(ctxFor(domain.RoleManager, "mgr1"), "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, fs.entries["e1"].Status)
	assert.Equal(t, "mgr1", fs.entries["e1"].ApprovedBy)
}

func TestGetTimeEntrySelfReadAllowedCrossWorkerDenied(t *testing.T) {
	fs := newFakeStore()
	seedEntry(fs, "e1", "worker1", testNow.Add(-time.Hour))
	svc := newTestService(fs)

	_, err := svc.GetTimeEntry(ctxFor(domain.RoleWorker, "worker1"), "e1")
	require.NoError(t, err)

	_, err = svc.GetTimeEntry(ctxFor(domain.RoleWorker, "worker2"), "e1")
	require.Error(t, err)
	assert.Equal(t, apperr.PermissionDenied, apperr.CodeOf(err))
}

func TestRecomputeOverlapsTagsIntersectingEntries(t *testing.T) {
	fs := newFakeStore()
	base := testNow.Add(-4 * time.Hour)
	e1End := base.Add(2 * time.Hour)
	seedEntry(fs, "e1", "worker1", base)
	fs.entries["e1"].ClockOutAt = &e1End
	seedEntry(fs, "e2", "worker1", base.Add(time.Hour))
	e2End := base.Add(3 * time.Hour)
	fs.entries["e2"].ClockOutAt = &e2End
	svc := newTestService(fs)

	require.NoError(t, svc.recomputeOverlaps(ctxFor(domain.RoleManager, "mgr1"), testCompany, "worker1"))
	assert.True(t, fs.entries["e1"].HasTag(domain.TagOverlap))
	assert.True(t, fs.entries["e2"].HasTag(domain.TagOverlap))
}
