// Package database is the persistence layer (C5 and friends): a thin
// wrapper over the Supabase Go client exposing one method per collection
// operation, following the same From(...).Select/Insert/Update/Eq/ExecuteTo
// idiom used throughout the reference backend this service descends from.
package database

import (
	"context"
	"fmt"
	"os"
	"time"

	supabase "github.com/supabase-community/supabase-go"

	"github.com/paintcrew/fieldtime/internal/apperr"
	"github.com/paintcrew/fieldtime/internal/domain"
)

// Collection names. Open Question 1 (timeEntries vs time_entries) is
// resolved here: this implementation uses "timeEntries" consistently.
const (
	TableCompanies    = "companies"
	TableJobs         = "jobs"
	TableAssignments  = "assignments"
	TableCustomers    = "customers"
	TableClockEvents  = "clockEvents"
	TableTimeEntries  = "timeEntries"
	TableInvoices     = "invoices"
	TableAPIKeys      = "api_keys"
	TableAudit        = "_audit"
	TableUsers        = "users"
)

// SupabaseStore wraps the Supabase Go client with every operation this
// service's components need.
type SupabaseStore struct {
	client *supabase.Client
}

// NewSupabaseStore creates a store from SUPABASE_URL / SUPABASE_SERVICE_KEY.
func NewSupabaseStore() (*SupabaseStore, error) {
	url := os.Getenv("SUPABASE_URL")
	key := os.Getenv("SUPABASE_SERVICE_KEY")
	if url == "" || key == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}

	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

// Ping performs a bounded reachability check, used by the /health endpoint.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	var companies []domain.Company
	_, err := s.client.From(TableCompanies).Select("id", "", false).Limit(1, "").ExecuteTo(&companies)
	if err != nil {
		return apperr.Wrap(err)
	}
	return nil
}

// ============================================================================
// COMPANIES
// ============================================================================

func (s *SupabaseStore) GetCompany(ctx context.Context, id string) (*domain.Company, error) {
	var rows []domain.Company
	_, err := s.client.From(TableCompanies).Select("*", "", false).Eq("id", id).ExecuteTo(&rows)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ============================================================================
// JOBS
// ============================================================================

func (s *SupabaseStore) GetJob(ctx context.Context, companyID, id string) (*domain.Job, error) {
	var rows []domain.Job
	_, err := s.client.From(TableJobs).Select("*", "", false).
		Eq("id", id).Eq("companyId", companyID).ExecuteTo(&rows)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *SupabaseStore) InsertJob(ctx context.Context, job *domain.Job) error {
	var result []domain.Job
	_, err := s.client.From(TableJobs).Insert(job, false, "", "", "").ExecuteTo(&result)
	return apperr.Wrap(err)
}

func (s *SupabaseStore) UpdateJob(ctx context.Context, job *domain.Job) error {
	var result []domain.Job
	_, err := s.client.From(TableJobs).Update(job, "", "").
		Eq("id", job.ID).Eq("companyId", job.CompanyID).ExecuteTo(&result)
	return apperr.Wrap(err)
}

// ============================================================================
// ASSIGNMENTS
// ============================================================================

// ActiveAssignment returns the assignment binding userID to jobID whose
// window contains at, or nil if none exists (§4.4 step 4).
func (s *SupabaseStore) ActiveAssignment(ctx context.Context, companyID, userID, jobID string, at time.Time) (*domain.Assignment, error) {
	var rows []domain.Assignment
	_, err := s.client.From(TableAssignments).Select("*", "", false).
		Eq("companyId", companyID).
		Eq("userId", userID).
		Eq("jobId", jobID).
		Eq("active", "true").
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	for i := range rows {
		a := &rows[i]
		if a.StartDate.After(at) {
			continue
		}
		if a.EndDate != nil && a.EndDate.Before(at) {
			continue
		}
		return a, nil
	}
	return nil, nil
}

// ============================================================================
// CUSTOMERS
// ============================================================================

func (s *SupabaseStore) GetCustomer(ctx context.Context, companyID, id string) (*domain.Customer, error) {
	var rows []domain.Customer
	_, err := s.client.From(TableCustomers).Select("*", "", false).
		Eq("id", id).Eq("companyId", companyID).ExecuteTo(&rows)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ============================================================================
// CLOCK EVENTS (append-only)
// ============================================================================

func (s *SupabaseStore) InsertClockEvent(ctx context.Context, ev *domain.ClockEvent) error {
	var result []domain.ClockEvent
	_, err := s.client.From(TableClockEvents).Insert(ev, false, "", "", "").ExecuteTo(&result)
	return apperr.Wrap(err)
}

// ============================================================================
// TIME ENTRIES (canonical, function-write-only)
// ============================================================================

func (s *SupabaseStore) GetTimeEntry(ctx context.Context, companyID, id string) (*domain.TimeEntry, error) {
	var rows []domain.TimeEntry
	_, err := s.client.From(TableTimeEntries).Select("*", "", false).
		Eq("id", id).Eq("companyId", companyID).ExecuteTo(&rows)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ActiveEntryForUser returns the (at most one) entry with clockOutAt==null
// for this user, enforcing the single-active-shift invariant.
func (s *SupabaseStore) ActiveEntryForUser(ctx context.Context, companyID, userID string) (*domain.TimeEntry, error) {
	var rows []domain.TimeEntry
	_, err := s.client.From(TableTimeEntries).Select("*", "", false).
		Eq("companyId", companyID).
		Eq("userId", userID).
		Is("clockOutAt", "null").
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *SupabaseStore) InsertTimeEntry(ctx context.Context, e *domain.TimeEntry) error {
	var result []domain.TimeEntry
	_, err := s.client.From(TableTimeEntries).Insert(e, false, "", "", "").ExecuteTo(&result)
	return apperr.Wrap(err)
}

func (s *SupabaseStore) UpdateTimeEntry(ctx context.Context, e *domain.TimeEntry) error {
	var result []domain.TimeEntry
	_, err := s.client.From(TableTimeEntries).Update(e, "", "").
		Eq("id", e.ID).Eq("companyId", e.CompanyID).ExecuteTo(&result)
	return apperr.Wrap(err)
}

// EntriesForUser returns every entry for a user/company, used by the
// overlap scan (C6).
func (s *SupabaseStore) EntriesForUser(ctx context.Context, companyID, userID string) ([]domain.TimeEntry, error) {
	var rows []domain.TimeEntry
	_, err := s.client.From(TableTimeEntries).Select("*", "", false).
		Eq("companyId", companyID).Eq("userId", userID).ExecuteTo(&rows)
	return rows, apperr.Wrap(err)
}

// ActiveEntriesOlderThan returns every active entry (clockOutAt==null)
// across all companies whose clockInAt is at or before cutoff, for the
// auto-clockout reaper, bounded to limit rows per run.
func (s *SupabaseStore) ActiveEntriesOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.TimeEntry, error) {
	var rows []domain.TimeEntry
	_, err := s.client.From(TableTimeEntries).Select("*", "", false).
		Is("clockOutAt", "null").
		Lte("clockInAt", cutoff.Format(time.RFC3339Nano)).
		Limit(limit, "").
		ExecuteTo(&rows)
	return rows, apperr.Wrap(err)
}

// GetTimeEntries batch-loads entries by id for the invoice builder's read
// set (§4.9 step 1).
func (s *SupabaseStore) GetTimeEntries(ctx context.Context, companyID string, ids []string) ([]domain.TimeEntry, error) {
	var out []domain.TimeEntry
	for _, id := range ids {
		e, err := s.GetTimeEntry(ctx, companyID, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

// ============================================================================
// INVOICES
// ============================================================================

func (s *SupabaseStore) GetInvoice(ctx context.Context, companyID, id string) (*domain.Invoice, error) {
	var rows []domain.Invoice
	_, err := s.client.From(TableInvoices).Select("*", "", false).
		Eq("id", id).Eq("companyId", companyID).ExecuteTo(&rows)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *SupabaseStore) InsertInvoice(ctx context.Context, inv *domain.Invoice) error {
	var result []domain.Invoice
	_, err := s.client.From(TableInvoices).Insert(inv, false, "", "", "").ExecuteTo(&result)
	return apperr.Wrap(err)
}

func (s *SupabaseStore) UpdateInvoice(ctx context.Context, inv *domain.Invoice) error {
	var result []domain.Invoice
	_, err := s.client.From(TableInvoices).Update(inv, "", "").
		Eq("id", inv.ID).Eq("companyId", inv.CompanyID).ExecuteTo(&result)
	return apperr.Wrap(err)
}

// ============================================================================
// API KEYS
// ============================================================================

func (s *SupabaseStore) GetAPIKey(ctx context.Context, keyID string) (*domain.APIKey, error) {
	var rows []domain.APIKey
	_, err := s.client.From(TableAPIKeys).Select("*", "", false).Eq("keyId", keyID).ExecuteTo(&rows)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *SupabaseStore) InsertAPIKey(ctx context.Context, key *domain.APIKey) error {
	var result []domain.APIKey
	_, err := s.client.From(TableAPIKeys).Insert(key, false, "", "", "").ExecuteTo(&result)
	return apperr.Wrap(err)
}

// ============================================================================
// USERS
// ============================================================================

func (s *SupabaseStore) GetUser(ctx context.Context, companyID, id string) (*domain.User, error) {
	var rows []domain.User
	_, err := s.client.From(TableUsers).Select("*", "", false).
		Eq("id", id).Eq("companyId", companyID).ExecuteTo(&rows)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *SupabaseStore) UpdateUser(ctx context.Context, u *domain.User) error {
	var result []domain.User
	_, err := s.client.From(TableUsers).Update(u, "", "").
		Eq("id", u.ID).Eq("companyId", u.CompanyID).ExecuteTo(&result)
	return apperr.Wrap(err)
}

// ============================================================================
// SECURITY AUDIT LOG (_audit)
// ============================================================================

// InsertAuditEntry mirrors an AuditRecord/security event into the
// append-only _audit collection.
func (s *SupabaseStore) InsertAuditEntry(ctx context.Context, entry *domain.AuditEntry) error {
	var result []map[string]interface{}
	_, err := s.client.From(TableAudit).Insert(entry, false, "", "", "").ExecuteTo(&result)
	return apperr.Wrap(err)
}
