// Package invoice implements the invoice builder (C9): it aggregates
// approved TimeEntries into a billed Invoice, grouped by job, and emits
// InvoiceCreated for the PDF pipeline (C10) to consume.
package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paintcrew/fieldtime/internal/apperr"
	"github.com/paintcrew/fieldtime/internal/config"
	"github.com/paintcrew/fieldtime/internal/database"
	"github.com/paintcrew/fieldtime/internal/domain"
	"github.com/paintcrew/fieldtime/internal/events"
	"github.com/paintcrew/fieldtime/internal/hours"
	"github.com/paintcrew/fieldtime/internal/idempotency"
	"github.com/paintcrew/fieldtime/internal/multitenancy"
)

const opGenerateInvoice = "generateInvoice"

// defaultHourlyRate is used when neither the job nor the company has a
// configured rate.
const defaultHourlyRate = 50.00

// maxTimeEntriesPerInvoice bounds transaction size (§5 backpressure note).
const maxTimeEntriesPerInvoice = 500

// Result is the wire response of generateInvoice.
type Result struct {
	OK                  bool              `json:"ok"`
	InvoiceID           string            `json:"invoiceId"`
	Amount              float64           `json:"amount"`
	LineItems           []domain.LineItem `json:"lineItems"`
	TimeEntriesInvoiced []string          `json:"timeEntriesInvoiced"`
}

// Service implements C9 over the persistence store, the rounding
// calculator, and an event emitter for InvoiceCreated. The rounding step
// and mode are resolved per company from cfgMgr, so a company's overlay
// config applies even though the service itself is a process-wide
// singleton.
type Service struct {
	db      *database.SupabaseStore
	idem    *idempotency.Store
	emitter events.EventEmitter
	cfgMgr  *config.Manager
	now     func() time.Time
}

// NewService builds an invoice builder service.
func NewService(db *database.SupabaseStore, idem *idempotency.Store, emitter events.EventEmitter, cfgMgr *config.Manager) *Service {
	return &Service{
		db:      db,
		idem:    idem,
		emitter: emitter,
		cfgMgr:  cfgMgr,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GenerateInvoice runs the full invoice-build procedure described in §4.9.
func (s *Service) GenerateInvoice(ctx context.Context, customerID string, timeEntryIDs []string, dueDate, notes, jobIDOverride, clientEventID string) (*Result, error) {
	principal, err := multitenancy.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if !multitenancy.HasAnyRole(ctx, domain.RoleAdmin, domain.RoleManager) {
		return nil, apperr.New(apperr.PermissionDenied, "generateInvoice requires admin or manager role")
	}
	if len(timeEntryIDs) == 0 {
		return nil, apperr.New(apperr.InvalidArgument, "timeEntryIds must not be empty")
	}
	if len(timeEntryIDs) > maxTimeEntriesPerInvoice {
		return nil, apperr.New(apperr.InvalidArgument, fmt.Sprintf("at most %d time entries per invoice; batch the rest", maxTimeEntriesPerInvoice))
	}

	var key string
	if clientEventID != "" {
		key = idempotency.Key(opGenerateInvoice, strings.Join(timeEntryIDs, ","), clientEventID)
		if cached, ok, err := s.idem.Lookup(ctx, principal.CompanyID, key); err != nil {
			return nil, err
		} else if ok {
			var r Result
			if err := json.Unmarshal(cached, &r); err != nil {
				return nil, apperr.Wrap(err)
			}
			return &r, nil
		}
	}

	entries, err := s.db.GetTimeEntries(ctx, principal.CompanyID, timeEntryIDs)
	if err != nil {
		return nil, err
	}
	if len(entries) != len(timeEntryIDs) {
		return nil, apperr.New(apperr.InvalidArgument, "one or more time entry ids do not exist in this company")
	}

	entryPtrs := make([]*domain.TimeEntry, len(entries))
	for i := range entries {
		entryPtrs[i] = &entries[i]
	}
	if invalid := hours.ValidateBillable(entryPtrs, principal.CompanyID); len(invalid) > 0 {
		ids := make([]string, len(invalid))
		for i, v := range invalid {
			ids[i] = v.String()
		}
		return nil, apperr.New(apperr.InvalidArgument, fmt.Sprintf("entries not billable: %s", strings.Join(ids, "; ")))
	}

	company, err := s.db.GetCompany(ctx, principal.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, apperr.New(apperr.NotFound, "company not found")
	}

	cfg := s.cfgMgr.Get(principal.CompanyID)
	roundMode := hours.RoundingMode(cfg.Timekeeping.RoundingMode)

	byJob := make(map[string][]*domain.TimeEntry)
	var jobOrder []string
	for _, e := range entryPtrs {
		if _, ok := byJob[e.JobID]; !ok {
			jobOrder = append(jobOrder, e.JobID)
		}
		byJob[e.JobID] = append(byJob[e.JobID], e)
	}
	sort.Strings(jobOrder)

	var lineItems []domain.LineItem
	var total float64
	for _, jobID := range jobOrder {
		job, err := s.db.GetJob(ctx, principal.CompanyID, jobID)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, apperr.New(apperr.NotFound, fmt.Sprintf("job %s not found", jobID))
		}

		rate := resolveRate(job.HourlyRate, company.DefaultHourlyRate)

		jobEntries := byJob[jobID]
		jobHours, err := hours.CalculateHours(jobEntries, cfg.Timekeeping.RoundingStepHours, roundMode)
		if err != nil {
			return nil, apperr.Wrap(err)
		}

		amount := jobHours * rate
		total += amount
		lineItems = append(lineItems, domain.LineItem{
			Description: fmt.Sprintf("%s - Labor (%.2f hours @ $%.2f/hr)", job.Name, jobHours, rate),
			Quantity:    jobHours,
			UnitPrice:   rate,
		})
	}

	invoiceJobID := jobIDOverride
	if invoiceJobID == "" {
		invoiceJobID = jobOrder[0]
	}

	now := s.now()
	inv := &domain.Invoice{
		ID:         uuid.NewString(),
		CompanyID:  principal.CompanyID,
		CustomerID: customerID,
		JobID:      invoiceJobID,
		Status:     domain.InvoiceStatusPending,
		Amount:     total,
		Currency:   "USD",
		Items:      lineItems,
		Notes:      notes,
		DueDate:    dueDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.InsertInvoice(ctx, inv); err != nil {
		return nil, err
	}

	for _, e := range entryPtrs {
		e.InvoiceID = inv.ID
		e.InvoicedAt = &now
		e.UpdatedAt = now
		if err := s.db.UpdateTimeEntry(ctx, e); err != nil {
			return nil, err
		}
	}

	s.emitter.Emit(events.InvoiceCreatedType, "/invoices", inv.ID, map[string]interface{}{
		"companyId": inv.CompanyID,
		"invoiceId": inv.ID,
		"amount":    inv.Amount,
		"customerId": inv.CustomerID,
	})

	out := &Result{
		OK:                  true,
		InvoiceID:           inv.ID,
		Amount:              inv.Amount,
		LineItems:           inv.Items,
		TimeEntriesInvoiced: timeEntryIDs,
	}

	if key != "" {
		payload, _ := json.Marshal(out)
		idemTTL := time.Duration(cfg.Timekeeping.IdempotencyTTLHours) * time.Hour
		if err := s.idem.Put(ctx, principal.CompanyID, key, payload, idemTTL); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// resolveRate implements the explicit null-coalesce from §4.9 step 3:
// job.hourlyRate ?? company.defaultHourlyRate ?? 50.00, preserving an
// explicit 0 as a valid configured rate.
func resolveRate(jobRate, companyRate *float64) float64 {
	if jobRate != nil {
		return *jobRate
	}
	if companyRate != nil {
		return *companyRate
	}
	return defaultHourlyRate
}
