// Package hours implements the pure rounding and grouping logic that turns
// validated TimeEntry intervals into billable hours. Nothing here touches
// the datastore; every function is deterministic given its inputs.
package hours

import (
	"fmt"
	"math"
	"time"

	"github.com/paintcrew/fieldtime/internal/domain"
)

// RoundingMode selects how a fractional hour quantity is snapped to a step.
type RoundingMode string

const (
	ModeNearest RoundingMode = "nearest"
	ModeUp      RoundingMode = "up"
	ModeDown    RoundingMode = "down"
)

// DefaultStepHours is used when no rounding step is configured.
const DefaultStepHours = 0.25

// RoundHours rounds h to the nearest/ceil/floor multiple of step. A step
// <= 0 is replaced by DefaultStepHours. Unknown modes fall back to nearest.
func RoundHours(h, step float64, mode RoundingMode) float64 {
	if step <= 0 {
		step = DefaultStepHours
	}
	units := h / step
	switch mode {
	case ModeUp:
		return math.Ceil(units) * step
	case ModeDown:
		return math.Floor(units) * step
	default:
		return math.Round(units) * step
	}
}

// CalculateEntryHours returns the rounded duration of one completed entry.
// It requires a non-nil clockOutAt strictly after clockInAt. Breaks are not
// yet computed (see the spec's open question on breakIds) and are treated
// as zero here.
func CalculateEntryHours(entry *domain.TimeEntry, step float64, mode RoundingMode) (float64, error) {
	if entry.ClockOutAt == nil {
		return 0, fmt.Errorf("entry %s has no clockOutAt", entry.ID)
	}
	if !entry.ClockOutAt.After(entry.ClockInAt) {
		return 0, fmt.Errorf("entry %s: clockOutAt must be after clockInAt", entry.ID)
	}
	raw := entry.ClockOutAt.Sub(entry.ClockInAt).Hours()
	return RoundHours(raw, step, mode), nil
}

// CalculateHours rounds each entry individually and sums the rounded
// values — sum-of-rounded, not round-of-sum, matching the spec's billing
// semantics for S5.
func CalculateHours(entries []*domain.TimeEntry, step float64, mode RoundingMode) (float64, error) {
	var total float64
	for _, e := range entries {
		h, err := CalculateEntryHours(e, step, mode)
		if err != nil {
			return 0, err
		}
		total += h
	}
	return total, nil
}

// CalculateHoursByJob groups entries by JobID and sums rounded hours per
// group.
func CalculateHoursByJob(entries []*domain.TimeEntry, step float64, mode RoundingMode) (map[string]float64, error) {
	return groupAndSum(entries, step, mode, func(e *domain.TimeEntry) string { return e.JobID })
}

// CalculateHoursByWorker groups entries by UserID and sums rounded hours
// per group.
func CalculateHoursByWorker(entries []*domain.TimeEntry, step float64, mode RoundingMode) (map[string]float64, error) {
	return groupAndSum(entries, step, mode, func(e *domain.TimeEntry) string { return e.UserID })
}

func groupAndSum(entries []*domain.TimeEntry, step float64, mode RoundingMode, keyFn func(*domain.TimeEntry) string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, e := range entries {
		h, err := CalculateEntryHours(e, step, mode)
		if err != nil {
			return nil, err
		}
		out[keyFn(e)] += h
	}
	return out, nil
}

// ValidationError is one human-readable reason an entry cannot be billed.
type ValidationError struct {
	EntryID string
	Reason  string
}

func (v ValidationError) String() string {
	return fmt.Sprintf("%s: %s", v.EntryID, v.Reason)
}

// ValidateBillable returns one ValidationError per entry that cannot
// currently be billed: missing clock-out, not approved, already invoiced,
// non-positive duration, or company mismatch against the expected company.
func ValidateBillable(entries []*domain.TimeEntry, expectedCompanyID string) []ValidationError {
	var errs []ValidationError
	now := time.Now()
	_ = now
	for _, e := range entries {
		switch {
		case e.CompanyID != expectedCompanyID:
			errs = append(errs, ValidationError{e.ID, "company mismatch"})
		case e.ClockOutAt == nil:
			errs = append(errs, ValidationError{e.ID, "missing clock-out"})
		case e.Status != domain.StatusApproved:
			errs = append(errs, ValidationError{e.ID, "not approved"})
		case e.InvoiceID != "":
			errs = append(errs, ValidationError{e.ID, "already invoiced"})
		case !e.ClockOutAt.After(e.ClockInAt):
			errs = append(errs, ValidationError{e.ID, "non-positive duration"})
		}
	}
	return errs
}
