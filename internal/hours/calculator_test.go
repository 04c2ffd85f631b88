package hours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paintcrew/fieldtime/internal/domain"
)

func TestRoundHoursLaws(t *testing.T) {
	samples := []float64{0, 0.1, 0.12, 1.3, 3.1666666, 7.99, 11.99999}
	for _, x := range samples {
		up := RoundHours(x, 0.25, ModeUp)
		down := RoundHours(x, 0.25, ModeDown)
		nearest := RoundHours(x, 0.25, ModeNearest)

		assert.GreaterOrEqual(t, up, x-1e-9)
		assert.LessOrEqual(t, down, x+1e-9)
		assert.LessOrEqual(t, diff(nearest, x), 0.25/2+1e-9)
	}
}

func diff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestS5InvoiceBuildRounding(t *testing.T) {
	in := time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC)
	mk := func(id string, hrs float64) *domain.TimeEntry {
		out := in.Add(time.Duration(hrs * float64(time.Hour)))
		return &domain.TimeEntry{ID: id, CompanyID: "co1", ClockInAt: in, ClockOutAt: &out}
	}
	entries := []*domain.TimeEntry{mk("E1", 4.00), mk("E2", 3.17), mk("E3", 3.40)}

	total, err := CalculateHours(entries, 0.25, ModeNearest)
	require.NoError(t, err)
	assert.InDelta(t, 10.75, total, 1e-9)

	h1, _ := CalculateEntryHours(entries[0], 0.25, ModeNearest)
	h2, _ := CalculateEntryHours(entries[1], 0.25, ModeNearest)
	h3, _ := CalculateEntryHours(entries[2], 0.25, ModeNearest)
	assert.InDelta(t, 4.00, h1, 1e-9)
	assert.InDelta(t, 3.25, h2, 1e-9)
	assert.InDelta(t, 3.50, h3, 1e-9)
}

func TestCalculateEntryHoursRejectsMissingOrBackwards(t *testing.T) {
	in := time.Now()
	_, err := CalculateEntryHours(&domain.TimeEntry{ID: "e1", ClockInAt: in, ClockOutAt: nil}, 0.25, ModeNearest)
	require.Error(t, err)

	earlier := in.Add(-time.Hour)
	_, err = CalculateEntryHours(&domain.TimeEntry{ID: "e2", ClockInAt: in, ClockOutAt: &earlier}, 0.25, ModeNearest)
	require.Error(t, err)
}

func TestValidateBillable(t *testing.T) {
	in := time.Now().Add(-time.Hour)
	out := time.Now()
	entries := []*domain.TimeEntry{
		{ID: "ok", CompanyID: "co1", Status: domain.StatusApproved, ClockInAt: in, ClockOutAt: &out},
		{ID: "wrong-company", CompanyID: "coB", Status: domain.StatusApproved, ClockInAt: in, ClockOutAt: &out},
		{ID: "no-clockout", CompanyID: "co1", Status: domain.StatusApproved, ClockInAt: in},
		{ID: "not-approved", CompanyID: "co1", Status: domain.StatusPending, ClockInAt: in, ClockOutAt: &out},
		{ID: "already-invoiced", CompanyID: "co1", Status: domain.StatusApproved, ClockInAt: in, ClockOutAt: &out, InvoiceID: "inv1"},
	}
	errs := ValidateBillable(entries, "co1")
	require.Len(t, errs, 4)
}
