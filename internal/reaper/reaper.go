// Package reaper implements the auto clock-out scheduled job (C7): a
// periodic sweep that force-closes shifts abandoned past the configured
// threshold, tagging them for admin review.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/paintcrew/fieldtime/internal/database"
	"github.com/paintcrew/fieldtime/internal/domain"
)

// maxDocsPerRun bounds each sweep to the backpressure budget called out in
// §5 (500 docs per run, re-enqueue any remainder at the next tick).
const maxDocsPerRun = 500

// Reaper force-closes active entries older than thresholdHours.
type Reaper struct {
	db             *database.SupabaseStore
	thresholdHours float64
	now            func() time.Time
}

// New builds a Reaper. thresholdHours is AUTO_CLOCKOUT_HOURS (default 12).
func New(db *database.SupabaseStore, thresholdHours float64) *Reaper {
	return &Reaper{db: db, thresholdHours: thresholdHours, now: func() time.Time { return time.Now().UTC() }}
}

// Run executes one sweep and returns the number of entries closed.
func (r *Reaper) Run(ctx context.Context) (int, error) {
	now := r.now()
	cutoff := now.Add(-time.Duration(r.thresholdHours * float64(time.Hour)))

	entries, err := r.db.ActiveEntriesOlderThan(ctx, cutoff, maxDocsPerRun)
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range entries {
		e := &entries[i]
		closedAt := e.ClockInAt.Add(time.Duration(r.thresholdHours * float64(time.Hour)))

		e.ClockOutAt = &closedAt
		e.ClockOutGeofenceValid = nil
		e.Status = domain.StatusPending
		e.NeedsReview = true
		e.AddTag(domain.TagAutoClockout)
		e.AddTag(domain.TagExceeds12h)
		e.UpdatedAt = now
		e.AuditLog = append(e.AuditLog, domain.AuditRecord{
			EditedBy: "system",
			EditedAt: now,
			Reason:   "auto_clockout_12h",
			Changes: map[string]domain.FieldChange{
				"clockOutAt": {Before: nil, After: closedAt},
				"status":     {Before: domain.StatusActive, After: domain.StatusPending},
			},
		})

		if err := r.db.UpdateTimeEntry(ctx, e); err != nil {
			slog.Error("reaper: failed to close entry", "entry_id", e.ID, "error", err)
			continue
		}
		closed++
	}

	if len(entries) == maxDocsPerRun {
		slog.Warn("reaper: hit per-run cap, remainder will close on next tick", "cap", maxDocsPerRun)
	}

	return closed, nil
}

// RunForever ticks Run every interval until ctx is canceled.
func (r *Reaper) RunForever(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			closed, err := r.Run(ctx)
			if err != nil {
				slog.Error("reaper: sweep failed", "error", err)
				continue
			}
			if closed > 0 {
				slog.Info("reaper: closed abandoned shifts", "count", closed)
			}
		}
	}
}
