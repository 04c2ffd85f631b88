package probes

import (
	"context"
	"time"

	"github.com/paintcrew/fieldtime/internal/database"
)

// Runner periodically exercises small, bounded operations against the
// datastore so the probe store always has fresh samples, even during
// quiet periods with no real traffic.
type Runner struct {
	store *Store
	db    *database.SupabaseStore
}

// NewRunner builds a scheduled latencyProbe runner.
func NewRunner(store *Store, db *database.SupabaseStore) *Runner {
	return &Runner{store: store, db: db}
}

// RunForever ticks a bounded kv_read probe every interval (§4.13: every 5
// minutes) until ctx is canceled.
func (r *Runner) RunForever(ctx context.Context, interval time.Duration, probeCompanyID string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.probeOnce(ctx, probeCompanyID)
		}
	}
}

func (r *Runner) probeOnce(ctx context.Context, companyID string) {
	_ = r.store.Timed(ctx, "kv_read", companyID, "", func(ctx context.Context) error {
		_, err := r.db.GetCompany(ctx, companyID)
		return err
	})
}
