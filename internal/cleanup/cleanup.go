// Package cleanup implements the TTL retention job (C12): a daily sweep
// that deletes documents past their retention window. The PostgREST query
// builder the rest of the store uses has no DELETE ... LIMIT, so this job
// opens a thin database/sql connection over the lib/pq driver, kept from
// the reference backend's go.mod for exactly this purpose.
package cleanup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// maxBatchPerTable bounds each table's delete to one transaction (§4.12
// safeguard: batch size ≤ 500 per run).
const maxBatchPerTable = 500

// warnThreshold logs at WARN when a single run deletes more than this many
// rows from one table.
const warnThreshold = 1000

// Retention holds the per-collection age thresholds driving the sweep.
type Retention struct {
	EstimatesStaleYears     int
	AssignmentsInactiveYears int
	AuditRetentionDays      int
	BackupsRetentionDays    int
	ProbesRetentionDays     int
}

// DefaultRetention matches §4.12's literal policy.
func DefaultRetention() Retention {
	return Retention{
		EstimatesStaleYears:      3,
		AssignmentsInactiveYears: 2,
		AuditRetentionDays:       365,
		BackupsRetentionDays:     30,
		ProbesRetentionDays:      30,
	}
}

// Job runs the daily cleanup sweep over a direct Postgres connection.
type Job struct {
	db     *sql.DB
	policy Retention
	now    func() time.Time
}

// New opens a lib/pq connection to dsn and builds the cleanup job.
func New(dsn string, policy Retention) (*Job, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("cleanup: open postgres: %w", err)
	}
	return &Job{db: db, policy: policy, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the underlying connection pool.
func (j *Job) Close() error {
	return j.db.Close()
}

// tableDelete is one bounded, age-predicated delete.
type tableDelete struct {
	table     string
	predicate string // SQL boolean expression over the row, referencing $1 as the cutoff timestamp
	args      []interface{}
}

// RunOnce executes one sweep. In dryRun mode it counts matching rows
// without deleting anything. Returns a per-table deleted-row count. A
// failure on one table is logged and does not stop the remaining tables;
// the returned error joins every table's failure.
func (j *Job) RunOnce(ctx context.Context, dryRun bool) (map[string]int, error) {
	now := j.now()

	deletes := []tableDelete{
		{
			table:     "estimates",
			predicate: `status <> 'accepted' AND created_at < $1`,
			args:      []interface{}{now.AddDate(-j.policy.EstimatesStaleYears, 0, 0)},
		},
		{
			table:     "assignments",
			predicate: `active = false AND end_date < $1`,
			args:      []interface{}{now.AddDate(-j.policy.AssignmentsInactiveYears, 0, 0)},
		},
		{
			table:     "_audit",
			predicate: `timestamp < $1`,
			args:      []interface{}{now.AddDate(0, 0, -j.policy.AuditRetentionDays)},
		},
		{
			table:     "_backups",
			predicate: `created_at < $1`,
			args:      []interface{}{now.AddDate(0, 0, -j.policy.BackupsRetentionDays)},
		},
		{
			// _probes excludes the singleton latency_test sample: §4.12.
			table:     "_probes",
			predicate: `created_at < $1 AND id <> 'latency_test'`,
			args:      []interface{}{now.AddDate(0, 0, -j.policy.ProbesRetentionDays)},
		},
	}

	results := make(map[string]int, len(deletes))
	var errs []error
	for _, d := range deletes {
		n, err := j.runTable(ctx, d, dryRun)
		if err != nil {
			slog.Error("cleanup: table sweep failed", "table", d.table, "error", err)
			errs = append(errs, fmt.Errorf("cleanup: %s: %w", d.table, err))
			continue
		}
		results[d.table] = n
		if n > warnThreshold {
			slog.Warn("cleanup: large delete in single run", "table", d.table, "deleted", n)
		}
	}

	return results, errors.Join(errs...)
}

func (j *Job) runTable(ctx context.Context, d tableDelete, dryRun bool) (int, error) {
	if dryRun {
		query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s LIMIT %d`, d.table, d.predicate, maxBatchPerTable)
		var n int
		if err := j.db.QueryRowContext(ctx, query, d.args...).Scan(&n); err != nil {
			return 0, err
		}
		return n, nil
	}

	query := fmt.Sprintf(
		`DELETE FROM %s WHERE id IN (SELECT id FROM %s WHERE %s LIMIT %d)`,
		d.table, d.table, d.predicate, maxBatchPerTable,
	)
	res, err := j.db.ExecContext(ctx, query, d.args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// RunForever ticks RunOnce every interval (daily, per §4.12's 02:00 UTC
// dailyCleanup schedule — the caller is expected to align interval/start
// time, since this job has no internal clock-alignment logic) until ctx
// is canceled.
func (j *Job) RunForever(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, err := j.RunOnce(ctx, false)
			if err != nil {
				slog.Error("cleanup: sweep failed", "error", err)
				continue
			}
			slog.Info("cleanup: sweep complete", "results", results)
		}
	}
}
