// Package probes implements the latency/SLO probe store (C13): it records
// per-route RPC timings (Middleware) and a scheduled bounded datastore read
// (Runner's kv_read; no object-store operation is probed), computes an
// exact sorted-percentile p95 per operation, and exposes both a structured
// log event and a Prometheus histogram per sample, following the reference
// backend's pattern of pairing push-style structured events with
// pull-style Prometheus metrics.
package probes

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// maxSamplesPerOp bounds the rolling window kept for percentile computation.
const maxSamplesPerOp = 1000

// Target is the p95 SLO for one operation, per §4.13's table.
type Target struct {
	TargetMillis float64
}

var targets = map[string]Target{
	"clockIn":           {TargetMillis: 2000},
	"clockOut":          {TargetMillis: 1500},
	"kv_read":           {TargetMillis: 100},
	"kv_write":          {TargetMillis: 200},
	"object_upload":     {TargetMillis: 1000},
	"invoice_generation": {TargetMillis: 2000},
}

// Store holds a rolling sample window per operation and the Prometheus
// histogram each sample is mirrored into.
type Store struct {
	mu      sync.Mutex
	samples map[string][]float64

	duration *prometheus.HistogramVec
}

// NewStore builds a probe store and registers its Prometheus metrics.
func NewStore() *Store {
	return &Store{
		samples: make(map[string][]float64),
		duration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldtime_op_duration_seconds",
				Help:    "Duration of probed operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}
}

// Record stores one duration sample for op, emits a performance_metric
// structured log event, and updates the Prometheus histogram.
func (s *Store) Record(op string, d time.Duration, success bool, companyID, userID string) {
	millis := float64(d.Microseconds()) / 1000.0

	s.mu.Lock()
	window := append(s.samples[op], millis)
	if len(window) > maxSamplesPerOp {
		window = window[len(window)-maxSamplesPerOp:]
	}
	s.samples[op] = window
	s.mu.Unlock()

	s.duration.WithLabelValues(op).Observe(d.Seconds())

	attrs := []any{"op", op, "durationMs", millis, "success", success}
	if companyID != "" {
		attrs = append(attrs, "companyId", companyID)
	}
	if userID != "" {
		attrs = append(attrs, "userId", userID)
	}
	slog.Info("performance_metric", attrs...)

	if target, ok := targets[op]; ok {
		p95 := s.P95(op)
		switch {
		case p95 >= target.TargetMillis:
			slog.Error("probes: p95 SLO breach", "op", op, "p95Ms", p95, "targetMs", target.TargetMillis)
		case p95 >= 0.75*target.TargetMillis:
			slog.Warn("probes: p95 approaching SLO", "op", op, "p95Ms", p95, "targetMs", target.TargetMillis)
		}
	}
}

// P95 computes sorted[floor(0.95*N)] over op's current sample window — an
// exact sorted-percentile, not the max*0.95 approximation the reference
// backend's monitoring system uses.
func (s *Store) P95(op string) float64 {
	s.mu.Lock()
	window := append([]float64(nil), s.samples[op]...)
	s.mu.Unlock()

	if len(window) == 0 {
		return 0
	}
	sort.Float64s(window)
	idx := int(0.95 * float64(len(window)))
	if idx >= len(window) {
		idx = len(window) - 1
	}
	return window[idx]
}

// Timed runs fn, recording its duration against op. success is computed
// from whether fn returns a non-nil error.
func (s *Store) Timed(ctx context.Context, op, companyID, userID string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	s.Record(op, time.Since(start), err == nil, companyID, userID)
	return err
}
