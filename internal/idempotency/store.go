// Package idempotency implements the (companyId, operation, clientEventId)
// → prior-result store that guarantees at-most-once side effects for
// mutating RPCs. It is backed by Redis when available, matching the
// reference backend's graceful fallback to an in-memory store when Redis is
// disabled or unreachable.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/paintcrew/fieldtime/internal/apperr"
)

// DefaultTTL is used when the caller does not specify one (IDEMPOTENCY_TTL_HOURS).
const DefaultTTL = 48 * time.Hour

// maxClientEventAge bounds how old an embedded clientEventId timestamp may be.
const maxClientEventAge = 24 * time.Hour

// Backend is the minimal KV contract the store needs; satisfied by both the
// Redis-backed and in-memory implementations.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store resolves idempotency keys for mutating operations.
type Store struct {
	backend Backend
}

// New builds a Store around the given backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Key formats the canonical idempotency key: {op}:{resourceId}:{clientEventId}.
func Key(op, resourceID, clientEventID string) string {
	return fmt.Sprintf("%s:%s:%s", op, resourceID, clientEventID)
}

// Lookup returns the stored result for key, or ok=false if no record
// exists (or it has expired).
func (s *Store) Lookup(ctx context.Context, companyID, key string) (result []byte, ok bool, err error) {
	full := companyID + ":" + key
	val, found, err := s.backend.Get(ctx, full)
	if err != nil {
		return nil, false, apperr.Wrap(err)
	}
	return val, found, nil
}

// Put atomically persists the result of a successful mutating operation
// under key with the given TTL. Callers must only invoke Put after the
// operation's side effects have been durably committed.
func (s *Store) Put(ctx context.Context, companyID, key string, result []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	full := companyID + ":" + key
	if err := s.backend.Set(ctx, full, result, ttl); err != nil {
		return apperr.Wrap(err)
	}
	return nil
}

// ValidateClientEventID checks that id embeds a timestamp no older than 24h
// and not in the future (clock skew). Accepted forms: "{ms-since-epoch}-{opaque}"
// or a UUIDv7 (48-bit millisecond timestamp prefix). Anything else, or a
// timestamp outside the window, is invalid-argument.
func ValidateClientEventID(id string, now time.Time) error {
	ts, ok := extractTimestamp(id)
	if !ok {
		return apperr.NewReason(apperr.InvalidArgument, "client_event_id_untimestamped",
			"clientEventId must embed a timestamp (ms-epoch prefix or UUIDv7)")
	}
	age := now.Sub(ts)
	if age > maxClientEventAge {
		return apperr.NewReason(apperr.InvalidArgument, "client_event_id_expired",
			"clientEventId is older than 24 hours")
	}
	if ts.After(now) {
		return apperr.NewReason(apperr.InvalidArgument, "client_event_id_future",
			"clientEventId timestamp is in the future")
	}
	return nil
}

func extractTimestamp(id string) (time.Time, bool) {
	if t, ok := extractMsEpochPrefix(id); ok {
		return t, true
	}
	if parsed, err := uuid.Parse(id); err == nil && parsed.Version() == 7 {
		ms := uuidv7Millis(parsed)
		return time.UnixMilli(ms), true
	}
	return time.Time{}, false
}

// extractMsEpochPrefix parses the "{ms-since-epoch}-{opaque}" form.
func extractMsEpochPrefix(id string) (time.Time, bool) {
	var digits int
	for digits < len(id) && id[digits] >= '0' && id[digits] <= '9' {
		digits++
	}
	if digits == 0 || digits >= len(id) || id[digits] != '-' {
		return time.Time{}, false
	}
	var ms int64
	for i := 0; i < digits; i++ {
		ms = ms*10 + int64(id[i]-'0')
	}
	// Reject unreasonably short prefixes (e.g. "1-x") which are not really
	// millisecond timestamps.
	if digits < 10 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func uuidv7Millis(id uuid.UUID) int64 {
	b := id[:]
	return int64(b[0])<<40 | int64(b[1])<<32 | int64(b[2])<<24 | int64(b[3])<<16 | int64(b[4])<<8 | int64(b[5])
}

// ============================================================================
// Redis-backed implementation
// ============================================================================

// RedisBackend adapts go-redis v9 to the Backend interface.
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend attempts to connect to Redis. Returns an error the caller
// should treat as "fall back to in-memory", as cmd/server/main.go does.
func NewRedisBackend(addr, password string, db int) (*RedisBackend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}
	return &RedisBackend{rdb: rdb}, nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.rdb.Set(ctx, key, value, ttl).Err()
}

func (b *RedisBackend) Close() error { return b.rdb.Close() }

// ============================================================================
// In-memory fallback implementation
// ============================================================================

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemBackend is a process-local TTL map used when Redis is disabled.
type MemBackend struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

// NewMemBackend builds an in-memory idempotency backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{entries: make(map[string]memEntry)}
}

func (m *MemBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Sweep removes entries that expired before now and returns how many it
// removed. Nothing in this module calls it on a schedule; Get already treats
// an expired entry as absent.
func (m *MemBackend) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}
