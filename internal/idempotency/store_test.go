package idempotency

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paintcrew/fieldtime/internal/apperr"
)

func TestValidateClientEventIDExactly24hAccepted(t *testing.T) {
	// Whole milliseconds, so the ms-resolution id encodes exactly now-24h.
	now := time.Now().Truncate(time.Millisecond)
	ts := now.Add(-24 * time.Hour)
	id := fmt.Sprintf("%d-a", ts.UnixMilli())
	err := ValidateClientEventID(id, now)
	assert.NoError(t, err)
}

func TestValidateClientEventID24hPlus1msRejected(t *testing.T) {
	now := time.Now()
	ts := now.Add(-24*time.Hour - time.Millisecond)
	id := fmt.Sprintf("%d-a", ts.UnixMilli())
	err := ValidateClientEventID(id, now)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidArgument, apperr.CodeOf(err))
}

func TestValidateClientEventIDFutureRejected(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Minute)
	id := fmt.Sprintf("%d-a", future.UnixMilli())
	err := ValidateClientEventID(id, now)
	require.Error(t, err)
}

func TestValidateClientEventIDUntimestampedRejected(t *testing.T) {
	err := ValidateClientEventID("not-a-timestamp", time.Now())
	require.Error(t, err)
}

func TestValidateClientEventIDUUIDv7Accepted(t *testing.T) {
	id, err := uuid.NewV7()
	require.NoError(t, err)
	err = ValidateClientEventID(id.String(), time.Now())
	assert.NoError(t, err)
}

func TestMemBackendPutLookupRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemBackend())

	key := Key("clockIn", "w1", "1738000000000-a")
	_, ok, err := store.Lookup(ctx, "co1", key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Put(ctx, "co1", key, []byte(`{"id":"E1","ok":true}`), time.Hour))

	val, ok, err := store.Lookup(ctx, "co1", key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"E1","ok":true}`, string(val))
}

func TestMemBackendSweepExpires(t *testing.T) {
	backend := NewMemBackend()
	require.NoError(t, backend.Set(context.Background(), "k", []byte("v"), -time.Second))
	removed := backend.Sweep(time.Now())
	assert.Equal(t, 1, removed)
}
