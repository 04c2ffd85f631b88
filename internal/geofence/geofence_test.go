package geofence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineSymmetric(t *testing.T) {
	cases := [][4]float64{
		{40.7500, -74.0000, 40.7600, -74.0000},
		{89.9, 10, 89.9, -170},
		{0, 0, 0, 0},
		{-33.8, 151.2, 51.5, -0.1},
	}
	for _, c := range cases {
		ab := HaversineMeters(c[0], c[1], c[2], c[3])
		ba := HaversineMeters(c[2], c[3], c[0], c[1])
		assert.InDelta(t, ab, ba, 0.001, "haversine must be symmetric")
	}
}

func TestHaversineIdenticalPointsZero(t *testing.T) {
	d := HaversineMeters(40.75, -74.0, 40.75, -74.0)
	assert.Equal(t, 0.0, d)
}

func TestHaversineNonNegative(t *testing.T) {
	d := HaversineMeters(89.999, 0, -89.999, 180)
	require.GreaterOrEqual(t, d, 0.0)
}

func TestEvaluateClosedBallBoundary(t *testing.T) {
	// distance == effective_radius must be inside (closed ball).
	jobLat, jobLng, radius := 0.0, 0.0, 150.0
	accuracy := 10.0
	effective := radius + accuracy

	// Move due north by exactly `effective` meters along the surface.
	deltaLat := (effective / earthRadiusMeters) * (180 / 3.141592653589793)
	workerLat := jobLat + deltaLat

	res := Evaluate(workerLat, jobLng, &accuracy, jobLat, jobLng, radius, true)
	assert.InDelta(t, effective, res.DistanceM, 0.5)
	assert.True(t, res.Inside, "distance exactly at effective radius must be inside")
}

func TestEvaluateGeofenceViolation(t *testing.T) {
	accuracy := 10.0
	res := Evaluate(40.7600, -74.0000, &accuracy, 40.7500, -74.0000, 150, true)
	assert.False(t, res.Inside)
	assert.InDelta(t, 1112, res.DistanceM, 10)
	assert.Equal(t, 160.0, res.EffectiveRadiusM)
}

func TestEvaluateMissingCoords(t *testing.T) {
	res := Evaluate(0, 0, nil, 40.75, -74.0, 150, false)
	assert.False(t, res.Inside)
	assert.True(t, res.GPSMissing)
}

func TestEvaluateAccuracyCappedAt50(t *testing.T) {
	accuracy := 500.0
	res := Evaluate(40.75, -74.0, &accuracy, 40.75, -74.0, 150, true)
	assert.Equal(t, 200.0, res.EffectiveRadiusM)
	assert.True(t, res.LowAccuracy)
}

func TestEvaluateDefaultAccuracyWhenNil(t *testing.T) {
	res := Evaluate(40.75, -74.0, nil, 40.75, -74.0, 150, true)
	assert.Equal(t, 165.0, res.EffectiveRadiusM)
}
