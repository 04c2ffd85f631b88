package invoice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(f float64) *float64 { return &f }

func TestResolveRatePrefersJobRate(t *testing.T) {
	assert.Equal(t, 75.0, resolveRate(ptr(75), ptr(60)))
}

func TestResolveRateFallsBackToCompanyRate(t *testing.T) {
	assert.Equal(t, 60.0, resolveRate(nil, ptr(60)))
}

func TestResolveRateFallsBackToDefault(t *testing.T) {
	assert.Equal(t, defaultHourlyRate, resolveRate(nil, nil))
}

func TestResolveRatePreservesExplicitZero(t *testing.T) {
	assert.Equal(t, 0.0, resolveRate(ptr(0), ptr(60)))
}
