package valueobjects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillingInterval_AddTo(t *testing.T) {
	start := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		interval BillingInterval
		count    int
		want     time.Time
	}{
		{IntervalDaily, 3, time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC)},
		{IntervalWeekly, 2, time.Date(2024, 2, 14, 10, 0, 0, 0, time.UTC)},
		{IntervalMonthly, 1, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)},
		{IntervalYearly, 1, time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)},
		{IntervalMonthly, 0, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.interval.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.interval.AddTo(start, tt.count))
		})
	}
}

func TestParseBillingInterval(t *testing.T) {
	i, err := ParseBillingInterval("weekly")
	require.NoError(t, err)
	assert.Equal(t, IntervalWeekly, i)

	_, err = ParseBillingInterval("hourly")
	assert.Error(t, err)
}

func TestFeatureType(t *testing.T) {
	assert.True(t, FeatureTypeBoolean.IsBoolean())
	assert.False(t, FeatureTypeBoolean.IsMetered())
	assert.True(t, FeatureTypeLimit.IsMetered())
	assert.True(t, FeatureTypeConsumable.IsMetered())

	_, err := ParseFeatureType("tiered")
	assert.Error(t, err)
}

func TestResetPeriod_WindowEnd(t *testing.T) {
	now := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)

	assert.Nil(t, ResetNever.WindowEnd(now))

	daily := ResetDaily.WindowEnd(now)
	require.NotNil(t, daily)
	assert.Equal(t, time.Date(2024, 6, 15, 23, 59, 59, 0, time.UTC), *daily)

	monthly := ResetMonthly.WindowEnd(now)
	require.NotNil(t, monthly)
	assert.Equal(t, time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC), *monthly)

	yearly := ResetYearly.WindowEnd(now)
	require.NotNil(t, yearly)
	assert.Equal(t, time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), *yearly)
}
