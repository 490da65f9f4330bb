package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextBoundary_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		interval int
		want     time.Time
	}{
		{
			name:     "mid interval",
			now:      time.Date(2024, 3, 1, 23, 8, 30, 0, time.UTC),
			interval: 5,
			want:     time.Date(2024, 3, 1, 23, 15, 0, 0, time.UTC),
		},
		{
			name:     "day rollover",
			now:      time.Date(2024, 3, 1, 23, 59, 40, 0, time.UTC),
			interval: 15,
			want:     time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "exactly on a boundary moves to the next one",
			now:      time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC),
			interval: 15,
			want:     time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "hourly",
			now:      time.Date(2024, 3, 1, 10, 0, 0, 1, time.UTC),
			interval: 60,
			want:     time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
		},
		{
			name:     "year rollover",
			now:      time.Date(2024, 12, 31, 23, 58, 59, 0, time.UTC),
			interval: 1,
			want:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "fixed offset zone",
			now:      time.Date(2024, 3, 1, 7, 41, 0, 0, time.FixedZone("UTC-2", -2*3600)),
			interval: 30,
			want:     time.Date(2024, 3, 1, 8, 0, 0, 0, time.FixedZone("UTC-2", -2*3600)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextBoundary(tt.now, tt.interval)
			assert.True(t, got.Equal(tt.want), "NextBoundary(%v, %d) = %v, want %v", tt.now, tt.interval, got, tt.want)
		})
	}
}

func TestNextBoundary_GridProperties(t *testing.T) {
	start := time.Date(2024, 2, 28, 22, 0, 0, 0, time.UTC)
	end := start.Add(26 * time.Hour)

	for _, interval := range []int{1, 5, 15, 30, 60} {
		for now := start; now.Before(end); now = now.Add(37*time.Second + 113*time.Millisecond) {
			got := NextBoundary(now, interval)

			require.True(t, got.After(now), "interval %d: %v is not after %v", interval, got, now)
			require.LessOrEqual(t, got.Sub(now), time.Duration(interval)*time.Minute,
				"interval %d: %v is more than one interval after %v", interval, got, now)
			require.Zero(t, got.Second(), "interval %d: %v is not on a whole minute", interval, got)
			require.Zero(t, got.Nanosecond(), "interval %d: %v is not on a whole minute", interval, got)
			require.Zero(t, got.Minute()%interval, "interval %d: minute %d is off the grid", interval, got.Minute())
		}
	}
}
