package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(start time.Time, offset time.Duration, miles float64) Sample {
	return Sample{Timestamp: start.Add(offset), DistanceMiles: miles}
}

func TestSplitsFromSamples(t *testing.T) {
	start := time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		samples []Sample
		want    []Split
	}{
		{
			name:    "no samples",
			samples: nil,
			want:    nil,
		},
		{
			name:    "single sample",
			samples: []Sample{sampleAt(start, 0, 0)},
			want:    nil,
		},
		{
			name: "two full miles",
			samples: []Sample{
				sampleAt(start, 0, 0),
				sampleAt(start, 9*time.Minute, 1.0),
				sampleAt(start, 19*time.Minute, 2.0),
			},
			want: []Split{
				{DistanceMiles: 1.0, Duration: 540},
				{DistanceMiles: 1.0, Duration: 600},
			},
		},
		{
			name: "trailing partial split included",
			samples: []Sample{
				sampleAt(start, 0, 0),
				sampleAt(start, 10*time.Minute, 1.0),
				sampleAt(start, 15*time.Minute, 1.4),
			},
			want: []Split{
				{DistanceMiles: 1.0, Duration: 600},
				{DistanceMiles: 0.4, Duration: 300},
			},
		},
		{
			name: "short session under one mile",
			samples: []Sample{
				sampleAt(start, 0, 0),
				sampleAt(start, 8*time.Minute, 0.75),
			},
			want: []Split{
				{DistanceMiles: 0.75, Duration: 480},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitsFromSamples(tt.samples)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i].DistanceMiles, got[i].DistanceMiles, 1e-9)
				assert.InDelta(t, tt.want[i].Duration, got[i].Duration, 1e-9)
			}
		})
	}
}

func TestLocalDate(t *testing.T) {
	// 23:30 UTC on March 10 is already March 11 at UTC+2
	a := &Activity{
		StartedAt:      time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC),
		TimezoneOffset: 120,
	}
	assert.Equal(t, "2026-03-11", a.LocalDate())

	// And still March 10 at UTC-5
	a.TimezoneOffset = -300
	assert.Equal(t, "2026-03-10", a.LocalDate())
}

func TestTotalDuration(t *testing.T) {
	a := &Activity{
		StartedAt: time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC),
		EndedAt:   time.Date(2026, 3, 10, 7, 45, 30, 0, time.UTC),
	}
	assert.InDelta(t, 2730, a.TotalDuration(), 1e-9)
}

func TestSplitTimes(t *testing.T) {
	a := &Activity{
		Splits: []Split{
			{DistanceMiles: 1, Duration: 540},
			{DistanceMiles: 1, Duration: 555},
			{DistanceMiles: 0.2, Duration: 100},
		},
	}
	assert.Equal(t, []float64{540, 555, 100}, a.SplitTimes())
}
