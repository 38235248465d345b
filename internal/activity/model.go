// Package activity defines locally recorded activity sessions and the
// source interface the sync engine consumes them through.
package activity

import (
	"time"
)

// Type is the category of an activity session
type Type string

// Supported activity types
const (
	TypeRunning Type = "running"
	TypeWalking Type = "walking"
	TypeCycling Type = "cycling"
	TypeHiking  Type = "hiking"
	TypeOther   Type = "other"
)

// splitThresholdMiles is the distance covered by one full split
const splitThresholdMiles = 1.0

// Activity represents one completed activity session. The sync engine
// treats it as an immutable value read once per sync pass.
type Activity struct {
	ID             string
	Type           Type
	StartedAt      time.Time
	EndedAt        time.Time
	TimezoneOffset int // minutes from UTC
	DistanceMiles  float64
	Calories       float64
	Splits         []Split
	Samples        []Sample
}

// Split is one sub-segment of an activity
type Split struct {
	DistanceMiles float64 `json:"distance"`
	Duration      float64 `json:"duration"` // seconds
}

// Sample is one point in the raw recording stream. Distance is
// cumulative from the start of the session.
type Sample struct {
	Timestamp     time.Time `json:"t"`
	DistanceMiles float64   `json:"d"`
}

// TotalDuration returns the session duration in seconds
func (a *Activity) TotalDuration() float64 {
	return a.EndedAt.Sub(a.StartedAt).Seconds()
}

// SplitTimes returns the duration of each split in seconds, in order
func (a *Activity) SplitTimes() []float64 {
	times := make([]float64, 0, len(a.Splits))
	for _, s := range a.Splits {
		times = append(times, s.Duration)
	}
	return times
}

// LocalDate returns the session's calendar date in its recorded timezone,
// formatted YYYY-MM-DD.
func (a *Activity) LocalDate() string {
	loc := time.FixedZone("local", a.TimezoneOffset*60)
	return a.StartedAt.In(loc).Format("2006-01-02")
}

// SplitsFromSamples derives per-mile splits from a raw sample stream.
// A full split is emitted each time the cumulative distance crosses
// another whole mile. A trailing partial split is included when at
// least one sample lies beyond the last whole-mile boundary.
func SplitsFromSamples(samples []Sample) []Split {
	if len(samples) < 2 {
		return nil
	}

	var splits []Split
	boundaryDist := 0.0
	boundaryTime := samples[0].Timestamp

	for _, s := range samples[1:] {
		for s.DistanceMiles-boundaryDist >= splitThresholdMiles {
			// Interpolation over the crossing sample is not attempted;
			// the crossing sample's timestamp closes the split.
			splits = append(splits, Split{
				DistanceMiles: splitThresholdMiles,
				Duration:      s.Timestamp.Sub(boundaryTime).Seconds(),
			})
			boundaryDist += splitThresholdMiles
			boundaryTime = s.Timestamp
		}
	}

	last := samples[len(samples)-1]
	if remainder := last.DistanceMiles - boundaryDist; remainder > 0 && last.Timestamp.After(boundaryTime) {
		splits = append(splits, Split{
			DistanceMiles: remainder,
			Duration:      last.Timestamp.Sub(boundaryTime).Seconds(),
		})
	}

	return splits
}
