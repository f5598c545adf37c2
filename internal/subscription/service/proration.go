package service

import (
	"math"
	"time"
)

// ceilDays is the calendar-day difference between two instants, rounded up.
// Partial days count as a full day; a non-positive span is 0.
func ceilDays(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(math.Ceil(to.Sub(from).Hours() / 24))
}

// prorate computes the partial-period upgrade charge in cents:
// delta / totalDays * remainingDays, rounded half-up to a whole cent and
// clamped at zero.
func prorate(deltaCents int64, totalDays, remainingDays int) int64 {
	if deltaCents <= 0 || totalDays <= 0 || remainingDays <= 0 {
		return 0
	}
	charge := float64(deltaCents) * float64(remainingDays) / float64(totalDays)
	return int64(math.Floor(charge + 0.5))
}
