package services

import (
	"math"

	"github.com/stock-sync/pkg/models"
)

// ValidationVerdict is the outcome of comparing a persisted bar against
// the provider's bar for the same date.
type ValidationVerdict string

const (
	VerdictMatch      ValidationVerdict = models.ValidationMatch
	VerdictMismatch   ValidationVerdict = models.ValidationMismatch
	VerdictNoBaseline ValidationVerdict = models.ValidationNoBaseline
)

// CompareBars compares a persisted bar against the provider bar for the
// same trade date within a relative tolerance across the OHLC fields.
// Volume is deliberately excluded: providers revise volumes routinely,
// so a volume delta is not a correctness signal.
//
// Equality at exactly the tolerance boundary counts as a match. A
// provider value of zero requires exact equality since the relative
// difference is undefined there.
func CompareBars(persisted, provider *models.DailyBar, tolerance float64) ValidationVerdict {
	if persisted == nil {
		return VerdictNoBaseline
	}

	fields := []struct {
		persisted float64
		provider  float64
	}{
		{persisted.Open, provider.Open},
		{persisted.High, provider.High},
		{persisted.Low, provider.Low},
		{persisted.Close, provider.Close},
	}

	for _, f := range fields {
		if f.provider == 0 {
			if f.persisted != 0 {
				return VerdictMismatch
			}
			continue
		}

		diff := math.Abs(f.persisted-f.provider) / math.Abs(f.provider)
		if diff > tolerance {
			return VerdictMismatch
		}
	}

	return VerdictMatch
}
