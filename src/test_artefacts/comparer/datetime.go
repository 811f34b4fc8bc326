package comparer

import (
	"time"

	"github.com/google/go-cmp/cmp"
)

func TimeWithinTolerance(toleranceMs int) cmp.Option {
	tolerance := time.Duration(toleranceMs) * time.Millisecond

	return cmp.Comparer(func(x, y time.Time) bool {
		diff := x.Sub(y)
		if diff < 0 {
			diff = -diff
		}
		return diff <= tolerance
	})
}

// SameDay compares times by their UTC calendar date.
func SameDay() cmp.Option {
	return cmp.Comparer(func(x, y time.Time) bool {
		return x.UTC().Format(time.DateOnly) == y.UTC().Format(time.DateOnly)
	})
}
