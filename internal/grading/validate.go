// Package grading validates operator-confirmed grading weights and provides
// the default recruiting dimension template.
package grading

import (
	"math"
	"sort"

	"github.com/jonathan/talent-search/internal/types"
)

const (
	// RequiredTotal is the value all weights must sum to.
	RequiredTotal = 100.0
	// Tolerance is the absolute slack allowed around RequiredTotal.
	Tolerance = 0.1
)

// Validate checks that weights cover exactly the dimension names, that they
// sum to 100 within Tolerance and that each weight lies in [0,100].
// Key agreement is checked first since a sum over the wrong keys is
// meaningless. The sum is checked before the range, so {101, 0, 0, 0}
// yields a WeightSumError; a WeightRangeError only reports weights that sum
// correctly but are individually out of bounds, or NaN.
func Validate(dimensions []types.Dimension, weights map[string]float64) error {
	if err := checkKeys(dimensions, weights); err != nil {
		return err
	}

	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	if sum := total(names, weights); math.Abs(sum-RequiredTotal) > Tolerance {
		return &WeightSumError{Sum: sum}
	}

	for _, name := range names {
		w := weights[name]
		if math.IsNaN(w) || w < 0 || w > RequiredTotal {
			return &WeightRangeError{Name: name, Value: w}
		}
	}
	return nil
}

// total adds up weights in names order so the result does not depend on map iteration.
func total(names []string, weights map[string]float64) float64 {
	sum := 0.0
	for _, name := range names {
		sum += weights[name]
	}
	return sum
}

func checkKeys(dimensions []types.Dimension, weights map[string]float64) error {
	seen := make(map[string]bool, len(dimensions))
	mismatch := &WeightKeyMismatchError{}

	for _, d := range dimensions {
		if seen[d.Name] {
			mismatch.Duplicate = append(mismatch.Duplicate, d.Name)
			continue
		}
		seen[d.Name] = true
		if _, ok := weights[d.Name]; !ok {
			mismatch.Missing = append(mismatch.Missing, d.Name)
		}
	}
	for name := range weights {
		if !seen[name] {
			mismatch.Unexpected = append(mismatch.Unexpected, name)
		}
	}

	if len(mismatch.Missing) == 0 && len(mismatch.Unexpected) == 0 && len(mismatch.Duplicate) == 0 {
		return nil
	}
	sort.Strings(mismatch.Missing)
	sort.Strings(mismatch.Unexpected)
	sort.Strings(mismatch.Duplicate)
	return mismatch
}
