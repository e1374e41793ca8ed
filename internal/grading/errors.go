package grading

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidGrading is wrapped by every validation failure in this package.
var ErrInvalidGrading = errors.New("invalid grading")

// ValidationError is implemented by every user-correctable grading failure.
type ValidationError interface {
	error
	Rule() string
}

// WeightSumError indicates the weights do not sum to 100 within tolerance.
type WeightSumError struct {
	Sum float64
}

// Delta is the signed distance from the required total.
func (e *WeightSumError) Delta() float64 {
	return e.Sum - RequiredTotal
}

func (e *WeightSumError) Error() string {
	d := e.Delta()
	if d > 0 {
		return fmt.Sprintf("weights sum to %.1f, %.1f over %g", e.Sum, d, RequiredTotal)
	}
	return fmt.Sprintf("weights sum to %.1f, %.1f under %g", e.Sum, -d, RequiredTotal)
}

func (e *WeightSumError) Rule() string  { return "weight_sum" }
func (e *WeightSumError) Unwrap() error { return ErrInvalidGrading }

// WeightKeyMismatchError indicates the weight keys and dimension names disagree.
type WeightKeyMismatchError struct {
	Missing    []string // dimensions without a weight
	Unexpected []string // weights naming no dimension
	Duplicate  []string // dimension names listed more than once
}

func (e *WeightKeyMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "no weight for dimensions: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "weights for unknown dimensions: "+strings.Join(e.Unexpected, ", "))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, "duplicate dimensions: "+strings.Join(e.Duplicate, ", "))
	}
	return "weight keys do not match dimensions: " + strings.Join(parts, "; ")
}

func (e *WeightKeyMismatchError) Rule() string  { return "weight_keys" }
func (e *WeightKeyMismatchError) Unwrap() error { return ErrInvalidGrading }

// WeightRangeError indicates a single weight outside [0,100].
type WeightRangeError struct {
	Name  string
	Value float64
}

func (e *WeightRangeError) Error() string {
	return fmt.Sprintf("weight for %q is %g, must be between 0 and 100", e.Name, e.Value)
}

func (e *WeightRangeError) Rule() string  { return "weight_range" }
func (e *WeightRangeError) Unwrap() error { return ErrInvalidGrading }
