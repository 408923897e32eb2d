// Package scoring validates judge input against movement scales and computes
// deductions, the live trend and attempt averages with exact decimal math.
package scoring

import (
	"strings"

	"github.com/mcdev12/scoresync/go/internal/decimal"
	"github.com/mcdev12/scoresync/go/internal/models"
)

// Status classifies raw mark input.
type Status int

const (
	// Unprocessable input is not a number.
	Unprocessable Status = iota
	// OutOfBounds input is a number that can never be a valid mark.
	OutOfBounds
	// Incomplete input is a valid mark that could still take another digit.
	Incomplete
	// Complete input is a valid mark with every digit the step allows.
	Complete
)

func (s Status) String() string {
	switch s {
	case Unprocessable:
		return "unprocessable"
	case OutOfBounds:
		return "out_of_bounds"
	case Incomplete:
		return "incomplete"
	case Complete:
		return "complete"
	}
	return "unknown"
}

// Valid reports whether the status carries a usable mark.
func (s Status) Valid() bool {
	return s == Incomplete || s == Complete
}

// Result is the outcome of Normalize. Value is set only for valid statuses.
type Result struct {
	Status Status
	Value  decimal.Decimal
}

var (
	one = decimal.FromInt(1)
	ten = decimal.FromInt(10)
)

// maxFolds bounds the fold loop for scales whose max is barely above one.
const maxFolds = 10_000

// Normalize turns what the judge typed into a mark for the exercise.
//
// Values above the maximum are folded back into range by repeated division
// by the maximum, so an overflowing keystroke such as "75" on a 0..10 scale
// becomes 7.5 rather than being rejected. A trailing decimal point after
// whole digits is accepted as incomplete input; after a fraction it is
// unprocessable.
func Normalize(raw string, ex models.Exercise) Result {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Trim(raw, "0123456789.-") != "" {
		return Result{Status: Unprocessable}
	}

	pending := strings.HasSuffix(raw, ".")
	digits := strings.TrimSuffix(raw, ".")
	if pending && strings.Contains(digits, ".") {
		return Result{Status: Unprocessable}
	}
	value, err := decimal.Parse(digits)
	if err != nil {
		return Result{Status: Unprocessable}
	}

	scale := StepScale(ex.Step)
	if value.Cmp(ex.Min) < 0 || value.Scale() > scale {
		return Result{Status: OutOfBounds}
	}

	folded, ok := Fold(value, ex.Max)
	if !ok || folded.Cmp(ex.Min) < 0 {
		return Result{Status: OutOfBounds}
	}

	if !ex.Step.IsZero() {
		rem, err := folded.Rem(ex.Step)
		if err != nil || !rem.IsZero() {
			return Result{Status: OutOfBounds}
		}
	}

	// Typed digits decide completeness, so "7.0" is as final as "7.5". A
	// folded value has no typed fraction of its own.
	typed := value.Scale()
	if value.Cmp(ex.Max) > 0 {
		typed = folded.Reduce().Scale()
	}
	folded = folded.Reduce()
	if pending || typed < scale {
		return Result{Status: Incomplete, Value: folded}
	}
	return Result{Status: Complete, Value: folded}
}

// Fold divides value by max until it no longer exceeds max. A max of one or
// less cannot shrink anything by division, so those scales fold by ten
// instead. ok is false when max is not positive.
func Fold(value, max decimal.Decimal) (decimal.Decimal, bool) {
	if max.Sign() <= 0 {
		return value, false
	}
	divisor := max
	if max.Cmp(one) <= 0 {
		divisor = ten
	}
	for i := 0; value.Cmp(max) > 0; i++ {
		if i == maxFolds {
			return value, false
		}
		next, err := value.Quo(divisor)
		if err != nil {
			return value, false
		}
		value = next
	}
	return value, true
}

// StepScale is the number of fractional digits a step allows, so 0.5 gives 1
// and 0.25 gives 2.
func StepScale(step decimal.Decimal) int32 {
	return step.Reduce().Scale()
}
