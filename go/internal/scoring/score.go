package scoring

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/mcdev12/scoresync/go/internal/decimal"
	"github.com/mcdev12/scoresync/go/internal/models"
)

// ErrNothingMarked is returned by Trend when no counted movement has a mark.
var ErrNothingMarked = errors.New("no movement has been marked")

// DefaultRounding is the mode used when averaging attempts.
const DefaultRounding = apd.RoundCeiling

var hundred = decimal.FromInt(100)

// TotalMarks is the sum of max * coefficient over every counted movement.
func TotalMarks(test *models.DressageTest) decimal.Decimal {
	total := decimal.Zero
	for _, m := range test.Movements {
		if !m.Category.Counted() {
			continue
		}
		total = total.Add(m.Max.Mul(m.Coefficient))
	}
	return total
}

// Deductions is the percentage removed from the trend by errors of course
// and technical and artistic penalties. Each occurrence looks up the
// category's table, reusing the last entry once the table runs out. Points
// are converted to a percentage of the total possible marks.
func Deductions(sheet *models.Scoresheet, test *models.DressageTest) (decimal.Decimal, error) {
	points, percent := decimal.Zero, decimal.Zero

	for _, c := range penaltyCategories(sheet, test) {
		for occurrence := 0; occurrence < int(c.count); occurrence++ {
			p, ok := c.table.At(occurrence)
			if !ok {
				break
			}
			switch p.Kind {
			case models.PenaltyPoints:
				points = points.Add(p.Amount)
			case models.PenaltyPercentage:
				percent = percent.Add(p.Amount)
			}
		}
	}

	if points.IsZero() {
		return percent, nil
	}
	total := TotalMarks(test)
	if total.IsZero() {
		return decimal.Zero, fmt.Errorf("deductions: test %s has no possible marks", test.ID)
	}
	fromPoints, err := points.Mul(hundred).Quo(total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("deductions: %w", err)
	}
	return fromPoints.Add(percent), nil
}

type penaltyCategory struct {
	count uint8
	table models.PenaltyTable
}

func penaltyCategories(sheet *models.Scoresheet, test *models.DressageTest) []penaltyCategory {
	return []penaltyCategory{
		{sheet.Errors, test.ErrorsOfCourse},
		{sheet.TechPenalties, test.TechnicalPenalties},
		{sheet.ArtPenalties, test.ArtisticPenalties},
	}
}

// IsEliminated reports whether any recorded occurrence hits an elimination entry.
func IsEliminated(sheet *models.Scoresheet, test *models.DressageTest) bool {
	for _, c := range penaltyCategories(sheet, test) {
		for occurrence := 0; occurrence < int(c.count); occurrence++ {
			if p, ok := c.table.At(occurrence); ok && p.Kind == models.PenaltyElimination {
				return true
			}
		}
	}
	return false
}

// Trend is the live percentage over the movements marked so far, minus
// deductions. Unmarked movements are left out of both the numerator and the
// denominator.
func Trend(sheet *models.Scoresheet, test *models.DressageTest) (decimal.Decimal, error) {
	numerator, denominator := decimal.Zero, decimal.Zero
	for _, m := range test.Movements {
		if !m.Category.Counted() {
			continue
		}
		scored := sheet.Mark(m.Number)
		if scored == nil || scored.Mark == nil {
			continue
		}
		numerator = numerator.Add(scored.Mark.Mul(m.Coefficient))
		denominator = denominator.Add(m.Max.Mul(m.Coefficient))
	}
	if denominator.IsZero() {
		return decimal.Zero, ErrNothingMarked
	}

	percentage, err := numerator.Mul(hundred).Quo(denominator)
	if err != nil {
		return decimal.Zero, fmt.Errorf("trend: %w", err)
	}
	deductions, err := Deductions(sheet, test)
	if err != nil {
		return decimal.Zero, err
	}
	return percentage.Sub(deductions), nil
}

// AttemptAverage is the mean of the attempts rounded to scale fractional
// digits. ok is false for no attempts.
func AttemptAverage(attempts []decimal.Decimal, scale int32, rounding apd.Rounder) (decimal.Decimal, bool) {
	if len(attempts) == 0 {
		return decimal.Zero, false
	}
	mean, err := decimal.Sum(attempts).Quo(decimal.FromInt(int64(len(attempts))))
	if err != nil {
		return decimal.Zero, false
	}
	return mean.Round(scale, rounding), true
}

// ApplyAttempts recomputes a mark from its attempts. A mark without attempts
// is left untouched.
func ApplyAttempts(mark *models.ScoredMark, ex models.Exercise) {
	if len(mark.Attempts) == 0 {
		return
	}
	avg, ok := AttemptAverage(mark.Attempts, StepScale(ex.Step), DefaultRounding)
	if !ok {
		return
	}
	mark.Mark = decimal.Ptr(avg)
}
