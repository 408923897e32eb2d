package models

import (
	"encoding/json"

	"github.com/mcdev12/scoresync/go/internal/decimal"
)

// MovementCategory defines how a movement counts toward the score.
type MovementCategory string

const (
	CategoryTechnical  MovementCategory = "T"
	CategoryArtistic   MovementCategory = "A"
	CategoryCollective MovementCategory = "C"
	CategoryJoker      MovementCategory = "J"
	CategoryParticle   MovementCategory = "P" // never counted regardless of coefficient
	CategoryAcceptable MovementCategory = "E"
)

// HasAttempts reports whether marks for the category may be averaged from attempts.
func (c MovementCategory) HasAttempts() bool {
	return c == CategoryTechnical || c == ""
}

// Counted reports whether movements of the category contribute to the score.
func (c MovementCategory) Counted() bool {
	return c != CategoryParticle
}

// TestSheetType defines the kind of dressage test.
type TestSheetType string

const (
	TestSheetNormal    TestSheetType = "Normal"
	TestSheetFreestyle TestSheetType = "Freestyle"
	TestSheetQuality   TestSheetType = "Quality"
)

// Exercise is a scored movement of a test with its own scale.
type Exercise struct {
	Number      uint16           `json:"nr"`
	Coefficient decimal.Decimal  `json:"co"`
	Max         decimal.Decimal  `json:"mx"`
	Min         decimal.Decimal  `json:"mn"`
	Step        decimal.Decimal  `json:"st"`
	Category    MovementCategory `json:"ct,omitempty"`
	Abbrev      *string          `json:"ab,omitempty"`
}

var (
	defaultCoefficient = decimal.FromInt(1)
	defaultMax         = decimal.FromInt(10)
	defaultMin         = decimal.Zero
	defaultStep        = decimal.New(5, -1)
)

// NewExercise returns a movement with the default 0..10 by 0.5 scale.
func NewExercise(number uint16) Exercise {
	return Exercise{
		Number:      number,
		Coefficient: defaultCoefficient,
		Max:         defaultMax,
		Min:         defaultMin,
		Step:        defaultStep,
		Category:    CategoryTechnical,
	}
}

// UnmarshalJSON applies the scale defaults for fields the server omits.
func (e *Exercise) UnmarshalJSON(data []byte) error {
	type exercise Exercise
	raw := exercise(NewExercise(0))
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Exercise(raw)
	return nil
}

// DressageTest is the definition a scoresheet is judged against.
type DressageTest struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Movements          []Exercise    `json:"movements"`
	ErrorsOfCourse     PenaltyTable  `json:"errorsOfCourse"`
	TechnicalPenalties PenaltyTable  `json:"technicalPenalties"`
	ArtisticPenalties  PenaltyTable  `json:"artisticPenalties"`
	TestType           TestSheetType `json:"testType"`
	LengthInSeconds    uint16        `json:"lengthInSeconds,omitempty"`
}

// Movement returns the exercise with the given number.
func (t *DressageTest) Movement(number uint16) (Exercise, bool) {
	for _, m := range t.Movements {
		if m.Number == number {
			return m, true
		}
	}
	return Exercise{}, false
}
