package models

import (
	"github.com/mcdev12/scoresync/go/internal/decimal"
)

// Scoresheet is one judge's record of marks and penalties for a starter.
type Scoresheet struct {
	ID            string           `json:"id"`
	Score         *decimal.Decimal `json:"score"`
	Rank          *uint16          `json:"rank"`
	Errors        uint8            `json:"errors"`
	TechPenalties uint8            `json:"techPenalties"`
	ArtPenalties  uint8            `json:"artPenalties"`
	Scores        []ScoredMark     `json:"scores"`
	Summary       *string          `json:"summary"`
	Notes         *string          `json:"notes"`
	Locked        bool             `json:"locked"`
}

// ScoredMark is the judge's mark for a single movement. When Attempts is
// non-empty Mark is derived from them and must not be written directly.
type ScoredMark struct {
	Number   uint16            `json:"nr"`
	Mark     *decimal.Decimal  `json:"mk"`
	Remark   *string           `json:"rk"`
	Attempts []decimal.Decimal `json:"at,omitempty"`
}

// Mark returns the scored mark for the movement number, if one exists.
func (s *Scoresheet) Mark(number uint16) *ScoredMark {
	for i := range s.Scores {
		if s.Scores[i].Number == number {
			return &s.Scores[i]
		}
	}
	return nil
}

// MarkOrCreate returns the scored mark for the movement number, appending an
// empty one when the movement has not been touched yet.
func (s *Scoresheet) MarkOrCreate(number uint16) *ScoredMark {
	if m := s.Mark(number); m != nil {
		return m
	}
	s.Scores = append(s.Scores, ScoredMark{Number: number})
	return &s.Scores[len(s.Scores)-1]
}

// ClearMarks resets the sheet to the state it had before judging started.
func (s *Scoresheet) ClearMarks() {
	s.Scores = nil
	s.Score = nil
	s.Errors = 0
	s.TechPenalties = 0
	s.ArtPenalties = 0
}
