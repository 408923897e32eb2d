package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/scoresync/go/internal/decimal"
)

// Competitor is the rider/horse pairing of a starter.
type Competitor struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	HorseName string `json:"horseName"`
}

// Starter represents one entry in a competition's start list.
type Starter struct {
	ID          string           `json:"id"`
	Competitor  Competitor       `json:"competitor"`
	Score       *decimal.Decimal `json:"score"`
	Status      StarterResult    `json:"status"`
	StartTime   time.Time        `json:"startTime"`
	Number      uint16           `json:"number"`
	Index       uint16           `json:"index"`
	Scoresheets []Scoresheet     `json:"scoresheets"`
}

// Scoresheet returns the judge's sheet for this starter, which is always the
// first one the server sends.
func (s *Starter) Scoresheet() *Scoresheet {
	if s == nil || len(s.Scoresheets) == 0 {
		return nil
	}
	return &s.Scoresheets[0]
}

// MatchesSheet reports whether the starter's first scoresheet has the id.
func (s *Starter) MatchesSheet(sheetID string) bool {
	sheet := s.Scoresheet()
	return sheet != nil && sheet.ID == sheetID
}

// Name returns the competitor's display name.
func (s *Starter) Name() string {
	return s.Competitor.FirstName + " " + s.Competitor.LastName
}

// ResultKind defines the placing status of a starter.
type ResultKind string

const (
	ResultUpcoming     ResultKind = "Upcoming"
	ResultInProgress   ResultKind = "InProgress"
	ResultPlaced       ResultKind = "Placed"
	ResultNotPlaced    ResultKind = "NotPlaced"
	ResultEliminated   ResultKind = "Eliminated"
	ResultWithdrawn    ResultKind = "Withdrawn"
	ResultNoShow       ResultKind = "NoShow"
	ResultRetired      ResultKind = "Retired"
	ResultDisqualified ResultKind = "Disqualified"
)

// StarterResult is a result kind plus its rank or elimination reason. On the
// wire it is a one or two element array: ["Upcoming"], ["Placed", 3] or
// ["Eliminated", "reason"].
type StarterResult struct {
	Kind   ResultKind
	Rank   uint16
	Reason string
}

// Upcoming is the initial status of every starter.
func Upcoming() StarterResult {
	return StarterResult{Kind: ResultUpcoming}
}

// HasRank reports whether the kind carries a rank.
func (r StarterResult) HasRank() bool {
	switch r.Kind {
	case ResultInProgress, ResultPlaced, ResultNotPlaced:
		return true
	}
	return false
}

// IsFinished reports whether the starter has completed their test.
func (r StarterResult) IsFinished() bool {
	return r.Kind != ResultUpcoming && r.Kind != ResultInProgress && r.Kind != ""
}

func (r StarterResult) MarshalJSON() ([]byte, error) {
	kind := r.Kind
	if kind == "" {
		kind = ResultUpcoming
	}
	switch {
	case r.HasRank():
		return json.Marshal([]any{kind, r.Rank})
	case kind == ResultEliminated:
		return json.Marshal([]any{kind, r.Reason})
	default:
		return json.Marshal([]any{kind})
	}
}

func (r *StarterResult) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("starter result: %w", err)
	}
	if len(parts) == 0 || len(parts) > 2 {
		return fmt.Errorf("starter result: expected 1 or 2 elements, got %d", len(parts))
	}
	var kind ResultKind
	if err := json.Unmarshal(parts[0], &kind); err != nil {
		return fmt.Errorf("starter result kind: %w", err)
	}
	out := StarterResult{Kind: kind}
	switch kind {
	case ResultUpcoming, ResultWithdrawn, ResultNoShow, ResultRetired, ResultDisqualified:
		if len(parts) != 1 {
			return fmt.Errorf("starter result %s takes no value", kind)
		}
	case ResultInProgress, ResultPlaced, ResultNotPlaced:
		if len(parts) != 2 {
			return fmt.Errorf("starter result %s requires a rank", kind)
		}
		if err := json.Unmarshal(parts[1], &out.Rank); err != nil {
			return fmt.Errorf("starter result rank: %w", err)
		}
	case ResultEliminated:
		if len(parts) != 2 {
			return fmt.Errorf("starter result %s requires a reason", kind)
		}
		if err := json.Unmarshal(parts[1], &out.Reason); err != nil {
			return fmt.Errorf("starter result reason: %w", err)
		}
	default:
		return fmt.Errorf("unknown starter result %q", kind)
	}
	*r = out
	return nil
}
