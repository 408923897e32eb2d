package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mcdev12/scoresync/go/internal/decimal"
)

// PenaltyKind defines what a penalty entry deducts.
type PenaltyKind string

const (
	PenaltyPoints      PenaltyKind = "Points"
	PenaltyPercentage  PenaltyKind = "Percentage"
	PenaltyElimination PenaltyKind = "Elimination"
)

// Penalty is the deduction applied for one occurrence of an error.
type Penalty struct {
	Index  uint8
	Kind   PenaltyKind
	Amount decimal.Decimal
}

// PenaltyTable lists the deduction for the first, second, ... occurrence.
// On the wire it is a compact string such as "2p;4p;E" where "p" marks
// points, "%" a percentage and "E" elimination.
type PenaltyTable []Penalty

// At returns the penalty for a zero-based occurrence. Occurrences beyond the
// table reuse its last entry. ok is false only for an empty table.
func (t PenaltyTable) At(occurrence int) (Penalty, bool) {
	if len(t) == 0 {
		return Penalty{}, false
	}
	if occurrence >= len(t) {
		occurrence = len(t) - 1
	}
	if occurrence < 0 {
		occurrence = 0
	}
	return t[occurrence], true
}

func (t PenaltyTable) String() string {
	sorted := make(PenaltyTable, len(t))
	copy(sorted, t)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	parts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		switch p.Kind {
		case PenaltyPoints:
			parts = append(parts, p.Amount.String()+"p")
		case PenaltyPercentage:
			parts = append(parts, p.Amount.String()+"%")
		case PenaltyElimination:
			parts = append(parts, "E")
		}
	}
	return strings.Join(parts, ";")
}

// ParsePenaltyTable reads the compact string form.
func ParsePenaltyTable(s string) (PenaltyTable, error) {
	if s == "" {
		return PenaltyTable{}, nil
	}
	entries := strings.Split(s, ";")
	if len(entries) > 256 {
		return nil, fmt.Errorf("penalty table has %d entries, at most 256 allowed", len(entries))
	}
	table := make(PenaltyTable, 0, len(entries))
	for i, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return nil, fmt.Errorf("penalty %d is empty", i)
		}
		p := Penalty{Index: uint8(i)}
		suffix := entry[len(entry)-1]
		switch suffix {
		case 'p', '%':
			amount, err := decimal.Parse(entry[:len(entry)-1])
			if err != nil {
				return nil, fmt.Errorf("penalty %d: %w", i, err)
			}
			p.Amount = amount
			p.Kind = PenaltyPoints
			if suffix == '%' {
				p.Kind = PenaltyPercentage
			}
		case 'E':
			p.Kind = PenaltyElimination
		default:
			return nil, fmt.Errorf("penalty %d: invalid type %q", i, suffix)
		}
		table = append(table, p)
	}
	return table, nil
}

func (t PenaltyTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *PenaltyTable) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("penalty table: %w", err)
	}
	parsed, err := ParsePenaltyTable(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// PenaltyVariety names one of the three penalty counters on a scoresheet.
type PenaltyVariety string

const (
	VarietyErrorsOfCourse   PenaltyVariety = "ErrorsOfCourse"
	VarietyTechnicalPenalty PenaltyVariety = "TechnicalPenalty"
	VarietyArtisticPenalty  PenaltyVariety = "ArtisticPenalty"
)

// UnmarshalJSON also accepts the short aliases the server uses.
func (v *PenaltyVariety) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case string(VarietyErrorsOfCourse), "errors":
		*v = VarietyErrorsOfCourse
	case string(VarietyTechnicalPenalty), "technical":
		*v = VarietyTechnicalPenalty
	case string(VarietyArtisticPenalty), "artistic":
		*v = VarietyArtisticPenalty
	default:
		return fmt.Errorf("unknown penalty variety %q", s)
	}
	return nil
}
