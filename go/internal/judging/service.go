// Package judging implements the commands a judge issues while scoring a
// starter. Every command mutates the application state first and then queues
// the matching outbound message.
package judging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoresync/go/internal/debounce"
	"github.com/mcdev12/scoresync/go/internal/decimal"
	"github.com/mcdev12/scoresync/go/internal/messages"
	"github.com/mcdev12/scoresync/go/internal/models"
	"github.com/mcdev12/scoresync/go/internal/pages"
	"github.com/mcdev12/scoresync/go/internal/scoring"
	"github.com/mcdev12/scoresync/go/internal/state"
)

var (
	ErrNoScoresheet      = errors.New("no scoresheet selected")
	ErrUnknownMovement   = errors.New("movement not in test")
	ErrUnknownStarter    = errors.New("starter not found")
	ErrLocked            = errors.New("scoresheet is locked")
	ErrInvalidMark       = errors.New("mark is not valid for the movement")
	ErrDerivedMark       = errors.New("mark is derived from attempts")
	ErrNoAttempts        = errors.New("movement does not take attempts")
	ErrUnknownPenalty    = errors.New("unknown penalty variety")
	ErrNoCompetition     = errors.New("competition not found")
	ErrAttemptOutOfRange = errors.New("attempt index out of range")
)

// Sender queues outbound payloads.
type Sender interface {
	Send(payload messages.Outbound)
}

type Config struct {
	// MarkDelay is how long mark edits are coalesced before sending.
	MarkDelay time.Duration `env:"MARK_DELAY" yaml:"mark_delay"`
}

func DefaultConfig() Config {
	return Config{MarkDelay: 1500 * time.Millisecond}
}

// Service runs judge commands against the shared application state.
type Service struct {
	state     *state.Managed
	sender    Sender
	pages     pages.Broadcaster
	debouncer *debounce.Debouncer[uint16]
	config    Config
}

func NewService(st *state.Managed, sender Sender, broadcaster pages.Broadcaster, clock clockwork.Clock, cfg Config) *Service {
	if broadcaster == nil {
		broadcaster = pages.Discard{}
	}
	return &Service{
		state:     st,
		sender:    sender,
		pages:     broadcaster,
		debouncer: debounce.New[uint16](clock),
		config:    cfg,
	}
}

// sheetContext is what a command needs to know about the current starter.
type sheetContext struct {
	sheet *models.Scoresheet
	test  *models.DressageTest
}

func current(s *models.ApplicationState) (sheetContext, error) {
	sheet := s.Scoresheet()
	if sheet == nil {
		return sheetContext{}, ErrNoScoresheet
	}
	test := s.Test()
	if test == nil {
		return sheetContext{}, fmt.Errorf("%w: no test for competition", ErrNoScoresheet)
	}
	return sheetContext{sheet: sheet, test: test}, nil
}

func (c sheetContext) movement(number uint16) (models.Exercise, error) {
	ex, ok := c.test.Movement(number)
	if !ok {
		return models.Exercise{}, fmt.Errorf("%w: %d", ErrUnknownMovement, number)
	}
	return ex, nil
}

// InputMark applies what the judge typed for a movement. Valid input is
// stored and sent after MarkDelay of quiet; a complete mark is sent at once.
// Invalid input clears the stored mark.
func (s *Service) InputMark(ctx context.Context, number uint16, raw string) (scoring.Result, error) {
	type outcome struct {
		result  scoring.Result
		payload messages.Mark
		trend   *decimal.Decimal
	}

	out, err := state.WriteValue(ctx, s.state, func(a *models.ApplicationState) (outcome, error) {
		c, err := current(a)
		if err != nil {
			return outcome{}, err
		}
		if c.sheet.Locked {
			return outcome{}, ErrLocked
		}
		ex, err := c.movement(number)
		if err != nil {
			return outcome{}, err
		}

		result := scoring.Normalize(raw, ex)
		if strings.HasSuffix(strings.TrimSpace(raw), ".") && result.Status.Valid() {
			// still typing; nothing to store yet
			return outcome{result: result}, nil
		}

		mark := c.sheet.MarkOrCreate(number)
		if len(mark.Attempts) > 0 {
			return outcome{}, ErrDerivedMark
		}
		if result.Status.Valid() {
			mark.Mark = decimal.Ptr(result.Value)
		} else {
			mark.Mark = nil
		}

		o := outcome{
			result: result,
			payload: messages.Mark{
				SheetID: c.sheet.ID,
				Number:  number,
				Mark:    mark.Mark,
				Remark:  mark.Remark,
			},
		}
		if trend, err := scoring.Trend(c.sheet, c.test); err == nil {
			o.trend = &trend
		}
		return o, nil
	})
	if err != nil {
		return scoring.Result{}, err
	}
	if out.payload.SheetID == "" {
		return out.result, nil
	}

	s.queueMark(out.payload, out.result.Status == scoring.Complete)
	s.publishTrend(out.trend)
	return out.result, nil
}

// InputComment sets a movement's remark. It shares the mark's debounce key
// so a mark and its remark travel in one message.
func (s *Service) InputComment(ctx context.Context, number uint16, text string) error {
	payload, err := state.WriteValue(ctx, s.state, func(a *models.ApplicationState) (messages.Mark, error) {
		c, err := current(a)
		if err != nil {
			return messages.Mark{}, err
		}
		if c.sheet.Locked {
			return messages.Mark{}, ErrLocked
		}
		if _, err := c.movement(number); err != nil {
			return messages.Mark{}, err
		}
		mark := c.sheet.MarkOrCreate(number)
		if text = strings.TrimSpace(text); text == "" {
			mark.Remark = nil
		} else {
			mark.Remark = &text
		}
		return messages.Mark{SheetID: c.sheet.ID, Number: number, Mark: mark.Mark, Remark: mark.Remark}, nil
	})
	if err != nil {
		return err
	}
	s.queueMark(payload, false)
	return nil
}

// ConfirmAttempt sets, appends or (with empty raw) removes one attempt of a
// movement and re-derives the mark as the rounded mean of the attempts.
func (s *Service) ConfirmAttempt(ctx context.Context, number uint16, attempt int, raw string) (*decimal.Decimal, error) {
	type outcome struct {
		payload messages.Mark
		trend   *decimal.Decimal
	}

	raw = strings.TrimSpace(raw)
	if strings.HasSuffix(raw, ".") {
		return nil, nil
	}

	out, err := state.WriteValue(ctx, s.state, func(a *models.ApplicationState) (outcome, error) {
		c, err := current(a)
		if err != nil {
			return outcome{}, err
		}
		if c.sheet.Locked {
			return outcome{}, ErrLocked
		}
		ex, err := c.movement(number)
		if err != nil {
			return outcome{}, err
		}
		if !ex.Category.HasAttempts() {
			return outcome{}, ErrNoAttempts
		}
		if attempt < 0 {
			return outcome{}, ErrAttemptOutOfRange
		}

		mark := c.sheet.MarkOrCreate(number)
		switch {
		case raw == "":
			if attempt >= len(mark.Attempts) {
				return outcome{}, ErrAttemptOutOfRange
			}
			mark.Attempts = append(mark.Attempts[:attempt], mark.Attempts[attempt+1:]...)
		default:
			result := scoring.Normalize(raw, ex)
			if !result.Status.Valid() {
				return outcome{}, fmt.Errorf("%w: %s", ErrInvalidMark, result.Status)
			}
			if attempt < len(mark.Attempts) {
				mark.Attempts[attempt] = result.Value
			} else {
				mark.Attempts = append(mark.Attempts, result.Value)
			}
		}

		if len(mark.Attempts) == 0 {
			mark.Attempts = nil
			mark.Mark = nil
		} else {
			scoring.ApplyAttempts(mark, ex)
		}

		o := outcome{payload: messages.Mark{SheetID: c.sheet.ID, Number: number, Mark: mark.Mark, Remark: mark.Remark}}
		if trend, err := scoring.Trend(c.sheet, c.test); err == nil {
			o.trend = &trend
		}
		return o, nil
	})
	if err != nil {
		return nil, err
	}

	s.queueMark(out.payload, true)
	s.publishTrend(out.trend)
	return out.payload.Mark, nil
}

// AdjustPenalty adds delta to one penalty counter, saturating at the bounds
// of uint8, and sends the new count.
func (s *Service) AdjustPenalty(ctx context.Context, variety models.PenaltyVariety, delta int) (uint8, error) {
	type outcome struct {
		count    uint8
		sheetID  string
		fragment string
	}

	out, err := state.WriteValue(ctx, s.state, func(a *models.ApplicationState) (outcome, error) {
		sheet := a.Scoresheet()
		if sheet == nil {
			return outcome{}, ErrNoScoresheet
		}
		if sheet.Locked {
			return outcome{}, ErrLocked
		}
		var counter *uint8
		switch variety {
		case models.VarietyErrorsOfCourse:
			counter = &sheet.Errors
		case models.VarietyTechnicalPenalty:
			counter = &sheet.TechPenalties
		case models.VarietyArtisticPenalty:
			counter = &sheet.ArtPenalties
		default:
			return outcome{}, fmt.Errorf("%w: %q", ErrUnknownPenalty, variety)
		}
		*counter = saturatingAdd(*counter, delta)
		return outcome{count: *counter, sheetID: sheet.ID, fragment: pages.PenaltiesFragment(sheet)}, nil
	})
	if err != nil {
		return 0, err
	}

	s.sender.Send(messages.Penalty{SheetID: out.sheetID, Variety: variety, Quantity: out.count})
	s.pages.Publish(pages.Penalties, out.fragment)
	return out.count, nil
}

func saturatingAdd(v uint8, delta int) uint8 {
	n := int(v) + delta
	switch {
	case n < 0:
		return 0
	case n > 255:
		return 255
	}
	return uint8(n)
}

// Summarize stores the closing remarks and sends them.
func (s *Service) Summarize(ctx context.Context, summary, notes string) error {
	payload, err := state.WriteValue(ctx, s.state, func(a *models.ApplicationState) (messages.Summary, error) {
		sheet := a.Scoresheet()
		if sheet == nil {
			return messages.Summary{}, ErrNoScoresheet
		}
		if sheet.Locked {
			return messages.Summary{}, ErrLocked
		}
		sheet.Summary = optional(summary)
		sheet.Notes = optional(notes)
		return messages.Summary{SheetID: sheet.ID, Summary: sheet.Summary, Notes: sheet.Notes}, nil
	})
	if err != nil {
		return err
	}
	s.sender.Send(payload)
	return nil
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// ConfirmMarks locks the sheet. Pending mark edits are flushed first so the
// server sees them before the lock.
func (s *Service) ConfirmMarks(ctx context.Context) error {
	s.debouncer.ExecuteAll()

	type outcome struct {
		payload  messages.Lock
		fragment string
	}
	out, err := state.WriteValue(ctx, s.state, func(a *models.ApplicationState) (outcome, error) {
		sheet := a.Scoresheet()
		if sheet == nil {
			return outcome{}, ErrNoScoresheet
		}
		sheet.Locked = true
		return outcome{
			payload: messages.Lock{
				SheetID: sheet.ID,
				Locked:  true,
				Scores:  append([]models.ScoredMark(nil), sheet.Scores...),
			},
			fragment: pages.LockFragment(sheet),
		}, nil
	})
	if err != nil {
		return err
	}
	s.sender.Send(out.payload)
	s.pages.Publish(pages.Lock, out.fragment)
	return nil
}

// Subscribe selects a competition and asks the server for its updates.
func (s *Service) Subscribe(ctx context.Context, competitionID string) error {
	err := s.state.Write(ctx, func(a *models.ApplicationState) error {
		if a.Show == nil {
			return ErrNoCompetition
		}
		for _, c := range a.Show.Competitions {
			if c.ID == competitionID {
				a.CompetitionID = &competitionID
				a.Page = models.Page{Kind: models.PageCompetitionList}
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrNoCompetition, competitionID)
	})
	if err != nil {
		return err
	}
	s.sender.Send(messages.Subscribe{CompetitionID: competitionID})
	return nil
}

// Unsubscribe leaves the current competition.
func (s *Service) Unsubscribe(ctx context.Context) error {
	s.debouncer.ExecuteAll()
	if err := s.state.Write(ctx, func(a *models.ApplicationState) error {
		a.CompetitionID = nil
		a.StarterID = nil
		a.Page = models.Page{Kind: models.PageWelcome}
		return nil
	}); err != nil {
		return err
	}
	s.sender.Send(messages.Unsubscribe{})
	return nil
}

// ChooseStarter moves the judge to a starter's scoresheet. Pending edits for
// the previous starter are sent before switching.
func (s *Service) ChooseStarter(ctx context.Context, starterID string) error {
	s.debouncer.ExecuteAll()

	trend, err := state.WriteValue(ctx, s.state, func(a *models.ApplicationState) (*decimal.Decimal, error) {
		starter := a.StarterByID(starterID)
		if starter == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStarter, starterID)
		}
		a.StarterID = &starterID
		sheet := starter.Scoresheet()
		if sheet == nil {
			a.Page = models.Page{Kind: models.PageCompetitionList}
			return nil, nil
		}
		a.Page = models.Page{Kind: models.PageScoresheet, ScoresheetID: sheet.ID}
		if test := a.Test(); test != nil {
			if t, err := scoring.Trend(sheet, test); err == nil {
				return &t, nil
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	s.publishTrend(trend)
	return nil
}

// RaiseSignal sends an alert for the current scoresheet.
func (s *Service) RaiseSignal(ctx context.Context, alert messages.Alert) error {
	sheetID, err := s.currentSheetID()
	if err != nil {
		return err
	}
	s.sender.Send(messages.Signal{SheetID: sheetID, Signal: alert})
	s.pages.Publish(pages.Alerts, pages.AlertFragment(sheetID, alert.String()))
	return nil
}

// SetStatus changes the current starter's result and reports it.
func (s *Service) SetStatus(ctx context.Context, result models.StarterResult) error {
	sheetID, err := state.WriteValue(ctx, s.state, func(a *models.ApplicationState) (string, error) {
		starter := a.Starter()
		sheet := starter.Scoresheet()
		if sheet == nil {
			return "", ErrNoScoresheet
		}
		starter.Status = result
		return sheet.ID, nil
	})
	if err != nil {
		return err
	}
	s.sender.Send(messages.Status{SheetID: sheetID, Status: result})
	return nil
}

// Snapshot builds the keep-alive report. ok is false until a judge has
// signed in.
func (s *Service) Snapshot() (messages.ApplicationStateReport, bool) {
	type view struct {
		report messages.ApplicationStateReport
		ok     bool
	}
	v, err := state.ReadValue(s.state, func(a *models.ApplicationState) view {
		if a.Judge == nil || a.Judge.ID == "" {
			return view{}
		}
		r := messages.ApplicationStateReport{
			ID:            a.PermanentID,
			JudgeID:       a.Judge.ID,
			CompetitionID: a.CompetitionID,
			Location:      a.Page,
			State:         a.Battery,
		}
		if a.Show != nil {
			showID := a.Show.ID
			r.ShowID = &showID
		}
		if starter := a.Starter(); starter != nil {
			name := starter.Name()
			r.CompetitorName = &name
		}
		return view{report: r, ok: true}
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to read application state for snapshot")
		return messages.ApplicationStateReport{}, false
	}
	return v.report, v.ok
}

// Flush sends every pending mark edit now.
func (s *Service) Flush() {
	s.debouncer.ExecuteAll()
}

func (s *Service) currentSheetID() (string, error) {
	id, err := state.ReadValue(s.state, func(a *models.ApplicationState) string {
		if sheet := a.Scoresheet(); sheet != nil {
			return sheet.ID
		}
		return ""
	})
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", ErrNoScoresheet
	}
	return id, nil
}

func (s *Service) queueMark(payload messages.Mark, immediate bool) {
	s.debouncer.Debounce(payload.Number, s.config.MarkDelay, func() {
		s.sender.Send(payload)
	})
	if immediate {
		s.debouncer.ExecuteImmediately(payload.Number)
	}
	s.pages.Publish(pages.ScoresheetMarks, pages.MarkFragment(payload.Number, payload.Mark))
}

func (s *Service) publishTrend(trend *decimal.Decimal) {
	fragment := pages.TrendFragment(trend, nil)
	s.pages.Publish(pages.HeaderTrend, fragment)
	s.pages.Publish(pages.TotalScore, fragment)
}
