package judging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scoresync/go/internal/decimal"
	"github.com/mcdev12/scoresync/go/internal/messages"
	"github.com/mcdev12/scoresync/go/internal/models"
	"github.com/mcdev12/scoresync/go/internal/pages"
	"github.com/mcdev12/scoresync/go/internal/scoring"
	"github.com/mcdev12/scoresync/go/internal/state"
	"github.com/mcdev12/scoresync/go/internal/store"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []messages.Outbound
}

func (s *recordingSender) Send(p messages.Outbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, p)
}

func (s *recordingSender) all() []messages.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messages.Outbound(nil), s.sent...)
}

func (s *recordingSender) marks() []messages.Mark {
	var out []messages.Mark
	for _, p := range s.all() {
		if m, ok := p.(messages.Mark); ok {
			out = append(out, m)
		}
	}
	return out
}

type recordingPages struct {
	mu     sync.Mutex
	latest map[pages.Location]string
}

func (p *recordingPages) Publish(loc pages.Location, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		p.latest = make(map[pages.Location]string)
	}
	p.latest[loc] = content
}

func (p *recordingPages) get(loc pages.Location) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest[loc]
}

type fixture struct {
	svc    *Service
	state  *state.Managed
	sender *recordingSender
	pages  *recordingPages
	clock  *clockwork.FakeClock
}

const delay = time.Second

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := state.Open(ctx, store.NewMemory())
	require.NoError(t, err)

	artistic := models.NewExercise(3)
	artistic.Category = models.CategoryArtistic

	require.NoError(t, st.Write(ctx, func(a *models.ApplicationState) error {
		a.Show = &models.Show{
			ID: "show-1",
			Competitions: []models.Competition{{
				ID: "comp-1",
				Starters: []models.Starter{
					{ID: "starter-1", Competitor: models.Competitor{FirstName: "Ada", LastName: "Lovelace"}, Scoresheets: []models.Scoresheet{{ID: "sheet-1"}}},
					{ID: "starter-2", Scoresheets: []models.Scoresheet{{ID: "sheet-2"}}},
				},
				Tests: []models.DressageTest{{
					ID:        "test-1",
					Movements: []models.Exercise{models.NewExercise(1), models.NewExercise(2), artistic},
				}},
			}},
		}
		compID, starterID := "comp-1", "starter-1"
		a.CompetitionID = &compID
		a.StarterID = &starterID
		return nil
	}))

	f := &fixture{
		state:  st,
		sender: &recordingSender{},
		pages:  &recordingPages{},
		clock:  clockwork.NewFakeClock(),
	}
	f.svc = NewService(st, f.sender, f.pages, f.clock, Config{MarkDelay: delay})
	return f
}

func (f *fixture) mark(t *testing.T, number uint16) *models.ScoredMark {
	t.Helper()
	m, err := state.ReadValue(f.state, func(a *models.ApplicationState) *models.ScoredMark {
		if m := a.Scoresheet().Mark(number); m != nil {
			c := *m
			return &c
		}
		return nil
	})
	require.NoError(t, err)
	return m
}

func TestInputMark_CompleteMarkSentImmediately(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.InputMark(context.Background(), 1, "75")
	require.NoError(t, err)
	assert.Equal(t, scoring.Complete, res.Status)
	assert.Equal(t, "7.5", res.Value.String())

	marks := f.sender.marks()
	require.Len(t, marks, 1)
	assert.Equal(t, "sheet-1", marks[0].SheetID)
	assert.Equal(t, uint16(1), marks[0].Number)
	assert.Equal(t, "7.5", marks[0].Mark.String())

	assert.Equal(t, "7.5", f.mark(t, 1).Mark.String())
	assert.Contains(t, f.pages.get(pages.TotalScore), "75.000%")
}

func TestInputMark_ExplicitZeroFractionSentImmediately(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.InputMark(context.Background(), 1, "7.0")
	require.NoError(t, err)
	assert.Equal(t, scoring.Complete, res.Status)

	marks := f.sender.marks()
	require.Len(t, marks, 1)
	assert.True(t, marks[0].Mark.Equal(decimal.FromInt(7)))
}

func TestInputMark_IncompleteEditsCoalesce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, raw := range []string{"6", "7", "8"} {
		res, err := f.svc.InputMark(ctx, 2, raw)
		require.NoError(t, err)
		assert.Equal(t, scoring.Incomplete, res.Status)
	}
	assert.Empty(t, f.sender.marks())

	f.clock.Advance(delay)
	require.Eventually(t, func() bool { return len(f.sender.marks()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "8", f.sender.marks()[0].Mark.String())

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.sender.marks(), 1)
}

func TestInputMark_InvalidInputClearsMark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.InputMark(ctx, 1, "7.5")
	require.NoError(t, err)

	res, err := f.svc.InputMark(ctx, 1, "11")
	require.NoError(t, err)
	assert.Equal(t, scoring.OutOfBounds, res.Status)
	assert.Nil(t, f.mark(t, 1).Mark)

	f.svc.Flush()
	marks := f.sender.marks()
	require.Len(t, marks, 2)
	assert.Nil(t, marks[1].Mark)
}

func TestInputMark_TrailingDotIsNotStored(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.InputMark(context.Background(), 1, "7.")
	require.NoError(t, err)
	assert.Equal(t, scoring.Incomplete, res.Status)
	assert.Nil(t, f.mark(t, 1))
	assert.Empty(t, f.sender.all())
}

func TestInputMark_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.InputMark(ctx, 9, "5")
	assert.ErrorIs(t, err, ErrUnknownMovement)

	require.NoError(t, f.svc.ConfirmMarks(ctx))
	_, err = f.svc.InputMark(ctx, 1, "5")
	assert.ErrorIs(t, err, ErrLocked)
}

func TestConfirmAttempt_AveragesAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mark, err := f.svc.ConfirmAttempt(ctx, 1, 0, "7")
	require.NoError(t, err)
	assert.Equal(t, "7.0", mark.String(), "rounded to the step's scale")

	mark, err = f.svc.ConfirmAttempt(ctx, 1, 1, "8")
	require.NoError(t, err)
	assert.Equal(t, "7.5", mark.String())

	mark, err = f.svc.ConfirmAttempt(ctx, 1, 5, "8.5")
	require.NoError(t, err)
	assert.Equal(t, "7.9", mark.String(), "mean rounds toward positive infinity")

	mark, err = f.svc.ConfirmAttempt(ctx, 1, 0, "")
	require.NoError(t, err)
	assert.Equal(t, "8.3", mark.String())

	stored := f.mark(t, 1)
	require.Len(t, stored.Attempts, 2)
	assert.Equal(t, "8.3", stored.Mark.String())

	_, err = f.svc.InputMark(ctx, 1, "5")
	assert.ErrorIs(t, err, ErrDerivedMark)

	assert.Len(t, f.sender.marks(), 4, "attempt changes are sent at once")
}

func TestConfirmAttempt_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ConfirmAttempt(ctx, 3, 0, "7")
	assert.ErrorIs(t, err, ErrNoAttempts)

	_, err = f.svc.ConfirmAttempt(ctx, 1, 0, "x")
	assert.ErrorIs(t, err, ErrInvalidMark)

	_, err = f.svc.ConfirmAttempt(ctx, 1, 0, "")
	assert.ErrorIs(t, err, ErrAttemptOutOfRange)

	mark, err := f.svc.ConfirmAttempt(ctx, 1, 0, "7.")
	require.NoError(t, err)
	assert.Nil(t, mark)
}

func TestAdjustPenalty_Saturates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var counts []uint8
	for _, delta := range []int{1, 1, -1, -1, -1} {
		n, err := f.svc.AdjustPenalty(ctx, models.VarietyErrorsOfCourse, delta)
		require.NoError(t, err)
		counts = append(counts, n)
	}
	assert.Equal(t, []uint8{1, 2, 1, 0, 0}, counts)

	sent := f.sender.all()
	require.Len(t, sent, 5)
	last := sent[4].(messages.Penalty)
	assert.Equal(t, models.VarietyErrorsOfCourse, last.Variety)
	assert.Equal(t, uint8(0), last.Quantity)

	_, err := f.svc.AdjustPenalty(ctx, "bogus", 1)
	assert.ErrorIs(t, err, ErrUnknownPenalty)

	assert.Equal(t, uint8(255), saturatingAdd(250, 10))
}

func TestConfirmMarks_FlushesBeforeLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.InputMark(ctx, 2, "6")
	require.NoError(t, err)
	require.NoError(t, f.svc.ConfirmMarks(ctx))

	sent := f.sender.all()
	require.Len(t, sent, 2)
	assert.IsType(t, messages.Mark{}, sent[0])
	lock, ok := sent[1].(messages.Lock)
	require.True(t, ok)
	assert.True(t, lock.Locked)
	require.Len(t, lock.Scores, 1)
	assert.Equal(t, uint16(2), lock.Scores[0].Number)
	assert.Contains(t, f.pages.get(pages.Lock), "Locked")
}

func TestSubscribeAndChooseStarter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Subscribe(ctx, "comp-1"))
	assert.Equal(t, messages.Subscribe{CompetitionID: "comp-1"}, f.sender.all()[0])
	assert.ErrorIs(t, f.svc.Subscribe(ctx, "comp-9"), ErrNoCompetition)

	_, err := f.svc.InputMark(ctx, 1, "6")
	require.NoError(t, err)
	require.NoError(t, f.svc.ChooseStarter(ctx, "starter-2"))
	assert.Len(t, f.sender.marks(), 1, "pending edits are flushed before switching")

	page, err := state.ReadValue(f.state, func(a *models.ApplicationState) models.Page { return a.Page })
	require.NoError(t, err)
	assert.Equal(t, models.Page{Kind: models.PageScoresheet, ScoresheetID: "sheet-2"}, page)

	assert.ErrorIs(t, f.svc.ChooseStarter(ctx, "nobody"), ErrUnknownStarter)
}

func TestInputComment_TravelsWithMark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.InputMark(ctx, 2, "6")
	require.NoError(t, err)
	require.NoError(t, f.svc.InputComment(ctx, 2, "  lacks bend "))
	f.svc.Flush()

	marks := f.sender.marks()
	require.Len(t, marks, 1)
	require.NotNil(t, marks[0].Remark)
	assert.Equal(t, "lacks bend", *marks[0].Remark)
	assert.Equal(t, "6", marks[0].Mark.String())
}

func TestSummarizeSignalAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Summarize(ctx, "Harmonious", ""))
	require.NoError(t, f.svc.RaiseSignal(ctx, messages.Alert{Kind: messages.AlertLameness}))
	require.NoError(t, f.svc.SetStatus(ctx, models.StarterResult{Kind: models.ResultRetired}))

	sent := f.sender.all()
	require.Len(t, sent, 3)
	summary := sent[0].(messages.Summary)
	assert.Equal(t, "Harmonious", *summary.Summary)
	assert.Nil(t, summary.Notes)
	assert.Equal(t, messages.AlertLameness, sent[1].(messages.Signal).Signal.Kind)
	assert.Equal(t, models.ResultRetired, sent[2].(messages.Status).Status.Kind)
	assert.Contains(t, f.pages.get(pages.Alerts), "Lameness")
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, ok := f.svc.Snapshot()
	assert.False(t, ok, "no judge signed in")

	require.NoError(t, f.state.Write(ctx, func(a *models.ApplicationState) error {
		a.Judge = &models.Judge{ID: "judge-1"}
		a.Battery = models.DeviceBattery{Kind: models.BatteryCharging, Level: 50}
		return nil
	}))

	report, ok := f.svc.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "judge-1", report.JudgeID)
	assert.Equal(t, f.state.ApplicationID(), report.ID)
	assert.Equal(t, "show-1", *report.ShowID)
	assert.Equal(t, "comp-1", *report.CompetitionID)
	assert.Equal(t, "Ada Lovelace", *report.CompetitorName)
	assert.Equal(t, models.BatteryCharging, report.State.Kind)
}

func TestTrendFragmentBlankWhenNothingMarked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.InputMark(ctx, 1, "x")
	require.NoError(t, err)
	assert.Contains(t, f.pages.get(pages.HeaderTrend), `<span class="score">-</span>`)
}
