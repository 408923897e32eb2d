package scoring

import (
	"testing"
	"testing/quick"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scoresync/go/internal/decimal"
	"github.com/mcdev12/scoresync/go/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.MustParse(s)
}

func tenMovementTest(t *testing.T) *models.DressageTest {
	t.Helper()
	test := &models.DressageTest{ID: "test-1", Name: "Preliminary 1"}
	for i := uint16(1); i <= 10; i++ {
		test.Movements = append(test.Movements, models.NewExercise(i))
	}
	return test
}

func TestNormalize(t *testing.T) {
	ex := models.NewExercise(1)

	tests := []struct {
		name   string
		raw    string
		status Status
		value  string
	}{
		{"letters", "7a", Unprocessable, ""},
		{"empty", "", Unprocessable, ""},
		{"lone minus", "-", Unprocessable, ""},
		{"double dot", "7..5", Unprocessable, ""},
		{"trailing dot after fraction", "7.5.", Unprocessable, ""},
		{"explicit zero fraction", "7.0", Complete, "7"},
		{"below min", "-1", OutOfBounds, ""},
		{"too many fractional digits", "7.25", OutOfBounds, ""},
		{"off step", "7.3", OutOfBounds, ""},
		{"whole mark", "7", Incomplete, "7"},
		{"trailing dot", "7.", Incomplete, "7"},
		{"half mark", "7.5", Complete, "7.5"},
		{"max", "10", Incomplete, "10"},
		{"folded keystrokes", "75", Complete, "7.5"},
		{"folded whole", "80", Incomplete, "8"},
		{"folded off step", "105", OutOfBounds, ""},
		{"zero", "0", Incomplete, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw, ex)
			assert.Equal(t, tt.status, got.Status, "status for %q", tt.raw)
			if tt.value != "" {
				assert.True(t, got.Value.Equal(dec(tt.value)), "value %s, want %s", got.Value, tt.value)
			}
		})
	}
}

func TestNormalize_IntegerStepIsComplete(t *testing.T) {
	ex := models.NewExercise(1)
	ex.Step = dec("1")

	got := Normalize("6", ex)
	assert.Equal(t, Complete, got.Status)
	assert.True(t, got.Value.Equal(dec("6")))

	got = Normalize("6.5", ex)
	assert.Equal(t, OutOfBounds, got.Status)
}

func TestFold_Converges(t *testing.T) {
	property := func(a, b uint32) bool {
		x := decimal.New(int64(a)+1, -2)
		max := decimal.New(int64(b%100_000_000)+1, -2)

		folded, ok := Fold(x, max)
		return ok && folded.Cmp(max) <= 0
	}
	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 200}))
}

func TestFold_RejectsNonPositiveMax(t *testing.T) {
	_, ok := Fold(dec("5"), decimal.Zero)
	assert.False(t, ok)
}

func TestStepScale(t *testing.T) {
	assert.Equal(t, int32(1), StepScale(dec("0.5")))
	assert.Equal(t, int32(1), StepScale(dec("0.50")))
	assert.Equal(t, int32(2), StepScale(dec("0.25")))
	assert.Equal(t, int32(0), StepScale(dec("1")))
	assert.Equal(t, int32(0), StepScale(dec("10")))
}

func TestDeductions_SaturatesAtLastEntry(t *testing.T) {
	test := tenMovementTest(t)
	table, err := models.ParsePenaltyTable("2p;4p")
	require.NoError(t, err)
	test.ErrorsOfCourse = table

	// Total possible marks is 100, so points map one to one onto percent.
	for errors, want := range map[uint8]string{0: "0", 1: "2", 2: "6", 3: "10", 4: "14"} {
		sheet := &models.Scoresheet{Errors: errors}
		got, err := Deductions(sheet, test)
		require.NoError(t, err)
		assert.True(t, got.Equal(dec(want)), "errors=%d: got %s want %s", errors, got, want)
	}
}

func TestDeductions_PointsAndPercentages(t *testing.T) {
	test := tenMovementTest(t)
	test.Movements[0].Coefficient = dec("2") // total possible marks = 110

	var err error
	test.ErrorsOfCourse, err = models.ParsePenaltyTable("2p;E")
	require.NoError(t, err)
	test.TechnicalPenalties, err = models.ParsePenaltyTable("0.5%")
	require.NoError(t, err)
	test.ArtisticPenalties, err = models.ParsePenaltyTable("")
	require.NoError(t, err)

	sheet := &models.Scoresheet{Errors: 1, TechPenalties: 3, ArtPenalties: 5}
	got, err := Deductions(sheet, test)
	require.NoError(t, err)

	want, err := dec("200").Quo(dec("110"))
	require.NoError(t, err)
	want = want.Add(dec("1.5"))
	assert.True(t, got.Equal(want), "got %s want %s", got, want)
	assert.False(t, IsEliminated(sheet, test))

	sheet.Errors = 2
	assert.True(t, IsEliminated(sheet, test))
}

func TestTrend_PartialDenominator(t *testing.T) {
	test := tenMovementTest(t)
	test.Movements[1].Coefficient = dec("2")

	sheet := &models.Scoresheet{
		Scores: []models.ScoredMark{
			{Number: 1, Mark: decimal.Ptr(dec("8"))},
			{Number: 2, Mark: decimal.Ptr(dec("6"))},
			{Number: 3, Remark: strPtr("remark without a mark")},
		},
	}

	got, err := Trend(sheet, test)
	require.NoError(t, err)
	assert.Equal(t, "66.67", got.Round(2, apd.RoundHalfUp).String())

	var errTable error
	test.ErrorsOfCourse, errTable = models.ParsePenaltyTable("2p")
	require.NoError(t, errTable)
	sheet.Errors = 1

	got, err = Trend(sheet, test)
	require.NoError(t, err)
	// 2 points of 110 possible marks.
	assert.Equal(t, "64.85", got.Round(2, apd.RoundHalfUp).String())
}

func TestTrend_ParticleMovementsNeverCount(t *testing.T) {
	test := tenMovementTest(t)
	test.Movements[0].Category = models.CategoryParticle

	sheet := &models.Scoresheet{
		Scores: []models.ScoredMark{
			{Number: 1, Mark: decimal.Ptr(dec("2"))},
			{Number: 2, Mark: decimal.Ptr(dec("8"))},
		},
	}
	got, err := Trend(sheet, test)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("80")), "got %s", got)
}

func TestTrend_NothingMarked(t *testing.T) {
	_, err := Trend(&models.Scoresheet{}, tenMovementTest(t))
	assert.ErrorIs(t, err, ErrNothingMarked)
}

func TestAttemptAverage(t *testing.T) {
	_, ok := AttemptAverage(nil, 1, DefaultRounding)
	assert.False(t, ok)

	got, ok := AttemptAverage([]decimal.Decimal{dec("7"), dec("7.5")}, 1, DefaultRounding)
	require.True(t, ok)
	assert.Equal(t, "7.3", got.String())

	got, ok = AttemptAverage([]decimal.Decimal{dec("7"), dec("7.5")}, 1, apd.RoundFloor)
	require.True(t, ok)
	assert.Equal(t, "7.2", got.String())

	got, ok = AttemptAverage([]decimal.Decimal{dec("6"), dec("8")}, 1, DefaultRounding)
	require.True(t, ok)
	assert.Equal(t, "7.0", got.String())
}

func TestApplyAttempts(t *testing.T) {
	ex := models.NewExercise(4)
	mark := &models.ScoredMark{Number: 4, Attempts: []decimal.Decimal{dec("6.5"), dec("7"), dec("7")}}

	ApplyAttempts(mark, ex)
	require.NotNil(t, mark.Mark)
	assert.Equal(t, "6.9", mark.Mark.String())

	untouched := &models.ScoredMark{Number: 5, Mark: decimal.Ptr(dec("5"))}
	ApplyAttempts(untouched, ex)
	assert.Equal(t, "5", untouched.Mark.String())
}

func strPtr(s string) *string { return &s }
