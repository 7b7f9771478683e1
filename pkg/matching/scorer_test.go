package matching

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felttable/venuepipe/pkg/entities"
)

func decimalPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestScoreCandidatesExactMatch(t *testing.T) {
	buyIn := decimalPtr(150)
	tournament := &entities.Tournament{
		Name:        "$150 Thursday Shot Clock",
		GameVariant: entities.VariantNLHE,
		BuyIn:       buyIn,
	}
	template := &entities.RecurringGame{
		Name:         "Thursday Shot Clock",
		GameVariant:  entities.VariantNLHE,
		TypicalBuyIn: decimal.NewFromInt(150),
		StartTime:    "19:00",
	}

	scores := ScoreCandidates(tournament, 19*60, []*entities.RecurringGame{template}, DefaultWeights())

	require.Len(t, scores, 1)
	// name 60 + variant 15 + buy-in 25 + start 15
	assert.Equal(t, 115, scores[0].Score)
	assert.Equal(t, 1, scores[0].Rank)
}

func TestScoreCandidatesRanking(t *testing.T) {
	buyIn := decimalPtr(150)
	tournament := &entities.Tournament{
		Name:  "Thursday Shot Clock",
		BuyIn: buyIn,
	}
	strong := &entities.RecurringGame{
		ID:           "strong",
		Name:         "Thursday Shot Clock",
		TypicalBuyIn: decimal.NewFromInt(150),
		StartTime:    "19:00",
	}
	weak := &entities.RecurringGame{
		ID:           "weak",
		Name:         "Sunday Special",
		TypicalBuyIn: decimal.NewFromInt(500),
		StartTime:    "12:00",
	}

	scores := ScoreCandidates(tournament, 19*60, []*entities.RecurringGame{weak, strong}, DefaultWeights())

	require.Len(t, scores, 2)
	assert.Equal(t, "strong", scores[0].Template.ID)
	assert.Equal(t, 1, scores[0].Rank)
	assert.Equal(t, 2, scores[1].Rank)
	assert.Greater(t, scores[0].Score, scores[1].Score)
}

func TestScoreBuyInBuckets(t *testing.T) {
	testCases := []struct {
		name       string
		actual     int64
		typical    int64
		wantSignal string
		wantPoints int
	}{
		{name: "exact", actual: 150, typical: 150, wantSignal: "buyin_exact", wantPoints: 25},
		{name: "zero vs zero is exact", actual: 0, typical: 0, wantSignal: "buyin_exact", wantPoints: 25},
		{name: "within 10 percent", actual: 160, typical: 150, wantSignal: "buyin_close", wantPoints: 20},
		{name: "within 25 percent", actual: 180, typical: 150, wantSignal: "buyin_near", wantPoints: 10},
		{name: "within 50 percent", actual: 220, typical: 150, wantSignal: "buyin_far", wantPoints: 5},
		{name: "beyond 50 percent", actual: 400, typical: 150, wantSignal: "buyin_mismatch", wantPoints: -10},
		{name: "paid entry vs freeroll template", actual: 150, typical: 0, wantSignal: "buyin_mismatch", wantPoints: -10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buyIn := decimalPtr(tc.actual)
			tournament := &entities.Tournament{Name: "x", BuyIn: buyIn}
			template := &entities.RecurringGame{Name: "y", TypicalBuyIn: decimal.NewFromInt(tc.typical)}

			scores := ScoreCandidates(tournament, -1, []*entities.RecurringGame{template}, DefaultWeights())

			require.Len(t, scores, 1)
			assertSignal(t, scores[0], tc.wantSignal, tc.wantPoints)
		})
	}
}

func TestScoreStartTimeBuckets(t *testing.T) {
	testCases := []struct {
		name       string
		minutes    int
		wantSignal string
		wantPoints int
	}{
		{name: "exact minute", minutes: 19 * 60, wantSignal: "start_exact", wantPoints: 15},
		{name: "15 minutes lands in the near bucket", minutes: 19*60 + 15, wantSignal: "start_near", wantPoints: 12},
		{name: "30 minutes lands in the close bucket", minutes: 19*60 + 30, wantSignal: "start_close", wantPoints: 8},
		{name: "60 minutes lands in the far bucket", minutes: 19*60 - 60, wantSignal: "start_far", wantPoints: 3},
		{name: "beyond an hour penalizes", minutes: 21 * 60, wantSignal: "start_off", wantPoints: -5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tournament := &entities.Tournament{Name: "x"}
			template := &entities.RecurringGame{Name: "y", StartTime: "19:00"}

			scores := ScoreCandidates(tournament, tc.minutes, []*entities.RecurringGame{template}, DefaultWeights())

			require.Len(t, scores, 1)
			assertSignal(t, scores[0], tc.wantSignal, tc.wantPoints)
		})
	}
}

func TestScoreSkipsUnknownSignals(t *testing.T) {
	tournament := &entities.Tournament{Name: "Mystery"}
	template := &entities.RecurringGame{Name: "Other", StartTime: "19:00"}

	scores := ScoreCandidates(tournament, -1, []*entities.RecurringGame{template}, DefaultWeights())

	require.Len(t, scores, 1)
	for _, sig := range scores[0].Signals {
		assert.NotContains(t, []string{"buyin_exact", "buyin_close", "start_exact", "start_near"}, sig.Name)
	}
}

func TestScoreTournamentType(t *testing.T) {
	tournament := &entities.Tournament{Name: "x", TournamentType: "FREEZEOUT"}

	match := &entities.RecurringGame{Name: "y", TournamentType: "freezeout"}
	scores := ScoreCandidates(tournament, -1, []*entities.RecurringGame{match}, DefaultWeights())
	require.Len(t, scores, 1)
	assertSignal(t, scores[0], "type_match", 10)

	mismatch := &entities.RecurringGame{Name: "y", TournamentType: "REBUY"}
	scores = ScoreCandidates(tournament, -1, []*entities.RecurringGame{mismatch}, DefaultWeights())
	require.Len(t, scores, 1)
	assertSignal(t, scores[0], "type_mismatch", -15)
}

func TestIsAmbiguous(t *testing.T) {
	assert.False(t, IsAmbiguous(nil, 10))
	assert.False(t, IsAmbiguous([]CandidateScore{{Score: 90}}, 10))
	assert.True(t, IsAmbiguous([]CandidateScore{{Score: 90}, {Score: 80}}, 10), "a gap equal to the margin is still ambiguous")
	assert.False(t, IsAmbiguous([]CandidateScore{{Score: 90}, {Score: 79}}, 10))
}

func assertSignal(t *testing.T, score CandidateScore, name string, points int) {
	t.Helper()
	for _, sig := range score.Signals {
		if sig.Name == name {
			assert.Equal(t, points, sig.Points)
			return
		}
	}
	t.Errorf("signal %q not present in %+v", name, score.Signals)
}
