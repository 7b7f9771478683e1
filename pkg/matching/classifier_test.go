package matching

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/felttable/venuepipe/pkg/entities"
)

type ClassifierTestSuite struct {
	suite.Suite
}

func TestClassifierSuite(t *testing.T) {
	suite.Run(t, new(ClassifierTestSuite))
}

func (s *ClassifierTestSuite) TestClassifySessionMode() {
	testCases := []struct {
		name           string
		gameName       string
		wantMode       entities.SessionMode
		wantConfidence float64
	}{
		{
			name:           "explicit tournament keyword",
			gameName:       "Monday Night Tournament",
			wantMode:       entities.SessionTournament,
			wantConfidence: 0.95,
		},
		{
			name:           "guarantee implies tournament",
			gameName:       "Thursday Deepstack $5K GTD",
			wantMode:       entities.SessionTournament,
			wantConfidence: 0.95,
		},
		{
			name:           "stake pattern implies cash",
			gameName:       "$2/$5 No Limit Holdem",
			wantMode:       entities.SessionCash,
			wantConfidence: 0.9,
		},
		{
			name:           "cash game keyword",
			gameName:       "Friday Cash Game",
			wantMode:       entities.SessionCash,
			wantConfidence: 0.9,
		},
		{
			name:           "tournament indicator wins over stake pattern",
			gameName:       "$1/$2 Satellite",
			wantMode:       entities.SessionTournament,
			wantConfidence: 0.95,
		},
		{
			name:           "plain name defaults to tournament at low confidence",
			gameName:       "Wednesday Poker",
			wantMode:       entities.SessionTournament,
			wantConfidence: 0.6,
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			mode, confidence := ClassifySessionMode(tc.gameName)

			s.Equal(tc.wantMode, mode)
			s.Equal(tc.wantConfidence, confidence)
		})
	}
}

func (s *ClassifierTestSuite) TestFilterBySessionMode() {
	tournament := &entities.RecurringGame{ID: "1", GameType: entities.GameTypeTournament}
	cash := &entities.RecurringGame{ID: "2", GameType: entities.GameTypeCashGame}
	untyped := &entities.RecurringGame{ID: "3"}
	candidates := []*entities.RecurringGame{tournament, cash, untyped}

	filtered := FilterBySessionMode(entities.SessionTournament, candidates)

	s.Len(filtered, 2)
	s.Equal("1", filtered[0].ID)
	s.Equal("3", filtered[1].ID, "untyped templates survive either mode")

	filtered = FilterBySessionMode(entities.SessionCash, candidates)

	s.Len(filtered, 2)
	s.Equal("2", filtered[0].ID)
	s.Equal("3", filtered[1].ID)
}

func (s *ClassifierTestSuite) TestExtractWeekdayHint() {
	day, ok := ExtractWeekdayHint("Thursday Shot Clock")
	s.True(ok)
	s.Equal(entities.Thursday, day)

	day, ok = ExtractWeekdayHint("SUNDAY Special $10K GTD")
	s.True(ok)
	s.Equal(entities.Sunday, day)

	_, ok = ExtractWeekdayHint("Deepstack Classic")
	s.False(ok)
}

func (s *ClassifierTestSuite) TestDetectVariant() {
	testCases := []struct {
		gameName string
		want     entities.GameVariant
	}{
		{"Monday PLO Bomb", entities.VariantPLO},
		{"Pot Limit Omaha Night", entities.VariantPLO},
		{"NLHE Deepstack", entities.VariantNLHE},
		{"Texas Hold'em Classic", entities.VariantNLHE},
		{"Mystery Night", ""},
	}

	for _, tc := range testCases {
		s.Run(tc.gameName, func() {
			s.Equal(tc.want, DetectVariant(tc.gameName))
		})
	}
}
