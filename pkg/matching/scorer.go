package matching

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/felttable/venuepipe/pkg/entities"
)

// Weights holds the per-signal score contributions. The values must stay
// constant within one deployment so the assignment thresholds keep meaning,
// which is why they travel as data instead of constants.
type Weights struct {
	NameExact    int
	NameContains int
	NameFuzzyMax int // Fuzzy contribution is round(similarity * NameFuzzyMax)

	VariantMatch int

	BuyInExact    int
	BuyInClose    int // Within 10% of typical
	BuyInNear     int // Within 25%
	BuyInFar      int // Within 50%
	BuyInMismatch int // More than 50% off

	StartExact int // Same AEST minute
	StartNear  int // Within 15 minutes
	StartClose int // Within 30 minutes
	StartFar   int // Within 60 minutes
	StartOff   int // More than an hour apart

	TypeMatch    int
	TypeMismatch int
}

// DefaultWeights returns the deployed signal weights
func DefaultWeights() Weights {
	return Weights{
		NameExact:     60,
		NameContains:  50,
		NameFuzzyMax:  60,
		VariantMatch:  15,
		BuyInExact:    25,
		BuyInClose:    20,
		BuyInNear:     10,
		BuyInFar:      5,
		BuyInMismatch: -10,
		StartExact:    15,
		StartNear:     12,
		StartClose:    8,
		StartFar:      3,
		StartOff:      -5,
		TypeMatch:     10,
		TypeMismatch:  -15,
	}
}

// Signal is one scored comparison, kept for audit
type Signal struct {
	Name   string `json:"name"`
	Detail string `json:"detail"`
	Points int    `json:"points"`
}

// CandidateScore is a template's total score against one tournament
type CandidateScore struct {
	Template *entities.RecurringGame
	Score    int
	Rank     int // 1 is best
	Signals  []Signal
}

var (
	ratioClose = decimal.NewFromFloat(0.10)
	ratioNear  = decimal.NewFromFloat(0.25)
	ratioFar   = decimal.NewFromFloat(0.50)
)

// ScoreCandidates scores a tournament against each candidate template and
// returns the candidates ranked best first. startMinutes is the tournament's
// AEST start minute; pass a negative value when unknown to skip the
// start-time signal.
func ScoreCandidates(t *entities.Tournament, startMinutes int, candidates []*entities.RecurringGame, w Weights) []CandidateScore {
	scores := make([]CandidateScore, 0, len(candidates))
	normalized := NormalizeName(t.Name)
	for _, c := range candidates {
		scores = append(scores, scoreOne(t, normalized, startMinutes, c, w))
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}
	return scores
}

// IsAmbiguous reports whether the runner-up sits within the margin of the
// best candidate.
func IsAmbiguous(scores []CandidateScore, margin int) bool {
	if len(scores) < 2 {
		return false
	}
	return scores[0].Score-scores[1].Score <= margin
}

func scoreOne(t *entities.Tournament, normalized string, startMinutes int, c *entities.RecurringGame, w Weights) CandidateScore {
	cs := CandidateScore{Template: c}

	add := func(name, detail string, points int) {
		cs.Signals = append(cs.Signals, Signal{Name: name, Detail: detail, Points: points})
		cs.Score += points
	}

	// Name
	candidateName := NormalizeName(c.Name)
	switch {
	case normalized != "" && normalized == candidateName:
		add("name_exact", normalized, w.NameExact)
	case normalized != "" && candidateName != "" &&
		(strings.Contains(normalized, candidateName) || strings.Contains(candidateName, normalized)):
		add("name_contains", fmt.Sprintf("%q ~ %q", normalized, candidateName), w.NameContains)
	default:
		sim := BigramSimilarity(normalized, candidateName)
		add("name_fuzzy", fmt.Sprintf("similarity=%.2f", sim), int(math.Round(sim*float64(w.NameFuzzyMax))))
	}

	// Variant
	if t.GameVariant != "" && c.GameVariant != "" && t.GameVariant == c.GameVariant {
		add("variant_match", string(t.GameVariant), w.VariantMatch)
	}

	// Buy-in
	if t.BuyIn != nil {
		actual := *t.BuyIn
		typical := c.TypicalBuyIn
		switch {
		case actual.Equal(typical):
			// Includes 0 vs 0
			add("buyin_exact", actual.String(), w.BuyInExact)
		case typical.IsPositive():
			ratio := actual.Sub(typical).Abs().Div(typical)
			detail := fmt.Sprintf("actual=%s typical=%s", actual.String(), typical.String())
			switch {
			case ratio.LessThanOrEqual(ratioClose):
				add("buyin_close", detail, w.BuyInClose)
			case ratio.LessThanOrEqual(ratioNear):
				add("buyin_near", detail, w.BuyInNear)
			case ratio.LessThanOrEqual(ratioFar):
				add("buyin_far", detail, w.BuyInFar)
			default:
				add("buyin_mismatch", detail, w.BuyInMismatch)
			}
		default:
			add("buyin_mismatch", fmt.Sprintf("actual=%s typical=0", actual.String()), w.BuyInMismatch)
		}
	}

	// Start time, AEST minutes apart. Exact threshold values land in the
	// more generous bucket.
	if startMinutes >= 0 {
		if templateMinutes, ok := parseClockMinutes(c.StartTime); ok {
			diff := startMinutes - templateMinutes
			if diff < 0 {
				diff = -diff
			}
			detail := fmt.Sprintf("diff=%dm", diff)
			switch {
			case diff == 0:
				add("start_exact", detail, w.StartExact)
			case diff <= 15:
				add("start_near", detail, w.StartNear)
			case diff <= 30:
				add("start_close", detail, w.StartClose)
			case diff <= 60:
				add("start_far", detail, w.StartFar)
			default:
				add("start_off", detail, w.StartOff)
			}
		}
	}

	// Tournament type
	if t.TournamentType != "" && c.TournamentType != "" {
		if strings.EqualFold(t.TournamentType, c.TournamentType) {
			add("type_match", t.TournamentType, w.TypeMatch)
		} else {
			add("type_mismatch", fmt.Sprintf("%s != %s", t.TournamentType, c.TournamentType), w.TypeMismatch)
		}
	}

	return cs
}

// parseClockMinutes converts "HH:MM" to minutes since midnight
func parseClockMinutes(clock string) (int, bool) {
	var h, m int
	if _, err := fmt.Sscanf(clock, "%d:%d", &h, &m); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
