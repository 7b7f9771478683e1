// Package matching implements the pure scoring layer: session-mode
// classification, name normalization, and candidate scoring. Nothing in this
// package performs I/O.
package matching

import (
	"regexp"
	"strings"

	"github.com/felttable/venuepipe/pkg/entities"
)

// Strong tournament indicators. Any hit classifies the name as a tournament
// regardless of stake-like substrings elsewhere in it.
var tournamentIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btournament\b`),
	regexp.MustCompile(`(?i)\btourney\b`),
	regexp.MustCompile(`(?i)\bfreeroll\b`),
	regexp.MustCompile(`(?i)\bsatellite\b`),
	regexp.MustCompile(`(?i)\bfreezeout\b`),
	regexp.MustCompile(`(?i)\bre-?entry\b`),
	regexp.MustCompile(`(?i)\brebuy\b`),
	regexp.MustCompile(`(?i)\bbounty\b`),
	regexp.MustCompile(`(?i)\bknockout\b`),
	regexp.MustCompile(`(?i)\b(guarantee[d]?|gtd)\b`),
	regexp.MustCompile(`(?i)\bdeepstack\b`),
	regexp.MustCompile(`(?i)\bturbo\b`),
	regexp.MustCompile(`(?i)\bhyper\b`),
	regexp.MustCompile(`(?i)\bshootout\b`),
	regexp.MustCompile(`(?i)\bmain\s+event\b`),
	regexp.MustCompile(`(?i)\bday\s+\d+\b`),
	regexp.MustCompile(`(?i)\bflight\s+[a-z0-9]+\b`),
	regexp.MustCompile(`(?i)\bevent\s+#?\d+\b`),
}

// Cash-game patterns, checked only when no tournament indicator fired
var cashPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcash\s+(game|session|table)\b`),
	regexp.MustCompile(`(?i)\bring\s+game\b`),
	regexp.MustCompile(`(?i)\$\d+\s*/\s*\$?\d+`),      // $1/$2
	regexp.MustCompile(`(?i)\b(nl|plo)\s*\d+\s*/\s*\d+`), // NL 2/5
	regexp.MustCompile(`(?i)\bstakes:`),
	regexp.MustCompile(`(?i)\b(min|max)\s+buy\s*-?in\b`),
	regexp.MustCompile(`(?i)\bbig\s+game\b`),
	regexp.MustCompile(`(?i)\bmixed\s+game\s+cash\b`),
}

// ClassifySessionMode decides from a name alone whether an occurrence is a
// tournament or a cash session, with a confidence. The default is TOURNAMENT
// because that is what poker venues mostly publish.
func ClassifySessionMode(name string) (entities.SessionMode, float64) {
	for _, re := range tournamentIndicators {
		if re.MatchString(name) {
			return entities.SessionTournament, 0.95
		}
	}
	for _, re := range cashPatterns {
		if re.MatchString(name) {
			return entities.SessionCash, 0.9
		}
	}
	return entities.SessionTournament, 0.6
}

// FilterBySessionMode removes candidates whose declared game type disagrees
// with the detected session mode. Disagreement is disqualification, not a
// penalty.
func FilterBySessionMode(mode entities.SessionMode, candidates []*entities.RecurringGame) []*entities.RecurringGame {
	filtered := make([]*entities.RecurringGame, 0, len(candidates))
	for _, c := range candidates {
		if mode.Matches(c.GameType) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

var weekdayKeywords = []struct {
	re  *regexp.Regexp
	day entities.DayOfWeek
}{
	{regexp.MustCompile(`(?i)\bsunday\b`), entities.Sunday},
	{regexp.MustCompile(`(?i)\bmonday\b`), entities.Monday},
	{regexp.MustCompile(`(?i)\btuesday\b`), entities.Tuesday},
	{regexp.MustCompile(`(?i)\bwednesday\b`), entities.Wednesday},
	{regexp.MustCompile(`(?i)\bthursday\b`), entities.Thursday},
	{regexp.MustCompile(`(?i)\bfriday\b`), entities.Friday},
	{regexp.MustCompile(`(?i)\bsaturday\b`), entities.Saturday},
}

// ExtractWeekdayHint returns the weekday named in a tournament name, if any.
// "Thursday Shot Clock" hints THURSDAY even when the scrape landed on another
// calendar day.
func ExtractWeekdayHint(name string) (entities.DayOfWeek, bool) {
	for _, kw := range weekdayKeywords {
		if kw.re.MatchString(name) {
			return kw.day, true
		}
	}
	return "", false
}

var variantKeywords = []struct {
	keyword string
	variant entities.GameVariant
}{
	{"plo", entities.VariantPLO},
	{"omaha", entities.VariantPLO},
	{"nlhe", entities.VariantNLHE},
	{"holdem", entities.VariantNLHE},
	{"hold'em", entities.VariantNLHE},
	{"hold em", entities.VariantNLHE},
}

// DetectVariant guesses the game variant from a name. Empty when nothing in
// the name gives it away.
func DetectVariant(name string) entities.GameVariant {
	lower := strings.ToLower(name)
	for _, vk := range variantKeywords {
		if strings.Contains(lower, vk.keyword) {
			return vk.variant
		}
	}
	return ""
}
