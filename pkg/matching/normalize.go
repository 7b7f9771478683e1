package matching

import (
	"regexp"
	"strings"
)

// Normalization strips the decorations venues bolt onto a game's name so that
// "Monday Deepstack $5k GTD" and "monday deepstack" compare equal. Applied to
// both sides before any comparison.
var (
	monetaryToken  = regexp.MustCompile(`\$\d+(?:\.\d+)?k?\s*(?:gtd|guaranteed)`)
	cadenceToken   = regexp.MustCompile(`\b(?:weekly|monthly|annual|daily)\b`)
	structureToken = regexp.MustCompile(`\b(?:rebuy|re-?entry|freezeout|knockout|bounty|turbo|hyper|deepstack)\b.*$`)
	leadingAmount  = regexp.MustCompile(`^\$\d+(?:\.\d+)?k?\s+`)
	nonAlphaNum    = regexp.MustCompile(`[^a-z0-9\s]+`)
	whitespace     = regexp.MustCompile(`\s+`)
)

// NormalizeName lowercases a game name and strips monetary, cadence, and
// structure tokens, then squeezes out everything non-alphanumeric.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = monetaryToken.ReplaceAllString(s, " ")
	s = cadenceToken.ReplaceAllString(s, " ")
	s = structureToken.ReplaceAllString(s, " ")
	s = leadingAmount.ReplaceAllString(s, "")
	s = nonAlphaNum.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// DisplayName turns a raw tournament name into a template display name:
// normalized, then title-cased word by word.
func DisplayName(name string) string {
	normalized := NormalizeName(name)
	if normalized == "" {
		return "Tournament"
	}
	words := strings.Fields(normalized)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// BigramSimilarity is the Sorensen-Dice coefficient over character bigrams,
// in [0, 1]. Identical strings score 1; strings shorter than two characters
// only match exactly.
func BigramSimilarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	if len(a) < 2 || len(b) < 2 {
		return 0
	}

	bigrams := make(map[string]int)
	for i := 0; i < len(a)-1; i++ {
		bigrams[a[i:i+2]]++
	}
	overlap := 0
	for i := 0; i < len(b)-1; i++ {
		bg := b[i : i+2]
		if bigrams[bg] > 0 {
			bigrams[bg]--
			overlap++
		}
	}
	return 2.0 * float64(overlap) / float64(len(a)-1+len(b)-1)
}
