package matching

import (
	"regexp"
	"strings"
)

var (
	nonWord    = regexp.MustCompile(`[^\w\s]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// boilerplate holds venue-specific phrasing that carries no information
// about the underlying event and only depresses similarity scores.
var boilerplate = []string{
	"this market will resolve to yes if",
	"this market resolves to yes if",
	"will resolve to yes",
	"resolves yes if",
}

// NormalizeTitle folds case, strips punctuation and venue boilerplate, and
// collapses whitespace so titles from both venues compare on content alone.
// A title with no comparable tokens normalizes to the empty string.
func NormalizeTitle(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	for _, phrase := range boilerplate {
		s = strings.ReplaceAll(s, phrase, " ")
	}
	s = nonWord.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
