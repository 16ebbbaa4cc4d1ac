package matching

import (
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// Scorer computes a 0-100 similarity between two already-normalized titles.
// It is pluggable so the matcher is not tied to one algorithm.
type Scorer interface {
	Score(a, b string) float64
}

// TitleScorer combines a word-order-insensitive token-set ratio with a raw
// character ratio, taking the maximum of the two. The token-set score
// tolerates reordering ("X by Friday" vs "by Friday, X"); the character
// ratio catches minor wording drift the token view over-penalizes.
type TitleScorer struct{}

// Score implements Scorer. Empty input on either side scores 0.
func (TitleScorer) Score(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	tokenSet := fuzzy.TokenSetRatio(a, b)
	chars := fuzzy.Ratio(a, b)
	if chars > tokenSet {
		return float64(chars)
	}
	return float64(tokenSet)
}
