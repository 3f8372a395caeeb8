package match

import (
	"math"
	"strings"
	"unicode"
)

// CosineSimilarity returns the cosine of the angle between a and b. It is 0
// when either vector has zero magnitude or the lengths differ, and is clamped
// to [-1, 1].
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim))
}

// lexicalContainmentScore is the similarity assigned when the text contains
// the whole query.
const lexicalContainmentScore = 0.8

// LexicalSimilarity approximates semantic similarity without embeddings:
// lexicalContainmentScore when text contains query, otherwise the fraction of
// query tokens that also occur in text.
func LexicalSimilarity(query, text string) float64 {
	if containsFold(text, query) {
		return lexicalContainmentScore
	}
	q := tokenSet(query)
	if len(q) == 0 {
		return 0
	}
	t := tokenSet(text)
	shared := 0
	for tok := range q {
		if _, ok := t[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(q))
}

// tokenSet splits s into lower-cased words. Han characters are tokens on
// their own since CJK text carries no spaces.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			set[word.String()] = struct{}{}
			word.Reset()
		}
	}
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			set[string(r)] = struct{}{}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()
	return set
}
