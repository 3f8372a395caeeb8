package match

import (
	"sort"
	"unicode"
	"unicode/utf8"
)

// hit is one located occurrence inside a chunk's text.
type hit struct {
	term       string
	start, end int
}

// indexFold returns the byte span of the first case-insensitive occurrence of
// substr in s at or after from. Comparison is rune-wise with simple case
// folding, so spans always index the original (not lower-cased) string.
func indexFold(s, substr string, from int) (int, int, bool) {
	if substr == "" {
		return 0, 0, false
	}
	first, _ := utf8.DecodeRuneInString(substr)
	for i := from; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if equalFoldRune(r, first) {
			if end, ok := matchFoldAt(s, i, substr); ok {
				return i, end, true
			}
		}
		i += size
	}
	return 0, 0, false
}

// matchFoldAt reports whether substr matches s at byte offset i and returns
// the end offset in s.
func matchFoldAt(s string, i int, substr string) (int, bool) {
	j := 0
	for j < len(substr) {
		if i >= len(s) {
			return 0, false
		}
		r1, n1 := utf8.DecodeRuneInString(s[i:])
		r2, n2 := utf8.DecodeRuneInString(substr[j:])
		if !equalFoldRune(r1, r2) {
			return 0, false
		}
		i += n1
		j += n2
	}
	return i, true
}

func equalFoldRune(a, b rune) bool {
	if a == b {
		return true
	}
	for f := unicode.SimpleFold(a); f != a; f = unicode.SimpleFold(f) {
		if f == b {
			return true
		}
	}
	return false
}

// containsFold is a case-insensitive strings.Contains.
func containsFold(s, substr string) bool {
	_, _, ok := indexFold(s, substr, 0)
	return ok
}

// findAll returns every non-overlapping case-insensitive occurrence of term.
// The scan resumes after each match, so "aaaa" contains "aa" twice.
func findAll(text, term string) []hit {
	var hits []hit
	pos := 0
	for pos < len(text) {
		start, end, ok := indexFold(text, term, pos)
		if !ok {
			break
		}
		hits = append(hits, hit{term: term, start: start, end: end})
		pos = end
	}
	return hits
}

// findAllTerms scans every term and returns the hits sorted by position.
func findAllTerms(text string, terms []string) []hit {
	var hits []hit
	for _, t := range terms {
		hits = append(hits, findAll(text, t)...)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start < hits[j].start })
	return hits
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// atTokenBoundary reports whether text[start:end] is a whole token. The rune
// before start must not be a letter or digit. After end the next rune must not
// be a letter or digit either, except for a plural suffix ("s" or "es") that is
// itself followed by a boundary.
func atTokenBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	if !isWordRune(r) {
		return true
	}
	for _, suffix := range []string{"s", "es"} {
		if suffixEnd, ok := matchFoldAt(text, end, suffix); ok {
			if suffixEnd >= len(text) {
				return true
			}
			next, _ := utf8.DecodeRuneInString(text[suffixEnd:])
			if !isWordRune(next) {
				return true
			}
		}
	}
	return false
}

// runeDistance is the number of runes between byte offsets a and b.
func runeDistance(text string, a, b int) int {
	if a > b {
		a, b = b, a
	}
	return utf8.RuneCountInString(text[a:b])
}
