package match

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"mercator-hq/auditor/pkg/audit"
)

// FormatMatcher validates the surface form of well-known values and counts
// violations per chunk. Every chunk yields a result: PASSED with no violations,
// WARNING up to MaxViolations and FAILED beyond. Score is
// max(0, 1 - 0.1*violations).
//
// Required elements are checked against the whole document and any that are
// missing are reported on the first chunk with an empty span.
type FormatMatcher struct {
	logger *slog.Logger
}

// NewFormatMatcher creates a FormatMatcher.
func NewFormatMatcher(logger *slog.Logger) *FormatMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FormatMatcher{logger: logger}
}

func (m *FormatMatcher) Type() audit.RuleType { return audit.RuleFormat }

var (
	emailCandidate = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9._\-]*`)
	emailCanonical = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

	phoneCandidate = regexp.MustCompile(`(?:\+\d{1,3}[- ]?)?\(?\d{2,4}\)?[- ]\d{3,4}[- ]?\d{3,4}|\b1\d{10,11}\b|\+\d{9,15}`)
	phoneCanonical = []*regexp.Regexp{
		regexp.MustCompile(`^(\+?86)?1[3-9]\d{9}$`),
		regexp.MustCompile(`^0\d{2,3}\d{7,8}$`),
		regexp.MustCompile(`^(\+?1)?[2-9]\d{9}$`),
		regexp.MustCompile(`^\+\d{8,15}$`),
	}
	phoneStrip = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")

	idCardCandidate = regexp.MustCompile(`\b\d{17}[\dXx]\b|\b\d{15}\b`)

	currencyCandidate = regexp.MustCompile(`[¥$€£￥]\s?\d[\d,]*(?:\.\d+)?|\d[\d,]*(?:\.\d+)?\s?(?:元|USD|CNY|RMB|EUR)`)
	currencyCanonical = []*regexp.Regexp{
		regexp.MustCompile(`^[¥$€£￥]\s?(\d{1,3}(,\d{3})+|\d+)(\.\d{1,2})?$`),
		regexp.MustCompile(`^(\d{1,3}(,\d{3})+|\d+)(\.\d{1,2})?\s?(元|USD|CNY|RMB|EUR)$`),
	}

	dateCandidate = regexp.MustCompile(`\d{4}[-/.年]\d{1,2}[-/.月]\d{1,2}日?|\d{1,2}[-/.]\d{1,2}[-/.]\d{4}`)
)

var idCardWeights = [17]int{7, 9, 10, 5, 8, 4, 2, 1, 6, 3, 7, 9, 10, 5, 8, 4, 2}

const idCardCheckCodes = "10X98765432"

// violation is one format problem at chunk-relative [start,end).
type violation struct {
	check      audit.FormatCheck
	start, end int
	detail     map[string]any
}

func (m *FormatMatcher) Match(ctx context.Context, rule *audit.Rule, chunks []audit.DocumentChunk) []audit.MatchResult {
	p, ok := rule.Params.(audit.FormatParams)
	if !ok {
		return nil
	}

	var missing []string
	if p.Enabled(audit.CheckRequiredElements) {
		missing = missingElements(chunks, p.RequiredElements)
	}

	results := make([]audit.MatchResult, 0, len(chunks))
	for i := range chunks {
		if ctx.Err() != nil {
			return results
		}
		c := &chunks[i]
		violations := checkChunk(c.Text, p)
		if i == 0 {
			for _, e := range missing {
				violations = append(violations, violation{
					check:  audit.CheckRequiredElements,
					detail: map[string]any{"element": e, "missing": true},
				})
			}
		}

		evidences := make([]audit.Evidence, 0, len(violations))
		for _, v := range violations {
			detail := map[string]any{"check": string(v.check)}
			for k, val := range v.detail {
				detail[k] = val
			}
			evidences = append(evidences, evidenceAt(c, v.start, v.end, audit.MatchTypeFormat, detail))
		}

		n := len(violations)
		res := newResult(rule, c, formatScore(n), formatStatus(n, p.MaxViolations), evidences)
		res.Metadata = map[string]any{"violations": n, "max_violations": p.MaxViolations}
		results = append(results, res)
	}
	return results
}

func formatScore(violations int) float64 {
	return math.Max(0, 1-0.1*float64(violations))
}

func formatStatus(violations, maxViolations int) audit.Status {
	switch {
	case violations > maxViolations:
		return audit.StatusFailed
	case violations == 0:
		return audit.StatusPassed
	default:
		return audit.StatusWarning
	}
}

func missingElements(chunks []audit.DocumentChunk, required []string) []string {
	var missing []string
	for _, e := range required {
		present := false
		for i := range chunks {
			if containsFold(chunks[i].Text, e) {
				present = true
				break
			}
		}
		if !present {
			missing = append(missing, e)
		}
	}
	return missing
}

// checkChunk runs every per-chunk check enabled in p.
func checkChunk(text string, p audit.FormatParams) []violation {
	var out []violation
	if p.Enabled(audit.CheckEmail) {
		for _, loc := range emailCandidate.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			for end > start && text[end-1] == '.' {
				end--
			}
			if !emailCanonical.MatchString(text[start:end]) {
				out = append(out, violation{check: audit.CheckEmail, start: start, end: end})
			}
		}
	}
	if p.Enabled(audit.CheckPhone) {
		for _, loc := range phoneCandidate.FindAllStringIndex(text, -1) {
			if !validPhone(text[loc[0]:loc[1]]) {
				out = append(out, violation{check: audit.CheckPhone, start: loc[0], end: loc[1]})
			}
		}
	}
	if p.Enabled(audit.CheckIDCard) {
		for _, loc := range idCardCandidate.FindAllStringIndex(text, -1) {
			if !ValidIDCard(text[loc[0]:loc[1]]) {
				out = append(out, violation{check: audit.CheckIDCard, start: loc[0], end: loc[1]})
			}
		}
	}
	if p.Enabled(audit.CheckCurrency) {
		for _, loc := range currencyCandidate.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			for end > start && text[end-1] == ',' {
				end--
			}
			if !anyMatch(currencyCanonical, text[start:end]) {
				out = append(out, violation{check: audit.CheckCurrency, start: start, end: end})
			}
		}
	}
	if p.Enabled(audit.CheckDate) {
		for _, loc := range dateCandidate.FindAllStringIndex(text, -1) {
			if !anyMatch(p.AllowedDateFormats, text[loc[0]:loc[1]]) {
				out = append(out, violation{check: audit.CheckDate, start: loc[0], end: loc[1]})
			}
		}
	}
	if p.Enabled(audit.CheckForbiddenElements) {
		for _, e := range p.ForbiddenElements {
			for _, h := range findAll(text, e) {
				out = append(out, violation{
					check: audit.CheckForbiddenElements, start: h.start, end: h.end,
					detail: map[string]any{"element": e},
				})
			}
		}
	}
	if p.Enabled(audit.CheckLength) && (p.MinLength > 0 || p.MaxLength > 0) {
		n := utf8.RuneCountInString(text)
		if (p.MinLength > 0 && n < p.MinLength) || (p.MaxLength > 0 && n > p.MaxLength) {
			out = append(out, violation{
				check: audit.CheckLength, start: 0, end: len(text),
				detail: map[string]any{"length": n, "min_length": p.MinLength, "max_length": p.MaxLength},
			})
		}
	}
	if p.Enabled(audit.CheckControlChars) {
		for i, r := range text {
			if isControlChar(r) {
				out = append(out, violation{
					check: audit.CheckControlChars, start: i, end: i + utf8.RuneLen(r),
					detail: map[string]any{"code_point": int(r)},
				})
			}
		}
	}
	return out
}

func validPhone(s string) bool {
	return anyMatch(phoneCanonical, phoneStrip.Replace(s))
}

// ValidIDCard validates a mainland resident identity number. 18-digit numbers
// are checked against the GB 11643 check digit and their embedded birth date;
// legacy 15-digit numbers only by birth date.
func ValidIDCard(s string) bool {
	switch len(s) {
	case 18:
		sum := 0
		for i := 0; i < 17; i++ {
			d := s[i]
			if d < '0' || d > '9' {
				return false
			}
			sum += int(d-'0') * idCardWeights[i]
		}
		want := idCardCheckCodes[sum%11]
		got := s[17]
		if got == 'x' {
			got = 'X'
		}
		if got != want {
			return false
		}
		return validBirthDate(s[6:14])
	case 15:
		for i := 0; i < 15; i++ {
			if s[i] < '0' || s[i] > '9' {
				return false
			}
		}
		return validBirthDate("19" + s[6:12])
	default:
		return false
	}
}

func validBirthDate(yyyymmdd string) bool {
	t, err := time.Parse("20060102", yyyymmdd)
	if err != nil {
		return false
	}
	return t.Year() >= 1900 && !t.After(time.Now())
}

func isControlChar(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return false
	case r < 0x20, r == 0x7f:
		return true
	case r >= 0x80 && r <= 0x9f:
		return true
	}
	return false
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
