package matcher

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// stopWords are dropped during keyword extraction alongside tokens of
// length <= 2.
var stopWords = map[string]struct{}{
	"will": {}, "be": {}, "the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
}

// datePatterns recognize date-like substrings in market titles and
// descriptions. Matches are compared verbatim across events, never parsed.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
	regexp.MustCompile(`\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{1,2},?\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`\b\d{4}\b`),
}

// numberPatterns recognize currency amounts, percentages and grouped
// thousands in market titles.
var numberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$[\d,]+(?:\.\d+)?`),
	regexp.MustCompile(`\d+%`),
	regexp.MustCompile(`\b\d{1,3}(?:,\d{3})*(?:\.\d+)?\b`),
}

// resolutionLayouts is the ordered trial list for venue-reported resolution
// timestamps. Layouts are tried in sequence and the first successful parse
// wins, so the US slash layout shadows the day-first one whenever both would
// accept the input.
var resolutionLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseResolutionTime parses a venue-reported resolution timestamp. Venues
// disagree on formats, so a fixed priority list of layouts is tried in
// order; the result is normalized to UTC. The second return is false when no
// layout accepts the input.
func ParseResolutionTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range resolutionLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// normalizeTitle lowercases, strips everything that is not a letter, digit
// or space, and collapses runs of whitespace to single spaces.
func normalizeTitle(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// extractKeywords returns the set of meaningful tokens in a title: the
// normalized words minus stop words and anything two characters or shorter.
func extractKeywords(title string) map[string]struct{} {
	words := strings.Fields(normalizeTitle(title))
	keywords := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		keywords[w] = struct{}{}
	}
	return keywords
}

func extractDates(text string) []string {
	var dates []string
	for _, re := range datePatterns {
		dates = append(dates, re.FindAllString(text, -1)...)
	}
	return dates
}

func extractNumbers(text string) []string {
	var numbers []string
	for _, re := range numberPatterns {
		numbers = append(numbers, re.FindAllString(text, -1)...)
	}
	return numbers
}

// jaccard is intersection size over union size, or zero when either set is
// empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// anyShared reports whether the two slices have at least one element in
// common. False when either is empty.
func anyShared(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[v]; ok {
			return true
		}
	}
	return false
}
