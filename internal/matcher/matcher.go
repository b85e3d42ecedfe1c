// Package matcher correlates market events across venues. Each candidate
// pair is scored on five signals (title similarity, keyword overlap, date
// agreement, category equality and shared numeric tokens) and pairs whose
// weighted score clears a configurable threshold are returned ranked.
package matcher

import (
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/xrash/smetrics"
)

const (
	// defaultThreshold is the minimum overall score for two listings to be
	// treated as the same real-world event.
	defaultThreshold = 0.80

	weightText     = 0.40
	weightKeywords = 0.25
	weightDate     = 0.15
	weightCategory = 0.10
	weightNumber   = 0.10

	// resolutionWindow bounds how far apart two venue resolution timestamps
	// may sit while still counting as the same occurrence.
	resolutionWindow = 24 * time.Hour

	// Standard Winkler parameters: prefix boost kicks in above 0.7 base
	// similarity, over at most the first four characters.
	jaroWinklerBoost  = 0.7
	jaroWinklerPrefix = 4
)

// Match pairs one event from each venue with its confidence breakdown.
type Match struct {
	A     domain.Event
	B     domain.Event
	Score domain.MatchScore
}

// Matcher scores cross-venue event pairs. Scoring is total: it never fails,
// the worst outcome is an empty match list. Safe for concurrent use.
type Matcher struct {
	threshold float64
}

// New creates a Matcher. Thresholds outside (0, 1] fall back to the default.
func New(threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = defaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold returns the minimum overall score for retained pairs.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Score computes the confidence breakdown for one candidate pair. Every
// signal is symmetric, so Score(a, b) and Score(b, a) agree.
func (m *Matcher) Score(a, b domain.Event) domain.MatchScore {
	score := domain.MatchScore{
		TextSimilarity: smetrics.JaroWinkler(normalizeTitle(a.Title), normalizeTitle(b.Title), jaroWinklerBoost, jaroWinklerPrefix),
		KeywordOverlap: jaccard(extractKeywords(a.Title), extractKeywords(b.Title)),
		DateMatch:      datesAgree(a, b),
		CategoryMatch:  a.Category != "" && b.Category != "" && strings.EqualFold(a.Category, b.Category),
		NumberMatch:    anyShared(extractNumbers(a.Title), extractNumbers(b.Title)),
	}

	score.Overall = weightText*score.TextSimilarity + weightKeywords*score.KeywordOverlap
	if score.DateMatch {
		score.Overall += weightDate
	}
	if score.CategoryMatch {
		score.Overall += weightCategory
	}
	if score.NumberMatch {
		score.Overall += weightNumber
	}
	return score
}

// FindMatches scores the full cross product of the two event lists and
// returns every pair at or above the threshold, ordered by overall score
// descending. Ties keep an arbitrary relative order. The scan is
// O(|setA| x |setB|) string and regex work with no pruning, so callers are
// expected to pre-filter both lists by category and timeframe.
func (m *Matcher) FindMatches(setA, setB []domain.Event) []Match {
	var matches []Match
	for _, a := range setA {
		for _, b := range setB {
			score := m.Score(a, b)
			if score.Overall >= m.threshold {
				matches = append(matches, Match{A: a, B: b, Score: score})
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score.Overall > matches[j].Score.Overall
	})
	return matches
}

// FindBestMatch scores target against every candidate and returns the single
// highest-scoring pair, provided it clears the threshold. A candidate must
// score strictly higher than the running best to replace it, so among equal
// scores the earliest candidate wins.
func (m *Matcher) FindBestMatch(target domain.Event, candidates []domain.Event) (Match, bool) {
	var best Match
	bestScore := 0.0
	for _, c := range candidates {
		score := m.Score(target, c)
		if score.Overall > bestScore {
			bestScore = score.Overall
			best = Match{A: target, B: c, Score: score}
		}
	}
	if bestScore < m.threshold {
		return Match{}, false
	}
	return best, true
}

// datesAgree is true when both venues report resolution timestamps within
// resolutionWindow of each other, or when date-like substrings extracted
// from title plus description overlap between the two events.
func datesAgree(a, b domain.Event) bool {
	if a.HasResolutionTime() && b.HasResolutionTime() {
		diff := a.ResolutionTime.Sub(b.ResolutionTime)
		if diff < 0 {
			diff = -diff
		}
		if diff <= resolutionWindow {
			return true
		}
	}
	return anyShared(
		extractDates(a.Title+" "+a.Description),
		extractDates(b.Title+" "+b.Description),
	)
}
