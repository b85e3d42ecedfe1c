package matcher

import (
	"testing"
	"time"

	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kalshiEvent(id, title string) domain.Event {
	return domain.Event{Venue: domain.VenueKalshi, ID: id, Title: title}
}

func polyEvent(id, title string) domain.Event {
	return domain.Event{Venue: domain.VenuePolymarket, ID: id, Title: title}
}

func TestNewClampsThreshold(t *testing.T) {
	assert.Equal(t, 0.80, New(0).Threshold())
	assert.Equal(t, 0.80, New(-0.2).Threshold())
	assert.Equal(t, 0.80, New(1.5).Threshold())
	assert.Equal(t, 0.65, New(0.65).Threshold())
}

func TestScoreIdenticalTitles(t *testing.T) {
	a := kalshiEvent("k1", "Bitcoin reaches $100,000 before March")
	b := polyEvent("p1", "Bitcoin reaches $100,000 before March")

	score := New(0.8).Score(a, b)

	assert.Equal(t, 1.0, score.TextSimilarity)
	assert.Equal(t, 1.0, score.KeywordOverlap)
	assert.False(t, score.DateMatch)
	assert.False(t, score.CategoryMatch)
	assert.True(t, score.NumberMatch)
	assert.InDelta(t, 0.75, score.Overall, 1e-9)
	assert.GreaterOrEqual(t, score.Overall, 0.4)
}

func TestScoreFullAgreement(t *testing.T) {
	res := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	a := domain.Event{
		Venue:          domain.VenueKalshi,
		ID:             "k1",
		Title:          "Bitcoin above $50,000 on March 5, 2025",
		Category:       "Crypto",
		ResolutionTime: res,
	}
	b := domain.Event{
		Venue:          domain.VenuePolymarket,
		ID:             "p1",
		Title:          "Bitcoin above $50,000 on March 5, 2025",
		Category:       "crypto",
		ResolutionTime: res.Add(6 * time.Hour),
	}

	score := New(0.8).Score(a, b)

	assert.True(t, score.DateMatch)
	assert.True(t, score.CategoryMatch)
	assert.True(t, score.NumberMatch)
	assert.InDelta(t, 1.0, score.Overall, 1e-9)
}

func TestScoreDisjointEvents(t *testing.T) {
	score := New(0.8).Score(kalshiEvent("k1", "abc"), polyEvent("p1", "xyz"))
	assert.Zero(t, score.TextSimilarity)
	assert.Zero(t, score.Overall)
}

func TestScoreSymmetric(t *testing.T) {
	res := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	pairs := [][2]domain.Event{
		{
			kalshiEvent("k1", "Bitcoin reaches $100,000 before March"),
			polyEvent("p1", "Bitcoin reaches $100,000 before March"),
		},
		{
			kalshiEvent("k2", "Will Bitcoin reach $100,000 by December 31, 2024?"),
			polyEvent("p2", "Bitcoin to hit $100k by end of 2024"),
		},
		{
			kalshiEvent("k3", "abc"),
			polyEvent("p3", "xyz"),
		},
		{
			domain.Event{Venue: domain.VenueKalshi, ID: "k4", Title: "Fed cuts rates", Category: "economics", ResolutionTime: res},
			domain.Event{Venue: domain.VenuePolymarket, ID: "p4", Title: "Rate cut announced", Category: "Economics", ResolutionTime: res.Add(3 * time.Hour)},
		},
	}

	m := New(0.8)
	for _, pair := range pairs {
		assert.Equal(t, m.Score(pair[0], pair[1]), m.Score(pair[1], pair[0]))
	}
}

func TestDateAgreement(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := New(0.8)

	withRes := func(id string, ts time.Time) domain.Event {
		return domain.Event{Venue: domain.VenueKalshi, ID: id, Title: "Fed cuts rates", ResolutionTime: ts}
	}
	withDesc := func(id, desc string) domain.Event {
		return domain.Event{Venue: domain.VenuePolymarket, ID: id, Title: "Rate cut announced", Description: desc}
	}

	t.Run("within window", func(t *testing.T) {
		score := m.Score(withRes("k1", base), withRes("k2", base.Add(23*time.Hour)))
		assert.True(t, score.DateMatch)
	})
	t.Run("exactly at window", func(t *testing.T) {
		score := m.Score(withRes("k1", base), withRes("k2", base.Add(24*time.Hour)))
		assert.True(t, score.DateMatch)
	})
	t.Run("beyond window", func(t *testing.T) {
		score := m.Score(withRes("k1", base), withRes("k2", base.Add(24*time.Hour+time.Second)))
		assert.False(t, score.DateMatch)
	})
	t.Run("one side missing resolution", func(t *testing.T) {
		score := m.Score(withRes("k1", time.Time{}), withRes("k2", base))
		assert.False(t, score.DateMatch)
	})
	t.Run("text dates overlap", func(t *testing.T) {
		score := m.Score(withDesc("p1", "settles 2024-11-05"), withDesc("p2", "final on 2024-11-05"))
		assert.True(t, score.DateMatch)
	})
	t.Run("text dates disjoint", func(t *testing.T) {
		score := m.Score(withDesc("p1", "settles Jan 3, 2024"), withDesc("p2", "final on 2025-06-01"))
		assert.False(t, score.DateMatch)
	})
}

func TestCategoryMatching(t *testing.T) {
	m := New(0.8)
	mk := func(category string) domain.Event {
		return domain.Event{Venue: domain.VenueKalshi, ID: "e", Title: "alpha", Category: category}
	}

	assert.True(t, m.Score(mk("Crypto"), mk("CRYPTO")).CategoryMatch)
	assert.False(t, m.Score(mk("crypto"), mk("sports")).CategoryMatch)
	assert.False(t, m.Score(mk(""), mk("crypto")).CategoryMatch)
	assert.False(t, m.Score(mk(""), mk("")).CategoryMatch)
}

func TestFindMatchesRanksAboveThreshold(t *testing.T) {
	base := polyEvent("p1", "Bitcoin reaches $100,000 before March")
	exact := kalshiEvent("k1", "Bitcoin reaches $100,000 before March")
	near := kalshiEvent("k2", "Ethereum reaches $100,000 before March")
	noise := kalshiEvent("k3", "Chiefs win the championship")

	m := New(0.5)
	matches := m.FindMatches([]domain.Event{exact, near, noise}, []domain.Event{base})

	require.Len(t, matches, 2)
	assert.Equal(t, "k1", matches[0].A.ID)
	assert.InDelta(t, 0.75, matches[0].Score.Overall, 1e-9)
	assert.Equal(t, "k2", matches[1].A.ID)
	assert.GreaterOrEqual(t, matches[0].Score.Overall, matches[1].Score.Overall)
	for _, match := range matches {
		assert.GreaterOrEqual(t, match.Score.Overall, m.Threshold())
	}
}

func TestFindMatchesEmptyInputs(t *testing.T) {
	m := New(0.8)
	assert.Empty(t, m.FindMatches(nil, nil))
	assert.Empty(t, m.FindMatches([]domain.Event{kalshiEvent("k1", "alpha")}, nil))
	assert.Empty(t, m.FindMatches(nil, []domain.Event{polyEvent("p1", "alpha")}))
}

func TestFindMatchesNoneAboveThreshold(t *testing.T) {
	base := polyEvent("p1", "Bitcoin reaches $100,000 before March")
	near := kalshiEvent("k2", "Ethereum reaches $100,000 before March")

	matches := New(0.99).FindMatches([]domain.Event{near}, []domain.Event{base})
	assert.Empty(t, matches)
}

func TestFindBestMatch(t *testing.T) {
	target := polyEvent("p1", "Bitcoin reaches $100,000 before March")
	exact := kalshiEvent("k1", "Bitcoin reaches $100,000 before March")
	near := kalshiEvent("k2", "Ethereum reaches $100,000 before March")

	m := New(0.7)
	best, ok := m.FindBestMatch(target, []domain.Event{near, exact})
	require.True(t, ok)
	assert.Equal(t, "p1", best.A.ID)
	assert.Equal(t, "k1", best.B.ID)
	assert.InDelta(t, 0.75, best.Score.Overall, 1e-9)
}

func TestFindBestMatchBelowThreshold(t *testing.T) {
	target := polyEvent("p1", "Bitcoin reaches $100,000 before March")
	near := kalshiEvent("k2", "Ethereum reaches $100,000 before March")

	_, ok := New(0.7).FindBestMatch(target, []domain.Event{near})
	assert.False(t, ok)
}

func TestFindBestMatchKeepsEarliestOnTies(t *testing.T) {
	target := polyEvent("p1", "Bitcoin reaches $100,000 before March")
	first := kalshiEvent("k1", "Bitcoin reaches $100,000 before March")
	second := kalshiEvent("k2", "Bitcoin reaches $100,000 before March")

	best, ok := New(0.7).FindBestMatch(target, []domain.Event{first, second})
	require.True(t, ok)
	assert.Equal(t, "k1", best.B.ID)
}

func TestFindBestMatchNoCandidates(t *testing.T) {
	target := polyEvent("p1", "Bitcoin reaches $100,000 before March")
	_, ok := New(0.8).FindBestMatch(target, nil)
	assert.False(t, ok)
}
