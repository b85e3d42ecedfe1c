// Package scanner drives one detection sweep across both venues: fetch
// listed events, pre-filter them, correlate the survivors, price the matched
// pairs and hand the quotes to the arbitrage evaluator.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/crossbot/internal/arb"
	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/alanyoungcy/crossbot/internal/matcher"
	"golang.org/x/sync/errgroup"
)

const (
	// minUntilResolution keeps events that settle almost immediately out of
	// the pipeline; there is no time to fill both legs.
	minUntilResolution = 5 * time.Minute

	defaultMaxUntilResolution = 24 * time.Hour
	defaultMinLiquidity       = 100.0
)

var defaultCategories = []string{"crypto", "sports"}

// categoryKeywords backs the title/description fallback for venues that
// leave the category field empty.
var categoryKeywords = map[string][]string{
	"crypto": {
		"bitcoin", "btc", "ethereum", "eth", "crypto", "cryptocurrency",
		"price", "above", "below", "reach", "hit", "surpass",
	},
	"sports": {
		"game", "match", "team", "player", "score", "win", "lose",
		"nfl", "nba", "mlb", "soccer", "football", "basketball",
	},
}

// Filters restricts a sweep to short-horizon events the bot is willing to
// trade. An explicit empty (non-nil) Categories slice admits every category.
type Filters struct {
	Categories         []string
	MaxUntilResolution time.Duration
	MinLiquidity       float64
}

// Candidate is one tradeable finding: a matched cross-venue pair and the
// opportunity its current quotes support.
type Candidate struct {
	EventA      domain.Event
	EventB      domain.Event
	Score       domain.MatchScore
	Opportunity domain.Opportunity
}

// Scanner performs detection sweeps. It owns no loop; the caller decides the
// cadence.
type Scanner struct {
	venues  map[domain.Venue]domain.VenueClient
	matcher *matcher.Matcher
	eval    *arb.Evaluator
	quotes  domain.QuoteCache
	filters Filters
	logger  *slog.Logger
}

// New creates a Scanner. quotes may be nil, which disables the cache-aside
// path and prices every pair straight from the venues. Non-positive filter
// values fall back to defaults; a nil Categories slice selects the default
// crypto and sports lists.
func New(
	venues map[domain.Venue]domain.VenueClient,
	m *matcher.Matcher,
	eval *arb.Evaluator,
	quotes domain.QuoteCache,
	filters Filters,
	logger *slog.Logger,
) *Scanner {
	if filters.Categories == nil {
		filters.Categories = defaultCategories
	}
	lowered := make([]string, len(filters.Categories))
	for i, c := range filters.Categories {
		lowered[i] = strings.ToLower(c)
	}
	filters.Categories = lowered
	if filters.MaxUntilResolution <= 0 {
		filters.MaxUntilResolution = defaultMaxUntilResolution
	}
	if filters.MinLiquidity <= 0 {
		filters.MinLiquidity = defaultMinLiquidity
	}
	return &Scanner{
		venues:  venues,
		matcher: m,
		eval:    eval,
		quotes:  quotes,
		filters: filters,
		logger:  logger.With(slog.String("component", "scanner")),
	}
}

// Pairs runs the discovery half of a sweep: fetch, pre-filter, and match,
// without pricing anything. The app uses it once at startup to decide which
// events the websocket feeds keep warm.
func (s *Scanner) Pairs(ctx context.Context) []matcher.Match {
	polyEvents, kalshiEvents := s.fetchEvents(ctx)

	now := time.Now().UTC()
	polyEligible := s.filterEvents(polyEvents, now)
	kalshiEligible := s.filterEvents(kalshiEvents, now)
	s.logger.DebugContext(ctx, "events filtered",
		slog.Int("polymarket", len(polyEligible)),
		slog.Int("kalshi", len(kalshiEligible)),
	)
	if len(polyEligible) == 0 || len(kalshiEligible) == 0 {
		return nil
	}

	return s.matcher.FindMatches(polyEligible, kalshiEligible)
}

// Scan runs one sweep and returns every matched pair whose quotes currently
// support a profitable hedge. A venue whose event fetch fails contributes an
// empty list for this sweep; the sweep itself never fails.
func (s *Scanner) Scan(ctx context.Context) []Candidate {
	matches := s.Pairs(ctx)
	if len(matches) == 0 {
		return nil
	}

	var out []Candidate
	for _, m := range matches {
		qa := s.quoteFor(ctx, m.A)
		qb := s.quoteFor(ctx, m.B)
		if math.Min(qa.Liquidity, qb.Liquidity) < s.filters.MinLiquidity {
			continue
		}
		opp := s.eval.Evaluate(ctx,
			arb.VenueQuote{Venue: m.A.Venue, Quote: qa},
			arb.VenueQuote{Venue: m.B.Venue, Quote: qb},
		)
		if opp == nil {
			continue
		}
		out = append(out, Candidate{EventA: m.A, EventB: m.B, Score: m.Score, Opportunity: *opp})
	}
	if len(out) > 0 {
		s.logger.InfoContext(ctx, "sweep found opportunities",
			slog.Int("matches", len(matches)),
			slog.Int("opportunities", len(out)),
		)
	}
	return out
}

func (s *Scanner) fetchEvents(ctx context.Context) (poly, kalshi []domain.Event) {
	fetch := func(venue domain.Venue, out *[]domain.Event) func() error {
		return func() error {
			client, ok := s.venues[venue]
			if !ok {
				return nil
			}
			evs, err := client.FetchEvents(ctx)
			if err != nil {
				s.logger.WarnContext(ctx, "event fetch failed; venue skipped this sweep",
					slog.String("venue", string(venue)),
					slog.String("error", err.Error()),
				)
				return nil
			}
			*out = evs
			return nil
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(fetch(domain.VenuePolymarket, &poly))
	g.Go(fetch(domain.VenueKalshi, &kalshi))
	_ = g.Wait()
	return poly, kalshi
}

func (s *Scanner) filterEvents(events []domain.Event, now time.Time) []domain.Event {
	var out []domain.Event
	for _, ev := range events {
		if s.matchesCategory(ev) && s.withinWindow(ev, now) {
			out = append(out, ev)
		}
	}
	return out
}

// matchesCategory admits an event whose category field contains a configured
// category, falling back to per-category keyword lists over the title and
// description for venues that leave the field empty.
func (s *Scanner) matchesCategory(ev domain.Event) bool {
	if len(s.filters.Categories) == 0 {
		return true
	}

	category := strings.ToLower(ev.Category)
	for _, want := range s.filters.Categories {
		if category != "" && strings.Contains(category, want) {
			return true
		}
	}

	text := strings.ToLower(ev.Title + " " + ev.Description)
	for _, want := range s.filters.Categories {
		for _, kw := range categoryKeywords[want] {
			if strings.Contains(text, kw) {
				return true
			}
		}
	}
	return false
}

// withinWindow admits events resolving between five minutes and the
// configured horizon from now. Events without a resolution timestamp are
// excluded: the bot cannot bound how long capital would be parked.
func (s *Scanner) withinWindow(ev domain.Event, now time.Time) bool {
	if !ev.HasResolutionTime() {
		return false
	}
	until := ev.ResolutionTime.Sub(now)
	return until >= minUntilResolution && until <= s.filters.MaxUntilResolution
}

// quoteFor prices one event, cache-aside through the quote cache when one is
// configured. Any failure degrades to the zero quote, which the liquidity
// gate then drops.
func (s *Scanner) quoteFor(ctx context.Context, ev domain.Event) domain.MarketQuote {
	if s.quotes != nil {
		q, _, err := s.quotes.GetQuote(ctx, ev.Venue, ev.ID)
		switch {
		case err == nil:
			s.noteSkew(ctx, ev, q)
			return q
		case !errors.Is(err, domain.ErrNotFound):
			s.logger.WarnContext(ctx, "quote cache read failed",
				slog.String("venue", string(ev.Venue)),
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	client, ok := s.venues[ev.Venue]
	if !ok {
		return domain.MarketQuote{}
	}
	q, err := client.FetchQuote(ctx, ev.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "quote fetch failed; degrading to zero quote",
			slog.String("venue", string(ev.Venue)),
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
		return domain.MarketQuote{}
	}
	if s.quotes != nil {
		if err := s.quotes.SetQuote(ctx, ev.Venue, ev.ID, q, time.Now().UTC()); err != nil {
			s.logger.WarnContext(ctx, "quote cache write failed",
				slog.String("venue", string(ev.Venue)),
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.noteSkew(ctx, ev, q)
	return q
}

// noteSkew flags quotes violating the advisory |yes + no - 1| bound. Skewed
// quotes stay in the pipeline; the log line is the whole response.
func (s *Scanner) noteSkew(ctx context.Context, ev domain.Event, q domain.MarketQuote) {
	if q.IsZero() || !q.Skewed() {
		return
	}
	s.logger.WarnContext(ctx, "quote skew exceeds tolerance",
		slog.String("venue", string(ev.Venue)),
		slog.String("event_id", ev.ID),
		slog.Float64("yes", q.YesPrice),
		slog.Float64("no", q.NoPrice),
	)
}
