package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/crossbot/internal/arb"
	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/alanyoungcy/crossbot/internal/matcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeVenue struct {
	venue     domain.Venue
	events    []domain.Event
	eventsErr error
	quotes    map[string]domain.MarketQuote
	quoteErr  error

	mu         sync.Mutex
	quoteCalls int
}

func (f *fakeVenue) Venue() domain.Venue { return f.venue }

func (f *fakeVenue) FetchEvents(context.Context) ([]domain.Event, error) {
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return f.events, nil
}

func (f *fakeVenue) FetchQuote(_ context.Context, eventID string) (domain.MarketQuote, error) {
	f.mu.Lock()
	f.quoteCalls++
	f.mu.Unlock()
	if f.quoteErr != nil {
		return domain.MarketQuote{}, f.quoteErr
	}
	return f.quotes[eventID], nil
}

func (f *fakeVenue) PlaceOrder(context.Context, domain.OrderRequest) (string, error) {
	return "", nil
}

func (f *fakeVenue) CheckSettlement(context.Context, string) (domain.Resolution, error) {
	return domain.Resolution{}, nil
}

func (f *fakeVenue) Balance(context.Context) (float64, error) { return 0, nil }

func (f *fakeVenue) fetchedQuotes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quoteCalls
}

type fakeQuoteCache struct {
	mu     sync.Mutex
	stored map[string]domain.MarketQuote
	sets   int
}

func cacheKey(venue domain.Venue, eventID string) string {
	return string(venue) + ":" + eventID
}

func (f *fakeQuoteCache) SetQuote(_ context.Context, venue domain.Venue, eventID string, q domain.MarketQuote, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored == nil {
		f.stored = make(map[string]domain.MarketQuote)
	}
	f.stored[cacheKey(venue, eventID)] = q
	f.sets++
	return nil
}

func (f *fakeQuoteCache) GetQuote(_ context.Context, venue domain.Venue, eventID string) (domain.MarketQuote, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.stored[cacheKey(venue, eventID)]
	if !ok {
		return domain.MarketQuote{}, time.Time{}, domain.ErrNotFound
	}
	return q, time.Now().UTC(), nil
}

// soon returns a resolution time comfortably inside the default window.
func soon() time.Time {
	return time.Now().UTC().Add(6 * time.Hour)
}

func cryptoEvent(venue domain.Venue, id string) domain.Event {
	return domain.Event{
		Venue:          venue,
		ID:             id,
		Title:          "Bitcoin above $50,000 on March 5, 2025",
		Category:       "Crypto",
		ResolutionTime: soon(),
	}
}

func newTestScanner(poly, kalshi *fakeVenue, cache domain.QuoteCache, filters Filters) *Scanner {
	venues := map[domain.Venue]domain.VenueClient{
		domain.VenuePolymarket: poly,
		domain.VenueKalshi:     kalshi,
	}
	m := matcher.New(0.8)
	eval := arb.NewEvaluator(arb.Config{FeeRateA: 0.01, FeeRateB: 0.01, MinProfit: 0.02}, testLogger())
	return New(venues, m, eval, cache, filters, testLogger())
}

func TestScanFindsHedge(t *testing.T) {
	poly := &fakeVenue{
		venue:  domain.VenuePolymarket,
		events: []domain.Event{cryptoEvent(domain.VenuePolymarket, "p1")},
		quotes: map[string]domain.MarketQuote{"p1": {YesPrice: 0.40, NoPrice: 0.60, Liquidity: 500}},
	}
	kalshi := &fakeVenue{
		venue:  domain.VenueKalshi,
		events: []domain.Event{cryptoEvent(domain.VenueKalshi, "k1")},
		quotes: map[string]domain.MarketQuote{"k1": {YesPrice: 0.60, NoPrice: 0.395, Liquidity: 500}},
	}
	s := newTestScanner(poly, kalshi, nil, Filters{})

	found := s.Scan(context.Background())
	require.Len(t, found, 1)

	c := found[0]
	assert.Equal(t, domain.VenuePolymarket, c.EventA.Venue)
	assert.Equal(t, domain.VenueKalshi, c.EventB.Venue)
	assert.GreaterOrEqual(t, c.Score.Overall, 0.8)

	// YES on the polymarket leg plus NO on the kalshi leg.
	assert.Equal(t, domain.StrategyYesNo, c.Opportunity.Strategy)
	assert.Equal(t, domain.VenuePolymarket, c.Opportunity.LegA.Venue)
	assert.Equal(t, domain.OutcomeYes, c.Opportunity.LegA.Outcome)
	assert.InDelta(t, 0.795, c.Opportunity.TotalCost, 1e-9)
	assert.InDelta(t, 0.185, c.Opportunity.NetProfit, 1e-9)
}

func TestScanNoArbitrageInEfficientMarket(t *testing.T) {
	poly := &fakeVenue{
		venue:  domain.VenuePolymarket,
		events: []domain.Event{cryptoEvent(domain.VenuePolymarket, "p1")},
		quotes: map[string]domain.MarketQuote{"p1": {YesPrice: 0.52, NoPrice: 0.49, Liquidity: 500}},
	}
	kalshi := &fakeVenue{
		venue:  domain.VenueKalshi,
		events: []domain.Event{cryptoEvent(domain.VenueKalshi, "k1")},
		quotes: map[string]domain.MarketQuote{"k1": {YesPrice: 0.51, NoPrice: 0.50, Liquidity: 500}},
	}
	s := newTestScanner(poly, kalshi, nil, Filters{})

	assert.Empty(t, s.Scan(context.Background()))
}

func TestScanLiquidityGate(t *testing.T) {
	poly := &fakeVenue{
		venue:  domain.VenuePolymarket,
		events: []domain.Event{cryptoEvent(domain.VenuePolymarket, "p1")},
		quotes: map[string]domain.MarketQuote{"p1": {YesPrice: 0.40, NoPrice: 0.60, Liquidity: 500}},
	}
	kalshi := &fakeVenue{
		venue:  domain.VenueKalshi,
		events: []domain.Event{cryptoEvent(domain.VenueKalshi, "k1")},
		quotes: map[string]domain.MarketQuote{"k1": {YesPrice: 0.60, NoPrice: 0.395, Liquidity: 50}},
	}
	s := newTestScanner(poly, kalshi, nil, Filters{})

	// The thinner side is below the default 100 floor.
	assert.Empty(t, s.Scan(context.Background()))
}

func TestScanDegradedQuoteExcluded(t *testing.T) {
	poly := &fakeVenue{
		venue:  domain.VenuePolymarket,
		events: []domain.Event{cryptoEvent(domain.VenuePolymarket, "p1")},
		quotes: map[string]domain.MarketQuote{"p1": {YesPrice: 0.40, NoPrice: 0.60, Liquidity: 500}},
	}
	kalshi := &fakeVenue{
		venue:    domain.VenueKalshi,
		events:   []domain.Event{cryptoEvent(domain.VenueKalshi, "k1")},
		quoteErr: errors.New("api down"),
	}
	s := newTestScanner(poly, kalshi, nil, Filters{})

	assert.Empty(t, s.Scan(context.Background()))
}

func TestScanVenueFetchFailureDegradesToEmpty(t *testing.T) {
	poly := &fakeVenue{venue: domain.VenuePolymarket, eventsErr: errors.New("gateway timeout")}
	kalshi := &fakeVenue{
		venue:  domain.VenueKalshi,
		events: []domain.Event{cryptoEvent(domain.VenueKalshi, "k1")},
	}
	s := newTestScanner(poly, kalshi, nil, Filters{})

	assert.Empty(t, s.Scan(context.Background()))
	assert.Equal(t, 0, kalshi.fetchedQuotes())
}

func TestScanQuoteCacheAside(t *testing.T) {
	poly := &fakeVenue{
		venue:  domain.VenuePolymarket,
		events: []domain.Event{cryptoEvent(domain.VenuePolymarket, "p1")},
		quotes: map[string]domain.MarketQuote{"p1": {YesPrice: 0.40, NoPrice: 0.60, Liquidity: 500}},
	}
	kalshi := &fakeVenue{
		venue:  domain.VenueKalshi,
		events: []domain.Event{cryptoEvent(domain.VenueKalshi, "k1")},
		quotes: map[string]domain.MarketQuote{"k1": {YesPrice: 0.60, NoPrice: 0.395, Liquidity: 500}},
	}
	cache := &fakeQuoteCache{}
	require.NoError(t, cache.SetQuote(context.Background(), domain.VenuePolymarket, "p1",
		domain.MarketQuote{YesPrice: 0.40, NoPrice: 0.60, Liquidity: 500}, time.Now().UTC()))
	cache.sets = 0

	s := newTestScanner(poly, kalshi, cache, Filters{})
	found := s.Scan(context.Background())
	require.Len(t, found, 1)

	// Cached side never hits the venue; the miss is fetched then written back.
	assert.Equal(t, 0, poly.fetchedQuotes())
	assert.Equal(t, 1, kalshi.fetchedQuotes())
	assert.Equal(t, 1, cache.sets)
}

func TestMatchesCategory(t *testing.T) {
	s := newTestScanner(&fakeVenue{venue: domain.VenuePolymarket}, &fakeVenue{venue: domain.VenueKalshi}, nil, Filters{})

	tests := []struct {
		name string
		ev   domain.Event
		want bool
	}{
		{"category field", domain.Event{Category: "Crypto", Title: "Some event"}, true},
		{"category substring", domain.Event{Category: "us-sports", Title: "Some event"}, true},
		{"keyword in title", domain.Event{Title: "Bitcoin closes higher today"}, true},
		{"keyword in description", domain.Event{Title: "Thursday night result", Description: "NFL opener"}, true},
		{"no signal", domain.Event{Category: "politics", Title: "Senate passes the measure"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.matchesCategory(tc.ev))
		})
	}
}

func TestMatchesCategoryEmptyListAdmitsAll(t *testing.T) {
	s := newTestScanner(&fakeVenue{venue: domain.VenuePolymarket}, &fakeVenue{venue: domain.VenueKalshi}, nil,
		Filters{Categories: []string{}})

	assert.True(t, s.matchesCategory(domain.Event{Category: "politics", Title: "Senate passes the measure"}))
}

func TestWithinWindow(t *testing.T) {
	s := newTestScanner(&fakeVenue{venue: domain.VenuePolymarket}, &fakeVenue{venue: domain.VenueKalshi}, nil, Filters{})
	now := time.Now().UTC()

	tests := []struct {
		name       string
		resolution time.Time
		want       bool
	}{
		{"inside window", now.Add(6 * time.Hour), true},
		{"too soon", now.Add(2 * time.Minute), false},
		{"too far", now.Add(48 * time.Hour), false},
		{"no resolution time", time.Time{}, false},
		{"already resolved", now.Add(-time.Hour), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev := domain.Event{ResolutionTime: tc.resolution}
			assert.Equal(t, tc.want, s.withinWindow(ev, now))
		})
	}
}
