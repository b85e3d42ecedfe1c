package settlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/alanyoungcy/crossbot/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeOracle struct {
	venue domain.Venue

	mu          sync.Mutex
	resolutions map[string]domain.Resolution
	checkErr    error
	checks      int
	balance     float64
	balanceErr  error
}

func (f *fakeOracle) Venue() domain.Venue { return f.venue }

func (f *fakeOracle) FetchEvents(context.Context) ([]domain.Event, error) { return nil, nil }

func (f *fakeOracle) FetchQuote(context.Context, string) (domain.MarketQuote, error) {
	return domain.MarketQuote{}, nil
}

func (f *fakeOracle) PlaceOrder(context.Context, domain.OrderRequest) (string, error) {
	return "", nil
}

func (f *fakeOracle) CheckSettlement(_ context.Context, eventID string) (domain.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.checkErr != nil {
		return domain.Resolution{}, f.checkErr
	}
	return f.resolutions[eventID], nil
}

func (f *fakeOracle) Balance(context.Context) (float64, error) {
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeOracle) resolve(eventID string, yesWon bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkErr = nil
	if f.resolutions == nil {
		f.resolutions = make(map[string]domain.Resolution)
	}
	f.resolutions[eventID] = domain.Resolution{Resolved: true, YesWon: yesWon}
}

func (f *fakeOracle) checkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks
}

type fakeSettlementStore struct {
	mu       sync.Mutex
	inserted []domain.Position
}

func (f *fakeSettlementStore) Insert(_ context.Context, pos domain.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, pos)
	return nil
}

func (f *fakeSettlementStore) ListBefore(context.Context, time.Time) ([]domain.Position, error) {
	return nil, nil
}

func (f *fakeSettlementStore) ProfitByVenue(context.Context, domain.Venue) (float64, error) {
	return 0, nil
}

func (f *fakeSettlementStore) rows() []domain.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Position(nil), f.inserted...)
}

type fakeBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messages == nil {
		f.messages = make(map[string][][]byte)
	}
	f.messages[channel] = append(f.messages[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (f *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (f *fakeBus) published(channel string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[channel]
}

func openPosition(book *ledger.Ledger, venue domain.Venue, eventID string, outcome domain.Outcome, shares, cost float64) domain.Position {
	ev := domain.Event{Venue: venue, ID: eventID, Title: "Fed cuts rates"}
	pos := ledger.NewPosition(venue, ev, outcome, shares, cost, cost/shares, "ord-1")
	book.Add(pos)
	return pos
}

func newTestReconciler(kalshi, poly *fakeOracle, store domain.SettlementStore, bus domain.SignalBus) (*Reconciler, *ledger.Ledger) {
	book := ledger.New(testLogger())
	venues := make(map[domain.Venue]domain.VenueClient)
	if kalshi != nil {
		venues[domain.VenueKalshi] = kalshi
	}
	if poly != nil {
		venues[domain.VenuePolymarket] = poly
	}
	return NewReconciler(venues, book, store, bus, testLogger()), book
}

func TestReconcileSettlesResolvedPositions(t *testing.T) {
	kalshi := &fakeOracle{venue: domain.VenueKalshi}
	poly := &fakeOracle{venue: domain.VenuePolymarket}
	store := &fakeSettlementStore{}
	bus := &fakeBus{}
	r, book := newTestReconciler(kalshi, poly, store, bus)

	// YES leg wins, its NO hedge on the other venue loses.
	win := openPosition(book, domain.VenueKalshi, "k-ev1", domain.OutcomeYes, 250, 100)
	lose := openPosition(book, domain.VenuePolymarket, "p-ev1", domain.OutcomeNo, 256, 100)
	kalshi.resolve("k-ev1", true)
	poly.resolve("p-ev1", true)

	n, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats := r.Stats()
	assert.Equal(t, 0, stats.Open)
	assert.Equal(t, 1, stats.Won)
	assert.Equal(t, 1, stats.Lost)
	assert.InDelta(t, 50.0, stats.TotalProfit, 1e-9) // +150 - 100

	wonPos, ok := book.Get(win.ID)
	require.True(t, ok)
	assert.Equal(t, domain.PositionWon, wonPos.Status)
	require.NotNil(t, wonPos.Payout)
	assert.Equal(t, 250.0, *wonPos.Payout)

	lostPos, ok := book.Get(lose.ID)
	require.True(t, ok)
	assert.Equal(t, domain.PositionLost, lostPos.Status)
	require.NotNil(t, lostPos.Profit)
	assert.Equal(t, -100.0, *lostPos.Profit)

	// Settled copies reach the archive store and the bus.
	rows := store.rows()
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.True(t, row.Status.Terminal())
		assert.NotNil(t, row.SettledAt)
	}
	assert.Len(t, bus.published("settlements"), 2)
}

func TestReconcileNoLosingSideWhenNoWins(t *testing.T) {
	poly := &fakeOracle{venue: domain.VenuePolymarket}
	r, book := newTestReconciler(nil, poly, nil, nil)

	pos := openPosition(book, domain.VenuePolymarket, "p-ev1", domain.OutcomeNo, 200, 90)
	poly.resolve("p-ev1", false)

	n, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	settled, ok := book.Get(pos.ID)
	require.True(t, ok)
	assert.Equal(t, domain.PositionWon, settled.Status)
	require.NotNil(t, settled.Profit)
	assert.InDelta(t, 110.0, *settled.Profit, 1e-9) // 200 shares pay $200 against $90 cost
}

func TestReconcileUnresolvedStaysOpen(t *testing.T) {
	kalshi := &fakeOracle{venue: domain.VenueKalshi}
	store := &fakeSettlementStore{}
	r, book := newTestReconciler(kalshi, nil, store, nil)

	openPosition(book, domain.VenueKalshi, "k-ev1", domain.OutcomeYes, 250, 100)

	n, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, book.Open(), 1)
	assert.Empty(t, store.rows())
}

func TestReconcileOracleErrorRetriedNextSweep(t *testing.T) {
	kalshi := &fakeOracle{venue: domain.VenueKalshi, checkErr: errors.New("oracle timeout")}
	r, book := newTestReconciler(kalshi, nil, nil, nil)

	openPosition(book, domain.VenueKalshi, "k-ev1", domain.OutcomeYes, 250, 100)

	n, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, book.Open(), 1)

	kalshi.resolve("k-ev1", true)
	n, err = r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, book.Open())
	assert.Equal(t, 2, kalshi.checkCount())
}

func TestReconcileEmptyLedger(t *testing.T) {
	kalshi := &fakeOracle{venue: domain.VenueKalshi}
	r, _ := newTestReconciler(kalshi, nil, nil, nil)

	n, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, kalshi.checkCount())
}

func TestReconcileMissingVenueClient(t *testing.T) {
	r, book := newTestReconciler(nil, nil, nil, nil)

	openPosition(book, domain.VenueKalshi, "k-ev1", domain.OutcomeYes, 250, 100)

	n, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, book.Open(), 1)
}

func TestBalances(t *testing.T) {
	kalshi := &fakeOracle{venue: domain.VenueKalshi, balance: 123.45}
	poly := &fakeOracle{venue: domain.VenuePolymarket, balance: 67.89}
	r, _ := newTestReconciler(kalshi, poly, nil, nil)

	k, p, err := r.Balances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 123.45, k)
	assert.Equal(t, 67.89, p)
}

func TestBalancesDegradeOnError(t *testing.T) {
	kalshi := &fakeOracle{venue: domain.VenueKalshi, balanceErr: errors.New("api down")}
	poly := &fakeOracle{venue: domain.VenuePolymarket, balance: 67.89}
	r, _ := newTestReconciler(kalshi, poly, nil, nil)

	k, p, err := r.Balances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, k)
	assert.Equal(t, 67.89, p)
}
