package arb

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func kalshiQuote(yes, no float64) VenueQuote {
	return VenueQuote{Venue: domain.VenueKalshi, Quote: domain.MarketQuote{YesPrice: yes, NoPrice: no, Liquidity: 1000}}
}

func polyQuote(yes, no float64) VenueQuote {
	return VenueQuote{Venue: domain.VenuePolymarket, Quote: domain.MarketQuote{YesPrice: yes, NoPrice: no, Liquidity: 1000}}
}

func TestEvaluateYesNoHedge(t *testing.T) {
	e := NewEvaluator(Config{FeeRateA: 0.01, FeeRateB: 0.01, MinProfit: 0.02}, testLogger())

	opp := e.Evaluate(context.Background(), kalshiQuote(0.40, 0.58), polyQuote(0.59, 0.39))
	require.NotNil(t, opp)

	assert.Equal(t, domain.StrategyYesNo, opp.Strategy)
	assert.Equal(t, domain.OrderLeg{Venue: domain.VenueKalshi, Action: domain.ActionBuy, Outcome: domain.OutcomeYes, Price: 0.40}, opp.LegA)
	assert.Equal(t, domain.OrderLeg{Venue: domain.VenuePolymarket, Action: domain.ActionBuy, Outcome: domain.OutcomeNo, Price: 0.39}, opp.LegB)
	assert.InDelta(t, 0.79, opp.TotalCost, 1e-9)
	assert.InDelta(t, 0.21, opp.GrossProfit, 1e-9)
	assert.InDelta(t, 0.02, opp.TotalFees, 1e-9)
	assert.InDelta(t, 0.19, opp.NetProfit, 1e-9)
	assert.InDelta(t, 0.19/0.79*100.0, opp.ROIPercent, 1e-9)
	assert.Equal(t, "buy YES on kalshi + buy NO on polymarket", opp.Description())
	assert.NotEmpty(t, opp.ID)
	assert.False(t, opp.DetectedAt.IsZero())
}

func TestEvaluateNoYesHedge(t *testing.T) {
	e := NewEvaluator(Config{FeeRateA: 0.01, FeeRateB: 0.01, MinProfit: 0.02}, testLogger())

	opp := e.Evaluate(context.Background(), kalshiQuote(0.70, 0.30), polyQuote(0.55, 0.60))
	require.NotNil(t, opp)

	assert.Equal(t, domain.StrategyNoYes, opp.Strategy)
	assert.Equal(t, domain.OrderLeg{Venue: domain.VenueKalshi, Action: domain.ActionBuy, Outcome: domain.OutcomeNo, Price: 0.30}, opp.LegA)
	assert.Equal(t, domain.OrderLeg{Venue: domain.VenuePolymarket, Action: domain.ActionBuy, Outcome: domain.OutcomeYes, Price: 0.55}, opp.LegB)
	assert.InDelta(t, 0.85, opp.TotalCost, 1e-9)
	assert.InDelta(t, 0.13, opp.NetProfit, 1e-9)
}

func TestEvaluateEfficientMarket(t *testing.T) {
	e := NewEvaluator(Config{FeeRateA: 0.01, FeeRateB: 0.01, MinProfit: 0.02}, testLogger())

	opp := e.Evaluate(context.Background(), kalshiQuote(0.52, 0.49), polyQuote(0.51, 0.50))
	assert.Nil(t, opp)
}

func TestEvaluateFirstQualifyingStrategyWins(t *testing.T) {
	e := NewEvaluator(Config{FeeRateA: 0.01, FeeRateB: 0.01, MinProfit: 0.02}, testLogger())

	// Both formations clear the bar; the mirror one would pay far more
	// (cost 0.50 vs 0.85) but the YES-on-A formation is checked first and
	// must win.
	opp := e.Evaluate(context.Background(), kalshiQuote(0.40, 0.20), polyQuote(0.30, 0.45))
	require.NotNil(t, opp)

	assert.Equal(t, domain.StrategyYesNo, opp.Strategy)
	assert.InDelta(t, 0.85, opp.TotalCost, 1e-9)
	assert.InDelta(t, 0.13, opp.NetProfit, 1e-9)
}

func TestEvaluateRequiresStrictlyMoreThanBar(t *testing.T) {
	// Zero fees, bar set exactly at the gross profit: 0.25 > 0.25 is false,
	// so no opportunity may come back.
	e := NewEvaluator(Config{FeeRateA: 0, FeeRateB: 0, MinProfit: 0.25}, testLogger())

	opp := e.Evaluate(context.Background(), kalshiQuote(0.25, 0.75), polyQuote(0.75, 0.50))
	assert.Nil(t, opp)
}

func TestEvaluateBelowMinProfit(t *testing.T) {
	e := NewEvaluator(Config{FeeRateA: 0.01, FeeRateB: 0.01, MinProfit: 0.02}, testLogger())

	// Gross profit 0.03 beats the fees alone but not fees plus minimum.
	opp := e.Evaluate(context.Background(), kalshiQuote(0.50, 0.60), polyQuote(0.60, 0.47))
	assert.Nil(t, opp)
}

func TestEvaluateDefaultsOnNegativeConfig(t *testing.T) {
	e := NewEvaluator(Config{FeeRateA: -1, FeeRateB: -1, MinProfit: -1}, testLogger())

	opp := e.Evaluate(context.Background(), kalshiQuote(0.40, 0.58), polyQuote(0.59, 0.39))
	require.NotNil(t, opp)
	assert.InDelta(t, 0.02, opp.TotalFees, 1e-9)
	assert.InDelta(t, 0.19, opp.NetProfit, 1e-9)
}
