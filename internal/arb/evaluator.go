// Package arb evaluates matched cross-venue pairs for hedge opportunities.
// A complementary YES/NO pair pays exactly $1 at resolution, so any combined
// entry cost below $1 net of fees locks in the difference regardless of
// outcome.
package arb

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/google/uuid"
)

const (
	defaultFeeRate   = 0.01
	defaultMinProfit = 0.02
)

// Config configures the evaluator. Fee rates are fractions of notional per
// venue; MinProfit is the gross margin required above combined fees.
type Config struct {
	FeeRateA  float64
	FeeRateB  float64
	MinProfit float64
}

// VenueQuote pairs a venue identity with its current quote for one event.
type VenueQuote struct {
	Venue domain.Venue
	Quote domain.MarketQuote
}

// Evaluator tests the two hedge formations over a matched pair's quotes.
// Evaluation is total and synchronous; it never fails, it only declines.
type Evaluator struct {
	feeA      float64
	feeB      float64
	minProfit float64
	logger    *slog.Logger
}

// NewEvaluator creates an evaluator. Negative rates fall back to the
// defaults (1% per venue, 2% minimum profit); explicit zero is respected.
func NewEvaluator(cfg Config, logger *slog.Logger) *Evaluator {
	if cfg.FeeRateA < 0 {
		cfg.FeeRateA = defaultFeeRate
	}
	if cfg.FeeRateB < 0 {
		cfg.FeeRateB = defaultFeeRate
	}
	if cfg.MinProfit < 0 {
		cfg.MinProfit = defaultMinProfit
	}
	return &Evaluator{
		feeA:      cfg.FeeRateA,
		feeB:      cfg.FeeRateB,
		minProfit: cfg.MinProfit,
		logger:    logger.With(slog.String("component", "arb_evaluator")),
	}
}

// Evaluate returns the first hedge formation that clears the fee-adjusted
// profit bar, or nil when neither does.
//
// Strategy order is fixed: YES on A plus NO on B is checked first and wins
// even when the mirror formation would pay strictly more. Callers must not
// reorder the check.
func (e *Evaluator) Evaluate(ctx context.Context, a, b VenueQuote) *domain.Opportunity {
	if opp := e.qualify(ctx, domain.StrategyYesNo,
		domain.OrderLeg{Venue: a.Venue, Action: domain.ActionBuy, Outcome: domain.OutcomeYes, Price: a.Quote.YesPrice},
		domain.OrderLeg{Venue: b.Venue, Action: domain.ActionBuy, Outcome: domain.OutcomeNo, Price: b.Quote.NoPrice},
	); opp != nil {
		return opp
	}
	return e.qualify(ctx, domain.StrategyNoYes,
		domain.OrderLeg{Venue: a.Venue, Action: domain.ActionBuy, Outcome: domain.OutcomeNo, Price: a.Quote.NoPrice},
		domain.OrderLeg{Venue: b.Venue, Action: domain.ActionBuy, Outcome: domain.OutcomeYes, Price: b.Quote.YesPrice},
	)
}

func (e *Evaluator) qualify(ctx context.Context, strategy domain.Strategy, legA, legB domain.OrderLeg) *domain.Opportunity {
	totalCost := legA.Price + legB.Price
	grossProfit := 1.0 - totalCost
	totalFees := e.feeA + e.feeB
	if grossProfit <= totalFees+e.minProfit {
		return nil
	}

	netProfit := grossProfit - totalFees
	opp := &domain.Opportunity{
		ID:          uuid.Must(uuid.NewRandom()).String(),
		Strategy:    strategy,
		LegA:        legA,
		LegB:        legB,
		TotalCost:   totalCost,
		GrossProfit: grossProfit,
		TotalFees:   totalFees,
		NetProfit:   netProfit,
		ROIPercent:  netProfit / totalCost * 100.0,
		DetectedAt:  time.Now().UTC(),
	}
	e.logger.DebugContext(ctx, "hedge opportunity detected",
		slog.String("id", opp.ID),
		slog.String("strategy", string(strategy)),
		slog.String("hedge", opp.Description()),
		slog.Float64("total_cost", totalCost),
		slog.Float64("net_profit", netProfit),
		slog.Float64("roi_percent", opp.ROIPercent),
	)
	return opp
}
