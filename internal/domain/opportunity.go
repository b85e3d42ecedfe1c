package domain

import (
	"fmt"
	"time"
)

// Outcome is the side of a binary market a leg buys.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// LegAction is what a leg does on its venue. Only buys are issued today;
// the type exists so legs stay explicit records rather than positional
// tuples.
type LegAction string

const (
	ActionBuy LegAction = "buy"
)

// Strategy identifies which of the two hedge formations an opportunity uses.
// StrategyYesNo buys YES on venue A and NO on venue B; StrategyNoYes is the
// mirror. The evaluator checks them in exactly this order.
type Strategy string

const (
	StrategyYesNo Strategy = "yes_a_no_b"
	StrategyNoYes Strategy = "no_a_yes_b"
)

// OrderLeg is one side of a hedge: a single buy order on one venue for one
// outcome at a limit price.
type OrderLeg struct {
	Venue   Venue
	Action  LegAction
	Outcome Outcome
	Price   float64
}

// Opportunity is a fee-adjusted arbitrage window over one matched pair.
// Created by the evaluator, consumed immediately by the coordinator; the
// history store keeps a copy but the pipeline never reads it back.
type Opportunity struct {
	ID          string
	Strategy    Strategy
	LegA        OrderLeg
	LegB        OrderLeg
	TotalCost   float64 // combined price of both legs, per $1 payout
	GrossProfit float64 // 1 - TotalCost
	TotalFees   float64 // feeRateA + feeRateB
	NetProfit   float64 // GrossProfit - TotalFees
	ROIPercent  float64 // NetProfit / TotalCost * 100
	DetectedAt  time.Time
}

// Description renders the opportunity's hedge in operator-readable form,
// e.g. "buy YES on kalshi + buy NO on polymarket".
func (o Opportunity) Description() string {
	return fmt.Sprintf("%s %s on %s + %s %s on %s",
		o.LegA.Action, o.LegA.Outcome, o.LegA.Venue,
		o.LegB.Action, o.LegB.Outcome, o.LegB.Venue,
	)
}
