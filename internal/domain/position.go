package domain

import "time"

// PositionStatus tracks a position through the settlement state machine.
// Open is the only non-terminal state; Won and Lost are terminal and a
// position never transitions back out of them.
type PositionStatus string

const (
	PositionOpen PositionStatus = "open"
	PositionWon  PositionStatus = "won"
	PositionLost PositionStatus = "lost"
)

// Terminal reports whether the status is a settled end state.
func (s PositionStatus) Terminal() bool {
	return s == PositionWon || s == PositionLost
}

// Position is one hedge leg held to settlement. Owned exclusively by the
// ledger once added; mutated only through the ledger's Settle.
type Position struct {
	ID         string
	Venue      Venue
	EventID    string
	EventTitle string
	Outcome    Outcome
	Shares     float64 // notional / entry price
	Cost       float64 // notional paid, USD
	EntryPrice float64
	OrderID    string // venue order id, empty if the venue returned none
	Status     PositionStatus
	OpenedAt   time.Time
	SettledAt  *time.Time
	Payout     *float64 // shares on a win, 0 on a loss
	Profit     *float64 // shares*1 - cost on a win, -cost on a loss
}

// ProfitIfWon is the realized profit should the position win: each share
// pays exactly $1, so the payout is the share count.
func (p Position) ProfitIfWon() float64 {
	return p.Shares*1.0 - p.Cost
}

// ProfitIfLost is the realized loss should the position lose: the full cost
// basis, with no partial recovery.
func (p Position) ProfitIfLost() float64 {
	return -p.Cost
}

// LedgerStats is the on-demand aggregate view over all positions.
type LedgerStats struct {
	Total       int
	Open        int
	Won         int
	Lost        int
	TotalProfit float64
}
