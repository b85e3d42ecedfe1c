package domain

import (
	"math"
	"time"
)

// Venue identifies one of the two prediction-market platforms.
type Venue string

const (
	VenueKalshi     Venue = "kalshi"
	VenuePolymarket Venue = "polymarket"
)

// Event is one binary-outcome market event as listed on a venue. Events are
// immutable once constructed by the venue client; components pass them by
// value and never mutate shared copies.
type Event struct {
	Venue          Venue
	ID             string // venue-native identifier (ticker, condition id)
	Title          string
	Description    string
	ResolutionTime time.Time // zero when the venue reports none
	Category       string
	Tags           []string
}

// HasResolutionTime reports whether the venue supplied an explicit
// resolution timestamp for this event.
func (e Event) HasResolutionTime() bool {
	return !e.ResolutionTime.IsZero()
}

// QuoteSkewTolerance is the advisory bound on |yes + no - 1| for a
// well-formed two-outcome quote.
const QuoteSkewTolerance = 0.01

// MarketQuote is a venue's current pricing for one event. Prices are
// probabilities in [0,1], i.e. cost per $1 of payout.
type MarketQuote struct {
	YesPrice  float64
	NoPrice   float64
	Liquidity float64
}

// Skewed reports whether the quote violates the advisory two-outcome
// invariant |yes + no - 1| < QuoteSkewTolerance. Skewed quotes are not
// rejected; callers log and treat them with suspicion.
func (q MarketQuote) Skewed() bool {
	return math.Abs(q.YesPrice+q.NoPrice-1.0) >= QuoteSkewTolerance
}

// IsZero reports whether the quote is the degenerate zero value that a
// failed fetch degrades to.
func (q MarketQuote) IsZero() bool {
	return q.YesPrice == 0 && q.NoPrice == 0 && q.Liquidity == 0
}
