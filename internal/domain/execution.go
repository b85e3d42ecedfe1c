package domain

// TradeResult is the classified outcome of one two-leg execution attempt.
// Partial failure is data, not an error: Success is false, the filled leg's
// order id is populated, and Error names the failing venue. The coordinator
// never cancels a filled leg on its counterpart's failure.
type TradeResult struct {
	Success           bool
	KalshiOrderID     string
	PolymarketOrderID string
	Error             string
}

// OrderID returns the recorded order id for the given venue, if any.
func (r TradeResult) OrderID(v Venue) string {
	switch v {
	case VenueKalshi:
		return r.KalshiOrderID
	case VenuePolymarket:
		return r.PolymarketOrderID
	default:
		return ""
	}
}
