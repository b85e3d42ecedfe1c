package domain

import "context"

// Resolution is a venue's answer to a settlement query. Resolved false means
// the market has not settled yet; YesWon is meaningful only when Resolved.
type Resolution struct {
	Resolved bool
	YesWon   bool
}

// OrderRequest describes one buy order for a venue client to place.
type OrderRequest struct {
	EventID     string
	Outcome     Outcome
	NotionalUSD float64
	LimitPrice  float64
}

// VenueClient is the per-venue collaborator contract. One instance exists per
// venue; implementations own their transport, pagination, and signing.
// Every method carries its own timeout via ctx; the pipeline imposes none.
type VenueClient interface {
	// Venue returns the platform this client talks to.
	Venue() Venue

	// FetchEvents lists currently tradeable events. A failure is returned as
	// an error; callers degrade that venue's list to empty for the cycle.
	FetchEvents(ctx context.Context) ([]Event, error)

	// FetchQuote returns current yes/no pricing and liquidity for an event.
	FetchQuote(ctx context.Context, eventID string) (MarketQuote, error)

	// PlaceOrder submits a buy order and returns the venue order id.
	// Rejections wrap ErrOrderRejected.
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)

	// CheckSettlement queries the venue's settlement oracle for an event.
	CheckSettlement(ctx context.Context, eventID string) (Resolution, error)

	// Balance returns the available USD balance on the venue.
	Balance(ctx context.Context) (float64, error)
}
