package feed

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/alanyoungcy/crossbot/internal/platform/polymarket"
)

// AssetBinding ties a CLOB outcome token to the market and outcome side it
// prices. The feed drops updates for tokens it has no binding for.
type AssetBinding struct {
	AssetID string
	EventID string
	Outcome domain.Outcome
}

// PolymarketFeed streams book snapshots from the Polymarket CLOB WebSocket
// and folds per-token top-of-book asks into the cached two-sided quotes.
// Book updates arrive one outcome token at a time, so each update patches
// only its own side of the quote.
type PolymarketFeed struct {
	wsURL    string
	cache    domain.QuoteCache
	logger   *slog.Logger
	bindings map[string]AssetBinding
}

// NewPolymarketFeed creates a feed that writes book quotes into the given
// cache.
func NewPolymarketFeed(wsURL string, cache domain.QuoteCache, logger *slog.Logger) *PolymarketFeed {
	return &PolymarketFeed{
		wsURL:  wsURL,
		cache:  cache,
		logger: logger.With(slog.String("component", "polymarket_feed")),
	}
}

// Run connects, subscribes to the bound outcome tokens, and keeps the cache
// warm until ctx is cancelled. The underlying client reconnects and restores
// subscriptions on its own.
func (f *PolymarketFeed) Run(ctx context.Context, bindings []AssetBinding) error {
	if len(bindings) == 0 {
		f.logger.Info("no polymarket assets to stream")
		return nil
	}

	f.bindings = make(map[string]AssetBinding, len(bindings))
	assetIDs := make([]string, 0, len(bindings))
	for _, b := range bindings {
		f.bindings[b.AssetID] = b
		assetIDs = append(assetIDs, b.AssetID)
	}

	client := polymarket.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnQuote(func(q polymarket.BookQuote) {
		f.apply(ctx, q)
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.Subscribe(ctx, assetIDs); err != nil {
		return err
	}
	f.logger.Info("polymarket feed subscribed", slog.Int("assets", len(assetIDs)))

	<-ctx.Done()
	return ctx.Err()
}

// apply patches one side of a cached quote with a fresh ask. A market with
// no cached entry is left for the REST path to seed first; writing a half
// quote would read as a near-free hedge downstream.
func (f *PolymarketFeed) apply(ctx context.Context, q polymarket.BookQuote) {
	b, ok := f.bindings[q.AssetID]
	if !ok || q.BestAsk <= 0 {
		return
	}

	quote, _, err := f.cache.GetQuote(ctx, domain.VenuePolymarket, b.EventID)
	if err != nil {
		return
	}

	switch b.Outcome {
	case domain.OutcomeYes:
		quote.YesPrice = q.BestAsk
	case domain.OutcomeNo:
		quote.NoPrice = q.BestAsk
	}

	if err := f.cache.SetQuote(ctx, domain.VenuePolymarket, b.EventID, quote, q.Timestamp); err != nil {
		f.logger.Debug("polymarket quote cache write failed",
			slog.String("event_id", b.EventID),
			slog.String("error", err.Error()),
		)
	}
}
