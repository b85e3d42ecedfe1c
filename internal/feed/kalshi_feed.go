package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/alanyoungcy/crossbot/internal/platform/kalshi"
)

// KalshiFeed streams ticker updates from the Kalshi WebSocket into the quote
// cache so scan cycles read near-live prices instead of waiting on REST.
type KalshiFeed struct {
	wsURL  string
	cache  domain.QuoteCache
	logger *slog.Logger
}

// NewKalshiFeed creates a feed that writes ticker quotes into the given cache.
func NewKalshiFeed(wsURL string, cache domain.QuoteCache, logger *slog.Logger) *KalshiFeed {
	return &KalshiFeed{
		wsURL:  wsURL,
		cache:  cache,
		logger: logger.With(slog.String("component", "kalshi_feed")),
	}
}

// Run connects, subscribes to the given market tickers, and keeps the cache
// warm until ctx is cancelled. The underlying client reconnects and restores
// subscriptions on its own.
func (f *KalshiFeed) Run(ctx context.Context, tickers []string) error {
	if len(tickers) == 0 {
		f.logger.Info("no kalshi tickers to stream")
		return nil
	}

	client := kalshi.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnTicker(func(tick kalshi.WSTicker) {
		ts := time.Now()
		if tick.Ts > 0 {
			ts = time.Unix(tick.Ts, 0)
		}
		if err := f.cache.SetQuote(ctx, domain.VenueKalshi, tick.MarketTicker, tick.Quote(), ts); err != nil {
			f.logger.Debug("kalshi quote cache write failed",
				slog.String("ticker", tick.MarketTicker),
				slog.String("error", err.Error()),
			)
		}
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.Subscribe(ctx, tickers); err != nil {
		return err
	}
	f.logger.Info("kalshi feed subscribed", slog.Int("tickers", len(tickers)))

	<-ctx.Done()
	return ctx.Err()
}
