package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossbot/internal/arb"
	"github.com/alanyoungcy/crossbot/internal/crypto"
	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/alanyoungcy/crossbot/internal/executor"
	"github.com/alanyoungcy/crossbot/internal/feed"
	"github.com/alanyoungcy/crossbot/internal/ledger"
	"github.com/alanyoungcy/crossbot/internal/matcher"
	"github.com/alanyoungcy/crossbot/internal/notify"
	"github.com/alanyoungcy/crossbot/internal/platform/kalshi"
	"github.com/alanyoungcy/crossbot/internal/platform/polymarket"
	"github.com/alanyoungcy/crossbot/internal/scanner"
	"github.com/alanyoungcy/crossbot/internal/settlement"
)

const (
	// scanLockKey is the distributed lock that keeps detection sweeps
	// single-flight across bot replicas.
	scanLockKey = "scan"

	// maxWatchPairs caps how many matched pairs the websocket feeds
	// subscribe to. Pairs arrive ranked by match score, so the cap keeps
	// the strongest matches.
	maxWatchPairs = 100

	// archiveInterval is how often aged history rows are swept to object
	// storage.
	archiveInterval = 24 * time.Hour
)

// execution bundles the objects trade mode layers on top of detection.
type execution struct {
	coord    *executor.Coordinator
	cooldown *executor.Cooldown
	notional float64
}

// ScanMode runs detection sweeps on the configured interval and records every
// finding without placing orders.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode",
		slog.Duration("interval", a.cfg.Scan.Interval.Duration),
	)

	venues, err := a.buildVenues(ctx, false)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}
	sc := a.newScanner(venues, deps)

	g, ctx := errgroup.WithContext(ctx)

	a.startFeeds(ctx, g, sc, deps)

	g.Go(func() error {
		return a.scanLoop(ctx, deps, sc, nil)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// TradeMode runs detection sweeps plus hedge execution, settlement
// reconciliation, and settlement notifications.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Duration("scan_interval", a.cfg.Scan.Interval.Duration),
		slog.Duration("reconcile_interval", a.cfg.Reconcile.Interval.Duration),
		slog.Float64("notional_usd", a.cfg.Trading.NotionalUSD),
	)

	venues, err := a.buildVenues(ctx, true)
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}

	sc := a.newScanner(venues, deps)
	book := ledger.New(a.logger)
	exec := &execution{
		coord:    executor.NewCoordinator(venues, book, deps.RateLimiter, deps.SignalBus, deps.AuditStore, a.logger),
		cooldown: executor.NewCooldown(a.cfg.Trading.CooldownTTL.Duration),
		notional: a.cfg.Trading.NotionalUSD,
	}
	rec := settlement.NewReconciler(venues, book, deps.SettlementStore, deps.SignalBus, a.logger)

	a.logBalances(ctx, rec)

	startupMsg := fmt.Sprintf("trade mode, $%.0f per leg", a.cfg.Trading.NotionalUSD)
	if err := deps.Notifier.NotifyAll(ctx, "crossbot started", startupMsg); err != nil {
		a.logger.WarnContext(ctx, "startup notification failed",
			slog.String("error", err.Error()),
		)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startFeeds(ctx, g, sc, deps)

	g.Go(func() error {
		return a.scanLoop(ctx, deps, sc, exec)
	})
	g.Go(func() error {
		return a.reconcileLoop(ctx, rec)
	})
	g.Go(func() error {
		return a.settlementNotifyLoop(ctx, deps)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// scanLoop sweeps immediately and then on every tick until the context is
// cancelled. In trade mode the cooldown table is compacted per tick.
func (a *App) scanLoop(ctx context.Context, deps *Dependencies, sc *scanner.Scanner, exec *execution) error {
	a.sweep(ctx, deps, sc, exec)

	ticker := time.NewTicker(a.cfg.Scan.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if exec != nil {
				exec.cooldown.Sweep()
			}
			a.sweep(ctx, deps, sc, exec)
		}
	}
}

// sweep runs one detection pass under the distributed scan lock, records each
// finding, and in trade mode executes it. The lock TTL equals the scan
// interval so a crashed holder frees the next replica within one cycle.
func (a *App) sweep(ctx context.Context, deps *Dependencies, sc *scanner.Scanner, exec *execution) {
	unlock, err := deps.LockManager.Acquire(ctx, scanLockKey, a.cfg.Scan.Interval.Duration)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.DebugContext(ctx, "another replica holds the scan lock; sweep skipped")
		} else {
			a.logger.WarnContext(ctx, "scan lock acquire failed; sweep skipped",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	defer unlock()

	for _, cand := range sc.Scan(ctx) {
		a.recordOpportunity(ctx, deps, cand)
		if exec != nil {
			a.execute(ctx, deps, exec, cand)
		}
	}
}

// recordOpportunity persists one finding to the history store and announces
// it on the signal bus, both Pub/Sub for live consumers and the durable
// stream for replay. All three sinks are best effort.
func (a *App) recordOpportunity(ctx context.Context, deps *Dependencies, cand scanner.Candidate) {
	recd := opportunityRecord(cand)

	a.logger.InfoContext(ctx, "opportunity detected",
		slog.String("opportunity_id", recd.ID),
		slog.String("hedge", cand.Opportunity.Description()),
		slog.Float64("match_score", recd.MatchScore),
		slog.Float64("net_profit", recd.NetProfit),
		slog.Float64("roi_percent", recd.ROIPercent),
	)

	if err := deps.OpportunityStore.Insert(ctx, recd); err != nil {
		a.logger.WarnContext(ctx, "opportunity insert failed",
			slog.String("opportunity_id", recd.ID),
			slog.String("error", err.Error()),
		)
	}

	payload, err := json.Marshal(map[string]any{
		"event":           "opportunity_detected",
		"opportunity_id":  recd.ID,
		"strategy":        string(recd.Strategy),
		"kalshi_event_id": recd.KalshiEventID,
		"poly_event_id":   recd.PolyEventID,
		"match_score":     recd.MatchScore,
		"net_profit":      recd.NetProfit,
		"roi_percent":     recd.ROIPercent,
	})
	if err != nil {
		return
	}
	if err := deps.SignalBus.Publish(ctx, "opportunities", payload); err != nil {
		a.logger.WarnContext(ctx, "opportunity publish failed",
			slog.String("opportunity_id", recd.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := deps.SignalBus.StreamAppend(ctx, "opportunities", payload); err != nil {
		a.logger.WarnContext(ctx, "opportunity stream append failed",
			slog.String("opportunity_id", recd.ID),
			slog.String("error", err.Error()),
		)
	}
}

// execute places both hedge legs for one finding unless the pair fired
// recently, then marks the stored record with the outcome and notifies.
func (a *App) execute(ctx context.Context, deps *Dependencies, exec *execution, cand scanner.Candidate) {
	key := executor.PairKey(cand.EventA, cand.EventB)
	if exec.cooldown.Throttled(key) {
		a.logger.DebugContext(ctx, "pair in cooldown; execution skipped",
			slog.String("pair", key),
		)
		return
	}

	res, err := exec.coord.Execute(ctx, cand.Opportunity, cand.EventA, cand.EventB, exec.notional)
	if err != nil {
		a.logger.ErrorContext(ctx, "execution rejected",
			slog.String("opportunity_id", cand.Opportunity.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := deps.OpportunityStore.MarkExecuted(ctx, cand.Opportunity.ID, res.Success, res.Error); err != nil {
		a.logger.WarnContext(ctx, "mark executed failed",
			slog.String("opportunity_id", cand.Opportunity.ID),
			slog.String("error", err.Error()),
		)
	}

	if res.Success {
		msg := fmt.Sprintf("%s\nnet margin %.3f, ROI %.1f%%, $%.0f per leg",
			cand.Opportunity.Description(),
			cand.Opportunity.NetProfit,
			cand.Opportunity.ROIPercent,
			exec.notional,
		)
		if err := deps.Notifier.Notify(ctx, notify.EventArbExecuted, "Arb executed", msg); err != nil {
			a.logger.WarnContext(ctx, "execution notification failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if err := deps.Notifier.Notify(ctx, notify.EventError, "Arb execution failed", res.Error); err != nil {
		a.logger.WarnContext(ctx, "failure notification failed",
			slog.String("error", err.Error()),
		)
	}
}

// reconcileLoop settles resolved positions on the configured interval.
func (a *App) reconcileLoop(ctx context.Context, rec *settlement.Reconciler) error {
	ticker := time.NewTicker(a.cfg.Reconcile.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			settled, err := rec.Reconcile(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.logger.WarnContext(ctx, "settlement sweep failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if settled > 0 {
				stats := rec.Stats()
				a.logger.InfoContext(ctx, "ledger after settlement",
					slog.Int("open", stats.Open),
					slog.Int("won", stats.Won),
					slog.Int("lost", stats.Lost),
					slog.Float64("total_profit", stats.TotalProfit),
				)
			}
		}
	}
}

// settlementNotifyLoop forwards settlement announcements from the signal bus
// to the configured notification channels.
func (a *App) settlementNotifyLoop(ctx context.Context, deps *Dependencies) error {
	ch, err := deps.SignalBus.Subscribe(ctx, "settlements")
	if err != nil {
		return fmt.Errorf("subscribe settlements: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			var msg struct {
				PositionID string  `json:"position_id"`
				Venue      string  `json:"venue"`
				Won        bool    `json:"won"`
				Profit     float64 `json:"profit"`
			}
			if err := json.Unmarshal(payload, &msg); err != nil {
				continue
			}
			outcome := "lost"
			if msg.Won {
				outcome = "won"
			}
			body := fmt.Sprintf("%s position %s %s, profit $%.2f",
				msg.Venue, msg.PositionID, outcome, msg.Profit)
			if err := deps.Notifier.Notify(ctx, notify.EventPositionSettled, "Position settled", body); err != nil {
				a.logger.WarnContext(ctx, "settlement notification failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// archiveLoop sweeps history rows older than the retention window to object
// storage once a day.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(archiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.S3.RetentionDays)
			opps, err := deps.Archiver.ArchiveOpportunities(ctx, cutoff)
			if err != nil {
				a.logger.WarnContext(ctx, "opportunity archive failed",
					slog.String("error", err.Error()),
				)
			}
			settles, err := deps.Archiver.ArchiveSettlements(ctx, cutoff)
			if err != nil {
				a.logger.WarnContext(ctx, "settlement archive failed",
					slog.String("error", err.Error()),
				)
			}
			if opps+settles > 0 {
				a.logger.InfoContext(ctx, "history archived",
					slog.Int64("opportunities", opps),
					slog.Int64("settlements", settles),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	}
}

// startFeeds resolves which matched events to stream and starts the per-venue
// websocket bridges. The watch set is resolved once at startup; when the
// bootstrap pass finds no matches the feeds stay off and sweeps price over
// REST alone. A feed failure never takes the bot down for the same reason.
func (a *App) startFeeds(ctx context.Context, g *errgroup.Group, sc *scanner.Scanner, deps *Dependencies) {
	if a.cfg.Kalshi.WsURL == "" && a.cfg.Polymarket.WsHost == "" {
		return
	}

	pairs := sc.Pairs(ctx)
	if len(pairs) == 0 {
		a.logger.InfoContext(ctx, "no matched pairs at startup; websocket feeds disabled")
		return
	}
	if len(pairs) > maxWatchPairs {
		pairs = pairs[:maxWatchPairs]
	}

	tickers, bindings := a.resolveWatchSets(ctx, pairs)

	if a.cfg.Kalshi.WsURL != "" && len(tickers) > 0 {
		kf := feed.NewKalshiFeed(a.cfg.Kalshi.WsURL, deps.QuoteCache, a.logger)
		g.Go(func() error {
			if err := kf.Run(ctx, tickers); err != nil && ctx.Err() == nil {
				a.logger.WarnContext(ctx, "kalshi feed stopped; sweeps fall back to REST quotes",
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	if a.cfg.Polymarket.WsHost != "" && len(bindings) > 0 {
		pf := feed.NewPolymarketFeed(a.cfg.Polymarket.WsHost, deps.QuoteCache, a.logger)
		g.Go(func() error {
			if err := pf.Run(ctx, bindings); err != nil && ctx.Err() == nil {
				a.logger.WarnContext(ctx, "polymarket feed stopped; sweeps fall back to REST quotes",
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
}

// resolveWatchSets derives the websocket subscriptions implied by the matched
// pairs: kalshi market tickers and polymarket outcome-token bindings. Token
// ids come from one Gamma lookup per polymarket event; a failed lookup skips
// that market.
func (a *App) resolveWatchSets(ctx context.Context, pairs []matcher.Match) ([]string, []feed.AssetBinding) {
	gamma := polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost)

	var tickers []string
	var bindings []feed.AssetBinding
	seen := make(map[string]bool)

	for _, p := range pairs {
		for _, ev := range []domain.Event{p.A, p.B} {
			if seen[ev.ID] {
				continue
			}
			seen[ev.ID] = true

			switch ev.Venue {
			case domain.VenueKalshi:
				tickers = append(tickers, ev.ID)
			case domain.VenuePolymarket:
				market, err := gamma.GetMarket(ctx, ev.ID)
				if err != nil {
					a.logger.WarnContext(ctx, "token lookup failed; market not streamed",
						slog.String("event_id", ev.ID),
						slog.String("error", err.Error()),
					)
					continue
				}
				for _, outcome := range []domain.Outcome{domain.OutcomeYes, domain.OutcomeNo} {
					if tokenID, ok := market.TokenIDForOutcome(outcome); ok {
						bindings = append(bindings, feed.AssetBinding{
							AssetID: tokenID,
							EventID: ev.ID,
							Outcome: outcome,
						})
					}
				}
			}
		}
	}

	a.logger.InfoContext(ctx, "websocket watch set resolved",
		slog.Int("pairs", len(pairs)),
		slog.Int("kalshi_tickers", len(tickers)),
		slog.Int("polymarket_assets", len(bindings)),
	)
	return tickers, bindings
}

// buildVenues creates both venue clients. In scan mode the venues run
// unauthenticated and read-only; trading loads the Kalshi RSA key and the
// Polymarket wallet so orders and balances work.
func (a *App) buildVenues(ctx context.Context, trading bool) (map[domain.Venue]domain.VenueClient, error) {
	kalshiClient := kalshi.NewClient(a.cfg.Kalshi.BaseURL, a.cfg.Kalshi.ApiKey)
	if a.cfg.Kalshi.RsaPrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(a.cfg.Kalshi.RsaPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read kalshi RSA key: %w", err)
		}
		if err := kalshiClient.SetRSAPrivateKey(keyBytes); err != nil {
			return nil, err
		}
	}

	gamma := polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost)

	var clob *polymarket.ClobClient
	if trading {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    a.cfg.Wallet.PrivateKey,
			EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      a.cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("load wallet key: %w", err)
		}
		signer, err := crypto.NewSigner(key, a.cfg.Polymarket.ChainID)
		if err != nil {
			return nil, fmt.Errorf("create signer: %w", err)
		}

		var hmacAuth *crypto.HMACAuth
		if a.cfg.Polymarket.ApiKey != "" {
			hmacAuth = &crypto.HMACAuth{
				Key:        a.cfg.Polymarket.ApiKey,
				Secret:     a.cfg.Polymarket.ApiSecret,
				Passphrase: a.cfg.Polymarket.ApiPassphrase,
			}
		}
		clob = polymarket.NewClobClient(a.cfg.Polymarket.ClobHost, signer, hmacAuth)
		if hmacAuth == nil {
			// Trading without CLOB credentials would fill only the
			// Kalshi leg, so a failed derivation is fatal here.
			if err := clob.DeriveAPIKey(ctx); err != nil {
				return nil, fmt.Errorf("derive CLOB API key: %w", err)
			}
		}
	}

	polyClient := polymarket.NewClient(gamma, clob, a.cfg.Wallet.FunderAddress, a.cfg.Polymarket.SignatureType)

	return map[domain.Venue]domain.VenueClient{
		domain.VenueKalshi:     kalshiClient,
		domain.VenuePolymarket: polyClient,
	}, nil
}

// newScanner assembles the detection pipeline. Quote A in the evaluator is
// the polymarket side, matching the pair order the scanner produces.
func (a *App) newScanner(venues map[domain.Venue]domain.VenueClient, deps *Dependencies) *scanner.Scanner {
	m := matcher.New(a.cfg.Matching.Threshold)
	eval := arb.NewEvaluator(arb.Config{
		FeeRateA:  a.cfg.Trading.FeeRatePolymarket,
		FeeRateB:  a.cfg.Trading.FeeRateKalshi,
		MinProfit: a.cfg.Trading.MinProfit,
	}, a.logger)

	return scanner.New(venues, m, eval, deps.QuoteCache, scanner.Filters{
		Categories:         a.cfg.Scan.Categories,
		MaxUntilResolution: a.cfg.Scan.MaxUntilResolution.Duration,
		MinLiquidity:       a.cfg.Scan.MinLiquidity,
	}, a.logger)
}

// logBalances reports both venue balances once at startup and warns when
// either cannot cover the configured per-leg notional.
func (a *App) logBalances(ctx context.Context, rec *settlement.Reconciler) {
	kalshiBal, polyBal, err := rec.Balances(ctx)
	if err != nil {
		return
	}
	a.logger.InfoContext(ctx, "venue balances",
		slog.Float64("kalshi_usd", kalshiBal),
		slog.Float64("polymarket_usd", polyBal),
	)
	if math.Min(kalshiBal, polyBal) < a.cfg.Trading.NotionalUSD {
		a.logger.WarnContext(ctx, "venue balance below per-leg notional",
			slog.Float64("notional_usd", a.cfg.Trading.NotionalUSD),
		)
	}
}

// opportunityRecord flattens one finding into its persisted history form.
// Venue event ids are assigned by venue, not pair position.
func opportunityRecord(c scanner.Candidate) domain.OpportunityRecord {
	recd := domain.OpportunityRecord{
		ID:          c.Opportunity.ID,
		Strategy:    c.Opportunity.Strategy,
		MatchScore:  c.Score.Overall,
		TotalCost:   c.Opportunity.TotalCost,
		GrossProfit: c.Opportunity.GrossProfit,
		TotalFees:   c.Opportunity.TotalFees,
		NetProfit:   c.Opportunity.NetProfit,
		ROIPercent:  c.Opportunity.ROIPercent,
		DetectedAt:  c.Opportunity.DetectedAt,
	}
	for _, ev := range []domain.Event{c.EventA, c.EventB} {
		switch ev.Venue {
		case domain.VenueKalshi:
			recd.KalshiEventID = ev.ID
		case domain.VenuePolymarket:
			recd.PolyEventID = ev.ID
		}
	}
	return recd
}
