// Package settlement reconciles open hedge positions against venue
// resolution oracles and realizes their profit or loss in the ledger.
package settlement

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/alanyoungcy/crossbot/internal/ledger"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentChecks bounds in-flight settlement queries per sweep.
const maxConcurrentChecks = 8

// Reconciler sweeps the ledger's open positions, asks each position's venue
// whether its market has resolved, and settles the ones that have. Oracle
// failures are logged and skipped; the position is retried on the next sweep.
type Reconciler struct {
	venues map[domain.Venue]domain.VenueClient
	book   *ledger.Ledger
	store  domain.SettlementStore
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewReconciler creates a Reconciler. store and bus may be nil; settled
// positions are then not persisted or announced.
func NewReconciler(
	venues map[domain.Venue]domain.VenueClient,
	book *ledger.Ledger,
	store domain.SettlementStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		venues: venues,
		book:   book,
		store:  store,
		bus:    bus,
		logger: logger.With(slog.String("component", "settlement")),
	}
}

// Reconcile checks every open position once and returns how many settled
// during this sweep. The open set is snapshotted up front; no ledger lock is
// held while venue oracles are queried.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	open := r.book.Open()
	if len(open) == 0 {
		return 0, nil
	}

	settled := make([]bool, len(open))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)
	for i, pos := range open {
		i, pos := i, pos
		g.Go(func() error {
			settled[i] = r.checkPosition(gctx, pos)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	count := 0
	for _, ok := range settled {
		if ok {
			count++
		}
	}
	if count > 0 {
		r.logger.InfoContext(ctx, "settlement sweep completed",
			slog.Int("checked", len(open)),
			slog.Int("settled", count),
		)
	}
	return count, nil
}

// checkPosition queries one position's venue and settles it if the market has
// resolved. Returns true only when the position settled in this call.
func (r *Reconciler) checkPosition(ctx context.Context, pos domain.Position) bool {
	client, ok := r.venues[pos.Venue]
	if !ok {
		r.logger.WarnContext(ctx, "no client for position venue",
			slog.String("position_id", pos.ID),
			slog.String("venue", string(pos.Venue)),
		)
		return false
	}

	res, err := client.CheckSettlement(ctx, pos.EventID)
	if err != nil {
		r.logger.WarnContext(ctx, "settlement check failed",
			slog.String("position_id", pos.ID),
			slog.String("event_id", pos.EventID),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !res.Resolved {
		return false
	}

	won := (res.YesWon && pos.Outcome == domain.OutcomeYes) ||
		(!res.YesWon && pos.Outcome == domain.OutcomeNo)
	payout := 0.0
	if won {
		// Winning shares pay exactly $1 each.
		payout = pos.Shares
	}

	profit, err := r.book.Settle(pos.ID, won, payout)
	if err != nil {
		// Lost a race with another settle of the same position.
		r.logger.WarnContext(ctx, "position settle rejected",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
		return false
	}

	r.logger.InfoContext(ctx, "position settled",
		slog.String("position_id", pos.ID),
		slog.String("venue", string(pos.Venue)),
		slog.String("event_title", pos.EventTitle),
		slog.Bool("won", won),
		slog.Float64("payout", payout),
		slog.Float64("profit", profit),
	)
	r.record(ctx, pos.ID)
	r.announce(ctx, pos, won, payout, profit)
	return true
}

// record copies the settled position to the settlement store.
func (r *Reconciler) record(ctx context.Context, id string) {
	if r.store == nil {
		return
	}
	settled, ok := r.book.Get(id)
	if !ok {
		return
	}
	if err := r.store.Insert(ctx, settled); err != nil {
		r.logger.WarnContext(ctx, "settlement store insert failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Reconciler) announce(ctx context.Context, pos domain.Position, won bool, payout, profit float64) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event":       "position_settled",
		"position_id": pos.ID,
		"venue":       string(pos.Venue),
		"event_id":    pos.EventID,
		"won":         won,
		"payout":      payout,
		"profit":      profit,
	})
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, "settlements", payload); err != nil {
		r.logger.WarnContext(ctx, "settlement publish failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Balances fetches both venue balances concurrently. A failed fetch degrades
// that venue's balance to zero with a warning; the error return reports only
// context cancellation.
func (r *Reconciler) Balances(ctx context.Context) (kalshi, polymarket float64, err error) {
	var wg sync.WaitGroup
	fetch := func(venue domain.Venue, out *float64) {
		defer wg.Done()
		client, ok := r.venues[venue]
		if !ok {
			return
		}
		bal, err := client.Balance(ctx)
		if err != nil {
			r.logger.WarnContext(ctx, "balance fetch failed",
				slog.String("venue", string(venue)),
				slog.String("error", err.Error()),
			)
			return
		}
		*out = bal
	}

	wg.Add(2)
	go fetch(domain.VenueKalshi, &kalshi)
	go fetch(domain.VenuePolymarket, &polymarket)
	wg.Wait()

	if ctx.Err() != nil {
		return 0, 0, ctx.Err()
	}
	return kalshi, polymarket, nil
}

// Stats reports the ledger's aggregate position statistics.
func (r *Reconciler) Stats() domain.LedgerStats {
	return r.book.Stats()
}
