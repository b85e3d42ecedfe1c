package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/alanyoungcy/crossbot/internal/ledger"
)

const (
	orderRateLimit  = 10
	orderRateWindow = time.Second
)

// Coordinator submits both legs of a hedge to their venues concurrently,
// classifies the joined outcome, and records every filled leg in the ledger.
// Leg failures are data in the TradeResult, never an error from Execute; a
// filled leg whose counterpart failed stays open and unhedged until an
// operator intervenes.
type Coordinator struct {
	venues  map[domain.Venue]domain.VenueClient
	book    *ledger.Ledger
	limiter domain.RateLimiter
	bus     domain.SignalBus
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewCoordinator creates a coordinator. bus and audit may be nil; the
// remaining dependencies are required.
func NewCoordinator(
	venues map[domain.Venue]domain.VenueClient,
	book *ledger.Ledger,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		venues:  venues,
		book:    book,
		limiter: limiter,
		bus:     bus,
		audit:   audit,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

type legPlan struct {
	leg    domain.OrderLeg
	event  domain.Event
	client domain.VenueClient
}

type legResult struct {
	orderID string
	err     error
}

// Execute places both legs of the opportunity with the shared notional and
// returns the classified result. The error return reports caller
// misconfiguration only (unknown venue, mismatched event, non-positive
// notional or price); it is nil for any combination of leg outcomes.
//
// Both legs are validated before either is submitted, then issued
// concurrently and joined. Nothing is cancelled on partial failure: the
// filled leg is recorded as an open position and the result's Error names
// the venue that failed.
func (c *Coordinator) Execute(ctx context.Context, opp domain.Opportunity, eventA, eventB domain.Event, notionalUSD float64) (domain.TradeResult, error) {
	if notionalUSD <= 0 {
		return domain.TradeResult{}, fmt.Errorf("executor: notional must be positive, got %.2f", notionalUSD)
	}

	var plans [2]legPlan
	for i, pair := range []struct {
		leg   domain.OrderLeg
		event domain.Event
	}{{opp.LegA, eventA}, {opp.LegB, eventB}} {
		if pair.leg.Price <= 0 {
			return domain.TradeResult{}, fmt.Errorf("executor: %s leg price must be positive, got %.4f", pair.leg.Venue, pair.leg.Price)
		}
		if pair.event.Venue != pair.leg.Venue {
			return domain.TradeResult{}, fmt.Errorf("executor: event %q belongs to %s, leg targets %s", pair.event.ID, pair.event.Venue, pair.leg.Venue)
		}
		client, ok := c.venues[pair.leg.Venue]
		if !ok {
			return domain.TradeResult{}, fmt.Errorf("executor: no client configured for venue %q", pair.leg.Venue)
		}
		plans[i] = legPlan{leg: pair.leg, event: pair.event, client: client}
	}

	c.logger.InfoContext(ctx, "executing hedge",
		slog.String("opportunity_id", opp.ID),
		slog.String("hedge", opp.Description()),
		slog.Float64("notional_usd", notionalUSD),
		slog.Float64("net_profit", opp.NetProfit),
		slog.Float64("roi_percent", opp.ROIPercent),
	)

	// Both legs go out before either is awaited; classification happens
	// only after the join.
	var wg sync.WaitGroup
	var results [2]legResult
	for i := range plans {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.placeLeg(ctx, plans[i], notionalUSD)
		}(i)
	}
	wg.Wait()

	res := domain.TradeResult{Success: results[0].err == nil && results[1].err == nil}
	for i, lr := range results {
		if lr.err != nil {
			continue
		}
		setOrderID(&res, plans[i].leg.Venue, lr.orderID)
		pos := ledger.NewPosition(
			plans[i].leg.Venue,
			plans[i].event,
			plans[i].leg.Outcome,
			notionalUSD/plans[i].leg.Price,
			notionalUSD,
			plans[i].leg.Price,
			lr.orderID,
		)
		c.book.Add(pos)
	}

	if res.Success {
		c.logger.InfoContext(ctx, "hedge executed",
			slog.String("opportunity_id", opp.ID),
			slog.String("kalshi_order_id", res.KalshiOrderID),
			slog.String("polymarket_order_id", res.PolymarketOrderID),
		)
	} else {
		var failures []string
		for i, lr := range results {
			if lr.err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", plans[i].leg.Venue, lr.err))
			}
		}
		res.Error = strings.Join(failures, "; ")

		c.logger.WarnContext(ctx, "hedge execution failed",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", res.Error),
		)
		for i, lr := range results {
			if lr.err == nil {
				c.logger.WarnContext(ctx, "leg filled without its hedge; no cancellation is attempted",
					slog.String("opportunity_id", opp.ID),
					slog.String("venue", string(plans[i].leg.Venue)),
					slog.String("order_id", lr.orderID),
				)
			}
		}
	}

	c.announce(ctx, opp, res)
	return res, nil
}

func (c *Coordinator) placeLeg(ctx context.Context, p legPlan, notionalUSD float64) legResult {
	allowed, err := c.limiter.Allow(ctx, "orders:"+string(p.leg.Venue), orderRateLimit, orderRateWindow)
	if err != nil {
		return legResult{err: fmt.Errorf("rate limiter: %w", err)}
	}
	if !allowed {
		return legResult{err: domain.ErrRateLimited}
	}

	orderID, err := p.client.PlaceOrder(ctx, domain.OrderRequest{
		EventID:     p.event.ID,
		Outcome:     p.leg.Outcome,
		NotionalUSD: notionalUSD,
		LimitPrice:  p.leg.Price,
	})
	if err != nil {
		return legResult{err: err}
	}
	return legResult{orderID: orderID}
}

// announce publishes the execution on the signal bus and writes an audit
// entry. Both sinks are best effort; failures are logged and do not alter
// the trade result.
func (c *Coordinator) announce(ctx context.Context, opp domain.Opportunity, res domain.TradeResult) {
	if c.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":               "execution_completed",
			"opportunity_id":      opp.ID,
			"strategy":            string(opp.Strategy),
			"success":             res.Success,
			"kalshi_order_id":     res.KalshiOrderID,
			"polymarket_order_id": res.PolymarketOrderID,
			"error":               res.Error,
		})
		if err := c.bus.Publish(ctx, "executions", evt); err != nil {
			c.logger.WarnContext(ctx, "executor: publish execution failed",
				slog.String("opportunity_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if c.audit != nil {
		if err := c.audit.Log(ctx, "arbitrage_executed", map[string]any{
			"opportunity_id":      opp.ID,
			"strategy":            string(opp.Strategy),
			"hedge":               opp.Description(),
			"success":             res.Success,
			"kalshi_order_id":     res.KalshiOrderID,
			"polymarket_order_id": res.PolymarketOrderID,
			"error":               res.Error,
		}); err != nil {
			c.logger.WarnContext(ctx, "executor: audit log failed",
				slog.String("opportunity_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func setOrderID(r *domain.TradeResult, v domain.Venue, id string) {
	switch v {
	case domain.VenueKalshi:
		r.KalshiOrderID = id
	case domain.VenuePolymarket:
		r.PolymarketOrderID = id
	}
}
