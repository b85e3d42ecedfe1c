// Package ledger is the authoritative in-memory record of every position the
// coordinator has opened. A single mutex guards the position map; every
// operation completes synchronously under it and none performs I/O, so the
// guard is never held across an external call. Callers that need to mix
// ledger state with venue I/O snapshot first, release, then commit results
// through Settle.
package ledger

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/google/uuid"
)

// Ledger holds positions keyed by generated id. The zero value is not
// usable; construct with New. Safe for concurrent use.
type Ledger struct {
	logger *slog.Logger

	mu        sync.Mutex
	positions map[string]domain.Position
}

// New creates an empty ledger.
func New(logger *slog.Logger) *Ledger {
	return &Ledger{
		logger:    logger.With(slog.String("component", "ledger")),
		positions: make(map[string]domain.Position),
	}
}

// NewPosition builds an Open position for one filled hedge leg. The id is
// the venue name plus a short random suffix so operators can tell at a
// glance which side of a hedge a position sits on.
func NewPosition(venue domain.Venue, event domain.Event, outcome domain.Outcome, shares, cost, price float64, orderID string) domain.Position {
	return domain.Position{
		ID:         fmt.Sprintf("%s_%s", venue, uuid.Must(uuid.NewRandom()).String()[:8]),
		Venue:      venue,
		EventID:    event.ID,
		EventTitle: event.Title,
		Outcome:    outcome,
		Shares:     shares,
		Cost:       cost,
		EntryPrice: price,
		OrderID:    orderID,
		Status:     domain.PositionOpen,
		OpenedAt:   time.Now().UTC(),
	}
}

// Add records a position. The ledger owns the record from here on; callers
// keep only their value copy.
func (l *Ledger) Add(p domain.Position) {
	l.mu.Lock()
	l.positions[p.ID] = p
	l.mu.Unlock()

	l.logger.Info("position tracked",
		slog.String("position_id", p.ID),
		slog.String("venue", string(p.Venue)),
		slog.String("event", p.EventTitle),
		slog.String("outcome", string(p.Outcome)),
		slog.Float64("shares", p.Shares),
		slog.Float64("entry_price", p.EntryPrice),
	)
}

// Open returns all positions still awaiting settlement, in unspecified
// order.
func (l *Ledger) Open() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	var open []domain.Position
	for _, p := range l.positions {
		if p.Status == domain.PositionOpen {
			open = append(open, p)
		}
	}
	return open
}

// All returns every position the ledger has ever recorded, in unspecified
// order.
func (l *Ledger) All() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	all := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		all = append(all, p)
	}
	return all
}

// ByVenue returns every position opened on the given venue, in unspecified
// order.
func (l *Ledger) ByVenue(venue domain.Venue) []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.Position
	for _, p := range l.positions {
		if p.Venue == venue {
			out = append(out, p)
		}
	}
	return out
}

// Get returns a copy of the position with the given id.
func (l *Ledger) Get(id string) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[id]
	return p, ok
}

// Settle moves an Open position to Won or Lost and returns the realized
// profit. Unknown ids and already-terminal positions both return
// domain.ErrNotFound: a position settles exactly once.
func (l *Ledger) Settle(id string, won bool, payout float64) (float64, error) {
	l.mu.Lock()
	pos, ok := l.positions[id]
	if !ok || pos.Status.Terminal() {
		l.mu.Unlock()
		return 0, fmt.Errorf("ledger: settle %q: %w", id, domain.ErrNotFound)
	}

	now := time.Now().UTC()
	var profit float64
	if won {
		pos.Status = domain.PositionWon
		profit = pos.ProfitIfWon()
	} else {
		pos.Status = domain.PositionLost
		profit = pos.ProfitIfLost()
	}
	pos.SettledAt = &now
	pos.Payout = &payout
	pos.Profit = &profit
	l.positions[id] = pos
	l.mu.Unlock()

	l.logger.Info("position settled",
		slog.String("position_id", id),
		slog.String("event", pos.EventTitle),
		slog.String("result", string(pos.Status)),
		slog.Float64("payout", payout),
		slog.Float64("profit", profit),
	)
	return profit, nil
}

// Stats computes the aggregate view on demand from the full position set,
// so it is always consistent with current ledger contents.
func (l *Ledger) Stats() domain.LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := domain.LedgerStats{Total: len(l.positions)}
	for _, p := range l.positions {
		switch p.Status {
		case domain.PositionOpen:
			stats.Open++
		case domain.PositionWon:
			stats.Won++
		case domain.PositionLost:
			stats.Lost++
		}
		if p.Profit != nil {
			stats.TotalProfit += *p.Profit
		}
	}
	return stats
}

// ProfitByVenue sums realized profit across settled positions on one venue.
func (l *Ledger) ProfitByVenue(venue domain.Venue) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, p := range l.positions {
		if p.Venue == venue && p.Profit != nil {
			total += *p.Profit
		}
	}
	return total
}
