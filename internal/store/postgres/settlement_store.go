package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossbot/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
// Rows arrive from the reconciler once a position reaches a terminal state;
// the live ledger never reads them back.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore backed by the given
// connection pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

const settlementSelectCols = `id, venue, event_id, event_title, outcome,
	shares, cost, entry_price, order_id,
	status, opened_at, settled_at, payout, profit`

func scanSettlementRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var venue, outcome, status string

		if err := rows.Scan(
			&p.ID, &venue, &p.EventID, &p.EventTitle, &outcome,
			&p.Shares, &p.Cost, &p.EntryPrice, &p.OrderID,
			&status, &p.OpenedAt, &p.SettledAt, &p.Payout, &p.Profit,
		); err != nil {
			return nil, err
		}
		p.Venue = domain.Venue(venue)
		p.Outcome = domain.Outcome(outcome)
		p.Status = domain.PositionStatus(status)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Insert archives a settled position.
func (s *SettlementStore) Insert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO settlements (
			id, venue, event_id, event_title, outcome,
			shares, cost, entry_price, order_id,
			status, opened_at, settled_at, payout, profit
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		p.ID, string(p.Venue), p.EventID, p.EventTitle, string(p.Outcome),
		p.Shares, p.Cost, p.EntryPrice, p.OrderID,
		string(p.Status), p.OpenedAt, p.SettledAt, p.Payout, p.Profit,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settlement %s: %w", p.ID, err)
	}
	return nil
}

// ListBefore returns settlements whose positions settled before the given
// time, oldest first. The archiver uses this to page cold rows out to blob
// storage.
func (s *SettlementStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+settlementSelectCols+` FROM settlements
		 WHERE settled_at < $1
		 ORDER BY settled_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	positions, err := scanSettlementRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settlements: %w", err)
	}
	return positions, nil
}

// ProfitByVenue returns the total realized profit across all settlements on
// the given venue.
func (s *SettlementStore) ProfitByVenue(ctx context.Context, venue domain.Venue) (float64, error) {
	var sum float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(profit), 0) FROM settlements WHERE venue = $1`,
		string(venue),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum settlement profit for %s: %w", venue, err)
	}
	return sum, nil
}
