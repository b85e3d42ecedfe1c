package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossbot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id, strategy, kalshi_event_id, poly_event_id,
	match_score, total_cost, gross_profit, total_fees, net_profit, roi_percent,
	detected_at, executed, executed_at, exec_success, exec_error`

func scanOpportunityRows(rows pgx.Rows) ([]domain.OpportunityRecord, error) {
	var recs []domain.OpportunityRecord
	for rows.Next() {
		var rec domain.OpportunityRecord
		var strategy string
		var execErr *string

		if err := rows.Scan(
			&rec.ID, &strategy, &rec.KalshiEventID, &rec.PolyEventID,
			&rec.MatchScore, &rec.TotalCost, &rec.GrossProfit,
			&rec.TotalFees, &rec.NetProfit, &rec.ROIPercent,
			&rec.DetectedAt, &rec.Executed, &rec.ExecutedAt, &rec.ExecSuccess, &execErr,
		); err != nil {
			return nil, err
		}
		rec.Strategy = domain.Strategy(strategy)
		if execErr != nil {
			rec.ExecError = *execErr
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Insert stores a newly detected opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, rec domain.OpportunityRecord) error {
	const query = `
		INSERT INTO opportunities (
			id, strategy, kalshi_event_id, poly_event_id,
			match_score, total_cost, gross_profit, total_fees, net_profit, roi_percent,
			detected_at, executed, executed_at, exec_success, exec_error
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)`

	var execErr *string
	if rec.ExecError != "" {
		execErr = &rec.ExecError
	}

	_, err := s.pool.Exec(ctx, query,
		rec.ID, string(rec.Strategy), rec.KalshiEventID, rec.PolyEventID,
		rec.MatchScore, rec.TotalCost, rec.GrossProfit,
		rec.TotalFees, rec.NetProfit, rec.ROIPercent,
		rec.DetectedAt, rec.Executed, rec.ExecutedAt, rec.ExecSuccess, execErr,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", rec.ID, err)
	}
	return nil
}

// MarkExecuted records the execution outcome of an opportunity. An empty
// execErr means both legs filled.
func (s *OpportunityStore) MarkExecuted(ctx context.Context, id string, success bool, execErr string) error {
	const query = `
		UPDATE opportunities SET
			executed     = TRUE,
			executed_at  = NOW(),
			exec_success = $2,
			exec_error   = $3
		WHERE id = $1`

	var errText *string
	if execErr != "" {
		errText = &execErr
	}

	tag, err := s.pool.Exec(ctx, query, id, success, errText)
	if err != nil {
		return fmt.Errorf("postgres: mark opportunity executed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListRecent returns the most recent opportunities ordered by detection time.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.OpportunityRecord, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities ORDER BY detected_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	recs, err := scanOpportunityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opportunities: %w", err)
	}
	return recs, nil
}

// ListBefore returns all opportunities detected before the given time,
// oldest first. The archiver uses this to page cold rows out to blob storage.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.OpportunityRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+opportunitySelectCols+` FROM opportunities
		 WHERE detected_at < $1
		 ORDER BY detected_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	recs, err := scanOpportunityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opportunities: %w", err)
	}
	return recs, nil
}
