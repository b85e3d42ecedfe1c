package domain

import (
	"context"
	"time"
)

// OpportunityRecord is the persisted form of a detected opportunity,
// annotated with the matched pair it came from and its execution outcome.
// History only: the in-memory pipeline never reads these rows back.
type OpportunityRecord struct {
	ID            string
	Strategy      Strategy
	KalshiEventID string
	PolyEventID   string
	MatchScore    float64
	TotalCost     float64
	GrossProfit   float64
	TotalFees     float64
	NetProfit     float64
	ROIPercent    float64
	DetectedAt    time.Time
	Executed      bool
	ExecutedAt    *time.Time
	ExecSuccess   *bool
	ExecError     string
}

// OpportunityStore persists detected-opportunity history.
type OpportunityStore interface {
	Insert(ctx context.Context, rec OpportunityRecord) error
	MarkExecuted(ctx context.Context, id string, success bool, execErr string) error
	ListRecent(ctx context.Context, limit int) ([]OpportunityRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]OpportunityRecord, error)
}

// SettlementStore archives positions after the reconciler settles them.
type SettlementStore interface {
	Insert(ctx context.Context, pos Position) error
	ListBefore(ctx context.Context, before time.Time) ([]Position, error)
	ProfitByVenue(ctx context.Context, venue Venue) (float64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, limit int) ([]AuditEntry, error)
}
