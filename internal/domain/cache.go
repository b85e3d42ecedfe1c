package domain

import (
	"context"
	"time"
)

// QuoteCache stores recent venue quotes so a scan sweep does not hammer the
// REST endpoints for prices the ticker feed already delivered.
type QuoteCache interface {
	SetQuote(ctx context.Context, venue Venue, eventID string, q MarketQuote, ts time.Time) error
	// GetQuote returns ErrNotFound on a miss.
	GetQuote(ctx context.Context, venue Venue, eventID string) (MarketQuote, time.Time, error)
}

// StreamMessage represents a single entry read from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus publishes pipeline events (opportunities, executions,
// settlements) to external consumers over ephemeral pub/sub channels and
// durable ordered streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter provides distributed rate limiting for venue API calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking, used to keep scan sweeps
// single-flight across bot replicas.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
