package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/crossbot/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes with a TTL.
// Expiry is owned here: a quote that outlives the TTL simply vanishes and
// the scanner falls back to the venue REST API.
//
// Key schema:
//
//	quote:{venue}:{eventID} - hash with fields "yes", "no", "liq", "ts"
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache whose entries expire after ttl.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(venue domain.Venue, eventID string) string {
	return "quote:" + string(venue) + ":" + eventID
}

// SetQuote stores a quote with the cache TTL.
func (qc *QuoteCache) SetQuote(ctx context.Context, venue domain.Venue, eventID string, q domain.MarketQuote, ts time.Time) error {
	key := quoteKey(venue, eventID)
	fields := map[string]interface{}{
		"yes": strconv.FormatFloat(q.YesPrice, 'f', -1, 64),
		"no":  strconv.FormatFloat(q.NoPrice, 'f', -1, 64),
		"liq": strconv.FormatFloat(q.Liquidity, 'f', -1, 64),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, qc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", venue, eventID, err)
	}
	return nil
}

// GetQuote retrieves a cached quote and its write timestamp. It returns
// domain.ErrNotFound when the entry is missing or expired.
func (qc *QuoteCache) GetQuote(ctx context.Context, venue domain.Venue, eventID string) (domain.MarketQuote, time.Time, error) {
	key := quoteKey(venue, eventID)
	vals, err := qc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.MarketQuote{}, time.Time{}, fmt.Errorf("redis: get quote %s/%s: %w", venue, eventID, err)
	}
	if len(vals) == 0 {
		return domain.MarketQuote{}, time.Time{}, domain.ErrNotFound
	}

	q, err := parseQuoteFields(vals)
	if err != nil {
		return domain.MarketQuote{}, time.Time{}, fmt.Errorf("redis: quote %s/%s: %w", venue, eventID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.MarketQuote{}, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.MarketQuote{}, time.Time{}, fmt.Errorf("redis: quote %s/%s: parse ts: %w", venue, eventID, err)
	}

	return q, time.Unix(0, tsNano), nil
}

func parseQuoteFields(vals map[string]string) (domain.MarketQuote, error) {
	var q domain.MarketQuote
	var err error

	if q.YesPrice, err = strconv.ParseFloat(vals["yes"], 64); err != nil {
		return domain.MarketQuote{}, fmt.Errorf("parse yes: %w", err)
	}
	if q.NoPrice, err = strconv.ParseFloat(vals["no"], 64); err != nil {
		return domain.MarketQuote{}, fmt.Errorf("parse no: %w", err)
	}
	if q.Liquidity, err = strconv.ParseFloat(vals["liq"], 64); err != nil {
		return domain.MarketQuote{}, fmt.Errorf("parse liq: %w", err)
	}
	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
