package executor

import (
	"sync"
	"time"

	"github.com/alanyoungcy/crossbot/internal/domain"
)

// Cooldown suppresses repeat executions of the same event pair inside a
// time-to-live window. Matched pairs persist across scans, so without it
// every sweep would re-execute a still-open hedge. Safe for concurrent use.
type Cooldown struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

// NewCooldown creates a cooldown with the given window.
func NewCooldown(ttl time.Duration) *Cooldown {
	return &Cooldown{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// PairKey derives the cooldown key for one matched cross-venue pair.
func PairKey(a, b domain.Event) string {
	return string(a.Venue) + ":" + a.ID + "|" + string(b.Venue) + ":" + b.ID
}

// Throttled reports whether the key fired within the window. A key that is
// unseen or expired is recorded as firing now and reported free.
func (c *Cooldown) Throttled(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if last, ok := c.seen[key]; ok && now.Sub(last) < c.ttl {
		return true
	}
	c.seen[key] = now
	return false
}

// Sweep drops expired entries. Call periodically to bound memory.
func (c *Cooldown) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, ts := range c.seen {
		if now.Sub(ts) >= c.ttl {
			delete(c.seen, key)
		}
	}
}
