package tempo

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/tempo-deck/internal/metrics"
)

// DefaultMinInterval is the minimum gap between two non-forced fetches.
const DefaultMinInterval = 30 * time.Second

// Cache holds the last fetched snapshot behind a mutex.
// Refresh is not meant to be called concurrently with itself; callers
// serialise refreshes. Snapshot is safe to call at any time.
type Cache struct {
	mu          sync.Mutex
	snap        Snapshot
	minInterval time.Duration
}

// NewCache creates an empty cache. A non-positive minInterval selects
// DefaultMinInterval.
func NewCache(minInterval time.Duration) *Cache {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Cache{
		snap:        EmptySnapshot(),
		minInterval: minInterval,
	}
}

// MinInterval returns the configured throttle.
func (c *Cache) MinInterval() time.Duration {
	return c.minInterval
}

// ShouldRefresh reports whether a fetch is due at now.
func (c *Cache) ShouldRefresh(now time.Time, force bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldRefreshLocked(now, force)
}

func (c *Cache) shouldRefreshLocked(now time.Time, force bool) bool {
	if force || c.snap.FetchedAt.IsZero() {
		return true
	}
	return now.Sub(c.snap.FetchedAt) >= c.minInterval
}

// Snapshot returns a copy of the current snapshot.
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	s := c.snap
	c.mu.Unlock()
	s.Stats = s.Stats.Clone()
	return s
}

// Refresh fetches from src when a refresh is due and returns the resulting
// snapshot. When not due it returns the current snapshot without I/O.
//
// A primary failure keeps the previous colours and stats, records the
// failure in LastError and is returned. A secondary failure is ignored.
// FetchedAt moves to now whenever a fetch was attempted.
func (c *Cache) Refresh(ctx context.Context, now time.Time, force bool, src Source) (Snapshot, error) {
	if !c.ShouldRefresh(now, force) {
		return c.Snapshot(), nil
	}

	reading, err := src.FetchPrimary(ctx)
	if err != nil {
		c.mu.Lock()
		c.snap.LastError = err.Error()
		c.touchLocked(now)
		c.mu.Unlock()
		return c.Snapshot(), err
	}

	stats := reading.Stats.filter()
	if len(stats) == 0 {
		secondary, serr := src.FetchSecondary(ctx)
		metrics.RecordStatsFallback(serr)
		if serr == nil {
			stats = secondary.filter()
		}
	}
	if stats == nil {
		stats = Stats{}
	}

	c.mu.Lock()
	c.snap.Today = Normalize(reading.Today)
	c.snap.Tomorrow = Normalize(reading.Tomorrow)
	c.snap.Yesterday = Normalize(reading.Yesterday)
	c.snap.Stats = stats
	c.snap.LastError = reading.LastError
	c.touchLocked(now)
	c.mu.Unlock()

	return c.Snapshot(), nil
}

func (c *Cache) touchLocked(now time.Time) {
	if now.Before(c.snap.FetchedAt) {
		return
	}
	c.snap.FetchedAt = now
}

// filter drops keys outside StatKeys and returns a deep copy.
func (s Stats) filter() Stats {
	if len(s) == 0 {
		return nil
	}
	out := make(Stats, len(StatKeys))
	for _, k := range StatKeys {
		if v, ok := s[k]; ok {
			out[k] = DayCount{Used: cloneInt(v.Used), Left: cloneInt(v.Left)}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
