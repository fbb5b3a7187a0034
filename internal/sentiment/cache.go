package sentiment

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nflpicks/engine/internal/metrics"
	"nflpicks/engine/internal/models"
)

// DefaultFreshness is how long a cached report is preferred over the static fallback
const DefaultFreshness = 24 * time.Hour

// Entry is the unit persisted by a Store
type Entry struct {
	Report        *models.SentimentReport `json:"report"`
	SavedAt       time.Time               `json:"saved_at"`
	TotalPosts    int64                   `json:"total_posts_analyzed"`
	TotalComments int64                   `json:"total_comments_analyzed"`
}

// Store persists the cache entry between process runs
type Store interface {
	Load(ctx context.Context) (*Entry, error)
	Save(ctx context.Context, entry *Entry) error
	Name() string
}

// Cache holds the last successful report. Readers get the current entry
// without locking; writers swap in a fully built entry.
type Cache struct {
	store     Store
	clock     clockwork.Clock
	freshness time.Duration
	logger    zerolog.Logger

	entry atomic.Pointer[Entry]
	dirty atomic.Bool
	mu    sync.Mutex // serialises writers
}

// NewCache creates a cache over store. freshness <= 0 means DefaultFreshness.
func NewCache(store Store, clock clockwork.Clock, freshness time.Duration) *Cache {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return &Cache{
		store:     store,
		clock:     clock,
		freshness: freshness,
		logger:    log.With().Str("component", "sentiment_cache").Str("backend", store.Name()).Logger(),
	}
}

// Load reads the persisted entry into memory. A missing entry is not an error.
func (c *Cache) Load(ctx context.Context) error {
	start := time.Now()
	entry, err := c.store.Load(ctx)
	metrics.RecordCacheOperation(c.store.Name(), "load", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordError("sentiment_cache", "load")
		return fmt.Errorf("failed to load sentiment cache: %w", err)
	}
	if entry == nil || entry.Report == nil {
		c.logger.Info().Msg("No persisted sentiment report")
		return nil
	}

	c.mu.Lock()
	c.entry.Store(entry)
	c.dirty.Store(false)
	c.mu.Unlock()

	c.logger.Info().
		Time("saved_at", entry.SavedAt).
		Dur("age", c.clock.Since(entry.SavedAt)).
		Int64("total_posts", entry.TotalPosts).
		Msg("Sentiment cache loaded")
	return nil
}

// Current returns the current entry or nil
func (c *Cache) Current() *Entry {
	return c.entry.Load()
}

// Replace swaps in report and adds its volumes to the cumulative counters
func (c *Cache) Replace(report *models.SentimentReport) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := &Entry{Report: report, SavedAt: c.clock.Now().UTC()}
	if prev := c.entry.Load(); prev != nil {
		next.TotalPosts = prev.TotalPosts
		next.TotalComments = prev.TotalComments
	}
	next.TotalPosts += int64(report.PostsAnalyzed)
	next.TotalComments += int64(report.CommentsAnalyzed)

	c.entry.Store(next)
	c.dirty.Store(true)
	metrics.SentimentCacheAge.Set(0)
	return next
}

// Age returns the time since the entry was saved, or false when empty
func (c *Cache) Age() (time.Duration, bool) {
	entry := c.entry.Load()
	if entry == nil {
		return 0, false
	}
	return c.clock.Since(entry.SavedAt), true
}

// Fresh reports whether the entry is younger than the freshness bound
func (c *Cache) Fresh() bool {
	age, ok := c.Age()
	if ok {
		metrics.SentimentCacheAge.Set(age.Seconds())
	}
	return ok && age < c.freshness
}

// Freshness returns the configured bound
func (c *Cache) Freshness() time.Duration {
	return c.freshness
}

// Flush persists the entry if it changed since the last flush
func (c *Cache) Flush(ctx context.Context) error {
	if !c.dirty.Load() {
		return nil
	}
	entry := c.entry.Load()
	if entry == nil {
		return nil
	}

	start := time.Now()
	err := c.store.Save(ctx, entry)
	metrics.RecordCacheOperation(c.store.Name(), "save", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordError("sentiment_cache", "save")
		return fmt.Errorf("failed to flush sentiment cache: %w", err)
	}

	// a Replace during Save leaves the flag set for the next flush
	c.mu.Lock()
	if c.entry.Load() == entry {
		c.dirty.Store(false)
	}
	c.mu.Unlock()
	c.logger.Debug().Time("saved_at", entry.SavedAt).Msg("Sentiment cache flushed")
	return nil
}

// Close performs the shutdown flush
func (c *Cache) Close(ctx context.Context) error {
	return c.Flush(ctx)
}
