package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrNoNews is returned when no news scalar has been fetched or the last one
// is older than the cache's max age.
var ErrNoNews = errors.New("no recent news sentiment")

// NewsFetcher returns one aggregate news sentiment scalar
type NewsFetcher interface {
	LatestSentiment(ctx context.Context) (float64, error)
}

// NewsCache holds the last news sentiment scalar so predictions never touch
// the network. Refresh is called once per scheduler tick.
type NewsCache struct {
	source NewsFetcher
	clock  clockwork.Clock
	maxAge time.Duration

	mu        sync.RWMutex
	value     float64
	fetchedAt time.Time
	loaded    bool
}

// NewNewsCache creates a cache over source. A non-positive maxAge never expires.
func NewNewsCache(source NewsFetcher, clock clockwork.Clock, maxAge time.Duration) *NewsCache {
	return &NewsCache{source: source, clock: clock, maxAge: maxAge}
}

// Refresh fetches a new scalar. On failure the previous value is kept.
func (n *NewsCache) Refresh(ctx context.Context) error {
	v, err := n.source.LatestSentiment(ctx)
	if err != nil {
		return fmt.Errorf("refreshing news sentiment: %w", err)
	}

	n.mu.Lock()
	n.value = v
	n.fetchedAt = n.clock.Now()
	n.loaded = true
	n.mu.Unlock()

	log.Debug().Float64("news_sentiment", v).Msg("News sentiment refreshed")
	return nil
}

// LatestSentiment returns the cached scalar without network I/O
func (n *NewsCache) LatestSentiment(ctx context.Context) (float64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.loaded {
		return 0, ErrNoNews
	}
	if n.maxAge > 0 && n.clock.Since(n.fetchedAt) > n.maxAge {
		return 0, fmt.Errorf("%w: fetched %s ago", ErrNoNews, n.clock.Since(n.fetchedAt).Round(time.Second))
	}
	return n.value, nil
}
