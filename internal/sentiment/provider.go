package sentiment

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nflpicks/engine/internal/metrics"
	"nflpicks/engine/internal/models"
)

// Source produces a live report
type Source interface {
	Scrape(ctx context.Context) (*models.SentimentReport, error)
}

// StaticReport is the neutral report served when neither live nor cached data is usable
func StaticReport() *models.SentimentReport {
	return &models.SentimentReport{
		Teams:      map[string]models.TeamSentiment{},
		Confidence: models.ConfidenceLow,
		Provenance: models.Provenance{
			Sources: []string{"static"},
			Tier:    models.TierStatic,
		},
	}
}

// Provider resolves sentiment through live -> cache -> static and never fails a read
type Provider struct {
	cache      *Cache
	source     Source
	catalog    []models.Team
	liveWindow time.Duration
	logger     zerolog.Logger

	mu sync.Mutex // one scrape at a time
}

// NewProvider creates a provider. Entries younger than liveWindow are served as live.
func NewProvider(cache *Cache, source Source, catalog []models.Team, liveWindow time.Duration) *Provider {
	if len(catalog) == 0 {
		catalog = models.NFLTeams
	}
	return &Provider{
		cache:      cache,
		source:     source,
		catalog:    catalog,
		liveWindow: liveWindow,
		logger:     log.With().Str("component", "sentiment_provider").Logger(),
	}
}

// Cache returns the underlying cache
func (p *Provider) Cache() *Cache {
	return p.cache
}

// Current returns the best available report. It never blocks on a scrape.
func (p *Provider) Current() *models.SentimentReport {
	entry := p.cache.Current()
	if entry != nil && entry.Report != nil && p.cache.Fresh() {
		tier := models.TierCache
		if age, _ := p.cache.Age(); age < p.liveWindow {
			tier = models.TierLive
		}
		metrics.RecordSentimentServed(string(tier))
		return entry.Report.WithTier(tier)
	}

	metrics.RecordSentimentServed(string(models.TierStatic))
	return StaticReport()
}

// Matchup returns the social view of a game from the current report
func (p *Provider) Matchup(home, away string) models.MatchupPicks {
	return Matchup(p.Current(), p.catalog, home, away)
}

// Refresh scrapes and, on success, replaces the cache entry. On failure the
// previous entry is left untouched.
func (p *Provider) Refresh(ctx context.Context) (*models.SentimentReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report, err := p.source.Scrape(ctx)
	if err != nil {
		return nil, err
	}
	entry := p.cache.Replace(report)

	p.logger.Info().
		Int("mentions", report.TotalMentions).
		Int64("total_posts", entry.TotalPosts).
		Int64("total_comments", entry.TotalComments).
		Msg("Sentiment cache replaced")
	return report, nil
}

// ForceUpdate runs a blocking refresh on behalf of an administrative caller
func (p *Provider) ForceUpdate(ctx context.Context) (*models.SentimentReport, error) {
	p.logger.Info().Msg("Forced sentiment update requested")
	report, err := p.Refresh(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Forced sentiment update failed")
		return nil, err
	}
	return report, nil
}
