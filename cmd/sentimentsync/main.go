// NFL Picks Sentiment Sync
//
// Scrapes the configured community channels once, stores the report in the
// configured cache backend and exits. Intended for manual runs and for seeding
// the cache before the worker starts.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"nflpicks/engine/internal/config"
	"nflpicks/engine/internal/models"
	"nflpicks/engine/internal/sentiment"
)

const flushTimeout = 30 * time.Second

// Refresher scrapes once and replaces the cache entry
type Refresher interface {
	Refresh(ctx context.Context) (*models.SentimentReport, error)
	Cache() *sentiment.Cache
}

// SentimentSync runs a single scrape and persists it
type SentimentSync struct {
	provider Refresher
	logger   *zap.Logger
}

// NewSentimentSync creates a new sync run
func NewSentimentSync(provider Refresher, logger *zap.Logger) *SentimentSync {
	return &SentimentSync{provider: provider, logger: logger}
}

// Sync scrapes once and flushes the result. A failed scrape leaves the
// stored entry untouched.
func (s *SentimentSync) Sync(ctx context.Context) (*models.SentimentReport, error) {
	start := time.Now()
	report, err := s.provider.Refresh(ctx)
	if err != nil {
		if errors.Is(err, sentiment.ErrCircuitOpen) {
			s.logger.Error("Scraping short-circuited, keeping previous entry", zap.Error(err))
		} else {
			s.logger.Error("Scrape failed, keeping previous entry", zap.Error(err))
		}
		return nil, err
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.provider.Cache().Flush(flushCtx); err != nil {
		return nil, fmt.Errorf("flushing sentiment cache: %w", err)
	}

	s.logger.Info("Sentiment sync complete",
		zap.Int("posts", report.PostsAnalyzed),
		zap.Int("comments", report.CommentsAnalyzed),
		zap.Int("mentions", report.TotalMentions),
		zap.Int("teams", len(report.Teams)),
		zap.String("confidence", string(report.Confidence)),
		zap.String("fingerprint", report.Provenance.Fingerprint),
		zap.Duration("elapsed", time.Since(start)),
	)
	for team, ts := range report.Teams {
		s.logger.Debug("Team sentiment",
			zap.String("team", team),
			zap.Int("mentions", ts.Mentions),
			zap.Float64("popularity", ts.Popularity),
			zap.Strings("sources", ts.Sources),
		)
	}
	return report, nil
}

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}

	code := run(logger)
	_ = logger.Sync()
	os.Exit(code)
}

// run performs one sync and returns the process exit code. Deferred cleanup
// runs before main exits.
func run(logger *zap.Logger) int {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, redisClient, err := sentiment.NewStore(cfg)
	if err != nil {
		logger.Error("Failed to open sentiment cache", zap.Error(err))
		return 1
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	clock := clockwork.NewRealClock()
	cache := sentiment.NewCache(store, clock, cfg.CacheFreshness)
	if err := cache.Load(ctx); err != nil {
		logger.Warn("Failed to load existing entry", zap.Error(err))
	}

	policy := sentiment.DefaultPolicy()
	if cfg.SentimentPolicyFile != "" {
		if policy, err = sentiment.LoadPolicy(cfg.SentimentPolicyFile); err != nil {
			logger.Error("Failed to load sentiment policy", zap.String("path", cfg.SentimentPolicyFile), zap.Error(err))
			return 1
		}
	}

	scraper := sentiment.NewScraper(sentiment.NewScraperConfig(cfg), sentiment.NewAnalyzer(policy), clock)
	provider := sentiment.NewProvider(cache, scraper, nil, 0)

	logger.Info("Starting Sentiment Sync",
		zap.Strings("channels", cfg.SentimentChannels),
		zap.String("backend", store.Name()),
		zap.Duration("min_interval", cfg.SentimentMinInterval))

	_, err = NewSentimentSync(provider, logger).Sync(ctx)
	logger.Info("Scraper finished",
		zap.Int64("requests", scraper.Requests()),
		zap.String("breaker", scraper.BreakerState()))
	if err != nil {
		return 1
	}
	return 0
}
