package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"nflpicks/engine/internal/api"
	"nflpicks/engine/internal/client"
	"nflpicks/engine/internal/config"
	"nflpicks/engine/internal/features"
	"nflpicks/engine/internal/metrics"
	"nflpicks/engine/internal/predictor"
	"nflpicks/engine/internal/repository"
	"nflpicks/engine/internal/scheduler"
	"nflpicks/engine/internal/sentiment"
	"nflpicks/engine/internal/stats"
)

const (
	shutdownTimeout   = 15 * time.Second
	defaultLiveWindow = time.Hour
)

func main() {
	// Load configuration
	cfg := config.MustLoad()
	setupLogger(cfg)

	log.Info().Msg("Starting NFL Picks prediction worker")
	log.Info().
		Str("env", cfg.AppEnv).
		Str("log_level", cfg.LogLevel).
		Str("cache_backend", cfg.CacheBackend).
		Str("predictor_mode", cfg.PredictorMode).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Worker exited with error")
	}
	log.Info().Msg("Worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	clock := clockwork.NewRealClock()

	// Initialize database connection
	db, err := repository.NewDatabase(ctx, cfg.DatabaseDSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Sentiment cache, loaded once before anything reads it
	store, redisClient, err := sentiment.NewStore(cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := sentiment.NewCache(store, clock, cfg.CacheFreshness)
	if err := cache.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to load sentiment cache, starting empty")
	}

	policy := sentiment.DefaultPolicy()
	if cfg.SentimentPolicyFile != "" {
		if policy, err = sentiment.LoadPolicy(cfg.SentimentPolicyFile); err != nil {
			return err
		}
	}
	scraper := sentiment.NewScraper(sentiment.NewScraperConfig(cfg), sentiment.NewAnalyzer(policy), clock)

	liveWindow, err := scheduler.Period(cfg.SentimentRefreshCron, clock.Now())
	if err != nil {
		log.Warn().Err(err).Dur("live_window", defaultLiveWindow).Msg("Using default live window")
		liveWindow = defaultLiveWindow
	}
	provider := sentiment.NewProvider(cache, scraper, nil, liveWindow)

	// ESPN client for scores and news
	espn := client.NewClient(cfg.ESPNBaseURL, cfg.ESPNTimeout)
	log.Info().Str("base_url", cfg.ESPNBaseURL).Msg("ESPN client initialized")

	// News is fetched on scheduler ticks only; predictions read the cached scalar
	newsMaxAge := max(cfg.NewsMaxAge, 2*liveWindow)
	if !cfg.EnableScheduler {
		newsMaxAge = 0
	}
	news := client.NewNewsCache(espn, clock, newsMaxAge)
	if !cfg.EnableScheduler {
		if err := news.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("News sentiment unavailable, predictions use neutral news")
		}
	}

	builder := features.NewBuilder(stats.NewAggregator(db.Games), news, provider)
	engine, err := predictor.New(cfg, predictor.Deps{
		Games:       db.Games,
		Predictions: db.Predictions,
		Features:    builder,
	})
	if err != nil {
		return err
	}
	log.Info().Str("engine", engine.Name()).Msg("Prediction engine selected")

	sched := scheduler.NewScheduler(scheduler.OptionsFromConfig(cfg), provider, espn, db.Games, clock)
	sched.SetNews(news)

	deps := api.Deps{
		Games:       db.Games,
		Predictions: db.Predictions,
		Engine:      engine,
		Sentiment:   provider,
		Breaker:     scraper,
		Health:      db,

		ExposeMetrics: cfg.EnableMetrics,
	}
	if cfg.EnableScheduler {
		deps.Jobs = sched
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.NewServer(deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.EnableScheduler {
		log.Info().Msg("Starting scheduler...")
		if err := sched.Start(gctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	if cfg.InitialSyncEnabled {
		g.Go(func() error {
			season := seasonFor(clock.Now())
			n, err := backfillSeason(gctx, espn, db.Games, season)
			if err != nil {
				log.Error().Err(err).Int("season", season).Msg("Season backfill failed, continuing anyway...")
				return nil
			}
			log.Info().Int("season", season).Int("games", n).Msg("Season backfill completed")
			if err := engine.Train(gctx); err != nil {
				log.Warn().Err(err).Msg("Initial training failed, predictions will fall back until enough games exist")
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		reportUptime(gctx, db)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Received shutdown signal, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}

		log.Info().Msg("Shutting down scheduler...")
		if cfg.EnableScheduler {
			return sched.Stop()
		}
		return cache.Close(shutdownCtx)
	})

	return g.Wait()
}

// setupLogger configures the zerolog logger
func setupLogger(cfg *config.Config) {
	// Pretty console logging in development
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	// Set log level
	level := zerolog.InfoLevel
	if parsedLevel, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		level = parsedLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}

// reportUptime publishes uptime and pool gauges until ctx is cancelled
func reportUptime(ctx context.Context, db *repository.Database) {
	startTime := time.Now()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.SystemUptime.Set(time.Since(startTime).Seconds())
			db.PublishPoolStats()
		case <-ctx.Done():
			return
		}
	}
}
