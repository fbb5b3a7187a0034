// Command manualfetch predicts every upcoming game that has no prediction yet.
// Predictions are idempotent per game, so reruns are safe.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"nflpicks/engine/internal/client"
	"nflpicks/engine/internal/config"
	"nflpicks/engine/internal/features"
	"nflpicks/engine/internal/models"
	"nflpicks/engine/internal/predictor"
	"nflpicks/engine/internal/repository"
	"nflpicks/engine/internal/sentiment"
	"nflpicks/engine/internal/stats"
)

func main() {
	if !run() {
		os.Exit(1)
	}
}

// run predicts every unpredicted game and reports whether all succeeded
func run() bool {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := config.MustLoad()

	db, err := repository.NewDatabase(ctx, cfg.DatabaseDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// 1. Validate database connectivity
	log.Info().Msg("Validating service health...")
	if err := db.Health(ctx); err != nil {
		log.Fatal().Err(err).Msg("Database health check failed")
	}

	// 2. Sentiment comes from the cache only; this tool never scrapes
	store, redisClient, err := sentiment.NewStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open sentiment cache")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := sentiment.NewCache(store, clockwork.NewRealClock(), cfg.CacheFreshness)
	if err := cache.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("Sentiment cache unavailable, using neutral sentiment")
	}
	provider := sentiment.NewProvider(cache, nil, nil, 0)

	// News is fetched once for the whole run
	espn := client.NewClient(cfg.ESPNBaseURL, cfg.ESPNTimeout)
	news := client.NewNewsCache(espn, clockwork.NewRealClock(), 0)
	if err := news.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("News sentiment unavailable, using neutral news")
	}
	engine, err := predictor.New(cfg, predictor.Deps{
		Games:       db.Games,
		Predictions: db.Predictions,
		Features:    features.NewBuilder(stats.NewAggregator(db.Games), news, provider),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create prediction engine")
	}

	// 3. Fetch games needing predictions
	games, err := db.Games.ListUnpredictedGames(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list games needing predictions")
	}
	if len(games) == 0 {
		log.Info().Msg("No games need predictions. Exiting.")
		return true
	}
	log.Info().Int("count", len(games)).Str("engine", engine.Name()).Msg("Games needing predictions")

	// 4. Predict and persist each game
	successCount, failureCount := predictAll(ctx, engine, games)
	log.Info().Int("successful", successCount).Int("failed", failureCount).Msg("Manual prediction run complete.")
	return failureCount == 0
}

type gamePredictor interface {
	PredictGame(ctx context.Context, game *models.Game) (*models.Prediction, error)
}

// predictAll predicts games in order and stops early only on cancellation
func predictAll(ctx context.Context, engine gamePredictor, games []*models.Game) (int, int) {
	successCount, failureCount := 0, 0
	for _, game := range games {
		if ctx.Err() != nil {
			log.Warn().Int("remaining", len(games)-successCount-failureCount).Msg("Cancelled, stopping")
			break
		}
		log.Info().Int("game_id", game.ID).Msg("Processing game for prediction")

		pred, err := engine.PredictGame(ctx, game)
		if err != nil {
			log.Error().Err(err).Int("game_id", game.ID).Msg("Prediction failed. Skipping.")
			failureCount++
			continue
		}
		log.Info().
			Int("game_id", game.ID).
			Str("winner", pred.PredictedWinner).
			Float64("confidence", pred.Confidence).
			Str("method", string(pred.Method)).
			Msg("Prediction saved successfully")
		successCount++
	}
	return successCount, failureCount
}
