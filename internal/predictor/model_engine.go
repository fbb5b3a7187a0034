package predictor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"nflpicks/engine/internal/features"
	"nflpicks/engine/internal/metrics"
	"nflpicks/engine/internal/model"
	"nflpicks/engine/internal/models"
)

const (
	modelName   = "random_forest"
	evenRecord  = "Even"
	stableTrend = "Stable"
	trendMargin = 0.2
)

// ModelEngine predicts with a random forest trained on completed games.
// Training is lazy and happens at most once until Train is called again.
type ModelEngine struct {
	base
	search model.SearchConfig

	mu        sync.Mutex
	forest    *model.Forest
	result    *model.SearchResult
	trainedOn int
}

// NewModelEngine creates an untrained model engine
func NewModelEngine(deps Deps, minGames int, search model.SearchConfig) *ModelEngine {
	if len(search.Grid.Trees) == 0 || len(search.Grid.Depths) == 0 {
		search.Grid = model.DefaultGrid
	}
	return &ModelEngine{
		base:   newBase(deps, minGames, log.With().Str("component", "model_engine").Logger()),
		search: search,
	}
}

// Name implements Engine
func (e *ModelEngine) Name() string {
	return modelName
}

// PredictGame returns the stored prediction for game or creates one
func (e *ModelEngine) PredictGame(ctx context.Context, game *models.Game) (*models.Prediction, error) {
	if err := validateGame(game); err != nil {
		return nil, err
	}
	if stored, err := e.existing(ctx, game); err != nil || stored != nil {
		return stored, err
	}

	var pred *models.Prediction
	if !e.enoughHistory(ctx) {
		pred = heuristicPrediction(game, "")
	} else {
		var err error
		pred, err = e.modelPrediction(ctx, game)
		if err != nil {
			reason := fallbackKind(err)
			metrics.RecordFallback(reason)
			e.logger.Warn().Err(err).Int("game_id", game.ID).Str("reason", reason).Msg("Model path failed, using heuristic")
			pred = heuristicPrediction(game, err.Error())
		}
	}

	return e.persist(ctx, pred)
}

func fallbackKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedGame):
		return "malformed_game"
	case errors.Is(err, model.ErrInsufficientData):
		return "insufficient_data"
	default:
		return "model_fit"
	}
}

func (e *ModelEngine) modelPrediction(ctx context.Context, game *models.Game) (pred *models.Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			pred = nil
			err = fmt.Errorf("%w: recovered panic: %v", ErrModelFit, r)
		}
	}()

	vec, in := e.builder.Build(ctx, game)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.forest == nil {
		if err := e.trainLocked(ctx); err != nil {
			return nil, err
		}
	}

	p, err := e.forest.PredictProba(vec.Slice())
	if err != nil {
		return nil, fmt.Errorf("%w: game %d: %w", ErrMalformedGame, game.ID, err)
	}
	if math.IsNaN(p) {
		return nil, fmt.Errorf("%w: classifier returned NaN", ErrModelFit)
	}

	winner := game.AwayTeam
	if p > 0.5 {
		winner = game.HomeTeam
	}

	factors := models.Factors{
		"method": modelName,
		"historical_matchups": map[string]any{
			"head_to_head_record": evenRecord,
		},
		"recent_performance": map[string]any{
			"trend":     trend(in.Home.Form, in.Away.Form),
			"home_form": in.Home.Form,
			"away_form": in.Away.Form,
		},
		"home_field_advantage": HomeFieldAdvantage,
		"home_win_probability": p,
		"social_favorite":      in.Social.Favorite,
		"features":             vec.Map(),
		"best_params":          e.result.Best,
		"cv_accuracy":          e.result.Score,
		"training_games":       e.trainedOn,
	}
	if len(in.Degraded) > 0 {
		factors["degraded_inputs"] = in.Degraded
	}
	raw, err := factors.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: encode factors: %w", ErrModelFit, err)
	}

	return &models.Prediction{
		GameID:          game.ID,
		PredictedWinner: winner,
		Confidence:      math.Max(p, 1-p),
		PredictedSpread: (p - 0.5) * 20,
		Method:          models.MethodModel,
		ModelName:       modelName,
		Factors:         raw,
		NewsSentiment:   models.NullFloat(in.News),
		SocialSentiment: models.NullFloat(vec[features.Size-1]),
	}, nil
}

// trend describes which side has the better recent form
func trend(homeForm, awayForm float64) string {
	switch d := homeForm - awayForm; {
	case d > trendMargin:
		return "Home improving"
	case d < -trendMargin:
		return "Away improving"
	default:
		return stableTrend
	}
}

// Train forces a retrain on every completed game. A failed retrain keeps the
// previous model.
func (e *ModelEngine) Train(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trainLocked(ctx)
}

func (e *ModelEngine) trainLocked(ctx context.Context) error {
	start := time.Now()

	games, err := e.games.ListCompleted(ctx)
	if err != nil {
		metrics.RecordTraining("failure", time.Since(start).Seconds())
		return fmt.Errorf("%w: list completed games: %w", ErrModelFit, err)
	}

	x := make([][]float64, 0, len(games))
	y := make([]int, 0, len(games))
	skipped := 0
	for _, g := range games {
		if !g.HasScores() || validateGame(g) != nil {
			skipped++
			continue
		}
		vec, _ := e.builder.BuildHistorical(ctx, g)
		x = append(x, vec.Slice())
		label := 0
		if g.HomeScore.Int32 > g.AwayScore.Int32 {
			label = 1
		}
		y = append(y, label)
	}

	if len(x) < e.minGames {
		metrics.RecordTraining("failure", time.Since(start).Seconds())
		return fmt.Errorf("%w: %d usable games, need %d: %w", ErrModelFit, len(x), e.minGames, model.ErrInsufficientData)
	}

	forest, result, err := model.GridSearch(x, y, e.search)
	if err != nil {
		metrics.RecordTraining("failure", time.Since(start).Seconds())
		return fmt.Errorf("%w: %w", ErrModelFit, err)
	}

	e.forest = forest
	e.result = result
	e.trainedOn = len(x)
	metrics.RecordTraining("success", time.Since(start).Seconds())

	e.logger.Info().
		Int("games", len(x)).
		Int("skipped", skipped).
		Int("trees", result.Best.Trees).
		Int("max_depth", result.Best.MaxDepth).
		Float64("cv_accuracy", result.Score).
		Dur("duration", time.Since(start)).
		Msg("Model trained")
	return nil
}

// Trained reports whether a model is loaded
func (e *ModelEngine) Trained() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.forest != nil
}

// FeatureImportance returns mean impurity decrease per feature name, or an
// empty map before the first training.
func (e *ModelEngine) FeatureImportance() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]float64, features.Size)
	if e.forest == nil {
		return out
	}
	names := features.Names()
	for i, v := range e.forest.FeatureImportance() {
		if i < len(names) {
			out[names[i]] = v
		}
	}
	return out
}
