// Package predictor turns a scheduled game into a single persisted prediction.
//
// Two engines share the Engine interface: ModelEngine trains a random forest
// on completed games, ArithmeticEngine blends recent form with a normalized
// scoring differential. Both fall back to the home-field heuristic while too
// few games are completed, and both return an already stored prediction
// unchanged.
package predictor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"nflpicks/engine/internal/features"
	"nflpicks/engine/internal/metrics"
	"nflpicks/engine/internal/models"
	"nflpicks/engine/internal/repository"
)

var (
	// ErrModelFit means the classifier could not be trained or queried
	ErrModelFit = errors.New("model fit failed")
	// ErrMalformedGame means a game cannot be turned into a feature row
	ErrMalformedGame = errors.New("malformed game")
	// ErrPersistence means the prediction store could not be read or written
	ErrPersistence = errors.New("prediction persistence failed")
)

// DefaultMinTrainingGames is the completed-game count below which the heuristic is used
const DefaultMinTrainingGames = 5

// Engine produces predictions for games
type Engine interface {
	PredictGame(ctx context.Context, game *models.Game) (*models.Prediction, error)
	Train(ctx context.Context) error
	FeatureImportance() map[string]float64
	Name() string
}

// GameStore is the read side of the game repository the engines need
type GameStore interface {
	CountCompleted(ctx context.Context) (int, error)
	ListCompleted(ctx context.Context) ([]*models.Game, error)
}

// PredictionStore persists at most one prediction per game
type PredictionStore interface {
	GetByGameID(ctx context.Context, gameID int) (*models.Prediction, error)
	Exists(ctx context.Context, gameID int) (bool, error)
	Create(ctx context.Context, pred *models.Prediction) error
}

// Deps are the collaborators shared by every engine
type Deps struct {
	Games       GameStore
	Predictions PredictionStore
	Features    *features.Builder
}

// base holds the steps both engines run around their own win probability
type base struct {
	games       GameStore
	predictions PredictionStore
	builder     *features.Builder
	minGames    int
	logger      zerolog.Logger
}

func newBase(deps Deps, minGames int, logger zerolog.Logger) base {
	if minGames < 1 {
		minGames = DefaultMinTrainingGames
	}
	return base{
		games:       deps.Games,
		predictions: deps.Predictions,
		builder:     deps.Features,
		minGames:    minGames,
		logger:      logger,
	}
}

func validateGame(game *models.Game) error {
	switch {
	case game == nil:
		return fmt.Errorf("%w: nil game", ErrMalformedGame)
	case game.ID <= 0:
		return fmt.Errorf("%w: game id %d", ErrMalformedGame, game.ID)
	case game.HomeTeam == "" || game.AwayTeam == "":
		return fmt.Errorf("%w: game %d is missing a team", ErrMalformedGame, game.ID)
	case game.HomeTeam == game.AwayTeam:
		return fmt.Errorf("%w: game %d has %s on both sides", ErrMalformedGame, game.ID, game.HomeTeam)
	}
	return nil
}

// existing returns the stored prediction for game, or nil
func (b *base) existing(ctx context.Context, game *models.Game) (*models.Prediction, error) {
	pred, err := b.predictions.GetByGameID(ctx, game.ID)
	if err != nil {
		metrics.RecordError("predictor", "lookup")
		return nil, fmt.Errorf("%w: lookup game %d: %w", ErrPersistence, game.ID, err)
	}
	return pred, nil
}

// enoughHistory reports whether the completed-game count reaches the threshold.
// A failing count is treated as too little history.
func (b *base) enoughHistory(ctx context.Context) bool {
	n, err := b.games.CountCompleted(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to count completed games, using heuristic")
		metrics.RecordError("predictor", "count_completed")
		return false
	}
	return n >= b.minGames
}

// persist stores pred. A concurrent insert for the same game wins and its
// prediction is returned instead.
func (b *base) persist(ctx context.Context, pred *models.Prediction) (*models.Prediction, error) {
	err := b.predictions.Create(ctx, pred)
	if err == nil {
		metrics.RecordPrediction(string(pred.Method))
		b.logger.Info().
			Int("game_id", pred.GameID).
			Str("winner", pred.PredictedWinner).
			Float64("confidence", pred.Confidence).
			Str("method", string(pred.Method)).
			Msg("Prediction created")
		return pred, nil
	}

	if errors.Is(err, repository.ErrPredictionExists) {
		stored, getErr := b.predictions.GetByGameID(ctx, pred.GameID)
		if getErr == nil && stored != nil {
			b.logger.Debug().Int("game_id", pred.GameID).Msg("Prediction already stored by a concurrent caller")
			return stored, nil
		}
		if getErr != nil {
			err = getErr
		}
	}

	metrics.RecordError("predictor", "persist")
	return nil, fmt.Errorf("%w: game %d: %w", ErrPersistence, pred.GameID, err)
}
