package predictor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nflpicks/engine/internal/features"
	"nflpicks/engine/internal/model"
	"nflpicks/engine/internal/models"
	"nflpicks/engine/internal/repository"
	"nflpicks/engine/internal/stats"
)

var seasonStart = time.Date(2024, 9, 8, 17, 0, 0, 0, time.UTC)

var smallSearch = model.SearchConfig{
	Grid:  model.Grid{Trees: []int{5}, Depths: []int{3}},
	Folds: 2,
	Seed:  42,
}

func final(week int, home string, hs int, away string, as int) *models.Game {
	return &models.Game{
		Season:    2024,
		Week:      week,
		HomeTeam:  home,
		AwayTeam:  away,
		HomeScore: models.NullInt(hs),
		AwayScore: models.NullInt(as),
		Status:    models.StatusCompleted,
		GameDate:  seasonStart.AddDate(0, 0, 7*(week-1)),
	}
}

func seasonGames() []*models.Game {
	return []*models.Game{
		final(1, "Alpha", 28, "Beta", 10),
		final(2, "Gamma", 14, "Alpha", 31),
		final(3, "Alpha", 24, "Delta", 3),
		final(4, "Beta", 20, "Gamma", 17),
		final(5, "Delta", 10, "Beta", 27),
		final(6, "Alpha", 35, "Gamma", 7),
		final(7, "Gamma", 21, "Delta", 24),
		final(8, "Beta", 13, "Alpha", 30),
	}
}

func scheduled(id int, home, away string) *models.Game {
	return &models.Game{
		ID:       id,
		Season:   2024,
		Week:     9,
		HomeTeam: home,
		AwayTeam: away,
		Status:   models.StatusScheduled,
		GameDate: seasonStart.AddDate(0, 0, 56),
	}
}

func newDeps(games GameStore, source stats.GameSource, preds PredictionStore) Deps {
	return Deps{
		Games:       games,
		Predictions: preds,
		Features:    features.NewBuilder(stats.NewAggregator(source), nil, nil),
	}
}

func memoryDeps(games ...*models.Game) (Deps, *repository.MemoryGameStore, *repository.MemoryPredictionStore) {
	store := repository.NewMemoryGameStore(games...)
	preds := repository.NewMemoryPredictionStore()
	return newDeps(store, store, preds), store, preds
}

func decode(t *testing.T, p *models.Prediction) models.Factors {
	t.Helper()
	f, err := p.DecodeFactors()
	require.NoError(t, err)
	return f
}

// listFailingGames counts normally but cannot list, so training fails
type listFailingGames struct {
	*repository.MemoryGameStore
	err error
}

func (s *listFailingGames) ListCompleted(ctx context.Context) ([]*models.Game, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.MemoryGameStore.ListCompleted(ctx)
}

// racingStore lets a competing writer insert first
type racingStore struct {
	*repository.MemoryPredictionStore
	competitor *models.Prediction
}

func (s *racingStore) Create(ctx context.Context, pred *models.Prediction) error {
	if err := s.MemoryPredictionStore.Create(ctx, s.competitor); err != nil {
		return err
	}
	return s.MemoryPredictionStore.Create(ctx, pred)
}

func TestModelEngine_HeuristicWithoutHistory(t *testing.T) {
	deps, _, preds := memoryDeps()
	engine := NewModelEngine(deps, 5, smallSearch)

	pred, err := engine.PredictGame(context.Background(), scheduled(1, "Alpha", "Beta"))
	require.NoError(t, err)

	assert.Equal(t, "Alpha", pred.PredictedWinner)
	assert.Equal(t, HeuristicConfidence, pred.Confidence)
	assert.Equal(t, HeuristicSpread, pred.PredictedSpread)
	assert.Equal(t, models.MethodHeuristic, pred.Method)
	assert.Equal(t, 1, preds.Inserts)

	f := decode(t, pred)
	assert.Equal(t, "simple_heuristic", f["method"])
	assert.Equal(t, true, f["home_field_advantage"])
	assert.Equal(t, insufficientNote, f["note"])
	assert.NotContains(t, f, "fallback_reason")
	assert.False(t, engine.Trained())
}

func TestModelEngine_HeuristicBelowThreshold(t *testing.T) {
	deps, _, _ := memoryDeps(seasonGames()[:4]...)
	engine := NewModelEngine(deps, 5, smallSearch)

	pred, err := engine.PredictGame(context.Background(), scheduled(20, "Delta", "Alpha"))
	require.NoError(t, err)
	assert.Equal(t, "Delta", pred.PredictedWinner)
	assert.Equal(t, models.MethodHeuristic, pred.Method)
}

func TestModelEngine_ReturnsExistingPrediction(t *testing.T) {
	store := repository.NewMemoryGameStore()
	store.Err = errors.New("must not be read")
	preds := repository.NewMemoryPredictionStore()
	stored := &models.Prediction{GameID: 42, PredictedWinner: "Beta", Confidence: 0.71, Method: models.MethodModel}
	require.NoError(t, preds.Create(context.Background(), stored))

	engine := NewModelEngine(newDeps(store, store, preds), 5, smallSearch)

	for i := 0; i < 3; i++ {
		pred, err := engine.PredictGame(context.Background(), scheduled(42, "Alpha", "Beta"))
		require.NoError(t, err)
		assert.Equal(t, stored.ID, pred.ID)
		assert.Equal(t, "Beta", pred.PredictedWinner)
		assert.Equal(t, 0.71, pred.Confidence)
	}
	assert.Equal(t, 1, preds.Inserts)
}

func TestModelEngine_SecondCallIsIdempotent(t *testing.T) {
	deps, _, preds := memoryDeps(seasonGames()...)
	engine := NewModelEngine(deps, 5, smallSearch)
	ctx := context.Background()

	first, err := engine.PredictGame(ctx, scheduled(100, "Alpha", "Delta"))
	require.NoError(t, err)
	second, err := engine.PredictGame(ctx, scheduled(100, "Alpha", "Delta"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.PredictedWinner, second.PredictedWinner)
	assert.Equal(t, 1, preds.Inserts)
}

func TestModelEngine_ModelPath(t *testing.T) {
	deps, _, _ := memoryDeps(seasonGames()...)
	engine := NewModelEngine(deps, 5, smallSearch)

	pred, err := engine.PredictGame(context.Background(), scheduled(100, "Alpha", "Delta"))
	require.NoError(t, err)
	require.Equal(t, models.MethodModel, pred.Method)
	assert.True(t, engine.Trained())

	f := decode(t, pred)
	p, ok := f["home_win_probability"].(float64)
	require.True(t, ok)
	assert.InDelta(t, max(p, 1-p), pred.Confidence, 1e-9)
	assert.InDelta(t, (p-0.5)*20, pred.PredictedSpread, 1e-9)
	if p > 0.5 {
		assert.Equal(t, "Alpha", pred.PredictedWinner)
	} else {
		assert.Equal(t, "Delta", pred.PredictedWinner)
	}

	assert.Equal(t, map[string]any{"head_to_head_record": "Even"}, f["historical_matchups"])
	assert.Equal(t, HomeFieldAdvantage, f["home_field_advantage"])
	assert.Equal(t, "Even", f["social_favorite"])
	assert.Equal(t, float64(8), f["training_games"])
	assert.True(t, pred.NewsSentiment.Valid)
	assert.True(t, pred.SocialSentiment.Valid)

	importance := engine.FeatureImportance()
	assert.Len(t, importance, features.Size)
	total := 0.0
	for _, v := range importance {
		assert.GreaterOrEqual(t, v, 0.0)
		total += v
	}
	assert.LessOrEqual(t, total, 1.0+1e-9)
}

func TestModelEngine_TrainingFailureFallsBackAndRetries(t *testing.T) {
	store := repository.NewMemoryGameStore(seasonGames()...)
	games := &listFailingGames{MemoryGameStore: store, err: errors.New("connection reset")}
	preds := repository.NewMemoryPredictionStore()
	engine := NewModelEngine(newDeps(games, store, preds), 5, smallSearch)
	ctx := context.Background()

	pred, err := engine.PredictGame(ctx, scheduled(100, "Alpha", "Delta"))
	require.NoError(t, err)
	assert.Equal(t, models.MethodHeuristic, pred.Method)
	assert.Equal(t, "Alpha", pred.PredictedWinner)
	assert.Contains(t, decode(t, pred)["fallback_reason"], "connection reset")
	assert.False(t, engine.Trained())

	games.err = nil
	pred, err = engine.PredictGame(ctx, scheduled(101, "Beta", "Gamma"))
	require.NoError(t, err)
	assert.Equal(t, models.MethodModel, pred.Method)
	assert.True(t, engine.Trained())
}

func TestModelEngine_UnusableRowsFallBack(t *testing.T) {
	var games []*models.Game
	for week := 1; week <= 6; week++ {
		g := final(week, "Alpha", 0, "Beta", 0)
		g.HomeScore.Valid = false
		g.AwayScore.Valid = false
		games = append(games, g)
	}
	deps, _, _ := memoryDeps(games...)
	engine := NewModelEngine(deps, 5, smallSearch)

	pred, err := engine.PredictGame(context.Background(), scheduled(100, "Alpha", "Beta"))
	require.NoError(t, err)
	assert.Equal(t, models.MethodHeuristic, pred.Method)
	assert.Contains(t, decode(t, pred)["fallback_reason"], "insufficient")

	err = engine.Train(context.Background())
	assert.ErrorIs(t, err, ErrModelFit)
	assert.ErrorIs(t, err, model.ErrInsufficientData)
	assert.Empty(t, engine.FeatureImportance())
}

func TestModelEngine_PersistenceErrors(t *testing.T) {
	t.Run("lookup", func(t *testing.T) {
		deps, _, preds := memoryDeps()
		preds.Err = errors.New("pool closed")
		engine := NewModelEngine(deps, 5, smallSearch)

		_, err := engine.PredictGame(context.Background(), scheduled(1, "Alpha", "Beta"))
		assert.ErrorIs(t, err, ErrPersistence)
	})

	t.Run("insert", func(t *testing.T) {
		deps, _, preds := memoryDeps()
		preds.CreateErr = errors.New("disk full")
		engine := NewModelEngine(deps, 5, smallSearch)

		_, err := engine.PredictGame(context.Background(), scheduled(1, "Alpha", "Beta"))
		assert.ErrorIs(t, err, ErrPersistence)
		assert.Contains(t, err.Error(), "disk full")
		assert.Equal(t, 0, preds.Inserts)
	})
}

func TestModelEngine_ConcurrentInsertReturnsStored(t *testing.T) {
	store := repository.NewMemoryGameStore()
	preds := &racingStore{
		MemoryPredictionStore: repository.NewMemoryPredictionStore(),
		competitor:            &models.Prediction{GameID: 7, PredictedWinner: "Beta", Confidence: 0.8, Method: models.MethodModel},
	}
	engine := NewModelEngine(newDeps(store, store, preds), 5, smallSearch)

	pred, err := engine.PredictGame(context.Background(), scheduled(7, "Alpha", "Beta"))
	require.NoError(t, err)
	assert.Equal(t, "Beta", pred.PredictedWinner)
	assert.Equal(t, 0.8, pred.Confidence)
	assert.Equal(t, 1, preds.Inserts)
}

func TestPredictGame_MalformedGame(t *testing.T) {
	deps, _, preds := memoryDeps()
	engines := []Engine{NewModelEngine(deps, 5, smallSearch), NewArithmeticEngine(deps, 5)}

	bad := []*models.Game{
		nil,
		scheduled(0, "Alpha", "Beta"),
		scheduled(3, "", "Beta"),
		scheduled(4, "Alpha", "Alpha"),
	}
	for _, engine := range engines {
		for _, g := range bad {
			_, err := engine.PredictGame(context.Background(), g)
			assert.ErrorIs(t, err, ErrMalformedGame, engine.Name())
		}
	}
	assert.Equal(t, 0, preds.Inserts)
}

func TestTrend(t *testing.T) {
	assert.Equal(t, "Stable", trend(0.6, 0.5))
	assert.Equal(t, "Home improving", trend(0.8, 0.4))
	assert.Equal(t, "Away improving", trend(0.2, 0.6))
}
