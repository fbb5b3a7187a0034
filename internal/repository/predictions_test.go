//go:build integration

package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"nflpicks/engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictionRepository_CreateOnce(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	game := &models.Game{
		Season:     2024,
		Week:       3,
		HomeTeam:   "Bills",
		AwayTeam:   "Jets",
		GameDate:   time.Now().Add(48 * time.Hour).UTC(),
		Status:     models.StatusScheduled,
		ESPNGameID: sql.NullString{String: "401672002", Valid: true},
	}
	require.NoError(t, db.Games.Upsert(ctx, game))

	factors, err := models.Factors{"method": "simple_heuristic"}.Encode()
	require.NoError(t, err)

	pred := &models.Prediction{
		GameID:          game.ID,
		PredictedWinner: "Bills",
		Confidence:      0.6,
		PredictedSpread: 3.0,
		Method:          models.MethodHeuristic,
		ModelName:       "simple_heuristic",
		Factors:         factors,
	}
	require.NoError(t, db.Predictions.Create(ctx, pred))
	assert.NotZero(t, pred.ID)

	exists, err := db.Predictions.Exists(ctx, game.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	dup := *pred
	err = db.Predictions.Create(ctx, &dup)
	assert.True(t, errors.Is(err, ErrPredictionExists))

	stored, err := db.Predictions.GetByGameID(ctx, game.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, pred.ID, stored.ID)
	assert.Equal(t, "Bills", stored.PredictedWinner)

	missing, err := db.Predictions.GetByGameID(ctx, game.ID+1000)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
