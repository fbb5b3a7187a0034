package predictor

import (
	"nflpicks/engine/internal/models"
)

const (
	HeuristicConfidence = 0.6
	HeuristicSpread     = 3.0
	HomeFieldAdvantage  = 3.0

	heuristicModelName = "simple_heuristic"
	insufficientNote   = "Insufficient historical data for ML prediction"
	fallbackNote       = "Model unavailable, home team picked"
)

// heuristicPrediction picks the home team. A non-empty reason marks a model
// path failure rather than a short history.
func heuristicPrediction(game *models.Game, reason string) *models.Prediction {
	factors := models.Factors{
		"method":               heuristicModelName,
		"home_field_advantage": true,
		"note":                 insufficientNote,
	}
	if reason != "" {
		factors["note"] = fallbackNote
		factors["fallback_reason"] = reason
	}
	raw, _ := factors.Encode()

	return &models.Prediction{
		GameID:          game.ID,
		PredictedWinner: game.HomeTeam,
		Confidence:      HeuristicConfidence,
		PredictedSpread: HeuristicSpread,
		Method:          models.MethodHeuristic,
		ModelName:       heuristicModelName,
		Factors:         raw,
	}
}
