package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nflpicks/engine/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const predictionColumns = `id, game_id, predicted_winner, confidence, predicted_spread,
		       predicted_home_score, predicted_away_score, method, model_name, factors,
		       news_sentiment, social_sentiment, created_at`

// PredictionRepository handles prediction-related database operations
type PredictionRepository struct {
	db *Database
}

func scanPrediction(row pgx.Row) (*models.Prediction, error) {
	pred := &models.Prediction{}
	err := row.Scan(
		&pred.ID, &pred.GameID, &pred.PredictedWinner, &pred.Confidence, &pred.PredictedSpread,
		&pred.PredictedHomeScore, &pred.PredictedAwayScore, &pred.Method, &pred.ModelName, &pred.Factors,
		&pred.NewsSentiment, &pred.SocialSentiment, &pred.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return pred, nil
}

// Create inserts a prediction inside a transaction guarded by an existence check.
// It returns ErrPredictionExists if the game already has one.
func (r *PredictionRepository) Create(ctx context.Context, pred *models.Prediction) error {
	if pred == nil {
		return fmt.Errorf("prediction cannot be nil")
	}

	if err := validatePredictionData(pred); err != nil {
		return fmt.Errorf("prediction validation failed: %w", err)
	}

	start := time.Now()
	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM predictions WHERE game_id = $1)`, pred.GameID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check existing prediction: %w", err)
		}
		if exists {
			return ErrPredictionExists
		}

		query := `
			INSERT INTO predictions (
				game_id, predicted_winner, confidence, predicted_spread,
				predicted_home_score, predicted_away_score, method, model_name, factors,
				news_sentiment, social_sentiment
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (game_id) DO NOTHING
			RETURNING id, created_at
		`

		err := tx.QueryRow(ctx, query,
			pred.GameID, pred.PredictedWinner, pred.Confidence, pred.PredictedSpread,
			pred.PredictedHomeScore, pred.PredictedAwayScore, pred.Method, pred.ModelName, pred.Factors,
			pred.NewsSentiment, pred.SocialSentiment,
		).Scan(&pred.ID, &pred.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPredictionExists
		}
		return err
	})
	observe("create", "predictions", start, err)

	if errors.Is(err, ErrPredictionExists) {
		return fmt.Errorf("game_id=%d: %w", pred.GameID, ErrPredictionExists)
	}
	if err != nil {
		log.Error().Err(err).Int("game_id", pred.GameID).Msg("Failed to insert prediction")
		return fmt.Errorf("failed to create prediction: %w", err)
	}

	log.Info().Int("id", pred.ID).Int("game_id", pred.GameID).Msg("Prediction created successfully")
	return nil
}

// GetByGameID retrieves the prediction for a game, or nil if there is none
func (r *PredictionRepository) GetByGameID(ctx context.Context, gameID int) (*models.Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions WHERE game_id = $1`

	start := time.Now()
	pred, err := scanPrediction(r.db.Pool.QueryRow(ctx, query, gameID))
	if errors.Is(err, pgx.ErrNoRows) {
		observe("get_by_game_id", "predictions", start, nil)
		return nil, nil
	}
	observe("get_by_game_id", "predictions", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}

	return pred, nil
}

// Exists reports whether a game already has a prediction
func (r *PredictionRepository) Exists(ctx context.Context, gameID int) (bool, error) {
	start := time.Now()
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM predictions WHERE game_id = $1)`, gameID,
	).Scan(&exists)
	observe("exists", "predictions", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to check prediction: %w", err)
	}
	return exists, nil
}

// ListByWeek returns predictions for the games of a week; season 0 matches any season
func (r *PredictionRepository) ListByWeek(ctx context.Context, season, week int) ([]*models.Prediction, error) {
	query := `
		SELECT p.id, p.game_id, p.predicted_winner, p.confidence, p.predicted_spread,
		       p.predicted_home_score, p.predicted_away_score, p.method, p.model_name, p.factors,
		       p.news_sentiment, p.social_sentiment, p.created_at
		FROM predictions p
		JOIN games g ON g.id = p.game_id
		WHERE g.week = $1
		  AND ($2 = 0 OR g.season = $2)
		ORDER BY g.game_date ASC
	`

	start := time.Now()
	rows, err := r.db.Pool.Query(ctx, query, week, season)
	if err != nil {
		observe("list_by_week", "predictions", start, err)
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	var preds []*models.Prediction
	for rows.Next() {
		pred, err := scanPrediction(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan prediction row")
			continue
		}
		preds = append(preds, pred)
	}

	err = rows.Err()
	observe("list_by_week", "predictions", start, err)
	if err != nil {
		return nil, fmt.Errorf("error iterating prediction rows: %w", err)
	}
	return preds, nil
}

// Accuracy compares stored predictions against completed results
func (r *PredictionRepository) Accuracy(ctx context.Context) (*models.Accuracy, error) {
	query := `
		SELECT g.season, g.week, p.predicted_winner,
		       CASE WHEN g.home_score > g.away_score THEN g.home_team
		            WHEN g.away_score > g.home_score THEN g.away_team
		            ELSE '' END AS winner
		FROM predictions p
		JOIN games g ON g.id = p.game_id
		WHERE g.status = 'completed'
		  AND g.home_score IS NOT NULL
		  AND g.away_score IS NOT NULL
		ORDER BY g.season, g.week
	`

	start := time.Now()
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		observe("accuracy", "predictions", start, err)
		return nil, fmt.Errorf("failed to query accuracy: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.Season, &o.Week, &o.Predicted, &o.Actual); err != nil {
			log.Error().Err(err).Msg("Failed to scan accuracy row")
			continue
		}
		outcomes = append(outcomes, o)
	}

	err = rows.Err()
	observe("accuracy", "predictions", start, err)
	if err != nil {
		return nil, fmt.Errorf("error iterating accuracy rows: %w", err)
	}

	return SummarizeAccuracy(outcomes), nil
}

// Outcome pairs a predicted winner with the actual one
type Outcome struct {
	Season    int
	Week      int
	Predicted string
	Actual    string
}

// SummarizeAccuracy folds outcomes into totals and a per-week breakdown.
// Outcomes must be ordered by season and week.
func SummarizeAccuracy(outcomes []Outcome) *models.Accuracy {
	acc := &models.Accuracy{ByWeek: []models.WeekAccuracy{}}
	for _, o := range outcomes {
		n := len(acc.ByWeek)
		if n == 0 || acc.ByWeek[n-1].Season != o.Season || acc.ByWeek[n-1].Week != o.Week {
			acc.ByWeek = append(acc.ByWeek, models.WeekAccuracy{Season: o.Season, Week: o.Week})
			n++
		}
		wk := &acc.ByWeek[n-1]
		wk.Total++
		acc.Total++
		if o.Actual != "" && o.Actual == o.Predicted {
			wk.Correct++
			acc.Correct++
		}
	}

	for i := range acc.ByWeek {
		acc.ByWeek[i].Pct = percent(acc.ByWeek[i].Correct, acc.ByWeek[i].Total)
	}
	acc.Pct = percent(acc.Correct, acc.Total)
	return acc
}

func percent(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(int(float64(correct)/float64(total)*10000+0.5)) / 100
}

// validatePredictionData ensures prediction data is valid before insertion
func validatePredictionData(pred *models.Prediction) error {
	if pred.GameID <= 0 {
		return fmt.Errorf("game_id must be positive")
	}
	if pred.PredictedWinner == "" {
		return fmt.Errorf("predicted_winner is required")
	}
	if pred.Confidence < 0 || pred.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0 and 1")
	}
	if pred.Method == "" {
		return fmt.Errorf("method is required")
	}
	if pred.PredictedHomeScore.Valid && pred.PredictedHomeScore.Int32 < 0 {
		return fmt.Errorf("predicted_home_score must be non-negative")
	}
	if pred.PredictedAwayScore.Valid && pred.PredictedAwayScore.Int32 < 0 {
		return fmt.Errorf("predicted_away_score must be non-negative")
	}
	return nil
}
