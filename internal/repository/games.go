package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nflpicks/engine/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const gameColumns = `id, season, week, home_team, away_team, home_score, away_score,
		       game_date, status, espn_game_id, created_at, updated_at`

// GameRepository handles game database operations
type GameRepository struct {
	db *Database
}

func scanGame(row pgx.Row) (*models.Game, error) {
	var game models.Game
	err := row.Scan(
		&game.ID, &game.Season, &game.Week, &game.HomeTeam, &game.AwayTeam,
		&game.HomeScore, &game.AwayScore, &game.GameDate, &game.Status,
		&game.ESPNGameID, &game.CreatedAt, &game.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &game, nil
}

func (r *GameRepository) queryGames(ctx context.Context, operation, query string, args ...any) ([]*models.Game, error) {
	start := time.Now()
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		observe(operation, "games", start, err)
		return nil, fmt.Errorf("failed to %s: %w", operation, err)
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			log.Error().Err(err).Str("operation", operation).Msg("Failed to scan game row")
			continue
		}
		games = append(games, game)
	}

	err = rows.Err()
	observe(operation, "games", start, err)
	if err != nil {
		return nil, fmt.Errorf("error iterating game rows: %w", err)
	}
	return games, nil
}

// Upsert inserts or updates a game keyed by its ESPN id
func (r *GameRepository) Upsert(ctx context.Context, game *models.Game) error {
	if err := game.Validate(); err != nil {
		return fmt.Errorf("invalid game: %w", err)
	}

	query := `
		INSERT INTO games (
			season, week, home_team, away_team, home_score, away_score,
			game_date, status, espn_game_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (espn_game_id) DO UPDATE SET
			season = EXCLUDED.season,
			week = EXCLUDED.week,
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			home_score = EXCLUDED.home_score,
			away_score = EXCLUDED.away_score,
			game_date = EXCLUDED.game_date,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	start := time.Now()
	err := r.db.Pool.QueryRow(
		ctx, query,
		game.Season, game.Week, game.HomeTeam, game.AwayTeam, game.HomeScore, game.AwayScore,
		game.GameDate, game.Status, game.ESPNGameID,
	).Scan(&game.ID, &game.CreatedAt, &game.UpdatedAt)
	observe("upsert", "games", start, err)

	if err != nil {
		return fmt.Errorf("failed to upsert game: %w", err)
	}

	log.Debug().
		Int("id", game.ID).
		Str("home", game.HomeTeam).
		Str("away", game.AwayTeam).
		Str("status", string(game.Status)).
		Msg("Game upserted")

	return nil
}

// GetByID retrieves a game by its database ID
func (r *GameRepository) GetByID(ctx context.Context, id int) (*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1`

	start := time.Now()
	game, err := scanGame(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		observe("get_by_id", "games", start, nil)
		return nil, fmt.Errorf("game id=%d: %w", id, ErrNotFound)
	}
	observe("get_by_id", "games", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return game, nil
}

// ListCompletedByTeam returns completed games involving team, newest first.
// A zero before disables the date cutoff.
func (r *GameRepository) ListCompletedByTeam(ctx context.Context, team string, before time.Time, limit int) ([]*models.Game, error) {
	query := `
		SELECT ` + gameColumns + `
		FROM games
		WHERE status = 'completed'
		  AND (home_team = $1 OR away_team = $1)
		  AND ($2::timestamptz IS NULL OR game_date < $2)
		ORDER BY game_date DESC
		LIMIT $3
	`

	var cutoff *time.Time
	if !before.IsZero() {
		cutoff = &before
	}
	return r.queryGames(ctx, "list_completed_by_team", query, team, cutoff, limit)
}

// ListCompleted returns every completed game, newest first
func (r *GameRepository) ListCompleted(ctx context.Context) ([]*models.Game, error) {
	query := `
		SELECT ` + gameColumns + `
		FROM games
		WHERE status = 'completed'
		ORDER BY game_date DESC
	`
	return r.queryGames(ctx, "list_completed", query)
}

// CountCompleted returns the number of completed games
func (r *GameRepository) CountCompleted(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM games WHERE status = 'completed'`

	start := time.Now()
	var count int
	err := r.db.Pool.QueryRow(ctx, query).Scan(&count)
	observe("count_completed", "games", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed games: %w", err)
	}

	return count, nil
}

// ListByWeek returns the games of a week; season 0 matches any season
func (r *GameRepository) ListByWeek(ctx context.Context, season, week int) ([]*models.Game, error) {
	query := `
		SELECT ` + gameColumns + `
		FROM games
		WHERE week = $1
		  AND ($2 = 0 OR season = $2)
		ORDER BY game_date ASC
	`
	return r.queryGames(ctx, "list_by_week", query, week, season)
}

// UpdateResult records the status and, for completed games, the final score
func (r *GameRepository) UpdateResult(ctx context.Context, espnGameID string, status models.GameStatus, homeScore, awayScore int) (bool, error) {
	query := `
		UPDATE games SET
			status = $2,
			home_score = $3,
			away_score = $4,
			updated_at = NOW()
		WHERE espn_game_id = $1
	`

	home, away := resultScores(status, homeScore, awayScore)
	start := time.Now()
	tag, err := r.db.Pool.Exec(ctx, query, espnGameID, string(status), home, away)
	observe("update_result", "games", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to update game result: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// resultScores returns the score columns for a status update. Only completed
// games carry scores.
func resultScores(status models.GameStatus, homeScore, awayScore int) (sql.NullInt32, sql.NullInt32) {
	if status != models.StatusCompleted {
		return sql.NullInt32{}, sql.NullInt32{}
	}
	return models.NullInt(homeScore), models.NullInt(awayScore)
}
