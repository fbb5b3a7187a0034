package repository

import (
	"context"

	"nflpicks/engine/internal/models"

	"github.com/rs/zerolog/log"
)

// ListUnpredictedGames retrieves upcoming games that don't have predictions yet
func (r *GameRepository) ListUnpredictedGames(ctx context.Context) ([]*models.Game, error) {
	query := `
		SELECT g.id, g.season, g.week, g.home_team, g.away_team, g.home_score, g.away_score,
		       g.game_date, g.status, g.espn_game_id, g.created_at, g.updated_at
		FROM games g
		LEFT JOIN predictions p ON g.id = p.game_id
		WHERE p.id IS NULL
		  AND g.status IN ('scheduled', 'in_progress')
		ORDER BY g.game_date ASC
	`

	games, err := r.queryGames(ctx, "list_unpredicted", query)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query unpredicted games")
		return nil, err
	}

	log.Info().Int("count", len(games)).Msg("Unpredicted games retrieved")
	return games, nil
}
