package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"nflpicks/engine/internal/client"
	"nflpicks/engine/internal/models"
)

const regularSeasonWeeks = 18

type scoreboardFetcher interface {
	FetchScoreboard(ctx context.Context, season, week int) ([]client.ScoreUpdate, error)
}

type gameUpserter interface {
	Upsert(ctx context.Context, game *models.Game) error
}

// seasonFor returns the NFL season year in play at t. January and February
// belong to the previous year's season.
func seasonFor(t time.Time) int {
	if t.Month() < time.March {
		return t.Year() - 1
	}
	return t.Year()
}

// backfillSeason stores every regular season game ESPN reports for season.
// A failed week is logged and skipped; only cancellation stops the run.
func backfillSeason(ctx context.Context, espn scoreboardFetcher, games gameUpserter, season int) (int, error) {
	log.Info().Int("season", season).Msg("Backfilling season games with scores...")

	saved := 0
	for week := 1; week <= regularSeasonWeeks; week++ {
		if err := ctx.Err(); err != nil {
			return saved, err
		}

		updates, err := espn.FetchScoreboard(ctx, season, week)
		if err != nil {
			log.Warn().Err(err).Int("season", season).Int("week", week).Msg("Failed to fetch scoreboard")
			continue
		}

		for _, u := range updates {
			game := u.Game()
			if err := games.Upsert(ctx, game); err != nil {
				log.Error().Err(err).Str("espn_game_id", u.ESPNGameID).Msg("Failed to save game")
				continue
			}
			saved++
		}
		log.Debug().Int("week", week).Int("games", len(updates)).Msg("Week backfilled")
	}
	return saved, nil
}
