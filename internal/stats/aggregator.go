// Package stats derives rolling team performance figures from completed games.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"nflpicks/engine/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	// WindowSize is the number of most recent completed games considered
	WindowSize = 16
	// FormWindow is the number of most recent games used for short-term form
	FormWindow = 5
)

// ErrHistoryUnavailable is returned alongside default stats when the game store fails
var ErrHistoryUnavailable = errors.New("team history unavailable")

// GameSource is the read side of the historical game store
type GameSource interface {
	// ListCompletedByTeam returns completed games involving team, newest first.
	// A zero before means no date cutoff.
	ListCompletedByTeam(ctx context.Context, team string, before time.Time, limit int) ([]*models.Game, error)
}

// Aggregator computes TeamStatsSnapshots from a GameSource
type Aggregator struct {
	games GameSource
}

// NewAggregator creates an aggregator over games
func NewAggregator(games GameSource) *Aggregator {
	return &Aggregator{games: games}
}

// ForTeam returns the snapshot for team using games played before the cutoff.
// On store failure it returns the neutral defaults together with ErrHistoryUnavailable.
func (a *Aggregator) ForTeam(ctx context.Context, team string, before time.Time) (models.TeamStatsSnapshot, error) {
	games, err := a.games.ListCompletedByTeam(ctx, team, before, WindowSize)
	if err != nil {
		log.Warn().Err(err).Str("team", team).Msg("Failed to load team history, using defaults")
		return models.DefaultSnapshot(team), fmt.Errorf("%w: %s: %w", ErrHistoryUnavailable, team, err)
	}
	return Compute(team, games), nil
}

// Compute derives a snapshot from games. Games not involving team or not
// completed are ignored; the newest WindowSize remaining games form the window.
func Compute(team string, games []*models.Game) models.TeamStatsSnapshot {
	window := make([]*models.Game, 0, len(games))
	for _, g := range games {
		if g != nil && g.IsCompleted() && g.Involves(team) {
			window = append(window, g)
		}
	}
	if len(window) == 0 {
		return models.DefaultSnapshot(team)
	}

	sort.SliceStable(window, func(i, j int) bool {
		return window[i].GameDate.After(window[j].GameDate)
	})
	if len(window) > WindowSize {
		window = window[:WindowSize]
	}

	snap := models.TeamStatsSnapshot{Team: team, Games: len(window)}

	var pointsFor, pointsAgainst float64
	for _, g := range window {
		scored, allowed, ok := teamScore(team, g)
		if !ok {
			continue
		}
		snap.ValidGames++
		pointsFor += float64(scored)
		pointsAgainst += float64(allowed)
		if scored > allowed {
			snap.Wins++
		}
	}

	if snap.ValidGames == 0 {
		snap.WinPct = models.DefaultWinPct
		snap.PointsFor = models.DefaultPointsFor
		snap.PointsAgainst = models.DefaultPointsAgainst
	} else {
		n := float64(snap.ValidGames)
		snap.WinPct = float64(snap.Wins) / n
		snap.PointsFor = pointsFor / n
		snap.PointsAgainst = pointsAgainst / n
	}

	recent := window
	if len(recent) > FormWindow {
		recent = recent[:FormWindow]
	}
	snap.Form = winRate(team, recent)

	return snap
}

// winRate is wins over games with valid scores, 0.5 when there are none
func winRate(team string, games []*models.Game) float64 {
	var wins, valid int
	for _, g := range games {
		scored, allowed, ok := teamScore(team, g)
		if !ok {
			continue
		}
		valid++
		if scored > allowed {
			wins++
		}
	}
	if valid == 0 {
		return models.DefaultForm
	}
	return float64(wins) / float64(valid)
}

// teamScore returns (points scored, points allowed) from team's perspective
func teamScore(team string, g *models.Game) (int32, int32, bool) {
	if !g.HasScores() {
		return 0, 0, false
	}
	if g.HomeTeam == team {
		return g.HomeScore.Int32, g.AwayScore.Int32, true
	}
	return g.AwayScore.Int32, g.HomeScore.Int32, true
}
