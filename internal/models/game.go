package models

import (
	"database/sql"
	"fmt"
	"time"
)

// GameStatus is the lifecycle state of a game
type GameStatus string

const (
	StatusScheduled  GameStatus = "scheduled"
	StatusInProgress GameStatus = "in_progress"
	StatusCompleted  GameStatus = "completed"
)

// Game represents an NFL game, scheduled or completed
type Game struct {
	ID         int            `db:"id" json:"id"`
	Season     int            `db:"season" json:"season"`
	Week       int            `db:"week" json:"week"`
	HomeTeam   string         `db:"home_team" json:"home_team"`
	AwayTeam   string         `db:"away_team" json:"away_team"`
	HomeScore  sql.NullInt32  `db:"home_score" json:"-"`
	AwayScore  sql.NullInt32  `db:"away_score" json:"-"`
	GameDate   time.Time      `db:"game_date" json:"game_date"`
	Status     GameStatus     `db:"status" json:"status"`
	ESPNGameID sql.NullString `db:"espn_game_id" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GameView is the JSON shape served to API callers
type GameView struct {
	*Game
	HomeScore *int32 `json:"home_score"`
	AwayScore *int32 `json:"away_score"`
	Winner    string `json:"winner,omitempty"`
}

// View flattens nullable columns for JSON output
func (g *Game) View() GameView {
	v := GameView{Game: g, Winner: g.Winner()}
	if g.HomeScore.Valid {
		s := g.HomeScore.Int32
		v.HomeScore = &s
	}
	if g.AwayScore.Valid {
		s := g.AwayScore.Int32
		v.AwayScore = &s
	}
	return v
}

// IsActive returns true if the game is currently in progress
func (g *Game) IsActive() bool {
	return g.Status == StatusInProgress
}

// IsScheduled returns true if the game is scheduled but not started
func (g *Game) IsScheduled() bool {
	return g.Status == StatusScheduled
}

// IsCompleted returns true if the game is final
func (g *Game) IsCompleted() bool {
	return g.Status == StatusCompleted
}

// HasScores reports whether both scores are recorded
func (g *Game) HasScores() bool {
	return g.HomeScore.Valid && g.AwayScore.Valid
}

// Winner returns the winning team name, or "" for ties and unfinished games
func (g *Game) Winner() string {
	if !g.IsCompleted() || !g.HasScores() {
		return ""
	}
	switch {
	case g.HomeScore.Int32 > g.AwayScore.Int32:
		return g.HomeTeam
	case g.AwayScore.Int32 > g.HomeScore.Int32:
		return g.AwayTeam
	default:
		return ""
	}
}

// Involves reports whether team played in the game
func (g *Game) Involves(team string) bool {
	return g.HomeTeam == team || g.AwayTeam == team
}

// Validate enforces that scores only exist on completed games
func (g *Game) Validate() error {
	if g.HomeTeam == "" || g.AwayTeam == "" {
		return fmt.Errorf("game %d: both teams are required", g.ID)
	}
	if g.HomeTeam == g.AwayTeam {
		return fmt.Errorf("game %d: home and away team are the same", g.ID)
	}
	switch g.Status {
	case StatusScheduled, StatusInProgress:
		if g.HomeScore.Valid || g.AwayScore.Valid {
			return fmt.Errorf("game %d: only completed games carry scores", g.ID)
		}
	case StatusCompleted:
	default:
		return fmt.Errorf("game %d: unknown status %q", g.ID, g.Status)
	}
	return nil
}

// ParseStatus maps ESPN status names onto GameStatus
func ParseStatus(name string) GameStatus {
	switch name {
	case "STATUS_FINAL", "STATUS_FINAL_OVERTIME", "completed", "final":
		return StatusCompleted
	case "STATUS_IN_PROGRESS", "STATUS_HALFTIME", "STATUS_END_PERIOD", "in_progress":
		return StatusInProgress
	default:
		return StatusScheduled
	}
}

// NullString wraps a value as a sql.NullString, invalid when empty
func NullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
