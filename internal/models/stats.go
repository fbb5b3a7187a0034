package models

// Neutral values used when a team has no usable history
const (
	DefaultWinPct        = 0.5
	DefaultPointsFor     = 24.0
	DefaultPointsAgainst = 24.0
	DefaultForm          = 0.5
)

// TeamStatsSnapshot holds rolling performance figures for one team.
// It is derived on demand and never persisted.
type TeamStatsSnapshot struct {
	Team          string  `json:"team"`
	Games         int     `json:"games"`
	ValidGames    int     `json:"valid_games"`
	Wins          int     `json:"wins"`
	WinPct        float64 `json:"win_pct"`
	PointsFor     float64 `json:"points_for"`
	PointsAgainst float64 `json:"points_against"`
	Form          float64 `json:"form"`
}

// DefaultSnapshot returns the neutral snapshot for a team without history
func DefaultSnapshot(team string) TeamStatsSnapshot {
	return TeamStatsSnapshot{
		Team:          team,
		WinPct:        DefaultWinPct,
		PointsFor:     DefaultPointsFor,
		PointsAgainst: DefaultPointsAgainst,
		Form:          DefaultForm,
	}
}

// PointDifferential is average points for minus average points against
func (s TeamStatsSnapshot) PointDifferential() float64 {
	return s.PointsFor - s.PointsAgainst
}
