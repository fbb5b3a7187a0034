package sentiment

import "nflpicks/engine/internal/models"

// EvenFavorite is reported when neither side leads in popularity
const EvenFavorite = "Even"

// teamKey maps a game's team reference onto the report's nickname keys
func teamKey(catalog []models.Team, ref string) string {
	if t, ok := models.LookupTeam(catalog, ref); ok {
		return t.Name
	}
	return ref
}

// Matchup derives the social view of a single game from a report
func Matchup(report *models.SentimentReport, catalog []models.Team, home, away string) models.MatchupPicks {
	h := report.Team(teamKey(catalog, home))
	a := report.Team(teamKey(catalog, away))

	picks := models.MatchupPicks{
		Favorite:       EvenFavorite,
		Confidence:     0.5,
		HomeShare:      0.5,
		HomeMentions:   h.Mentions,
		AwayMentions:   a.Mentions,
		TotalMentions:  h.Mentions + a.Mentions,
		HomePopularity: h.Popularity,
		AwayPopularity: a.Popularity,
	}

	total := h.Popularity + a.Popularity
	if total <= 0 {
		return picks
	}
	picks.HomeShare = h.Popularity / total

	switch {
	case h.Popularity > a.Popularity:
		picks.Favorite = home
		picks.Confidence = min(h.Popularity/total, 1.0)
	case a.Popularity > h.Popularity:
		picks.Favorite = away
		picks.Confidence = min(a.Popularity/total, 1.0)
	}
	return picks
}
