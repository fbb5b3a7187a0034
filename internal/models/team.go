package models

import "strings"

// Team is an NFL franchise as referenced in scraped text and game records
type Team struct {
	Name     string `json:"name" yaml:"name"`           // Nickname, e.g. "Chiefs"
	FullName string `json:"full_name" yaml:"full_name"` // e.g. "Kansas City Chiefs"
	Code     string `json:"code" yaml:"code"`           // e.g. "KC"
}

// CompactName returns the full name with spaces removed
func (t Team) CompactName() string {
	return strings.ReplaceAll(t.FullName, " ", "")
}

// NFLTeams is the default catalog of franchises
var NFLTeams = []Team{
	{Name: "Cardinals", FullName: "Arizona Cardinals", Code: "ARI"},
	{Name: "Falcons", FullName: "Atlanta Falcons", Code: "ATL"},
	{Name: "Ravens", FullName: "Baltimore Ravens", Code: "BAL"},
	{Name: "Bills", FullName: "Buffalo Bills", Code: "BUF"},
	{Name: "Panthers", FullName: "Carolina Panthers", Code: "CAR"},
	{Name: "Bears", FullName: "Chicago Bears", Code: "CHI"},
	{Name: "Bengals", FullName: "Cincinnati Bengals", Code: "CIN"},
	{Name: "Browns", FullName: "Cleveland Browns", Code: "CLE"},
	{Name: "Cowboys", FullName: "Dallas Cowboys", Code: "DAL"},
	{Name: "Broncos", FullName: "Denver Broncos", Code: "DEN"},
	{Name: "Lions", FullName: "Detroit Lions", Code: "DET"},
	{Name: "Packers", FullName: "Green Bay Packers", Code: "GB"},
	{Name: "Texans", FullName: "Houston Texans", Code: "HOU"},
	{Name: "Colts", FullName: "Indianapolis Colts", Code: "IND"},
	{Name: "Jaguars", FullName: "Jacksonville Jaguars", Code: "JAX"},
	{Name: "Chiefs", FullName: "Kansas City Chiefs", Code: "KC"},
	{Name: "Raiders", FullName: "Las Vegas Raiders", Code: "LV"},
	{Name: "Chargers", FullName: "Los Angeles Chargers", Code: "LAC"},
	{Name: "Rams", FullName: "Los Angeles Rams", Code: "LAR"},
	{Name: "Dolphins", FullName: "Miami Dolphins", Code: "MIA"},
	{Name: "Vikings", FullName: "Minnesota Vikings", Code: "MIN"},
	{Name: "Patriots", FullName: "New England Patriots", Code: "NE"},
	{Name: "Saints", FullName: "New Orleans Saints", Code: "NO"},
	{Name: "Giants", FullName: "New York Giants", Code: "NYG"},
	{Name: "Jets", FullName: "New York Jets", Code: "NYJ"},
	{Name: "Eagles", FullName: "Philadelphia Eagles", Code: "PHI"},
	{Name: "Steelers", FullName: "Pittsburgh Steelers", Code: "PIT"},
	{Name: "49ers", FullName: "San Francisco 49ers", Code: "SF"},
	{Name: "Seahawks", FullName: "Seattle Seahawks", Code: "SEA"},
	{Name: "Buccaneers", FullName: "Tampa Bay Buccaneers", Code: "TB"},
	{Name: "Titans", FullName: "Tennessee Titans", Code: "TEN"},
	{Name: "Commanders", FullName: "Washington Commanders", Code: "WAS"},
}

// LookupTeam resolves a nickname, full name or code (case-insensitive) against catalog
func LookupTeam(catalog []Team, ref string) (Team, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Team{}, false
	}
	for _, t := range catalog {
		if strings.EqualFold(t.Name, ref) || strings.EqualFold(t.FullName, ref) ||
			strings.EqualFold(t.Code, ref) || strings.EqualFold(t.CompactName(), ref) {
			return t, true
		}
	}
	return Team{}, false
}
