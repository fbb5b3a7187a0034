// Package features assembles the fixed-order feature vector the classifier consumes.
package features

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nflpicks/engine/internal/metrics"
	"nflpicks/engine/internal/models"
)

// Size is the length of a feature vector
const Size = 10

// Neutral values for the sentiment features
const (
	NeutralNews   = 0.0
	NeutralSocial = 0.5
)

var names = [Size]string{
	"home_win_pct",
	"away_win_pct",
	"home_points_for",
	"away_points_for",
	"home_points_against",
	"away_points_against",
	"home_last5",
	"away_last5",
	"news_sentiment",
	"social_sentiment",
}

// Names returns the feature names in vector order
func Names() []string {
	out := make([]string, Size)
	copy(out, names[:])
	return out
}

// Vector is an ordered feature vector
type Vector [Size]float64

// Slice returns the vector as a slice for the classifier
func (v Vector) Slice() []float64 {
	out := make([]float64, Size)
	copy(out, v[:])
	return out
}

// Map returns the vector keyed by feature name
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, Size)
	for i, name := range names {
		out[name] = v[i]
	}
	return out
}

// StatsSource returns a team snapshot as of a cutoff date
type StatsSource interface {
	ForTeam(ctx context.Context, team string, before time.Time) (models.TeamStatsSnapshot, error)
}

// NewsSource returns one aggregate news sentiment scalar in [-1,1]
type NewsSource interface {
	LatestSentiment(ctx context.Context) (float64, error)
}

// SocialSource returns the social view of a matchup without failing
type SocialSource interface {
	Matchup(home, away string) models.MatchupPicks
}

// Inputs are the intermediate values a vector was built from
type Inputs struct {
	Home     models.TeamStatsSnapshot
	Away     models.TeamStatsSnapshot
	News     float64
	Social   models.MatchupPicks
	Degraded []string
}

// Builder assembles vectors. News and social sources are optional.
type Builder struct {
	stats  StatsSource
	news   NewsSource
	social SocialSource
	logger zerolog.Logger
}

// NewBuilder creates a builder
func NewBuilder(stats StatsSource, news NewsSource, social SocialSource) *Builder {
	return &Builder{
		stats:  stats,
		news:   news,
		social: social,
		logger: log.With().Str("component", "feature_builder").Logger(),
	}
}

// Build returns the vector for an upcoming game. Any upstream failure
// degrades the affected features to their defaults.
func (b *Builder) Build(ctx context.Context, game *models.Game) (Vector, Inputs) {
	in := b.teamInputs(ctx, game)
	in.News = b.newsSentiment(ctx, &in)
	in.Social = b.socialPicks(game)
	return assemble(in), in
}

// BuildHistorical returns the vector for a completed game used as a training
// row. Team stats only see games before kickoff and the sentiment features
// are neutral since no snapshot of that week's sentiment exists.
func (b *Builder) BuildHistorical(ctx context.Context, game *models.Game) (Vector, Inputs) {
	in := b.teamInputs(ctx, game)
	in.News = NeutralNews
	in.Social = models.MatchupPicks{HomeShare: NeutralSocial, Confidence: NeutralSocial}
	return assemble(in), in
}

func (b *Builder) teamInputs(ctx context.Context, game *models.Game) Inputs {
	var in Inputs
	var err error

	in.Home, err = b.stats.ForTeam(ctx, game.HomeTeam, game.GameDate)
	if err != nil {
		in.Home = models.DefaultSnapshot(game.HomeTeam)
		in.Degraded = append(in.Degraded, "home_stats")
	}
	in.Away, err = b.stats.ForTeam(ctx, game.AwayTeam, game.GameDate)
	if err != nil {
		in.Away = models.DefaultSnapshot(game.AwayTeam)
		in.Degraded = append(in.Degraded, "away_stats")
	}
	return in
}

func (b *Builder) newsSentiment(ctx context.Context, in *Inputs) float64 {
	if b.news == nil {
		return NeutralNews
	}
	v, err := b.news.LatestSentiment(ctx)
	if err != nil || math.IsNaN(v) {
		b.logger.Debug().Err(err).Msg("News sentiment unavailable, using neutral")
		metrics.RecordError("feature_builder", "news_sentiment")
		in.Degraded = append(in.Degraded, "news_sentiment")
		return NeutralNews
	}
	return math.Max(-1, math.Min(1, v))
}

func (b *Builder) socialPicks(game *models.Game) models.MatchupPicks {
	if b.social == nil {
		return models.MatchupPicks{Favorite: "Even", HomeShare: NeutralSocial, Confidence: NeutralSocial}
	}
	return b.social.Matchup(game.HomeTeam, game.AwayTeam)
}

func assemble(in Inputs) Vector {
	social := in.Social.HomeShare
	if math.IsNaN(social) {
		social = NeutralSocial
	}
	return Vector{
		in.Home.WinPct,
		in.Away.WinPct,
		in.Home.PointsFor,
		in.Away.PointsFor,
		in.Home.PointsAgainst,
		in.Away.PointsAgainst,
		in.Home.Form,
		in.Away.Form,
		in.News,
		math.Max(0, math.Min(1, social)),
	}
}
