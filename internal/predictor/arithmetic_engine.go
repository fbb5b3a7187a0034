package predictor

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/atgjack/prob"
	"github.com/rs/zerolog/log"

	"nflpicks/engine/internal/features"
	"nflpicks/engine/internal/models"
)

const (
	arithmeticModelName = "arithmetic_blend"

	homeWinRate       = 0.55
	formWeight        = 0.4
	homeWeight        = 0.3
	scoringWeight     = 0.3
	scoringFactorCap  = 0.3
	differentialSigma = 14.0
	minWinProb        = 0.1
	maxWinProb        = 0.9

	baseScore  = 22.0
	scoreSwing = 10.0
	minScore   = 10

	// ScoreSeed seeds the predicted-score jitter
	ScoreSeed = 42
)

var arithmeticImportance = map[string]float64{
	"home_field_advantage":  0.3,
	"recent_win_percentage": 0.4,
	"scoring_differential":  0.3,
}

// ArithmeticEngine predicts without a classifier. It is selected when the
// classifier cannot run in this process.
type ArithmeticEngine struct {
	base
	dist prob.Normal

	mu  sync.Mutex
	rng *rand.Rand
}

// NewArithmeticEngine creates the arithmetic engine
func NewArithmeticEngine(deps Deps, minGames int) *ArithmeticEngine {
	return &ArithmeticEngine{
		base: newBase(deps, minGames, log.With().Str("component", "arithmetic_engine").Logger()),
		dist: prob.Normal{Mu: 0, Sigma: differentialSigma},
		rng:  rand.New(rand.NewSource(ScoreSeed)),
	}
}

// Name implements Engine
func (e *ArithmeticEngine) Name() string {
	return arithmeticModelName
}

// Train is a no-op
func (e *ArithmeticEngine) Train(ctx context.Context) error {
	e.logger.Debug().Msg("Arithmetic engine has nothing to train")
	return nil
}

// FeatureImportance returns the fixed blend weights
func (e *ArithmeticEngine) FeatureImportance() map[string]float64 {
	out := make(map[string]float64, len(arithmeticImportance))
	for k, v := range arithmeticImportance {
		out[k] = v
	}
	return out
}

// PredictGame returns the stored prediction for game or creates one
func (e *ArithmeticEngine) PredictGame(ctx context.Context, game *models.Game) (*models.Prediction, error) {
	if err := validateGame(game); err != nil {
		return nil, err
	}
	if stored, err := e.existing(ctx, game); err != nil || stored != nil {
		return stored, err
	}

	if !e.enoughHistory(ctx) {
		return e.persist(ctx, heuristicPrediction(game, ""))
	}
	return e.persist(ctx, e.blend(ctx, game))
}

// WinProbability blends home form, the league home win rate and the
// normalized scoring differential, clipped to [0.1, 0.9].
func (e *ArithmeticEngine) WinProbability(home, away models.TeamStatsSnapshot) float64 {
	diff := home.PointDifferential() - away.PointDifferential()
	factor := clip(e.dist.Cdf(diff)-0.5, -scoringFactorCap, scoringFactorCap)
	p := home.Form*formWeight + homeWinRate*homeWeight + (0.5+factor)*scoringWeight
	return clip(p, minWinProb, maxWinProb)
}

func (e *ArithmeticEngine) blend(ctx context.Context, game *models.Game) *models.Prediction {
	vec, in := e.builder.Build(ctx, game)
	p := e.WinProbability(in.Home, in.Away)

	winner := game.AwayTeam
	if p > 0.5 {
		winner = game.HomeTeam
	}
	home, away := e.scores(p)

	factors := models.Factors{
		"method":               arithmeticModelName,
		"home_win_probability": p,
		"home_field_advantage": homeWinRate,
		"recent_win_percentage": map[string]any{
			"home": in.Home.Form,
			"away": in.Away.Form,
		},
		"scoring_differential": in.Home.PointDifferential() - in.Away.PointDifferential(),
		"social_favorite":      in.Social.Favorite,
	}
	if len(in.Degraded) > 0 {
		factors["degraded_inputs"] = in.Degraded
	}
	raw, _ := factors.Encode()

	return &models.Prediction{
		GameID:             game.ID,
		PredictedWinner:    winner,
		Confidence:         math.Max(p, 1-p),
		PredictedSpread:    (p - 0.5) * 20,
		PredictedHomeScore: models.NullInt(home),
		PredictedAwayScore: models.NullInt(away),
		Method:             models.MethodArithmetic,
		ModelName:          arithmeticModelName,
		Factors:            raw,
		NewsSentiment:      models.NullFloat(in.News),
		SocialSentiment:    models.NullFloat(vec[features.Size-1]),
	}
}

// scores draws predicted scores around the league average. Home jitter is
// uniform on [-3,7], away on [-5,5].
func (e *ArithmeticEngine) scores(p float64) (int, int) {
	e.mu.Lock()
	homeJitter := e.rng.Intn(11) - 3
	awayJitter := e.rng.Intn(11) - 5
	e.mu.Unlock()

	home := int(baseScore + (p-0.5)*scoreSwing + float64(homeJitter))
	away := int(baseScore + (0.5-p)*scoreSwing + float64(awayJitter))
	return max(minScore, home), max(minScore, away)
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
