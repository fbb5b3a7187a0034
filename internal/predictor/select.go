package predictor

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"nflpicks/engine/internal/config"
	"nflpicks/engine/internal/model"
)

// Predictor modes accepted by New
const (
	ModeAuto       = "auto"
	ModeModel      = "model"
	ModeArithmetic = "arithmetic"
)

// New picks the engine once at startup. In auto mode the classifier has to
// fit a small synthetic problem before the model engine is used.
func New(cfg *config.Config, deps Deps) (Engine, error) {
	return newWithCheck(cfg, deps, model.SelfCheck)
}

func newWithCheck(cfg *config.Config, deps Deps, check func() error) (Engine, error) {
	search := model.SearchConfig{
		Grid:  model.Grid{Trees: cfg.ModelGridTrees, Depths: cfg.ModelGridDepths},
		Folds: cfg.ModelCVFolds,
		Seed:  cfg.ModelSeed,
	}

	switch cfg.PredictorMode {
	case ModeModel:
		return NewModelEngine(deps, cfg.MinTrainingGames, search), nil
	case ModeArithmetic:
		return NewArithmeticEngine(deps, cfg.MinTrainingGames), nil
	case ModeAuto, "":
		if err := check(); err != nil {
			log.Warn().Err(err).Msg("Classifier self-check failed, using arithmetic engine")
			return NewArithmeticEngine(deps, cfg.MinTrainingGames), nil
		}
		return NewModelEngine(deps, cfg.MinTrainingGames, search), nil
	default:
		return nil, fmt.Errorf("unknown predictor mode %q", cfg.PredictorMode)
	}
}
