package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nflpicks/engine/internal/models"
	"nflpicks/engine/internal/predictor"
	"nflpicks/engine/internal/repository"
)

const healthTimeout = 2 * time.Second

func (s *Server) lookupGame(w http.ResponseWriter, r *http.Request) (*models.Game, bool) {
	id, ok := pathInt(r, "gameID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return nil, false
	}
	game, err := s.deps.Games.GetByID(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Game not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error().Err(err).Int("game_id", id).Msg("Failed to load game")
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return nil, false
	}
	return game, true
}

func (s *Server) makePrediction(w http.ResponseWriter, r *http.Request) {
	game, ok := s.lookupGame(w, r)
	if !ok {
		return
	}

	pred, err := s.deps.Engine.PredictGame(r.Context(), game)
	switch {
	case errors.Is(err, predictor.ErrMalformedGame):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error().Err(err).Int("game_id", game.ID).Msg("Prediction failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeOK(w, map[string]any{
		"prediction": pred.View(),
		"game":       game.View(),
	})
}

func (s *Server) getPrediction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "gameID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}
	pred, err := s.deps.Predictions.GetByGameID(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Int("game_id", id).Msg("Failed to load prediction")
		writeError(w, http.StatusInternalServerError, "failed to load prediction")
		return
	}
	if pred == nil {
		writeError(w, http.StatusNotFound, "Prediction not found")
		return
	}
	writeOK(w, map[string]any{"prediction": pred.View()})
}

func (s *Server) predictionsByWeek(w http.ResponseWriter, r *http.Request) {
	week, ok := pathInt(r, "week")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid week")
		return
	}
	yr, ok := season(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid season")
		return
	}

	preds, err := s.deps.Predictions.ListByWeek(r.Context(), yr, week)
	if err != nil {
		s.logger.Error().Err(err).Int("week", week).Msg("Failed to list predictions")
		writeError(w, http.StatusInternalServerError, "failed to list predictions")
		return
	}
	views := make([]models.PredictionView, 0, len(preds))
	for _, p := range preds {
		views = append(views, p.View())
	}
	writeOK(w, map[string]any{"week": week, "predictions": views})
}

func (s *Server) gamesByWeek(w http.ResponseWriter, r *http.Request) {
	week, ok := pathInt(r, "week")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid week")
		return
	}
	yr, ok := season(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid season")
		return
	}

	games, err := s.deps.Games.ListByWeek(r.Context(), yr, week)
	if err != nil {
		s.logger.Error().Err(err).Int("week", week).Msg("Failed to list games")
		writeError(w, http.StatusInternalServerError, "failed to list games")
		return
	}
	views := make([]models.GameView, 0, len(games))
	for _, g := range games {
		views = append(views, g.View())
	}
	writeOK(w, map[string]any{"week": week, "games": views})
}

func (s *Server) accuracy(w http.ResponseWriter, r *http.Request) {
	acc, err := s.deps.Predictions.Accuracy(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to compute accuracy")
		writeError(w, http.StatusInternalServerError, "failed to compute accuracy")
		return
	}
	writeOK(w, map[string]any{"accuracy": acc})
}

func (s *Server) refreshScores(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler disabled")
		return
	}
	updated, err := s.deps.Jobs.RefreshScores(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeOK(w, map[string]any{"message": "Scores refreshed successfully", "updated": updated})
}

func (s *Server) sentiment(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"sentiment": s.deps.Sentiment.Current()}
	if entry := s.deps.Sentiment.Cache().Current(); entry != nil {
		body["totals"] = map[string]any{
			"posts":    entry.TotalPosts,
			"comments": entry.TotalComments,
		}
		body["saved_at"] = entry.SavedAt
	}
	writeOK(w, body)
}

func (s *Server) matchup(w http.ResponseWriter, r *http.Request) {
	game, ok := s.lookupGame(w, r)
	if !ok {
		return
	}
	report := s.deps.Sentiment.Current()
	writeOK(w, map[string]any{
		"game_id": game.ID,
		"matchup": s.deps.Sentiment.Matchup(game.HomeTeam, game.AwayTeam),
		"tier":    report.Provenance.Tier,
	})
}

func (s *Server) refreshSentiment(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Sentiment.ForceUpdate(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeOK(w, map[string]any{
		"message":           "Sentiment refreshed",
		"posts_analyzed":    report.PostsAnalyzed,
		"comments_analyzed": report.CommentsAnalyzed,
		"total_mentions":    report.TotalMentions,
	})
}

func (s *Server) sentimentStatus(w http.ResponseWriter, r *http.Request) {
	cache := s.deps.Sentiment.Cache()
	cacheInfo := map[string]any{
		"fresh":             cache.Fresh(),
		"freshness_seconds": cache.Freshness().Seconds(),
	}
	if age, ok := cache.Age(); ok {
		cacheInfo["age_seconds"] = age.Seconds()
	}

	body := map[string]any{
		"cache": cacheInfo,
		"tier":  s.deps.Sentiment.Current().Provenance.Tier,
	}
	if s.deps.Jobs != nil {
		body["scheduler"] = s.deps.Jobs.Status()
	}
	if s.deps.Breaker != nil {
		body["breaker"] = map[string]any{
			"state":    s.deps.Breaker.BreakerState(),
			"requests": s.deps.Breaker.Requests(),
		}
	}
	writeOK(w, body)
}

func (s *Server) importance(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]any{
		"engine":     s.deps.Engine.Name(),
		"importance": s.deps.Engine.FeatureImportance(),
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.deps.Health.Health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}
