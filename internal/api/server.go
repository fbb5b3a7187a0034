// Package api serves predictions, games and sentiment over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nflpicks/engine/internal/metrics"
	"nflpicks/engine/internal/models"
	"nflpicks/engine/internal/predictor"
	"nflpicks/engine/internal/scheduler"
	"nflpicks/engine/internal/sentiment"
)

// GameReader is the read side of the game store
type GameReader interface {
	GetByID(ctx context.Context, id int) (*models.Game, error)
	ListByWeek(ctx context.Context, season, week int) ([]*models.Game, error)
}

// PredictionReader is the read side of the prediction store
type PredictionReader interface {
	GetByGameID(ctx context.Context, gameID int) (*models.Prediction, error)
	ListByWeek(ctx context.Context, season, week int) ([]*models.Prediction, error)
	Accuracy(ctx context.Context) (*models.Accuracy, error)
}

// SentimentService is the sentiment provider as seen by handlers
type SentimentService interface {
	Current() *models.SentimentReport
	Matchup(home, away string) models.MatchupPicks
	ForceUpdate(ctx context.Context) (*models.SentimentReport, error)
	Cache() *sentiment.Cache
}

// Jobs exposes the scheduler to handlers
type Jobs interface {
	Status() scheduler.Status
	RefreshScores(ctx context.Context) (int, error)
}

// Breaker reports the scraper's short-circuit state
type Breaker interface {
	BreakerState() string
	Requests() int64
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the handlers' collaborators. Jobs, Breaker and Health are optional.
type Deps struct {
	Games       GameReader
	Predictions PredictionReader
	Engine      predictor.Engine
	Sentiment   SentimentService
	Jobs        Jobs
	Breaker     Breaker
	Health      HealthChecker

	// ExposeMetrics serves the Prometheus registry on GET /metrics
	ExposeMetrics bool
}

// Server holds the HTTP handlers
type Server struct {
	deps   Deps
	logger zerolog.Logger
}

// NewServer creates the API server
func NewServer(deps Deps) *Server {
	return &Server{
		deps:   deps,
		logger: log.With().Str("component", "api").Logger(),
	}
}

// Handler returns the routed handler with request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "POST /api/predictions/{gameID}", s.makePrediction)
	s.route(mux, "GET /api/predictions/{gameID}", s.getPrediction)
	s.route(mux, "GET /api/predictions/week/{week}", s.predictionsByWeek)
	s.route(mux, "GET /api/games/week/{week}", s.gamesByWeek)
	s.route(mux, "GET /api/accuracy", s.accuracy)
	s.route(mux, "POST /api/scores/refresh", s.refreshScores)
	s.route(mux, "GET /api/sentiment", s.sentiment)
	s.route(mux, "GET /api/sentiment/matchup/{gameID}", s.matchup)
	s.route(mux, "POST /api/sentiment/refresh", s.refreshSentiment)
	s.route(mux, "GET /api/sentiment/status", s.sentimentStatus)
	s.route(mux, "GET /api/model/importance", s.importance)
	s.route(mux, "GET /health", s.health)
	if s.deps.ExposeMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// route registers h under pattern, recording metrics per pattern
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)

		duration := time.Since(start)
		metrics.RecordHTTPRequest(pattern, strconv.Itoa(rec.status), duration.Seconds())
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", duration).
			Msg("Request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeOK(w http.ResponseWriter, body map[string]any) {
	if body == nil {
		body = map[string]any{}
	}
	body["success"] = true
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// pathInt parses a positive integer path parameter
func pathInt(r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// season reads the optional season query parameter; 0 means any season
func season(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("season")
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
