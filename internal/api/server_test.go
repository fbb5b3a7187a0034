package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nflpicks/engine/internal/features"
	"nflpicks/engine/internal/model"
	"nflpicks/engine/internal/models"
	"nflpicks/engine/internal/predictor"
	"nflpicks/engine/internal/repository"
	"nflpicks/engine/internal/scheduler"
	"nflpicks/engine/internal/sentiment"
	"nflpicks/engine/internal/stats"
)

var kickoff = time.Date(2024, 10, 13, 17, 0, 0, 0, time.UTC)

// predictionStore adds the week and accuracy queries to the memory store
type predictionStore struct {
	*repository.MemoryPredictionStore
	games *repository.MemoryGameStore
}

func (p predictionStore) ListByWeek(ctx context.Context, season, week int) ([]*models.Prediction, error) {
	games, err := p.games.ListByWeek(ctx, season, week)
	if err != nil {
		return nil, err
	}
	var out []*models.Prediction
	for _, g := range games {
		pred, err := p.GetByGameID(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		if pred != nil {
			out = append(out, pred)
		}
	}
	return out, nil
}

func (p predictionStore) Accuracy(ctx context.Context) (*models.Accuracy, error) {
	games, err := p.games.ListCompleted(ctx)
	if err != nil {
		return nil, err
	}
	var outcomes []repository.Outcome
	for i := len(games) - 1; i >= 0; i-- {
		g := games[i]
		pred, err := p.GetByGameID(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		if pred != nil {
			outcomes = append(outcomes, repository.Outcome{Season: g.Season, Week: g.Week, Predicted: pred.PredictedWinner, Actual: g.Winner()})
		}
	}
	return repository.SummarizeAccuracy(outcomes), nil
}

type stubSource struct {
	err error
}

func (s stubSource) Scrape(ctx context.Context) (*models.SentimentReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.SentimentReport{
		TotalMentions: 3,
		PostsAnalyzed: 4,
		Teams: map[string]models.TeamSentiment{
			"Chiefs": {Mentions: 2, Popularity: 30},
			"Bills":  {Mentions: 1, Popularity: 10},
		},
		Provenance: models.Provenance{Sources: []string{"nfl"}, Tier: models.TierLive},
	}, nil
}

type stubJobs struct {
	updated int
	err     error
}

func (j stubJobs) Status() scheduler.Status {
	return scheduler.Status{Running: true, Runs: 2}
}

func (j stubJobs) RefreshScores(ctx context.Context) (int, error) {
	return j.updated, j.err
}

type stubHealth struct{ err error }

func (h stubHealth) Health(ctx context.Context) error { return h.err }

type fixture struct {
	server   *httptest.Server
	games    *repository.MemoryGameStore
	preds    predictionStore
	provider *sentiment.Provider
}

func newFixture(t *testing.T, source sentiment.Source, deps func(*Deps)) *fixture {
	t.Helper()

	games := repository.NewMemoryGameStore(
		&models.Game{ID: 1, Season: 2024, Week: 6, HomeTeam: "Kansas City Chiefs", AwayTeam: "Buffalo Bills", Status: models.StatusScheduled, GameDate: kickoff},
		&models.Game{ID: 2, Season: 2024, Week: 5, HomeTeam: "Dallas Cowboys", AwayTeam: "Detroit Lions", Status: models.StatusCompleted,
			HomeScore: models.NullInt(9), AwayScore: models.NullInt(47), GameDate: kickoff.AddDate(0, 0, -7)},
	)
	preds := predictionStore{MemoryPredictionStore: repository.NewMemoryPredictionStore(), games: games}

	cache := sentiment.NewCache(sentiment.NewMemoryStore(), clockwork.NewFakeClockAt(kickoff), 24*time.Hour)
	provider := sentiment.NewProvider(cache, source, nil, time.Hour)

	builder := features.NewBuilder(stats.NewAggregator(games), nil, provider)
	engine := predictor.NewModelEngine(predictor.Deps{Games: games, Predictions: preds, Features: builder}, 5, model.SearchConfig{})

	d := Deps{Games: games, Predictions: preds, Engine: engine, Sentiment: provider}
	if deps != nil {
		deps(&d)
	}

	srv := httptest.NewServer(NewServer(d).Handler())
	t.Cleanup(srv.Close)
	return &fixture{server: srv, games: games, preds: preds, provider: provider}
}

func (f *fixture) do(t *testing.T, method, path string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestMakePrediction(t *testing.T) {
	f := newFixture(t, stubSource{}, nil)

	status, body := f.do(t, http.MethodPost, "/api/predictions/1")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	pred := body["prediction"].(map[string]any)
	assert.Equal(t, "Kansas City Chiefs", pred["predicted_winner"])
	assert.Equal(t, 0.6, pred["confidence"])
	assert.Equal(t, "heuristic", pred["method"])

	status, again := f.do(t, http.MethodPost, "/api/predictions/1")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, pred["id"], again["prediction"].(map[string]any)["id"])
	assert.Equal(t, 1, f.preds.Inserts)

	status, body = f.do(t, http.MethodGet, "/api/predictions/1")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, pred["id"], body["prediction"].(map[string]any)["id"])
}

func TestMakePrediction_Errors(t *testing.T) {
	f := newFixture(t, stubSource{}, nil)

	status, body := f.do(t, http.MethodPost, "/api/predictions/404")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Game not found", body["error"])

	status, _ = f.do(t, http.MethodPost, "/api/predictions/abc")
	assert.Equal(t, http.StatusBadRequest, status)

	f.preds.CreateErr = errors.New("disk full")
	status, body = f.do(t, http.MethodPost, "/api/predictions/1")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body["error"], "disk full")
}

func TestGetPrediction_NotFound(t *testing.T) {
	f := newFixture(t, stubSource{}, nil)

	status, body := f.do(t, http.MethodGet, "/api/predictions/1")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Prediction not found", body["error"])
}

func TestWeekListings(t *testing.T) {
	f := newFixture(t, stubSource{}, nil)
	f.do(t, http.MethodPost, "/api/predictions/1")

	status, body := f.do(t, http.MethodGet, "/api/games/week/6?season=2024")
	require.Equal(t, http.StatusOK, status)
	games := body["games"].([]any)
	require.Len(t, games, 1)
	assert.Equal(t, "Kansas City Chiefs", games[0].(map[string]any)["home_team"])

	status, body = f.do(t, http.MethodGet, "/api/predictions/week/6")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["predictions"], 1)

	status, body = f.do(t, http.MethodGet, "/api/games/week/5")
	require.Equal(t, http.StatusOK, status)
	completed := body["games"].([]any)[0].(map[string]any)
	assert.Equal(t, "Detroit Lions", completed["winner"])
	assert.Equal(t, 47.0, completed["away_score"])

	status, _ = f.do(t, http.MethodGet, "/api/games/week/6?season=x")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAccuracy(t *testing.T) {
	f := newFixture(t, stubSource{}, nil)
	require.NoError(t, f.preds.Create(context.Background(), &models.Prediction{
		GameID: 2, PredictedWinner: "Detroit Lions", Confidence: 0.7, Method: models.MethodModel,
	}))

	status, body := f.do(t, http.MethodGet, "/api/accuracy")
	require.Equal(t, http.StatusOK, status)
	acc := body["accuracy"].(map[string]any)
	assert.Equal(t, 1.0, acc["total_predictions"])
	assert.Equal(t, 1.0, acc["correct_predictions"])
	assert.Equal(t, 100.0, acc["accuracy"])
}

func TestSentimentEndpoints(t *testing.T) {
	f := newFixture(t, stubSource{}, nil)

	status, body := f.do(t, http.MethodGet, "/api/sentiment")
	require.Equal(t, http.StatusOK, status)
	report := body["sentiment"].(map[string]any)
	assert.Equal(t, "static", report["provenance"].(map[string]any)["tier"])
	assert.NotContains(t, body, "totals")

	status, body = f.do(t, http.MethodPost, "/api/sentiment/refresh")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 4.0, body["posts_analyzed"])

	status, body = f.do(t, http.MethodGet, "/api/sentiment")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "live", body["sentiment"].(map[string]any)["provenance"].(map[string]any)["tier"])
	assert.Equal(t, 4.0, body["totals"].(map[string]any)["posts"])

	status, body = f.do(t, http.MethodGet, "/api/sentiment/matchup/1")
	require.Equal(t, http.StatusOK, status)
	matchup := body["matchup"].(map[string]any)
	assert.Equal(t, "Kansas City Chiefs", matchup["reddit_favorite"])
	assert.InDelta(t, 0.75, matchup["home_share"], 1e-9)

	status, body = f.do(t, http.MethodGet, "/api/sentiment/status")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["cache"].(map[string]any)["fresh"])
	assert.NotContains(t, body, "scheduler")
}

func TestSentimentRefresh_Failure(t *testing.T) {
	f := newFixture(t, stubSource{err: sentiment.ErrCircuitOpen}, nil)

	status, body := f.do(t, http.MethodPost, "/api/sentiment/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, false, body["success"])
	assert.True(t, strings.Contains(body["error"].(string), "circuit"))
}

func TestScoresRefresh(t *testing.T) {
	f := newFixture(t, stubSource{}, nil)
	status, _ := f.do(t, http.MethodPost, "/api/scores/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	f = newFixture(t, stubSource{}, func(d *Deps) { d.Jobs = stubJobs{updated: 3} })
	status, body := f.do(t, http.MethodPost, "/api/scores/refresh")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3.0, body["updated"])

	status, body = f.do(t, http.MethodGet, "/api/sentiment/status")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2.0, body["scheduler"].(map[string]any)["runs"])
}

func TestImportanceAndHealth(t *testing.T) {
	f := newFixture(t, stubSource{}, nil)

	status, body := f.do(t, http.MethodGet, "/api/model/importance")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "random_forest", body["engine"])
	assert.Empty(t, body["importance"])

	status, body = f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	f = newFixture(t, stubSource{}, func(d *Deps) { d.Health = stubHealth{err: errors.New("db down")} })
	status, body = f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, stubSource{}, func(d *Deps) { d.ExposeMetrics = true })
	f.do(t, http.MethodGet, "/health")

	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	f := newFixture(t, stubSource{}, nil)

	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
