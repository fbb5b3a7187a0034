package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nflpicks/engine/internal/models"
)

const scoreboardJSON = `{
  "season": {"year": 2024},
  "week": {"number": 6},
  "events": [
    {
      "id": "401671789",
      "date": "2024-10-13T17:00Z",
      "competitions": [{
        "competitors": [
          {"homeAway": "home", "score": "27", "team": {"displayName": "Kansas City Chiefs"}},
          {"homeAway": "away", "score": "20", "team": {"displayName": "Buffalo Bills"}}
        ],
        "status": {"type": {"name": "STATUS_FINAL"}}
      }]
    },
    {
      "id": "401671790",
      "date": "2024-10-14T00:20Z",
      "competitions": [{
        "competitors": [
          {"homeAway": "home", "score": "0", "team": {"displayName": "Dallas Cowboys"}},
          {"homeAway": "away", "score": "0", "team": {"displayName": "Detroit Lions"}}
        ],
        "status": {"type": {"name": "STATUS_SCHEDULED"}}
      }]
    },
    {"id": "401671791", "competitions": []}
  ]
}`

func testClient(url string) *Client {
	c := NewClient(url, 5*time.Second)
	c.retryDelay = time.Millisecond
	return c
}

func TestFetchScoreboard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scoreboard", r.URL.Path)
		assert.Equal(t, "2024", r.URL.Query().Get("dates"))
		assert.Equal(t, "6", r.URL.Query().Get("week"))
		_, _ = w.Write([]byte(scoreboardJSON))
	}))
	defer srv.Close()

	updates, err := testClient(srv.URL).FetchScoreboard(context.Background(), 2024, 6)
	require.NoError(t, err)
	require.Len(t, updates, 2)

	final := updates[0]
	assert.Equal(t, "401671789", final.ESPNGameID)
	assert.Equal(t, "Kansas City Chiefs", final.HomeTeam)
	assert.Equal(t, "Buffalo Bills", final.AwayTeam)
	assert.Equal(t, 27, final.HomeScore)
	assert.Equal(t, 20, final.AwayScore)
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, 2024, final.Season)
	assert.Equal(t, 6, final.Week)
	assert.Equal(t, time.Date(2024, 10, 13, 17, 0, 0, 0, time.UTC), final.GameDate)

	g := final.Game()
	require.NoError(t, g.Validate())
	assert.Equal(t, "Kansas City Chiefs", g.Winner())
	assert.Equal(t, "401671789", g.ESPNGameID.String)

	upcoming := updates[1].Game()
	assert.Equal(t, models.StatusScheduled, upcoming.Status)
	assert.False(t, upcoming.HomeScore.Valid)
	require.NoError(t, upcoming.Validate())
}

func TestGet_RetriesRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(scoreboardJSON))
	}))
	defer srv.Close()

	updates, err := testClient(srv.URL).FetchScoreboard(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, updates, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchScoreboard(context.Background(), 0, 0)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, int32(4), calls.Load())
}

func TestGet_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchScoreboard(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLatestSentiment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/news", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"articles": [
			{"headline": "Chiefs clinch division with dominant win"},
			{"headline": "Bills quarterback returns healthy"},
			{"headline": ""}
		]}`))
	}))
	defer srv.Close()

	v, err := testClient(srv.URL).LatestSentiment(context.Background())
	require.NoError(t, err)
	assert.Greater(t, v, 0.0)
	assert.LessOrEqual(t, v, 1.0)
}

func TestLatestSentiment_FailureIsNeutral(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	v, err := testClient(srv.URL).LatestSentiment(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0.0, v)
}

func TestHeadlineSentiment(t *testing.T) {
	assert.Equal(t, 0.0, HeadlineSentiment(nil))
	assert.Equal(t, 0.0, HeadlineSentiment([]string{"Week 6 schedule announced"}))
	assert.Less(t, HeadlineSentiment([]string{"Star receiver suspended after torn ACL injury"}), 0.0)

	v := HeadlineSentiment([]string{"Win win win victory dominant best great"})
	assert.Greater(t, v, 0.9)
	assert.LessOrEqual(t, v, 1.0)
}
