package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nflpicks/engine/internal/models"
)

// stepClock advances itself by the requested duration whenever something sleeps on it
type stepClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 9, 8, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *stepClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

func listingBody(t *testing.T, after string, kind string, items ...map[string]any) []byte {
	t.Helper()
	children := make([]map[string]any, 0, len(items))
	for _, item := range items {
		children = append(children, map[string]any{"kind": kind, "data": item})
	}
	body, err := json.Marshal(map[string]any{
		"kind": "Listing",
		"data": map[string]any{"after": after, "children": children},
	})
	require.NoError(t, err)
	return body
}

func testConfig(baseURL string) ScraperConfig {
	return ScraperConfig{
		BaseURL:           baseURL,
		UserAgent:         "test-agent",
		Channels:          []string{"nfl"},
		PostLimit:         25,
		Pages:             1,
		MaxRetries:        0,
		ForbiddenStep:     5 * time.Second,
		ThrottleStep:      10 * time.Second,
		ErrorStep:         2 * time.Second,
		MaxFailedRequests: 10,
		BreakerCooldown:   time.Hour,
		Timeout:           5 * time.Second,
	}
}

func okListing(t *testing.T) []byte {
	return listingBody(t, "", "t3", map[string]any{
		"id": "p1", "title": "Chiefs are my lock", "score": 40, "num_comments": 5, "upvote_ratio": 0.9,
	})
}

func TestScraper_MinimumIntervalBetweenRequests(t *testing.T) {
	clock := newStepClock()

	var mu sync.Mutex
	var times []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, clock.Now())
		mu.Unlock()

		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		switch {
		case strings.Contains(r.URL.Path, "/comments/"):
			post := listingBody(t, "", "t3", map[string]any{"id": "p1"})
			comments := listingBody(t, "", "t1", map[string]any{"body": "Chiefs win by ten", "score": 3})
			_, _ = w.Write([]byte("[" + string(post) + "," + string(comments) + "]"))
		case r.URL.Query().Get("after") == "":
			_, _ = w.Write(listingBody(t, "t3_next", "t3", map[string]any{
				"id": "p1", "title": "Chiefs pick", "score": 20,
			}))
		default:
			_, _ = w.Write(listingBody(t, "", "t3", map[string]any{"id": "p2", "title": "Bills bet", "score": 10}))
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Channels = []string{"nfl", "NFLbets"}
	cfg.Pages = 2
	cfg.CommentPosts = 1
	cfg.CommentLimit = 10
	cfg.MinInterval = 3 * time.Second

	s := NewScraper(cfg, NewAnalyzer(DefaultPolicy()), clock)
	report, err := s.Scrape(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, times, 5)
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), cfg.MinInterval, "request %d", i)
	}

	assert.Equal(t, 4, report.PostsAnalyzed)
	assert.Equal(t, 1, report.CommentsAnalyzed)
	assert.Equal(t, models.TierLive, report.Provenance.Tier)
	assert.True(t, clock.Now().Equal(report.Provenance.GeneratedAt))
	assert.Equal(t, int64(5), s.Requests())
}

func TestScraper_StatusAwareBackoff(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int
		want     []time.Duration
	}{
		{name: "forbidden", statuses: []int{403, 403}, want: []time.Duration{5 * time.Second, 10 * time.Second}},
		{name: "throttled", statuses: []int{429}, want: []time.Duration{10 * time.Second}},
		{name: "throttled then server error", statuses: []int{429, 500}, want: []time.Duration{10 * time.Second, 4 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				defer mu.Unlock()
				if calls < len(tt.statuses) {
					w.WriteHeader(tt.statuses[calls])
					calls++
					return
				}
				calls++
				_, _ = w.Write(okListing(t))
			}))
			defer srv.Close()

			cfg := testConfig(srv.URL)
			cfg.MaxRetries = 3
			clock := newStepClock()

			s := NewScraper(cfg, NewAnalyzer(DefaultPolicy()), clock)
			report, err := s.Scrape(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 1, report.Teams["Chiefs"].Mentions)
			assert.Equal(t, tt.want, clock.Slept())
			assert.Equal(t, int64(len(tt.statuses)+1), s.Requests())
		})
	}
}

func TestScraper_ExhaustedRetriesYieldNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 2
	clock := newStepClock()

	s := NewScraper(cfg, NewAnalyzer(DefaultPolicy()), clock)
	report, err := s.Scrape(context.Background())

	assert.ErrorIs(t, err, ErrNoLiveData)
	assert.Nil(t, report)
	assert.Equal(t, int64(3), s.Requests())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, clock.Slept())
}

func TestScraper_NotFoundIsNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 3

	s := NewScraper(cfg, NewAnalyzer(DefaultPolicy()), newStepClock())
	_, err := s.Scrape(context.Background())

	assert.ErrorIs(t, err, ErrNoLiveData)
	assert.Equal(t, int64(1), s.Requests())
}

func TestScraper_PartialChannelsStillReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/r/broken/") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(okListing(t))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Channels = []string{"broken", "nfl"}

	s := NewScraper(cfg, NewAnalyzer(DefaultPolicy()), newStepClock())
	report, err := s.Scrape(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"nfl"}, report.Provenance.Sources)
}

func TestScraper_BreakerStopsRequests(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Channels = []string{"a", "b", "c", "d", "e"}
	cfg.MaxFailedRequests = 2

	s := NewScraper(cfg, NewAnalyzer(DefaultPolicy()), newStepClock())

	_, err := s.Scrape(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int64(3), s.Requests())
	assert.Equal(t, "open", s.BreakerState())

	_, err = s.Scrape(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int64(3), s.Requests())

	mu.Lock()
	assert.Equal(t, 3, hits)
	mu.Unlock()
}

func TestScraper_BreakerRecoversAfterCooldown(t *testing.T) {
	var mu sync.Mutex
	fail := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(okListing(t))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxFailedRequests = 0
	cfg.BreakerCooldown = 50 * time.Millisecond

	s := NewScraper(cfg, NewAnalyzer(DefaultPolicy()), newStepClock())

	_, err := s.Scrape(context.Background())
	require.ErrorIs(t, err, ErrCircuitOpen)

	mu.Lock()
	fail = false
	mu.Unlock()
	time.Sleep(80 * time.Millisecond)

	report, err := s.Scrape(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, report)
	assert.Equal(t, "closed", s.BreakerState())
	assert.Equal(t, int64(2), s.Requests())
}
