// Package client talks to the ESPN site API for scoreboards and news.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"nflpicks/engine/internal/metrics"
	"nflpicks/engine/internal/models"
)

const (
	sourceName = "espn"
	userAgent  = "NFL-Picks/1.0"

	// DefaultNewsLimit is the number of headlines scored for news sentiment
	DefaultNewsLimit = 20
)

// StatusError is returned for non-200 responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("espn returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed on a later attempt
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusBadGateway:
		return true
	}
	return false
}

// Client is the ESPN API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	retryDelay time.Duration
	newsLimit  int
}

// NewClient creates a new ESPN API client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxRetries: 3,
		retryDelay: 1 * time.Second,
		newsLimit:  DefaultNewsLimit,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	// 1s, 2s, 4s
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
}

// get performs a GET request with retries on network errors and retryable statuses
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)

		log.Debug().Str("url", u).Int("attempt", attempt).Msg("Making API request")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordAPICall(sourceName, "error", time.Since(start).Seconds())
			return fmt.Errorf("API request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		metrics.RecordAPICall(sourceName, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
			if statusErr.Retryable() {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		body = data
		return nil
	}

	notify := func(err error, wait time.Duration) {
		reason := "network"
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			reason = strconv.Itoa(statusErr.StatusCode)
		}
		metrics.RecordRetry(sourceName, reason)
		log.Warn().Err(err).Str("url", u).Int("attempt", attempt).Dur("backoff", wait).Msg("Retrying API request after backoff")
	}

	if err := backoff.RetryNotify(operation, c.retryPolicy(ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ScoreUpdate is one game as reported by the scoreboard
type ScoreUpdate struct {
	ESPNGameID string
	Season     int
	Week       int
	HomeTeam   string
	AwayTeam   string
	HomeScore  int
	AwayScore  int
	Status     models.GameStatus
	StatusName string
	GameDate   time.Time
}

// Game converts the update into a game row keyed by ESPN id
func (u ScoreUpdate) Game() *models.Game {
	g := &models.Game{
		Season:     u.Season,
		Week:       u.Week,
		HomeTeam:   u.HomeTeam,
		AwayTeam:   u.AwayTeam,
		GameDate:   u.GameDate,
		Status:     u.Status,
		ESPNGameID: models.NullString(u.ESPNGameID),
	}
	if u.Status == models.StatusCompleted {
		g.HomeScore = models.NullInt(u.HomeScore)
		g.AwayScore = models.NullInt(u.AwayScore)
	}
	return g
}

type scoreboard struct {
	Season struct {
		Year int `json:"year"`
	} `json:"season"`
	Week struct {
		Number int `json:"number"`
	} `json:"week"`
	Events []event `json:"events"`
}

type event struct {
	ID     string `json:"id"`
	Date   string `json:"date"`
	Season struct {
		Year int `json:"year"`
	} `json:"season"`
	Week struct {
		Number int `json:"number"`
	} `json:"week"`
	Competitions []struct {
		Competitors []struct {
			HomeAway string `json:"homeAway"`
			Score    string `json:"score"`
			Team     struct {
				DisplayName string `json:"displayName"`
			} `json:"team"`
		} `json:"competitors"`
		Status struct {
			Type struct {
				Name string `json:"name"`
			} `json:"type"`
		} `json:"status"`
	} `json:"competitions"`
}

// parseEventDate accepts the minute-precision timestamps the scoreboard uses
func parseEventDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04Z07:00", "2006-01-02T15:04Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized event date %q", s)
}

// FetchScoreboard returns the games on the scoreboard. Zero season or week
// means the current one.
func (c *Client) FetchScoreboard(ctx context.Context, season, week int) ([]ScoreUpdate, error) {
	params := url.Values{}
	if season > 0 {
		params.Set("dates", strconv.Itoa(season))
		params.Set("seasontype", "2")
	}
	if week > 0 {
		params.Set("week", strconv.Itoa(week))
	}

	body, err := c.get(ctx, "scoreboard", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch scoreboard: %w", err)
	}

	var sb scoreboard
	if err := json.Unmarshal(body, &sb); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scoreboard: %w", err)
	}

	updates := make([]ScoreUpdate, 0, len(sb.Events))
	for _, ev := range sb.Events {
		u, ok := ev.update(sb.Season.Year, sb.Week.Number)
		if !ok {
			log.Debug().Str("event_id", ev.ID).Msg("Skipping incomplete scoreboard event")
			continue
		}
		updates = append(updates, u)
	}

	log.Debug().Int("events", len(sb.Events)).Int("games", len(updates)).Msg("Scoreboard fetched")
	return updates, nil
}

func (ev event) update(season, week int) (ScoreUpdate, bool) {
	if ev.ID == "" || len(ev.Competitions) == 0 {
		return ScoreUpdate{}, false
	}
	comp := ev.Competitions[0]

	u := ScoreUpdate{
		ESPNGameID: ev.ID,
		Season:     season,
		Week:       week,
		StatusName: comp.Status.Type.Name,
		Status:     models.ParseStatus(comp.Status.Type.Name),
	}
	if ev.Season.Year > 0 {
		u.Season = ev.Season.Year
	}
	if ev.Week.Number > 0 {
		u.Week = ev.Week.Number
	}
	if t, err := parseEventDate(ev.Date); err == nil {
		u.GameDate = t
	}

	for _, team := range comp.Competitors {
		score, _ := strconv.Atoi(team.Score)
		switch team.HomeAway {
		case "home":
			u.HomeTeam, u.HomeScore = team.Team.DisplayName, score
		case "away":
			u.AwayTeam, u.AwayScore = team.Team.DisplayName, score
		}
	}
	if u.HomeTeam == "" || u.AwayTeam == "" {
		return ScoreUpdate{}, false
	}
	return u, true
}

type newsFeed struct {
	Articles []struct {
		Headline    string `json:"headline"`
		Description string `json:"description"`
	} `json:"articles"`
}

// LatestSentiment scores the latest headlines and returns their mean
// polarity in [-1,1]. On failure it returns 0 with the error.
func (c *Client) LatestSentiment(ctx context.Context) (float64, error) {
	body, err := c.get(ctx, "news", url.Values{"limit": {strconv.Itoa(c.newsLimit)}})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch news: %w", err)
	}

	var feed newsFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return 0, fmt.Errorf("failed to unmarshal news: %w", err)
	}

	headlines := make([]string, 0, len(feed.Articles))
	for _, a := range feed.Articles {
		if len(headlines) == c.newsLimit {
			break
		}
		if a.Headline != "" {
			headlines = append(headlines, a.Headline)
		}
	}
	return HeadlineSentiment(headlines), nil
}

// HeadlineSentiment averages the lexicon polarity of each headline
func HeadlineSentiment(headlines []string) float64 {
	if len(headlines) == 0 {
		return 0
	}
	total := 0.0
	for _, h := range headlines {
		total += polarity(h)
	}
	return math.Round(total/float64(len(headlines))*10000) / 10000
}

// polarity sums word valences and squashes the sum into [-1,1]
func polarity(text string) float64 {
	sum := 0.0
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '\'')
	}) {
		sum += lexicon[word]
	}
	if sum == 0 {
		return 0
	}
	return sum / math.Sqrt(sum*sum+15)
}

var lexicon = map[string]float64{
	"win":          1.5,
	"wins":         1.5,
	"won":          1.5,
	"victory":      2.0,
	"clinch":       1.8,
	"clinches":     1.8,
	"dominant":     2.0,
	"dominate":     1.8,
	"rout":         1.5,
	"record":       0.8,
	"star":         1.2,
	"return":       0.8,
	"returns":      0.8,
	"healthy":      1.5,
	"extension":    1.0,
	"comeback":     1.6,
	"best":         1.8,
	"great":        1.8,
	"loss":         -1.5,
	"losses":       -1.5,
	"lose":         -1.5,
	"loses":        -1.5,
	"lost":         -1.5,
	"injury":       -1.8,
	"injured":      -1.8,
	"out":          -0.6,
	"torn":         -2.0,
	"suspended":    -2.0,
	"suspension":   -2.0,
	"fired":        -2.2,
	"benched":      -1.5,
	"struggle":     -1.5,
	"struggles":    -1.5,
	"fumble":       -1.0,
	"questionable": -0.8,
	"worst":        -2.0,
	"collapse":     -2.0,
	"arrested":     -2.5,
}
