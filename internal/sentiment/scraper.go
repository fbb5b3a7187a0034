// Package sentiment scrapes social channels for team-pick signal, analyses it,
// and serves the result through a cache with a static fallback.
package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"nflpicks/engine/internal/config"
	"nflpicks/engine/internal/metrics"
	"nflpicks/engine/internal/models"
)

const (
	metricsSource = "reddit"
	breakerName   = "sentiment_scraper"
	maxBodyBytes  = 8 << 20
)

var (
	// ErrCircuitOpen is returned while live scraping is short-circuited
	ErrCircuitOpen = errors.New("sentiment scraping short-circuited after repeated failures")
	// ErrNoLiveData is returned when every channel came back empty or failed
	ErrNoLiveData = errors.New("no live sentiment data fetched")
)

// StatusError is a non-200 response from a social channel
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("social channel returned status %d for %s", e.StatusCode, e.URL)
}

// Retryable reports whether the status warrants another attempt
func (e *StatusError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusForbidden,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode >= 500:
		return true
	}
	return false
}

// Clock is the time source for rate limiting and backoff sleeps.
// clockwork.Clock satisfies it.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// ScraperConfig configures a Scraper
type ScraperConfig struct {
	BaseURL           string
	UserAgent         string
	Channels          []string
	PostLimit         int
	Pages             int
	CommentPosts      int
	CommentLimit      int
	MinInterval       time.Duration
	MaxRetries        int
	ForbiddenStep     time.Duration
	ThrottleStep      time.Duration
	ErrorStep         time.Duration
	MaxFailedRequests int
	BreakerCooldown   time.Duration
	Timeout           time.Duration
}

// NewScraperConfig maps application configuration onto a ScraperConfig
func NewScraperConfig(cfg *config.Config) ScraperConfig {
	return ScraperConfig{
		BaseURL:           cfg.SentimentBaseURL,
		UserAgent:         cfg.SentimentUserAgent,
		Channels:          cfg.SentimentChannels,
		PostLimit:         cfg.SentimentPostLimit,
		Pages:             cfg.SentimentPages,
		CommentPosts:      cfg.SentimentCommentPosts,
		CommentLimit:      cfg.SentimentCommentLimit,
		MinInterval:       cfg.SentimentMinInterval,
		MaxRetries:        cfg.SentimentMaxRetries,
		ForbiddenStep:     cfg.SentimentForbiddenStep,
		ThrottleStep:      cfg.SentimentThrottleStep,
		ErrorStep:         cfg.SentimentErrorStep,
		MaxFailedRequests: cfg.SentimentMaxFailures,
		BreakerCooldown:   cfg.SentimentCooldown,
		Timeout:           cfg.SentimentTimeout,
	}
}

// Scraper fetches posts from the configured channels and analyses them.
// Outbound calls are spaced by MinInterval, retried with status-aware linear
// backoff, and short-circuited once consecutive failures exceed MaxFailedRequests.
type Scraper struct {
	cfg      ScraperConfig
	client   *http.Client
	clock    Clock
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	analyzer *Analyzer
	logger   zerolog.Logger
	requests atomic.Int64
}

// NewScraper creates a scraper
func NewScraper(cfg ScraperConfig, analyzer *Analyzer, clock Clock) *Scraper {
	logger := log.With().Str("component", "sentiment_scraper").Logger()

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	s := &Scraper{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		clock:    clock,
		limiter:  rate.NewLimiter(limit, 1),
		analyzer: analyzer,
		logger:   logger,
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) > cfg.MaxFailedRequests
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			metrics.SetBreakerState(name, breakerStateValue(to))
		},
	})
	metrics.SetBreakerState(breakerName, 0)

	return s
}

func breakerStateValue(state gobreaker.State) int {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Requests returns the number of outbound HTTP requests issued so far
func (s *Scraper) Requests() int64 {
	return s.requests.Load()
}

// BreakerState returns the breaker state name (closed, half-open, open)
func (s *Scraper) BreakerState() string {
	return s.breaker.State().String()
}

// Scrape fetches every channel, plus comments of the top qualifying posts, and
// returns the analysed report stamped as live.
func (s *Scraper) Scrape(ctx context.Context) (*models.SentimentReport, error) {
	if s.breaker.State() == gobreaker.StateOpen {
		return nil, ErrCircuitOpen
	}

	var posts []Post
	for _, channel := range s.cfg.Channels {
		got, err := s.fetchChannel(ctx, channel)
		posts = append(posts, got...)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrCircuitOpen) {
			s.logger.Warn().Str("channel", channel).Msg("Circuit open, skipping remaining channels")
			break
		}
		s.logger.Warn().Err(err).Str("channel", channel).Msg("Channel fetch returned no data")
	}

	comments, err := s.fetchTopComments(ctx, posts)
	if err != nil {
		return nil, err
	}

	if len(posts) == 0 && len(comments) == 0 {
		if s.breaker.State() == gobreaker.StateOpen {
			return nil, ErrCircuitOpen
		}
		return nil, ErrNoLiveData
	}

	report := s.analyzer.Analyze(append(posts, comments...))
	report.Provenance.GeneratedAt = s.clock.Now().UTC()
	report.Provenance.Tier = models.TierLive
	metrics.RecordSentimentVolume(report.PostsAnalyzed, report.CommentsAnalyzed)

	s.logger.Info().
		Int("posts", len(posts)).
		Int("comments", len(comments)).
		Int("qualifying_posts", report.PostsAnalyzed).
		Int("mentions", report.TotalMentions).
		Str("confidence", string(report.Confidence)).
		Msg("Sentiment scrape complete")

	return report, nil
}

// fetchChannel walks up to Pages pages of a channel's hot listing. Posts from
// pages fetched before a failure are returned along with the error.
func (s *Scraper) fetchChannel(ctx context.Context, channel string) ([]Post, error) {
	var posts []Post
	after := ""
	for page := 0; page < max(s.cfg.Pages, 1); page++ {
		u := fmt.Sprintf("%s/r/%s/hot.json?limit=%d", s.cfg.BaseURL, url.PathEscape(channel), s.cfg.PostLimit)
		if after != "" {
			u += "&after=" + url.QueryEscape(after)
		}

		var l listing
		if err := s.fetchJSON(ctx, u, &l); err != nil {
			return posts, err
		}
		for _, child := range l.Data.Children {
			if child.Kind != "" && child.Kind != "t3" {
				continue
			}
			posts = append(posts, child.Data.post(channel, false))
		}

		after = l.Data.After
		if after == "" {
			break
		}
	}
	return posts, nil
}

// fetchTopComments pulls the comment listings of the highest scoring
// qualifying posts. Only context cancellation is returned as an error.
func (s *Scraper) fetchTopComments(ctx context.Context, posts []Post) ([]Post, error) {
	if s.cfg.CommentPosts <= 0 {
		return nil, nil
	}

	var candidates []Post
	for _, p := range posts {
		if p.ID != "" && s.analyzer.Qualifies(p) {
			candidates = append(candidates, p)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > s.cfg.CommentPosts {
		candidates = candidates[:s.cfg.CommentPosts]
	}

	var comments []Post
	for _, p := range candidates {
		u := fmt.Sprintf("%s/r/%s/comments/%s.json?limit=%d",
			s.cfg.BaseURL, url.PathEscape(p.Channel), url.PathEscape(p.ID), s.cfg.CommentLimit)

		var listings []listing
		err := s.fetchJSON(ctx, u, &listings)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, ErrCircuitOpen) {
				break
			}
			s.logger.Debug().Err(err).Str("post_id", p.ID).Msg("Comment fetch returned no data")
			continue
		}

		// [0] is the post itself, [1] its comments
		if len(listings) < 2 {
			continue
		}
		for _, child := range listings[1].Data.Children {
			if child.Kind != "t1" {
				continue
			}
			comments = append(comments, child.Data.post(p.Channel, true))
		}
	}
	return comments, nil
}

// fetchJSON performs a rate-limited, retried, breaker-guarded GET and decodes the body into out
func (s *Scraper) fetchJSON(ctx context.Context, u string, out any) error {
	policy := newRetryPolicy(s.cfg)

	op := func() error {
		if s.breaker.State() == gobreaker.StateOpen {
			return backoff.Permanent(ErrCircuitOpen)
		}
		if err := s.wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		_, err := s.breaker.Execute(func() (interface{}, error) {
			body, err := s.get(ctx, u)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(body, out); err != nil {
				return nil, fmt.Errorf("failed to decode listing: %w", err)
			}
			return nil, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		if err != nil {
			policy.last = err
			var statusErr *StatusError
			if errors.As(err, &statusErr) && !statusErr.Retryable() {
				return backoff.Permanent(err)
			}
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		metrics.RecordRetry(metricsSource, retryReason(err))
		s.logger.Info().
			Err(err).
			Str("url", u).
			Int("attempt", policy.attempt).
			Dur("backoff", wait).
			Msg("Retrying social channel request after backoff")
	}

	return backoff.RetryNotifyWithTimer(op, backoff.WithContext(policy, ctx), notify, &clockTimer{clock: s.clock})
}

// wait blocks on the clock until the limiter grants the next request
func (s *Scraper) wait(ctx context.Context) error {
	now := s.clock.Now()
	r := s.limiter.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("rate limiter cannot grant a request")
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		r.CancelAt(now)
		return ctx.Err()
	case <-s.clock.After(delay):
		return nil
	}
}

func (s *Scraper) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	s.requests.Add(1)
	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		metrics.RecordAPICall(metricsSource, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("social channel request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.RecordAPICall(metricsSource, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: u}
	}
	return body, nil
}

// retryPolicy is a linear backoff whose step depends on the last failure:
// forbidden and throttled responses wait longer than transport errors.
type retryPolicy struct {
	forbidden  time.Duration
	throttled  time.Duration
	other      time.Duration
	maxRetries int
	attempt    int
	last       error
}

func newRetryPolicy(cfg ScraperConfig) *retryPolicy {
	return &retryPolicy{
		forbidden:  cfg.ForbiddenStep,
		throttled:  cfg.ThrottleStep,
		other:      cfg.ErrorStep,
		maxRetries: cfg.MaxRetries,
	}
}

func (p *retryPolicy) Reset() {
	p.attempt = 0
	p.last = nil
}

func (p *retryPolicy) NextBackOff() time.Duration {
	if p.attempt >= p.maxRetries {
		return backoff.Stop
	}
	p.attempt++

	step := p.other
	var statusErr *StatusError
	if errors.As(p.last, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusForbidden:
			step = p.forbidden
		case http.StatusTooManyRequests:
			step = p.throttled
		}
	}
	return time.Duration(p.attempt) * step
}

func retryReason(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusForbidden:
			return "forbidden"
		case http.StatusTooManyRequests:
			return "throttled"
		}
		return "status_" + strconv.Itoa(statusErr.StatusCode)
	}
	return "transport"
}

// clockTimer drives backoff sleeps from the injected clock
type clockTimer struct {
	clock Clock
	c     <-chan time.Time
}

func (t *clockTimer) Start(d time.Duration) { t.c = t.clock.After(d) }

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time { return t.c }

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string `json:"kind"`
			Data thing  `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type thing struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	Body        string  `json:"body"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	CreatedUTC  float64 `json:"created_utc"`
}

func (t thing) post(channel string, comment bool) Post {
	p := Post{
		ID:          t.ID,
		Channel:     channel,
		Title:       t.Title,
		Text:        t.SelfText,
		Score:       t.Score,
		NumComments: t.NumComments,
		UpvoteRatio: t.UpvoteRatio,
		CreatedAt:   time.Unix(int64(t.CreatedUTC), 0).UTC(),
		IsComment:   comment,
	}
	if comment {
		p.Text = t.Body
	}
	return p
}
