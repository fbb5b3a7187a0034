package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nflpicks/engine/internal/client"
	"nflpicks/engine/internal/config"
	"nflpicks/engine/internal/metrics"
	"nflpicks/engine/internal/models"
	"nflpicks/engine/internal/sentiment"
)

const shutdownFlushTimeout = 10 * time.Second

// SentimentRefresher scrapes and replaces the cached sentiment report
type SentimentRefresher interface {
	Refresh(ctx context.Context) (*models.SentimentReport, error)
	Cache() *sentiment.Cache
}

// NewsRefresher reloads the cached news sentiment scalar
type NewsRefresher interface {
	Refresh(ctx context.Context) error
}

// ScoreSource reports the current scoreboard
type ScoreSource interface {
	FetchScoreboard(ctx context.Context, season, week int) ([]client.ScoreUpdate, error)
}

// ResultStore records game results by ESPN id
type ResultStore interface {
	UpdateResult(ctx context.Context, espnGameID string, status models.GameStatus, homeScore, awayScore int) (bool, error)
}

// Options configure the jobs
type Options struct {
	SentimentCron string
	ScoreCron     string
	FlushInterval time.Duration
	RunOnStart    bool
}

// OptionsFromConfig reads the job settings from cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SentimentCron: cfg.SentimentRefreshCron,
		ScoreCron:     cfg.ScoreRefreshCron,
		FlushInterval: cfg.CacheFlushInterval,
		RunOnStart:    cfg.InitialSyncEnabled,
	}
}

// Period returns the interval between two consecutive runs of a cron spec
func Period(spec string, now time.Time) (time.Duration, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	next := sched.Next(now)
	return sched.Next(next).Sub(next), nil
}

// Status describes the sentiment refresh job
type Status struct {
	Running       bool       `json:"running"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	LastSuccess   *time.Time `json:"last_success,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	NextRun       *time.Time `json:"next_run,omitempty"`
	Runs          int        `json:"runs"`
	Failures      int        `json:"failures"`
	LastScoreSync *time.Time `json:"last_score_sync,omitempty"`
	ScoresUpdated int        `json:"scores_updated"`
}

// Scheduler runs the background jobs. It is the only writer of the
// sentiment cache entry.
type Scheduler struct {
	opts     Options
	provider SentimentRefresher
	scores   ScoreSource
	results  ResultStore
	news     NewsRefresher
	clock    clockwork.Clock
	logger   zerolog.Logger

	cron           *cron.Cron
	sentimentEntry cron.EntryID
	ticker         clockwork.Ticker
	stopChan       chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup

	mu     sync.RWMutex
	status Status
}

// NewScheduler creates a new scheduler instance. scores and results may be
// nil, in which case no score refresh job is registered.
func NewScheduler(opts Options, provider SentimentRefresher, scores ScoreSource, results ResultStore, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := log.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		opts:     opts,
		provider: provider,
		scores:   scores,
		results:  results,
		clock:    clock,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger}))),
		stopChan: make(chan struct{}),
	}
}

// SetNews registers a news cache that is refreshed on every sentiment tick
func (s *Scheduler) SetNews(news NewsRefresher) {
	s.news = news
}

// Start registers the cron jobs and the cache flush loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info().Msg("Scheduler starting...")

	id, err := s.cron.AddFunc(s.opts.SentimentCron, func() {
		s.tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sentiment refresh: %w", err)
	}
	s.sentimentEntry = id

	if s.scores != nil && s.results != nil && s.opts.ScoreCron != "" {
		if _, err := s.cron.AddFunc(s.opts.ScoreCron, func() {
			if _, err := s.RefreshScores(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Score refresh failed")
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule score refresh: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info().
		Str("sentiment_schedule", s.opts.SentimentCron).
		Str("score_schedule", s.opts.ScoreCron).
		Msg("Jobs scheduled")

	if s.opts.FlushInterval > 0 {
		s.ticker = s.clock.NewTicker(s.opts.FlushInterval)
		s.wg.Add(1)
		go s.flushLoop(ctx)
		s.logger.Info().Dur("interval", s.opts.FlushInterval).Msg("Cache flush loop started")
	}

	s.mu.Lock()
	s.status.Running = true
	s.mu.Unlock()

	if s.opts.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick(ctx)
		}()
	}

	return nil
}

// Stop stops cron and the flush loop, then flushes the cache one last time
func (s *Scheduler) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.logger.Info().Msg("Stopping scheduler...")

		<-s.cron.Stop().Done()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopChan)
		s.wg.Wait()

		s.mu.Lock()
		s.status.Running = false
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
		defer cancel()
		if err = s.provider.Cache().Close(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Shutdown cache flush failed")
		}
		s.logger.Info().Msg("Scheduler stopped")
	})
	return err
}

func (s *Scheduler) flushLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Context cancelled, stopping cache flush loop")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Stop signal received, stopping cache flush loop")
			return
		case <-s.ticker.Chan():
			if err := s.provider.Cache().Flush(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Periodic cache flush failed")
				metrics.RecordError("scheduler", "cache_flush")
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_ = s.RunSentimentOnce(ctx)
	_ = s.RefreshNews(ctx)
}

// RefreshNews reloads the news scalar used by feature building. A failure
// keeps the previous value until it expires.
func (s *Scheduler) RefreshNews(ctx context.Context) error {
	if s.news == nil {
		return nil
	}
	if err := s.news.Refresh(ctx); err != nil {
		metrics.RecordError("scheduler", "news_refresh")
		s.logger.Warn().Err(err).Msg("News refresh failed, keeping previous value")
		return err
	}
	return nil
}

// RunSentimentOnce scrapes once. On failure the previous cache entry stays.
func (s *Scheduler) RunSentimentOnce(ctx context.Context) error {
	start := s.clock.Now()
	report, err := s.provider.Refresh(ctx)
	duration := s.clock.Since(start)

	s.mu.Lock()
	s.status.Runs++
	s.status.LastRun = &start
	if err != nil {
		s.status.Failures++
		s.status.LastError = err.Error()
	} else {
		done := s.clock.Now()
		s.status.LastSuccess = &done
		s.status.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		metrics.RecordSync("sentiment", "failure", duration.Seconds())
		metrics.RecordError("scheduler", "sentiment_refresh")
		s.logger.Warn().Err(err).Dur("duration", duration).Msg("Sentiment refresh failed, keeping previous entry")
		return err
	}

	metrics.RecordSync("sentiment", "success", duration.Seconds())
	s.logger.Info().
		Int("posts", report.PostsAnalyzed).
		Int("comments", report.CommentsAnalyzed).
		Int("teams", len(report.Teams)).
		Dur("duration", duration).
		Msg("Sentiment refresh complete")
	return nil
}

// RefreshScores applies the current scoreboard to stored games and returns
// how many rows changed. Games not yet started are left alone.
func (s *Scheduler) RefreshScores(ctx context.Context) (int, error) {
	if s.scores == nil || s.results == nil {
		return 0, fmt.Errorf("score refresh is not configured")
	}
	start := s.clock.Now()

	updates, err := s.scores.FetchScoreboard(ctx, 0, 0)
	if err != nil {
		metrics.RecordSync("scores", "failure", s.clock.Since(start).Seconds())
		return 0, fmt.Errorf("failed to fetch scoreboard: %w", err)
	}

	updated := 0
	for _, u := range updates {
		if u.Status == models.StatusScheduled {
			continue
		}
		ok, err := s.results.UpdateResult(ctx, u.ESPNGameID, u.Status, u.HomeScore, u.AwayScore)
		if err != nil {
			s.logger.Error().Err(err).Str("espn_game_id", u.ESPNGameID).Msg("Failed to update game result")
			continue
		}
		if ok {
			updated++
		}
	}

	now := s.clock.Now()
	s.mu.Lock()
	s.status.LastScoreSync = &now
	s.status.ScoresUpdated = updated
	s.mu.Unlock()

	metrics.RecordSync("scores", "success", s.clock.Since(start).Seconds())
	s.logger.Info().
		Int("events", len(updates)).
		Int("updated", updated).
		Msg("Score refresh complete")
	return updated, nil
}

// Status reports the job state
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()

	if st.Running && s.sentimentEntry != 0 {
		if next := s.cron.Entry(s.sentimentEntry).Next; !next.IsZero() {
			st.NextRun = &next
		}
	}
	return st
}

// cronLogger routes cron's own messages through zerolog
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
