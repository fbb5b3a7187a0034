package main

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"nflpicks/engine/internal/models"
	"nflpicks/engine/internal/sentiment"
)

type stubSource struct {
	err error
}

func (s stubSource) Scrape(ctx context.Context) (*models.SentimentReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.SentimentReport{
		TotalMentions: 2,
		PostsAnalyzed: 5,
		Teams:         map[string]models.TeamSentiment{"Eagles": {Mentions: 2, Popularity: 20}},
		Provenance:    models.Provenance{Sources: []string{"nfl"}, Tier: models.TierLive},
	}, nil
}

func newSync(t *testing.T, store sentiment.Store, source sentiment.Source) (*SentimentSync, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	cache := sentiment.NewCache(store, clockwork.NewFakeClock(), 24*time.Hour)
	provider := sentiment.NewProvider(cache, source, nil, 0)
	return NewSentimentSync(provider, zap.New(core)), logs
}

func TestSync_PersistsReport(t *testing.T) {
	store := sentiment.NewMemoryStore()
	s, logs := newSync(t, store, stubSource{})

	report, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.PostsAnalyzed)

	entry, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.Report.TotalMentions)

	assert.Equal(t, 1, logs.FilterMessage("Sentiment sync complete").Len())
}

func TestSync_FailureKeepsStoredEntry(t *testing.T) {
	store := sentiment.NewMemoryStore()
	s, logs := newSync(t, store, stubSource{err: fmt.Errorf("scrape: %w", sentiment.ErrCircuitOpen)})

	_, err := s.Sync(context.Background())
	assert.ErrorIs(t, err, sentiment.ErrCircuitOpen)

	entry, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, 1, logs.FilterMessage("Scraping short-circuited, keeping previous entry").Len())
}

func TestRun_ConfigErrorExitsNonZero(t *testing.T) {
	t.Setenv("DATABASE_PASSWORD", "")
	core, logs := observer.New(zapcore.InfoLevel)

	assert.Equal(t, 1, run(zap.New(core)))
	assert.Equal(t, 1, logs.FilterMessage("Failed to load configuration").Len())
}

func TestRun_ClosesRedisOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("DATABASE_PASSWORD", "secret")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_HOST", mr.Host())
	t.Setenv("REDIS_PORT", mr.Port())
	t.Setenv("SENTIMENT_POLICY_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	core, logs := observer.New(zapcore.InfoLevel)

	assert.Equal(t, 1, run(zap.New(core)))
	assert.Equal(t, 1, logs.FilterMessage("Failed to load sentiment policy").Len())
	assert.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 }, time.Second, 10*time.Millisecond)
}
