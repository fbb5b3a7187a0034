package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"nfl_picks"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"nfl_user"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" required:"true"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`

	// Redis
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`

	// ESPN
	ESPNBaseURL string        `envconfig:"ESPN_BASE_URL" default:"https://site.api.espn.com/apis/site/v2/sports/football/nfl"`
	ESPNTimeout time.Duration `envconfig:"ESPN_TIMEOUT" default:"15s"`
	NewsMaxAge  time.Duration `envconfig:"NEWS_MAX_AGE" default:"3h"`

	// Sentiment scraping
	SentimentBaseURL       string        `envconfig:"SENTIMENT_BASE_URL" default:"https://www.reddit.com"`
	SentimentChannels      []string      `envconfig:"SENTIMENT_CHANNELS" default:"nfl,NFLbets,sportsbook"`
	SentimentUserAgent     string        `envconfig:"SENTIMENT_USER_AGENT" default:"NFL Predictions Bot 1.0"`
	SentimentPostLimit     int           `envconfig:"SENTIMENT_POST_LIMIT" default:"25"`
	SentimentPages         int           `envconfig:"SENTIMENT_PAGES" default:"1"`
	SentimentCommentPosts  int           `envconfig:"SENTIMENT_COMMENT_POSTS" default:"5"`
	SentimentCommentLimit  int           `envconfig:"SENTIMENT_COMMENT_LIMIT" default:"20"`
	SentimentMinInterval   time.Duration `envconfig:"SENTIMENT_MIN_INTERVAL" default:"3s"`
	SentimentMaxRetries    int           `envconfig:"SENTIMENT_MAX_RETRIES" default:"3"`
	SentimentForbiddenStep time.Duration `envconfig:"SENTIMENT_FORBIDDEN_BACKOFF" default:"5s"`
	SentimentThrottleStep  time.Duration `envconfig:"SENTIMENT_THROTTLE_BACKOFF" default:"10s"`
	SentimentErrorStep     time.Duration `envconfig:"SENTIMENT_ERROR_BACKOFF" default:"2s"`
	SentimentMaxFailures   int           `envconfig:"SENTIMENT_MAX_FAILED_REQUESTS" default:"10"`
	SentimentCooldown      time.Duration `envconfig:"SENTIMENT_BREAKER_COOLDOWN" default:"30m"`
	SentimentTimeout       time.Duration `envconfig:"SENTIMENT_REQUEST_TIMEOUT" default:"15s"`
	SentimentPolicyFile    string        `envconfig:"SENTIMENT_POLICY_FILE" default:""`

	// Sentiment cache
	CacheBackend       string        `envconfig:"CACHE_BACKEND" default:"file"`
	CacheFilePath      string        `envconfig:"CACHE_FILE_PATH" default:"sentiment_cache.json"`
	CacheRedisKey      string        `envconfig:"CACHE_REDIS_KEY" default:"nflpicks:sentiment:report"`
	CacheFreshness     time.Duration `envconfig:"CACHE_FRESHNESS" default:"24h"`
	CacheFlushInterval time.Duration `envconfig:"CACHE_FLUSH_INTERVAL" default:"5m"`

	// Scheduler
	EnableScheduler      bool   `envconfig:"ENABLE_SCHEDULER" default:"true"`
	InitialSyncEnabled   bool   `envconfig:"INITIAL_SYNC_ENABLED" default:"true"`
	SentimentRefreshCron string `envconfig:"SENTIMENT_REFRESH_CRON" default:"@every 1h"`
	ScoreRefreshCron     string `envconfig:"SCORE_REFRESH_CRON" default:"*/15 * * * *"`

	// Predictor
	PredictorMode    string `envconfig:"PREDICTOR_MODE" default:"auto"`
	MinTrainingGames int    `envconfig:"MIN_TRAINING_GAMES" default:"5"`
	ModelSeed        int64  `envconfig:"MODEL_SEED" default:"42"`
	ModelCVFolds     int    `envconfig:"MODEL_CV_FOLDS" default:"3"`
	ModelGridTrees   []int  `envconfig:"MODEL_GRID_TREES" default:"100,200"`
	ModelGridDepths  []int  `envconfig:"MODEL_GRID_DEPTHS" default:"6,8,10"`

	// Monitoring
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required")
	}

	switch c.CacheBackend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of memory, file, redis (got %q)", c.CacheBackend)
	}

	switch c.PredictorMode {
	case "auto", "model", "arithmetic":
	default:
		return fmt.Errorf("PREDICTOR_MODE must be one of auto, model, arithmetic (got %q)", c.PredictorMode)
	}

	if len(c.SentimentChannels) == 0 {
		return fmt.Errorf("SENTIMENT_CHANNELS must name at least one channel")
	}
	if c.SentimentMinInterval < 0 {
		return fmt.Errorf("SENTIMENT_MIN_INTERVAL cannot be negative")
	}
	if c.SentimentMaxFailures < 1 {
		return fmt.Errorf("SENTIMENT_MAX_FAILED_REQUESTS must be at least 1")
	}
	if c.CacheFreshness <= 0 {
		return fmt.Errorf("CACHE_FRESHNESS must be positive")
	}
	if c.MinTrainingGames < 1 {
		return fmt.Errorf("MIN_TRAINING_GAMES must be at least 1")
	}
	if c.ModelCVFolds < 2 {
		return fmt.Errorf("MODEL_CV_FOLDS must be at least 2")
	}
	if len(c.ModelGridTrees) == 0 || len(c.ModelGridDepths) == 0 {
		return fmt.Errorf("MODEL_GRID_TREES and MODEL_GRID_DEPTHS cannot be empty")
	}

	return nil
}

// DatabaseDSN returns the PostgreSQL connection string in key=value form
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dsnValue(c.DatabaseHost),
		c.DatabasePort,
		dsnValue(c.DatabaseUser),
		dsnValue(c.DatabasePassword),
		dsnValue(c.DatabaseName),
		dsnValue(c.DatabaseSSLMode),
	)
}

// dsnValue quotes v when it is empty or contains spaces, quotes or backslashes
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// MustLoad loads configuration or exits on error
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
