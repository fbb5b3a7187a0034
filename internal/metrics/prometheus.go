package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the pick engine

var (
	// Outbound API call metrics (ESPN, social channels)
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nflpicks_api_calls_total",
			Help: "Total number of outbound API calls",
		},
		[]string{"source", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nflpicks_api_call_duration_seconds",
			Help:    "Duration of outbound API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	APIRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nflpicks_api_retries_total",
			Help: "Total number of retried outbound API calls",
		},
		[]string{"source", "reason"},
	)

	// Inbound HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nflpicks_http_requests_total",
			Help: "Total number of handled HTTP requests",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nflpicks_http_request_duration_seconds",
			Help:    "Duration of handled HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Database metrics
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nflpicks_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "table", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nflpicks_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nflpicks_db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nflpicks_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// Sentiment metrics
	SentimentServedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nflpicks_sentiment_served_total",
			Help: "Sentiment reports served, by tier (live, cache, static)",
		},
		[]string{"tier"},
	)

	SentimentCacheAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nflpicks_sentiment_cache_age_seconds",
			Help: "Age of the cached sentiment report in seconds",
		},
	)

	SentimentPostsAnalyzed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nflpicks_sentiment_posts_analyzed_total",
			Help: "Total number of social posts analyzed",
		},
	)

	SentimentCommentsAnalyzed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nflpicks_sentiment_comments_analyzed_total",
			Help: "Total number of social comments analyzed",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nflpicks_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nflpicks_cache_operation_duration_seconds",
			Help:    "Duration of sentiment cache operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"backend", "operation"},
	)

	// Prediction metrics
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nflpicks_predictions_total",
			Help: "Predictions created, by method",
		},
		[]string{"method"},
	)

	PredictionFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nflpicks_prediction_fallbacks_total",
			Help: "Model path failures that fell back to the heuristic",
		},
		[]string{"reason"},
	)

	ModelTrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nflpicks_model_training_duration_seconds",
			Help:    "Duration of model training runs in seconds",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	// Scheduled job metrics
	SyncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nflpicks_sync_operations_total",
			Help: "Total number of scheduled sync operations",
		},
		[]string{"type", "status"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nflpicks_sync_duration_seconds",
			Help:    "Duration of sync operations in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"type"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nflpicks_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nflpicks_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)

	LastSuccessfulSync = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nflpicks_last_successful_sync_timestamp",
			Help: "Timestamp of last successful sync operation",
		},
		[]string{"type"},
	)
)

// RecordAPICall records an outbound API call metric
func RecordAPICall(source, status string, duration float64) {
	APICallsTotal.WithLabelValues(source, status).Inc()
	APICallDuration.WithLabelValues(source).Observe(duration)
}

// RecordHTTPRequest records a handled inbound request
func RecordHTTPRequest(route, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration)
}

// RecordRetry records a retried outbound call
func RecordRetry(source, reason string) {
	APIRetriesTotal.WithLabelValues(source, reason).Inc()
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table, status string, duration float64) {
	DBQueriesTotal.WithLabelValues(operation, table, status).Inc()
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration)
}

// RecordSentimentServed records which tier answered a sentiment read
func RecordSentimentServed(tier string) {
	SentimentServedTotal.WithLabelValues(tier).Inc()
}

// RecordSentimentVolume adds analyzed post and comment counts
func RecordSentimentVolume(posts, comments int) {
	SentimentPostsAnalyzed.Add(float64(posts))
	SentimentCommentsAnalyzed.Add(float64(comments))
}

// RecordCacheOperation records a cache backend operation duration
func RecordCacheOperation(backend, operation string, duration float64) {
	CacheOperationDuration.WithLabelValues(backend, operation).Observe(duration)
}

// SetBreakerState publishes the breaker state for name
func SetBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordPrediction records a created prediction
func RecordPrediction(method string) {
	PredictionsTotal.WithLabelValues(method).Inc()
}

// RecordFallback records a model path failure
func RecordFallback(reason string) {
	PredictionFallbacksTotal.WithLabelValues(reason).Inc()
}

// RecordTraining records a model training run
func RecordTraining(status string, duration float64) {
	ModelTrainingDuration.WithLabelValues(status).Observe(duration)
}

// RecordSync records a sync operation
func RecordSync(syncType, status string, duration float64) {
	SyncOperationsTotal.WithLabelValues(syncType, status).Inc()
	SyncDuration.WithLabelValues(syncType).Observe(duration)

	if status == "success" {
		LastSuccessfulSync.WithLabelValues(syncType).SetToCurrentTime()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(active, idle int32) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
