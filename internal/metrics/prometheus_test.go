package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSentimentServed(t *testing.T) {
	before := testutil.ToFloat64(SentimentServedTotal.WithLabelValues("static"))
	RecordSentimentServed("static")
	RecordSentimentServed("static")
	assert.Equal(t, before+2, testutil.ToFloat64(SentimentServedTotal.WithLabelValues("static")))
}

func TestRecordSync_SetsLastSuccess(t *testing.T) {
	RecordSync("sentiment", "success", 1.5)
	assert.Greater(t, testutil.ToFloat64(LastSuccessfulSync.WithLabelValues("sentiment")), 0.0)

	before := testutil.ToFloat64(SyncOperationsTotal.WithLabelValues("sentiment", "failure"))
	RecordSync("sentiment", "failure", 0.2)
	assert.Equal(t, before+1, testutil.ToFloat64(SyncOperationsTotal.WithLabelValues("sentiment", "failure")))
}

func TestSetBreakerState(t *testing.T) {
	SetBreakerState("social", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("social")))
	SetBreakerState("social", 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("social")))
}
