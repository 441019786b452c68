package jobmetrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Outcome(nil))
	assert.Equal(t, OutcomeRetry, Outcome(errors.New("smtp timeout")))
	assert.Equal(t, OutcomeDropped, Outcome(fmt.Errorf("quote 7: %w", asynq.SkipRetry)))
}

func TestTrackerRecordsRuns(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	require.NotNil(t, m)
	clock := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	assert.NoError(t, m.Track("quote:deliver").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("quote:deliver").End(boom), boom)
	assert.Error(t, m.Track("quote:deliver").End(fmt.Errorf("no recipient: %w", asynq.SkipRetry)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("quote:deliver", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("quote:deliver", OutcomeRetry)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("quote:deliver", OutcomeDropped)))
	assert.Equal(t, float64(clock.Unix()), testutil.ToFloat64(m.lastSuccess.WithLabelValues("quote:deliver")))
}

func TestNilMetricsAreInert(t *testing.T) {
	assert.Nil(t, NewMetrics(nil))

	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("mail:send").End(boom), boom)
}
