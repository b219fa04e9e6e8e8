package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	m := New()

	m.RowsInserted("tournaments", 3)
	m.RowsInserted("tournaments", 2)
	m.RowsInserted("odds", 0)
	m.FetchFailed("pgatour")
	m.TrainingRowsBuilt(7)
	m.ObserveFeatureBuild(150 * time.Millisecond)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.rowsInserted.WithLabelValues("tournaments")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetchFailures.WithLabelValues("pgatour")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.trainingRows))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RowsInserted("odds", 1)
		m.FetchFailed("golfodds")
		m.JobFinished("results", "completed")
		m.BreakerStateChanged("pgatour", "open")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.JobFinished("stats", "completed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `caddie_backfill_jobs_finished_total{status="completed",type="stats"} 1`)
}
