package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()
	r.RowsStaged.WithLabelValues("staging.customers").Add(100)
	r.RowsStaged.WithLabelValues("staging.accounts").Add(180)
	r.FactsLoaded.Add(4)
	r.FactsDropped.Inc()
	r.RunFinished(true)

	assert.Equal(t, 100.0, testutil.ToFloat64(r.RowsStaged.WithLabelValues("staging.customers")))
	assert.Equal(t, 180.0, testutil.ToFloat64(r.RowsStaged.WithLabelValues("staging.accounts")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.FactsLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FactsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.LastRunSuccess))

	r.RunFinished(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.LastRunSuccess))
}

func TestRegistry_ObserveStep(t *testing.T) {
	r := NewRegistry()
	r.ObserveStep("extract", 150*time.Millisecond)
	r.ObserveStep("load_facts", time.Second)

	n, err := testutil.GatherAndCount(r.Gatherer(), "banketl_step_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.RateFallback.Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "banketl_rate_fallback_total 1")
}

func TestRegistry_Push(t *testing.T) {
	var (
		gotPath string
		gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		body, _ := io.ReadAll(req.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRegistry()
	r.FactsLoaded.Add(7)
	require.NoError(t, r.Push(context.Background(), srv.URL, "banking_etl", "run-1"))

	assert.Equal(t, "/metrics/job/banking_etl/run_id/run-1", gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestRegistry_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewRegistry().Push(context.Background(), srv.URL, "banking_etl", "")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "Push: "))
}
