// Package metrics holds the counters a pipeline run reports and pushes them
// to a Prometheus Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Registry struct {
	reg            *prometheus.Registry
	RowsStaged     *prometheus.CounterVec
	RowsExtracted  *prometheus.CounterVec
	FactsLoaded    prometheus.Counter
	FactsDropped   prometheus.Counter
	RateFallback   prometheus.Counter
	StepDuration   *prometheus.HistogramVec
	LastRunSuccess prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	staged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "banketl_rows_staged_total",
		Help: "Rows inserted into staging tables.",
	}, []string{"table"})
	extracted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "banketl_rows_extracted_total",
		Help: "Rows read back from staging tables.",
	}, []string{"table"})
	loaded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "banketl_facts_loaded_total",
		Help: "Fact rows inserted into dwh.fact_transactions.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "banketl_facts_dropped_total",
		Help: "Transactions dropped because a dimension key did not resolve.",
	})
	fallback := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "banketl_rate_fallback_total",
		Help: "Times the default exchange rates replaced the live feed.",
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "banketl_step_duration_seconds",
		Help:    "Wall time of each pipeline step.",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})
	success := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "banketl_last_run_success",
		Help: "1 if the last run succeeded, 0 otherwise.",
	})

	r.MustRegister(staged, extracted, loaded, dropped, fallback, duration, success)
	return &Registry{
		reg:            r,
		RowsStaged:     staged,
		RowsExtracted:  extracted,
		FactsLoaded:    loaded,
		FactsDropped:   dropped,
		RateFallback:   fallback,
		StepDuration:   duration,
		LastRunSuccess: success,
	}
}

// ObserveStep records how long a named step took.
func (r *Registry) ObserveStep(step string, d time.Duration) {
	r.StepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// RunFinished sets the success gauge.
func (r *Registry) RunFinished(ok bool) {
	if ok {
		r.LastRunSuccess.Set(1)
		return
	}
	r.LastRunSuccess.Set(0)
}

// Gatherer exposes the private registry for pushing and tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Push replaces the job's metrics on the Pushgateway at url, grouped by run.
func (r *Registry) Push(ctx context.Context, url, job, runID string) error {
	p := push.New(url, job).Gatherer(r.Gatherer())
	if runID != "" {
		p = p.Grouping("run_id", runID)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("Push: %s: %w", url, err)
	}
	return nil
}
