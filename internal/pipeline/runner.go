package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/etl"
	"github.com/dvloznov/banking-analytics/internal/logger"
	"github.com/dvloznov/banking-analytics/internal/metrics"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
	"github.com/google/uuid"
)

// finishTimeout bounds the ledger update and metrics push after the steps.
const finishTimeout = 30 * time.Second

// Options wires a Runner. Archiver and Exporter are optional; PushURL
// enables a Pushgateway push at the end of the run.
type Options struct {
	Source   DatasetSource
	Rates    RateSource
	Store    warehouse.Store
	Archiver Archiver
	Exporter Exporter
	Metrics  *metrics.Registry

	PushURL string
	PushJob string

	DateStart time.Time
	DateEnd   time.Time

	Now      func() time.Time
	Rand     *rand.Rand
	NewRunID func() string
}

// Runner executes one full ETL run and records it in the run ledger.
type Runner struct {
	opts Options
}

// NewRunner fills unset clock, run-id and metrics options with defaults.
func NewRunner(opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}
	return &Runner{opts: opts}
}

// Metrics returns the registry the run reports into.
func (r *Runner) Metrics() *metrics.Registry {
	return r.opts.Metrics
}

// Pipeline assembles the steps for one run. The processing date is fixed
// when the pipeline is built.
func (r *Runner) Pipeline() *Pipeline {
	o := r.opts
	now := o.Now()

	loaderOpts := []etl.LoaderOption{etl.WithClock(o.Now)}
	if o.Rand != nil {
		loaderOpts = append(loaderOpts, etl.WithRand(o.Rand))
	}
	loader := etl.NewLoader(o.Store, loaderOpts...)

	steps := []Step{
		&SourceStep{Source: o.Source},
		&FetchRatesStep{Rates: o.Rates},
		&StageStep{Store: o.Store, Metrics: o.Metrics},
	}
	if o.Archiver != nil {
		steps = append(steps, &ArchiveStep{Archiver: o.Archiver})
	}
	steps = append(steps,
		&ExtractStep{Reader: o.Store, Metrics: o.Metrics},
		&TransformStep{Now: now, DateStart: o.DateStart, DateEnd: o.DateEnd},
		&LoadDimensionsStep{Loader: loader},
		&LoadFactsStep{Loader: loader, Metrics: o.Metrics},
	)
	if o.Exporter != nil {
		steps = append(steps, &ExportStep{Exporter: o.Exporter})
	}
	steps = append(steps, &SummarizeStep{Reader: o.Store})

	return NewPipeline(steps...).WithObserver(o.Metrics.ObserveStep)
}

// Run executes the pipeline under a fresh run id. The run is marked
// SUCCESS or FAILED in the ledger whatever the outcome, even after ctx is
// cancelled or expires. The returned state holds whatever the steps produced
// before any failure.
func (r *Runner) Run(ctx context.Context) (*State, error) {
	runID := r.opts.NewRunID()
	ctx, log := logger.WithRunID(ctx, runID)

	if err := r.opts.Store.StartRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("Run: recording start: %w", err)
	}
	log.Info().Msg("ETL run started")
	started := r.opts.Now()

	state := &State{RunID: runID}
	runErr := r.Pipeline().Execute(ctx, state)

	run := domain.Run{
		RunID:        runID,
		Status:       domain.RunStatusSuccess,
		FactsLoaded:  state.Facts.Inserted,
		FactsDropped: int64(state.Facts.Dropped),
	}
	if runErr != nil {
		run.Status = domain.RunStatusFailed
		run.ErrorMessage = warehouse.RunErrorMessage(runErr.Error())
	}
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := r.opts.Store.FinishRun(finishCtx, run); err != nil {
		log.Error().Err(err).Msg("Failed to record run outcome")
		if runErr == nil {
			runErr = fmt.Errorf("Run: recording finish: %w", err)
		}
	}

	r.opts.Metrics.RunFinished(runErr == nil)
	if r.opts.PushURL != "" {
		if err := r.opts.Metrics.Push(finishCtx, r.opts.PushURL, r.opts.PushJob, runID); err != nil {
			log.Warn().Err(err).Msg("Failed to push metrics")
		}
	}

	elapsed := r.opts.Now().Sub(started)
	if runErr != nil {
		log.Error().Err(runErr).Dur("duration", elapsed).Msg("ETL run failed")
		return state, runErr
	}
	log.Info().
		Dur("duration", elapsed).
		Int64("facts_loaded", run.FactsLoaded).
		Int64("facts_dropped", run.FactsDropped).
		Msg("ETL run completed")
	return state, nil
}
