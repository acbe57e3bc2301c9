// Package pipeline sequences the ETL run: source, rates, staging, extract,
// transform, dimension and fact loads, optional archive and export, and the
// closing summary.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/etl"
	"github.com/dvloznov/banking-analytics/internal/logger"
	"github.com/dvloznov/banking-analytics/internal/staging"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
)

// Step is a single stage of the run.
type Step interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// State holds what each step hands to the next.
type State struct {
	RunID string

	Dataset      *domain.Dataset
	Rates        domain.ExchangeRateSnapshot
	Staged       []*warehouse.Table
	StagedCounts staging.Counts
	ArchivedURIs []string

	Snapshot     *staging.Snapshot
	Customers    []domain.CleanCustomer
	Transactions []domain.EnrichedTransaction
	Dates        []domain.DateDimRow
	Metrics      []domain.TransactionMetric

	Dimensions etl.DimensionCounts
	Facts      etl.FactLoadResult
	Exported   map[string]int
	Summary    domain.FactSummary
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps   []Step
	observe func(step string, d time.Duration)
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// WithObserver registers a callback receiving each finished step's duration.
func (p *Pipeline) WithObserver(fn func(step string, d time.Duration)) *Pipeline {
	p.observe = fn
	return p
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		stepCtx, stepLog := logger.WithStep(ctx, step.Name())

		start := time.Now()
		err := step.Execute(stepCtx, state)
		elapsed := time.Since(start)
		if p.observe != nil {
			p.observe(step.Name(), elapsed)
		}
		if err != nil {
			stepLog.Error().Err(err).Dur("duration", elapsed).Msg("Step failed")
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
		stepLog.Debug().Dur("duration", elapsed).Msg("Step finished")
	}
	return nil
}
