package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/banking-analytics/internal/etl"
	"github.com/dvloznov/banking-analytics/internal/logger"
	"github.com/dvloznov/banking-analytics/internal/metrics"
	"github.com/dvloznov/banking-analytics/internal/staging"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
)

var errNoDataset = errors.New("dataset source returned no data")

// SourceStep reads or generates the raw dataset.
type SourceStep struct {
	Source DatasetSource
}

func (s *SourceStep) Name() string { return "source" }

func (s *SourceStep) Execute(ctx context.Context, state *State) error {
	ds, err := s.Source.Dataset(ctx)
	if err != nil {
		return err
	}
	if ds == nil {
		return errNoDataset
	}
	state.Dataset = ds
	return nil
}

// FetchRatesStep takes the exchange-rate snapshot for the run.
type FetchRatesStep struct {
	Rates RateSource
}

func (s *FetchRatesStep) Name() string { return "fetch_rates" }

func (s *FetchRatesStep) Execute(ctx context.Context, state *State) error {
	state.Rates = s.Rates.GetExchangeRates(ctx)
	log := logger.FromContext(ctx)
	log.Info().
		Time("date", state.Rates.Date).
		Str("usd_to_rub", state.Rates.UsdToRub.String()).
		Str("eur_to_rub", state.Rates.EurToRub.String()).
		Str("usd_to_eur", state.Rates.UsdToEur.String()).
		Msg("Exchange rates ready")
	return nil
}

// StageStep lands the dataset and rate snapshot in the staging schema.
type StageStep struct {
	Store   warehouse.Writer
	Metrics *metrics.Registry
}

func (s *StageStep) Name() string { return "stage" }

func (s *StageStep) Execute(ctx context.Context, state *State) error {
	tables, counts, err := staging.Stage(ctx, s.Store, state.Dataset, state.Rates)
	if err != nil {
		return err
	}
	state.Staged, state.StagedCounts = tables, counts
	if s.Metrics != nil {
		for table, n := range counts {
			s.Metrics.RowsStaged.WithLabelValues(table).Add(float64(n))
		}
	}
	return nil
}

// ArchiveStep uploads the staged tables as CSV.
type ArchiveStep struct {
	Archiver Archiver
}

func (s *ArchiveStep) Name() string { return "archive" }

func (s *ArchiveStep) Execute(ctx context.Context, state *State) error {
	uris, err := s.Archiver.Archive(ctx, state.RunID, state.Staged)
	state.ArchivedURIs = uris
	return err
}

// ExtractStep reads staging back for transformation.
type ExtractStep struct {
	Reader  warehouse.StagingReader
	Metrics *metrics.Registry
}

func (s *ExtractStep) Name() string { return "extract" }

func (s *ExtractStep) Execute(ctx context.Context, state *State) error {
	snap, err := staging.NewExtractor(s.Reader).ExtractAll(ctx)
	if err != nil {
		return err
	}
	state.Snapshot = snap
	if s.Metrics != nil {
		for table, n := range snap.Counts() {
			s.Metrics.RowsExtracted.WithLabelValues(table).Add(float64(n))
		}
	}
	return nil
}

// TransformStep cleans the extracted rows, converts amounts to the base
// currency with the staged snapshot, and builds the date dimension.
type TransformStep struct {
	Now       time.Time
	DateStart time.Time
	DateEnd   time.Time
}

func (s *TransformStep) Name() string { return "transform" }

func (s *TransformStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)
	if s.DateEnd.Before(s.DateStart) {
		return fmt.Errorf("date dimension range %s..%s is inverted",
			s.DateStart.Format(time.DateOnly), s.DateEnd.Format(time.DateOnly))
	}

	snap := state.Snapshot
	t := etl.NewTransformer(s.Now)

	state.Customers = t.CleanCustomers(snap.Customers)
	cleaned := t.CleanTransactions(snap.Transactions)
	state.Transactions = t.EnrichWithCurrencyRates(cleaned, snap.Rates)
	state.Dates = etl.CreateDateDimension(s.DateStart, s.DateEnd)
	state.Metrics = t.AggregateTransactionMetrics(state.Transactions)

	log.Info().
		Int("customers", len(state.Customers)).
		Int("transactions", len(state.Transactions)).
		Int("filtered_out", len(snap.Transactions)-len(cleaned)).
		Int("dates", len(state.Dates)).
		Int("metric_groups", len(state.Metrics)).
		Msg("Transformed data")
	return nil
}

// LoadDimensionsStep writes the dimension tables.
type LoadDimensionsStep struct {
	Loader *etl.Loader
}

func (s *LoadDimensionsStep) Name() string { return "load_dimensions" }

func (s *LoadDimensionsStep) Execute(ctx context.Context, state *State) error {
	counts, err := s.Loader.LoadDimensions(ctx, state.Customers, state.Snapshot.Accounts, state.Snapshot.Branches, state.Dates)
	if err != nil {
		return err
	}
	state.Dimensions = counts
	return nil
}

// LoadFactsStep resolves surrogate keys and writes the fact table.
type LoadFactsStep struct {
	Loader  *etl.Loader
	Metrics *metrics.Registry
}

func (s *LoadFactsStep) Name() string { return "load_facts" }

func (s *LoadFactsStep) Execute(ctx context.Context, state *State) error {
	res, err := s.Loader.LoadFactTable(ctx, state.Transactions)
	if err != nil {
		return err
	}
	state.Facts = res
	if s.Metrics != nil {
		s.Metrics.FactsLoaded.Add(float64(res.Inserted))
		s.Metrics.FactsDropped.Add(float64(res.Dropped))
	}
	return nil
}

// ExportStep publishes facts, dates and metrics to the analytics warehouse.
type ExportStep struct {
	Exporter Exporter
}

func (s *ExportStep) Name() string { return "export" }

func (s *ExportStep) Execute(ctx context.Context, state *State) error {
	counts, err := s.Exporter.Export(ctx, state.RunID, state.Facts.Facts, state.Dates, state.Metrics)
	state.Exported = counts
	return err
}

// SummarizeStep reads the verification aggregate over the fact table.
type SummarizeStep struct {
	Reader warehouse.SummaryReader
}

func (s *SummarizeStep) Name() string { return "summarize" }

func (s *SummarizeStep) Execute(ctx context.Context, state *State) error {
	summary, err := s.Reader.FactSummary(ctx)
	if err != nil {
		return err
	}
	state.Summary = summary
	log := logger.FromContext(ctx)
	log.Info().
		Int64("total_transactions", summary.TotalTransactions).
		Str("total_amount_rub", summary.TotalAmountRub.StringFixed(2)).
		Str("avg_amount_rub", summary.AvgAmountRub.StringFixed(2)).
		Msg("Fact table summary")
	return nil
}
