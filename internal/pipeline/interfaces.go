package pipeline

import (
	"context"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
)

// DatasetSource produces the raw tables for a run. Implemented by the
// synthetic generator and by staging.CSVSource.
type DatasetSource interface {
	Dataset(ctx context.Context) (*domain.Dataset, error)
}

// RateSource returns the exchange-rate snapshot for the run. It never fails;
// a source that cannot reach its feed returns a fallback snapshot.
type RateSource interface {
	GetExchangeRates(ctx context.Context) domain.ExchangeRateSnapshot
}

// Archiver copies staged tables to object storage.
type Archiver interface {
	Archive(ctx context.Context, runID string, tables []*warehouse.Table) ([]string, error)
}

// Exporter publishes loaded rows to an analytics warehouse. It returns the
// rows written per table.
type Exporter interface {
	Export(ctx context.Context, runID string, facts []domain.FactTransactionRow, dates []domain.DateDimRow, metrics []domain.TransactionMetric) (map[string]int, error)
}
