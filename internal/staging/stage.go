package staging

import (
	"context"
	"fmt"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/logger"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
)

// Counts maps a qualified table name to the rows inserted into it.
type Counts map[string]int64

// Stage writes the dataset and the rate snapshot to the staging schema in
// the order customers, accounts, transactions, branches, exchange_rates.
// It returns the staged tables alongside the insert counts.
func Stage(ctx context.Context, w warehouse.Writer, ds *domain.Dataset, rates domain.ExchangeRateSnapshot) ([]*warehouse.Table, Counts, error) {
	log := logger.FromContext(ctx)

	tables, err := DatasetTables(ds)
	if err != nil {
		return nil, nil, fmt.Errorf("Stage: building tables: %w", err)
	}
	rt, err := ExchangeRatesTable(rates)
	if err != nil {
		return nil, nil, fmt.Errorf("Stage: building exchange rates: %w", err)
	}
	tables = append(tables, rt)

	counts := make(Counts, len(tables))
	for _, t := range tables {
		n, err := w.Append(ctx, t)
		if err != nil {
			return nil, counts, fmt.Errorf("Stage: loading %s: %w", t.Spec.QualifiedName(), err)
		}
		counts[t.Spec.QualifiedName()] = n
		log.Info().
			Str("table", t.Spec.QualifiedName()).
			Int("rows", t.Len()).
			Int64("inserted", n).
			Msg("Staged table")
	}
	return tables, counts, nil
}
