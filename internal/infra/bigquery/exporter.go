package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// Exported table names.
const (
	FactTable   = "fact_transactions"
	DateTable   = "dim_date"
	MetricTable = "transaction_metrics"
)

// insertBatch bounds the rows sent in one streaming insert request.
const insertBatch = 500

// Exporter streams loaded rows into a BigQuery dataset.
type Exporter struct {
	client  *bigquery.Client
	dataset string
	now     func() time.Time
}

// NewExporter creates an Exporter with its own client for projectID.
func NewExporter(ctx context.Context, projectID, dataset string) (*Exporter, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewExporter: bigquery client: %w", err)
	}
	return NewExporterWithClient(client, dataset), nil
}

// NewExporterWithClient creates an Exporter over a shared client.
func NewExporterWithClient(client *bigquery.Client, dataset string) *Exporter {
	return &Exporter{client: client, dataset: dataset, now: time.Now}
}

// Close closes the BigQuery client connection.
func (e *Exporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Export creates the tables if needed and streams facts, dates and metrics.
// It returns the rows sent per table.
func (e *Exporter) Export(ctx context.Context, runID string, facts []domain.FactTransactionRow, dates []domain.DateDimRow, metrics []domain.TransactionMetric) (map[string]int, error) {
	log := logger.FromContext(ctx)
	counts := make(map[string]int, 3)

	factRows := FactRows(runID, facts, e.now().UTC())
	if err := exportTable(ctx, e, FactTable, FactRow{}, factRows, factInsertID); err != nil {
		return counts, err
	}
	counts[FactTable] = len(factRows)

	dateRows := DateRows(dates)
	if err := exportTable(ctx, e, DateTable, DateRow{}, dateRows, dateInsertID); err != nil {
		return counts, err
	}
	counts[DateTable] = len(dateRows)

	metricRows := MetricRows(runID, metrics)
	if err := exportTable(ctx, e, MetricTable, MetricRow{}, metricRows, metricInsertID); err != nil {
		return counts, err
	}
	counts[MetricTable] = len(metricRows)

	log.Info().
		Str("dataset", e.dataset).
		Int("facts", counts[FactTable]).
		Int("dates", counts[DateTable]).
		Int("metrics", counts[MetricTable]).
		Msg("Exported to BigQuery")
	return counts, nil
}

func exportTable[T any](ctx context.Context, e *Exporter, name string, proto T, rows []*T, insertID func(*T) string) error {
	schema, err := bigquery.InferSchema(proto)
	if err != nil {
		return fmt.Errorf("Export: inferring %s schema: %w", name, err)
	}
	table := e.client.Dataset(e.dataset).Table(name)
	if err := table.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("Export: creating %s: %w", name, err)
	}

	inserter := table.Inserter()
	for _, batch := range savers(rows, schema, insertID) {
		if err := inserter.Put(ctx, batch); err != nil {
			return fmt.Errorf("Export: inserting into %s: %w", name, err)
		}
	}
	return nil
}

// savers wraps rows for streaming insert, split into batches.
func savers[T any](rows []*T, schema bigquery.Schema, insertID func(*T) string) [][]*bigquery.StructSaver {
	var batches [][]*bigquery.StructSaver
	for start := 0; start < len(rows); start += insertBatch {
		end := min(start+insertBatch, len(rows))
		batch := make([]*bigquery.StructSaver, 0, end-start)
		for _, r := range rows[start:end] {
			batch = append(batch, &bigquery.StructSaver{Struct: r, Schema: schema, InsertID: insertID(r)})
		}
		batches = append(batches, batch)
	}
	return batches
}

func isAlreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}

// FactCount returns the exported fact rows of one run.
func (e *Exporter) FactCount(ctx context.Context, runID string) (int64, error) {
	q := e.client.Query(fmt.Sprintf(
		"SELECT COUNT(*) AS n FROM `%s.%s` WHERE run_id = @run_id", e.dataset, FactTable))
	q.Parameters = []bigquery.QueryParameter{{Name: "run_id", Value: runID}}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("FactCount: query read: %w", err)
	}
	var row struct {
		N int64 `bigquery:"n"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("FactCount: iter next: %w", err)
	}
	return row.N, nil
}
