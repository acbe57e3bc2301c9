// Package postgres implements warehouse.Store on PostgreSQL through sqlx and
// the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/logger"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
	_ "github.com/jackc/pgx/v4/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
)

// maxParams is the Postgres limit on bind parameters per statement.
const maxParams = 65535

// Store is a warehouse.Store backed by a single sqlx handle.
type Store struct {
	db *sqlx.DB
}

var _ warehouse.Store = (*Store)(nil)

// Open connects to dsn with the pgx driver and verifies the server.
func Open(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	log := logger.FromContext(ctx)

	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: connecting to postgres: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	var version string
	if err := db.GetContext(ctx, &version, "SELECT version()"); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: reading server version: %w", err)
	}
	if i := strings.Index(version, ","); i > 0 {
		version = version[:i]
	}
	log.Info().Str("version", version).Msg("Connected to PostgreSQL")

	return NewStore(db), nil
}

// NewStore wraps an existing handle.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes t in one transaction using multi-row INSERT … ON CONFLICT
// DO NOTHING statements, chunked under the bind-parameter limit. Any error
// rolls the whole table back.
func (s *Store) Append(ctx context.Context, t *warehouse.Table) (int64, error) {
	log := logger.FromContext(ctx)
	name := t.Spec.QualifiedName()

	if len(t.Spec.Columns) == 0 {
		return 0, fmt.Errorf("Append: %s: %w", name, warehouse.ErrUnknownTable)
	}
	if t.Len() == 0 {
		log.Debug().Str("table", name).Msg("Nothing to load")
		return 0, nil
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Spec.Columns) {
			return 0, fmt.Errorf("Append: %s row %d: %w", name, i, warehouse.ErrColumnMismatch)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("Append: %s: beginning transaction: %w", name, err)
	}
	defer tx.Rollback() //nolint:errcheck

	perChunk := maxParams / len(t.Spec.Columns)
	var inserted int64
	for start := 0; start < len(t.Rows); start += perChunk {
		end := min(start+perChunk, len(t.Rows))
		query, args := insertStatement(t.Spec, t.Rows[start:end])

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("Append: %s: inserting rows %d-%d: %w", name, start, end-1, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("Append: %s: reading affected rows: %w", name, err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("Append: %s: committing: %w", name, err)
	}

	log.Debug().Str("table", name).Int("rows", t.Len()).Int64("inserted", inserted).Msg("Table loaded")
	return inserted, nil
}

// insertStatement renders one multi-row insert with positional parameters.
func insertStatement(spec warehouse.TableSpec, rows [][]any) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", spec.QualifiedName(), strings.Join(spec.Columns, ", "))

	args := make([]any, 0, len(rows)*len(spec.Columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			args = append(args, v)
			fmt.Fprintf(&b, "$%d", len(args))
		}
		b.WriteByte(')')
	}
	b.WriteString(" ON CONFLICT DO NOTHING")
	return b.String(), args
}

// StartRun records a RUNNING run.
func (s *Store) StartRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dwh.etl_runs (run_id, started_ts, status) VALUES ($1, $2, $3)`,
		runID, time.Now().UTC(), domain.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("StartRun: %w", err)
	}
	return nil
}

// FinishRun stores a run's final status and counts.
func (s *Store) FinishRun(ctx context.Context, run domain.Run) error {
	msg := warehouse.RunErrorMessage(run.ErrorMessage)
	res, err := s.db.ExecContext(ctx,
		`UPDATE dwh.etl_runs
		 SET finished_ts = $2, status = $3, error_message = $4, facts_loaded = $5, facts_dropped = $6
		 WHERE run_id = $1`,
		run.RunID, time.Now().UTC(), run.Status, msg, run.FactsLoaded, run.FactsDropped)
	if err != nil {
		return fmt.Errorf("FinishRun: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("FinishRun: run %s not started", run.RunID)
	}
	return nil
}

// LatestExchangeRate returns the most recent staged snapshot.
func (s *Store) LatestExchangeRate(ctx context.Context) (domain.ExchangeRateSnapshot, error) {
	var snap domain.ExchangeRateSnapshot
	err := s.db.GetContext(ctx, &snap,
		`SELECT date, usd_to_rub, eur_to_rub, usd_to_eur
		 FROM staging.exchange_rates
		 ORDER BY date DESC
		 LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, warehouse.ErrNoExchangeRates
	}
	if err != nil {
		return snap, fmt.Errorf("LatestExchangeRate: %w", err)
	}
	return snap, nil
}
