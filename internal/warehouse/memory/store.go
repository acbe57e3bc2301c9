// Package memory implements warehouse.Store in process memory. It follows
// the Postgres schema semantics: surrogate keys come from a per-table
// sequence that is consumed even when a row is skipped as a duplicate, and
// rows whose unique key already exists are silently ignored.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
	"github.com/shopspring/decimal"
)

type record struct {
	key    int64
	values []any
}

type table struct {
	spec    warehouse.TableSpec
	rows    []record
	unique  map[string]struct{}
	nextKey int64
}

// Store is an in-memory warehouse.Store. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	tables map[string]*table
	runs   map[string]domain.Run
	closed bool
}

var _ warehouse.Store = (*Store)(nil)

// ErrClosed is returned by writes to a closed store.
var ErrClosed = errors.New("memory store closed")

// New creates a store holding every table of warehouse.AllTables.
func New() *Store {
	s := &Store{
		tables: make(map[string]*table, len(warehouse.AllTables)),
		runs:   make(map[string]domain.Run),
	}
	for _, spec := range warehouse.AllTables {
		s.tables[spec.QualifiedName()] = &table{spec: spec, unique: make(map[string]struct{})}
	}
	return s
}

// Append inserts rows, skipping duplicates of the table's unique key.
func (s *Store) Append(ctx context.Context, t *warehouse.Table) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("Append: %s: %w", t.Spec.QualifiedName(), ErrClosed)
	}
	tbl, ok := s.tables[t.Spec.QualifiedName()]
	if !ok {
		return 0, fmt.Errorf("Append: %s: %w", t.Spec.QualifiedName(), warehouse.ErrUnknownTable)
	}
	for i, row := range t.Rows {
		if len(row) != len(tbl.spec.Columns) {
			return 0, fmt.Errorf("Append: %s row %d: %w", tbl.spec.QualifiedName(), i, warehouse.ErrColumnMismatch)
		}
	}

	var inserted int64
	for _, row := range t.Rows {
		var key int64
		if tbl.spec.Surrogate != "" {
			tbl.nextKey++
			key = tbl.nextKey
		}

		uk, enforced := tbl.uniqueKey(row)
		if enforced {
			if _, dup := tbl.unique[uk]; dup {
				continue
			}
			tbl.unique[uk] = struct{}{}
		}

		values := make([]any, len(row))
		copy(values, row)
		tbl.rows = append(tbl.rows, record{key: key, values: values})
		inserted++
	}
	return inserted, nil
}

// uniqueKey builds the duplicate-detection key of a row. The second result
// is false when the uniqueness rule does not apply to the row.
func (t *table) uniqueKey(row []any) (string, bool) {
	if len(t.spec.Unique) == 0 {
		return "", false
	}
	if t.spec.CurrentOnly {
		idx := t.spec.ColumnIndex("is_current")
		if current, _ := row[idx].(bool); !current {
			return "", false
		}
	}
	key := ""
	for _, col := range t.spec.Unique {
		key += keyPart(row[t.spec.ColumnIndex(col)]) + "\x1f"
	}
	return key, true
}

func keyPart(v any) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if x == nil {
			return "<nil>"
		}
		return x.UTC().Format(time.RFC3339Nano)
	case *string:
		if x == nil {
			return "<nil>"
		}
		return *x
	case *int64:
		if x == nil {
			return "<nil>"
		}
		return fmt.Sprint(*x)
	case decimal.Decimal:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Count returns the number of rows stored for spec.
func (s *Store) Count(spec warehouse.TableSpec) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tbl, ok := s.tables[spec.QualifiedName()]; ok {
		return len(tbl.rows)
	}
	return 0
}

// Rows returns a copy of the stored rows for spec, surrogate key first when
// the table has one.
func (s *Store) Rows(spec warehouse.TableSpec) [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl, ok := s.tables[spec.QualifiedName()]
	if !ok {
		return nil
	}
	out := make([][]any, 0, len(tbl.rows))
	for _, r := range tbl.rows {
		row := make([]any, 0, len(r.values)+1)
		if spec.Surrogate != "" {
			row = append(row, r.key)
		}
		row = append(row, r.values...)
		out = append(out, row)
	}
	return out
}

// Run returns a recorded run.
func (s *Store) Run(runID string) (domain.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	return r, ok
}

// StartRun records a RUNNING run.
func (s *Store) StartRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("StartRun: %w", ErrClosed)
	}
	s.runs[runID] = domain.Run{RunID: runID, StartedTS: time.Now(), Status: domain.RunStatusRunning}
	return nil
}

// FinishRun updates a run's final state.
func (s *Store) FinishRun(ctx context.Context, run domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("FinishRun: %w", ErrClosed)
	}
	existing, ok := s.runs[run.RunID]
	if !ok {
		return fmt.Errorf("FinishRun: run %s not started", run.RunID)
	}
	now := time.Now()
	existing.FinishedTS = &now
	existing.Status = run.Status
	existing.ErrorMessage = run.ErrorMessage
	existing.FactsLoaded = run.FactsLoaded
	existing.FactsDropped = run.FactsDropped
	s.runs[run.RunID] = existing
	return nil
}

// Close marks the store closed. Later writes fail with ErrClosed; data
// stays readable for inspection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// each calls fn for every row of spec in insertion order.
func (s *Store) each(spec warehouse.TableSpec, fn func(r row)) {
	tbl := s.tables[spec.QualifiedName()]
	for _, rec := range tbl.rows {
		fn(row{spec: tbl.spec, rec: rec})
	}
}

func sortInt64s(keys []int64) {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
}
