package warehouse

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTable is returned when a store has no definition for a table.
	ErrUnknownTable = errors.New("unknown table")

	// ErrColumnMismatch is returned when a row does not match its table's columns.
	ErrColumnMismatch = errors.New("column count mismatch")

	// ErrNoExchangeRates is returned when staging holds no exchange-rate row.
	ErrNoExchangeRates = errors.New("no exchange rates in staging")
)

// TableSpec describes one table of the staging or dwh schema.
//
// Surrogate names the store-assigned key column (empty for tables keyed by
// natural values). Unique lists the columns that make a row a duplicate;
// when CurrentOnly is set, uniqueness only applies among rows whose
// is_current column is true.
type TableSpec struct {
	Schema      string
	Name        string
	Surrogate   string
	Columns     []string
	Unique      []string
	CurrentOnly bool
}

// QualifiedName returns schema.table.
func (s TableSpec) QualifiedName() string {
	return s.Schema + "." + s.Name
}

// ColumnIndex returns the position of a column, or -1.
func (s TableSpec) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Table is a set of rows bound for a single table. Row values are ordered
// as Spec.Columns.
type Table struct {
	Spec TableSpec
	Rows [][]any
}

// NewTable creates an empty table for spec with room for n rows.
func NewTable(spec TableSpec, n int) *Table {
	return &Table{Spec: spec, Rows: make([][]any, 0, n)}
}

// Append adds one row after checking its arity.
func (t *Table) Append(values ...any) error {
	if len(values) != len(t.Spec.Columns) {
		return fmt.Errorf("%s: got %d values for %d columns: %w",
			t.Spec.QualifiedName(), len(values), len(t.Spec.Columns), ErrColumnMismatch)
	}
	t.Rows = append(t.Rows, values)
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}
