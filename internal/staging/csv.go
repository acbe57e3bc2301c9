package staging

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
	"github.com/shopspring/decimal"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = time.RFC3339
)

// timestampColumns are written with a time of day; other time columns are dates.
var timestampColumns = map[string]bool{
	"transaction_date": true,
}

// Dataset file names, one per staging table.
const (
	CustomersFile    = "customers.csv"
	AccountsFile     = "accounts.csv"
	TransactionsFile = "transactions.csv"
	BranchesFile     = "branches.csv"
)

// FileName returns the CSV file name for a staging table.
func FileName(spec warehouse.TableSpec) string {
	return spec.Name + ".csv"
}

// WriteCSV writes t with a header row of column names. Nil values are
// written as empty fields.
func WriteCSV(w io.Writer, t *warehouse.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Spec.Columns); err != nil {
		return fmt.Errorf("WriteCSV: header: %w", err)
	}
	record := make([]string, len(t.Spec.Columns))
	for i, row := range t.Rows {
		for j, v := range row {
			record[j] = formatValue(t.Spec.Columns[j], v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("WriteCSV: row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatValue(column string, v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case *int64:
		if x == nil {
			return ""
		}
		return strconv.FormatInt(*x, 10)
	case bool:
		return strconv.FormatBool(x)
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return formatTime(column, x)
	case *time.Time:
		if x == nil {
			return ""
		}
		return formatTime(column, *x)
	default:
		return fmt.Sprint(x)
	}
}

func formatTime(column string, t time.Time) string {
	if timestampColumns[column] {
		return t.UTC().Format(timestampLayout)
	}
	return t.Format(dateLayout)
}

// ErrMissingColumn is returned when a CSV header lacks a required column.
var ErrMissingColumn = errors.New("missing column")

// record reads one CSV row by column name, collecting the first parse error.
type record struct {
	index  map[string]int
	fields []string
	err    error
}

func (r *record) raw(col string) string {
	return r.fields[r.index[col]]
}

func (r *record) str(col string) string { return r.raw(col) }

func (r *record) strPtr(col string) *string {
	s := r.raw(col)
	if s == "" {
		return nil
	}
	return &s
}

func (r *record) i64(col string) int64 {
	n, err := strconv.ParseInt(r.raw(col), 10, 64)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%s: %w", col, err)
	}
	return n
}

func (r *record) dec(col string) decimal.Decimal {
	d, err := decimal.NewFromString(r.raw(col))
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%s: %w", col, err)
	}
	return d
}

func (r *record) date(col string) time.Time {
	t, err := parseTime(r.raw(col))
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%s: %w", col, err)
	}
	return t
}

func (r *record) datePtr(col string) *time.Time {
	if r.raw(col) == "" {
		return nil
	}
	t := r.date(col)
	return &t
}

// parseTime accepts RFC 3339 timestamps, "2006-01-02 15:04:05" and plain dates.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timestampLayout, "2006-01-02 15:04:05", dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// readRecords decodes a CSV stream whose header must include every column of
// spec, calling fn for each data row.
func readRecords(r io.Reader, spec warehouse.TableSpec, fn func(rec *record) error) error {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: header: %w", spec.Name, err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	for _, col := range spec.Columns {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("%s: %q: %w", spec.Name, col, ErrMissingColumn)
		}
	}

	for line := 2; ; line++ {
		fields, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: line %d: %w", spec.Name, line, err)
		}
		rec := &record{index: index, fields: fields}
		if err := fn(rec); err != nil {
			return fmt.Errorf("%s: line %d: %w", spec.Name, line, err)
		}
		if rec.err != nil {
			return fmt.Errorf("%s: line %d: %w", spec.Name, line, rec.err)
		}
	}
}

// ReadDataset decodes the four dataset files. open returns the content of a
// file by name.
func ReadDataset(open func(name string) (io.ReadCloser, error)) (*domain.Dataset, error) {
	var ds domain.Dataset

	readers := []struct {
		file string
		spec warehouse.TableSpec
		fn   func(rec *record) error
	}{
		{CustomersFile, warehouse.StagingCustomers, func(r *record) error {
			ds.Customers = append(ds.Customers, domain.Customer{
				CustomerID:       r.i64("customer_id"),
				FirstName:        r.str("first_name"),
				LastName:         r.str("last_name"),
				Email:            r.strPtr("email"),
				Phone:            r.strPtr("phone"),
				DateOfBirth:      r.datePtr("date_of_birth"),
				City:             r.str("city"),
				Country:          r.str("country"),
				RegistrationDate: r.datePtr("registration_date"),
				Segment:          r.str("customer_segment"),
			})
			return nil
		}},
		{AccountsFile, warehouse.StagingAccounts, func(r *record) error {
			ds.Accounts = append(ds.Accounts, domain.Account{
				AccountID:     r.i64("account_id"),
				CustomerID:    r.i64("customer_id"),
				AccountNumber: r.str("account_number"),
				AccountType:   r.str("account_type"),
				Currency:      r.str("currency"),
				Balance:       r.dec("balance"),
				OpeningDate:   r.datePtr("opening_date"),
				Status:        r.str("status"),
			})
			return nil
		}},
		{TransactionsFile, warehouse.StagingTransactions, func(r *record) error {
			ds.Transactions = append(ds.Transactions, domain.Transaction{
				TransactionID:   r.i64("transaction_id"),
				AccountID:       r.i64("account_id"),
				TransactionDate: r.datePtr("transaction_date"),
				TransactionType: r.str("transaction_type"),
				Amount:          r.dec("amount"),
				Currency:        r.str("currency"),
				MerchantName:    r.strPtr("merchant_name"),
				Status:          r.str("transaction_status"),
				Channel:         r.str("channel"),
			})
			return nil
		}},
		{BranchesFile, warehouse.StagingBranches, func(r *record) error {
			ds.Branches = append(ds.Branches, domain.Branch{
				BranchID:    r.i64("branch_id"),
				BranchName:  r.str("branch_name"),
				City:        r.str("city"),
				Address:     r.str("address"),
				Region:      r.str("region"),
				OpeningDate: r.datePtr("opening_date"),
			})
			return nil
		}},
	}

	for _, rd := range readers {
		rc, err := open(rd.file)
		if err != nil {
			return nil, fmt.Errorf("ReadDataset: opening %s: %w", rd.file, err)
		}
		err = readRecords(rc, rd.spec, rd.fn)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("ReadDataset: %w", err)
		}
	}
	return &ds, nil
}
