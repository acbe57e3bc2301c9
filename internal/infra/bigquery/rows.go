// Package bigquery exports loaded warehouse rows to BigQuery for analysis.
package bigquery

import (
	"math/big"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/shopspring/decimal"
)

// numericScale is the fractional precision of a BigQuery NUMERIC.
const numericScale = 9

type FactRow struct {
	RunID         string `bigquery:"run_id"`         // REQUIRED
	TransactionID int64  `bigquery:"transaction_id"` // REQUIRED

	DateKey            int64              `bigquery:"date_key"`             // REQUIRED
	TransactionDate    civil.Date         `bigquery:"transaction_date"`     // REQUIRED
	CustomerKey        int64              `bigquery:"customer_key"`         // REQUIRED
	AccountKey         int64              `bigquery:"account_key"`          // REQUIRED
	TransactionTypeKey int64              `bigquery:"transaction_type_key"` // REQUIRED
	BranchKey          bigquery.NullInt64 `bigquery:"branch_key"`           // NULLABLE

	AmountOriginal   *big.Rat `bigquery:"amount_original"`   // NUMERIC
	OriginalCurrency string   `bigquery:"original_currency"` // STRING
	AmountRub        *big.Rat `bigquery:"amount_rub"`        // NUMERIC
	ExchangeRate     *big.Rat `bigquery:"exchange_rate"`     // NUMERIC

	TransactionStatus string              `bigquery:"transaction_status"`
	Channel           string              `bigquery:"channel"`
	MerchantName      bigquery.NullString `bigquery:"merchant_name"` // NULLABLE

	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

type DateRow struct {
	DateKey    int64      `bigquery:"date_key"`  // REQUIRED
	FullDate   civil.Date `bigquery:"full_date"` // REQUIRED
	Year       int64      `bigquery:"year"`
	Quarter    int64      `bigquery:"quarter"`
	Month      int64      `bigquery:"month"`
	MonthName  string     `bigquery:"month_name"`
	Week       int64      `bigquery:"week"`
	DayOfMonth int64      `bigquery:"day_of_month"`
	DayOfWeek  int64      `bigquery:"day_of_week"` // Monday=1
	DayName    string     `bigquery:"day_name"`
	IsWeekend  bool       `bigquery:"is_weekend"`
}

type MetricRow struct {
	RunID            string   `bigquery:"run_id"`     // REQUIRED
	AccountID        int64    `bigquery:"account_id"` // REQUIRED
	TransactionType  string   `bigquery:"transaction_type"`
	SumRub           *big.Rat `bigquery:"sum_rub"`  // NUMERIC
	MeanRub          *big.Rat `bigquery:"mean_rub"` // NUMERIC
	CountBase        int64    `bigquery:"count_base"`
	TransactionCount int64    `bigquery:"transaction_count"`
}

// rat converts d to a NUMERIC-compatible rational.
func rat(d decimal.Decimal) *big.Rat {
	return d.Round(numericScale).Rat()
}

// dateKeyDate recovers the calendar date encoded in a YYYYMMDD key.
func dateKeyDate(key int) civil.Date {
	return civil.Date{Year: key / 10000, Month: time.Month(key / 100 % 100), Day: key % 100}
}

// FactRows maps fact rows to BigQuery rows stamped with runID.
func FactRows(runID string, facts []domain.FactTransactionRow, exported time.Time) []*FactRow {
	rows := make([]*FactRow, 0, len(facts))
	for _, f := range facts {
		row := &FactRow{
			RunID:              runID,
			TransactionID:      f.TransactionID,
			DateKey:            int64(f.DateKey),
			TransactionDate:    dateKeyDate(f.DateKey),
			CustomerKey:        f.CustomerKey,
			AccountKey:         f.AccountKey,
			TransactionTypeKey: f.TransactionTypeKey,
			AmountOriginal:     rat(f.AmountOriginal),
			OriginalCurrency:   f.OriginalCurrency,
			AmountRub:          rat(f.AmountRub),
			ExchangeRate:       rat(f.ExchangeRate),
			TransactionStatus:  f.TransactionStatus,
			Channel:            f.Channel,
			ExportedTS:         exported,
		}
		if f.BranchKey != nil {
			row.BranchKey = bigquery.NullInt64{Int64: *f.BranchKey, Valid: true}
		}
		if f.MerchantName != nil {
			row.MerchantName = bigquery.NullString{StringVal: *f.MerchantName, Valid: true}
		}
		rows = append(rows, row)
	}
	return rows
}

// DateRows maps date-dimension rows.
func DateRows(dates []domain.DateDimRow) []*DateRow {
	rows := make([]*DateRow, 0, len(dates))
	for _, d := range dates {
		rows = append(rows, &DateRow{
			DateKey:    int64(d.DateKey),
			FullDate:   civil.DateOf(d.Date),
			Year:       int64(d.Year),
			Quarter:    int64(d.Quarter),
			Month:      int64(d.Month),
			MonthName:  d.MonthName,
			Week:       int64(d.Week),
			DayOfMonth: int64(d.DayOfMonth),
			DayOfWeek:  int64(d.DayOfWeek),
			DayName:    d.DayName,
			IsWeekend:  d.IsWeekend,
		})
	}
	return rows
}

// MetricRows maps per-account metrics stamped with runID.
func MetricRows(runID string, metrics []domain.TransactionMetric) []*MetricRow {
	rows := make([]*MetricRow, 0, len(metrics))
	for _, m := range metrics {
		rows = append(rows, &MetricRow{
			RunID:            runID,
			AccountID:        m.AccountID,
			TransactionType:  m.TransactionType,
			SumRub:           rat(m.SumBase),
			MeanRub:          rat(m.MeanBase),
			CountBase:        int64(m.CountBase),
			TransactionCount: int64(m.TransactionCount),
		})
	}
	return rows
}

// Insert ids are natural keys so BigQuery can drop streaming retries.
func factInsertID(r *FactRow) string {
	return strconv.FormatInt(r.TransactionID, 10)
}

func dateInsertID(r *DateRow) string {
	return strconv.FormatInt(r.DateKey, 10)
}

func metricInsertID(r *MetricRow) string {
	return r.RunID + "/" + strconv.FormatInt(r.AccountID, 10) + "/" + r.TransactionType
}
