package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExpirationSentinel marks a dimension row that has not been superseded.
var ExpirationSentinel = time.Date(2099, time.December, 31, 0, 0, 0, 0, time.UTC)

// DateDimRow is one calendar day of dwh.dim_date.
type DateDimRow struct {
	DateKey    int
	Date       time.Time
	Year       int
	Quarter    int
	Month      int
	MonthName  string
	Week       int
	DayOfMonth int
	DayOfWeek  int // Monday=1 ... Sunday=7
	DayName    string
	IsWeekend  bool
}

// FactTransactionRow is one row of dwh.fact_transactions with resolved
// surrogate keys. BranchKey is nil when no branch is loaded.
type FactTransactionRow struct {
	TransactionID      int64
	DateKey            int
	CustomerKey        int64
	AccountKey         int64
	TransactionTypeKey int64
	BranchKey          *int64
	AmountOriginal     decimal.Decimal
	OriginalCurrency   string
	AmountRub          decimal.Decimal
	ExchangeRate       decimal.Decimal
	TransactionStatus  string
	Channel            string
	MerchantName       *string
}

// FactSummary is the verification aggregate over dwh.fact_transactions.
type FactSummary struct {
	TotalTransactions int64           `db:"total_transactions"`
	TotalAmountRub    decimal.Decimal `db:"total_amount_rub"`
	AvgAmountRub      decimal.Decimal `db:"avg_amount_rub"`
}

// Run statuses recorded in dwh.etl_runs.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// Run is one pipeline execution in the run ledger.
type Run struct {
	RunID        string     `db:"run_id"`
	StartedTS    time.Time  `db:"started_ts"`
	FinishedTS   *time.Time `db:"finished_ts"`
	Status       string     `db:"status"`
	ErrorMessage string     `db:"error_message"`
	FactsLoaded  int64      `db:"facts_loaded"`
	FactsDropped int64      `db:"facts_dropped"`
}
