package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction statuses produced by the generator.
const (
	StatusCompleted = "Completed"
	StatusPending   = "Pending"
	StatusFailed    = "Failed"
)

// Transaction types known to dim_transaction_type.
const (
	TxTypeDeposit    = "Deposit"
	TxTypeWithdrawal = "Withdrawal"
	TxTypeTransfer   = "Transfer"
	TxTypePayment    = "Payment"
	TxTypeATM        = "ATM"
)

// OutlierAmount is the exclusive upper bound for a cleaned transaction amount.
var OutlierAmount = decimal.NewFromInt(1_000_000)

// Transaction is a raw transaction as landed in staging.transactions.
// TransactionDate is nil when the source left it blank.
type Transaction struct {
	TransactionID   int64           `db:"transaction_id"`
	AccountID       int64           `db:"account_id"`
	TransactionDate *time.Time      `db:"transaction_date"`
	TransactionType string          `db:"transaction_type"`
	Amount          decimal.Decimal `db:"amount"`
	Currency        string          `db:"currency"`
	MerchantName    *string         `db:"merchant_name"`
	Status          string          `db:"transaction_status"`
	Channel         string          `db:"channel"`
}

// StagedTransaction is a transaction read back from staging with the owning
// customer attached through its account.
type StagedTransaction struct {
	Transaction
	CustomerID int64 `db:"customer_id"`
}

// EnrichedTransaction carries the base-currency amount and the rate applied.
type EnrichedTransaction struct {
	StagedTransaction
	AmountBase decimal.Decimal
	RateUsed   decimal.Decimal
}

// TransactionType is a row of the static dim_transaction_type lookup.
type TransactionType struct {
	Type        string
	Category    string
	Description string
}

// TransactionMetric aggregates base-currency amounts per account and type.
type TransactionMetric struct {
	AccountID        int64
	TransactionType  string
	SumBase          decimal.Decimal
	MeanBase         decimal.Decimal
	CountBase        int
	TransactionCount int
}
