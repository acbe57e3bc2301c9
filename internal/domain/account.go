package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a raw account as landed in staging.accounts.
type Account struct {
	AccountID     int64           `db:"account_id"`
	CustomerID    int64           `db:"customer_id"`
	AccountNumber string          `db:"account_number"`
	AccountType   string          `db:"account_type"`
	Currency      string          `db:"currency"`
	Balance       decimal.Decimal `db:"balance"`
	OpeningDate   *time.Time      `db:"opening_date"`
	Status        string          `db:"status"`
}

// Branch is static reference data from staging.branches.
type Branch struct {
	BranchID    int64     `db:"branch_id"`
	BranchName  string    `db:"branch_name"`
	City        string    `db:"city"`
	Address     string    `db:"address"`
	Region      string    `db:"region"`
	OpeningDate *time.Time `db:"opening_date"`
}

// Dataset bundles one generated (or imported) set of source tables.
type Dataset struct {
	Customers    []Customer
	Accounts     []Account
	Transactions []Transaction
	Branches     []Branch
}
