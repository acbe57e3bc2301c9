package warehouse

import (
	"context"

	"github.com/dvloznov/banking-analytics/internal/domain"
)

// Writer appends rows to a table, silently skipping rows whose unique key
// already exists. It returns the number of rows actually inserted.
type Writer interface {
	Append(ctx context.Context, t *Table) (int64, error)
}

// StagingReader reads the landing tables back in full.
type StagingReader interface {
	// Customers returns staging.customers rows with a customer_id.
	Customers(ctx context.Context) ([]domain.Customer, error)

	// Accounts returns staging.accounts rows with an account_id.
	Accounts(ctx context.Context) ([]domain.Account, error)

	// CompletedTransactions returns Completed transactions inner-joined to
	// their account to attach customer_id.
	CompletedTransactions(ctx context.Context) ([]domain.StagedTransaction, error)

	// Branches returns staging.branches rows with a branch_id.
	Branches(ctx context.Context) ([]domain.Branch, error)

	// LatestExchangeRate returns the most recent snapshot or ErrNoExchangeRates.
	LatestExchangeRate(ctx context.Context) (domain.ExchangeRateSnapshot, error)
}

// KeyReader reads surrogate-key mappings after dimensions are loaded.
type KeyReader interface {
	// CurrentCustomerKeys maps customer_id to customer_key for is_current rows.
	CurrentCustomerKeys(ctx context.Context) (map[int64]int64, error)

	// AccountKeys maps account_id to account_key.
	AccountKeys(ctx context.Context) (map[int64]int64, error)

	// TransactionTypeKeys maps transaction_type to transaction_type_key.
	TransactionTypeKeys(ctx context.Context) (map[string]int64, error)

	// BranchKeys returns all branch_key values in ascending order.
	BranchKeys(ctx context.Context) ([]int64, error)
}

// SummaryReader aggregates the fact table for verification.
type SummaryReader interface {
	FactSummary(ctx context.Context) (domain.FactSummary, error)
}

// RunRecorder keeps the pipeline run ledger.
type RunRecorder interface {
	// StartRun records a run with status RUNNING.
	StartRun(ctx context.Context, runID string) error

	// FinishRun stores the final status, error message and fact counts.
	FinishRun(ctx context.Context, run domain.Run) error
}

// Store is the single connection the pipeline holds for its whole run.
type Store interface {
	Writer
	StagingReader
	KeyReader
	SummaryReader
	RunRecorder
	Close() error
}
