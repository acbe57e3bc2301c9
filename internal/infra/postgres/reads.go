package postgres

import (
	"context"
	"fmt"

	"github.com/dvloznov/banking-analytics/internal/domain"
)

const (
	selectCustomers = `
		SELECT customer_id, first_name, last_name, email, phone, date_of_birth,
		       city, country, registration_date, customer_segment
		FROM staging.customers
		WHERE customer_id IS NOT NULL
		ORDER BY customer_id`

	selectAccounts = `
		SELECT account_id, customer_id, account_number, account_type, currency,
		       balance, opening_date, status
		FROM staging.accounts
		WHERE account_id IS NOT NULL
		ORDER BY account_id`

	selectCompletedTransactions = `
		SELECT t.transaction_id, t.account_id, t.transaction_date, t.transaction_type,
		       t.amount, t.currency, t.merchant_name, t.transaction_status, t.channel,
		       a.customer_id
		FROM staging.transactions t
		JOIN staging.accounts a ON a.account_id = t.account_id
		WHERE t.transaction_status = 'Completed'
		ORDER BY t.transaction_id`

	selectBranches = `
		SELECT branch_id, branch_name, city, address, region, opening_date
		FROM staging.branches
		WHERE branch_id IS NOT NULL
		ORDER BY branch_id`

	selectFactSummary = `
		SELECT COUNT(*) AS total_transactions,
		       COALESCE(SUM(amount_rub), 0) AS total_amount_rub,
		       COALESCE(AVG(amount_rub), 0) AS avg_amount_rub
		FROM dwh.fact_transactions`
)

// Customers returns staging customers ordered by customer_id.
func (s *Store) Customers(ctx context.Context) ([]domain.Customer, error) {
	var rows []domain.Customer
	if err := s.db.SelectContext(ctx, &rows, selectCustomers); err != nil {
		return nil, fmt.Errorf("Customers: %w", err)
	}
	return rows, nil
}

// Accounts returns staging accounts ordered by account_id.
func (s *Store) Accounts(ctx context.Context) ([]domain.Account, error) {
	var rows []domain.Account
	if err := s.db.SelectContext(ctx, &rows, selectAccounts); err != nil {
		return nil, fmt.Errorf("Accounts: %w", err)
	}
	return rows, nil
}

// CompletedTransactions returns Completed transactions joined to their
// account's customer.
func (s *Store) CompletedTransactions(ctx context.Context) ([]domain.StagedTransaction, error) {
	var rows []domain.StagedTransaction
	if err := s.db.SelectContext(ctx, &rows, selectCompletedTransactions); err != nil {
		return nil, fmt.Errorf("CompletedTransactions: %w", err)
	}
	return rows, nil
}

// Branches returns staging branches ordered by branch_id.
func (s *Store) Branches(ctx context.Context) ([]domain.Branch, error) {
	var rows []domain.Branch
	if err := s.db.SelectContext(ctx, &rows, selectBranches); err != nil {
		return nil, fmt.Errorf("Branches: %w", err)
	}
	return rows, nil
}

type idKey struct {
	ID  int64 `db:"id"`
	Key int64 `db:"surrogate"`
}

func (s *Store) idKeys(ctx context.Context, op, query string) (map[int64]int64, error) {
	var rows []idKey
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := make(map[int64]int64, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Key
	}
	return out, nil
}

// CurrentCustomerKeys maps customer_id to customer_key for current rows.
func (s *Store) CurrentCustomerKeys(ctx context.Context) (map[int64]int64, error) {
	return s.idKeys(ctx, "CurrentCustomerKeys",
		`SELECT customer_id AS id, customer_key AS surrogate FROM dwh.dim_customer WHERE is_current = TRUE`)
}

// AccountKeys maps account_id to account_key.
func (s *Store) AccountKeys(ctx context.Context) (map[int64]int64, error) {
	return s.idKeys(ctx, "AccountKeys",
		`SELECT account_id AS id, account_key AS surrogate FROM dwh.dim_account`)
}

// TransactionTypeKeys maps transaction_type to transaction_type_key.
func (s *Store) TransactionTypeKeys(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Type string `db:"transaction_type"`
		Key  int64  `db:"transaction_type_key"`
	}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT transaction_type, transaction_type_key FROM dwh.dim_transaction_type`); err != nil {
		return nil, fmt.Errorf("TransactionTypeKeys: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Type] = r.Key
	}
	return out, nil
}

// BranchKeys returns every branch_key in ascending order.
func (s *Store) BranchKeys(ctx context.Context) ([]int64, error) {
	var keys []int64
	if err := s.db.SelectContext(ctx, &keys, `SELECT branch_key FROM dwh.dim_branch ORDER BY branch_key`); err != nil {
		return nil, fmt.Errorf("BranchKeys: %w", err)
	}
	return keys, nil
}

// FactSummary counts and totals the fact table.
func (s *Store) FactSummary(ctx context.Context) (domain.FactSummary, error) {
	var sum domain.FactSummary
	if err := s.db.GetContext(ctx, &sum, selectFactSummary); err != nil {
		return sum, fmt.Errorf("FactSummary: %w", err)
	}
	return sum, nil
}
