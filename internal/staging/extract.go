package staging

import (
	"context"
	"fmt"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/logger"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
)

// Snapshot is everything the transform phase reads from staging.
type Snapshot struct {
	Customers    []domain.Customer
	Accounts     []domain.Account
	Transactions []domain.StagedTransaction
	Branches     []domain.Branch
	Rates        domain.ExchangeRateSnapshot
}

// Extractor reads the staging schema.
type Extractor struct {
	reader warehouse.StagingReader
}

// NewExtractor creates an Extractor over r.
func NewExtractor(r warehouse.StagingReader) *Extractor {
	return &Extractor{reader: r}
}

// ExtractAll reads customers, accounts, Completed transactions with their
// owning customer, branches and the latest exchange-rate snapshot.
func (e *Extractor) ExtractAll(ctx context.Context) (*Snapshot, error) {
	log := logger.FromContext(ctx)
	var (
		s   Snapshot
		err error
	)

	if s.Customers, err = e.reader.Customers(ctx); err != nil {
		return nil, fmt.Errorf("ExtractAll: customers: %w", err)
	}
	if s.Accounts, err = e.reader.Accounts(ctx); err != nil {
		return nil, fmt.Errorf("ExtractAll: accounts: %w", err)
	}
	if s.Transactions, err = e.reader.CompletedTransactions(ctx); err != nil {
		return nil, fmt.Errorf("ExtractAll: transactions: %w", err)
	}
	if s.Branches, err = e.reader.Branches(ctx); err != nil {
		return nil, fmt.Errorf("ExtractAll: branches: %w", err)
	}
	if s.Rates, err = e.reader.LatestExchangeRate(ctx); err != nil {
		return nil, fmt.Errorf("ExtractAll: exchange rates: %w", err)
	}

	log.Info().
		Int("customers", len(s.Customers)).
		Int("accounts", len(s.Accounts)).
		Int("transactions", len(s.Transactions)).
		Int("branches", len(s.Branches)).
		Time("rates_date", s.Rates.Date).
		Msg("Extracted staging data")
	return &s, nil
}

// Counts returns the extracted row count per staging table.
func (s *Snapshot) Counts() map[string]int {
	return map[string]int{
		warehouse.StagingCustomers.Name:    len(s.Customers),
		warehouse.StagingAccounts.Name:     len(s.Accounts),
		warehouse.StagingTransactions.Name: len(s.Transactions),
		warehouse.StagingBranches.Name:     len(s.Branches),
	}
}
