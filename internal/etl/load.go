package etl

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/logger"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
)

// LoaderStore is the part of the warehouse the loader needs.
type LoaderStore interface {
	warehouse.Writer
	warehouse.KeyReader
}

// DimensionCounts reports rows inserted per dimension.
type DimensionCounts struct {
	Customers        int64
	Accounts         int64
	Branches         int64
	Dates            int64
	TransactionTypes int64
}

// FactLoadResult reports the outcome of a fact load.
type FactLoadResult struct {
	Resolved int   // rows that passed the integrity gate
	Dropped  int   // rows with an unresolved dimension key
	Inserted int64 // rows actually written, after conflict skipping
	Facts    []domain.FactTransactionRow
}

// KeySet holds the surrogate-key lookups read back from the dimensions.
type KeySet struct {
	Customers        map[int64]int64
	Accounts         map[int64]int64
	TransactionTypes map[string]int64
	Branches         []int64
}

// Loader writes dimension and fact rows into the warehouse.
type Loader struct {
	store LoaderStore
	rng   *rand.Rand
	now   func() time.Time
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithRand sets the source used for branch assignment.
func WithRand(r *rand.Rand) LoaderOption {
	return func(l *Loader) { l.rng = r }
}

// WithClock sets the clock that stamps dim_customer.effective_date.
func WithClock(now func() time.Time) LoaderOption {
	return func(l *Loader) { l.now = now }
}

// NewLoader creates a Loader over store.
func NewLoader(store LoaderStore, opts ...LoaderOption) *Loader {
	l := &Loader{
		store: store,
		rng:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TransactionTypes returns the static transaction-type lookup.
func TransactionTypes() []domain.TransactionType {
	return []domain.TransactionType{
		{Type: domain.TxTypeDeposit, Category: "Income", Description: "Money deposit"},
		{Type: domain.TxTypeWithdrawal, Category: "Expense", Description: "Cash withdrawal"},
		{Type: domain.TxTypeTransfer, Category: "Transfer", Description: "Money transfer"},
		{Type: domain.TxTypePayment, Category: "Expense", Description: "Bill payment"},
		{Type: domain.TxTypeATM, Category: "Expense", Description: "ATM withdrawal"},
	}
}

// LoadDimensions writes customer, account, branch, date and transaction-type
// dimensions. Rows whose natural key already exists are skipped.
func (l *Loader) LoadDimensions(ctx context.Context, customers []domain.CleanCustomer, accounts []domain.Account, branches []domain.Branch, dates []domain.DateDimRow) (DimensionCounts, error) {
	log := logger.FromContext(ctx)
	var counts DimensionCounts

	effective := dateOf(l.now())
	cust := warehouse.NewTable(warehouse.DimCustomer, len(customers))
	for _, c := range customers {
		var age any
		if c.Age != nil {
			age = *c.Age
		}
		if err := cust.Append(c.CustomerID, c.FirstName, c.LastName, c.FullName, c.Email, c.Phone,
			age, c.City, c.Country, c.Segment, c.RegistrationDate,
			effective, domain.ExpirationSentinel, true); err != nil {
			return counts, fmt.Errorf("LoadDimensions: building dim_customer: %w", err)
		}
	}

	acct := warehouse.NewTable(warehouse.DimAccount, len(accounts))
	for _, a := range accounts {
		if err := acct.Append(a.AccountID, a.AccountNumber, a.AccountType, a.Currency, a.OpeningDate, a.Status); err != nil {
			return counts, fmt.Errorf("LoadDimensions: building dim_account: %w", err)
		}
	}

	br := warehouse.NewTable(warehouse.DimBranch, len(branches))
	for _, b := range branches {
		if err := br.Append(b.BranchID, b.BranchName, b.City, b.Region, b.Address); err != nil {
			return counts, fmt.Errorf("LoadDimensions: building dim_branch: %w", err)
		}
	}

	dd := warehouse.NewTable(warehouse.DimDate, len(dates))
	for _, d := range dates {
		if err := dd.Append(d.DateKey, d.Date, d.Year, d.Quarter, d.Month, d.MonthName, d.Week,
			d.DayOfMonth, d.DayOfWeek, d.DayName, d.IsWeekend); err != nil {
			return counts, fmt.Errorf("LoadDimensions: building dim_date: %w", err)
		}
	}

	types := TransactionTypes()
	tt := warehouse.NewTable(warehouse.DimTransactionType, len(types))
	for _, t := range types {
		if err := tt.Append(t.Type, t.Category, t.Description); err != nil {
			return counts, fmt.Errorf("LoadDimensions: building dim_transaction_type: %w", err)
		}
	}

	targets := []struct {
		table *warehouse.Table
		count *int64
	}{
		{cust, &counts.Customers},
		{acct, &counts.Accounts},
		{br, &counts.Branches},
		{dd, &counts.Dates},
		{tt, &counts.TransactionTypes},
	}
	for _, t := range targets {
		n, err := l.store.Append(ctx, t.table)
		if err != nil {
			return counts, fmt.Errorf("LoadDimensions: loading %s: %w", t.table.Spec.QualifiedName(), err)
		}
		*t.count = n
		log.Debug().
			Str("table", t.table.Spec.QualifiedName()).
			Int("rows", t.table.Len()).
			Int64("inserted", n).
			Msg("Dimension loaded")
	}

	log.Info().
		Int64("customers", counts.Customers).
		Int64("accounts", counts.Accounts).
		Int64("branches", counts.Branches).
		Int64("dates", counts.Dates).
		Int64("transaction_types", counts.TransactionTypes).
		Msg("Dimensions loaded")
	return counts, nil
}

// LoadFactTable resolves surrogate keys for rows and writes the survivors to
// fact_transactions.
func (l *Loader) LoadFactTable(ctx context.Context, rows []domain.EnrichedTransaction) (FactLoadResult, error) {
	log := logger.FromContext(ctx)
	var res FactLoadResult

	keys, err := l.readKeys(ctx)
	if err != nil {
		return res, err
	}

	facts, dropped := ResolveFacts(rows, keys, l.pickBranch)
	res.Resolved, res.Dropped, res.Facts = len(facts), dropped, facts
	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Msg("Dropped fact rows with unresolved dimension keys")
	}

	tbl := warehouse.NewTable(warehouse.FactTransactions, len(facts))
	for _, f := range facts {
		if err := tbl.Append(f.TransactionID, f.DateKey, f.CustomerKey, f.AccountKey,
			f.TransactionTypeKey, f.BranchKey, f.AmountOriginal, f.OriginalCurrency,
			f.AmountRub, f.ExchangeRate, f.TransactionStatus, f.Channel, f.MerchantName); err != nil {
			return res, fmt.Errorf("LoadFactTable: building fact row: %w", err)
		}
	}

	res.Inserted, err = l.store.Append(ctx, tbl)
	if err != nil {
		return res, fmt.Errorf("LoadFactTable: loading facts: %w", err)
	}

	log.Info().
		Int("resolved", res.Resolved).
		Int("dropped", res.Dropped).
		Int64("inserted", res.Inserted).
		Msg("Fact table loaded")
	return res, nil
}

func (l *Loader) readKeys(ctx context.Context) (KeySet, error) {
	var (
		ks  KeySet
		err error
	)
	if ks.Customers, err = l.store.CurrentCustomerKeys(ctx); err != nil {
		return ks, fmt.Errorf("LoadFactTable: reading customer keys: %w", err)
	}
	if ks.Accounts, err = l.store.AccountKeys(ctx); err != nil {
		return ks, fmt.Errorf("LoadFactTable: reading account keys: %w", err)
	}
	if ks.TransactionTypes, err = l.store.TransactionTypeKeys(ctx); err != nil {
		return ks, fmt.Errorf("LoadFactTable: reading transaction type keys: %w", err)
	}
	if ks.Branches, err = l.store.BranchKeys(ctx); err != nil {
		return ks, fmt.Errorf("LoadFactTable: reading branch keys: %w", err)
	}
	return ks, nil
}

// pickBranch draws a branch key uniformly from keys, or nil when empty.
// The assignment carries no business meaning.
func (l *Loader) pickBranch(keys []int64) *int64 {
	if len(keys) == 0 {
		return nil
	}
	k := keys[l.rng.IntN(len(keys))]
	return &k
}

// ResolveFacts maps enriched transactions onto surrogate keys. A row whose
// customer, account or transaction-type key is missing, or that has no
// transaction date to derive a date key from, is dropped and counted; it
// never reaches the returned facts.
func ResolveFacts(rows []domain.EnrichedTransaction, keys KeySet, pick func([]int64) *int64) ([]domain.FactTransactionRow, int) {
	facts := make([]domain.FactTransactionRow, 0, len(rows))
	dropped := 0
	for _, tx := range rows {
		custKey, ok1 := keys.Customers[tx.CustomerID]
		acctKey, ok2 := keys.Accounts[tx.AccountID]
		typeKey, ok3 := keys.TransactionTypes[tx.TransactionType]
		if !ok1 || !ok2 || !ok3 || tx.TransactionDate == nil {
			dropped++
			continue
		}
		facts = append(facts, domain.FactTransactionRow{
			TransactionID:      tx.TransactionID,
			DateKey:            DateKey(*tx.TransactionDate),
			CustomerKey:        custKey,
			AccountKey:         acctKey,
			TransactionTypeKey: typeKey,
			BranchKey:          pick(keys.Branches),
			AmountOriginal:     tx.Amount,
			OriginalCurrency:   tx.Currency,
			AmountRub:          tx.AmountBase,
			ExchangeRate:       tx.RateUsed,
			TransactionStatus:  tx.Status,
			Channel:            tx.Channel,
			MerchantName:       tx.MerchantName,
		})
	}
	return facts, dropped
}
