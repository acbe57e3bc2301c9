// Package generator synthesizes a referentially consistent banking dataset.
package generator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/logger"
	"github.com/shopspring/decimal"
)

// Options controls dataset volume, randomness and locale.
type Options struct {
	Seed            uint64
	Locale          string
	NumCustomers    int
	NumTransactions int
	NumBranches     int
	Now             time.Time
}

// Generator produces datasets. Two generators with equal Options produce
// equal datasets.
type Generator struct {
	opts   Options
	locale locale
}

var (
	segments        = []string{"Retail", "Premium", "Corporate"}
	accountTypes    = []string{"Checking", "Savings", "Credit", "Investment"}
	currencies      = []string{domain.CurrencyRUB, domain.CurrencyUSD, domain.CurrencyEUR}
	accountStatuses = []string{"Active", "Active", "Active", "Frozen", "Closed"}
	txTypes         = []string{domain.TxTypeDeposit, domain.TxTypeWithdrawal, domain.TxTypeTransfer, domain.TxTypePayment, domain.TxTypeATM}
	txStatuses      = []string{domain.StatusCompleted, domain.StatusCompleted, domain.StatusPending, domain.StatusFailed}
	channels        = []string{"Online", "Mobile", "ATM", "Branch"}
	regions         = []string{"Central", "North", "South", "East", "West"}
)

// New validates opts and creates a Generator.
func New(opts Options) (*Generator, error) {
	if opts.NumCustomers < 0 || opts.NumTransactions < 0 || opts.NumBranches < 0 {
		return nil, fmt.Errorf("New: negative volume in %+v", opts)
	}
	loc, err := lookupLocale(opts.Locale)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	return &Generator{opts: opts, locale: loc}, nil
}

// Dataset generates all four tables.
func (g *Generator) Dataset(ctx context.Context) (*domain.Dataset, error) {
	log := logger.FromContext(ctx)
	r := rand.New(rand.NewPCG(g.opts.Seed, g.opts.Seed^0x9e3779b97f4a7c15))

	ds := &domain.Dataset{
		Customers: g.customers(r),
	}
	ds.Accounts = g.accounts(r, len(ds.Customers))
	ds.Transactions = g.transactions(r, ds.Accounts)
	ds.Branches = g.branches(r)

	log.Info().
		Int("customers", len(ds.Customers)).
		Int("accounts", len(ds.Accounts)).
		Int("transactions", len(ds.Transactions)).
		Int("branches", len(ds.Branches)).
		Str("locale", g.opts.Locale).
		Msg("Generated dataset")
	return ds, nil
}

func (g *Generator) customers(r *rand.Rand) []domain.Customer {
	today := dateOf(g.opts.Now)
	out := make([]domain.Customer, 0, g.opts.NumCustomers)
	for i := 1; i <= g.opts.NumCustomers; i++ {
		first, last := pick(r, g.locale.firstNames), pick(r, g.locale.lastNames)
		email := fmt.Sprintf("%s%d@%s", emailLocal(first, last), i, pick(r, g.locale.emailDomains))
		phone := g.locale.phone(r)
		// between 18 and 80 years old
		dob := today.AddDate(-80, 0, 0).AddDate(0, 0, r.IntN(62*365))
		out = append(out, domain.Customer{
			CustomerID:       int64(i),
			FirstName:        first,
			LastName:         last,
			Email:            &email,
			Phone:            &phone,
			DateOfBirth:      &dob,
			City:             pick(r, g.locale.cities),
			Country:          g.locale.country,
			RegistrationDate: daysBefore(r, today, 5*365),
			Segment:          pick(r, segments),
		})
	}
	return out
}

func (g *Generator) accounts(r *rand.Rand, numCustomers int) []domain.Account {
	today := dateOf(g.opts.Now)
	out := make([]domain.Account, 0, numCustomers*2)
	id := int64(1)
	for customer := 1; customer <= numCustomers; customer++ {
		for range 1 + r.IntN(3) {
			out = append(out, domain.Account{
				AccountID:     id,
				CustomerID:    int64(customer),
				AccountNumber: g.locale.bban(r),
				AccountType:   pick(r, accountTypes),
				Currency:      pick(r, currencies),
				Balance:       cents(r, 1000, 1_000_000),
				OpeningDate:   daysBefore(r, today, 3*365),
				Status:        pick(r, accountStatuses),
			})
			id++
		}
	}
	return out
}

func (g *Generator) transactions(r *rand.Rand, accounts []domain.Account) []domain.Transaction {
	if len(accounts) == 0 {
		return nil
	}
	now := g.opts.Now.UTC().Truncate(time.Second)
	yearSeconds := int64(365 * 24 * time.Hour / time.Second)

	out := make([]domain.Transaction, 0, g.opts.NumTransactions)
	for i := 1; i <= g.opts.NumTransactions; i++ {
		var merchant *string
		if r.Float64() > 0.3 {
			m := pick(r, g.locale.companies)
			merchant = &m
		}
		account := accounts[r.IntN(len(accounts))].AccountID
		at := now.Add(-time.Duration(r.Int64N(yearSeconds)) * time.Second)
		out = append(out, domain.Transaction{
			TransactionID:   int64(i),
			AccountID:       account,
			TransactionDate: &at,
			TransactionType: pick(r, txTypes),
			Amount:          cents(r, 100, 50_000),
			Currency:        pick(r, currencies),
			MerchantName:    merchant,
			Status:          pick(r, txStatuses),
			Channel:         pick(r, channels),
		})
	}
	return out
}

func (g *Generator) branches(r *rand.Rand) []domain.Branch {
	today := dateOf(g.opts.Now)
	out := make([]domain.Branch, 0, g.opts.NumBranches)
	for i := 1; i <= g.opts.NumBranches; i++ {
		city := pick(r, g.locale.cities)
		out = append(out, domain.Branch{
			BranchID:    int64(i),
			BranchName:  fmt.Sprintf("Branch %d", i),
			City:        city,
			Address:     fmt.Sprintf("%s, %s, %d", city, pick(r, g.locale.streets), 1+r.IntN(200)),
			Region:      pick(r, regions),
			OpeningDate: daysBefore(r, today.AddDate(-1, 0, 0), 9*365),
		})
	}
	return out
}

func pick(r *rand.Rand, values []string) string {
	return values[r.IntN(len(values))]
}

// cents draws a uniform amount in [lo, hi] with two decimal places.
func cents(r *rand.Rand, lo, hi int64) decimal.Decimal {
	return decimal.New(lo*100+r.Int64N((hi-lo)*100+1), -2)
}

func daysBefore(r *rand.Rand, t time.Time, maxDays int) *time.Time {
	d := t.AddDate(0, 0, -r.IntN(maxDays+1))
	return &d
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
