package etl

import (
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/shopspring/decimal"
)

// ageBand is a right-closed age interval (Min, Max] with its label.
type ageBand struct {
	Min, Max int
	Label    string
}

// ageBands bucket ages in (0, 100]. The first band also takes age 0.
var ageBands = []ageBand{
	{0, 25, "18-25"},
	{25, 35, "26-35"},
	{35, 45, "36-45"},
	{45, 55, "46-55"},
	{55, 100, "55+"},
}

// Transformer cleans staged rows and normalizes currencies. Every method is
// a pure function of its arguments and the processing date.
type Transformer struct {
	today time.Time
}

// NewTransformer creates a Transformer whose processing date is now's date.
func NewTransformer(now time.Time) *Transformer {
	return &Transformer{today: dateOf(now)}
}

// CleanCustomers deduplicates customers by customer_id (first occurrence
// wins), fills a missing phone with domain.UnknownPhone, lowercases and
// trims e-mail, and derives full name, age and age group.
func (t *Transformer) CleanCustomers(rows []domain.Customer) []domain.CleanCustomer {
	seen := make(map[int64]struct{}, len(rows))
	out := make([]domain.CleanCustomer, 0, len(rows))

	for _, c := range rows {
		if _, dup := seen[c.CustomerID]; dup {
			continue
		}
		seen[c.CustomerID] = struct{}{}

		if c.Phone == nil || strings.TrimSpace(*c.Phone) == "" {
			phone := domain.UnknownPhone
			c.Phone = &phone
		}
		if c.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*c.Email))
			c.Email = &email
		}

		clean := domain.CleanCustomer{
			Customer: c,
			FullName: c.FirstName + " " + c.LastName,
		}
		if c.DateOfBirth != nil {
			if age, ok := AgeOn(t.today, *c.DateOfBirth); ok {
				clean.Age = &age
				clean.AgeGroup = AgeGroup(age)
			}
		}
		out = append(out, clean)
	}
	return out
}

// AgeOn returns whole years between birth and today as days/365, floored.
// It reports false for a birth date after today.
func AgeOn(today, birth time.Time) (int, bool) {
	days := int(dateOf(today).Sub(dateOf(birth)).Hours() / 24)
	if days < 0 {
		return 0, false
	}
	return days / 365, true
}

// AgeGroup returns the band label for age, or "" when age is outside [0, 100].
func AgeGroup(age int) string {
	if age == 0 {
		return ageBands[0].Label
	}
	for _, b := range ageBands {
		if age > b.Min && age <= b.Max {
			return b.Label
		}
	}
	return ""
}

// CleanTransactions keeps Completed transactions, takes the absolute amount
// and drops amounts at or above domain.OutlierAmount.
func (t *Transformer) CleanTransactions(rows []domain.StagedTransaction) []domain.StagedTransaction {
	out := make([]domain.StagedTransaction, 0, len(rows))
	for _, tx := range rows {
		if tx.Status != domain.StatusCompleted {
			continue
		}
		tx.Amount = tx.Amount.Abs()
		if tx.Amount.GreaterThanOrEqual(domain.OutlierAmount) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// EnrichWithCurrencyRates converts every amount into the base currency with
// the single snapshot given, regardless of each transaction's own date.
func (t *Transformer) EnrichWithCurrencyRates(rows []domain.StagedTransaction, rates domain.ExchangeRateSnapshot) []domain.EnrichedTransaction {
	out := make([]domain.EnrichedTransaction, len(rows))
	for i, tx := range rows {
		base, rate := ConvertToBase(tx.Amount, tx.Currency, rates)
		out[i] = domain.EnrichedTransaction{
			StagedTransaction: tx,
			AmountBase:        base,
			RateUsed:          rate,
		}
	}
	return out
}

// ConvertToBase converts amount into roubles. Currencies other than USD and
// EUR, including unknown ones, pass through at rate 1.
func ConvertToBase(amount decimal.Decimal, currency string, rates domain.ExchangeRateSnapshot) (decimal.Decimal, decimal.Decimal) {
	rate := decimal.NewFromInt(1)
	switch currency {
	case domain.CurrencyUSD:
		rate = rates.UsdToRub
	case domain.CurrencyEUR:
		rate = rates.EurToRub
	}
	return amount.Mul(rate), rate
}

// AggregateTransactionMetrics groups by (account, transaction type) and
// returns sum, mean and count of the base amount plus the transaction count,
// ordered by account then type.
func (t *Transformer) AggregateTransactionMetrics(rows []domain.EnrichedTransaction) []domain.TransactionMetric {
	type groupKey struct {
		account int64
		txType  string
	}
	groups := make(map[groupKey]*domain.TransactionMetric)
	for _, tx := range rows {
		k := groupKey{tx.AccountID, tx.TransactionType}
		m, ok := groups[k]
		if !ok {
			m = &domain.TransactionMetric{AccountID: tx.AccountID, TransactionType: tx.TransactionType}
			groups[k] = m
		}
		m.SumBase = m.SumBase.Add(tx.AmountBase)
		m.CountBase++
		m.TransactionCount++
	}

	out := make([]domain.TransactionMetric, 0, len(groups))
	for _, m := range groups {
		m.MeanBase = m.SumBase.Div(decimal.NewFromInt(int64(m.CountBase)))
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].TransactionType < out[j].TransactionType
	})
	return out
}

// dateOf truncates t to midnight UTC of its calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
