package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currencies handled by the conversion step.
const (
	CurrencyRUB = "RUB"
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"

	// BaseCurrency is the currency every fact amount is converted into.
	BaseCurrency = CurrencyRUB
)

// ExchangeRateSnapshot is one row of staging.exchange_rates.
type ExchangeRateSnapshot struct {
	Date     time.Time       `db:"date"`
	UsdToRub decimal.Decimal `db:"usd_to_rub"`
	EurToRub decimal.Decimal `db:"eur_to_rub"`
	UsdToEur decimal.Decimal `db:"usd_to_eur"`
}

// DefaultExchangeRates is the snapshot used when the rate source is unavailable.
func DefaultExchangeRates(date time.Time) ExchangeRateSnapshot {
	return ExchangeRateSnapshot{
		Date:     date,
		UsdToRub: decimal.NewFromFloat(90.0),
		EurToRub: decimal.NewFromFloat(100.0),
		UsdToEur: decimal.NewFromFloat(0.9),
	}
}
