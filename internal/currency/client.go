// Package currency fetches daily exchange rates from the Central Bank of
// Russia JSON feed.
package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/logger"
	"github.com/shopspring/decimal"
)

// DefaultURL is the CBR daily rates feed.
const DefaultURL = "https://www.cbr-xml-daily.ru/daily_json.js"

// Client fetches rate snapshots. A failed fetch never surfaces as an
// error: GetExchangeRates falls back to domain.DefaultExchangeRates.
type Client struct {
	URL  string
	HTTP *http.Client
	Now  func() time.Time

	// OnFallback, when set, is called each time the fallback snapshot is used.
	OnFallback func(err error)
}

// NewClient creates a Client with a flat request timeout.
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		URL:  url,
		HTTP: &http.Client{Timeout: timeout},
		Now:  time.Now,
	}
}

type dailyResponse struct {
	Valute map[string]struct {
		Value   decimal.Decimal `json:"Value"`
		Nominal int64           `json:"Nominal"`
	} `json:"Valute"`
}

// GetExchangeRates returns today's USD and EUR rates in roubles.
func (c *Client) GetExchangeRates(ctx context.Context) domain.ExchangeRateSnapshot {
	log := logger.FromContext(ctx)
	today := c.today()

	snap, err := c.fetch(ctx, today)
	if err != nil {
		log.Warn().Err(err).Str("url", c.URL).Msg("Exchange rate fetch failed; using default rates")
		if c.OnFallback != nil {
			c.OnFallback(err)
		}
		return domain.DefaultExchangeRates(today)
	}

	log.Info().
		Str("usd_to_rub", snap.UsdToRub.StringFixed(2)).
		Str("eur_to_rub", snap.EurToRub.StringFixed(2)).
		Msg("Exchange rates fetched")
	return snap
}

func (c *Client) fetch(ctx context.Context, today time.Time) (domain.ExchangeRateSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return domain.ExchangeRateSnapshot{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return domain.ExchangeRateSnapshot{}, fmt.Errorf("requesting rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.ExchangeRateSnapshot{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var body dailyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.ExchangeRateSnapshot{}, fmt.Errorf("decoding response: %w", err)
	}

	usd, ok := body.Valute[domain.CurrencyUSD]
	if !ok {
		return domain.ExchangeRateSnapshot{}, errors.New("response has no USD rate")
	}
	eur, ok := body.Valute[domain.CurrencyEUR]
	if !ok {
		return domain.ExchangeRateSnapshot{}, errors.New("response has no EUR rate")
	}
	if !usd.Value.IsPositive() || !eur.Value.IsPositive() {
		return domain.ExchangeRateSnapshot{}, fmt.Errorf("non-positive rate: USD=%s EUR=%s", usd.Value, eur.Value)
	}

	return domain.ExchangeRateSnapshot{
		Date:     today,
		UsdToRub: usd.Value,
		EurToRub: eur.Value,
		UsdToEur: usd.Value.DivRound(eur.Value, 4),
	}, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	y, m, d := now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
