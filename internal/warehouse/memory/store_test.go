package memory

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAppend(t *testing.T, tbl *warehouse.Table, values ...any) {
	t.Helper()
	require.NoError(t, tbl.Append(values...))
}

func TestAppend_SkipsDuplicatesAndConsumesKeys(t *testing.T) {
	ctx := context.Background()
	s := New()

	tbl := warehouse.NewTable(warehouse.DimAccount, 2)
	mustAppend(t, tbl, int64(1), "A-1", "Checking", "RUB", time.Time{}, "Active")
	mustAppend(t, tbl, int64(2), "A-2", "Savings", "USD", time.Time{}, "Active")

	n, err := s.Append(ctx, tbl)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Append(ctx, tbl)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, 2, s.Count(warehouse.DimAccount))

	next := warehouse.NewTable(warehouse.DimAccount, 1)
	mustAppend(t, next, int64(3), "A-3", "Credit", "EUR", time.Time{}, "Active")
	_, err = s.Append(ctx, next)
	require.NoError(t, err)

	keys, err := s.AccountKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 1, 2: 2, 3: 5}, keys)
}

func TestAppend_Errors(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Append(ctx, &warehouse.Table{Spec: warehouse.TableSpec{Schema: "dwh", Name: "nope"}})
	assert.ErrorIs(t, err, warehouse.ErrUnknownTable)

	bad := &warehouse.Table{Spec: warehouse.DimBranch, Rows: [][]any{{int64(1)}}}
	_, err = s.Append(ctx, bad)
	assert.ErrorIs(t, err, warehouse.ErrColumnMismatch)
	assert.Equal(t, 0, s.Count(warehouse.DimBranch))
}

func TestAppend_CurrentOnlyUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	exp := domain.ExpirationSentinel
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	customer := func(current bool) []any {
		return []any{int64(7), "Ivan", "Petrov", "Ivan Petrov", nil, nil, nil,
			"Moscow", "Russia", "Premium", now, now, exp, current}
	}

	tbl := warehouse.NewTable(warehouse.DimCustomer, 4)
	mustAppend(t, tbl, customer(false)...)
	mustAppend(t, tbl, customer(false)...)
	mustAppend(t, tbl, customer(true)...)
	mustAppend(t, tbl, customer(true)...)

	n, err := s.Append(ctx, tbl)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	keys, err := s.CurrentCustomerKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{7: 3}, keys)
}

func TestCompletedTransactions_InnerJoinsAccounts(t *testing.T) {
	ctx := context.Background()
	s := New()
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	merchant := "Pyaterochka"

	accts := warehouse.NewTable(warehouse.StagingAccounts, 1)
	mustAppend(t, accts, int64(1), int64(42), "40817810000000000001", "Checking", "RUB", decimal.NewFromInt(10), when, "Active")

	txs := warehouse.NewTable(warehouse.StagingTransactions, 4)
	mustAppend(t, txs, int64(3), int64(1), when, "Payment", decimal.NewFromInt(30), "RUB", &merchant, domain.StatusCompleted, "Online")
	mustAppend(t, txs, int64(1), int64(1), when, "Deposit", decimal.NewFromInt(10), "RUB", nil, domain.StatusCompleted, "Branch")
	mustAppend(t, txs, int64(2), int64(1), when, "ATM", decimal.NewFromInt(20), "RUB", nil, domain.StatusPending, "ATM")
	mustAppend(t, txs, int64(4), int64(9), when, "ATM", decimal.NewFromInt(40), "RUB", nil, domain.StatusCompleted, "ATM")

	_, err := s.Append(ctx, accts)
	require.NoError(t, err)
	_, err = s.Append(ctx, txs)
	require.NoError(t, err)

	got, err := s.CompletedTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].TransactionID)
	assert.Equal(t, int64(42), got[0].CustomerID)
	assert.Nil(t, got[0].MerchantName)
	assert.Equal(t, int64(3), got[1].TransactionID)
	require.NotNil(t, got[1].MerchantName)
	assert.Equal(t, "Pyaterochka", *got[1].MerchantName)
}

func TestLatestExchangeRate(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.LatestExchangeRate(ctx)
	assert.ErrorIs(t, err, warehouse.ErrNoExchangeRates)

	rates := warehouse.NewTable(warehouse.StagingExchangeRates, 2)
	mustAppend(t, rates, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), decimal.NewFromInt(91), decimal.NewFromInt(99), decimal.RequireFromString("0.9192"))
	mustAppend(t, rates, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), decimal.NewFromInt(90), decimal.NewFromInt(98), decimal.RequireFromString("0.9184"))
	_, err = s.Append(ctx, rates)
	require.NoError(t, err)

	got, err := s.LatestExchangeRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Date.Day())
	assert.True(t, got.UsdToRub.Equal(decimal.NewFromInt(91)))
}

func TestRunLedger(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.FinishRun(ctx, domain.Run{RunID: "missing"})
	assert.Error(t, err)

	require.NoError(t, s.StartRun(ctx, "r1"))
	run, ok := s.Run("r1")
	require.True(t, ok)
	assert.Equal(t, domain.RunStatusRunning, run.Status)
	assert.Nil(t, run.FinishedTS)

	require.NoError(t, s.FinishRun(ctx, domain.Run{RunID: "r1", Status: domain.RunStatusSuccess, FactsLoaded: 4, FactsDropped: 1}))
	run, _ = s.Run("r1")
	assert.Equal(t, domain.RunStatusSuccess, run.Status)
	assert.NotNil(t, run.FinishedTS)
	assert.Equal(t, int64(4), run.FactsLoaded)
	assert.Equal(t, int64(1), run.FactsDropped)

	require.NoError(t, s.Close())
}

func TestClose_RejectsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.StartRun(ctx, "r1"))

	tbl := warehouse.NewTable(warehouse.DimBranch, 1)
	mustAppend(t, tbl, int64(1), "Central", "Moscow", "Central", "Tverskaya, 1")
	_, err := s.Append(ctx, tbl)
	require.NoError(t, err)

	require.NoError(t, s.Close())

	_, err = s.Append(ctx, tbl)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.StartRun(ctx, "r2"), ErrClosed)
	assert.ErrorIs(t, s.FinishRun(ctx, domain.Run{RunID: "r1", Status: domain.RunStatusSuccess}), ErrClosed)

	assert.Equal(t, 1, s.Count(warehouse.DimBranch), "data stays readable")
	run, ok := s.Run("r1")
	require.True(t, ok)
	assert.Equal(t, domain.RunStatusRunning, run.Status)
}

func TestFactSummary_Empty(t *testing.T) {
	sum, err := New().FactSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.TotalTransactions)
	assert.True(t, sum.TotalAmountRub.IsZero())
	assert.True(t, sum.AvgAmountRub.IsZero())
}
