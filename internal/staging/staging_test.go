package staging

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
	"github.com/dvloznov/banking-analytics/internal/warehouse/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func timep(t time.Time) *time.Time { return &t }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sampleDataset has two customers, three accounts and five transactions, one
// of them Pending.
func sampleDataset() *domain.Dataset {
	dob := day(1988, 3, 14)
	return &domain.Dataset{
		Customers: []domain.Customer{
			{CustomerID: 1, FirstName: "Иван", LastName: "Петров", Email: strp("ivan.petrov1@mail.ru"), Phone: strp("+7 (912) 345-67-89"), DateOfBirth: &dob, City: "Москва", Country: "Russia", RegistrationDate: timep(day(2021, 5, 1)), Segment: "Retail"},
			{CustomerID: 2, FirstName: "Anna, Jr.", LastName: "Smirnova", City: "Казань", Country: "Russia", RegistrationDate: timep(day(2022, 1, 9)), Segment: "Premium"},
		},
		Accounts: []domain.Account{
			{AccountID: 1, CustomerID: 1, AccountNumber: "40817810000000000001", AccountType: "Checking", Currency: "RUB", Balance: decimal.RequireFromString("15000.50"), OpeningDate: timep(day(2022, 2, 1)), Status: "Active"},
			{AccountID: 2, CustomerID: 1, AccountNumber: "40817840000000000002", AccountType: "Savings", Currency: "USD", Balance: decimal.RequireFromString("2000"), OpeningDate: timep(day(2022, 3, 1)), Status: "Active"},
			{AccountID: 3, CustomerID: 2, AccountNumber: "40817978000000000003", AccountType: "Credit", Currency: "EUR", Balance: decimal.RequireFromString("999.99"), OpeningDate: timep(day(2023, 4, 1)), Status: "Frozen"},
		},
		Transactions: []domain.Transaction{
			{TransactionID: 1, AccountID: 1, TransactionDate: timep(time.Date(2024, 1, 5, 10, 15, 0, 0, time.UTC)), TransactionType: "Deposit", Amount: decimal.RequireFromString("1000.00"), Currency: "RUB", Status: "Completed", Channel: "Branch"},
			{TransactionID: 2, AccountID: 2, TransactionDate: timep(time.Date(2024, 1, 6, 11, 0, 0, 0, time.UTC)), TransactionType: "Payment", Amount: decimal.RequireFromString("50.25"), Currency: "USD", MerchantName: strp("Ozon"), Status: "Completed", Channel: "Online"},
			{TransactionID: 3, AccountID: 3, TransactionDate: timep(time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC)), TransactionType: "ATM", Amount: decimal.RequireFromString("20"), Currency: "EUR", Status: "Completed", Channel: "ATM"},
			{TransactionID: 4, AccountID: 3, TransactionDate: timep(time.Date(2024, 1, 8, 13, 0, 0, 0, time.UTC)), TransactionType: "Transfer", Amount: decimal.RequireFromString("300"), Currency: "RUB", Status: "Completed", Channel: "Mobile"},
			{TransactionID: 5, AccountID: 1, TransactionDate: timep(time.Date(2024, 1, 9, 14, 0, 0, 0, time.UTC)), TransactionType: "Withdrawal", Amount: decimal.RequireFromString("75"), Currency: "RUB", Status: "Pending", Channel: "ATM"},
		},
		Branches: []domain.Branch{
			{BranchID: 1, BranchName: "Branch 1", City: "Москва", Address: "Москва, ул. Ленина, 5", Region: "Central", OpeningDate: timep(day(2015, 6, 1))},
		},
	}
}

var sampleRates = domain.ExchangeRateSnapshot{
	Date:     day(2024, 1, 10),
	UsdToRub: decimal.RequireFromString("89.5"),
	EurToRub: decimal.RequireFromString("98.1"),
	UsdToEur: decimal.RequireFromString("0.9123"),
}

func TestStageAndExtract(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	tables, counts, err := Stage(ctx, store, sampleDataset(), sampleRates)
	require.NoError(t, err)
	require.Len(t, tables, 5)
	assert.Equal(t, Counts{
		"staging.customers":      2,
		"staging.accounts":       3,
		"staging.transactions":   5,
		"staging.branches":       1,
		"staging.exchange_rates": 1,
	}, counts)

	snap, err := NewExtractor(store).ExtractAll(ctx)
	require.NoError(t, err)

	assert.Len(t, snap.Customers, 2)
	assert.Len(t, snap.Accounts, 3)
	require.Len(t, snap.Transactions, 4, "Pending transaction is not extracted")
	owners := map[int64]int64{}
	for _, tx := range snap.Transactions {
		owners[tx.TransactionID] = tx.CustomerID
	}
	assert.Equal(t, map[int64]int64{1: 1, 2: 1, 3: 2, 4: 2}, owners)
	assert.True(t, snap.Rates.UsdToRub.Equal(sampleRates.UsdToRub))
	assert.Equal(t, map[string]int{"customers": 2, "accounts": 3, "transactions": 4, "branches": 1}, snap.Counts())

	// Restaging the same data inserts nothing.
	_, counts, err = Stage(ctx, store, sampleDataset(), sampleRates)
	require.NoError(t, err)
	for table, n := range counts {
		assert.Zero(t, n, table)
	}
}

func TestExtractAll_NoRates(t *testing.T) {
	store := memory.New()
	_, err := NewExtractor(store).ExtractAll(context.Background())
	assert.ErrorIs(t, err, warehouse.ErrNoExchangeRates)
}

func TestWriteCSV(t *testing.T) {
	tbl, err := TransactionsTable(sampleDataset().Transactions[:2])
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "transaction_id,account_id,transaction_date,transaction_type,amount,currency,merchant_name,transaction_status,channel", lines[0])
	assert.Equal(t, "1,1,2024-01-05T10:15:00Z,Deposit,1000,RUB,,Completed,Branch", lines[1])
	assert.Equal(t, "2,2,2024-01-06T11:00:00Z,Payment,50.25,USD,Ozon,Completed,Online", lines[2])
}

func writeDatasetFiles(t *testing.T, ds *domain.Dataset) map[string][]byte {
	t.Helper()
	tables, err := DatasetTables(ds)
	require.NoError(t, err)
	files := map[string][]byte{}
	for _, tbl := range tables {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, tbl))
		files[FileName(tbl.Spec)] = buf.Bytes()
	}
	return files
}

func TestReadDataset_RoundTrip(t *testing.T) {
	want := sampleDataset()
	files := writeDatasetFiles(t, want)

	got, err := ReadDataset(func(name string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(files[name])), nil
	})
	require.NoError(t, err)

	require.Len(t, got.Customers, 2)
	assert.Equal(t, "Anna, Jr.", got.Customers[1].FirstName)
	assert.Nil(t, got.Customers[1].Email)
	assert.Nil(t, got.Customers[1].DateOfBirth)
	require.NotNil(t, got.Customers[0].DateOfBirth)
	assert.Equal(t, *want.Customers[0].DateOfBirth, *got.Customers[0].DateOfBirth)

	require.Len(t, got.Accounts, 3)
	assert.True(t, got.Accounts[0].Balance.Equal(want.Accounts[0].Balance))

	require.Len(t, got.Transactions, 5)
	for i, tx := range got.Transactions {
		assert.Equal(t, want.Transactions[i].TransactionDate, tx.TransactionDate)
		assert.True(t, want.Transactions[i].Amount.Equal(tx.Amount))
		assert.Equal(t, want.Transactions[i].MerchantName, tx.MerchantName)
	}
	assert.Equal(t, want.Branches, got.Branches)
}

func TestReadDataset_Errors(t *testing.T) {
	files := writeDatasetFiles(t, sampleDataset())

	t.Run("missing column", func(t *testing.T) {
		files := map[string][]byte{CustomersFile: []byte("customer_id,first_name\n1,Ivan\n")}
		_, err := ReadDataset(func(name string) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(files[name])), nil
		})
		assert.ErrorIs(t, err, ErrMissingColumn)
	})

	t.Run("bad amount", func(t *testing.T) {
		bad := map[string][]byte{}
		for k, v := range files {
			bad[k] = v
		}
		bad[TransactionsFile] = []byte("transaction_id,account_id,transaction_date,transaction_type,amount,currency,merchant_name,transaction_status,channel\n" +
			"1,1,2024-01-05T10:15:00Z,Deposit,lots,RUB,,Completed,Branch\n")
		_, err := ReadDataset(func(name string) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(bad[name])), nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "amount")
	})

	t.Run("open failure", func(t *testing.T) {
		boom := errors.New("no such object")
		_, err := ReadDataset(func(name string) (io.ReadCloser, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	})
}

func TestReadDataset_BlankDates(t *testing.T) {
	header := func(spec warehouse.TableSpec) string { return strings.Join(spec.Columns, ",") + "\n" }
	files := map[string][]byte{
		CustomersFile: []byte(header(warehouse.StagingCustomers) +
			"1,Ivan,Petrov,,,,Moscow,Russia,,Retail\n"),
		AccountsFile: []byte(header(warehouse.StagingAccounts) +
			"1,1,40817810000000000001,Checking,RUB,100.00,,Active\n"),
		TransactionsFile: []byte(header(warehouse.StagingTransactions) +
			"1,1,,Deposit,10.00,RUB,,Completed,Online\n"),
		BranchesFile: []byte(header(warehouse.StagingBranches) +
			"1,Branch 1,Moscow,\"Moscow, Tverskaya, 1\",Central,\n"),
	}

	ds, err := ReadDataset(func(name string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(files[name])), nil
	})
	require.NoError(t, err)
	require.Len(t, ds.Customers, 1)
	assert.Nil(t, ds.Customers[0].RegistrationDate)
	assert.Nil(t, ds.Customers[0].DateOfBirth)
	require.Len(t, ds.Accounts, 1)
	assert.Nil(t, ds.Accounts[0].OpeningDate)
	require.Len(t, ds.Transactions, 1)
	assert.Nil(t, ds.Transactions[0].TransactionDate)
	require.Len(t, ds.Branches, 1)
	assert.Nil(t, ds.Branches[0].OpeningDate)

	// blank dates survive staging and extraction as nil
	store := memory.New()
	_, _, err = Stage(context.Background(), store, ds, sampleRates)
	require.NoError(t, err)
	snap, err := NewExtractor(store).ExtractAll(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Transactions, 1)
	assert.Nil(t, snap.Transactions[0].TransactionDate)
	assert.Nil(t, snap.Customers[0].RegistrationDate)

	var buf bytes.Buffer
	tbl, err := TransactionsTable(ds.Transactions)
	require.NoError(t, err)
	require.NoError(t, WriteCSV(&buf, tbl))
	assert.Contains(t, buf.String(), "1,1,,Deposit,10,RUB,,Completed,Online")
}

type mockFetcher struct {
	FetchFromGCSFunc func(ctx context.Context, gcsURI string) ([]byte, error)
}

func (m *mockFetcher) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	return m.FetchFromGCSFunc(ctx, gcsURI)
}

func TestCSVSource_LocalDirectory(t *testing.T) {
	dir := t.TempDir()
	for name, data := range writeDatasetFiles(t, sampleDataset()) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
	}

	ds, err := (&CSVSource{URI: dir}).Dataset(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Transactions, 5)
}

func TestCSVSource_GCS(t *testing.T) {
	files := writeDatasetFiles(t, sampleDataset())
	var fetched []string
	src := &CSVSource{
		URI: "gs://bank-landing/2024-01-10/",
		Fetcher: &mockFetcher{FetchFromGCSFunc: func(ctx context.Context, uri string) ([]byte, error) {
			fetched = append(fetched, uri)
			return files[uri[strings.LastIndex(uri, "/")+1:]], nil
		}},
	}

	ds, err := src.Dataset(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Customers, 2)
	assert.Equal(t, []string{
		"gs://bank-landing/2024-01-10/customers.csv",
		"gs://bank-landing/2024-01-10/accounts.csv",
		"gs://bank-landing/2024-01-10/transactions.csv",
		"gs://bank-landing/2024-01-10/branches.csv",
	}, fetched)
}

type mockUploader struct {
	UploadBytesFunc func(ctx context.Context, bucket, object, contentType string, data []byte) error
}

func (m *mockUploader) UploadBytes(ctx context.Context, bucket, object, contentType string, data []byte) error {
	return m.UploadBytesFunc(ctx, bucket, object, contentType, data)
}

func TestArchiver(t *testing.T) {
	tables, err := DatasetTables(sampleDataset())
	require.NoError(t, err)

	uploaded := map[string]string{}
	a := &Archiver{
		Bucket: "bank-archive",
		Prefix: "staging",
		Uploader: &mockUploader{UploadBytesFunc: func(ctx context.Context, bucket, object, contentType string, data []byte) error {
			assert.Equal(t, "bank-archive", bucket)
			assert.Equal(t, "text/csv", contentType)
			uploaded[object] = string(data)
			return nil
		}},
	}

	uris, err := a.Archive(context.Background(), "run-1", tables)
	require.NoError(t, err)
	assert.Len(t, uris, 4)
	assert.Equal(t, "gs://bank-archive/staging/run-1/customers.csv", uris[0])
	assert.Contains(t, uploaded, "staging/run-1/branches.csv")
	assert.True(t, strings.HasPrefix(uploaded["staging/run-1/accounts.csv"], "account_id,customer_id,"))
}

func TestArchiver_UploadError(t *testing.T) {
	tables, err := DatasetTables(sampleDataset())
	require.NoError(t, err)

	a := &Archiver{Bucket: "b", Uploader: &mockUploader{UploadBytesFunc: func(context.Context, string, string, string, []byte) error {
		return errors.New("permission denied")
	}}}
	uris, err := a.Archive(context.Background(), "run-2", tables)
	require.Error(t, err)
	assert.Empty(t, uris)
}
