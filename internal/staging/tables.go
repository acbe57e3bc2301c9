// Package staging lands raw datasets in the staging schema, reads them back
// for the transform phase, and moves them in and out of CSV.
package staging

import (
	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
)

// CustomersTable builds staging.customers rows.
func CustomersTable(rows []domain.Customer) (*warehouse.Table, error) {
	t := warehouse.NewTable(warehouse.StagingCustomers, len(rows))
	for _, c := range rows {
		if err := t.Append(c.CustomerID, c.FirstName, c.LastName, c.Email, c.Phone,
			c.DateOfBirth, c.City, c.Country, c.RegistrationDate, c.Segment); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AccountsTable builds staging.accounts rows.
func AccountsTable(rows []domain.Account) (*warehouse.Table, error) {
	t := warehouse.NewTable(warehouse.StagingAccounts, len(rows))
	for _, a := range rows {
		if err := t.Append(a.AccountID, a.CustomerID, a.AccountNumber, a.AccountType,
			a.Currency, a.Balance, a.OpeningDate, a.Status); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// TransactionsTable builds staging.transactions rows.
func TransactionsTable(rows []domain.Transaction) (*warehouse.Table, error) {
	t := warehouse.NewTable(warehouse.StagingTransactions, len(rows))
	for _, tx := range rows {
		if err := t.Append(tx.TransactionID, tx.AccountID, tx.TransactionDate, tx.TransactionType,
			tx.Amount, tx.Currency, tx.MerchantName, tx.Status, tx.Channel); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// BranchesTable builds staging.branches rows.
func BranchesTable(rows []domain.Branch) (*warehouse.Table, error) {
	t := warehouse.NewTable(warehouse.StagingBranches, len(rows))
	for _, b := range rows {
		if err := t.Append(b.BranchID, b.BranchName, b.City, b.Address, b.Region, b.OpeningDate); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ExchangeRatesTable builds the single staging.exchange_rates row.
func ExchangeRatesTable(s domain.ExchangeRateSnapshot) (*warehouse.Table, error) {
	t := warehouse.NewTable(warehouse.StagingExchangeRates, 1)
	if err := t.Append(s.Date, s.UsdToRub, s.EurToRub, s.UsdToEur); err != nil {
		return nil, err
	}
	return t, nil
}

// DatasetTables builds the four dataset tables in load order.
func DatasetTables(ds *domain.Dataset) ([]*warehouse.Table, error) {
	customers, err := CustomersTable(ds.Customers)
	if err != nil {
		return nil, err
	}
	accounts, err := AccountsTable(ds.Accounts)
	if err != nil {
		return nil, err
	}
	transactions, err := TransactionsTable(ds.Transactions)
	if err != nil {
		return nil, err
	}
	branches, err := BranchesTable(ds.Branches)
	if err != nil {
		return nil, err
	}
	return []*warehouse.Table{customers, accounts, transactions, branches}, nil
}
