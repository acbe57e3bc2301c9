package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
	"github.com/shopspring/decimal"
)

// row reads typed values out of a stored record by column name.
type row struct {
	spec warehouse.TableSpec
	rec  record
}

func (r row) get(col string) any {
	return r.rec.values[r.spec.ColumnIndex(col)]
}

func (r row) i64(col string) int64 {
	switch v := r.get(col).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case *int64:
		if v != nil {
			return *v
		}
	}
	return 0
}

func (r row) str(col string) string {
	switch v := r.get(col).(type) {
	case string:
		return v
	case *string:
		if v != nil {
			return *v
		}
	}
	return ""
}

func (r row) strPtr(col string) *string {
	switch v := r.get(col).(type) {
	case string:
		return &v
	case *string:
		if v != nil {
			s := *v
			return &s
		}
	}
	return nil
}

func (r row) tm(col string) time.Time {
	switch v := r.get(col).(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	}
	return time.Time{}
}

func (r row) tmPtr(col string) *time.Time {
	switch v := r.get(col).(type) {
	case time.Time:
		return &v
	case *time.Time:
		if v != nil {
			t := *v
			return &t
		}
	}
	return nil
}

func (r row) dec(col string) decimal.Decimal {
	if v, ok := r.get(col).(decimal.Decimal); ok {
		return v
	}
	return decimal.Zero
}

func (r row) flag(col string) bool {
	v, _ := r.get(col).(bool)
	return v
}

// Customers returns staging customers ordered by customer_id.
func (s *Store) Customers(ctx context.Context) ([]domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Customer
	s.each(warehouse.StagingCustomers, func(r row) {
		out = append(out, domain.Customer{
			CustomerID:       r.i64("customer_id"),
			FirstName:        r.str("first_name"),
			LastName:         r.str("last_name"),
			Email:            r.strPtr("email"),
			Phone:            r.strPtr("phone"),
			DateOfBirth:      r.tmPtr("date_of_birth"),
			City:             r.str("city"),
			Country:          r.str("country"),
			RegistrationDate: r.tmPtr("registration_date"),
			Segment:          r.str("customer_segment"),
		})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out, nil
}

// Accounts returns staging accounts ordered by account_id.
func (s *Store) Accounts(ctx context.Context) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.accounts()
	sort.SliceStable(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (s *Store) accounts() []domain.Account {
	var out []domain.Account
	s.each(warehouse.StagingAccounts, func(r row) {
		out = append(out, domain.Account{
			AccountID:     r.i64("account_id"),
			CustomerID:    r.i64("customer_id"),
			AccountNumber: r.str("account_number"),
			AccountType:   r.str("account_type"),
			Currency:      r.str("currency"),
			Balance:       r.dec("balance"),
			OpeningDate:   r.tmPtr("opening_date"),
			Status:        r.str("status"),
		})
	})
	return out
}

// CompletedTransactions returns Completed transactions whose account exists,
// with the account's customer_id attached, ordered by transaction_id.
func (s *Store) CompletedTransactions(ctx context.Context) ([]domain.StagedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners := make(map[int64]int64)
	for _, a := range s.accounts() {
		owners[a.AccountID] = a.CustomerID
	}

	var out []domain.StagedTransaction
	s.each(warehouse.StagingTransactions, func(r row) {
		if r.str("transaction_status") != domain.StatusCompleted {
			return
		}
		customerID, ok := owners[r.i64("account_id")]
		if !ok {
			return
		}
		out = append(out, domain.StagedTransaction{
			Transaction: domain.Transaction{
				TransactionID:   r.i64("transaction_id"),
				AccountID:       r.i64("account_id"),
				TransactionDate: r.tmPtr("transaction_date"),
				TransactionType: r.str("transaction_type"),
				Amount:          r.dec("amount"),
				Currency:        r.str("currency"),
				MerchantName:    r.strPtr("merchant_name"),
				Status:          r.str("transaction_status"),
				Channel:         r.str("channel"),
			},
			CustomerID: customerID,
		})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	return out, nil
}

// Branches returns staging branches ordered by branch_id.
func (s *Store) Branches(ctx context.Context) ([]domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Branch
	s.each(warehouse.StagingBranches, func(r row) {
		out = append(out, domain.Branch{
			BranchID:    r.i64("branch_id"),
			BranchName:  r.str("branch_name"),
			City:        r.str("city"),
			Address:     r.str("address"),
			Region:      r.str("region"),
			OpeningDate: r.tmPtr("opening_date"),
		})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].BranchID < out[j].BranchID })
	return out, nil
}

// LatestExchangeRate returns the snapshot with the greatest date.
func (s *Store) LatestExchangeRate(ctx context.Context) (domain.ExchangeRateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		latest domain.ExchangeRateSnapshot
		found  bool
	)
	s.each(warehouse.StagingExchangeRates, func(r row) {
		d := r.tm("date")
		if found && !d.After(latest.Date) {
			return
		}
		found = true
		latest = domain.ExchangeRateSnapshot{
			Date:     d,
			UsdToRub: r.dec("usd_to_rub"),
			EurToRub: r.dec("eur_to_rub"),
			UsdToEur: r.dec("usd_to_eur"),
		}
	})
	if !found {
		return domain.ExchangeRateSnapshot{}, warehouse.ErrNoExchangeRates
	}
	return latest, nil
}

// CurrentCustomerKeys maps customer_id to customer_key for current rows.
func (s *Store) CurrentCustomerKeys(ctx context.Context) (map[int64]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[int64]int64)
	s.each(warehouse.DimCustomer, func(r row) {
		if r.flag("is_current") {
			keys[r.i64("customer_id")] = r.rec.key
		}
	})
	return keys, nil
}

// AccountKeys maps account_id to account_key.
func (s *Store) AccountKeys(ctx context.Context) (map[int64]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[int64]int64)
	s.each(warehouse.DimAccount, func(r row) {
		keys[r.i64("account_id")] = r.rec.key
	})
	return keys, nil
}

// TransactionTypeKeys maps transaction_type to transaction_type_key.
func (s *Store) TransactionTypeKeys(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[string]int64)
	s.each(warehouse.DimTransactionType, func(r row) {
		keys[r.str("transaction_type")] = r.rec.key
	})
	return keys, nil
}

// BranchKeys returns every branch_key in ascending order.
func (s *Store) BranchKeys(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []int64
	s.each(warehouse.DimBranch, func(r row) {
		keys = append(keys, r.rec.key)
	})
	sortInt64s(keys)
	return keys, nil
}

// FactSummary counts and sums amount_rub over the fact table.
func (s *Store) FactSummary(ctx context.Context) (domain.FactSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum domain.FactSummary
	s.each(warehouse.FactTransactions, func(r row) {
		sum.TotalTransactions++
		sum.TotalAmountRub = sum.TotalAmountRub.Add(r.dec("amount_rub"))
	})
	if sum.TotalTransactions > 0 {
		sum.AvgAmountRub = sum.TotalAmountRub.Div(decimal.NewFromInt(sum.TotalTransactions))
	}
	return sum, nil
}
