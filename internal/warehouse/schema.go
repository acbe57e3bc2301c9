package warehouse

// Schema names.
const (
	StagingSchema = "staging"
	DWHSchema     = "dwh"
)

// Staging tables mirror the generator output.
var (
	StagingCustomers = TableSpec{
		Schema: StagingSchema,
		Name:   "customers",
		Columns: []string{
			"customer_id", "first_name", "last_name", "email", "phone",
			"date_of_birth", "city", "country", "registration_date", "customer_segment",
		},
		Unique: []string{"customer_id"},
	}

	StagingAccounts = TableSpec{
		Schema: StagingSchema,
		Name:   "accounts",
		Columns: []string{
			"account_id", "customer_id", "account_number", "account_type",
			"currency", "balance", "opening_date", "status",
		},
		Unique: []string{"account_id"},
	}

	StagingTransactions = TableSpec{
		Schema: StagingSchema,
		Name:   "transactions",
		Columns: []string{
			"transaction_id", "account_id", "transaction_date", "transaction_type",
			"amount", "currency", "merchant_name", "transaction_status", "channel",
		},
		Unique: []string{"transaction_id"},
	}

	StagingBranches = TableSpec{
		Schema: StagingSchema,
		Name:   "branches",
		Columns: []string{
			"branch_id", "branch_name", "city", "address", "region", "opening_date",
		},
		Unique: []string{"branch_id"},
	}

	StagingExchangeRates = TableSpec{
		Schema:  StagingSchema,
		Name:    "exchange_rates",
		Columns: []string{"date", "usd_to_rub", "eur_to_rub", "usd_to_eur"},
		Unique:  []string{"date"},
	}
)

// Star schema tables.
var (
	DimCustomer = TableSpec{
		Schema:    DWHSchema,
		Name:      "dim_customer",
		Surrogate: "customer_key",
		Columns: []string{
			"customer_id", "first_name", "last_name", "full_name", "email", "phone",
			"age", "city", "country", "customer_segment", "registration_date",
			"effective_date", "expiration_date", "is_current",
		},
		Unique:      []string{"customer_id"},
		CurrentOnly: true,
	}

	DimAccount = TableSpec{
		Schema:    DWHSchema,
		Name:      "dim_account",
		Surrogate: "account_key",
		Columns: []string{
			"account_id", "account_number", "account_type", "currency", "opening_date", "status",
		},
		Unique: []string{"account_id"},
	}

	DimBranch = TableSpec{
		Schema:    DWHSchema,
		Name:      "dim_branch",
		Surrogate: "branch_key",
		Columns:   []string{"branch_id", "branch_name", "city", "region", "address"},
		Unique:    []string{"branch_id"},
	}

	DimDate = TableSpec{
		Schema: DWHSchema,
		Name:   "dim_date",
		Columns: []string{
			"date_key", "date", "year", "quarter", "month", "month_name", "week",
			"day_of_month", "day_of_week", "day_name", "is_weekend",
		},
		Unique: []string{"date_key"},
	}

	DimTransactionType = TableSpec{
		Schema:    DWHSchema,
		Name:      "dim_transaction_type",
		Surrogate: "transaction_type_key",
		Columns:   []string{"transaction_type", "transaction_category", "description"},
		Unique:    []string{"transaction_type"},
	}

	FactTransactions = TableSpec{
		Schema:    DWHSchema,
		Name:      "fact_transactions",
		Surrogate: "transaction_key",
		Columns: []string{
			"transaction_id", "date_key", "customer_key", "account_key",
			"transaction_type_key", "branch_key", "amount_original", "original_currency",
			"amount_rub", "exchange_rate", "transaction_status", "channel", "merchant_name",
		},
		Unique: []string{"transaction_id"},
	}
)

// AllTables lists every table in load order.
var AllTables = []TableSpec{
	StagingCustomers, StagingAccounts, StagingTransactions, StagingBranches, StagingExchangeRates,
	DimCustomer, DimAccount, DimBranch, DimDate, DimTransactionType, FactTransactions,
}
