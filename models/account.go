package models

// AccountCategory groups chart entries the usual way.
type AccountCategory string

const (
	AccountCategoryAsset     AccountCategory = "Asset"
	AccountCategoryLiability AccountCategory = "Liability"
	AccountCategoryIncome    AccountCategory = "Income"
)

const (
	AccountCodeCash               = "1000"
	AccountCodeBank               = "1010"
	AccountCodeAccountsReceivable = "1100"
	AccountCodeCodInTransit       = "1150"
	AccountCodeCodPayable         = "2100"
	AccountCodeTaxPayable         = "2200"
	AccountCodeFreightRevenue     = "4000"
	AccountCodeSurchargeRevenue   = "4010"
	AccountCodeInsuranceRevenue   = "4020"
)

// LedgerAccount is a static chart-of-accounts row.
type LedgerAccount struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Category AccountCategory `json:"category"`
}

var chartOfAccounts = []LedgerAccount{
	{Code: AccountCodeCash, Name: "Cash", Category: AccountCategoryAsset},
	{Code: AccountCodeBank, Name: "Bank", Category: AccountCategoryAsset},
	{Code: AccountCodeAccountsReceivable, Name: "Accounts Receivable", Category: AccountCategoryAsset},
	{Code: AccountCodeCodInTransit, Name: "COD Cash In Transit", Category: AccountCategoryAsset},
	{Code: AccountCodeCodPayable, Name: "COD Payable", Category: AccountCategoryLiability},
	{Code: AccountCodeTaxPayable, Name: "Tax Payable", Category: AccountCategoryLiability},
	{Code: AccountCodeFreightRevenue, Name: "Freight Revenue", Category: AccountCategoryIncome},
	{Code: AccountCodeSurchargeRevenue, Name: "Surcharge Revenue", Category: AccountCategoryIncome},
	{Code: AccountCodeInsuranceRevenue, Name: "Insurance Revenue", Category: AccountCategoryIncome},
}

var accountsByCode = func() map[string]LedgerAccount {
	m := make(map[string]LedgerAccount, len(chartOfAccounts))
	for _, a := range chartOfAccounts {
		m[a.Code] = a
	}
	return m
}()

func LookupAccount(code string) (LedgerAccount, bool) {
	a, ok := accountsByCode[code]
	return a, ok
}

// MustAccount panics on an unknown code; only used with the constants above.
func MustAccount(code string) LedgerAccount {
	a, ok := accountsByCode[code]
	if !ok {
		panic("unknown ledger account code " + code)
	}
	return a
}

func ChartOfAccounts() []LedgerAccount {
	out := make([]LedgerAccount, len(chartOfAccounts))
	copy(out, chartOfAccounts)
	return out
}
