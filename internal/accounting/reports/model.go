package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// Line is one account of a statement section with its aggregated balance.
type Line struct {
	AccountID int64           `json:"account_id,omitempty"`
	Code      string          `json:"code,omitempty"`
	Name      string          `json:"name"`
	Level     int             `json:"level"`
	IsHeader  bool            `json:"is_header"`
	Category  string          `json:"category,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
}

func (l Line) key() string {
	if l.Code != "" {
		return l.Code
	}
	return l.Name
}

// Section is a statement block for one account type.
type Section struct {
	Type  accounts.AccountType `json:"type"`
	Title string               `json:"title"`
	Lines []Line               `json:"lines"`
	Total decimal.Decimal      `json:"total"`
}

// BalanceSheet reports assets against liabilities and equity. Difference is
// surfaced as is and never corrected.
type BalanceSheet struct {
	AsOf                      time.Time       `json:"as_of"`
	GeneratedAt               time.Time       `json:"generated_at"`
	Assets                    Section         `json:"assets"`
	Liabilities               Section         `json:"liabilities"`
	Equity                    Section         `json:"equity"`
	CurrentEarnings           decimal.Decimal `json:"current_earnings"`
	CurrentAssets             decimal.Decimal `json:"current_assets"`
	CurrentLiabilities        decimal.Decimal `json:"current_liabilities"`
	TotalAssets               decimal.Decimal `json:"total_assets"`
	TotalLiabilities          decimal.Decimal `json:"total_liabilities"`
	TotalEquity               decimal.Decimal `json:"total_equity"`
	TotalLiabilitiesAndEquity decimal.Decimal `json:"total_liabilities_and_equity"`
	Difference                decimal.Decimal `json:"difference"`
	IsBalanced                bool            `json:"is_balanced"`
}

// ProfitAndLoss reports revenue against expenses.
type ProfitAndLoss struct {
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	Revenue       Section         `json:"revenue"`
	Expenses      Section         `json:"expenses"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	CostOfSales   decimal.Decimal `json:"cost_of_sales"`
	GrossProfit   decimal.Decimal `json:"gross_profit"`
	NetIncome     decimal.Decimal `json:"net_income"`
}

// Ratios are derived from one balance sheet. Nil means the denominator was zero.
type Ratios struct {
	CurrentRatio *decimal.Decimal `json:"current_ratio"`
	DebtToEquity *decimal.Decimal `json:"debt_to_equity"`
	EquityRatio  *decimal.Decimal `json:"equity_ratio"`
}

// ComparativeLine compares one account across two snapshots.
type ComparativeLine struct {
	Code          string           `json:"code,omitempty"`
	Name          string           `json:"name"`
	Level         int              `json:"level"`
	Current       decimal.Decimal  `json:"current"`
	Prior         decimal.Decimal  `json:"prior"`
	Change        decimal.Decimal  `json:"change"`
	ChangePercent *decimal.Decimal `json:"change_percent,omitempty"`
}

// ComparativeSection compares one section across two snapshots.
type ComparativeSection struct {
	Type         accounts.AccountType `json:"type"`
	Title        string               `json:"title"`
	Lines        []ComparativeLine    `json:"lines"`
	CurrentTotal decimal.Decimal      `json:"current_total"`
	PriorTotal   decimal.Decimal      `json:"prior_total"`
	Change       decimal.Decimal      `json:"change"`
}

// ComparativeBalanceSheet sets two balance sheets side by side.
type ComparativeBalanceSheet struct {
	AsOf         time.Time          `json:"as_of"`
	PriorAsOf    time.Time          `json:"prior_as_of"`
	Assets       ComparativeSection `json:"assets"`
	Liabilities  ComparativeSection `json:"liabilities"`
	Equity       ComparativeSection `json:"equity"`
	Ratios       Ratios             `json:"ratios"`
	PriorRatios  Ratios             `json:"prior_ratios"`
	BothBalanced bool               `json:"both_balanced"`
}
