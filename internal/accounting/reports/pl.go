package reports

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// BuildProfitAndLoss aggregates revenue and expense hierarchies. Balances are
// lifetime balances; start and end only label the report.
func BuildProfitAndLoss(list []accounts.Account, start, end time.Time) ProfitAndLoss {
	byType := splitByType(list)
	revenue := buildSection(accounts.AccountTypeRevenue, "Revenue", byType)
	expenses := buildSection(accounts.AccountTypeExpense, "Expenses", byType)
	cogs := categoryTotal(byType[accounts.AccountTypeExpense], accounts.CategoryCostOfGoodsSold)
	return ProfitAndLoss{
		Start:         start,
		End:           end,
		Revenue:       revenue,
		Expenses:      expenses,
		TotalRevenue:  revenue.Total,
		TotalExpenses: expenses.Total,
		CostOfSales:   cogs,
		GrossProfit:   revenue.Total.Sub(cogs),
		NetIncome:     revenue.Total.Sub(expenses.Total),
	}
}
