package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// CurrentEarningsLabel names the synthetic equity line carrying revenue less
// expense, since temporary accounts are never closed into retained earnings.
const CurrentEarningsLabel = "Current Earnings"

// BuildBalanceSheet aggregates asset, liability and equity hierarchies from
// current balances.
func BuildBalanceSheet(list []accounts.Account, asOf time.Time) BalanceSheet {
	byType := splitByType(list)
	assets := buildSection(accounts.AccountTypeAsset, "Assets", byType)
	liabilities := buildSection(accounts.AccountTypeLiability, "Liabilities", byType)
	equity := buildSection(accounts.AccountTypeEquity, "Equity", byType)
	revenue := accounts.SumTotals(accounts.BuildForest(byType[accounts.AccountTypeRevenue]))
	expense := accounts.SumTotals(accounts.BuildForest(byType[accounts.AccountTypeExpense]))

	earnings := revenue.Sub(expense)
	equity.Lines = append(equity.Lines, Line{Name: CurrentEarningsLabel, Balance: earnings})
	equity.Total = equity.Total.Add(earnings)

	bs := BalanceSheet{
		AsOf:               asOf,
		Assets:             assets,
		Liabilities:        liabilities,
		Equity:             equity,
		CurrentEarnings:    earnings,
		CurrentAssets:      categoryTotal(byType[accounts.AccountTypeAsset], accounts.CategoryCurrentAsset),
		CurrentLiabilities: categoryTotal(byType[accounts.AccountTypeLiability], accounts.CategoryCurrentLiability),
		TotalAssets:        assets.Total,
		TotalLiabilities:   liabilities.Total,
		TotalEquity:        equity.Total,
	}
	bs.TotalLiabilitiesAndEquity = bs.TotalLiabilities.Add(bs.TotalEquity)
	bs.Difference = bs.TotalAssets.Sub(bs.TotalLiabilitiesAndEquity)
	bs.IsBalanced = shared.WithinTolerance(bs.TotalAssets, bs.TotalLiabilitiesAndEquity)
	return bs
}

func splitByType(list []accounts.Account) map[accounts.AccountType][]accounts.Account {
	out := make(map[accounts.AccountType][]accounts.Account, len(accounts.AllTypes))
	for _, acc := range list {
		out[acc.Type] = append(out[acc.Type], acc)
	}
	return out
}

func buildSection(t accounts.AccountType, title string, byType map[accounts.AccountType][]accounts.Account) Section {
	roots := accounts.BuildForest(byType[t])
	section := Section{Type: t, Title: title, Total: accounts.SumTotals(roots)}
	accounts.Walk(roots, func(n *accounts.Node, depth int) {
		section.Lines = append(section.Lines, Line{
			AccountID: n.ID,
			Code:      n.Code,
			Name:      n.Name,
			Level:     depth,
			IsHeader:  n.IsHeader,
			Category:  n.Category,
			Balance:   n.TotalBalance,
		})
	})
	return section
}

func categoryTotal(list []accounts.Account, category string) decimal.Decimal {
	total := decimal.Zero
	for _, acc := range list {
		if !acc.IsHeader && acc.Category == category {
			total = total.Add(acc.PresentedBalance())
		}
	}
	return total
}
