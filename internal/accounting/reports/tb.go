package reports

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
)

// TrialBalanceGroup subtotals trial balance lines of one account type.
type TrialBalanceGroup struct {
	Type   accounts.AccountType      `json:"type"`
	Lines  []ledger.TrialBalanceLine `json:"lines"`
	Debit  decimal.Decimal           `json:"debit"`
	Credit decimal.Decimal           `json:"credit"`
}

// TrialBalance is the trial balance grouped by account type for display.
type TrialBalance struct {
	ledger.TrialBalance
	Groups []TrialBalanceGroup `json:"groups"`
}

// GroupTrialBalance groups lines in statement order. Totals are unchanged.
func GroupTrialBalance(tb ledger.TrialBalance) TrialBalance {
	byType := make(map[accounts.AccountType]*TrialBalanceGroup, len(accounts.AllTypes))
	for _, line := range tb.Lines {
		grp, ok := byType[line.Type]
		if !ok {
			grp = &TrialBalanceGroup{Type: line.Type, Debit: decimal.Zero, Credit: decimal.Zero}
			byType[line.Type] = grp
		}
		grp.Lines = append(grp.Lines, line)
		grp.Debit = grp.Debit.Add(line.Debit)
		grp.Credit = grp.Credit.Add(line.Credit)
	}
	out := TrialBalance{TrialBalance: tb}
	for _, t := range accounts.AllTypes {
		if grp, ok := byType[t]; ok {
			out.Groups = append(out.Groups, *grp)
		}
	}
	return out
}
