package reports

import (
	"github.com/shopspring/decimal"
)

const ratioPlaces = 4

var hundred = decimal.NewFromInt(100)

// ComputeRatios derives liquidity and leverage ratios from a balance sheet.
func ComputeRatios(bs BalanceSheet) Ratios {
	return Ratios{
		CurrentRatio: ratio(bs.CurrentAssets, bs.CurrentLiabilities),
		DebtToEquity: ratio(bs.TotalLiabilities, bs.TotalEquity),
		EquityRatio:  ratio(bs.TotalEquity, bs.TotalAssets),
	}
}

// Compare sets two balance sheets side by side. Accounts present in only
// one snapshot compare against zero.
func Compare(current, prior BalanceSheet) ComparativeBalanceSheet {
	return ComparativeBalanceSheet{
		AsOf:         current.AsOf,
		PriorAsOf:    prior.AsOf,
		Assets:       compareSection(current.Assets, prior.Assets),
		Liabilities:  compareSection(current.Liabilities, prior.Liabilities),
		Equity:       compareSection(current.Equity, prior.Equity),
		Ratios:       ComputeRatios(current),
		PriorRatios:  ComputeRatios(prior),
		BothBalanced: current.IsBalanced && prior.IsBalanced,
	}
}

func compareSection(current, prior Section) ComparativeSection {
	out := ComparativeSection{
		Type:         current.Type,
		Title:        current.Title,
		CurrentTotal: current.Total,
		PriorTotal:   prior.Total,
		Change:       current.Total.Sub(prior.Total),
	}
	if out.Title == "" {
		out.Type, out.Title = prior.Type, prior.Title
	}
	priorByKey := make(map[string]Line, len(prior.Lines))
	for _, line := range prior.Lines {
		priorByKey[line.key()] = line
	}
	seen := make(map[string]bool, len(current.Lines))
	for _, line := range current.Lines {
		p := priorByKey[line.key()]
		seen[line.key()] = true
		out.Lines = append(out.Lines, compareLine(line, line.Balance, p.Balance))
	}
	for _, line := range prior.Lines {
		if seen[line.key()] {
			continue
		}
		out.Lines = append(out.Lines, compareLine(line, decimal.Zero, line.Balance))
	}
	return out
}

func compareLine(line Line, current, prior decimal.Decimal) ComparativeLine {
	change := current.Sub(prior)
	cl := ComparativeLine{
		Code:    line.Code,
		Name:    line.Name,
		Level:   line.Level,
		Current: current,
		Prior:   prior,
		Change:  change,
	}
	if pct := ratio(change, prior.Abs()); pct != nil {
		v := pct.Mul(hundred).Round(2)
		cl.ChangePercent = &v
	}
	return cl
}

func ratio(num, den decimal.Decimal) *decimal.Decimal {
	if den.IsZero() {
		return nil
	}
	v := num.DivRound(den, ratioPlaces)
	return &v
}
