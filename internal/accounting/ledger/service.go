package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Service derives ledgers and trial balances from posted history.
type Service struct {
	accounts AccountReader
	repo     Repository
	now      func() time.Time
}

// NewService constructs the ledger query service.
func NewService(accountsRepo AccountReader, repo Repository) *Service {
	return &Service{accounts: accountsRepo, repo: repo, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// AccountLedger replays the account's posted lines into a running balance
// seeded at its opening balance. Activity before rng.From is folded into the
// brought forward balance.
func (s *Service) AccountLedger(ctx context.Context, accountID int64, rng DateRange) (AccountLedger, error) {
	if rng.From != nil && rng.To != nil && rng.To.Before(*rng.From) {
		return AccountLedger{}, fmt.Errorf("%w: range ends before it starts", shared.ErrValidation)
	}
	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return AccountLedger{}, fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, accountID)
		}
		return AccountLedger{}, err
	}
	postings, err := s.repo.PostedLines(ctx, accountID, rng.To)
	if err != nil {
		return AccountLedger{}, err
	}
	return Replay(acc, postings, rng), nil
}

// Replay folds postings into an AccountLedger. Postings must already be
// ordered and bounded by rng.To.
func Replay(acc accounts.Account, postings []Posting, rng DateRange) AccountLedger {
	out := AccountLedger{
		Account:        acc,
		Range:          rng,
		OpeningBalance: acc.OpeningBalance,
		StoredBalance:  acc.CurrentBalance,
		TotalDebit:     decimal.Zero,
		TotalCredit:    decimal.Zero,
		Rows:           make([]Row, 0, len(postings)),
	}
	running := acc.OpeningBalance
	out.BroughtForward = acc.OpeningBalance
	var from time.Time
	if rng.From != nil {
		from = startOfDay(*rng.From)
	}
	for _, p := range postings {
		running = running.Add(shared.SignedDelta(acc.NormalBalance, p.Debit, p.Credit))
		if rng.From != nil && p.EntryDate.Before(from) {
			out.BroughtForward = running
			continue
		}
		description := p.EntryDesc
		if p.LineDescription != "" {
			description = p.LineDescription
		}
		out.Rows = append(out.Rows, Row{
			Date:        p.EntryDate,
			EntryID:     p.EntryID,
			EntryNumber: p.EntryNumber,
			Description: description,
			LineNo:      p.LineNo,
			Debit:       p.Debit,
			Credit:      p.Credit,
			Balance:     running,
		})
		out.TotalDebit = out.TotalDebit.Add(p.Debit)
		out.TotalCredit = out.TotalCredit.Add(p.Credit)
	}
	out.ClosingBalance = running
	if rng.To == nil {
		reconciled := out.ClosingBalance.Equal(out.StoredBalance)
		out.Reconciled = &reconciled
	}
	return out
}

// TrialBalance lists every active leaf account. Balances are lifetime
// balances; asOf only labels the report.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	list, err := s.accounts.List(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	return BuildTrialBalance(list, asOf), nil
}

// BuildTrialBalance places each active leaf balance in its normal column,
// flipping columns for balances opposite to the normal side.
func BuildTrialBalance(list []accounts.Account, asOf time.Time) TrialBalance {
	tb := TrialBalance{AsOf: asOf, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, acc := range list {
		if acc.IsHeader || !acc.IsActive {
			continue
		}
		line := TrialBalanceLine{
			AccountID: acc.ID,
			Code:      acc.Code,
			Name:      acc.Name,
			Type:      acc.Type,
			Debit:     decimal.Zero,
			Credit:    decimal.Zero,
		}
		amount := acc.CurrentBalance.Abs()
		onNormalSide := !acc.CurrentBalance.IsNegative()
		debitSide := acc.NormalBalance == shared.NormalDebit
		if onNormalSide == debitSide {
			line.Debit = amount
		} else {
			line.Credit = amount
		}
		tb.Lines = append(tb.Lines, line)
		tb.TotalDebit = tb.TotalDebit.Add(line.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(line.Credit)
	}
	tb.Difference = tb.TotalDebit.Sub(tb.TotalCredit)
	tb.IsBalanced = shared.WithinTolerance(tb.TotalDebit, tb.TotalCredit)
	return tb
}

// VerifyBalances recomputes every leaf balance from its opening balance and
// posted history and reports accounts whose stored balance drifted.
func (s *Service) VerifyBalances(ctx context.Context) ([]Drift, error) {
	list, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.PostedTotals(ctx)
	if err != nil {
		return nil, err
	}
	var drifts []Drift
	for _, acc := range list {
		if acc.IsHeader {
			continue
		}
		t := totals[acc.ID]
		expected := acc.OpeningBalance.Add(shared.SignedDelta(acc.NormalBalance, t.Debit, t.Credit))
		if expected.Equal(acc.CurrentBalance) {
			continue
		}
		drifts = append(drifts, Drift{
			AccountID:  acc.ID,
			Code:       acc.Code,
			Expected:   expected,
			Stored:     acc.CurrentBalance,
			Difference: acc.CurrentBalance.Sub(expected),
		})
	}
	return drifts, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
