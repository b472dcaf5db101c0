package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// DateRange bounds a ledger replay by entry date. Nil ends are open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Posting is one posted line against an account, as stored.
type Posting struct {
	EntryID         int64
	EntryNumber     string
	EntryDate       time.Time
	EntryDesc       string
	LineNo          int
	Debit           decimal.Decimal
	Credit          decimal.Decimal
	LineDescription string
}

// Totals sums posted debits and credits for an account.
type Totals struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Row is a single line of an account ledger.
type Row struct {
	Date        time.Time       `json:"date"`
	EntryID     int64           `json:"entry_id"`
	EntryNumber string          `json:"entry_number"`
	Description string          `json:"description"`
	LineNo      int             `json:"line_no"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

// AccountLedger is the running-balance replay of one account.
type AccountLedger struct {
	Account        accounts.Account `json:"account"`
	Range          DateRange        `json:"range"`
	OpeningBalance decimal.Decimal  `json:"opening_balance"`
	BroughtForward decimal.Decimal  `json:"brought_forward"`
	Rows           []Row            `json:"rows"`
	TotalDebit     decimal.Decimal  `json:"total_debit"`
	TotalCredit    decimal.Decimal  `json:"total_credit"`
	ClosingBalance decimal.Decimal  `json:"closing_balance"`
	StoredBalance  decimal.Decimal  `json:"stored_balance"`
	// Reconciled is set only for replays open-ended on the right, where the
	// closing balance must equal the stored balance.
	Reconciled *bool `json:"reconciled,omitempty"`
}

// TrialBalanceLine places one account's balance in a debit or credit column.
type TrialBalanceLine struct {
	AccountID int64                `json:"account_id"`
	Code      string               `json:"code"`
	Name      string               `json:"name"`
	Type      accounts.AccountType `json:"type"`
	Debit     decimal.Decimal      `json:"debit"`
	Credit    decimal.Decimal      `json:"credit"`
}

// TrialBalance lists every active leaf account with column totals.
type TrialBalance struct {
	AsOf        time.Time          `json:"as_of"`
	Lines       []TrialBalanceLine `json:"lines"`
	TotalDebit  decimal.Decimal    `json:"total_debit"`
	TotalCredit decimal.Decimal    `json:"total_credit"`
	Difference  decimal.Decimal    `json:"difference"`
	IsBalanced  bool               `json:"is_balanced"`
}

// Drift reports a stored balance that disagrees with its posted history.
type Drift struct {
	AccountID  int64           `json:"account_id"`
	Code       string          `json:"code"`
	Expected   decimal.Decimal `json:"expected"`
	Stored     decimal.Decimal `json:"stored"`
	Difference decimal.Decimal `json:"difference"`
}
