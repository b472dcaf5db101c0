package journals

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType classifies the business origin of an entry.
type EntryType string

const (
	EntryTypeSales      EntryType = "SALES"
	EntryTypePurchase   EntryType = "PURCHASE"
	EntryTypePayment    EntryType = "PAYMENT"
	EntryTypeReceipt    EntryType = "RECEIPT"
	EntryTypeAdjustment EntryType = "ADJUSTMENT"
	EntryTypePayroll    EntryType = "PAYROLL"
	EntryTypeManual     EntryType = "MANUAL"
)

// Valid reports whether the entry type is known.
func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeSales, EntryTypePurchase, EntryTypePayment, EntryTypeReceipt,
		EntryTypeAdjustment, EntryTypePayroll, EntryTypeManual:
		return true
	}
	return false
}

// JournalEntry is a dated, balanced set of lines. Posted entries are immutable.
type JournalEntry struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	FiscalYear    int             `json:"fiscal_year"`
	Date          time.Time       `json:"date"`
	Type          EntryType       `json:"type"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID      `json:"reference_id,omitempty"`
	ReferenceNo   string          `json:"reference_no,omitempty"`
	Description   string          `json:"description"`
	Notes         string          `json:"notes,omitempty"`
	Lines         []JournalLine   `json:"lines"`
	TotalDebit    decimal.Decimal `json:"total_debit"`
	TotalCredit   decimal.Decimal `json:"total_credit"`
	Posted        bool            `json:"posted"`
	IsReversal    bool            `json:"is_reversal"`
	ReversalOf    *int64          `json:"reversal_of,omitempty"`
	ReversedBy    *int64          `json:"reversed_by,omitempty"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	PostedBy      *int64          `json:"posted_by,omitempty"`
	PostedAt      *time.Time      `json:"posted_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Status renders the lifecycle state.
func (e JournalEntry) Status() string {
	if e.Posted {
		return "POSTED"
	}
	return "DRAFT"
}

// JournalLine is a single debit or credit against one account.
type JournalLine struct {
	LineNo      int             `json:"line_no"`
	AccountID   int64           `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
	PartyID     *int64          `json:"party_id,omitempty"`
	StockType   string          `json:"stock_type,omitempty"`
}

// Violation describes one reason an entry cannot be posted.
type Violation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult reports posting readiness without mutating anything.
type ValidationResult struct {
	Valid    bool        `json:"valid"`
	Errors   []Violation `json:"errors,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
}

// EntryNumber formats the public entry number for a fiscal year sequence.
func EntryNumber(year int, seq int64) string {
	return fmt.Sprintf("JE-%04d-%06d", year, seq)
}
