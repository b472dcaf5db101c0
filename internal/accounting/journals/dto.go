package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// LineInput describes a journal line as submitted by a caller.
type LineInput struct {
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	PartyID     *int64
	StockType   string
}

// CreateEntryInput groups fields required to create or rewrite a draft.
type CreateEntryInput struct {
	Date          time.Time
	Type          EntryType
	ReferenceType string
	ReferenceID   *uuid.UUID
	ReferenceNo   string
	Description   string
	Notes         string
	CreatedBy     int64
	Lines         []LineInput
}

// ReverseInput wraps parameters for reversal. A nil Date keeps the original
// entry date.
type ReverseInput struct {
	EntryID     int64
	ActorID     int64
	Date        *time.Time
	Description string
}

// ListFilter narrows ListEntries. Zero values mean no restriction.
type ListFilter struct {
	Type          EntryType
	Posted        *bool
	From          *time.Time
	To            *time.Time
	ReferenceType string
	ReferenceID   *uuid.UUID
	Limit         int
	Offset        int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (f ListFilter) normalised() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// build validates the header fields and converts the input into an unsaved
// draft with rounded lines and totals. Line level problems are reported by
// checkLines.
func (in CreateEntryInput) build() (JournalEntry, error) {
	if in.Date.IsZero() {
		return JournalEntry{}, fmt.Errorf("%w: entry date required", shared.ErrValidation)
	}
	entryType := in.Type
	if entryType == "" {
		entryType = EntryTypeManual
	}
	if !entryType.Valid() {
		return JournalEntry{}, fmt.Errorf("%w: unknown entry type %q", shared.ErrValidation, in.Type)
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return JournalEntry{}, fmt.Errorf("%w: description required", shared.ErrValidation)
	}
	refType := strings.ToUpper(strings.TrimSpace(in.ReferenceType))
	if in.ReferenceID != nil && refType == "" {
		return JournalEntry{}, fmt.Errorf("%w: reference type required with reference id", shared.ErrValidation)
	}
	date := dateOnly(in.Date)
	entry := JournalEntry{
		FiscalYear:    date.Year(),
		Date:          date,
		Type:          entryType,
		ReferenceType: refType,
		ReferenceID:   in.ReferenceID,
		ReferenceNo:   strings.TrimSpace(in.ReferenceNo),
		Description:   description,
		Notes:         in.Notes,
		CreatedBy:     in.CreatedBy,
		Lines:         make([]JournalLine, 0, len(in.Lines)),
	}
	for idx, line := range in.Lines {
		entry.Lines = append(entry.Lines, JournalLine{
			LineNo:      idx + 1,
			AccountID:   line.AccountID,
			Debit:       shared.Round2(line.Debit),
			Credit:      shared.Round2(line.Credit),
			Description: line.Description,
			PartyID:     line.PartyID,
			StockType:   line.StockType,
		})
	}
	entry.TotalDebit, entry.TotalCredit = totals(entry.Lines)
	return entry, nil
}

// checkLines returns every line shape and balance violation. Accounts are
// checked separately because that needs storage.
func checkLines(lines []JournalLine) []error {
	var errs []error
	if len(lines) < 2 {
		errs = append(errs, fmt.Errorf("%w: at least two lines required, got %d", shared.ErrInvalidLine, len(lines)))
	}
	for _, line := range lines {
		switch {
		case line.AccountID <= 0:
			errs = append(errs, fmt.Errorf("%w: line %d missing account", shared.ErrInvalidLine, line.LineNo))
		case line.Debit.IsNegative() || line.Credit.IsNegative():
			errs = append(errs, fmt.Errorf("%w: line %d negative amount", shared.ErrInvalidLine, line.LineNo))
		case line.Debit.IsPositive() && line.Credit.IsPositive():
			errs = append(errs, fmt.Errorf("%w: line %d cannot be both debit and credit", shared.ErrInvalidLine, line.LineNo))
		case line.Debit.IsZero() && line.Credit.IsZero():
			errs = append(errs, fmt.Errorf("%w: line %d has neither debit nor credit", shared.ErrInvalidLine, line.LineNo))
		}
	}
	debit, credit := totals(lines)
	if !debit.Equal(credit) {
		errs = append(errs, fmt.Errorf("%w: debit %s, credit %s", shared.ErrImbalance, debit.StringFixed(2), credit.StringFixed(2)))
	}
	return errs
}

func totals(lines []JournalLine) (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return shared.Round2(debit), shared.Round2(credit)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
