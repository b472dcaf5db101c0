package accounts

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AllTypes lists account types in statement order.
var AllTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeRevenue,
	AccountTypeExpense,
}

// ParseAccountType normalises user supplied type names.
func ParseAccountType(raw string) (AccountType, error) {
	t := AccountType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown account type %q", shared.ErrValidation, raw)
	}
	return t, nil
}

// Valid reports whether the type is known.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// DefaultNormalBalance returns the side on which the type naturally increases.
func (t AccountType) DefaultNormalBalance() shared.NormalBalance {
	if t == AccountTypeAsset || t == AccountTypeExpense {
		return shared.NormalDebit
	}
	return shared.NormalCredit
}

// Well known values for Account.Category.
const (
	CategoryCurrentAsset        = "current_asset"
	CategoryNonCurrentAsset     = "non_current_asset"
	CategoryCurrentLiability    = "current_liability"
	CategoryNonCurrentLiability = "non_current_liability"
	CategoryCostOfGoodsSold     = "cogs"
	CategoryOperatingExpense    = "operating_expense"
	CategoryOperatingRevenue    = "operating_revenue"
	CategoryNonOperatingRevenue = "other_income"
)

// Account models a chart of accounts node.
type Account struct {
	ID             int64                `json:"id"`
	Code           string               `json:"code"`
	Name           string               `json:"name"`
	Type           AccountType          `json:"type"`
	Category       string               `json:"category,omitempty"`
	Description    string               `json:"description,omitempty"`
	IsHeader       bool                 `json:"is_header"`
	NormalBalance  shared.NormalBalance `json:"normal_balance"`
	ParentID       *int64               `json:"parent_id,omitempty"`
	Level          int                  `json:"level"`
	OpeningBalance decimal.Decimal      `json:"opening_balance"`
	CurrentBalance decimal.Decimal      `json:"current_balance"`
	IsActive       bool                 `json:"is_active"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Postable reports whether journal lines may reference the account.
func (a Account) Postable() error {
	if a.IsHeader {
		return fmt.Errorf("%w: %s", shared.ErrHeaderAccount, a.Code)
	}
	if !a.IsActive {
		return fmt.Errorf("%w: %s", shared.ErrInactiveAccount, a.Code)
	}
	return nil
}

// CreateAccountInput groups fields required to register an account.
type CreateAccountInput struct {
	Code           string
	Name           string
	Type           AccountType
	Category       string
	Description    string
	IsHeader       bool
	NormalBalance  shared.NormalBalance
	ParentID       *int64
	OpeningBalance decimal.Decimal
	ActorID        int64
}

// Validate ensures the input meets minimum criteria.
func (in CreateAccountInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return fmt.Errorf("%w: account code required", shared.ErrValidation)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: account name required", shared.ErrValidation)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown account type %q", shared.ErrValidation, in.Type)
	}
	if in.NormalBalance != "" && !in.NormalBalance.Valid() {
		return fmt.Errorf("%w: unknown normal balance %q", shared.ErrValidation, in.NormalBalance)
	}
	if in.IsHeader && !in.OpeningBalance.IsZero() {
		return fmt.Errorf("%w: header account %s cannot carry an opening balance", shared.ErrInvariant, in.Code)
	}
	return nil
}

// UpdateAccountInput carries optional changes; nil fields are left untouched.
// Code is immutable and therefore absent.
type UpdateAccountInput struct {
	Name           *string
	Type           *AccountType
	Category       *string
	Description    *string
	IsHeader       *bool
	NormalBalance  *shared.NormalBalance
	ParentID       *int64
	ClearParent    bool
	OpeningBalance *decimal.Decimal
	ActorID        int64
}
