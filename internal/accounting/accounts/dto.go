package accounts

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type createAccountRequest struct {
	Code           string           `json:"code" validate:"required,max=32"`
	Name           string           `json:"name" validate:"required,max=160"`
	Type           string           `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	Category       string           `json:"category" validate:"omitempty,max=64"`
	Description    string           `json:"description"`
	IsHeader       bool             `json:"is_header"`
	NormalBalance  string           `json:"normal_balance" validate:"omitempty,oneof=DEBIT CREDIT"`
	ParentID       *int64           `json:"parent_id" validate:"omitempty,gt=0"`
	OpeningBalance *decimal.Decimal `json:"opening_balance"`
}

func (r createAccountRequest) input(actorID int64) CreateAccountInput {
	in := CreateAccountInput{
		Code:          r.Code,
		Name:          r.Name,
		Type:          AccountType(r.Type),
		Category:      r.Category,
		Description:   r.Description,
		IsHeader:      r.IsHeader,
		NormalBalance: shared.NormalBalance(r.NormalBalance),
		ParentID:      r.ParentID,
		ActorID:       actorID,
	}
	if r.OpeningBalance != nil {
		in.OpeningBalance = *r.OpeningBalance
	}
	return in
}

type updateAccountRequest struct {
	Name           *string          `json:"name" validate:"omitempty,min=1,max=160"`
	Type           *string          `json:"type" validate:"omitempty,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	Category       *string          `json:"category" validate:"omitempty,max=64"`
	Description    *string          `json:"description"`
	IsHeader       *bool            `json:"is_header"`
	NormalBalance  *string          `json:"normal_balance" validate:"omitempty,oneof=DEBIT CREDIT"`
	ParentID       *int64           `json:"parent_id" validate:"omitempty,gt=0"`
	ClearParent    bool             `json:"clear_parent"`
	OpeningBalance *decimal.Decimal `json:"opening_balance"`
}

func (r updateAccountRequest) input(actorID int64) UpdateAccountInput {
	in := UpdateAccountInput{
		Name:           r.Name,
		Category:       r.Category,
		Description:    r.Description,
		IsHeader:       r.IsHeader,
		ParentID:       r.ParentID,
		ClearParent:    r.ClearParent,
		OpeningBalance: r.OpeningBalance,
		ActorID:        actorID,
	}
	if r.Type != nil {
		t := AccountType(*r.Type)
		in.Type = &t
	}
	if r.NormalBalance != nil {
		nb := shared.NormalBalance(*r.NormalBalance)
		in.NormalBalance = &nb
	}
	return in
}
