package accounts_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type auditRecorder struct {
	mu   sync.Mutex
	logs []internalShared.AuditLog
}

func (a *auditRecorder) Record(_ context.Context, log internalShared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditRecorder) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

func newService(t *testing.T) (*accounts.Service, *ledgertest.Store, *auditRecorder) {
	t.Helper()
	store := ledgertest.New()
	audit := &auditRecorder{}
	svc := accounts.NewService(store.Accounts(), audit)
	svc.WithNow(func() time.Time { return time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC) })
	return svc, store, audit
}

func create(t *testing.T, svc *accounts.Service, in accounts.CreateAccountInput) accounts.Account {
	t.Helper()
	acc, err := svc.CreateAccount(context.Background(), in)
	require.NoError(t, err)
	return acc
}

func header(code, name string, typ accounts.AccountType, parent *int64) accounts.CreateAccountInput {
	return accounts.CreateAccountInput{Code: code, Name: name, Type: typ, IsHeader: true, ParentID: parent, ActorID: 1}
}

func leaf(code, name string, typ accounts.AccountType, parent *int64, opening string) accounts.CreateAccountInput {
	in := accounts.CreateAccountInput{Code: code, Name: name, Type: typ, ParentID: parent, ActorID: 1}
	if opening != "" {
		in.OpeningBalance = decimal.RequireFromString(opening)
	}
	return in
}

func ptr[T any](v T) *T { return &v }

func TestCreateAccountDefaultsAndLevels(t *testing.T) {
	svc, _, audit := newService(t)

	root := create(t, svc, header("1000", "Assets", accounts.AccountTypeAsset, nil))
	current := create(t, svc, header("1100", "Current Assets", accounts.AccountTypeAsset, &root.ID))
	cash := create(t, svc, leaf(" 1110 ", " Cash ", accounts.AccountTypeAsset, &current.ID, "100.005"))

	assert.Equal(t, 0, root.Level)
	assert.Equal(t, 1, current.Level)
	assert.Equal(t, 2, cash.Level)
	assert.Equal(t, "1110", cash.Code)
	assert.Equal(t, "Cash", cash.Name)
	assert.Equal(t, shared.NormalDebit, cash.NormalBalance)
	assert.True(t, cash.IsActive)
	assert.Equal(t, "100.01", cash.OpeningBalance.StringFixed(2))
	assert.True(t, cash.CurrentBalance.Equal(cash.OpeningBalance))

	payable := create(t, svc, leaf("2100", "Payables", accounts.AccountTypeLiability, nil, ""))
	assert.Equal(t, shared.NormalCredit, payable.NormalBalance)

	assert.Equal(t, []string{"account.create", "account.create", "account.create", "account.create"}, audit.actions())
}

func TestCreateAccountRejectsInvalidInput(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	assets := create(t, svc, header("1000", "Assets", accounts.AccountTypeAsset, nil))
	cash := create(t, svc, leaf("1110", "Cash", accounts.AccountTypeAsset, &assets.ID, ""))

	_, err := svc.CreateAccount(ctx, leaf("1110", "Cash again", accounts.AccountTypeAsset, nil, ""))
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.ErrorIs(t, err, shared.ErrDuplicateCode)

	_, err = svc.CreateAccount(ctx, leaf("", "No code", accounts.AccountTypeAsset, nil, ""))
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateAccount(ctx, leaf("9000", "Odd", accounts.AccountType("OTHER"), nil, ""))
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateAccount(ctx, leaf("1120", "Petty cash", accounts.AccountTypeAsset, &cash.ID, ""))
	assert.ErrorIs(t, err, shared.ErrDependency, "parent must be a header")

	_, err = svc.CreateAccount(ctx, leaf("2100", "Payables", accounts.AccountTypeLiability, &assets.ID, ""))
	assert.ErrorIs(t, err, shared.ErrDependency, "parent must share the type")

	_, err = svc.CreateAccount(ctx, leaf("1130", "Ghost", accounts.AccountTypeAsset, ptr(int64(999)), ""))
	assert.ErrorIs(t, err, shared.ErrDependency)

	in := header("1200", "Fixed Assets", accounts.AccountTypeAsset, nil)
	in.OpeningBalance = decimal.NewFromInt(5)
	_, err = svc.CreateAccount(ctx, in)
	assert.ErrorIs(t, err, shared.ErrInvariant)
}

func TestHierarchyAggregatesBottomUp(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	assets := create(t, svc, header("1000", "Assets", accounts.AccountTypeAsset, nil))
	current := create(t, svc, header("1100", "Current Assets", accounts.AccountTypeAsset, &assets.ID))
	create(t, svc, leaf("1110", "Cash", accounts.AccountTypeAsset, &current.ID, "100"))
	create(t, svc, leaf("1120", "Bank", accounts.AccountTypeAsset, &current.ID, "50"))
	fixed := create(t, svc, header("1200", "Fixed Assets", accounts.AccountTypeAsset, &assets.ID))
	create(t, svc, leaf("1210", "Equipment", accounts.AccountTypeAsset, &fixed.ID, "400"))
	depreciation := leaf("1290", "Accumulated Depreciation", accounts.AccountTypeAsset, &fixed.ID, "")
	depreciation.NormalBalance = shared.NormalCredit
	contra := create(t, svc, depreciation)
	store.SetBalance(contra.ID, decimal.NewFromInt(30))

	roots, err := svc.GetHierarchy(ctx, accounts.AccountTypeAsset)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	root := roots[0]
	assert.Equal(t, "520", root.TotalBalance.String())
	require.Len(t, root.Children, 2)
	assert.Equal(t, "1100", root.Children[0].Code)
	assert.Equal(t, "150", root.Children[0].TotalBalance.String())
	assert.Equal(t, "370", root.Children[1].TotalBalance.String())

	_, err = svc.GetHierarchy(ctx, accounts.AccountType("NOPE"))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestHierarchyPathAndChildren(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	assets := create(t, svc, header("1000", "Assets", accounts.AccountTypeAsset, nil))
	current := create(t, svc, header("1100", "Current Assets", accounts.AccountTypeAsset, &assets.ID))
	cash := create(t, svc, leaf("1110", "Cash", accounts.AccountTypeAsset, &current.ID, ""))
	create(t, svc, leaf("1120", "Bank", accounts.AccountTypeAsset, &current.ID, ""))

	path, err := svc.GetHierarchyPath(ctx, cash.ID)
	require.NoError(t, err)
	codes := make([]string, 0, len(path))
	for _, acc := range path {
		codes = append(codes, acc.Code)
	}
	assert.Equal(t, []string{"1000", "1100", "1110"}, codes)

	children, err := svc.GetChildren(ctx, current.ID)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	children, err = svc.GetChildren(ctx, cash.ID)
	require.NoError(t, err)
	assert.Empty(t, children)

	_, err = svc.GetHierarchyPath(ctx, 999)
	assert.ErrorIs(t, err, shared.ErrAccountNotFound)
	_, err = svc.GetChildren(ctx, 999)
	assert.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestDeactivateAndActivate(t *testing.T) {
	svc, _, audit := newService(t)
	ctx := context.Background()

	assets := create(t, svc, header("1000", "Assets", accounts.AccountTypeAsset, nil))
	cash := create(t, svc, leaf("1110", "Cash", accounts.AccountTypeAsset, &assets.ID, ""))
	create(t, svc, leaf("1120", "Bank", accounts.AccountTypeAsset, &assets.ID, ""))

	_, err := svc.DeactivateAccount(ctx, assets.ID, 1)
	assert.ErrorIs(t, err, shared.ErrDependency)

	cash, err = svc.DeactivateAccount(ctx, cash.ID, 1)
	require.NoError(t, err)
	assert.False(t, cash.IsActive)

	active, err := svc.GetAccountsByType(ctx, accounts.AccountTypeAsset, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	all, err := svc.GetAccountsByType(ctx, accounts.AccountTypeAsset, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	cash, err = svc.ActivateAccount(ctx, cash.ID, 1)
	require.NoError(t, err)
	assert.True(t, cash.IsActive)

	assert.Contains(t, audit.actions(), "account.deactivate")
	assert.Contains(t, audit.actions(), "account.activate")

	_, err = svc.DeactivateAccount(ctx, 999, 1)
	assert.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestActivateRequiresActiveParent(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	assets := create(t, svc, header("1000", "Assets", accounts.AccountTypeAsset, nil))
	cash := create(t, svc, leaf("1110", "Cash", accounts.AccountTypeAsset, &assets.ID, ""))

	_, err := svc.DeactivateAccount(ctx, cash.ID, 1)
	require.NoError(t, err)
	_, err = svc.DeactivateAccount(ctx, assets.ID, 1)
	require.NoError(t, err)

	_, err = svc.ActivateAccount(ctx, cash.ID, 1)
	assert.ErrorIs(t, err, shared.ErrDependency)
}

func TestUpdateAccountMovesSubtree(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	assets := create(t, svc, header("1000", "Assets", accounts.AccountTypeAsset, nil))
	current := create(t, svc, header("1100", "Current Assets", accounts.AccountTypeAsset, &assets.ID))
	cash := create(t, svc, leaf("1110", "Cash", accounts.AccountTypeAsset, &current.ID, ""))

	_, err := svc.UpdateAccount(ctx, assets.ID, accounts.UpdateAccountInput{ParentID: &current.ID})
	assert.ErrorIs(t, err, shared.ErrValidation, "moving a node under its descendant is a cycle")

	_, err = svc.UpdateAccount(ctx, current.ID, accounts.UpdateAccountInput{ParentID: &current.ID})
	assert.ErrorIs(t, err, shared.ErrValidation)

	moved, err := svc.UpdateAccount(ctx, current.ID, accounts.UpdateAccountInput{ClearParent: true})
	require.NoError(t, err)
	assert.Nil(t, moved.ParentID)
	assert.Equal(t, 0, moved.Level)
	assert.Equal(t, 1, store.Account(cash.ID).Level)

	moved, err = svc.UpdateAccount(ctx, current.ID, accounts.UpdateAccountInput{ParentID: &assets.ID, Name: ptr("Short Term Assets")})
	require.NoError(t, err)
	assert.Equal(t, 1, moved.Level)
	assert.Equal(t, "Short Term Assets", moved.Name)
	assert.Equal(t, 2, store.Account(cash.ID).Level)
}

func TestUpdateAccountHeaderRules(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	assets := create(t, svc, header("1000", "Assets", accounts.AccountTypeAsset, nil))
	create(t, svc, leaf("1110", "Cash", accounts.AccountTypeAsset, &assets.ID, ""))
	bank := create(t, svc, leaf("1120", "Bank", accounts.AccountTypeAsset, nil, "10"))

	_, err := svc.UpdateAccount(ctx, assets.ID, accounts.UpdateAccountInput{IsHeader: ptr(false)})
	assert.ErrorIs(t, err, shared.ErrDependency)

	_, err = svc.UpdateAccount(ctx, bank.ID, accounts.UpdateAccountInput{IsHeader: ptr(true)})
	assert.ErrorIs(t, err, shared.ErrInvariant)

	_, err = svc.UpdateAccount(ctx, assets.ID, accounts.UpdateAccountInput{Type: ptr(accounts.AccountTypeExpense)})
	assert.ErrorIs(t, err, shared.ErrDependency)

	_, err = svc.UpdateAccount(ctx, bank.ID, accounts.UpdateAccountInput{Name: ptr("  ")})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateOpeningBalanceShiftsCurrent(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	cash := create(t, svc, leaf("1110", "Cash", accounts.AccountTypeAsset, nil, "100"))
	store.SetBalance(cash.ID, decimal.NewFromInt(150))

	updated, err := svc.UpdateAccount(ctx, cash.ID, accounts.UpdateAccountInput{OpeningBalance: ptr(decimal.NewFromInt(120))})
	require.NoError(t, err)
	assert.Equal(t, "120.00", updated.OpeningBalance.StringFixed(2))
	assert.Equal(t, "170.00", updated.CurrentBalance.StringFixed(2))
}

func TestActivityBlocksStructuralChanges(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	cash := create(t, svc, leaf("1110", "Cash", accounts.AccountTypeAsset, nil, ""))
	sales := create(t, svc, leaf("4100", "Sales", accounts.AccountTypeRevenue, nil, ""))
	spare := create(t, svc, leaf("1190", "Spare", accounts.AccountTypeAsset, nil, ""))

	engine := journals.NewService(store.Journals(), nil)
	_, err := engine.CreateEntry(ctx, journals.CreateEntryInput{
		Date:        time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Description: "Cash sale",
		Lines: []journals.LineInput{
			{AccountID: cash.ID, Debit: decimal.NewFromInt(100)},
			{AccountID: sales.ID, Credit: decimal.NewFromInt(100)},
		},
	})
	require.NoError(t, err)

	_, err = svc.UpdateAccount(ctx, cash.ID, accounts.UpdateAccountInput{NormalBalance: ptr(shared.NormalCredit)})
	assert.ErrorIs(t, err, shared.ErrDependency)
	_, err = svc.UpdateAccount(ctx, sales.ID, accounts.UpdateAccountInput{Type: ptr(accounts.AccountTypeEquity)})
	assert.ErrorIs(t, err, shared.ErrDependency)
	err = svc.DeleteAccount(ctx, cash.ID, 1)
	assert.ErrorIs(t, err, shared.ErrDependency)

	require.NoError(t, svc.DeleteAccount(ctx, spare.ID, 1))
	_, err = svc.GetAccount(ctx, spare.ID)
	assert.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestGetByCode(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	create(t, svc, leaf("1110", "Cash", accounts.AccountTypeAsset, nil, ""))

	acc, err := svc.GetByCode(ctx, "1110")
	require.NoError(t, err)
	assert.Equal(t, "Cash", acc.Name)

	_, err = svc.GetByCode(ctx, "9999")
	assert.ErrorIs(t, err, shared.ErrAccountNotFound)
}
