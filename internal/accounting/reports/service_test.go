package reports_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

var (
	jan31 = time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
	feb28 = time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)
)

type harness struct {
	store   *ledgertest.Store
	cache   *reports.Cache
	svc     *reports.Service
	journal *journals.Service

	cash, sales, rent int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := ledgertest.New()
	cache := reports.NewCache(client, time.Minute)
	h := &harness{
		store:   store,
		cache:   cache,
		journal: journals.NewService(store.Journals(), nil).WithCache(cache),
	}
	ledgerSvc := ledger.NewService(store.Accounts(), store.Ledger())
	h.svc = reports.NewService(store.Accounts(), ledgerSvc, cache, reports.NewSnapshotStore(client), nil)
	h.svc.WithNow(func() time.Time { return jan31 })

	chart := accounts.NewService(store.Accounts(), nil)
	mk := func(code, name string, typ accounts.AccountType, category string) int64 {
		acc, err := chart.CreateAccount(context.Background(), accounts.CreateAccountInput{Code: code, Name: name, Type: typ, Category: category})
		require.NoError(t, err)
		return acc.ID
	}
	h.cash = mk("1110", "Cash", accounts.AccountTypeAsset, accounts.CategoryCurrentAsset)
	h.sales = mk("4100", "Sales", accounts.AccountTypeRevenue, accounts.CategoryOperatingRevenue)
	h.rent = mk("6100", "Rent", accounts.AccountTypeExpense, accounts.CategoryOperatingExpense)
	return h
}

func (h *harness) post(t *testing.T, date time.Time, debitID, creditID int64, amt int64) {
	t.Helper()
	ctx := context.Background()
	e, err := h.journal.CreateEntry(ctx, journals.CreateEntryInput{
		Date:        date,
		Description: "posting",
		Lines: []journals.LineInput{
			{AccountID: debitID, Debit: decimal.NewFromInt(amt)},
			{AccountID: creditID, Credit: decimal.NewFromInt(amt)},
		},
	})
	require.NoError(t, err)
	_, err = h.journal.PostEntry(ctx, e.ID, 1)
	require.NoError(t, err)
}

func TestBalanceSheetAfterPosting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.post(t, jan31, h.cash, h.sales, 500)

	bs, err := h.svc.BalanceSheet(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), bs.AsOf)
	assert.Equal(t, "500", bs.TotalAssets.String())
	assert.Equal(t, "500", bs.TotalEquity.String())
	assert.True(t, bs.IsBalanced)

	tb, err := h.svc.TrialBalance(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "500", tb.TotalDebit.String())
	assert.Equal(t, "500", tb.TotalCredit.String())
	assert.True(t, tb.IsBalanced)
	assert.Len(t, tb.Groups, 3)
}

func TestBalanceSheetOutOfBandMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.post(t, jan31, h.cash, h.sales, 500)

	bs, err := h.svc.BalanceSheet(ctx, time.Time{})
	require.NoError(t, err)
	require.True(t, bs.IsBalanced)

	h.store.SetBalance(h.cash, decimal.RequireFromString("537.25"))

	cached, err := h.svc.BalanceSheet(ctx, time.Time{})
	require.NoError(t, err)
	assert.True(t, cached.IsBalanced, "served from cache until the version moves")

	require.NoError(t, h.cache.Bump(ctx))
	bs, err = h.svc.BalanceSheet(ctx, time.Time{})
	require.NoError(t, err)
	assert.False(t, bs.IsBalanced)
	assert.Equal(t, "37.25", bs.Difference.String())
}

func TestPostingInvalidatesReports(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.post(t, jan31, h.cash, h.sales, 500)

	before, err := h.cache.Version(ctx)
	require.NoError(t, err)
	pl, err := h.svc.ProfitAndLoss(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "500", pl.NetIncome.String())

	h.post(t, jan31, h.rent, h.cash, 120)
	after, err := h.cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	pl, err = h.svc.ProfitAndLoss(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "380", pl.NetIncome.String())

	_, err = h.svc.ProfitAndLoss(ctx, jan31, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestComparativeBalanceSheetUsesSnapshots(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.post(t, jan31, h.cash, h.sales, 500)

	_, err := h.svc.BalanceSheet(ctx, time.Time{})
	require.NoError(t, err)

	h.svc.WithNow(func() time.Time { return feb28 })
	h.post(t, feb28, h.rent, h.cash, 100)

	cmp, err := h.svc.ComparativeBalanceSheet(ctx, time.Time{}, jan31)
	require.NoError(t, err)
	assert.Equal(t, "400", cmp.Assets.CurrentTotal.String())
	assert.Equal(t, "500", cmp.Assets.PriorTotal.String())
	assert.Equal(t, "-100", cmp.Assets.Change.String())
	require.Len(t, cmp.Assets.Lines, 1)
	require.NotNil(t, cmp.Assets.Lines[0].ChangePercent)
	assert.Equal(t, "-20", cmp.Assets.Lines[0].ChangePercent.String())
	assert.True(t, cmp.BothBalanced)

	_, err = h.svc.ComparativeBalanceSheet(ctx, time.Time{}, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRatiosWithoutLiabilities(t *testing.T) {
	h := newHarness(t)
	h.post(t, jan31, h.cash, h.sales, 500)

	r, err := h.svc.Ratios(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Nil(t, r.CurrentRatio)
	require.NotNil(t, r.DebtToEquity)
	assert.True(t, r.DebtToEquity.IsZero())
	require.NotNil(t, r.EquityRatio)
	assert.Equal(t, "1", r.EquityRatio.String())
}

func TestServiceWithoutCache(t *testing.T) {
	store := ledgertest.New()
	svc := reports.NewService(store.Accounts(), ledger.NewService(store.Accounts(), store.Ledger()), nil, nil, nil)
	svc.WithNow(func() time.Time { return jan31 })

	bs, err := svc.BalanceSheet(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.True(t, bs.IsBalanced)

	_, err = svc.ComparativeBalanceSheet(context.Background(), time.Time{}, jan31)
	assert.ErrorIs(t, err, shared.ErrValidation)
}
