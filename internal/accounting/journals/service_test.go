package journals_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	jan10 = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	now   = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
)

type fixture struct {
	store   *ledgertest.Store
	svc     *journals.Service
	chart   *accounts.Service
	cache   *countingCache
	metrics *recordingMetrics
	audit   *auditRecorder

	header int64
	cash   int64
	sales  int64
	rent   int64
}

type countingCache struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

func (c *countingCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingMetrics struct {
	mu     sync.Mutex
	ok     map[string]int
	failed map[string]int
}

func (m *recordingMetrics) ObservePosting(op string, err error, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failed[op]++
		return
	}
	m.ok[op]++
}

type auditRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (a *auditRecorder) Record(_ context.Context, log internalShared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledgertest.New()
	f := &fixture{
		store:   store,
		chart:   accounts.NewService(store.Accounts(), nil),
		cache:   &countingCache{},
		metrics: &recordingMetrics{ok: map[string]int{}, failed: map[string]int{}},
		audit:   &auditRecorder{},
	}
	f.svc = journals.NewService(store.Journals(), f.audit).WithCache(f.cache).WithMetrics(f.metrics)
	f.svc.WithNow(func() time.Time { return now })

	ctx := context.Background()
	mk := func(in accounts.CreateAccountInput) int64 {
		acc, err := f.chart.CreateAccount(ctx, in)
		require.NoError(t, err)
		return acc.ID
	}
	f.header = mk(accounts.CreateAccountInput{Code: "1000", Name: "Assets", Type: accounts.AccountTypeAsset, IsHeader: true})
	f.cash = mk(accounts.CreateAccountInput{Code: "1110", Name: "Cash", Type: accounts.AccountTypeAsset, ParentID: &f.header})
	f.sales = mk(accounts.CreateAccountInput{Code: "4100", Name: "Sales", Type: accounts.AccountTypeRevenue})
	f.rent = mk(accounts.CreateAccountInput{Code: "6100", Name: "Rent", Type: accounts.AccountTypeExpense})
	return f
}

func amount(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (f *fixture) entry(debitID, creditID int64, debit, credit string) journals.CreateEntryInput {
	return journals.CreateEntryInput{
		Date:        jan10,
		Description: "Cash sale",
		CreatedBy:   7,
		Lines: []journals.LineInput{
			{AccountID: debitID, Debit: amount(debit)},
			{AccountID: creditID, Credit: amount(credit)},
		},
	}
}

func (f *fixture) draft(t *testing.T, in journals.CreateEntryInput) journals.JournalEntry {
	t.Helper()
	e, err := f.svc.CreateEntry(context.Background(), in)
	require.NoError(t, err)
	return e
}

func (f *fixture) balance(id int64) string {
	return f.store.Account(id).CurrentBalance.StringFixed(2)
}

func TestCreateEntryProducesNumberedDraft(t *testing.T) {
	f := newFixture(t)

	e := f.draft(t, f.entry(f.cash, f.sales, "100.00", "100.00"))
	assert.Equal(t, "JE-2025-000001", e.Number)
	assert.Equal(t, 2025, e.FiscalYear)
	assert.False(t, e.Posted)
	assert.Equal(t, "DRAFT", e.Status())
	assert.Equal(t, journals.EntryTypeManual, e.Type)
	assert.Equal(t, "100.00", e.TotalDebit.StringFixed(2))
	assert.Equal(t, "0.00", f.balance(f.cash), "drafts do not touch balances")

	second := f.draft(t, f.entry(f.cash, f.sales, "5", "5"))
	assert.Equal(t, "JE-2025-000002", second.Number)
	assert.Equal(t, 0, f.cache.count())
}

func TestCreateEntryRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateEntry(ctx, f.entry(f.cash, f.sales, "100.00", "99.99"))
	assert.ErrorIs(t, err, shared.ErrImbalance)

	single := f.entry(f.cash, f.sales, "100", "100")
	single.Lines = single.Lines[:1]
	_, err = f.svc.CreateEntry(ctx, single)
	assert.ErrorIs(t, err, shared.ErrInvalidLine)

	both := f.entry(f.cash, f.sales, "100", "100")
	both.Lines[0].Credit = amount("100")
	both.Lines = append(both.Lines, journals.LineInput{AccountID: f.rent, Credit: amount("100")})
	_, err = f.svc.CreateEntry(ctx, both)
	assert.ErrorIs(t, err, shared.ErrInvalidLine)

	negative := f.entry(f.cash, f.sales, "-5", "-5")
	_, err = f.svc.CreateEntry(ctx, negative)
	assert.ErrorIs(t, err, shared.ErrInvalidLine)

	_, err = f.svc.CreateEntry(ctx, f.entry(999, f.sales, "10", "10"))
	assert.ErrorIs(t, err, shared.ErrAccountNotFound)

	_, err = f.svc.CreateEntry(ctx, f.entry(f.header, f.sales, "10", "10"))
	assert.ErrorIs(t, err, shared.ErrHeaderAccount)

	noDesc := f.entry(f.cash, f.sales, "10", "10")
	noDesc.Description = "  "
	_, err = f.svc.CreateEntry(ctx, noDesc)
	assert.ErrorIs(t, err, shared.ErrValidation)

	noDate := f.entry(f.cash, f.sales, "10", "10")
	noDate.Date = time.Time{}
	_, err = f.svc.CreateEntry(ctx, noDate)
	assert.ErrorIs(t, err, shared.ErrValidation)

	assert.Zero(t, f.store.EntryCount())
}

func TestCreateEntryRoundsLinesToCents(t *testing.T) {
	f := newFixture(t)
	e := f.draft(t, f.entry(f.cash, f.sales, "100.004", "100.00"))
	assert.Equal(t, "100.00", e.Lines[0].Debit.StringFixed(2))
	assert.True(t, e.TotalDebit.Equal(e.TotalCredit))
}

func TestPostEntryUpdatesBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.draft(t, f.entry(f.cash, f.sales, "500", "500"))
	posted, err := f.svc.PostEntry(ctx, e.ID, 9)
	require.NoError(t, err)

	assert.True(t, posted.Posted)
	assert.Equal(t, "POSTED", posted.Status())
	require.NotNil(t, posted.PostedBy)
	assert.Equal(t, int64(9), *posted.PostedBy)
	assert.Equal(t, now, *posted.PostedAt)
	assert.Equal(t, "500.00", f.balance(f.cash))
	assert.Equal(t, "500.00", f.balance(f.sales))

	stored, ok := f.store.Entry(e.ID)
	require.True(t, ok)
	assert.True(t, stored.Posted)
	assert.Equal(t, 1, f.cache.count())
	assert.Equal(t, 1, f.metrics.ok["post"])
	assert.Contains(t, f.audit.actions, "journal.post")
}

func TestPostEntryTwiceFailsWithoutChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.draft(t, f.entry(f.cash, f.sales, "100.00", "100.00"))
	_, err := f.svc.PostEntry(ctx, e.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.PostEntry(ctx, e.ID, 1)
	assert.ErrorIs(t, err, shared.ErrAlreadyPosted)
	assert.Equal(t, "100.00", f.balance(f.cash))
	assert.Equal(t, "100.00", f.balance(f.sales))
	assert.Equal(t, 1, f.metrics.failed["post"])
	assert.Equal(t, 1, f.cache.count())
}

func TestPostEntryRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.draft(t, f.entry(f.cash, f.sales, "250", "250"))
	f.store.FailMarkPosted = errors.New("disk full")
	_, err := f.svc.PostEntry(ctx, e.ID, 1)
	require.Error(t, err)

	assert.Equal(t, "0.00", f.balance(f.cash))
	assert.Equal(t, "0.00", f.balance(f.sales))
	stored, _ := f.store.Entry(e.ID)
	assert.False(t, stored.Posted)
	assert.Zero(t, f.cache.count())

	f.store.FailMarkPosted = nil
	_, err = f.svc.PostEntry(ctx, e.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "250.00", f.balance(f.cash))
}

func TestPostEntryRechecksAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.draft(t, f.entry(f.rent, f.cash, "80", "80"))
	_, err := f.chart.DeactivateAccount(ctx, f.rent, 1)
	require.NoError(t, err)

	_, err = f.svc.PostEntry(ctx, e.ID, 1)
	assert.ErrorIs(t, err, shared.ErrInactiveAccount)
	assert.Equal(t, "0.00", f.balance(f.cash))
	assert.Equal(t, "0.00", f.balance(f.rent))
}

func TestPostEntryUnknownID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PostEntry(context.Background(), 404, 1)
	assert.ErrorIs(t, err, shared.ErrJournalNotFound)
}

func TestConcurrentPostsAccumulate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 20
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = f.draft(t, f.entry(f.cash, f.sales, "12.50", "12.50")).ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for _, id := range ids {
		for k := 0; k < 2; k++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				_, err := f.svc.PostEntry(ctx, id, 1)
				errs <- err
			}(id)
		}
	}
	wg.Wait()
	close(errs)

	var okCount, dupCount int
	for err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, shared.ErrAlreadyPosted):
			dupCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, n, okCount)
	assert.Equal(t, n, dupCount)
	assert.Equal(t, "250.00", f.balance(f.cash))
	assert.Equal(t, "250.00", f.balance(f.sales))
}

func TestReverseEntryNetsToZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.draft(t, f.entry(f.cash, f.sales, "500", "500"))
	_, err := f.svc.PostEntry(ctx, e.ID, 1)
	require.NoError(t, err)

	reversal, err := f.svc.ReverseEntry(ctx, journals.ReverseInput{EntryID: e.ID, ActorID: 2})
	require.NoError(t, err)

	assert.True(t, reversal.IsReversal)
	assert.True(t, reversal.Posted)
	require.NotNil(t, reversal.ReversalOf)
	assert.Equal(t, e.ID, *reversal.ReversalOf)
	assert.Equal(t, e.Date, reversal.Date)
	assert.Equal(t, "Reversal of JE-2025-000001: Cash sale", reversal.Description)
	assert.Equal(t, "JE-2025-000002", reversal.Number)
	assert.True(t, reversal.Lines[0].Credit.Equal(amount("500")))
	assert.True(t, reversal.Lines[1].Debit.Equal(amount("500")))

	assert.Equal(t, "0.00", f.balance(f.cash))
	assert.Equal(t, "0.00", f.balance(f.sales))

	original, _ := f.store.Entry(e.ID)
	require.NotNil(t, original.ReversedBy)
	assert.Equal(t, reversal.ID, *original.ReversedBy)
	assert.Equal(t, 1, f.metrics.ok["reverse"])
	assert.Equal(t, 2, f.cache.count())
}

func TestReverseEntryGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.draft(t, f.entry(f.cash, f.sales, "40", "40"))
	_, err := f.svc.ReverseEntry(ctx, journals.ReverseInput{EntryID: e.ID, ActorID: 1})
	assert.ErrorIs(t, err, shared.ErrNotPosted)

	_, err = f.svc.PostEntry(ctx, e.ID, 1)
	require.NoError(t, err)

	date := time.Date(2025, 2, 1, 15, 30, 0, 0, time.UTC)
	reversal, err := f.svc.ReverseEntry(ctx, journals.ReverseInput{EntryID: e.ID, ActorID: 1, Date: &date, Description: "wrong customer"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), reversal.Date)
	assert.Equal(t, "Reversal of JE-2025-000001: wrong customer", reversal.Description)

	_, err = f.svc.ReverseEntry(ctx, journals.ReverseInput{EntryID: e.ID, ActorID: 1})
	assert.ErrorIs(t, err, shared.ErrAlreadyReversed)

	_, err = f.svc.ReverseEntry(ctx, journals.ReverseInput{EntryID: reversal.ID, ActorID: 1})
	assert.ErrorIs(t, err, shared.ErrReversalNotAllowed)

	_, err = f.svc.ReverseEntry(ctx, journals.ReverseInput{ActorID: 1})
	assert.ErrorIs(t, err, shared.ErrValidation)

	assert.Equal(t, "0.00", f.balance(f.cash))
	assert.Equal(t, 2, f.store.EntryCount())
}

func TestDeleteEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := f.draft(t, f.entry(f.cash, f.sales, "10", "10"))
	posted := f.draft(t, f.entry(f.cash, f.sales, "20", "20"))
	_, err := f.svc.PostEntry(ctx, posted.ID, 1)
	require.NoError(t, err)

	err = f.svc.DeleteEntry(ctx, posted.ID, 1)
	assert.ErrorIs(t, err, shared.ErrCannotDeletePosted)

	require.NoError(t, f.svc.DeleteEntry(ctx, draft.ID, 1))
	_, err = f.svc.GetEntry(ctx, draft.ID)
	assert.ErrorIs(t, err, shared.ErrJournalNotFound)
	assert.Contains(t, f.audit.actions, "journal.delete")
}

func TestUpdateEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.draft(t, f.entry(f.cash, f.sales, "10", "10"))
	in := f.entry(f.rent, f.cash, "35", "35")
	in.Date = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	in.Description = "December rent"

	updated, err := f.svc.UpdateEntry(ctx, e.ID, in)
	require.NoError(t, err)
	assert.Equal(t, e.ID, updated.ID)
	assert.Equal(t, "JE-2024-000001", updated.Number)
	assert.Equal(t, "December rent", updated.Description)
	assert.Equal(t, f.rent, updated.Lines[0].AccountID)

	_, err = f.svc.PostEntry(ctx, e.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.UpdateEntry(ctx, e.ID, in)
	assert.ErrorIs(t, err, shared.ErrAlreadyPosted)
}

func TestDuplicateReferenceRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref := uuid.New()
	in := f.entry(f.cash, f.sales, "10", "10")
	in.ReferenceType = "sales_invoice"
	in.ReferenceID = &ref
	first := f.draft(t, in)
	assert.Equal(t, "SALES_INVOICE", first.ReferenceType)

	_, err := f.svc.CreateEntry(ctx, in)
	assert.ErrorIs(t, err, shared.ErrSourceAlreadyLinked)
	assert.True(t, journals.IsDuplicateSource(err))

	_, err = f.svc.PostEntry(ctx, first.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.ReverseEntry(ctx, journals.ReverseInput{EntryID: first.ID, ActorID: 1})
	require.NoError(t, err, "reversals share the source reference")

	refOnly := f.entry(f.cash, f.sales, "10", "10")
	refOnly.ReferenceID = &ref
	_, err = f.svc.CreateEntry(ctx, refOnly)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestValidateEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	future := f.entry(f.cash, f.sales, "70", "70")
	future.Date = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	e := f.draft(t, future)

	result, err := f.svc.ValidateEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "future")

	_, err = f.chart.DeactivateAccount(ctx, f.sales, 1)
	require.NoError(t, err)
	result, err = f.svc.ValidateEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "INACTIVE_ACCOUNT", result.Errors[0].Code)
	assert.Equal(t, "0.00", f.balance(f.cash), "validation never mutates")
}

func TestValidatePostedEntryAndNegativeWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.draft(t, f.entry(f.rent, f.cash, "30", "30"))
	result, err := f.svc.ValidateEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "1110")

	_, err = f.svc.PostEntry(ctx, e.ID, 1)
	require.NoError(t, err)
	result, err = f.svc.ValidateEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "ALREADY_POSTED", result.Errors[0].Code)
	assert.Empty(t, result.Warnings)
}

func TestListEntriesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.draft(t, f.entry(f.cash, f.sales, "10", "10"))
	f.draft(t, f.entry(f.cash, f.sales, "20", "20"))
	_, err := f.svc.PostEntry(ctx, a.ID, 1)
	require.NoError(t, err)

	posted := true
	list, err := f.svc.ListEntries(ctx, journals.ListFilter{Posted: &posted})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	all, err := f.svc.ListEntries(ctx, journals.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
