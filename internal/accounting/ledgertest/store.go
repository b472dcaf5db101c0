// Package ledgertest provides an in-memory ledger store for tests. Each
// WithTx call holds the store mutex, so transactions are serial, and restores
// a snapshot when the callback fails.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Store keeps accounts, entries and mappings in memory.
type Store struct {
	mu        sync.Mutex
	accounts  map[int64]accounts.Account
	entries   map[int64]journals.JournalEntry
	sequences map[int]int64
	mappings  map[string]int64
	nextAcct  int64
	nextEntry int64
	now       func() time.Time

	// FailMarkPosted, when set, is returned by MarkPosted after balances have
	// been written, to exercise rollback.
	FailMarkPosted error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:  make(map[int64]accounts.Account),
		entries:   make(map[int64]journals.JournalEntry),
		sequences: make(map[int]int64),
		mappings:  make(map[string]int64),
		now:       func() time.Time { return time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC) },
	}
}

// Accounts returns the account repository view.
func (s *Store) Accounts() accounts.Repository { return accountRepo{s} }

// Journals returns the journal repository view.
func (s *Store) Journals() journals.Repository { return journalRepo{s} }

// Ledger returns the posted line reader.
func (s *Store) Ledger() ledger.Repository { return ledgerRepo{s} }

// Mappings returns the account mapping repository view.
func (s *Store) Mappings() mappings.Repository { return mappingRepo{s} }

// SetBalance overwrites a stored balance outside of any posting.
func (s *Store) SetBalance(id int64, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[id]
	acc.CurrentBalance = balance
	s.accounts[id] = acc
}

// Account returns the stored account.
func (s *Store) Account(id int64) accounts.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

// Entry returns the stored entry.
func (s *Store) Entry(id int64) (journals.JournalEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return cloneEntry(e), ok
}

// EntryCount reports how many entries are stored.
func (s *Store) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type snapshot struct {
	accounts  map[int64]accounts.Account
	entries   map[int64]journals.JournalEntry
	sequences map[int]int64
	mappings  map[string]int64
	nextAcct  int64
	nextEntry int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		accounts:  make(map[int64]accounts.Account, len(s.accounts)),
		entries:   make(map[int64]journals.JournalEntry, len(s.entries)),
		sequences: make(map[int]int64, len(s.sequences)),
		mappings:  make(map[string]int64, len(s.mappings)),
		nextAcct:  s.nextAcct,
		nextEntry: s.nextEntry,
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v
	}
	for k, v := range s.entries {
		snap.entries[k] = cloneEntry(v)
	}
	for k, v := range s.sequences {
		snap.sequences[k] = v
	}
	for k, v := range s.mappings {
		snap.mappings[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.accounts = snap.accounts
	s.entries = snap.entries
	s.sequences = snap.sequences
	s.mappings = snap.mappings
	s.nextAcct = snap.nextAcct
	s.nextEntry = snap.nextEntry
}

func (s *Store) withTx(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := s.snapshot()
	if err := fn(); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) sortedAccounts(filter func(accounts.Account) bool) []accounts.Account {
	out := make([]accounts.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		if filter == nil || filter(acc) {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (s *Store) getAccount(id int64) (accounts.Account, error) {
	acc, ok := s.accounts[id]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return acc, nil
}

func (s *Store) getEntry(id int64) (journals.JournalEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return journals.JournalEntry{}, fmt.Errorf("%w: id %d", shared.ErrJournalNotFound, id)
	}
	return cloneEntry(e), nil
}

func cloneEntry(e journals.JournalEntry) journals.JournalEntry {
	e.Lines = append([]journals.JournalLine(nil), e.Lines...)
	return e
}

// accounts view

type accountRepo struct{ s *Store }

func (r accountRepo) List(ctx context.Context) ([]accounts.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedAccounts(nil), nil
}

func (r accountRepo) ListByType(ctx context.Context, t accounts.AccountType) ([]accounts.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedAccounts(func(a accounts.Account) bool { return a.Type == t }), nil
}

func (r accountRepo) Get(ctx context.Context, id int64) (accounts.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.getAccount(id)
}

func (r accountRepo) GetByCode(ctx context.Context, code string) (accounts.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, acc := range r.s.accounts {
		if acc.Code == code {
			return acc, nil
		}
	}
	return accounts.Account{}, shared.ErrAccountNotFound
}

func (r accountRepo) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return r.s.withTx(ctx, func() error { return fn(ctx, accountTx{r.s}) })
}

type accountTx struct{ s *Store }

func (t accountTx) ListAll(ctx context.Context) ([]accounts.Account, error) {
	return t.s.sortedAccounts(nil), nil
}

func (t accountTx) GetForUpdate(ctx context.Context, id int64) (accounts.Account, error) {
	return t.s.getAccount(id)
}

func (t accountTx) CodeExists(ctx context.Context, code string) (bool, error) {
	for _, acc := range t.s.accounts {
		if acc.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (t accountTx) Insert(ctx context.Context, a accounts.Account) (accounts.Account, error) {
	for _, acc := range t.s.accounts {
		if acc.Code == a.Code {
			return accounts.Account{}, fmt.Errorf("%w: %w: %s", shared.ErrValidation, shared.ErrDuplicateCode, a.Code)
		}
	}
	t.s.nextAcct++
	a.ID = t.s.nextAcct
	a.CreatedAt = t.s.now()
	a.UpdatedAt = a.CreatedAt
	t.s.accounts[a.ID] = a
	return a, nil
}

func (t accountTx) Update(ctx context.Context, a accounts.Account) (accounts.Account, error) {
	if _, ok := t.s.accounts[a.ID]; !ok {
		return accounts.Account{}, fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, a.ID)
	}
	a.UpdatedAt = t.s.now()
	t.s.accounts[a.ID] = a
	return a, nil
}

func (t accountTx) SetLevel(ctx context.Context, id int64, level int) error {
	acc, ok := t.s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, id)
	}
	acc.Level = level
	t.s.accounts[id] = acc
	return nil
}

func (t accountTx) HasActivity(ctx context.Context, id int64) (bool, error) {
	for _, e := range t.s.entries {
		for _, line := range e.Lines {
			if line.AccountID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t accountTx) Delete(ctx context.Context, id int64) error {
	if _, ok := t.s.accounts[id]; !ok {
		return fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, id)
	}
	delete(t.s.accounts, id)
	return nil
}

// journals view

type journalRepo struct{ s *Store }

func (r journalRepo) Get(ctx context.Context, id int64) (journals.JournalEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.getEntry(id)
}

func (r journalRepo) List(ctx context.Context, filter journals.ListFilter) ([]journals.JournalEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []journals.JournalEntry
	for _, e := range r.s.entries {
		switch {
		case filter.Type != "" && e.Type != filter.Type:
			continue
		case filter.Posted != nil && e.Posted != *filter.Posted:
			continue
		case filter.From != nil && e.Date.Before(*filter.From):
			continue
		case filter.To != nil && e.Date.After(*filter.To):
			continue
		case filter.ReferenceType != "" && e.ReferenceType != strings.ToUpper(filter.ReferenceType):
			continue
		case filter.ReferenceID != nil && (e.ReferenceID == nil || *e.ReferenceID != *filter.ReferenceID):
			continue
		}
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Number > out[j].Number
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r journalRepo) Accounts(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		if acc, ok := r.s.accounts[id]; ok {
			out[id] = acc
		}
	}
	return out, nil
}

func (r journalRepo) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return r.s.withTx(ctx, func() error { return fn(ctx, journalTx{r.s}) })
}

type journalTx struct{ s *Store }

func (t journalTx) GetForUpdate(ctx context.Context, id int64) (journals.JournalEntry, error) {
	return t.s.getEntry(id)
}

func (t journalTx) LockAccounts(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		if acc, ok := t.s.accounts[id]; ok {
			out[id] = acc
		}
	}
	return out, nil
}

func (t journalTx) ReferenceExists(ctx context.Context, refType string, refID uuid.UUID, excludeID int64) (bool, error) {
	for _, e := range t.s.entries {
		if e.ID == excludeID || e.IsReversal || e.ReferenceID == nil {
			continue
		}
		if e.ReferenceType == refType && *e.ReferenceID == refID {
			return true, nil
		}
	}
	return false, nil
}

func (t journalTx) NextNumber(ctx context.Context, fiscalYear int) (int64, error) {
	t.s.sequences[fiscalYear]++
	return t.s.sequences[fiscalYear], nil
}

func (t journalTx) Insert(ctx context.Context, e journals.JournalEntry) (journals.JournalEntry, error) {
	for _, line := range e.Lines {
		if _, ok := t.s.accounts[line.AccountID]; !ok {
			return journals.JournalEntry{}, fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, line.AccountID)
		}
	}
	if e.ReversalOf != nil {
		for _, existing := range t.s.entries {
			if existing.ReversalOf != nil && *existing.ReversalOf == *e.ReversalOf {
				return journals.JournalEntry{}, shared.ErrAlreadyReversed
			}
		}
	}
	t.s.nextEntry++
	e.ID = t.s.nextEntry
	e.CreatedAt = t.s.now()
	e.UpdatedAt = e.CreatedAt
	t.s.entries[e.ID] = cloneEntry(e)
	return e, nil
}

func (t journalTx) Replace(ctx context.Context, e journals.JournalEntry) (journals.JournalEntry, error) {
	current, ok := t.s.entries[e.ID]
	if !ok || current.Posted {
		return journals.JournalEntry{}, shared.ErrAlreadyPosted
	}
	e.UpdatedAt = t.s.now()
	t.s.entries[e.ID] = cloneEntry(e)
	return e, nil
}

func (t journalTx) ApplyBalanceDelta(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	acc, ok := t.s.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, accountID)
	}
	acc.CurrentBalance = acc.CurrentBalance.Add(delta)
	t.s.accounts[accountID] = acc
	return nil
}

func (t journalTx) MarkPosted(ctx context.Context, id, postedBy int64, at time.Time) error {
	if t.s.FailMarkPosted != nil {
		return t.s.FailMarkPosted
	}
	e, ok := t.s.entries[id]
	if !ok {
		return fmt.Errorf("%w: id %d", shared.ErrJournalNotFound, id)
	}
	if e.Posted {
		return shared.ErrAlreadyPosted
	}
	e.Posted = true
	e.PostedBy = &postedBy
	e.PostedAt = &at
	t.s.entries[id] = e
	return nil
}

func (t journalTx) SetReversedBy(ctx context.Context, id, reversalID int64) error {
	e, ok := t.s.entries[id]
	if !ok {
		return fmt.Errorf("%w: id %d", shared.ErrJournalNotFound, id)
	}
	if e.ReversedBy != nil {
		return shared.ErrAlreadyReversed
	}
	e.ReversedBy = &reversalID
	t.s.entries[id] = e
	return nil
}

func (t journalTx) Delete(ctx context.Context, id int64) error {
	e, ok := t.s.entries[id]
	if !ok {
		return fmt.Errorf("%w: id %d", shared.ErrJournalNotFound, id)
	}
	if e.Posted {
		return shared.ErrCannotDeletePosted
	}
	delete(t.s.entries, id)
	return nil
}

// ledger view

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) PostedLines(ctx context.Context, accountID int64, to *time.Time) ([]ledger.Posting, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []ledger.Posting
	for _, e := range r.s.entries {
		if !e.Posted || (to != nil && e.Date.After(*to)) {
			continue
		}
		for _, line := range e.Lines {
			if line.AccountID != accountID {
				continue
			}
			out = append(out, ledger.Posting{
				EntryID:         e.ID,
				EntryNumber:     e.Number,
				EntryDate:       e.Date,
				EntryDesc:       e.Description,
				LineNo:          line.LineNo,
				Debit:           line.Debit,
				Credit:          line.Credit,
				LineDescription: line.Description,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.EntryDate.Equal(b.EntryDate) {
			return a.EntryDate.Before(b.EntryDate)
		}
		if a.EntryNumber != b.EntryNumber {
			return a.EntryNumber < b.EntryNumber
		}
		return a.LineNo < b.LineNo
	})
	return out, nil
}

func (r ledgerRepo) PostedTotals(ctx context.Context) (map[int64]ledger.Totals, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int64]ledger.Totals)
	for _, e := range r.s.entries {
		if !e.Posted {
			continue
		}
		for _, line := range e.Lines {
			t := out[line.AccountID]
			t.Debit = t.Debit.Add(line.Debit)
			t.Credit = t.Credit.Add(line.Credit)
			out[line.AccountID] = t
		}
	}
	return out, nil
}

// mappings view

type mappingRepo struct{ s *Store }

// SetMapping registers an integration key for an account.
func (s *Store) SetMapping(module, key string, accountID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[strings.ToUpper(module)+"|"+key] = accountID
}

func (r mappingRepo) Get(ctx context.Context, module, key string) (mappings.AccountMapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.mappings[strings.ToUpper(module)+"|"+key]
	if !ok {
		return mappings.AccountMapping{}, fmt.Errorf("%w: %s/%s", shared.ErrMappingNotFound, module, key)
	}
	return mappings.AccountMapping{Module: strings.ToUpper(module), Key: key, AccountID: id}, nil
}

func (r mappingRepo) Upsert(ctx context.Context, m mappings.AccountMapping) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[m.AccountID]; !ok {
		return fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, m.AccountID)
	}
	r.s.mappings[strings.ToUpper(m.Module)+"|"+m.Key] = m.AccountID
	return nil
}

func (r mappingRepo) List(ctx context.Context) ([]mappings.AccountMapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]mappings.AccountMapping, 0, len(r.s.mappings))
	for k, id := range r.s.mappings {
		parts := strings.SplitN(k, "|", 2)
		out = append(out, mappings.AccountMapping{Module: parts[0], Key: parts[1], AccountID: id})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}
