package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort records journal lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// CacheInvalidator drops derived report data after balances move.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Metrics observes posting operations.
type Metrics interface {
	ObservePosting(operation string, err error, elapsed time.Duration)
}

// Service implements the draft → posted state machine.
type Service struct {
	repo    Repository
	audit   AuditPort
	cache   CacheInvalidator
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the journal engine.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, logger: slog.Default(), now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithCache registers the report cache invalidated after every post.
func (s *Service) WithCache(cache CacheInvalidator) *Service {
	s.cache = cache
	return s
}

// WithMetrics registers posting metrics.
func (s *Service) WithMetrics(m Metrics) *Service {
	s.metrics = m
	return s
}

// WithLogger replaces the default logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// GetEntry loads an entry with its lines.
func (s *Service) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.Get(ctx, id)
}

// ListEntries returns entry headers matching filter, newest first.
func (s *Service) ListEntries(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	return s.repo.List(ctx, filter)
}

// CreateEntry validates and stores a draft.
func (s *Service) CreateEntry(ctx context.Context, in CreateEntryInput) (JournalEntry, error) {
	draft, err := in.build()
	if err != nil {
		return JournalEntry{}, err
	}
	if errs := checkLines(draft.Lines); len(errs) > 0 {
		return JournalEntry{}, errs[0]
	}
	accs, err := s.repo.Accounts(ctx, accountIDs(draft.Lines))
	if err != nil {
		return JournalEntry{}, err
	}
	if errs := checkAccounts(draft.Lines, accs); len(errs) > 0 {
		return JournalEntry{}, errs[0]
	}

	var created JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.ensureReferenceFree(ctx, tx, draft, 0); err != nil {
			return err
		}
		seq, err := tx.NextNumber(ctx, draft.FiscalYear)
		if err != nil {
			return err
		}
		draft.Number = EntryNumber(draft.FiscalYear, seq)
		created, err = tx.Insert(ctx, draft)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.CreatedBy, "journal.create", created, nil)
	return created, nil
}

// UpdateEntry rewrites a draft. Posted entries are immutable.
func (s *Service) UpdateEntry(ctx context.Context, id int64, in CreateEntryInput) (JournalEntry, error) {
	draft, err := in.build()
	if err != nil {
		return JournalEntry{}, err
	}
	if errs := checkLines(draft.Lines); len(errs) > 0 {
		return JournalEntry{}, errs[0]
	}
	accs, err := s.repo.Accounts(ctx, accountIDs(draft.Lines))
	if err != nil {
		return JournalEntry{}, err
	}
	if errs := checkAccounts(draft.Lines, accs); len(errs) > 0 {
		return JournalEntry{}, errs[0]
	}

	var updated JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Posted {
			return fmt.Errorf("%w: %s", shared.ErrAlreadyPosted, current.Number)
		}
		if err := s.ensureReferenceFree(ctx, tx, draft, id); err != nil {
			return err
		}
		draft.ID = current.ID
		draft.Number = current.Number
		draft.CreatedBy = current.CreatedBy
		draft.CreatedAt = current.CreatedAt
		if draft.FiscalYear != current.FiscalYear {
			seq, err := tx.NextNumber(ctx, draft.FiscalYear)
			if err != nil {
				return err
			}
			draft.Number = EntryNumber(draft.FiscalYear, seq)
		}
		updated, err = tx.Replace(ctx, draft)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.CreatedBy, "journal.update", updated, nil)
	return updated, nil
}

// PostEntry applies a draft to account balances. The posted check, every
// balance write and the posted flag share one transaction.
func (s *Service) PostEntry(ctx context.Context, id, postedBy int64) (JournalEntry, error) {
	start := time.Now()
	var posted JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if entry.Posted {
			return fmt.Errorf("%w: %s", shared.ErrAlreadyPosted, entry.Number)
		}
		posted, err = s.post(ctx, tx, entry, postedBy)
		return err
	})
	s.observe("post", err, start)
	if err != nil {
		return JournalEntry{}, err
	}
	s.afterPosting(ctx)
	s.record(ctx, postedBy, "journal.post", posted, map[string]any{
		"total": posted.TotalDebit.StringFixed(2),
	})
	return posted, nil
}

// ReverseEntry creates and posts the mirror image of a posted entry.
func (s *Service) ReverseEntry(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	if in.EntryID <= 0 {
		return JournalEntry{}, fmt.Errorf("%w: entry id required", shared.ErrValidation)
	}
	start := time.Now()
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		switch {
		case !original.Posted:
			return fmt.Errorf("%w: %s", shared.ErrNotPosted, original.Number)
		case original.IsReversal:
			return fmt.Errorf("%w: %s", shared.ErrReversalNotAllowed, original.Number)
		case original.ReversedBy != nil:
			return fmt.Errorf("%w: %s", shared.ErrAlreadyReversed, original.Number)
		}

		mirror := buildReversal(original, in)
		seq, err := tx.NextNumber(ctx, mirror.FiscalYear)
		if err != nil {
			return err
		}
		mirror.Number = EntryNumber(mirror.FiscalYear, seq)
		inserted, err := tx.Insert(ctx, mirror)
		if err != nil {
			return err
		}
		reversal, err = s.post(ctx, tx, inserted, in.ActorID)
		if err != nil {
			return err
		}
		return tx.SetReversedBy(ctx, original.ID, reversal.ID)
	})
	s.observe("reverse", err, start)
	if err != nil {
		return JournalEntry{}, err
	}
	s.afterPosting(ctx)
	s.record(ctx, in.ActorID, "journal.reverse", reversal, map[string]any{
		"reversal_of": in.EntryID,
	})
	return reversal, nil
}

// DeleteEntry removes a draft.
func (s *Service) DeleteEntry(ctx context.Context, id, actorID int64) error {
	var removed JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if entry.Posted {
			return fmt.Errorf("%w: %s", shared.ErrCannotDeletePosted, entry.Number)
		}
		removed = entry
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "journal.delete", removed, nil)
	return nil
}

// ValidateEntry reports every violation PostEntry would raise without
// changing state.
func (s *Service) ValidateEntry(ctx context.Context, id int64) (ValidationResult, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return ValidationResult{}, err
	}
	var errs []error
	if entry.Posted {
		errs = append(errs, fmt.Errorf("%w: %s", shared.ErrAlreadyPosted, entry.Number))
	}
	errs = append(errs, checkLines(entry.Lines)...)
	accs, err := s.repo.Accounts(ctx, accountIDs(entry.Lines))
	if err != nil {
		return ValidationResult{}, err
	}
	errs = append(errs, checkAccounts(entry.Lines, accs)...)

	result := ValidationResult{Valid: len(errs) == 0}
	for _, e := range errs {
		result.Errors = append(result.Errors, Violation{Code: shared.Code(e), Message: e.Error()})
	}
	if !entry.Posted {
		result.Warnings = s.warnings(entry, accs)
	}
	return result, nil
}

// post is the single posting path shared by PostEntry and ReverseEntry.
// The entry row must already be locked by the caller.
func (s *Service) post(ctx context.Context, tx TxRepository, entry JournalEntry, postedBy int64) (JournalEntry, error) {
	if errs := checkLines(entry.Lines); len(errs) > 0 {
		return JournalEntry{}, errs[0]
	}
	ids := accountIDs(entry.Lines)
	accs, err := tx.LockAccounts(ctx, ids)
	if err != nil {
		return JournalEntry{}, err
	}
	if errs := checkAccounts(entry.Lines, accs); len(errs) > 0 {
		return JournalEntry{}, errs[0]
	}
	deltas := balanceDeltas(entry.Lines, accs)
	for _, accountID := range ids {
		delta := deltas[accountID]
		if delta.IsZero() {
			continue
		}
		if err := tx.ApplyBalanceDelta(ctx, accountID, delta); err != nil {
			return JournalEntry{}, err
		}
	}
	at := s.now()
	if err := tx.MarkPosted(ctx, entry.ID, postedBy, at); err != nil {
		return JournalEntry{}, err
	}
	entry.Posted = true
	entry.PostedBy = &postedBy
	entry.PostedAt = &at
	return entry, nil
}

func (s *Service) ensureReferenceFree(ctx context.Context, tx TxRepository, entry JournalEntry, excludeID int64) error {
	if entry.ReferenceID == nil {
		return nil
	}
	exists, err := tx.ReferenceExists(ctx, entry.ReferenceType, *entry.ReferenceID, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s %s", shared.ErrSourceAlreadyLinked, entry.ReferenceType, entry.ReferenceID)
	}
	return nil
}

func (s *Service) warnings(entry JournalEntry, accs map[int64]accounts.Account) []string {
	var out []string
	if entry.Date.After(dateOnly(s.now())) {
		out = append(out, fmt.Sprintf("entry is dated in the future (%s)", entry.Date.Format("2006-01-02")))
	}
	deltas := balanceDeltas(entry.Lines, accs)
	for _, id := range accountIDs(entry.Lines) {
		acc, ok := accs[id]
		if !ok || acc.IsHeader {
			continue
		}
		after := acc.CurrentBalance.Add(deltas[id])
		if after.IsNegative() && !acc.CurrentBalance.IsNegative() {
			out = append(out, fmt.Sprintf("account %s would carry a %s balance against its normal side", acc.Code, after.Abs().StringFixed(2)))
		}
	}
	return out
}

func (s *Service) afterPosting(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate report cache", slog.Any("error", err))
	}
}

func (s *Service) observe(op string, err error, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObservePosting(op, err, time.Since(start))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entry JournalEntry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = entry.Number
	if entry.ReferenceID != nil {
		meta["reference_type"] = entry.ReferenceType
		meta["reference_id"] = entry.ReferenceID.String()
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   internalShared.EntityJournalEntry,
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("record journal audit", slog.String("action", action), slog.Any("error", err))
	}
}

func buildReversal(original JournalEntry, in ReverseInput) JournalEntry {
	date := original.Date
	if in.Date != nil && !in.Date.IsZero() {
		date = dateOnly(*in.Date)
	}
	description := fmt.Sprintf("Reversal of %s: %s", original.Number, original.Description)
	if in.Description != "" {
		description = fmt.Sprintf("Reversal of %s: %s", original.Number, in.Description)
	}
	originalID := original.ID
	mirror := JournalEntry{
		FiscalYear:    date.Year(),
		Date:          date,
		Type:          original.Type,
		ReferenceType: original.ReferenceType,
		ReferenceID:   original.ReferenceID,
		ReferenceNo:   original.ReferenceNo,
		Description:   description,
		Notes:         original.Notes,
		IsReversal:    true,
		ReversalOf:    &originalID,
		CreatedBy:     in.ActorID,
		Lines:         make([]JournalLine, 0, len(original.Lines)),
	}
	for _, line := range original.Lines {
		line.Debit, line.Credit = line.Credit, line.Debit
		mirror.Lines = append(mirror.Lines, line)
	}
	mirror.TotalDebit, mirror.TotalCredit = totals(mirror.Lines)
	return mirror
}

func checkAccounts(lines []JournalLine, accs map[int64]accounts.Account) []error {
	var errs []error
	seen := make(map[int64]bool, len(lines))
	for _, line := range lines {
		if line.AccountID <= 0 || seen[line.AccountID] {
			continue
		}
		seen[line.AccountID] = true
		acc, ok := accs[line.AccountID]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: line %d references account %d", shared.ErrAccountNotFound, line.LineNo, line.AccountID))
			continue
		}
		if err := acc.Postable(); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line.LineNo, err))
		}
	}
	return errs
}

func balanceDeltas(lines []JournalLine, accs map[int64]accounts.Account) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal, len(accs))
	for _, line := range lines {
		acc, ok := accs[line.AccountID]
		if !ok {
			continue
		}
		out[line.AccountID] = out[line.AccountID].Add(shared.SignedDelta(acc.NormalBalance, line.Debit, line.Credit))
	}
	return out
}

// accountIDs returns the distinct positive account ids in ascending order.
func accountIDs(lines []JournalLine) []int64 {
	seen := make(map[int64]bool, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if line.AccountID <= 0 || seen[line.AccountID] {
			continue
		}
		seen[line.AccountID] = true
		ids = append(ids, line.AccountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsDuplicateSource reports whether err means the origin document already
// has an entry.
func IsDuplicateSource(err error) bool {
	return errors.Is(err, shared.ErrSourceAlreadyLinked)
}
