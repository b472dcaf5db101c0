package journals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	Get(ctx context.Context, id int64) (JournalEntry, error)
	List(ctx context.Context, filter ListFilter) ([]JournalEntry, error)
	Accounts(ctx context.Context, ids []int64) (map[int64]accounts.Account, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	// LockAccounts locks the given accounts in ascending id order.
	LockAccounts(ctx context.Context, ids []int64) (map[int64]accounts.Account, error)
	ReferenceExists(ctx context.Context, refType string, refID uuid.UUID, excludeID int64) (bool, error)
	NextNumber(ctx context.Context, fiscalYear int) (int64, error)
	Insert(ctx context.Context, e JournalEntry) (JournalEntry, error)
	Replace(ctx context.Context, e JournalEntry) (JournalEntry, error)
	ApplyBalanceDelta(ctx context.Context, accountID int64, delta decimal.Decimal) error
	MarkPosted(ctx context.Context, id, postedBy int64, at time.Time) error
	SetReversedBy(ctx context.Context, id, reversalID int64) error
	Delete(ctx context.Context, id int64) error
}

const entryColumns = `id, number, fiscal_year, entry_date, entry_type, reference_type, reference_id, reference_no, description, notes,
total_debit, total_credit, posted, is_reversal, reversal_of, reversed_by, created_by, created_at, posted_by, posted_at, updated_at`

const accountColumns = `id, code, name, type, category, description, is_header, normal_balance, parent_id, level,
opening_balance, current_balance, is_active, created_at, updated_at`

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (JournalEntry, error) {
	return loadEntry(ctx, r.db, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id)
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	filter = filter.normalised()
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Type != "" {
		add("entry_type=$%d", filter.Type)
	}
	if filter.Posted != nil {
		add("posted=$%d", *filter.Posted)
	}
	if filter.From != nil {
		add("entry_date>=$%d", dateOnly(*filter.From))
	}
	if filter.To != nil {
		add("entry_date<=$%d", dateOnly(*filter.To))
	}
	if filter.ReferenceType != "" {
		add("reference_type=$%d", strings.ToUpper(filter.ReferenceType))
	}
	if filter.ReferenceID != nil {
		add("reference_id=$%d", *filter.ReferenceID)
	}
	sql := `SELECT ` + entryColumns + ` FROM journal_entries`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	sql += fmt.Sprintf(` ORDER BY entry_date DESC, number DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) Accounts(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	return loadAccounts(ctx, r.db, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id`, ids)
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if errors.Is(err, db.ErrRetryable) {
		return fmt.Errorf("%w: %v", shared.ErrConcurrency, err)
	}
	return err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	return loadEntry(ctx, r.tx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id)
}

func (r *txRepository) LockAccounts(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return loadAccounts(ctx, r.tx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sorted)
}

func (r *txRepository) ReferenceExists(ctx context.Context, refType string, refID uuid.UUID, excludeID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM journal_entries
WHERE reference_type=$1 AND reference_id=$2 AND NOT is_reversal AND id<>$3)`, refType, refID, excludeID).Scan(&exists)
	return exists, err
}

func (r *txRepository) NextNumber(ctx context.Context, fiscalYear int) (int64, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_sequences (fiscal_year, last_value) VALUES ($1, 1)
ON CONFLICT (fiscal_year) DO UPDATE SET last_value = journal_sequences.last_value + 1
RETURNING last_value`, fiscalYear).Scan(&next)
	return next, err
}

func (r *txRepository) Insert(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (number, fiscal_year, entry_date, entry_type, reference_type, reference_id,
reference_no, description, notes, total_debit, total_credit, is_reversal, reversal_of, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id, created_at, updated_at`,
		e.Number, e.FiscalYear, e.Date, e.Type, e.ReferenceType, e.ReferenceID, e.ReferenceNo, e.Description, e.Notes,
		e.TotalDebit, e.TotalCredit, e.IsReversal, e.ReversalOf, e.CreatedBy)
	if err := row.Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return JournalEntry{}, mapWriteError(err)
	}
	if err := r.insertLines(ctx, e.ID, e.Lines); err != nil {
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *txRepository) Replace(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `UPDATE journal_entries SET entry_date=$2, entry_type=$3, reference_type=$4, reference_id=$5,
reference_no=$6, description=$7, notes=$8, total_debit=$9, total_credit=$10, updated_at=NOW()
WHERE id=$1 AND NOT posted RETURNING updated_at`,
		e.ID, e.Date, e.Type, e.ReferenceType, e.ReferenceID, e.ReferenceNo, e.Description, e.Notes, e.TotalDebit, e.TotalCredit)
	if err := row.Scan(&e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, fmt.Errorf("%w: id %d", shared.ErrAlreadyPosted, e.ID)
		}
		return JournalEntry{}, mapWriteError(err)
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE je_id=$1`, e.ID); err != nil {
		return JournalEntry{}, err
	}
	if err := r.insertLines(ctx, e.ID, e.Lines); err != nil {
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *txRepository) insertLines(ctx context.Context, entryID int64, lines []JournalLine) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO journal_lines (je_id, line_no, account_id, debit, credit, description, party_id, stock_type)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, entryID, line.LineNo, line.AccountID, line.Debit, line.Credit, line.Description, line.PartyID, line.StockType)
	}
	results := r.tx.SendBatch(ctx, batch)
	for range lines {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			if db.IsForeignKeyViolation(err) {
				return fmt.Errorf("%w: %v", shared.ErrAccountNotFound, err)
			}
			return err
		}
	}
	return results.Close()
}

func (r *txRepository) ApplyBalanceDelta(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET current_balance = current_balance + $2, updated_at=NOW() WHERE id=$1`, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, accountID)
	}
	return nil
}

func (r *txRepository) MarkPosted(ctx context.Context, id, postedBy int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET posted=TRUE, posted_by=$2, posted_at=$3, updated_at=NOW()
WHERE id=$1 AND NOT posted`, id, postedBy, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", shared.ErrAlreadyPosted, id)
	}
	return nil
}

func (r *txRepository) SetReversedBy(ctx context.Context, id, reversalID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET reversed_by=$2, updated_at=NOW() WHERE id=$1 AND reversed_by IS NULL`, id, reversalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", shared.ErrAlreadyReversed, id)
	}
	return nil
}

func (r *txRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1 AND NOT posted`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", shared.ErrCannotDeletePosted, id)
	}
	return nil
}

func mapWriteError(err error) error {
	switch {
	case db.IsUniqueViolation(err, "uq_journal_reference"):
		return fmt.Errorf("%w: %v", shared.ErrSourceAlreadyLinked, err)
	case db.IsUniqueViolation(err, "uq_journal_reversal_of"):
		return fmt.Errorf("%w: %v", shared.ErrAlreadyReversed, err)
	}
	return err
}

func loadEntry(ctx context.Context, q queryer, sql string, id int64) (JournalEntry, error) {
	entry, err := scanEntry(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, fmt.Errorf("%w: id %d", shared.ErrJournalNotFound, id)
		}
		return JournalEntry{}, err
	}
	rows, err := q.Query(ctx, `SELECT line_no, account_id, debit, credit, description, party_id, stock_type
FROM journal_lines WHERE je_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.LineNo, &line.AccountID, &line.Debit, &line.Credit, &line.Description, &line.PartyID, &line.StockType); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.Number, &e.FiscalYear, &e.Date, &e.Type, &e.ReferenceType, &e.ReferenceID, &e.ReferenceNo,
		&e.Description, &e.Notes, &e.TotalDebit, &e.TotalCredit, &e.Posted, &e.IsReversal, &e.ReversalOf, &e.ReversedBy,
		&e.CreatedBy, &e.CreatedAt, &e.PostedBy, &e.PostedAt, &e.UpdatedAt)
	return e, err
}

func loadAccounts(ctx context.Context, q queryer, sql string, ids []int64) (map[int64]accounts.Account, error) {
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]accounts.Account, len(ids))
	for rows.Next() {
		var a accounts.Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Category, &a.Description, &a.IsHeader, &a.NormalBalance,
			&a.ParentID, &a.Level, &a.OpeningBalance, &a.CurrentBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}
