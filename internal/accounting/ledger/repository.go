package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// AccountReader is the slice of the account registry the ledger reads.
type AccountReader interface {
	List(ctx context.Context) ([]accounts.Account, error)
	Get(ctx context.Context, id int64) (accounts.Account, error)
}

// Repository reads posted journal lines. Reads run outside a transaction at
// read committed.
type Repository interface {
	// PostedLines returns posted lines for the account up to and including
	// to, ordered by entry date, entry number and line number.
	PostedLines(ctx context.Context, accountID int64, to *time.Time) ([]Posting, error)
	PostedTotals(ctx context.Context) (map[int64]Totals, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) PostedLines(ctx context.Context, accountID int64, to *time.Time) ([]Posting, error) {
	rows, err := r.db.Query(ctx, `SELECT je.id, je.number, je.entry_date, je.description, jl.line_no, jl.debit, jl.credit, jl.description
FROM journal_lines jl
JOIN journal_entries je ON je.id = jl.je_id
WHERE jl.account_id = $1 AND je.posted AND ($2::date IS NULL OR je.entry_date <= $2::date)
ORDER BY je.entry_date, je.number, jl.line_no`, accountID, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Posting
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.EntryID, &p.EntryNumber, &p.EntryDate, &p.EntryDesc, &p.LineNo, &p.Debit, &p.Credit, &p.LineDescription); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) PostedTotals(ctx context.Context) (map[int64]Totals, error) {
	rows, err := r.db.Query(ctx, `SELECT jl.account_id, COALESCE(SUM(jl.debit),0), COALESCE(SUM(jl.credit),0)
FROM journal_lines jl
JOIN journal_entries je ON je.id = jl.je_id
WHERE je.posted
GROUP BY jl.account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Totals)
	for rows.Next() {
		var (
			id            int64
			debit, credit decimal.Decimal
		)
		if err := rows.Scan(&id, &debit, &credit); err != nil {
			return nil, err
		}
		out[id] = Totals{Debit: debit, Credit: credit}
	}
	return out, rows.Err()
}
