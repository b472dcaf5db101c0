package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository provides read access plus a transactional scope for writes.
type Repository interface {
	List(ctx context.Context) ([]Account, error)
	ListByType(ctx context.Context, t AccountType) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	ListAll(ctx context.Context) ([]Account, error)
	GetForUpdate(ctx context.Context, id int64) (Account, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	Insert(ctx context.Context, a Account) (Account, error)
	Update(ctx context.Context, a Account) (Account, error)
	SetLevel(ctx context.Context, id int64, level int) error
	HasActivity(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
}

const accountColumns = `id, code, name, type, category, description, is_header, normal_balance, parent_id, level,
opening_balance, current_balance, is_active, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	return scanAccounts(rows)
}

func (r *repository) ListByType(ctx context.Context, t AccountType) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE type=$1 ORDER BY code`, t)
	if err != nil {
		return nil, err
	}
	return scanAccounts(rows)
}

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *repository) GetByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
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

func (r *txRepository) ListAll(ctx context.Context) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	return scanAccounts(rows)
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE code=$1)`, code).Scan(&exists)
	return exists, err
}

func (r *txRepository) Insert(ctx context.Context, a Account) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (code, name, type, category, description, is_header, normal_balance, parent_id, level,
opening_balance, current_balance, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id, created_at, updated_at`,
		a.Code, a.Name, a.Type, a.Category, a.Description, a.IsHeader, a.NormalBalance, a.ParentID, a.Level,
		a.OpeningBalance, a.CurrentBalance, a.IsActive)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err, "uq_accounts_code") {
			return Account{}, fmt.Errorf("%w: %w: %s", shared.ErrValidation, shared.ErrDuplicateCode, a.Code)
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) Update(ctx context.Context, a Account) (Account, error) {
	row := r.tx.QueryRow(ctx, `UPDATE accounts SET name=$2, type=$3, category=$4, description=$5, is_header=$6, normal_balance=$7,
parent_id=$8, level=$9, opening_balance=$10, current_balance=$11, is_active=$12, updated_at=NOW()
WHERE id=$1 RETURNING updated_at`,
		a.ID, a.Name, a.Type, a.Category, a.Description, a.IsHeader, a.NormalBalance,
		a.ParentID, a.Level, a.OpeningBalance, a.CurrentBalance, a.IsActive)
	if err := row.Scan(&a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, a.ID)
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) SetLevel(ctx context.Context, id int64, level int) error {
	_, err := r.tx.Exec(ctx, `UPDATE accounts SET level=$2, updated_at=NOW() WHERE id=$1`, id, level)
	return err
}

func (r *txRepository) HasActivity(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM journal_lines WHERE account_id=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *txRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: account %d is referenced", shared.ErrDependency, id)
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, id)
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Category, &a.Description, &a.IsHeader, &a.NormalBalance,
		&a.ParentID, &a.Level, &a.OpeningBalance, &a.CurrentBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func scanAccounts(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
