package mappings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository stores (module, key) → account mappings.
type Repository interface {
	Get(ctx context.Context, module, key string) (AccountMapping, error)
	Upsert(ctx context.Context, m AccountMapping) error
	List(ctx context.Context) ([]AccountMapping, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, fmt.Errorf("%w: module and key required", shared.ErrValidation)
	}
	normalized := strings.ToUpper(module)
	var mapping AccountMapping
	err := r.db.QueryRow(ctx, `SELECT module, key, account_id, created_at, updated_at FROM account_mappings WHERE module=$1 AND key=$2`, normalized, key).
		Scan(&mapping.Module, &mapping.Key, &mapping.AccountID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, fmt.Errorf("%w: %s/%s", shared.ErrMappingNotFound, normalized, key)
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

// Upsert creates or repoints a mapping.
func (r *repository) Upsert(ctx context.Context, m AccountMapping) error {
	if m.Module == "" || m.Key == "" || m.AccountID <= 0 {
		return fmt.Errorf("%w: module, key and account required", shared.ErrValidation)
	}
	_, err := r.db.Exec(ctx, `INSERT INTO account_mappings (module, key, account_id) VALUES ($1,$2,$3)
ON CONFLICT (module, key) DO UPDATE SET account_id = EXCLUDED.account_id, updated_at = NOW()`,
		strings.ToUpper(m.Module), m.Key, m.AccountID)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, m.AccountID)
	}
	return err
}

// List returns every mapping ordered by module and key.
func (r *repository) List(ctx context.Context) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT module, key, account_id, created_at, updated_at FROM account_mappings ORDER BY module, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.Module, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
