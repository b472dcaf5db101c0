package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort records chart of accounts changes.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service maintains the chart of accounts.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the account registry.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns every account ordered by code.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// GetAccount loads a single account.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	acc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, notFound(err, id)
	}
	return acc, nil
}

// GetByCode loads an account by its code.
func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	acc, err := s.repo.GetByCode(ctx, code)
	if errors.Is(err, shared.ErrAccountNotFound) {
		return Account{}, fmt.Errorf("%w: code %s", shared.ErrAccountNotFound, code)
	}
	return acc, err
}

// CreateAccount validates and registers a new account.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	normal := in.NormalBalance
	if normal == "" {
		normal = in.Type.DefaultNormalBalance()
	}
	opening := shared.Round2(in.OpeningBalance)
	account := Account{
		Code:           in.Code,
		Name:           in.Name,
		Type:           in.Type,
		Category:       strings.TrimSpace(in.Category),
		Description:    in.Description,
		IsHeader:       in.IsHeader,
		NormalBalance:  normal,
		ParentID:       in.ParentID,
		OpeningBalance: opening,
		CurrentBalance: opening,
		IsActive:       true,
	}
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.CodeExists(ctx, account.Code)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %w: %s", shared.ErrValidation, shared.ErrDuplicateCode, account.Code)
		}
		if account.ParentID != nil {
			parent, err := tx.GetForUpdate(ctx, *account.ParentID)
			if err != nil {
				return parentError(err, *account.ParentID)
			}
			if err := checkParent(account, parent); err != nil {
				return err
			}
			account.Level = parent.Level + 1
		}
		inserted, err := tx.Insert(ctx, account)
		if err != nil {
			return err
		}
		created = inserted
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.ActorID, "account.create", created.ID, map[string]any{
		"code": created.Code,
		"type": string(created.Type),
	})
	return created, nil
}

// UpdateAccount applies changes and re-validates every chart invariant.
func (s *Service) UpdateAccount(ctx context.Context, id int64, in UpdateAccountInput) (Account, error) {
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err, id)
		}
		all, err := tx.ListAll(ctx)
		if err != nil {
			return err
		}
		children := directChildren(all, id)
		next := current

		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return fmt.Errorf("%w: account name required", shared.ErrValidation)
			}
			next.Name = name
		}
		if in.Category != nil {
			next.Category = strings.TrimSpace(*in.Category)
		}
		if in.Description != nil {
			next.Description = *in.Description
		}

		var activity *bool
		hasActivity := func() (bool, error) {
			if activity == nil {
				v, err := tx.HasActivity(ctx, id)
				if err != nil {
					return false, err
				}
				activity = &v
			}
			return *activity, nil
		}

		if in.Type != nil && *in.Type != current.Type {
			if !in.Type.Valid() {
				return fmt.Errorf("%w: unknown account type %q", shared.ErrValidation, *in.Type)
			}
			if len(children) > 0 {
				return fmt.Errorf("%w: account %s has children; type cannot change", shared.ErrDependency, current.Code)
			}
			active, err := hasActivity()
			if err != nil {
				return err
			}
			if active {
				return fmt.Errorf("%w: account %s has journal activity; type cannot change", shared.ErrDependency, current.Code)
			}
			next.Type = *in.Type
			if in.NormalBalance == nil {
				next.NormalBalance = next.Type.DefaultNormalBalance()
			}
		}
		if in.NormalBalance != nil && *in.NormalBalance != next.NormalBalance {
			if !in.NormalBalance.Valid() {
				return fmt.Errorf("%w: unknown normal balance %q", shared.ErrValidation, *in.NormalBalance)
			}
			active, err := hasActivity()
			if err != nil {
				return err
			}
			if active {
				return fmt.Errorf("%w: account %s has journal activity; normal balance cannot change", shared.ErrDependency, current.Code)
			}
			next.NormalBalance = *in.NormalBalance
		}

		if in.IsHeader != nil && *in.IsHeader != current.IsHeader {
			if *in.IsHeader {
				if !current.OpeningBalance.IsZero() || !current.CurrentBalance.IsZero() {
					return fmt.Errorf("%w: account %s carries a balance and cannot become a header", shared.ErrInvariant, current.Code)
				}
				active, err := hasActivity()
				if err != nil {
					return err
				}
				if active {
					return fmt.Errorf("%w: account %s has journal activity and cannot become a header", shared.ErrDependency, current.Code)
				}
			} else if len(children) > 0 {
				return fmt.Errorf("%w: header %s has children and cannot become postable", shared.ErrDependency, current.Code)
			}
			next.IsHeader = *in.IsHeader
		}

		if in.OpeningBalance != nil {
			opening := shared.Round2(*in.OpeningBalance)
			if next.IsHeader && !opening.IsZero() {
				return fmt.Errorf("%w: header account %s cannot carry an opening balance", shared.ErrInvariant, current.Code)
			}
			next.CurrentBalance = next.CurrentBalance.Add(opening.Sub(current.OpeningBalance))
			next.OpeningBalance = opening
		}

		byID := indexByID(all)
		parentChanged := false
		switch {
		case in.ClearParent:
			parentChanged = current.ParentID != nil
			next.ParentID = nil
			next.Level = 0
		case in.ParentID != nil:
			if *in.ParentID == id {
				return fmt.Errorf("%w: account %s cannot be its own parent", shared.ErrValidation, current.Code)
			}
			parentChanged = current.ParentID == nil || *current.ParentID != *in.ParentID
			pid := *in.ParentID
			next.ParentID = &pid
		}
		if next.ParentID != nil {
			parent, ok := byID[*next.ParentID]
			if !ok {
				return fmt.Errorf("%w: parent account %d not found", shared.ErrDependency, *next.ParentID)
			}
			if err := checkParent(next, parent); err != nil {
				return err
			}
			for _, below := range descendants(all, id) {
				if below == parent.ID {
					return fmt.Errorf("%w: moving %s under %s creates a cycle", shared.ErrValidation, current.Code, parent.Code)
				}
			}
			next.Level = parent.Level + 1
		}

		saved, err := tx.Update(ctx, next)
		if err != nil {
			return err
		}
		if parentChanged || saved.Level != current.Level {
			byID[saved.ID] = saved
			if err := relevel(ctx, tx, all, byID, saved.ID); err != nil {
				return err
			}
		}
		updated = saved
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.ActorID, "account.update", updated.ID, map[string]any{"code": updated.Code})
	return updated, nil
}

// DeactivateAccount hides an account from new postings.
func (s *Service) DeactivateAccount(ctx context.Context, id, actorID int64) (Account, error) {
	var result Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err, id)
		}
		all, err := tx.ListAll(ctx)
		if err != nil {
			return err
		}
		for _, child := range directChildren(all, id) {
			if child.IsActive {
				return fmt.Errorf("%w: account %s has active child %s", shared.ErrDependency, current.Code, child.Code)
			}
		}
		if !current.IsActive {
			result = current
			return nil
		}
		current.IsActive = false
		result, err = tx.Update(ctx, current)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, actorID, "account.deactivate", id, map[string]any{"code": result.Code})
	return result, nil
}

// ActivateAccount re-enables an account whose parent is active.
func (s *Service) ActivateAccount(ctx context.Context, id, actorID int64) (Account, error) {
	var result Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err, id)
		}
		if current.IsActive {
			result = current
			return nil
		}
		if current.ParentID != nil {
			parent, err := tx.GetForUpdate(ctx, *current.ParentID)
			if err != nil {
				return parentError(err, *current.ParentID)
			}
			if !parent.IsActive {
				return fmt.Errorf("%w: parent %s is inactive", shared.ErrDependency, parent.Code)
			}
		}
		current.IsActive = true
		result, err = tx.Update(ctx, current)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, actorID, "account.activate", id, map[string]any{"code": result.Code})
	return result, nil
}

// DeleteAccount removes an account that never saw activity and has no children.
func (s *Service) DeleteAccount(ctx context.Context, id, actorID int64) error {
	var code string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err, id)
		}
		code = current.Code
		all, err := tx.ListAll(ctx)
		if err != nil {
			return err
		}
		if len(directChildren(all, id)) > 0 {
			return fmt.Errorf("%w: account %s has children", shared.ErrDependency, current.Code)
		}
		active, err := tx.HasActivity(ctx, id)
		if err != nil {
			return err
		}
		if active {
			return fmt.Errorf("%w: account %s has journal activity; deactivate it instead", shared.ErrDependency, current.Code)
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "account.delete", id, map[string]any{"code": code})
	return nil
}

// GetHierarchy returns the forest of accounts of the given type with totals.
func (s *Service) GetHierarchy(ctx context.Context, t AccountType) ([]*Node, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown account type %q", shared.ErrValidation, t)
	}
	list, err := s.repo.ListByType(ctx, t)
	if err != nil {
		return nil, err
	}
	return BuildForest(list), nil
}

// GetHierarchyPath returns the chain of accounts from the root to id.
func (s *Service) GetHierarchyPath(ctx context.Context, id int64) ([]Account, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	path, ok := ancestry(indexByID(list), id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, id)
	}
	return path, nil
}

// GetChildren returns the direct children of an account.
func (s *Service) GetChildren(ctx context.Context, id int64) ([]Account, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := indexByID(list)[id]; !ok {
		return nil, fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, id)
	}
	return directChildren(list, id), nil
}

// GetAccountsByType lists accounts of one type, optionally active only.
func (s *Service) GetAccountsByType(ctx context.Context, t AccountType, activeOnly bool) ([]Account, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown account type %q", shared.ErrValidation, t)
	}
	list, err := s.repo.ListByType(ctx, t)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return list, nil
	}
	out := list[:0:0]
	for _, acc := range list {
		if acc.IsActive {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   internalShared.EntityAccount,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}

func checkParent(child, parent Account) error {
	if !parent.IsHeader {
		return fmt.Errorf("%w: parent %s is not a header account", shared.ErrDependency, parent.Code)
	}
	if parent.Type != child.Type {
		return fmt.Errorf("%w: parent %s is %s, account is %s", shared.ErrDependency, parent.Code, parent.Type, child.Type)
	}
	return nil
}

// relevel rewrites the level of every descendant of id.
func relevel(ctx context.Context, tx TxRepository, all []Account, byID map[int64]Account, id int64) error {
	for _, childID := range descendants(all, id) {
		child := byID[childID]
		parent := byID[*child.ParentID]
		level := parent.Level + 1
		if child.Level != level {
			if err := tx.SetLevel(ctx, childID, level); err != nil {
				return err
			}
			child.Level = level
			byID[childID] = child
		}
	}
	return nil
}

func directChildren(list []Account, id int64) []Account {
	var out []Account
	for _, acc := range list {
		if acc.ParentID != nil && *acc.ParentID == id {
			out = append(out, acc)
		}
	}
	return out
}

func indexByID(list []Account) map[int64]Account {
	out := make(map[int64]Account, len(list))
	for _, acc := range list {
		out[acc.ID] = acc
	}
	return out
}

func notFound(err error, id int64) error {
	if errors.Is(err, shared.ErrAccountNotFound) {
		return fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, id)
	}
	return err
}

func parentError(err error, id int64) error {
	if errors.Is(err, shared.ErrAccountNotFound) {
		return fmt.Errorf("%w: parent account %d not found", shared.ErrDependency, id)
	}
	return err
}
