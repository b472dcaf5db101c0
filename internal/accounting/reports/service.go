package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountLister reads the chart of accounts with current balances.
type AccountLister interface {
	List(ctx context.Context) ([]accounts.Account, error)
}

// TrialBalancer produces the trial balance.
type TrialBalancer interface {
	TrialBalance(ctx context.Context, asOf time.Time) (ledger.TrialBalance, error)
}

// Service builds financial statements on demand, caching each build under
// the report version bumped by every posting.
type Service struct {
	accounts  AccountLister
	ledger    TrialBalancer
	cache     *Cache
	snapshots SnapshotStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the statement builder. cache and snapshots may be nil.
func NewService(accountsRepo AccountLister, tb TrialBalancer, cache *Cache, snapshots SnapshotStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{accounts: accountsRepo, ledger: tb, cache: cache, snapshots: snapshots, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// BalanceSheet builds the balance sheet from current balances.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	asOf = s.day(asOf)
	return cached(ctx, s, []string{"bs", asOf.Format(time.DateOnly)}, func(ctx context.Context) (BalanceSheet, error) {
		list, err := s.accounts.List(ctx)
		if err != nil {
			return BalanceSheet{}, err
		}
		bs := BuildBalanceSheet(list, asOf)
		bs.GeneratedAt = s.now().UTC()
		if !bs.IsBalanced {
			s.logger.Warn("balance sheet out of balance",
				slog.String("as_of", asOf.Format(time.DateOnly)),
				slog.String("difference", bs.Difference.StringFixed(2)))
		}
		if s.snapshots != nil {
			if err := s.snapshots.Save(ctx, s.day(time.Time{}), bs); err != nil {
				s.logger.Warn("save balance sheet snapshot", slog.Any("error", err))
			}
		}
		return bs, nil
	})
}

// ProfitAndLoss builds the income statement.
func (s *Service) ProfitAndLoss(ctx context.Context, start, end time.Time) (ProfitAndLoss, error) {
	start, end = s.day(start), s.day(end)
	if end.Before(start) {
		return ProfitAndLoss{}, fmt.Errorf("%w: period ends before it starts", shared.ErrValidation)
	}
	key := []string{"pl", start.Format(time.DateOnly), end.Format(time.DateOnly)}
	return cached(ctx, s, key, func(ctx context.Context) (ProfitAndLoss, error) {
		list, err := s.accounts.List(ctx)
		if err != nil {
			return ProfitAndLoss{}, err
		}
		return BuildProfitAndLoss(list, start, end), nil
	})
}

// TrialBalance returns the grouped trial balance.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	asOf = s.day(asOf)
	return cached(ctx, s, []string{"tb", asOf.Format(time.DateOnly)}, func(ctx context.Context) (TrialBalance, error) {
		tb, err := s.ledger.TrialBalance(ctx, asOf)
		if err != nil {
			return TrialBalance{}, err
		}
		return GroupTrialBalance(tb), nil
	})
}

// ComparativeBalanceSheet compares the balance sheet against the snapshot
// recorded on priorAsOf.
func (s *Service) ComparativeBalanceSheet(ctx context.Context, asOf, priorAsOf time.Time) (ComparativeBalanceSheet, error) {
	current, err := s.BalanceSheet(ctx, asOf)
	if err != nil {
		return ComparativeBalanceSheet{}, err
	}
	prior, err := s.snapshot(ctx, priorAsOf)
	if err != nil {
		return ComparativeBalanceSheet{}, err
	}
	return Compare(current, prior), nil
}

// Ratios computes ratios on the balance sheet as of asOf.
func (s *Service) Ratios(ctx context.Context, asOf time.Time) (Ratios, error) {
	bs, err := s.BalanceSheet(ctx, asOf)
	if err != nil {
		return Ratios{}, err
	}
	return ComputeRatios(bs), nil
}

func (s *Service) snapshot(ctx context.Context, day time.Time) (BalanceSheet, error) {
	day = s.day(day)
	if s.snapshots == nil {
		return BalanceSheet{}, fmt.Errorf("%w: balance sheet snapshots are not configured", shared.ErrValidation)
	}
	bs, ok, err := s.snapshots.Load(ctx, day)
	if err != nil {
		return BalanceSheet{}, err
	}
	if !ok {
		return BalanceSheet{}, fmt.Errorf("%w: no balance sheet snapshot for %s", shared.ErrValidation, day.Format(time.DateOnly))
	}
	return bs, nil
}

func (s *Service) day(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// cached serves a report from the versioned cache, de-duplicating concurrent
// builds of the same key.
func cached[T any](ctx context.Context, s *Service, parts []string, build func(context.Context) (T, error)) (T, error) {
	var zero T
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Any("error", err))
		return build(ctx)
	}
	val, err, _ := singleflightBuild(ctx, key, func(ctx context.Context) (any, error) {
		var out T
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return build(ctx)
		})
		return out, err
	})
	if err != nil {
		return zero, err
	}
	return val.(T), nil
}
