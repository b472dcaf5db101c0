package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func TestSeedChartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	chart := accounts.NewService(store.Accounts(), nil)

	ids, created, err := seedChart(ctx, chart)
	require.NoError(t, err)
	require.Equal(t, len(chartOfAccounts), created)
	require.Len(t, ids, len(chartOfAccounts))

	again, created, err := seedChart(ctx, chart)
	require.NoError(t, err)
	require.Zero(t, created)
	require.Equal(t, ids, again)

	contra := store.Account(ids["1590"])
	require.Equal(t, shared.NormalCredit, contra.NormalBalance)
	require.NotNil(t, contra.ParentID)
	require.Equal(t, ids["1500"], *contra.ParentID)

	path, err := chart.GetHierarchyPath(ctx, ids["1110"])
	require.NoError(t, err)
	require.Len(t, path, 3)
	require.Equal(t, "1000", path[0].Code)
}

func TestSeedMappingsResolveEveryKey(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	chart := accounts.NewService(store.Accounts(), nil)

	ids, _, err := seedChart(ctx, chart)
	require.NoError(t, err)
	require.NoError(t, seedMappings(ctx, store.Mappings(), ids))

	for _, m := range integrationMappings {
		mapping, err := store.Mappings().Get(ctx, m.module, m.key)
		require.NoError(t, err, "%s/%s", m.module, m.key)
		require.Equal(t, ids[m.code], mapping.AccountID)
		require.False(t, store.Account(mapping.AccountID).IsHeader, "%s maps to a header", m.key)
	}

	require.Error(t, seedMappings(ctx, store.Mappings(), map[string]int64{}))
}
