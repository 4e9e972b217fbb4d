package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfabrics/go-opensm/internal/lidspace"
	"github.com/openfabrics/go-opensm/internal/resolver"
	"github.com/openfabrics/go-opensm/internal/store"
	"github.com/openfabrics/go-opensm/internal/sweep"
	"github.com/openfabrics/go-opensm/internal/topology"
)

func newFixtures(t *testing.T) (*lidspace.UsedLIDs, *lidspace.FreeList, *sweep.PortLIDTable, store.Store) {
	t.Helper()

	s, err := store.OpenSQLite("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return lidspace.NewUsedLIDs(0xBFFF), &lidspace.FreeList{}, sweep.NewPortLIDTable(0xBFFF), s
}

func TestResolveStepAPersistentHit(t *testing.T) {
	used, free, tbl, s := newFixtures(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, 1, 20, 20))

	port := topology.Port{GUID: 1}
	res, err := resolver.Resolve(ctx, port, 0, resolver.Flags{}, tbl, used, free, s, 0xBFFF)
	require.NoError(t, err)
	require.Equal(t, lidspace.LID(20), res.Min)
	require.Equal(t, lidspace.LID(20), res.Max)
	require.True(t, res.Changed) // port wasn't advertising 20 yet
	require.Equal(t, topology.GUID(1), tbl.Get(20))
}

func TestResolveStepBKeepsAdvertised(t *testing.T) {
	used, free, tbl, s := newFixtures(t)
	ctx := context.Background()

	port := topology.Port{GUID: 1, CurrentBaseLID: 5, CurrentLIDCount: 1}
	res, err := resolver.Resolve(ctx, port, 0, resolver.Flags{}, tbl, used, free, s, 0xBFFF)
	require.NoError(t, err)
	require.Equal(t, lidspace.LID(5), res.Min)
	require.False(t, res.Changed)

	min, max, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, uint16(5), min)
	require.Equal(t, uint16(5), max)
}

func TestResolveStepBRejectsWhenReassigning(t *testing.T) {
	used, free, tbl, s := newFixtures(t)
	ctx := context.Background()
	free.Append(lidspace.Range{Min: 1, Max: 100})

	port := topology.Port{GUID: 1, CurrentBaseLID: 5, CurrentLIDCount: 1}
	res, err := resolver.Resolve(ctx, port, 0, resolver.Flags{FirstTimeMasterSweep: true, ReassignLIDs: true}, tbl, used, free, s, 0xBFFF)
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, lidspace.LID(1), res.Min)
}

func TestResolveStepCAllocatesFresh(t *testing.T) {
	used, free, tbl, s := newFixtures(t)
	ctx := context.Background()
	free.Append(lidspace.Range{Min: 1, Max: 100})

	port := topology.Port{GUID: 1}
	res, err := resolver.Resolve(ctx, port, 0, resolver.Flags{}, tbl, used, free, s, 0xBFFF)
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, lidspace.LID(1), res.Min)
	require.Equal(t, lidspace.LID(1), res.Max)
}

func TestResolveExhausted(t *testing.T) {
	used, free, tbl, s := newFixtures(t)
	ctx := context.Background()

	port := topology.Port{GUID: 1}
	_, err := resolver.Resolve(ctx, port, 0, resolver.Flags{}, tbl, used, free, s, 0xBFFF)
	require.ErrorIs(t, err, resolver.ErrExhausted)
}
