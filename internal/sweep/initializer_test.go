package sweep_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfabrics/go-opensm/internal/lidspace"
	"github.com/openfabrics/go-opensm/internal/store"
	"github.com/openfabrics/go-opensm/internal/sweep"
	"github.com/openfabrics/go-opensm/internal/topology"
)

func TestInitializeFirstTimeReassignGivesWholeRange(t *testing.T) {
	s, err := store.OpenSQLite("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	tbl := sweep.NewPortLIDTable(10)
	used := lidspace.NewUsedLIDs(10)

	free, err := sweep.Initialize(ctx, nil, tbl, used, s, 0, 10, sweep.Flags{
		FirstTimeMasterSweep: true,
		ReassignLIDs:         true,
	})
	require.NoError(t, err)
	require.Equal(t, []lidspace.Range{{Min: 1, Max: 9}}, free.Ranges())
}

func TestInitializeHoldsDiscoveredRangeNotPersisted(t *testing.T) {
	s, err := store.OpenSQLite("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	tbl := sweep.NewPortLIDTable(20)
	used := lidspace.NewUsedLIDs(20)

	ports := []topology.Port{
		{GUID: 1, CurrentBaseLID: 5, CurrentLIDCount: 1},
	}

	free, err := sweep.Initialize(ctx, ports, tbl, used, s, 0, 20, sweep.Flags{})
	require.NoError(t, err)

	// LID 5 should be excluded from the free list (held by the
	// discovered port), leaving [1,4] and [6,19].
	require.Equal(t, []lidspace.Range{{Min: 1, Max: 4}, {Min: 6, Max: 19}}, free.Ranges())
}

func TestInitializeEvictsStalePersistentEntry(t *testing.T) {
	s, err := store.OpenSQLite("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	tbl := sweep.NewPortLIDTable(20)
	used := lidspace.NewUsedLIDs(20)

	// Persisted for lmc=2 (needs 4 lids) but only 2 wide: too narrow.
	require.NoError(t, s.Set(ctx, 1, 8, 9))

	ports := []topology.Port{{GUID: 1}}

	_, err = sweep.Initialize(ctx, ports, tbl, used, s, 2, 20, sweep.Flags{})
	require.NoError(t, err)

	_, _, err = s.Get(ctx, 1)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestInitializeComingOutOfStandbyReloadsStore(t *testing.T) {
	s, err := store.OpenSQLite("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, 1, 5, 5))
	require.NoError(t, s.Store(ctx))
	require.NoError(t, s.Clear(ctx)) // simulate in-memory loss

	tbl := sweep.NewPortLIDTable(20)
	used := lidspace.NewUsedLIDs(20)

	_, err = sweep.Initialize(ctx, nil, tbl, used, s, 0, 20, sweep.Flags{
		ComingOutOfStandby: true,
		HonorGUID2LIDFile:  true,
	})
	require.NoError(t, err)

	_, _, err = s.Get(ctx, 1)
	require.NoError(t, err, "reload from disk should have restored the entry")
}
