package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfabrics/go-opensm/internal/config"
	"github.com/openfabrics/go-opensm/internal/orchestrator"
	"github.com/openfabrics/go-opensm/internal/store"
	"github.com/openfabrics/go-opensm/internal/topology"
	"github.com/openfabrics/go-opensm/internal/transport"
)

// syncSetter acknowledges every submission inline, making sweeps
// deterministic to assert on without a sleep.
type syncSetter struct {
	mu    sync.Mutex
	count int
}

func (s *syncSetter) Submit(_ context.Context, _ transport.Path, _ [64]byte, _ transport.Attribute, _ uint8, cb func(transport.Result)) error {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()

	cb(transport.Result{})
	return nil
}

func (s *syncSetter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func newOrchestrator(t *testing.T, lmc uint8, maxUnicast uint16, discovery *topology.Static) (*orchestrator.Orchestrator, store.Store, *syncSetter) {
	t.Helper()

	s, err := store.OpenSQLite("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := config.Default()
	cfg.LMC = lmc
	cfg.MaxUnicastLID = maxUnicast

	setter := &syncSetter{}
	o := orchestrator.New(cfg, discovery, s, setter)

	return o, s, setter
}

// seed persists a guid2lid entry directly in the backing store, as if a
// prior sweep had already written it, and flushes it to disk so the
// orchestrator's first-sweep Load sees it.
func seed(t *testing.T, s store.Store, guid topology.GUID, min, max uint16) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, guid, min, max))
	require.NoError(t, s.Store(ctx))
}

func TestFreshPortsAllocateAlignedContiguousRanges(t *testing.T) {
	discovery := topology.NewStatic()
	discovery.AddPort(topology.Port{GUID: 0xA})
	discovery.AddPort(topology.Port{GUID: 0xB})

	o, _, _ := newOrchestrator(t, 2, 0xFF, discovery)

	// Both ports are new, so the sweep must send PortInfoSet for each;
	// DONE_PENDING is reported regardless of the synchronous ack.
	res, err := o.ProcessSubnet(context.Background())
	require.NoError(t, err)
	require.False(t, res.Done)

	minA, maxA, err := o.ResolvedRange(context.Background(), 0xA)
	require.NoError(t, err)
	require.Equal(t, uint16(4), minA)
	require.Equal(t, uint16(7), maxA)

	minB, maxB, err := o.ResolvedRange(context.Background(), 0xB)
	require.NoError(t, err)
	require.Equal(t, uint16(8), minB)
	require.Equal(t, uint16(11), maxB)

	free := o.FreeRanges()
	require.NotEmpty(t, free)
	require.Equal(t, uint16(12), uint16(free[0].Min))
}

func TestKeepsAdvertisedLIDWhenStillAligned(t *testing.T) {
	discovery := topology.NewStatic()
	discovery.AddPort(topology.Port{GUID: 0xA, CurrentBaseLID: 16, CurrentLIDCount: 4})

	o, _, _ := newOrchestrator(t, 2, 0xFF, discovery)

	_, err := o.ProcessSubnet(context.Background())
	require.NoError(t, err)

	min, max, err := o.ResolvedRange(context.Background(), 0xA)
	require.NoError(t, err)
	require.Equal(t, uint16(16), min)
	require.Equal(t, uint16(19), max)
}

func TestReallocatesMisalignedAdvertisedLID(t *testing.T) {
	discovery := topology.NewStatic()
	discovery.AddPort(topology.Port{GUID: 0xA, CurrentBaseLID: 14, CurrentLIDCount: 4})

	o, _, _ := newOrchestrator(t, 2, 0xFF, discovery)

	_, err := o.ProcessSubnet(context.Background())
	require.NoError(t, err)

	min, max, err := o.ResolvedRange(context.Background(), 0xA)
	require.NoError(t, err)
	require.Equal(t, uint16(4), min)
	require.Equal(t, uint16(7), max)
}

func TestPersistentHitIsIdempotentAcrossSweeps(t *testing.T) {
	discovery := topology.NewStatic()
	discovery.AddPort(topology.Port{GUID: 0xA, CurrentBaseLID: 32, CurrentLIDCount: 4})

	o, st, setter := newOrchestrator(t, 2, 0xFF, discovery)

	ctx := context.Background()
	seed(t, st, 0xA, 32, 35)

	_, err := o.ProcessSubnet(ctx)
	require.NoError(t, err)

	min, max, err := o.ResolvedRange(ctx, 0xA)
	require.NoError(t, err)
	require.Equal(t, uint16(32), min)
	require.Equal(t, uint16(35), max)

	// First sweep is first_time_master_sweep, so a send is forced despite
	// no change.
	require.Equal(t, 1, setter.Count())

	// A second sweep with unchanged inputs must emit nothing more
	// (invariant 5: idempotence).
	_, err = o.ProcessSubnet(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, setter.Count())
}

func TestLMCIncreaseEvictsStalePersistentEntry(t *testing.T) {
	discovery := topology.NewStatic()
	discovery.AddPort(topology.Port{GUID: 0xA})

	o, st, _ := newOrchestrator(t, 2, 0xFF, discovery)

	ctx := context.Background()
	// Entry persisted back when LMC was 0 (single LID at 5); now LMC=2.
	seed(t, st, 0xA, 5, 5)

	_, err := o.ProcessSubnet(ctx)
	require.NoError(t, err)

	min, max, err := o.ResolvedRange(ctx, 0xA)
	require.NoError(t, err)
	require.NotEqual(t, uint16(5), min)
	require.Equal(t, uint16(max-min)+1, uint16(4))
}

func TestExhaustedFreeRangeReturnsFatalError(t *testing.T) {
	discovery := topology.NewStatic()
	discovery.AddPort(topology.Port{GUID: 1})
	discovery.AddPort(topology.Port{GUID: 2})
	discovery.AddPort(topology.Port{GUID: 3})

	// max_unicast_lid=11, LMC=2 (N=4): the free-range list starts as
	// [1,10], which holds exactly one aligned 4-LID block ([4,7]). The
	// first port exhausts it; any further port triggers the fatal
	// LID-exhaustion error.
	o, _, _ := newOrchestrator(t, 2, 11, discovery)

	_, err := o.ProcessSubnet(context.Background())
	require.Error(t, err)

	var fatal *orchestrator.FatalError
	require.True(t, errors.As(err, &fatal))
}

func TestPortRetainsBaseLIDAcrossSweepsWithoutReassign(t *testing.T) {
	discovery := topology.NewStatic()
	discovery.AddPort(topology.Port{GUID: 0xA, CurrentBaseLID: 20, CurrentLIDCount: 4})

	o, _, _ := newOrchestrator(t, 2, 0xFF, discovery)
	ctx := context.Background()

	_, err := o.ProcessSubnet(ctx)
	require.NoError(t, err)

	min1, max1, err := o.ResolvedRange(ctx, 0xA)
	require.NoError(t, err)

	_, err = o.ProcessSubnet(ctx)
	require.NoError(t, err)

	min2, max2, err := o.ResolvedRange(ctx, 0xA)
	require.NoError(t, err)

	require.Equal(t, min1, min2)
	require.Equal(t, max1, max2)
}

func TestProcessSubnetSkipsSMOwnPort(t *testing.T) {
	discovery := topology.NewStatic()
	discovery.AddPort(topology.Port{GUID: 0xA})

	s, err := store.OpenSQLite("")
	require.NoError(t, err)
	defer s.Close()

	cfg := config.Default()
	cfg.LMC = 2
	cfg.MaxUnicastLID = 0xFF
	cfg.SMPortGUID = 0xA

	setter := &syncSetter{}
	o := orchestrator.New(cfg, discovery, s, setter)
	ctx := context.Background()

	// ProcessSM resolves and configures the SM's own port first, as
	// cmd/opensmd always calls it before ProcessSubnet.
	smRes, err := o.ProcessSM(ctx)
	require.NoError(t, err)
	require.False(t, smRes.Done)
	require.Equal(t, 1, setter.Count())

	// ProcessSubnet must not resolve/configure the SM's own port a second
	// time in the same cycle: nothing else changed, so no further send is
	// emitted.
	_, err = o.ProcessSubnet(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, setter.Count())
}

func TestProcessSubnetReportsPendingWhenUnacknowledged(t *testing.T) {
	discovery := topology.NewStatic()
	discovery.AddPort(topology.Port{GUID: 0xA})

	s, err := store.OpenSQLite("")
	require.NoError(t, err)
	defer s.Close()

	cfg := config.Default()
	cfg.LMC = 2
	cfg.MaxUnicastLID = 0xFF

	o := orchestrator.New(cfg, discovery, s, transport.Noop{})

	res, err := o.ProcessSubnet(context.Background())
	require.NoError(t, err)
	require.False(t, res.Done)
}

func TestProcessSubnetReportsDoneWhenNoSendRaised(t *testing.T) {
	discovery := topology.NewStatic()
	discovery.AddPort(topology.Port{GUID: 0xA, CurrentBaseLID: 32, CurrentLIDCount: 4})

	o, st, _ := newOrchestrator(t, 2, 0xFF, discovery)
	ctx := context.Background()

	seed(t, st, 0xA, 32, 35)

	// First sweep: first_time_master_sweep forces a send regardless of
	// change, so DONE_PENDING is reported.
	res, err := o.ProcessSubnet(ctx)
	require.NoError(t, err)
	require.False(t, res.Done)

	// Second sweep with unchanged inputs raises no send at all.
	res, err = o.ProcessSubnet(ctx)
	require.NoError(t, err)
	require.True(t, res.Done)
}
