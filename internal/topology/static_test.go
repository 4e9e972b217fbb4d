package topology_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfabrics/go-opensm/internal/topology"
)

func TestStaticAllPortsPreservesInsertionOrder(t *testing.T) {
	s := topology.NewStatic()
	s.AddPort(topology.Port{GUID: 3})
	s.AddPort(topology.Port{GUID: 1})
	s.AddPort(topology.Port{GUID: 2})

	ports, err := s.AllPorts(context.Background())
	require.NoError(t, err)
	require.Len(t, ports, 3)
	require.Equal(t, topology.GUID(3), ports[0].GUID)
	require.Equal(t, topology.GUID(1), ports[1].GUID)
	require.Equal(t, topology.GUID(2), ports[2].GUID)
}

func TestStaticSMPort(t *testing.T) {
	s := topology.NewStatic()
	s.AddPort(topology.Port{GUID: 42})

	p, ok, err := s.SMPort(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, topology.GUID(42), p.GUID)

	_, ok, err = s.SMPort(context.Background(), 99)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSwitchPort0Classification(t *testing.T) {
	s := topology.NewStatic()
	s.AddSwitchPort0(topology.Port{GUID: 1}, false)
	s.AddSwitchPort0(topology.Port{GUID: 2}, true)
	s.AddPort(topology.Port{GUID: 3})

	ports, err := s.AllPorts(context.Background())
	require.NoError(t, err)

	base, enhanced, end := ports[0], ports[1], ports[2]

	require.True(t, base.IsSwitchPort0())
	require.False(t, base.IsEnhancedSP0())
	require.True(t, base.NeedsSingleLID())

	require.True(t, enhanced.IsSwitchPort0())
	require.True(t, enhanced.IsEnhancedSP0())
	require.False(t, enhanced.NeedsSingleLID())

	require.False(t, end.IsSwitchPort0())
	require.False(t, end.NeedsSingleLID())
}

func TestCurrentRange(t *testing.T) {
	p := topology.Port{CurrentBaseLID: 0}
	_, _, ok := p.CurrentRange()
	require.False(t, ok)

	p = topology.Port{CurrentBaseLID: 10, CurrentLIDCount: 4}
	lo, hi, ok := p.CurrentRange()
	require.True(t, ok)
	require.Equal(t, uint16(10), lo)
	require.Equal(t, uint16(13), hi)
}
