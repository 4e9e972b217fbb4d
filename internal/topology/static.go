package topology

import (
	"context"
	"fmt"
	"sort"
)

// Static is an in-memory Discovery implementation: a fixed snapshot of ports
// keyed by GUID. It is the seam a real discovery engine replaces; the
// daemon's standalone mode and the orchestrator and topology tests use it
// directly.
type Static struct {
	ports map[GUID]Port
	// order preserves insertion order so iteration is deterministic without
	// claiming any ordering guarantee beyond "SM first".
	order []GUID
}

// NewStatic returns an empty Static discovery set.
func NewStatic() *Static {
	return &Static{ports: make(map[GUID]Port)}
}

// AddSwitchPort0 registers a switch's management port.
func (s *Static) AddSwitchPort0(p Port, enhancedLMC bool) {
	p.switchPort0 = &sp0Info{enhancedLMC: enhancedLMC}
	p.IsSwitch = true
	p.PortNum = 0
	s.add(p)
}

// AddPort registers an ordinary (non-SP0) port.
func (s *Static) AddPort(p Port) {
	p.switchPort0 = nil
	s.add(p)
}

func (s *Static) add(p Port) {
	if _, exists := s.ports[p.GUID]; !exists {
		s.order = append(s.order, p.GUID)
	}

	s.ports[p.GUID] = p
}

// AllPorts implements Discovery.
func (s *Static) AllPorts(_ context.Context) ([]Port, error) {
	out := make([]Port, 0, len(s.order))
	for _, g := range s.order {
		out = append(out, s.ports[g])
	}

	return out, nil
}

// SMPort implements Discovery.
func (s *Static) SMPort(_ context.Context, smGUID GUID) (Port, bool, error) {
	p, ok := s.ports[smGUID]
	return p, ok, nil
}

// SortedGUIDs returns every registered GUID in ascending order; useful for
// deterministic test fixtures.
func (s *Static) SortedGUIDs() []GUID {
	out := make([]GUID, len(s.order))
	copy(out, s.order)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (g GUID) String() string {
	return fmt.Sprintf("0x%016x", uint64(g))
}
