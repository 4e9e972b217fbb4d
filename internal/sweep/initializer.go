// Package sweep implements the Sweep Initializer from the design: it
// rebuilds the free-range list for one pass by intersecting discovered
// ports, persistent assignments, and the reassignment policy.
package sweep

import (
	"context"
	"fmt"

	"github.com/openfabrics/go-opensm/internal/lidspace"
	"github.com/openfabrics/go-opensm/internal/logctx"
	"github.com/openfabrics/go-opensm/internal/store"
	"github.com/openfabrics/go-opensm/internal/topology"
)

// PortLIDTable is the external, subnet-owned table indexed by LID, shared
// (read+write, under the caller's exclusive lock) with the surrounding
// system per the design.
type PortLIDTable struct {
	slots []topology.GUID // zero value (GUID 0) means unoccupied
}

// NewPortLIDTable returns a table sized for LIDs [0, maxUnicast].
func NewPortLIDTable(maxUnicast lidspace.LID) *PortLIDTable {
	return &PortLIDTable{slots: make([]topology.GUID, int(maxUnicast)+1)}
}

// Len returns the number of slots, including the sentinel at index 0.
func (t *PortLIDTable) Len() int {
	return len(t.slots)
}

// Get returns the GUID occupying lid, or 0 if none.
func (t *PortLIDTable) Get(lid lidspace.LID) topology.GUID {
	if int(lid) >= len(t.slots) {
		return 0
	}

	return t.slots[lid]
}

// Set records guid at lid, growing the table if necessary.
func (t *PortLIDTable) Set(lid lidspace.LID, guid topology.GUID) {
	t.grow(lid)
	t.slots[lid] = guid
}

// ClearRange unsets every slot in [lo, lo+n-1] that currently holds guid.
// Per the design this is used to remove a port's stale, previously
// discovered range before it is re-resolved.
func (t *PortLIDTable) ClearRange(guid topology.GUID, lo lidspace.LID, n uint16) {
	for l := lo; l < lo+lidspace.LID(n); l++ {
		if int(l) < len(t.slots) && t.slots[l] == guid {
			t.slots[l] = 0
		}
	}
}

// ClearAll zeroes every slot without shrinking the table.
func (t *PortLIDTable) ClearAll() {
	for i := range t.slots {
		t.slots[i] = 0
	}
}

func (t *PortLIDTable) grow(to lidspace.LID) {
	if int(to) < len(t.slots) {
		return
	}

	grown := make([]topology.GUID, int(to)+1)
	copy(grown, t.slots)
	t.slots = grown
}

// Flags bundles the sweep-initializer policy inputs from the design.
type Flags struct {
	FirstTimeMasterSweep bool
	ReassignLIDs         bool
	ComingOutOfStandby   bool
	HonorGUID2LIDFile    bool
}

// Initialize performs the full Sweep Initializer algorithm of the design
// and returns the rebuilt free-range list.
func Initialize(
	ctx context.Context,
	ports []topology.Port,
	tbl *PortLIDTable,
	used *lidspace.UsedLIDs,
	s store.Store,
	lmc uint8,
	maxUnicast lidspace.LID,
	flags Flags,
) (*lidspace.FreeList, error) {
	if flags.ComingOutOfStandby {
		if err := s.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clearing in-memory guid2lid map coming out of standby: %w", err)
		}

		if flags.HonorGUID2LIDFile {
			if err := s.Load(ctx); err != nil {
				logctx.Error("failed reloading guid2lid file coming out of standby, continuing with empty map", logctx.Ctx{"err": err})
			}
		}

		used.Reset()
	}

	free := &lidspace.FreeList{}
	free.Reset()
	tbl.ClearAll()

	if flags.FirstTimeMasterSweep && flags.ReassignLIDs {
		if maxUnicast >= 1 {
			free.Append(lidspace.Range{Min: lidspace.UcastStart, Max: maxUnicast - 1})
		}

		return free, nil
	}

	mask := lidspace.AlignMask(lidspace.Count(lmc))

	// First pass: occupancy by discovery.
	for _, p := range ports {
		lo, hi, ok := p.CurrentRange()
		if ok {
			recordDiscovered(tbl, p.GUID, lo, hi, maxUnicast)
		}

		dmin, dmax, err := s.Get(ctx, p.GUID)
		if err != nil {
			if err != store.ErrNotFound {
				return nil, fmt.Errorf("reading persistent entry for %s: %w", p.GUID, err)
			}

			continue
		}

		needed := neededCount(p, lmc)
		misaligned := dmax > dmin && !lidspace.Aligned(lidspace.LID(dmin), mask)
		tooNarrow := uint16(dmax-dmin)+1 < needed

		if misaligned || tooNarrow {
			if err := s.Delete(ctx, p.GUID); err != nil {
				return nil, fmt.Errorf("deleting stale persistent entry for %s: %w", p.GUID, err)
			}

			used.Clear(lidspace.LID(dmin), uint16(dmax-dmin)+1)
		}
	}

	// Second pass: free-range construction.
	lmax := tbl.Len()
	if used.Len() > lmax {
		lmax = used.Len()
	}
	lmax--

	discovered, err := indexByCurrentRange(ctx, s, ports)
	if err != nil {
		return nil, err
	}

	var openStart lidspace.LID
	open := false

	lid := int(lidspace.UcastStart)
	for lid <= lmax {
		l := lidspace.LID(lid)

		if used.IsUsed(l) {
			if open {
				free.Append(lidspace.Range{Min: openStart, Max: l - 1})
				open = false
			}

			lid++
			continue
		}

		if p, ok := discovered[l]; ok && p.discMin == l {
			heldRange, held := heldByDiscoveredPort(p, mask, used)
			if held {
				if open {
					free.Append(lidspace.Range{Min: openStart, Max: l - 1})
					open = false
				}

				lid = int(heldRange.Max) + 1
				continue
			}
		}

		if !open {
			openStart = l
			open = true
		}

		lid++
	}

	tail := lidspace.LID(lmax + 1)
	if maxUnicast >= 1 {
		end := maxUnicast - 1
		if open {
			free.Append(lidspace.Range{Min: openStart, Max: end})
		} else if tail <= end {
			free.Append(lidspace.Range{Min: tail, Max: end})
		}
	}

	return free, nil
}

func neededCount(p topology.Port, lmc uint8) uint16 {
	if p.NeedsSingleLID() {
		return 1
	}

	return lidspace.Count(lmc)
}

func recordDiscovered(tbl *PortLIDTable, guid topology.GUID, lo, hi uint16, maxUnicast lidspace.LID) {
	start := uint32(lo)
	if lidspace.LID(lo) < lidspace.UcastStart {
		start = uint32(lidspace.UcastStart)
	}

	end := uint32(hi)
	if lidspace.LID(hi) > maxUnicast {
		end = uint32(maxUnicast)
	}

	for l := start; l <= end; l++ {
		tbl.Set(lidspace.LID(l), guid)
	}
}

type discoveredPort struct {
	guid       topology.GUID
	discMin    lidspace.LID
	discMax    lidspace.LID
	hasPersist bool
}

// indexByCurrentRange maps each LID that begins a discovered port's
// currently-advertised range to that port, for the second pass's "held by a
// discovered port" check. Ports with a persistent entry are recorded but
// marked ineligible, since they must always be resolved via the persistent
// hit, never via "held by discovery".
func indexByCurrentRange(ctx context.Context, s store.Store, ports []topology.Port) (map[lidspace.LID]discoveredPort, error) {
	idx := make(map[lidspace.LID]discoveredPort)

	for _, p := range ports {
		lo, hi, ok := p.CurrentRange()
		if !ok {
			continue
		}

		_, _, err := s.Get(ctx, p.GUID)
		hasPersist := err == nil
		if err != nil && err != store.ErrNotFound {
			return nil, fmt.Errorf("reading persistent entry for %s: %w", p.GUID, err)
		}

		idx[lidspace.LID(lo)] = discoveredPort{
			guid:       p.GUID,
			discMin:    lidspace.LID(lo),
			discMax:    lidspace.LID(hi),
			hasPersist: hasPersist,
		}
	}

	return idx, nil
}

// heldByDiscoveredPort implements the second-pass "held by a discovered
// port" classification of the design: eligibility requires no persistent
// assignment, an LMC-aligned advertised base, and none of the needed LIDs
// already reserved.
func heldByDiscoveredPort(p discoveredPort, mask lidspace.LID, used *lidspace.UsedLIDs) (lidspace.Range, bool) {
	if p.hasPersist {
		return lidspace.Range{}, false
	}

	if !lidspace.Aligned(p.discMin, mask) {
		return lidspace.Range{}, false
	}

	for l := p.discMin; l <= p.discMax; l++ {
		if used.IsUsed(l) {
			return lidspace.Range{}, false
		}
	}

	return lidspace.Range{Min: p.discMin, Max: p.discMax}, true
}
