// Package resolver implements the Port LID Resolver from the design: for
// one port, decide whether to keep its persistent LID, keep its currently
// advertised LID, or allocate a fresh aligned range, and commit the result
// to the persistent store, used_lids, and port_lid_tbl.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfabrics/go-opensm/internal/lidspace"
	"github.com/openfabrics/go-opensm/internal/store"
	"github.com/openfabrics/go-opensm/internal/sweep"
	"github.com/openfabrics/go-opensm/internal/topology"
)

// ErrExhausted is lidspace.ErrExhausted, re-exported for resolver callers; per
// the design this is a fatal, design-time-impossible condition on a
// correctly sized subnet.
var ErrExhausted = lidspace.ErrExhausted

// Flags are the sweep-wide policy inputs the resolver needs, mirroring
// sweep.Flags' FirstTimeMasterSweep/ReassignLIDs fields.
type Flags struct {
	FirstTimeMasterSweep bool
	ReassignLIDs         bool
}

// Result is the outcome of resolving one port, per the design
// resolve(port) -> (min_lid, max_lid, changed) signature.
type Result struct {
	Min     lidspace.LID
	Max     lidspace.LID
	Changed bool
}

// Resolve implements the design end to end: Step A (persistent hit), Step
// B (keep advertised), Step C (fresh allocation), followed by the shared
// Commit.
func Resolve(
	ctx context.Context,
	port topology.Port,
	lmc uint8,
	flags Flags,
	tbl *sweep.PortLIDTable,
	used *lidspace.UsedLIDs,
	free *lidspace.FreeList,
	s store.Store,
	maxUnicast lidspace.LID,
) (Result, error) {
	n := neededCount(port, lmc)

	// Step A: persistent hit.
	pmin, pmax, err := s.Get(ctx, port.GUID)
	if err == nil {
		min := lidspace.LID(pmin)
		max := min + lidspace.LID(n) - 1
		_ = pmax // the persisted max is recomputed from N, per the design Step A

		changed := pmin != port.CurrentBaseLID
		if changed && port.CurrentBaseLID != 0 {
			tbl.ClearRange(port.GUID, lidspace.LID(port.CurrentBaseLID), oldCount(port))
		}

		if err := commit(ctx, port.GUID, min, max, tbl, used, s); err != nil {
			return Result{}, err
		}

		return Result{Min: min, Max: max, Changed: changed}, nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("reading persistent entry for %s: %w", port.GUID, err)
	}

	// Resolved Open Question (the design): clear this port's own previous
	// range from used_lids before evaluating Step B, so a stale mark left by
	// an earlier sweep's commit for this same port never self-blocks "keep
	// advertised".
	if port.CurrentBaseLID != 0 {
		used.Clear(lidspace.LID(port.CurrentBaseLID), oldCount(port))
	}

	// Step B: keep advertised.
	if rng, ok := tryKeepAdvertised(port, n, flags, used, maxUnicast); ok {
		if err := commit(ctx, port.GUID, rng.Min, rng.Max, tbl, used, s); err != nil {
			return Result{}, err
		}

		return Result{Min: rng.Min, Max: rng.Max, Changed: false}, nil
	}

	// Step C: fresh allocation.
	if port.CurrentBaseLID != 0 {
		tbl.ClearRange(port.GUID, lidspace.LID(port.CurrentBaseLID), oldCount(port))
	}

	rng, err := free.Take(n)
	if err != nil {
		return Result{}, fmt.Errorf("resolving %s: %w", port.GUID, err)
	}

	if err := commit(ctx, port.GUID, rng.Min, rng.Max, tbl, used, s); err != nil {
		return Result{}, err
	}

	return Result{Min: rng.Min, Max: rng.Max, Changed: true}, nil
}

func tryKeepAdvertised(port topology.Port, n uint16, flags Flags, used *lidspace.UsedLIDs, maxUnicast lidspace.LID) (lidspace.Range, bool) {
	if port.CurrentBaseLID == 0 {
		return lidspace.Range{}, false
	}

	if flags.FirstTimeMasterSweep && flags.ReassignLIDs {
		return lidspace.Range{}, false
	}

	base := lidspace.LID(port.CurrentBaseLID)
	if !lidspace.Valid(base, n, maxUnicast) {
		return lidspace.Range{}, false
	}

	for l := base; l < base+lidspace.LID(n); l++ {
		if used.IsUsed(l) {
			return lidspace.Range{}, false
		}
	}

	return lidspace.Range{Min: base, Max: base + lidspace.LID(n) - 1}, true
}

// commit is the shared bookkeeping step from the design: persist, then
// mark used_lids and port_lid_tbl in agreement over [min, max].
func commit(ctx context.Context, guid topology.GUID, min, max lidspace.LID, tbl *sweep.PortLIDTable, used *lidspace.UsedLIDs, s store.Store) error {
	if err := s.Set(ctx, guid, uint16(min), uint16(max)); err != nil {
		return fmt.Errorf("persisting lid range for %s: %w", guid, err)
	}

	n := uint16(max-min) + 1
	used.Mark(min, n)

	for l := min; l <= max; l++ {
		tbl.Set(l, guid)
	}

	return nil
}

func neededCount(p topology.Port, lmc uint8) uint16 {
	if p.NeedsSingleLID() {
		return 1
	}

	return lidspace.Count(lmc)
}

func oldCount(p topology.Port) uint16 {
	if p.CurrentLIDCount == 0 {
		return 1
	}

	return p.CurrentLIDCount
}
