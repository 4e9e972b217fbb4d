// Package validator implements the design: on init, cross-check the
// persistent guid2lid mapping against the current LMC and drop anything
// that can no longer be trusted.
package validator

import (
	"context"
	"fmt"

	"github.com/openfabrics/go-opensm/internal/lidspace"
	"github.com/openfabrics/go-opensm/internal/logctx"
	"github.com/openfabrics/go-opensm/internal/store"
	"github.com/openfabrics/go-opensm/internal/topology"
)

// Result summarizes one validation pass.
type Result struct {
	Accepted int
	Rejected int
}

// Validate cross-checks every persisted guid2lid entry against lmc and
// maxUnicast, deleting and logging any entry that fails, and marking every
// accepted entry's LIDs used in used. It never allocates new LIDs; rejection
// is its only side effect on the store.
func Validate(ctx context.Context, s store.Store, used *lidspace.UsedLIDs, lmc uint8, maxUnicast lidspace.LID) (Result, error) {
	mask := lidspace.AlignMask(lidspace.Count(lmc))

	var res Result

	guids, err := snapshotGUIDs(ctx, s)
	if err != nil {
		return res, fmt.Errorf("snapshotting guid2lid entries for validation: %w", err)
	}

	for _, guid := range guids {
		min, max, err := s.Get(ctx, guid)
		if err != nil {
			return res, fmt.Errorf("reading guid2lid entry for %s: %w", guid, err)
		}

		reason := rejectReason(guid, min, max, mask, maxUnicast, used)
		if reason != "" {
			logctx.Warn("rejecting invalid persistent lid entry", logctx.Ctx{
				"guid": guid, "min": min, "max": max, "reason": reason,
			})

			if err := s.Delete(ctx, guid); err != nil {
				return res, fmt.Errorf("deleting invalid guid2lid entry for %s: %w", guid, err)
			}

			res.Rejected++
			continue
		}

		used.Mark(lidspace.LID(min), uint16(max-min)+1)
		res.Accepted++
	}

	return res, nil
}

// rejectReason returns a non-empty description if the entry must be
// rejected, or "" if it is valid and should be retained.
func rejectReason(guid topology.GUID, min, max uint16, mask lidspace.LID, maxUnicast lidspace.LID, used *lidspace.UsedLIDs) string {
	switch {
	case guid == 0:
		return "zero guid"
	case min == 0:
		return "zero min lid"
	case min > max:
		return "min greater than max"
	case lidspace.LID(max) > maxUnicast:
		return "max exceeds max_unicast_lid"
	case min != max && !lidspace.Aligned(lidspace.LID(min), mask):
		return "misaligned multi-lid entry"
	}

	for l := min; l <= max; l++ {
		if used.IsUsed(lidspace.LID(l)) {
			return "duplicate lid"
		}
	}

	return ""
}

func snapshotGUIDs(ctx context.Context, s store.Store) ([]topology.GUID, error) {
	var guids []topology.GUID

	err := s.IterateGUIDs(ctx, func(g topology.GUID) error {
		guids = append(guids, g)
		return nil
	})

	return guids, err
}
