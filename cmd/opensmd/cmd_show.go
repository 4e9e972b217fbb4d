package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfabrics/go-opensm/internal/lidspace"
	"github.com/openfabrics/go-opensm/internal/store"
)

// showPortLIDEntry is one port_lid_tbl row in the JSON dump.
type showPortLIDEntry struct {
	GUID string `json:"guid"`
	Min  uint16 `json:"min_lid"`
	Max  uint16 `json:"max_lid"`
}

// showFreeRange is one free_ranges entry in the JSON dump.
type showFreeRange struct {
	Min uint16 `json:"min_lid"`
	Max uint16 `json:"max_lid"`
}

// showOutput is the top-level shape printed by `opensmd show`.
type showOutput struct {
	PortLIDTbl []showPortLIDEntry `json:"port_lid_tbl"`
	FreeRanges []showFreeRange    `json:"free_ranges"`
}

type cmdShow struct {
	global *cmdGlobal
}

func (c *cmdShow) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the persisted guid2lid mapping as JSON",
		RunE:  c.run,
	}

	return cmd
}

func (c *cmdShow) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// --store-path is one of cmdGlobal's persistent override flags, applied
	// by loadConfig via config.ApplyOverrides.
	opts, err := loadConfig(c.global)
	if err != nil {
		return err
	}

	s, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := store.All(ctx, s)
	if err != nil {
		return fmt.Errorf("listing guid2lid entries: %w", err)
	}

	out := showOutput{
		PortLIDTbl: make([]showPortLIDEntry, 0, len(entries)),
		FreeRanges: freeRangesFromEntries(entries, opts.MaxUnicast()),
	}
	for _, e := range entries {
		out.PortLIDTbl = append(out.PortLIDTbl, showPortLIDEntry{GUID: e.GUID.String(), Min: e.Min, Max: e.Max})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// freeRangesFromEntries recomputes the free-range complement of every
// persisted guid2lid entry, the same way a fresh sweep's occupancy pass
// would, so `show` reflects the store without needing a live discovery
// source.
func freeRangesFromEntries(entries []store.Entry, maxUnicast lidspace.LID) []showFreeRange {
	used := lidspace.NewUsedLIDs(maxUnicast)
	for _, e := range entries {
		used.Mark(lidspace.LID(e.Min), e.Max-e.Min+1)
	}

	var ranges []showFreeRange

	open := false
	var start lidspace.LID

	end := maxUnicast
	if end >= 1 {
		end--
	}

	for l := lidspace.UcastStart; l <= end; l++ {
		if used.IsUsed(l) {
			if open {
				ranges = append(ranges, showFreeRange{Min: uint16(start), Max: uint16(l - 1)})
				open = false
			}
			continue
		}

		if !open {
			start = l
			open = true
		}
	}

	if open {
		ranges = append(ranges, showFreeRange{Min: uint16(start), Max: uint16(end)})
	}

	return ranges
}
