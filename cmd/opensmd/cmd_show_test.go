package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfabrics/go-opensm/internal/lidspace"
	"github.com/openfabrics/go-opensm/internal/store"
)

func TestFreeRangesFromEntriesComputesComplement(t *testing.T) {
	entries := []store.Entry{
		{GUID: 1, Min: 4, Max: 7},
		{GUID: 2, Min: 12, Max: 12},
	}

	ranges := freeRangesFromEntries(entries, lidspace.LID(15))

	require.Equal(t, []showFreeRange{
		{Min: 1, Max: 3},
		{Min: 8, Max: 11},
		{Min: 13, Max: 14},
	}, ranges)
}

func TestFreeRangesFromEntriesWithNoEntries(t *testing.T) {
	ranges := freeRangesFromEntries(nil, lidspace.LID(4))

	require.Equal(t, []showFreeRange{{Min: 1, Max: 3}}, ranges)
}
