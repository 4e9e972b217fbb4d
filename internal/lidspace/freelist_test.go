package lidspace_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfabrics/go-opensm/internal/lidspace"
)

func TestFreeListAppendMergesAdjacent(t *testing.T) {
	f := &lidspace.FreeList{}
	f.Append(lidspace.Range{Min: 1, Max: 5})
	f.Append(lidspace.Range{Min: 6, Max: 10})
	require.Equal(t, []lidspace.Range{{Min: 1, Max: 10}}, f.Ranges())
}

func TestFreeListAppendKeepsGapsSeparate(t *testing.T) {
	f := &lidspace.FreeList{}
	f.Append(lidspace.Range{Min: 1, Max: 5})
	f.Append(lidspace.Range{Min: 10, Max: 20})
	require.Equal(t, []lidspace.Range{{Min: 1, Max: 5}, {Min: 10, Max: 20}}, f.Ranges())
}

func TestFreeListTakeSingle(t *testing.T) {
	f := &lidspace.FreeList{}
	f.Append(lidspace.Range{Min: 1, Max: 10})

	r, err := f.Take(1)
	require.NoError(t, err)
	require.Equal(t, lidspace.Range{Min: 1, Max: 1}, r)
	require.Equal(t, []lidspace.Range{{Min: 2, Max: 10}}, f.Ranges())
}

func TestFreeListTakeAlignedDiscardsUnalignedPrefix(t *testing.T) {
	f := &lidspace.FreeList{}
	f.Append(lidspace.Range{Min: 3, Max: 20})

	// n=4 needs a 4-aligned base; within [3,20] that is 4, discarding LID 3.
	r, err := f.Take(4)
	require.NoError(t, err)
	require.Equal(t, lidspace.Range{Min: 4, Max: 7}, r)
	require.Equal(t, []lidspace.Range{{Min: 8, Max: 20}}, f.Ranges())
}

func TestFreeListTakeExhaustsRange(t *testing.T) {
	f := &lidspace.FreeList{}
	f.Append(lidspace.Range{Min: 4, Max: 7})

	r, err := f.Take(4)
	require.NoError(t, err)
	require.Equal(t, lidspace.Range{Min: 4, Max: 7}, r)
	require.Empty(t, f.Ranges())
}

func TestFreeListTakeExhausted(t *testing.T) {
	f := &lidspace.FreeList{}
	f.Append(lidspace.Range{Min: 1, Max: 3})

	_, err := f.Take(4)
	require.ErrorIs(t, err, lidspace.ErrExhausted)
}

func TestFreeListTakeSkipsRangesTooSmall(t *testing.T) {
	f := &lidspace.FreeList{}
	f.Append(lidspace.Range{Min: 1, Max: 2})
	f.Append(lidspace.Range{Min: 16, Max: 31})

	r, err := f.Take(8)
	require.NoError(t, err)
	require.Equal(t, lidspace.Range{Min: 16, Max: 23}, r)
}
